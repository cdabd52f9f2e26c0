// Package fastplace grid-fills every vertex the earlier phases left
// unprocessed, guaranteeing finite completion regardless of how the
// graph is shaped.
package fastplace

import (
	"context"

	"github.com/citegraph/layout-engine/internal/graphstore"
	"github.com/citegraph/layout-engine/pkg/model"
	"github.com/citegraph/layout-engine/pkg/utils"
)

const (
	baseLayer = 50
	baseLevel = 20
	columns   = 15
)

// Result reports how many vertices the fast-placement pass grid-filled.
type Result struct {
	VerticesPlaced int
}

// Placer grid-fills remaining unprocessed vertices in batches.
type Placer struct {
	store     graphstore.Store
	logger    utils.Logger
	batchSize int
}

// New constructs a Placer. batchSize defaults to 5000 per the external
// configuration table.
func New(store graphstore.Store, logger utils.Logger, batchSize int) *Placer {
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	if batchSize <= 0 {
		batchSize = 5000
	}
	return &Placer{store: store, logger: logger, batchSize: batchSize}
}

// Run assigns every still-unprocessed vertex with an incident edge a grid
// position, ascending by topo_order, in batches.
func (p *Placer) Run(ctx context.Context) (Result, error) {
	uids, err := p.store.UnprocessedUIDsByTopoOrder(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(uids) == 0 {
		return Result{}, nil
	}

	p.logger.Info("fast-placing %d residual vertices", len(uids))

	updates := make([]graphstore.PositionUpdate, len(uids))
	for i, uid := range uids {
		updates[i] = graphstore.PositionUpdate{
			UID:    uid,
			Layer:  baseLayer + (i % columns),
			Level:  baseLevel + (i / columns),
			Status: model.StatusPlaced,
		}
	}

	if err := p.store.BatchUpdatePositions(ctx, updates, p.batchSize); err != nil {
		return Result{}, err
	}
	return Result{VerticesPlaced: len(uids)}, nil
}
