// Package toposort computes a global topological order over the graph
// entirely in the database, using Kahn's algorithm in bounded-size
// batches so memory use stays flat regardless of graph size.
package toposort

import (
	"context"
	"sort"

	"github.com/citegraph/layout-engine/internal/graphstore"
	"github.com/citegraph/layout-engine/pkg/utils"
)

// Result reports the sorter's outcome.
type Result struct {
	Assigned      int64 // vertices assigned a topo_order during the wave loop
	CycleFallback int64 // vertices assigned via the residual-cycle fallback
}

// Sorter drives Kahn's algorithm in batches against a Store.
type Sorter struct {
	store     graphstore.Store
	logger    utils.Logger
	batchSize int
}

// New constructs a Sorter. batchSize bounds both the init pass and each
// wave's write batch (spec default 5000).
func New(store graphstore.Store, logger utils.Logger, batchSize int) *Sorter {
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	if batchSize <= 0 {
		batchSize = 5000
	}
	return &Sorter{store: store, logger: logger, batchSize: batchSize}
}

// Run initialises in-degrees, drains the zero-in-degree wavefront in
// batches, and assigns a deterministic fallback order to any vertex left
// over in a residual cycle.
func (s *Sorter) Run(ctx context.Context) (Result, error) {
	if err := s.store.InitInDegrees(ctx, s.batchSize); err != nil {
		return Result{}, err
	}

	var order int64
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		batch, err := s.store.ExtractZeroInDegreeBatch(ctx, s.batchSize)
		if err != nil {
			return Result{}, err
		}
		if len(batch) == 0 {
			break
		}

		if err := s.store.AssignTopoOrder(ctx, batch, order); err != nil {
			return Result{}, err
		}
		order += int64(len(batch))

		if err := s.store.DecrementInDegree(ctx, batch); err != nil {
			return Result{}, err
		}
	}

	remaining, err := s.store.UnvisitedUIDs(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(remaining) > 0 {
		s.logger.Warn("topological sort found %d vertices in residual cycles; assigning fallback order", len(remaining))
		sort.Strings(remaining)
		if err := s.store.AssignTopoOrder(ctx, remaining, order); err != nil {
			return Result{}, err
		}
	}

	return Result{Assigned: order, CycleFallback: int64(len(remaining))}, nil
}

// Validate reports every edge u->v for which u.topo_order is not strictly
// less than v.topo_order, used when config.Layout.ValidateTopoOrder is set.
func (s *Sorter) Validate(ctx context.Context) ([]graphstore.Edge, error) {
	return s.store.ValidateTopoOrder(ctx)
}
