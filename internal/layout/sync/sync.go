// Package sync coordinates distributed-mode workers through rendezvous
// markers recorded in the shared graph store: worker 0 waits for every
// worker to finish, every other worker waits for worker 0.
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/citegraph/layout-engine/internal/graphstore"
	"github.com/citegraph/layout-engine/pkg/utils"
)

const (
	minPollInterval = 2 * time.Second
	maxPollInterval = 5 * time.Second
)

// Rendezvous drives the distributed worker handoff for one run.
type Rendezvous struct {
	store        graphstore.Store
	logger       utils.Logger
	clock        utils.Clock
	workerID     int
	totalWorkers int
	pollInterval time.Duration
}

// New constructs a Rendezvous for the given worker. pollInterval is
// clamped to [2s, 5s] if outside that range; zero selects the default of
// 3 seconds.
func New(store graphstore.Store, logger utils.Logger, clock utils.Clock, workerID, totalWorkers int, pollInterval time.Duration) *Rendezvous {
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	if clock == nil {
		clock = utils.NewRealClock()
	}
	switch {
	case pollInterval <= 0:
		pollInterval = 3 * time.Second
	case pollInterval < minPollInterval:
		pollInterval = minPollInterval
	case pollInterval > maxPollInterval:
		pollInterval = maxPollInterval
	}
	return &Rendezvous{
		store:        store,
		logger:       logger,
		clock:        clock,
		workerID:     workerID,
		totalWorkers: totalWorkers,
		pollInterval: pollInterval,
	}
}

// Finish records this worker's completion marker and then blocks until
// the rendezvous condition for its role is satisfied, or ctx is done.
//
// Worker 0 waits until every worker's marker has been recorded. Every
// other worker waits for worker 0's marker to appear, since worker 0 is
// the one that ultimately reports the aggregated LayoutResult.
func (r *Rendezvous) Finish(ctx context.Context) error {
	if r.totalWorkers <= 1 {
		return nil
	}
	if err := r.store.InsertSyncMarker(ctx, r.workerID, r.totalWorkers); err != nil {
		return fmt.Errorf("insert sync marker for worker %d: %w", r.workerID, err)
	}

	if r.workerID == 0 {
		return r.waitForAllWorkers(ctx)
	}
	return r.waitForMaster(ctx)
}

func (r *Rendezvous) waitForAllWorkers(ctx context.Context) error {
	for {
		count, err := r.store.CountSyncMarkers(ctx, r.totalWorkers)
		if err != nil {
			return err
		}
		if count >= r.totalWorkers {
			return nil
		}
		r.logger.Debug("master waiting for workers: %d/%d complete", count, r.totalWorkers)
		if err := r.sleep(ctx); err != nil {
			return err
		}
	}
}

func (r *Rendezvous) waitForMaster(ctx context.Context) error {
	for {
		_, ok, err := r.store.MasterMarkerTimestamp(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		r.logger.Debug("worker %d waiting for master marker", r.workerID)
		if err := r.sleep(ctx); err != nil {
			return err
		}
	}
}

func (r *Rendezvous) sleep(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.clock.After(r.pollInterval):
		return nil
	}
}
