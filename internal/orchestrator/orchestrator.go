// Package orchestrator drives the layout pipeline end to end: sanitise,
// topologically sort, place the longest path and its neighbours, place
// components, grid-fill the residual, reapply pinned positions, and, in
// distributed mode, rendezvous with the other workers.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/citegraph/layout-engine/internal/graphstore"
	"github.com/citegraph/layout-engine/internal/layout/components"
	"github.com/citegraph/layout-engine/internal/layout/fastplace"
	"github.com/citegraph/layout-engine/internal/layout/longestpath"
	"github.com/citegraph/layout-engine/internal/layout/position"
	"github.com/citegraph/layout-engine/internal/layout/sanitize"
	layoutsync "github.com/citegraph/layout-engine/internal/layout/sync"
	"github.com/citegraph/layout-engine/internal/layout/toposort"
	apperrors "github.com/citegraph/layout-engine/pkg/errors"
	"github.com/citegraph/layout-engine/pkg/model"
	"github.com/citegraph/layout-engine/pkg/telemetry"
	"github.com/citegraph/layout-engine/pkg/utils"
)

// Options configures one orchestrator run. Zero values pick the spec's
// documented defaults where one exists.
type Options struct {
	BatchSize               int
	ComponentChunks         int
	FastPlaceEnabled        bool
	ValidateTopoOrder       bool
	ExcludeIsolatedVertices bool
	WorkerID                int
	TotalWorkers            int
	SyncPollIntervalSec     int

	Logger  utils.Logger
	Clock   utils.Clock
	Metrics *telemetry.Metrics
}

// Orchestrator sequences the layout phases against a Store.
type Orchestrator struct {
	store   graphstore.Store
	opts    Options
	logger  utils.Logger
	clock   utils.Clock
	metrics *telemetry.Metrics
}

// New constructs an Orchestrator bound to store.
func New(store graphstore.Store, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = &utils.NullLogger{}
	}
	if opts.Clock == nil {
		opts.Clock = utils.NewRealClock()
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.GlobalMetrics()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	if opts.ComponentChunks <= 0 {
		opts.ComponentChunks = 4
	}
	if opts.TotalWorkers <= 0 {
		opts.TotalWorkers = 1
	}
	return &Orchestrator{
		store:   store,
		opts:    opts,
		logger:  opts.Logger,
		clock:   opts.Clock,
		metrics: opts.Metrics,
	}
}

// Run drives every phase in sequence and assembles the final
// LayoutResult. A cancelled context still returns a partial result built
// from whatever phases completed, with Cancelled set.
func (o *Orchestrator) Run(ctx context.Context) model.LayoutResult {
	result := model.LayoutResult{Success: true}
	dbOpsStart := o.metrics.DBOperationCount()

	var cachedLongestPath *longestpath.Processor

	// Each entry closes over whatever state it needs; longest_path and
	// longest_path_neighbors share cachedLongestPath so the neighbour pass
	// doesn't re-discover the path from scratch.
	phases := []struct {
		name string
		run  func(context.Context) (model.PhaseStat, error)
	}{
		{"initialise", o.phaseInitialise},
		{"sanitise", o.phaseSanitise},
		{"topo_sort", o.phaseTopoSort},
		{"longest_path", func(ctx context.Context) (model.PhaseStat, error) {
			stat, lp, err := o.runLongestPath(ctx)
			cachedLongestPath = lp
			return stat, err
		}},
		{"longest_path_neighbors", func(ctx context.Context) (model.PhaseStat, error) {
			return o.runLongestPathNeighbors(ctx, cachedLongestPath)
		}},
		{"components", o.phaseComponents},
		{"fast_place", o.phaseFastPlace},
		{"apply_pinned", o.phaseApplyPinned},
		{"rendezvous", o.phaseRendezvous},
	}

	for _, phase := range phases {
		if err := ctx.Err(); err != nil {
			o.logger.Warn("run cancelled before phase %s: %v", phase.name, err)
			result.Cancelled = true
			break
		}

		stat, err := phase.run(ctx)
		result.Statistics.Phases = append(result.Statistics.Phases, stat)
		result.Statistics.Iterations++
		if err != nil {
			o.recordFailure(&result, phase.name, err)
			break
		}
	}

	for _, stat := range result.Statistics.Phases {
		result.Statistics.ProcessingTimeMS += stat.DurationMS
	}

	if result.Success && !result.Cancelled {
		if err := o.assembleOutput(ctx, &result); err != nil {
			o.recordFailure(&result, "assemble_output", err)
		}
	}

	result.Statistics.DBOperationCount = o.metrics.DBOperationCount() - dbOpsStart

	return result
}

func (o *Orchestrator) recordFailure(result *model.LayoutResult, phase string, err error) {
	result.Success = false
	result.Error = fmt.Sprintf("phase %s failed: %v", phase, err)
	o.logger.Error("%s", result.Error)
}

func (o *Orchestrator) timePhase(name string, fn func() (int, error)) model.PhaseStat {
	start := o.clock.Now()
	vertices, err := fn()
	duration := o.clock.Now().Sub(start)

	stat := model.PhaseStat{
		Name:        name,
		Success:     err == nil,
		DurationMS:  duration.Milliseconds(),
		VerticesSet: vertices,
	}
	if err != nil {
		stat.Error = err.Error()
	}
	o.metrics.RecordPhaseDuration(context.Background(), name, float64(stat.DurationMS))
	return stat
}

func (o *Orchestrator) phaseInitialise(ctx context.Context) (model.PhaseStat, error) {
	var runErr error
	stat := o.timePhase("initialise", func() (int, error) {
		if err := o.store.EnsureSchema(ctx); err != nil {
			runErr = err
			return 0, err
		}
		if err := o.store.ResetLayout(ctx); err != nil {
			runErr = err
			return 0, err
		}
		return 0, nil
	})
	return stat, runErr
}

func (o *Orchestrator) phaseSanitise(ctx context.Context) (model.PhaseStat, error) {
	var runErr error
	var verticesRemoved int
	stat := o.timePhase("sanitise", func() (int, error) {
		res, err := sanitize.New(o.store, o.logger).Run(ctx)
		if err != nil {
			runErr = err
			return 0, err
		}
		verticesRemoved = int(res.SelfLoopsRemoved + res.ParallelEdgesRemoved)
		return verticesRemoved, nil
	})
	return stat, runErr
}

func (o *Orchestrator) phaseTopoSort(ctx context.Context) (model.PhaseStat, error) {
	var runErr error
	var assigned int
	stat := o.timePhase("topo_sort", func() (int, error) {
		sorter := toposort.New(o.store, o.logger, o.opts.BatchSize)
		res, err := sorter.Run(ctx)
		if err != nil {
			runErr = err
			return 0, err
		}
		assigned = int(res.Assigned + res.CycleFallback)

		if o.opts.ValidateTopoOrder {
			bad, err := sorter.Validate(ctx)
			if err != nil {
				runErr = err
				return assigned, err
			}
			if len(bad) > 0 {
				runErr = apperrors.New(apperrors.CodeCycleDetected,
					fmt.Sprintf("%d edges violate topological order after sort", len(bad)))
				return assigned, runErr
			}
		}
		return assigned, nil
	})
	return stat, runErr
}

func (o *Orchestrator) runLongestPath(ctx context.Context) (model.PhaseStat, *longestpath.Processor, error) {
	processor := longestpath.New(o.store, o.logger, o.opts.BatchSize)
	var runErr error
	stat := o.timePhase("longest_path", func() (int, error) {
		res, err := processor.FindAndPlace(ctx)
		if err != nil {
			runErr = err
			return 0, err
		}
		return res.PathLength, nil
	})
	return stat, processor, runErr
}

func (o *Orchestrator) runLongestPathNeighbors(ctx context.Context, processor *longestpath.Processor) (model.PhaseStat, error) {
	var runErr error
	stat := o.timePhase("longest_path_neighbors", func() (int, error) {
		if processor == nil {
			return 0, nil
		}
		res, err := processor.PlaceNeighbors(ctx)
		if err != nil {
			runErr = err
			return 0, err
		}
		return res.NeighborsCount, nil
	})
	return stat, runErr
}

func (o *Orchestrator) phaseComponents(ctx context.Context) (model.PhaseStat, error) {
	var runErr error
	stat := o.timePhase("components", func() (int, error) {
		strategy := components.DetectStrategy(ctx, o.store)
		processor := components.New(o.store, o.logger, strategy, o.opts.ComponentChunks, o.opts.BatchSize)
		processor.WorkerID = o.opts.WorkerID
		processor.TotalWorkers = o.opts.TotalWorkers
		processor.ExcludeIsolatedVertices = o.opts.ExcludeIsolatedVertices

		res, err := processor.Run(ctx)
		if err != nil {
			runErr = err
			return 0, err
		}
		if res.FailedComponents > 0 {
			o.logger.Warn("%d components failed to place", res.FailedComponents)
		}
		return res.VerticesPlaced, nil
	})
	return stat, runErr
}

func (o *Orchestrator) phaseFastPlace(ctx context.Context) (model.PhaseStat, error) {
	if !o.opts.FastPlaceEnabled {
		return model.PhaseStat{Name: "fast_place", Success: true}, nil
	}
	var runErr error
	stat := o.timePhase("fast_place", func() (int, error) {
		res, err := fastplace.New(o.store, o.logger, o.opts.BatchSize).Run(ctx)
		if err != nil {
			runErr = err
			return 0, err
		}
		return res.VerticesPlaced, nil
	})
	return stat, runErr
}

func (o *Orchestrator) phaseApplyPinned(ctx context.Context) (model.PhaseStat, error) {
	var runErr error
	stat := o.timePhase("apply_pinned", func() (int, error) {
		pinned, err := o.store.PinnedVertices(ctx)
		if err != nil {
			runErr = err
			return 0, err
		}
		if len(pinned) == 0 {
			return 0, nil
		}

		currentLayer, err := o.currentLayers(ctx)
		if err != nil {
			runErr = err
			return 0, err
		}

		// Only the level is overridden here: a pinned vertex keeps whatever
		// layer the earlier phases gave it, and x/y are recomputed from the
		// (unchanged layer, new level) pair by BatchUpdatePositions.
		updates := make([]graphstore.PositionUpdate, len(pinned))
		for i, pv := range pinned {
			updates[i] = graphstore.PositionUpdate{
				UID:    pv.UID,
				Layer:  currentLayer[pv.UID],
				Level:  pv.TargetLevel,
				Status: model.StatusPinned,
			}
		}
		if err := o.store.BatchUpdatePositions(ctx, updates, o.opts.BatchSize); err != nil {
			runErr = err
			return 0, err
		}
		return len(pinned), nil
	})
	return stat, runErr
}

// currentLayers reads back every vertex's current layer, for phases that
// must preserve it while overriding only the level.
func (o *Orchestrator) currentLayers(ctx context.Context) (map[string]int, error) {
	layers := map[string]int{}
	rows, errc := o.store.StreamNodesChunked(ctx, nil, 5000)
	for batch := range rows {
		for _, row := range batch {
			uid, _ := row["uid"].(string)
			if uid == "" {
				continue
			}
			layers[uid] = asInt(row["layer"])
		}
	}
	if err := <-errc; err != nil {
		return nil, err
	}
	return layers, nil
}

func (o *Orchestrator) phaseRendezvous(ctx context.Context) (model.PhaseStat, error) {
	if o.opts.TotalWorkers <= 1 {
		return model.PhaseStat{Name: "rendezvous", Success: true}, nil
	}
	var runErr error
	stat := o.timePhase("rendezvous", func() (int, error) {
		r := layoutsync.New(o.store, o.logger, o.clock, o.opts.WorkerID, o.opts.TotalWorkers,
			time.Duration(o.opts.SyncPollIntervalSec)*time.Second)
		if err := r.Finish(ctx); err != nil {
			runErr = err
			return 0, err
		}
		return 0, nil
	})
	return stat, runErr
}

// assembleOutput streams every vertex back out of the store and builds
// the Blocks/Layers/Levels views the caller receives.
func (o *Orchestrator) assembleOutput(ctx context.Context, result *model.LayoutResult) error {
	result.Layers = map[string]int{}
	result.Levels = map[int][]string{}

	rows, errc := o.store.StreamNodesChunked(ctx, nil, 5000)
	for batch := range rows {
		for _, row := range batch {
			uid, _ := row["uid"].(string)
			if uid == "" {
				continue
			}
			if status, _ := row["layout_status"].(string); status == string(model.StatusUnprocessed) {
				// Never reached by any phase (e.g. an isolated vertex with
				// ExcludeIsolatedVertices set) — not part of the layout.
				continue
			}
			layer := asInt(row["layer"])
			level := asInt(row["level"])
			x, y := position.Coordinates(layer, level)
			isPinned, _ := row["is_pinned"].(bool)

			result.Blocks = append(result.Blocks, model.Block{
				ID:       uid,
				Layer:    layer,
				Level:    level,
				X:        x,
				Y:        y,
				IsPinned: isPinned,
			})
			result.Layers[uid] = layer
			result.Levels[level] = append(result.Levels[level], uid)
		}
	}
	if err := <-errc; err != nil {
		return err
	}

	sort.Slice(result.Blocks, func(i, j int) bool { return result.Blocks[i].ID < result.Blocks[j].ID })
	for level := range result.Levels {
		sort.Strings(result.Levels[level])
	}
	return nil
}

func asInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

