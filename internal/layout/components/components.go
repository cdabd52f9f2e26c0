// Package components discovers weakly connected components among
// vertices still marked unprocessed and places each one near its
// already-placed neighbourhood, in parallel chunks with disjoint
// layer/level bands.
package components

import (
	"context"
	"hash/fnv"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/citegraph/layout-engine/internal/graphstore"
	"github.com/citegraph/layout-engine/internal/layout/position"
	"github.com/citegraph/layout-engine/pkg/model"
	"github.com/citegraph/layout-engine/pkg/utils"
)

const (
	// gridThreshold is the component-size cutoff above which placement
	// switches from free-slot search to a deterministic grid fill.
	gridThreshold = 100
	// gridColumns is the grid fill's column count (10 vertices per row).
	gridColumns = 10
	// boundedHopLimit is the undirected BFS hop bound the fallback
	// discovery strategy uses in place of the GDS wcc procedure.
	boundedHopLimit = 6
)

// Strategy selects how components are discovered, detected once at
// startup rather than branched on at every call.
type Strategy int

const (
	// StrategyGDS uses the database's graph-data-science wcc procedure.
	StrategyGDS Strategy = iota
	// StrategyBoundedBFS uses bounded-hop undirected BFS.
	StrategyBoundedBFS
)

// DetectStrategy probes the store once and picks GDS if available,
// falling back to bounded BFS otherwise. The chosen strategy is fixed for
// the remainder of the run.
func DetectStrategy(ctx context.Context, store graphstore.Store) Strategy {
	if store.GDSAvailable(ctx) {
		return StrategyGDS
	}
	return StrategyBoundedBFS
}

// Result reports the outcome of a component-placement run.
type Result struct {
	ComponentsPlaced int
	VerticesPlaced   int
	FailedComponents int
}

// Processor discovers and places weakly connected components.
type Processor struct {
	store     graphstore.Store
	logger    utils.Logger
	strategy  Strategy
	chunks    int
	batchSize int

	// WorkerID/TotalWorkers restrict processing, in distributed mode, to
	// the components whose first uid hashes to this worker.
	WorkerID     int
	TotalWorkers int

	// ExcludeIsolatedVertices drops singleton components whose sole
	// vertex has no incident edge instead of placing them, leaving such
	// vertices unprocessed.
	ExcludeIsolatedVertices bool
}

// New constructs a Processor. chunks bounds the number of concurrent
// placement goroutines (default spec value: 4).
func New(store graphstore.Store, logger utils.Logger, strategy Strategy, chunks, batchSize int) *Processor {
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	if chunks <= 0 {
		chunks = 4
	}
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &Processor{
		store:        store,
		logger:       logger,
		strategy:     strategy,
		chunks:       chunks,
		batchSize:    batchSize,
		TotalWorkers: 1,
	}
}

// Run discovers components, splits them into up to p.chunks bands (chunk
// i starting at layer 20+10i, level 5+5i), and places each concurrently.
func (p *Processor) Run(ctx context.Context) (Result, error) {
	components, err := p.discover(ctx)
	if err != nil {
		return Result{}, err
	}

	if p.ExcludeIsolatedVertices {
		components, err = p.dropIsolated(ctx, components)
		if err != nil {
			return Result{}, err
		}
	}

	if p.TotalWorkers > 1 {
		components = p.filterForWorker(components)
	}
	if len(components) == 0 {
		return Result{}, nil
	}

	bands := splitIntoChunks(components, p.chunks)

	var result Result
	g, gctx := errgroup.WithContext(ctx)
	results := make([]chunkResult, len(bands))

	for i, band := range bands {
		i, band := i, band
		startLayer := 20 + 10*i
		startLevel := 5 + 5*i
		g.Go(func() error {
			cr := p.placeChunk(gctx, band, startLayer, startLevel)
			results[i] = cr
			return nil
		})
	}
	_ = g.Wait() // per-chunk failures are recorded in results, not propagated

	for _, cr := range results {
		result.ComponentsPlaced += cr.placed
		result.VerticesPlaced += cr.vertices
		result.FailedComponents += cr.failed
	}
	return result, nil
}

type chunkResult struct {
	placed   int
	vertices int
	failed   int
}

func (p *Processor) placeChunk(ctx context.Context, components [][]string, startLayer, startLevel int) chunkResult {
	var cr chunkResult
	for _, component := range components {
		if err := ctx.Err(); err != nil {
			cr.failed += len(components) - cr.placed - cr.failed
			return cr
		}
		if err := p.placeComponent(ctx, component, startLayer, startLevel); err != nil {
			p.logger.Warn("component placement failed: %v", err)
			cr.failed++
			continue
		}
		cr.placed++
		cr.vertices += len(component)
	}
	return cr
}

func (p *Processor) placeComponent(ctx context.Context, component []string, startLayer, startLevel int) error {
	sort.Strings(component)

	targetLayer, targetLevel, err := position.OptimalPosition(ctx, p.store, component, startLayer+1, startLevel)
	if err != nil {
		return err
	}

	updates := make([]graphstore.PositionUpdate, 0, len(component))

	if len(component) > gridThreshold {
		for i, uid := range component {
			updates = append(updates, graphstore.PositionUpdate{
				UID:    uid,
				Layer:  targetLayer + (i % gridColumns),
				Level:  targetLevel + (i / gridColumns),
				Status: model.StatusPlaced,
			})
		}
	} else {
		for _, uid := range component {
			layer, level, err := position.FreeSlot(ctx, p.store, targetLayer, targetLevel)
			if err != nil {
				return err
			}
			updates = append(updates, graphstore.PositionUpdate{
				UID:    uid,
				Layer:  layer,
				Level:  level,
				Status: model.StatusPlaced,
			})
			// Write immediately so the next free-slot search in this
			// component sees the slot as occupied.
			if err := p.store.BatchUpdatePositions(ctx, updates[len(updates)-1:], 1); err != nil {
				return err
			}
		}
		return nil
	}

	return p.store.BatchUpdatePositions(ctx, updates, p.batchSize)
}

func (p *Processor) discover(ctx context.Context) ([][]string, error) {
	switch p.strategy {
	case StrategyGDS:
		return p.store.ComponentsWCC(ctx)
	default:
		return p.store.ComponentsBFS(ctx, boundedHopLimit)
	}
}

// dropIsolated removes singleton components whose sole vertex has no
// incident edge: a bounded-hop BFS or wcc run still reports an isolated
// vertex as a trivial component of size one, but it was never actually
// connected to anything and must stay unprocessed rather than placed.
func (p *Processor) dropIsolated(ctx context.Context, comps [][]string) ([][]string, error) {
	hasSingleton := false
	for _, c := range comps {
		if len(c) == 1 {
			hasSingleton = true
			break
		}
	}
	if !hasSingleton {
		return comps, nil
	}

	edges, err := p.store.AllEdges(ctx)
	if err != nil {
		return nil, err
	}
	incident := make(map[string]bool, len(edges)*2)
	for _, e := range edges {
		incident[e.Source] = true
		incident[e.Target] = true
	}

	kept := comps[:0]
	for _, c := range comps {
		if len(c) == 1 && !incident[c[0]] {
			continue
		}
		kept = append(kept, c)
	}
	return kept, nil
}

// filterForWorker keeps only the components whose first (lexicographically
// smallest) uid hashes to this worker, for deterministic distributed
// partitioning.
func (p *Processor) filterForWorker(components [][]string) [][]string {
	var mine [][]string
	for _, c := range components {
		if len(c) == 0 {
			continue
		}
		if componentOwner(c[0], p.TotalWorkers) == p.WorkerID {
			mine = append(mine, c)
		}
	}
	return mine
}

func componentOwner(firstUID string, totalWorkers int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(firstUID))
	return int(h.Sum32() % uint32(totalWorkers))
}

func splitIntoChunks(components [][]string, chunks int) [][][]string {
	if chunks <= 0 {
		chunks = 1
	}
	bands := make([][][]string, chunks)
	for i, c := range components {
		idx := i % chunks
		bands[idx] = append(bands[idx], c)
	}
	return bands
}
