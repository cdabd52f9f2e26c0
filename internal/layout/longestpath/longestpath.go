// Package longestpath finds a single longest simple path through the
// graph and lays it out as the layout's spine, then attaches its direct
// neighbours on adjacent layers.
package longestpath

import (
	"context"
	"sort"

	"github.com/citegraph/layout-engine/internal/graphstore"
	"github.com/citegraph/layout-engine/pkg/model"
	"github.com/citegraph/layout-engine/pkg/utils"
)

const (
	// maxDepth bounds the DFS search so a pathological graph can't make
	// path-finding run unbounded; mirrors the bounded fallback search
	// depth the original implementation used when the full-graph variant
	// exceeded resource limits.
	maxDepth = 15
	// maxRoots bounds how many candidate start vertices are explored.
	maxRoots = 100
	// yDelta is the small per-vertex y perturbation used only for the
	// spine and its neighbours, for visual separation without affecting
	// the level grid.
	yDelta = 10.0
)

// Result reports what the longest-path phase placed.
type Result struct {
	PathLength     int // number of vertices in the spine
	NeighborsCount int
}

// Processor finds and places the longest path, caches it for a
// subsequent re-placement without recomputation, and places the path's
// direct neighbours.
type Processor struct {
	store     graphstore.Store
	logger    utils.Logger
	batchSize int

	cachedPath []string
}

// New constructs a Processor.
func New(store graphstore.Store, logger utils.Logger, batchSize int) *Processor {
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &Processor{store: store, logger: logger, batchSize: batchSize}
}

// FindAndPlace searches for a longest simple path, places it, and caches
// it. A subsequent call reuses the cached path via PlaceCached instead of
// recomputing.
func (p *Processor) FindAndPlace(ctx context.Context) (Result, error) {
	if len(p.cachedPath) > 0 {
		p.logger.Info("using cached longest path for placement only")
		return p.PlaceCached(ctx)
	}

	path, err := p.find(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(path) == 0 {
		p.logger.Warn("no longest path found")
		return Result{}, nil
	}

	if err := p.place(ctx, path); err != nil {
		return Result{}, err
	}
	p.cachedPath = path

	return Result{PathLength: len(path)}, nil
}

// PlaceCached re-applies the cached path's placement without recomputing
// it, used when a prior phase (or a previous call to FindAndPlace)
// already found it.
func (p *Processor) PlaceCached(ctx context.Context) (Result, error) {
	if len(p.cachedPath) == 0 {
		return Result{}, nil
	}
	if err := p.place(ctx, p.cachedPath); err != nil {
		return Result{}, err
	}
	return Result{PathLength: len(p.cachedPath)}, nil
}

// Path returns the currently cached longest path, source-to-sink.
func (p *Processor) Path() []string {
	return append([]string(nil), p.cachedPath...)
}

func (p *Processor) place(ctx context.Context, path []string) error {
	updates := make([]graphstore.PositionUpdate, len(path))
	for i, uid := range path {
		updates[i] = graphstore.PositionUpdate{
			UID:         uid,
			Layer:       i,
			Level:       0,
			Status:      model.StatusInLongestPath,
			YPerturb:    float64(i) * yDelta,
			HasYPerturb: true,
		}
	}
	return p.store.BatchUpdatePositions(ctx, updates, p.batchSize)
}

// PlaceNeighbors discovers every vertex not on the spine that is a
// direct predecessor or successor of a spine vertex, and assigns them to
// consecutive layers starting immediately after the spine's last layer,
// all on level 0.
func (p *Processor) PlaceNeighbors(ctx context.Context) (Result, error) {
	if len(p.cachedPath) == 0 {
		return Result{}, nil
	}

	neighbors, err := p.store.DirectNeighbors(ctx, p.cachedPath)
	if err != nil {
		return Result{}, err
	}
	if len(neighbors) == 0 {
		return Result{}, nil
	}

	sort.Strings(neighbors)
	startLayer := len(p.cachedPath)

	updates := make([]graphstore.PositionUpdate, len(neighbors))
	for i, uid := range neighbors {
		updates[i] = graphstore.PositionUpdate{
			UID:         uid,
			Layer:       startLayer + i,
			Level:       0,
			Status:      model.StatusLPNeighbor,
			YPerturb:    float64(i) * yDelta,
			HasYPerturb: true,
		}
	}
	if err := p.store.BatchUpdatePositions(ctx, updates, p.batchSize); err != nil {
		return Result{}, err
	}

	return Result{NeighborsCount: len(neighbors)}, nil
}

// find searches for a longest simple path using bounded-depth DFS from a
// capped, deterministic set of candidate roots.
func (p *Processor) find(ctx context.Context) ([]string, error) {
	edges, err := p.store.AllEdges(ctx)
	if err != nil {
		return nil, err
	}
	if len(edges) == 0 {
		return nil, nil
	}

	forward := map[string][]string{}
	reverse := map[string][]string{}
	hasIncoming := map[string]bool{}
	vertexSet := map[string]bool{}
	for _, e := range edges {
		forward[e.Source] = append(forward[e.Source], e.Target)
		reverse[e.Target] = append(reverse[e.Target], e.Source)
		vertexSet[e.Source] = true
		vertexSet[e.Target] = true
		hasIncoming[e.Target] = true
	}
	for uid := range forward {
		sort.Strings(forward[uid])
	}
	for uid := range reverse {
		sort.Strings(reverse[uid])
	}

	var sources []string
	for uid := range vertexSet {
		if !hasIncoming[uid] {
			sources = append(sources, uid)
		}
	}

	if len(sources) > 0 {
		sort.Strings(sources)
		if len(sources) > maxRoots {
			sources = sources[:maxRoots]
		}
		return longestSimplePath(forward, sources), nil
	}

	// No source vertices: the graph is entirely cyclic. Fall back to a
	// bounded backward search rooted at sinks (out-degree 0), then
	// reverse the result into source-to-sink order.
	sinks, err := p.store.OutDegreeZeroUIDs(ctx, maxRoots)
	if err != nil {
		return nil, err
	}
	if len(sinks) == 0 {
		return nil, nil
	}
	backward := longestSimplePath(reverse, sinks)
	for i, j := 0, len(backward)-1; i < j; i, j = i+1, j-1 {
		backward[i], backward[j] = backward[j], backward[i]
	}
	return backward, nil
}

// longestSimplePath performs bounded-depth DFS from each root, returning
// the longest simple path found (by vertex count), deterministic given a
// deterministic adjacency and root ordering.
func longestSimplePath(adj map[string][]string, roots []string) []string {
	var best []string
	visited := map[string]bool{}
	var path []string

	var dfs func(node string, depth int)
	dfs = func(node string, depth int) {
		visited[node] = true
		path = append(path, node)
		if len(path) > len(best) {
			best = append([]string(nil), path...)
		}
		if depth < maxDepth {
			for _, next := range adj[node] {
				if !visited[next] {
					dfs(next, depth+1)
				}
			}
		}
		path = path[:len(path)-1]
		visited[node] = false
	}

	for _, root := range roots {
		dfs(root, 0)
	}

	return best
}
