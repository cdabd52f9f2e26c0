// Package graphstoretest provides an in-memory implementation of
// graphstore.Store for exercising layout phases and the orchestrator
// without a live Neo4j cluster.
package graphstoretest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/citegraph/layout-engine/internal/graphstore"
	"github.com/citegraph/layout-engine/pkg/model"
	"github.com/citegraph/layout-engine/pkg/utils"
)

var _ graphstore.Store = (*Fake)(nil)

// vertex is one node's full layout-relevant state.
type vertex struct {
	uid          string
	layer        int
	level        int
	x, y         float64
	status       model.VertexStatus
	topoOrder    int64
	inDeg        int
	visited      bool
	isPinned     bool
	targetLevel  int
	hasPosition  bool
}

// Fake is a thread-safe, in-memory Store. Edges are directed and stored
// both as a forward and reverse adjacency list to make predecessor and
// successor queries cheap.
type Fake struct {
	mu sync.Mutex

	vertices map[string]*vertex
	order    []string // insertion order, for deterministic iteration fallback

	forward map[string]map[string]bool // uid -> set of successors
	reverse map[string]map[string]bool // uid -> set of predecessors

	syncMarkers map[int]time.Time // workerID -> completion timestamp
	totalSync   int

	gdsAvailable bool

	connectCalls int
	closeCalls   int

	clock utils.Clock
}

// New constructs an empty Fake using the real clock for sync-marker
// timestamps.
func New() *Fake {
	return NewWithClock(utils.NewRealClock())
}

// NewWithClock constructs an empty Fake using the given clock, for
// deterministic distributed-rendezvous tests.
func NewWithClock(clock utils.Clock) *Fake {
	return &Fake{
		vertices:    map[string]*vertex{},
		forward:     map[string]map[string]bool{},
		reverse:     map[string]map[string]bool{},
		syncMarkers: map[int]time.Time{},
		clock:       clock,
	}
}

// SetGDSAvailable controls what GDSAvailable reports, for exercising both
// the GDS and BFS component-discovery paths.
func (f *Fake) SetGDSAvailable(available bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gdsAvailable = available
}

// AddVertex registers a vertex, creating it lazily if unseen.
func (f *Fake) AddVertex(uid string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureVertex(uid)
}

// AddPinnedVertex registers a vertex with a pinned target level.
func (f *Fake) AddPinnedVertex(uid string, targetLevel int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := f.ensureVertex(uid)
	v.isPinned = true
	v.targetLevel = targetLevel
}

// AddEdge registers a directed edge, creating any unseen endpoints.
func (f *Fake) AddEdge(source, target string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureVertex(source)
	f.ensureVertex(target)

	if f.forward[source] == nil {
		f.forward[source] = map[string]bool{}
	}
	f.forward[source][target] = true

	if f.reverse[target] == nil {
		f.reverse[target] = map[string]bool{}
	}
	f.reverse[target][source] = true
}

func (f *Fake) ensureVertex(uid string) *vertex {
	v, ok := f.vertices[uid]
	if !ok {
		v = &vertex{uid: uid, status: model.StatusUnprocessed, topoOrder: -1}
		f.vertices[uid] = v
		f.order = append(f.order, uid)
	}
	return v
}

// Connect is a no-op that counts invocations.
func (f *Fake) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectCalls++
	return nil
}

// Close is a no-op that counts invocations.
func (f *Fake) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	return nil
}

// Reconnect is a no-op.
func (f *Fake) Reconnect(ctx context.Context) error {
	return nil
}

// ExecuteQueryWithRetry is not supported by the fake: every phase-specific
// method below is used instead of raw Cypher.
func (f *Fake) ExecuteQueryWithRetry(ctx context.Context, cypher string, params map[string]any) ([]graphstore.Record, error) {
	return nil, nil
}

// StreamNodesChunked streams every vertex in uid order, chunkSize per batch.
func (f *Fake) StreamNodesChunked(ctx context.Context, labels []string, chunkSize int) (<-chan []graphstore.Record, <-chan error) {
	out := make(chan []graphstore.Record)
	errc := make(chan error, 1)

	f.mu.Lock()
	uids := f.sortedUIDsLocked()
	rows := make([]graphstore.Record, 0, len(uids))
	for _, uid := range uids {
		v := f.vertices[uid]
		rows = append(rows, graphstore.Record{
			"uid":           v.uid,
			"layer":         int64(v.layer),
			"level":         int64(v.level),
			"is_pinned":     v.isPinned,
			"level_target":  int64(v.targetLevel),
			"layout_status": string(v.status),
		})
	}
	f.mu.Unlock()

	go func() {
		defer close(out)
		defer close(errc)
		for start := 0; start < len(rows); start += chunkSize {
			end := start + chunkSize
			if end > len(rows) {
				end = len(rows)
			}
			select {
			case out <- rows[start:end]:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
	}()

	return out, errc
}

// StreamEdgesChunked streams every edge, optionally restricted to nodeIDs.
func (f *Fake) StreamEdgesChunked(ctx context.Context, chunkSize int, nodeIDs []string) (<-chan []graphstore.Record, <-chan error) {
	out := make(chan []graphstore.Record)
	errc := make(chan error, 1)

	var filter map[string]bool
	if len(nodeIDs) > 0 {
		filter = map[string]bool{}
		for _, id := range nodeIDs {
			filter[id] = true
		}
	}

	f.mu.Lock()
	edges := f.allEdgesLocked()
	f.mu.Unlock()

	rows := make([]graphstore.Record, 0, len(edges))
	for _, e := range edges {
		if filter != nil && (!filter[e.Source] || !filter[e.Target]) {
			continue
		}
		rows = append(rows, graphstore.Record{"source_id": e.Source, "target_id": e.Target})
	}

	go func() {
		defer close(out)
		defer close(errc)
		for start := 0; start < len(rows); start += chunkSize {
			end := start + chunkSize
			if end > len(rows) {
				end = len(rows)
			}
			select {
			case out <- rows[start:end]:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
	}()

	return out, errc
}

// BatchUpdatePositions applies the given positions directly.
func (f *Fake) BatchUpdatePositions(ctx context.Context, updates []graphstore.PositionUpdate, batchSize int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range updates {
		v := f.ensureVertex(u.UID)
		v.layer = u.Layer
		v.level = u.Level
		v.status = u.Status
		v.x = float64(u.Layer) * model.LayerSpacing
		v.y = float64(u.Level) * model.LevelSpacing
		if u.HasYPerturb {
			v.y = float64(u.Level)*model.LevelSpacing + u.YPerturb
		}
		v.hasPosition = true
	}
	return nil
}

// GetGraphStatistics reports the fake's current shape.
func (f *Fake) GetGraphStatistics(ctx context.Context) (model.GraphStatistics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	nodeCount := int64(len(f.vertices))
	edgeCount := int64(len(f.allEdgesLocked()))
	pinnedCount := int64(0)
	for _, v := range f.vertices {
		if v.isPinned {
			pinnedCount++
		}
	}

	density := 0.0
	if nodeCount > 1 {
		density = float64(edgeCount) / (float64(nodeCount) * float64(nodeCount-1))
	}
	avgDegree := 0.0
	if nodeCount > 0 {
		avgDegree = 2 * float64(edgeCount) / float64(nodeCount)
	}

	return model.GraphStatistics{
		NodeCount:   nodeCount,
		EdgeCount:   edgeCount,
		PinnedCount: pinnedCount,
		Density:     density,
		AvgDegree:   avgDegree,
	}, nil
}

// EnsureSchema is a no-op: the fake has no indexes or aliased edge labels.
func (f *Fake) EnsureSchema(ctx context.Context) error {
	return nil
}

// ResetLayout clears every vertex's layout-derived fields.
func (f *Fake) ResetLayout(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.vertices {
		v.layer, v.level, v.x, v.y = 0, 0, 0, 0
		v.status = model.StatusUnprocessed
		v.topoOrder = -1
		v.inDeg = 0
		v.visited = false
		v.hasPosition = false
	}
	return nil
}

func (f *Fake) sortedUIDsLocked() []string {
	uids := make([]string, 0, len(f.vertices))
	for uid := range f.vertices {
		uids = append(uids, uid)
	}
	sort.Strings(uids)
	return uids
}

func (f *Fake) allEdgesLocked() []graphstore.Edge {
	var edges []graphstore.Edge
	for _, src := range f.sortedUIDsLocked() {
		targets := make([]string, 0, len(f.forward[src]))
		for t := range f.forward[src] {
			targets = append(targets, t)
		}
		sort.Strings(targets)
		for _, t := range targets {
			edges = append(edges, graphstore.Edge{Source: src, Target: t})
		}
	}
	return edges
}
