package graphstoretest

import (
	"context"
	"sort"
	"time"

	"github.com/citegraph/layout-engine/internal/graphstore"
	"github.com/citegraph/layout-engine/pkg/model"
)

func (f *Fake) hasIncidentEdgeLocked(uid string) bool {
	return len(f.forward[uid]) > 0 || len(f.reverse[uid]) > 0
}

// RemoveSelfLoops deletes any edge whose endpoints are equal.
func (f *Fake) RemoveSelfLoops(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var removed int64
	for uid, targets := range f.forward {
		if targets[uid] {
			delete(targets, uid)
			delete(f.reverse[uid], uid)
			removed++
		}
	}
	return removed, nil
}

// RemoveParallelEdges is a no-op: the fake's adjacency sets can't represent
// a parallel edge in the first place.
func (f *Fake) RemoveParallelEdges(ctx context.Context) (int64, error) {
	return 0, nil
}

// CountSourceVertices counts vertices with in-degree 0 among vertices with
// at least one incident edge.
func (f *Fake) CountSourceVertices(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var count int64
	for uid := range f.vertices {
		if f.hasIncidentEdgeLocked(uid) && len(f.reverse[uid]) == 0 {
			count++
		}
	}
	return count, nil
}

// InitInDegrees sets in_deg/topo_order/visited on every vertex with an
// incident edge.
func (f *Fake) InitInDegrees(ctx context.Context, batchSize int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for uid, v := range f.vertices {
		if !f.hasIncidentEdgeLocked(uid) {
			continue
		}
		v.inDeg = len(f.reverse[uid])
		v.topoOrder = -1
		v.visited = false
	}
	return nil
}

// ExtractZeroInDegreeBatch returns up to limit unvisited vertices with
// in_deg = 0, ordered by uid.
func (f *Fake) ExtractZeroInDegreeBatch(ctx context.Context, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string
	for _, uid := range f.sortedUIDsLocked() {
		v := f.vertices[uid]
		if v.inDeg == 0 && !v.visited {
			out = append(out, uid)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// AssignTopoOrder marks uids visited and assigns consecutive topo_order
// values starting at startOrder, in uid order.
func (f *Fake) AssignTopoOrder(ctx context.Context, uids []string, startOrder int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	sorted := append([]string(nil), uids...)
	sort.Strings(sorted)
	for i, uid := range sorted {
		v := f.ensureVertex(uid)
		v.topoOrder = startOrder + int64(i)
		v.visited = true
	}
	return nil
}

// DecrementInDegree decrements in_deg on every unvisited direct successor
// of uids.
func (f *Fake) DecrementInDegree(ctx context.Context, uids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, uid := range uids {
		for target := range f.forward[uid] {
			v := f.vertices[target]
			if v != nil && !v.visited {
				v.inDeg--
			}
		}
	}
	return nil
}

// UnvisitedUIDs returns every vertex with an incident edge not yet visited.
func (f *Fake) UnvisitedUIDs(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string
	for _, uid := range f.sortedUIDsLocked() {
		v := f.vertices[uid]
		if f.hasIncidentEdgeLocked(uid) && !v.visited {
			out = append(out, uid)
		}
	}
	return out, nil
}

// ValidateTopoOrder reports every edge u->v for which u.topo_order is not
// strictly less than v.topo_order.
func (f *Fake) ValidateTopoOrder(ctx context.Context) ([]graphstore.Edge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var bad []graphstore.Edge
	for _, e := range f.allEdgesLocked() {
		u, v := f.vertices[e.Source], f.vertices[e.Target]
		if u != nil && v != nil && u.topoOrder >= v.topoOrder {
			bad = append(bad, e)
		}
	}
	return bad, nil
}

// AllEdges returns every edge.
func (f *Fake) AllEdges(ctx context.Context) ([]graphstore.Edge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allEdgesLocked(), nil
}

// OutDegreeZeroUIDs returns every vertex with no outgoing edge, capped at
// limit.
func (f *Fake) OutDegreeZeroUIDs(ctx context.Context, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string
	for _, uid := range f.sortedUIDsLocked() {
		if len(f.forward[uid]) == 0 {
			out = append(out, uid)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// DirectNeighbors returns the distinct predecessors and successors of uids
// that are not themselves in uids.
func (f *Fake) DirectNeighbors(ctx context.Context, uids []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	inSet := map[string]bool{}
	for _, uid := range uids {
		inSet[uid] = true
	}

	seen := map[string]bool{}
	for _, uid := range uids {
		for t := range f.forward[uid] {
			if !inSet[t] {
				seen[t] = true
			}
		}
		for s := range f.reverse[uid] {
			if !inSet[s] {
				seen[s] = true
			}
		}
	}

	out := make([]string, 0, len(seen))
	for uid := range seen {
		out = append(out, uid)
	}
	sort.Strings(out)
	return out, nil
}

// AverageNeighborPosition returns the rounded average (layer, level) of the
// already-placed direct neighbours of uids, if any exist.
func (f *Fake) AverageNeighborPosition(ctx context.Context, uids []string) (int, int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	inSet := map[string]bool{}
	for _, uid := range uids {
		inSet[uid] = true
	}

	var sumLayer, sumLevel, count int
	seen := map[string]bool{}
	consider := func(uid string) {
		if inSet[uid] || seen[uid] {
			return
		}
		v := f.vertices[uid]
		if v == nil || v.status == model.StatusUnprocessed {
			return
		}
		seen[uid] = true
		sumLayer += v.layer
		sumLevel += v.level
		count++
	}

	for _, uid := range uids {
		for t := range f.forward[uid] {
			consider(t)
		}
		for s := range f.reverse[uid] {
			consider(s)
		}
	}

	if count == 0 {
		return 0, 0, false, nil
	}
	layer := float64(sumLayer) / float64(count)
	level := float64(sumLevel) / float64(count)
	return int(layer + 0.5), int(level + 0.5), true, nil
}

// MaxLevelInLayer returns the highest level currently occupied in layer, or
// -1 if empty.
func (f *Fake) MaxLevelInLayer(ctx context.Context, layer int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	max := -1
	for _, v := range f.vertices {
		if v.hasPosition && v.layer == layer && v.level > max {
			max = v.level
		}
	}
	return max, nil
}

// SlotOccupied reports whether a vertex already occupies (layer, level).
func (f *Fake) SlotOccupied(ctx context.Context, layer, level int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, v := range f.vertices {
		if v.hasPosition && v.layer == layer && v.level == level {
			return true, nil
		}
	}
	return false, nil
}

// GDSAvailable returns the value set via SetGDSAvailable (defaults false).
func (f *Fake) GDSAvailable(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gdsAvailable
}

// unprocessedSetLocked returns the set of uids still unprocessed.
func (f *Fake) unprocessedSetLocked() map[string]bool {
	out := map[string]bool{}
	for uid, v := range f.vertices {
		if v.status == model.StatusUnprocessed {
			out[uid] = true
		}
	}
	return out
}

// ComponentsWCC and ComponentsBFS share the same union-find logic in the
// fake: the fake has no separate GDS engine to approximate, so both report
// identical connectivity over the undirected projection of unprocessed
// vertices, sorted by component size descending.
func (f *Fake) componentsLocked() [][]string {
	unprocessed := f.unprocessedSetLocked()

	parent := map[string]string{}
	var find func(string) string
	find = func(x string) string {
		if parent[x] == "" {
			parent[x] = x
		}
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b string) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	for uid := range unprocessed {
		find(uid)
		for t := range f.forward[uid] {
			if unprocessed[t] {
				union(uid, t)
			}
		}
		for s := range f.reverse[uid] {
			if unprocessed[s] {
				union(uid, s)
			}
		}
	}

	grouped := map[string][]string{}
	for uid := range unprocessed {
		root := find(uid)
		grouped[root] = append(grouped[root], uid)
	}

	components := make([][]string, 0, len(grouped))
	for _, members := range grouped {
		sort.Strings(members)
		components = append(components, members)
	}
	sort.Slice(components, func(i, j int) bool { return len(components[i]) > len(components[j]) })
	return components
}

// ComponentsWCC discovers weakly connected components among unprocessed
// vertices.
func (f *Fake) ComponentsWCC(ctx context.Context) ([][]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.componentsLocked(), nil
}

// ComponentsBFS discovers weakly connected components among unprocessed
// vertices. maxHops is accepted for interface parity but the fake always
// computes full connectivity, matching the GDS path's exactness.
func (f *Fake) ComponentsBFS(ctx context.Context, maxHops int) ([][]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.componentsLocked(), nil
}

// UnprocessedUIDsByTopoOrder returns every still-unprocessed vertex with an
// incident edge, ascending by topo_order.
func (f *Fake) UnprocessedUIDsByTopoOrder(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var candidates []*vertex
	for uid, v := range f.vertices {
		if f.hasIncidentEdgeLocked(uid) && v.status == model.StatusUnprocessed && v.topoOrder >= 0 {
			candidates = append(candidates, v)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].topoOrder != candidates[j].topoOrder {
			return candidates[i].topoOrder < candidates[j].topoOrder
		}
		return candidates[i].uid < candidates[j].uid
	})

	out := make([]string, len(candidates))
	for i, v := range candidates {
		out[i] = v.uid
	}
	return out, nil
}

// PinnedVertices returns every pinned vertex and its target level.
func (f *Fake) PinnedVertices(ctx context.Context) ([]model.PinnedVertex, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []model.PinnedVertex
	for _, uid := range f.sortedUIDsLocked() {
		v := f.vertices[uid]
		if v.isPinned {
			out = append(out, model.PinnedVertex{UID: v.uid, TargetLevel: v.targetLevel})
		}
	}
	return out, nil
}

// InsertSyncMarker records that workerID has finished its share of work.
func (f *Fake) InsertSyncMarker(ctx context.Context, workerID, totalWorkers int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncMarkers[workerID] = f.clock.Now()
	f.totalSync = totalWorkers
	return nil
}

// CountSyncMarkers counts completed markers for the given total worker
// count.
func (f *Fake) CountSyncMarkers(ctx context.Context, totalWorkers int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.totalSync != totalWorkers {
		return 0, nil
	}
	return len(f.syncMarkers), nil
}

// MasterMarkerTimestamp returns worker 0's completion timestamp, if present.
func (f *Fake) MasterMarkerTimestamp(ctx context.Context) (time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ts, ok := f.syncMarkers[0]
	return ts, ok, nil
}
