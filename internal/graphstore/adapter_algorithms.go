package graphstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/citegraph/layout-engine/pkg/model"
)

// RemoveSelfLoops deletes every edge whose endpoints are equal.
func (a *Adapter) RemoveSelfLoops(ctx context.Context) (int64, error) {
	cypher := fmt.Sprintf(`
		MATCH (n:Article)-[r:%s]->(n)
		DELETE r
		RETURN count(r) AS removed
	`, a.cfg.EdgeLabel)
	rows, err := a.ExecuteQueryWithRetry(ctx, cypher, nil)
	if err != nil {
		return 0, err
	}
	return asInt64(rows, "removed"), nil
}

// RemoveParallelEdges keeps exactly one edge per ordered pair with multiple edges.
func (a *Adapter) RemoveParallelEdges(ctx context.Context) (int64, error) {
	cypher := fmt.Sprintf(`
		MATCH (a:Article)-[r:%s]->(b:Article)
		WITH a, b, collect(r) AS rels
		WHERE size(rels) > 1
		UNWIND rels[1..] AS extra
		DELETE extra
		RETURN count(extra) AS removed
	`, a.cfg.EdgeLabel)
	rows, err := a.ExecuteQueryWithRetry(ctx, cypher, nil)
	if err != nil {
		return 0, err
	}
	return asInt64(rows, "removed"), nil
}

// CountSourceVertices counts vertices with in-degree 0 among vertices with
// at least one incident edge.
func (a *Adapter) CountSourceVertices(ctx context.Context) (int64, error) {
	cypher := fmt.Sprintf(`
		MATCH (n:Article)
		WHERE (n)-[:%s]-()
		AND NOT ()-[:%s]->(n)
		RETURN count(n) AS sources
	`, a.cfg.EdgeLabel, a.cfg.EdgeLabel)
	rows, err := a.ExecuteQueryWithRetry(ctx, cypher, nil)
	if err != nil {
		return 0, err
	}
	return asInt64(rows, "sources"), nil
}

// InitInDegrees sets in_deg/topo_order/visited on every vertex with an
// incident edge, in batches of batchSize via a periodic-iterate pattern.
func (a *Adapter) InitInDegrees(ctx context.Context, batchSize int) error {
	cypher := fmt.Sprintf(`
		MATCH (n:Article)
		WHERE (n)-[:%s]-() AND n.in_deg IS NULL
		WITH n LIMIT $batchSize
		SET n.in_deg = size([(m)-[:%s]->(n) | m]),
		    n.topo_order = -1,
		    n.visited = false
		RETURN count(n) AS initialised
	`, a.cfg.EdgeLabel, a.cfg.EdgeLabel)

	for {
		rows, err := a.ExecuteQueryWithRetry(ctx, cypher, map[string]any{"batchSize": batchSize})
		if err != nil {
			return err
		}
		if asInt64(rows, "initialised") == 0 {
			return nil
		}
	}
}

// ExtractZeroInDegreeBatch returns up to limit unvisited vertices with
// in_deg = 0, ordered by uid.
func (a *Adapter) ExtractZeroInDegreeBatch(ctx context.Context, limit int) ([]string, error) {
	cypher := `
		MATCH (n:Article)
		WHERE n.in_deg = 0 AND n.visited = false
		RETURN n.uid AS uid
		ORDER BY n.uid
		LIMIT $limit
	`
	rows, err := a.ExecuteQueryWithRetry(ctx, cypher, map[string]any{"limit": limit})
	if err != nil {
		return nil, err
	}
	return uidsOf(rows), nil
}

// AssignTopoOrder marks uids visited and assigns consecutive topo_order
// values starting at startOrder, in uid order.
func (a *Adapter) AssignTopoOrder(ctx context.Context, uids []string, startOrder int64) error {
	if len(uids) == 0 {
		return nil
	}
	sorted := append([]string(nil), uids...)
	sort.Strings(sorted)

	rows := make([]map[string]any, len(sorted))
	for i, uid := range sorted {
		rows[i] = map[string]any{"uid": uid, "order": startOrder + int64(i)}
	}

	cypher := `
		UNWIND $batch AS row
		MATCH (n:Article {uid: row.uid})
		SET n.topo_order = row.order, n.visited = true
	`
	_, err := a.ExecuteQueryWithRetry(ctx, cypher, map[string]any{"batch": rows})
	return err
}

// DecrementInDegree decrements in_deg on every unvisited direct successor
// of uids.
func (a *Adapter) DecrementInDegree(ctx context.Context, uids []string) error {
	if len(uids) == 0 {
		return nil
	}
	cypher := fmt.Sprintf(`
		UNWIND $uids AS uid
		MATCH (n:Article {uid: uid})-[:%s]->(m:Article)
		WHERE m.visited = false
		SET m.in_deg = m.in_deg - 1
	`, a.cfg.EdgeLabel)
	_, err := a.ExecuteQueryWithRetry(ctx, cypher, map[string]any{"uids": uids})
	return err
}

// UnvisitedUIDs returns every vertex with an incident edge not yet
// visited, ordered by uid.
func (a *Adapter) UnvisitedUIDs(ctx context.Context) ([]string, error) {
	cypher := `
		MATCH (n:Article)
		WHERE n.visited = false
		RETURN n.uid AS uid
		ORDER BY n.uid
	`
	rows, err := a.ExecuteQueryWithRetry(ctx, cypher, nil)
	if err != nil {
		return nil, err
	}
	return uidsOf(rows), nil
}

// ValidateTopoOrder reports every edge u->v for which u.topo_order is not
// strictly less than v.topo_order.
func (a *Adapter) ValidateTopoOrder(ctx context.Context) ([]Edge, error) {
	cypher := fmt.Sprintf(`
		MATCH (u:Article)-[:%s]->(v:Article)
		WHERE u.topo_order >= v.topo_order
		RETURN u.uid AS source_id, v.uid AS target_id
	`, a.cfg.EdgeLabel)
	rows, err := a.ExecuteQueryWithRetry(ctx, cypher, nil)
	if err != nil {
		return nil, err
	}
	return edgesOf(rows), nil
}

// AllEdges returns every edge of the configured label.
func (a *Adapter) AllEdges(ctx context.Context) ([]Edge, error) {
	cypher := fmt.Sprintf(`
		MATCH (u:Article)-[:%s]->(v:Article)
		RETURN u.uid AS source_id, v.uid AS target_id
	`, a.cfg.EdgeLabel)
	rows, err := a.ExecuteQueryWithRetry(ctx, cypher, nil)
	if err != nil {
		return nil, err
	}
	return edgesOf(rows), nil
}

// OutDegreeZeroUIDs returns every vertex with no outgoing edge, ordered by
// uid, capped at limit.
func (a *Adapter) OutDegreeZeroUIDs(ctx context.Context, limit int) ([]string, error) {
	cypher := fmt.Sprintf(`
		MATCH (n:Article)
		WHERE NOT (n)-[:%s]->()
		RETURN n.uid AS uid
		ORDER BY n.uid
		LIMIT $limit
	`, a.cfg.EdgeLabel)
	rows, err := a.ExecuteQueryWithRetry(ctx, cypher, map[string]any{"limit": limit})
	if err != nil {
		return nil, err
	}
	return uidsOf(rows), nil
}

// DirectNeighbors returns the distinct predecessors and successors of uids
// that are not themselves in uids.
func (a *Adapter) DirectNeighbors(ctx context.Context, uids []string) ([]string, error) {
	if len(uids) == 0 {
		return nil, nil
	}
	cypher := fmt.Sprintf(`
		UNWIND $uids AS uid
		MATCH (n:Article {uid: uid})-[:%s]-(m:Article)
		WHERE NOT m.uid IN $uids
		RETURN DISTINCT m.uid AS uid
		ORDER BY m.uid
	`, a.cfg.EdgeLabel)
	rows, err := a.ExecuteQueryWithRetry(ctx, cypher, map[string]any{"uids": uids})
	if err != nil {
		return nil, err
	}
	return uidsOf(rows), nil
}

// AverageNeighborPosition returns the rounded average (layer, level) of the
// already-placed direct neighbours of uids, if any exist.
func (a *Adapter) AverageNeighborPosition(ctx context.Context, uids []string) (int, int, bool, error) {
	if len(uids) == 0 {
		return 0, 0, false, nil
	}
	cypher := fmt.Sprintf(`
		UNWIND $uids AS uid
		MATCH (n:Article {uid: uid})-[:%s]-(m:Article)
		WHERE m.layout_status IS NOT NULL AND m.layout_status <> 'unprocessed'
		RETURN avg(m.layer) AS avg_layer, avg(m.level) AS avg_level, count(m) AS cnt
	`, a.cfg.EdgeLabel)
	rows, err := a.ExecuteQueryWithRetry(ctx, cypher, map[string]any{"uids": uids})
	if err != nil {
		return 0, 0, false, err
	}
	if len(rows) == 0 || asInt64(rows, "cnt") == 0 {
		return 0, 0, false, nil
	}
	layer := asFloat(rows, "avg_layer")
	level := asFloat(rows, "avg_level")
	return int(layer + 0.5), int(level + 0.5), true, nil
}

// MaxLevelInLayer returns the highest level currently occupied in layer, or
// -1 if empty.
func (a *Adapter) MaxLevelInLayer(ctx context.Context, layer int) (int, error) {
	cypher := `
		MATCH (n:Article {layer: $layer})
		RETURN max(n.level) AS max_level
	`
	rows, err := a.ExecuteQueryWithRetry(ctx, cypher, map[string]any{"layer": layer})
	if err != nil {
		return -1, err
	}
	if len(rows) == 0 || rows[0]["max_level"] == nil {
		return -1, nil
	}
	return int(asInt64(rows, "max_level")), nil
}

// SlotOccupied reports whether a vertex already occupies (layer, level).
func (a *Adapter) SlotOccupied(ctx context.Context, layer, level int) (bool, error) {
	cypher := `
		MATCH (n:Article {layer: $layer, level: $level})
		RETURN count(n) AS cnt
	`
	rows, err := a.ExecuteQueryWithRetry(ctx, cypher, map[string]any{"layer": layer, "level": level})
	if err != nil {
		return false, err
	}
	return asInt64(rows, "cnt") > 0, nil
}

// GDSAvailable probes whether the graph-data-science wcc procedure is
// callable.
func (a *Adapter) GDSAvailable(ctx context.Context) bool {
	_, err := a.ExecuteQueryWithRetry(ctx, `CALL gds.list() YIELD name RETURN name LIMIT 1`, nil)
	return err == nil
}

// ComponentsWCC discovers weakly connected components among unprocessed
// vertices using the GDS wcc procedure.
func (a *Adapter) ComponentsWCC(ctx context.Context) ([][]string, error) {
	cypher := fmt.Sprintf(`
		CALL gds.graph.project.cypher(
			'layout-wcc-tmp',
			'MATCH (n:Article) WHERE n.layout_status = "unprocessed" OR n.layout_status IS NULL RETURN id(n) AS id',
			'MATCH (a:Article)-[:%s]-(b:Article) WHERE (a.layout_status = "unprocessed" OR a.layout_status IS NULL) AND (b.layout_status = "unprocessed" OR b.layout_status IS NULL) RETURN id(a) AS source, id(b) AS target'
		)
		YIELD graphName
		CALL gds.wcc.stream(graphName)
		YIELD nodeId, componentId
		WITH gds.util.asNode(nodeId) AS n, componentId
		RETURN componentId AS component_id, collect(n.uid) AS uids
		ORDER BY size(collect(n.uid)) DESC
	`, a.cfg.EdgeLabel)
	rows, err := a.ExecuteQueryWithRetry(ctx, cypher, nil)
	if err != nil {
		return nil, err
	}

	components := make([][]string, 0, len(rows))
	for _, row := range rows {
		if raw, ok := row["uids"].([]any); ok {
			ids := make([]string, 0, len(raw))
			for _, v := range raw {
				if s, ok := v.(string); ok {
					ids = append(ids, s)
				}
			}
			components = append(components, ids)
		}
	}
	return components, nil
}

// ComponentsBFS discovers weakly connected components among unprocessed
// vertices via bounded-hop undirected BFS, sorted by size descending.
// Implemented as a single Cypher variable-length-path query per the
// bounded-search fallback spec.DESIGN calls for.
func (a *Adapter) ComponentsBFS(ctx context.Context, maxHops int) ([][]string, error) {
	cypher := fmt.Sprintf(`
		MATCH (n:Article)
		WHERE n.layout_status = 'unprocessed' OR n.layout_status IS NULL
		WITH n
		MATCH path = (n)-[:%s*0..%d]-(m:Article)
		WHERE m.layout_status = 'unprocessed' OR m.layout_status IS NULL
		WITH n, collect(DISTINCT m.uid) AS reachable
		RETURN n.uid AS uid, reachable
	`, a.cfg.EdgeLabel, maxHops)
	rows, err := a.ExecuteQueryWithRetry(ctx, cypher, nil)
	if err != nil {
		return nil, err
	}

	// Union-find over reported reachability to merge overlapping sets into
	// disjoint components.
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

	for _, row := range rows {
		uid, _ := row["uid"].(string)
		if uid == "" {
			continue
		}
		find(uid)
		if reachable, ok := row["reachable"].([]any); ok {
			for _, v := range reachable {
				if s, ok := v.(string); ok {
					union(uid, s)
				}
			}
		}
	}

	grouped := map[string][]string{}
	for uid := range parent {
		root := find(uid)
		grouped[root] = append(grouped[root], uid)
	}

	components := make([][]string, 0, len(grouped))
	for _, members := range grouped {
		sort.Strings(members)
		components = append(components, members)
	}
	sort.Slice(components, func(i, j int) bool { return len(components[i]) > len(components[j]) })
	return components, nil
}

// UnprocessedUIDsByTopoOrder returns every still-unprocessed vertex with an
// incident edge, ascending by topo_order.
func (a *Adapter) UnprocessedUIDsByTopoOrder(ctx context.Context) ([]string, error) {
	cypher := `
		MATCH (n:Article)
		WHERE (n.layout_status = 'unprocessed' OR n.layout_status IS NULL)
		AND n.topo_order IS NOT NULL
		RETURN n.uid AS uid
		ORDER BY n.topo_order ASC
	`
	rows, err := a.ExecuteQueryWithRetry(ctx, cypher, nil)
	if err != nil {
		return nil, err
	}
	return uidsOf(rows), nil
}

// PinnedVertices returns every vertex with is_pinned = true and its stored
// target level.
func (a *Adapter) PinnedVertices(ctx context.Context) ([]model.PinnedVertex, error) {
	cypher := `
		MATCH (n:Article {is_pinned: true})
		RETURN n.uid AS uid, coalesce(n.level_target, 0) AS level_target
	`
	rows, err := a.ExecuteQueryWithRetry(ctx, cypher, nil)
	if err != nil {
		return nil, err
	}
	out := make([]model.PinnedVertex, 0, len(rows))
	for _, row := range rows {
		uid, _ := row["uid"].(string)
		out = append(out, model.PinnedVertex{UID: uid, TargetLevel: int(asInt64([]Record{row}, "level_target"))})
	}
	return out, nil
}

// InsertSyncMarker records that workerID has finished its share of work.
func (a *Adapter) InsertSyncMarker(ctx context.Context, workerID, totalWorkers int) error {
	cypher := `
		MERGE (s:SyncWorker {worker_id: $workerId})
		SET s.total_workers = $totalWorkers, s.completed = true, s.timestamp = timestamp()
	`
	_, err := a.ExecuteQueryWithRetry(ctx, cypher, map[string]any{
		"workerId":     workerID,
		"totalWorkers": totalWorkers,
	})
	return err
}

// CountSyncMarkers counts completed SyncWorker markers for the given total
// worker count.
func (a *Adapter) CountSyncMarkers(ctx context.Context, totalWorkers int) (int, error) {
	cypher := `
		MATCH (s:SyncWorker {total_workers: $totalWorkers, completed: true})
		RETURN count(s) AS cnt
	`
	rows, err := a.ExecuteQueryWithRetry(ctx, cypher, map[string]any{"totalWorkers": totalWorkers})
	if err != nil {
		return 0, err
	}
	return int(asInt64(rows, "cnt")), nil
}

// MasterMarkerTimestamp returns worker 0's completion timestamp, if present.
func (a *Adapter) MasterMarkerTimestamp(ctx context.Context) (time.Time, bool, error) {
	cypher := `
		MATCH (s:SyncWorker {worker_id: 0, completed: true})
		RETURN s.timestamp AS timestamp
	`
	rows, err := a.ExecuteQueryWithRetry(ctx, cypher, nil)
	if err != nil {
		return time.Time{}, false, err
	}
	if len(rows) == 0 || rows[0]["timestamp"] == nil {
		return time.Time{}, false, nil
	}
	ms := asInt64(rows, "timestamp")
	return time.UnixMilli(ms), true, nil
}

func uidsOf(rows []Record) []string {
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		if uid, ok := row["uid"].(string); ok {
			out = append(out, uid)
		}
	}
	return out
}

func edgesOf(rows []Record) []Edge {
	out := make([]Edge, 0, len(rows))
	for _, row := range rows {
		src, _ := row["source_id"].(string)
		dst, _ := row["target_id"].(string)
		out = append(out, Edge{Source: src, Target: dst})
	}
	return out
}

func asFloat(rows []Record, key string) float64 {
	if len(rows) == 0 {
		return 0
	}
	v, ok := rows[0][key]
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}
