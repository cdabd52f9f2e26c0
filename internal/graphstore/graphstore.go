// Package graphstore is the typed gateway to the property-graph database:
// session lifecycle, parameterised Cypher execution, batched writes,
// streaming reads, and schema/index management.
package graphstore

import (
	"context"
	"time"

	"github.com/citegraph/layout-engine/pkg/model"
)

// Record is one row of a Cypher query result, keyed by return alias.
type Record map[string]any

// PositionUpdate is one vertex's new layout coordinates, as written by
// BatchUpdatePositions.
type PositionUpdate struct {
	UID         string
	Layer       int
	Level       int
	Status      model.VertexStatus
	YPerturb    float64 // optional fine y-offset for longest-path/neighbour placement
	HasYPerturb bool
}

// Edge is a directed edge between two vertex UIDs.
type Edge struct {
	Source string
	Target string
}

// Store is the interface every layout phase and the orchestrator depend
// on. The production implementation (Adapter, in this package) talks to a
// live Neo4j cluster; internal/graphstore/graphstoretest provides a fake
// in-memory implementation for tests.
type Store interface {
	// Connect establishes the underlying driver connection. Idempotent.
	Connect(ctx context.Context) error
	// Close releases the underlying driver connection. Idempotent.
	Close(ctx context.Context) error
	// Reconnect discards and re-establishes the underlying connection.
	Reconnect(ctx context.Context) error

	// ExecuteQueryWithRetry runs cypher with params, retried and breaker-guarded.
	ExecuteQueryWithRetry(ctx context.Context, cypher string, params map[string]any) ([]Record, error)

	// StreamNodesChunked streams Article nodes matching labels in stable
	// uid order, chunkSize rows per batch. The returned channels are
	// closed when the stream ends; at most one error is ever sent before
	// the error channel closes.
	StreamNodesChunked(ctx context.Context, labels []string, chunkSize int) (<-chan []Record, <-chan error)

	// StreamEdgesChunked streams edges of the configured label, optionally
	// restricted to edges whose endpoints are both in nodeIDs.
	StreamEdgesChunked(ctx context.Context, chunkSize int, nodeIDs []string) (<-chan []Record, <-chan error)

	// BatchUpdatePositions writes layout coordinates in UNWIND batches of
	// at most batchSize rows each, ordered by UID within each batch.
	BatchUpdatePositions(ctx context.Context, updates []PositionUpdate, batchSize int) error

	// GetGraphStatistics reports the store's current graph shape, falling
	// back to conservative defaults if live queries fail.
	GetGraphStatistics(ctx context.Context) (model.GraphStatistics, error)

	// EnsureSchema creates the indexes the engine depends on and relabels
	// any residual EdgeLabelAlias edges to the canonical EdgeLabel.
	EnsureSchema(ctx context.Context) error

	// ResetLayout clears all layout properties (layout_status, layer,
	// level, x, y, topo_order, in_deg, visited) from every vertex, the
	// idempotency step every run performs before doing any placement.
	ResetLayout(ctx context.Context) error

	// RemoveSelfLoops deletes every edge whose endpoints are equal,
	// returning the number removed.
	RemoveSelfLoops(ctx context.Context) (int64, error)

	// RemoveParallelEdges keeps exactly one edge per ordered pair with
	// multiple edges, returning the number removed.
	RemoveParallelEdges(ctx context.Context) (int64, error)

	// CountSourceVertices counts vertices with in-degree 0, considering
	// only vertices that have at least one incident edge.
	CountSourceVertices(ctx context.Context) (int64, error)

	// InitInDegrees sets in_deg/topo_order/visited on every vertex with at
	// least one incident edge, in batches of batchSize.
	InitInDegrees(ctx context.Context, batchSize int) error

	// ExtractZeroInDegreeBatch returns up to limit unvisited vertices with
	// in_deg = 0, ordered by uid for determinism.
	ExtractZeroInDegreeBatch(ctx context.Context, limit int) ([]string, error)

	// AssignTopoOrder marks uids visited and assigns them consecutive
	// topo_order values starting at startOrder, in uid order.
	AssignTopoOrder(ctx context.Context, uids []string, startOrder int64) error

	// DecrementInDegree decrements in_deg on every unvisited direct
	// successor of uids.
	DecrementInDegree(ctx context.Context, uids []string) error

	// UnvisitedUIDs returns every vertex (with an incident edge) not yet
	// visited, ordered by uid.
	UnvisitedUIDs(ctx context.Context) ([]string, error)

	// ValidateTopoOrder reports every edge u->v for which u.topo_order is
	// not strictly less than v.topo_order.
	ValidateTopoOrder(ctx context.Context) ([]Edge, error)

	// AllEdges returns every edge of the configured label.
	AllEdges(ctx context.Context) ([]Edge, error)

	// OutDegreeZeroUIDs returns every vertex with no outgoing edge,
	// ordered by uid, capped at limit.
	OutDegreeZeroUIDs(ctx context.Context, limit int) ([]string, error)

	// DirectNeighbors returns the distinct predecessors and successors of
	// uids that are not themselves in uids.
	DirectNeighbors(ctx context.Context, uids []string) ([]string, error)

	// AverageNeighborPosition returns the rounded average (layer, level)
	// of the already-placed direct neighbours of uids, if any exist.
	AverageNeighborPosition(ctx context.Context, uids []string) (layer, level int, ok bool, err error)

	// MaxLevelInLayer returns the highest level currently occupied in the
	// given layer, or -1 if the layer is empty.
	MaxLevelInLayer(ctx context.Context, layer int) (int, error)

	// SlotOccupied reports whether a vertex already occupies (layer, level).
	SlotOccupied(ctx context.Context, layer, level int) (bool, error)

	// GDSAvailable probes whether the graph-data-science wcc procedure is
	// callable. Probed once, at Initialise.
	GDSAvailable(ctx context.Context) bool

	// ComponentsWCC discovers weakly connected components among
	// unprocessed vertices using the GDS wcc procedure.
	ComponentsWCC(ctx context.Context) ([][]string, error)

	// ComponentsBFS discovers weakly connected components among
	// unprocessed vertices via bounded-hop undirected BFS, sorted by size
	// descending.
	ComponentsBFS(ctx context.Context, maxHops int) ([][]string, error)

	// UnprocessedUIDsByTopoOrder returns every still-unprocessed vertex
	// with an incident edge, ascending by topo_order.
	UnprocessedUIDsByTopoOrder(ctx context.Context) ([]string, error)

	// PinnedVertices returns every vertex with is_pinned = true and its
	// stored target level.
	PinnedVertices(ctx context.Context) ([]model.PinnedVertex, error)

	// InsertSyncMarker records that workerID has finished its share of
	// work, for distributed rendezvous.
	InsertSyncMarker(ctx context.Context, workerID, totalWorkers int) error

	// CountSyncMarkers counts completed SyncWorker markers for the given
	// total worker count.
	CountSyncMarkers(ctx context.Context, totalWorkers int) (int, error)

	// MasterMarkerTimestamp returns worker 0's completion timestamp, if
	// present.
	MasterMarkerTimestamp(ctx context.Context) (time.Time, bool, error)
}
