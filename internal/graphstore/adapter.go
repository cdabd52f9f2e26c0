package graphstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/citegraph/layout-engine/internal/breaker"
	"github.com/citegraph/layout-engine/internal/retry"
	apperrors "github.com/citegraph/layout-engine/pkg/errors"
	"github.com/citegraph/layout-engine/pkg/model"
	"github.com/citegraph/layout-engine/pkg/telemetry"
	"github.com/citegraph/layout-engine/pkg/utils"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"golang.org/x/time/rate"
)

// AdapterConfig carries everything the Adapter needs to connect and to
// drive its own retry/breaker envelope.
type AdapterConfig struct {
	URI        string
	User       string
	Password   string
	Database   string
	PoolSize   int
	TimeoutSec int

	EdgeLabel      string
	EdgeLabelAlias string

	MaxRetries    int
	RetryDelaySec int

	FailureThreshold   int
	RecoveryTimeoutSec int

	// MaxQueriesPerSec caps the rate of Cypher queries this adapter issues,
	// smoothing bursts from chunked streaming and batched writes against
	// the store. Zero means unlimited.
	MaxQueriesPerSec int

	Logger  utils.Logger
	Clock   utils.Clock
	Metrics *telemetry.Metrics
}

var _ Store = (*Adapter)(nil)

// Adapter is the Neo4j-backed implementation of Store.
type Adapter struct {
	cfg AdapterConfig

	mu     sync.RWMutex
	driver neo4j.DriverWithContext

	breaker  *breaker.Breaker
	envelope *retry.Envelope
	logger   utils.Logger
	clock    utils.Clock
	limiter  *rate.Limiter
	metrics  *telemetry.Metrics
}

// NewAdapter constructs an Adapter. Connect must be called before use.
func NewAdapter(cfg AdapterConfig) *Adapter {
	logger := cfg.Logger
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = utils.NewRealClock()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.GlobalMetrics()
	}

	a := &Adapter{
		cfg:     cfg,
		logger:  logger,
		clock:   clock,
		metrics: metrics,
	}
	a.breaker = breaker.New(cfg.FailureThreshold, time.Duration(cfg.RecoveryTimeoutSec)*time.Second, clock)
	a.breaker.OnStateChange(func(s breaker.State) {
		a.metrics.SetCircuitBreakerOpen(s == breaker.Open)
	})
	a.envelope = retry.New(cfg.MaxRetries, cfg.RetryDelaySec, a.breaker, clock, logger, a.Reconnect)
	if cfg.MaxQueriesPerSec > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(cfg.MaxQueriesPerSec), cfg.MaxQueriesPerSec)
	}
	return a
}

// Connect establishes the driver connection. Idempotent.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.driver != nil {
		return nil
	}

	driver, err := neo4j.NewDriverWithContext(
		a.cfg.URI,
		neo4j.BasicAuth(a.cfg.User, a.cfg.Password, ""),
		func(c *neo4j.Config) {
			c.MaxConnectionPoolSize = a.cfg.PoolSize
		},
	)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to create neo4j driver", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return apperrors.Wrap(apperrors.CodeTransientStore, "failed to verify neo4j connectivity", err)
	}

	a.driver = driver
	a.logger.Info("connected to graph store uri=%s", a.cfg.URI)
	return nil
}

// Close releases the driver connection. Idempotent.
func (a *Adapter) Close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.driver == nil {
		return nil
	}
	err := a.driver.Close(ctx)
	a.driver = nil
	return err
}

// Reconnect discards and re-establishes the driver connection.
func (a *Adapter) Reconnect(ctx context.Context) error {
	if err := a.Close(ctx); err != nil {
		a.logger.Warn("error closing driver during reconnect: %v", err)
	}
	return a.Connect(ctx)
}

func (a *Adapter) currentDriver() (neo4j.DriverWithContext, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.driver == nil {
		return nil, apperrors.New(apperrors.CodeDatabaseError, "graph store not connected")
	}
	return a.driver, nil
}

// ExecuteQueryWithRetry runs cypher with params under the retry envelope.
func (a *Adapter) ExecuteQueryWithRetry(ctx context.Context, cypher string, params map[string]any) ([]Record, error) {
	var records []Record

	err := a.envelope.Do(ctx, "query", func(ctx context.Context) error {
		if a.limiter != nil {
			if werr := a.limiter.Wait(ctx); werr != nil {
				return apperrors.Wrap(apperrors.CodeCancelled, "rate limiter wait cancelled", werr)
			}
		}

		driver, derr := a.currentDriver()
		if derr != nil {
			return derr
		}

		a.metrics.RecordDBOperation(ctx, "query")

		session := driver.NewSession(ctx, neo4j.SessionConfig{
			DatabaseName: a.cfg.Database,
			AccessMode:   neo4j.AccessModeWrite,
		})
		defer func() { _ = session.Close(ctx) }()

		result, rerr := session.Run(ctx, cypher, params)
		if rerr != nil {
			return classifyNeo4jError(rerr)
		}

		rows, rerr := result.Collect(ctx)
		if rerr != nil {
			return classifyNeo4jError(rerr)
		}

		records = make([]Record, 0, len(rows))
		for _, row := range rows {
			records = append(records, Record(row.AsMap()))
		}
		return nil
	})

	return records, err
}

// classifyNeo4jError maps driver errors to the engine's error taxonomy so
// the retry envelope and circuit breaker can classify them uniformly.
func classifyNeo4jError(err error) error {
	if err == nil {
		return nil
	}
	if neo4j.IsRetryable(err) {
		return apperrors.Wrap(apperrors.CodeTransientStore, "transient neo4j error", err)
	}
	return apperrors.Wrap(apperrors.CodeDatabaseError, "neo4j error", err)
}

// StreamNodesChunked streams Article nodes (or the given labels) in stable
// uid order, chunkSize rows per batch.
func (a *Adapter) StreamNodesChunked(ctx context.Context, labels []string, chunkSize int) (<-chan []Record, <-chan error) {
	out := make(chan []Record)
	errc := make(chan error, 1)

	labelClause := ":Article"
	if len(labels) > 0 {
		labelClause = ":" + joinLabels(labels)
	}

	go func() {
		defer close(out)
		defer close(errc)

		offset := 0
		for {
			cypher := fmt.Sprintf(`
				MATCH (n%s)
				RETURN n.uid AS uid,
				       coalesce(n.layer, 0) AS layer,
				       coalesce(n.level, 0) AS level,
				       coalesce(n.is_pinned, false) AS is_pinned,
				       coalesce(n.level_target, 0) AS level_target,
				       coalesce(n.layout_status, 'unprocessed') AS layout_status
				ORDER BY n.uid
				SKIP $offset LIMIT $limit
			`, labelClause)

			rows, err := a.ExecuteQueryWithRetry(ctx, cypher, map[string]any{
				"offset": offset,
				"limit":  chunkSize,
			})
			if err != nil {
				errc <- err
				return
			}
			if len(rows) == 0 {
				return
			}

			select {
			case out <- rows:
			case <-ctx.Done():
				errc <- apperrors.Wrap(apperrors.CodeCancelled, "stream cancelled", ctx.Err())
				return
			}

			offset += chunkSize
		}
	}()

	return out, errc
}

// StreamEdgesChunked streams edges of the configured label.
func (a *Adapter) StreamEdgesChunked(ctx context.Context, chunkSize int, nodeIDs []string) (<-chan []Record, <-chan error) {
	out := make(chan []Record)
	errc := make(chan error, 1)

	where := ""
	params := map[string]any{}
	if len(nodeIDs) > 0 {
		where = "WHERE source.uid IN $nodeIds AND target.uid IN $nodeIds"
		params["nodeIds"] = nodeIDs
	}

	go func() {
		defer close(out)
		defer close(errc)

		offset := 0
		for {
			cypher := fmt.Sprintf(`
				MATCH (source:Article)-[r:%s]->(target:Article)
				%s
				RETURN source.uid AS source_id, target.uid AS target_id
				ORDER BY source.uid, target.uid
				SKIP $offset LIMIT $limit
			`, a.cfg.EdgeLabel, where)

			queryParams := map[string]any{"offset": offset, "limit": chunkSize}
			for k, v := range params {
				queryParams[k] = v
			}

			rows, err := a.ExecuteQueryWithRetry(ctx, cypher, queryParams)
			if err != nil {
				errc <- err
				return
			}
			if len(rows) == 0 {
				return
			}

			select {
			case out <- rows:
			case <-ctx.Done():
				errc <- apperrors.Wrap(apperrors.CodeCancelled, "stream cancelled", ctx.Err())
				return
			}

			offset += chunkSize
		}
	}()

	return out, errc
}

// BatchUpdatePositions writes layout coordinates in UNWIND batches ordered
// by UID within each batch.
func (a *Adapter) BatchUpdatePositions(ctx context.Context, updates []PositionUpdate, batchSize int) error {
	if batchSize <= 0 {
		batchSize = len(updates)
		if batchSize == 0 {
			batchSize = 1
		}
	}

	sorted := make([]PositionUpdate, len(updates))
	copy(sorted, updates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].UID < sorted[j].UID })

	for start := 0; start < len(sorted); start += batchSize {
		end := start + batchSize
		if end > len(sorted) {
			end = len(sorted)
		}
		batch := sorted[start:end]

		rows := make([]map[string]any, 0, len(batch))
		for _, u := range batch {
			row := map[string]any{
				"uid":    u.UID,
				"layer":  u.Layer,
				"level":  u.Level,
				"status": string(u.Status),
				"x":      float64(u.Layer) * model.LayerSpacing,
				"y":      float64(u.Level) * model.LevelSpacing,
			}
			if u.HasYPerturb {
				row["y"] = float64(u.Level)*model.LevelSpacing + u.YPerturb
			}
			rows = append(rows, row)
		}

		cypher := `
			UNWIND $batch AS row
			MATCH (n:Article {uid: row.uid})
			SET n.layer = row.layer,
			    n.level = row.level,
			    n.layout_status = row.status,
			    n.x = row.x,
			    n.y = row.y
		`

		if _, err := a.ExecuteQueryWithRetry(ctx, cypher, map[string]any{"batch": rows}); err != nil {
			return err
		}
	}

	return nil
}

// GetGraphStatistics reports the store's current graph shape, falling back
// to conservative defaults if live queries fail entirely.
func (a *Adapter) GetGraphStatistics(ctx context.Context) (model.GraphStatistics, error) {
	nodeRows, err := a.ExecuteQueryWithRetry(ctx, `MATCH (n:Article) RETURN count(n) AS node_count`, nil)
	if err != nil {
		a.logger.Warn("graph statistics unavailable, using fallback defaults: %v", err)
		return model.GraphStatistics{
			NodeCount: 1000, EdgeCount: 2000, PinnedCount: 0,
			Density: 0.002, AvgDegree: 4.0,
		}, nil
	}
	nodeCount := asInt64(nodeRows, "node_count")

	edgeCount := int64(0)
	edgeRows, err := a.ExecuteQueryWithRetry(ctx, fmt.Sprintf(`MATCH ()-[r:%s]->() RETURN count(r) AS edge_count`, a.cfg.EdgeLabel), nil)
	if err != nil {
		a.logger.Warn("edge count query failed, using estimate: %v", err)
		edgeCount = nodeCount * 2
	} else {
		edgeCount = asInt64(edgeRows, "edge_count")
	}

	pinnedCount := int64(0)
	pinnedRows, err := a.ExecuteQueryWithRetry(ctx, `MATCH (n:Article) WHERE n.is_pinned = true RETURN count(n) AS pinned_count`, nil)
	if err == nil {
		pinnedCount = asInt64(pinnedRows, "pinned_count")
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

// EnsureSchema creates the indexes the engine depends on and relabels any
// residual EdgeLabelAlias edges to the canonical EdgeLabel.
func (a *Adapter) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE INDEX article_uid IF NOT EXISTS FOR (n:Article) ON (n.uid)`,
		`CREATE INDEX article_layer_level IF NOT EXISTS FOR (n:Article) ON (n.layer, n.level)`,
		`CREATE INDEX article_layout_status IF NOT EXISTS FOR (n:Article) ON (n.layout_status)`,
		`CREATE INDEX article_topo_order IF NOT EXISTS FOR (n:Article) ON (n.topo_order)`,
	}
	for _, stmt := range statements {
		if _, err := a.ExecuteQueryWithRetry(ctx, stmt, nil); err != nil {
			return err
		}
	}

	if a.cfg.EdgeLabelAlias != "" && a.cfg.EdgeLabelAlias != a.cfg.EdgeLabel {
		migrate := fmt.Sprintf(`
			MATCH (a:Article)-[r:%s]->(b:Article)
			WITH a, b, r LIMIT 5000
			MERGE (a)-[:%s]->(b)
			DELETE r
			RETURN count(r) AS migrated
		`, a.cfg.EdgeLabelAlias, a.cfg.EdgeLabel)

		for {
			rows, err := a.ExecuteQueryWithRetry(ctx, migrate, nil)
			if err != nil {
				return err
			}
			if len(rows) == 0 || asInt64(rows, "migrated") == 0 {
				break
			}
		}
	}

	return nil
}

// ResetLayout clears every layout property, including on pinned vertices,
// so a run starts from a clean slate. Pinned vertices get their target level
// reapplied by the orchestrator's pin-enforcement phase later in the run;
// their layer is whatever the earlier phases assigned.
func (a *Adapter) ResetLayout(ctx context.Context) error {
	cypher := `
		MATCH (n:Article)
		REMOVE n.layer, n.level, n.x, n.y, n.layout_status, n.topo_order, n.in_deg, n.visited
	`
	_, err := a.ExecuteQueryWithRetry(ctx, cypher, nil)
	return err
}

func joinLabels(labels []string) string {
	out := labels[0]
	for _, l := range labels[1:] {
		out += ":" + l
	}
	return out
}

func asInt64(rows []Record, key string) int64 {
	if len(rows) == 0 {
		return 0
	}
	v, ok := rows[0][key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
