package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/citegraph/layout-engine/internal/graphstore"
	"github.com/citegraph/layout-engine/internal/orchestrator"
	"github.com/citegraph/layout-engine/pkg/config"
	"github.com/citegraph/layout-engine/pkg/model"
	"github.com/citegraph/layout-engine/pkg/telemetry"
)

var (
	// Store overrides
	storeURI      string
	storeUser     string
	storePassword string

	// Processing overrides
	fastPlaceEnabled  bool
	validateTopoOrder bool

	// Distributed overrides
	workerID     int
	totalWorkers int

	// Output
	outputFile string
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one layout pass against the configured store",
	Long: `Run drives the full layout pipeline once: sanitise the graph,
topologically sort the unprocessed subgraph, place the longest path and
its neighbours, place the remaining weakly connected components, grid-fill
whatever is left, reapply pinned overrides, and, in distributed mode,
rendezvous with the other workers.

The resulting LayoutResult is written as JSON to stdout, or to the file
given by --output.`,
	RunE: runLayout,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&storeURI, "uri", "", "Graph store URI (overrides config)")
	runCmd.Flags().StringVar(&storeUser, "user", "", "Graph store username (overrides config)")
	runCmd.Flags().StringVar(&storePassword, "password", "", "Graph store password (overrides config)")

	runCmd.Flags().BoolVar(&fastPlaceEnabled, "fast-place", false, "Enable the grid-fill safety net for any vertex left unplaced")
	runCmd.Flags().BoolVar(&validateTopoOrder, "validate-topo", false, "Validate the assigned topological order before placement")

	runCmd.Flags().IntVar(&workerID, "worker-id", -1, "This worker's ID in distributed mode (overrides config)")
	runCmd.Flags().IntVar(&totalWorkers, "total-workers", -1, "Total number of cooperating workers (overrides config)")

	runCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write the result JSON here instead of stdout")
}

func runLayout(cmd *cobra.Command, args []string) error {
	log := GetLogger()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if cmd.Flags().Changed("uri") {
		cfg.Store.URI = storeURI
	}
	if cmd.Flags().Changed("user") {
		cfg.Store.User = storeUser
	}
	if cmd.Flags().Changed("password") {
		cfg.Store.Password = storePassword
	}
	if cmd.Flags().Changed("validate-topo") {
		cfg.Layout.ValidateTopoOrder = validateTopoOrder
	}
	if cmd.Flags().Changed("worker-id") {
		cfg.Distributed.WorkerID = workerID
	}
	if cmd.Flags().Changed("total-workers") {
		cfg.Distributed.TotalWorkers = totalWorkers
	}

	ctx := context.Background()

	shutdown, err := telemetry.Init(ctx)
	if err != nil {
		log.Warn("telemetry initialisation failed, continuing without it: %v", err)
	}
	defer shutdown(ctx)

	log.Info("=== Layout Engine ===")
	log.Info("Store:         %s", cfg.Store.URI)
	log.Info("Worker:        %d/%d", cfg.Distributed.WorkerID, cfg.Distributed.TotalWorkers)
	log.Info("Edge label:    %s (alias %s)", cfg.Layout.EdgeLabel, cfg.Layout.EdgeLabelAlias)
	log.Info("")

	adapter := graphstore.NewAdapter(graphstore.AdapterConfig{
		URI:                cfg.Store.URI,
		User:               cfg.Store.User,
		Password:           cfg.Store.Password,
		Database:           cfg.Store.Database,
		PoolSize:           cfg.Store.PoolSize,
		TimeoutSec:         cfg.Store.TimeoutSec,
		EdgeLabel:          cfg.Layout.EdgeLabel,
		EdgeLabelAlias:     cfg.Layout.EdgeLabelAlias,
		MaxRetries:         cfg.Processing.MaxRetries,
		RetryDelaySec:      cfg.Processing.RetryDelaySec,
		MaxQueriesPerSec:   cfg.Processing.MaxQueriesPerSec,
		FailureThreshold:   cfg.CircuitBreaker.FailureThreshold,
		RecoveryTimeoutSec: cfg.CircuitBreaker.RecoveryTimeoutSec,
		Logger:             log,
		Metrics:            telemetry.GlobalMetrics(),
	})

	if err := adapter.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to store: %w", err)
	}
	defer adapter.Close(ctx)

	orch := orchestrator.New(adapter, orchestrator.Options{
		BatchSize:               cfg.Processing.BatchSize,
		ComponentChunks:         cfg.Processing.MaxParallelWorkers,
		FastPlaceEnabled:        fastPlaceEnabled,
		ValidateTopoOrder:       cfg.Layout.ValidateTopoOrder,
		ExcludeIsolatedVertices: cfg.Layout.ExcludeIsolatedVertices,
		WorkerID:                cfg.Distributed.WorkerID,
		TotalWorkers:            cfg.Distributed.TotalWorkers,
		SyncPollIntervalSec:     cfg.Distributed.SyncPollIntervalSec,
		Logger:                  log,
		Metrics:                 telemetry.GlobalMetrics(),
	})

	log.Info("Starting layout run...")
	result := orch.Run(ctx)

	if err := writeResult(result, outputFile); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}

	if result.Cancelled {
		log.Warn("Run cancelled after %d phase(s)", len(result.Statistics.Phases))
		return nil
	}
	if !result.Success {
		log.Error("Run failed: %s", result.Error)
		os.Exit(1)
	}

	log.Info("Run completed: %d blocks placed across %d phase(s)", len(result.Blocks), len(result.Statistics.Phases))
	return nil
}

func writeResult(result model.LayoutResult, path string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	data = append(data, '\n')

	if path == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0644)
}
