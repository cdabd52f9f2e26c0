package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/citegraph/layout-engine/pkg/utils"
)

var (
	// Global flags
	verbose    bool
	configPath string
	logger     utils.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "layoutctl",
	Short: "Incremental layout engine for citation graphs",
	Long: `layoutctl drives the incremental layout pipeline against a citation
graph stored in a property graph database.

It topologically sorts the unprocessed portion of the graph, places the
longest unresolved path and its neighbours, fans out the remaining weakly
connected components, grid-fills whatever is left, and reapplies any
pinned vertex overrides. It can run as a single process or as one of
several cooperating distributed workers.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logLevel := utils.LevelInfo
		if verbose {
			logLevel = utils.LevelDebug
		}
		logger = utils.NewDefaultLogger(logLevel, os.Stdout)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")

	binName := BinName()
	rootCmd.Example = `  # Run one layout pass against the configured store
  ` + binName + ` run

  # Run as worker 1 of 3 in distributed mode
  ` + binName + ` run --worker-id 1 --total-workers 3

  # Point at a specific store and enable the fast-place safety net
  ` + binName + ` run --uri bolt://localhost:7687 --fast-place`
}

// GetLogger returns the configured logger.
func GetLogger() utils.Logger {
	return logger
}

// BinName returns the base name of the current executable.
func BinName() string {
	return filepath.Base(os.Args[0])
}
