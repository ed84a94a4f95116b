// mcpscout discovers, classifies, and catalogs MCP servers from code
// hosting and the curated directory.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/mcpscout/mcpscout/internal/storage"
)

var (
	dbPath  string
	verbose bool

	store  storage.Storage
	logger hclog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "mcpscout",
	Short: "MCP server discovery and catalog tool",
	Long: `mcpscout scans code hosting for MCP server repositories, classifies
them with weighted heuristics, enriches them from the curated directory,
and maintains a unified catalog with health monitoring.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := hclog.Warn
		if verbose {
			level = hclog.Debug
		}
		logger = hclog.New(&hclog.LoggerOptions{
			Name:  "mcpscout",
			Level: level,
		})

		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return fmt.Errorf("creating database directory: %w", err)
		}
		var err error
		store, err = storage.NewStorage(context.Background(), &storage.Config{Path: dbPath})
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			_ = store.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", ".mcpscout/catalog.db", "path to the catalog database")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
