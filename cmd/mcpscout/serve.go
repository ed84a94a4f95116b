package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcpscout/mcpscout/internal/api"
	"github.com/mcpscout/mcpscout/internal/health"
)

var (
	serveAddr     string
	serveMonitor  bool
	serveInterval time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the catalog over a read-only HTTP API",
	Long: `Serve the catalog API, optionally with background health
monitoring. Shuts down gracefully on SIGINT/SIGTERM.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if serveMonitor {
			monitor := health.NewMonitor(store, &health.MonitorConfig{
				CheckInterval: serveInterval,
				Logger:        logger,
			})
			if err := monitor.StartMonitoring(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			defer monitor.Stop()
		}

		srv := api.NewServer(store, serveAddr, logger)
		fmt.Printf("Serving catalog API on %s\n", serveAddr)
		if err := srv.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:8377", "listen address")
	serveCmd.Flags().BoolVar(&serveMonitor, "monitor", false, "run background health monitoring")
	serveCmd.Flags().DurationVar(&serveInterval, "monitor-interval", time.Hour, "health check interval")
	rootCmd.AddCommand(serveCmd)
}
