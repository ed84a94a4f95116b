package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mcpscout/mcpscout/internal/health"
)

var healthAckID string

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run a health check pass and show alerts",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		if healthAckID != "" {
			if err := store.AcknowledgeAlert(ctx, healthAckID); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Println("Acknowledged.")
			return
		}

		monitor := health.NewMonitor(store, &health.MonitorConfig{Logger: logger})
		result, err := monitor.Check(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		green := color.New(color.FgGreen).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		fmt.Printf("Checked %d records: %s healthy, %s warning, %s critical\n",
			result.Checked,
			green(fmt.Sprintf("%d", result.Healthy)),
			yellow(fmt.Sprintf("%d", result.Warning)),
			red(fmt.Sprintf("%d", result.Critical)))
		if result.Alerts > 0 {
			fmt.Printf("%s new alerts raised\n", red(fmt.Sprintf("%d", result.Alerts)))
		}

		alerts, err := store.ListAlerts(ctx, true, 20)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(alerts) > 0 {
			fmt.Printf("\n%s\n", yellow("Unacknowledged alerts:"))
			for _, a := range alerts {
				fmt.Printf("  [%s] %s  %s  (%s)\n",
					a.Severity, a.CreatedAt.Format("01-02 15:04"), a.Message, a.ID)
			}
		}
	},
}

func init() {
	healthCmd.Flags().StringVar(&healthAckID, "ack", "", "acknowledge the alert with this id")
	rootCmd.AddCommand(healthCmd)
}
