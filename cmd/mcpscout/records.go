package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mcpscout/mcpscout/internal/types"
)

var (
	recordsLimit   int
	recordsHighCon bool
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List merged catalog records",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		var (
			records []*types.MergedRecord
			err     error
		)
		if recordsHighCon {
			records, err = store.GetHighConfidenceRecords(ctx, recordsLimit)
		} else {
			records, err = store.ListMergedRecords(ctx, recordsLimit)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(records) == 0 {
			fmt.Println("No merged records. Run 'mcpscout super' first.")
			return
		}

		for _, rec := range records {
			fmt.Printf("%s  conf=%5.1f  %-22s %s\n",
				statusDot(rec.HealthStatus), rec.Confidence, truncate(rec.Name, 22), rec.ID)
		}
	},
}

func statusDot(status types.HealthStatus) string {
	switch status {
	case types.HealthHealthy:
		return color.GreenString("●")
	case types.HealthWarning:
		return color.YellowString("●")
	case types.HealthCritical:
		return color.RedString("●")
	default:
		return "○"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func init() {
	recordsCmd.Flags().IntVar(&recordsLimit, "limit", 30, "maximum records to list")
	recordsCmd.Flags().BoolVar(&recordsHighCon, "high-confidence", false, "only high-confidence records")
	rootCmd.AddCommand(recordsCmd)
}
