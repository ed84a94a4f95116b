package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show catalog totals and recent runs",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("\n%s\n\n", cyan("=== mcpscout catalog ==="))

		stats, err := store.GetStatistics(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Repositories:      %d\n", stats.TotalRepositories)
		fmt.Printf("Candidates:        %d\n", stats.TotalCandidates)
		fmt.Printf("Directory servers: %d\n", stats.TotalDirectoryActive)
		fmt.Printf("Merged records:    %d\n", stats.TotalMergedRecords)

		alertColor := color.New(color.FgGreen).SprintFunc()
		if stats.TotalAlertsOpen > 0 {
			alertColor = color.New(color.FgRed).SprintFunc()
		}
		fmt.Printf("Open alerts:       %s\n", alertColor(fmt.Sprintf("%d", stats.TotalAlertsOpen)))

		if len(stats.ByBand) > 0 {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Printf("\n%s\n", yellow("Confidence bands:"))
			for _, band := range sortedKeys(stats.ByBand) {
				fmt.Printf("  %-10s %d\n", band, stats.ByBand[band])
			}
		}

		runs, err := store.ListRuns(ctx, 5)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(runs) > 0 {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Printf("\n%s\n", yellow("Recent runs:"))
			for _, run := range runs {
				fmt.Printf("  %s  %-9s  found=%d stored=%d failed=%d\n",
					run.StartedAt.Format("2006-01-02 15:04"), run.Status,
					run.Stats.Discovered, run.Stats.Stored, run.Stats.Failed)
			}
		}
		fmt.Println()
	},
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
