package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mcpscout/mcpscout/internal/types"
)

var (
	exportFormat string
	exportOut    string
	exportLimit  int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export merged records as JSON or CSV",
	Long: `Export the merged catalog for downstream tooling.

Examples:
  mcpscout export                          # JSON to stdout
  mcpscout export --format=csv -o out.csv  # CSV to a file`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		records, err := store.ListMergedRecords(ctx, exportLimit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		out := os.Stdout
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			defer f.Close()
			out = f
		}

		switch exportFormat {
		case "json":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			err = enc.Encode(records)
		case "csv":
			err = writeCSV(out, records)
		default:
			err = fmt.Errorf("unknown format %q (want json or csv)", exportFormat)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if exportOut != "" {
			fmt.Printf("Exported %d records to %s\n", len(records), exportOut)
		}
	},
}

func writeCSV(out *os.File, records []*types.MergedRecord) error {
	w := csv.NewWriter(out)
	defer w.Flush()

	header := []string{
		"id", "name", "data_sources", "confidence", "verified",
		"health_score", "health_status", "health_trend", "reliability",
		"popularity", "capabilities", "updated_at",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, rec := range records {
		caps := make([]string, len(rec.Capabilities))
		for i, c := range rec.Capabilities {
			caps[i] = string(c)
		}
		row := []string{
			rec.ID,
			rec.Name,
			string(rec.DataSources),
			strconv.FormatFloat(rec.Confidence, 'f', 1, 64),
			strconv.FormatBool(rec.Verified),
			strconv.FormatFloat(rec.HealthScore, 'f', 1, 64),
			string(rec.HealthStatus),
			string(rec.HealthTrend),
			strconv.FormatFloat(rec.Reliability, 'f', 3, 64),
			strconv.Itoa(rec.Popularity),
			strings.Join(caps, ";"),
			rec.UpdatedAt.Format("2006-01-02T15:04:05Z"),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "export format (json/csv)")
	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "output file (default stdout)")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 0, "maximum records (0 = all)")
	rootCmd.AddCommand(exportCmd)
}
