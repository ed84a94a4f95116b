package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mcpscout/mcpscout/internal/pipeline"
)

var (
	discoverPreset string
	discoverToken  string
	discoverMax    int
	discoverStrict bool
	discoverResume string
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Scan code hosting for MCP server repositories",
	Long: `Run the scan-and-classify pipeline: search for candidate
repositories, analyze their content, and classify each with a confidence
score.

Presets:
  quick:    metadata-only scan, small result set
  standard: full content analysis (default)
  deep:     large result set, strict classification thresholds

Examples:
  mcpscout discover                        # Standard preset
  mcpscout discover --preset=quick         # Fast metadata-only scan
  mcpscout discover --max-results=100      # Override the result cap
  mcpscout discover --resume=<run-id>      # Resume an interrupted run`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := buildPipelineConfig()
		o := pipeline.New(store, cfg, logger)

		report, err := o.RunDiscovery(context.Background())
		if err != nil {
			if report != nil {
				fmt.Println(report.Summary())
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		green := color.New(color.FgGreen, color.Bold).SprintFunc()
		fmt.Printf("\n%s\n%s\n", green("Discovery complete"), report.Summary())
	},
}

var superCmd = &cobra.Command{
	Use:   "super",
	Short: "Run the full pipeline: scan, sync, merge, and health-check",
	Long: `Run every pipeline phase: repository discovery and
classification, directory sync, record fusion, and a health check over
the merged catalog.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := buildPipelineConfig()
		o := pipeline.New(store, cfg, logger)

		report, err := o.RunSuperDiscovery(context.Background())
		if err != nil {
			if report != nil {
				fmt.Println(report.Summary())
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		green := color.New(color.FgGreen, color.Bold).SprintFunc()
		fmt.Printf("\n%s\n%s\n", green("Super discovery complete"), report.Summary())
	},
}

// buildPipelineConfig resolves the config file, preset flag, and explicit
// overrides in that order.
func buildPipelineConfig() *pipeline.Config {
	cwd, _ := os.Getwd()
	cfg, err := pipeline.LoadConfigFile(cwd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if discoverPreset != "" {
		cfg = pipeline.PresetConfig(pipeline.Preset(discoverPreset))
	}
	if token := os.Getenv("GITHUB_TOKEN"); token != "" && cfg.GitHubToken == "" {
		cfg.GitHubToken = token
	}
	if discoverToken != "" {
		cfg.GitHubToken = discoverToken
	}
	if discoverMax > 0 {
		cfg.MaxResults = discoverMax
	}
	if discoverStrict {
		cfg.Strict = true
	}
	cfg.ResumeRunID = discoverResume
	return cfg
}

func init() {
	for _, cmd := range []*cobra.Command{discoverCmd, superCmd} {
		cmd.Flags().StringVar(&discoverPreset, "preset", "", "configuration preset (quick/standard/deep)")
		cmd.Flags().StringVar(&discoverToken, "token", "", "API token (defaults to GITHUB_TOKEN)")
		cmd.Flags().IntVar(&discoverMax, "max-results", 0, "maximum repositories per scan")
		cmd.Flags().BoolVar(&discoverStrict, "strict", false, "use strict classification thresholds")
		cmd.Flags().StringVar(&discoverResume, "resume", "", "resume the run with this id")
	}
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(superCmd)
}
