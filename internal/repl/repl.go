// Package repl is the interactive catalog shell: browse merged records,
// detections, alerts, and run history without leaving the terminal.
package repl

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/mcpscout/mcpscout/internal/storage"
	"github.com/mcpscout/mcpscout/internal/types"
)

// REPL represents the interactive shell.
type REPL struct {
	store    storage.Storage
	rl       *readline.Instance
	ctx      context.Context
	commands map[string]CommandHandler
}

// CommandHandler handles a specific command.
type CommandHandler func(args []string) error

// Config holds REPL configuration.
type Config struct {
	Store storage.Storage
}

// New creates a new REPL instance.
func New(cfg *Config) (*REPL, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("storage is required")
	}

	r := &REPL{
		store:    cfg.Store,
		commands: make(map[string]CommandHandler),
	}
	r.registerCommands()
	return r, nil
}

// Run starts the REPL loop.
func (r *REPL) Run(ctx context.Context) error {
	r.ctx = ctx

	cyan := color.New(color.FgCyan).SprintFunc()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            cyan("mcpscout> "),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()
	r.rl = rl

	r.printWelcome()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			} else if err == io.EOF {
				fmt.Println("\nGoodbye!")
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := r.processInput(line); err != nil {
			if err == io.EOF {
				return nil
			}
			red := color.New(color.FgRed).SprintFunc()
			fmt.Printf("%s %v\n", red("Error:"), err)
		}
	}
}

func (r *REPL) processInput(line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}

	if handler, ok := r.commands[parts[0]]; ok {
		return handler(parts[1:])
	}

	yellow := color.New(color.FgYellow).SprintFunc()
	fmt.Printf("%s Unknown command %q. Type 'help' for available commands.\n", yellow("Note:"), parts[0])
	return nil
}

func (r *REPL) registerCommands() {
	r.commands["help"] = r.cmdHelp
	r.commands["?"] = r.cmdHelp
	r.commands["stats"] = r.cmdStats
	r.commands["records"] = r.cmdRecords
	r.commands["record"] = r.cmdRecord
	r.commands["candidates"] = r.cmdCandidates
	r.commands["alerts"] = r.cmdAlerts
	r.commands["ack"] = r.cmdAck
	r.commands["runs"] = r.cmdRuns
	r.commands["exit"] = r.cmdExit
	r.commands["quit"] = r.cmdExit
}

func (r *REPL) printWelcome() {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Printf("\n%s\n", cyan("mcpscout catalog shell"))
	fmt.Println("Type 'help' for available commands, 'exit' to quit")
	fmt.Println()
}

func (r *REPL) cmdHelp(args []string) error {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("\n%s\n\n", cyan("Available Commands:"))

	commands := []struct {
		name string
		desc string
	}{
		{"stats", "Catalog totals and breakdowns"},
		{"records [limit]", "Top merged records by confidence"},
		{"record <id>", "One record with its health history"},
		{"candidates [min]", "Detections at or above a confidence"},
		{"alerts [all]", "Unacknowledged health alerts (or all)"},
		{"ack <id>", "Acknowledge an alert"},
		{"runs", "Recent discovery runs"},
		{"help, ?", "Show this help message"},
		{"exit, quit", "Exit the shell"},
	}
	for _, cmd := range commands {
		fmt.Printf("  %-18s %s\n", green(cmd.name), cmd.desc)
	}
	fmt.Println()
	return nil
}

func (r *REPL) cmdStats(args []string) error {
	stats, err := r.store.GetStatistics(r.ctx)
	if err != nil {
		return err
	}

	bold := color.New(color.Bold).SprintFunc()
	fmt.Printf("\n%s\n", bold("Catalog"))
	fmt.Printf("  Repositories:      %d\n", stats.TotalRepositories)
	fmt.Printf("  Candidates:        %d\n", stats.TotalCandidates)
	fmt.Printf("  Directory servers: %d\n", stats.TotalDirectoryActive)
	fmt.Printf("  Merged records:    %d\n", stats.TotalMergedRecords)
	fmt.Printf("  Open alerts:       %d\n", stats.TotalAlertsOpen)

	if len(stats.ByBand) > 0 {
		fmt.Printf("\n%s\n", bold("By confidence band"))
		for band, count := range stats.ByBand {
			fmt.Printf("  %-10s %d\n", band, count)
		}
	}
	if len(stats.BySource) > 0 {
		fmt.Printf("\n%s\n", bold("By source"))
		for source, count := range stats.BySource {
			fmt.Printf("  %-20s %d\n", source, count)
		}
	}
	fmt.Println()
	return nil
}

func (r *REPL) cmdRecords(args []string) error {
	limit := 20
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := r.store.ListMergedRecords(r.ctx, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No merged records. Run a discovery first.")
		return nil
	}

	for _, rec := range records {
		fmt.Printf("  %s  conf=%.0f  %s  %s\n",
			colorStatus(rec.HealthStatus), rec.Confidence, rec.Name, rec.ID)
	}
	return nil
}

func (r *REPL) cmdRecord(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: record <id>")
	}

	rec, err := r.store.GetMergedRecord(r.ctx, args[0])
	if err != nil {
		return err
	}

	bold := color.New(color.Bold).SprintFunc()
	fmt.Printf("\n%s (%s)\n", bold(rec.Name), rec.ID)
	if rec.Description != "" {
		fmt.Printf("  %s\n", rec.Description)
	}
	fmt.Printf("  Sources:     %s\n", rec.DataSources)
	fmt.Printf("  Confidence:  %.1f\n", rec.Confidence)
	fmt.Printf("  Health:      %s %s (score %.0f, reliability %.2f)\n",
		colorStatus(rec.HealthStatus), rec.HealthTrend, rec.HealthScore, rec.Reliability)
	if len(rec.Capabilities) > 0 {
		caps := make([]string, len(rec.Capabilities))
		for i, c := range rec.Capabilities {
			caps[i] = string(c)
		}
		fmt.Printf("  Capabilities: %s\n", strings.Join(caps, ", "))
	}
	if rec.MatchScore > 0 {
		fmt.Printf("  Match:       %.2f (%s)\n", rec.MatchScore, strings.Join(rec.MatchReasons, "; "))
	}

	measurements, err := r.store.GetMeasurements(r.ctx, rec.ID, 10)
	if err != nil {
		return err
	}
	if len(measurements) > 0 {
		fmt.Printf("\n%s\n", bold("Recent measurements"))
		for _, m := range measurements {
			fmt.Printf("  %s  %.0f  %s (%s)\n",
				m.MeasuredAt.Format("2006-01-02 15:04"), m.Score, m.Status, m.Source)
		}
	}
	fmt.Println()
	return nil
}

func (r *REPL) cmdCandidates(args []string) error {
	min := 50.0
	if len(args) > 0 {
		if f, err := strconv.ParseFloat(args[0], 64); err == nil {
			min = f
		}
	}

	detections, err := r.store.ListCandidates(r.ctx, min)
	if err != nil {
		return err
	}
	if len(detections) == 0 {
		fmt.Printf("No candidates at confidence >= %.0f\n", min)
		return nil
	}

	for _, det := range detections {
		fmt.Printf("  %5.1f  %-8s  %s\n", det.Confidence, det.Band, det.RepoFullName)
	}
	return nil
}

func (r *REPL) cmdAlerts(args []string) error {
	unackedOnly := !(len(args) > 0 && args[0] == "all")

	alerts, err := r.store.ListAlerts(r.ctx, unackedOnly, 50)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Println("No alerts.")
		return nil
	}

	for _, a := range alerts {
		marker := " "
		if a.Acknowledged {
			marker = "✓"
		}
		fmt.Printf("  %s %s  %-8s  %s  (%s)\n",
			marker, a.CreatedAt.Format("01-02 15:04"), colorSeverity(a.Severity), a.Message, a.ID)
	}
	return nil
}

func (r *REPL) cmdAck(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: ack <alert-id>")
	}
	if err := r.store.AcknowledgeAlert(r.ctx, args[0]); err != nil {
		return err
	}
	fmt.Println("Acknowledged.")
	return nil
}

func (r *REPL) cmdRuns(args []string) error {
	runs, err := r.store.ListRuns(r.ctx, 10)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	for _, run := range runs {
		fmt.Printf("  %s  %-9s  phase=%-8s  found=%d stored=%d failed=%d  %s\n",
			run.StartedAt.Format("2006-01-02 15:04"), run.Status, run.Phase,
			run.Stats.Discovered, run.Stats.Stored, run.Stats.Failed, run.ID)
	}
	return nil
}

func (r *REPL) cmdExit(args []string) error {
	fmt.Println("Goodbye!")
	return io.EOF
}

func colorStatus(status types.HealthStatus) string {
	switch status {
	case types.HealthHealthy:
		return color.GreenString(string(status))
	case types.HealthWarning:
		return color.YellowString(string(status))
	case types.HealthCritical:
		return color.RedString(string(status))
	default:
		return string(types.HealthUnknown)
	}
}

func colorSeverity(severity types.AlertSeverity) string {
	switch severity {
	case types.SeverityCritical:
		return color.RedString(string(severity))
	case types.SeverityWarning:
		return color.YellowString(string(severity))
	default:
		return string(severity)
	}
}
