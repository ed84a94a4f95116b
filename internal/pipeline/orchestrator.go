// Package pipeline coordinates the discovery phases: scan, analyze and
// classify, directory sync, fusion, and health checking. Each run is
// persisted phase by phase so an interrupted run can be resumed, and
// per-repository failures never abort a phase.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"github.com/mcpscout/mcpscout/internal/analyzer"
	"github.com/mcpscout/mcpscout/internal/detector"
	"github.com/mcpscout/mcpscout/internal/directory"
	"github.com/mcpscout/mcpscout/internal/fusion"
	"github.com/mcpscout/mcpscout/internal/health"
	"github.com/mcpscout/mcpscout/internal/scanner"
	"github.com/mcpscout/mcpscout/internal/storage"
	"github.com/mcpscout/mcpscout/internal/types"
)

// Phase names, in execution order. A run's Phase field records the last
// phase it entered; resuming skips every phase before it.
const (
	PhaseDiscover = "discover"
	PhaseAnalyze  = "analyze"
	PhaseSync     = "sync"
	PhaseMerge    = "merge"
	PhaseHealth   = "health"
	PhaseReport   = "report"
)

var phaseOrder = []string{PhaseDiscover, PhaseAnalyze, PhaseSync, PhaseMerge, PhaseHealth, PhaseReport}

// Orchestrator wires the pipeline components and runs them in phase order.
type Orchestrator struct {
	store    storage.Storage
	scanner  *scanner.Client
	analyzer *analyzer.Analyzer
	detector *detector.Detector
	syncer   *directory.Syncer
	merger   *fusion.Merger
	monitor  *health.Monitor
	cfg      *Config
	logger   hclog.Logger
}

// New builds an orchestrator from configuration, constructing every
// component with the shared logger.
func New(store storage.Storage, cfg *Config, logger hclog.Logger) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	scan := scanner.NewClient(scanner.Config{
		BaseURL:           cfg.GitHubBaseURL,
		Token:             cfg.GitHubToken,
		RequestsPerSecond: cfg.RequestsPerSec,
		RetryBaseDelay:    cfg.RetryBaseDelay,
		Logger:            logger,
	})

	var source directory.DataSource
	if cfg.DirectoryOffline {
		source = directory.NewOfflineSource()
	} else {
		source = directory.NewClient(&directory.ClientConfig{
			BaseURL: cfg.DirectoryBaseURL,
			APIKey:  cfg.DirectoryAPIKey,
			Logger:  logger,
		})
	}

	return &Orchestrator{
		store:    store,
		scanner:  scan,
		analyzer: analyzer.New(&analyzer.Config{Logger: logger}),
		detector: detector.New(&detector.Config{Strict: cfg.Strict, Logger: logger}),
		syncer:   directory.NewSyncer(store, source, &directory.SyncerConfig{Interval: cfg.SyncInterval, Logger: logger}),
		merger: fusion.NewMerger(store, &fusion.MergerConfig{
			MatchThreshold: cfg.MatchThreshold,
			MinConfidence:  cfg.MinConfidence,
			Logger:         logger,
		}),
		monitor: health.NewMonitor(store, &health.MonitorConfig{
			CheckInterval:        cfg.HealthInterval,
			AlertCooldown:        cfg.AlertCooldown,
			TrendWindow:          cfg.TrendWindow,
			ReliabilityWindow:    cfg.ReliabilityWindow,
			SmoothingAlpha:       cfg.SmoothingAlpha,
			ReliabilityThreshold: cfg.ReliabilityThreshold,
			Logger:               logger,
		}),
		cfg:    cfg,
		logger: logger.Named("pipeline"),
	}
}

// Monitor exposes the health monitor for long-running deployments that want
// the background check loop.
func (o *Orchestrator) Monitor() *health.Monitor { return o.monitor }

// Report is the outcome of a pipeline run.
type Report struct {
	RunID    string
	Status   types.RunStatus
	Stats    types.RunStats
	Errors   []string
	Duration time.Duration

	// Catalog aggregates after the run
	Candidates    int
	MergedRecords int
	OpenAlerts    int
}

// Summary renders the report for terminal output.
func (r *Report) Summary() string {
	return fmt.Sprintf(
		"Run %s %s in %v\n"+
			"Discovered: %d  Analyzed: %d  Stored: %d\n"+
			"Synced: %d  Merged: %d  Health checks: %d\n"+
			"Failures: %d  Candidates: %d  Records: %d  Open alerts: %d",
		r.RunID, r.Status, r.Duration.Round(time.Millisecond),
		r.Stats.Discovered, r.Stats.Analyzed, r.Stats.Stored,
		r.Stats.Synced, r.Stats.Merged, r.Stats.HealthChecks,
		r.Stats.Failed, r.Candidates, r.MergedRecords, r.OpenAlerts)
}

// RunDiscovery executes the scan-and-classify half of the pipeline:
// discover, analyze, report.
func (o *Orchestrator) RunDiscovery(ctx context.Context) (*Report, error) {
	return o.execute(ctx, []string{PhaseDiscover, PhaseAnalyze, PhaseReport})
}

// RunSuperDiscovery executes the full pipeline: discover, analyze, sync,
// merge, health, report.
func (o *Orchestrator) RunSuperDiscovery(ctx context.Context) (*Report, error) {
	return o.execute(ctx, phaseOrder)
}

// execute runs the named phases under one persisted discovery run. A phase
// returning an error fails the run; everything completed before it stays
// persisted and the run can be resumed.
func (o *Orchestrator) execute(ctx context.Context, phases []string) (*Report, error) {
	run, skipBefore, err := o.openRun(ctx)
	if err != nil {
		return nil, err
	}
	started := time.Now()

	var repos []*types.Repository
	fatal := func(phase string, err error) (*Report, error) {
		run.Status = types.RunFailed
		run.Errors = append(run.Errors, fmt.Sprintf("%s: %v", phase, err))
		o.closeRun(ctx, run)
		return o.report(ctx, run, time.Since(started)), fmt.Errorf("%s phase: %w", phase, err)
	}

	for _, phase := range phases {
		if phaseIndex(phase) < skipBefore {
			o.logger.Info("phase already complete, skipping", "phase", phase, "run", run.ID)
			continue
		}
		run.Phase = phase
		if err := o.store.UpdateRun(ctx, run); err != nil {
			o.logger.Warn("run checkpoint failed", "phase", phase, "error", err)
		}

		switch phase {
		case PhaseDiscover:
			repos, err = o.discover(ctx, run)
		case PhaseAnalyze:
			if repos == nil {
				// Resumed past discovery: analyze what is already stored
				repos, err = o.store.ListRepositories(ctx, o.cfg.MaxResults*10)
				if err == nil {
					err = o.analyze(ctx, run, repos)
				}
			} else {
				err = o.analyze(ctx, run, repos)
			}
		case PhaseSync:
			err = o.sync(ctx, run)
		case PhaseMerge:
			err = o.merge(ctx, run)
		case PhaseHealth:
			err = o.healthCheck(ctx, run)
		case PhaseReport:
			// Aggregation happens below from live storage
		}
		if err != nil {
			return fatal(phase, err)
		}
	}

	run.Status = types.RunCompleted
	o.closeRun(ctx, run)
	return o.report(ctx, run, time.Since(started)), nil
}

// openRun creates a fresh run, or reloads the resume target and computes
// which phases to skip.
func (o *Orchestrator) openRun(ctx context.Context) (*types.DiscoveryRun, int, error) {
	if o.cfg.ResumeRunID != "" {
		run, err := o.store.GetRun(ctx, o.cfg.ResumeRunID)
		if err != nil {
			return nil, 0, fmt.Errorf("loading run %s: %w", o.cfg.ResumeRunID, err)
		}
		if run.Status == types.RunCompleted {
			return nil, 0, fmt.Errorf("run %s already completed", run.ID)
		}
		// Redo the phase the run died in, skip the ones before it
		skipBefore := phaseIndex(run.Phase)
		run.Status = types.RunRunning
		run.FinishedAt = nil
		o.logger.Info("resuming run", "run", run.ID, "phase", run.Phase)
		return run, skipBefore, nil
	}

	snapshot, _ := json.Marshal(o.cfg)
	run := &types.DiscoveryRun{
		ID:         uuid.NewString(),
		ConfigJSON: string(snapshot),
		Status:     types.RunRunning,
		StartedAt:  time.Now().UTC(),
	}
	if err := o.store.CreateRun(ctx, run); err != nil {
		return nil, 0, fmt.Errorf("creating run: %w", err)
	}
	return run, 0, nil
}

func (o *Orchestrator) closeRun(ctx context.Context, run *types.DiscoveryRun) {
	now := time.Now().UTC()
	run.FinishedAt = &now
	if err := o.store.UpdateRun(ctx, run); err != nil {
		o.logger.Error("final run update failed", "run", run.ID, "error", err)
	}
}

func phaseIndex(phase string) int {
	for i, p := range phaseOrder {
		if p == phase {
			return i
		}
	}
	return 0
}

// discover runs the search patterns and persists every hit. The quota
// preflight is best-effort: only a definitive "not enough quota" answer
// aborts, an unreachable rate-limit endpoint does not.
func (o *Orchestrator) discover(ctx context.Context, run *types.DiscoveryRun) ([]*types.Repository, error) {
	if err := o.scanner.CheckSearchQuota(ctx, scanner.MinSearchBudget()); err != nil {
		var cfgErr *types.ConfigError
		if errors.As(err, &cfgErr) {
			return nil, cfgErr
		}
		o.logger.Debug("search quota preflight unavailable", "error", err)
	}

	repos, stats, err := o.scanner.Discover(ctx, scanner.DiscoverOptions{
		MaxResults: o.cfg.MaxResults,
		MinStars:   o.cfg.MinStars,
	})
	if err != nil {
		var quota *types.QuotaError
		if errors.As(err, &quota) && len(repos) > 0 {
			// Quota exhaustion mid-scan keeps the partial result
			o.logger.Warn("search quota exhausted, continuing with partial discovery",
				"found", len(repos), "reset", quota.Reset)
			run.Errors = append(run.Errors, fmt.Sprintf("discover: %v", err))
		} else {
			return nil, err
		}
	}
	o.logger.Info("discovery pass complete",
		"repositories", len(repos), "patterns", stats.PatternsSearched, "pages", stats.PagesFetched)

	for _, repo := range repos {
		if err := o.store.UpsertRepository(ctx, repo); err != nil {
			o.logger.Warn("repository upsert failed", "repo", repo.FullName, "error", err)
			run.Stats.Failed++
			continue
		}
		run.Stats.Discovered++
	}
	return repos, nil
}

// analyze processes repositories in sequential fixed-size batches. A batch
// does not start until the previous batch's workers all finish, which
// bounds peak load and keeps progress counters monotonic.
func (o *Orchestrator) analyze(ctx context.Context, run *types.DiscoveryRun, repos []*types.Repository) error {
	batch := o.cfg.BatchSize
	if batch <= 0 {
		batch = len(repos)
	}
	for start := 0; start < len(repos); start += batch {
		end := min(start+batch, len(repos))
		if err := o.analyzeBatch(ctx, run, repos[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// analyzeBatch fans one batch out over a bounded group with a minimum
// spacing between dispatches; one repository failing is counted, not
// fatal.
func (o *Orchestrator) analyzeBatch(ctx context.Context, run *types.DiscoveryRun, repos []*types.Repository) error {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)

	for _, repo := range repos {
		repo := repo
		g.Go(func() error {
			if err := o.analyzeOne(gctx, repo); err != nil {
				o.logger.Warn("repository analysis failed", "repo", repo.FullName, "error", err)
				mu.Lock()
				run.Stats.Failed++
				run.Errors = appendBounded(run.Errors, fmt.Sprintf("analyze %s: %v", repo.FullName, err))
				mu.Unlock()
				return nil
			}
			mu.Lock()
			run.Stats.Analyzed++
			run.Stats.Detected++
			run.Stats.Stored++
			mu.Unlock()
			return nil
		})

		if o.cfg.ItemSpacing > 0 {
			select {
			case <-time.After(o.cfg.ItemSpacing):
			case <-gctx.Done():
			}
		}
		if gctx.Err() != nil {
			break
		}
	}
	return g.Wait()
}

// analyzeOne runs the analyze-classify-store sequence for one repository.
// Detail fetch failures degrade to metadata-only analysis.
func (o *Orchestrator) analyzeOne(ctx context.Context, repo *types.Repository) error {
	var files map[string]string
	var listing []string

	if o.cfg.FetchDetails {
		details, err := o.scanner.GetDetails(ctx, repo.Owner(), repo.Name())
		if err != nil {
			o.logger.Debug("detail fetch failed, classifying from metadata",
				"repo", repo.FullName, "error", err)
		} else {
			files = details.Files
			listing = details.Listing
			repo = details.Repository
			if err := o.store.UpsertRepository(ctx, repo); err != nil {
				return fmt.Errorf("refreshing repository: %w", err)
			}
		}
	}

	profile := o.analyzer.Analyze(repo, files, listing)
	if err := o.store.SaveProfile(ctx, profile); err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}

	det := o.detector.Classify(repo, profile)
	if err := o.store.SaveDetection(ctx, det); err != nil {
		return fmt.Errorf("saving detection: %w", err)
	}
	return nil
}

// sync pulls the external directory. The sync is forced: a pipeline run is
// an explicit request for fresh data.
func (o *Orchestrator) sync(ctx context.Context, run *types.DiscoveryRun) error {
	result, err := o.syncer.Sync(ctx, true)
	if err != nil {
		return err
	}
	run.Stats.Synced = result.Synced
	run.Stats.Failed += result.Failed
	if result.UsedOffline {
		run.Errors = append(run.Errors, "sync: directory unreachable, used offline data")
	}
	return nil
}

// merge fuses the two populations into the unified catalog.
func (o *Orchestrator) merge(ctx context.Context, run *types.DiscoveryRun) error {
	result, err := o.merger.Merge(ctx)
	if err != nil {
		return err
	}
	run.Stats.Merged = result.Fused + result.ScannerOnly + result.DirectoryOnly
	run.Stats.Failed += result.Failed
	return nil
}

// healthCheck runs one monitoring pass over the merged catalog.
func (o *Orchestrator) healthCheck(ctx context.Context, run *types.DiscoveryRun) error {
	result, err := o.monitor.Check(ctx)
	if err != nil {
		return err
	}
	run.Stats.HealthChecks = result.Checked
	run.Stats.Failed += result.Failed
	return nil
}

// report assembles the final report from the run and live aggregates.
func (o *Orchestrator) report(ctx context.Context, run *types.DiscoveryRun, elapsed time.Duration) *Report {
	rep := &Report{
		RunID:    run.ID,
		Status:   run.Status,
		Stats:    run.Stats,
		Errors:   run.Errors,
		Duration: elapsed,
	}

	if stats, err := o.store.GetStatistics(ctx); err != nil {
		o.logger.Warn("statistics unavailable for report", "error", err)
	} else {
		rep.Candidates = stats.TotalCandidates
		rep.MergedRecords = stats.TotalMergedRecords
		rep.OpenAlerts = stats.TotalAlertsOpen
	}
	return rep
}

// maxRunErrors bounds the error list stored with a run.
const maxRunErrors = 50

func appendBounded(errs []string, msg string) []string {
	if len(errs) >= maxRunErrors {
		return errs
	}
	return append(errs, msg)
}
