// Package health observes merged-record health over time: periodic checks,
// append-only measurement history, reliability and trend analysis, and
// threshold alerts with cooldown deduplication.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/mcpscout/mcpscout/internal/storage"
	"github.com/mcpscout/mcpscout/internal/types"
)

const (
	defaultCheckInterval = time.Hour
	defaultAlertCooldown = 24 * time.Hour

	// defaultReliabilityWindow caps how much history feeds the
	// reliability score.
	defaultReliabilityWindow = 100
	// defaultTrendWindow caps how much history feeds trend analysis.
	defaultTrendWindow = 20
	// defaultReliabilityThreshold gates the declining-trend alert: a
	// record this reliable can dip without paging anyone.
	defaultReliabilityThreshold = 0.5

	// Freshness cutoffs for estimated health.
	freshnessBonusDays   = 30
	stalenessPenaltyDays = 180
)

// MonitorConfig holds monitor construction options.
type MonitorConfig struct {
	// CheckInterval is the gap between background check passes.
	CheckInterval time.Duration
	// AlertCooldown suppresses repeat alerts per (record, severity).
	AlertCooldown time.Duration
	// ReliabilityWindow and TrendWindow bound how many measurements feed
	// each analysis.
	ReliabilityWindow int
	TrendWindow       int
	// SmoothingAlpha is the trend smoothing factor.
	SmoothingAlpha float64
	// ReliabilityThreshold is the floor below which a declining trend
	// raises an alert.
	ReliabilityThreshold float64
	Logger               hclog.Logger
}

// CheckResult summarizes one monitoring pass.
type CheckResult struct {
	Checked  int
	Healthy  int
	Warning  int
	Critical int
	Alerts   int
	Failed   int
}

// Monitor runs health checks over the merged catalog.
type Monitor struct {
	mu sync.Mutex

	store            storage.Storage
	interval         time.Duration
	cooldown         time.Duration
	reliabilityWin   int
	trendWin         int
	alpha            float64
	reliabilityFloor float64
	logger           hclog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewMonitor creates a health monitor.
func NewMonitor(store storage.Storage, cfg *MonitorConfig) *Monitor {
	if cfg == nil {
		cfg = &MonitorConfig{}
	}
	interval := cfg.CheckInterval
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	cooldown := cfg.AlertCooldown
	if cooldown <= 0 {
		cooldown = defaultAlertCooldown
	}
	relWin := cfg.ReliabilityWindow
	if relWin <= 0 {
		relWin = defaultReliabilityWindow
	}
	trendWin := cfg.TrendWindow
	if trendWin <= 0 {
		trendWin = defaultTrendWindow
	}
	alpha := cfg.SmoothingAlpha
	if alpha <= 0 || alpha >= 1 {
		alpha = DefaultSmoothingAlpha
	}
	floor := cfg.ReliabilityThreshold
	if floor <= 0 {
		floor = defaultReliabilityThreshold
	}
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Monitor{
		store:            store,
		interval:         interval,
		cooldown:         cooldown,
		reliabilityWin:   relWin,
		trendWin:         trendWin,
		alpha:            alpha,
		reliabilityFloor: floor,
		logger:           logger.Named("health"),
	}
}

// StartMonitoring begins the background check loop. The first pass runs
// after one interval, not immediately; callers wanting an immediate pass
// call Check themselves.
func (m *Monitor) StartMonitoring(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("monitor already running")
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.running = true

	m.wg.Add(1)
	go m.loop()

	m.logger.Info("health monitoring started", "interval", m.interval)
	return nil
}

// Stop halts the background loop and waits for an in-flight pass.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.cancel()
	m.running = false
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("health monitoring stopped")
}

func (m *Monitor) loop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Check(m.ctx); err != nil {
				m.logger.Error("health check pass failed", "error", err)
			}
		}
	}
}

// Check runs one full monitoring pass over every merged record. Per-record
// failures are counted and skipped; the pass keeps going.
func (m *Monitor) Check(ctx context.Context) (*CheckResult, error) {
	records, err := m.store.ListMergedRecords(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}

	result := &CheckResult{}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := m.checkRecord(ctx, rec, result); err != nil {
			m.logger.Warn("record check failed", "id", rec.ID, "error", err)
			result.Failed++
		}
		result.Checked++
	}

	m.logger.Info("health check complete",
		"checked", result.Checked, "healthy", result.Healthy,
		"warning", result.Warning, "critical", result.Critical,
		"alerts", result.Alerts, "failed", result.Failed)
	return result, nil
}

// checkRecord measures one record, persists the observation, updates the
// record's health fields, and raises alerts as warranted.
func (m *Monitor) checkRecord(ctx context.Context, rec *types.MergedRecord, result *CheckResult) error {
	score, source, factors := m.measure(ctx, rec)
	status := StatusForScore(score)
	now := time.Now().UTC()

	if err := m.store.AppendMeasurement(ctx, &types.HealthMeasurement{
		RecordID:   rec.ID,
		Score:      score,
		Status:     status,
		Source:     source,
		Factors:    factors,
		MeasuredAt: now,
	}); err != nil {
		return fmt.Errorf("appending measurement: %w", err)
	}

	history, err := m.store.GetMeasurements(ctx, rec.ID, m.reliabilityWin)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}
	reliability := Reliability(history)
	trend := m.trendFromHistory(history)

	if err := m.store.UpdateRecordHealth(ctx, rec.ID, score, status, trend, reliability); err != nil {
		return fmt.Errorf("updating record: %w", err)
	}

	switch status {
	case types.HealthHealthy:
		result.Healthy++
	case types.HealthWarning:
		result.Warning++
	case types.HealthCritical:
		result.Critical++
	}

	raised, err := m.raiseAlerts(ctx, rec, score, status, trend, reliability, now)
	if err != nil {
		return err
	}
	result.Alerts += raised
	return nil
}

// measure produces the score for one pass. A record with a directory link
// uses the directory's reported score; everything else is estimated from
// catalog signals.
func (m *Monitor) measure(ctx context.Context, rec *types.MergedRecord) (float64, types.MeasurementSource, []string) {
	if rec.DirectoryID != "" {
		srv, err := m.store.GetDirectoryServer(ctx, rec.DirectoryID)
		if err == nil && srv.Active {
			return srv.HealthScore, types.MeasureDirectory, []string{"directory_reported"}
		}
		if err != nil {
			m.logger.Debug("directory lookup failed, estimating", "id", rec.ID, "error", err)
		}
	}
	score, factors := m.estimate(ctx, rec)
	return score, types.MeasureEstimated, factors
}

// estimate scores a record from what the catalog knows about it: verified
// status, popularity, repository freshness, and detection confidence.
func (m *Monitor) estimate(ctx context.Context, rec *types.MergedRecord) (float64, []string) {
	score := 50.0
	factors := []string{"baseline"}

	if rec.Verified {
		score += 20
		factors = append(factors, "verified")
	}

	switch {
	case rec.Popularity >= 1000:
		score += 15
		factors = append(factors, "high_popularity")
	case rec.Popularity >= 100:
		score += 10
		factors = append(factors, "moderate_popularity")
	case rec.Popularity >= 10:
		score += 5
		factors = append(factors, "some_popularity")
	}

	if rec.RepoFullName != "" {
		if repo, err := m.store.GetRepository(ctx, rec.RepoFullName); err == nil {
			lastTouched := repo.UpdatedAt
			if repo.PushedAt != nil && repo.PushedAt.After(lastTouched) {
				lastTouched = *repo.PushedAt
			}
			switch {
			case lastTouched.After(time.Now().AddDate(0, 0, -freshnessBonusDays)):
				score += 10
				factors = append(factors, "recently_updated")
			case lastTouched.Before(time.Now().AddDate(0, 0, -stalenessPenaltyDays)):
				score -= 20
				factors = append(factors, "stale")
			}
		}
	}

	if rec.Confidence >= 70 {
		score += 10
		factors = append(factors, "high_confidence")
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score, factors
}

// trendFromHistory runs trend analysis over the newest-first measurement
// history, bounded to the trend window.
func (m *Monitor) trendFromHistory(history []*types.HealthMeasurement) types.Trend {
	n := len(history)
	if n > m.trendWin {
		n = m.trendWin
	}
	scores := make([]float64, 0, n)
	for i := n - 1; i >= 0; i-- {
		scores = append(scores, history[i].Score)
	}
	return TrendWithAlpha(scores, m.alpha)
}

// raiseAlerts raises at most one alert per severity, deduplicated against
// the most recent alert of that severity within the cooldown.
func (m *Monitor) raiseAlerts(ctx context.Context, rec *types.MergedRecord, score float64, status types.HealthStatus, trend types.Trend, reliability float64, now time.Time) (int, error) {
	raised := 0

	type want struct {
		severity types.AlertSeverity
		message  string
	}
	var alerts []want

	switch status {
	case types.HealthCritical:
		alerts = append(alerts, want{types.SeverityCritical,
			fmt.Sprintf("%s health is critical (score %.0f)", rec.Name, score)})
	case types.HealthWarning:
		alerts = append(alerts, want{types.SeverityWarning,
			fmt.Sprintf("%s health is degraded (score %.0f)", rec.Name, score)})
	}
	// A declining record whose track record is still solid can dip
	// without paging anyone; only low-reliability decline alerts.
	if trend == types.TrendDeclining && reliability < m.reliabilityFloor && status != types.HealthCritical {
		alerts = append(alerts, want{types.SeverityInfo,
			fmt.Sprintf("%s health is trending down", rec.Name)})
	}

	for _, w := range alerts {
		last, err := m.store.GetLatestAlert(ctx, rec.ID, w.severity)
		if err != nil && err != types.ErrNotFound {
			return raised, fmt.Errorf("alert lookup: %w", err)
		}
		if last != nil && now.Sub(last.CreatedAt) < m.cooldown {
			continue
		}
		if err := m.store.CreateAlert(ctx, &types.HealthAlert{
			ID:        uuid.NewString(),
			RecordID:  rec.ID,
			Severity:  w.severity,
			Message:   w.message,
			CreatedAt: now,
		}); err != nil {
			return raised, fmt.Errorf("creating alert: %w", err)
		}
		raised++
	}
	return raised, nil
}
