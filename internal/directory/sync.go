package directory

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mcpscout/mcpscout/internal/health"
	"github.com/mcpscout/mcpscout/internal/storage"
	"github.com/mcpscout/mcpscout/internal/types"
)

const (
	// metaLastSync is the meta key recording the last successful sync time.
	metaLastSync = "last_directory_sync"

	defaultSyncInterval = 6 * time.Hour
	syncPageSize        = 50
)

// SyncerConfig holds syncer construction options.
type SyncerConfig struct {
	// Interval is the minimum gap between syncs; Sync is a no-op inside it
	// unless forced. Zero means the default.
	Interval time.Duration
	Logger   hclog.Logger
}

// SyncResult summarizes one sync pass.
type SyncResult struct {
	Skipped     bool
	Synced      int
	Deactivated int
	Categories  int
	Failed      int
	UsedOffline bool
}

// Syncer pulls the external directory into local storage. Server upserts
// are the only fatal path; stats, categories, and per-server enrichment
// degrade to partial results.
type Syncer struct {
	store    storage.Storage
	source   DataSource
	interval time.Duration
	logger   hclog.Logger
}

// NewSyncer creates a directory syncer.
func NewSyncer(store storage.Storage, source DataSource, cfg *SyncerConfig) *Syncer {
	if cfg == nil {
		cfg = &SyncerConfig{}
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultSyncInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Syncer{store: store, source: source, interval: interval, logger: logger.Named("sync")}
}

// Sync pulls the full directory listing into storage. Inside the sync
// interval it is a no-op unless force is set.
func (s *Syncer) Sync(ctx context.Context, force bool) (*SyncResult, error) {
	result := &SyncResult{}

	if !force {
		if last, err := s.lastSync(ctx); err == nil && time.Since(last) < s.interval {
			s.logger.Debug("sync skipped, inside interval", "last", last)
			result.Skipped = true
			return result, nil
		}
	}

	seen := make(map[string]bool)
	now := time.Now().UTC()

	for page := 1; ; page++ {
		listing, err := s.source.ListServers(ctx, Filters{}, page, syncPageSize)
		if err != nil {
			return result, fmt.Errorf("listing directory page %d: %w", page, err)
		}
		for i := range listing.Servers {
			srv := toDirectoryServer(&listing.Servers[i], now)
			seen[srv.ExternalID] = true

			trend, err := s.trendFor(ctx, srv)
			if err != nil {
				s.logger.Warn("trend lookup failed", "server", srv.ExternalID, "error", err)
			}
			srv.HealthTrend = trend

			if err := s.store.UpsertDirectoryServer(ctx, srv); err != nil {
				s.logger.Warn("server upsert failed", "server", srv.ExternalID, "error", err)
				result.Failed++
				continue
			}
			if err := s.recordMeasurement(ctx, srv, now); err != nil {
				s.logger.Warn("measurement append failed", "server", srv.ExternalID, "error", err)
				result.Failed++
			}
			result.Synced++
		}
		if !listing.HasMore || len(listing.Servers) == 0 {
			break
		}
	}

	deactivated, err := s.deactivateMissing(ctx, seen, now)
	if err != nil {
		s.logger.Warn("deactivation pass failed", "error", err)
	}
	result.Deactivated = deactivated

	// Categories and stats enrich the catalog but never fail the sync.
	if cats, err := s.source.Categories(ctx); err != nil {
		s.logger.Warn("category sync failed", "error", err)
	} else {
		for _, cat := range cats {
			if err := s.store.UpsertCategory(ctx, cat.ID, cat.Name, cat.Count); err != nil {
				s.logger.Warn("category upsert failed", "category", cat.ID, "error", err)
				continue
			}
			result.Categories++
		}
	}
	if stats, err := s.source.Stats(ctx); err != nil {
		s.logger.Warn("stats fetch failed", "error", err)
	} else {
		s.logger.Info("directory stats",
			"servers", stats.TotalServers, "categories", stats.TotalCategories, "verified", stats.VerifiedServers)
	}

	if client, ok := s.source.(*Client); ok {
		result.UsedOffline = client.UsedFallback()
	}

	if err := s.store.SetMeta(ctx, metaLastSync, now.Format(time.RFC3339)); err != nil {
		s.logger.Warn("recording sync time failed", "error", err)
	}

	s.logger.Info("directory sync complete",
		"synced", result.Synced, "deactivated", result.Deactivated, "failed", result.Failed)
	return result, nil
}

// lastSync reads the recorded last sync time.
func (s *Syncer) lastSync(ctx context.Context) (time.Time, error) {
	raw, err := s.store.GetMeta(ctx, metaLastSync)
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, raw)
}

// recordMeasurement appends a directory-sourced health observation keyed by
// the directory half of the merged-record id space. Using "dir:<id>" keeps
// the measurement history continuous once fusion links the server to a
// merged record.
func (s *Syncer) recordMeasurement(ctx context.Context, srv *types.DirectoryServer, now time.Time) error {
	return s.store.AppendMeasurement(ctx, &types.HealthMeasurement{
		RecordID:   "dir:" + srv.ExternalID,
		Score:      srv.HealthScore,
		Status:     health.StatusForScore(srv.HealthScore),
		Source:     types.MeasureDirectory,
		Factors:    []string{"directory_reported"},
		MeasuredAt: now,
	})
}

// trendFor computes the health trend from the stored measurement history
// plus the incoming score. Fewer than two points is stable by definition.
func (s *Syncer) trendFor(ctx context.Context, srv *types.DirectoryServer) (types.Trend, error) {
	history, err := s.store.GetMeasurements(ctx, "dir:"+srv.ExternalID, 20)
	if err != nil {
		return types.TrendStable, err
	}

	// Newest first from storage; build oldest-first including the new score.
	scores := make([]float64, 0, len(history)+1)
	for i := len(history) - 1; i >= 0; i-- {
		scores = append(scores, history[i].Score)
	}
	scores = append(scores, srv.HealthScore)

	return health.TrendOf(scores), nil
}

// deactivateMissing marks servers absent from this sync as inactive.
// Directory entities are deactivated, never deleted.
func (s *Syncer) deactivateMissing(ctx context.Context, seen map[string]bool, now time.Time) (int, error) {
	active, err := s.store.ListDirectoryServers(ctx, true)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, srv := range active {
		if seen[srv.ExternalID] {
			continue
		}
		srv.Active = false
		srv.SyncedAt = now
		if err := s.store.UpsertDirectoryServer(ctx, srv); err != nil {
			s.logger.Warn("deactivation failed", "server", srv.ExternalID, "error", err)
			continue
		}
		count++
	}
	return count, nil
}

// toDirectoryServer converts a wire server to the stored entity, mapping
// capability strings onto the fixed vocabulary and dropping unknowns.
func toDirectoryServer(srv *Server, now time.Time) *types.DirectoryServer {
	var caps []types.Capability
	for _, c := range srv.Capabilities {
		cap := types.Capability(c)
		if cap.IsValid() {
			caps = append(caps, cap)
		}
	}
	var upstream *time.Time
	if !srv.UpdatedAt.IsZero() {
		t := srv.UpdatedAt
		upstream = &t
	}
	return &types.DirectoryServer{
		ExternalID:    srv.ID,
		Name:          srv.Name,
		Description:   srv.Description,
		Category:      srv.Category,
		Language:      srv.Language,
		Capabilities:  caps,
		RepositoryURL: srv.RepositoryURL,
		Verified:      srv.Verified,
		Active:        true,
		HealthScore:   srv.HealthScore,
		HealthTrend:   types.TrendStable,
		Downloads:     srv.Downloads,
		Stars:         srv.Stars,
		InstallHint:   srv.InstallHint,
		UpstreamAt:    upstream,
		SyncedAt:      now,
	}
}
