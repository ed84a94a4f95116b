package storage

import (
	"context"

	"github.com/mcpscout/mcpscout/internal/storage/sqlite"
	"github.com/mcpscout/mcpscout/internal/types"
)

// Storage defines the interface for catalog persistence backends.
// The store is the only authoritative state in the system; every other
// component is a stateless processor reading and writing through it.
type Storage interface {
	// Repositories (upsert by full name, soft history)
	UpsertRepository(ctx context.Context, repo *types.Repository) error
	GetRepository(ctx context.Context, fullName string) (*types.Repository, error)
	ListRepositories(ctx context.Context, limit int) ([]*types.Repository, error)
	CountRepositories(ctx context.Context) (int, error)

	// Analysis profiles (overwritten per analysis)
	SaveProfile(ctx context.Context, profile *types.AnalysisProfile) error
	GetProfile(ctx context.Context, repoFullName string) (*types.AnalysisProfile, error)

	// Detections (recomputed when rules or profile change)
	SaveDetection(ctx context.Context, det *types.Detection) error
	GetDetection(ctx context.Context, repoFullName string) (*types.Detection, error)
	ListCandidates(ctx context.Context, minConfidence float64) ([]*types.Detection, error)

	// Directory servers (upsert by external id, deactivate instead of delete)
	UpsertDirectoryServer(ctx context.Context, srv *types.DirectoryServer) error
	GetDirectoryServer(ctx context.Context, externalID string) (*types.DirectoryServer, error)
	ListDirectoryServers(ctx context.Context, activeOnly bool) ([]*types.DirectoryServer, error)
	UpsertCategory(ctx context.Context, id, name string, count int) error

	// Merged records (upsert by composite source key, idempotent)
	UpsertMergedRecord(ctx context.Context, rec *types.MergedRecord) error
	GetMergedRecord(ctx context.Context, id string) (*types.MergedRecord, error)
	ListMergedRecords(ctx context.Context, limit int) ([]*types.MergedRecord, error)
	GetHighConfidenceRecords(ctx context.Context, limit int) ([]*types.MergedRecord, error)
	UpdateRecordHealth(ctx context.Context, id string, score float64, status types.HealthStatus, trend types.Trend, reliability float64) error

	// Health measurements (append-only)
	AppendMeasurement(ctx context.Context, m *types.HealthMeasurement) error
	GetMeasurements(ctx context.Context, recordID string, limit int) ([]*types.HealthMeasurement, error)

	// Health alerts (dedup handled by caller via GetLatestAlert)
	CreateAlert(ctx context.Context, alert *types.HealthAlert) error
	GetLatestAlert(ctx context.Context, recordID string, severity types.AlertSeverity) (*types.HealthAlert, error)
	ListAlerts(ctx context.Context, unacknowledgedOnly bool, limit int) ([]*types.HealthAlert, error)
	AcknowledgeAlert(ctx context.Context, alertID string) error

	// Discovery runs
	CreateRun(ctx context.Context, run *types.DiscoveryRun) error
	UpdateRun(ctx context.Context, run *types.DiscoveryRun) error
	GetRun(ctx context.Context, id string) (*types.DiscoveryRun, error)
	ListRuns(ctx context.Context, limit int) ([]*types.DiscoveryRun, error)

	// Sync bookkeeping (key/value)
	GetMeta(ctx context.Context, key string) (string, error)
	SetMeta(ctx context.Context, key, value string) error

	// Aggregates for reporting
	GetStatistics(ctx context.Context) (*sqlite.CatalogStatistics, error)

	// Lifecycle
	Close() error
}

// Config holds database configuration.
type Config struct {
	// Path is the SQLite database file path.
	// Special value ":memory:" creates an in-memory database (useful for tests).
	Path string
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Path: ".mcpscout/catalog.db",
	}
}

// NewStorage creates a new SQLite storage backend.
func NewStorage(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Path == "" {
		cfg.Path = ".mcpscout/catalog.db"
	}
	return sqlite.New(cfg.Path)
}
