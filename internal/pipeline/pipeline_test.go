package pipeline

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpscout/mcpscout/internal/storage"
	"github.com/mcpscout/mcpscout/internal/types"
)

func testStore(t *testing.T) storage.Storage {
	t.Helper()
	store, err := storage.NewStorage(context.Background(), &storage.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testConfig(githubURL string) *Config {
	cfg := DefaultConfig()
	cfg.GitHubBaseURL = githubURL
	cfg.RequestsPerSec = 1000 // no throttling in tests
	cfg.RetryBaseDelay = time.Millisecond
	cfg.DirectoryOffline = true
	cfg.MaxResults = 10
	cfg.Concurrency = 2
	cfg.ItemSpacing = 0
	return cfg
}

// githubStub serves two repositories on every search pattern plus metadata
// and a manifest for one of them.
func githubStub(t *testing.T) *httptest.Server {
	t.Helper()

	manifest := base64.StdEncoding.EncodeToString([]byte(`{
		"name": "mcp-weather",
		"dependencies": {"@modelcontextprotocol/sdk": "^1.0.0"}
	}`))

	mux := http.NewServeMux()
	mux.HandleFunc("/search/repositories", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"total_count": 2,
			"items": []map[string]interface{}{
				{"full_name": "acme/mcp-weather", "description": "an mcp server for weather", "language": "TypeScript", "stargazers_count": 500},
				{"full_name": "acme/notes", "description": "personal notes", "stargazers_count": 1},
			},
		})
	})
	mux.HandleFunc("/repos/acme/mcp-weather", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"full_name": "acme/mcp-weather", "description": "an mcp server for weather",
			"language": "TypeScript", "stargazers_count": 500,
		})
	})
	mux.HandleFunc("/repos/acme/mcp-weather/contents/package.json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"content": manifest, "encoding": "base64"})
	})
	mux.HandleFunc("/repos/acme/notes", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"full_name": "acme/notes", "description": "personal notes", "stargazers_count": 1,
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRunSuperDiscoveryEndToEnd(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	srv := githubStub(t)

	o := New(store, testConfig(srv.URL), nil)
	report, err := o.RunSuperDiscovery(ctx)
	require.NoError(t, err)

	assert.Equal(t, types.RunCompleted, report.Status)
	assert.Equal(t, 2, report.Stats.Discovered)
	assert.Equal(t, 2, report.Stats.Analyzed)
	assert.Greater(t, report.Stats.Synced, 0)
	assert.Greater(t, report.Stats.Merged, 0)
	assert.Equal(t, report.Stats.Merged, report.Stats.HealthChecks)

	// The SDK-bearing repository classified as a strong candidate
	det, err := store.GetDetection(ctx, "acme/mcp-weather")
	require.NoError(t, err)
	assert.True(t, det.IsCandidate)
	assert.Equal(t, types.BandHigh, det.Band)

	// The unrelated repository did not
	other, err := store.GetDetection(ctx, "acme/notes")
	require.NoError(t, err)
	assert.False(t, other.IsCandidate)

	// The run record is persisted and complete
	run, err := store.GetRun(ctx, report.RunID)
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, run.Status)
	assert.NotNil(t, run.FinishedAt)
	assert.Equal(t, PhaseReport, run.Phase)

	// Every merged record got a health measurement this pass
	records, err := store.ListMergedRecords(ctx, 0)
	require.NoError(t, err)
	require.NotEmpty(t, records)
	for _, rec := range records {
		ms, err := store.GetMeasurements(ctx, rec.ID, 5)
		require.NoError(t, err)
		assert.NotEmpty(t, ms, "record %s", rec.ID)
	}

	// The zero-confidence repository stays out of the unified catalog
	_, err = store.GetMergedRecord(ctx, "repo:acme/notes")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestRunDiscoveryProcessesEveryBatch(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	srv := githubStub(t)

	cfg := testConfig(srv.URL)
	cfg.BatchSize = 1

	o := New(store, cfg, nil)
	report, err := o.RunDiscovery(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Stats.Analyzed)
}

func TestRunDiscoveryKeepsPartialResultOnQuotaExhaustion(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)

	// First search call succeeds, the rest hit the quota wall
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/search/repositories", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls > 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"total_count": 1,
			"items": []map[string]interface{}{
				{"full_name": "acme/mcp-early", "description": "mcp server found before the quota", "stargazers_count": 5},
			},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := testConfig(srv.URL)
	cfg.FetchDetails = false

	o := New(store, cfg, nil)
	report, err := o.RunDiscovery(ctx)
	require.NoError(t, err)

	assert.Equal(t, types.RunCompleted, report.Status)
	assert.Equal(t, 1, report.Stats.Discovered)
	assert.NotEmpty(t, report.Errors)

	_, err = store.GetRepository(ctx, "acme/mcp-early")
	assert.NoError(t, err)
}

func TestRunDiscoveryFailsWhenNothingDiscoverable(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/search/repositories", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	o := New(store, testConfig(srv.URL), nil)
	report, err := o.RunDiscovery(ctx)
	require.Error(t, err)

	assert.Equal(t, types.RunFailed, report.Status)

	run, err := store.GetRun(ctx, report.RunID)
	require.NoError(t, err)
	assert.Equal(t, types.RunFailed, run.Status)
	assert.NotEmpty(t, run.Errors)
}

func TestResumeSkipsCompletedPhases(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)

	// A run that died entering the sync phase
	require.NoError(t, store.CreateRun(ctx, &types.DiscoveryRun{
		ID: "run-resume", Status: types.RunFailed, Phase: PhaseSync, StartedAt: time.Now(),
	}))

	cfg := testConfig("http://127.0.0.1:0") // scanner must never be called
	cfg.ResumeRunID = "run-resume"

	o := New(store, cfg, nil)
	report, err := o.RunSuperDiscovery(ctx)
	require.NoError(t, err)

	assert.Equal(t, "run-resume", report.RunID)
	assert.Equal(t, types.RunCompleted, report.Status)
	assert.Zero(t, report.Stats.Discovered)
	assert.Zero(t, report.Stats.Analyzed)
	assert.Greater(t, report.Stats.Synced, 0)
}

func TestResumeRefusesCompletedRun(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)

	require.NoError(t, store.CreateRun(ctx, &types.DiscoveryRun{
		ID: "run-done", Status: types.RunCompleted, Phase: PhaseReport, StartedAt: time.Now(),
	}))

	cfg := testConfig("http://127.0.0.1:0")
	cfg.ResumeRunID = "run-done"

	o := New(store, cfg, nil)
	_, err := o.RunSuperDiscovery(ctx)
	assert.Error(t, err)
}

func TestPresetConfigs(t *testing.T) {
	quick := PresetConfig(PresetQuick)
	standard := PresetConfig(PresetStandard)
	deep := PresetConfig(PresetDeep)

	assert.Less(t, quick.MaxResults, standard.MaxResults)
	assert.Less(t, standard.MaxResults, deep.MaxResults)
	assert.False(t, quick.FetchDetails)
	assert.True(t, standard.FetchDetails)
	assert.True(t, deep.Strict)
	assert.False(t, standard.Strict)

	// Quick scans only popular repositories; deep raises the storage floor
	// alongside its strict thresholds
	assert.Greater(t, quick.MinStars, standard.MinStars)
	assert.Greater(t, deep.MinConfidence, standard.MinConfidence)
	assert.Equal(t, 10.0, standard.MinConfidence)

	// Every preset carries the full tunable surface
	for _, cfg := range []*Config{quick, standard, deep} {
		assert.Greater(t, cfg.MatchThreshold, 0.0, cfg.Preset)
		assert.Greater(t, cfg.BatchSize, 0, cfg.Preset)
		assert.Equal(t, 20, cfg.TrendWindow, cfg.Preset)
		assert.Equal(t, 100, cfg.ReliabilityWindow, cfg.Preset)
		assert.Equal(t, 0.5, cfg.SmoothingAlpha, cfg.Preset)
		assert.Equal(t, 0.5, cfg.ReliabilityThreshold, cfg.Preset)
	}

	// Unknown presets fall back to standard
	assert.Equal(t, standard, PresetConfig("nonsense"))
}

func TestLoadConfigFile(t *testing.T) {
	root := t.TempDir()

	// Missing file yields defaults
	cfg, err := LoadConfigFile(root)
	require.NoError(t, err)
	assert.Equal(t, PresetStandard, cfg.Preset)

	require.NoError(t, os.MkdirAll(filepath.Join(root, ".mcpscout"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".mcpscout", "config.yaml"), []byte(`
preset: deep
github:
  max_results: 25
  min_stars: 5
detection:
  min_confidence: 35
fusion:
  match_threshold: 0.75
directory:
  offline: true
  sync_interval: 2h
health:
  trend_window: 12
  smoothing_alpha: 0.3
  reliability_threshold: 0.6
concurrency: 3
batch_size: 7
`), 0o644))

	cfg, err = LoadConfigFile(root)
	require.NoError(t, err)
	assert.Equal(t, PresetDeep, cfg.Preset)
	assert.True(t, cfg.Strict)
	assert.Equal(t, 25, cfg.MaxResults)
	assert.Equal(t, 5, cfg.MinStars)
	assert.Equal(t, 35.0, cfg.MinConfidence)
	assert.Equal(t, 0.75, cfg.MatchThreshold)
	assert.True(t, cfg.DirectoryOffline)
	assert.Equal(t, 2*time.Hour, cfg.SyncInterval)
	assert.Equal(t, 12, cfg.TrendWindow)
	assert.Equal(t, 0.3, cfg.SmoothingAlpha)
	assert.Equal(t, 0.6, cfg.ReliabilityThreshold)
	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, 7, cfg.BatchSize)
}

func TestLoadConfigFileRejectsBadDuration(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".mcpscout"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".mcpscout", "config.yaml"), []byte(`
directory:
  sync_interval: not-a-duration
`), 0o644))

	_, err := LoadConfigFile(root)
	assert.Error(t, err)
}
