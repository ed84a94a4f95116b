package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpscout/mcpscout/internal/types"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testRepo(fullName string) *types.Repository {
	now := time.Now().UTC().Truncate(time.Second)
	return &types.Repository{
		FullName:      fullName,
		Description:   "An MCP server for testing",
		HTMLURL:       "https://github.com/" + fullName,
		Language:      "TypeScript",
		Stars:         42,
		Topics:        []string{"mcp", "server"},
		CreatedAt:     now.AddDate(-1, 0, 0),
		UpdatedAt:     now,
		SearchPattern: "mcp-server",
	}
}

func TestUpsertRepositoryIsIdempotent(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	repo := testRepo("acme/mcp-weather")
	require.NoError(t, store.UpsertRepository(ctx, repo))
	require.NoError(t, store.UpsertRepository(ctx, repo))

	count, err := store.CountRepositories(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := store.GetRepository(ctx, "acme/mcp-weather")
	require.NoError(t, err)
	assert.Equal(t, repo.Description, got.Description)
	assert.Equal(t, []string{"mcp", "server"}, got.Topics)
}

func TestUpsertRepositoryPreservesDiscoveryTimestamp(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	repo := testRepo("acme/mcp-weather")
	repo.DiscoveredAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpsertRepository(ctx, repo))

	// Re-discovery with updated stars must not move the discovery timestamp
	again := testRepo("acme/mcp-weather")
	again.Stars = 100
	require.NoError(t, store.UpsertRepository(ctx, again))

	got, err := store.GetRepository(ctx, "acme/mcp-weather")
	require.NoError(t, err)
	assert.Equal(t, 100, got.Stars)
	assert.Equal(t, repo.DiscoveredAt, got.DiscoveredAt)
}

func TestGetRepositoryNotFound(t *testing.T) {
	store := setupTestDB(t)

	_, err := store.GetRepository(context.Background(), "ghost/repo")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestProfileRoundTrip(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertRepository(ctx, testRepo("acme/mcp-weather")))

	profile := &types.AnalysisProfile{
		RepoFullName:   "acme/mcp-weather",
		Language:       "TypeScript",
		InstallMethod:  "npm",
		Dependencies:   []string{"@modelcontextprotocol/sdk"},
		Capabilities:   []types.Capability{types.CapAPI, types.CapWeb},
		Indicators:     []string{"dependency:@modelcontextprotocol/sdk"},
		SeedConfidence: 25,
		HasReadme:      true,
		PackageName:    "mcp-weather",
		PackageVersion: "v1.2.0",
	}
	require.NoError(t, store.SaveProfile(ctx, profile))

	got, err := store.GetProfile(ctx, "acme/mcp-weather")
	require.NoError(t, err)
	assert.Equal(t, profile.Dependencies, got.Dependencies)
	assert.Equal(t, profile.Capabilities, got.Capabilities)
	assert.Equal(t, 25.0, got.SeedConfidence)
	assert.True(t, got.HasReadme)

	// Overwrite on re-analysis
	profile.SeedConfidence = 40
	require.NoError(t, store.SaveProfile(ctx, profile))
	got, err = store.GetProfile(ctx, "acme/mcp-weather")
	require.NoError(t, err)
	assert.Equal(t, 40.0, got.SeedConfidence)
}

func TestDetectionRoundTripAndCandidates(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	for _, name := range []string{"acme/high", "acme/low"} {
		require.NoError(t, store.UpsertRepository(ctx, testRepo(name)))
	}

	high := &types.Detection{
		RepoFullName: "acme/high",
		Confidence:   85,
		Band:         types.BandHigh,
		IsCandidate:  true,
		Positive:     []types.Indicator{{Name: "strong:mcp server", Weight: 20, Reason: "matched strong indicator"}},
		Label:        types.ClassDefinite,
	}
	low := &types.Detection{
		RepoFullName: "acme/low",
		Confidence:   10,
		Band:         types.BandMinimal,
		Label:        types.ClassUnlikely,
	}
	require.NoError(t, store.SaveDetection(ctx, high))
	require.NoError(t, store.SaveDetection(ctx, low))

	candidates, err := store.ListCandidates(ctx, 40)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "acme/high", candidates[0].RepoFullName)
	require.Len(t, candidates[0].Positive, 1)
	assert.Equal(t, 20.0, candidates[0].Positive[0].Weight)
}

func TestSaveDetectionRejectsOutOfBoundsConfidence(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	err := store.SaveDetection(ctx, &types.Detection{RepoFullName: "a/b", Confidence: 101})
	assert.Error(t, err)
	err = store.SaveDetection(ctx, &types.Detection{RepoFullName: "a/b", Confidence: -1})
	assert.Error(t, err)
}

func TestDirectoryServerUpsert(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	srv := &types.DirectoryServer{
		ExternalID:  "dir-001",
		Name:        "weather-server",
		Category:    "api",
		Verified:    true,
		Active:      true,
		HealthScore: 90,
		HealthTrend: types.TrendStable,
	}
	require.NoError(t, store.UpsertDirectoryServer(ctx, srv))

	// Deactivate instead of delete
	srv.Active = false
	require.NoError(t, store.UpsertDirectoryServer(ctx, srv))

	all, err := store.ListDirectoryServers(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	active, err := store.ListDirectoryServers(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestMergedRecordUpsertAndHealthUpdate(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	rec := &types.MergedRecord{
		ID:           "repo:acme/mcp-weather|dir:dir-001",
		RepoFullName: "acme/mcp-weather",
		DirectoryID:  "dir-001",
		Name:         "weather-server",
		Confidence:   92,
		Verified:     true,
		MatchScore:   0.87,
		MatchReasons: []string{"url match"},
		DataSources:  types.SourceBoth,
	}
	require.NoError(t, store.UpsertMergedRecord(ctx, rec))
	require.NoError(t, store.UpsertMergedRecord(ctx, rec))

	recs, err := store.ListMergedRecords(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, types.SourceBoth, recs[0].DataSources)

	require.NoError(t, store.UpdateRecordHealth(ctx, rec.ID, 75, types.HealthHealthy, types.TrendImproving, 80))
	got, err := store.GetMergedRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 75.0, got.HealthScore)
	assert.Equal(t, types.HealthHealthy, got.HealthStatus)
	assert.Equal(t, types.TrendImproving, got.HealthTrend)
}

func TestUpsertMergedRecordRejectsInconsistentProvenance(t *testing.T) {
	store := setupTestDB(t)

	err := store.UpsertMergedRecord(context.Background(), &types.MergedRecord{
		ID:          "bad",
		Name:        "bad",
		DataSources: types.SourceBoth, // no links populated
	})
	assert.Error(t, err)
}

func TestGetHighConfidenceRecords(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	for _, tc := range []struct {
		id         string
		confidence float64
	}{
		{"repo:a/one", 95},
		{"repo:a/two", 81},
		{"repo:a/three", 60},
	} {
		require.NoError(t, store.UpsertMergedRecord(ctx, &types.MergedRecord{
			ID:           tc.id,
			RepoFullName: tc.id,
			Name:         tc.id,
			Confidence:   tc.confidence,
			DataSources:  types.SourceScanner,
		}))
	}

	recs, err := store.GetHighConfidenceRecords(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 95.0, recs[0].Confidence)
}

func TestMeasurementsAreAppendOnlyAndOrdered(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.AppendMeasurement(ctx, &types.HealthMeasurement{
			RecordID:   "rec-1",
			Score:      float64(50 + i*10),
			Status:     types.HealthHealthy,
			Source:     types.MeasureEstimated,
			MeasuredAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	ms, err := store.GetMeasurements(ctx, "rec-1", 3)
	require.NoError(t, err)
	require.Len(t, ms, 3)
	// Newest first
	assert.Equal(t, 90.0, ms[0].Score)
	assert.Equal(t, 80.0, ms[1].Score)
}

func TestAlertLifecycle(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	alert := &types.HealthAlert{
		ID:       "alert-1",
		RecordID: "rec-1",
		Severity: types.SeverityCritical,
		Message:  "health critical",
	}
	require.NoError(t, store.CreateAlert(ctx, alert))

	latest, err := store.GetLatestAlert(ctx, "rec-1", types.SeverityCritical)
	require.NoError(t, err)
	assert.Equal(t, "alert-1", latest.ID)

	_, err = store.GetLatestAlert(ctx, "rec-1", types.SeverityWarning)
	assert.ErrorIs(t, err, types.ErrNotFound)

	require.NoError(t, store.AcknowledgeAlert(ctx, "alert-1"))
	open, err := store.ListAlerts(ctx, true, 10)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestRunLifecycle(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	run := &types.DiscoveryRun{
		ID:         "run-1",
		ConfigJSON: `{"max_results":100}`,
	}
	require.NoError(t, store.CreateRun(ctx, run))

	run.Phase = "analyze"
	run.Stats.Discovered = 12
	run.Errors = append(run.Errors, "item failed: acme/broken")
	require.NoError(t, store.UpdateRun(ctx, run))

	finished := time.Now().UTC()
	run.Status = types.RunCompleted
	run.FinishedAt = &finished
	require.NoError(t, store.UpdateRun(ctx, run))

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, got.Status)
	assert.Equal(t, 12, got.Stats.Discovered)
	assert.Len(t, got.Errors, 1)
	require.NotNil(t, got.FinishedAt)
}

func TestMetaRoundTrip(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	_, err := store.GetMeta(ctx, "last_sync")
	assert.ErrorIs(t, err, types.ErrNotFound)

	require.NoError(t, store.SetMeta(ctx, "last_sync", "2026-08-24T00:00:00Z"))
	v, err := store.GetMeta(ctx, "last_sync")
	require.NoError(t, err)
	assert.Equal(t, "2026-08-24T00:00:00Z", v)
}

func TestGetStatistics(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertRepository(ctx, testRepo("acme/one")))
	require.NoError(t, store.SaveDetection(ctx, &types.Detection{
		RepoFullName: "acme/one", Confidence: 85, Band: types.BandHigh,
		IsCandidate: true, Label: types.ClassDefinite,
	}))
	require.NoError(t, store.UpsertDirectoryServer(ctx, &types.DirectoryServer{
		ExternalID: "dir-001", Name: "one", Category: "api", Active: true,
	}))
	require.NoError(t, store.UpsertMergedRecord(ctx, &types.MergedRecord{
		ID: "repo:acme/one", RepoFullName: "acme/one", Name: "one",
		Confidence: 85, DataSources: types.SourceScanner,
	}))

	stats, err := store.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalRepositories)
	assert.Equal(t, 1, stats.TotalCandidates)
	assert.Equal(t, 1, stats.TotalDirectoryActive)
	assert.Equal(t, 1, stats.TotalMergedRecords)
	assert.Equal(t, 1, stats.ByBand["high"])
	assert.Equal(t, 1, stats.ByLanguage["TypeScript"])
	assert.Equal(t, 1, stats.ByCategory["api"])
	assert.Equal(t, 1, stats.BySource["scanner"])
}
