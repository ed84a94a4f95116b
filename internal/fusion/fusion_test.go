package fusion

import (
	"context"
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

func seedCandidate(t *testing.T, store storage.Storage, fullName, description, htmlURL string, confidence float64, caps ...types.Capability) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.UpsertRepository(ctx, &types.Repository{
		FullName: fullName, Description: description, HTMLURL: htmlURL,
		Stars: 200, DiscoveredAt: time.Now(),
	}))
	require.NoError(t, store.SaveProfile(ctx, &types.AnalysisProfile{
		RepoFullName: fullName, Capabilities: caps, AnalyzedAt: time.Now(),
	}))
	require.NoError(t, store.SaveDetection(ctx, &types.Detection{
		RepoFullName: fullName, Confidence: confidence, Band: types.BandHigh,
		Label: types.ClassDefinite, IsCandidate: true, DetectedAt: time.Now(),
	}))
}

func seedServer(t *testing.T, store storage.Storage, id, name, description, repoURL string, verified bool, caps ...types.Capability) {
	t.Helper()
	require.NoError(t, store.UpsertDirectoryServer(context.Background(), &types.DirectoryServer{
		ExternalID: id, Name: name, Description: description, RepositoryURL: repoURL,
		Verified: verified, Active: true, HealthScore: 90, Stars: 150, Downloads: 5000,
		SyncedAt: time.Now(),
	}))
}

func TestMatchScoreIdenticalEntitiesIsPerfect(t *testing.T) {
	cand := &candidate{
		repo: &types.Repository{
			FullName:    "acme/weather-server",
			Description: "weather data server for forecasts",
			HTMLURL:     "https://github.com/acme/weather-server",
		},
		profile: &types.AnalysisProfile{Capabilities: []types.Capability{types.CapAPI, types.CapData}},
	}
	srv := &types.DirectoryServer{
		Name:          "weather-server",
		Description:   "weather data server for forecasts",
		RepositoryURL: "https://github.com/acme/weather-server",
		Capabilities:  []types.Capability{types.CapAPI, types.CapData},
	}

	score, reasons := matchScore(cand, srv)
	assert.InDelta(t, 1.0, score, 1e-9)
	assert.Len(t, reasons, 4)
}

func TestMatchScoreDisjointEntitiesIsZero(t *testing.T) {
	cand := &candidate{repo: &types.Repository{
		FullName: "acme/alpha", Description: "first thing", HTMLURL: "https://github.com/acme/alpha",
	}}
	srv := &types.DirectoryServer{
		Name: "omega", Description: "completely unrelated", RepositoryURL: "https://gitlab.com/zed/omega",
	}

	score, _ := matchScore(cand, srv)
	assert.Zero(t, score)
}

func TestNormalizeURLVariants(t *testing.T) {
	want := "github.com/acme/server"
	for _, raw := range []string{
		"https://github.com/acme/server",
		"http://github.com/acme/server/",
		"https://www.github.com/acme/server.git",
		"GitHub.com/Acme/Server",
	} {
		assert.Equal(t, want, normalizeURL(raw), raw)
	}
}

func TestJaccardEmptySetsScoreZero(t *testing.T) {
	assert.Zero(t, jaccard(tokenize(""), tokenize("")))
	assert.Zero(t, jaccard(tokenize("words here"), tokenize("")))
}

func TestMergeFusesMatchingPair(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)

	seedCandidate(t, store, "acme/weather-server", "weather data server", "https://github.com/acme/weather-server", 80, types.CapAPI)
	seedServer(t, store, "ext-1", "weather-server", "weather data server", "https://github.com/acme/weather-server", true, types.CapData)

	m := NewMerger(store, nil)
	result, err := m.Merge(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Fused)
	assert.Zero(t, result.ScannerOnly)
	assert.Zero(t, result.DirectoryOnly)

	rec, err := store.GetMergedRecord(ctx, FusedID("acme/weather-server", "ext-1"))
	require.NoError(t, err)
	assert.Equal(t, types.SourceBoth, rec.DataSources)
	assert.Equal(t, "acme/weather-server", rec.RepoFullName)
	assert.Equal(t, "ext-1", rec.DirectoryID)
	// 80 scanner + 10 verified + 90/10 health
	assert.Equal(t, 99.0, rec.Confidence)
	assert.ElementsMatch(t, []types.Capability{types.CapAPI, types.CapData}, rec.Capabilities)
	assert.GreaterOrEqual(t, rec.MatchScore, DefaultMatchThreshold)
	assert.NotEmpty(t, rec.MatchReasons)
}

func TestMatchScoreIdenticalShortNames(t *testing.T) {
	// Tokenization drops short words; equal strings must still match
	cand := &candidate{repo: &types.Repository{
		FullName:    "acme/io",
		Description: "io",
		HTMLURL:     "https://github.com/acme/io",
	}}
	srv := &types.DirectoryServer{
		Name:          "io",
		Description:   "io",
		RepositoryURL: "https://github.com/acme/io",
	}

	score, _ := matchScore(cand, srv)
	assert.InDelta(t, 0.9, score, 1e-9)
}

func TestFusedDisplayFieldsRequireVerification(t *testing.T) {
	ctx := context.Background()

	t.Run("unverified directory never overrides the repository", func(t *testing.T) {
		store := testStore(t)
		seedCandidate(t, store, "acme/weather-server", "weather data server", "https://github.com/acme/weather-server", 80)
		seedServer(t, store, "ext-u", "totally-different-listing", "weather data server", "https://github.com/acme/weather-server", false)

		_, err := NewMerger(store, nil).Merge(ctx)
		require.NoError(t, err)

		rec, err := store.GetMergedRecord(ctx, FusedID("acme/weather-server", "ext-u"))
		require.NoError(t, err)
		assert.Equal(t, "weather-server", rec.Name)
		assert.Equal(t, "weather data server", rec.Description)
	})

	t.Run("verified directory wins", func(t *testing.T) {
		store := testStore(t)
		seedCandidate(t, store, "acme/weather-server", "weather data server", "https://github.com/acme/weather-server", 80)
		seedServer(t, store, "ext-v", "Weather Server Pro", "curated weather data server", "https://github.com/acme/weather-server", true)

		_, err := NewMerger(store, nil).Merge(ctx)
		require.NoError(t, err)

		rec, err := store.GetMergedRecord(ctx, FusedID("acme/weather-server", "ext-v"))
		require.NoError(t, err)
		assert.Equal(t, "Weather Server Pro", rec.Name)
		assert.Equal(t, "curated weather data server", rec.Description)
	})

	t.Run("empty preferred field falls back to the other source", func(t *testing.T) {
		store := testStore(t)
		seedCandidate(t, store, "acme/weather-server", "", "https://github.com/acme/weather-server", 80)
		seedServer(t, store, "ext-f", "weather-server", "directory-only description", "https://github.com/acme/weather-server", false)

		_, err := NewMerger(store, nil).Merge(ctx)
		require.NoError(t, err)

		rec, err := store.GetMergedRecord(ctx, FusedID("acme/weather-server", "ext-f"))
		require.NoError(t, err)
		assert.Equal(t, "weather-server", rec.Name)
		assert.Equal(t, "directory-only description", rec.Description)
	})
}

func TestMergeSkipsDetectionsBelowConfidenceFloor(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)

	seedCandidate(t, store, "acme/not-a-server", "personal notes", "https://github.com/acme/not-a-server", 0)
	seedCandidate(t, store, "acme/real-server", "protocol server", "https://github.com/acme/real-server", 60)

	m := NewMerger(store, &MergerConfig{MinConfidence: 10})
	result, err := m.Merge(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, result.ScannerOnly)

	records, err := store.ListMergedRecords(ctx, 100)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "acme/real-server", records[0].RepoFullName)
}

func TestMergeEveryInputLandsInExactlyOneRecord(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)

	// One matching pair, one lone repo, one lone server
	seedCandidate(t, store, "acme/db-server", "database protocol server", "https://github.com/acme/db-server", 75, types.CapDatabase)
	seedServer(t, store, "ext-db", "db-server", "database protocol server", "https://github.com/acme/db-server", false, types.CapDatabase)
	seedCandidate(t, store, "acme/solo-repo", "standalone scanned server", "https://github.com/acme/solo-repo", 60)
	seedServer(t, store, "ext-solo", "curated-only", "directory exclusive listing", "https://example.com/curated", true)

	m := NewMerger(store, nil)
	result, err := m.Merge(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Fused)
	assert.Equal(t, 1, result.ScannerOnly)
	assert.Equal(t, 1, result.DirectoryOnly)
	assert.Zero(t, result.Failed)

	records, err := store.ListMergedRecords(ctx, 100)
	require.NoError(t, err)
	require.Len(t, records, 3)

	repoSeen := make(map[string]int)
	dirSeen := make(map[string]int)
	for _, rec := range records {
		require.NoError(t, rec.Validate())
		if rec.RepoFullName != "" {
			repoSeen[rec.RepoFullName]++
		}
		if rec.DirectoryID != "" {
			dirSeen[rec.DirectoryID]++
		}
	}
	assert.Equal(t, map[string]int{"acme/db-server": 1, "acme/solo-repo": 1}, repoSeen)
	assert.Equal(t, map[string]int{"ext-db": 1, "ext-solo": 1}, dirSeen)
}

func TestMergeGreedyOneToOne(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)

	// Two repos that both resemble one server; only the better match links
	seedCandidate(t, store, "acme/files-server", "filesystem access server", "https://github.com/acme/files-server", 70, types.CapFilesystem)
	seedCandidate(t, store, "fork/files-server", "filesystem access server", "https://github.com/fork/files-server", 70, types.CapFilesystem)
	seedServer(t, store, "ext-fs", "files-server", "filesystem access server", "https://github.com/acme/files-server", false, types.CapFilesystem)

	m := NewMerger(store, nil)
	result, err := m.Merge(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Fused)
	assert.Equal(t, 1, result.ScannerOnly)

	// The URL match decides it: acme wins the link
	_, err = store.GetMergedRecord(ctx, FusedID("acme/files-server", "ext-fs"))
	assert.NoError(t, err)
	_, err = store.GetMergedRecord(ctx, ScannerID("fork/files-server"))
	assert.NoError(t, err)
}

func TestDirectoryOnlyConfidenceEstimate(t *testing.T) {
	tests := []struct {
		name string
		srv  types.DirectoryServer
		want float64
	}{
		{"baseline", types.DirectoryServer{ExternalID: "a", Name: "a"}, 50},
		{"verified", types.DirectoryServer{ExternalID: "b", Name: "b", Verified: true}, 80},
		{"healthy verified", types.DirectoryServer{ExternalID: "c", Name: "c", Verified: true, HealthScore: 85}, 95},
		{
			"everything capped at 100",
			types.DirectoryServer{ExternalID: "d", Name: "d", Verified: true, HealthScore: 90, Downloads: 5000, Stars: 500},
			100,
		},
		{"popular unverified", types.DirectoryServer{ExternalID: "e", Name: "e", Downloads: 2000, Stars: 150}, 65},
	}

	m := NewMerger(nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := m.directoryRecord(&tt.srv, time.Now())
			assert.Equal(t, tt.want, rec.Confidence)
			assert.Equal(t, types.SourceDirectory, rec.DataSources)
		})
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)

	seedCandidate(t, store, "acme/repeat", "repeatable server", "https://github.com/acme/repeat", 55)

	m := NewMerger(store, nil)
	_, err := m.Merge(ctx)
	require.NoError(t, err)
	_, err = m.Merge(ctx)
	require.NoError(t, err)

	records, err := store.ListMergedRecords(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
