package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpscout/mcpscout/internal/storage"
	"github.com/mcpscout/mcpscout/internal/types"
)

func testServer(t *testing.T) (*Server, storage.Storage) {
	t.Helper()
	store, err := storage.NewStorage(context.Background(), &storage.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewServer(store, "127.0.0.1:0", nil), store
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), out))
}

func TestListRecords(t *testing.T) {
	s, store := testServer(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertMergedRecord(ctx, &types.MergedRecord{
		ID: "dir:one", DirectoryID: "one", Name: "one", Confidence: 90,
		DataSources: types.SourceDirectory,
	}))
	require.NoError(t, store.UpsertMergedRecord(ctx, &types.MergedRecord{
		ID: "dir:two", DirectoryID: "two", Name: "two", Confidence: 40,
		DataSources: types.SourceDirectory,
	}))

	rr := get(t, s, "/api/v1/records")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Records []types.MergedRecord `json:"records"`
		Count   int                  `json:"count"`
	}
	decode(t, rr, &body)
	assert.Equal(t, 2, body.Count)

	// High-confidence filter drops the weak record
	rr = get(t, s, "/api/v1/records?high_confidence=true")
	decode(t, rr, &body)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "dir:one", body.Records[0].ID)
}

func TestGetRecordWithHistory(t *testing.T) {
	s, store := testServer(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertMergedRecord(ctx, &types.MergedRecord{
		ID: "repo:acme/thing", RepoFullName: "acme/thing", Name: "thing",
		DataSources: types.SourceScanner,
	}))
	require.NoError(t, store.AppendMeasurement(ctx, &types.HealthMeasurement{
		RecordID: "repo:acme/thing", Score: 75, Status: types.HealthHealthy,
		Source: types.MeasureEstimated, MeasuredAt: time.Now(),
	}))

	rr := get(t, s, "/api/v1/records/"+url.PathEscape("repo:acme/thing"))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Record       types.MergedRecord        `json:"record"`
		Measurements []types.HealthMeasurement `json:"measurements"`
	}
	decode(t, rr, &body)
	assert.Equal(t, "repo:acme/thing", body.Record.ID)
	require.Len(t, body.Measurements, 1)
	assert.Equal(t, 75.0, body.Measurements[0].Score)
}

func TestGetRecordNotFound(t *testing.T) {
	s, _ := testServer(t)
	rr := get(t, s, "/api/v1/records/nope")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestStats(t *testing.T) {
	s, store := testServer(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertRepository(ctx, &types.Repository{
		FullName: "acme/a", Language: "Go", DiscoveredAt: time.Now(),
	}))

	rr := get(t, s, "/api/v1/stats")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		TotalRepositories int            `json:"total_repositories"`
		ByLanguage        map[string]int `json:"by_language"`
	}
	decode(t, rr, &body)
	assert.Equal(t, 1, body.TotalRepositories)
	assert.Equal(t, 1, body.ByLanguage["Go"])
}

func TestListAlertsUnacknowledgedFilter(t *testing.T) {
	s, store := testServer(t)
	ctx := context.Background()

	require.NoError(t, store.CreateAlert(ctx, &types.HealthAlert{
		ID: "a1", RecordID: "dir:x", Severity: types.SeverityCritical,
		Message: "down", CreatedAt: time.Now(),
	}))
	require.NoError(t, store.CreateAlert(ctx, &types.HealthAlert{
		ID: "a2", RecordID: "dir:y", Severity: types.SeverityWarning,
		Message: "slow", CreatedAt: time.Now(),
	}))
	require.NoError(t, store.AcknowledgeAlert(ctx, "a2"))

	var body struct {
		Count int `json:"count"`
	}
	decode(t, get(t, s, "/api/v1/alerts"), &body)
	assert.Equal(t, 2, body.Count)

	decode(t, get(t, s, "/api/v1/alerts?unacknowledged=true"), &body)
	assert.Equal(t, 1, body.Count)
}

func TestGetRun(t *testing.T) {
	s, store := testServer(t)
	ctx := context.Background()

	require.NoError(t, store.CreateRun(ctx, &types.DiscoveryRun{
		ID: "run-1", Status: types.RunCompleted, Phase: "report", StartedAt: time.Now(),
	}))

	rr := get(t, s, "/api/v1/runs/run-1")
	require.Equal(t, http.StatusOK, rr.Code)

	var run types.DiscoveryRun
	decode(t, rr, &run)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, types.RunCompleted, run.Status)

	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/v1/runs/run-404").Code)
}
