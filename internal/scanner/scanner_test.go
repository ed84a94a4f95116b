package scanner

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpscout/mcpscout/internal/types"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL:           srv.URL,
		RequestsPerSecond: 1000, // no throttling in tests
		RetryBaseDelay:    time.Millisecond,
	})
}

func searchItems(names ...string) []map[string]interface{} {
	items := make([]map[string]interface{}, 0, len(names))
	for _, n := range names {
		items = append(items, map[string]interface{}{
			"full_name":        n,
			"description":      "an mcp server",
			"language":         "TypeScript",
			"stargazers_count": 10,
		})
	}
	return items
}

func TestDiscoverDeduplicatesAcrossPatterns(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search/repositories", func(w http.ResponseWriter, r *http.Request) {
		// Every pattern returns the same two repositories
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"total_count": 2,
			"items":       searchItems("acme/mcp-weather", "acme/mcp-files"),
		})
	})

	c := testClient(t, mux)
	repos, stats, err := c.Discover(context.Background(), DiscoverOptions{MaxResults: 50})
	require.NoError(t, err)

	assert.Len(t, repos, 2)
	assert.Equal(t, len(searchPatterns), stats.PatternsSearched)
	assert.Equal(t, 2*(len(searchPatterns)-1), stats.Deduplicated)
}

func TestDiscoverStopsAtMaxResults(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search/repositories", func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		names := make([]string, perPage)
		for i := range names {
			names[i] = fmt.Sprintf("acme/repo-%d-%d", page, i)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"total_count": 100000,
			"items":       searchItems(names...),
		})
	})

	c := testClient(t, mux)
	repos, _, err := c.Discover(context.Background(), DiscoverOptions{MaxResults: 150})
	require.NoError(t, err)
	assert.Len(t, repos, 150)
}

func TestDiscoverBuildsQueryFilters(t *testing.T) {
	var gotQuery string
	mux := http.NewServeMux()
	mux.HandleFunc("/search/repositories", func(w http.ResponseWriter, r *http.Request) {
		if gotQuery == "" {
			gotQuery = r.URL.Query().Get("q")
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"items": []interface{}{}})
	})

	c := testClient(t, mux)
	_, _, err := c.Discover(context.Background(), DiscoverOptions{
		MaxResults: 10,
		MinStars:   5,
		Language:   "go",
	})
	require.NoError(t, err)

	assert.Contains(t, gotQuery, "in:name,description,readme")
	assert.Contains(t, gotQuery, "archived:false")
	assert.Contains(t, gotQuery, "stars:>=5")
	assert.Contains(t, gotQuery, "language:go")
}

func TestGetJSONRetriesAfterRateLimit(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/search/repositories", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"items": searchItems("acme/mcp-weather"),
		})
	})

	c := testClient(t, mux)
	repos, _, err := c.Discover(context.Background(), DiscoverOptions{MaxResults: 1})
	require.NoError(t, err)
	assert.Len(t, repos, 1)
	assert.Equal(t, 2, calls)
}

func TestGetJSONSurfacesQuotaErrorAfterRetries(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search/repositories", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	c := testClient(t, mux)
	_, _, err := c.Discover(context.Background(), DiscoverOptions{MaxResults: 1})
	require.Error(t, err)

	var qe *types.QuotaError
	require.ErrorAs(t, err, &qe)
	assert.True(t, qe.Secondary)
}

func TestGetDetailsSwallowsFileNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/mcp-weather", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"full_name": "acme/mcp-weather",
			"language":  "TypeScript",
		})
	})
	mux.HandleFunc("/repos/acme/mcp-weather/contents/", func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/repos/acme/mcp-weather/contents/")
		switch path {
		case "package.json":
			content := base64.StdEncoding.EncodeToString([]byte(`{"name":"mcp-weather"}`))
			_ = json.NewEncoder(w).Encode(map[string]string{
				"content": content, "encoding": "base64",
			})
		case "":
			_ = json.NewEncoder(w).Encode([]map[string]string{
				{"name": "package.json", "type": "file"},
				{"name": "src", "type": "dir"},
			})
		default:
			http.NotFound(w, r)
		}
	})

	c := testClient(t, mux)
	details, err := c.GetDetails(context.Background(), "acme", "mcp-weather")
	require.NoError(t, err)

	assert.Equal(t, "acme/mcp-weather", details.Repository.FullName)
	assert.Equal(t, `{"name":"mcp-weather"}`, details.Files["package.json"])
	assert.NotContains(t, details.Files, "Cargo.toml")
	assert.Equal(t, []string{"package.json", "src"}, details.Listing)
}

func TestGetDetailsRepoNotFound(t *testing.T) {
	c := testClient(t, http.NotFoundHandler())
	_, err := c.GetDetails(context.Background(), "ghost", "repo")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestCheckSearchQuota(t *testing.T) {
	remaining := 2
	mux := http.NewServeMux()
	mux.HandleFunc("/rate_limit", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"resources": map[string]interface{}{
				"core":   map[string]int{"limit": 5000, "remaining": 4000, "reset": 1800000000},
				"search": map[string]int{"limit": 30, "remaining": remaining, "reset": 1800000000},
			},
		})
	})

	c := testClient(t, mux)

	require.NoError(t, c.CheckSearchQuota(context.Background(), 2))

	err := c.CheckSearchQuota(context.Background(), 10)
	require.Error(t, err)
	var ce *types.ConfigError
	assert.ErrorAs(t, err, &ce)
}

func TestGetRateLimitStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rate_limit", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"resources": map[string]interface{}{
				"core":   map[string]int{"limit": 5000, "remaining": 4999, "reset": 1800000000},
				"search": map[string]int{"limit": 30, "remaining": 29, "reset": 1800000000},
			},
		})
	})

	c := testClient(t, mux)
	status, err := c.GetRateLimitStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4999, status.CoreRemaining)
	assert.Equal(t, 29, status.SearchRemaining)
	assert.Equal(t, 30, status.SearchLimit)
}
