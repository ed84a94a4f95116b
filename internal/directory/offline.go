package directory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mcpscout/mcpscout/internal/types"
)

// offlineCatalogSize is the number of synthetic servers the offline source
// serves.
const offlineCatalogSize = 24

// offlineNames seed the synthetic catalog. Indexing into these tables keeps
// every offline response stable across runs.
var offlineNames = []string{
	"filesystem", "postgres", "sqlite", "github", "gitlab", "slack",
	"memory", "fetch", "puppeteer", "brave-search", "google-maps", "sentry",
}

var offlineCategories = []Category{
	{ID: "filesystem", Name: "File Systems", Count: 4},
	{ID: "database", Name: "Databases", Count: 4},
	{ID: "api", Name: "API Integrations", Count: 8},
	{ID: "search", Name: "Search", Count: 4},
	{ID: "monitoring", Name: "Monitoring", Count: 4},
}

var offlineLanguages = []string{"TypeScript", "Python", "Go"}

// OfflineSource serves synthetic-but-stable directory data of the same
// shape as the live API. It is a first-class operating mode, not a test
// stub: the directory is an optional enrichment source and the pipeline
// must keep working without it.
type OfflineSource struct{}

// NewOfflineSource creates the deterministic offline data source.
func NewOfflineSource() *OfflineSource {
	return &OfflineSource{}
}

// server deterministically generates the i-th synthetic server.
func (o *OfflineSource) server(i int) Server {
	name := fmt.Sprintf("%s-server", offlineNames[i%len(offlineNames)])
	if i >= len(offlineNames) {
		name = fmt.Sprintf("%s-%d", name, i/len(offlineNames))
	}
	category := offlineCategories[i%len(offlineCategories)]
	return Server{
		ID:            fmt.Sprintf("offline-%03d", i),
		Name:          name,
		Description:   fmt.Sprintf("MCP server for %s integration", offlineNames[i%len(offlineNames)]),
		Category:      category.ID,
		Language:      offlineLanguages[i%len(offlineLanguages)],
		Capabilities:  []string{category.ID},
		RepositoryURL: fmt.Sprintf("https://github.com/mcp-community/%s", name),
		Verified:      i%3 == 0,
		HealthScore:   float64(60 + (i*7)%40),
		Downloads:     1000 + i*137,
		Stars:         50 + i*11,
		InstallHint:   fmt.Sprintf("npx %s", name),
		UpdatedAt:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
	}
}

// ListServers pages through the synthetic catalog with the same pagination
// contract as the live API.
func (o *OfflineSource) ListServers(_ context.Context, filters Filters, page, perPage int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 10
	}

	var all []Server
	for i := 0; i < offlineCatalogSize; i++ {
		srv := o.server(i)
		if filters.Category != "" && srv.Category != filters.Category {
			continue
		}
		if filters.Language != "" && srv.Language != filters.Language {
			continue
		}
		if filters.Verified != nil && srv.Verified != *filters.Verified {
			continue
		}
		all = append(all, srv)
	}

	start := (page - 1) * perPage
	if start > len(all) {
		start = len(all)
	}
	end := start + perPage
	if end > len(all) {
		end = len(all)
	}

	return &Page{
		Servers: all[start:end],
		Total:   len(all),
		Page:    page,
		PerPage: perPage,
		HasMore: end < len(all),
	}, nil
}

// GetServer returns the synthetic server with the given id.
func (o *OfflineSource) GetServer(_ context.Context, id string) (*Server, error) {
	for i := 0; i < offlineCatalogSize; i++ {
		srv := o.server(i)
		if srv.ID == id {
			return &srv, nil
		}
	}
	return nil, types.ErrNotFound
}

// Search matches the query against names and descriptions.
func (o *OfflineSource) Search(_ context.Context, query string) ([]Server, error) {
	query = strings.ToLower(query)
	var out []Server
	for i := 0; i < offlineCatalogSize; i++ {
		srv := o.server(i)
		if strings.Contains(strings.ToLower(srv.Name), query) ||
			strings.Contains(strings.ToLower(srv.Description), query) {
			out = append(out, srv)
		}
	}
	return out, nil
}

// Categories returns the fixed synthetic category set.
func (o *OfflineSource) Categories(_ context.Context) ([]Category, error) {
	out := make([]Category, len(offlineCategories))
	copy(out, offlineCategories)
	return out, nil
}

// Stats returns aggregates over the synthetic catalog.
func (o *OfflineSource) Stats(_ context.Context) (*Stats, error) {
	verified := 0
	for i := 0; i < offlineCatalogSize; i++ {
		if o.server(i).Verified {
			verified++
		}
	}
	return &Stats{
		TotalServers:    offlineCatalogSize,
		TotalCategories: len(offlineCategories),
		VerifiedServers: verified,
	}, nil
}
