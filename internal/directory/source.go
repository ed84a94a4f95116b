// Package directory integrates the external curated server directory. The
// directory is a best-effort enrichment source: every operation has a live
// implementation and a deterministic offline implementation behind one
// DataSource interface, and the live client degrades to offline data on any
// transport failure.
package directory

import (
	"context"
	"time"
)

// Server is the directory's wire shape for one listed server.
type Server struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Category      string    `json:"category"`
	Language      string    `json:"language"`
	Capabilities  []string  `json:"capabilities"`
	RepositoryURL string    `json:"repository_url"`
	Verified      bool      `json:"verified"`
	HealthScore   float64   `json:"health_score"`
	Downloads     int       `json:"downloads"`
	Stars         int       `json:"stars"`
	InstallHint   string    `json:"install_hint"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Page is one page of the server listing.
type Page struct {
	Servers []Server `json:"servers"`
	Total   int      `json:"total"`
	Page    int      `json:"page"`
	PerPage int      `json:"per_page"`
	HasMore bool     `json:"has_more"`
}

// Category is one directory category.
type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Stats are directory-wide aggregates.
type Stats struct {
	TotalServers    int `json:"total_servers"`
	TotalCategories int `json:"total_categories"`
	VerifiedServers int `json:"verified_servers"`
}

// Filters narrow a server listing.
type Filters struct {
	Category string
	Language string
	Verified *bool
}

// DataSource is the directory capability. Live and offline implementations
// are polymorphic variants tested the same way.
type DataSource interface {
	ListServers(ctx context.Context, filters Filters, page, perPage int) (*Page, error)
	GetServer(ctx context.Context, id string) (*Server, error)
	Search(ctx context.Context, query string) ([]Server, error)
	Categories(ctx context.Context) ([]Category, error)
	Stats(ctx context.Context) (*Stats, error)
}
