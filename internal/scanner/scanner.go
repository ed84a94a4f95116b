// Package scanner discovers candidate repositories through the code-hosting
// search API. It owns pagination, cross-pattern deduplication, and rate-limit
// handling; it does not judge what it finds.
package scanner

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/time/rate"

	"github.com/mcpscout/mcpscout/internal/types"
)

// searchPatterns is the fixed domain vocabulary: direct product-name
// variants, protocol-name variants, and vendor-qualified variants.
var searchPatterns = []string{
	"mcp-server",
	"mcp server",
	"model-context-protocol",
	"model context protocol server",
	"modelcontextprotocol",
	"anthropic mcp server",
}

// detailFiles is the fixed file set fetched per repository: manifests for
// the supported ecosystems, the readme, and canonical entry points.
var detailFiles = []string{
	"package.json",
	"pyproject.toml",
	"Cargo.toml",
	"go.mod",
	"requirements.txt",
	"README.md",
	"index.js",
	"server.js",
	"server.py",
	"main.go",
	"src/index.ts",
}

const (
	defaultBaseURL = "https://api.github.com"
	perPage        = 100
	maxRetries     = 3
)

// MinSearchBudget is the fewest search requests a discovery pass makes:
// one page per pattern.
func MinSearchBudget() int { return len(searchPatterns) }

// Config holds scanner client configuration.
type Config struct {
	// BaseURL overrides the API endpoint (tests point this at a stub).
	BaseURL string
	// Token is the API token; empty means unauthenticated.
	Token string
	// HTTPClient overrides the default client.
	HTTPClient *http.Client
	// RequestsPerSecond bounds the shared token budget for all calls.
	// Default: 2.
	RequestsPerSecond float64
	// RetryBaseDelay is the first exponential-backoff step. Default: 1s.
	RetryBaseDelay time.Duration
	Logger         hclog.Logger
}

// Client talks to the code-hosting search and content API. All requests
// flow through one shared rate limiter so concurrent workers contend for a
// single token budget.
type Client struct {
	baseURL    string
	token      string
	http       *http.Client
	limiter    *rate.Limiter
	retryDelay time.Duration
	logger     hclog.Logger
}

// NewClient creates a scanner client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		token:      cfg.Token,
		http:       cfg.HTTPClient,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		retryDelay: cfg.RetryBaseDelay,
		logger:     logger.Named("scanner"),
	}
}

// DiscoverOptions filter a discovery pass.
type DiscoverOptions struct {
	MaxResults      int
	MinStars        int
	IncludeArchived bool
	Language        string
}

// DiscoverStats summarizes one discovery pass.
type DiscoverStats struct {
	PatternsSearched int
	PagesFetched     int
	TotalHits        int
	Deduplicated     int
}

// Discover runs one search per configured query pattern, paginating until a
// short page or MaxResults, and deduplicates across patterns by full name.
// Within one pattern results keep page order; across patterns no order is
// guaranteed. On error the repositories found so far are returned alongside
// it, so quota exhaustion mid-scan still yields a usable partial result.
func (c *Client) Discover(ctx context.Context, opts DiscoverOptions) ([]*types.Repository, *DiscoverStats, error) {
	if opts.MaxResults <= 0 {
		opts.MaxResults = 200
	}

	stats := &DiscoverStats{}
	seen := make(map[string]bool)
	var repos []*types.Repository

	for _, pattern := range searchPatterns {
		stats.PatternsSearched++

		found, pages, err := c.searchPattern(ctx, pattern, opts)
		if err != nil {
			return repos, stats, fmt.Errorf("search for %q: %w", pattern, err)
		}
		stats.PagesFetched += pages
		stats.TotalHits += len(found)

		for _, repo := range found {
			if seen[repo.FullName] {
				stats.Deduplicated++
				continue
			}
			seen[repo.FullName] = true
			repos = append(repos, repo)
			if len(repos) >= opts.MaxResults {
				return repos, stats, nil
			}
		}
	}

	return repos, stats, nil
}

func (c *Client) searchPattern(ctx context.Context, pattern string, opts DiscoverOptions) ([]*types.Repository, int, error) {
	query := pattern + " in:name,description,readme"
	if !opts.IncludeArchived {
		query += " archived:false"
	}
	if opts.MinStars > 0 {
		query += fmt.Sprintf(" stars:>=%d", opts.MinStars)
	}
	if opts.Language != "" {
		query += " language:" + opts.Language
	}

	var repos []*types.Repository
	pages := 0
	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("q", query)
		params.Set("per_page", strconv.Itoa(perPage))
		params.Set("page", strconv.Itoa(page))

		var result searchResult
		if err := c.getJSON(ctx, "/search/repositories?"+params.Encode(), &result); err != nil {
			return nil, pages, err
		}
		pages++

		for _, item := range result.Items {
			repos = append(repos, item.toRepository(pattern))
		}

		// A short page means the pattern is exhausted
		if len(result.Items) < perPage || len(repos) >= opts.MaxResults {
			break
		}
	}
	return repos, pages, nil
}

// RepoDetails bundles repository metadata with the fetched file set and the
// top-level directory listing.
type RepoDetails struct {
	Repository *types.Repository
	Files      map[string]string
	Listing    []string
}

// GetDetails fetches repository metadata plus the fixed file set. File 404s
// are swallowed (absence is normal); other file errors are logged as
// warnings and the file is omitted.
func (c *Client) GetDetails(ctx context.Context, owner, name string) (*RepoDetails, error) {
	var item repoItem
	if err := c.getJSON(ctx, fmt.Sprintf("/repos/%s/%s", owner, name), &item); err != nil {
		return nil, fmt.Errorf("fetch repository %s/%s: %w", owner, name, err)
	}

	details := &RepoDetails{
		Repository: item.toRepository(""),
		Files:      make(map[string]string),
	}

	for _, path := range detailFiles {
		content, err := c.getFileContent(ctx, owner, name, path)
		if err != nil {
			if err == types.ErrNotFound {
				continue
			}
			c.logger.Warn("failed to fetch file", "repo", owner+"/"+name, "path", path, "error", err)
			continue
		}
		details.Files[path] = content
	}

	listing, err := c.getListing(ctx, owner, name)
	if err != nil && err != types.ErrNotFound {
		c.logger.Warn("failed to fetch directory listing", "repo", owner+"/"+name, "error", err)
	}
	details.Listing = listing

	return details, nil
}

func (c *Client) getFileContent(ctx context.Context, owner, name, path string) (string, error) {
	var file struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("/repos/%s/%s/contents/%s", owner, name, path), &file); err != nil {
		return "", err
	}
	if file.Encoding == "base64" {
		decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(file.Content, "\n", ""))
		if err != nil {
			return "", &types.ParseError{File: path, Err: err}
		}
		return string(decoded), nil
	}
	return file.Content, nil
}

func (c *Client) getListing(ctx context.Context, owner, name string) ([]string, error) {
	var entries []struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("/repos/%s/%s/contents/", owner, name), &entries); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return names, nil
}

// RateLimitStatus reports remaining quota for the general and search APIs.
type RateLimitStatus struct {
	CoreRemaining   int
	CoreLimit       int
	CoreReset       time.Time
	SearchRemaining int
	SearchLimit     int
	SearchReset     time.Time
}

// GetRateLimitStatus exposes both quota buckets.
func (c *Client) GetRateLimitStatus(ctx context.Context) (*RateLimitStatus, error) {
	var result struct {
		Resources struct {
			Core   rateBucket `json:"core"`
			Search rateBucket `json:"search"`
		} `json:"resources"`
	}
	if err := c.getJSON(ctx, "/rate_limit", &result); err != nil {
		return nil, fmt.Errorf("fetch rate limit: %w", err)
	}
	return &RateLimitStatus{
		CoreRemaining:   result.Resources.Core.Remaining,
		CoreLimit:       result.Resources.Core.Limit,
		CoreReset:       time.Unix(result.Resources.Core.Reset, 0).UTC(),
		SearchRemaining: result.Resources.Search.Remaining,
		SearchLimit:     result.Resources.Search.Limit,
		SearchReset:     time.Unix(result.Resources.Search.Reset, 0).UTC(),
	}, nil
}

// CheckSearchQuota fails fast with a ConfigError when the search quota
// cannot cover the requested batch. Callers run this before large batches.
func (c *Client) CheckSearchQuota(ctx context.Context, needed int) error {
	status, err := c.GetRateLimitStatus(ctx)
	if err != nil {
		return err
	}
	if status.SearchRemaining < needed {
		return &types.ConfigError{Reason: fmt.Sprintf(
			"insufficient search quota: need %d requests, %d remaining (resets %s)",
			needed, status.SearchRemaining, status.SearchReset.Format(time.RFC3339))}
	}
	return nil
}

type rateBucket struct {
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	Reset     int64 `json:"reset"`
}

// getJSON performs a rate-limited GET with retry handling for quota and
// transient failures.
func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		body, retryIn, err := c.doOnce(ctx, path)
		if err == nil {
			if unmarshalErr := json.Unmarshal(body, out); unmarshalErr != nil {
				return &types.ParseError{File: path, Err: unmarshalErr}
			}
			return nil
		}
		if err == types.ErrNotFound {
			return err
		}

		lastErr = err
		if retryIn < 0 {
			// Not retryable
			return err
		}
		if attempt == maxRetries {
			break
		}
		if retryIn == 0 {
			// Exponential backoff for transient failures
			retryIn = c.retryDelay * time.Duration(1<<uint(attempt))
		}
		c.logger.Debug("retrying request", "path", path, "attempt", attempt+1, "wait", retryIn)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryIn):
		}
	}
	return lastErr
}

// doOnce performs a single request. The second return value is the delay
// before a retry should be attempted: negative means do not retry, zero
// means use backoff, positive is a server-specified delay.
func (c *Client) doOnce(ctx context.Context, path string) ([]byte, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, -1, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, &types.TransientError{Op: "GET " + path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, &types.TransientError{Op: "read " + path, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, 0, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, -1, types.ErrNotFound
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		return nil, c.rateLimitDelay(resp), c.rateLimitError(resp)
	case resp.StatusCode >= 500:
		return nil, 0, &types.TransientError{Op: "GET " + path,
			Err: fmt.Errorf("server error: %s", resp.Status)}
	default:
		return nil, -1, fmt.Errorf("unexpected status %s for %s", resp.Status, path)
	}
}

// rateLimitDelay extracts how long the server wants us to wait. The primary
// limit reports a reset epoch; the secondary (abuse) limit sets Retry-After.
func (c *Client) rateLimitDelay(resp *http.Response) time.Duration {
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	if resp.Header.Get("X-RateLimit-Remaining") == "0" {
		if reset := resp.Header.Get("X-RateLimit-Reset"); reset != "" {
			if epoch, err := strconv.ParseInt(reset, 10, 64); err == nil {
				if wait := time.Until(time.Unix(epoch, 0)); wait > 0 {
					return wait
				}
			}
		}
	}
	return 0
}

func (c *Client) rateLimitError(resp *http.Response) error {
	qe := &types.QuotaError{
		API:        "github",
		Secondary:  resp.Header.Get("Retry-After") != "",
		RetryAfter: c.rateLimitDelay(resp),
	}
	if rem := resp.Header.Get("X-RateLimit-Remaining"); rem != "" {
		qe.Remaining, _ = strconv.Atoi(rem)
	}
	if reset := resp.Header.Get("X-RateLimit-Reset"); reset != "" {
		if epoch, err := strconv.ParseInt(reset, 10, 64); err == nil {
			qe.Reset = time.Unix(epoch, 0).UTC()
		}
	}
	return qe
}

type searchResult struct {
	TotalCount int        `json:"total_count"`
	Items      []repoItem `json:"items"`
}

type repoItem struct {
	FullName    string   `json:"full_name"`
	Description string   `json:"description"`
	HTMLURL     string   `json:"html_url"`
	CloneURL    string   `json:"clone_url"`
	Language    string   `json:"language"`
	Stars       int      `json:"stargazers_count"`
	Forks       int      `json:"forks_count"`
	Watchers    int      `json:"watchers_count"`
	Size        int      `json:"size"`
	Topics      []string `json:"topics"`
	License     *struct {
		SPDXID string `json:"spdx_id"`
	} `json:"license"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	PushedAt  *time.Time `json:"pushed_at"`
	Archived  bool       `json:"archived"`
	Fork      bool       `json:"fork"`
}

func (r repoItem) toRepository(pattern string) *types.Repository {
	repo := &types.Repository{
		FullName:      r.FullName,
		Description:   r.Description,
		HTMLURL:       r.HTMLURL,
		CloneURL:      r.CloneURL,
		Language:      r.Language,
		Stars:         r.Stars,
		Forks:         r.Forks,
		Watchers:      r.Watchers,
		SizeKB:        r.Size,
		Topics:        r.Topics,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		PushedAt:      r.PushedAt,
		Archived:      r.Archived,
		Fork:          r.Fork,
		DiscoveredAt:  time.Now().UTC(),
		SearchPattern: pattern,
	}
	if r.License != nil {
		repo.License = r.License.SPDXID
	}
	return repo
}
