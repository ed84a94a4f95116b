package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mcpscout/mcpscout/internal/types"
)

const (
	defaultBaseURL        = "https://directory.mcphub.example/api/v1"
	defaultRequestsPerMin = 30
	defaultRequestTimeout = 15 * time.Second
)

// ClientConfig holds live directory client construction options.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	// RequestsPerMinute bounds outbound calls; zero means the default quota.
	RequestsPerMinute int
	HTTPClient        *http.Client
	Logger            hclog.Logger
}

// Client talks to the live directory API and transparently degrades to the
// offline source when the API cannot be reached. Callers never see a
// transport error from a read: they see offline data instead, and
// UsedFallback reports which mode served the last call.
type Client struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	limiter  *windowLimiter
	offline  *OfflineSource
	logger   hclog.Logger
	fellBack bool
}

// NewClient creates a live directory client with offline fallback.
func NewClient(cfg *ClientConfig) *Client {
	if cfg == nil {
		cfg = &ClientConfig{}
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	perMin := cfg.RequestsPerMinute
	if perMin <= 0 {
		perMin = defaultRequestsPerMin
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		http:    httpClient,
		limiter: newWindowLimiter(perMin, time.Minute),
		offline: NewOfflineSource(),
		logger:  logger.Named("directory"),
	}
}

// UsedFallback reports whether the most recent call was served from offline
// data.
func (c *Client) UsedFallback() bool { return c.fellBack }

// RemainingQuota reports requests left in the current rate window.
func (c *Client) RemainingQuota() int { return c.limiter.remaining() }

// getJSON performs one rate-limited GET and decodes the response into out.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	if wait := c.limiter.reserve(); wait > 0 {
		c.logger.Debug("rate window exhausted, waiting", "wait", wait)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
		c.limiter.reserve()
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &types.TransientError{Op: "directory " + path, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return types.ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return &types.QuotaError{API: "directory"}
	case resp.StatusCode >= 500:
		return &types.TransientError{Op: "directory " + path,
			Err: fmt.Errorf("server returned %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("directory %s: unexpected status %d: %s", path, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &types.ParseError{File: path, Err: err}
	}
	return nil
}

// fallback decides whether an error should route the call to offline data.
// Not-found is a real answer, not an outage.
func fallbackEligible(err error) bool {
	return err != nil && err != types.ErrNotFound
}

// ListServers pages the live listing, serving offline data on outage.
func (c *Client) ListServers(ctx context.Context, filters Filters, page, perPage int) (*Page, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(perPage))
	if filters.Category != "" {
		params.Set("category", filters.Category)
	}
	if filters.Language != "" {
		params.Set("language", filters.Language)
	}
	if filters.Verified != nil {
		params.Set("verified", strconv.FormatBool(*filters.Verified))
	}

	var out Page
	if err := c.getJSON(ctx, "/servers", params, &out); err != nil {
		if !fallbackEligible(err) {
			return nil, err
		}
		c.logger.Warn("directory unreachable, serving offline data", "error", err)
		c.fellBack = true
		return c.offline.ListServers(ctx, filters, page, perPage)
	}
	c.fellBack = false
	return &out, nil
}

// GetServer fetches one server by id, serving offline data on outage.
func (c *Client) GetServer(ctx context.Context, id string) (*Server, error) {
	var out Server
	if err := c.getJSON(ctx, "/servers/"+url.PathEscape(id), nil, &out); err != nil {
		if !fallbackEligible(err) {
			return nil, err
		}
		c.logger.Warn("directory unreachable, serving offline data", "error", err)
		c.fellBack = true
		return c.offline.GetServer(ctx, id)
	}
	c.fellBack = false
	return &out, nil
}

// Search queries the live search endpoint, serving offline data on outage.
func (c *Client) Search(ctx context.Context, query string) ([]Server, error) {
	params := url.Values{}
	params.Set("q", query)

	var out struct {
		Servers []Server `json:"servers"`
	}
	if err := c.getJSON(ctx, "/search", params, &out); err != nil {
		if !fallbackEligible(err) {
			return nil, err
		}
		c.logger.Warn("directory unreachable, serving offline data", "error", err)
		c.fellBack = true
		return c.offline.Search(ctx, query)
	}
	c.fellBack = false
	return out.Servers, nil
}

// Categories lists directory categories, serving offline data on outage.
func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	var out struct {
		Categories []Category `json:"categories"`
	}
	if err := c.getJSON(ctx, "/categories", nil, &out); err != nil {
		if !fallbackEligible(err) {
			return nil, err
		}
		c.logger.Warn("directory unreachable, serving offline data", "error", err)
		c.fellBack = true
		return c.offline.Categories(ctx)
	}
	c.fellBack = false
	return out.Categories, nil
}

// Stats fetches directory-wide aggregates, serving offline data on outage.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var out Stats
	if err := c.getJSON(ctx, "/stats", nil, &out); err != nil {
		if !fallbackEligible(err) {
			return nil, err
		}
		c.logger.Warn("directory unreachable, serving offline data", "error", err)
		c.fellBack = true
		return c.offline.Stats(ctx)
	}
	c.fellBack = false
	return &out, nil
}
