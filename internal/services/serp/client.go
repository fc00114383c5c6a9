// Package serp wraps the keyword research provider consulted by the research
// agent. The client covers the single search endpoint the pipeline needs; when
// no provider is configured the agent skips SERP enrichment entirely.
package serp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"millwork/internal/config"
	"millwork/internal/services"
)

const defaultHTTPTimeout = 30 * time.Second

// Client queries the SERP provider.
type Client struct {
	cfg        config.Serp
	httpClient *http.Client
}

// NewClient constructs a SERP client from configuration.
func NewClient(cfg config.Serp) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &Client{cfg: cfg, httpClient: &http.Client{Timeout: timeout}}
}

// Configured reports whether the provider can be called at all.
func (c *Client) Configured() bool {
	return c != nil && strings.TrimSpace(c.cfg.BaseURL) != "" && strings.TrimSpace(c.cfg.APIKey) != ""
}

// Result is one organic search result for the target keyword.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Results is the provider response for one keyword.
type Results struct {
	Keyword        string   `json:"keyword"`
	SearchVolume   int      `json:"search_volume"`
	Competition    float64  `json:"competition"`
	RelatedQueries []string `json:"related_queries"`
	TopResults     []Result `json:"top_results"`
}

// Search fetches keyword metrics and top organic results.
func (c *Client) Search(ctx context.Context, keyword string) (*Results, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, services.Wrap(services.ErrValidation, "serp", "search", "keyword required", nil)
	}
	if !c.Configured() {
		return nil, services.Wrap(services.ErrConfiguration, "serp", "search", "provider not configured", nil)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/search?q=" + url.QueryEscape(keyword)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalService, "serp", "search", "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalService, "serp", "search", "request failed", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, services.Wrap(services.ErrExternalService, "serp", "search", "read response", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, services.Wrap(services.ErrRateLimited, "serp", "search", "provider rate limit", nil)
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, services.Wrap(services.ErrExternalService, "serp", "search",
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	var results Results
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, services.Wrap(services.ErrExternalService, "serp", "search", "decode response", err)
	}
	if results.Keyword == "" {
		results.Keyword = keyword
	}
	return &results, nil
}
