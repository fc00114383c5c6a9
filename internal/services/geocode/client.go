// Package geocode wraps the forward-geocoding provider used by the backfill
// executor. Rate-limit responses surface as services.ErrRateLimited so the
// batch runner can stop and hand remaining addresses to a requeued job.
package geocode

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

const defaultHTTPTimeout = 15 * time.Second

// Client performs forward geocoding lookups.
type Client struct {
	cfg        config.Geocode
	httpClient *http.Client
}

// NewClient constructs a geocoding client from configuration.
func NewClient(cfg config.Geocode) *Client {
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

// Location is one geocoding result.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Formatted string  `json:"formatted"`
}

// Lookup geocodes a free-form address. An address the provider cannot resolve
// returns services.ErrNotFound.
func (c *Client) Lookup(ctx context.Context, address string) (*Location, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, services.Wrap(services.ErrValidation, "geocode", "lookup", "address required", nil)
	}
	if !c.Configured() {
		return nil, services.Wrap(services.ErrConfiguration, "geocode", "lookup", "provider not configured", nil)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/geocode?address=" + url.QueryEscape(address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalService, "geocode", "lookup", "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalService, "geocode", "lookup", "request failed", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, services.Wrap(services.ErrExternalService, "geocode", "lookup", "read response", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, services.Wrap(services.ErrRateLimited, "geocode", "lookup", "provider rate limit", nil)
	case resp.StatusCode == http.StatusNotFound:
		return nil, services.Wrap(services.ErrNotFound, "geocode", "lookup", "address not found", nil)
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, services.Wrap(services.ErrExternalService, "geocode", "lookup",
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	var payload struct {
		Results []Location `json:"results"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, services.Wrap(services.ErrExternalService, "geocode", "lookup", "decode response", err)
	}
	if len(payload.Results) == 0 {
		return nil, services.Wrap(services.ErrNotFound, "geocode", "lookup", "no results for address", nil)
	}
	return &payload.Results[0], nil
}
