// Package daemonctl is the HTTP control client for a running millwork
// daemon. The CLI uses it for operations that must go through the daemon,
// such as executing a job in-process.
package daemonctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"

	"millwork/internal/api"
)

// ErrDaemonUnavailable marks connection failures so callers can fall back to
// direct store access.
var ErrDaemonUnavailable = errors.New("daemon unavailable")

// Client talks to the daemon API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New constructs a control client for the given bind address.
func New(addr, token string) *Client {
	base := strings.TrimSpace(addr)
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		// Execute blocks for the length of a pipeline run.
		http:  &http.Client{Timeout: 30 * time.Minute},
		token: token,
	}
}

// Status fetches the daemon runtime summary.
func (c *Client) Status(ctx context.Context) (*api.StatusResponse, error) {
	var resp api.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateJob enqueues a job through the daemon.
func (c *Client) CreateJob(ctx context.Context, req api.CreateJobRequest) (*api.JobResponse, error) {
	var resp api.JobResponse
	if err := c.do(ctx, http.MethodPost, "/api/jobs", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Execute claims and runs a specific job, blocking until it reaches a
// terminal status.
func (c *Client) Execute(ctx context.Context, id int64) (*api.JobResponse, error) {
	var resp api.JobResponse
	if err := c.do(ctx, http.MethodPost, jobPath(id, "execute"), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Cancel cancels a pending or processing job.
func (c *Client) Cancel(ctx context.Context, id int64) (*api.JobResponse, error) {
	var resp api.JobResponse
	if err := c.do(ctx, http.MethodPost, jobPath(id, "cancel"), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Retry clears a job's retry backoff through the daemon.
func (c *Client) Retry(ctx context.Context, id int64) (*api.JobResponse, error) {
	var resp api.JobResponse
	if err := c.do(ctx, http.MethodPost, jobPath(id, "retry"), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func jobPath(id int64, action string) string {
	return "/api/jobs/" + strconv.FormatInt(id, 10) + "/" + action
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return wrapDialError(err, c.baseURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr api.ErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon: %s (http %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("daemon: http %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func wrapDialError(err error, base string) error {
	var netErr net.Error
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("%w: %s refused the connection; start the daemon with `millwork serve`", ErrDaemonUnavailable, base)
	case errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %s timed out", ErrDaemonUnavailable, base)
	default:
		return fmt.Errorf("connect to daemon at %s: %w", base, err)
	}
}
