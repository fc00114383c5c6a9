// Package blobstore wraps the blob storage provider used by photo sync and
// article auto-publish. Uploads are idempotent on key: re-uploading the same
// key overwrites the previous object.
package blobstore

import (
	"bytes"
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

const defaultHTTPTimeout = 60 * time.Second

// Client uploads blobs to the configured bucket.
type Client struct {
	cfg        config.Blobstore
	httpClient *http.Client
}

// NewClient constructs a blobstore client from configuration.
func NewClient(cfg config.Blobstore) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &Client{cfg: cfg, httpClient: &http.Client{Timeout: timeout}}
}

// Configured reports whether uploads can be attempted at all.
func (c *Client) Configured() bool {
	return c != nil &&
		strings.TrimSpace(c.cfg.BaseURL) != "" &&
		strings.TrimSpace(c.cfg.APIKey) != "" &&
		strings.TrimSpace(c.cfg.Bucket) != ""
}

// Object describes a stored blob.
type Object struct {
	ID  string `json:"id"`
	Key string `json:"key"`
	URL string `json:"url"`
}

// Upload stores data under the given key and returns the provider's object
// record.
func (c *Client) Upload(ctx context.Context, key, contentType string, data []byte) (*Object, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, services.Wrap(services.ErrValidation, "blobstore", "upload", "key required", nil)
	}
	if len(data) == 0 {
		return nil, services.Wrap(services.ErrValidation, "blobstore", "upload", "empty body", nil)
	}
	if !c.Configured() {
		return nil, services.Wrap(services.ErrConfiguration, "blobstore", "upload", "provider not configured", nil)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/buckets/" +
		url.PathEscape(c.cfg.Bucket) + "/objects/" + url.PathEscape(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, services.Wrap(services.ErrExternalService, "blobstore", "upload", "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalService, "blobstore", "upload", "request failed", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, services.Wrap(services.ErrExternalService, "blobstore", "upload", "read response", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, services.Wrap(services.ErrRateLimited, "blobstore", "upload", "provider rate limit", nil)
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, services.Wrap(services.ErrExternalService, "blobstore", "upload",
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	var object Object
	if err := json.Unmarshal(body, &object); err != nil {
		return nil, services.Wrap(services.ErrExternalService, "blobstore", "upload", "decode response", err)
	}
	if object.Key == "" {
		object.Key = key
	}
	return &object, nil
}
