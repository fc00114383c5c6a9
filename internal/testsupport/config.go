package testsupport

import (
	"path/filepath"
	"testing"

	"millwork/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t   testing.TB
	cfg *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Paths.APIToken = "test-token"
	cfgVal.LLM.APIKey = "test"
	cfgVal.Batch.ItemDelayMillis = 0

	builder := &configBuilder{t: t, cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithLLMBaseURL points the LLM client at a test server.
func WithLLMBaseURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LLM.BaseURL = url
	}
}

// WithSerp configures the keyword research provider for tests.
func WithSerp(url, key string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Serp.BaseURL = url
		b.cfg.Serp.APIKey = key
	}
}

// WithGeocode configures the geocoding provider for tests.
func WithGeocode(url, key string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Geocode.BaseURL = url
		b.cfg.Geocode.APIKey = key
	}
}

// WithBlobstore configures the blob storage uploader for tests.
func WithBlobstore(url, key, bucket string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Blobstore.BaseURL = url
		b.cfg.Blobstore.APIKey = key
		b.cfg.Blobstore.Bucket = bucket
	}
}

// WithMaxAttempts overrides the retry budget on the test config.
func WithMaxAttempts(attempts int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Jobs.MaxAttempts = attempts
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
