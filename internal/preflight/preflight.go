package preflight

import (
	"context"

	"millwork/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Fatal  bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Provider checks only run when the provider is configured; the database and
// directory checks always run and are the only fatal ones.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	results = append(results, fatal(CheckDirectoryAccess("Data directory", cfg.Paths.DataDir)))
	results = append(results, fatal(CheckDirectoryAccess("Log directory", cfg.Paths.LogDir)))
	results = append(results, CheckDiskSpace("Data disk space", cfg.Paths.DataDir))
	results = append(results, fatal(CheckDatabase(ctx, cfg)))

	results = append(results, CheckLLM(ctx, cfg.LLM))
	if cfg.Serp.BaseURL != "" {
		results = append(results, CheckHTTPProvider(ctx, "SERP provider", cfg.Serp.BaseURL))
	}
	if cfg.Geocode.BaseURL != "" {
		results = append(results, CheckHTTPProvider(ctx, "Geocoding provider", cfg.Geocode.BaseURL))
	}
	if cfg.Blobstore.BaseURL != "" {
		results = append(results, CheckHTTPProvider(ctx, "Blob storage", cfg.Blobstore.BaseURL))
	}
	return results
}

// Failed returns true when any fatal check failed.
func Failed(results []Result) bool {
	for _, result := range results {
		if result.Fatal && !result.Passed {
			return true
		}
	}
	return false
}

func fatal(result Result) Result {
	result.Fatal = true
	return result
}
