package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"millwork/internal/config"
	"millwork/internal/jobs"
	"millwork/internal/services/llm"
)

// minFreeBytes is the disk space floor below which the data disk check fails.
const minFreeBytes = 512 << 20

// CheckDirectoryAccess verifies that the directory exists and is
// readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDiskSpace verifies the filesystem holding the job database has room
// left. SQLite WAL growth on a full disk corrupts nothing but stalls every
// job, so this warns early.
func CheckDiskSpace(name, path string) Result {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statvfs: %v)", path, err)}
	}
	free := stat.Bavail * uint64(stat.Bsize)
	if free < minFreeBytes {
		return Result{Name: name, Detail: fmt.Sprintf("%s (%d MiB free, need %d MiB)", path, free>>20, int64(minFreeBytes)>>20)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d MiB free)", path, free>>20)}
}

// CheckDatabase opens the job store and runs a trivial query. The daemon
// cannot operate without it.
func CheckDatabase(ctx context.Context, cfg *config.Config) Result {
	const name = "Job database"

	store, err := jobs.Open(cfg)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("open failed: %v", err)}
	}
	defer store.Close()

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := store.Stats(checkCtx, ""); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("query failed: %v", err)}
	}
	return Result{Name: name, Passed: true, Detail: store.Path()}
}

// CheckLLM verifies that the LLM API is reachable and the key is valid.
// It uses a 30-second timeout and a single attempt.
func CheckLLM(ctx context.Context, cfg config.LLM) Result {
	const name = "LLM API"
	if cfg.APIKey == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client := llm.NewClient(cfg, llm.WithRetryMaxAttempts(1))
	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeLLMError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckHTTPProvider verifies a provider base URL resolves and accepts TCP
// connections. It stops short of an authenticated call so a preflight pass
// never burns provider quota.
func CheckHTTPProvider(ctx context.Context, name, baseURL string) Result {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || parsed.Host == "" {
		return Result{Name: name, Detail: fmt.Sprintf("invalid base url %q", baseURL)}
	}

	host := parsed.Host
	if parsed.Port() == "" {
		if parsed.Scheme == "https" {
			host = net.JoinHostPort(parsed.Hostname(), "443")
		} else {
			host = net.JoinHostPort(parsed.Hostname(), "80")
		}
	}

	dialer := &net.Dialer{Timeout: 5 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", host)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("unreachable: %v", err)}
	}
	conn.Close()
	return Result{Name: name, Passed: true, Detail: "reachable"}
}

// summarizeLLMError produces a human-readable summary for LLM health check
// failures.
func summarizeLLMError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (LLM API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (LLM API unreachable)"
	}
	return err.Error()
}
