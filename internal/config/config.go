package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Jobs contains configuration for the job dispatcher and retry policy.
type Jobs struct {
	TriggerSchedule     string `toml:"trigger_schedule"`
	MaxAttempts         int    `toml:"max_attempts"`
	RetryBackoffMinutes []int  `toml:"retry_backoff_minutes"`
	StuckTimeoutMinutes int    `toml:"stuck_timeout_minutes"`
	ErrorRetryInterval  int    `toml:"error_retry_interval"`
}

// LLM contains shared LLM connection settings used by the article agents.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Serp contains configuration for the keyword research provider.
type Serp struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Geocode contains configuration for the geocoding provider.
type Geocode struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Blobstore contains configuration for the blob storage uploader.
type Blobstore struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Bucket         string `toml:"bucket"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Persona overrides prompt and model parameters for one article agent.
type Persona struct {
	Agent        string  `toml:"agent"`
	SystemPrompt string  `toml:"system_prompt"`
	Model        string  `toml:"model"`
	Temperature  float64 `toml:"temperature"`
	MaxTokens    int     `toml:"max_tokens"`
}

// Articles contains configuration for the article writing pipeline.
type Articles struct {
	TargetWordCount int                `toml:"target_word_count"`
	MaxIterations   int                `toml:"max_iterations"`
	AutoPublish     bool               `toml:"auto_publish"`
	Personas        map[string]Persona `toml:"personas"`
}

// Batch contains configuration for throttled batch executors.
type Batch struct {
	ItemTimeoutSeconds  int `toml:"item_timeout_seconds"`
	ItemDelayMillis     int `toml:"item_delay_millis"`
	RequeueDelayMinutes int `toml:"requeue_delay_minutes"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for millwork.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories, API bind address and shared secret
//   - Jobs: dispatcher trigger schedule, retry backoff, stuck-job timeout
//   - LLM: chat completion provider used by the article agents
//   - Serp: keyword research provider consulted by the research agent
//   - Geocode: geocoding provider used by the geocode-backfill executor
//   - Blobstore: blob uploader used by photo-sync and auto-publish
//   - Articles: pipeline tuning and persona overrides
//   - Batch: throttled batch timing
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Jobs      Jobs      `toml:"jobs"`
	LLM       LLM       `toml:"llm"`
	Serp      Serp      `toml:"serp"`
	Geocode   Geocode   `toml:"geocode"`
	Blobstore Blobstore `toml:"blobstore"`
	Articles  Articles  `toml:"articles"`
	Batch     Batch     `toml:"batch"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/millwork/config.toml")
}

// SampleConfig returns the embedded sample configuration file contents.
func SampleConfig() string {
	return sampleConfig
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("millwork.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the path to the job database file.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "millwork.db")
}

// ExpandPath resolves ~ and relative segments to an absolute path.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes the embedded sample configuration to the given path.
func CreateSample(path string) error {
	return os.WriteFile(path, []byte(sampleConfig), 0o644)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
