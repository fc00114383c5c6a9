package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"millwork/internal/config"
)

func TestDefaultSatisfiesValidation(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be reported missing")
	}
	if resolved != path {
		t.Fatalf("expected resolved path %q, got %q", path, resolved)
	}
	if cfg.Jobs.MaxAttempts != 3 {
		t.Fatalf("expected default max attempts 3, got %d", cfg.Jobs.MaxAttempts)
	}
	if cfg.Jobs.TriggerSchedule != "@every 30s" {
		t.Fatalf("unexpected trigger schedule %q", cfg.Jobs.TriggerSchedule)
	}
}

func TestLoadParsesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `
[paths]
data_dir = "` + filepath.Join(dir, "data") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"
api_bind = "  127.0.0.1:9999  "

[jobs]
max_attempts = 5
retry_backoff_minutes = [2, 10]

[articles]
max_iterations = 4

[articles.personas.casual-writer]
agent = "writer"
system_prompt = "write casually"
temperature = 0.9
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if cfg.Paths.APIBind != "127.0.0.1:9999" {
		t.Fatalf("expected trimmed api bind, got %q", cfg.Paths.APIBind)
	}
	if cfg.Jobs.MaxAttempts != 5 {
		t.Fatalf("expected max attempts 5, got %d", cfg.Jobs.MaxAttempts)
	}
	if len(cfg.Jobs.RetryBackoffMinutes) != 2 || cfg.Jobs.RetryBackoffMinutes[1] != 10 {
		t.Fatalf("unexpected backoff table %v", cfg.Jobs.RetryBackoffMinutes)
	}
	persona, ok := cfg.Articles.Personas["casual-writer"]
	if !ok {
		t.Fatal("expected persona override to load")
	}
	if persona.Agent != "writer" {
		t.Fatalf("unexpected persona agent %q", persona.Agent)
	}
}

func TestValidateRejectsUnknownPersonaAgent(t *testing.T) {
	cfg := config.Default()
	cfg.Articles.Personas = map[string]config.Persona{
		"bogus": {Agent: "translator"},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for unknown agent")
	}
	if !strings.Contains(err.Error(), "unknown agent") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsBadBackoff(t *testing.T) {
	cfg := config.Default()
	cfg.Jobs.RetryBackoffMinutes = []int{1, 0}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for non-positive backoff entry")
	}
}

func TestSampleConfigParses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(config.SampleConfig()), 0o644); err != nil {
		t.Fatalf("write sample config: %v", err)
	}
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config should load: %v", err)
	}
}
