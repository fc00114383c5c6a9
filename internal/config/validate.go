package config

import (
	"errors"
	"fmt"
	"strings"
)

var knownAgents = map[string]struct{}{
	"research": {},
	"writer":   {},
	"seo":      {},
	"qa":       {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateJobs(); err != nil {
		return err
	}
	if err := c.validateArticles(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateJobs() error {
	if c.Jobs.MaxAttempts < 1 {
		return errors.New("jobs.max_attempts must be at least 1")
	}
	for _, minutes := range c.Jobs.RetryBackoffMinutes {
		if minutes <= 0 {
			return errors.New("jobs.retry_backoff_minutes entries must be positive")
		}
	}
	if c.Jobs.StuckTimeoutMinutes < 1 {
		return errors.New("jobs.stuck_timeout_minutes must be at least 1")
	}
	return nil
}

func (c *Config) validateArticles() error {
	if c.Articles.MaxIterations < 1 {
		return errors.New("articles.max_iterations must be at least 1")
	}
	for id, persona := range c.Articles.Personas {
		agent := strings.TrimSpace(persona.Agent)
		if agent == "" {
			return fmt.Errorf("articles.personas.%s: agent must be set", id)
		}
		if _, ok := knownAgents[agent]; !ok {
			return fmt.Errorf("articles.personas.%s: unknown agent %q", id, agent)
		}
		if persona.Temperature < 0 || persona.Temperature > 2 {
			return fmt.Errorf("articles.personas.%s: temperature must be between 0 and 2", id)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json", "auto":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}
