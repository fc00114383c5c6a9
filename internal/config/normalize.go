package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeJobs()
	c.normalizeLLM()
	c.normalizeProviders()
	c.normalizeArticles()
	c.normalizeBatch()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("MILLWORK_API_TOKEN"); ok {
			c.Paths.APIToken = value
		}
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeJobs() {
	c.Jobs.TriggerSchedule = strings.TrimSpace(c.Jobs.TriggerSchedule)
	if c.Jobs.TriggerSchedule == "" {
		c.Jobs.TriggerSchedule = defaultTriggerSchedule
	}
	if c.Jobs.MaxAttempts <= 0 {
		c.Jobs.MaxAttempts = defaultMaxAttempts
	}
	if len(c.Jobs.RetryBackoffMinutes) == 0 {
		c.Jobs.RetryBackoffMinutes = defaultRetryBackoffMinutes()
	}
	if c.Jobs.StuckTimeoutMinutes <= 0 {
		c.Jobs.StuckTimeoutMinutes = defaultStuckTimeoutMinutes
	}
	if c.Jobs.ErrorRetryInterval <= 0 {
		c.Jobs.ErrorRetryInterval = defaultErrorRetryInterval
	}
}

func (c *Config) normalizeLLM() {
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("MILLWORK_LLM_API_KEY"); ok {
			c.LLM.APIKey = value
		}
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
}

func (c *Config) normalizeProviders() {
	c.Serp.BaseURL = strings.TrimSpace(c.Serp.BaseURL)
	if c.Serp.TimeoutSeconds <= 0 {
		c.Serp.TimeoutSeconds = defaultProviderTimeout
	}
	c.Geocode.BaseURL = strings.TrimSpace(c.Geocode.BaseURL)
	if c.Geocode.TimeoutSeconds <= 0 {
		c.Geocode.TimeoutSeconds = defaultProviderTimeout
	}
	c.Blobstore.BaseURL = strings.TrimSpace(c.Blobstore.BaseURL)
	if c.Blobstore.TimeoutSeconds <= 0 {
		c.Blobstore.TimeoutSeconds = defaultProviderTimeout
	}
}

func (c *Config) normalizeArticles() {
	if c.Articles.TargetWordCount <= 0 {
		c.Articles.TargetWordCount = defaultTargetWordCount
	}
	if c.Articles.MaxIterations <= 0 {
		c.Articles.MaxIterations = defaultMaxIterations
	}
}

func (c *Config) normalizeBatch() {
	if c.Batch.ItemTimeoutSeconds <= 0 {
		c.Batch.ItemTimeoutSeconds = defaultItemTimeoutSeconds
	}
	if c.Batch.ItemDelayMillis <= 0 {
		c.Batch.ItemDelayMillis = defaultItemDelayMillis
	}
	if c.Batch.RequeueDelayMinutes <= 0 {
		c.Batch.RequeueDelayMinutes = defaultRequeueDelayMinutes
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
