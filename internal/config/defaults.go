package config

const (
	defaultDataDir             = "~/.local/share/millwork/data"
	defaultLogDir              = "~/.local/share/millwork/logs"
	defaultAPIBind             = "127.0.0.1:7512"
	defaultTriggerSchedule     = "@every 30s"
	defaultMaxAttempts         = 3
	defaultStuckTimeoutMinutes = 30
	defaultErrorRetryInterval  = 15
	defaultLLMBaseURL          = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel            = "google/gemini-3-flash-preview"
	defaultLLMTimeoutSeconds   = 120
	defaultProviderTimeout     = 30
	defaultTargetWordCount     = 1200
	defaultMaxIterations       = 3
	defaultItemTimeoutSeconds  = 30
	defaultItemDelayMillis     = 500
	defaultRequeueDelayMinutes = 15
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

func defaultRetryBackoffMinutes() []int {
	return []int{1, 5, 15, 60}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Jobs: Jobs{
			TriggerSchedule:     defaultTriggerSchedule,
			MaxAttempts:         defaultMaxAttempts,
			RetryBackoffMinutes: defaultRetryBackoffMinutes(),
			StuckTimeoutMinutes: defaultStuckTimeoutMinutes,
			ErrorRetryInterval:  defaultErrorRetryInterval,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Serp: Serp{
			TimeoutSeconds: defaultProviderTimeout,
		},
		Geocode: Geocode{
			TimeoutSeconds: defaultProviderTimeout,
		},
		Blobstore: Blobstore{
			TimeoutSeconds: defaultProviderTimeout,
		},
		Articles: Articles{
			TargetWordCount: defaultTargetWordCount,
			MaxIterations:   defaultMaxIterations,
			AutoPublish:     true,
		},
		Batch: Batch{
			ItemTimeoutSeconds:  defaultItemTimeoutSeconds,
			ItemDelayMillis:     defaultItemDelayMillis,
			RequeueDelayMinutes: defaultRequeueDelayMinutes,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
