package config

const (
	defaultModel             = "llava"
	defaultOutputDir         = "."
	defaultOutputFile        = "out.csv"
	defaultWorkerCount       = 4
	defaultMaxAttempts       = 1
	defaultLLMBaseURL        = "http://localhost:11434"
	defaultLLMTimeoutSeconds = 120
	defaultLLMRetryAttempts  = 3
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultNATSSubject       = "fable.runs"
	defaultNotifyTimeout     = 10
)

var defaultExtensions = []string{".jpg", ".jpeg", ".png"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Configurations: Configurations{
			Model:      defaultModel,
			Extensions: append([]string(nil), defaultExtensions...),
		},
		Workers: Workers{
			Count:       defaultWorkerCount,
			MaxAttempts: defaultMaxAttempts,
		},
		Paths: Paths{
			OutputDir:  defaultOutputDir,
			OutputFile: defaultOutputFile,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
			RetryAttempts:  defaultLLMRetryAttempts,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Notifications: Notifications{
			NATSSubject:    defaultNATSSubject,
			RequestTimeout: defaultNotifyTimeout,
		},
	}
}
