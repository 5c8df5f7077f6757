package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	c.normalizeConfigurations()
	c.normalizeAccessories()
	c.normalizeWorkers()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLLM()
	c.normalizeLogging()
	c.normalizeNotifications()
	return nil
}

func (c *Config) normalizeConfigurations() {
	c.Configurations.Model = strings.TrimSpace(c.Configurations.Model)
	if c.Configurations.Model == "" {
		c.Configurations.Model = defaultModel
	}
	c.Configurations.Extensions = normalizeExtensions(c.Configurations.Extensions)
	if len(c.Configurations.Extensions) == 0 {
		c.Configurations.Extensions = append([]string(nil), defaultExtensions...)
	}
}

// normalizeExtensions adds the leading dot and drops blanks and duplicates.
// Case is preserved: matching is case-sensitive.
func normalizeExtensions(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		ext := strings.TrimSpace(value)
		if ext == "" || ext == "." {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		out = append(out, ext)
	}
	return out
}

func (c *Config) normalizeAccessories() {
	for i := range c.Accessories {
		c.Accessories[i].Name = strings.TrimSpace(c.Accessories[i].Name)
		c.Accessories[i].Description = strings.TrimSpace(c.Accessories[i].Description)
	}
}

func (c *Config) normalizeWorkers() {
	if c.Workers.Count <= 0 {
		c.Workers.Count = defaultWorkerCount
	}
	if c.Workers.BatchSize < 0 {
		c.Workers.BatchSize = 0
	}
	if c.Workers.MaxAttempts <= 0 {
		c.Workers.MaxAttempts = defaultMaxAttempts
	}
}

func (c *Config) normalizePaths() error {
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	var err error
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	c.Paths.OutputFile = strings.TrimSpace(c.Paths.OutputFile)
	if c.Paths.OutputFile == "" {
		c.Paths.OutputFile = defaultOutputFile
	}
	if strings.HasPrefix(c.Paths.OutputFile, "~") {
		if c.Paths.OutputFile, err = expandPath(c.Paths.OutputFile); err != nil {
			return fmt.Errorf("paths.output_file: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeLLM() {
	c.LLM.BaseURL = strings.TrimRight(strings.TrimSpace(c.LLM.BaseURL), "/")
	if host, ok := os.LookupEnv("OLLAMA_HOST"); ok && (c.LLM.BaseURL == "" || c.LLM.BaseURL == defaultLLMBaseURL) {
		if host = strings.TrimSpace(host); host != "" {
			c.LLM.BaseURL = ollamaURL(host)
		}
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
	if c.LLM.RetryAttempts < 0 {
		c.LLM.RetryAttempts = 0
	}
}

// ollamaURL accepts the host forms OLLAMA_HOST allows, such as "0.0.0.0:11434".
func ollamaURL(host string) string {
	host = strings.TrimRight(host, "/")
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return host
	}
	return "http://" + host
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

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("FABLE_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	c.Notifications.NATSURL = strings.TrimSpace(c.Notifications.NATSURL)
	c.Notifications.NATSSubject = strings.TrimSpace(c.Notifications.NATSSubject)
	if c.Notifications.NATSSubject == "" {
		c.Notifications.NATSSubject = defaultNATSSubject
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}
