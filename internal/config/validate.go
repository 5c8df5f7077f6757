package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateConfigurations(); err != nil {
		return err
	}
	if err := c.validateAccessories(); err != nil {
		return err
	}
	if err := c.validateWorkers(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validateNotifications()
}

// RequireAccessories reports an error when no accessory is configured. Runs
// need at least one label column; read-only commands do not.
func (c *Config) RequireAccessories() error {
	if len(c.Accessories) == 0 {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "config.yaml"
		}
		return fmt.Errorf("accessories must list at least one entry. Edit %s (create with 'fable config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateConfigurations() error {
	if c.Configurations.Model == "" {
		return errors.New("configurations.model must be set")
	}
	for _, ext := range c.Configurations.Extensions {
		if strings.ContainsAny(ext, `/\`) {
			return fmt.Errorf("configurations.extensions: %q is not a file extension", ext)
		}
	}
	return nil
}

func (c *Config) validateAccessories() error {
	seen := make(map[string]struct{}, len(c.Accessories))
	for i, acc := range c.Accessories {
		if acc.Name == "" {
			return fmt.Errorf("accessories[%d]: name must be set", i)
		}
		if strings.ContainsAny(acc.Name, ",\"\n\r") {
			return fmt.Errorf("accessories.%s: name must not contain commas, quotes or newlines", acc.Name)
		}
		if _, ok := seen[acc.Name]; ok {
			return fmt.Errorf("accessories.%s: duplicate name", acc.Name)
		}
		seen[acc.Name] = struct{}{}
	}
	return nil
}

func (c *Config) validateWorkers() error {
	if err := ensurePositiveMap(map[string]int{
		"workers.count":        c.Workers.Count,
		"workers.max_attempts": c.Workers.MaxAttempts,
	}); err != nil {
		return err
	}
	if c.Workers.BatchSize < 0 {
		return errors.New("workers.batch_size must be >= 0")
	}
	return nil
}

func (c *Config) validateLLM() error {
	parsed, err := url.Parse(c.LLM.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("llm.base_url %q must be an absolute URL", c.LLM.BaseURL)
	}
	if c.LLM.TimeoutSeconds <= 0 {
		return errors.New("llm.timeout_seconds must be positive")
	}
	if c.LLM.RequestsPerSecond < 0 {
		return errors.New("llm.requests_per_second must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q must be console or json", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not recognised", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	if c.Notifications.NATSURL != "" && c.Notifications.NATSSubject == "" {
		return errors.New("notifications.nats_subject must be set when notifications.nats_url is set")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
