package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"fable/internal/config"
	"fable/internal/logging"
	"fable/internal/queue"
)

type commandContext struct {
	configFlag    *string
	outputDirFlag *string
	verboseFlag   *bool

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error
}

func newCommandContext(configFlag, outputDirFlag *string, verbose *bool) *commandContext {
	return &commandContext{
		configFlag:    configFlag,
		outputDirFlag: outputDirFlag,
		verboseFlag:   verbose,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if dir := c.outputDirOverride(); dir != "" {
			expanded, err := config.ExpandPath(dir)
			if err != nil {
				c.configErr = fmt.Errorf("resolve --output-dir: %w", err)
				return
			}
			cfg.Paths.OutputDir = expanded
		}
		c.config = cfg
		c.configPath = resolved
		c.configExists = exists
	})
	return c.config, c.configErr
}

func (c *commandContext) outputDirOverride() string {
	if c.outputDirFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.outputDirFlag)
}

func (c *commandContext) verbose() bool {
	return c.verboseFlag != nil && *c.verboseFlag
}

func (c *commandContext) newLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	logger, closer, err := logging.NewFromConfig(cfg, c.verbose())
	if err != nil {
		return nil, nil, err
	}
	return logger, func() { _ = closer.Close() }, nil
}

// withStore opens the existing progress database. Read-only commands never
// create one.
func (c *commandContext) withStore(fn func(*config.Config, *queue.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	dbPath := filepath.Join(cfg.Paths.OutputDir, queue.DatabaseFile)
	if _, err := os.Stat(dbPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("no progress database at %s; start with `fable run <data_dir>` or pass --output-dir", dbPath)
		}
		return fmt.Errorf("inspect progress database: %w", err)
	}
	store, err := queue.OpenDir(cfg.Paths.OutputDir)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(cfg, store)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
