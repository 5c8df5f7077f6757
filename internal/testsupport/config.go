package testsupport

import (
	"path/filepath"
	"testing"

	"fable/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config rooted in a per-test temp directory with two
// accessories configured. Options are applied in order.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Paths.OutputFile = "out.csv"
	cfgVal.Accessories = config.Accessories{
		{Name: "glasses", Description: "Eyeglasses or sunglasses"},
		{Name: "hat", Description: "Any head covering"},
	}
	cfgVal.LLM.BaseURL = "http://127.0.0.1:0"
	cfgVal.LLM.RetryAttempts = 0

	builder := &configBuilder{t: t, baseDir: base, cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithAccessories replaces the accessory list.
func WithAccessories(names ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Accessories = b.cfg.Accessories[:0]
		for _, name := range names {
			b.cfg.Accessories = append(b.cfg.Accessories, config.Accessory{Name: name, Description: name})
		}
	}
}

// WithWorkers sets the pool size and batch size.
func WithWorkers(count, batchSize int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workers.Count = count
		b.cfg.Workers.BatchSize = batchSize
	}
}

// WithLLMBaseURL points the vision client at a test server.
func WithLLMBaseURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LLM.BaseURL = url
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.OutputDir)
}

// DataDir returns a data directory next to the output directory.
func DataDir(cfg *config.Config) string {
	return filepath.Join(BaseDir(cfg), "data")
}
