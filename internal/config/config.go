package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

//go:embed sample_config.yaml
var sampleConfig string

// Configurations holds the labeling model settings.
type Configurations struct {
	Model       string   `yaml:"model" toml:"model"`
	DetectFaces bool     `yaml:"detect_faces" toml:"detect_faces"`
	Extensions  []string `yaml:"extensions" toml:"extensions"`
}

// Accessory is one label column: a name and the description shown to the model.
type Accessory struct {
	Name        string `yaml:"name" toml:"name"`
	Description string `yaml:"description" toml:"description"`
}

// Accessories is the ordered accessory list. Order defines CSV column order.
type Accessories []Accessory

// UnmarshalYAML accepts either a mapping of name to description, preserving
// key order, or a sequence of {name, description} entries.
func (a *Accessories) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.MappingNode:
		out := make(Accessories, 0, len(value.Content)/2)
		for i := 0; i+1 < len(value.Content); i += 2 {
			key, val := value.Content[i], value.Content[i+1]
			var desc string
			if err := val.Decode(&desc); err != nil {
				return fmt.Errorf("accessories.%s: %w", key.Value, err)
			}
			out = append(out, Accessory{Name: key.Value, Description: desc})
		}
		*a = out
		return nil
	case yaml.SequenceNode:
		var list []Accessory
		if err := value.Decode(&list); err != nil {
			return err
		}
		*a = list
		return nil
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			*a = nil
			return nil
		}
	}
	return fmt.Errorf("accessories: expected mapping or list at line %d", value.Line)
}

// Names returns the accessory names in order.
func (a Accessories) Names() []string {
	names := make([]string, len(a))
	for i, acc := range a {
		names[i] = acc.Name
	}
	return names
}

// Workers controls dispatch concurrency.
type Workers struct {
	Count       int `yaml:"count" toml:"count"`
	BatchSize   int `yaml:"batch_size" toml:"batch_size"`
	MaxAttempts int `yaml:"max_attempts" toml:"max_attempts"`
}

// Paths locates the output artifact and progress database.
type Paths struct {
	OutputDir  string `yaml:"output_dir" toml:"output_dir"`
	OutputFile string `yaml:"output_file" toml:"output_file"`
}

// LLM contains the vision model connection settings.
type LLM struct {
	BaseURL           string  `yaml:"base_url" toml:"base_url"`
	TimeoutSeconds    int     `yaml:"timeout_seconds" toml:"timeout_seconds"`
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
	RetryAttempts     int     `yaml:"retry_attempts" toml:"retry_attempts"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `yaml:"format" toml:"format"`
	Level  string `yaml:"level" toml:"level"`
}

// Notifications configures run event delivery.
type Notifications struct {
	NtfyTopic      string `yaml:"ntfy_topic" toml:"ntfy_topic"`
	NATSURL        string `yaml:"nats_url" toml:"nats_url"`
	NATSSubject    string `yaml:"nats_subject" toml:"nats_subject"`
	RequestTimeout int    `yaml:"request_timeout" toml:"request_timeout"`
}

// Config encapsulates all configuration values for fable.
type Config struct {
	Configurations Configurations `yaml:"configurations" toml:"configurations"`
	Accessories    Accessories    `yaml:"accessories" toml:"accessories"`
	Workers        Workers        `yaml:"workers" toml:"workers"`
	Paths          Paths          `yaml:"paths" toml:"paths"`
	LLM            LLM            `yaml:"llm" toml:"llm"`
	Logging        Logging        `yaml:"logging" toml:"logging"`
	Notifications  Notifications  `yaml:"notifications" toml:"notifications"`
}

// DefaultConfigPath returns the absolute path of the per-user configuration file.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/fable/config.yaml")
}

// Load locates, parses, and validates a configuration file. A missing file is
// not an error: defaults are returned and exists is false.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		if err := decodeFile(resolvedPath, &cfg); err != nil {
			return nil, "", false, err
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

func decodeFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.NewDecoder(file).Decode(cfg); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	default:
		if err := yaml.NewDecoder(file).Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("parse config: %w", err)
		}
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	candidates := []string{"config.yaml", "fable.toml"}
	for _, name := range candidates {
		projectPath, err := filepath.Abs(name)
		if err != nil {
			return "", false, err
		}
		if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
			return projectPath, true, nil
		}
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

// OutputPath returns the absolute CSV path.
func (c *Config) OutputPath() string {
	if filepath.IsAbs(c.Paths.OutputFile) {
		return c.Paths.OutputFile
	}
	return filepath.Join(c.Paths.OutputDir, c.Paths.OutputFile)
}

// BatchSize returns the effective batch size, which defaults to the worker count.
func (c *Config) BatchSize() int {
	if c.Workers.BatchSize > 0 {
		return c.Workers.BatchSize
	}
	return c.Workers.Count
}

// EnsureDirectories creates the output directory.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.OutputDir, filepath.Dir(c.OutputPath())}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
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
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
