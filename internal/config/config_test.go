package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fable/internal/config"
)

func TestLoadDefaultsWithoutConfigFile(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("OLLAMA_HOST", "")
	work := t.TempDir()
	t.Chdir(work)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent")
	}
	if want := filepath.Join(tempHome, ".config", "fable", "config.yaml"); resolved != want {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, want)
	}
	if cfg.Configurations.Model != "llava" {
		t.Fatalf("unexpected model: %q", cfg.Configurations.Model)
	}
	if got := strings.Join(cfg.Configurations.Extensions, ","); got != ".jpg,.jpeg,.png" {
		t.Fatalf("unexpected extensions: %s", got)
	}
	if cfg.Workers.Count != 4 || cfg.BatchSize() != 4 || cfg.Workers.MaxAttempts != 1 {
		t.Fatalf("unexpected worker defaults: %#v", cfg.Workers)
	}
	if cfg.LLM.BaseURL != "http://localhost:11434" {
		t.Fatalf("unexpected llm base url: %q", cfg.LLM.BaseURL)
	}
	resolvedWork, _ := filepath.EvalSymlinks(work)
	gotDir, _ := filepath.EvalSymlinks(cfg.Paths.OutputDir)
	if gotDir != resolvedWork {
		t.Fatalf("expected output dir %q, got %q", resolvedWork, gotDir)
	}
	if filepath.Base(cfg.OutputPath()) != "out.csv" {
		t.Fatalf("unexpected output path: %q", cfg.OutputPath())
	}
	if err := cfg.RequireAccessories(); err == nil {
		t.Fatal("expected missing accessories to be reported")
	}
}

func TestLoadYAMLPreservesAccessoryOrder(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OLLAMA_HOST", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `configurations:
  model: llava:13b
  detect_faces: true
  extensions: [jpg, .PNG, jpg, ""]
accessories:
  zipper: Zip on clothing
  hat: Head covering
  beard: Facial hair
workers:
  count: 8
  batch_size: 16
  max_attempts: 3
paths:
  output_dir: ` + dir + `
  output_file: labels.csv
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected config at %q, got %q (exists=%v)", path, resolved, exists)
	}
	if got := strings.Join(cfg.Accessories.Names(), ","); got != "zipper,hat,beard" {
		t.Fatalf("accessory order not preserved: %s", got)
	}
	if cfg.Accessories[1].Description != "Head covering" {
		t.Fatalf("unexpected description: %#v", cfg.Accessories[1])
	}
	if !cfg.Configurations.DetectFaces || cfg.Configurations.Model != "llava:13b" {
		t.Fatalf("unexpected configurations: %#v", cfg.Configurations)
	}
	if got := strings.Join(cfg.Configurations.Extensions, ","); got != ".jpg,.PNG" {
		t.Fatalf("unexpected extensions: %s", got)
	}
	if cfg.BatchSize() != 16 || cfg.Workers.MaxAttempts != 3 {
		t.Fatalf("unexpected workers: %#v", cfg.Workers)
	}
	if cfg.OutputPath() != filepath.Join(dir, "labels.csv") {
		t.Fatalf("unexpected output path: %q", cfg.OutputPath())
	}
}

func TestLoadTOMLAccessoryTables(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OLLAMA_HOST", "")
	path := filepath.Join(t.TempDir(), "fable.toml")
	content := `[configurations]
model = "bakllava"

[[accessories]]
name = "glasses"
description = "Eyewear"

[[accessories]]
name = "mask"
description = "Face mask"

[llm]
requests_per_second = 2.5
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got := strings.Join(cfg.Accessories.Names(), ","); got != "glasses,mask" {
		t.Fatalf("unexpected accessories: %s", got)
	}
	if cfg.Configurations.Model != "bakllava" || cfg.LLM.RequestsPerSecond != 2.5 {
		t.Fatalf("unexpected config: %#v", cfg)
	}
	if cfg.LLM.TimeoutSeconds != config.Default().LLM.TimeoutSeconds {
		t.Fatalf("expected default timeout, got %d", cfg.LLM.TimeoutSeconds)
	}
}

func TestOllamaHostEnvironmentFallback(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OLLAMA_HOST", "10.0.0.5:11434")
	t.Chdir(t.TempDir())

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LLM.BaseURL != "http://10.0.0.5:11434" {
		t.Fatalf("expected OLLAMA_HOST fallback, got %q", cfg.LLM.BaseURL)
	}
}

func TestValidationErrorsNameTheKey(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OLLAMA_HOST", "")
	cases := map[string]struct {
		content string
		want    string
	}{
		"duplicate accessory": {
			content: "accessories:\n  - name: hat\n    description: a\n  - name: hat\n    description: b\n",
			want:    "accessories.hat",
		},
		"bad log format": {
			content: "logging:\n  format: xml\n",
			want:    "logging.format",
		},
		"bad base url": {
			content: "llm:\n  base_url: not a url\n",
			want:    "llm.base_url",
		},
		"accessories scalar": {
			content: "accessories: hat\n",
			want:    "accessories",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tc.content), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			_, _, _, err := config.Load(path)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateSampleLoads(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OLLAMA_HOST", "")
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample failed: %v", err)
	}
	if !exists {
		t.Fatal("expected sample file to exist")
	}
	if err := cfg.RequireAccessories(); err != nil {
		t.Fatalf("sample should configure accessories: %v", err)
	}
	if cfg.Accessories[0].Name != "glasses" {
		t.Fatalf("unexpected first accessory: %#v", cfg.Accessories[0])
	}
}
