package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"fable/internal/testsupport"
)

type cliTestEnv struct {
	baseDir    string
	dataDir    string
	outputDir  string
	configPath string
	chats      *atomic.Int64
}

func setupCLITestEnv(t *testing.T, images ...string) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	t.Setenv("OLLAMA_HOST", "")

	var chats atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/tags":
			fmt.Fprint(w, `{"models":[{"name":"llava:latest"}]}`)
		case "/api/chat":
			chats.Add(1)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"message": map[string]string{"role": "assistant", "content": `{"glasses":1,"hat":0}`},
				"done":    true,
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	env := &cliTestEnv{
		baseDir:    base,
		dataDir:    filepath.Join(base, "data"),
		outputDir:  filepath.Join(base, "output"),
		configPath: filepath.Join(base, "config.yaml"),
		chats:      &chats,
	}
	writeTestConfig(t, env.configPath, env.outputDir, server.URL)

	if err := os.MkdirAll(env.dataDir, 0o755); err != nil {
		t.Fatalf("mkdir data: %v", err)
	}
	for _, name := range images {
		testsupport.WriteImage(t, filepath.Join(env.dataDir, name), 20, 10)
	}
	return env
}

func writeTestConfig(t *testing.T, path, outputDir, baseURL string) {
	t.Helper()
	content := fmt.Sprintf(`configurations:
  model: llava
accessories:
  glasses: Eyeglasses or sunglasses
  hat: Any head covering
workers:
  count: 2
paths:
  output_dir: %q
llm:
  base_url: %q
  retry_attempts: 1
logging:
  level: warn
`, outputDir, baseURL)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
