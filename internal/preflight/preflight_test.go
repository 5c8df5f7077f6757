package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fable/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if !strings.Contains(result.Detail, "does not exist") {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestCheckReadableDir_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckReadableDir("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if result := CheckFreeSpace("space", dir, 1); !result.Passed {
		t.Fatalf("expected pass with 1 byte minimum, got %s", result.Detail)
	}
	result := CheckFreeSpace("space", dir, 1<<62)
	if result.Passed {
		t.Fatal("expected failure for absurd minimum")
	}
	if !strings.Contains(result.Detail, "need") {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func newOllama(t *testing.T, models string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(models))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCheckLLM_ModelPresent(t *testing.T) {
	srv := newOllama(t, `{"models":[{"name":"llava:latest","model":"llava:latest"}]}`)
	cfg := testsupport.NewConfig(t, testsupport.WithLLMBaseURL(srv.URL))

	result := CheckLLM(context.Background(), "Vision model", cfg)
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckLLM_ModelMissing(t *testing.T) {
	srv := newOllama(t, `{"models":[{"name":"qwen2.5vl:7b","model":"qwen2.5vl:7b"}]}`)
	cfg := testsupport.NewConfig(t, testsupport.WithLLMBaseURL(srv.URL))

	result := CheckLLM(context.Background(), "Vision model", cfg)
	if result.Passed {
		t.Fatal("expected failure when model is missing")
	}
	if !strings.Contains(result.Detail, "ollama pull llava") {
		t.Fatalf("expected pull hint, got %q", result.Detail)
	}
}

func TestRunAllReportsEveryCheck(t *testing.T) {
	srv := newOllama(t, `{"models":[{"name":"llava:latest"}]}`)
	cfg := testsupport.NewConfig(t, testsupport.WithLLMBaseURL(srv.URL))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}

	results := RunAll(context.Background(), cfg, filepath.Join(t.TempDir(), "missing"))
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	failed := Failures(results)
	if len(failed) != 1 || failed[0].Name != "Data directory" {
		t.Fatalf("expected only the data directory to fail, got %#v", failed)
	}
}
