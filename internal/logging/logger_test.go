package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fable/internal/config"
	"fable/internal/logging"
	"fable/internal/services"
)

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.OutputDir = t.TempDir()

	logger, closer, err := logging.NewFromConfig(&cfg, false)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("run started", logging.String(logging.FieldRunID, "abc"))
	logger.Debug("hidden at info")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(cfg.Paths.OutputDir, logging.LogFileName))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one json line, got %d: %q", len(lines), data)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["msg"] != "run started" || entry["level"] != "info" || entry["run_id"] != "abc" {
		t.Fatalf("unexpected entry %#v", entry)
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("expected ts key, got %#v", entry)
	}
}

func TestNewFromConfigVerboseEnablesDebug(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.OutputDir = t.TempDir()

	logger, closer, err := logging.NewFromConfig(&cfg, true)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	defer closer.Close()
	if !logger.Enabled(context.Background(), -4) {
		t.Fatal("expected debug level to be enabled")
	}
}

func TestConsoleLoggerFormatsSubjectAndFields(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := logging.New(logging.Options{Level: "info", Format: "console", Console: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithBatchID(context.Background(), "0123456789abcdef")
	ctx = services.WithItemPath(ctx, "/data/faces/a.jpg")
	logger = logging.WithContext(ctx, logging.NewComponentLogger(logger, "dispatch"))
	logger.Info("item committed",
		logging.Int64("records", 12345),
		logging.Int64("size_bytes", 2048),
		logging.Duration("duration", 1500*time.Millisecond),
	)

	out := buf.String()
	for _, fragment := range []string{
		"INFO [dispatch] Batch 01234567 · a.jpg – item committed",
		"- Records: 12,345",
		"- Size Bytes: 2.0 KiB",
		"- Duration: 1.5s",
	} {
		if !strings.Contains(out, fragment) {
			t.Fatalf("expected %q in output:\n%s", fragment, out)
		}
	}
	if strings.Contains(out, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", out)
	}
}

func TestConsoleLoggerHidesDebugOnlyKeysAtInfo(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := logging.New(logging.Options{Level: "info", Console: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("started", logging.String(logging.FieldRunID, "run-1"))
	if strings.Contains(buf.String(), "run-1") {
		t.Fatalf("expected run id hidden at info, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "+ 1 more field hidden") {
		t.Fatalf("expected hidden marker, got %q", buf.String())
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := logging.New(logging.Options{Level: "info", Format: "json", Console: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "row changed underneath", "commit_conflict")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{logging.FieldEventType, logging.FieldErrorHint, logging.FieldImpact} {
		if _, ok := entry[key]; !ok {
			t.Fatalf("expected %s in %#v", key, entry)
		}
	}
	if entry[logging.FieldEventType] != "commit_conflict" {
		t.Fatalf("unexpected event type %v", entry[logging.FieldEventType])
	}
}

func TestWarnWithContextKeepsCallerFields(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := logging.New(logging.Options{Level: "info", Format: "json", Console: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "ntfy offline", "notify_failed",
		logging.String(logging.FieldImpact, "events dropped"),
	)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry[logging.FieldImpact] != "events dropped" {
		t.Fatalf("impact overwritten: %v", entry[logging.FieldImpact])
	}
	if strings.Count(buf.String(), `"`+logging.FieldImpact+`"`) != 1 {
		t.Fatalf("impact repeated in %s", buf.String())
	}
}

func TestNewRejectsUnknownFormatAndLevel(t *testing.T) {
	if _, _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
	if _, _, err := logging.New(logging.Options{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	if logger.Enabled(context.Background(), 8) {
		t.Fatal("nop logger should not be enabled")
	}
	logger.Error("ignored")
}
