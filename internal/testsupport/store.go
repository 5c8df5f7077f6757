package testsupport

import (
	"context"
	"testing"

	"fable/internal/config"
	"fable/internal/queue"
)

// MustOpenStore opens the progress store in the config's output directory and
// registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.OpenDir(cfg.Paths.OutputDir)
	if err != nil {
		t.Fatalf("queue.OpenDir: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// Register adds paths to the store as pending items.
func Register(t testing.TB, store *queue.Store, paths ...string) {
	t.Helper()

	if _, err := store.RegisterBatch(context.Background(), paths); err != nil {
		t.Fatalf("store.RegisterBatch: %v", err)
	}
}
