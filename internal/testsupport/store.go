package testsupport

import (
	"context"
	"testing"

	"github.com/mohammednabarawy/video-gen/internal/config"
	"github.com/mohammednabarawy/video-gen/internal/history"
)

// MustOpenStore opens a history.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *history.Store {
	t.Helper()

	store, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewRecord creates a pending generation record for tests using the provided store.
func NewRecord(t testing.TB, store *history.Store, uuid, prompt string) *history.Record {
	t.Helper()

	record, err := store.NewRecord(context.Background(), uuid, prompt, "", "")
	if err != nil {
		t.Fatalf("store.NewRecord: %v", err)
	}
	return record
}
