// Package helpers provides shared test fixtures.
package helpers

import (
	"path/filepath"
	"testing"

	"github.com/runforge/runforge/config"
	"github.com/runforge/runforge/store"
)

// TestStoreConfig returns a store configuration backed by a throwaway
// database file with a fast retry schedule.
func TestStoreConfig(t *testing.T) config.StoreConfig {
	t.Helper()
	return config.StoreConfig{
		DSN:                "file:" + filepath.Join(t.TempDir(), "test.db") + "?_busy_timeout=2000",
		BackoffMs:          []int{1, 2, 5},
		DefaultLimit:       100,
		MaxLimit:           500,
		FallbackScanWindow: 1000,
	}
}

// NewTestStore creates a SQLite store for one test.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLiteStore(TestStoreConfig(t))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}
