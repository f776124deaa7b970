package testutil

import (
	"path/filepath"
	"testing"

	"github.com/roach88/scrimshaw/internal/config"
	"github.com/roach88/scrimshaw/internal/store"
)

// OpenTestStore opens a throwaway ledger database under t.TempDir and closes
// it when the test finishes. The path is checked against the test-database
// policy before opening, so a helper misuse can never resolve to a
// production ledger.
func OpenTestStore(t *testing.T, name string) *store.Store {
	t.Helper()

	cfg := &config.Config{DBPath: filepath.Join(t.TempDir(), name)}
	if err := cfg.RequireTestPath(); err != nil {
		t.Fatalf("refusing to open test store: %v", err)
	}

	s, err := store.Open(cfg.DBPath)
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
