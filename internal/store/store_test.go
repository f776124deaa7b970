// scrimshaw:ledger-sql-allowed (test fixtures write raw rows to exercise the guard)
package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_OpensExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open() failed: %v", err)
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer s2.Close()

	var count int
	err = s2.db.QueryRow("SELECT COUNT(*) FROM ops__events").Scan(&count)
	if err != nil {
		t.Errorf("query failed: %v", err)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	tables := []string{"ops__events", "state__entities", "state__owners", "state__declarations", "ledger_meta"}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestOpenExisting_MissingFile(t *testing.T) {
	_, err := OpenExisting(filepath.Join(t.TempDir(), "absent.db"))
	if err == nil {
		t.Error("expected error for a missing database file, got nil")
	}
}

func TestOpenExisting_DoesNotRepairSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if _, err := s.db.Exec(`DROP TRIGGER ops_events_no_delete`); err != nil {
		t.Fatalf("drop trigger failed: %v", err)
	}
	s.Close()

	s2, err := OpenExisting(path)
	if err != nil {
		t.Fatalf("OpenExisting() failed: %v", err)
	}
	defer s2.Close()

	var count int
	err = s2.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='trigger' AND name='ops_events_no_delete'",
	).Scan(&count)
	if err != nil {
		t.Fatalf("query sqlite_master failed: %v", err)
	}
	if count != 0 {
		t.Error("dropped trigger was reinstalled by OpenExisting")
	}
}

func TestOpen_AppliesPragmas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if err := s.verifyPragma("journal_mode", "wal"); err != nil {
		t.Error(err)
	}
	if err := s.verifyPragma("foreign_keys", "1"); err != nil {
		t.Error(err)
	}
}

func TestInstanceID_StableAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	id1, err := s1.InstanceID(ctx)
	if err != nil {
		t.Fatalf("InstanceID() failed: %v", err)
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()
	id2, err := s2.InstanceID(ctx)
	if err != nil {
		t.Fatalf("InstanceID() after reopen failed: %v", err)
	}

	if id1 == "" {
		t.Error("instance id is empty")
	}
	if id1 != id2 {
		t.Errorf("instance id changed across opens: %q != %q", id1, id2)
	}
}

func TestInstanceID_DiffersPerDatabase(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s1, err := Open(filepath.Join(dir, "a.db"))
	if err != nil {
		t.Fatalf("Open(a) failed: %v", err)
	}
	defer s1.Close()
	s2, err := Open(filepath.Join(dir, "b.db"))
	if err != nil {
		t.Fatalf("Open(b) failed: %v", err)
	}
	defer s2.Close()

	id1, _ := s1.InstanceID(ctx)
	id2, _ := s2.InstanceID(ctx)
	if id1 == id2 {
		t.Errorf("distinct databases share instance id %q", id1)
	}
}

func TestSingleActiveOwnerIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	mustExec(t, s, `INSERT INTO state__entities (entity_ref) VALUES ('org:acme/entity:quote:1')`)
	mustExec(t, s, `
		INSERT INTO state__owners (entity_ref, owner_actor_ref, assigned_by_actor_ref)
		VALUES ('org:acme/entity:quote:1', 'org:acme/actor:jane', 'org:acme/actor:admin')`)

	// A second active row for the same entity must be refused by the
	// partial unique index.
	_, err = s.db.Exec(`
		INSERT INTO state__owners (entity_ref, owner_actor_ref, assigned_by_actor_ref)
		VALUES ('org:acme/entity:quote:1', 'org:acme/actor:bob', 'org:acme/actor:admin')`)
	if err == nil {
		t.Fatal("second active owner row was accepted")
	}
	if !IsConstraintViolation(err) {
		t.Errorf("expected constraint violation, got: %v", err)
	}
}

func mustExec(t *testing.T, s *Store, query string, args ...any) {
	t.Helper()
	if _, err := s.db.Exec(query, args...); err != nil {
		t.Fatalf("exec %q failed: %v", query, err)
	}
}
