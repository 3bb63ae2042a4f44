package store

import (
	"path/filepath"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenMemory(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	if db.Path != ":memory:" {
		t.Errorf("Path = %q, want :memory:", db.Path)
	}
}

func TestOpenMemoryUsesOneConnection(t *testing.T) {
	db := testDB(t)
	if n := db.Stats().MaxOpenConnections; n != 1 {
		t.Fatalf("MaxOpenConnections = %d, want 1", n)
	}

	// Tables created by migrate stay visible to later queries.
	if err := db.CreateRun(&Run{ID: "r1", Source: "mem"}); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	run, err := db.GetRun("r1")
	if err != nil || run == nil {
		t.Fatalf("GetRun = %v, %v", run, err)
	}
}

func TestOpenCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "substream.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if db.Path != path {
		t.Errorf("Path = %q, want %q", db.Path, path)
	}
}

func TestSchemaVersion(t *testing.T) {
	db := testDB(t)

	v, err := db.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != 3 {
		t.Errorf("SchemaVersion = %d, want 3", v)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)
	if err := db.migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	v, _ := db.SchemaVersion()
	if v != 3 {
		t.Errorf("SchemaVersion = %d, want 3", v)
	}
}

func TestTablesExist(t *testing.T) {
	db := testDB(t)

	tables := []string{"schema_versions", "runs", "snapshots", "snapshot_clusters"}
	for _, table := range tables {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}
}

func TestSnapshotModeConstraint(t *testing.T) {
	db := testDB(t)
	if err := db.CreateRun(&Run{ID: "r1", Source: "test"}); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	_, err := db.Exec(`
		INSERT INTO snapshots (run_id, pass, tick, mode, created_at)
		VALUES ('r1', 1, 0, 'bogus', 1000)
	`)
	if err == nil {
		t.Error("expected error for invalid mode, got nil")
	}
}
