package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "runs: one row per engine lifetime",
		SQL: `
CREATE TABLE runs (
    id          TEXT PRIMARY KEY,
    source      TEXT NOT NULL,
    params      TEXT NOT NULL DEFAULT '{}',
    dimensions  INTEGER NOT NULL DEFAULT 0,
    points      INTEGER NOT NULL DEFAULT 0,
    started_at  INTEGER NOT NULL,
    finished_at INTEGER
);

CREATE INDEX idx_runs_started ON runs(started_at DESC);
`,
	},
	{
		Version:     2,
		Description: "snapshots: published offline clusterings",
		SQL: `
CREATE TABLE snapshots (
    id            INTEGER PRIMARY KEY,
    run_id        TEXT NOT NULL,
    pass          INTEGER NOT NULL,
    tick          INTEGER NOT NULL,
    mode          TEXT NOT NULL CHECK (mode IN ('incremental', 'full', 'coldstart')),
    cluster_count INTEGER NOT NULL DEFAULT 0,
    noise_count   INTEGER NOT NULL DEFAULT 0,
    created_at    INTEGER NOT NULL,

    UNIQUE (run_id, pass),
    FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE INDEX idx_snapshots_run ON snapshots(run_id, pass);
`,
	},
	{
		Version:     3,
		Description: "snapshot_clusters: macro-clusters of a snapshot",
		SQL: `
CREATE TABLE snapshot_clusters (
    snapshot_id INTEGER NOT NULL,
    cluster_id  INTEGER NOT NULL,
    weight      REAL NOT NULL,
    size        INTEGER NOT NULL,
    center      BLOB NOT NULL,
    dimensions  INTEGER NOT NULL,
    members     TEXT NOT NULL DEFAULT '[]',

    PRIMARY KEY (snapshot_id, cluster_id),
    FOREIGN KEY (snapshot_id) REFERENCES snapshots(id) ON DELETE CASCADE
);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
