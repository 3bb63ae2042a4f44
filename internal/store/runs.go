package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Run is one engine lifetime. Params holds the clustering configuration as
// JSON.
type Run struct {
	ID         string
	Source     string
	Params     string
	Dimensions int
	Points     int64
	StartedAt  int64
	FinishedAt *int64
}

// CreateRun inserts a new run. StartedAt defaults to now.
func (db *DB) CreateRun(r *Run) error {
	if r.StartedAt == 0 {
		r.StartedAt = time.Now().UnixMilli()
	}
	if r.Params == "" {
		r.Params = "{}"
	}
	_, err := db.Exec(`
		INSERT INTO runs (id, source, params, dimensions, points, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.ID, r.Source, r.Params, r.Dimensions, r.Points, r.StartedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun stamps the end of a run with its final point count and
// dimensionality.
func (db *DB) FinishRun(id string, points int64, dimensions int) error {
	now := time.Now().UnixMilli()
	result, err := db.Exec(`
		UPDATE runs SET finished_at = ?, points = ?, dimensions = ?
		WHERE id = ?
	`, now, points, dimensions, id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("finish run: %s not found", id)
	}
	return nil
}

// GetRun returns a run by id, or nil if not found.
func (db *DB) GetRun(id string) (*Run, error) {
	var r Run
	err := db.QueryRow(`
		SELECT id, source, params, dimensions, points, started_at, finished_at
		FROM runs WHERE id = ?
	`, id).Scan(&r.ID, &r.Source, &r.Params, &r.Dimensions, &r.Points, &r.StartedAt, &r.FinishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &r, nil
}

// ListRuns returns the most recent runs first.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, source, params, dimensions, points, started_at, finished_at
		FROM runs ORDER BY started_at DESC, id LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Source, &r.Params, &r.Dimensions, &r.Points, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
