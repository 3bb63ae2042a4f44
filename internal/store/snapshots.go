package store

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Snapshot is the header of one recorded offline clustering.
type Snapshot struct {
	ID           int64
	RunID        string
	Pass         int64
	Tick         int64
	Mode         string
	ClusterCount int
	NoiseCount   int
	CreatedAt    int64
}

// SnapshotCluster is one macro-cluster of a snapshot.
type SnapshotCluster struct {
	SnapshotID int64
	ClusterID  int64
	Weight     float64
	Size       int
	Center     []float64
	Members    []uint64
}

// encodeVector converts a []float64 to a binary BLOB (8 bytes per float64).
func encodeVector(vec []float64) []byte {
	buf := make([]byte, len(vec)*8)
	for i, v := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// decodeVector converts a binary BLOB back to []float64.
func decodeVector(buf []byte) []float64 {
	n := len(buf) / 8
	vec := make([]float64, n)
	for i := 0; i < n; i++ {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vec
}

// SaveSnapshot writes a snapshot and its clusters in one transaction and
// sets s.ID. Saving the same run pass twice fails.
func (db *DB) SaveSnapshot(s *Snapshot, clusters []SnapshotCluster) error {
	if s.CreatedAt == 0 {
		s.CreatedAt = time.Now().UnixMilli()
	}
	s.ClusterCount = len(clusters)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		INSERT INTO snapshots (run_id, pass, tick, mode, cluster_count, noise_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, s.RunID, s.Pass, s.Tick, s.Mode, s.ClusterCount, s.NoiseCount, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	s.ID, _ = result.LastInsertId()

	for i := range clusters {
		c := &clusters[i]
		c.SnapshotID = s.ID
		members, err := json.Marshal(c.Members)
		if err != nil {
			return fmt.Errorf("marshal members: %w", err)
		}
		if _, err := tx.Exec(`
			INSERT INTO snapshot_clusters (snapshot_id, cluster_id, weight, size, center, dimensions, members)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, s.ID, c.ClusterID, c.Weight, c.Size, encodeVector(c.Center), len(c.Center), string(members)); err != nil {
			return fmt.Errorf("insert cluster %d: %w", c.ClusterID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns a snapshot header, or nil if not found.
func (db *DB) GetSnapshot(id int64) (*Snapshot, error) {
	var s Snapshot
	err := db.QueryRow(`
		SELECT id, run_id, pass, tick, mode, cluster_count, noise_count, created_at
		FROM snapshots WHERE id = ?
	`, id).Scan(&s.ID, &s.RunID, &s.Pass, &s.Tick, &s.Mode, &s.ClusterCount, &s.NoiseCount, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return &s, nil
}

// ListSnapshots returns the snapshots of a run in pass order.
func (db *DB) ListSnapshots(runID string) ([]Snapshot, error) {
	rows, err := db.Query(`
		SELECT id, run_id, pass, tick, mode, cluster_count, noise_count, created_at
		FROM snapshots WHERE run_id = ? ORDER BY pass
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var s Snapshot
		if err := rows.Scan(&s.ID, &s.RunID, &s.Pass, &s.Tick, &s.Mode, &s.ClusterCount, &s.NoiseCount, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetSnapshotClusters returns the clusters of a snapshot ordered by cluster id.
func (db *DB) GetSnapshotClusters(snapshotID int64) ([]SnapshotCluster, error) {
	rows, err := db.Query(`
		SELECT snapshot_id, cluster_id, weight, size, center, members
		FROM snapshot_clusters WHERE snapshot_id = ? ORDER BY cluster_id
	`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("get snapshot clusters: %w", err)
	}
	defer rows.Close()

	var out []SnapshotCluster
	for rows.Next() {
		var c SnapshotCluster
		var blob []byte
		var members string
		if err := rows.Scan(&c.SnapshotID, &c.ClusterID, &c.Weight, &c.Size, &blob, &members); err != nil {
			return nil, fmt.Errorf("scan snapshot cluster: %w", err)
		}
		c.Center = decodeVector(blob)
		if err := json.Unmarshal([]byte(members), &c.Members); err != nil {
			return nil, fmt.Errorf("decode members of cluster %d: %w", c.ClusterID, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// LatestSnapshot returns the highest pass recorded for a run, or nil.
func (db *DB) LatestSnapshot(runID string) (*Snapshot, error) {
	var id int64
	err := db.QueryRow(`
		SELECT id FROM snapshots WHERE run_id = ? ORDER BY pass DESC LIMIT 1
	`, runID).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	return db.GetSnapshot(id)
}
