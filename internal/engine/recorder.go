package engine

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/lazypower/substream/internal/store"
)

// Attach records this engine as a new run in db. Later snapshots are
// written under RunID.
func (e *Engine) Attach(db *store.DB, source string) error {
	params, err := json.Marshal(e.cfg)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	run := &store.Run{
		ID:         e.RunID,
		Source:     source,
		Params:     string(params),
		Dimensions: e.Dimensions(),
	}
	if err := db.CreateRun(run); err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	e.DB = db
	return nil
}

// RecordSnapshot writes the latest macro snapshot to the database unless it
// was already recorded. It reports whether a snapshot was written.
func (e *Engine) RecordSnapshot() (bool, error) {
	if e.DB == nil {
		return false, nil
	}
	e.recordMu.Lock()
	defer e.recordMu.Unlock()

	snap := e.MacroClustering()
	if snap.Pass == 0 || snap.Pass <= e.recorded {
		return false, nil
	}

	header := &store.Snapshot{
		RunID:      e.RunID,
		Pass:       int64(snap.Pass),
		Tick:       int64(snap.Tick),
		Mode:       snap.Mode,
		NoiseCount: len(snap.Noise),
		CreatedAt:  snap.CreatedAt.UnixMilli(),
	}
	clusters := make([]store.SnapshotCluster, 0, len(snap.Clusters))
	for _, c := range snap.Clusters {
		ids := make([]uint64, len(c.Members))
		for i, m := range c.Members {
			ids[i] = m.ID
		}
		clusters = append(clusters, store.SnapshotCluster{
			ClusterID: int64(c.ID),
			Weight:    c.Weight,
			Size:      len(c.Members),
			Center:    c.Center,
			Members:   ids,
		})
	}
	if err := e.DB.SaveSnapshot(header, clusters); err != nil {
		return false, fmt.Errorf("record snapshot: %w", err)
	}

	e.recorded = snap.Pass
	return true, nil
}

// StartSnapshotTimer records the latest macro snapshot every interval until
// Stop is called.
func (e *Engine) StartSnapshotTimer(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if ok, err := e.RecordSnapshot(); err != nil {
					log.Printf("snapshot error: %v", err)
				} else if ok {
					log.Printf("snapshot: recorded pass %d", e.MacroClustering().Pass)
				}
			case <-e.stopCh:
				return
			}
		}
	}()
}

// Stop shuts down the snapshot timer, records the final snapshot and closes
// the run. It is safe to call more than once.
func (e *Engine) Stop() {
	e.stopped.Do(func() {
		close(e.stopCh)
		if e.DB == nil {
			return
		}
		if _, err := e.RecordSnapshot(); err != nil {
			log.Printf("snapshot error: %v", err)
		}
		if err := e.DB.FinishRun(e.RunID, e.Points(), e.Dimensions()); err != nil {
			log.Printf("finish run: %v", err)
		}
	})
}
