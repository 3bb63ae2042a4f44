package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/lazypower/substream/internal/engine"
	"github.com/lazypower/substream/internal/micro"
	"github.com/lazypower/substream/internal/store"
)

// maxBatchBytes bounds one POST /api/points body.
const maxBatchBytes = 32 << 20

type pointsRequest struct {
	Points    [][]float64 `json:"points"`
	Timestamp *uint64     `json:"timestamp"`
}

type pointsResponse struct {
	Accepted int    `json:"accepted"`
	Tick     uint64 `json:"tick"`
	Error    string `json:"error,omitempty"`
}

// handlePoints feeds a batch in order. With a timestamp every point arrives
// at that tick; without one the engine clock assigns ticks. The first
// rejected point stops the batch.
func (s *Server) handlePoints(w http.ResponseWriter, r *http.Request) {
	var req pointsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBatchBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if len(req.Points) == 0 {
		writeError(w, http.StatusBadRequest, "points required")
		return
	}

	resp := pointsResponse{Tick: s.engine.Tick()}
	for _, p := range req.Points {
		var err error
		if req.Timestamp != nil {
			resp.Tick = *req.Timestamp
			err = s.engine.Train(p, *req.Timestamp)
		} else {
			resp.Tick, err = s.engine.Observe(p)
		}
		if err != nil {
			resp.Error = err.Error()
			writeJSON(w, statusOf(err), resp)
			return
		}
		resp.Accepted++
	}
	writeJSON(w, http.StatusOK, resp)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, engine.ErrDimensionMismatch), errors.Is(err, engine.ErrInvalidPoint):
		return http.StatusBadRequest
	case errors.Is(err, micro.ErrInvalidTimestamp):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleMicroClusters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.MicroClustering())
}

func (s *Server) handleMacroClusters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.MacroClustering())
}

func (s *Server) handleRecluster(w http.ResponseWriter, r *http.Request) {
	snap, err := s.engine.Recluster()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if _, err := s.engine.RecordSnapshot(); err != nil {
		log.Printf("recluster: %v", err)
	}
	writeJSON(w, http.StatusOK, snap)
}

type runView struct {
	ID         string          `json:"id"`
	Source     string          `json:"source"`
	Params     json.RawMessage `json:"params"`
	Dimensions int             `json:"dimensions"`
	Points     int64           `json:"points"`
	StartedAt  int64           `json:"started_at"`
	FinishedAt *int64          `json:"finished_at,omitempty"`
}

type snapshotView struct {
	ID           int64  `json:"id"`
	RunID        string `json:"run_id"`
	Pass         int64  `json:"pass"`
	Tick         int64  `json:"tick"`
	Mode         string `json:"mode"`
	ClusterCount int    `json:"cluster_count"`
	NoiseCount   int    `json:"noise_count"`
	CreatedAt    int64  `json:"created_at"`
}

type clusterView struct {
	ID      int64     `json:"id"`
	Weight  float64   `json:"weight"`
	Size    int       `json:"size"`
	Center  []float64 `json:"center"`
	Members []uint64  `json:"members"`
}

func viewOfSnapshot(sn store.Snapshot) snapshotView {
	return snapshotView{
		ID:           sn.ID,
		RunID:        sn.RunID,
		Pass:         sn.Pass,
		Tick:         sn.Tick,
		Mode:         sn.Mode,
		ClusterCount: sn.ClusterCount,
		NoiseCount:   sn.NoiseCount,
		CreatedAt:    sn.CreatedAt,
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeError(w, http.StatusServiceUnavailable, "history not configured")
		return
	}
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := s.db.ListRuns(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]runView, 0, len(runs))
	for _, run := range runs {
		out = append(out, runView{
			ID:         run.ID,
			Source:     run.Source,
			Params:     json.RawMessage(run.Params),
			Dimensions: run.Dimensions,
			Points:     run.Points,
			StartedAt:  run.StartedAt,
			FinishedAt: run.FinishedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": out})
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeError(w, http.StatusServiceUnavailable, "history not configured")
		return
	}
	runID := chi.URLParam(r, "runID")

	run, err := s.db.GetRun(runID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}

	snaps, err := s.db.ListSnapshots(runID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]snapshotView, 0, len(snaps))
	for _, sn := range snaps {
		out = append(out, viewOfSnapshot(sn))
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": runID, "snapshots": out})
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeError(w, http.StatusServiceUnavailable, "history not configured")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "snapshotID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid snapshot id")
		return
	}

	sn, err := s.db.GetSnapshot(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sn == nil {
		writeError(w, http.StatusNotFound, "snapshot not found")
		return
	}
	clusters, err := s.db.GetSnapshotClusters(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]clusterView, 0, len(clusters))
	for _, c := range clusters {
		out = append(out, clusterView{
			ID:      c.ClusterID,
			Weight:  c.Weight,
			Size:    c.Size,
			Center:  c.Center,
			Members: c.Members,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"snapshot": viewOfSnapshot(*sn),
		"clusters": out,
	})
}
