package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lazypower/substream/internal/engine"
	"github.com/lazypower/substream/internal/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the substream HTTP API server.
type Server struct {
	db      *store.DB
	engine  *engine.Engine
	router  chi.Router
	version string
	started time.Time
}

// New creates a new Server over eng. db may be nil, in which case the
// history routes report 503.
func New(db *store.DB, eng *engine.Engine, version string) *Server {
	s := &Server{
		db:      db,
		engine:  eng,
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/points", s.handlePoints)
		r.Get("/microclusters", s.handleMicroClusters)
		r.Get("/macroclusters", s.handleMacroClusters)
		r.Post("/recluster", s.handleRecluster)

		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{runID}/snapshots", s.handleListSnapshots)
		r.Get("/snapshots/{snapshotID}", s.handleGetSnapshot)
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.engine.Metrics.Registry, promhttp.HandlerOpts{}))

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := s.db != nil && s.db.Ping() == nil
	dbPath := ""
	if s.db != nil {
		dbPath = s.db.Path
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"version":    s.version,
		"uptime":     time.Since(s.started).Seconds(),
		"db":         dbOK,
		"db_path":    dbPath,
		"run_id":     s.engine.RunID,
		"tick":       s.engine.Tick(),
		"points":     s.engine.Points(),
		"dimensions": s.engine.Dimensions(),
		"tspan":      s.engine.Tspan(),
		"clustering": s.engine.Config(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
