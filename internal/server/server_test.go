package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lazypower/substream/internal/config"
	"github.com/lazypower/substream/internal/engine"
	"github.com/lazypower/substream/internal/store"
)

// testConfig gives Tspan 10: the first point at tick 0 triggers a pruning
// pass and publishes pass 1.
func testConfig() config.ClusteringConfig {
	c := config.Default().Clustering
	c.Epsilon = 1
	c.Mu = 1
	c.MuOffline = 1
	c.Beta = 1
	c.Lambda = 0.1
	c.Pi = 2
	c.Tau = 2
	c.Delta = 0.01
	c.InitPoints = 0
	c.ProcessingSpeed = 1
	return c
}

func testServer(t *testing.T) (*Server, *engine.Engine) {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	eng, err := engine.New(testConfig())
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	if err := eng.Attach(db, "test"); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	t.Cleanup(eng.Stop)
	return New(db, eng, "test-version"), eng
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	srv, eng := testServer(t)

	w := do(t, srv, "GET", "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if body["version"] != "test-version" {
		t.Errorf("version = %v, want test-version", body["version"])
	}
	if body["db"] != true {
		t.Errorf("db = %v, want true", body["db"])
	}
	if body["run_id"] != eng.RunID {
		t.Errorf("run_id = %v, want %s", body["run_id"], eng.RunID)
	}
	if body["tspan"] != float64(10) {
		t.Errorf("tspan = %v, want 10", body["tspan"])
	}
	clustering, ok := body["clustering"].(map[string]any)
	if !ok {
		t.Fatalf("clustering = %v, want object", body["clustering"])
	}
	if clustering["epsilon"] != float64(1) || clustering["mu_offline"] != float64(1) {
		t.Errorf("clustering = %v, want epsilon 1 and mu_offline 1", clustering)
	}
}

func TestHealthWithoutHistory(t *testing.T) {
	eng, err := engine.New(testConfig())
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(eng.Stop)
	srv := New(nil, eng, "v")

	w := do(t, srv, "GET", "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]any
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["db"] != false {
		t.Errorf("db = %v, want false", body["db"])
	}

	if w := do(t, srv, "GET", "/api/runs", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("runs status = %d, want 503", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := testServer(t)
	do(t, srv, "POST", "/api/points", `{"points":[[0,0]],"timestamp":0}`)

	w := do(t, srv, "GET", "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	for _, name := range []string{"substream_points_total", "substream_outlier_microclusters", "substream_tick"} {
		if !strings.Contains(w.Body.String(), name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}

func TestUnknownRoute(t *testing.T) {
	srv, _ := testServer(t)
	if w := do(t, srv, "GET", "/api/nope", ""); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
