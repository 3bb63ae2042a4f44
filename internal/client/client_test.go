package client

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewRespectsEnv(t *testing.T) {
	t.Setenv("SUBSTREAM_URL", "http://example.test:9000")
	if got := New("").URL(); got != "http://example.test:9000" {
		t.Errorf("URL = %q, want env value", got)
	}
	if got := New("http://other:1").URL(); got != "http://other:1" {
		t.Errorf("URL = %q, explicit value should win", got)
	}

	t.Setenv("SUBSTREAM_URL", "")
	if got := New("").URL(); got != defaultServerURL {
		t.Errorf("URL = %q, want %q", got, defaultServerURL)
	}
}

func TestClientHealthyFalseWhenDown(t *testing.T) {
	client := New("http://127.0.0.1:1")
	if client.Healthy() {
		t.Error("expected Healthy() = false when server is not running")
	}
}

func TestPushPoints(t *testing.T) {
	var got PointsRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/api/points" {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		json.NewEncoder(w).Encode(PointsResponse{Accepted: len(got.Points), Tick: 4})
	}))
	defer ts.Close()

	ts4 := uint64(4)
	resp, err := New(ts.URL).PushPoints([][]float64{{1, 2}, {3, 4}}, &ts4)
	if err != nil {
		t.Fatalf("PushPoints: %v", err)
	}
	if resp.Accepted != 2 || resp.Tick != 4 {
		t.Errorf("response = %+v", resp)
	}
	if got.Timestamp == nil || *got.Timestamp != 4 {
		t.Errorf("timestamp not sent: %+v", got)
	}
	if len(got.Points) != 2 || got.Points[1][1] != 4 {
		t.Errorf("points = %v", got.Points)
	}
}

func TestPushPointsRejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(PointsResponse{Accepted: 1, Error: "dimension mismatch"})
	}))
	defer ts.Close()

	resp, err := New(ts.URL).PushPoints([][]float64{{1, 2}, {3}}, nil)
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadRequest {
		t.Fatalf("error = %v, want StatusError 400", err)
	}
	if resp == nil || resp.Accepted != 1 || resp.Error != "dimension mismatch" {
		t.Errorf("response = %+v", resp)
	}
}

func TestMacroClusters(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/macroclusters":
			w.Write([]byte(`{"pass":3,"tick":12,"mode":"incremental","clusters":[{"id":7,"weight":4.5,"center":[1,2],"members":[]}],"noise":[9]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	snap, err := New(ts.URL).MacroClusters()
	if err != nil {
		t.Fatalf("MacroClusters: %v", err)
	}
	if snap.Pass != 3 || len(snap.Clusters) != 1 || snap.Clusters[0].ID != 7 {
		t.Errorf("snapshot = %+v", snap)
	}
	if len(snap.Noise) != 1 || snap.Noise[0] != 9 {
		t.Errorf("noise = %v", snap.Noise)
	}

	if _, err := New(ts.URL).MicroClusters(); err == nil {
		t.Error("expected error for missing route")
	}
}
