package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/lazypower/substream/internal/engine"
)

const (
	defaultServerURL = "http://127.0.0.1:37777"
	httpTimeout      = 30 * time.Second
)

// Client talks to a substream server.
type Client struct {
	http      *http.Client
	serverURL string
}

// New creates a client for serverURL. An empty URL respects SUBSTREAM_URL,
// falling back to http://127.0.0.1:37777.
func New(serverURL string) *Client {
	if serverURL == "" {
		serverURL = os.Getenv("SUBSTREAM_URL")
	}
	if serverURL == "" {
		serverURL = defaultServerURL
	}
	return &Client{
		http:      &http.Client{Timeout: httpTimeout},
		serverURL: serverURL,
	}
}

// URL returns the server base URL.
func (c *Client) URL() string { return c.serverURL }

// Post sends a POST request with JSON body. Returns response body.
func (c *Client) Post(path string, body []byte) ([]byte, error) {
	resp, err := c.http.Post(c.serverURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		return data, &StatusError{Method: "POST", Path: path, Code: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}

// Get sends a GET request. Returns response body.
func (c *Client) Get(path string) ([]byte, error) {
	resp, err := c.http.Get(c.serverURL + path)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		return data, &StatusError{Method: "GET", Path: path, Code: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}

// Healthy checks if the server is reachable.
func (c *Client) Healthy() bool {
	resp, err := c.http.Get(c.serverURL + "/api/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// StatusError is returned for any response with status >= 400.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// PointsRequest is the body of POST /api/points. Without a timestamp the
// server places the points on its processing-speed clock.
type PointsRequest struct {
	Points    [][]float64 `json:"points"`
	Timestamp *uint64     `json:"timestamp,omitempty"`
}

// PointsResponse reports how a batch was applied. Accepted counts the
// leading points the engine took before the first rejection.
type PointsResponse struct {
	Accepted int    `json:"accepted"`
	Tick     uint64 `json:"tick"`
	Error    string `json:"error,omitempty"`
}

// PushPoints sends one batch. A rejected point stops the batch; the response
// still says how many points went in.
func (c *Client) PushPoints(points [][]float64, timestamp *uint64) (*PointsResponse, error) {
	body, err := json.Marshal(PointsRequest{Points: points, Timestamp: timestamp})
	if err != nil {
		return nil, fmt.Errorf("marshal points: %w", err)
	}
	data, postErr := c.Post("/api/points", body)
	var resp PointsResponse
	if len(data) > 0 {
		if err := json.Unmarshal(data, &resp); err != nil && postErr == nil {
			return nil, fmt.Errorf("decode points response: %w", err)
		}
	}
	if postErr != nil {
		return &resp, postErr
	}
	return &resp, nil
}

// MicroClusters fetches the current micro-cluster pools.
func (c *Client) MicroClusters() (*engine.MicroSnapshot, error) {
	var snap engine.MicroSnapshot
	if err := c.getJSON("/api/microclusters", &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// MacroClusters fetches the latest published offline clustering.
func (c *Client) MacroClusters() (*engine.MacroSnapshot, error) {
	var snap engine.MacroSnapshot
	if err := c.getJSON("/api/macroclusters", &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Recluster forces an offline pass on the server.
func (c *Client) Recluster() (*engine.MacroSnapshot, error) {
	data, err := c.Post("/api/recluster", nil)
	if err != nil {
		return nil, err
	}
	var snap engine.MacroSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode recluster response: %w", err)
	}
	return &snap, nil
}

func (c *Client) getJSON(path string, v any) error {
	data, err := c.Get(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
