package config

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds all substream configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Clustering ClusteringConfig `yaml:"clustering"`
	Snapshots  SnapshotConfig   `yaml:"snapshots"`
}

type ServerConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ClusteringConfig carries the engine parameters. Greek names follow the
// usual HDDStream/PreDeConStream notation.
type ClusteringConfig struct {
	Epsilon         float64 `yaml:"epsilon" json:"epsilon"`                   // ε, neighborhood radius
	Mu              float64 `yaml:"mu" json:"mu"`                             // μ, online density threshold
	MuOffline       float64 `yaml:"mu_offline" json:"mu_offline"`             // μ_F, offline density threshold
	Beta            float64 `yaml:"beta" json:"beta"`                         // potential-core factor on μ
	Lambda          float64 `yaml:"lambda" json:"lambda"`                     // decay rate
	Pi              int     `yaml:"pi" json:"pi"`                             // max relevant dims of a micro-cluster
	Tau             int     `yaml:"tau" json:"tau"`                           // max relevant dims of an offline core
	Kappa           float64 `yaml:"kappa" json:"kappa"`                       // preference weight of relevant dims
	Delta           float64 `yaml:"delta" json:"delta"`                       // variance threshold
	OfflineFactor   float64 `yaml:"offline_factor" json:"offline_factor"`     // multiplies ε for the offline pass
	InitPoints      int     `yaml:"init_points" json:"init_points"`           // cold-start buffer, 0 disables
	ProcessingSpeed int     `yaml:"processing_speed" json:"processing_speed"` // points per tick
	Dimensions      int     `yaml:"dimensions" json:"dimensions"`             // 0 infers from the first point
	Tspan           uint64  `yaml:"tspan" json:"tspan"`                       // pruning period, 0 derives it
	Incremental     bool    `yaml:"incremental" json:"incremental"`
}

type SnapshotConfig struct {
	Enabled  bool `yaml:"enabled"`
	Interval int  `yaml:"interval"` // seconds
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37777,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Clustering: ClusteringConfig{
			Epsilon:         16,
			Mu:              10,
			MuOffline:       10,
			Beta:            0.5,
			Lambda:          0.5,
			Pi:              30,
			Tau:             30,
			Kappa:           10,
			Delta:           0.001,
			OfflineFactor:   2,
			InitPoints:      2000,
			ProcessingSpeed: 100,
			Incremental:     true,
		},
		Snapshots: SnapshotConfig{
			Enabled:  true,
			Interval: 60,
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults. SUBSTREAM_DB overrides the database path.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	if p := os.Getenv("SUBSTREAM_DB"); p != "" {
		cfg.Database.Path = p
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// Validate checks every option against its allowed range.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return invalid("server.port", c.Server.Port, "must be in [0, 65535]")
	}
	if c.Snapshots.Enabled && c.Snapshots.Interval < 1 {
		return invalid("snapshots.interval", c.Snapshots.Interval, "must be >= 1")
	}
	return c.Clustering.Validate()
}

func (c *ClusteringConfig) Validate() error {
	switch {
	case !(c.Epsilon > 0):
		return invalid("epsilon", c.Epsilon, "must be > 0")
	case !(c.Mu >= 1):
		return invalid("mu", c.Mu, "must be >= 1")
	case !(c.MuOffline >= 1):
		return invalid("mu_offline", c.MuOffline, "must be >= 1")
	case !(c.Beta > 0 && c.Beta <= 1):
		return invalid("beta", c.Beta, "must be in (0, 1]")
	case !(c.Lambda > 0):
		return invalid("lambda", c.Lambda, "must be > 0")
	case c.Pi < 1:
		return invalid("pi", c.Pi, "must be >= 1")
	case c.Tau < 1:
		return invalid("tau", c.Tau, "must be >= 1")
	case !(c.Kappa > 1):
		return invalid("kappa", c.Kappa, "must be > 1")
	case !(c.Delta > 0):
		return invalid("delta", c.Delta, "must be > 0")
	case !(c.OfflineFactor >= 1):
		return invalid("offline_factor", c.OfflineFactor, "must be >= 1")
	case c.InitPoints < 0:
		return invalid("init_points", c.InitPoints, "must be >= 0")
	case c.ProcessingSpeed < 1:
		return invalid("processing_speed", c.ProcessingSpeed, "must be >= 1")
	case c.Dimensions < 0:
		return invalid("dimensions", c.Dimensions, "must be >= 0")
	}
	return nil
}

func invalid(field string, v any, reason string) error {
	return fmt.Errorf("%w: %s = %v %s", ErrInvalidConfig, field, v, reason)
}

// PruneInterval returns Tspan, the number of ticks between pruning passes.
// The configured value wins; otherwise it is the smallest span in which a
// fresh potential-core cluster can fade below β·μ:
// ceil((1/λ)·log2(βμ/(βμ−1))). When βμ ≤ 1 that span is undefined and
// ceil(1/λ) is used instead.
func (c *ClusteringConfig) PruneInterval() uint64 {
	if c.Tspan > 0 {
		return c.Tspan
	}
	bm := c.Beta * c.Mu
	var span float64
	if bm > 1 {
		span = math.Ceil(math.Log2(bm/(bm-1)) / c.Lambda)
	} else {
		span = math.Ceil(1 / c.Lambda)
	}
	if span < 1 {
		return 1
	}
	return uint64(span)
}
