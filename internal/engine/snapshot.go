package engine

import (
	"math"
	"time"

	"github.com/lazypower/substream/internal/micro"
	"github.com/lazypower/substream/internal/predecon"
)

// Pool names a micro-cluster pool.
type Pool string

const (
	PoolPotential Pool = "potential"
	PoolOutlier   Pool = "outlier"
)

// MicroCluster is a read-only view of one micro-cluster.
type MicroCluster struct {
	ID              uint64    `json:"id"`
	Pool            Pool      `json:"pool"`
	CreatedAt       uint64    `json:"created_at"`
	LastEdit        uint64    `json:"last_edit"`
	Weight          float64   `json:"weight"`
	Center          []float64 `json:"center"`
	Radius          float64   `json:"radius"`
	ProjectedRadius float64   `json:"projected_radius"`
	Preference      []float64 `json:"preference"`
	RelevantDims    int       `json:"relevant_dims"`
}

// MicroSnapshot holds copies of both pools at one tick.
type MicroSnapshot struct {
	Tick      uint64         `json:"tick"`
	Potential []MicroCluster `json:"potential"`
	Outlier   []MicroCluster `json:"outlier"`
}

// MacroCluster is one published offline cluster.
type MacroCluster struct {
	ID      uint64                   `json:"id"`
	Weight  float64                  `json:"weight"`
	Center  []float64                `json:"center"`
	Members []predecon.MemberSummary `json:"members"`
}

// MacroSnapshot is the result of one offline pass. Published snapshots are
// never mutated.
type MacroSnapshot struct {
	Pass      uint64         `json:"pass"`
	Tick      uint64         `json:"tick"`
	Mode      string         `json:"mode"`
	CreatedAt time.Time      `json:"created_at"`
	Clusters  []MacroCluster `json:"clusters"`
	Noise     []uint64       `json:"noise"`
}

func viewOf(pc *micro.ProjectedMicroCluster, pool Pool) MicroCluster {
	pref, rel := pc.PreferenceVector()
	radius := pc.ProjectedRadius()
	if math.IsInf(radius, 0) {
		radius = 0 // zero weight, JSON has no infinity
	}
	return MicroCluster{
		ID:              pc.ID(),
		Pool:            pool,
		CreatedAt:       pc.CreatedAt(),
		LastEdit:        pc.LastEdit(),
		Weight:          pc.Weight(),
		Center:          pc.Center(),
		Radius:          pc.Radius(),
		ProjectedRadius: radius,
		Preference:      pref,
		RelevantDims:    rel,
	}
}

func macroOf(c *predecon.OfflineCluster) MacroCluster {
	return MacroCluster{
		ID:      c.ID(),
		Weight:  c.Weight(),
		Center:  c.Center(),
		Members: c.Members(),
	}
}
