package micro

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// MicroCluster is a decayed sufficient-statistics summary of recent points.
type MicroCluster struct {
	id        uint64
	createdAt uint64
	lastEdit  uint64
	lambda    float64

	weight float64
	ls     []float64
	ss     []float64
}

// NewMicroCluster creates a cluster seeded with exactly one point at tick t.
func NewMicroCluster(id uint64, point []float64, t uint64, lambda float64) *MicroCluster {
	mc := &MicroCluster{
		id:        id,
		createdAt: t,
		lastEdit:  t,
		lambda:    lambda,
		weight:    1,
		ls:        make([]float64, len(point)),
		ss:        make([]float64, len(point)),
	}
	copy(mc.ls, point)
	floats.MulTo(mc.ss, point, point)
	return mc
}

func (mc *MicroCluster) ID() uint64        { return mc.id }
func (mc *MicroCluster) CreatedAt() uint64 { return mc.createdAt }
func (mc *MicroCluster) LastEdit() uint64  { return mc.lastEdit }
func (mc *MicroCluster) Lambda() float64   { return mc.lambda }
func (mc *MicroCluster) Dim() int          { return len(mc.ls) }
func (mc *MicroCluster) Weight() float64   { return mc.weight }
func (mc *MicroCluster) degenerate() bool  { return !(mc.weight > 0) }

// LinearSum returns a copy of the decayed per-dimension sums.
func (mc *MicroCluster) LinearSum() []float64 {
	return append([]float64(nil), mc.ls...)
}

// SquaredSum returns a copy of the decayed per-dimension squared sums.
func (mc *MicroCluster) SquaredSum() []float64 {
	return append([]float64(nil), mc.ss...)
}

// DecayTo ages the statistics to tick t without inserting anything.
// Calling it twice with the same t is a no-op the second time.
func (mc *MicroCluster) DecayTo(t uint64) error {
	w, err := Decay(mc.weight, [][]float64{mc.ls, mc.ss}, mc.lambda, mc.lastEdit, t)
	if err != nil {
		return fmt.Errorf("cluster %d: %w", mc.id, err)
	}
	mc.weight = w
	mc.lastEdit = t
	return nil
}

// Insert decays the cluster to t and adds point with weight one.
func (mc *MicroCluster) Insert(point []float64, t uint64) error {
	if len(point) != len(mc.ls) {
		return fmt.Errorf("insert into cluster %d: point has %d dims, cluster has %d", mc.id, len(point), len(mc.ls))
	}
	if err := mc.DecayTo(t); err != nil {
		return err
	}
	mc.weight++
	floats.Add(mc.ls, point)
	for d, v := range point {
		mc.ss[d] += v * v
	}
	return nil
}

// WeightAt returns the weight the cluster would have at tick t with no new
// points. Ticks before the last edit return the current weight.
func (mc *MicroCluster) WeightAt(t uint64) float64 {
	if t <= mc.lastEdit {
		return mc.weight
	}
	return mc.weight * DecayFactor(mc.lambda, t-mc.lastEdit)
}

// Center returns LS/weight, or the zero vector for a zero-weight cluster.
func (mc *MicroCluster) Center() []float64 {
	c := make([]float64, len(mc.ls))
	if mc.degenerate() {
		return c
	}
	floats.ScaleTo(c, 1/mc.weight, mc.ls)
	return c
}

// variance returns SS/w - (LS/w)^2 per dimension. Callers must check
// degenerate() first.
func (mc *MicroCluster) variance() []float64 {
	v := make([]float64, len(mc.ls))
	for d := range mc.ls {
		mean := mc.ls[d] / mc.weight
		v[d] = mc.ss[d]/mc.weight - mean*mean
	}
	return v
}

// Radius is the largest per-dimension standard deviation. When no dimension
// has a positive variance it falls back to a norm-based estimate so a
// single-point cluster does not report zero spread from rounding alone.
func (mc *MicroCluster) Radius() float64 {
	if mc.degenerate() {
		return 0
	}
	bound := 0.0
	for _, v := range mc.variance() {
		if v > 0 {
			bound = math.Max(bound, math.Sqrt(v))
		}
	}
	if bound > 0 {
		return bound
	}

	lsNorm := floats.Norm(mc.ls, 2)
	ssNorm := floats.Norm(mc.ss, 2)
	mean := lsNorm / mc.weight
	return math.Sqrt(math.Abs(ssNorm/mc.weight - mean*mean))
}

// Clone returns a deep copy.
func (mc *MicroCluster) Clone() *MicroCluster {
	c := *mc
	c.ls = mc.LinearSum()
	c.ss = mc.SquaredSum()
	return &c
}
