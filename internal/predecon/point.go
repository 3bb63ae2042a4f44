// Package predecon derives subspace clusters from preference-weighted
// density: every member gets a subspace preference vector from the variance
// of its ε-neighborhood, and clusters grow through members whose weighted
// neighborhoods are dense enough.
package predecon

import (
	"gonum.org/v1/gonum/floats"
)

// Member is anything that can take part in density expansion: a raw stream
// point or a micro-cluster.
type Member interface {
	ID() uint64
	Center() []float64
	Weight() float64
	LinearSum() []float64
}

// Point is a raw stream point carrying a decayed weight.
type Point struct {
	Key    uint64
	Values []float64
	W      float64
}

func (p Point) ID() uint64        { return p.Key }
func (p Point) Center() []float64 { return p.Values }
func (p Point) Weight() float64   { return p.W }
func (p Point) LinearSum() []float64 {
	ls := make([]float64, len(p.Values))
	floats.ScaleTo(ls, p.W, p.Values)
	return ls
}

// Status is the expansion state of a preference point.
type Status int

const (
	Unclassified Status = iota
	Classified
	Noise
)

func (s Status) String() string {
	switch s {
	case Unclassified:
		return "unclassified"
	case Classified:
		return "classified"
	case Noise:
		return "noise"
	}
	return "unknown"
}

// PreferencePoint annotates a member with its neighborhoods and subspace
// preference for one expansion run. Neighborhoods hold member ids, never
// pointers, so the arena can drop members without dangling references.
type PreferencePoint struct {
	Member Member

	center []float64
	weight float64

	status     Status
	neighbors  []uint64
	weighted   []uint64
	pref       []float64
	numRel     int
	weightSum  float64
	core       bool
	degenerate bool
}

func newPreferencePoint(m Member) *PreferencePoint {
	p := &PreferencePoint{Member: m}
	p.refresh()
	return p
}

// refresh re-reads center and weight from the member.
func (p *PreferencePoint) refresh() {
	p.center = p.Member.Center()
	p.weight = p.Member.Weight()
}

func (p *PreferencePoint) ID() uint64           { return p.Member.ID() }
func (p *PreferencePoint) Status() Status       { return p.status }
func (p *PreferencePoint) NumRelevantDims() int { return p.numRel }
func (p *PreferencePoint) IsCore() bool         { return p.core }
func (p *PreferencePoint) Degenerate() bool     { return p.degenerate }
func (p *PreferencePoint) WeightedNeighborhood() []uint64 {
	return append([]uint64(nil), p.weighted...)
}

// PreferenceVector returns a copy of the subspace preference vector.
func (p *PreferencePoint) PreferenceVector() []float64 {
	return append([]float64(nil), p.pref...)
}

// Set is an insertion-ordered arena of preference points keyed by member id.
// Iteration order is the insertion order, which keeps expansion deterministic.
type Set struct {
	order  []uint64
	points map[uint64]*PreferencePoint
}

// NewSet builds a set from members in the given order. Duplicate ids keep
// the first occurrence.
func NewSet(members []Member) *Set {
	s := &Set{points: make(map[uint64]*PreferencePoint, len(members))}
	for _, m := range members {
		s.Add(m)
	}
	return s
}

// Add appends m unless its id is already present; it reports whether m was added.
func (s *Set) Add(m Member) bool {
	if _, ok := s.points[m.ID()]; ok {
		return false
	}
	s.points[m.ID()] = newPreferencePoint(m)
	s.order = append(s.order, m.ID())
	return true
}

// Remove drops id from the set and returns the removed point.
func (s *Set) Remove(id uint64) *PreferencePoint {
	p, ok := s.points[id]
	if !ok {
		return nil
	}
	delete(s.points, id)
	for i, o := range s.order {
		if o == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return p
}

func (s *Set) Get(id uint64) *PreferencePoint { return s.points[id] }

func (s *Set) Has(id uint64) bool {
	_, ok := s.points[id]
	return ok
}

func (s *Set) Len() int { return len(s.order) }

// IDs returns the member ids in insertion order.
func (s *Set) IDs() []uint64 {
	return append([]uint64(nil), s.order...)
}

// Points returns the preference points in insertion order.
func (s *Set) Points() []*PreferencePoint {
	out := make([]*PreferencePoint, len(s.order))
	for i, id := range s.order {
		out[i] = s.points[id]
	}
	return out
}

// Refresh re-reads center and weight of every member.
func (s *Set) Refresh() {
	for _, p := range s.points {
		p.refresh()
	}
}
