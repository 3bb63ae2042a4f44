package predecon

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Neighborhood holds the density parameters of one expansion run. Mu is the
// weighted-neighborhood density threshold and Tau the largest subspace a
// core point may prefer.
type Neighborhood struct {
	Epsilon float64
	Mu      float64
	Delta   float64
	Kappa   float64
	Tau     int
}

// Distance is the plain Euclidean distance between two centers.
func Distance(a, b []float64) float64 {
	return floats.Distance(a, b, 2)
}

// AsymmetricDistance weights the squared differences between a and b by the
// preference vector of a.
func AsymmetricDistance(a, b *PreferencePoint) float64 {
	var sum float64
	for d, w := range a.pref {
		diff := a.center[d] - b.center[d]
		sum += w * diff * diff
	}
	return math.Sqrt(sum)
}

// PreferenceWeightedDistance is the symmetric combination of both asymmetric
// distances.
func PreferenceWeightedDistance(a, b *PreferencePoint) float64 {
	return math.Max(AsymmetricDistance(a, b), AsymmetricDistance(b, a))
}

// Preference computes the plain ε-neighborhood of p among candidates and the
// subspace preference vector derived from the per-dimension variance of the
// neighbor centers around p. A point with no neighbors or no weight is
// marked degenerate and gets no preference.
func (n Neighborhood) Preference(p *PreferencePoint, candidates []*PreferencePoint) {
	p.neighbors = p.neighbors[:0]
	p.degenerate = false
	if !(p.weight > 0) {
		n.markDegenerate(p)
		return
	}
	var neighbors []*PreferencePoint
	for _, q := range candidates {
		if !(q.weight > 0) {
			continue
		}
		if Distance(p.center, q.center) <= n.Epsilon {
			neighbors = append(neighbors, q)
			p.neighbors = append(p.neighbors, q.ID())
		}
	}
	if len(neighbors) == 0 {
		n.markDegenerate(p)
		return
	}

	dim := len(p.center)
	variance := make([]float64, dim)
	for _, q := range neighbors {
		for d := 0; d < dim; d++ {
			diff := p.center[d] - q.center[d]
			variance[d] += diff * diff
		}
	}
	floats.Scale(1/float64(len(neighbors)), variance)

	p.pref = make([]float64, dim)
	p.numRel = 0
	for d, v := range variance {
		if v <= n.Delta {
			p.pref[d] = n.Kappa
			p.numRel++
		} else {
			p.pref[d] = 1
		}
	}
}

func (n Neighborhood) markDegenerate(p *PreferencePoint) {
	p.degenerate = true
	p.pref = nil
	p.numRel = 0
	p.weighted = p.weighted[:0]
	p.weightSum = 0
	p.core = false
}

// Weighted computes the preference-weighted neighborhood of p. Both p and
// every candidate must already carry a preference vector.
func (n Neighborhood) Weighted(p *PreferencePoint, candidates []*PreferencePoint) {
	if p.degenerate {
		return
	}
	p.weighted = p.weighted[:0]
	p.weightSum = 0
	for _, q := range candidates {
		if q.degenerate || q.pref == nil {
			continue
		}
		if PreferenceWeightedDistance(p, q) <= n.Epsilon {
			p.weighted = append(p.weighted, q.ID())
			p.weightSum += q.weight
		}
	}
	p.core = n.isCore(p)
}

func (n Neighborhood) isCore(p *PreferencePoint) bool {
	return !p.degenerate && p.weightSum >= n.Mu && p.numRel <= n.Tau
}

// Preprocess annotates every point of s: first all preference vectors, then
// all weighted neighborhoods.
func (n Neighborhood) Preprocess(s *Set) {
	points := s.Points()
	for _, p := range points {
		p.status = Unclassified
		n.Preference(p, points)
	}
	for _, p := range points {
		n.Weighted(p, points)
	}
}

// Expand partitions the seed points of s into density-connected groups and
// returns them as member id lists in discovery order. Points outside seed are
// never visited. Non-core points end as Noise unless a later cluster
// reaches them; degenerate points stay Unclassified.
func (n Neighborhood) Expand(s *Set, seed []uint64) [][]uint64 {
	inSeed := make(map[uint64]bool, len(seed))
	for _, id := range seed {
		if s.Has(id) {
			inSeed[id] = true
		}
	}

	var groups [][]uint64
	for _, id := range seed {
		o := s.Get(id)
		if o == nil || o.status != Unclassified || o.degenerate {
			continue
		}
		if !o.core {
			o.status = Noise
			continue
		}

		var members []uint64
		queue := make([]uint64, 0, len(o.weighted))
		for _, qid := range o.weighted {
			if inSeed[qid] {
				queue = append(queue, qid)
			}
		}
		for len(queue) > 0 {
			q := s.Get(queue[0])
			queue = queue[1:]
			if q.degenerate {
				continue
			}
			if q.status == Unclassified {
				q.status = Classified
				members = append(members, q.ID())
			}
			if !q.core {
				continue
			}
			for _, xid := range q.weighted {
				if !inSeed[xid] {
					continue
				}
				x := s.Get(xid)
				if x.degenerate || x.numRel > n.Tau {
					continue
				}
				if x.status == Unclassified {
					queue = append(queue, xid)
				}
				if x.status == Unclassified || x.status == Noise {
					x.status = Classified
					members = append(members, xid)
				}
			}
		}
		if len(members) > 0 {
			groups = append(groups, members)
		}
	}
	return groups
}
