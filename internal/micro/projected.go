package micro

import (
	"math"
)

// Thresholds are the online parameters shared by every projected cluster of
// one engine.
type Thresholds struct {
	Epsilon float64 // max projected radius
	Mu      float64 // core weight
	Beta    float64 // potential-core fraction of Mu
	Lambda  float64 // decay rate
	Delta   float64 // max variance of a relevant dimension
	Kappa   float64 // preference weight of a relevant dimension
	Pi      int     // max number of relevant dimensions
}

// ProjectedMicroCluster is a MicroCluster that tracks which dimensions it is
// tight in. Every classification is derived from the current statistics.
type ProjectedMicroCluster struct {
	*MicroCluster
	th *Thresholds
}

// NewProjected creates a projected cluster seeded with one point.
func NewProjected(id uint64, point []float64, t uint64, th *Thresholds) *ProjectedMicroCluster {
	return &ProjectedMicroCluster{
		MicroCluster: NewMicroCluster(id, point, t, th.Lambda),
		th:           th,
	}
}

// Thresholds returns the parameters the cluster classifies against.
func (pc *ProjectedMicroCluster) Thresholds() *Thresholds { return pc.th }

// PreferenceVector marks every dimension with variance <= Delta as relevant
// (weight Kappa); the others get weight 1.
func (pc *ProjectedMicroCluster) PreferenceVector() ([]float64, int) {
	pref := make([]float64, pc.Dim())
	if pc.degenerate() {
		for d := range pref {
			pref[d] = 1
		}
		return pref, 0
	}
	relevant := 0
	for d, v := range pc.variance() {
		if v <= pc.th.Delta {
			pref[d] = pc.th.Kappa
			relevant++
		} else {
			pref[d] = 1
		}
	}
	return pref, relevant
}

// NumRelevantDims is the number of dimensions the cluster is tight in.
func (pc *ProjectedMicroCluster) NumRelevantDims() int {
	_, n := pc.PreferenceVector()
	return n
}

// ProjectedRadius is sqrt(sum(variance/pref)). Rounding can make small
// variances negative; when the total is not positive only the positive terms
// are summed. A zero-weight cluster has infinite radius.
func (pc *ProjectedMicroCluster) ProjectedRadius() float64 {
	if pc.degenerate() {
		return math.Inf(1)
	}
	pref, _ := pc.PreferenceVector()
	var sum, positive float64
	for d, v := range pc.variance() {
		term := v / pref[d]
		sum += term
		if term > 0 {
			positive += term
		}
	}
	if sum > 0 {
		return math.Sqrt(sum)
	}
	return math.Sqrt(positive)
}

// ProjectedDistance is the preference-scaled distance from point to the
// cluster center.
func (pc *ProjectedMicroCluster) ProjectedDistance(point []float64) float64 {
	if pc.degenerate() {
		return math.Inf(1)
	}
	pref, _ := pc.PreferenceVector()
	center := pc.Center()
	var sum float64
	for d := range center {
		diff := point[d] - center[d]
		sum += diff * diff / pref[d]
	}
	return math.Sqrt(sum)
}

func (pc *ProjectedMicroCluster) tight() bool {
	if pc.degenerate() {
		return false
	}
	return pc.ProjectedRadius() <= pc.th.Epsilon && pc.NumRelevantDims() <= pc.th.Pi
}

// IsPotentialCore reports radius <= Epsilon, weight >= Beta*Mu and at most Pi
// relevant dimensions.
func (pc *ProjectedMicroCluster) IsPotentialCore() bool {
	return pc.tight() && pc.Weight() >= pc.th.Beta*pc.th.Mu
}

// IsCore is IsPotentialCore with the full Mu weight bound.
func (pc *ProjectedMicroCluster) IsCore() bool {
	return pc.tight() && pc.Weight() >= pc.th.Mu
}

// IsOutlier reports a compact cluster that is too light or spans too many
// relevant dimensions to be a potential core.
func (pc *ProjectedMicroCluster) IsOutlier() bool {
	if pc.degenerate() || pc.ProjectedRadius() > pc.th.Epsilon {
		return false
	}
	return pc.Weight() < pc.th.Beta*pc.th.Mu || pc.NumRelevantDims() > pc.th.Pi
}

// IsExpired reports whether the cluster's weight at t is below the weight a
// cluster created at the same tick would have if it had received one point
// per tick for the last tspan ticks. Such a cluster cannot grow into a
// potential core and may be deleted.
func (pc *ProjectedMicroCluster) IsExpired(t, tspan uint64) bool {
	if t < pc.CreatedAt() {
		return false
	}
	lambda := pc.th.Lambda
	num := math.Exp2(-lambda*float64(t-pc.CreatedAt()+tspan)) - 1
	den := math.Exp2(-lambda*float64(tspan)) - 1
	if den == 0 {
		return false
	}
	return pc.WeightAt(t) < num/den
}

// TentativeInsert reports whether inserting point at t would keep the
// cluster within Epsilon and Pi. The cluster itself is not modified.
func (pc *ProjectedMicroCluster) TentativeInsert(point []float64, t uint64) bool {
	trial := pc.Clone()
	if err := trial.Insert(point, t); err != nil {
		return false
	}
	return trial.tight()
}

// Clone returns a deep copy that shares the thresholds.
func (pc *ProjectedMicroCluster) Clone() *ProjectedMicroCluster {
	return &ProjectedMicroCluster{MicroCluster: pc.MicroCluster.Clone(), th: pc.th}
}
