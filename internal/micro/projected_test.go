package micro

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testThresholds() *Thresholds {
	return &Thresholds{
		Epsilon: 1.0,
		Mu:      3,
		Beta:    0.5,
		Lambda:  0.1,
		Delta:   0.01,
		Kappa:   10,
		Pi:      2,
	}
}

func TestPreferenceVector(t *testing.T) {
	pc := NewProjected(1, []float64{0, 0, 0}, 0, testThresholds())
	require.NoError(t, pc.Insert([]float64{0, 1, 0.05}, 0))

	pref, n := pc.PreferenceVector()
	// variances: 0, 0.25, 0.000625
	assert.Equal(t, []float64{10, 1, 10}, pref)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, pc.NumRelevantDims())
}

func TestProjectedRadius(t *testing.T) {
	pc := NewProjected(1, []float64{0, 0}, 0, testThresholds())
	require.NoError(t, pc.Insert([]float64{0, 1}, 0))

	// dim 0 relevant (var 0, pref 10), dim 1 irrelevant (var 0.25)
	assert.InDelta(t, 0.5, pc.ProjectedRadius(), 1e-12)
}

func TestProjectedRadiusNeverNaN(t *testing.T) {
	pc := NewProjected(1, []float64{1e8, 1e8}, 0, testThresholds())
	require.NoError(t, pc.Insert([]float64{1e8, 1e8}, 0))
	r := pc.ProjectedRadius()
	assert.False(t, math.IsNaN(r))
	assert.GreaterOrEqual(t, r, 0.0)

	pc.weight = 0
	assert.True(t, math.IsInf(pc.ProjectedRadius(), 1))
	assert.False(t, pc.IsPotentialCore())
	assert.False(t, pc.IsCore())
	assert.False(t, pc.IsOutlier())
}

func TestProjectedDistance(t *testing.T) {
	pc := NewProjected(1, []float64{0, 0}, 0, testThresholds())
	require.NoError(t, pc.Insert([]float64{0, 1}, 0))
	// center (0, 0.5); dim 0 relevant
	d := pc.ProjectedDistance([]float64{1, 0.5})
	assert.InDelta(t, math.Sqrt(0.1), d, 1e-12)
}

func TestClassification(t *testing.T) {
	th := testThresholds()
	pc := NewProjected(1, []float64{0, 0, 5}, 0, th)

	// weight 1 < beta*mu = 1.5
	assert.False(t, pc.IsPotentialCore())
	assert.False(t, pc.IsCore())

	require.NoError(t, pc.Insert([]float64{0, 0, 5.5}, 0))
	// weight 2, dims 0 and 1 relevant, dim 2 var 0.0625
	assert.True(t, pc.IsPotentialCore())
	assert.False(t, pc.IsCore())
	assert.False(t, pc.IsOutlier())

	require.NoError(t, pc.Insert([]float64{0, 0, 5.25}, 0))
	assert.True(t, pc.IsCore())
}

func TestClassificationTooManyRelevantDims(t *testing.T) {
	th := testThresholds()
	th.Pi = 1
	pc := NewProjected(1, []float64{0, 0}, 0, th)
	require.NoError(t, pc.Insert([]float64{0, 0}, 0))
	require.NoError(t, pc.Insert([]float64{0, 0}, 0))

	assert.False(t, pc.IsPotentialCore())
	assert.True(t, pc.IsOutlier())
}

func TestClassificationTracksDecay(t *testing.T) {
	th := testThresholds()
	pc := NewProjected(1, []float64{0, 0}, 0, th)
	require.NoError(t, pc.Insert([]float64{0, 0.1}, 0))
	require.True(t, pc.IsPotentialCore())

	// 2 * 2^(-0.1*10) = 1 < 1.5
	require.NoError(t, pc.DecayTo(10))
	assert.False(t, pc.IsPotentialCore())
}

func TestIsExpired(t *testing.T) {
	th := testThresholds()
	pc := NewProjected(1, []float64{5, 5}, 3, th)

	assert.False(t, pc.IsExpired(3, 4), "fresh cluster is at the bound")
	assert.True(t, pc.IsExpired(4, 4), "an idle tick puts it below the bound")
	assert.True(t, pc.IsExpired(7, 4))
}

func TestIsExpiredSteadyClusterSurvives(t *testing.T) {
	th := testThresholds()
	pc := NewProjected(1, []float64{5, 5}, 0, th)
	for tick := uint64(1); tick <= 8; tick++ {
		require.NoError(t, pc.Insert([]float64{5, 5}, tick))
		require.NoError(t, pc.Insert([]float64{5, 5}, tick))
	}
	assert.False(t, pc.IsExpired(8, 4))
}

func TestTentativeInsertDoesNotMutate(t *testing.T) {
	pc := NewProjected(1, []float64{0, 0}, 0, testThresholds())

	assert.True(t, pc.TentativeInsert([]float64{0.1, 0.1}, 2))
	assert.False(t, pc.TentativeInsert([]float64{40, 40}, 2))
	assert.Equal(t, 1.0, pc.Weight())
	assert.Equal(t, uint64(0), pc.LastEdit())
}
