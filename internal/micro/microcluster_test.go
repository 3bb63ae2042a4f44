package micro

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecayFactor(t *testing.T) {
	assert.Equal(t, 1.0, DecayFactor(0.5, 0))
	assert.InDelta(t, 0.5, DecayFactor(1, 1), 1e-12)
	assert.InDelta(t, 0.25, DecayFactor(0.5, 4), 1e-12)
}

func TestDecayRejectsBackwardsTime(t *testing.T) {
	sums := [][]float64{{1, 2}}
	w, err := Decay(3, sums, 0.1, 10, 9)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTimestamp))
	assert.Equal(t, 3.0, w)
	assert.Equal(t, []float64{1, 2}, sums[0], "sums must be untouched on error")
}

func TestDecayMonotonic(t *testing.T) {
	mc := NewMicroCluster(1, []float64{1, 1}, 0, 0.25)
	prev := mc.Weight()
	for tick := uint64(1); tick <= 20; tick++ {
		require.NoError(t, mc.DecayTo(tick))
		assert.Less(t, mc.Weight(), prev, "tick %d", tick)
		prev = mc.Weight()
	}
}

func TestDecayToIdempotent(t *testing.T) {
	mc := NewMicroCluster(1, []float64{2, 4}, 0, 0.3)
	require.NoError(t, mc.Insert([]float64{2, 5}, 1))

	require.NoError(t, mc.DecayTo(5))
	w, ls, ss := mc.Weight(), mc.LinearSum(), mc.SquaredSum()

	require.NoError(t, mc.DecayTo(5))
	assert.Equal(t, w, mc.Weight())
	assert.Equal(t, ls, mc.LinearSum())
	assert.Equal(t, ss, mc.SquaredSum())
	assert.Equal(t, uint64(5), mc.LastEdit())
}

func TestDecayToBeforeLastEdit(t *testing.T) {
	mc := NewMicroCluster(7, []float64{0}, 4, 0.1)
	err := mc.DecayTo(3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTimestamp))
	assert.Equal(t, uint64(4), mc.LastEdit())
}

func TestInsertAddsOneToDecayedWeight(t *testing.T) {
	mc := NewMicroCluster(1, []float64{0.1, 0.1}, 0, 0.1)
	require.NoError(t, mc.Insert([]float64{0.1, 0.11}, 1))

	decay := DecayFactor(0.1, 1)
	assert.InDelta(t, 1+decay, mc.Weight(), 1e-12)

	center := mc.Center()
	assert.InDelta(t, 0.1, center[0], 1e-12)
	assert.InDelta(t, (0.1*decay+0.11)/(1+decay), center[1], 1e-12)
}

func TestInsertDimensionMismatch(t *testing.T) {
	mc := NewMicroCluster(1, []float64{0, 0}, 0, 0.1)
	assert.Error(t, mc.Insert([]float64{1}, 1))
	assert.Equal(t, 1.0, mc.Weight())
}

func TestRadius(t *testing.T) {
	mc := NewMicroCluster(1, []float64{0, 0}, 0, 0)
	require.NoError(t, mc.Insert([]float64{2, 0}, 0))
	// dim 0: mean 1, var 1 -> std 1; dim 1: zero variance
	assert.InDelta(t, 1.0, mc.Radius(), 1e-12)
}

func TestRadiusFallbackForSinglePoint(t *testing.T) {
	mc := NewMicroCluster(1, []float64{3, 4}, 0, 0.1)
	r := mc.Radius()
	assert.False(t, math.IsNaN(r))
	assert.GreaterOrEqual(t, r, 0.0)
}

func TestZeroWeightIsNotNaN(t *testing.T) {
	mc := NewMicroCluster(1, []float64{3, 4}, 0, 0.1)
	mc.weight = 0
	for _, v := range mc.Center() {
		assert.False(t, math.IsNaN(v))
	}
	assert.Equal(t, 0.0, mc.Radius())
}

func TestWeightAt(t *testing.T) {
	mc := NewMicroCluster(1, []float64{1}, 2, 0.5)
	assert.Equal(t, 1.0, mc.WeightAt(1))
	assert.InDelta(t, 0.5, mc.WeightAt(4), 1e-12)
	assert.Equal(t, 1.0, mc.Weight(), "WeightAt must not mutate")
}

func TestClone(t *testing.T) {
	mc := NewMicroCluster(1, []float64{1, 2}, 0, 0.1)
	c := mc.Clone()
	require.NoError(t, c.Insert([]float64{5, 5}, 3))
	assert.Equal(t, 1.0, mc.Weight())
	assert.Equal(t, []float64{1, 2}, mc.LinearSum())
	assert.Equal(t, uint64(0), mc.LastEdit())
}
