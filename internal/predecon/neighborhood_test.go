package predecon

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNeighborhood() Neighborhood {
	return Neighborhood{Epsilon: 1, Mu: 3, Delta: 0.01, Kappa: 10, Tau: 1}
}

func pt(id uint64, w float64, values ...float64) Point {
	return Point{Key: id, Values: values, W: w}
}

// twoLines has two dense vertical/horizontal segments and an isolated point.
func twoLines() []Member {
	return []Member{
		pt(1, 1, 0, 0), pt(2, 1, 0, 0.1), pt(3, 1, 0, 0.2), pt(4, 1, 0, 0.3),
		pt(5, 1, 5, 5), pt(6, 1, 5.1, 5), pt(7, 1, 5.2, 5), pt(8, 1, 5.3, 5),
		pt(9, 1, 10, 0),
	}
}

func TestPreferenceVectorFromNeighborhood(t *testing.T) {
	s := NewSet(twoLines())
	nb := testNeighborhood()
	nb.Preprocess(s)

	p := s.Get(1)
	assert.Equal(t, []float64{10, 1}, p.PreferenceVector())
	assert.Equal(t, 1, p.NumRelevantDims())
	assert.ElementsMatch(t, []uint64{1, 2, 3, 4}, p.WeightedNeighborhood())
	assert.True(t, p.IsCore())

	q := s.Get(5)
	assert.Equal(t, []float64{1, 10}, q.PreferenceVector())

	lonely := s.Get(9)
	assert.Equal(t, 2, lonely.NumRelevantDims())
	assert.False(t, lonely.IsCore())
}

func TestAsymmetricDistanceUsesFirstPreference(t *testing.T) {
	a := newPreferencePoint(pt(1, 1, 0, 0))
	b := newPreferencePoint(pt(2, 1, 1, 1))
	a.pref = []float64{10, 1}
	b.pref = []float64{1, 1}

	assert.InDelta(t, math.Sqrt(11), AsymmetricDistance(a, b), 1e-12)
	assert.InDelta(t, math.Sqrt(2), AsymmetricDistance(b, a), 1e-12)
	assert.InDelta(t, math.Sqrt(11), PreferenceWeightedDistance(a, b), 1e-12)
	assert.Equal(t, PreferenceWeightedDistance(a, b), PreferenceWeightedDistance(b, a))
}

func TestExpandFindsSubspaceClusters(t *testing.T) {
	s := NewSet(twoLines())
	nb := testNeighborhood()
	nb.Preprocess(s)

	groups := nb.Expand(s, s.IDs())
	require.Len(t, groups, 2)
	assert.ElementsMatch(t, []uint64{1, 2, 3, 4}, groups[0])
	assert.ElementsMatch(t, []uint64{5, 6, 7, 8}, groups[1])
	assert.Equal(t, Noise, s.Get(9).Status())
}

func TestExpandDeterministic(t *testing.T) {
	nb := testNeighborhood()
	run := func() [][]uint64 {
		s := NewSet(twoLines())
		nb.Preprocess(s)
		return nb.Expand(s, s.IDs())
	}
	assert.Equal(t, run(), run())
}

func TestExpandReclaimsNoise(t *testing.T) {
	// 1 is visited first and is not core, 2 is core and reaches it.
	s := NewSet([]Member{pt(1, 1, 0, 0), pt(2, 1, 0, 0.8), pt(3, 1, 0, 1.6)})
	nb := testNeighborhood()
	nb.Preprocess(s)
	require.False(t, s.Get(1).IsCore())
	require.True(t, s.Get(2).IsCore())

	groups := nb.Expand(s, s.IDs())
	require.Len(t, groups, 1)
	assert.Equal(t, []uint64{2, 1, 3}, groups[0])
	for _, id := range []uint64{1, 2, 3} {
		assert.Equal(t, Classified, s.Get(id).Status(), "point %d", id)
	}
}

func TestExpandLeavesDegenerateUnclassified(t *testing.T) {
	members := append(twoLines(), pt(10, 0, 0, 0.15))
	s := NewSet(members)
	nb := testNeighborhood()
	nb.Preprocess(s)

	p := s.Get(10)
	assert.True(t, p.Degenerate())
	assert.Nil(t, p.PreferenceVector())

	groups := nb.Expand(s, s.IDs())
	for _, g := range groups {
		assert.NotContains(t, g, uint64(10))
	}
	assert.Equal(t, Unclassified, p.Status())
}

func TestExpandRespectsSeed(t *testing.T) {
	s := NewSet(twoLines())
	nb := testNeighborhood()
	nb.Preprocess(s)

	groups := nb.Expand(s, []uint64{5, 6, 7, 8})
	require.Len(t, groups, 1)
	assert.ElementsMatch(t, []uint64{5, 6, 7, 8}, groups[0])
	assert.Equal(t, Unclassified, s.Get(1).Status())
}

func TestSetKeepsInsertionOrder(t *testing.T) {
	s := NewSet([]Member{pt(3, 1, 0), pt(1, 1, 0), pt(2, 1, 0)})
	assert.False(t, s.Add(pt(1, 1, 5)))
	assert.Equal(t, []uint64{3, 1, 2}, s.IDs())

	require.NotNil(t, s.Remove(1))
	assert.Nil(t, s.Remove(1))
	assert.Equal(t, []uint64{3, 2}, s.IDs())
	assert.Equal(t, 2, s.Len())
}

func TestOfflineClusterAggregateCenter(t *testing.T) {
	c := NewOfflineCluster(7, []Member{pt(1, 3, 0, 0), pt(2, 1, 4, 4)})

	assert.Equal(t, uint64(7), c.ID())
	assert.InDelta(t, 4.0, c.Weight(), 1e-12)
	// Weighted by member weight: (0*3 + 4*1) / 4, not the mean of centers.
	assert.InDeltaSlice(t, []float64{1, 1}, c.Center(), 1e-12)
	assert.Equal(t, []uint64{1, 2}, c.MemberIDs())

	m := c.Members()
	assert.InDeltaSlice(t, []float64{4, 4}, m[1].LinearSum, 1e-12)
	m[0].Center[0] = 99
	assert.Equal(t, 0.0, c.Members()[0].Center[0])
}

func TestOfflineClusterZeroWeight(t *testing.T) {
	c := NewOfflineCluster(1, []Member{pt(1, 0, 2, 2)})
	assert.Equal(t, []float64{0, 0}, c.Center())
}
