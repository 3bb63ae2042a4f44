package engine

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsTrackPools(t *testing.T) {
	e := newEngine(t, scenarioConfig())
	require.NoError(t, e.Train([]float64{0.1, 0.1}, 0))
	require.NoError(t, e.Train([]float64{0.1, 0.11}, 1))
	require.NoError(t, e.Train([]float64{50, 50}, 2))
	require.Error(t, e.Train([]float64{1}, 2))

	m := e.Metrics
	assert.Equal(t, 1.0, testutil.ToFloat64(m.potentialGauge))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outlierGauge))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.tickGauge))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.pointsTotal.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pointsTotal.WithLabelValues("outlier")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pointsTotal.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("promoted")))
}

func TestEnginesHaveSeparateRegistries(t *testing.T) {
	a := newEngine(t, scenarioConfig())
	b := newEngine(t, scenarioConfig())
	require.NoError(t, a.Train([]float64{1, 1}, 0))

	assert.Equal(t, 1.0, testutil.ToFloat64(a.Metrics.pointsTotal.WithLabelValues("created")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Metrics.pointsTotal.WithLabelValues("created")))

	n, err := testutil.GatherAndCount(a.Metrics.Registry, "substream_points_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
