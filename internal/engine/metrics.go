package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus collectors of one engine. Each engine owns its
// registry so several engines can live in one process.
type Metrics struct {
	Registry *prometheus.Registry

	pointsTotal     *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	potentialGauge  prometheus.Gauge
	outlierGauge    prometheus.Gauge
	macroGauge      prometheus.Gauge
	tickGauge       prometheus.Gauge
	reclusterTiming *prometheus.HistogramVec
}

func newMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		pointsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "substream_points_total",
			Help: "Stream points by outcome",
		}, []string{"outcome"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "substream_microcluster_transitions_total",
			Help: "Micro-cluster lifecycle transitions",
		}, []string{"transition"}),
		potentialGauge: f.NewGauge(prometheus.GaugeOpts{
			Name: "substream_potential_microclusters",
			Help: "Micro-clusters in the potential pool",
		}),
		outlierGauge: f.NewGauge(prometheus.GaugeOpts{
			Name: "substream_outlier_microclusters",
			Help: "Micro-clusters in the outlier pool",
		}),
		macroGauge: f.NewGauge(prometheus.GaugeOpts{
			Name: "substream_macroclusters",
			Help: "Clusters in the latest published offline clustering",
		}),
		tickGauge: f.NewGauge(prometheus.GaugeOpts{
			Name: "substream_tick",
			Help: "Current stream tick",
		}),
		reclusterTiming: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "substream_recluster_duration_seconds",
			Help:    "Time spent in an offline pass",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"mode"}),
	}
}

// tickCounters are the per-tick monitoring counts logged at tick rollover.
type tickCounters struct {
	points     int
	inPotential int
	inOutlier  int
	created    int
	deleted    int
	promoted   int
	demoted    int
}

func (c tickCounters) empty() bool {
	return c == tickCounters{}
}

func (m *Metrics) point(outcome string) {
	m.pointsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) transition(kind string, n int) {
	if n > 0 {
		m.transitions.WithLabelValues(kind).Add(float64(n))
	}
}
