package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the card pipeline.
type Metrics struct {
	RendersTotal    *prometheus.CounterVec
	SelfHealsTotal  *prometheus.CounterVec
	VerifiesTotal   *prometheus.CounterVec
	DegradedServes  prometheus.Counter
	AbandonedTotal  prometheus.Counter
	RenderDuration  prometheus.Histogram
	BlobOpDuration  *prometheus.HistogramVec
	SweepLastRepair prometheus.Gauge
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		RendersTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "campuscard_renders_total",
			Help: "ID card render attempts by outcome",
		}, []string{"outcome"}),
		SelfHealsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "campuscard_self_heals_total",
			Help: "Self-heal cycles by outcome",
		}, []string{"outcome"}),
		VerifiesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "campuscard_verifies_total",
			Help: "Verification reads by result reason",
		}, []string{"reason"}),
		DegradedServes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "campuscard_degraded_serves_total",
			Help: "Renders served from memory after blob store retries were exhausted",
		}),
		AbandonedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "campuscard_abandoned_renders_total",
			Help: "Finished renders discarded because a concurrent generation committed first",
		}),
		RenderDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "campuscard_render_duration_seconds",
			Help:    "Wall time of the compose-and-encode step",
			Buckets: prometheus.DefBuckets,
		}),
		BlobOpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "campuscard_blob_op_duration_seconds",
			Help:    "Latency of blob store operations",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"op"}),
		SweepLastRepair: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "campuscard_sweep_last_rebuilt",
			Help: "Cards rebuilt by the most recent maintenance sweep",
		}),
	}
}
