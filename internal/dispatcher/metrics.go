package dispatcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes Prometheus counters/histograms for dispatch attempts, all
// namespaced "unicon_dispatcher" (spec §4.4).
type Metrics struct {
	publishAttempts *prometheus.CounterVec
	publishLatency  prometheus.Histogram
}

// NewMetrics registers the dispatcher's metrics with registry. Pass nil to
// use the default global registerer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		publishAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "unicon",
			Subsystem: "dispatcher",
			Name:      "publish_attempts_total",
			Help:      "Runner request publish attempts, labeled by outcome (success/retry/exhausted)",
		}, []string{"outcome"}),
		publishLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "unicon",
			Subsystem: "dispatcher",
			Name:      "publish_latency_seconds",
			Help:      "Time from first publish attempt to a successful RPUSH onto the request queue",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) observeOutcome(outcome string) {
	if m == nil {
		return
	}
	m.publishAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeLatencySeconds(seconds float64) {
	if m == nil {
		return
	}
	m.publishLatency.Observe(seconds)
}
