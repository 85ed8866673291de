package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GrantsMetrics records engine operation activity served over RPC.
type GrantsMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	grantsMetricsOnce sync.Once
	grantsRegistry    *GrantsMetrics
)

// Metrics returns the lazily-initialised grants metrics registry.
func Metrics() *GrantsMetrics {
	grantsMetricsOnce.Do(func() {
		grantsRegistry = &GrantsMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "edugrants",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "edugrants",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by method and failure category.",
			}, []string{"method", "category"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "edugrants",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
		}
		prometheus.MustRegister(
			grantsRegistry.requests,
			grantsRegistry.errors,
			grantsRegistry.latency,
		)
	})
	return grantsRegistry
}

// ObserveRequest records a completed request with its outcome.
func (m *GrantsMetrics) ObserveRequest(method, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

// ObserveError records a failed request with its failure category.
func (m *GrantsMetrics) ObserveError(method, category string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(method, category).Inc()
}
