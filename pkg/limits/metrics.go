package limits

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus metrics for admission control.
type Metrics struct {
	decisions   *prometheus.CounterVec
	denials     *prometheus.CounterVec
	failOpen    prometheus.Counter
	storeErrors *prometheus.CounterVec

	checkDuration prometheus.Histogram
}

// NewMetrics creates admission metrics registered with reg. A nil reg
// creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "broker_admission_decisions_total",
				Help: "Total number of admission decisions by result",
			},
			[]string{"result"},
		),

		denials: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "broker_admission_denials_total",
				Help: "Total number of denied requests by window",
			},
			[]string{"window", "scope"},
		),

		failOpen: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "broker_admission_fail_open_total",
				Help: "Requests admitted because the usage counter store could not be consulted",
			},
		),

		storeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "broker_admission_store_errors_total",
				Help: "Usage counter store errors by operation",
			},
			[]string{"operation"},
		),

		checkDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "broker_admission_check_duration_seconds",
				Help:    "Duration of admission checks in seconds",
				Buckets: prometheus.ExponentialBuckets(0.00001, 2, 15), // 10µs to ~160ms
			},
		),
	}
}

// The recorders below are nil-safe so the engine can run without metrics.

func (m *Metrics) recordDecision(result string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(result).Inc()
}

func (m *Metrics) recordDenial(w Window, scope ScopeKind) {
	if m == nil {
		return
	}
	m.denials.WithLabelValues(string(w), string(scope)).Inc()
}

func (m *Metrics) recordFailOpen() {
	if m == nil {
		return
	}
	m.failOpen.Inc()
}

func (m *Metrics) recordStoreError(operation string) {
	if m == nil {
		return
	}
	m.storeErrors.WithLabelValues(operation).Inc()
}

func (m *Metrics) observeCheck(seconds float64) {
	if m == nil {
		return
	}
	m.checkDuration.Observe(seconds)
}
