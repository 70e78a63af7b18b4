package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"mercator-hq/broker/pkg/requestlog"
)

type metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inflight prometheus.Gauge
	panics   prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "broker_dispatch_requests_total",
				Help: "Dispatched requests by mode and final status",
			},
			[]string{"mode", "status"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "broker_dispatch_duration_seconds",
				Help:    "Handler processing time",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"mode"},
		),
		inflight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "broker_dispatch_async_inflight",
			Help: "Async handlers currently running",
		}),
		panics: factory.NewCounter(prometheus.CounterOpts{
			Name: "broker_dispatch_handler_panics_total",
			Help: "Handler panics recovered by the dispatcher",
		}),
	}
}

func (m *metrics) observe(mode string, status requestlog.Status, elapsed time.Duration) {
	m.requests.WithLabelValues(mode, string(status)).Inc()
	m.duration.WithLabelValues(mode).Observe(elapsed.Seconds())
}
