package metrics

import (
	"net/http"
	"sync"

	"mercator-hq/broker/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// OtherLabel replaces label values beyond the cardinality limit.
const OtherLabel = "other"

// DefaultMaxServices bounds the number of distinct service label values.
const DefaultMaxServices = 1000

// Collector owns the broker's Prometheus registry. Components register
// their own collectors against Registerer; the collector itself records
// HTTP traffic and per-service invocation outcomes.
type Collector struct {
	config   config.MetricsConfig
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	invocations  *prometheus.CounterVec

	services *CardinalityLimiter
}

// NewCollector creates a collector with a fresh registry holding the Go
// runtime and process collectors.
func NewCollector(cfg config.MetricsConfig) *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Collector{
		config:   cfg,
		registry: registry,
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "broker_http_requests_total",
			Help: "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "broker_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"route", "method"}),
		invocations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "broker_invocations_total",
			Help: "Invocations by service and outcome.",
		}, []string{"service", "outcome"}),
		services: NewCardinalityLimiter(DefaultMaxServices),
	}
}

// Enabled reports whether the metrics endpoint is exposed.
func (c *Collector) Enabled() bool {
	return c != nil && c.config.Enabled
}

// Path returns the configured metrics path.
func (c *Collector) Path() string {
	return c.config.Path
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Registerer returns the registerer components should use, or nil when
// metrics are disabled. Components treat a nil registerer as "create but
// do not register".
func (c *Collector) Registerer() prometheus.Registerer {
	if !c.Enabled() {
		return nil
	}
	return c.registry
}

// InstrumentRoute wraps next with request count and latency metrics
// labelled with the route pattern.
func (c *Collector) InstrumentRoute(route string, next http.Handler) http.Handler {
	if !c.Enabled() {
		return next
	}
	labels := prometheus.Labels{"route": route}
	return promhttp.InstrumentHandlerDuration(
		c.httpDuration.MustCurryWith(labels),
		promhttp.InstrumentHandlerCounter(c.httpRequests.MustCurryWith(labels), next),
	)
}

// RecordInvocation counts one invocation outcome (success, error, timeout,
// pending, throttled, rejected) for a service.
func (c *Collector) RecordInvocation(service, outcome string) {
	if !c.Enabled() {
		return
	}
	if !c.services.Allow(service) {
		service = OtherLabel
	}
	c.invocations.WithLabelValues(service, outcome).Inc()
}

// CardinalityLimiter caps the number of distinct label values recorded.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a limiter admitting up to maxCardinality
// distinct values.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether value is already tracked or fits under the limit.
func (cl *CardinalityLimiter) Allow(value string) bool {
	cl.mu.RLock()
	_, exists := cl.current[value]
	cl.mu.RUnlock()
	if exists {
		return true
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[value]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[value] = struct{}{}
	return true
}

// Count returns the number of tracked values.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
