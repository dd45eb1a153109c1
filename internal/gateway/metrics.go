package gateway

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for the edge gateway.
type Metrics struct {
	authDecisionsTotal *prometheus.CounterVec
	authDuration       *prometheus.HistogramVec
	proxyRequestsTotal *prometheus.CounterVec
	proxyDuration      *prometheus.HistogramVec
	breakerRejections  *prometheus.CounterVec
	registerer         prometheus.Registerer
}

// NewMetrics creates a new Metrics instance registered with
// prometheus.DefaultRegisterer.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates a new Metrics instance with a custom
// registerer. This is useful for testing where a private registry is
// preferred.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "gateway"
	}

	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		registerer: registerer,
	}

	m.authDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "decisions_total",
			Help:      "Total number of edge auth decisions",
		},
		[]string{"decision", "reason"},
	)

	m.authDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "decision_duration_seconds",
			Help:      "Edge auth decision duration in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1},
		},
		[]string{"decision"},
	)

	m.proxyRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "requests_total",
			Help:      "Total number of proxied requests",
		},
		[]string{"backend", "method", "status_code"},
	)

	m.proxyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "request_duration_seconds",
			Help:      "Proxied request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	m.breakerRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "breaker_rejections_total",
			Help:      "Total number of requests rejected by an open circuit breaker",
		},
		[]string{"backend"},
	)

	// Register all metrics with the provided registerer, ignoring duplicates.
	collectors := []prometheus.Collector{
		m.authDecisionsTotal,
		m.authDuration,
		m.proxyRequestsTotal,
		m.proxyDuration,
		m.breakerRejections,
	}
	for _, c := range collectors {
		_ = m.registerer.Register(c)
	}

	return m
}

// RecordAuthDecision records one edge auth decision.
func (m *Metrics) RecordAuthDecision(decision, reason string, duration time.Duration) {
	m.authDecisionsTotal.WithLabelValues(decision, reason).Inc()
	m.authDuration.WithLabelValues(decision).Observe(duration.Seconds())
}

// RecordProxyRequest records one proxied request.
func (m *Metrics) RecordProxyRequest(backend, method string, statusCode int, duration time.Duration) {
	m.proxyRequestsTotal.WithLabelValues(backend, method, strconv.Itoa(statusCode)).Inc()
	m.proxyDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// RecordBreakerRejection records a request rejected by an open breaker.
func (m *Metrics) RecordBreakerRejection(backend string) {
	m.breakerRejections.WithLabelValues(backend).Inc()
}
