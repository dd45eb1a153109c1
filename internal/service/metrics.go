package service

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for a downstream service.
type Metrics struct {
	trustResolutionsTotal *prometheus.CounterVec
	authzDenialsTotal     *prometheus.CounterVec
	requestsTotal         *prometheus.CounterVec
	requestDuration       *prometheus.HistogramVec
	registerer            prometheus.Registerer
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
		namespace = "service"
	}

	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		registerer: registerer,
	}

	m.trustResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trust",
			Name:      "resolutions_total",
			Help:      "Total number of trust resolutions by source",
		},
		[]string{"source"},
	)

	m.authzDenialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "authz",
			Name:      "denials_total",
			Help:      "Total number of authorization denials",
		},
		[]string{"reason"},
	)

	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	collectors := []prometheus.Collector{
		m.trustResolutionsTotal,
		m.authzDenialsTotal,
		m.requestsTotal,
		m.requestDuration,
	}
	for _, c := range collectors {
		_ = m.registerer.Register(c)
	}

	return m
}

// RecordTrustResolution records one trust resolution.
func (m *Metrics) RecordTrustResolution(source string) {
	m.trustResolutionsTotal.WithLabelValues(source).Inc()
}

// RecordAuthzDenial records one authorization denial.
func (m *Metrics) RecordAuthzDenial(reason string) {
	m.authzDenialsTotal.WithLabelValues(reason).Inc()
}

// RecordRequest records one handled request.
func (m *Metrics) RecordRequest(method, path string, statusCode int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.requestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
