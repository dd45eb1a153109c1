package gateway

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// findMetric returns the metric family with the given name.
func findMetric(t *testing.T, registry *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()

	families, err := registry.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func TestMetrics_RecordAuthDecision(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	metrics := NewMetricsWithRegisterer("testgw", registry)

	metrics.RecordAuthDecision("rejected", "expired", 5*time.Millisecond)
	metrics.RecordAuthDecision("rejected", "expired", 3*time.Millisecond)
	metrics.RecordAuthDecision("forwarded", "", time.Millisecond)

	mf := findMetric(t, registry, "testgw_auth_decisions_total")
	require.NotNil(t, mf)

	for _, m := range mf.GetMetric() {
		labels := map[string]string{}
		for _, l := range m.GetLabel() {
			labels[l.GetName()] = l.GetValue()
		}
		if labels["decision"] == "rejected" {
			assert.Equal(t, float64(2), m.GetCounter().GetValue())
			assert.Equal(t, "expired", labels["reason"])
		}
	}
}

func TestMetrics_RecordProxyRequest(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	metrics := NewMetricsWithRegisterer("testgw", registry)

	metrics.RecordProxyRequest("shop", "GET", 200, 10*time.Millisecond)
	metrics.RecordBreakerRejection("shop")

	mf := findMetric(t, registry, "testgw_proxy_requests_total")
	require.NotNil(t, mf)
	require.Len(t, mf.GetMetric(), 1)
	assert.Equal(t, float64(1), mf.GetMetric()[0].GetCounter().GetValue())

	mf = findMetric(t, registry, "testgw_proxy_breaker_rejections_total")
	require.NotNil(t, mf)
	assert.Equal(t, float64(1), mf.GetMetric()[0].GetCounter().GetValue())
}

func TestNewMetrics_DuplicateRegistration(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()

	// Registering twice against the same registry must not panic.
	first := NewMetricsWithRegisterer("testgw", registry)
	second := NewMetricsWithRegisterer("testgw", registry)

	assert.NotNil(t, first)
	assert.NotNil(t, second)
}
