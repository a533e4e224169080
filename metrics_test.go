package promptops

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCollectorRecords(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetricsCollectorWithRegistry(registry)

	m.recordRequest("get_prompt", 200, 12*time.Millisecond)
	m.recordRequest("get_prompt", 500, 3*time.Millisecond)
	m.recordRetry()
	m.recordRetry()
	m.recordCacheHit()
	m.recordCacheMiss()
	m.recordCircuitState(StateOpen)
	m.recordTelemetryPending(7)
	m.recordError(ErrorTypeServer)

	families, err := registry.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["promptops_requests_total"])
	assert.True(t, names["promptops_request_duration_seconds"])
	assert.True(t, names["promptops_retries_total"])
	assert.True(t, names["promptops_circuit_breaker_state"])

	assert.Equal(t, float64(2), testutil.ToFloat64(m.retriesTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.cacheHits))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.cacheMisses))
	assert.Equal(t, float64(StateOpen), testutil.ToFloat64(m.circuitBreakerState))
	assert.Equal(t, float64(7), testutil.ToFloat64(m.telemetryPending))
}

func TestMetricsCollectorNilSafe(t *testing.T) {
	var m *MetricsCollector

	// Metrics are optional; a nil collector never panics.
	m.recordRequest("get_prompt", 200, time.Millisecond)
	m.recordRetry()
	m.recordCircuitState(StateClosed)
	m.recordCacheHit()
	m.recordCacheMiss()
	m.recordTelemetryPending(0)
	m.recordError(ErrorTypeNetwork)
}
