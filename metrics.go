package promptops

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector exposes Prometheus metrics for the client's request
// lifecycle and reliability layers. A nil collector is a valid no-op, so
// instrumentation call sites never branch. Safe for concurrent use.
type MetricsCollector struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	retriesTotal        prometheus.Counter
	circuitBreakerState prometheus.Gauge

	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter

	telemetryPending prometheus.Gauge

	errorsTotal *prometheus.CounterVec
}

// NewMetricsCollector creates a collector registered on the default
// Prometheus registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied
// registerer, for callers that isolate registries (tests, multi-client
// processes).
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "promptops_requests_total",
				Help: "Total number of requests made to the prompt service",
			},
			[]string{"operation", "status_code"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "promptops_request_duration_seconds",
				Help:    "Duration of prompt service requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		retriesTotal: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "promptops_retries_total",
				Help: "Total number of retry attempts",
			},
		),
		circuitBreakerState: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "promptops_circuit_breaker_state",
				Help: "Current circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
		),
		cacheHits: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "promptops_cache_hits_total",
				Help: "Total number of prompt cache hits",
			},
		),
		cacheMisses: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "promptops_cache_misses_total",
				Help: "Total number of prompt cache misses",
			},
		),
		telemetryPending: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "promptops_telemetry_pending_events",
				Help: "Number of telemetry events waiting to be flushed",
			},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "promptops_errors_total",
				Help: "Total number of errors by type",
			},
			[]string{"type"},
		),
	}
}

func (m *MetricsCollector) recordRequest(operation string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(operation, strconv.Itoa(statusCode)).Inc()
	m.requestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *MetricsCollector) recordRetry() {
	if m == nil {
		return
	}
	m.retriesTotal.Inc()
}

func (m *MetricsCollector) recordCircuitState(state CircuitState) {
	if m == nil {
		return
	}
	m.circuitBreakerState.Set(float64(state))
}

func (m *MetricsCollector) recordCacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *MetricsCollector) recordCacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

func (m *MetricsCollector) recordTelemetryPending(n int) {
	if m == nil {
		return
	}
	m.telemetryPending.Set(float64(n))
}

func (m *MetricsCollector) recordError(errorType string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(errorType).Inc()
}
