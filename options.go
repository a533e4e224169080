package promptops

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/kianwoon/promptops-go/internal/singleflight"
)

// Option customizes collaborators that are not part of Config.
type Option func(*Client)

// WithLogger sets the structured logger used by all components.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithLogrusLogger is shorthand for WithLogger(NewLogrusLogger(l)).
func WithLogrusLogger(l *logrus.Logger) Option {
	return WithLogger(NewLogrusLogger(l))
}

// WithMetrics enables Prometheus metrics on the default registerer.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsRegistry enables Prometheus metrics on the supplied registerer.
func WithMetricsRegistry(registry prometheus.Registerer) Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollectorWithRegistry(registry)
	}
}

// WithHTTPTransport replaces the base transport beneath credential
// injection. Useful for proxies and tests.
func WithHTTPTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.baseTransport = rt
	}
}

// WithCacheBackend supplies a cache backend directly, bypassing the
// CacheBackendURL dial in Initialize.
func WithCacheBackend(backend CacheBackend) Option {
	return func(c *Client) {
		c.cacheBackend = backend
	}
}

// WithRetryPolicy replaces the default retry classification.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Client) {
		if policy != nil {
			c.retry = policy
			c.customRetry = true
		}
	}
}

// WithSingleFlight coalesces concurrent cache-miss fetches for the same
// prompt into one upstream call. Off by default: independent fetches are
// correct for idempotent reads and avoid coupling caller latencies.
func WithSingleFlight() Option {
	return func(c *Client) {
		c.flight = singleflight.New()
	}
}
