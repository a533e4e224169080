package promptops

import (
	"context"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
)

// CacheBackend is the key-value store behind prompt caching. Implementations
// must be safe for concurrent use. Get returns (nil, nil) on a miss.
type CacheBackend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	Ping(ctx context.Context) error
	Close() error
}

// cacheKey derives the deterministic backend key for a prompt identity.
func cacheKey(promptID, version string) string {
	return "prompt:" + promptID + ":" + version
}

// promptKeyPrefix matches every cached version of a prompt.
func promptKeyPrefix(promptID string) string {
	return "prompt:" + promptID + ":"
}

// cacheManager provides cache-aside semantics for prompt payloads. A nil or
// disabled manager behaves as an always-miss cache so callers never branch
// on whether caching is configured.
type cacheManager struct {
	backend CacheBackend
	ttl     time.Duration
	enabled atomic.Bool
	logger  Logger
	metrics *MetricsCollector
}

func newCacheManager(backend CacheBackend, ttl time.Duration, enabled bool, logger Logger, metrics *MetricsCollector) *cacheManager {
	m := &cacheManager{
		backend: backend,
		ttl:     ttl,
		logger:  logger,
		metrics: metrics,
	}
	m.enabled.Store(enabled && backend != nil)
	return m
}

func (m *cacheManager) isEnabled() bool {
	return m != nil && m.enabled.Load()
}

func (m *cacheManager) setEnabled(enabled bool) {
	if m == nil {
		return
	}
	m.enabled.Store(enabled && m.backend != nil)
}

// get returns the cached prompt payload for key, or nil on a miss. Backend
// and deserialization failures are logged misses, never errors: a broken
// cache must not break reads.
func (m *cacheManager) get(ctx context.Context, key string) []byte {
	if !m.isEnabled() {
		return nil
	}

	data, err := m.backend.Get(ctx, key)
	if err != nil {
		m.logger.Warn("cache read failed, treating as miss", "key", key, "error", err.Error())
		m.metrics.recordCacheMiss()
		return nil
	}
	if data == nil {
		m.metrics.recordCacheMiss()
		return nil
	}

	// Reject entries that no longer decode; they would fail at the caller
	// anyway and deleting is cheaper than re-serving garbage.
	var probe Prompt
	if err := json.Unmarshal(data, &probe); err != nil {
		m.logger.Warn("cache entry corrupt, treating as miss", "key", key, "error", err.Error())
		m.metrics.recordCacheMiss()
		return nil
	}

	m.metrics.recordCacheHit()
	return data
}

// set stores a prompt payload under key, best effort. Last writer wins.
func (m *cacheManager) set(ctx context.Context, key string, data []byte) {
	if !m.isEnabled() {
		return
	}
	if err := m.backend.Set(ctx, key, data, m.ttl); err != nil {
		m.logger.Warn("cache write failed", "key", key, "error", err.Error())
	}
}

// invalidate removes every cached version of promptID. Succeeds when no
// entries existed.
func (m *cacheManager) invalidate(ctx context.Context, promptID string) error {
	if m == nil || m.backend == nil {
		return nil
	}
	if err := m.backend.DeleteByPrefix(ctx, promptKeyPrefix(promptID)); err != nil {
		return &Error{Type: ErrorTypeCache, Message: "cache invalidation failed", Cause: err}
	}
	return nil
}

func (m *cacheManager) ping(ctx context.Context) error {
	if m == nil || m.backend == nil {
		return nil
	}
	return m.backend.Ping(ctx)
}

func (m *cacheManager) close() error {
	if m == nil || m.backend == nil {
		return nil
	}
	return m.backend.Close()
}
