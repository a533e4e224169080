package promptops

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// maxPendingEvents caps the telemetry queue. When the endpoint is
// unreachable for long stretches the oldest events are dropped rather than
// growing memory without bound.
const maxPendingEvents = 1000

// telemetryCollector buffers usage events in memory and ships them in
// batches on demand. Tracking never performs network I/O; flushing is
// caller-driven.
type telemetryCollector struct {
	enabled atomic.Bool

	mu      sync.Mutex
	pending []TelemetryEvent

	// flushMu serializes flushes so two concurrent Flush calls cannot ship
	// the same batch twice.
	flushMu sync.Mutex

	httpClient *http.Client
	endpoint   func() string
	logger     Logger
	metrics    *MetricsCollector
}

func newTelemetryCollector(enabled bool, httpClient *http.Client, endpoint func() string, logger Logger, metrics *MetricsCollector) *telemetryCollector {
	t := &telemetryCollector{
		httpClient: httpClient,
		endpoint:   endpoint,
		logger:     logger,
		metrics:    metrics,
	}
	t.enabled.Store(enabled)
	return t
}

// setEnabled toggles collection for subsequent track calls. Pending events
// are kept either way.
func (t *telemetryCollector) setEnabled(enabled bool) {
	t.enabled.Store(enabled)
}

// track appends an event to the pending queue. No-op when disabled.
func (t *telemetryCollector) track(eventType string, attributes map[string]interface{}) {
	if !t.enabled.Load() {
		return
	}

	event := TelemetryEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		Attributes: attributes,
	}

	t.mu.Lock()
	t.pending = append(t.pending, event)
	if overflow := len(t.pending) - maxPendingEvents; overflow > 0 {
		t.pending = t.pending[overflow:]
	}
	n := len(t.pending)
	t.mu.Unlock()

	t.metrics.recordTelemetryPending(n)
}

// Flush ships the pending batch to the telemetry endpoint. On success the
// shipped events are removed; on failure the queue is retained untouched for
// the next attempt. Flushing an empty queue is a no-op.
func (t *telemetryCollector) Flush(ctx context.Context) error {
	t.flushMu.Lock()
	defer t.flushMu.Unlock()

	t.mu.Lock()
	batchLen := len(t.pending)
	batch := make([]TelemetryEvent, batchLen)
	copy(batch, t.pending)
	t.mu.Unlock()

	if batchLen == 0 {
		return nil
	}

	body, err := json.Marshal(map[string]interface{}{"events": batch})
	if err != nil {
		return &Error{Type: ErrorTypeTelemetry, Message: "failed to encode telemetry batch", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint(), bytes.NewReader(body))
	if err != nil {
		return &Error{Type: ErrorTypeTelemetry, Message: "failed to build telemetry request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		t.logger.Warn("telemetry flush failed, retaining events", "pending", batchLen, "error", err.Error())
		return &Error{Type: ErrorTypeTelemetry, Message: "telemetry flush failed", Cause: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		t.logger.Warn("telemetry endpoint rejected batch, retaining events", "status", resp.StatusCode, "pending", batchLen)
		return &Error{
			Type:       ErrorTypeTelemetry,
			Message:    "telemetry endpoint rejected batch",
			StatusCode: resp.StatusCode,
		}
	}

	// Drop only the shipped prefix; events tracked during the flush stay
	// queued for the next one.
	t.mu.Lock()
	t.pending = t.pending[batchLen:]
	n := len(t.pending)
	t.mu.Unlock()

	t.metrics.recordTelemetryPending(n)
	t.logger.Debug("telemetry batch flushed", "events", batchLen)
	return nil
}

// Summary returns a read-only, non-blocking snapshot of the collector.
func (t *telemetryCollector) Summary() TelemetrySummary {
	t.mu.Lock()
	n := len(t.pending)
	t.mu.Unlock()
	return TelemetrySummary{
		Enabled:       t.enabled.Load(),
		PendingEvents: n,
	}
}
