package promptops

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTelemetry(t *testing.T, enabled bool, endpoint string) *telemetryCollector {
	t.Helper()
	return newTelemetryCollector(enabled, http.DefaultClient, func() string { return endpoint }, noopLogger{}, nil)
}

func TestTelemetryTrackAndSummary(t *testing.T) {
	tc := newTestTelemetry(t, true, "http://unused.invalid")

	tc.track("prompt_fetch", map[string]interface{}{"promptId": "greeting", "cache_hit": true})
	tc.track("prompt_render", nil)

	summary := tc.Summary()
	assert.True(t, summary.Enabled)
	assert.Equal(t, 2, summary.PendingEvents)
}

func TestTelemetryDisabledTrackIsNoOp(t *testing.T) {
	tc := newTestTelemetry(t, false, "http://unused.invalid")

	tc.track("prompt_fetch", nil)

	summary := tc.Summary()
	assert.False(t, summary.Enabled)
	assert.Equal(t, 0, summary.PendingEvents)

	// And nothing to flush means no network attempt at all.
	assert.NoError(t, tc.Flush(context.Background()))
}

func TestTelemetryFlushShipsBatch(t *testing.T) {
	var received struct {
		Events []TelemetryEvent `json:"events"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	tc := newTestTelemetry(t, true, server.URL)
	tc.track("prompt_fetch", map[string]interface{}{"promptId": "greeting"})
	tc.track("prompt_render", nil)

	require.NoError(t, tc.Flush(context.Background()))

	require.Len(t, received.Events, 2)
	assert.Equal(t, "prompt_fetch", received.Events[0].Type)
	assert.NotEmpty(t, received.Events[0].ID)
	assert.NotEqual(t, received.Events[0].ID, received.Events[1].ID)
	assert.Equal(t, 0, tc.Summary().PendingEvents)
}

func TestTelemetryFlushRetainsOnFailure(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusInternalServerError)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer server.Close()

	tc := newTestTelemetry(t, true, server.URL)
	tc.track("prompt_fetch", nil)

	err := tc.Flush(context.Background())
	require.Error(t, err)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, ErrorTypeTelemetry, e.Type)
	assert.Equal(t, 1, tc.Summary().PendingEvents)

	// Events survive for the next attempt.
	status.Store(http.StatusOK)
	require.NoError(t, tc.Flush(context.Background()))
	assert.Equal(t, 0, tc.Summary().PendingEvents)
}

func TestTelemetryFlushUnreachableEndpoint(t *testing.T) {
	tc := newTestTelemetry(t, true, "http://127.0.0.1:1")
	tc.track("prompt_fetch", nil)

	err := tc.Flush(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, tc.Summary().PendingEvents)
}

func TestTelemetryQueueCap(t *testing.T) {
	tc := newTestTelemetry(t, true, "http://unused.invalid")

	for i := 0; i < maxPendingEvents+50; i++ {
		tc.track("prompt_fetch", map[string]interface{}{"seq": i})
	}

	assert.Equal(t, maxPendingEvents, tc.Summary().PendingEvents)

	// The oldest events were the ones dropped.
	tc.mu.Lock()
	first := tc.pending[0].Attributes["seq"]
	tc.mu.Unlock()
	assert.Equal(t, 50, first)
}

func TestTelemetryConcurrentTrack(t *testing.T) {
	tc := newTestTelemetry(t, true, "http://unused.invalid")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				tc.track("prompt_fetch", map[string]interface{}{"worker": fmt.Sprint(n)})
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 200, tc.Summary().PendingEvents)
}

func TestTelemetrySetEnabledKeepsPending(t *testing.T) {
	tc := newTestTelemetry(t, true, "http://unused.invalid")
	tc.track("prompt_fetch", nil)

	tc.setEnabled(false)
	assert.Equal(t, 1, tc.Summary().PendingEvents)

	tc.track("prompt_fetch", nil)
	assert.Equal(t, 1, tc.Summary().PendingEvents)
}
