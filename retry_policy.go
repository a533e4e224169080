package promptops

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kianwoon/promptops-go/internal/backoff"
)

// RetryPolicy decides, per failed attempt, whether the call should be
// retried and after what delay. Implementations must be safe for
// concurrent use.
type RetryPolicy interface {
	ShouldRetry(resp *http.Response, err error, attempt int) (time.Duration, bool)
}

// defaultRetryPolicy retries rate-limited (429) and server (5xx) responses
// plus transport-level network errors, with exponential backoff. Client
// errors, proven-bad credentials and context expiry are never retried.
type defaultRetryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	jitter     float64
	strategy   backoff.Strategy
}

func newRetryPolicy(rc RetryConfig) *defaultRetryPolicy {
	var strategy backoff.Strategy = backoff.Exponential{}
	if rc.DecorrelatedJitter {
		strategy = backoff.Decorrelated{}
	}
	return &defaultRetryPolicy{
		maxRetries: rc.MaxRetries,
		baseDelay:  rc.BaseDelay,
		maxDelay:   rc.MaxDelay,
		jitter:     rc.Jitter,
		strategy:   strategy,
	}
}

// ShouldRetry implements RetryPolicy.
func (p *defaultRetryPolicy) ShouldRetry(resp *http.Response, err error, attempt int) (time.Duration, bool) {
	if attempt >= p.maxRetries {
		return 0, false
	}

	if err != nil {
		// A client-side timeout or cancellation is surfaced immediately;
		// retrying a call whose deadline already expired cannot succeed.
		if isContextError(err) {
			return 0, false
		}
		if IsAuthentication(err) {
			return 0, false
		}
		// Remaining transport errors (connection reset, refused, DNS) are
		// transient.
		return p.strategy.Delay(attempt, p.baseDelay, p.maxDelay, p.jitter), true
	}

	if resp == nil {
		return 0, false
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusServiceUnavailable:
		if d := parseRetryAfter(resp.Header.Get("Retry-After")); d > 0 {
			return d, true
		}
		return p.strategy.Delay(attempt, p.baseDelay, p.maxDelay, p.jitter), true
	case resp.StatusCode >= 500:
		return p.strategy.Delay(attempt, p.baseDelay, p.maxDelay, p.jitter), true
	default:
		return 0, false
	}
}

// isContextError reports whether err stems from context cancellation or a
// client-side deadline rather than a server-side failure.
func isContextError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// parseRetryAfter interprets a Retry-After header as either delay-seconds
// or an HTTP-date. Returns 0 when absent or unparseable; capped at one hour.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if seconds <= 0 {
			return 0
		}
		d := time.Duration(seconds) * time.Second
		if d > time.Hour {
			d = time.Hour
		}
		return d
	}

	if t, err := http.ParseTime(value); err == nil {
		d := time.Until(t)
		if d > 0 && d <= time.Hour {
			return d
		}
	}

	return 0
}

// sleepCtx waits for d, returning early with the context error if ctx is
// done first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
