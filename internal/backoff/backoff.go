// Package backoff provides delay calculators for retry scheduling.
package backoff

import (
	"math/rand"
	"time"
)

// Strategy computes the delay before retry attempt n (0-based).
type Strategy interface {
	Delay(attempt int, base, max time.Duration, jitter float64) time.Duration
}

// Exponential doubles the base delay per attempt and adds uniform jitter.
type Exponential struct{}

func (Exponential) Delay(attempt int, base, max time.Duration, jitter float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// Beyond 2^30 the cap always wins; avoid overflow.
	if attempt > 30 {
		attempt = 30
	}

	d := base << uint(attempt)
	if d <= 0 || d > max {
		d = max
	}

	jitter = clamp(jitter)
	if jitter > 0 {
		extra := time.Duration(float64(d) * jitter * rand.Float64())
		if d+extra > max {
			d = max
		} else {
			d += extra
		}
	}
	return d
}

// Decorrelated implements AWS-style decorrelated jitter: each delay is drawn
// uniformly from [base, min(max, base*3^attempt)]. Smoother tail latencies
// than plain exponential jitter under contention.
type Decorrelated struct{}

func (Decorrelated) Delay(attempt int, base, max time.Duration, _ float64) time.Duration {
	if attempt <= 0 {
		return base
	}
	if attempt > 10 {
		attempt = 10
	}

	lo := float64(base)
	hi := lo
	for i := 0; i < attempt; i++ {
		hi *= 3
		if hi >= float64(max) || hi < 0 {
			hi = float64(max)
			break
		}
	}
	if hi < lo {
		hi = lo
	}

	d := time.Duration(lo + rand.Float64()*(hi-lo))
	if d < 0 || d > max {
		d = max
	}
	return d
}

func clamp(jitter float64) float64 {
	if jitter < 0 {
		return 0
	}
	if jitter > 1 {
		return 1
	}
	return jitter
}
