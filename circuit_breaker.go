package promptops

import (
	"sync/atomic"
	"time"
)

// CircuitState is the state of the circuit breaker.
type CircuitState int64

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker tracks consecutive server-classified failures against the
// remote service and fails fast once a threshold is crossed. All state is
// held in atomics so concurrent requests share a single authoritative
// accumulation point with no lost updates.
type CircuitBreaker struct {
	config      CircuitBreakerConfig
	state       int64
	failures    int64
	successes   int64
	lastFailure int64 // unix nanos
	trialBusy   int64 // 1 while a half-open trial call is in flight
}

// NewCircuitBreaker creates a circuit breaker, filling zero config fields
// with defaults.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = DefaultFailureThreshold
	}
	if config.RecoveryTimeout == 0 {
		config.RecoveryTimeout = DefaultRecoveryTimeout
	}
	if config.SuccessThreshold == 0 {
		config.SuccessThreshold = DefaultSuccessThreshold
	}
	return &CircuitBreaker{
		config: config,
		state:  int64(StateClosed),
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	return CircuitState(atomic.LoadInt64(&cb.state))
}

// Allow reports whether a call may proceed. In the open state it returns
// false until the recovery timeout elapses, at which point exactly one
// caller wins the transition to half-open and is let through as the trial.
// While half-open, trials run one at a time: further callers are rejected
// until the in-flight trial is recorded as success or failure.
func (cb *CircuitBreaker) Allow() bool {
	switch cb.State() {
	case StateClosed:
		return true
	case StateHalfOpen:
		return atomic.CompareAndSwapInt64(&cb.trialBusy, 0, 1)
	case StateOpen:
		last := atomic.LoadInt64(&cb.lastFailure)
		if time.Now().UnixNano()-last < int64(cb.config.RecoveryTimeout) {
			return false
		}
		// Claim the trial slot first so the admission is settled before the
		// state flips and other callers start taking the half-open path.
		if !atomic.CompareAndSwapInt64(&cb.trialBusy, 0, 1) {
			return false
		}
		atomic.StoreInt64(&cb.successes, 0)
		atomic.CompareAndSwapInt64(&cb.state, int64(StateOpen), int64(StateHalfOpen))
		return true
	default:
		return false
	}
}

// releaseTrial frees the half-open trial slot for a call that was admitted
// but produced no recordable outcome (client-side timeout, canceled context,
// request construction failure). No-op in other states.
func (cb *CircuitBreaker) releaseTrial() {
	atomic.StoreInt64(&cb.trialBusy, 0)
}

// RecordFailure counts a server-classified failure. Crossing the threshold
// while closed opens the circuit; any failure while half-open re-opens it.
func (cb *CircuitBreaker) RecordFailure() {
	atomic.StoreInt64(&cb.lastFailure, time.Now().UnixNano())

	switch cb.State() {
	case StateClosed:
		if atomic.AddInt64(&cb.failures, 1) >= int64(cb.config.FailureThreshold) {
			atomic.StoreInt64(&cb.state, int64(StateOpen))
		}
	case StateHalfOpen:
		atomic.StoreInt64(&cb.successes, 0)
		atomic.StoreInt64(&cb.state, int64(StateOpen))
		atomic.StoreInt64(&cb.trialBusy, 0)
	case StateOpen:
		// Already open; lastFailure was refreshed above.
	}
}

// RecordSuccess counts a successful call. While closed it resets the
// consecutive-failure counter; while half-open enough successes close the
// circuit again.
func (cb *CircuitBreaker) RecordSuccess() {
	switch cb.State() {
	case StateClosed:
		atomic.StoreInt64(&cb.failures, 0)
	case StateHalfOpen:
		if atomic.AddInt64(&cb.successes, 1) >= int64(cb.config.SuccessThreshold) {
			atomic.StoreInt64(&cb.failures, 0)
			atomic.StoreInt64(&cb.successes, 0)
			atomic.StoreInt64(&cb.state, int64(StateClosed))
		}
		// Free the trial slot either way so the next call can proceed.
		atomic.StoreInt64(&cb.trialBusy, 0)
	case StateOpen:
	}
}
