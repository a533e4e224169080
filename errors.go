package promptops

import (
	"errors"
	"fmt"
	"time"
)

// Error type discriminators carried by *Error. Callers can match on these
// via the Is* helpers or errors.Is against a typed target.
const (
	ErrorTypeConfiguration  = "Configuration"
	ErrorTypeAuthentication = "Authentication"
	ErrorTypeLifecycle      = "Lifecycle"
	ErrorTypeTimeout        = "Timeout"
	ErrorTypeCircuitOpen    = "CircuitOpen"
	ErrorTypeRateLimit      = "RateLimit"
	ErrorTypeNotFound       = "NotFound"
	ErrorTypeClient         = "Client"
	ErrorTypeServer         = "Server"
	ErrorTypeNetwork        = "Network"
	ErrorTypeCache          = "Cache"
	ErrorTypeTelemetry      = "Telemetry"
)

// Sentinel errors for common failure scenarios.
var (
	// ErrCircuitOpen is returned (wrapped) when the circuit breaker rejects
	// a call without attempting the network.
	ErrCircuitOpen = errors.New("promptops: circuit open")

	// ErrNotAuthenticated is returned when an operation requires a
	// credential and none is set.
	ErrNotAuthenticated = errors.New("promptops: no credential set")

	// ErrNotInitialized is returned when a data operation is invoked
	// before Initialize.
	ErrNotInitialized = errors.New("promptops: client not initialized")

	// ErrClientClosed is returned for operations after Shutdown.
	ErrClientClosed = errors.New("promptops: client closed")
)

// Error is the structured error type returned by every client operation.
// Type is always one of the ErrorType constants; the remaining fields are
// populated with whatever request context was available at failure time.
type Error struct {
	Type       string
	Message    string
	StatusCode int
	Cause      error
	RequestID  string
	Method     string
	Endpoint   string
	Attempt    int
	MaxRetries int
	Timestamp  time.Time
	Duration   time.Duration
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempt, e.MaxRetries)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is. Two *Error values match when their
// Type discriminators are equal, so `errors.Is(err, &Error{Type: ...})`
// works regardless of message or request context.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	if t, ok := target.(*Error); ok {
		return e.Type == t.Type
	}
	return false
}

// Timeout reports whether the error represents a timed-out operation.
// It also satisfies interfaces that probe for `Timeout() bool`.
func (e *Error) Timeout() bool {
	return e != nil && e.Type == ErrorTypeTimeout
}

// errorOfType reports whether err is (or wraps) an *Error with the given type.
func errorOfType(err error, errorType string) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == errorType
}

// IsConfiguration reports whether err is a configuration validation error.
func IsConfiguration(err error) bool { return errorOfType(err, ErrorTypeConfiguration) }

// IsAuthentication reports whether err means the credential was proven bad.
func IsAuthentication(err error) bool { return errorOfType(err, ErrorTypeAuthentication) }

// IsTimeout reports whether err represents a timed-out call.
func IsTimeout(err error) bool { return errorOfType(err, ErrorTypeTimeout) }

// IsCircuitOpen reports whether err was a circuit-breaker fail-fast.
func IsCircuitOpen(err error) bool { return errorOfType(err, ErrorTypeCircuitOpen) }

// IsNotFound reports whether the remote returned 404 for the request.
func IsNotFound(err error) bool { return errorOfType(err, ErrorTypeNotFound) }

// IsTransient determines if an error represents a transient failure that
// might succeed on retry. Returns true for network errors, timeouts, 5xx
// responses, rate limiting and open circuits. Returns false for
// configuration, lifecycle, authentication and non-429 4xx failures.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) {
		return true
	}
	var e *Error
	if errors.As(err, &e) {
		switch e.Type {
		case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeServer, ErrorTypeRateLimit, ErrorTypeCircuitOpen:
			return true
		case ErrorTypeClient:
			return e.StatusCode == 429
		}
	}
	return false
}
