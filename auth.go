package promptops

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// AuthManager owns the service credential and the shared outbound HTTP
// transport. Every request sent through Client() carries the current
// credential, and any 401 response is converted to a typed authentication
// error before it reaches calling code.
type AuthManager struct {
	creds      *credentialStore
	httpClient *http.Client
	timeout    atomic.Int64 // nanoseconds
	logger     Logger
}

// authTransport injects the Authorization header at send time, so a
// credential update takes effect on the next call with no further wiring,
// and classifies 401 responses.
type authTransport struct {
	base  http.RoundTripper
	creds *credentialStore
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Per the RoundTripper contract the request must not be mutated.
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+t.creds.get())
	clone.Header.Set("User-Agent", userAgent())

	resp, err := t.base.RoundTrip(clone)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		// Drain so the underlying connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, &Error{
			Type:       ErrorTypeAuthentication,
			Message:    "credential rejected by service",
			StatusCode: http.StatusUnauthorized,
			Method:     req.Method,
			Endpoint:   req.URL.Path,
			Timestamp:  time.Now(),
		}
	}

	return resp, nil
}

func newAuthManager(apiKey string, timeout time.Duration, base http.RoundTripper, logger Logger) (*AuthManager, error) {
	if apiKey == "" {
		return nil, &Error{Type: ErrorTypeConfiguration, Message: "apiKey must not be empty"}
	}
	if base == nil {
		base = http.DefaultTransport
	}

	creds := newCredentialStore(apiKey)
	a := &AuthManager{
		creds: creds,
		// No client-level Timeout: deadlines come from per-request
		// contexts, so a timeout update never races in-flight requests.
		httpClient: &http.Client{
			Transport: &authTransport{base: base, creds: creds},
		},
		logger: logger,
	}
	a.timeout.Store(int64(timeout))
	return a, nil
}

// Client returns the shared HTTP client. A single instance is reused across
// all calls so connections are pooled.
func (a *AuthManager) Client() *http.Client {
	return a.httpClient
}

// UpdateAPIKey atomically replaces the credential. The next outbound request
// carries the new key.
func (a *AuthManager) UpdateAPIKey(key string) {
	a.creds.set(key)
	a.logger.Info("API key updated", "key", maskKey(key))
}

// MaskedAPIKey returns the display form of the credential, or an
// authentication error when none is set.
func (a *AuthManager) MaskedAPIKey() (string, error) {
	return a.creds.masked()
}

// IsAuthenticated reports whether a non-empty credential is set. Pure; no
// network I/O.
func (a *AuthManager) IsAuthenticated() bool {
	return a.creds.defined()
}

// setTimeout atomically replaces the per-request timeout applied by the
// manager's own probes. Data operations derive their deadline from the
// client configuration instead.
func (a *AuthManager) setTimeout(d time.Duration) {
	a.timeout.Store(int64(d))
}

func (a *AuthManager) requestTimeout() time.Duration {
	return time.Duration(a.timeout.Load())
}

// ValidateAPIKey probes the service's auth endpoint with the current
// credential. Returns true on 200. A 401 returns an authentication error:
// the credential is proven bad. Any other failure (network error, timeout,
// 5xx) returns false with a nil error, since infrastructure trouble is not
// evidence against the credential.
func (a *AuthManager) ValidateAPIKey(ctx context.Context, baseURL string) (bool, error) {
	if d := a.requestTimeout(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/auth/validate", nil)
	if err != nil {
		return false, nil
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		var authErr *Error
		if errors.As(err, &authErr) && authErr.Type == ErrorTypeAuthentication {
			return false, authErr
		}
		a.logger.Debug("auth probe failed", "error", err.Error())
		return false, nil
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusOK {
		return true, nil
	}
	a.logger.Debug("auth probe returned non-OK status", "status", resp.StatusCode)
	return false, nil
}

// Refresh re-validates the credential. Unlike ValidateAPIKey it never
// silently no-ops: an unverifiable credential is an authentication error.
func (a *AuthManager) Refresh(ctx context.Context, baseURL string) error {
	ok, err := a.ValidateAPIKey(ctx, baseURL)
	if err != nil {
		return err
	}
	if !ok {
		return &Error{
			Type:    ErrorTypeAuthentication,
			Message: "credential could not be validated",
		}
	}
	return nil
}

func userAgent() string {
	return fmt.Sprintf("promptops-go/%s", Version)
}
