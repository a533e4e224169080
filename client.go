package promptops

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/kianwoon/promptops-go/internal/singleflight"
)

// Client lifecycle states.
const (
	stateUninitialized int32 = iota
	stateInitialized
	stateShuttingDown
	stateClosed
)

// Client is the prompt service façade. It composes credential management,
// caching, retry/circuit-breaking and telemetry behind the public
// operations. Safe for concurrent use by multiple goroutines.
type Client struct {
	cfgMu sync.RWMutex
	cfg   Config

	state       atomic.Int32
	lifecycleMu sync.Mutex

	auth    *AuthManager
	breaker *CircuitBreaker

	retryMu     sync.RWMutex
	retry       RetryPolicy
	customRetry bool

	cacheBackend CacheBackend
	cache        *cacheManager

	telemetry *telemetryCollector
	metrics   *MetricsCollector
	logger    Logger

	flight        *singleflight.Group
	baseTransport http.RoundTripper
}

// New validates cfg, applies options and wires the client's components.
// The returned client is Uninitialized; call Initialize before use.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:    cfg,
		logger: noopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}

	if cfg.EnableCache && c.cacheBackend == nil && cfg.CacheBackendURL == "" {
		return nil, &Error{
			Type:    ErrorTypeConfiguration,
			Message: "cacheBackendURL is required when caching is enabled",
		}
	}

	auth, err := newAuthManager(cfg.APIKey, cfg.Timeout, c.baseTransport, c.logger)
	if err != nil {
		return nil, err
	}
	c.auth = auth

	c.breaker = NewCircuitBreaker(cfg.CircuitBreaker)
	if c.retry == nil {
		c.retry = newRetryPolicy(cfg.Retry)
	}
	c.telemetry = newTelemetryCollector(
		cfg.EnableTelemetry,
		auth.Client(),
		func() string { return c.config().BaseURL + "/telemetry" },
		c.logger,
		c.metrics,
	)

	return c, nil
}

func (c *Client) config() Config {
	c.cfgMu.RLock()
	defer c.cfgMu.RUnlock()
	return c.cfg
}

func (c *Client) retryPolicy() RetryPolicy {
	c.retryMu.RLock()
	defer c.retryMu.RUnlock()
	return c.retry
}

// Initialize transitions the client to its operational state, dialing and
// probing the cache backend when caching is enabled. An unreachable cache
// backend degrades caching rather than failing initialization; an invalid
// backend URL is a configuration error.
func (c *Client) Initialize(ctx context.Context) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	switch c.state.Load() {
	case stateInitialized:
		return &Error{Type: ErrorTypeLifecycle, Message: "client already initialized"}
	case stateShuttingDown, stateClosed:
		return &Error{Type: ErrorTypeLifecycle, Message: "client is closed", Cause: ErrClientClosed}
	}

	cfg := c.config()

	backend := c.cacheBackend
	if cfg.EnableCache && backend == nil {
		b, err := newRedisBackend(cfg.CacheBackendURL)
		if err != nil {
			return err
		}
		backend = b
		c.cacheBackend = b
	}
	if cfg.EnableCache {
		if err := backend.Ping(ctx); err != nil {
			c.logger.Warn("cache backend unreachable, reads will miss until it recovers", "error", err.Error())
		}
	}
	c.cache = newCacheManager(backend, cfg.CacheTTL, cfg.EnableCache, c.logger, c.metrics)

	c.state.Store(stateInitialized)
	c.logger.Info("client initialized",
		"baseURL", cfg.BaseURL,
		"cache", cfg.EnableCache,
		"telemetry", cfg.EnableTelemetry,
	)
	return nil
}

// Shutdown flushes pending telemetry, releases the cache connection and
// closes the client. Idempotent; operations after Shutdown fail with a
// lifecycle error.
func (c *Client) Shutdown(ctx context.Context) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	switch c.state.Load() {
	case stateClosed:
		return nil
	case stateUninitialized:
		c.state.Store(stateClosed)
		return nil
	}

	c.state.Store(stateShuttingDown)

	if err := c.telemetry.Flush(ctx); err != nil {
		c.logger.Warn("telemetry flush during shutdown failed", "error", err.Error())
	}
	if err := c.cache.close(); err != nil {
		c.logger.Warn("cache backend close failed", "error", err.Error())
	}

	c.state.Store(stateClosed)
	c.logger.Info("client shut down")
	return nil
}

func (c *Client) requireInitialized() error {
	switch c.state.Load() {
	case stateInitialized:
		return nil
	case stateUninitialized:
		return &Error{Type: ErrorTypeLifecycle, Message: "client not initialized", Cause: ErrNotInitialized}
	default:
		return &Error{Type: ErrorTypeLifecycle, Message: "client is closed", Cause: ErrClientClosed}
	}
}

// GetPrompt fetches a prompt by identity, consulting the cache first when
// caching is enabled. Version defaults to VersionLatest.
func (c *Client) GetPrompt(ctx context.Context, req GetPromptRequest) (*Prompt, error) {
	if err := c.requireInitialized(); err != nil {
		return nil, err
	}
	if req.PromptID == "" {
		return nil, &Error{Type: ErrorTypeConfiguration, Message: "promptId must not be empty"}
	}
	version := req.Version
	if version == "" {
		version = VersionLatest
	}
	key := cacheKey(req.PromptID, version)

	if data := c.cache.get(ctx, key); data != nil {
		c.trackPromptFetch(req.PromptID, version, true)
		return decodePrompt(data)
	}

	fetch := func() ([]byte, error) {
		data, err := c.do(ctx, "get_prompt", http.MethodGet,
			"/prompts/"+url.PathEscape(req.PromptID)+"/"+url.PathEscape(version), nil, nil)
		if err != nil {
			return nil, err
		}
		c.cache.set(ctx, key, data)
		return data, nil
	}

	var data []byte
	var err error
	if c.flight != nil {
		var v interface{}
		v, err = c.flight.Do(key, func() (interface{}, error) { return fetch() })
		if err == nil {
			data = v.([]byte)
		}
	} else {
		data, err = fetch()
	}
	if err != nil {
		return nil, err
	}

	c.trackPromptFetch(req.PromptID, version, false)
	return decodePrompt(data)
}

func (c *Client) trackPromptFetch(promptID, version string, cacheHit bool) {
	c.telemetry.track("prompt.fetch", map[string]interface{}{
		"prompt_id": promptID,
		"version":   version,
		"cache_hit": cacheHit,
	})
}

func decodePrompt(data []byte) (*Prompt, error) {
	var p Prompt
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, &Error{Type: ErrorTypeServer, Message: "failed to decode prompt payload", Cause: err}
	}
	return &p, nil
}

// ListPrompts fetches a single page of prompts for a module. Collection
// results are never cached; only individual prompt identity is.
func (c *Client) ListPrompts(ctx context.Context, moduleID string, limit int) (*PromptList, error) {
	if err := c.requireInitialized(); err != nil {
		return nil, err
	}

	query := url.Values{}
	if moduleID != "" {
		query.Set("module_id", moduleID)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	data, err := c.do(ctx, "list_prompts", http.MethodGet, "/prompts", query, nil)
	if err != nil {
		return nil, err
	}

	var list PromptList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, &Error{Type: ErrorTypeServer, Message: "failed to decode prompt list", Cause: err}
	}

	c.telemetry.track("prompt.list", map[string]interface{}{
		"module_id": moduleID,
		"returned":  len(list.Prompts),
	})
	return &list, nil
}

// RenderPrompt renders a prompt server-side with the given variables.
// Render is a write-like operation and is never served from cache.
// Variables are passed through opaque; the rendering service owns any
// content handling.
func (c *Client) RenderPrompt(ctx context.Context, req RenderRequest) (*RenderResult, error) {
	if err := c.requireInitialized(); err != nil {
		return nil, err
	}
	if req.PromptID == "" {
		return nil, &Error{Type: ErrorTypeConfiguration, Message: "promptId must not be empty"}
	}

	data, err := c.do(ctx, "render_prompt", http.MethodPost, "/render", nil, req)
	if err != nil {
		return nil, err
	}

	var result RenderResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, &Error{Type: ErrorTypeServer, Message: "failed to decode render response", Cause: err}
	}

	c.telemetry.track("prompt.render", map[string]interface{}{
		"prompt_id": req.PromptID,
		"variables": len(req.Variables),
	})
	return &result, nil
}

// GetPromptContent renders a prompt and returns only the rendered text.
func (c *Client) GetPromptContent(ctx context.Context, req RenderRequest) (string, error) {
	result, err := c.RenderPrompt(ctx, req)
	if err != nil {
		return "", err
	}
	return result.RenderedContent, nil
}

// GetModelCompatibility reports whether a prompt is compatible with the
// given provider/model pair.
func (c *Client) GetModelCompatibility(ctx context.Context, promptID, provider, modelName string) (bool, error) {
	if err := c.requireInitialized(); err != nil {
		return false, err
	}
	if promptID == "" {
		return false, &Error{Type: ErrorTypeConfiguration, Message: "promptId must not be empty"}
	}

	query := url.Values{}
	query.Set("model_provider", provider)
	query.Set("model_name", modelName)

	data, err := c.do(ctx, "model_compatibility", http.MethodGet,
		"/prompts/"+url.PathEscape(promptID)+"/compatibility", query, nil)
	if err != nil {
		return false, err
	}

	var compat Compatibility
	if err := json.Unmarshal(data, &compat); err != nil {
		return false, &Error{Type: ErrorTypeServer, Message: "failed to decode compatibility response", Cause: err}
	}

	c.telemetry.track("compatibility.check", map[string]interface{}{
		"prompt_id":      promptID,
		"model_provider": provider,
		"model_name":     modelName,
		"is_compatible":  compat.IsCompatible,
	})
	return compat.IsCompatible, nil
}

// ClearCache removes every cached version of promptID. Succeeds when no
// entries existed.
func (c *Client) ClearCache(ctx context.Context, promptID string) error {
	if err := c.requireInitialized(); err != nil {
		return err
	}
	if err := c.cache.invalidate(ctx, promptID); err != nil {
		return err
	}
	c.telemetry.track("cache.clear", map[string]interface{}{"prompt_id": promptID})
	return nil
}

// UpdateConfig merges the partial update onto the current configuration,
// validates the result as a whole and applies it atomically. On validation
// failure nothing is applied and the prior configuration stays in effect.
func (c *Client) UpdateConfig(ctx context.Context, update ConfigUpdate) error {
	if err := c.requireInitialized(); err != nil {
		return err
	}

	c.cfgMu.Lock()
	merged := update.merge(c.cfg)
	if err := merged.Validate(); err != nil {
		c.cfgMu.Unlock()
		return err
	}
	if merged.EnableCache && c.cacheBackend == nil {
		// The backend is dialed once at Initialize; there is nothing to
		// enable on a client that started without one.
		c.cfgMu.Unlock()
		return &Error{
			Type:    ErrorTypeConfiguration,
			Message: "cannot enable caching: no cache backend was configured at initialization",
		}
	}
	c.cfg = merged
	c.cfgMu.Unlock()

	if update.APIKey != nil {
		c.auth.UpdateAPIKey(*update.APIKey)
	}
	c.auth.setTimeout(merged.Timeout)
	c.telemetry.setEnabled(merged.EnableTelemetry)
	c.cache.setEnabled(merged.EnableCache)

	if !c.customRetry {
		c.retryMu.Lock()
		c.retry = newRetryPolicy(merged.Retry)
		c.retryMu.Unlock()
	}

	c.telemetry.track("config.update", nil)
	c.logger.Info("configuration updated",
		"timeout", merged.Timeout,
		"cache", merged.EnableCache,
		"telemetry", merged.EnableTelemetry,
	)
	return nil
}

// HealthCheck derives a coarse health status from the circuit breaker and a
// lightweight authenticated probe.
func (c *Client) HealthCheck(ctx context.Context) (*Health, error) {
	if err := c.requireInitialized(); err != nil {
		return nil, err
	}

	cfg := c.config()
	health := &Health{Circuit: c.breaker.State().String()}

	switch c.breaker.State() {
	case StateOpen:
		health.Status = HealthUnhealthy
	case StateHalfOpen:
		health.Status = HealthDegraded
	default:
		ok, err := c.auth.ValidateAPIKey(ctx, cfg.BaseURL)
		switch {
		case err != nil:
			health.Status = HealthUnhealthy
		case !ok:
			health.Status = HealthDegraded
		default:
			health.Status = HealthHealthy
		}
	}

	if cfg.EnableCache {
		if err := c.cache.ping(ctx); err != nil {
			if health.Status == HealthHealthy {
				health.Status = HealthDegraded
			}
		} else {
			health.CacheConnected = true
		}
	}

	return health, nil
}

// TelemetrySummary returns a non-blocking snapshot of the telemetry queue.
func (c *Client) TelemetrySummary() TelemetrySummary {
	return c.telemetry.Summary()
}

// FlushTelemetry ships pending telemetry events. On failure events are
// retained for the next attempt.
func (c *Client) FlushTelemetry(ctx context.Context) error {
	if err := c.requireInitialized(); err != nil {
		return err
	}
	return c.telemetry.Flush(ctx)
}

// UpdateAPIKey atomically replaces the credential; the next outbound
// request carries the new key.
func (c *Client) UpdateAPIKey(key string) {
	c.auth.UpdateAPIKey(key)
}

// MaskedAPIKey returns the redacted display form of the current credential.
func (c *Client) MaskedAPIKey() (string, error) {
	return c.auth.MaskedAPIKey()
}

// IsAuthenticated reports whether a non-empty credential is set.
func (c *Client) IsAuthenticated() bool {
	return c.auth.IsAuthenticated()
}

// ValidateAPIKey probes the auth endpoint with the current credential. See
// AuthManager.ValidateAPIKey for the truth table.
func (c *Client) ValidateAPIKey(ctx context.Context) (bool, error) {
	return c.auth.ValidateAPIKey(ctx, c.config().BaseURL)
}

// Refresh re-validates the credential, failing with an authentication error
// when it cannot be proven good.
func (c *Client) Refresh(ctx context.Context) error {
	return c.auth.Refresh(ctx, c.config().BaseURL)
}

// do executes one logical request with circuit breaking and retries. The
// retry loop is internal: callers observe a single result, success or one
// typed error after budget exhaustion.
func (c *Client) do(ctx context.Context, operation, method, path string, query url.Values, body interface{}) ([]byte, error) {
	cfg := c.config()
	start := time.Now()
	requestID := uuid.NewString()

	target := cfg.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var bodyBytes []byte
	if body != nil {
		var err error
		if bodyBytes, err = json.Marshal(body); err != nil {
			return nil, &Error{Type: ErrorTypeClient, Message: "failed to encode request body", Cause: err}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	retry := c.retryPolicy()

	newError := func(errType, message string, statusCode, attempt int, cause error) *Error {
		return &Error{
			Type:       errType,
			Message:    message,
			StatusCode: statusCode,
			Cause:      cause,
			RequestID:  requestID,
			Method:     method,
			Endpoint:   path,
			Attempt:    attempt,
			MaxRetries: cfg.Retry.MaxRetries,
			Timestamp:  time.Now(),
			Duration:   time.Since(start),
		}
	}

	for attempt := 0; ; attempt++ {
		if !c.breaker.Allow() {
			c.metrics.recordError(ErrorTypeCircuitOpen)
			return nil, newError(ErrorTypeCircuitOpen, "circuit breaker is open", 0, attempt, ErrCircuitOpen)
		}

		if attempt > 0 {
			c.metrics.recordRetry()
			c.logger.Debug("retrying request",
				"requestID", requestID, "attempt", attempt, "maxRetries", cfg.Retry.MaxRetries, "endpoint", path)
		}

		var reader io.Reader
		if bodyBytes != nil {
			reader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			c.breaker.releaseTrial()
			return nil, newError(ErrorTypeClient, "failed to build request", 0, attempt, err)
		}
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.auth.Client().Do(req)
		if err != nil {
			var authErr *Error
			if errors.As(err, &authErr) && authErr.Type == ErrorTypeAuthentication {
				// Proven-bad credential: never retried, never charged to
				// the circuit breaker.
				c.breaker.releaseTrial()
				c.metrics.recordError(ErrorTypeAuthentication)
				c.metrics.recordRequest(operation, http.StatusUnauthorized, time.Since(start))
				return nil, authErr
			}
			if isContextError(err) {
				// Client-side expiry consumes no retry or breaker budget.
				c.breaker.releaseTrial()
				c.metrics.recordError(ErrorTypeTimeout)
				return nil, newError(ErrorTypeTimeout, "request timed out", 0, attempt, err)
			}

			c.breaker.RecordFailure()
			c.metrics.recordCircuitState(c.breaker.State())

			if delay, ok := retry.ShouldRetry(nil, err, attempt); ok {
				if serr := sleepCtx(ctx, delay); serr != nil {
					return nil, newError(ErrorTypeTimeout, "request timed out during backoff", 0, attempt, serr)
				}
				continue
			}
			c.metrics.recordError(ErrorTypeNetwork)
			c.metrics.recordRequest(operation, 0, time.Since(start))
			return nil, newError(ErrorTypeNetwork, "request failed", 0, attempt, err)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			c.breaker.RecordSuccess()
			c.metrics.recordCircuitState(c.breaker.State())

			data, err := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if err != nil {
				c.metrics.recordError(ErrorTypeNetwork)
				return nil, newError(ErrorTypeNetwork, "failed to read response body", resp.StatusCode, attempt, err)
			}
			c.metrics.recordRequest(operation, resp.StatusCode, time.Since(start))
			return data, nil
		}

		// Only 5xx counts as a server-classified failure; any other
		// response proves the service is reachable.
		if resp.StatusCode >= 500 {
			c.breaker.RecordFailure()
		} else {
			c.breaker.RecordSuccess()
		}
		c.metrics.recordCircuitState(c.breaker.State())

		if delay, ok := retry.ShouldRetry(resp, nil, attempt); ok {
			drainBody(resp)
			if serr := sleepCtx(ctx, delay); serr != nil {
				return nil, newError(ErrorTypeTimeout, "request timed out during backoff", resp.StatusCode, attempt, serr)
			}
			continue
		}

		message := readErrorMessage(resp)
		errType := classifyStatus(resp.StatusCode)
		c.metrics.recordError(errType)
		c.metrics.recordRequest(operation, resp.StatusCode, time.Since(start))
		return nil, newError(errType, message, resp.StatusCode, attempt, nil)
	}
}

func classifyStatus(statusCode int) string {
	switch {
	case statusCode == http.StatusNotFound:
		return ErrorTypeNotFound
	case statusCode == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case statusCode >= 500:
		return ErrorTypeServer
	default:
		return ErrorTypeClient
	}
}

// readErrorMessage extracts the service's error message, falling back to
// the HTTP status line. Closes the body.
func readErrorMessage(resp *http.Response) string {
	defer func() { _ = resp.Body.Close() }()

	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return resp.Status
}

func drainBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
