package promptops

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Defaults applied by Config.withDefaults for zero-valued fields.
const (
	DefaultTimeout          = 30 * time.Second
	DefaultMaxRetries       = 3
	DefaultBaseDelay        = 100 * time.Millisecond
	DefaultMaxDelay         = 10 * time.Second
	DefaultJitter           = 0.1
	DefaultCacheTTL         = time.Hour
	DefaultFailureThreshold = 5
	DefaultRecoveryTimeout  = 30 * time.Second
	DefaultSuccessThreshold = 1
)

// RetryConfig controls retry classification and backoff scheduling.
type RetryConfig struct {
	// MaxRetries is the number of retry attempts after the initial call.
	MaxRetries int

	// BaseDelay is the first backoff delay; attempt n waits
	// BaseDelay * 2^n (plus jitter), capped at MaxDelay.
	BaseDelay time.Duration

	// MaxDelay caps the computed backoff.
	MaxDelay time.Duration

	// Jitter is the uniform jitter fraction in [0, 1].
	Jitter float64

	// DecorrelatedJitter switches backoff to AWS-style decorrelated
	// jitter: each delay is drawn from [BaseDelay, BaseDelay*3^attempt]
	// capped at MaxDelay. Jitter is ignored when set.
	DecorrelatedJitter bool
}

// CircuitBreakerConfig controls when the client stops sending calls to a
// persistently failing service.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive server-classified
	// failures that opens the circuit.
	FailureThreshold int

	// RecoveryTimeout is how long the circuit stays open before a trial
	// call is allowed.
	RecoveryTimeout time.Duration

	// SuccessThreshold is the number of consecutive half-open successes
	// required to close the circuit again.
	SuccessThreshold int
}

// Config is the client configuration. The zero value is not usable: BaseURL
// and APIKey are required, everything else defaults via withDefaults.
type Config struct {
	// BaseURL is the prompt service URL (required).
	BaseURL string

	// APIKey is the opaque service credential (required).
	APIKey string

	// Timeout bounds every remote call, including retries.
	Timeout time.Duration

	// EnableCache turns on cache-aside prompt caching.
	EnableCache bool

	// CacheBackendURL is the cache backend connection URL
	// (e.g. redis://localhost:6379/0). Required when EnableCache is set
	// unless a backend is supplied via WithCacheBackend.
	CacheBackendURL string

	// CacheTTL is the lifetime of cached prompt entries.
	CacheTTL time.Duration

	// EnableTelemetry turns on usage event collection.
	EnableTelemetry bool

	// Retry configures retry classification and backoff.
	Retry RetryConfig

	// CircuitBreaker configures fail-fast behavior.
	CircuitBreaker CircuitBreakerConfig
}

func (c Config) withDefaults() Config {
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Retry.MaxRetries == 0 {
		c.Retry.MaxRetries = DefaultMaxRetries
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = DefaultBaseDelay
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = DefaultMaxDelay
	}
	if c.Retry.Jitter == 0 {
		c.Retry.Jitter = DefaultJitter
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.CircuitBreaker.FailureThreshold == 0 {
		c.CircuitBreaker.FailureThreshold = DefaultFailureThreshold
	}
	if c.CircuitBreaker.RecoveryTimeout == 0 {
		c.CircuitBreaker.RecoveryTimeout = DefaultRecoveryTimeout
	}
	if c.CircuitBreaker.SuccessThreshold == 0 {
		c.CircuitBreaker.SuccessThreshold = DefaultSuccessThreshold
	}
	return c
}

// Validate checks the full configuration and returns a configuration error
// listing every violation. Validation never mutates the config.
func (c Config) Validate() error {
	var problems []string

	problems = append(problems, c.validateEndpoint()...)
	problems = append(problems, c.validateTimeouts()...)
	problems = append(problems, c.validateRetry()...)
	problems = append(problems, c.validateCache()...)
	problems = append(problems, c.validateCircuitBreaker()...)

	if len(problems) > 0 {
		return &Error{
			Type:    ErrorTypeConfiguration,
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("validation errors: %v", problems),
		}
	}
	return nil
}

func (c Config) validateEndpoint() []string {
	var problems []string
	if c.BaseURL == "" {
		problems = append(problems, "baseURL must not be empty")
	} else if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, fmt.Sprintf("baseURL %q is not an absolute URL", c.BaseURL))
	}
	return problems
}

func (c Config) validateTimeouts() []string {
	var problems []string
	if c.Timeout <= 0 {
		problems = append(problems, "timeout must be positive")
	}
	return problems
}

func (c Config) validateRetry() []string {
	var problems []string
	if c.Retry.MaxRetries < 0 {
		problems = append(problems, "retry maxRetries must be non-negative")
	}
	if c.Retry.BaseDelay < 0 {
		problems = append(problems, "retry baseDelay must be non-negative")
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		problems = append(problems, "retry maxDelay must be greater than or equal to baseDelay")
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		problems = append(problems, "retry jitter must be between 0 and 1")
	}
	return problems
}

func (c Config) validateCache() []string {
	var problems []string
	if c.EnableCache && c.CacheTTL <= 0 {
		problems = append(problems, "cacheTTL must be positive when caching is enabled")
	}
	return problems
}

func (c Config) validateCircuitBreaker() []string {
	var problems []string
	if c.CircuitBreaker.FailureThreshold <= 0 {
		problems = append(problems, "circuitBreaker failureThreshold must be positive")
	}
	if c.CircuitBreaker.RecoveryTimeout <= 0 {
		problems = append(problems, "circuitBreaker recoveryTimeout must be positive")
	}
	if c.CircuitBreaker.SuccessThreshold <= 0 {
		problems = append(problems, "circuitBreaker successThreshold must be positive")
	}
	return problems
}

// RetryConfigUpdate carries a partial retry configuration update. Nil fields
// keep their current values.
type RetryConfigUpdate struct {
	MaxRetries *int
	BaseDelay  *time.Duration
	MaxDelay   *time.Duration
	Jitter     *float64
}

// ConfigUpdate carries a partial configuration update for
// Client.UpdateConfig. Nil fields keep their current values. The merged
// result is validated as a whole before any field is applied.
type ConfigUpdate struct {
	BaseURL         *string
	APIKey          *string
	Timeout         *time.Duration
	EnableCache     *bool
	CacheBackendURL *string
	CacheTTL        *time.Duration
	EnableTelemetry *bool
	Retry           *RetryConfigUpdate
}

// merge applies u on top of cfg and returns the result. cfg is not modified.
func (u ConfigUpdate) merge(cfg Config) Config {
	if u.BaseURL != nil {
		cfg.BaseURL = *u.BaseURL
	}
	if u.APIKey != nil {
		cfg.APIKey = *u.APIKey
	}
	if u.Timeout != nil {
		cfg.Timeout = *u.Timeout
	}
	if u.EnableCache != nil {
		cfg.EnableCache = *u.EnableCache
	}
	if u.CacheBackendURL != nil {
		cfg.CacheBackendURL = *u.CacheBackendURL
	}
	if u.CacheTTL != nil {
		cfg.CacheTTL = *u.CacheTTL
	}
	if u.EnableTelemetry != nil {
		cfg.EnableTelemetry = *u.EnableTelemetry
	}
	if u.Retry != nil {
		if u.Retry.MaxRetries != nil {
			cfg.Retry.MaxRetries = *u.Retry.MaxRetries
		}
		if u.Retry.BaseDelay != nil {
			cfg.Retry.BaseDelay = *u.Retry.BaseDelay
		}
		if u.Retry.MaxDelay != nil {
			cfg.Retry.MaxDelay = *u.Retry.MaxDelay
		}
		if u.Retry.Jitter != nil {
			cfg.Retry.Jitter = *u.Retry.Jitter
		}
	}
	return cfg
}

// ConfigFromEnv builds a Config from PROMPTOPS_* environment variables,
// loading a .env file first when one is present. Unset variables leave the
// corresponding field at its zero value so withDefaults can fill it in.
//
// Recognized variables: PROMPTOPS_BASE_URL, PROMPTOPS_API_KEY,
// PROMPTOPS_TIMEOUT (Go duration), PROMPTOPS_ENABLE_CACHE,
// PROMPTOPS_CACHE_BACKEND_URL, PROMPTOPS_CACHE_TTL (Go duration),
// PROMPTOPS_ENABLE_TELEMETRY, PROMPTOPS_MAX_RETRIES,
// PROMPTOPS_RETRY_BASE_DELAY (Go duration).
func ConfigFromEnv() (Config, error) {
	// Missing .env is fine; explicit environment still applies.
	_ = godotenv.Load()

	cfg := Config{
		BaseURL:         os.Getenv("PROMPTOPS_BASE_URL"),
		APIKey:          os.Getenv("PROMPTOPS_API_KEY"),
		CacheBackendURL: os.Getenv("PROMPTOPS_CACHE_BACKEND_URL"),
	}

	var err error
	if cfg.Timeout, err = envDuration("PROMPTOPS_TIMEOUT"); err != nil {
		return Config{}, err
	}
	if cfg.CacheTTL, err = envDuration("PROMPTOPS_CACHE_TTL"); err != nil {
		return Config{}, err
	}
	if cfg.Retry.BaseDelay, err = envDuration("PROMPTOPS_RETRY_BASE_DELAY"); err != nil {
		return Config{}, err
	}
	if cfg.EnableCache, err = envBool("PROMPTOPS_ENABLE_CACHE"); err != nil {
		return Config{}, err
	}
	if cfg.EnableTelemetry, err = envBool("PROMPTOPS_ENABLE_TELEMETRY"); err != nil {
		return Config{}, err
	}
	if cfg.Retry.MaxRetries, err = envInt("PROMPTOPS_MAX_RETRIES"); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envDuration(name string) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, &Error{Type: ErrorTypeConfiguration, Message: name + " is not a valid duration", Cause: err}
	}
	return d, nil
}

func envBool(name string) (bool, error) {
	v := os.Getenv(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, &Error{Type: ErrorTypeConfiguration, Message: name + " is not a valid boolean", Cause: err}
	}
	return b, nil
}

func envInt(name string) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &Error{Type: ErrorTypeConfiguration, Message: name + " is not a valid integer", Cause: err}
	}
	return n, nil
}
