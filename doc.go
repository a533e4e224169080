// Package promptops provides a resilient client SDK for a remote
// prompt-management service, layering reliability primitives around the
// standard net/http Client:
//
//   - Bearer credential injection on every outbound request, with 401
//     responses surfaced as typed authentication errors
//   - Retries with exponential backoff + jitter for rate-limited (429)
//     and server (5xx) failures
//   - Circuit breaker (closed / open / half-open states) that fails fast
//     when the remote service is persistently unhealthy
//   - Cache-aside prompt caching over a pluggable backend (Redis or
//     in-memory), keyed by prompt identity and version
//   - Buffered usage telemetry with caller-driven batch flushing
//   - Prometheus metrics and structured logging
//
// Design goals:
//   - Small surface area: a Config struct plus functional options
//   - Safe concurrent use of a single *Client instance
//   - Typed errors callers can pattern-match with errors.Is / errors.As
//   - No hidden I/O: telemetry tracking never blocks the request path
//
// Typical usage:
//
//	client, err := promptops.New(promptops.Config{
//	    BaseURL:         "https://prompts.example.com",
//	    APIKey:          os.Getenv("PROMPTOPS_API_KEY"),
//	    EnableCache:     true,
//	    CacheBackendURL: "redis://localhost:6379/0",
//	    EnableTelemetry: true,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := client.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Shutdown(context.Background())
//
//	prompt, err := client.GetPrompt(ctx, promptops.GetPromptRequest{PromptID: "greeting"})
//
// Only 429 and 5xx responses trigger retries by default; supply a custom
// RetryPolicy via WithRetryPolicy to override. Concurrent cache misses for
// the same prompt each fetch independently unless WithSingleFlight is set.
package promptops
