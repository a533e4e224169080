package promptops

import "time"

// VersionLatest is the sentinel version used when a prompt version is not
// specified.
const VersionLatest = "latest"

// Prompt is a prompt payload returned by the service. Content and Metadata
// are carried opaque; the client performs no processing on them.
type Prompt struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name,omitempty"`
	Version   string                 `json:"version"`
	ModuleID  string                 `json:"module_id,omitempty"`
	Content   string                 `json:"content"`
	Variables []string               `json:"variables,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	UpdatedAt *time.Time             `json:"updated_at,omitempty"`
}

// PromptList is a single page of prompt summaries.
type PromptList struct {
	Prompts []Prompt `json:"prompts"`
	Total   int      `json:"total"`
}

// GetPromptRequest identifies a prompt to fetch. Version defaults to
// VersionLatest when empty.
type GetPromptRequest struct {
	PromptID string
	Version  string
}

// RenderRequest carries a server-side render invocation. Variables are
// passed through as opaque key/value data.
type RenderRequest struct {
	PromptID  string                 `json:"promptId"`
	Variables map[string]interface{} `json:"variables"`
}

// Message is one entry of a rendered message sequence.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RenderResult is the response from server-side prompt rendering.
type RenderResult struct {
	Messages        []Message              `json:"messages"`
	RenderedContent string                 `json:"rendered_content"`
	VariablesUsed   map[string]interface{} `json:"variables_used"`
}

// Compatibility is the service's model-compatibility verdict for a prompt.
type Compatibility struct {
	IsCompatible       bool    `json:"is_compatible"`
	CompatibilityScore float64 `json:"compatibility_score"`
	Notes              string  `json:"notes,omitempty"`
}

// HealthStatus is the coarse service health reported by HealthCheck.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// Health is the result of a HealthCheck probe.
type Health struct {
	Status HealthStatus `json:"status"`

	// Circuit is the current circuit-breaker state.
	Circuit string `json:"circuit"`

	// CacheConnected reports whether the cache backend answered a ping.
	// Always false when caching is disabled.
	CacheConnected bool `json:"cache_connected"`
}

// TelemetryEvent is a single usage event. Attributes never contain
// credentials or prompt content, only operational metadata.
type TelemetryEvent struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Timestamp  time.Time              `json:"timestamp"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// TelemetrySummary is a read-only snapshot of the telemetry collector.
type TelemetrySummary struct {
	Enabled       bool `json:"enabled"`
	PendingEvents int  `json:"pending_events"`
}
