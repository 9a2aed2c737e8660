package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz and GET /readyz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	Error       string `json:"error,omitempty"`
	LastChecked string `json:"lastChecked"`
}

// EngineMetrics is returned by GET /v1/metrics/engine.
type EngineMetrics struct {
	TotalTurns      int64            `json:"totalTurns"`
	AvgLatencyMs    float64          `json:"avgLatencyMs"`
	P95LatencyMs    float64          `json:"p95LatencyMs"`
	IntentsByMethod map[string]int64 `json:"intentsByMethod"`
	ActionsByCode   map[string]int64 `json:"actionsByCode"`
	FallbackRate    float64          `json:"fallbackRate"`
	LLMFallback     map[string]int64 `json:"llmFallback"`
	ExternalErrors  map[string]int64 `json:"externalErrors"`
	CacheHitRate    float64          `json:"cacheHitRate"`
	DealTransitions map[string]int64 `json:"dealTransitions"`
	Period          string           `json:"period"`
}

// SweepResponse is returned by POST /v1/sessions/sweep.
type SweepResponse struct {
	Removed int `json:"removed"`
}

// AcceptedResponse is returned when an inbound message is queued.
type AcceptedResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}
