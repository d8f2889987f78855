package health

import (
	"context"
	"time"
)

// Component identifies a collaborator whose health is tracked
type Component string

const (
	ComponentLLM       Component = "llm"
	ComponentSentiment Component = "sentiment"
	ComponentCache     Component = "cache"
	ComponentStore     Component = "store"
)

// HealthStatus represents the health state of a component
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusUnhealthy HealthStatus = "unhealthy"
	StatusCooldown  HealthStatus = "cooldown"
	StatusUnknown   HealthStatus = "unknown"
)

// ComponentHealth tracks the health of a single collaborator
type ComponentHealth struct {
	Component     Component    `json:"component"`
	Status        HealthStatus `json:"status"`
	LastChecked   time.Time    `json:"last_checked,omitempty"`
	LastSuccessAt time.Time    `json:"last_success_at,omitempty"`
	FailureCount  int          `json:"failure_count"`
	LastError     string       `json:"last_error,omitempty"`
	CooldownUntil time.Time    `json:"cooldown_until,omitempty"`
	LatencyMs     int          `json:"latency_ms"`
}

// Checker performs an active health check for one component
type Checker interface {
	// Check returns latency in milliseconds and any error encountered
	Check(ctx context.Context) (latencyMs int, err error)
	Component() Component
}
