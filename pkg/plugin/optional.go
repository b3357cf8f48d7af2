package plugin

import "context"

// HTTPProvider is implemented by plugins that expose REST API routes.
type HTTPProvider interface {
	Routes() []Route
}

// HealthChecker is implemented by plugins that report their health status.
type HealthChecker interface {
	Health(ctx context.Context) HealthStatus
}

// EventSubscriber is implemented by plugins that declare event subscriptions at init.
type EventSubscriber interface {
	Subscriptions() []Subscription
}

// HealthStatus is a module's self-reported health.
type HealthStatus struct {
	Status  string            `json:"status"` // "healthy", "degraded" or "unhealthy".
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}
