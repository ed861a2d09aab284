// Package health provides service health monitoring and status reporting.
package health

import "time"

// SystemStatus represents the health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

func (s SystemStatus) worse(o SystemStatus) bool {
	return rank(s) > rank(o)
}

func rank(s SystemStatus) int {
	switch s {
	case StatusCritical:
		return 2
	case StatusDegraded:
		return 1
	default:
		return 0
	}
}

// ProviderHealth is the health of one endpoint of a service.
type ProviderHealth struct {
	Name       string       `json:"name"`
	Status     SystemStatus `json:"status"`
	State      string       `json:"state"`
	ErrorRate  float64      `json:"error_rate"`
	LatencyMs  int64        `json:"latency_ms"`
	RetryAfter string       `json:"retry_after,omitempty"`
}

// ServiceHealth contains health metrics for one Azure service.
type ServiceHealth struct {
	Service   string           `json:"service"`
	Status    SystemStatus     `json:"status"`
	Providers []ProviderHealth `json:"providers"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus             `json:"system_status"`
	Services     map[string]ServiceHealth `json:"services"`
	Dependencies map[string]string        `json:"dependencies,omitempty"`
	CheckedAt    time.Time                `json:"checked_at"`
}
