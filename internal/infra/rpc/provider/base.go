package provider

import (
	"sync"
	"time"

	"github.com/vietddude/cogcall/internal/core/domain"
)

// BaseProvider implements common provider functionality.
// It handles health tracking, metrics, and basic status checks.
type BaseProvider struct {
	Name string

	mu           sync.RWMutex
	health       HealthStatus
	totalLatency time.Duration
	successCount int
	failureCount int
	requestCount int

	Monitor *ProviderMonitor
}

// NewBaseProvider creates a new BaseProvider.
func NewBaseProvider(name string) *BaseProvider {
	return &BaseProvider{
		Name: name,
		health: HealthStatus{
			Available:     true,
			LastSuccessAt: time.Now(),
		},
		Monitor: NewProviderMonitor(),
	}
}

// GetName returns the provider's name.
func (p *BaseProvider) GetName() string {
	return p.Name
}

// GetHealth returns the provider's health status.
func (p *BaseProvider) GetHealth() HealthStatus {
	p.mu.RLock()
	health := p.health
	p.mu.RUnlock()

	stats := p.Monitor.GetStats()
	health.MonitorStats = &stats
	if stats.Status == StatusBlocked {
		health.Available = false
	}
	return health
}

// IsAvailable checks if the provider is available.
func (p *BaseProvider) IsAvailable() bool {
	status := p.Monitor.CheckProviderStatus()
	return status == StatusHealthy || status == StatusDegraded
}

// RecordSuccess records a successful attempt.
func (p *BaseProvider) RecordSuccess(latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.successCount++
	p.requestCount++
	p.totalLatency += latency
	p.health.LastSuccessAt = time.Now()
	p.health.Available = true

	p.health.ErrorRate = float64(p.failureCount) / float64(p.requestCount)
	p.health.Latency = p.totalLatency / time.Duration(p.successCount)

	p.Monitor.RecordRequest(latency)
}

// RecordFailure records a failed attempt.
func (p *BaseProvider) RecordFailure(latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.failureCount++
	p.requestCount++
	p.health.LastFailureAt = time.Now()

	p.health.ErrorRate = float64(p.failureCount) / float64(p.requestCount)
	if p.health.ErrorRate > 0.5 {
		p.health.Available = false
	}

	p.Monitor.RecordRequest(latency)
}

// Fail records a failed attempt, feeding throttle and auth signals to the
// monitor, and returns the outcome for f.
func (p *BaseProvider) Fail(f *domain.Failure, latency time.Duration) domain.Outcome {
	switch f.Kind {
	case domain.FailureRateLimited:
		p.Monitor.RecordThrottle(f.RetryAfter)
	case domain.FailureUnauthorized:
		p.Monitor.RecordAuthFailure()
	}
	p.RecordFailure(latency)
	return domain.Failed(f, latency)
}
