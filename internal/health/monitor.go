package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/cogcall/internal/infra/rpc/provider"
)

// ProviderSource reports provider health keyed by service and provider name.
// routing.Router implements it.
type ProviderSource interface {
	Health() map[string]map[string]provider.HealthStatus
}

// Checker is a dependency such as the database or Redis.
type Checker interface {
	Health(ctx context.Context) error
}

// Monitor aggregates health status from providers and dependencies.
type Monitor struct {
	providers ProviderSource
	checks    map[string]Checker
	cacheFor  time.Duration

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport *HealthReport
}

// NewMonitor creates a new health monitor.
func NewMonitor(providers ProviderSource) *Monitor {
	return &Monitor{
		providers: providers,
		checks:    make(map[string]Checker),
		cacheFor:  10 * time.Second,
	}
}

// AddCheck registers a dependency check.
func (m *Monitor) AddCheck(name string, c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = c
}

// CheckHealth builds a report, reusing the previous one for a few seconds
// so health checks do not hammer dependencies.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastReport != nil && time.Since(m.lastCheck) < m.cacheFor {
		return *m.lastReport
	}

	report := HealthReport{
		SystemStatus: StatusHealthy,
		Services:     make(map[string]ServiceHealth),
		CheckedAt:    time.Now().UTC(),
	}

	for service, providers := range m.providers.Health() {
		sh := serviceHealth(service, providers)
		report.Services[service] = sh
		if sh.Status.worse(report.SystemStatus) {
			report.SystemStatus = sh.Status
		}
	}

	if len(m.checks) > 0 {
		report.Dependencies = make(map[string]string, len(m.checks))
		for name, c := range m.checks {
			checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err := c.Health(checkCtx)
			cancel()
			if err != nil {
				report.Dependencies[name] = err.Error()
				if StatusDegraded.worse(report.SystemStatus) {
					report.SystemStatus = StatusDegraded
				}
				continue
			}
			report.Dependencies[name] = "ok"
		}
	}

	m.lastCheck = time.Now()
	m.lastReport = &report
	return report
}

// serviceHealth rates a service by its best provider, since the router
// fails over to it.
func serviceHealth(service string, providers map[string]provider.HealthStatus) ServiceHealth {
	sh := ServiceHealth{Service: service, Status: StatusCritical}

	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ph := providerHealth(name, providers[name])
		sh.Providers = append(sh.Providers, ph)
		if sh.Status.worse(ph.Status) {
			sh.Status = ph.Status
		}
	}
	return sh
}

func providerHealth(name string, h provider.HealthStatus) ProviderHealth {
	ph := ProviderHealth{
		Name:      name,
		Status:    StatusHealthy,
		State:     provider.StatusHealthy.String(),
		ErrorRate: h.ErrorRate,
		LatencyMs: h.Latency.Milliseconds(),
	}

	if h.MonitorStats != nil {
		ph.State = h.MonitorStats.Status.String()
		if h.MonitorStats.RetryAfter > 0 {
			ph.RetryAfter = h.MonitorStats.RetryAfter.String()
		}
		switch h.MonitorStats.Status {
		case provider.StatusBlocked:
			ph.Status = StatusCritical
		case provider.StatusThrottled, provider.StatusDegraded:
			ph.Status = StatusDegraded
		}
	}
	if ph.Status == StatusHealthy && (!h.Available || h.ErrorRate > 0.5) {
		ph.Status = StatusDegraded
	}
	return ph
}
