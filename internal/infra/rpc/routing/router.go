package routing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/vietddude/cogcall/internal/core/domain"
	"github.com/vietddude/cogcall/internal/infra/rpc/provider"
)

// ErrNoProvider is the cause of a failure for operations whose service has no provider.
var ErrNoProvider = errors.New("no provider for service")

// Router dispatches operations to the provider registered for their service.
// A service may have several providers (e.g. two regions); the first one that
// is neither blocked nor throttled wins, falling back to the first registered.
type Router struct {
	mu        sync.RWMutex
	providers map[string][]provider.Provider
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{providers: make(map[string][]provider.Provider)}
}

// AddProvider registers p for service.
func (r *Router) AddProvider(service string, p provider.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[service] = append(r.providers[service], p)
}

// GetProvider returns the best available provider for service.
func (r *Router) GetProvider(service string) (provider.Provider, error) {
	r.mu.RLock()
	providers := r.providers[service]
	r.mu.RUnlock()

	if len(providers) == 0 {
		return nil, fmt.Errorf("%w %q", ErrNoProvider, service)
	}

	for _, p := range providers {
		stats := p.GetHealth().MonitorStats
		if stats == nil || (stats.Status != provider.StatusBlocked && stats.Status != provider.StatusThrottled) {
			return p, nil
		}
	}
	return providers[0], nil
}

// Services lists registered services in name order.
func (r *Router) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.providers))
	for s := range r.providers {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// GetAllProviders returns the providers registered for service.
func (r *Router) GetAllProviders(service string) []provider.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]provider.Provider(nil), r.providers[service]...)
}

// Execute implements provider.Executor by routing on op.Service().
func (r *Router) Execute(ctx context.Context, op provider.Operation) domain.Outcome {
	p, err := r.GetProvider(op.Service())
	if err != nil {
		return domain.Failed(domain.WrapFailure(domain.FailureInvalidInput, err, "route %s", op.Kind), 0)
	}
	return p.Execute(ctx, op)
}

// Health reports the health of every provider keyed by service and name.
func (r *Router) Health() map[string]map[string]provider.HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]map[string]provider.HealthStatus, len(r.providers))
	for service, providers := range r.providers {
		m := make(map[string]provider.HealthStatus, len(providers))
		for _, p := range providers {
			m[p.GetName()] = p.GetHealth()
		}
		out[service] = m
	}
	return out
}

// Close closes every provider and returns the joined errors.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, providers := range r.providers {
		for _, p := range providers {
			if err := p.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", p.GetName(), err))
			}
		}
	}
	return errors.Join(errs...)
}
