// Package budget handles usage accounting and spend limits.
//
// This package contains:
//   - UsageAccountant: process-lifetime counters of recorded operations
//   - PriceTable: per-kind price per volume unit
//   - DailyBudget: estimated spend cap that resets at local midnight
package budget

import (
	"sync"
	"time"

	"github.com/vietddude/cogcall/internal/core/domain"
)

// UsageAccountant keeps running statistics of completed operations.
// Record is safe for concurrent use and never blocks on I/O.
type UsageAccountant struct {
	mu    sync.RWMutex
	stats domain.UsageStats
	now   func() time.Time
}

// NewUsageAccountant creates an empty accountant.
func NewUsageAccountant() *UsageAccountant {
	a := &UsageAccountant{now: time.Now}
	a.stats = a.empty()
	return a
}

// Record adds one logical operation. It accepts any outcome and never fails.
// Negative volume or elapsed values count as zero.
func (a *UsageAccountant) Record(kind domain.OperationKind, outcome domain.Outcome, volume int64) {
	if volume < 0 {
		volume = 0
	}
	elapsed := outcome.Elapsed
	if elapsed < 0 {
		elapsed = 0
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	s := &a.stats
	k := s.ByKind[kind]

	s.TotalRequests++
	k.TotalRequests++
	if outcome.OK() {
		s.SuccessfulRequests++
		k.SuccessfulRequests++
	} else {
		s.FailedRequests++
		k.FailedRequests++
		s.Failures[outcome.Failure.Kind]++
	}
	s.TotalVolume += volume
	k.TotalVolume += volume
	s.TotalElapsed += elapsed
	k.TotalElapsed += elapsed

	s.ByKind[kind] = k
}

// Snapshot returns a copy of the current counters.
func (a *UsageAccountant) Snapshot() domain.UsageStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stats.Clone()
}

// EstimatedCost prices the total volume at a flat rate.
func (a *UsageAccountant) EstimatedCost(ratePerUnit float64) float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return float64(a.stats.TotalVolume) * ratePerUnit
}

// EstimatedCostFor prices the volume of each kind with its own rate and
// adds per-call prices for successful requests.
func (a *UsageAccountant) EstimatedCostFor(prices PriceTable) float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var total float64
	for kind, k := range a.stats.ByKind {
		total += prices.Cost(kind, k.TotalVolume)
		total += float64(k.SuccessfulRequests) * prices.PerCall[kind]
	}
	return total
}

// Reset clears all counters.
func (a *UsageAccountant) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats = a.empty()
}

func (a *UsageAccountant) empty() domain.UsageStats {
	return domain.UsageStats{
		Failures: make(map[domain.FailureKind]int64),
		ByKind:   make(map[domain.OperationKind]domain.KindUsage),
		Since:    a.now(),
	}
}
