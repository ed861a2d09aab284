package domain

import "time"

// KindUsage is the per-operation-kind slice of UsageStats.
type KindUsage struct {
	TotalRequests      int64         `json:"total_requests"`
	SuccessfulRequests int64         `json:"successful_requests"`
	FailedRequests     int64         `json:"failed_requests"`
	TotalVolume        int64         `json:"total_volume"`
	TotalElapsed       time.Duration `json:"total_elapsed"`
}

// UsageStats is the running aggregate of recorded operations.
// SuccessfulRequests + FailedRequests always equals TotalRequests.
type UsageStats struct {
	TotalRequests      int64         `json:"total_requests"`
	SuccessfulRequests int64         `json:"successful_requests"`
	FailedRequests     int64         `json:"failed_requests"`
	TotalVolume        int64         `json:"total_volume"`
	TotalElapsed       time.Duration `json:"total_elapsed"`

	Failures map[FailureKind]int64      `json:"failures,omitempty"`
	ByKind   map[OperationKind]KindUsage `json:"by_kind,omitempty"`

	Since time.Time `json:"since"`
}

// SuccessRate returns the share of successful requests in [0, 1].
func (s UsageStats) SuccessRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.SuccessfulRequests) / float64(s.TotalRequests)
}

// AverageLatency returns the mean elapsed time per recorded request.
func (s UsageStats) AverageLatency() time.Duration {
	if s.TotalRequests == 0 {
		return 0
	}
	return s.TotalElapsed / time.Duration(s.TotalRequests)
}

// Clone returns a copy that shares no maps with s.
func (s UsageStats) Clone() UsageStats {
	out := s
	out.Failures = make(map[FailureKind]int64, len(s.Failures))
	for k, v := range s.Failures {
		out.Failures[k] = v
	}
	out.ByKind = make(map[OperationKind]KindUsage, len(s.ByKind))
	for k, v := range s.ByKind {
		out.ByKind[k] = v
	}
	return out
}
