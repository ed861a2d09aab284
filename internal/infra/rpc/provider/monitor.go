package provider

import (
	"strings"
	"sync"
	"time"
)

// ProviderStatus represents the health state of a provider.
type ProviderStatus int

const (
	StatusHealthy   ProviderStatus = iota // Provider is working normally
	StatusDegraded                        // Provider is slow but working
	StatusThrottled                       // Provider is rate limiting
	StatusBlocked                         // Provider rejects our credentials
)

func (s ProviderStatus) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusThrottled:
		return "throttled"
	case StatusBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// MarshalText renders the status by name in JSON reports.
func (s ProviderStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// MonitorStats holds monitoring statistics for a provider.
type MonitorStats struct {
	Status            ProviderStatus `json:"status"`
	AverageLatency    time.Duration  `json:"average_latency"`
	ThrottleCount     int            `json:"throttle_count"`
	AuthFailureCount  int            `json:"auth_failure_count"`
	RequestsLast1Hour int            `json:"requests_last_1_hour"`
	RetryAfter        time.Duration  `json:"retry_after"`
}

// ProviderMonitor tracks provider latency and throttling.
type ProviderMonitor struct {
	mu sync.RWMutex

	// Response time tracking
	recentLatencies  []time.Duration
	maxLatencyWindow int

	// Throttle tracking
	throttleCount    int
	authFailureCount int
	throttlePatterns []string
	lastThrottleTime time.Time
	lastAuthFailure  time.Time
	retryAfter       time.Duration

	// Sliding window of request timestamps
	requestTimestamps []time.Time
	windowDuration    time.Duration

	// Thresholds
	slowResponseThreshold time.Duration
	authBlockDuration     time.Duration

	now func() time.Time // injectable clock for testing
}

// NewProviderMonitor creates a new monitor with default settings.
func NewProviderMonitor() *ProviderMonitor {
	return &ProviderMonitor{
		recentLatencies:  make([]time.Duration, 0, 100),
		maxLatencyWindow: 100,
		throttlePatterns: []string{
			"rate limit is exceeded",
			"rate limit exceeded",
			"too many requests",
			"out of call volume quota",
			"quota exceeded",
			"exceeded token rate limit",
			"exceeded call rate limit",
		},
		requestTimestamps:     make([]time.Time, 0),
		windowDuration:        time.Hour,
		slowResponseThreshold: 3 * time.Second,
		authBlockDuration:     10 * time.Minute,
		now:                   time.Now,
	}
}

// RecordRequest records a completed request with its latency.
func (pm *ProviderMonitor) RecordRequest(latency time.Duration) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	now := pm.now()

	pm.recentLatencies = append(pm.recentLatencies, latency)
	if len(pm.recentLatencies) > pm.maxLatencyWindow {
		pm.recentLatencies = pm.recentLatencies[1:]
	}

	pm.requestTimestamps = append(pm.requestTimestamps, now)

	cutoff := now.Add(-pm.windowDuration)
	i := 0
	for i < len(pm.requestTimestamps) && !pm.requestTimestamps[i].After(cutoff) {
		i++
	}
	pm.requestTimestamps = pm.requestTimestamps[i:]
}

// RecordThrottle records a rate limiting response and the suggested wait.
func (pm *ProviderMonitor) RecordThrottle(retryAfter time.Duration) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.throttleCount++
	pm.lastThrottleTime = pm.now()
	if retryAfter <= 0 {
		retryAfter = time.Minute
	}
	pm.retryAfter = retryAfter
}

// RecordAuthFailure records a 401/403 response.
func (pm *ProviderMonitor) RecordAuthFailure() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.authFailureCount++
	pm.lastAuthFailure = pm.now()
}

// DetectThrottlePattern checks if a message contains throttle patterns.
func (pm *ProviderMonitor) DetectThrottlePattern(message string) bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	lowerMsg := strings.ToLower(message)
	for _, pattern := range pm.throttlePatterns {
		if strings.Contains(lowerMsg, pattern) {
			return true
		}
	}
	return false
}

// CheckProviderStatus returns the current status of the provider.
func (pm *ProviderMonitor) CheckProviderStatus() ProviderStatus {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.statusLocked()
}

func (pm *ProviderMonitor) statusLocked() ProviderStatus {
	now := pm.now()

	if pm.authFailureCount > 0 && now.Sub(pm.lastAuthFailure) < pm.authBlockDuration {
		return StatusBlocked
	}

	if pm.throttleCount > 0 && now.Sub(pm.lastThrottleTime) < pm.retryAfter {
		return StatusThrottled
	}

	if len(pm.recentLatencies) > 10 && pm.averageLatencyLocked() > pm.slowResponseThreshold {
		return StatusDegraded
	}

	return StatusHealthy
}

// GetRetryAfter returns remaining time before the service accepts calls again.
func (pm *ProviderMonitor) GetRetryAfter() time.Duration {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.retryAfterLocked()
}

func (pm *ProviderMonitor) retryAfterLocked() time.Duration {
	if pm.retryAfter > 0 {
		remaining := pm.retryAfter - pm.now().Sub(pm.lastThrottleTime)
		if remaining > 0 {
			return remaining
		}
	}
	return 0
}

// GetAverageLatency returns the average latency of recent requests.
func (pm *ProviderMonitor) GetAverageLatency() time.Duration {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.averageLatencyLocked()
}

func (pm *ProviderMonitor) averageLatencyLocked() time.Duration {
	if len(pm.recentLatencies) == 0 {
		return 0
	}

	var total time.Duration
	for _, lat := range pm.recentLatencies {
		total += lat
	}
	return total / time.Duration(len(pm.recentLatencies))
}

// GetRequestCount returns number of requests in the given duration.
func (pm *ProviderMonitor) GetRequestCount(duration time.Duration) int {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	cutoff := pm.now().Add(-duration)
	count := 0
	for _, t := range pm.requestTimestamps {
		if t.After(cutoff) {
			count++
		}
	}
	return count
}

// GetStats returns current monitoring statistics.
func (pm *ProviderMonitor) GetStats() MonitorStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	return MonitorStats{
		Status:            pm.statusLocked(),
		AverageLatency:    pm.averageLatencyLocked(),
		ThrottleCount:     pm.throttleCount,
		AuthFailureCount:  pm.authFailureCount,
		RequestsLast1Hour: len(pm.requestTimestamps),
		RetryAfter:        pm.retryAfterLocked(),
	}
}
