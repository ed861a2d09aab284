package budget

import (
	"errors"
	"sync"
	"time"
)

// ErrBudgetExceeded is returned when a call would push estimated spend over the daily limit.
var ErrBudgetExceeded = errors.New("daily budget exceeded")

// BudgetStatus is a point-in-time view of the daily budget.
type BudgetStatus struct {
	Limit           float64   `json:"limit"`
	Spent           float64   `json:"spent"`
	Remaining       float64   `json:"remaining"`
	Calls           int       `json:"calls"`
	UsagePercentage float64   `json:"usage_percentage"`
	NextResetAt     time.Time `json:"next_reset_at"`
	// SpendRatePerMin is the average spend per minute over the recent window.
	SpendRatePerMin float64 `json:"spend_rate_per_min"`
	// TimeToExhaustion is zero when the rate is zero or there is no limit.
	TimeToExhaustion time.Duration `json:"time_to_exhaustion"`
}

type charge struct {
	at   time.Time
	cost float64
}

// DailyBudget caps estimated spend per local calendar day.
// A limit of zero or less disables the cap.
type DailyBudget struct {
	mu sync.Mutex

	limit   float64
	spent   float64
	calls   int
	resetAt time.Time

	recent []charge
	window time.Duration

	now func() time.Time
}

// NewDailyBudget creates a budget with the given limit in currency units.
func NewDailyBudget(limit float64) *DailyBudget {
	return newDailyBudget(limit, time.Now)
}

func newDailyBudget(limit float64, now func() time.Time) *DailyBudget {
	b := &DailyBudget{
		limit:  limit,
		window: 5 * time.Minute,
		now:    now,
	}
	b.resetAt = nextMidnight(now())
	return b
}

// Allow reports whether a call of the given estimated cost fits in today's budget.
func (b *DailyBudget) Allow(cost float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollLocked()
	if b.limit <= 0 {
		return true
	}
	return b.spent+cost <= b.limit
}

// Charge adds spend for a completed call.
func (b *DailyBudget) Charge(cost float64) {
	if cost < 0 {
		cost = 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollLocked()
	now := b.now()
	b.spent += cost
	b.calls++
	b.recent = append(b.recent, charge{at: now, cost: cost})
	b.pruneLocked(now)
}

// Status returns current usage.
func (b *DailyBudget) Status() BudgetStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollLocked()
	now := b.now()
	b.pruneLocked(now)

	st := BudgetStatus{
		Limit:       b.limit,
		Spent:       b.spent,
		Calls:       b.calls,
		NextResetAt: b.resetAt,
	}

	var windowSpend float64
	for _, c := range b.recent {
		windowSpend += c.cost
	}
	st.SpendRatePerMin = windowSpend / b.window.Minutes()

	if b.limit > 0 {
		st.Remaining = b.limit - b.spent
		if st.Remaining < 0 {
			st.Remaining = 0
		}
		st.UsagePercentage = b.spent / b.limit * 100
		if st.SpendRatePerMin > 0 {
			minutes := st.Remaining / st.SpendRatePerMin
			st.TimeToExhaustion = time.Duration(minutes * float64(time.Minute))
		}
	}
	return st
}

// Reset clears today's spend.
func (b *DailyBudget) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked()
}

func (b *DailyBudget) rollLocked() {
	if !b.now().Before(b.resetAt) {
		b.resetLocked()
	}
}

func (b *DailyBudget) resetLocked() {
	b.spent = 0
	b.calls = 0
	b.recent = b.recent[:0]
	b.resetAt = nextMidnight(b.now())
}

func (b *DailyBudget) pruneLocked(now time.Time) {
	cutoff := now.Add(-b.window)
	i := 0
	for i < len(b.recent) && !b.recent[i].at.After(cutoff) {
		i++
	}
	b.recent = b.recent[i:]
}

func nextMidnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
}
