package budget

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestDailyBudget_Limits(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	b := newDailyBudget(1.0, clock.Now)

	for i := range 10 {
		if !b.Allow(0.1) {
			t.Fatalf("call %d should fit", i)
		}
		b.Charge(0.1)
	}

	if b.Allow(0.1) {
		t.Error("call over the limit should be refused")
	}
	if !b.Allow(0) {
		t.Error("free calls always fit while spend equals the limit")
	}

	st := b.Status()
	if st.Calls != 10 || st.Remaining > 1e-9 {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestDailyBudget_ResetsAtMidnight(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 23, 59, 0, 0, time.UTC)}
	b := newDailyBudget(1.0, clock.Now)

	b.Charge(1.0)
	if b.Allow(0.5) {
		t.Fatal("budget should be exhausted")
	}

	clock.Advance(2 * time.Minute)

	if !b.Allow(0.5) {
		t.Error("budget should reset after midnight")
	}
	st := b.Status()
	if st.Spent != 0 {
		t.Errorf("Spent = %v, want 0", st.Spent)
	}
	want := time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC)
	if !st.NextResetAt.Equal(want) {
		t.Errorf("NextResetAt = %v, want %v", st.NextResetAt, want)
	}
}

func TestDailyBudget_Unlimited(t *testing.T) {
	b := NewDailyBudget(0)
	b.Charge(1e9)
	if !b.Allow(1e9) {
		t.Error("zero limit disables the cap")
	}
	if st := b.Status(); st.TimeToExhaustion != 0 {
		t.Errorf("no exhaustion without a limit, got %v", st.TimeToExhaustion)
	}
}

func TestDailyBudget_Projection(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	b := newDailyBudget(10.0, clock.Now)

	for range 5 {
		b.Charge(0.2)
		clock.Advance(time.Minute)
	}

	st := b.Status()
	if st.SpendRatePerMin <= 0 {
		t.Fatalf("expected positive spend rate, got %v", st.SpendRatePerMin)
	}
	if st.TimeToExhaustion <= 0 {
		t.Errorf("expected a projected exhaustion, got %v", st.TimeToExhaustion)
	}

	clock.Advance(time.Hour)
	if st := b.Status(); st.SpendRatePerMin != 0 {
		t.Errorf("old charges should leave the window, rate = %v", st.SpendRatePerMin)
	}
}

func TestDailyBudget_Concurrency(t *testing.T) {
	b := NewDailyBudget(1000)

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.Allow(1) {
				b.Charge(1)
			}
			b.Status()
		}()
	}
	wg.Wait()

	if st := b.Status(); st.Calls != 100 {
		t.Errorf("Calls = %d, want 100", st.Calls)
	}
}
