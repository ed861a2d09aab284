package budget

import (
	"math"
	"reflect"
	"sync"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/vietddude/cogcall/internal/core/domain"
)

func success(elapsed time.Duration) domain.Outcome {
	return domain.Succeeded("ok", elapsed)
}

func fail(kind domain.FailureKind) domain.Outcome {
	return domain.Failed(domain.NewFailure(kind, "test"), 10*time.Millisecond)
}

func TestUsageAccountant_Record(t *testing.T) {
	a := NewUsageAccountant()

	a.Record(domain.KindSentiment, success(100*time.Millisecond), 50)
	a.Record(domain.KindSentiment, fail(domain.FailureUnauthorized), 20)
	a.Record(domain.KindTranslate, success(300*time.Millisecond), 30)

	s := a.Snapshot()
	if s.TotalRequests != 3 || s.SuccessfulRequests != 2 || s.FailedRequests != 1 {
		t.Fatalf("unexpected counters: %+v", s)
	}
	if s.TotalVolume != 100 {
		t.Errorf("TotalVolume = %d, want 100", s.TotalVolume)
	}
	if s.TotalElapsed != 410*time.Millisecond {
		t.Errorf("TotalElapsed = %v", s.TotalElapsed)
	}
	if s.Failures[domain.FailureUnauthorized] != 1 {
		t.Errorf("expected one unauthorized failure, got %v", s.Failures)
	}
	if k := s.ByKind[domain.KindSentiment]; k.TotalRequests != 2 || k.FailedRequests != 1 || k.TotalVolume != 70 {
		t.Errorf("unexpected sentiment usage: %+v", k)
	}
	if got := s.SuccessRate(); math.Abs(got-2.0/3.0) > 1e-9 {
		t.Errorf("SuccessRate = %v", got)
	}
}

func TestUsageAccountant_NegativeInputs(t *testing.T) {
	a := NewUsageAccountant()
	out := success(0)
	out.Elapsed = -time.Second

	a.Record(domain.KindPing, out, -5)

	s := a.Snapshot()
	if s.TotalVolume != 0 || s.TotalElapsed != 0 {
		t.Errorf("negative inputs must be clamped: %+v", s)
	}
	if s.TotalRequests != 1 {
		t.Errorf("TotalRequests = %d, want 1", s.TotalRequests)
	}
}

func TestUsageAccountant_SnapshotIsCopy(t *testing.T) {
	a := NewUsageAccountant()
	a.Record(domain.KindSentiment, success(time.Millisecond), 1)

	first := a.Snapshot()
	second := a.Snapshot()
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("snapshots differ without a Record: %+v vs %+v", first, second)
	}

	first.ByKind[domain.KindSentiment] = domain.KindUsage{TotalRequests: 99}
	first.Failures[domain.FailureNetwork] = 7

	again := a.Snapshot()
	if again.ByKind[domain.KindSentiment].TotalRequests != 1 || again.Failures[domain.FailureNetwork] != 0 {
		t.Error("mutating a snapshot leaked into the accountant")
	}
}

func TestUsageAccountant_Concurrency(t *testing.T) {
	a := NewUsageAccountant()

	const n = 200
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%4 == 0 {
				a.Record(domain.KindEntities, fail(domain.FailureNetwork), 1)
			} else {
				a.Record(domain.KindEntities, success(time.Millisecond), 1)
			}
			a.Snapshot()
		}()
	}
	wg.Wait()

	s := a.Snapshot()
	if s.TotalRequests != n {
		t.Errorf("TotalRequests = %d, want %d", s.TotalRequests, n)
	}
	if s.SuccessfulRequests+s.FailedRequests != s.TotalRequests {
		t.Errorf("counters out of balance: %+v", s)
	}
	if s.FailedRequests != n/4 {
		t.Errorf("FailedRequests = %d, want %d", s.FailedRequests, n/4)
	}
}

func TestUsageAccountant_EstimatedCost(t *testing.T) {
	a := NewUsageAccountant()
	a.Record(domain.KindSentiment, success(0), 1000)
	a.Record(domain.KindTranslate, success(0), 1000)
	a.Record(domain.KindPing, success(0), 0)

	if got := a.EstimatedCost(0.001); math.Abs(got-2.0) > 1e-9 {
		t.Errorf("EstimatedCost = %v, want 2", got)
	}

	prices := DefaultPriceTable()
	want := 1000*DefaultRatePerUnit + 1000*prices.Rate(domain.KindTranslate)
	if got := a.EstimatedCostFor(prices); math.Abs(got-want) > 1e-12 {
		t.Errorf("EstimatedCostFor = %v, want %v", got, want)
	}

	before := a.Snapshot()
	a.EstimatedCost(1)
	if !reflect.DeepEqual(before, a.Snapshot()) {
		t.Error("EstimatedCost mutated state")
	}
}

func TestUsageAccountant_Reset(t *testing.T) {
	a := NewUsageAccountant()
	a.Record(domain.KindSentiment, success(time.Millisecond), 10)
	a.Reset()

	s := a.Snapshot()
	if s.TotalRequests != 0 || s.TotalVolume != 0 || len(s.ByKind) != 0 {
		t.Errorf("Reset left data behind: %+v", s)
	}
}

func TestUsageAccountant_Invariant(t *testing.T) {
	kinds := []domain.OperationKind{domain.KindSentiment, domain.KindTranslate, domain.KindChatCompletion}

	rapid.Check(t, func(t *rapid.T) {
		a := NewUsageAccountant()
		n := rapid.IntRange(0, 50).Draw(t, "n")

		var wantVolume int64
		for i := range n {
			kind := rapid.SampledFrom(kinds).Draw(t, "kind")
			ok := rapid.Bool().Draw(t, "ok")
			volume := rapid.Int64Range(-10, 10000).Draw(t, "volume")
			elapsed := time.Duration(rapid.Int64Range(-1000, 1_000_000).Draw(t, "elapsed"))

			var out domain.Outcome
			if ok {
				out = domain.Succeeded(i, elapsed)
			} else {
				fk := rapid.SampledFrom(domain.AllFailureKinds).Draw(t, "failure")
				out = domain.Failed(domain.NewFailure(fk, ""), elapsed)
			}
			a.Record(kind, out, volume)
			if volume > 0 {
				wantVolume += volume
			}

			s := a.Snapshot()
			if s.SuccessfulRequests+s.FailedRequests != s.TotalRequests {
				t.Fatalf("counters out of balance: %+v", s)
			}
			if s.TotalElapsed < 0 {
				t.Fatalf("negative elapsed: %v", s.TotalElapsed)
			}
		}

		s := a.Snapshot()
		if s.TotalRequests != int64(n) {
			t.Fatalf("TotalRequests = %d, want %d", s.TotalRequests, n)
		}
		if s.TotalVolume != wantVolume {
			t.Fatalf("TotalVolume = %d, want %d", s.TotalVolume, wantVolume)
		}

		var byKind int64
		for _, k := range s.ByKind {
			byKind += k.TotalRequests
		}
		if byKind != s.TotalRequests {
			t.Fatalf("per-kind total %d != %d", byKind, s.TotalRequests)
		}
	})
}

func TestUsageAccountant_PerCallPricing(t *testing.T) {
	a := NewUsageAccountant()
	a.Record(domain.KindImageAnalysis, success(0), 4096)
	a.Record(domain.KindImageAnalysis, success(0), 2048)
	a.Record(domain.KindImageAnalysis, domain.Failed(domain.NewFailure(domain.FailureNetwork, "reset"), 0), 1024)

	prices := DefaultPriceTable()
	if got := a.EstimatedCostFor(prices); math.Abs(got-0.002) > 1e-12 {
		t.Errorf("EstimatedCostFor = %v, want 0.002 (two successful transactions)", got)
	}
	if got := prices.CallCost(domain.KindImageAnalysis, false, 1024); got != 0 {
		t.Errorf("failed image call cost = %v, want 0", got)
	}
}
