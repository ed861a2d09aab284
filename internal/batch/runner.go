// Package batch fans many inputs over a bounded set of workers.
package batch

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/vietddude/cogcall/internal/core/domain"
)

// Config bounds a Runner.
type Config struct {
	// Concurrency is the number of items in flight (default 4).
	Concurrency int `yaml:"concurrency"`
	// RatePerSecond paces item starts; zero disables pacing.
	RatePerSecond float64 `yaml:"rate_per_second"`
	// Burst is the token bucket size (default 1).
	Burst int `yaml:"burst"`
}

// Result is the outcome of one input.
type Result[O any] struct {
	Index   int
	Value   O
	Err     error
	Elapsed time.Duration
}

// Runner executes a function over inputs. Item failures never cancel
// other items; cancelling ctx stops scheduling new ones.
type Runner struct {
	concurrency int
	limiter     *rate.Limiter
}

func NewRunner(cfg Config) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	r := &Runner{concurrency: cfg.Concurrency}
	if cfg.RatePerSecond > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst)
	}
	return r
}

// Run applies fn to every input and returns one result per input in input
// order. Items never started because ctx ended carry a canceled failure.
func Run[I, O any](ctx context.Context, r *Runner, inputs []I, fn func(context.Context, I) (O, error)) []Result[O] {
	results := make([]Result[O], len(inputs))
	for i := range results {
		results[i].Index = i
	}

	var g errgroup.Group
	g.SetLimit(r.concurrency)

	for i, in := range inputs {
		if err := r.wait(ctx); err != nil {
			for j := i; j < len(inputs); j++ {
				results[j].Err = domain.CanceledFailure(err)
			}
			break
		}

		g.Go(func() error {
			start := time.Now()
			v, err := fn(ctx, in)
			results[i] = Result[O]{Index: i, Value: v, Err: err, Elapsed: time.Since(start)}
			return nil
		})
	}

	_ = g.Wait()
	return results
}

func (r *Runner) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.limiter == nil {
		return nil
	}
	return r.limiter.Wait(ctx)
}

// Summary counts successes and failures by kind.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	ByFailure map[domain.FailureKind]int
}

// Summarize tallies results.
func Summarize[O any](results []Result[O]) Summary {
	s := Summary{Total: len(results), ByFailure: make(map[domain.FailureKind]int)}
	for _, res := range results {
		if res.Err == nil {
			s.Succeeded++
			continue
		}
		s.Failed++
		s.ByFailure[domain.KindOf(res.Err)]++
	}
	return s
}
