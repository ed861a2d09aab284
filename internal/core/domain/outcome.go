package domain

import "time"

// Outcome is the result of one attempt: either a decoded result or a Failure.
type Outcome struct {
	Result     any
	Raw        []byte
	StatusCode int
	Elapsed    time.Duration
	Failure    *Failure
}

// Succeeded builds a success outcome.
func Succeeded(result any, elapsed time.Duration) Outcome {
	return Outcome{Result: result, Elapsed: nonNegative(elapsed)}
}

// Failed builds a failure outcome.
func Failed(f *Failure, elapsed time.Duration) Outcome {
	return Outcome{Failure: f, StatusCode: f.StatusCode, Elapsed: nonNegative(elapsed)}
}

// OK reports whether the outcome is a success.
func (o Outcome) OK() bool {
	return o.Failure == nil
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
