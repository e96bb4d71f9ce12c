// Package resilience provides the bounded retry combinator applied to every transform call.
package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lenardflx/ai-data-migration/pkg/errors"
)

// Outcome classifies the result of one attempt or of a whole retry sequence.
type Outcome int

const (
	Success   Outcome = iota // The attempt succeeded
	Transient                // Another attempt may succeed
	Fatal                    // No attempt can succeed
	Stopped                  // A stop was requested before the attempt started
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Transient:
		return "transient"
	case Fatal:
		return "fatal"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Classify maps an attempt error to an outcome.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return Success
	case errors.IsCode(err, errors.CodeStopped):
		return Stopped
	case errors.IsFatal(err):
		return Fatal
	default:
		return Transient
	}
}

// StopChecker reports whether a cooperative stop has been requested.
type StopChecker interface {
	Requested() bool
}

// Policy bounds a retry sequence.
type Policy struct {
	// MaxAttempts is the total number of attempts, first one included. Values below 1 mean 1.
	MaxAttempts int

	// Backoff yields the delay before each retry. Nil means no delay.
	Backoff backoff.BackOff

	// OnRetry is called after a transient failure that will be retried.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Result is the outcome of a retry sequence.
type Result struct {
	Outcome  Outcome
	Attempts int

	// Err is the error of the last attempt, nil on success.
	Err error
}

// Retry calls fn until it succeeds, fails fatally, or the attempt budget is spent.
// The stop checker is consulted before every attempt, the first one included; a stop never
// interrupts an attempt already running. A panic inside fn counts as a transient failure.
func Retry(ctx context.Context, p Policy, stop StopChecker, fn func(ctx context.Context, attempt int) error) Result {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	b := p.Backoff
	if b == nil {
		b = &backoff.ZeroBackOff{}
	}
	b.Reset()

	var res Result
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if stop != nil && stop.Requested() {
			res.Outcome = Stopped
			return res
		}
		if err := ctx.Err(); err != nil {
			res.Outcome = Fatal
			res.Err = errors.Wrap(err, errors.CodeContextCanceled, "retry canceled")
			return res
		}

		res.Attempts = attempt
		res.Err = safeCall(ctx, fn, attempt)
		res.Outcome = Classify(res.Err)
		if res.Outcome != Transient || attempt == maxAttempts {
			return res
		}

		delay := b.NextBackOff()
		if delay == backoff.Stop {
			return res
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, res.Err, delay)
		}
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				res.Outcome = Fatal
				res.Err = errors.Wrap(ctx.Err(), errors.CodeContextCanceled, "retry canceled")
				return res
			case <-timer.C:
			}
		}
	}
	return res
}

func safeCall(ctx context.Context, fn func(ctx context.Context, attempt int) error, attempt int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf(errors.CodeTransformFailed, "panic recovered: %v", r)
		}
	}()
	return fn(ctx, attempt)
}

// ExponentialBackoff returns an exponential backoff starting at initial and capped at max.
// A zero initial delay yields no delay at all.
func ExponentialBackoff(initial, max time.Duration) backoff.BackOff {
	if initial <= 0 {
		return &backoff.ZeroBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	if max > 0 {
		b.MaxInterval = max
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
