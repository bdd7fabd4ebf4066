package retry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/leofalp/tokenmeter/providers/ai"
)

// TransientStatus is the HTTP status treated as a temporary overload.
const TransientStatus = 503

// ErrExhausted is returned when a bounded strategy runs out of attempts. It is
// wrapped together with the last provider error.
var ErrExhausted = errors.New("tokenmeter: retry attempts exhausted")

// IsTransient reports whether err is a temporary provider overload: either an
// error carrying HTTP status 503 or one whose message mentions 503.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if ai.HTTPStatus(err) == TransientStatus {
		return true
	}
	return strings.Contains(err.Error(), strconv.Itoa(TransientStatus))
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retrier applies a Strategy to errors accepted by its classifier.
type Retrier struct {
	strategy Strategy
	classify func(error) bool
	sleep    SleepFunc
	onRetry  func(attempt int, delay time.Duration, err error)
}

// Option configures a Retrier.
type Option func(*Retrier)

// WithStrategy replaces the default unbounded fixed delay.
func WithStrategy(strategy Strategy) Option {
	return func(r *Retrier) {
		if strategy != nil {
			r.strategy = strategy
		}
	}
}

// WithClassifier replaces IsTransient.
func WithClassifier(classify func(error) bool) Option {
	return func(r *Retrier) {
		if classify != nil {
			r.classify = classify
		}
	}
}

// WithSleep replaces the timer-based wait, mainly for tests.
func WithSleep(sleep SleepFunc) Option {
	return func(r *Retrier) {
		if sleep != nil {
			r.sleep = sleep
		}
	}
}

// WithOnRetry registers a callback invoked before each wait.
func WithOnRetry(onRetry func(attempt int, delay time.Duration, err error)) Option {
	return func(r *Retrier) {
		r.onRetry = onRetry
	}
}

// New returns a Retrier; without options it retries transient errors forever
// with a one-second pause.
func New(opts ...Option) *Retrier {
	r := &Retrier{
		strategy: DefaultStrategy(),
		classify: IsTransient,
		sleep:    Sleep,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Wait decides what happens after the attempt-th failure (1-based). It returns
// nil after sleeping when the call should be repeated, and otherwise the error
// to surface: err itself when it is not retryable, ErrExhausted wrapping err
// when the strategy gives up, or the context error when ctx ends first.
func (r *Retrier) Wait(ctx context.Context, attempt int, err error) error {
	if !r.classify(err) {
		return err
	}

	delay, ok := r.strategy.NextDelay(attempt)
	if !ok {
		return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt, err)
	}

	if r.onRetry != nil {
		r.onRetry(attempt, delay, err)
	}

	if sleepErr := r.sleep(ctx, delay); sleepErr != nil {
		return sleepErr
	}
	return nil
}

// Do calls fn until it succeeds or Wait returns an error.
func Do[T any](ctx context.Context, r *Retrier, fn func(context.Context) (T, error)) (T, error) {
	for attempt := 1; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if waitErr := r.Wait(ctx, attempt, err); waitErr != nil {
			var zero T
			return zero, waitErr
		}
	}
}
