package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// DefaultDelay is the wait between attempts of the default strategy.
const DefaultDelay = time.Second

// Strategy returns the delay before the next attempt given the number of
// failed attempts so far (starting at 1). ok is false when no further attempt
// should be made.
type Strategy interface {
	NextDelay(attempt int) (delay time.Duration, ok bool)
}

// FixedDelay waits the same Delay before every retry.
type FixedDelay struct {
	Delay time.Duration

	// MaxAttempts caps the total number of calls, including the first one.
	// Zero means unlimited.
	MaxAttempts int
}

// DefaultStrategy returns a FixedDelay of DefaultDelay with no attempt cap.
func DefaultStrategy() Strategy {
	return FixedDelay{Delay: DefaultDelay}
}

func (f FixedDelay) NextDelay(attempt int) (time.Duration, bool) {
	if f.MaxAttempts > 0 && attempt >= f.MaxAttempts {
		return 0, false
	}
	return f.Delay, true
}

// ExponentialBackoff grows the delay geometrically with jitter. Zero-valued
// fields are replaced with the defaults documented on each field.
type ExponentialBackoff struct {
	// MaxRetries is the maximum number of retry attempts after the first failure.
	// A value of 3 means the provider is called at most 4 times.
	// Default: 3.
	MaxRetries int

	// InitialBackoff is the wait duration before the first retry attempt.
	// Default: 1s.
	InitialBackoff time.Duration

	// MaxBackoff caps the computed backoff.
	// Default: 30s.
	MaxBackoff time.Duration

	// BackoffFactor is the growth multiplier applied on successive retries
	// (backoff = min(InitialBackoff * BackoffFactor^n, MaxBackoff)).
	// Default: 2.0.
	BackoffFactor float64

	// JitterFraction adds random noise in [0, JitterFraction * backoff].
	// Default: 0.1.
	JitterFraction float64
}

func (e ExponentialBackoff) withDefaults() ExponentialBackoff {
	if e.MaxRetries == 0 {
		e.MaxRetries = 3
	}
	if e.InitialBackoff == 0 {
		e.InitialBackoff = time.Second
	}
	if e.MaxBackoff == 0 {
		e.MaxBackoff = 30 * time.Second
	}
	if e.BackoffFactor == 0 {
		e.BackoffFactor = 2.0
	}
	if e.JitterFraction == 0 {
		e.JitterFraction = 0.1
	}
	return e
}

func (e ExponentialBackoff) NextDelay(attempt int) (time.Duration, bool) {
	config := e.withDefaults()
	if attempt > config.MaxRetries {
		return 0, false
	}

	base := float64(config.InitialBackoff) * math.Pow(config.BackoffFactor, float64(attempt-1))
	if base > float64(config.MaxBackoff) {
		base = float64(config.MaxBackoff)
	}

	jitter := base * config.JitterFraction * rand.Float64() //nolint:gosec // non-cryptographic jitter is intentional
	return time.Duration(base + jitter), true
}
