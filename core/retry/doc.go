// Package retry decides whether and when a failed provider call is repeated.
//
// A [Strategy] maps the number of failures so far to the next delay. The
// default, [FixedDelay] with no attempt cap, waits one second between tries
// and retries transient failures indefinitely; [ExponentialBackoff] is the
// bounded alternative. A [Retrier] combines a strategy with a classifier
// ([IsTransient] by default) and a cancellable sleep.
//
//	r := retry.New(retry.WithStrategy(retry.FixedDelay{Delay: time.Second, MaxAttempts: 5}))
//	text, err := retry.Do(ctx, r, func(ctx context.Context) (string, error) {
//	    return call(ctx)
//	})
package retry
