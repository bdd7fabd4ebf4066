// Package middleware provides optional middlewares for the request executor.
// Each constructor returns a [client.MiddlewareConfig] ready for
// [client.WithMiddleware].
//
// # Available Middleware
//
//   - [NewLoggingMiddleware]: structured slog entries around every provider
//     attempt, with three verbosity levels. A 503 is logged at Warn because
//     the executor retries it.
//
//   - [NewTimeoutMiddleware]: a deadline per attempt. Expiry is reported as
//     [ErrAttemptTimeout].
//
//   - [NewRateLimitMiddleware]: client-side pacing with a token bucket from
//     golang.org/x/time/rate, so bursts of requests stay under the provider
//     quota instead of collecting 429 answers.
//
// # Usage
//
//	c, err := client.New(factory, apiKey,
//	    client.WithMiddleware(
//	        middleware.NewRateLimitMiddleware(middleware.PerMinute(60)),
//	        middleware.NewTimeoutMiddleware(2*time.Minute),
//	        middleware.NewLoggingMiddleware(slog.Default(), middleware.LogLevelStandard),
//	    ),
//	)
//
// The executor runs the chain once per attempt, outermost first. A request
// retried after a 503 waits for the rate limiter again and gets a fresh
// deadline.
package middleware
