package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leofalp/tokenmeter/core/client"
	"github.com/leofalp/tokenmeter/providers/ai"
)

// ErrAttemptTimeout is returned when a single provider attempt outlives the
// timeout middleware's deadline. It wraps context.DeadlineExceeded, and it is
// not retried: a caller that wants slow attempts retried should use a bounded
// retry strategy with a classifier that accepts it.
var ErrAttemptTimeout = errors.New("tokenmeter: provider attempt timed out")

// NewTimeoutMiddleware creates a MiddlewareConfig that bounds every provider
// attempt by timeout. The executor runs the chain once per attempt, so the
// deadline restarts after each 503 retry and never covers the retry waits.
//
// For Generate the context is cancelled as soon as the provider returns. For
// GenerateStream the deadline covers the whole stream: cancel runs once the
// stream ends, fails, or is abandoned by the consumer.
//
// A shorter deadline already present on the caller's context still wins, and
// its expiry is reported unchanged rather than as ErrAttemptTimeout.
func NewTimeoutMiddleware(timeout time.Duration) client.MiddlewareConfig {
	return client.MiddlewareConfig{
		Send:   buildSendTimeout(timeout),
		Stream: buildStreamTimeout(timeout),
	}
}

func buildSendTimeout(timeout time.Duration) client.Middleware {
	return func(next client.SendFunc) client.SendFunc {
		return func(parent context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
			ctx, cancel := context.WithTimeout(parent, timeout)
			defer cancel()

			response, err := next(ctx, request)
			if err != nil {
				return nil, attemptError(parent, ctx, timeout, err)
			}
			return response, nil
		}
	}
}

func buildStreamTimeout(timeout time.Duration) client.StreamMiddleware {
	return func(next client.StreamFunc) client.StreamFunc {
		return func(parent context.Context, request ai.ChatRequest) (*ai.ChatStream, error) {
			ctx, cancel := context.WithTimeout(parent, timeout)

			stream, err := next(ctx, request)
			if err != nil {
				cancel()
				return nil, attemptError(parent, ctx, timeout, err)
			}

			return wrapStreamWithCancel(stream, cancel, func(err error) error {
				return attemptError(parent, ctx, timeout, err)
			}), nil
		}
	}
}

// attemptError marks err as ErrAttemptTimeout when this middleware's deadline,
// and not the caller's, ended the attempt.
func attemptError(parent, ctx context.Context, timeout time.Duration, err error) error {
	if parent.Err() != nil || !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w after %s: %w", ErrAttemptTimeout, timeout, err)
}

// wrapStreamWithCancel returns a ChatStream that calls cancel once the stream
// finishes, errors, or the consumer stops. Errors pass through classify.
func wrapStreamWithCancel(stream *ai.ChatStream, cancel context.CancelFunc, classify func(error) error) *ai.ChatStream {
	iteratorFunc := func(yield func(ai.StreamEvent, error) bool) {
		defer cancel()

		for event, err := range stream.Iter() {
			if err != nil {
				yield(event, classify(err))
				return
			}

			if !yield(event, nil) {
				return
			}

			if event.Type == ai.StreamEventDone {
				return
			}
		}
	}

	return ai.NewChatStream(iteratorFunc)
}
