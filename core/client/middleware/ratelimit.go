package middleware

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/leofalp/tokenmeter/core/client"
	"github.com/leofalp/tokenmeter/providers/ai"
)

// PerMinute returns a token-bucket limiter allowing requests per minute with
// a burst of one. It returns nil for requests <= 0.
func PerMinute(requests int) *rate.Limiter {
	if requests <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(requests)), 1)
}

// NewRateLimitMiddleware creates a MiddlewareConfig that paces provider
// attempts through limiter, keeping the client under the provider's request
// quota before the provider answers with 429. Every attempt takes a token,
// retries included. Waiting honours the context; a nil limiter disables the
// middleware.
func NewRateLimitMiddleware(limiter *rate.Limiter) client.MiddlewareConfig {
	return client.MiddlewareConfig{
		Send: func(next client.SendFunc) client.SendFunc {
			return func(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
				if err := wait(ctx, limiter); err != nil {
					return nil, err
				}
				return next(ctx, request)
			}
		},
		Stream: func(next client.StreamFunc) client.StreamFunc {
			return func(ctx context.Context, request ai.ChatRequest) (*ai.ChatStream, error) {
				if err := wait(ctx, limiter); err != nil {
					return nil, err
				}
				return next(ctx, request)
			}
		},
	}
}

func wait(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}
