package client

import (
	"context"
	"log/slog"

	"github.com/leofalp/tokenmeter/core/cost"
	"github.com/leofalp/tokenmeter/internal/utils"
	"github.com/leofalp/tokenmeter/providers/ai"
)

// NewAccountingMiddleware creates a MiddlewareConfig that forwards the usage
// reported by each successful call to accountant.
//
// Send calls are recorded as soon as the response arrives. Streams are
// recorded from the last usage event once the iterator is drained; a stream
// abandoned by the caller is still recorded when usage was already seen. A
// call that reports no usage at all is logged at Warn and otherwise ignored:
// missing metadata never fails a request.
//
// [New] prepends this middleware automatically when [WithAccountant] is set,
// so it observes the outcome of every other middleware for one attempt.
func NewAccountingMiddleware(accountant *cost.Accountant, logger *slog.Logger) MiddlewareConfig {
	if logger == nil {
		logger = slog.Default()
	}
	return MiddlewareConfig{
		Send:   buildAccountingSend(accountant, logger),
		Stream: buildAccountingStream(accountant, logger),
	}
}

func buildAccountingSend(accountant *cost.Accountant, logger *slog.Logger) Middleware {
	return func(next SendFunc) SendFunc {
		return func(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
			timer := utils.NewTimer()
			response, err := next(ctx, request)
			timer.Stop()
			if err != nil {
				return nil, err
			}

			recordUsage(ctx, accountant, logger, response.Usage, timer)
			return response, nil
		}
	}
}

func buildAccountingStream(accountant *cost.Accountant, logger *slog.Logger) StreamMiddleware {
	return func(next StreamFunc) StreamFunc {
		return func(ctx context.Context, request ai.ChatRequest) (*ai.ChatStream, error) {
			timer := utils.NewTimer()
			stream, err := next(ctx, request)
			if err != nil {
				return nil, err
			}

			return wrapStreamWithAccounting(ctx, stream, accountant, logger, timer), nil
		}
	}
}

// wrapStreamWithAccounting passes every event through and records the last
// usage event when the stream ends without error.
func wrapStreamWithAccounting(
	ctx context.Context,
	stream *ai.ChatStream,
	accountant *cost.Accountant,
	logger *slog.Logger,
	timer *utils.Timer,
) *ai.ChatStream {
	iteratorFunc := func(yield func(ai.StreamEvent, error) bool) {
		var usage *ai.Usage

		for event, err := range stream.Iter() {
			if err != nil {
				// The attempt failed; whatever it billed is unknown.
				yield(event, err)
				return
			}

			if event.Type == ai.StreamEventUsage && event.Usage != nil {
				usage = event.Usage
			}

			if !yield(event, nil) {
				if usage != nil {
					timer.Stop()
					recordUsage(ctx, accountant, logger, usage, timer)
				}
				return
			}
		}

		timer.Stop()
		recordUsage(ctx, accountant, logger, usage, timer)
	}

	return ai.NewChatStream(iteratorFunc)
}

func recordUsage(ctx context.Context, accountant *cost.Accountant, logger *slog.Logger, usage *ai.Usage, timer *utils.Timer) {
	record, ok := cost.FromUsage(usage)
	if !ok {
		logger.WarnContext(ctx, "usage metadata unavailable",
			slog.String("kind", string(cost.LabelsFromContext(ctx).Kind)),
			slog.Duration("duration", timer.Elapsed()),
		)
		return
	}

	accountant.RecordUsage(ctx, record)
}
