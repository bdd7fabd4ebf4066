package middleware

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/leofalp/tokenmeter/core/client"
	"github.com/leofalp/tokenmeter/core/cost"
	"github.com/leofalp/tokenmeter/core/retry"
	"github.com/leofalp/tokenmeter/internal/utils"
	"github.com/leofalp/tokenmeter/providers/ai"
)

// LogLevel controls how much detail the logging middleware emits per attempt.
type LogLevel int

const (
	// LogLevelMinimal logs the model, request labels, duration and token counts.
	LogLevelMinimal LogLevel = iota

	// LogLevelStandard adds the message count and finish reason.
	LogLevelStandard

	// LogLevelVerbose adds the generation config, the last user message and the
	// response text, each truncated to 500 characters.
	//
	// WARNING: prompts and answers end up in the log. Use it for local
	// debugging only.
	LogLevelVerbose
)

// truncateLen is the maximum content length included in verbose log output.
const truncateLen = 500

// NewLoggingMiddleware creates a MiddlewareConfig that logs every attempt with
// slog. Failures carry the HTTP status and whether the executor will retry
// them; a 503 is logged at Warn, anything else at Error. Streams are logged
// once the iterator finishes.
//
// logger must not be nil; pass slog.Default() when no custom logger exists.
func NewLoggingMiddleware(logger *slog.Logger, level LogLevel) client.MiddlewareConfig {
	return client.MiddlewareConfig{
		Send:   buildSendLogging(logger, level),
		Stream: buildStreamLogging(logger, level),
	}
}

func buildSendLogging(logger *slog.Logger, level LogLevel) client.Middleware {
	return func(next client.SendFunc) client.SendFunc {
		return func(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
			logger.InfoContext(ctx, "llm send", buildRequestAttrs(ctx, request, level)...)

			start := time.Now()
			response, err := next(ctx, request)
			elapsed := time.Since(start)

			if err != nil {
				logFailure(ctx, logger, "llm send failed", request.Model, elapsed, err)
				return nil, err
			}

			logger.InfoContext(ctx, "llm send completed",
				buildResponseAttrs(ctx, response, elapsed, level)...,
			)

			return response, nil
		}
	}
}

func buildStreamLogging(logger *slog.Logger, level LogLevel) client.StreamMiddleware {
	return func(next client.StreamFunc) client.StreamFunc {
		return func(ctx context.Context, request ai.ChatRequest) (*ai.ChatStream, error) {
			logger.InfoContext(ctx, "llm stream", buildRequestAttrs(ctx, request, level)...)

			start := time.Now()
			stream, err := next(ctx, request)
			if err != nil {
				logFailure(ctx, logger, "llm stream failed", request.Model, time.Since(start), err)
				return nil, err
			}

			return wrapStreamWithLogging(ctx, stream, logger, request.Model, level, start), nil
		}
	}
}

// wrapStreamWithLogging returns a ChatStream that logs a completion entry when
// the stream ends normally, or an error entry on failure.
func wrapStreamWithLogging(
	ctx context.Context,
	stream *ai.ChatStream,
	logger *slog.Logger,
	model string,
	level LogLevel,
	start time.Time,
) *ai.ChatStream {
	iteratorFunc := func(yield func(ai.StreamEvent, error) bool) {
		response := &ai.ChatResponse{Model: model}
		var content strings.Builder
		var chunks int

		for event, err := range stream.Iter() {
			if err != nil {
				logFailure(ctx, logger, "llm stream failed", model, time.Since(start), err)
				yield(event, err)
				return
			}

			switch event.Type {
			case ai.StreamEventContent:
				chunks++
				if level >= LogLevelVerbose {
					content.WriteString(event.Content)
				}
			case ai.StreamEventUsage:
				if event.Usage != nil {
					response.Usage = event.Usage
				}
			case ai.StreamEventDone:
				response.FinishReason = event.FinishReason
			}

			if !yield(event, nil) {
				logger.InfoContext(ctx, "llm stream abandoned",
					slog.String("model", model),
					slog.Int("chunks", chunks),
					slog.Duration("duration", time.Since(start)),
				)
				return
			}
		}

		response.Content = content.String()
		attrs := buildResponseAttrs(ctx, response, time.Since(start), level)
		attrs = append(attrs, slog.Int("chunks", chunks))
		logger.InfoContext(ctx, "llm stream completed", attrs...)
	}

	return ai.NewChatStream(iteratorFunc)
}

// logFailure logs err with its HTTP status. Transient failures are logged at
// Warn because the executor retries them.
func logFailure(ctx context.Context, logger *slog.Logger, msg, model string, elapsed time.Duration, err error) {
	attrs := append(labelAttrs(ctx),
		slog.String("model", model),
		slog.Duration("duration", elapsed),
		slog.Int("status", ai.HTTPStatus(err)),
		slog.Bool("transient", retry.IsTransient(err)),
		slog.String("error", err.Error()),
	)

	level := slog.LevelError
	if retry.IsTransient(err) {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, msg, attrs...)
}

// labelAttrs returns the request labels attached by the executor, if any.
func labelAttrs(ctx context.Context) []any {
	labels := cost.LabelsFromContext(ctx)
	var attrs []any
	if labels.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", labels.RequestID))
	}
	if labels.Kind != "" {
		attrs = append(attrs, slog.String("kind", string(labels.Kind)))
	}
	return attrs
}

func buildRequestAttrs(ctx context.Context, request ai.ChatRequest, level LogLevel) []any {
	attrs := append(labelAttrs(ctx), slog.String("model", request.Model))

	if level >= LogLevelStandard {
		attrs = append(attrs, slog.Int("message_count", len(request.Messages)))
	}

	if level >= LogLevelVerbose {
		if request.GenerationConfig != nil {
			attrs = append(attrs, slog.String("generation_config", utils.JSONToString(request.GenerationConfig)))
		}
		if len(request.Messages) > 0 {
			last := request.Messages[len(request.Messages)-1]
			attrs = append(attrs,
				slog.String("last_message_role", string(last.Role)),
				slog.String("last_message_content", utils.TruncateString(last.Content, truncateLen)),
			)
		}
	}

	return attrs
}

func buildResponseAttrs(ctx context.Context, response *ai.ChatResponse, elapsed time.Duration, level LogLevel) []any {
	attrs := append(labelAttrs(ctx),
		slog.String("model", response.Model),
		slog.Duration("duration", elapsed),
	)

	if response.Usage != nil {
		attrs = append(attrs,
			slog.Int("prompt_tokens", response.Usage.PromptTokens),
			slog.Int("cached_tokens", response.Usage.CachedTokens),
			slog.Int("completion_tokens", response.Usage.CompletionTokens),
			slog.Int("reasoning_tokens", response.Usage.ReasoningTokens),
			slog.Int("total_tokens", response.Usage.TotalTokens),
		)
	}

	if level >= LogLevelStandard && response.FinishReason != "" {
		attrs = append(attrs, slog.String("finish_reason", response.FinishReason))
	}

	if level >= LogLevelVerbose && response.Content != "" {
		attrs = append(attrs,
			slog.String("response_content", utils.TruncateString(response.Content, truncateLen)),
		)
	}

	return attrs
}
