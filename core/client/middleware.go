package client

import (
	"context"

	"github.com/leofalp/tokenmeter/providers/ai"
)

// SendFunc sends one chat request to the provider and returns the completed
// response. It is the unit threaded through the send middleware chain.
type SendFunc func(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error)

// StreamFunc opens one streaming chat request. It is the unit threaded through
// the stream middleware chain.
type StreamFunc func(ctx context.Context, request ai.ChatRequest) (*ai.ChatStream, error)

// Middleware wraps a SendFunc. The first middleware given to [WithMiddleware]
// is the outermost wrapper.
type Middleware func(next SendFunc) SendFunc

// StreamMiddleware is the streaming counterpart of Middleware. It may wrap the
// returned ChatStream to observe or transform events.
type StreamMiddleware func(next StreamFunc) StreamFunc

// MiddlewareConfig pairs a send middleware with its optional streaming
// counterpart. Send is required; [New] rejects a nil Send. A nil Stream means
// GenerateStream bypasses this entry.
//
// The chain runs once per attempt: a request retried after a 503 passes
// through every middleware again.
type MiddlewareConfig struct {
	// Send wraps Generate calls.
	Send Middleware

	// Stream wraps GenerateStream calls. Optional.
	Stream StreamMiddleware
}

// buildSendChain wraps provider.SendMessage with middlewares, first entry
// outermost.
func buildSendChain(provider ai.Provider, middlewares []MiddlewareConfig) SendFunc {
	var chain SendFunc = func(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
		return provider.SendMessage(ctx, request)
	}

	for i := len(middlewares) - 1; i >= 0; i-- {
		chain = middlewares[i].Send(chain)
	}

	return chain
}

// buildStreamChain wraps the provider's native stream with the non-nil stream
// middlewares. Providers without streaming support are called synchronously
// and their response is replayed as a single-event stream.
func buildStreamChain(provider ai.Provider, middlewares []MiddlewareConfig) StreamFunc {
	var chain StreamFunc = func(ctx context.Context, request ai.ChatRequest) (*ai.ChatStream, error) {
		if streamProvider, ok := provider.(ai.StreamProvider); ok {
			return streamProvider.StreamMessage(ctx, request)
		}

		response, err := provider.SendMessage(ctx, request)
		if err != nil {
			return nil, err
		}

		return ai.NewSingleEventStream(response), nil
	}

	for i := len(middlewares) - 1; i >= 0; i-- {
		if middlewares[i].Stream != nil {
			chain = middlewares[i].Stream(chain)
		}
	}

	return chain
}
