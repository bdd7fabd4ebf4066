package ai

import (
	"context"
	"net/http"
)

// StreamProvider is implemented by providers that can stream responses.
// Callers detect support via type assertion: provider.(StreamProvider).
type StreamProvider interface {
	Provider
	// StreamMessage sends a chat request and returns a ChatStream that yields
	// incremental deltas as they arrive from the API. Pre-stream errors
	// (auth, bad request, network) are returned as a normal error. Mid-stream
	// errors are yielded through the iterator.
	StreamMessage(ctx context.Context, request ChatRequest) (*ChatStream, error)
}

// Provider is the interface every text-generation backend satisfies.
type Provider interface {
	// SendMessage sends a chat request to the provider and returns the
	// completed response. Returns an error if the provider call fails,
	// the context is cancelled, or the response cannot be decoded.
	SendMessage(ctx context.Context, request ChatRequest) (*ChatResponse, error)

	// HasCredentials reports whether an API key is configured. The executor
	// refuses to issue requests through a provider without one.
	HasCredentials() bool

	// WithAPIKey sets the API key used for authenticating requests.
	WithAPIKey(apiKey string) Provider

	// WithBaseURL overrides the default base URL for API requests.
	WithBaseURL(baseURL string) Provider

	// WithHttpClient sets the HTTP client used for outbound requests.
	WithHttpClient(httpClient *http.Client) Provider
}
