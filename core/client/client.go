package client

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/leofalp/tokenmeter/core/cost"
	"github.com/leofalp/tokenmeter/core/retry"
	"github.com/leofalp/tokenmeter/providers/ai"
)

// ProviderFactory builds a provider bound to apiKey. It is called by [New]
// and again by [Client.UpdateAPIKey].
type ProviderFactory func(apiKey string) ai.Provider

// DefaultChatConfig is the sampling configuration used by GenerateStream.
func DefaultChatConfig() *ai.GenerationConfig {
	return &ai.GenerationConfig{
		Temperature:    0.8,
		TopK:           40,
		TopP:           0.95,
		ThinkingBudget: 6000,
	}
}

// providerHandle is the unit swapped by UpdateAPIKey.
type providerHandle struct {
	provider ai.Provider
}

// Client issues generation requests, retries transient provider failures and
// forwards reported usage to an accountant.
//
// A Client is safe for concurrent use. Each call captures the current
// provider once, so UpdateAPIKey never affects a call already in flight.
type Client struct {
	factory ProviderFactory
	handle  atomic.Pointer[providerHandle]

	accountant     *cost.Accountant
	strategy       retry.Strategy
	sleep          retry.SleepFunc
	model          string
	summaryConfig  *ai.GenerationConfig
	chatConfig     *ai.GenerationConfig
	safetySettings []ai.SafetySetting
	logger         *slog.Logger
	middlewares    []MiddlewareConfig
}

// Option configures a Client.
type Option func(*Client)

// WithAccountant forwards the usage of every successful call to accountant.
func WithAccountant(accountant *cost.Accountant) Option {
	return func(c *Client) {
		c.accountant = accountant
	}
}

// WithRetryStrategy replaces the default policy of retrying 503s forever,
// one second apart.
func WithRetryStrategy(strategy retry.Strategy) Option {
	return func(c *Client) {
		c.strategy = strategy
	}
}

// WithRetrySleep replaces the wait between retries, mainly for tests.
func WithRetrySleep(sleep retry.SleepFunc) Option {
	return func(c *Client) {
		c.sleep = sleep
	}
}

// WithModel sets the model named in every request. Empty leaves the choice to
// the provider.
func WithModel(model string) Option {
	return func(c *Client) {
		c.model = model
	}
}

// WithGenerationConfig overrides the sampling configuration of Generate and
// GenerateStream. A nil argument keeps the respective default.
func WithGenerationConfig(summary, chat *ai.GenerationConfig) Option {
	return func(c *Client) {
		if summary != nil {
			c.summaryConfig = summary
		}
		if chat != nil {
			c.chatConfig = chat
		}
	}
}

// WithSafetySettings sets the safety settings sent with every request. Without
// it the provider's defaults apply.
func WithSafetySettings(settings []ai.SafetySetting) Option {
	return func(c *Client) {
		c.safetySettings = settings
	}
}

// WithLogger sets the logger for retry and usage messages.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMiddleware appends middlewares to the per-attempt chain, first entry
// outermost.
func WithMiddleware(middlewares ...MiddlewareConfig) Option {
	return func(c *Client) {
		c.middlewares = append(c.middlewares, middlewares...)
	}
}

// New creates a Client whose provider is factory(apiKey). An empty apiKey is
// accepted; calls fail with ErrNotConfigured until UpdateAPIKey sets one.
func New(factory ProviderFactory, apiKey string, opts ...Option) (*Client, error) {
	if factory == nil {
		return nil, errors.New("client: provider factory must not be nil")
	}

	c := &Client{
		factory:    factory,
		strategy:   retry.DefaultStrategy(),
		sleep:      retry.Sleep,
		chatConfig: DefaultChatConfig(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	for i, middleware := range c.middlewares {
		if middleware.Send == nil {
			return nil, fmt.Errorf("client: middleware at index %d has a nil Send function", i)
		}
	}
	if c.accountant != nil {
		c.middlewares = append([]MiddlewareConfig{NewAccountingMiddleware(c.accountant, c.logger)}, c.middlewares...)
	}

	c.UpdateAPIKey(apiKey)
	return c, nil
}

// UpdateAPIKey rebuilds the provider with apiKey. An empty key leaves the
// client unconfigured.
func (c *Client) UpdateAPIKey(apiKey string) {
	if apiKey == "" {
		c.handle.Store(nil)
		return
	}
	c.handle.Store(&providerHandle{provider: c.factory(apiKey)})
}

// Accountant returns the accountant given to WithAccountant, or nil.
func (c *Client) Accountant() *cost.Accountant {
	return c.accountant
}

// provider returns the current provider or ErrNotConfigured.
func (c *Client) provider() (ai.Provider, error) {
	handle := c.handle.Load()
	if handle == nil || handle.provider == nil || !handle.provider.HasCredentials() {
		return nil, ErrNotConfigured
	}
	return handle.provider, nil
}

func (c *Client) newRetrier(kind cost.Kind) *retry.Retrier {
	return retry.New(
		retry.WithStrategy(c.strategy),
		retry.WithSleep(c.sleep),
		retry.WithOnRetry(func(attempt int, delay time.Duration, err error) {
			c.logger.Warn("provider overloaded, retrying",
				slog.String("kind", string(kind)),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.String("error", err.Error()),
			)
		}),
	)
}

func (c *Client) labelled(ctx context.Context, kind cost.Kind) context.Context {
	return cost.ContextWithLabels(ctx, cost.Labels{
		RequestID: uuid.NewString(),
		Kind:      kind,
		Model:     c.model,
	})
}

// Generate sends prompt with an optional system instruction and returns the
// generated text. 503 answers are retried according to the retry strategy;
// 429 and 400 come back wrapped in ErrRateLimited and ErrMalformedRequest.
func (c *Client) Generate(ctx context.Context, prompt, systemInstruction string) (string, error) {
	provider, err := c.provider()
	if err != nil {
		return "", err
	}

	ctx = c.labelled(ctx, cost.KindSummary)
	request := ai.ChatRequest{
		Model:            c.model,
		SystemPrompt:     systemInstruction,
		Messages:         []ai.Message{{Role: ai.RoleUser, Content: prompt}},
		GenerationConfig: c.summaryConfig,
		SafetySettings:   c.safetySettings,
	}

	send := buildSendChain(provider, c.middlewares)
	retrier := c.newRetrier(cost.KindSummary)

	response, err := retry.Do(ctx, retrier, func(ctx context.Context) (*ai.ChatResponse, error) {
		return send(ctx, request)
	})
	if err != nil {
		return "", classify(err)
	}
	return response.Content, nil
}

// GenerateStream sends prompt after history and yields text chunks as they
// arrive. The sequence is single-pass; breaking out of the loop releases the
// underlying connection.
//
// A 503, before or during the stream, restarts the whole request. Chunks
// already yielded are not taken back and the restarted response is yielded
// from its beginning; a hook set with ContextWithRestartHook is called first
// so the caller can discard the partial answer. Any other failure ends the
// sequence with a single error, classified as in Generate.
func (c *Client) GenerateStream(ctx context.Context, prompt string, history []ai.Message, systemInstruction string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		provider, err := c.provider()
		if err != nil {
			yield("", err)
			return
		}

		ctx := c.labelled(ctx, cost.KindChat)
		messages := make([]ai.Message, 0, len(history)+1)
		messages = append(messages, history...)
		messages = append(messages, ai.Message{Role: ai.RoleUser, Content: prompt})

		request := ai.ChatRequest{
			Model:            c.model,
			SystemPrompt:     systemInstruction,
			Messages:         messages,
			GenerationConfig: c.chatConfig,
			SafetySettings:   c.safetySettings,
		}

		open := buildStreamChain(provider, c.middlewares)
		retrier := c.newRetrier(cost.KindChat)

		onRestart := restartHookFromContext(ctx)

		for attempt := 1; ; attempt++ {
			done, yielded, err := streamOnce(ctx, open, request, yield)
			if done {
				return
			}
			if waitErr := retrier.Wait(ctx, attempt, err); waitErr != nil {
				yield("", classify(waitErr))
				return
			}
			if yielded > 0 && onRestart != nil {
				onRestart(attempt, err)
			}
		}
	}
}

// streamOnce runs one attempt. It reports done when the sequence is finished,
// either because the stream completed or because the consumer stopped, and
// otherwise returns the error that ended the attempt. yielded counts the
// chunks passed to the consumer.
func streamOnce(ctx context.Context, open StreamFunc, request ai.ChatRequest, yield func(string, error) bool) (done bool, yielded int, err error) {
	stream, err := open(ctx, request)
	if err != nil {
		return false, 0, err
	}

	for event, err := range stream.Iter() {
		if err != nil {
			return false, yielded, err
		}
		if event.Type != ai.StreamEventContent || event.Content == "" {
			continue
		}
		yielded++
		if !yield(event.Content, nil) {
			return true, yielded, nil
		}
	}
	return true, yielded, nil
}
