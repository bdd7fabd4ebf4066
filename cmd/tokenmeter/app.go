package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/leofalp/tokenmeter/core/client"
	"github.com/leofalp/tokenmeter/core/client/middleware"
	"github.com/leofalp/tokenmeter/core/cost"
	"github.com/leofalp/tokenmeter/core/retry"
	"github.com/leofalp/tokenmeter/internal/config"
	"github.com/leofalp/tokenmeter/providers/ai"
	"github.com/leofalp/tokenmeter/providers/ai/gemini"
	"github.com/leofalp/tokenmeter/providers/ledger"
	"github.com/leofalp/tokenmeter/providers/ledger/sqlite"
)

var errNoLedger = errors.New("LEDGER_PATH is not set, nothing is persisted")

type streams struct {
	in  io.Reader
	out io.Writer
	err io.Writer
}

// lastEntry keeps the most recent accountant entry so commands can print the
// cost of the request they just made.
type lastEntry struct {
	mu    sync.Mutex
	entry cost.Entry
	ok    bool
}

func (l *lastEntry) HandleUsage(_ context.Context, entry cost.Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entry, l.ok = entry, true
	return nil
}

// take returns the entry recorded since the previous call, if any.
func (l *lastEntry) take() (cost.Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entry, l.ok
	l.entry, l.ok = cost.Entry{}, false
	return entry, ok
}

// app is everything a command needs, built once from the configuration.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	pricing    cost.PricingTable
	accountant *cost.Accountant
	ledger     ledger.Ledger
	last       *lastEntry
	client     *client.Client
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	pricing, err := resolvePricing(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, pricing: pricing, last: &lastEntry{}}

	sinks := []cost.AccountantOption{cost.WithLogger(logger), cost.WithSink(a.last)}
	if cfg.LedgerPath != "" {
		store, err := sqlite.Open(cfg.LedgerPath)
		if err != nil {
			return nil, err
		}
		a.ledger = store
		sinks = append(sinks, cost.WithSink(store))
	}
	a.accountant = cost.NewAccountant(pricing, sinks...)

	a.client, err = client.New(providerFactory(cfg), cfg.Gemini.APIKey,
		client.WithAccountant(a.accountant),
		client.WithModel(cfg.Gemini.Model),
		client.WithLogger(logger),
		client.WithRetryStrategy(retry.FixedDelay{Delay: cfg.Retry.Delay, MaxAttempts: cfg.Retry.MaxAttempts}),
		client.WithMiddleware(middlewares(cfg, logger)...),
	)
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) close() {
	if a.ledger == nil {
		return
	}
	if err := a.ledger.Close(); err != nil {
		a.logger.Warn("closing ledger", slog.String("error", err.Error()))
	}
}

// resolvePricing prefers PRICING_FILE and falls back to the model's rates.
func resolvePricing(cfg *config.Config) (cost.PricingTable, error) {
	if cfg.PricingFile == "" {
		return gemini.PricingFor(cfg.Gemini.Model), nil
	}
	pricing, err := cost.LoadPricing(cfg.PricingFile)
	if err != nil {
		return cost.PricingTable{}, fmt.Errorf("pricing: %w", err)
	}
	return pricing, nil
}

func providerFactory(cfg *config.Config) client.ProviderFactory {
	return func(apiKey string) ai.Provider {
		provider := gemini.New().WithModel(cfg.Gemini.Model)
		if cfg.Gemini.BaseURL != "" {
			provider.WithBaseURL(cfg.Gemini.BaseURL)
		}
		return provider.WithAPIKey(apiKey)
	}
}

// middlewares returns the per-attempt chain, outermost first: pacing, then
// the attempt deadline, then logging of what reached the provider.
func middlewares(cfg *config.Config, logger *slog.Logger) []client.MiddlewareConfig {
	var chain []client.MiddlewareConfig
	if limiter := middleware.PerMinute(cfg.RateLimitPerMin); limiter != nil {
		chain = append(chain, middleware.NewRateLimitMiddleware(limiter))
	}
	if cfg.RequestTimeout > 0 {
		chain = append(chain, middleware.NewTimeoutMiddleware(cfg.RequestTimeout))
	}

	level := middleware.LogLevelMinimal
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		level = middleware.LogLevelVerbose
	}
	return append(chain, middleware.NewLoggingMiddleware(logger, level))
}
