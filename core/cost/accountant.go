package cost

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind labels what sort of request produced a usage record.
type Kind string

const (
	KindSummary Kind = "summary" // single-shot generation
	KindChat    Kind = "chat"    // streamed conversation turn
)

// Entry is what an Accountant hands to its sinks after recording a request.
type Entry struct {
	ID    string        `json:"id"`
	Kind  Kind          `json:"kind,omitempty"`
	Model string        `json:"model,omitempty"`
	Usage UsageRecord   `json:"usage"`
	Cost  CostBreakdown `json:"cost"`
	At    time.Time     `json:"at"`
}

// Sink receives every recorded entry, e.g. to persist it. Errors are logged
// by the Accountant and never fail the request.
type Sink interface {
	HandleUsage(ctx context.Context, entry Entry) error
}

// SessionStats accumulates usage across a session.
type SessionStats struct {
	TotalPromptTokens int       `json:"total_prompt_tokens"`
	TotalCachedTokens int       `json:"total_cached_tokens"`
	TotalOutputTokens int       `json:"total_output_tokens"`
	TotalRequests     int       `json:"total_requests"`
	TotalBilledTokens float64   `json:"total_billed_tokens"`
	TotalCost         float64   `json:"total_cost"`
	TotalSavedCost    float64   `json:"total_saved_cost"`
	SessionStart      time.Time `json:"session_start"`
}

// CachingRate returns cached / prompt tokens over the session, 0..1.
func (s SessionStats) CachingRate() float64 {
	if s.TotalPromptTokens == 0 {
		return 0
	}
	return float64(s.TotalCachedTokens) / float64(s.TotalPromptTokens)
}

// SavedTokens returns how many cached tokens were not billed, rounded down.
func (s SessionStats) SavedTokens(cacheDiscount float64) int {
	return int(float64(s.TotalCachedTokens) * (1 - cacheDiscount))
}

// Duration returns the time elapsed since the session started.
func (s SessionStats) Duration(now time.Time) time.Duration {
	return now.Sub(s.SessionStart)
}

// Accountant prices requests and accumulates session totals. It is safe for
// concurrent use.
type Accountant struct {
	pricing PricingTable
	now     func() time.Time
	logger  *slog.Logger
	sinks   []Sink

	mu    sync.Mutex
	stats SessionStats
}

// AccountantOption configures an Accountant.
type AccountantOption func(*Accountant)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) AccountantOption {
	return func(a *Accountant) {
		a.now = now
	}
}

// WithLogger sets the logger used for per-request cost lines and sink failures.
func WithLogger(logger *slog.Logger) AccountantOption {
	return func(a *Accountant) {
		a.logger = logger
	}
}

// WithSink registers a sink notified after each recorded request.
func WithSink(sink Sink) AccountantOption {
	return func(a *Accountant) {
		if sink != nil {
			a.sinks = append(a.sinks, sink)
		}
	}
}

// NewAccountant returns an Accountant pricing requests with pricing.
func NewAccountant(pricing PricingTable, opts ...AccountantOption) *Accountant {
	a := &Accountant{
		pricing: pricing,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.stats = SessionStats{SessionStart: a.now()}
	return a
}

// Pricing returns the table the Accountant prices with.
func (a *Accountant) Pricing() PricingTable {
	return a.pricing
}

// RecordUsage prices usage, folds it into the session totals and notifies
// sinks. Request labels attached with ContextWithLabels end up on the entry.
func (a *Accountant) RecordUsage(ctx context.Context, usage UsageRecord) CostBreakdown {
	usage = usage.Normalize()
	breakdown := ComputeCost(usage, a.pricing)

	a.mu.Lock()
	a.stats.TotalPromptTokens += usage.PromptTokens
	a.stats.TotalCachedTokens += usage.CachedTokens
	a.stats.TotalOutputTokens += usage.OutputTokens
	a.stats.TotalRequests++
	a.stats.TotalBilledTokens += breakdown.BilledTotalTokens
	a.stats.TotalCost += breakdown.TotalCost
	a.stats.TotalSavedCost += breakdown.SavedCost
	a.mu.Unlock()

	labels := LabelsFromContext(ctx)
	entry := Entry{
		ID:    labels.RequestID,
		Kind:  labels.Kind,
		Model: labels.Model,
		Usage: usage,
		Cost:  breakdown,
		At:    a.now(),
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	a.logger.InfoContext(ctx, "usage recorded",
		slog.String("request_id", entry.ID),
		slog.String("kind", string(entry.Kind)),
		slog.String("model", entry.Model),
		slog.Int("prompt_tokens", usage.PromptTokens),
		slog.Int("cached_tokens", usage.CachedTokens),
		slog.Int("output_tokens", usage.OutputTokens),
		slog.Int("total_tokens", usage.TotalTokens),
		slog.Float64("billed_tokens", breakdown.BilledTotalTokens),
		slog.Bool("long_context", breakdown.LongContext),
		slog.Float64("cost", breakdown.TotalCost),
		slog.Float64("cost_converted", breakdown.TotalCostConverted),
	)

	for _, sink := range a.sinks {
		if err := sink.HandleUsage(ctx, entry); err != nil {
			a.logger.WarnContext(ctx, "usage sink failed",
				slog.String("request_id", entry.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return breakdown
}

// RecordMetadata parses raw provider usage metadata and records it. It
// reports false, leaving the totals untouched, when no usage could be read.
func (a *Accountant) RecordMetadata(ctx context.Context, raw []byte) (CostBreakdown, bool) {
	usage, ok := ParseMetadata(raw)
	if !ok {
		return CostBreakdown{}, false
	}
	return a.RecordUsage(ctx, usage), true
}

// Snapshot returns a copy of the current session totals.
func (a *Accountant) Snapshot() SessionStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// Reset zeroes the session totals and restarts the session clock.
func (a *Accountant) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats = SessionStats{SessionStart: a.now()}
}
