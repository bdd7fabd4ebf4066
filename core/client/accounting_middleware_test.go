package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/leofalp/tokenmeter/core/cost"
	"github.com/leofalp/tokenmeter/providers/ai"
)

func newQuietAccountant() *cost.Accountant {
	return cost.NewAccountant(cost.DefaultPricing(), cost.WithLogger(quietLogger()))
}

// TestAccountingSend_RecordsResponseUsage verifies a send response with usage
// is folded into the accountant.
func TestAccountingSend_RecordsResponseUsage(t *testing.T) {
	accountant := newQuietAccountant()
	middleware := NewAccountingMiddleware(accountant, quietLogger())

	send := middleware.Send(func(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
		return &ai.ChatResponse{Usage: &ai.Usage{PromptTokens: 1000, CachedTokens: 400, CompletionTokens: 200}}, nil
	})
	if _, err := send(context.Background(), ai.ChatRequest{}); err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	stats := accountant.Snapshot()
	if stats.TotalRequests != 1 || stats.TotalBilledTokens != 900 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

// TestAccountingSend_RawMetadataWins verifies the raw provider object is
// parsed with its own field names.
func TestAccountingSend_RawMetadataWins(t *testing.T) {
	accountant := newQuietAccountant()
	middleware := NewAccountingMiddleware(accountant, quietLogger())

	send := middleware.Send(func(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
		return &ai.ChatResponse{Usage: &ai.Usage{
			PromptTokens: 1,
			Raw:          []byte(`{"prompt_token_count":300,"cached_content_token_count":100,"candidates_token_count":20}`),
		}}, nil
	})
	if _, err := send(context.Background(), ai.ChatRequest{}); err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	stats := accountant.Snapshot()
	if stats.TotalPromptTokens != 300 || stats.TotalCachedTokens != 100 || stats.TotalOutputTokens != 20 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

// TestAccountingSend_ErrorNotRecorded verifies failed calls leave totals alone.
func TestAccountingSend_ErrorNotRecorded(t *testing.T) {
	accountant := newQuietAccountant()
	middleware := NewAccountingMiddleware(accountant, quietLogger())
	failure := errors.New("boom")

	send := middleware.Send(func(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
		return nil, failure
	})
	if _, err := send(context.Background(), ai.ChatRequest{}); !errors.Is(err, failure) {
		t.Fatalf("expected the failure to pass through, got %v", err)
	}
	if accountant.Snapshot().TotalRequests != 0 {
		t.Error("expected nothing recorded")
	}
}

// TestAccountingStream_LastUsageWins verifies only the final usage event counts.
func TestAccountingStream_LastUsageWins(t *testing.T) {
	accountant := newQuietAccountant()
	middleware := NewAccountingMiddleware(accountant, quietLogger())

	open := middleware.Stream(func(ctx context.Context, request ai.ChatRequest) (*ai.ChatStream, error) {
		iteratorFunc := func(yield func(ai.StreamEvent, error) bool) {
			events := []ai.StreamEvent{
				{Type: ai.StreamEventContent, Content: "a"},
				{Type: ai.StreamEventUsage, Usage: &ai.Usage{PromptTokens: 10, CompletionTokens: 1}},
				{Type: ai.StreamEventContent, Content: "b"},
				{Type: ai.StreamEventUsage, Usage: &ai.Usage{PromptTokens: 10, CompletionTokens: 2}},
				{Type: ai.StreamEventDone, FinishReason: "stop"},
			}
			for _, event := range events {
				if !yield(event, nil) {
					return
				}
			}
		}
		return ai.NewChatStream(iteratorFunc), nil
	})

	stream, err := open(context.Background(), ai.ChatRequest{})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	response, err := stream.Collect()
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if response.Content != "ab" {
		t.Errorf("events must pass through unchanged, got %q", response.Content)
	}

	stats := accountant.Snapshot()
	if stats.TotalRequests != 1 || stats.TotalOutputTokens != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

// TestAccountingStream_AbandonedWithUsage verifies a stream left early is
// still recorded when usage was already seen, and not otherwise.
func TestAccountingStream_AbandonedWithUsage(t *testing.T) {
	tests := []struct {
		name     string
		events   []ai.StreamEvent
		expected int
	}{
		{
			name: "usage seen",
			events: []ai.StreamEvent{
				{Type: ai.StreamEventUsage, Usage: &ai.Usage{PromptTokens: 5}},
				{Type: ai.StreamEventContent, Content: "a"},
				{Type: ai.StreamEventContent, Content: "b"},
			},
			expected: 1,
		},
		{
			name: "no usage yet",
			events: []ai.StreamEvent{
				{Type: ai.StreamEventContent, Content: "a"},
				{Type: ai.StreamEventUsage, Usage: &ai.Usage{PromptTokens: 5}},
			},
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accountant := newQuietAccountant()
			middleware := NewAccountingMiddleware(accountant, quietLogger())

			open := middleware.Stream(func(ctx context.Context, request ai.ChatRequest) (*ai.ChatStream, error) {
				iteratorFunc := func(yield func(ai.StreamEvent, error) bool) {
					for _, event := range tt.events {
						if !yield(event, nil) {
							return
						}
					}
				}
				return ai.NewChatStream(iteratorFunc), nil
			})

			stream, err := open(context.Background(), ai.ChatRequest{})
			if err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			for event := range stream.Iter() {
				if event.Type == ai.StreamEventContent {
					break
				}
			}

			if got := accountant.Snapshot().TotalRequests; got != tt.expected {
				t.Errorf("expected %d recorded requests, got %d", tt.expected, got)
			}
		})
	}
}

// TestAccountingStream_MissingUsageLogsDuration verifies the warning for a
// stream without usage carries how long the attempt ran.
func TestAccountingStream_MissingUsageLogsDuration(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	middleware := NewAccountingMiddleware(newQuietAccountant(), logger)

	open := middleware.Stream(func(ctx context.Context, request ai.ChatRequest) (*ai.ChatStream, error) {
		return ai.NewChatStream(func(yield func(ai.StreamEvent, error) bool) {
			time.Sleep(5 * time.Millisecond)
			yield(ai.StreamEvent{Type: ai.StreamEventContent, Content: "a"}, nil)
		}), nil
	})

	stream, err := open(context.Background(), ai.ChatRequest{})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if _, err := stream.Collect(); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	var entry struct {
		Msg      string        `json:"msg"`
		Level    string        `json:"level"`
		Duration time.Duration `json:"duration"`
	}
	if err := json.Unmarshal(logs.Bytes(), &entry); err != nil {
		t.Fatalf("expected one JSON log line, got %q: %v", logs.String(), err)
	}
	if entry.Msg != "usage metadata unavailable" || entry.Level != "WARN" {
		t.Errorf("unexpected log entry %+v", entry)
	}
	if entry.Duration < 5*time.Millisecond {
		t.Errorf("expected the attempt duration to cover the stream, got %v", entry.Duration)
	}
}
