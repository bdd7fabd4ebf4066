package ai

import (
	"errors"
	"iter"
	"testing"
)

// makeStream is a test helper that builds a ChatStream from a hand-crafted event
// slice. If midErr is non-nil and errAtIndex is a valid index, the error is
// injected after that event instead of a normal yield.
func makeStream(events []StreamEvent, midErr error, errAtIndex int) *ChatStream {
	iteratorFunc := func(yield func(StreamEvent, error) bool) {
		for i, event := range events {
			if midErr != nil && i == errAtIndex {
				yield(event, midErr)
				return
			}
			if !yield(event, nil) {
				return
			}
		}
	}
	return NewChatStream(iter.Seq2[StreamEvent, error](iteratorFunc))
}

// ========== NewSingleEventStream ==========

// TestNewSingleEventStream_ContentOnly verifies that a response with only Content
// produces a content event followed by a done event.
func TestNewSingleEventStream_ContentOnly(t *testing.T) {
	response := &ChatResponse{Content: "hello world", FinishReason: "stop"}
	stream := NewSingleEventStream(response)

	var collected []StreamEvent
	for event, err := range stream.Iter() {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		collected = append(collected, event)
	}

	if len(collected) != 2 {
		t.Fatalf("expected 2 events (content + done), got %d", len(collected))
	}
	if collected[0].Type != StreamEventContent {
		t.Errorf("expected first event type %q, got %q", StreamEventContent, collected[0].Type)
	}
	if collected[0].Content != "hello world" {
		t.Errorf("expected content %q, got %q", "hello world", collected[0].Content)
	}
	if collected[1].Type != StreamEventDone {
		t.Errorf("expected last event type %q, got %q", StreamEventDone, collected[1].Type)
	}
	if collected[1].FinishReason != "stop" {
		t.Errorf("expected FinishReason %q, got %q", "stop", collected[1].FinishReason)
	}
}

// TestNewSingleEventStream_WithReasoning verifies that a response with Reasoning
// emits a reasoning event before the done event.
func TestNewSingleEventStream_WithReasoning(t *testing.T) {
	response := &ChatResponse{Reasoning: "let me think"}
	stream := NewSingleEventStream(response)

	var collected []StreamEvent
	for event, err := range stream.Iter() {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		collected = append(collected, event)
	}

	if len(collected) != 2 {
		t.Fatalf("expected 2 events (reasoning + done), got %d", len(collected))
	}
	if collected[0].Type != StreamEventReasoning {
		t.Errorf("expected reasoning event, got %q", collected[0].Type)
	}
	if collected[0].Reasoning != "let me think" {
		t.Errorf("expected reasoning %q, got %q", "let me think", collected[0].Reasoning)
	}
}

// TestNewSingleEventStream_WithUsage verifies that a non-nil Usage in the response
// is emitted as a StreamEventUsage before the done event.
func TestNewSingleEventStream_WithUsage(t *testing.T) {
	usage := &Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30}
	response := &ChatResponse{Usage: usage}
	stream := NewSingleEventStream(response)

	var usageEvents []StreamEvent
	for event, err := range stream.Iter() {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if event.Type == StreamEventUsage {
			usageEvents = append(usageEvents, event)
		}
	}

	if len(usageEvents) != 1 {
		t.Fatalf("expected 1 usage event, got %d", len(usageEvents))
	}
	if usageEvents[0].Usage.TotalTokens != 30 {
		t.Errorf("expected TotalTokens 30, got %d", usageEvents[0].Usage.TotalTokens)
	}
}

// TestNewSingleEventStream_EmptyResponse verifies that an empty ChatResponse
// produces only a single done event.
func TestNewSingleEventStream_EmptyResponse(t *testing.T) {
	stream := NewSingleEventStream(&ChatResponse{})

	var collected []StreamEvent
	for event, err := range stream.Iter() {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		collected = append(collected, event)
	}

	if len(collected) != 1 {
		t.Fatalf("expected 1 event (done only), got %d", len(collected))
	}
	if collected[0].Type != StreamEventDone {
		t.Errorf("expected done event, got %q", collected[0].Type)
	}
}

// ========== ChatStream.Collect ==========

// TestCollect_Content verifies that multiple content events are concatenated into
// the final ChatResponse.Content field.
func TestCollect_Content(t *testing.T) {
	stream := makeStream([]StreamEvent{
		{Type: StreamEventContent, Content: "Hello, "},
		{Type: StreamEventContent, Content: "world!"},
		{Type: StreamEventDone, FinishReason: "stop"},
	}, nil, -1)

	response, err := stream.Collect()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if response.Content != "Hello, world!" {
		t.Errorf("expected %q, got %q", "Hello, world!", response.Content)
	}
	if response.FinishReason != "stop" {
		t.Errorf("expected FinishReason %q, got %q", "stop", response.FinishReason)
	}
}

// TestCollect_ReasoningEvents verifies that reasoning deltas are concatenated
// into ChatResponse.Reasoning.
func TestCollect_ReasoningEvents(t *testing.T) {
	stream := makeStream([]StreamEvent{
		{Type: StreamEventReasoning, Reasoning: "step 1 "},
		{Type: StreamEventReasoning, Reasoning: "step 2"},
		{Type: StreamEventDone},
	}, nil, -1)

	response, err := stream.Collect()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if response.Reasoning != "step 1 step 2" {
		t.Errorf("expected reasoning %q, got %q", "step 1 step 2", response.Reasoning)
	}
}

// TestCollect_UsageEvent verifies that usage metadata from the stream is captured
// on the final ChatResponse.
func TestCollect_UsageEvent(t *testing.T) {
	usage := &Usage{PromptTokens: 5, CompletionTokens: 10, TotalTokens: 15}
	stream := makeStream([]StreamEvent{
		{Type: StreamEventContent, Content: "hi"},
		{Type: StreamEventUsage, Usage: usage},
		{Type: StreamEventDone},
	}, nil, -1)

	response, err := stream.Collect()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if response.Usage == nil {
		t.Fatal("expected Usage to be set, got nil")
	}
	if response.Usage.TotalTokens != 15 {
		t.Errorf("expected TotalTokens 15, got %d", response.Usage.TotalTokens)
	}
}

// TestCollect_MidStreamError verifies that a mid-stream error causes Collect to
// return the partial response accumulated so far, alongside the error.
func TestCollect_MidStreamError(t *testing.T) {
	sentinelErr := errors.New("network interrupted")
	// Event 0 succeeds, event 1 triggers the error.
	stream := makeStream([]StreamEvent{
		{Type: StreamEventContent, Content: "partial "},
		{Type: StreamEventContent, Content: "content"},
	}, sentinelErr, 1)

	response, err := stream.Collect()
	if !errors.Is(err, sentinelErr) {
		t.Errorf("expected sentinel error, got %v", err)
	}
	// The partial content from event 0 should be preserved.
	if response.Content != "partial " {
		t.Errorf("expected partial content %q, got %q", "partial ", response.Content)
	}
}

// TestCollect_EmptyStream verifies that an empty stream returns a zero-value
// ChatResponse with no error.
func TestCollect_EmptyStream(t *testing.T) {
	stream := makeStream(nil, nil, -1)

	response, err := stream.Collect()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if response.Content != "" {
		t.Errorf("expected empty content, got %q", response.Content)
	}
}

// ========== ChatStream.Usage ==========

// TestUsage_BeforeIteration verifies that Usage reports ErrUsageUnavailable
// until the stream has been consumed.
func TestUsage_BeforeIteration(t *testing.T) {
	stream := makeStream([]StreamEvent{
		{Type: StreamEventUsage, Usage: &Usage{PromptTokens: 3}},
	}, nil, -1)

	if _, err := stream.Usage(); !errors.Is(err, ErrUsageUnavailable) {
		t.Fatalf("expected ErrUsageUnavailable, got %v", err)
	}
}

// TestUsage_LastEventWins verifies that when several usage events arrive, the
// final one is retained.
func TestUsage_LastEventWins(t *testing.T) {
	stream := makeStream([]StreamEvent{
		{Type: StreamEventUsage, Usage: &Usage{PromptTokens: 10, TotalTokens: 10}},
		{Type: StreamEventContent, Content: "x"},
		{Type: StreamEventUsage, Usage: &Usage{PromptTokens: 10, CompletionTokens: 4, TotalTokens: 14}},
		{Type: StreamEventDone},
	}, nil, -1)

	for _, err := range stream.Iter() {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	usage, err := stream.Usage()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if usage.TotalTokens != 14 {
		t.Errorf("expected TotalTokens 14, got %d", usage.TotalTokens)
	}
}

// TestUsage_NoUsageEvent verifies that a fully drained stream without usage
// metadata still reports ErrUsageUnavailable.
func TestUsage_NoUsageEvent(t *testing.T) {
	stream := makeStream([]StreamEvent{
		{Type: StreamEventContent, Content: "hello"},
		{Type: StreamEventDone},
	}, nil, -1)

	if _, err := stream.Collect(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := stream.Usage(); !errors.Is(err, ErrUsageUnavailable) {
		t.Errorf("expected ErrUsageUnavailable, got %v", err)
	}
}

// TestUsage_EarlyBreak verifies that breaking out of the loop before the usage
// event leaves usage unavailable rather than partially set.
func TestUsage_EarlyBreak(t *testing.T) {
	stream := makeStream([]StreamEvent{
		{Type: StreamEventContent, Content: "a"},
		{Type: StreamEventUsage, Usage: &Usage{PromptTokens: 1}},
	}, nil, -1)

	for range stream.Iter() {
		break
	}

	if _, err := stream.Usage(); !errors.Is(err, ErrUsageUnavailable) {
		t.Errorf("expected ErrUsageUnavailable after early break, got %v", err)
	}
}
