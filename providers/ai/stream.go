package ai

import (
	"iter"
	"strings"
)

// StreamEventType identifies the kind of delta carried by a StreamEvent.
type StreamEventType string

const (
	// StreamEventContent indicates a text content delta.
	StreamEventContent StreamEventType = "content"
	// StreamEventReasoning indicates a thought-summary delta.
	StreamEventReasoning StreamEventType = "reasoning"
	// StreamEventUsage carries token usage metadata (typically the final event).
	StreamEventUsage StreamEventType = "usage"
	// StreamEventDone signals that the stream has finished normally.
	StreamEventDone StreamEventType = "done"
	// StreamEventError signals an error that terminated the stream.
	StreamEventError StreamEventType = "error"
)

// StreamEvent represents a single delta yielded during response streaming.
// Each event carries exactly one type of payload, identified by the Type field.
type StreamEvent struct {
	Type         StreamEventType `json:"type"`
	Content      string          `json:"content,omitempty"`       // Text delta (Type == StreamEventContent)
	Reasoning    string          `json:"reasoning,omitempty"`     // Reasoning delta (Type == StreamEventReasoning)
	Usage        *Usage          `json:"usage,omitempty"`         // Token usage (Type == StreamEventUsage)
	FinishReason string          `json:"finish_reason,omitempty"` // Present on StreamEventDone
	Error        string          `json:"error,omitempty"`         // Error message (Type == StreamEventError)
}

// ChatStream wraps a streaming iterator. It supports range-based iteration for
// real-time processing and Collect() for callers who want the whole response.
//
// Callers must consume the stream, either by iterating with Iter() (breaking
// out early is fine) or by calling Collect(). The provider may hold an open
// HTTP response body that is only released when the iterator completes or is
// abandoned via a loop break.
//
// The stream is single-pass and not safe for concurrent use.
type ChatStream struct {
	iterator iter.Seq2[StreamEvent, error]
	usage    *Usage
}

// NewChatStream creates a ChatStream from a raw streaming iterator.
// The iterator yields StreamEvent values with a nil error for normal deltas
// and may yield a non-nil error to signal a mid-stream failure.
func NewChatStream(iterator iter.Seq2[StreamEvent, error]) *ChatStream {
	return &ChatStream{iterator: iterator}
}

// NewSingleEventStream wraps a synchronous ChatResponse as a stream: one content
// event, optional reasoning and usage events, then done.
func NewSingleEventStream(response *ChatResponse) *ChatStream {
	iteratorFunc := func(yield func(StreamEvent, error) bool) {
		if response.Content != "" {
			if !yield(StreamEvent{Type: StreamEventContent, Content: response.Content}, nil) {
				return
			}
		}

		if response.Reasoning != "" {
			if !yield(StreamEvent{Type: StreamEventReasoning, Reasoning: response.Reasoning}, nil) {
				return
			}
		}

		if response.Usage != nil {
			if !yield(StreamEvent{Type: StreamEventUsage, Usage: response.Usage}, nil) {
				return
			}
		}

		yield(StreamEvent{Type: StreamEventDone, FinishReason: response.FinishReason}, nil)
	}

	return NewChatStream(iteratorFunc)
}

// Iter returns an iterator over the stream's events for range-over-func loops.
// Usage events passing through are remembered for Usage().
//
// Example:
//
//	for event, err := range stream.Iter() {
//	    if err != nil { handle error }
//	    fmt.Print(event.Content)
//	}
func (stream *ChatStream) Iter() iter.Seq2[StreamEvent, error] {
	return func(yield func(StreamEvent, error) bool) {
		for event, err := range stream.iterator {
			if err == nil && event.Type == StreamEventUsage && event.Usage != nil {
				stream.usage = event.Usage
			}
			if !yield(event, err) {
				return
			}
		}
	}
}

// Usage returns the last usage metadata seen while iterating. It returns
// ErrUsageUnavailable when the stream has not carried any (yet).
func (stream *ChatStream) Usage() (*Usage, error) {
	if stream.usage == nil {
		return nil, ErrUsageUnavailable
	}
	return stream.usage, nil
}

// Collect consumes the entire stream and returns the accumulated ChatResponse.
// Any mid-stream error terminates collection and returns a partial response with the error.
func (stream *ChatStream) Collect() (*ChatResponse, error) {
	accumulated := &ChatResponse{}
	var content, reasoning strings.Builder

	for event, err := range stream.Iter() {
		if err != nil {
			accumulated.Content = content.String()
			accumulated.Reasoning = reasoning.String()
			return accumulated, err
		}

		switch event.Type {
		case StreamEventContent:
			content.WriteString(event.Content)

		case StreamEventReasoning:
			reasoning.WriteString(event.Reasoning)

		case StreamEventUsage:
			if event.Usage != nil {
				accumulated.Usage = event.Usage
			}

		case StreamEventDone:
			accumulated.FinishReason = event.FinishReason

		case StreamEventError:
			// Informational; the actual error comes through the iterator's error value
		}
	}

	accumulated.Content = content.String()
	accumulated.Reasoning = reasoning.String()
	return accumulated, nil
}
