package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/leofalp/tokenmeter/internal/utils"
	"github.com/leofalp/tokenmeter/providers/ai"
)

// jsonPayload keeps a response body undecoded so usage metadata can be read
// with alternate field names.
type jsonPayload = json.RawMessage

// StreamMessage implements ai.StreamProvider for the Gemini API.
// It uses the streamGenerateContent endpoint with alt=sse to receive
// response chunks as SSE events.
func (p *GeminiProvider) StreamMessage(ctx context.Context, request ai.ChatRequest) (*ai.ChatStream, error) {
	model := p.resolveModel(request)

	if p.apiKey == "" {
		return nil, fmt.Errorf("%s: GEMINI_API_KEY is not set", providerName)
	}

	streamURL := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", p.baseURL, model)

	slog.DebugContext(ctx, "gemini request",
		"model", model,
		"messages", len(request.Messages),
		"streaming", true,
	)

	httpResponse, err := utils.DoPostStream(
		ctx,
		p.client,
		streamURL,
		"",
		requestToGemini(request, p.safety),
		utils.HeaderOption{Key: apiKeyHeader, Value: p.apiKey},
	)
	if err != nil {
		return nil, wrapError(err)
	}

	sseScanner := utils.NewSSEScanner(httpResponse.Body)

	iteratorFunc := func(yield func(ai.StreamEvent, error) bool) {
		// Ensure the response body is closed when the iterator is done
		defer utils.CloseWithLog(httpResponse.Body)

		state := chunkState{cumulative: p.cumulative}

		for {
			if ctx.Err() != nil {
				yield(ai.StreamEvent{}, ctx.Err())
				return
			}

			payload, sseErr := sseScanner.Next()
			if sseErr == io.EOF {
				return
			}
			if sseErr != nil {
				yield(ai.StreamEvent{}, fmt.Errorf("%s: SSE read error: %w", providerName, sseErr))
				return
			}

			if chunkErr := streamError([]byte(payload)); chunkErr != nil {
				yield(ai.StreamEvent{Type: ai.StreamEventError, Error: chunkErr.Error()}, chunkErr)
				return
			}

			response, usage, parseErr := decodePayload([]byte(payload))
			if parseErr != nil {
				yield(ai.StreamEvent{}, parseErr)
				return
			}

			for _, event := range state.events(response, usage) {
				if !yield(event, nil) {
					return
				}
			}
		}
	}

	return ai.NewChatStream(iteratorFunc), nil
}

// chunkState tracks the text emitted so far. Chunks carry only new text and
// are forwarded unchanged, unless the provider was configured with
// WithCumulativeChunks, in which case each chunk repeats the whole answer and
// only its new suffix is forwarded.
type chunkState struct {
	cumulative bool
	text       strings.Builder
	reasoning  strings.Builder
}

func (s *chunkState) events(response generateContentResponse, usage *ai.Usage) []ai.StreamEvent {
	var events []ai.StreamEvent

	if len(response.Candidates) > 0 {
		candidate := response.Candidates[0]
		text, reasoning := splitParts(candidate.Content)

		if delta := s.nextDelta(&s.reasoning, reasoning); delta != "" {
			events = append(events, ai.StreamEvent{Type: ai.StreamEventReasoning, Reasoning: delta})
		}
		if delta := s.nextDelta(&s.text, text); delta != "" {
			events = append(events, ai.StreamEvent{Type: ai.StreamEventContent, Content: delta})
		}
	}

	// Usage metadata usually rides on every chunk; the last one holds the totals.
	if usage != nil {
		events = append(events, ai.StreamEvent{Type: ai.StreamEventUsage, Usage: usage})
	}

	if len(response.Candidates) > 0 && response.Candidates[0].FinishReason != "" {
		events = append(events, ai.StreamEvent{
			Type:         ai.StreamEventDone,
			FinishReason: mapFinishReason(response.Candidates[0].FinishReason),
		})
	}

	return events
}

// nextDelta returns the new text in chunk. Incremental chunks pass through as
// they are; in cumulative mode the text already emitted is stripped.
func (s *chunkState) nextDelta(emitted *strings.Builder, chunk string) string {
	if chunk == "" {
		return ""
	}
	if !s.cumulative {
		return chunk
	}
	delta := strings.TrimPrefix(chunk, emitted.String())
	emitted.WriteString(delta)
	return delta
}
