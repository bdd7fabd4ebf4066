package gemini

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/leofalp/tokenmeter/core/cost"
	"github.com/leofalp/tokenmeter/internal/utils"
	"github.com/leofalp/tokenmeter/providers/ai"
)

// usageContainers are the keys usage metadata may arrive under, in order.
var usageContainers = []string{"usageMetadata", "usage_metadata", "usage"}

// requestToGemini converts an ai.ChatRequest to a Gemini generateContentRequest.
// safety is used when the request carries no settings of its own.
func requestToGemini(request ai.ChatRequest, safety []ai.SafetySetting) generateContentRequest {
	req := generateContentRequest{}

	systemParts := []string{}
	if request.SystemPrompt != "" {
		systemParts = append(systemParts, request.SystemPrompt)
	}
	for _, msg := range request.Messages {
		if msg.Role == ai.RoleSystem && msg.Content != "" {
			systemParts = append(systemParts, msg.Content)
		}
	}
	if len(systemParts) > 0 {
		req.SystemInstruction = &systemInstruction{
			Parts: []part{{Text: strings.Join(systemParts, "\n\n")}},
		}
	}

	req.Contents = buildContents(request.Messages)
	req.GenerationConfig = buildGenerationConfig(request.GenerationConfig)

	settings := request.SafetySettings
	if settings == nil {
		settings = safety
	}
	req.SafetySettings = buildSafetySettings(settings)

	return req
}

// buildContents converts ai.Message slice to Gemini content slice.
// Role mapping: user -> user, assistant -> model; system messages are folded
// into the system instruction.
func buildContents(messages []ai.Message) []content {
	contents := make([]content, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case ai.RoleUser:
			contents = append(contents, content{Role: "user", Parts: []part{{Text: msg.Content}}})
		case ai.RoleAssistant:
			contents = append(contents, content{Role: "model", Parts: []part{{Text: msg.Content}}})
		}
	}

	return contents
}

// buildGenerationConfig converts ai.GenerationConfig to Gemini generationConfig.
func buildGenerationConfig(cfg *ai.GenerationConfig) *generationConfig {
	if cfg == nil {
		return nil
	}

	gc := &generationConfig{
		Temperature:     utils.IfPositive(float64(cfg.Temperature)),
		TopP:            utils.IfPositive(float64(cfg.TopP)),
		TopK:            utils.IfPositive(cfg.TopK),
		MaxOutputTokens: utils.IfPositive(cfg.MaxOutputTokens),
	}
	if budget := utils.IfPositive(cfg.ThinkingBudget); budget != nil {
		gc.ThinkingConfig = &thinkingConfig{ThinkingBudget: budget}
	}

	return gc
}

// buildSafetySettings converts ai.SafetySetting slice to Gemini safetySetting slice.
func buildSafetySettings(settings []ai.SafetySetting) []safetySetting {
	if len(settings) == 0 {
		return nil
	}
	result := make([]safetySetting, len(settings))
	for i, s := range settings {
		result[i] = safetySetting{
			Category:  s.Category,
			Threshold: s.Threshold,
		}
	}
	return result
}

// decodePayload parses one generateContent response body (or one SSE chunk).
func decodePayload(payload []byte) (generateContentResponse, *ai.Usage, error) {
	var resp generateContentResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return resp, nil, fmt.Errorf("%s: decode response: %w (preview: %s)",
			providerName, err, utils.TruncateString(string(payload), 200))
	}
	return resp, usageFromPayload(payload), nil
}

// usageFromPayload extracts usage metadata, tolerating the snake_case and
// generic container names. It returns nil when the payload carries none.
func usageFromPayload(payload []byte) *ai.Usage {
	var container gjson.Result
	for _, key := range usageContainers {
		if value := gjson.GetBytes(payload, key); value.IsObject() {
			container = value
			break
		}
	}
	if !container.Exists() {
		return nil
	}

	record, ok := cost.ParseMetadata([]byte(container.Raw))
	if !ok {
		return nil
	}

	return &ai.Usage{
		PromptTokens:     record.PromptTokens,
		CompletionTokens: record.CandidateTokens,
		TotalTokens:      record.TotalTokens,
		ReasoningTokens:  record.ThoughtTokens,
		CachedTokens:     record.CachedTokens,
		Raw:              json.RawMessage(container.Raw),
	}
}

// splitParts joins the text and thought parts of a candidate separately.
func splitParts(c *content) (text, reasoning string) {
	if c == nil {
		return "", ""
	}

	var textParts, reasoningParts []string
	for _, p := range c.Parts {
		if p.Text == "" {
			continue
		}
		if p.Thought {
			reasoningParts = append(reasoningParts, p.Text)
		} else {
			textParts = append(textParts, p.Text)
		}
	}
	return strings.Join(textParts, ""), strings.Join(reasoningParts, "")
}

// geminiToGeneric converts a Gemini generateContentResponse to ai.ChatResponse.
func geminiToGeneric(resp generateContentResponse, usage *ai.Usage) *ai.ChatResponse {
	result := &ai.ChatResponse{
		Id:    resp.ResponseID,
		Model: resp.ModelVersion,
		Usage: usage,
	}
	if result.Id == "" {
		result.Id = fmt.Sprintf("gemini-%d", time.Now().UnixNano())
	}

	if len(resp.Candidates) == 0 {
		result.FinishReason = "error"
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			result.FinishReason = "content_filter"
		}
		return result
	}

	candidate := resp.Candidates[0]
	result.FinishReason = mapFinishReason(candidate.FinishReason)
	result.Content, result.Reasoning = splitParts(candidate.Content)

	return result
}

// mapFinishReason converts Gemini finish reason to ai.ChatResponse finish reason.
func mapFinishReason(geminiReason string) string {
	switch geminiReason {
	case "MAX_TOKENS":
		return "length"
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII":
		return "content_filter"
	default:
		return "stop"
	}
}
