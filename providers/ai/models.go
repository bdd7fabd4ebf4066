package ai

import "encoding/json"

/*
	##### PROVIDER INPUT #####
*/

// ChatRequest represents a request to generate text.
type ChatRequest struct {
	Model            string            `json:"model,omitempty"`             // Model name or identifier
	Messages         []Message         `json:"messages"`                    // Conversation history followed by the new prompt
	SystemPrompt     string            `json:"system_prompt,omitempty"`     // Optional system instruction
	GenerationConfig *GenerationConfig `json:"generation_config,omitempty"` // Optional generation configuration
	SafetySettings   []SafetySetting   `json:"safety_settings,omitempty"`   // Nil lets the provider apply its defaults
}

// Message represents a single message in a conversation
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content,omitempty"`
}

type GenerationConfig struct {
	Temperature     float32 `json:"temperature,omitempty"`       // Sampling temperature [0..2]. Higher => more random; lower => more deterministic.
	TopP            float32 `json:"top_p,omitempty"`             // Nucleus (top-p) sampling [0..1].
	TopK            int     `json:"top_k,omitempty"`             // Sample only among the K most likely tokens.
	MaxOutputTokens int     `json:"max_output_tokens,omitempty"` // Optional cap on generated tokens
	ThinkingBudget  int     `json:"thinking_budget,omitempty"`   // Token budget for model reasoning, 0 keeps the provider default
}

// SafetySetting pairs a harm category with the blocking threshold applied to it.
// Values use the provider's own vocabulary.
type SafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

/*
	##### PROVIDER OUTPUT #####
*/

type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`

	// Extended token metrics
	ReasoningTokens int `json:"reasoning_tokens,omitempty"` // Tokens spent on model thinking
	CachedTokens    int `json:"cached_tokens,omitempty"`    // Prompt tokens served from the context cache

	// Raw is the provider's usage object as received, kept so accounting can
	// fall back to alternate field names.
	Raw json.RawMessage `json:"-"`
}

// ChatResponse represents the response from a generation call
type ChatResponse struct {
	Id           string `json:"id"`
	Model        string `json:"model"`
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason,omitempty"`
	Usage        *Usage `json:"usage,omitempty"`

	Reasoning string `json:"reasoning,omitempty"` // Thought summary, when the model returns one
}

// MessageRole represents the role of a message; compatible with string
type MessageRole string

const (
	RoleSystem    MessageRole = "system"    // System instructions/configuration
	RoleUser      MessageRole = "user"      // End-user message
	RoleAssistant MessageRole = "assistant" // Model reply
)
