package gemini

/*
	GEMINI API - REQUEST TYPES
*/

// generateContentRequest represents the request to Gemini's generateContent endpoint.
type generateContentRequest struct {
	Contents          []content          `json:"contents"`
	SystemInstruction *systemInstruction `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig  `json:"generationConfig,omitempty"`
	SafetySettings    []safetySetting    `json:"safetySettings,omitempty"`
}

// systemInstruction represents the system instruction for Gemini.
type systemInstruction struct {
	Parts []part `json:"parts"`
}

// content represents a content block with role and parts.
type content struct {
	Role  string `json:"role,omitempty"` // "user" or "model"
	Parts []part `json:"parts"`
}

// part represents a text content part.
type part struct {
	Text    string `json:"text,omitempty"`
	Thought bool   `json:"thought,omitempty"` // true if this part contains a thinking summary
}

// generationConfig represents generation parameters for Gemini.
type generationConfig struct {
	Temperature     *float64        `json:"temperature,omitempty"`
	TopP            *float64        `json:"topP,omitempty"`
	TopK            *int            `json:"topK,omitempty"`
	MaxOutputTokens *int            `json:"maxOutputTokens,omitempty"`
	ThinkingConfig  *thinkingConfig `json:"thinkingConfig,omitempty"`
}

// thinkingConfig represents the thinking configuration for Gemini.
type thinkingConfig struct {
	ThinkingBudget *int `json:"thinkingBudget,omitempty"`
}

// safetySetting represents a safety setting for content filtering.
type safetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

/*
	GEMINI API - RESPONSE TYPES
*/

// generateContentResponse represents the response from Gemini's generateContent
// endpoint. Usage metadata is read separately from the raw payload.
type generateContentResponse struct {
	Candidates     []candidate     `json:"candidates,omitempty"`
	PromptFeedback *promptFeedback `json:"promptFeedback,omitempty"`
	ModelVersion   string          `json:"modelVersion,omitempty"`
	ResponseID     string          `json:"responseId,omitempty"`
}

// candidate represents a response candidate.
type candidate struct {
	Content      *content `json:"content,omitempty"`
	FinishReason string   `json:"finishReason,omitempty"`
	Index        int      `json:"index,omitempty"`
}

// promptFeedback represents feedback about the prompt.
type promptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}
