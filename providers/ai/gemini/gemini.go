package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/leofalp/tokenmeter/internal/utils"
	"github.com/leofalp/tokenmeter/providers/ai"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = Model25Pro
	apiKeyHeader   = "x-goog-api-key"
)

// GeminiProvider implements the ai.Provider and ai.StreamProvider interfaces
// for Google's Gemini API.
type GeminiProvider struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
	safety  []ai.SafetySetting

	cumulative bool
}

// New creates a new Gemini provider instance with default values from environment.
// Environment variables:
//   - GEMINI_API_KEY: API key for authentication
//   - GEMINI_API_BASE_URL: Base URL for API (optional, defaults to Google's API)
func New() *GeminiProvider {
	baseURL := os.Getenv("GEMINI_API_BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &GeminiProvider{
		apiKey:  os.Getenv("GEMINI_API_KEY"),
		baseURL: baseURL,
		model:   defaultModel,
		client:  &http.Client{},
		safety:  DefaultSafetySettings(),
	}
}

// WithAPIKey sets the API key for the provider.
func (p *GeminiProvider) WithAPIKey(apiKey string) ai.Provider {
	p.apiKey = apiKey
	return p
}

// WithBaseURL sets the base URL for the API.
func (p *GeminiProvider) WithBaseURL(baseURL string) ai.Provider {
	p.baseURL = baseURL
	return p
}

// WithHttpClient sets a custom HTTP client.
func (p *GeminiProvider) WithHttpClient(httpClient *http.Client) ai.Provider {
	p.client = httpClient
	return p
}

// WithModel sets the model used when a request does not name one.
func (p *GeminiProvider) WithModel(model string) *GeminiProvider {
	if model != "" {
		p.model = model
	}
	return p
}

// WithSafetySettings replaces the default safety settings. An empty slice
// sends none, leaving the API defaults in place.
func (p *GeminiProvider) WithSafetySettings(settings []ai.SafetySetting) *GeminiProvider {
	p.safety = settings
	return p
}

// WithCumulativeChunks is for endpoints and proxies whose stream chunks each
// repeat the whole answer so far. The Gemini API sends incremental chunks, so
// this is off by default.
func (p *GeminiProvider) WithCumulativeChunks() *GeminiProvider {
	p.cumulative = true
	return p
}

// HasCredentials reports whether an API key is set.
func (p *GeminiProvider) HasCredentials() bool {
	return p.apiKey != ""
}

// Model returns the default model.
func (p *GeminiProvider) Model() string {
	return p.model
}

func (p *GeminiProvider) resolveModel(request ai.ChatRequest) string {
	if request.Model != "" {
		return request.Model
	}
	return p.model
}

// SendMessage implements the ai.Provider interface.
// It sends a chat request to the Gemini API and returns the response.
func (p *GeminiProvider) SendMessage(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
	model := p.resolveModel(request)

	if p.apiKey == "" {
		return nil, fmt.Errorf("%s: GEMINI_API_KEY is not set", providerName)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, model)

	slog.DebugContext(ctx, "gemini request",
		"model", model,
		"messages", len(request.Messages),
		"streaming", false,
	)

	_, raw, err := utils.DoPostSync[jsonPayload](
		ctx,
		p.client,
		url,
		"", // Gemini authenticates with its own header, not Bearer
		requestToGemini(request, p.safety),
		utils.HeaderOption{Key: apiKeyHeader, Value: p.apiKey},
	)
	if err != nil {
		return nil, wrapError(err)
	}
	if raw == nil || len(*raw) == 0 {
		return nil, fmt.Errorf("%s: empty response body", providerName)
	}

	resp, usage, err := decodePayload(*raw)
	if err != nil {
		return nil, err
	}

	result := geminiToGeneric(resp, usage)
	if result.Model == "" {
		result.Model = model
	}
	return result, nil
}
