// Package gemini implements the [ai.Provider] and [ai.StreamProvider] interfaces
// for Google's Gemini generative language API.
//
// It converts the generic [ai.ChatRequest] into Gemini's generateContent wire
// format, maps responses back to [ai.ChatResponse], streams through the
// streamGenerateContent endpoint with alt=sse, and turns non-2xx answers into
// [ai.ProviderError] values carrying the HTTP status. Requests go out with all
// four harm-category filters OFF unless the caller supplies its own settings.
//
// The primary entry point is [New], which reads GEMINI_API_KEY and
// GEMINI_API_BASE_URL from the environment. Per-model rates, including the
// long-context tier, are available through [PricingFor].
package gemini
