package cost

import (
	"github.com/tidwall/gjson"

	"github.com/leofalp/tokenmeter/providers/ai"
)

// Field-name candidates, tried in order; the first one present and not null
// wins.
var (
	usageContainers = []string{"usageMetadata", "usage_metadata", "usage"}

	promptFields    = []string{"promptTokenCount", "prompt_token_count", "inputTokens"}
	cachedFields    = []string{"cachedContentTokenCount", "cached_content_token_count", "cachedTokens"}
	candidateFields = []string{"candidatesTokenCount", "candidates_token_count", "outputTokens"}
	thoughtFields   = []string{"thoughtsTokenCount", "thoughts_token_count"}
	totalFields     = []string{"totalTokenCount", "total_token_count"}
)

// ParseMetadata reads token usage from a provider payload. raw may be a whole
// response carrying one of the known usage containers or the usage object
// itself. It reports false when no token count is present at all.
func ParseMetadata(raw []byte) (UsageRecord, bool) {
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return UsageRecord{}, false
	}

	usage := gjson.ParseBytes(raw)
	if container, ok := first(usage, usageContainers); ok && container.IsObject() {
		usage = container
	}
	if !usage.IsObject() {
		return UsageRecord{}, false
	}

	prompt, hasPrompt := first(usage, promptFields)
	candidates, hasCandidates := first(usage, candidateFields)
	total, hasTotal := first(usage, totalFields)
	if !hasPrompt && !hasCandidates && !hasTotal {
		return UsageRecord{}, false
	}
	cached, _ := first(usage, cachedFields)
	thoughts, _ := first(usage, thoughtFields)

	record := UsageRecord{
		PromptTokens:    int(prompt.Int()),
		CachedTokens:    int(cached.Int()),
		CandidateTokens: int(candidates.Int()),
		ThoughtTokens:   int(thoughts.Int()),
		TotalTokens:     int(total.Int()),
	}
	record.OutputTokens = record.CandidateTokens + record.ThoughtTokens
	return record.Normalize(), true
}

// FromUsage converts provider-agnostic usage. The raw provider object is
// preferred when it parses, so alternate field names are honoured.
func FromUsage(usage *ai.Usage) (UsageRecord, bool) {
	if usage == nil {
		return UsageRecord{}, false
	}
	if record, ok := ParseMetadata(usage.Raw); ok {
		return record, true
	}

	record := UsageRecord{
		PromptTokens:    usage.PromptTokens,
		CachedTokens:    usage.CachedTokens,
		CandidateTokens: usage.CompletionTokens,
		ThoughtTokens:   usage.ReasoningTokens,
		TotalTokens:     usage.TotalTokens,
	}
	record.OutputTokens = record.CandidateTokens + record.ThoughtTokens
	return record.Normalize(), true
}

func first(result gjson.Result, paths []string) (gjson.Result, bool) {
	for _, path := range paths {
		if value := result.Get(path); value.Exists() && value.Type != gjson.Null {
			return value, true
		}
	}
	return gjson.Result{}, false
}
