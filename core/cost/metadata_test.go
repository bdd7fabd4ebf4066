package cost

import (
	"encoding/json"
	"testing"

	"github.com/leofalp/tokenmeter/providers/ai"
)

// TestParseMetadata covers the accepted payload shapes.
func TestParseMetadata(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   UsageRecord
		wantOK bool
	}{
		{
			name: "camelCase container",
			raw:  `{"usageMetadata":{"promptTokenCount":1000,"cachedContentTokenCount":400,"candidatesTokenCount":150,"thoughtsTokenCount":50,"totalTokenCount":1200}}`,
			want: UsageRecord{PromptTokens: 1000, CachedTokens: 400, OutputTokens: 200, TotalTokens: 1200,
				CandidateTokens: 150, ThoughtTokens: 50},
			wantOK: true,
		},
		{
			name:   "snake_case container without total",
			raw:    `{"usage_metadata":{"prompt_token_count":10,"candidates_token_count":5}}`,
			want:   UsageRecord{PromptTokens: 10, OutputTokens: 5, TotalTokens: 15, CandidateTokens: 5},
			wantOK: true,
		},
		{
			name:   "generic usage container",
			raw:    `{"usage":{"inputTokens":7,"outputTokens":3,"cachedTokens":2}}`,
			want:   UsageRecord{PromptTokens: 7, CachedTokens: 2, OutputTokens: 3, TotalTokens: 10, CandidateTokens: 3},
			wantOK: true,
		},
		{
			name:   "bare usage object",
			raw:    `{"promptTokenCount":4,"totalTokenCount":4}`,
			want:   UsageRecord{PromptTokens: 4, TotalTokens: 4},
			wantOK: true,
		},
		{
			name:   "camelCase wins over snake_case",
			raw:    `{"promptTokenCount":9,"prompt_token_count":1,"candidatesTokenCount":1}`,
			want:   UsageRecord{PromptTokens: 9, OutputTokens: 1, TotalTokens: 10, CandidateTokens: 1},
			wantOK: true,
		},
		{
			name:   "null spelling falls through to the next",
			raw:    `{"usageMetadata":null,"usage_metadata":{"promptTokenCount":null,"prompt_token_count":12,"candidatesTokenCount":3}}`,
			want:   UsageRecord{PromptTokens: 12, OutputTokens: 3, TotalTokens: 15, CandidateTokens: 3},
			wantOK: true,
		},
		{name: "only null counts", raw: `{"usageMetadata":{"promptTokenCount":null,"totalTokenCount":null}}`},
		{name: "no counts", raw: `{"candidates":[{"finishReason":"STOP"}]}`},
		{name: "not json", raw: `usage: 12`},
		{name: "empty", raw: ``},
		{name: "array", raw: `[1,2]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseMetadata([]byte(tt.raw))
			if ok != tt.wantOK {
				t.Fatalf("expected ok=%v, got %v", tt.wantOK, ok)
			}
			if got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

// TestFromUsage_PrefersRaw verifies the raw provider object wins over struct fields.
func TestFromUsage_PrefersRaw(t *testing.T) {
	usage := &ai.Usage{
		PromptTokens: 1,
		Raw:          json.RawMessage(`{"prompt_token_count":500,"candidates_token_count":20}`),
	}

	got, ok := FromUsage(usage)
	if !ok {
		t.Fatal("expected usage")
	}
	if got.PromptTokens != 500 || got.OutputTokens != 20 {
		t.Errorf("expected raw counts, got %+v", got)
	}
}

// TestFromUsage_StructFields verifies the fallback to typed fields.
func TestFromUsage_StructFields(t *testing.T) {
	usage := &ai.Usage{PromptTokens: 100, CompletionTokens: 30, ReasoningTokens: 20, CachedTokens: 40}

	got, ok := FromUsage(usage)
	if !ok {
		t.Fatal("expected usage")
	}
	want := UsageRecord{PromptTokens: 100, CachedTokens: 40, OutputTokens: 50, TotalTokens: 150,
		CandidateTokens: 30, ThoughtTokens: 20}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

// TestFromUsage_Nil verifies nil usage is reported as missing.
func TestFromUsage_Nil(t *testing.T) {
	if _, ok := FromUsage(nil); ok {
		t.Error("expected ok=false for nil usage")
	}
}
