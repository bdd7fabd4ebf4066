package cost

import "fmt"

const tokensPerMillion = 1_000_000.0

// UsageRecord is the token usage of one request as reported by the provider.
// OutputTokens includes thinking tokens.
type UsageRecord struct {
	PromptTokens int `json:"prompt_tokens"`
	CachedTokens int `json:"cached_tokens"` // subset of PromptTokens
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`

	CandidateTokens int `json:"candidate_tokens,omitempty"`
	ThoughtTokens   int `json:"thought_tokens,omitempty"`
}

// Normalize clamps negative counts to zero and CachedTokens to PromptTokens.
// TotalTokens falls back to prompt + output when missing.
func (u UsageRecord) Normalize() UsageRecord {
	u.PromptTokens = max(u.PromptTokens, 0)
	u.CachedTokens = min(max(u.CachedTokens, 0), u.PromptTokens)
	u.OutputTokens = max(u.OutputTokens, 0)
	u.CandidateTokens = max(u.CandidateTokens, 0)
	u.ThoughtTokens = max(u.ThoughtTokens, 0)
	if u.TotalTokens <= 0 {
		u.TotalTokens = u.PromptTokens + u.OutputTokens
	}
	return u
}

// CostBreakdown is the priced result for one request. Amounts without a
// suffix are in the pricing currency, *Converted ones in the display currency.
type CostBreakdown struct {
	BilledInputTokens float64 `json:"billed_input_tokens"`
	BilledTotalTokens float64 `json:"billed_total_tokens"`

	InputCost  float64 `json:"input_cost"`
	OutputCost float64 `json:"output_cost"`
	TotalCost  float64 `json:"total_cost"`

	InputCostConverted  float64 `json:"input_cost_converted"`
	OutputCostConverted float64 `json:"output_cost_converted"`
	TotalCostConverted  float64 `json:"total_cost_converted"`

	LongContext bool    `json:"long_context"`
	CachingRate float64 `json:"caching_rate"` // cached / prompt, 0..1
	SavedTokens float64 `json:"saved_tokens"` // cached tokens not billed thanks to the discount
	SavedCost   float64 `json:"saved_cost"`   // cost without cache minus TotalCost
}

// ComputeCost prices usage against pricing. It has no side effects.
func ComputeCost(usage UsageRecord, pricing PricingTable) CostBreakdown {
	usage = usage.Normalize()

	cached := float64(usage.CachedTokens)
	uncached := float64(usage.PromptTokens - usage.CachedTokens)
	billedInput := uncached + cached*pricing.CacheDiscount

	inputRate, outputRate := pricing.rates(usage.PromptTokens)

	breakdown := CostBreakdown{
		BilledInputTokens: billedInput,
		BilledTotalTokens: billedInput + float64(usage.OutputTokens),
		InputCost:         billedInput / tokensPerMillion * inputRate,
		OutputCost:        float64(usage.OutputTokens) / tokensPerMillion * outputRate,
		LongContext:       pricing.IsLongContext(usage.PromptTokens),
		SavedTokens:       cached * (1 - pricing.CacheDiscount),
	}
	breakdown.TotalCost = breakdown.InputCost + breakdown.OutputCost
	breakdown.SavedCost = breakdown.SavedTokens / tokensPerMillion * inputRate

	breakdown.InputCostConverted = breakdown.InputCost * pricing.ConversionRate
	breakdown.OutputCostConverted = breakdown.OutputCost * pricing.ConversionRate
	breakdown.TotalCostConverted = breakdown.TotalCost * pricing.ConversionRate

	if usage.PromptTokens > 0 {
		breakdown.CachingRate = cached / float64(usage.PromptTokens)
	}

	return breakdown
}

// String returns a short single-line summary of the breakdown.
func (b CostBreakdown) String() string {
	return fmt.Sprintf("billed %.0f tokens, cost %.6f (input %.6f, output %.6f)",
		b.BilledTotalTokens, b.TotalCost, b.InputCost, b.OutputCost)
}
