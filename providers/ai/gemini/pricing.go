package gemini

import (
	"strings"

	"github.com/leofalp/tokenmeter/core/cost"
)

// Model name constants for Gemini models.
const (
	Model25Pro       = "gemini-2.5-pro"
	Model25Flash     = "gemini-2.5-flash"
	Model25FlashLite = "gemini-2.5-flash-lite"

	Model20Flash     = "gemini-2.0-flash"
	Model20FlashLite = "gemini-2.0-flash-lite"

	Model15Pro   = "gemini-1.5-pro"
	Model15Flash = "gemini-1.5-flash"

	Model30ProPreview = "gemini-3-pro-preview"
)

// tiered builds a USD table with a long-context tier above 200k prompt tokens.
// Long rates of zero mean the model has a single tier.
func tiered(inputBase, inputLong, outputBase, outputLong, cacheDiscount float64) cost.PricingTable {
	pricing := cost.DefaultPricing()
	pricing.InputBase = inputBase
	pricing.InputLong = inputLong
	pricing.OutputBase = outputBase
	pricing.OutputLong = outputLong
	pricing.CacheDiscount = cacheDiscount
	return pricing
}

// ModelPricing holds USD rates per million tokens.
// Source: https://ai.google.dev/gemini-api/docs/pricing
var ModelPricing = map[string]cost.PricingTable{
	// Input: $1.25/M (<=200k), $2.50/M (>200k). Output: $10/M, $15/M. Cached: 25%.
	Model25Pro:       tiered(1.25, 2.50, 10.00, 15.00, 0.25),
	Model25Flash:     tiered(0.30, 0, 2.50, 0, 0.25),
	Model25FlashLite: tiered(0.10, 0, 0.40, 0, 0.25),

	Model20Flash:     tiered(0.10, 0, 0.40, 0, 0.25),
	Model20FlashLite: tiered(0.075, 0, 0.30, 0, 0.25),

	Model15Pro:   tiered(1.25, 2.50, 5.00, 10.00, 0.25),
	Model15Flash: tiered(0.075, 0.15, 0.30, 0.60, 0.25),

	Model30ProPreview: tiered(2.00, 4.00, 12.00, 18.00, 0.10),
}

// PricingFor returns the rates for model. Versioned names such as
// "gemini-2.5-pro-preview-05-06" resolve to their family; unknown models get
// the default model's rates.
func PricingFor(model string) cost.PricingTable {
	if pricing, ok := ModelPricing[model]; ok {
		return pricing
	}
	if pricing, ok := ModelPricing[normalizeModelName(model)]; ok {
		return pricing
	}
	return ModelPricing[defaultModel]
}

// normalizeModelName strips the "models/" prefix and version or preview
// suffixes.
func normalizeModelName(model string) string {
	normalized := strings.TrimPrefix(model, "models/")

	for _, marker := range []string{"-preview-", "-exp", "-latest", "-00"} {
		if index := strings.Index(normalized, marker); index > 0 {
			normalized = normalized[:index]
			break
		}
	}

	return normalized
}
