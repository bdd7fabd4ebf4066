package gemini

import "github.com/leofalp/tokenmeter/providers/ai"

// Harm categories accepted by the safetySettings field.
const (
	HarmCategoryHarassment       = "HARM_CATEGORY_HARASSMENT"
	HarmCategoryHateSpeech       = "HARM_CATEGORY_HATE_SPEECH"
	HarmCategorySexuallyExplicit = "HARM_CATEGORY_SEXUALLY_EXPLICIT"
	HarmCategoryDangerousContent = "HARM_CATEGORY_DANGEROUS_CONTENT"
)

// Block thresholds.
const (
	ThresholdOff           = "OFF"
	ThresholdBlockNone     = "BLOCK_NONE"
	ThresholdBlockOnlyHigh = "BLOCK_ONLY_HIGH"
	ThresholdBlockMedium   = "BLOCK_MEDIUM_AND_ABOVE"
	ThresholdBlockLowAndUp = "BLOCK_LOW_AND_ABOVE"
	ThresholdUnspecified   = "HARM_BLOCK_THRESHOLD_UNSPECIFIED"
)

// DefaultSafetySettings turns every harm filter OFF.
func DefaultSafetySettings() []ai.SafetySetting {
	return []ai.SafetySetting{
		{Category: HarmCategoryHarassment, Threshold: ThresholdOff},
		{Category: HarmCategoryHateSpeech, Threshold: ThresholdOff},
		{Category: HarmCategorySexuallyExplicit, Threshold: ThresholdOff},
		{Category: HarmCategoryDangerousContent, Threshold: ThresholdOff},
	}
}
