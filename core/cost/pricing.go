package cost

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultLongContextThreshold is the prompt size above which long-context
// rates apply.
const DefaultLongContextThreshold = 200_000

// ErrInvalidPricing is returned when a pricing table fails validation.
var ErrInvalidPricing = errors.New("invalid pricing table")

// PricingTable holds per-million-token rates in Currency and the conversion
// used to display costs in DisplayCurrency.
//
// Example usage:
//
//	pricing := cost.DefaultPricing()
//	pricing.ConversionRate = 1400
type PricingTable struct {
	Currency string `yaml:"currency" json:"currency"`

	InputBase  float64 `yaml:"input_base" json:"input_base"`   // per 1M prompt tokens, prompt <= threshold
	InputLong  float64 `yaml:"input_long" json:"input_long"`   // per 1M prompt tokens, prompt > threshold
	OutputBase float64 `yaml:"output_base" json:"output_base"` // per 1M output tokens, prompt <= threshold
	OutputLong float64 `yaml:"output_long" json:"output_long"` // per 1M output tokens, prompt > threshold

	// CacheDiscount is the fraction of the input price still billed for a
	// cached prompt token, in [0,1].
	CacheDiscount float64 `yaml:"cache_discount" json:"cache_discount"`

	// LongContextThreshold in prompt tokens; 0 disables the long-context tier.
	LongContextThreshold int `yaml:"long_context_threshold" json:"long_context_threshold"`

	DisplayCurrency string  `yaml:"display_currency" json:"display_currency"`
	ConversionRate  float64 `yaml:"conversion_rate" json:"conversion_rate"` // DisplayCurrency units per Currency unit
}

// DefaultPricing returns the Gemini 2.5 Pro rates in USD with a KRW display
// conversion.
func DefaultPricing() PricingTable {
	return PricingTable{
		Currency:             "USD",
		InputBase:            1.25,
		InputLong:            2.50,
		OutputBase:           10.00,
		OutputLong:           15.00,
		CacheDiscount:        0.25,
		LongContextThreshold: DefaultLongContextThreshold,
		DisplayCurrency:      "KRW",
		ConversionRate:       1380,
	}
}

// IsLongContext reports whether a prompt of promptTokens is billed at the
// long-context rates.
func (p PricingTable) IsLongContext(promptTokens int) bool {
	return p.LongContextThreshold > 0 && promptTokens > p.LongContextThreshold
}

// rates returns the input and output rates for the given prompt size. A long
// tier left at zero falls back to the base rate.
func (p PricingTable) rates(promptTokens int) (input, output float64) {
	if !p.IsLongContext(promptTokens) {
		return p.InputBase, p.OutputBase
	}
	input, output = p.InputLong, p.OutputLong
	if input == 0 {
		input = p.InputBase
	}
	if output == 0 {
		output = p.OutputBase
	}
	return input, output
}

// Validate checks that rates are non-negative and the cache discount is a
// fraction.
func (p PricingTable) Validate() error {
	rates := map[string]float64{
		"input_base":      p.InputBase,
		"input_long":      p.InputLong,
		"output_base":     p.OutputBase,
		"output_long":     p.OutputLong,
		"conversion_rate": p.ConversionRate,
	}
	for name, rate := range rates {
		if rate < 0 {
			return fmt.Errorf("%w: %s is negative (%g)", ErrInvalidPricing, name, rate)
		}
	}
	if p.CacheDiscount < 0 || p.CacheDiscount > 1 {
		return fmt.Errorf("%w: cache_discount %g outside [0,1]", ErrInvalidPricing, p.CacheDiscount)
	}
	if p.LongContextThreshold < 0 {
		return fmt.Errorf("%w: long_context_threshold is negative", ErrInvalidPricing)
	}
	return nil
}

// LoadPricing reads a YAML pricing file. Fields absent from the file keep
// their DefaultPricing values.
func LoadPricing(path string) (PricingTable, error) {
	pricing := DefaultPricing()

	data, err := os.ReadFile(path)
	if err != nil {
		return pricing, fmt.Errorf("read pricing file: %w", err)
	}
	if err := yaml.Unmarshal(data, &pricing); err != nil {
		return pricing, fmt.Errorf("parse pricing file %s: %w", path, err)
	}
	if err := pricing.Validate(); err != nil {
		return pricing, err
	}
	return pricing, nil
}
