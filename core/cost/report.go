package cost

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
)

// WriteReport prints the session totals in a human-readable table.
func WriteReport(w io.Writer, stats SessionStats, pricing PricingTable, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	minutes := int(stats.Duration(now).Minutes())
	fmt.Fprintf(tw, "Session\t%d requests over %d min (since %s)\n",
		stats.TotalRequests, minutes, stats.SessionStart.Format(time.DateTime))
	fmt.Fprintf(tw, "Prompt tokens\t%s\n", humanize.Comma(int64(stats.TotalPromptTokens)))
	fmt.Fprintf(tw, "Cached tokens\t%s (%.1f%%)\n",
		humanize.Comma(int64(stats.TotalCachedTokens)), stats.CachingRate()*100)
	fmt.Fprintf(tw, "Output tokens\t%s\n", humanize.Comma(int64(stats.TotalOutputTokens)))
	fmt.Fprintf(tw, "Billed tokens\t%s\n", humanize.CommafWithDigits(stats.TotalBilledTokens, 0))
	fmt.Fprintf(tw, "Saved tokens\t%s\n", humanize.Comma(int64(stats.SavedTokens(pricing.CacheDiscount))))
	fmt.Fprintf(tw, "Total cost\t%s\n", formatMoney(stats.TotalCost, pricing))
	fmt.Fprintf(tw, "Saved by cache\t%s\n", formatMoney(stats.TotalSavedCost, pricing))

	return tw.Flush()
}

// WriteBreakdown prints the cost of a single request.
func WriteBreakdown(w io.Writer, kind Kind, usage UsageRecord, breakdown CostBreakdown, pricing PricingTable) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	tier := "base"
	if breakdown.LongContext {
		tier = "long-context"
	}
	label := string(kind)
	if label == "" {
		label = "request"
	}

	fmt.Fprintf(tw, "Request\t%s (%s rates)\n", label, tier)
	fmt.Fprintf(tw, "Prompt tokens\t%s (cached %s, %.1f%%)\n",
		humanize.Comma(int64(usage.PromptTokens)), humanize.Comma(int64(usage.CachedTokens)), breakdown.CachingRate*100)
	fmt.Fprintf(tw, "Output tokens\t%s (thinking %s)\n",
		humanize.Comma(int64(usage.OutputTokens)), humanize.Comma(int64(usage.ThoughtTokens)))
	fmt.Fprintf(tw, "Billed tokens\t%s\n", humanize.CommafWithDigits(breakdown.BilledTotalTokens, 0))
	fmt.Fprintf(tw, "Input cost\t%s\n", formatMoney(breakdown.InputCost, pricing))
	fmt.Fprintf(tw, "Output cost\t%s\n", formatMoney(breakdown.OutputCost, pricing))
	fmt.Fprintf(tw, "Total cost\t%s\n", formatMoney(breakdown.TotalCost, pricing))

	return tw.Flush()
}

func formatMoney(amount float64, pricing PricingTable) string {
	money := fmt.Sprintf("%.6f %s", amount, pricing.Currency)
	if pricing.DisplayCurrency == "" || pricing.ConversionRate == 0 {
		return money
	}
	return fmt.Sprintf("%s (%s %s)", money,
		humanize.CommafWithDigits(amount*pricing.ConversionRate, 2), pricing.DisplayCurrency)
}
