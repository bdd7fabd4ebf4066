// Package ledger defines persisted usage: daily rows aggregated per model and
// request kind, fed by a cost.Accountant through the cost.Sink interface.
package ledger

import (
	"context"
	"fmt"
	"io"
	"math"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/leofalp/tokenmeter/core/cost"
)

const microPerUnit = 1_000_000

// Row is the usage of one model and request kind on one UTC day.
type Row struct {
	Day          string    `json:"day"`
	Model        string    `json:"model"`
	Kind         cost.Kind `json:"kind"`
	Requests     int64     `json:"requests"`
	PromptTokens int64     `json:"prompt_tokens"`
	CachedTokens int64     `json:"cached_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	TotalTokens  int64     `json:"total_tokens"`
	CostMicro    int64     `json:"cost_micro"`
}

// Cost returns the row's cost in the pricing currency.
func (r Row) Cost() float64 {
	return FromMicro(r.CostMicro)
}

// Totals aggregates every row in a ledger.
type Totals struct {
	Requests     int64  `json:"requests"`
	PromptTokens int64  `json:"prompt_tokens"`
	CachedTokens int64  `json:"cached_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	TotalTokens  int64  `json:"total_tokens"`
	CostMicro    int64  `json:"cost_micro"`
	FirstDay     string `json:"first_day,omitempty"`
	LastDay      string `json:"last_day,omitempty"`
}

// Cost returns the total cost in the pricing currency.
func (t Totals) Cost() float64 {
	return FromMicro(t.CostMicro)
}

// Ledger persists accountant entries and reads them back.
type Ledger interface {
	cost.Sink

	// DailyReport returns the rows of day (YYYY-MM-DD), ordered by model and kind.
	DailyReport(ctx context.Context, day string) ([]Row, error)

	// Totals sums every row.
	Totals(ctx context.Context) (Totals, error)

	// Reset deletes every row.
	Reset(ctx context.Context) error

	Close() error
}

// DayKey returns the UTC day t falls on.
func DayKey(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

// ToMicro converts an amount to integer millionths, rounding to nearest.
func ToMicro(amount float64) int64 {
	return int64(math.Round(amount * microPerUnit))
}

// FromMicro converts integer millionths back to an amount.
func FromMicro(micro int64) float64 {
	return float64(micro) / microPerUnit
}

// WriteRows prints rows and their sum as a table, amounts in currency.
func WriteRows(w io.Writer, rows []Row, currency string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "DAY\tMODEL\tKIND\tREQUESTS\tPROMPT\tCACHED\tOUTPUT\tCOST")
	var sum int64
	for _, row := range rows {
		sum += row.CostMicro
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t%.6f %s\n",
			row.Day, row.Model, row.Kind, row.Requests,
			humanize.Comma(row.PromptTokens), humanize.Comma(row.CachedTokens), humanize.Comma(row.OutputTokens),
			row.Cost(), currency)
	}
	fmt.Fprintf(tw, "\t\t\t\t\t\t\t%.6f %s\n", FromMicro(sum), currency)

	return tw.Flush()
}
