// Package cost turns provider-reported token usage into billed tokens and
// money, and keeps running session totals.
//
// [ComputeCost] is a pure function over a [UsageRecord] and a [PricingTable]:
// cached prompt tokens are billed at a discount and prompts above the
// long-context threshold switch to the long-context rates. An [Accountant]
// folds each request into [SessionStats] under a mutex and forwards the
// resulting [Entry] to any registered [Sink], such as a persistent ledger.
//
// Provider metadata arrives in several shapes; [ParseMetadata] reads it with
// ordered field-name candidates so a missing or renamed field degrades to
// zero instead of failing the request.
package cost
