// Package ai defines the provider-agnostic types shared by the executor and
// the provider implementations. Each provider maps [ChatRequest] to its own
// wire format and reports token usage through [Usage], keeping the executor
// and the usage accountant decoupled from vendor-specific details.
//
// [Provider] covers single-shot generation and [StreamProvider] adds
// SSE-based streaming. A [ChatStream] yields [StreamEvent] deltas and
// remembers the last usage event so callers can account for a stream after
// it has been drained.
package ai
