// Package utils provides shared low-level helpers for the provider
// implementations: HTTP request helpers for synchronous and streaming (SSE)
// calls, string truncation for log and error output, a timer for provider
// attempts, and optional request settings.
//
// Key entry points: [DoPostSync] for synchronous JSON round-trips,
// [DoPostStream] together with [SSEScanner] for Server-Sent Events streaming,
// and [StatusError] for non-2xx responses.
package utils
