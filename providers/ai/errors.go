package ai

import (
	"errors"
	"fmt"
)

// ErrUsageUnavailable is returned by ChatStream.Usage when the stream never
// carried usage metadata.
var ErrUsageUnavailable = errors.New("usage metadata unavailable")

// ProviderError is a non-2xx answer from a provider API.
type ProviderError struct {
	Provider string // e.g. "gemini"
	Status   int    // HTTP status code
	Reason   string // Provider status string, e.g. "UNAVAILABLE"
	Message  string // Human-readable message from the error body
	Err      error  // Underlying transport error, if any
}

func (e *ProviderError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: status %d (%s): %s", e.Provider, e.Status, e.Reason, e.Message)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Status, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// HTTPStatus returns the HTTP status code of the failed call.
func (e *ProviderError) HTTPStatus() int { return e.Status }

// HTTPStatus extracts an HTTP status code from anything in err's chain that
// exposes one. It returns 0 when none is found.
func HTTPStatus(err error) int {
	var statusErr interface{ HTTPStatus() int }
	if errors.As(err, &statusErr) {
		return statusErr.HTTPStatus()
	}
	return 0
}
