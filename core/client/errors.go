package client

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/leofalp/tokenmeter/providers/ai"
)

var (
	// ErrNotConfigured is returned before any provider call when no API key
	// has been set.
	ErrNotConfigured = errors.New("tokenmeter: API key is not configured")

	// ErrRateLimited marks a terminal HTTP 429 from the provider.
	ErrRateLimited = errors.New("tokenmeter: rate limit exceeded")

	// ErrMalformedRequest marks a terminal HTTP 400 from the provider.
	ErrMalformedRequest = errors.New("tokenmeter: malformed request")
)

// classify maps a terminal provider error onto the package sentinels. The
// original error stays in the chain, so errors.As still finds the
// *ai.ProviderError. Errors without a status are matched on the code in their
// message, the same way retry.IsTransient finds a 503. Anything else is
// returned unchanged.
func classify(err error) error {
	switch statusOf(err) {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	default:
		return err
	}
}

func statusOf(err error) int {
	if err == nil {
		return 0
	}
	if status := ai.HTTPStatus(err); status != 0 {
		return status
	}
	message := err.Error()
	for _, status := range []int{http.StatusTooManyRequests, http.StatusBadRequest} {
		if strings.Contains(message, strconv.Itoa(status)) {
			return status
		}
	}
	return 0
}
