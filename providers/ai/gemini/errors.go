package gemini

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/leofalp/tokenmeter/internal/utils"
	"github.com/leofalp/tokenmeter/providers/ai"
)

const providerName = "gemini"

// wrapError turns HTTP failures into *ai.ProviderError. Google error bodies
// look like {"error":{"code":503,"message":"...","status":"UNAVAILABLE"}};
// anything else is kept verbatim as the message.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	var statusErr *utils.StatusError
	if !errors.As(err, &statusErr) {
		return fmt.Errorf("%s: %w", providerName, err)
	}

	providerErr := &ai.ProviderError{
		Provider: providerName,
		Status:   statusErr.Code,
		Message:  string(statusErr.Body),
		Err:      statusErr,
	}

	body := gjson.ParseBytes(statusErr.Body)
	if message := body.Get("error.message"); message.Exists() {
		providerErr.Message = message.String()
	}
	if status := body.Get("error.status"); status.Exists() {
		providerErr.Reason = status.String()
	}
	if providerErr.Message == "" {
		providerErr.Message = fmt.Sprintf("HTTP %d", statusErr.Code)
	}
	providerErr.Message = utils.TruncateString(providerErr.Message, utils.MaxMessageLength)

	return providerErr
}

// streamError converts an error object embedded in an SSE payload, which
// Gemini sends when a stream fails after the headers were written.
func streamError(payload []byte) error {
	errorObject := gjson.GetBytes(payload, "error")
	if !errorObject.IsObject() {
		return nil
	}
	return &ai.ProviderError{
		Provider: providerName,
		Status:   int(errorObject.Get("code").Int()),
		Reason:   errorObject.Get("status").String(),
		Message:  errorObject.Get("message").String(),
	}
}
