package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// HeaderOption is an extra request header, applied after the defaults so it
// can override them.
type HeaderOption struct {
	Key   string
	Value string
}

// StatusError is returned for non-2xx responses. Body holds at most
// maxResponseBodySize bytes of the response.
type StatusError struct {
	Code int
	Body []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("non-2xx status %d: %s", e.Code, TruncateString(string(e.Body), MaxMessageLength))
}

// HTTPStatus returns the response status code.
func (e *StatusError) HTTPStatus() int { return e.Code }

// CloseWithLog closes c and logs, rather than returns, any close error.
func CloseWithLog(c io.Closer) {
	if err := c.Close(); err != nil {
		slog.Warn("failed to close response body", "error", err.Error())
	}
}

func newJSONPost(ctx context.Context, url string, apiKey string, body any, headers []HeaderOption) (*http.Request, int, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("error marshaling body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, 0, fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	for _, header := range headers {
		req.Header.Set(header.Key, header.Value)
	}

	return req, len(jsonBody), nil
}

// DoPostSync performs a synchronous HTTP POST request with JSON body and parses the response.
//
// Error Handling Strategy:
//   - Context errors (timeout, cancellation) are propagated immediately
//   - Non-2xx responses return a *StatusError carrying the code and body
//   - Response body close errors are logged but don't override primary errors
//   - JSON parsing errors include response preview for debugging
func DoPostSync[OutputStruct any](ctx context.Context, client *http.Client, url string, apiKey string, body any, headers ...HeaderOption) (*http.Response, *OutputStruct, error) {
	httpClient := client
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	req, requestSize, err := newJSONPost(ctx, url, apiKey, body, headers)
	if err != nil {
		return nil, nil, err
	}

	timer := NewTimer()
	res, err := httpClient.Do(req)
	timer.Stop()
	if err != nil {
		return res, nil, fmt.Errorf("error sending request: %w", err)
	}
	defer CloseWithLog(res.Body)

	respBody, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBodySize))
	if err != nil {
		return nil, nil, fmt.Errorf("error reading response body: %w", err)
	}

	slog.DebugContext(ctx, "http response received",
		"status", res.StatusCode,
		"request_bytes", requestSize,
		"response_bytes", len(respBody),
		"duration", timer.Elapsed(),
	)

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return res, nil, &StatusError{Code: res.StatusCode, Body: respBody}
	}

	var resStruct OutputStruct
	if err = json.Unmarshal(respBody, &resStruct); err != nil {
		return res, nil, fmt.Errorf("error unmarshaling response body (status %d): %w\nResponse preview: %s", res.StatusCode, err, TruncateString(string(respBody), 500))
	}

	return res, &resStruct, nil
}

// requestDeadline returns how long remains before ctx expires, or 0.
func requestDeadline(ctx context.Context) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		return time.Until(deadline)
	}
	return 0
}
