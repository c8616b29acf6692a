package llmux

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	// ErrValidation indicates a request or message failed validation.
	ErrValidation = errors.New("validation error")

	// ErrStreamClosed indicates an operation on a closed stream.
	ErrStreamClosed = errors.New("stream closed")

	// ErrAborted indicates the stream stopped because its context was
	// canceled. It is a terminal state, not a failure of the upstream.
	ErrAborted = errors.New("stream aborted")

	// ErrUnknownEndpoint indicates a model reference names no configured endpoint.
	ErrUnknownEndpoint = errors.New("unknown endpoint")

	// ErrUnknownModel indicates a model reference could not be resolved.
	ErrUnknownModel = errors.New("unknown model")
)

// HTTPError is returned when an upstream API answers with a non-2xx status.
// It is produced before any event is streamed.
type HTTPError struct {
	Provider   string
	StatusCode int
	Body       string
	// Type and Message are filled when the body is a recognized JSON error
	// envelope.
	Type    string
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		if e.Type != "" {
			return fmt.Sprintf("%s: HTTP %d: %s: %s", e.Provider, e.StatusCode, e.Type, e.Message)
		}
		return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Aborted wraps a context error so callers can match both ErrAborted and
// the original context.Canceled / context.DeadlineExceeded.
func Aborted(provider string, cause error) error {
	return fmt.Errorf("%s: %w: %w", provider, ErrAborted, cause)
}
