package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrMissingCredentials is returned when a provider that requires an API key
// has none configured. It is always wrapped as a fatal error.
var ErrMissingCredentials = errors.New("missing provider credentials")

// Error is a failed completion. Transient errors may succeed when the same
// endpoint is tried again; fatal ones will not.
type Error struct {
	Transient bool
	// Status is the provider's HTTP status, zero when no response arrived.
	Status int
	err    error
}

func (e *Error) Error() string {
	return e.err.Error()
}

func (e *Error) Unwrap() error {
	return e.err
}

// NewTransientError wraps err as retryable.
func NewTransientError(err error) error {
	return &Error{Transient: true, err: err}
}

// NewFatalError wraps err as non-retryable.
func NewFatalError(err error) error {
	return &Error{err: err}
}

// statusError classifies a non-2xx provider response. Throttling, timeouts
// and server errors are transient; auth and request errors are fatal.
func statusError(status int, body []byte) error {
	msg := string(body)
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	transient := status == http.StatusTooManyRequests ||
		status == http.StatusRequestTimeout ||
		status >= 500
	return &Error{
		Transient: transient,
		Status:    status,
		err:       fmt.Errorf("LLM API error (status %d): %s", status, msg),
	}
}

// IsTransient reports whether err is a retryable completion error.
func IsTransient(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Transient
}

// IsFatal reports whether err is a non-retryable completion error.
func IsFatal(err error) bool {
	var e *Error
	return errors.As(err, &e) && !e.Transient
}

// StatusOf returns the provider HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}
