package classify

import (
	"errors"
	"fmt"
)

// ErrorKind identifies why a classification failed.
type ErrorKind string

const (
	// KindInvalidRequest means the entry itself was unusable (empty).
	KindInvalidRequest ErrorKind = "invalid_request"
	// KindMalformedResponse means the model output was not a JSON object.
	KindMalformedResponse ErrorKind = "malformed_response"
	// KindMissingField means type or category was absent from the output.
	KindMissingField ErrorKind = "missing_field"
	// KindInvalidEnumValue means a taxonomy field held an unknown label.
	KindInvalidEnumValue ErrorKind = "invalid_enum_value"
	// KindServiceUnavailable covers network failures, timeouts, missing
	// credentials and provider errors.
	KindServiceUnavailable ErrorKind = "service_unavailable"
	// KindEmptyResponse means the model answered with no content.
	KindEmptyResponse ErrorKind = "empty_response"
)

// Error is the typed failure returned by Classify.
type Error struct {
	Kind  ErrorKind
	Field string // set for MissingField and InvalidEnumValue
	Value string // offending value for InvalidEnumValue
	Err   error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindInvalidEnumValue:
		return fmt.Sprintf("classify: invalid %s %q", e.Field, e.Value)
	case KindMissingField:
		return fmt.Sprintf("classify: missing %s", e.Field)
	}
	if e.Err != nil {
		return fmt.Sprintf("classify: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("classify: %s", e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsValidation reports whether the request or the model's answer had an
// invalid shape. Callers fall back to a manual draft.
func (e *Error) IsValidation() bool {
	switch e.Kind {
	case KindInvalidRequest, KindMalformedResponse, KindMissingField, KindInvalidEnumValue:
		return true
	}
	return false
}

// IsUnavailable reports whether the model could not be reached or said nothing.
// Callers should offer a retry.
func (e *Error) IsUnavailable() bool {
	return e.Kind == KindServiceUnavailable || e.Kind == KindEmptyResponse
}

// AsError extracts a *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// IsValidation reports whether err is a classification validation failure.
func IsValidation(err error) bool {
	ce, ok := AsError(err)
	return ok && ce.IsValidation()
}

// IsUnavailable reports whether err is a classification availability failure.
func IsUnavailable(err error) bool {
	ce, ok := AsError(err)
	return ok && ce.IsUnavailable()
}
