package journal

import (
	"context"
	"errors"

	"github.com/c360studio/taskjournal/classify"
	"github.com/c360studio/taskjournal/storage"
	"github.com/c360studio/taskjournal/taxonomy"
)

// Class is the user-facing failure taxonomy.
type Class string

const (
	ClassNone                Class = ""
	ClassValidation          Class = "validation"
	ClassUnavailable         Class = "unavailable"
	ClassNotFound            Class = "not_found"
	ClassConstraintViolation Class = "constraint_violation"
	ClassInternal            Class = "internal"
)

// Outcome is what the presentation layer shows after an action.
type Outcome struct {
	Class   Class  `json:"class,omitempty"`
	Message string `json:"message,omitempty"`
	// Retry is set when repeating the same action may succeed.
	Retry bool `json:"retry,omitempty"`
}

// OK reports whether the action succeeded.
func (o Outcome) OK() bool {
	return o.Class == ClassNone
}

// Describe converts any error returned by this package into an Outcome.
// A nil error yields the zero Outcome.
func Describe(err error) Outcome {
	if err == nil {
		return Outcome{}
	}

	if ce, ok := classify.AsError(err); ok {
		switch {
		case ce.IsUnavailable():
			return Outcome{
				Class:   ClassUnavailable,
				Message: "The classifier is not responding. Try again, or fill in the task by hand.",
				Retry:   true,
			}
		case ce.Kind == classify.KindInvalidRequest:
			return Outcome{Class: ClassValidation, Message: "Write something before submitting."}
		default:
			return Outcome{
				Class:   ClassValidation,
				Message: "Couldn't classify that entry. Review the defaults and save it manually.",
			}
		}
	}

	var ee *taxonomy.EnumError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return Outcome{Class: ClassNotFound, Message: "That task no longer exists. It may have been deleted elsewhere."}
	case errors.Is(err, storage.ErrConstraintViolation):
		msg := "That value isn't allowed."
		if errors.As(err, &ee) {
			msg = "\"" + ee.Value + "\" is not a valid " + string(ee.Kind) + "."
		}
		return Outcome{Class: ClassConstraintViolation, Message: msg}
	case errors.Is(err, storage.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return Outcome{Class: ClassUnavailable, Message: "Couldn't reach the database. Please try again.", Retry: true}
	case errors.As(err, &ee):
		return Outcome{Class: ClassValidation, Message: "\"" + ee.Value + "\" is not a valid " + string(ee.Kind) + "."}
	default:
		return Outcome{Class: ClassInternal, Message: "Something went wrong. Please try again.", Retry: true}
	}
}
