package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure
type Kind string

const (
	KindValidation    Kind = "validation_error"
	KindNoIntentMatch Kind = "no_intent_match"
	KindUnsafeSQL     Kind = "unsafe_sql"
	KindExecution     Kind = "execution_error"
	KindRender        Kind = "render_error"
	KindStreamAborted Kind = "stream_aborted"
)

// GenericFailureMessage is shown for execution and render failures
const GenericFailureMessage = "The query could not be completed. Please try rephrasing your question."

// Error is a pipeline failure. Message is safe to show to end users;
// Err keeps the underlying cause for logs only.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation creates a ValidationError
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// NoIntentMatch creates a NoIntentMatch error
func NoIntentMatch(err error) *Error {
	return &Error{
		Kind:    KindNoIntentMatch,
		Message: "I could not understand that question. Try asking about total sales, RoAS, CPC, impressions or product eligibility.",
		Err:     err,
	}
}

// UnsafeSQL creates an UnsafeSQLError
func UnsafeSQL(reason string) *Error {
	return &Error{Kind: KindUnsafeSQL, Message: GenericFailureMessage, Err: errors.New(reason)}
}

// Execution creates an ExecutionError with a sanitized message
func Execution(err error) *Error {
	return &Error{Kind: KindExecution, Message: GenericFailureMessage, Err: err}
}

// Render creates a RenderError
func Render(err error) *Error {
	return &Error{Kind: KindRender, Message: GenericFailureMessage, Err: err}
}

// StreamAborted creates a StreamAborted error
func StreamAborted(err error) *Error {
	return &Error{Kind: KindStreamAborted, Message: "stream aborted by consumer", Err: err}
}

// KindOf returns the kind of err, or "" if err is not an *Error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err is an *Error of the given kind
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// PublicMessage returns the user-facing message for err. Errors outside
// the taxonomy never leak their text.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return GenericFailureMessage
}
