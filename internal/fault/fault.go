// Package fault defines the error taxonomy shared by the serialization,
// migration and dispatch layers.
//
// Every failure that crosses a component boundary is a *Error whose Code is
// a stable string. Codes are what golden files and structured error
// responses carry, so they never change once published.
package fault

import (
	"errors"
	"fmt"
)

// Code identifies the error category.
type Code string

const (
	// CodeDuplicateRegistration indicates a second variant was registered
	// under an existing (base, discriminator) pair. Programmer error, fatal at
	// startup.
	CodeDuplicateRegistration Code = "DuplicateRegistrationError"

	// CodeNotFound indicates a discriminator has no registered variant.
	// The polymorphic codec recovers from it with an unknown wrapper.
	CodeNotFound Code = "NotFoundError"

	// CodeMalformedEnvelope indicates a missing or invalid discriminator,
	// version field, or unparseable JSON.
	CodeMalformedEnvelope Code = "MalformedEnvelopeError"

	// CodeUnsupportedVersion indicates no migration path to the current API
	// version exists.
	CodeUnsupportedVersion Code = "UnsupportedVersionError"

	// CodeValidation indicates invalid operation arguments.
	CodeValidation Code = "ValidationError"

	// CodeResourceNotFound indicates a service could not find the requested
	// resource.
	CodeResourceNotFound Code = "ResourceNotFoundError"

	// CodeConflict indicates the request conflicts with current service state.
	CodeConflict Code = "ConflictError"

	// CodeInternal indicates an unexpected failure that is not attributable
	// to the request.
	CodeInternal Code = "InternalError"
)

// Error is the structured error carried across component boundaries.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Details contains additional context (base, discriminator, version...).
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail returns e after setting a detail key.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates an Error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error that wraps cause.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: cause}
}

// CodeOf returns the code of the outermost *Error in err's chain.
// Errors that are not *Error map to CodeInternal.
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
// Uses errors.As to handle wrapped errors.
func Is(err error, code Code) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code == code
	}
	return false
}

// IsServiceError reports whether err is a downstream business-rule failure
// rather than a serialization, migration or validation failure.
func IsServiceError(err error) bool {
	switch CodeOf(err) {
	case CodeResourceNotFound, CodeConflict:
		return true
	default:
		return false
	}
}

// Validation creates a CodeValidation error for the named argument.
func Validation(field, format string, args ...any) *Error {
	return New(CodeValidation, "%s: %s", field, fmt.Sprintf(format, args...)).WithDetail("field", field)
}

// ResourceNotFound creates a CodeResourceNotFound error.
func ResourceNotFound(format string, args ...any) *Error {
	return New(CodeResourceNotFound, format, args...)
}

// Conflict creates a CodeConflict error.
func Conflict(format string, args ...any) *Error {
	return New(CodeConflict, format, args...)
}

// Malformed creates a CodeMalformedEnvelope error.
func Malformed(format string, args ...any) *Error {
	return New(CodeMalformedEnvelope, format, args...)
}
