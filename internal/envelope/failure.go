package envelope

import (
	"errors"

	"github.com/roach88/carp/internal/fault"
	"github.com/roach88/carp/internal/wire"
)

// Failure is the structured error response returned instead of a result.
// Type is the stable error discriminator, never a stack trace.
type Failure struct {
	Type    fault.Code `json:"__type"`
	Message string     `json:"message"`
}

// FailureOf describes err as a Failure.
func FailureOf(err error) Failure {
	var fe *fault.Error
	if errors.As(err, &fe) {
		return Failure{Type: fe.Code, Message: fe.Message}
	}
	return Failure{Type: fault.CodeInternal, Message: err.Error()}
}

// Error implements error so a decoded Failure can be returned as one.
func (f Failure) Error() string {
	return string(f.Type) + ": " + f.Message
}

// Err converts the failure back into a *fault.Error.
func (f Failure) Err() *fault.Error {
	return fault.New(f.Type, "%s", f.Message)
}

// Object returns the wire form of f.
func (f Failure) Object() wire.Object {
	return wire.Object{
		"__type":  wire.String(f.Type),
		"message": wire.String(f.Message),
	}
}

// Marshal returns the deterministic bytes of f.
func (f Failure) Marshal() []byte {
	// Two string fields cannot fail to marshal.
	data, _ := wire.Marshal(f.Object())
	return data
}

// ParseFailure decodes a structured error response.
// ok is false when data is not one.
func ParseFailure(data []byte) (Failure, bool) {
	obj, err := wire.ParseObject(data)
	if err != nil || len(obj) != 2 {
		return Failure{}, false
	}
	code, ok1 := obj.String("__type")
	msg, ok2 := obj.String("message")
	if !ok1 || !ok2 {
		return Failure{}, false
	}
	return Failure{Type: fault.Code(code), Message: msg}, true
}
