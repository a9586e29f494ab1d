package envelope

import (
	"context"
	"errors"

	"github.com/roach88/carp/internal/fault"
	"github.com/roach88/carp/internal/polymorphic"
)

// Request is one operation invocation against a service of type S.
//
// TypeName returns the operation discriminator, e.g.
// "dk.cachet.carp.data.infrastructure.DataStreamServiceRequest.GetDataStream".
type Request[S any] interface {
	polymorphic.Variant

	// Validate checks the arguments before invocation. Failures should be
	// fault.CodeValidation errors; anything else is wrapped into one.
	Validate() error

	// InvokeOn calls the service method matching the operation.
	InvokeOn(ctx context.Context, service S) (any, error)
}

// UnknownRequest is the fallback for operation discriminators the service
// does not expose. It cannot be invoked.
type UnknownRequest[S any] struct {
	polymorphic.Unknown
}

// Validate always fails: the operation is not part of the service.
func (r *UnknownRequest[S]) Validate() error {
	return fault.Malformed("unknown operation %q", r.TypeName()).WithDetail("operation", r.TypeName())
}

// InvokeOn always fails: the operation is not part of the service.
func (r *UnknownRequest[S]) InvokeOn(context.Context, S) (any, error) {
	return nil, r.Validate()
}

// validate runs req.Validate and normalizes its error into the validation
// category.
func validate[S any](req Request[S]) error {
	err := req.Validate()
	if err == nil {
		return nil
	}
	var fe *fault.Error
	if !errors.As(err, &fe) {
		return fault.Wrap(fault.CodeValidation, err, "invalid %s request", req.TypeName())
	}
	return err
}
