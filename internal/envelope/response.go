package envelope

import (
	"fmt"

	"github.com/roach88/carp/internal/wire"
)

// ResponseCodec encodes and decodes the result of one operation.
type ResponseCodec struct {
	Encode func(result any) (wire.Value, error)
	Decode func(v wire.Value) (any, error)
}

// JSON returns a ResponseCodec for results that encoding/json handles,
// i.e. results without polymorphic members. A nil result encodes as null.
func JSON[R any]() ResponseCodec {
	return Response(
		func(r R) (wire.Value, error) { return wire.From(r) },
		func(v wire.Value) (R, error) {
			var r R
			err := wire.Into(v, &r)
			return r, err
		},
	)
}

// Response builds a ResponseCodec from functions over result type R.
func Response[R any](encode func(R) (wire.Value, error), decode func(wire.Value) (R, error)) ResponseCodec {
	return ResponseCodec{
		Encode: func(result any) (wire.Value, error) {
			if result == nil {
				return wire.Null{}, nil
			}
			r, ok := result.(R)
			if !ok {
				var want R
				return nil, fmt.Errorf("result is %T, want %T", result, want)
			}
			return encode(r)
		},
		Decode: func(v wire.Value) (any, error) {
			return decode(v)
		},
	}
}

// Unit is the ResponseCodec for operations that return nothing. The result
// always encodes as null.
func Unit() ResponseCodec {
	return ResponseCodec{
		Encode: func(any) (wire.Value, error) { return wire.Null{}, nil },
		Decode: func(wire.Value) (any, error) { return nil, nil },
	}
}
