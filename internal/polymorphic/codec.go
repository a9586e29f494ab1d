package polymorphic

import (
	"fmt"

	"github.com/roach88/carp/internal/wire"
)

// Variant is implemented by every concrete type of a polymorphic hierarchy.
// TypeName returns the variant's stable discriminator. It must not depend on
// the receiver's field values and must be safe to call on a zero value.
type Variant interface {
	TypeName() string
}

// Codec encodes and decodes the fields of one variant.
// The discriminator field is added and stripped by the Hierarchy; codecs only
// ever see the remaining fields.
type Codec[T Variant] interface {
	Encode(v T) (wire.Object, error)
	Decode(obj wire.Object) (T, error)
}

// sampler is implemented by codecs that can produce an empty instance,
// which lets Register check the discriminator eagerly.
type sampler[T Variant] interface {
	sample() T
}

// structCodec maps a variant through encoding/json struct tags.
type structCodec[T Variant] struct {
	newFn func() T
}

// StructCodec returns a codec for a leaf variant whose fields are plain
// encoding/json data. newFn must return a fresh pointer to the concrete type,
// e.g. func() Measure { return &PhoneSensorMeasure{} }.
//
// Variants holding other polymorphic values need Typed codecs instead, since
// encoding/json cannot see their discriminators.
func StructCodec[T Variant](newFn func() T) Codec[T] {
	return structCodec[T]{newFn: newFn}
}

func (c structCodec[T]) Encode(v T) (wire.Object, error) {
	return wire.FromObject(v)
}

func (c structCodec[T]) Decode(obj wire.Object) (T, error) {
	v := c.newFn()
	if err := wire.Into(obj, v); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

func (c structCodec[T]) sample() T {
	return c.newFn()
}

// typedCodec adapts functions over a concrete variant type V to base T.
type typedCodec[T Variant, V Variant] struct {
	encode func(V) (wire.Object, error)
	decode func(wire.Object) (V, error)
}

// Typed returns a codec built from hand-written functions over concrete
// variant type V. V must implement T; this is checked at runtime on first use
// because Go constraints cannot express it.
//
//	polymorphic.Typed[Task](encodeBackgroundTask, decodeBackgroundTask)
func Typed[T Variant, V Variant](encode func(V) (wire.Object, error), decode func(wire.Object) (V, error)) Codec[T] {
	return typedCodec[T, V]{encode: encode, decode: decode}
}

func (c typedCodec[T, V]) Encode(v T) (wire.Object, error) {
	concrete, ok := any(v).(V)
	if !ok {
		var want V
		return nil, fmt.Errorf("codec for %T cannot encode %T", want, v)
	}
	return c.encode(concrete)
}

func (c typedCodec[T, V]) Decode(obj wire.Object) (T, error) {
	var zero T
	concrete, err := c.decode(obj)
	if err != nil {
		return zero, err
	}
	v, ok := any(concrete).(T)
	if !ok {
		return zero, fmt.Errorf("decoded %T does not implement the base interface", concrete)
	}
	return v, nil
}
