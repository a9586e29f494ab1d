package polymorphic

import "github.com/roach88/carp/internal/wire"

// Unknown captures a variant whose discriminator has no registered codec.
//
// Each base defines one fallback type that embeds Unknown, e.g.
//
//	type UnknownMeasure struct{ polymorphic.Unknown }
//
// Embedding promotes TypeName, so the fallback satisfies Variant, and marks
// the type so the hierarchy re-emits the stored object instead of encoding
// fields. Unknown is immutable: accessors return copies.
type Unknown struct {
	typeName string
	raw      wire.Object
}

// NewUnknown captures raw as received under discriminator typeName.
// raw is copied; later changes by the caller do not affect the wrapper.
func NewUnknown(typeName string, raw wire.Object) Unknown {
	return Unknown{typeName: typeName, raw: raw.Clone()}
}

// TypeName returns the unrecognized discriminator.
func (u Unknown) TypeName() string {
	return u.typeName
}

// Raw returns a copy of the complete object as received, discriminator
// field included.
func (u Unknown) Raw() wire.Object {
	return u.raw.Clone()
}

func (u Unknown) unknownVariant() Unknown {
	return u
}

// unknownVariant is satisfied by every type that embeds Unknown.
type unknownVariant interface {
	unknownVariant() Unknown
}

// IsUnknown reports whether v is an unknown-variant wrapper.
func IsUnknown(v any) bool {
	_, ok := v.(unknownVariant)
	return ok
}

// AsUnknown returns the Unknown embedded in v, if any.
func AsUnknown(v any) (Unknown, bool) {
	u, ok := v.(unknownVariant)
	if !ok {
		return Unknown{}, false
	}
	return u.unknownVariant(), true
}
