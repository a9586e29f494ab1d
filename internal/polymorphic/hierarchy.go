package polymorphic

import (
	"fmt"
	"slices"

	"github.com/roach88/carp/internal/fault"
	"github.com/roach88/carp/internal/wire"
)

// Hierarchy is the registration table and codec for one polymorphic base.
type Hierarchy[T Variant] struct {
	base     BaseType
	registry *Registry
	wrap     func(Unknown) T
	variants map[string]Codec[T]
}

// NewHierarchy creates the hierarchy for base on r.
// wrap builds the base's fallback type from an Unknown, e.g.
//
//	func(u polymorphic.Unknown) Measure { return &UnknownMeasure{u} }
//
// Fails if base already has a hierarchy or r is frozen.
func NewHierarchy[T Variant](r *Registry, base BaseType, wrap func(Unknown) T) (*Hierarchy[T], error) {
	if wrap == nil {
		return nil, fmt.Errorf("hierarchy %q: unknown-variant wrapper is required", base)
	}

	h := &Hierarchy[T]{
		base:     base,
		registry: r,
		wrap:     wrap,
		variants: make(map[string]Codec[T]),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen.Load() {
		return nil, errFrozen(base, "")
	}
	if err := r.addBase(base, h.sortedDiscriminators); err != nil {
		return nil, err
	}
	return h, nil
}

// Base returns the hierarchy's base type.
func (h *Hierarchy[T]) Base() BaseType {
	return h.base
}

// Discriminators returns the registered discriminators, sorted.
func (h *Hierarchy[T]) Discriminators() []string {
	return h.registry.Discriminators(h.base)
}

// Register adds the codec for discriminator.
//
// Fails with fault.CodeDuplicateRegistration if the discriminator is already
// registered; the first registration stays active. A frozen registry rejects
// every registration. When the codec can produce a sample instance, its
// TypeName must equal discriminator.
func (h *Hierarchy[T]) Register(discriminator string, codec Codec[T]) error {
	if discriminator == "" {
		return fmt.Errorf("hierarchy %q: discriminator is required", h.base)
	}
	if codec == nil {
		return fmt.Errorf("hierarchy %q: codec for %q is required", h.base, discriminator)
	}

	r := h.registry
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen.Load() {
		return errFrozen(h.base, discriminator)
	}
	if s, ok := codec.(sampler[T]); ok {
		if got := s.sample().TypeName(); got != discriminator {
			return fault.New(fault.CodeInternal,
				"hierarchy %q: codec registered as %q produces variants named %q", h.base, discriminator, got)
		}
	}
	if _, exists := h.variants[discriminator]; exists {
		return fault.New(fault.CodeDuplicateRegistration,
			"variant %q already registered for base %q", discriminator, h.base).
			WithDetail("base", string(h.base)).
			WithDetail("discriminator", discriminator)
	}
	h.variants[discriminator] = codec

	r.logger.Debug("variant registered", "base", h.base, "discriminator", discriminator)
	return nil
}

// MustRegister is like Register but panics on error.
// Intended for startup registration tables.
func (h *Hierarchy[T]) MustRegister(discriminator string, codec Codec[T]) {
	if err := h.Register(discriminator, codec); err != nil {
		panic(err)
	}
}

// Lookup returns the codec registered for discriminator.
// Fails with fault.CodeNotFound when there is none.
func (h *Hierarchy[T]) Lookup(discriminator string) (Codec[T], error) {
	unlock := h.registry.readLock()
	codec, ok := h.variants[discriminator]
	unlock()

	if !ok {
		return nil, fault.New(fault.CodeNotFound, "no variant %q registered for base %q", discriminator, h.base).
			WithDetail("base", string(h.base)).
			WithDetail("discriminator", discriminator)
	}
	return codec, nil
}

// Registered reports whether discriminator has a codec.
func (h *Hierarchy[T]) Registered(discriminator string) bool {
	_, err := h.Lookup(discriminator)
	return err == nil
}

// DiscriminatorOf returns the discriminator of v.
// Known variants must be registered; unknown wrappers report the
// discriminator they were decoded with.
func (h *Hierarchy[T]) DiscriminatorOf(v T) (string, error) {
	if any(v) == nil {
		return "", fmt.Errorf("hierarchy %q: nil variant", h.base)
	}
	name := v.TypeName()
	if IsUnknown(v) {
		return name, nil
	}
	if _, err := h.Lookup(name); err != nil {
		return "", err
	}
	return name, nil
}

// Encode serializes v with its discriminator.
// Unknown wrappers re-emit their stored object verbatim.
func (h *Hierarchy[T]) Encode(v T) (wire.Object, error) {
	if any(v) == nil {
		return nil, fmt.Errorf("hierarchy %q: nil variant", h.base)
	}

	field := h.registry.field
	if u, ok := AsUnknown(v); ok {
		obj := u.Raw()
		obj[field] = wire.String(u.TypeName())
		return obj, nil
	}

	name := v.TypeName()
	codec, err := h.Lookup(name)
	if err != nil {
		return nil, err
	}

	obj, err := codec.Encode(v)
	if err != nil {
		return nil, fmt.Errorf("encode %q: %w", name, err)
	}
	if obj == nil {
		obj = wire.Object{}
	}
	if _, clash := obj[field]; clash {
		return nil, fault.New(fault.CodeInternal, "encode %q: variant field collides with discriminator %q", name, field)
	}
	obj[field] = wire.String(name)
	return obj, nil
}

// Decode deserializes obj, falling back to the unknown wrapper when the
// discriminator has no registered variant.
//
// Fails with fault.CodeMalformedEnvelope when the discriminator field is
// missing or not a non-empty string, or when a known variant's fields do not
// decode.
func (h *Hierarchy[T]) Decode(obj wire.Object) (T, error) {
	return h.decode(obj, true)
}

// DecodeKnown is like Decode but fails with fault.CodeNotFound instead of
// wrapping unknown discriminators. Used where an unknown type cannot be
// acted upon, e.g. request envelopes.
func (h *Hierarchy[T]) DecodeKnown(obj wire.Object) (T, error) {
	return h.decode(obj, false)
}

// DecodeValue is like Decode for an arbitrary JSON value, which must be an
// object.
func (h *Hierarchy[T]) DecodeValue(v wire.Value) (T, error) {
	obj, ok := v.(wire.Object)
	if !ok {
		var zero T
		return zero, fault.Malformed("%s: expected object, got %s", h.base, wire.KindOf(v)).
			WithDetail("base", string(h.base))
	}
	return h.Decode(obj)
}

func (h *Hierarchy[T]) decode(obj wire.Object, allowUnknown bool) (T, error) {
	var zero T

	discriminator, err := h.discriminator(obj)
	if err != nil {
		return zero, err
	}

	codec, err := h.Lookup(discriminator)
	if err != nil {
		if !allowUnknown {
			return zero, err
		}
		h.registry.logger.Warn("unknown variant decoded",
			"base", h.base,
			"discriminator", discriminator,
		)
		return h.wrap(NewUnknown(discriminator, obj)), nil
	}

	v, err := codec.Decode(obj.Without(h.registry.field))
	if err != nil {
		return zero, fault.Wrap(fault.CodeMalformedEnvelope, err, "decode %q", discriminator).
			WithDetail("base", string(h.base)).
			WithDetail("discriminator", discriminator)
	}
	if any(v) == nil {
		return zero, fault.New(fault.CodeInternal, "decode %q: codec returned nil", discriminator)
	}
	if got := v.TypeName(); got != discriminator {
		return zero, fault.New(fault.CodeInternal,
			"decode %q: codec produced variant named %q", discriminator, got)
	}
	return v, nil
}

func (h *Hierarchy[T]) discriminator(obj wire.Object) (string, error) {
	field := h.registry.field
	raw, ok := obj[field]
	if !ok {
		return "", fault.Malformed("%s: missing discriminator field %q", h.base, field).
			WithDetail("base", string(h.base))
	}
	s, ok := raw.(wire.String)
	if !ok || s == "" {
		return "", fault.Malformed("%s: discriminator field %q must be a non-empty string, got %s",
			h.base, field, wire.KindOf(raw)).
			WithDetail("base", string(h.base))
	}
	return string(s), nil
}

// Marshal encodes v to JSON bytes.
func (h *Hierarchy[T]) Marshal(v T) ([]byte, error) {
	obj, err := h.Encode(v)
	if err != nil {
		return nil, err
	}
	return wire.Marshal(obj)
}

// Unmarshal decodes JSON bytes.
func (h *Hierarchy[T]) Unmarshal(data []byte) (T, error) {
	v, err := wire.Parse(data)
	if err != nil {
		var zero T
		return zero, fault.Wrap(fault.CodeMalformedEnvelope, err, "%s", h.base)
	}
	return h.DecodeValue(v)
}

// EncodeList encodes each element in order.
func (h *Hierarchy[T]) EncodeList(vs []T) (wire.Array, error) {
	arr := make(wire.Array, len(vs))
	for i, v := range vs {
		obj, err := h.Encode(v)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		arr[i] = obj
	}
	return arr, nil
}

// DecodeList decodes a JSON array element-wise. Each element independently
// falls back to the unknown wrapper; one unknown element never fails the
// list. JSON null decodes to an empty list.
func (h *Hierarchy[T]) DecodeList(v wire.Value) ([]T, error) {
	if _, isNull := v.(wire.Null); isNull || v == nil {
		return []T{}, nil
	}
	arr, ok := v.(wire.Array)
	if !ok {
		return nil, fault.Malformed("list of %s: expected array, got %s", h.base, wire.KindOf(v))
	}

	out := make([]T, len(arr))
	for i, elem := range arr {
		decoded, err := h.DecodeValue(elem)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out[i] = decoded
	}
	return out, nil
}

// EncodeMap encodes each value of m under its key.
func (h *Hierarchy[T]) EncodeMap(m map[string]T) (wire.Object, error) {
	obj := make(wire.Object, len(m))
	for k, v := range m {
		enc, err := h.Encode(v)
		if err != nil {
			return nil, fmt.Errorf("[%q]: %w", k, err)
		}
		obj[k] = enc
	}
	return obj, nil
}

// DecodeMap decodes a JSON object whose values are all of this base.
// JSON null decodes to an empty map.
func (h *Hierarchy[T]) DecodeMap(v wire.Value) (map[string]T, error) {
	if _, isNull := v.(wire.Null); isNull || v == nil {
		return map[string]T{}, nil
	}
	obj, ok := v.(wire.Object)
	if !ok {
		return nil, fault.Malformed("map of %s: expected object, got %s", h.base, wire.KindOf(v))
	}

	out := make(map[string]T, len(obj))
	for _, k := range obj.SortedKeys() {
		decoded, err := h.DecodeValue(obj[k])
		if err != nil {
			return nil, fmt.Errorf("[%q]: %w", k, err)
		}
		out[k] = decoded
	}
	return out, nil
}

func (h *Hierarchy[T]) sortedDiscriminators() []string {
	names := make([]string, 0, len(h.variants))
	for name := range h.variants {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func errFrozen(base BaseType, discriminator string) error {
	err := fault.New(fault.CodeInternal, "registry is frozen: cannot register %q for base %q", discriminator, base)
	if discriminator == "" {
		err = fault.New(fault.CodeInternal, "registry is frozen: cannot add base %q", base)
	}
	return err
}
