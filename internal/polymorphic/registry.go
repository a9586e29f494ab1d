package polymorphic

import (
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/roach88/carp/internal/fault"
)

// DefaultDiscriminatorField is the reserved field holding the discriminator.
const DefaultDiscriminatorField = "__type"

// BaseType identifies a polymorphic hierarchy.
type BaseType string

// Registry owns the registration tables of every hierarchy created on it.
//
// Thread-safety model:
//   - Registration: serialized by mu (single writer during startup)
//   - Lookups before Freeze: take the read lock
//   - Lookups after Freeze: lock-free, tables never change again
type Registry struct {
	mu     sync.RWMutex
	frozen atomic.Bool

	field  string
	logger *slog.Logger

	// bases maps each base to its registered discriminators, for introspection.
	bases map[BaseType]func() []string
}

// Option configures a Registry.
type Option func(*Registry)

// WithDiscriminatorField sets the reserved discriminator field name.
func WithDiscriminatorField(name string) Option {
	return func(r *Registry) {
		if name != "" {
			r.field = name
		}
	}
}

// WithLogger sets the logger used for registration and unknown-variant events.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		field:  DefaultDiscriminatorField,
		logger: slog.Default(),
		bases:  make(map[BaseType]func() []string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewDiscardRegistry creates a registry that drops all log output.
// Intended for tests.
func NewDiscardRegistry(opts ...Option) *Registry {
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return NewRegistry(opts...)
}

// DiscriminatorField returns the reserved discriminator field name.
func (r *Registry) DiscriminatorField() string {
	return r.field
}

// Freeze ends the registration phase.
// Subsequent registrations fail; lookups stop taking locks.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen.Store(true)
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	return r.frozen.Load()
}

// Bases returns the registered base types in sorted order.
func (r *Registry) Bases() []BaseType {
	unlock := r.readLock()
	defer unlock()

	bases := make([]BaseType, 0, len(r.bases))
	for b := range r.bases {
		bases = append(bases, b)
	}
	slices.Sort(bases)
	return bases
}

// Discriminators returns the discriminators registered for base, sorted.
// Returns nil for an unknown base.
func (r *Registry) Discriminators(base BaseType) []string {
	unlock := r.readLock()
	defer unlock()

	list, ok := r.bases[base]
	if !ok {
		return nil
	}
	return list()
}

// readLock takes the read lock unless the registry is frozen.
// Returns the matching unlock function.
func (r *Registry) readLock() func() {
	if r.frozen.Load() {
		return func() {}
	}
	r.mu.RLock()
	return r.mu.RUnlock
}

// addBase records a new hierarchy. Caller must hold mu.
func (r *Registry) addBase(base BaseType, list func() []string) error {
	if _, exists := r.bases[base]; exists {
		return fault.New(fault.CodeDuplicateRegistration, "base %q already has a hierarchy", base).
			WithDetail("base", string(base))
	}
	r.bases[base] = list
	return nil
}
