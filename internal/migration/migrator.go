package migration

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/carp/internal/apiversion"
	"github.com/roach88/carp/internal/fault"
	"github.com/roach88/carp/internal/wire"
)

// DefaultVersionField is the request field holding the caller's API version.
const DefaultVersionField = "apiVersion"

// AllOperations keys a transform that applies to every operation in a Step.
// Operation-specific transforms run first.
const AllOperations = "*"

// Transform rewrites a request object.
type Transform func(obj wire.Object) (wire.Object, error)

// ResponseTransform rewrites a response value. Responses are not always
// objects: list operations return arrays, and some return null.
type ResponseTransform func(v wire.Value) (wire.Value, error)

// Step bridges two adjacent API versions.
type Step struct {
	From apiversion.Version
	To   apiversion.Version

	// Requests maps operation discriminators, as known at From, to the
	// transform lifting the request into the To shape.
	Requests map[string]Transform

	// Renames maps operation discriminators at From to their name at To.
	Renames map[string]string

	// Responses maps operation discriminators, as known at To, to the
	// transform lowering the response into the From shape.
	Responses map[string]ResponseTransform
}

// Migrator migrates requests and responses of one service to and from its
// current API version. It is immutable and safe for concurrent use.
type Migrator struct {
	current      apiversion.Version
	steps        []Step
	typeField    string
	versionField string
	logger       *slog.Logger
}

// Option configures a Migrator.
type Option func(*Migrator)

// WithDiscriminatorField sets the field holding the operation discriminator.
func WithDiscriminatorField(name string) Option {
	return func(m *Migrator) {
		m.typeField = name
	}
}

// WithVersionField sets the field holding the declared API version.
func WithVersionField(name string) Option {
	return func(m *Migrator) {
		m.versionField = name
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Migrator) {
		m.logger = logger
	}
}

// NewMigrator validates the step table and returns a Migrator serving
// current. Steps may be given in any order but must form one contiguous
// chain of strictly increasing versions that ends at current.
//
// A service that has never changed its wire shape passes no steps; it then
// only accepts requests declared at current.
func NewMigrator(current apiversion.Version, steps []Step, opts ...Option) (*Migrator, error) {
	m := &Migrator{
		current:      current,
		steps:        slices.Clone(steps),
		typeField:    "__type",
		versionField: DefaultVersionField,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}

	slices.SortFunc(m.steps, func(a, b Step) int {
		return a.From.Compare(b.From)
	})

	for i, step := range m.steps {
		if !step.From.Less(step.To) {
			return nil, fault.New(fault.CodeInternal, "migration step %s -> %s does not increase the version", step.From, step.To)
		}
		if i > 0 {
			prev := m.steps[i-1]
			if prev.From == step.From {
				return nil, fault.New(fault.CodeInternal, "duplicate migration step from %s", step.From)
			}
			if prev.To != step.From {
				return nil, fault.New(fault.CodeInternal, "migration table gap between %s and %s", prev.To, step.From)
			}
		}
		if err := checkRenames(step); err != nil {
			return nil, err
		}
	}
	if n := len(m.steps); n > 0 && m.steps[n-1].To != current {
		return nil, fault.New(fault.CodeInternal, "migration table ends at %s, current version is %s", m.steps[n-1].To, current)
	}

	return m, nil
}

// MustNewMigrator is like NewMigrator but panics on error.
// Use only for migration tables known at build time.
func MustNewMigrator(current apiversion.Version, steps []Step, opts ...Option) *Migrator {
	m, err := NewMigrator(current, steps, opts...)
	if err != nil {
		panic(err)
	}
	return m
}

func checkRenames(step Step) error {
	seen := make(map[string]string, len(step.Renames))
	for from, to := range step.Renames {
		if from == "" || to == "" {
			return fault.New(fault.CodeInternal, "migration step %s -> %s: empty operation rename", step.From, step.To)
		}
		if other, ok := seen[to]; ok {
			return fault.New(fault.CodeInternal, "migration step %s -> %s: %q and %q both rename to %q", step.From, step.To, other, from, to)
		}
		seen[to] = from
	}
	return nil
}

// Current returns the version served by the migrator.
func (m *Migrator) Current() apiversion.Version {
	return m.current
}

// Versions returns every version the migrator accepts, oldest first.
func (m *Migrator) Versions() []apiversion.Version {
	versions := make([]apiversion.Version, 0, len(m.steps)+1)
	for _, step := range m.steps {
		versions = append(versions, step.From)
	}
	return append(versions, m.current)
}

// Supports reports whether a request declared at v can be migrated.
func (m *Migrator) Supports(v apiversion.Version) bool {
	_, err := m.chain(v)
	return err == nil
}

// ReadVersion returns the API version declared by a request object.
func (m *Migrator) ReadVersion(obj wire.Object) (apiversion.Version, error) {
	return ReadVersion(obj, m.versionField)
}

// ReadVersion returns the API version stored in obj under field.
func ReadVersion(obj wire.Object, field string) (apiversion.Version, error) {
	raw, ok := obj[field]
	if !ok {
		return apiversion.Version{}, fault.Malformed("missing %q field", field).WithDetail("field", field)
	}
	s, ok := raw.(wire.String)
	if !ok {
		return apiversion.Version{}, fault.Malformed("%q must be a string, got %s", field, wire.KindOf(raw)).WithDetail("field", field)
	}
	v, err := apiversion.Parse(string(s))
	if err != nil {
		return apiversion.Version{}, fault.Wrap(fault.CodeMalformedEnvelope, err, "invalid %q field", field).WithDetail("field", field)
	}
	return v, nil
}

// chain returns the steps leading from declared to current.
func (m *Migrator) chain(declared apiversion.Version) ([]Step, error) {
	switch c := declared.Compare(m.current); {
	case c > 0:
		return nil, fault.New(fault.CodeUnsupportedVersion, "API version %s is newer than current version %s", declared, m.current).
			WithDetail("declared", declared.String()).
			WithDetail("current", m.current.String())
	case c == 0:
		return nil, nil
	}

	start := slices.IndexFunc(m.steps, func(s Step) bool { return s.From == declared })
	if start < 0 {
		return nil, fault.New(fault.CodeUnsupportedVersion, "no migration path from API version %s to %s", declared, m.current).
			WithDetail("declared", declared.String()).
			WithDetail("current", m.current.String())
	}
	return m.steps[start:], nil
}

// MigrateRequest lifts a request declared at version declared into the
// current shape. It returns the migrated object, with its version field set
// to current, and the operation discriminator at the current version.
//
// The input object is never modified. When declared equals current the
// result is a copy of the input.
func (m *Migrator) MigrateRequest(obj wire.Object, declared apiversion.Version) (wire.Object, string, error) {
	operation, err := m.operation(obj)
	if err != nil {
		return nil, "", err
	}

	steps, err := m.chain(declared)
	if err != nil {
		return nil, "", err
	}

	out := obj.Clone()
	for _, step := range steps {
		if t, ok := step.Requests[operation]; ok {
			if out, err = apply(t, out); err != nil {
				return nil, "", m.transformError(err, operation, step)
			}
		}
		if t, ok := step.Requests[AllOperations]; ok {
			if out, err = apply(t, out); err != nil {
				return nil, "", m.transformError(err, operation, step)
			}
		}
		if renamed, ok := step.Renames[operation]; ok {
			operation = renamed
		}
		m.logger.Debug("migrated request",
			"operation", operation,
			"from", step.From.String(),
			"to", step.To.String())
	}

	out[m.typeField] = wire.String(operation)
	out[m.versionField] = wire.String(m.current.String())
	return out, operation, nil
}

// MigrateResponse lowers a response to operation, produced at the current
// version, into the shape expected by a caller speaking version caller.
// operation is the discriminator at the current version.
//
// The input value is never modified.
func (m *Migrator) MigrateResponse(operation string, v wire.Value, caller apiversion.Version) (wire.Value, error) {
	steps, err := m.chain(caller)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return v, nil
	}

	out := wire.Clone(v)
	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		if t, ok := step.Responses[operation]; ok {
			if out, err = applyResponse(t, out); err != nil {
				return nil, m.transformError(err, operation, step)
			}
		}
		if t, ok := step.Responses[AllOperations]; ok {
			if out, err = applyResponse(t, out); err != nil {
				return nil, m.transformError(err, operation, step)
			}
		}
		for from, to := range step.Renames {
			if to == operation {
				operation = from
				break
			}
		}
		m.logger.Debug("migrated response",
			"operation", operation,
			"from", step.To.String(),
			"to", step.From.String())
	}
	return out, nil
}

// DowngradeOperation maps an operation discriminator at the current version
// to its name at version caller.
func (m *Migrator) DowngradeOperation(operation string, caller apiversion.Version) (string, error) {
	steps, err := m.chain(caller)
	if err != nil {
		return "", err
	}
	for i := len(steps) - 1; i >= 0; i-- {
		for from, to := range steps[i].Renames {
			if to == operation {
				operation = from
				break
			}
		}
	}
	return operation, nil
}

func (m *Migrator) operation(obj wire.Object) (string, error) {
	raw, ok := obj[m.typeField]
	if !ok {
		return "", fault.Malformed("request is missing %q discriminator", m.typeField).WithDetail("field", m.typeField)
	}
	s, ok := raw.(wire.String)
	if !ok || s == "" {
		return "", fault.Malformed("request discriminator %q must be a non-empty string, got %s", m.typeField, wire.KindOf(raw)).WithDetail("field", m.typeField)
	}
	return string(s), nil
}

func (m *Migrator) transformError(err error, operation string, step Step) error {
	if fault.Is(err, fault.CodeMalformedEnvelope) {
		return err
	}
	return fault.Wrap(fault.CodeMalformedEnvelope, err, "migrate %s between %s and %s", operation, step.From, step.To).
		WithDetail("operation", operation)
}

func apply(t Transform, obj wire.Object) (wire.Object, error) {
	out, err := t(obj)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("transform returned nil object")
	}
	return out, nil
}

func applyResponse(t ResponseTransform, v wire.Value) (wire.Value, error) {
	out, err := t(v)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("response transform returned nil value")
	}
	return out, nil
}

// NewDiscardMigrator is like NewMigrator with logging disabled.
func NewDiscardMigrator(current apiversion.Version, steps []Step, opts ...Option) (*Migrator, error) {
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return NewMigrator(current, steps, opts...)
}
