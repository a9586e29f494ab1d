// Package schema validates wire payloads against versioned CUE schemas.
//
// Each service has one schema file per API version, embedded from
// cue/<Service>_<major>.<minor>.cue. A file declares two structs, requests
// and responses, keyed by short operation name:
//
//	requests: GetDataStream: #GetDataStream
//	responses: GetDataStream: #DataStreamBatch
//
// Definitions are closed, so a payload carrying a field its version does not
// define fails validation. This is how old-version response shapes are
// checked after migration.
package schema

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/roach88/carp/internal/apiversion"
	"github.com/roach88/carp/internal/fault"
	"github.com/roach88/carp/internal/wire"
)

//go:embed cue/*.cue
var embedded embed.FS

// Kind selects requests or responses.
type Kind string

const (
	Requests  Kind = "requests"
	Responses Kind = "responses"
)

type key struct {
	service string
	version apiversion.Version
}

// Validator holds compiled schemas. Safe for concurrent use; CUE values are
// not, so validation is serialized.
type Validator struct {
	mu      sync.Mutex
	ctx     *cue.Context
	schemas map[key]cue.Value
	field   string
}

// Option configures a Validator.
type Option func(*Validator)

// WithDiscriminatorField sets the field requests carry their operation in.
// Defaults to "__type".
func WithDiscriminatorField(name string) Option {
	return func(v *Validator) {
		v.field = name
	}
}

// New compiles the embedded schemas.
func New(opts ...Option) (*Validator, error) {
	v := NewEmpty(opts...)
	if err := v.AddFS(embedded, "cue"); err != nil {
		return nil, err
	}
	return v, nil
}

// NewEmpty returns a Validator without schemas.
func NewEmpty(opts ...Option) *Validator {
	v := &Validator{
		ctx:     cuecontext.New(),
		schemas: make(map[key]cue.Value),
		field:   "__type",
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// AddFS compiles every <Service>_<major>.<minor>.cue file in dir of fsys.
func (v *Validator) AddFS(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("read schemas: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".cue" {
			continue
		}
		service, version, err := parseName(e.Name())
		if err != nil {
			return err
		}
		src, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return fmt.Errorf("read schema %s: %w", e.Name(), err)
		}
		if err := v.Add(service, version, src); err != nil {
			return err
		}
	}
	return nil
}

// Add compiles src as the schema of service at version.
func (v *Validator) Add(service string, version apiversion.Version, src []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	k := key{service: service, version: version}
	if _, exists := v.schemas[k]; exists {
		return fault.New(fault.CodeDuplicateRegistration, "schema for %s %s already added", service, version)
	}
	value := v.ctx.CompileBytes(src, cue.Filename(fmt.Sprintf("%s_%s.cue", service, version)))
	if err := value.Err(); err != nil {
		return fault.Wrap(fault.CodeInternal, err, "compile schema for %s %s", service, version)
	}
	v.schemas[k] = value
	return nil
}

func parseName(name string) (string, apiversion.Version, error) {
	service, ver, ok := strings.Cut(strings.TrimSuffix(name, ".cue"), "_")
	if !ok || service == "" {
		return "", apiversion.Version{}, fmt.Errorf("schema file %q: expected <Service>_<major>.<minor>.cue", name)
	}
	version, err := apiversion.Parse(ver)
	if err != nil {
		return "", apiversion.Version{}, fmt.Errorf("schema file %q: %w", name, err)
	}
	return service, version, nil
}

// Services returns the services with at least one schema, sorted.
func (v *Validator) Services() []string {
	v.mu.Lock()
	defer v.mu.Unlock()

	var out []string
	for k := range v.schemas {
		if !slices.Contains(out, k.service) {
			out = append(out, k.service)
		}
	}
	slices.Sort(out)
	return out
}

// Versions returns the versions with a schema for service, ascending.
func (v *Validator) Versions(service string) []apiversion.Version {
	v.mu.Lock()
	defer v.mu.Unlock()

	var out []apiversion.Version
	for k := range v.schemas {
		if k.service == service {
			out = append(out, k.version)
		}
	}
	slices.SortFunc(out, apiversion.Version.Compare)
	return out
}

// ValidateRequest checks a request as sent by a client on version. The
// operation is read from the discriminator field.
func (v *Validator) ValidateRequest(service string, version apiversion.Version, request wire.Object) error {
	op, ok := request.String(v.field)
	if !ok || op == "" {
		return fault.Malformed("request has no discriminator field %q", v.field).WithDetail("field", v.field)
	}
	return v.Validate(service, version, Requests, shortName(op), request)
}

// ValidateResponse checks a response to operation as returned to a client on
// version. operation may be a full discriminator or a short name.
func (v *Validator) ValidateResponse(service string, version apiversion.Version, operation string, response wire.Value) error {
	return v.Validate(service, version, Responses, shortName(operation), response)
}

// Validate checks payload against kind.operation in the schema of service at
// version. Fails with fault.CodeNotFound when there is no such schema and
// fault.CodeValidation when payload does not conform.
func (v *Validator) Validate(service string, version apiversion.Version, kind Kind, operation string, payload wire.Value) error {
	data, err := wire.Marshal(payload)
	if err != nil {
		return fault.Wrap(fault.CodeMalformedEnvelope, err, "%s %s payload", service, operation)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	schema, ok := v.schemas[key{service: service, version: version}]
	if !ok {
		return fault.New(fault.CodeNotFound, "no schema for %s %s", service, version).
			WithDetail("service", service).
			WithDetail("version", version.String())
	}
	def := schema.LookupPath(cue.MakePath(cue.Str(string(kind)), cue.Str(operation)))
	if !def.Exists() {
		return fault.New(fault.CodeNotFound, "%s %s has no %s schema for %s", service, version, kind, operation).
			WithDetail("operation", operation)
	}

	value := v.ctx.CompileBytes(data)
	if err := value.Err(); err != nil {
		return fault.Wrap(fault.CodeMalformedEnvelope, err, "%s %s payload", service, operation)
	}
	if err := def.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return fault.New(fault.CodeValidation, "%s %s %s %s: %s",
			service, version, kind, operation, strings.TrimSpace(cueerrors.Details(err, nil))).
			WithDetail("operation", operation).
			WithDetail("version", version.String())
	}
	return nil
}

func shortName(operation string) string {
	return operation[strings.LastIndexByte(operation, '.')+1:]
}
