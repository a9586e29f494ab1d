// Package catalog performs the one explicit registration pass of the
// process: every polymorphic hierarchy, every integration event, every
// service codec and the wire schemas, in a fixed order.
//
// There is no package-level registry and no init() registration. Whoever
// calls New owns the result; the registry is frozen before New returns, so
// a Catalog is safe for concurrent use.
package catalog

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/carp/internal/apiversion"
	"github.com/roach88/carp/internal/data"
	"github.com/roach88/carp/internal/datastream"
	"github.com/roach88/carp/internal/envelope"
	"github.com/roach88/carp/internal/eventbus"
	"github.com/roach88/carp/internal/fault"
	"github.com/roach88/carp/internal/migration"
	"github.com/roach88/carp/internal/polymorphic"
	"github.com/roach88/carp/internal/protocols"
	"github.com/roach88/carp/internal/schema"
	"github.com/roach88/carp/internal/wire"
)

// Catalog holds everything registered at startup.
type Catalog struct {
	Registry     *polymorphic.Registry
	Data         *polymorphic.Hierarchy[data.Data]
	Measurements data.Codec
	Protocols    protocols.Hierarchies
	Events       *polymorphic.Hierarchy[eventbus.Event]

	DataStreams     *envelope.Service[datastream.Service]
	ProtocolService *envelope.Service[protocols.Service]

	Schemas *schema.Validator

	field  string
	logger *slog.Logger
}

type options struct {
	field  string
	logger *slog.Logger
}

// Option configures New.
type Option func(*options)

// WithDiscriminatorField sets the class discriminator field for every
// hierarchy and schema. Defaults to "__type".
func WithDiscriminatorField(name string) Option {
	return func(o *options) {
		if name != "" {
			o.field = name
		}
	}
}

// WithLogger sets the logger shared by the registry and the codecs.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithDiscardLogger disables logging.
func WithDiscardLogger() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// New registers every hierarchy and service and freezes the registry.
//
// A duplicate registration fails with fault.CodeDuplicateRegistration; it
// is a programmer error and callers should treat it as fatal.
func New(opts ...Option) (*Catalog, error) {
	o := options{field: polymorphic.DefaultDiscriminatorField, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Catalog{
		Registry: polymorphic.NewRegistry(
			polymorphic.WithDiscriminatorField(o.field),
			polymorphic.WithLogger(o.logger),
		),
		field:  o.field,
		logger: o.logger,
	}
	codecOpts := []envelope.Option{envelope.WithLogger(o.logger)}

	var err error
	if c.Data, err = data.NewHierarchy(c.Registry); err != nil {
		return nil, fmt.Errorf("register data: %w", err)
	}
	c.Measurements = data.NewCodec(c.Data)

	if c.Protocols, err = protocols.NewHierarchies(c.Registry); err != nil {
		return nil, fmt.Errorf("register protocol members: %w", err)
	}

	if c.Events, err = eventbus.NewHierarchy(c.Registry); err != nil {
		return nil, fmt.Errorf("register events: %w", err)
	}
	if err := datastream.RegisterEvents(c.Events); err != nil {
		return nil, fmt.Errorf("register %s events: %w", datastream.ServiceName, err)
	}
	if err := protocols.RegisterEvents(c.Events); err != nil {
		return nil, fmt.Errorf("register %s events: %w", protocols.ServiceName, err)
	}

	if c.DataStreams, err = datastream.NewCodec(c.Registry, c.Measurements, codecOpts...); err != nil {
		return nil, fmt.Errorf("register %s: %w", datastream.ServiceName, err)
	}
	if c.ProtocolService, err = protocols.NewCodec(c.Registry, c.Protocols, codecOpts...); err != nil {
		return nil, fmt.Errorf("register %s: %w", protocols.ServiceName, err)
	}

	if c.Schemas, err = schema.New(schema.WithDiscriminatorField(o.field)); err != nil {
		return nil, fmt.Errorf("load schemas: %w", err)
	}

	c.Registry.Freeze()
	o.logger.Debug("catalog initialized",
		"bases", len(c.Registry.Bases()),
		"field", o.field)
	return c, nil
}

// Services returns the names of the registered services, sorted.
func (c *Catalog) Services() []string {
	names := []string{datastream.ServiceName, protocols.ServiceName}
	slices.Sort(names)
	return names
}

// endpoint is what the catalog needs of a service codec regardless of its
// service type.
type endpoint interface {
	Name() string
	Current() apiversion.Version
	Migrator() *migration.Migrator
	Operations() []string
}

func (c *Catalog) endpoint(service string) (endpoint, error) {
	switch service {
	case datastream.ServiceName:
		return c.DataStreams, nil
	case protocols.ServiceName:
		return c.ProtocolService, nil
	default:
		return nil, fault.New(fault.CodeNotFound, "no service named %q", service).
			WithDetail("service", service)
	}
}

// Current returns the API version service speaks.
func (c *Catalog) Current(service string) (apiversion.Version, error) {
	e, err := c.endpoint(service)
	if err != nil {
		return apiversion.Version{}, err
	}
	return e.Current(), nil
}

// Operations returns the operation discriminators of service, sorted.
func (c *Catalog) Operations(service string) ([]string, error) {
	e, err := c.endpoint(service)
	if err != nil {
		return nil, err
	}
	return e.Operations(), nil
}

// Migration is the result of migrating one request document.
type Migration struct {
	Operation string
	Declared  apiversion.Version
	Current   apiversion.Version
	Request   wire.Object
}

// MigrateRequest checks obj against the schema of the version it declares,
// when one exists, and migrates it to the current version of service. The
// input is not modified.
func (c *Catalog) MigrateRequest(service string, obj wire.Object) (Migration, error) {
	e, err := c.endpoint(service)
	if err != nil {
		return Migration{}, err
	}
	m := e.Migrator()

	declared, err := m.ReadVersion(obj)
	if err != nil {
		return Migration{}, err
	}
	if err := c.validateIfKnown(service, declared, obj); err != nil {
		return Migration{}, err
	}

	migrated, operation, err := m.MigrateRequest(obj, declared)
	if err != nil {
		return Migration{}, err
	}

	c.logger.Debug("request migrated",
		"service", service,
		"operation", operation,
		"declared", declared.String(),
		"current", e.Current().String())
	return Migration{Operation: operation, Declared: declared, Current: e.Current(), Request: migrated}, nil
}

// validateIfKnown validates obj against the schema of its declared version.
// Versions without a schema are left to the migrator to accept or reject.
// The schemas spell the default discriminator field, so documents using
// another one are not schema checked.
func (c *Catalog) validateIfKnown(service string, version apiversion.Version, obj wire.Object) error {
	if c.field != polymorphic.DefaultDiscriminatorField || !slices.Contains(c.Schemas.Versions(service), version) {
		return nil
	}
	return c.Schemas.ValidateRequest(service, version, obj)
}
