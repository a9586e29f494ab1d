package envelope

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/roach88/carp/internal/apiversion"
	"github.com/roach88/carp/internal/fault"
	"github.com/roach88/carp/internal/migration"
	"github.com/roach88/carp/internal/polymorphic"
	"github.com/roach88/carp/internal/wire"
)

// Definition describes the wire contract of one application service.
type Definition struct {
	// Name identifies the service in logs and golden files,
	// e.g. "DataStreamService".
	Name string

	// Base is the polymorphic base of the service's request variants.
	Base polymorphic.BaseType

	// Current is the API version the service speaks.
	Current apiversion.Version

	// Steps migrate older request and response shapes to and from Current.
	Steps []migration.Step
}

// Service is the request and response codec plus dispatch pipeline for a
// service of type S. Register every operation before the registry is frozen;
// afterwards a Service is safe for concurrent use.
type Service[S any] struct {
	name      string
	mu        sync.RWMutex
	requests  *polymorphic.Hierarchy[Request[S]]
	responses map[string]ResponseCodec
	migrator  *migration.Migrator
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger used for pipeline diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithDiscardLogger disables logging.
func WithDiscardLogger() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// NewService creates the request hierarchy for def on r and validates its
// migration table.
func NewService[S any](r *polymorphic.Registry, def Definition, opts ...Option) (*Service[S], error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if def.Name == "" {
		return nil, fault.New(fault.CodeInternal, "service name is required")
	}

	m, err := migration.NewMigrator(def.Current, def.Steps,
		migration.WithDiscriminatorField(r.DiscriminatorField()),
		migration.WithLogger(o.logger))
	if err != nil {
		return nil, fault.Wrap(fault.CodeInternal, err, "service %s", def.Name)
	}

	requests, err := polymorphic.NewHierarchy(r, def.Base, func(u polymorphic.Unknown) Request[S] {
		return &UnknownRequest[S]{Unknown: u}
	})
	if err != nil {
		return nil, err
	}

	return &Service[S]{
		name:      def.Name,
		requests:  requests,
		responses: make(map[string]ResponseCodec),
		migrator:  m,
		logger:    o.logger.With("service", def.Name),
	}, nil
}

// Register adds an operation whose request fields are plain encoding/json
// data. newReq returns an empty request; its TypeName is the operation
// discriminator.
func (s *Service[S]) Register(newReq func() Request[S], response ResponseCodec) error {
	return s.RegisterCodec(newReq().TypeName(), polymorphic.StructCodec(newReq), response)
}

// RegisterCodec adds an operation with a hand-written request codec.
func (s *Service[S]) RegisterCodec(operation string, codec polymorphic.Codec[Request[S]], response ResponseCodec) error {
	if response.Encode == nil || response.Decode == nil {
		return fault.New(fault.CodeInternal, "service %s: response codec for %q is incomplete", s.name, operation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requests.Register(operation, codec); err != nil {
		return err
	}
	s.responses[operation] = response
	return nil
}

// MustRegister is like Register but panics on error.
func (s *Service[S]) MustRegister(newReq func() Request[S], response ResponseCodec) {
	if err := s.Register(newReq, response); err != nil {
		panic(err)
	}
}

// MustRegisterCodec is like RegisterCodec but panics on error.
func (s *Service[S]) MustRegisterCodec(operation string, codec polymorphic.Codec[Request[S]], response ResponseCodec) {
	if err := s.RegisterCodec(operation, codec, response); err != nil {
		panic(err)
	}
}

// Name returns the service name.
func (s *Service[S]) Name() string {
	return s.name
}

// Current returns the API version the service speaks.
func (s *Service[S]) Current() apiversion.Version {
	return s.migrator.Current()
}

// Migrator returns the service's migrator.
func (s *Service[S]) Migrator() *migration.Migrator {
	return s.migrator
}

// Requests returns the request hierarchy.
func (s *Service[S]) Requests() *polymorphic.Hierarchy[Request[S]] {
	return s.requests
}

// Operations returns the registered operation discriminators, sorted.
func (s *Service[S]) Operations() []string {
	return s.requests.Discriminators()
}

// EncodeRequest serializes req at the current API version.
func (s *Service[S]) EncodeRequest(req Request[S]) (wire.Object, error) {
	obj, err := s.requests.Encode(req)
	if err != nil {
		return nil, err
	}
	obj[migration.DefaultVersionField] = wire.String(s.Current().String())
	return obj, nil
}

// MarshalRequest returns the deterministic bytes of req at the current version.
func (s *Service[S]) MarshalRequest(req Request[S]) ([]byte, error) {
	obj, err := s.EncodeRequest(req)
	if err != nil {
		return nil, err
	}
	return wire.Marshal(obj)
}

// DecodeRequest migrates obj from its declared API version to the current
// one and decodes it. It returns the caller's declared version alongside the
// request so the response can be migrated back down.
func (s *Service[S]) DecodeRequest(obj wire.Object) (Request[S], apiversion.Version, error) {
	declared, err := s.migrator.ReadVersion(obj)
	if err != nil {
		return nil, apiversion.Version{}, err
	}

	migrated, operation, err := s.migrator.MigrateRequest(obj, declared)
	if err != nil {
		return nil, declared, err
	}
	s.logger.Debug("request migrated",
		"operation", operation,
		"declared", declared.String(),
		"current", s.Current().String())

	delete(migrated, migration.DefaultVersionField)
	req, err := s.requests.DecodeKnown(migrated)
	if err != nil {
		if fault.Is(err, fault.CodeNotFound) {
			return nil, declared, fault.Malformed("service %s has no operation %q", s.name, operation).
				WithDetail("operation", operation)
		}
		return nil, declared, err
	}
	return req, declared, nil
}

// UnmarshalRequest parses and decodes a request document.
func (s *Service[S]) UnmarshalRequest(data []byte) (Request[S], apiversion.Version, error) {
	obj, err := wire.ParseObject(data)
	if err != nil {
		return nil, apiversion.Version{}, fault.Wrap(fault.CodeMalformedEnvelope, err, "invalid request document")
	}
	return s.DecodeRequest(obj)
}

// EncodeResponse serializes the result of operation at the current version.
func (s *Service[S]) EncodeResponse(operation string, result any) (wire.Value, error) {
	codec, err := s.response(operation)
	if err != nil {
		return nil, err
	}
	v, err := codec.Encode(result)
	if err != nil {
		return nil, fault.Wrap(fault.CodeInternal, err, "encode %s response", operation)
	}
	return v, nil
}

// DecodeResponse decodes a current-version response of operation.
func (s *Service[S]) DecodeResponse(operation string, v wire.Value) (any, error) {
	codec, err := s.response(operation)
	if err != nil {
		return nil, err
	}
	result, err := codec.Decode(v)
	if err != nil {
		return nil, fault.Wrap(fault.CodeMalformedEnvelope, err, "decode %s response", operation)
	}
	return result, nil
}

func (s *Service[S]) response(operation string) (ResponseCodec, error) {
	s.mu.RLock()
	codec, ok := s.responses[operation]
	s.mu.RUnlock()
	if !ok {
		return ResponseCodec{}, fault.New(fault.CodeNotFound, "service %s has no operation %q", s.name, operation).
			WithDetail("operation", operation)
	}
	return codec, nil
}

// Invoke validates req and invokes it on service.
// Validation failures never reach the service.
func (s *Service[S]) Invoke(ctx context.Context, service S, req Request[S]) (any, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	result, err := req.InvokeOn(ctx, service)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Handle runs the full pipeline for one request document.
//
// The returned body is always a valid response document: the caller-shaped
// result on success, or a structured Failure. err is non-nil exactly when
// body is a Failure, so transports can pick a status without parsing.
func (s *Service[S]) Handle(ctx context.Context, service S, data []byte) ([]byte, error) {
	body, err := s.handle(ctx, service, data)
	if err != nil {
		failure := FailureOf(err)
		if failure.Type == fault.CodeInternal {
			s.logger.Error("request failed", "code", failure.Type, "error", err)
		} else {
			s.logger.Warn("request rejected", "code", failure.Type, "message", failure.Message)
		}
		return failure.Marshal(), err
	}
	return body, nil
}

func (s *Service[S]) handle(ctx context.Context, service S, data []byte) ([]byte, error) {
	req, caller, err := s.UnmarshalRequest(data)
	if err != nil {
		return nil, err
	}
	operation := req.TypeName()

	result, err := s.Invoke(ctx, service, req)
	if err != nil {
		return nil, err
	}

	v, err := s.EncodeResponse(operation, result)
	if err != nil {
		return nil, err
	}

	v, err = s.migrator.MigrateResponse(operation, v, caller)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("request handled",
		"operation", operation,
		"caller", caller.String())

	return wire.Marshal(v)
}
