package replay

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/roach88/carp/internal/envelope"
	"github.com/roach88/carp/internal/eventbus"
	"github.com/roach88/carp/internal/fault"
	"github.com/roach88/carp/internal/ids"
	"github.com/roach88/carp/internal/polymorphic"
	"github.com/roach88/carp/internal/wire"
)

// Sink receives every entry right after the proxy logs it, e.g. a durable
// store.
type Sink interface {
	Append(ctx context.Context, entry LoggedRequest) error
}

// Proxy wraps a service of type S and logs every call made through it.
// Calls are serialized so that events observed on the bus are attributed to
// exactly one call.
type Proxy[S any] struct {
	mu       sync.Mutex
	codec    *envelope.Service[S]
	service  S
	events   *polymorphic.Hierarchy[eventbus.Event]
	recorder *eventbus.Recorder
	cancel   func()
	log      []LoggedRequest
	idGen    ids.Generator
	sink     Sink
	logger   *slog.Logger
}

// Option configures a Proxy.
type Option func(*proxyOptions)

type proxyOptions struct {
	idGen  ids.Generator
	sink   Sink
	logger *slog.Logger
}

// WithIDGenerator sets the generator for entry IDs. Defaults to UUIDv7.
func WithIDGenerator(gen ids.Generator) Option {
	return func(o *proxyOptions) {
		o.idGen = gen
	}
}

// WithSink forwards every entry to sink.
func WithSink(sink Sink) Option {
	return func(o *proxyOptions) {
		o.sink = sink
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *proxyOptions) {
		o.logger = logger
	}
}

// WithDiscardLogger disables logging.
func WithDiscardLogger() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// NewProxy wraps service. Events published on bus are captured from now on;
// call Close to stop observing.
func NewProxy[S any](codec *envelope.Service[S], service S, bus *eventbus.Bus, events *polymorphic.Hierarchy[eventbus.Event], opts ...Option) *Proxy[S] {
	o := proxyOptions{
		idGen:  ids.UUIDv7Generator{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	p := &Proxy[S]{
		codec:    codec,
		service:  service,
		events:   events,
		recorder: &eventbus.Recorder{},
		idGen:    o.idGen,
		sink:     o.sink,
		logger:   o.logger.With("service", codec.Name()),
	}
	p.cancel = bus.Observe(p.recorder.Record)
	return p
}

// Close stops observing the bus. The log stays readable.
func (p *Proxy[S]) Close() {
	p.cancel()
}

// Service returns the wrapped service.
func (p *Proxy[S]) Service() S {
	return p.service
}

// Codec returns the service codec.
func (p *Proxy[S]) Codec() *envelope.Service[S] {
	return p.codec
}

// Invoke validates and invokes req on the wrapped service and logs the call.
// The call's result and error are returned unchanged.
//
// A request that cannot be serialized is a programmer error: it fails
// without invoking the service and without a log entry. Every invoked
// request is logged, including one whose events cannot be serialized.
func (p *Proxy[S]) Invoke(ctx context.Context, req envelope.Request[S]) (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	request, err := p.codec.EncodeRequest(req)
	if err != nil {
		return nil, fault.Wrap(fault.CodeInternal, err, "log %s request", p.codec.Name())
	}
	preceding := p.recorder.Drain()

	result, callErr := p.codec.Invoke(ctx, p.service, req)
	published := p.recorder.Drain()

	entry := LoggedRequest{
		ID:        p.idGen.Generate(),
		Service:   p.codec.Name(),
		Operation: req.TypeName(),
		Request:   request,
	}
	entry.PrecedingEvents, err = p.encodeEvents(preceding)
	if err == nil {
		entry.PublishedEvents, err = p.encodeEvents(published)
	}

	switch {
	case callErr != nil:
		entry.Exception = fault.CodeOf(callErr)
	case err != nil:
		// The service ran but an event it saw has no wire form.
		entry.Exception = fault.CodeOf(err)
		callErr = err
	default:
		if entry.Response, err = p.codec.EncodeResponse(entry.Operation, result); err != nil {
			// The service succeeded but its result has no wire form.
			entry.Exception = fault.CodeOf(err)
			callErr = err
		}
	}

	p.log = append(p.log, entry)
	p.logger.Debug("request logged",
		"id", entry.ID,
		"operation", entry.ShortOperation(),
		"exception", string(entry.Exception),
		"published", len(entry.PublishedEvents))

	if p.sink != nil {
		if err := p.sink.Append(ctx, entry.clone()); err != nil {
			p.logger.Error("logged request not persisted", "id", entry.ID, "error", err)
			return result, fault.Wrap(fault.CodeInternal, err, "persist logged request")
		}
	}

	return result, callErr
}

// Log returns a copy of every entry so far, in invocation order.
func (p *Proxy[S]) Log() []LoggedRequest {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]LoggedRequest, len(p.log))
	for i, l := range p.log {
		out[i] = l.clone()
	}
	return out
}

// Len returns the number of entries.
func (p *Proxy[S]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.log)
}

// Last returns the most recent entry.
func (p *Proxy[S]) Last() (LoggedRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.log) == 0 {
		return LoggedRequest{}, false
	}
	return p.log[len(p.log)-1].clone(), true
}

// Clear drops the log and any pending preceding events.
func (p *Proxy[S]) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.log = nil
	p.recorder.Drain()
}

func (p *Proxy[S]) encodeEvents(events []eventbus.Event) ([]wire.Object, error) {
	if len(events) == 0 {
		return nil, nil
	}
	out := make([]wire.Object, len(events))
	for i, e := range events {
		obj, err := p.events.Encode(e)
		if err != nil {
			return nil, fault.Wrap(fault.CodeInternal, err, "log event %s", e.TypeName())
		}
		out[i] = obj
	}
	return out, nil
}
