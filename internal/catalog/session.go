package catalog

import (
	"context"
	"fmt"

	"github.com/roach88/carp/internal/datastream"
	"github.com/roach88/carp/internal/envelope"
	"github.com/roach88/carp/internal/eventbus"
	"github.com/roach88/carp/internal/fault"
	"github.com/roach88/carp/internal/ids"
	"github.com/roach88/carp/internal/protocols"
	"github.com/roach88/carp/internal/replay"
	"github.com/roach88/carp/internal/wire"
)

// SessionConfig configures the services of a Session.
type SessionConfig struct {
	// Clock stamps protocol versions. Nil means the system clock.
	Clock protocols.Clock

	// IDs generates log entry IDs. Nil means UUIDv7.
	IDs ids.Generator

	// Sink receives every logged entry, e.g. a store. May be nil.
	Sink replay.Sink
}

// Session is a set of fresh in-memory reference services sharing one event
// bus, each behind a logging proxy. Events one service publishes show up as
// preceding events of the next call to the other.
type Session struct {
	catalog     *Catalog
	bus         *eventbus.Bus
	dataStreams *replay.Proxy[datastream.Service]
	protocols   *replay.Proxy[protocols.Service]
}

// NewSession starts a session. Close it to detach the proxies from the bus.
func (c *Catalog) NewSession(cfg SessionConfig) *Session {
	bus := eventbus.New(c.logger)

	opts := []replay.Option{replay.WithLogger(c.logger)}
	if cfg.IDs != nil {
		opts = append(opts, replay.WithIDGenerator(cfg.IDs))
	}
	if cfg.Sink != nil {
		opts = append(opts, replay.WithSink(cfg.Sink))
	}

	return &Session{
		catalog:     c,
		bus:         bus,
		dataStreams: replay.NewProxy[datastream.Service](c.DataStreams, datastream.NewMemory(bus), bus, c.Events, opts...),
		protocols:   replay.NewProxy[protocols.Service](c.ProtocolService, protocols.NewMemory(cfg.Clock, bus), bus, c.Events, opts...),
	}
}

// Close detaches the proxies. Logs stay readable.
func (s *Session) Close() {
	s.dataStreams.Close()
	s.protocols.Close()
}

// DataStreams returns a typed client of the session's data stream service.
func (s *Session) DataStreams() *datastream.LoggedService {
	return datastream.NewLoggedService(s.dataStreams)
}

// Protocols returns a typed client of the session's protocol service.
func (s *Session) Protocols() *protocols.LoggedService {
	return protocols.NewLoggedService(s.protocols)
}

// Handle runs a request document of any supported version through the
// logging proxy of service. The body is shaped for the caller's version, or
// is a structured failure when err is non-nil.
func (s *Session) Handle(ctx context.Context, service string, body []byte) ([]byte, error) {
	var (
		out []byte
		err error
	)
	switch service {
	case datastream.ServiceName:
		out, err = handle(ctx, s.dataStreams, body)
	case protocols.ServiceName:
		out, err = handle(ctx, s.protocols, body)
	default:
		err = fault.New(fault.CodeNotFound, "no service named %q", service)
	}
	if err != nil {
		return envelope.FailureOf(err).Marshal(), err
	}
	return out, nil
}

func handle[S any](ctx context.Context, p *replay.Proxy[S], body []byte) ([]byte, error) {
	codec := p.Codec()
	req, caller, err := codec.UnmarshalRequest(body)
	if err != nil {
		return nil, err
	}
	operation := req.TypeName()

	result, err := p.Invoke(ctx, req)
	if err != nil {
		return nil, err
	}
	v, err := codec.EncodeResponse(operation, result)
	if err != nil {
		return nil, err
	}
	if v, err = codec.Migrator().MigrateResponse(operation, v, caller); err != nil {
		return nil, err
	}
	return wire.Marshal(v)
}

// Log returns the entries logged so far. With an empty service name the
// logs of both services are returned, data streams first.
func (s *Session) Log(service string) []replay.LoggedRequest {
	switch service {
	case datastream.ServiceName:
		return s.dataStreams.Log()
	case protocols.ServiceName:
		return s.protocols.Log()
	default:
		return append(s.dataStreams.Log(), s.protocols.Log()...)
	}
}

// Verify replays entries against this session, which should be fresh, and
// compares every outcome with the logged one. Entries are dispatched to
// their service by name and replayed in log order per service.
//
// Returns the number of entries replayed before the first mismatch.
func (s *Session) Verify(ctx context.Context, entries []replay.LoggedRequest, n replay.Normalizer) (int, error) {
	var streams, protos []replay.LoggedRequest
	for i, e := range entries {
		switch e.Service {
		case datastream.ServiceName:
			streams = append(streams, e)
		case protocols.ServiceName:
			protos = append(protos, e)
		default:
			return 0, fault.New(fault.CodeNotFound, "entry %d: no service named %q", i, e.Service)
		}
	}

	replayed, err := replay.Verify(ctx, s.dataStreams, streams, n)
	if err != nil {
		return replayed, fmt.Errorf("%s: %w", datastream.ServiceName, err)
	}
	more, err := replay.Verify(ctx, s.protocols, protos, n)
	replayed += more
	if err != nil {
		return replayed, fmt.Errorf("%s: %w", protocols.ServiceName, err)
	}
	return replayed, nil
}
