package protocols

import (
	"context"
	"fmt"

	"github.com/roach88/carp/internal/replay"
)

// LoggedService is a Service that sends every call through a logging proxy.
type LoggedService struct {
	proxy *replay.Proxy[Service]
}

var _ Service = (*LoggedService)(nil)

// NewLoggedService wraps p.
func NewLoggedService(p *replay.Proxy[Service]) *LoggedService {
	return &LoggedService{proxy: p}
}

// Proxy returns the underlying proxy.
func (s *LoggedService) Proxy() *replay.Proxy[Service] {
	return s.proxy
}

func (s *LoggedService) Add(ctx context.Context, protocol StudyProtocolSnapshot, versionTag string) error {
	_, err := s.proxy.Invoke(ctx, &Add{Protocol: protocol, VersionTag: versionTag})
	return err
}

func (s *LoggedService) AddVersion(ctx context.Context, protocol StudyProtocolSnapshot, versionTag string) error {
	_, err := s.proxy.Invoke(ctx, &AddVersion{Protocol: protocol, VersionTag: versionTag})
	return err
}

func (s *LoggedService) GetBy(ctx context.Context, protocolID string, versionTag *string) (StudyProtocolSnapshot, error) {
	return invoke[StudyProtocolSnapshot](ctx, s.proxy, &GetBy{ProtocolID: protocolID, VersionTag: versionTag})
}

func (s *LoggedService) GetAllForOwner(ctx context.Context, ownerID string) ([]StudyProtocolSnapshot, error) {
	return invoke[[]StudyProtocolSnapshot](ctx, s.proxy, &GetAllForOwner{OwnerID: ownerID})
}

func (s *LoggedService) GetVersionHistoryFor(ctx context.Context, protocolID string) ([]ProtocolVersion, error) {
	return invoke[[]ProtocolVersion](ctx, s.proxy, &GetVersionHistoryFor{ProtocolID: protocolID})
}

func invoke[R any](ctx context.Context, p *replay.Proxy[Service], req Request) (R, error) {
	var zero R
	result, err := p.Invoke(ctx, req)
	if err != nil {
		return zero, err
	}
	r, ok := result.(R)
	if !ok {
		return zero, fmt.Errorf("%s returned %T", req.TypeName(), result)
	}
	return r, nil
}
