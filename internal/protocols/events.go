package protocols

import (
	"github.com/roach88/carp/internal/eventbus"
	"github.com/roach88/carp/internal/polymorphic"
)

// Event discriminators.
const (
	TypeProtocolAdded        = "dk.cachet.carp.protocols.application.ProtocolService.Event.ProtocolAdded"
	TypeProtocolVersionAdded = "dk.cachet.carp.protocols.application.ProtocolService.Event.ProtocolVersionAdded"
)

// ProtocolAdded is published when a new protocol is stored.
type ProtocolAdded struct {
	ProtocolID string `json:"protocolId"`
	OwnerID    string `json:"ownerId"`
	VersionTag string `json:"versionTag"`
}

func (*ProtocolAdded) TypeName() string { return TypeProtocolAdded }

// ProtocolVersionAdded is published when an existing protocol gains a
// version.
type ProtocolVersionAdded struct {
	ProtocolID string `json:"protocolId"`
	VersionTag string `json:"versionTag"`
}

func (*ProtocolVersionAdded) TypeName() string { return TypeProtocolVersionAdded }

// RegisterEvents adds the service's events to h.
func RegisterEvents(h *polymorphic.Hierarchy[eventbus.Event]) error {
	if err := h.Register(TypeProtocolAdded, polymorphic.StructCodec(func() eventbus.Event { return &ProtocolAdded{} })); err != nil {
		return err
	}
	return h.Register(TypeProtocolVersionAdded, polymorphic.StructCodec(func() eventbus.Event { return &ProtocolVersionAdded{} }))
}
