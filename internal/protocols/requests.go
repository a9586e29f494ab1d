package protocols

import (
	"context"

	"github.com/roach88/carp/internal/apiversion"
	"github.com/roach88/carp/internal/envelope"
	"github.com/roach88/carp/internal/fault"
	"github.com/roach88/carp/internal/ids"
	"github.com/roach88/carp/internal/polymorphic"
	"github.com/roach88/carp/internal/wire"
)

// ServiceName names the service in logs, stored entries and golden files.
const ServiceName = "ProtocolService"

// RequestBase is the polymorphic base of the service's requests.
const RequestBase polymorphic.BaseType = "dk.cachet.carp.protocols.infrastructure.ProtocolServiceRequest"

// Operation discriminators.
const (
	OpAdd                  = string(RequestBase) + ".Add"
	OpAddVersion           = string(RequestBase) + ".AddVersion"
	OpGetBy                = string(RequestBase) + ".GetBy"
	OpGetAllForOwner       = string(RequestBase) + ".GetAllForOwner"
	OpGetVersionHistoryFor = string(RequestBase) + ".GetVersionHistoryFor"
)

// Request is a ProtocolService request.
type Request = envelope.Request[Service]

// Version is the API version the service speaks. It is the first version,
// so there are no migration steps.
var Version = apiversion.New(1, 0)

// Definition is the wire contract of the service.
func Definition() envelope.Definition {
	return envelope.Definition{
		Name:    ServiceName,
		Base:    RequestBase,
		Current: Version,
	}
}

// NewCodec creates the service's request hierarchy on r and registers every
// operation.
func NewCodec(r *polymorphic.Registry, h Hierarchies, opts ...envelope.Option) (*envelope.Service[Service], error) {
	svc, err := envelope.NewService[Service](r, Definition(), opts...)
	if err != nil {
		return nil, err
	}
	snapshots := h.SnapshotCodec()
	unit := envelope.Unit()

	add := polymorphic.Typed[Request](
		func(r *Add) (wire.Object, error) { return encodeVersioned(snapshots, r.Protocol, r.VersionTag) },
		func(obj wire.Object) (*Add, error) {
			p, tag, err := decodeVersioned(snapshots, obj)
			return &Add{Protocol: p, VersionTag: tag}, err
		},
	)
	if err := svc.RegisterCodec(OpAdd, add, unit); err != nil {
		return nil, err
	}
	addVersion := polymorphic.Typed[Request](
		func(r *AddVersion) (wire.Object, error) { return encodeVersioned(snapshots, r.Protocol, r.VersionTag) },
		func(obj wire.Object) (*AddVersion, error) {
			p, tag, err := decodeVersioned(snapshots, obj)
			return &AddVersion{Protocol: p, VersionTag: tag}, err
		},
	)
	if err := svc.RegisterCodec(OpAddVersion, addVersion, unit); err != nil {
		return nil, err
	}

	snapshot := envelope.Response(
		func(s StudyProtocolSnapshot) (wire.Value, error) { return snapshots.Encode(s) },
		snapshots.Decode,
	)
	if err := svc.Register(func() Request { return &GetBy{} }, snapshot); err != nil {
		return nil, err
	}
	if err := svc.Register(func() Request { return &GetAllForOwner{} },
		envelope.Response(snapshots.EncodeList, snapshots.DecodeList)); err != nil {
		return nil, err
	}
	if err := svc.Register(func() Request { return &GetVersionHistoryFor{} }, envelope.JSON[[]ProtocolVersion]()); err != nil {
		return nil, err
	}
	return svc, nil
}

func encodeVersioned(c SnapshotCodec, protocol StudyProtocolSnapshot, tag string) (wire.Object, error) {
	enc, err := c.Encode(protocol)
	if err != nil {
		return nil, err
	}
	return wire.Object{"protocol": enc, "versionTag": wire.String(tag)}, nil
}

func decodeVersioned(c SnapshotCodec, obj wire.Object) (StudyProtocolSnapshot, string, error) {
	protocol, err := c.Decode(obj["protocol"])
	if err != nil {
		return StudyProtocolSnapshot{}, "", err
	}
	tag, ok := obj.String("versionTag")
	if _, present := obj["versionTag"]; present && !ok {
		return StudyProtocolSnapshot{}, "", fault.Malformed("versionTag: expected string, got %s", wire.KindOf(obj["versionTag"]))
	}
	return protocol, tag, nil
}

// Add requests Service.Add.
type Add struct {
	Protocol   StudyProtocolSnapshot
	VersionTag string
}

func (*Add) TypeName() string { return OpAdd }

func (r *Add) Validate() error { return r.Protocol.Validate() }

func (r *Add) InvokeOn(ctx context.Context, s Service) (any, error) {
	return nil, s.Add(ctx, r.Protocol, r.VersionTag)
}

// AddVersion requests Service.AddVersion.
type AddVersion struct {
	Protocol   StudyProtocolSnapshot
	VersionTag string
}

func (*AddVersion) TypeName() string { return OpAddVersion }

func (r *AddVersion) Validate() error {
	if r.VersionTag == "" {
		return fault.Validation("versionTag", "must not be blank")
	}
	return r.Protocol.Validate()
}

func (r *AddVersion) InvokeOn(ctx context.Context, s Service) (any, error) {
	return nil, s.AddVersion(ctx, r.Protocol, r.VersionTag)
}

// GetBy requests Service.GetBy.
type GetBy struct {
	ProtocolID string  `json:"protocolId"`
	VersionTag *string `json:"versionTag"`
}

func (*GetBy) TypeName() string { return OpGetBy }

func (r *GetBy) Validate() error { return validID("protocolId", r.ProtocolID) }

func (r *GetBy) InvokeOn(ctx context.Context, s Service) (any, error) {
	return s.GetBy(ctx, r.ProtocolID, r.VersionTag)
}

// GetAllForOwner requests Service.GetAllForOwner.
type GetAllForOwner struct {
	OwnerID string `json:"ownerId"`
}

func (*GetAllForOwner) TypeName() string { return OpGetAllForOwner }

func (r *GetAllForOwner) Validate() error { return validID("ownerId", r.OwnerID) }

func (r *GetAllForOwner) InvokeOn(ctx context.Context, s Service) (any, error) {
	return s.GetAllForOwner(ctx, r.OwnerID)
}

// GetVersionHistoryFor requests Service.GetVersionHistoryFor.
type GetVersionHistoryFor struct {
	ProtocolID string `json:"protocolId"`
}

func (*GetVersionHistoryFor) TypeName() string { return OpGetVersionHistoryFor }

func (r *GetVersionHistoryFor) Validate() error { return validID("protocolId", r.ProtocolID) }

func (r *GetVersionHistoryFor) InvokeOn(ctx context.Context, s Service) (any, error) {
	return s.GetVersionHistoryFor(ctx, r.ProtocolID)
}

func validID(field, id string) error {
	if !ids.Valid(id) {
		return fault.Validation(field, "%q is not a UUID", id)
	}
	return nil
}
