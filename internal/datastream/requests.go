package datastream

import (
	"context"

	"github.com/roach88/carp/internal/apiversion"
	"github.com/roach88/carp/internal/data"
	"github.com/roach88/carp/internal/envelope"
	"github.com/roach88/carp/internal/fault"
	"github.com/roach88/carp/internal/ids"
	"github.com/roach88/carp/internal/migration"
	"github.com/roach88/carp/internal/polymorphic"
	"github.com/roach88/carp/internal/wire"
)

// ServiceName names the service in logs, stored entries and golden files.
const ServiceName = "DataStreamService"

// RequestBase is the polymorphic base of the service's requests.
const RequestBase polymorphic.BaseType = "dk.cachet.carp.data.infrastructure.DataStreamServiceRequest"

// Operation discriminators.
const (
	OpOpenDataStreams     = string(RequestBase) + ".OpenDataStreams"
	OpAppendToDataStreams = string(RequestBase) + ".AppendToDataStreams"
	OpGetDataStream       = string(RequestBase) + ".GetDataStream"
	OpCloseDataStreams    = string(RequestBase) + ".CloseDataStreams"
	OpRemoveDataStreams   = string(RequestBase) + ".RemoveDataStreams"
)

// Request is a DataStreamService request.
type Request = envelope.Request[Service]

// Version is the API version the service speaks.
var Version = apiversion.New(1, 2)

// Steps returns the migration table from 1.0 to Version.
func Steps() []migration.Step {
	return []migration.Step{
		{
			From: apiversion.New(1, 0),
			To:   apiversion.New(1, 1),
			Requests: map[string]migration.Transform{
				OpGetDataStream: migration.Default("toSequenceIdInclusive", wire.Null{}),
			},
			Responses: map[string]migration.ResponseTransform{
				OpGetDataStream: migration.ForEach(
					migration.Each("measurements", migration.At("data", migration.Drop("sensorSpecificData")))),
			},
		},
		{
			From: apiversion.New(1, 1),
			To:   apiversion.New(1, 2),
			Requests: map[string]migration.Transform{
				OpGetDataStream: migration.Rename("dataStream", "dataStreamId"),
			},
		},
	}
}

// Definition is the wire contract of the service.
func Definition() envelope.Definition {
	return envelope.Definition{
		Name:    ServiceName,
		Base:    RequestBase,
		Current: Version,
		Steps:   Steps(),
	}
}

// NewCodec creates the service's request hierarchy on r and registers every
// operation. Data points are encoded through measurements.
func NewCodec(r *polymorphic.Registry, measurements data.Codec, opts ...envelope.Option) (*envelope.Service[Service], error) {
	svc, err := envelope.NewService[Service](r, Definition(), opts...)
	if err != nil {
		return nil, err
	}
	batches := NewBatchCodec(measurements)
	unit := envelope.Unit()

	if err := svc.Register(func() Request { return &OpenDataStreams{} }, unit); err != nil {
		return nil, err
	}
	appendCodec := polymorphic.Typed[Request](
		func(r *AppendToDataStreams) (wire.Object, error) { return r.encode(batches) },
		func(obj wire.Object) (*AppendToDataStreams, error) { return decodeAppend(batches, obj) },
	)
	if err := svc.RegisterCodec(OpAppendToDataStreams, appendCodec, unit); err != nil {
		return nil, err
	}
	if err := svc.Register(func() Request { return &GetDataStream{} },
		envelope.Response(batches.EncodeBatch, batches.DecodeBatch)); err != nil {
		return nil, err
	}
	if err := svc.Register(func() Request { return &CloseDataStreams{} }, unit); err != nil {
		return nil, err
	}
	if err := svc.Register(func() Request { return &RemoveDataStreams{} }, envelope.JSON[[]string]()); err != nil {
		return nil, err
	}
	return svc, nil
}

// OpenDataStreams requests Service.OpenDataStreams.
type OpenDataStreams struct {
	Configuration Configuration `json:"configuration"`
}

func (*OpenDataStreams) TypeName() string { return OpOpenDataStreams }

func (r *OpenDataStreams) Validate() error { return r.Configuration.Validate() }

func (r *OpenDataStreams) InvokeOn(ctx context.Context, s Service) (any, error) {
	return nil, s.OpenDataStreams(ctx, r.Configuration)
}

// AppendToDataStreams requests Service.AppendToDataStreams.
type AppendToDataStreams struct {
	StudyDeploymentID string
	Batch             Batch
}

func (*AppendToDataStreams) TypeName() string { return OpAppendToDataStreams }

func (r *AppendToDataStreams) Validate() error {
	if !ids.Valid(r.StudyDeploymentID) {
		return fault.Validation("studyDeploymentId", "%q is not a UUID", r.StudyDeploymentID)
	}
	for i, s := range r.Batch {
		if err := s.Validate(); err != nil {
			return fault.Wrap(fault.CodeValidation, err, "batch[%d]", i)
		}
	}
	return nil
}

func (r *AppendToDataStreams) InvokeOn(ctx context.Context, s Service) (any, error) {
	return nil, s.AppendToDataStreams(ctx, r.StudyDeploymentID, r.Batch)
}

func (r *AppendToDataStreams) encode(c BatchCodec) (wire.Object, error) {
	batch, err := c.EncodeBatch(r.Batch)
	if err != nil {
		return nil, err
	}
	return wire.Object{
		"studyDeploymentId": wire.String(r.StudyDeploymentID),
		"batch":             batch,
	}, nil
}

func decodeAppend(c BatchCodec, obj wire.Object) (*AppendToDataStreams, error) {
	r := &AppendToDataStreams{}
	if err := into(obj, "studyDeploymentId", &r.StudyDeploymentID); err != nil {
		return nil, err
	}
	batch, err := c.DecodeBatch(obj["batch"])
	if err != nil {
		return nil, err
	}
	r.Batch = batch
	return r, nil
}

// GetDataStream requests Service.GetDataStream.
type GetDataStream struct {
	DataStreamID          DataStreamID `json:"dataStreamId"`
	FromSequenceID        int64        `json:"fromSequenceId"`
	ToSequenceIDInclusive *int64       `json:"toSequenceIdInclusive"`
}

func (*GetDataStream) TypeName() string { return OpGetDataStream }

func (r *GetDataStream) Validate() error {
	if err := r.DataStreamID.Validate(); err != nil {
		return err
	}
	if r.FromSequenceID < 0 {
		return fault.Validation("fromSequenceId", "must be non-negative, got %d", r.FromSequenceID)
	}
	if r.ToSequenceIDInclusive != nil && *r.ToSequenceIDInclusive < r.FromSequenceID {
		return fault.Validation("toSequenceIdInclusive", "%d is before fromSequenceId %d",
			*r.ToSequenceIDInclusive, r.FromSequenceID)
	}
	return nil
}

func (r *GetDataStream) InvokeOn(ctx context.Context, s Service) (any, error) {
	return s.GetDataStream(ctx, r.DataStreamID, r.FromSequenceID, r.ToSequenceIDInclusive)
}

// CloseDataStreams requests Service.CloseDataStreams.
type CloseDataStreams struct {
	StudyDeploymentIDs []string `json:"studyDeploymentIds"`
}

func (*CloseDataStreams) TypeName() string { return OpCloseDataStreams }

func (r *CloseDataStreams) Validate() error { return validIDs(r.StudyDeploymentIDs) }

func (r *CloseDataStreams) InvokeOn(ctx context.Context, s Service) (any, error) {
	return nil, s.CloseDataStreams(ctx, r.StudyDeploymentIDs)
}

// RemoveDataStreams requests Service.RemoveDataStreams.
type RemoveDataStreams struct {
	StudyDeploymentIDs []string `json:"studyDeploymentIds"`
}

func (*RemoveDataStreams) TypeName() string { return OpRemoveDataStreams }

func (r *RemoveDataStreams) Validate() error { return validIDs(r.StudyDeploymentIDs) }

func (r *RemoveDataStreams) InvokeOn(ctx context.Context, s Service) (any, error) {
	return s.RemoveDataStreams(ctx, r.StudyDeploymentIDs)
}
