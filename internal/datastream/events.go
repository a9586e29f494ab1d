package datastream

import (
	"github.com/roach88/carp/internal/eventbus"
	"github.com/roach88/carp/internal/polymorphic"
)

// Event discriminators.
const (
	TypeDataStreamsOpened = "dk.cachet.carp.data.application.DataStreamService.Event.DataStreamsOpened"
	TypeDataStreamsClosed = "dk.cachet.carp.data.application.DataStreamService.Event.DataStreamsClosed"
)

// DataStreamsOpened is published once a deployment's streams accept data.
type DataStreamsOpened struct {
	StudyDeploymentID string `json:"studyDeploymentId"`
}

func (*DataStreamsOpened) TypeName() string { return TypeDataStreamsOpened }

// DataStreamsClosed is published when deployments stop accepting data.
type DataStreamsClosed struct {
	StudyDeploymentIDs []string `json:"studyDeploymentIds"`
}

func (*DataStreamsClosed) TypeName() string { return TypeDataStreamsClosed }

// RegisterEvents adds the service's events to h.
func RegisterEvents(h *polymorphic.Hierarchy[eventbus.Event]) error {
	if err := h.Register(TypeDataStreamsOpened, polymorphic.StructCodec(func() eventbus.Event { return &DataStreamsOpened{} })); err != nil {
		return err
	}
	return h.Register(TypeDataStreamsClosed, polymorphic.StructCodec(func() eventbus.Event { return &DataStreamsClosed{} }))
}
