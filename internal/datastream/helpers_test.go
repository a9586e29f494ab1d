package datastream

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/carp/internal/data"
	"github.com/roach88/carp/internal/envelope"
	"github.com/roach88/carp/internal/eventbus"
	"github.com/roach88/carp/internal/polymorphic"
)

const (
	deploymentID    = "a3c2f1e0-0000-4000-8000-000000000001"
	otherDeployment = "a3c2f1e0-0000-4000-8000-000000000002"
)

type fixture struct {
	codec  *envelope.Service[Service]
	data   *polymorphic.Hierarchy[data.Data]
	events *polymorphic.Hierarchy[eventbus.Event]
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	r := polymorphic.NewDiscardRegistry()
	dh, err := data.NewHierarchy(r)
	require.NoError(t, err)
	events, err := eventbus.NewHierarchy(r)
	require.NoError(t, err)
	require.NoError(t, RegisterEvents(events))
	codec, err := NewCodec(r, data.NewCodec(dh), envelope.WithDiscardLogger())
	require.NoError(t, err)
	r.Freeze()

	return fixture{codec: codec, data: dh, events: events}
}

func (f fixture) batches() BatchCodec {
	return NewBatchCodec(data.NewCodec(f.data))
}

func phoneSteps() DataStreamID {
	return DataStreamID{StudyDeploymentID: deploymentID, DeviceRoleName: "Phone", DataType: data.StepCount}
}

func phoneLocation() DataStreamID {
	return DataStreamID{StudyDeploymentID: deploymentID, DeviceRoleName: "Phone", DataType: data.Geolocation}
}

func config() Configuration {
	return Configuration{
		StudyDeploymentID: deploymentID,
		ExpectedDataStreams: []ExpectedDataStream{
			{DeviceRoleName: "Phone", DataType: data.StepCount},
			{DeviceRoleName: "Phone", DataType: data.Geolocation},
		},
	}
}

// steps builds a step count sequence on phoneSteps with one measurement per
// count, 100 time units apart.
func steps(first int64, counts ...int64) Sequence {
	s := Sequence{
		DataStream:      phoneSteps(),
		FirstSequenceID: first,
		TriggerIDs:      []int{},
		SyncPoint:       UnknownSyncPoint,
	}
	for i, c := range counts {
		s.Measurements = append(s.Measurements, data.Measurement{
			SensorStartTime: (first + int64(i)) * 100,
			Data:            &data.StepCountData{Steps: c},
		})
	}
	return s
}

func counts(b Batch) []int64 {
	var out []int64
	for _, s := range b {
		for _, m := range s.Measurements {
			out = append(out, m.Data.(*data.StepCountData).Steps)
		}
	}
	return out
}
