package protocols

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/carp/internal/data"
	"github.com/roach88/carp/internal/envelope"
	"github.com/roach88/carp/internal/eventbus"
	"github.com/roach88/carp/internal/polymorphic"
	"github.com/roach88/carp/internal/testutil"
)

const (
	owner      = "5b1fc6a8-0000-4000-8000-0000000000aa"
	otherOwner = "5b1fc6a8-0000-4000-8000-0000000000bb"
)

type fixture struct {
	codec       *envelope.Service[Service]
	hierarchies Hierarchies
	events      *polymorphic.Hierarchy[eventbus.Event]
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	r := polymorphic.NewDiscardRegistry()
	h, err := NewHierarchies(r)
	require.NoError(t, err)
	events, err := eventbus.NewHierarchy(r)
	require.NoError(t, err)
	require.NoError(t, RegisterEvents(events))
	codec, err := NewCodec(r, h, envelope.WithDiscardLogger())
	require.NoError(t, err)
	r.Freeze()

	return fixture{codec: codec, hierarchies: h, events: events}
}

// minimal is a protocol with a single phone and nothing else.
func minimal(gen *testutil.SequentialIDs) StudyProtocolSnapshot {
	p := NewSnapshot(gen, testutil.Epoch, owner, "Minimal")
	p.PrimaryDevices = []Device{&Smartphone{DeviceRole{Role: "Phone"}}}
	return p
}

// fullProtocol uses every known variant: a phone paired with a heart rate
// belt, a background task measuring steps, and a manual trigger starting it.
func fullProtocol(gen *testutil.SequentialIDs) StudyProtocolSnapshot {
	p := NewSnapshot(gen, testutil.Epoch, owner, "Activity")
	p.Description = "Tracks activity during the day."
	p.PrimaryDevices = []Device{&Smartphone{DeviceRole{Role: "Phone"}}}
	p.ConnectedDevices = []Device{&BLEHeartRateDevice{DeviceRole{Role: "Polar", IsOptional: true}}}
	p.Connections = []Connection{{RoleName: "Polar", ConnectedToRoleName: "Phone"}}
	p.Tasks = []Task{
		&BackgroundTask{
			TaskInfo: TaskInfo{
				Name: "Monitor steps",
				Measures: []Measure{
					&DataStreamMeasure{Type: data.StepCount},
					&TriggerDataMeasure{TriggerID: 0},
				},
			},
			Duration: "PT8H",
		},
		&WebTask{TaskInfo: TaskInfo{Name: "Survey"}, URL: "https://example.org/survey"},
	}
	p.Triggers = map[int]Trigger{
		0: &ManualTrigger{TriggerSource: TriggerSource{SourceDeviceRoleName: "Phone"}, Label: "Start walk"},
		1: &ElapsedTimeTrigger{TriggerSource: TriggerSource{SourceDeviceRoleName: "Phone"}, ElapsedTime: "PT1H"},
	}
	p.TaskControls = []TaskControl{
		{TriggerID: 0, TaskName: "Monitor steps", DestinationDeviceRoleName: "Phone", Control: data.TaskStart},
		{TriggerID: 1, TaskName: "Survey", DestinationDeviceRoleName: "Phone", Control: data.TaskStart},
	}
	p.ParticipantRoles = []ParticipantRole{{Role: "Patient"}}
	return p
}
