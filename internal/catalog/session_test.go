package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/carp/internal/data"
	"github.com/roach88/carp/internal/datastream"
	"github.com/roach88/carp/internal/envelope"
	"github.com/roach88/carp/internal/fault"
	"github.com/roach88/carp/internal/protocols"
	"github.com/roach88/carp/internal/replay"
	"github.com/roach88/carp/internal/testutil"
	"github.com/roach88/carp/internal/wire"
)

const owner = "5b1fc6a8-0000-4000-8000-0000000000aa"

func newSession(t *testing.T, c *Catalog) *Session {
	t.Helper()
	s := c.NewSession(SessionConfig{
		Clock: testutil.NewDeterministicClock(),
		IDs:   testutil.NewSequentialIDs(),
	})
	t.Cleanup(s.Close)
	return s
}

const openRequest = `{
	"__type": "dk.cachet.carp.data.infrastructure.DataStreamServiceRequest.OpenDataStreams",
	"apiVersion": "1.0",
	"configuration": {
		"studyDeploymentId": "` + deployment + `",
		"expectedDataStreams": [{"deviceRoleName": "Phone", "dataType": "dk.cachet.carp.stepcount"}]
	}
}`

const appendRequest = `{
	"__type": "dk.cachet.carp.data.infrastructure.DataStreamServiceRequest.AppendToDataStreams",
	"apiVersion": "1.2",
	"studyDeploymentId": "` + deployment + `",
	"batch": [{
		"dataStream": {"studyDeploymentId": "` + deployment + `", "deviceRoleName": "Phone", "dataType": "dk.cachet.carp.stepcount"},
		"firstSequenceId": 0,
		"measurements": [{
			"sensorStartTime": 0,
			"sensorEndTime": null,
			"data": {
				"__type": "dk.cachet.carp.common.application.data.StepCount",
				"steps": 12,
				"sensorSpecificData": {"__type": "dk.cachet.carp.common.application.data.SignalStrength", "rssi": -60}
			}
		}],
		"triggerIds": [],
		"syncPoint": {"synchronizedOn": "1970-01-01T00:00:00Z", "sensorTimestampAtSyncPoint": 0, "relativeClockSpeed": 1}
	}]
}`

const get10Request = `{
	"__type": "dk.cachet.carp.data.infrastructure.DataStreamServiceRequest.GetDataStream",
	"apiVersion": "1.0",
	"dataStream": {"studyDeploymentId": "` + deployment + `", "deviceRoleName": "Phone", "dataType": "dk.cachet.carp.stepcount"},
	"fromSequenceId": 0
}`

func TestSessionHandleAcrossVersions(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, newCatalog(t))

	body, err := s.Handle(ctx, datastream.ServiceName, []byte(openRequest))
	require.NoError(t, err)
	assert.Equal(t, "null", string(body))

	_, err = s.Handle(ctx, datastream.ServiceName, []byte(appendRequest))
	require.NoError(t, err)

	body, err = s.Handle(ctx, datastream.ServiceName, []byte(get10Request))
	require.NoError(t, err)
	assert.NotContains(t, string(body), "sensorSpecificData", "1.0 callers get 1.0 shaped data")
	assert.Contains(t, string(body), `"steps":12`)

	log := s.Log(datastream.ServiceName)
	require.Len(t, log, 3)
	assert.Equal(t, wire.String("1.2"), log[2].Request["apiVersion"], "entries are logged at the current version")
	assert.Contains(t, string(wire.MustMarshal(log[2].Response)), "sensorSpecificData")
}

func TestSessionHandleFailures(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, newCatalog(t))

	body, err := s.Handle(ctx, "StudyService", []byte(`{}`))
	require.Error(t, err)
	failure, ok := envelope.ParseFailure(body)
	require.True(t, ok)
	assert.Equal(t, fault.CodeNotFound, failure.Type)

	body, err = s.Handle(ctx, datastream.ServiceName, []byte(get10Request))
	require.Error(t, err)
	failure, ok = envelope.ParseFailure(body)
	require.True(t, ok)
	assert.Equal(t, fault.CodeResourceNotFound, failure.Type)
	assert.Len(t, s.Log(datastream.ServiceName), 1, "service failures are logged")

	_, err = s.Handle(ctx, datastream.ServiceName, []byte(`{"apiVersion":"1.0"}`))
	assert.Equal(t, fault.CodeMalformedEnvelope, fault.CodeOf(err))
	assert.Len(t, s.Log(datastream.ServiceName), 1, "undecodable requests are not logged")
}

func TestSessionSharesEventsAcrossServices(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, newCatalog(t))

	_, err := s.Handle(ctx, datastream.ServiceName, []byte(openRequest))
	require.NoError(t, err)

	history, err := s.Protocols().GetAllForOwner(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, history)

	entries := s.Log(protocols.ServiceName)
	require.Len(t, entries, 1)
	require.Len(t, entries[0].PrecedingEvents, 1)
	assert.Equal(t, wire.String(datastream.TypeDataStreamsOpened), entries[0].PrecedingEvents[0]["__type"])
	assert.Len(t, s.Log(""), 2)
}

func TestSessionVerify(t *testing.T) {
	ctx := context.Background()
	c := newCatalog(t)
	recorded := newSession(t, c)

	_, err := recorded.Handle(ctx, datastream.ServiceName, []byte(openRequest))
	require.NoError(t, err)
	_, err = recorded.Handle(ctx, datastream.ServiceName, []byte(appendRequest))
	require.NoError(t, err)

	p := protocols.NewSnapshot(testutil.NewSequentialIDs(), testutil.Epoch, owner, "Minimal")
	p.PrimaryDevices = []protocols.Device{&protocols.Smartphone{DeviceRole: protocols.DeviceRole{Role: "Phone"}}}
	require.NoError(t, recorded.Protocols().Add(ctx, p, ""))

	_, err = recorded.DataStreams().GetDataStream(ctx, datastream.DataStreamID{
		StudyDeploymentID: deployment,
		DeviceRoleName:    "Phone",
		DataType:          data.StepCount,
	}, 0, nil)
	require.NoError(t, err)

	n, err := newSession(t, c).Verify(ctx, recorded.Log(""), replay.Normalizer{})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestSessionVerifyReportsMismatch(t *testing.T) {
	ctx := context.Background()
	c := newCatalog(t)
	recorded := newSession(t, c)

	_, err := recorded.Handle(ctx, datastream.ServiceName, []byte(openRequest))
	require.NoError(t, err)
	entries := recorded.Log("")

	// The fresh session has the deployment open already, so the replayed
	// open fails where the logged one succeeded.
	fresh := newSession(t, c)
	_, err = fresh.Handle(ctx, datastream.ServiceName, []byte(openRequest))
	require.NoError(t, err)

	_, err = fresh.Verify(ctx, entries, replay.Normalizer{})
	var mismatch *replay.MismatchError
	require.True(t, errors.As(err, &mismatch), "got %v", err)
	assert.Equal(t, datastream.OpOpenDataStreams, mismatch.Operation)

	_, err = fresh.Verify(ctx, []replay.LoggedRequest{{Service: "StudyService"}}, replay.Normalizer{})
	assert.Equal(t, fault.CodeNotFound, fault.CodeOf(err))
}

func TestSessionHandleKeepsUnknownDataVerbatim(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, newCatalog(t))

	// "Cafe" followed by a combining acute accent, not the precomposed U+00E9.
	decomposed := "Cafe\u0301"
	appendUnknown := `{
	"__type": "dk.cachet.carp.data.infrastructure.DataStreamServiceRequest.AppendToDataStreams",
	"apiVersion": "1.2",
	"studyDeploymentId": "` + deployment + `",
	"batch": [{
		"dataStream": {"studyDeploymentId": "` + deployment + `", "deviceRoleName": "Phone", "dataType": "dk.cachet.carp.stepcount"},
		"firstSequenceId": 0,
		"measurements": [{
			"sensorStartTime": 0,
			"sensorEndTime": null,
			"data": {"__type": "com.example.FutureData", "note": "` + decomposed + `"}
		}],
		"triggerIds": [],
		"syncPoint": {"synchronizedOn": "1970-01-01T00:00:00Z", "sensorTimestampAtSyncPoint": 0, "relativeClockSpeed": 1}
	}]
}`
	get12Request := `{
	"__type": "dk.cachet.carp.data.infrastructure.DataStreamServiceRequest.GetDataStream",
	"apiVersion": "1.2",
	"dataStreamId": {"studyDeploymentId": "` + deployment + `", "deviceRoleName": "Phone", "dataType": "dk.cachet.carp.stepcount"},
	"fromSequenceId": 0,
	"toSequenceIdInclusive": null
}`

	_, err := s.Handle(ctx, datastream.ServiceName, []byte(openRequest))
	require.NoError(t, err)
	_, err = s.Handle(ctx, datastream.ServiceName, []byte(appendUnknown))
	require.NoError(t, err)

	body, err := s.Handle(ctx, datastream.ServiceName, []byte(get12Request))
	require.NoError(t, err)

	got, err := wire.Parse(body)
	require.NoError(t, err)
	seqs, ok := got.(wire.Array)
	require.True(t, ok)
	require.Len(t, seqs, 1)
	measurements := seqs[0].(wire.Object)["measurements"].(wire.Array)
	require.Len(t, measurements, 1)
	datum := measurements[0].(wire.Object)["data"].(wire.Object)
	assert.Equal(t, wire.String("com.example.FutureData"), datum["__type"])
	assert.Equal(t, wire.String(decomposed), datum["note"])
}
