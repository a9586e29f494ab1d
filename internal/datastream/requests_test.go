package datastream

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/carp/internal/apiversion"
	"github.com/roach88/carp/internal/data"
	"github.com/roach88/carp/internal/envelope"
	"github.com/roach88/carp/internal/fault"
	"github.com/roach88/carp/internal/schema"
	"github.com/roach88/carp/internal/wire"
)

// withExtras stores one step count carrying sensor-specific data.
func withExtras(t *testing.T) *Memory {
	t.Helper()
	m, _ := openMemory(t)

	s := steps(0, 12)
	s.Measurements[0].Data = &data.StepCountData{
		Sensor: data.Sensor{SensorSpecificData: &data.SignalStrengthData{RSSI: -60}},
		Steps:  12,
	}
	require.NoError(t, m.AppendToDataStreams(context.Background(), deploymentID, Batch{s}))
	return m
}

const streamJSON = `{"studyDeploymentId":"` + deploymentID + `","deviceRoleName":"Phone","dataType":"dk.cachet.carp.stepcount"}`

func getRequest(version string) string {
	switch version {
	case "1.0":
		return `{"__type":"` + OpGetDataStream + `","apiVersion":"1.0","dataStream":` + streamJSON + `,"fromSequenceId":0}`
	case "1.1":
		return `{"__type":"` + OpGetDataStream + `","apiVersion":"1.1","dataStream":` + streamJSON + `,"fromSequenceId":0,"toSequenceIdInclusive":null}`
	default:
		return fmt.Sprintf(`{"__type":%q,"apiVersion":%q,"dataStreamId":%s,"fromSequenceId":0,"toSequenceIdInclusive":null}`,
			OpGetDataStream, version, streamJSON)
	}
}

func TestGetDataStreamForVersion10Caller(t *testing.T) {
	f := newFixture(t)
	m := withExtras(t)
	validator, err := schema.New()
	require.NoError(t, err)

	request, err := wire.ParseObject([]byte(getRequest("1.0")))
	require.NoError(t, err)
	require.NoError(t, validator.ValidateRequest(ServiceName, apiversion.New(1, 0), request))

	body, err := f.codec.Handle(context.Background(), m, []byte(getRequest("1.0")))
	require.NoError(t, err)
	assert.NotContains(t, string(body), "sensorSpecificData")

	response, err := wire.Parse(body)
	require.NoError(t, err)
	assert.NoError(t, validator.ValidateResponse(ServiceName, apiversion.New(1, 0), OpGetDataStream, response))
}

func TestGetDataStreamForCurrentCaller(t *testing.T) {
	f := newFixture(t)
	m := withExtras(t)
	validator, err := schema.New()
	require.NoError(t, err)

	for _, version := range []string{"1.1", "1.2"} {
		t.Run(version, func(t *testing.T) {
			body, err := f.codec.Handle(context.Background(), m, []byte(getRequest(version)))
			require.NoError(t, err)
			assert.Contains(t, string(body), `"sensorSpecificData":{"__type":"dk.cachet.carp.common.application.data.SignalStrength","rssi":-60}`)

			response, err := wire.Parse(body)
			require.NoError(t, err)
			v := apiversion.MustParse(version)
			assert.NoError(t, validator.ValidateResponse(ServiceName, v, OpGetDataStream, response))

			err = validator.ValidateResponse(ServiceName, apiversion.New(1, 0), OpGetDataStream, response)
			assert.Equal(t, fault.CodeValidation, fault.CodeOf(err), "1.0 shape has no sensorSpecificData")
		})
	}
}

func TestOldRequestsDecodeToCurrentShape(t *testing.T) {
	f := newFixture(t)

	for _, version := range []string{"1.0", "1.1", "1.2"} {
		t.Run(version, func(t *testing.T) {
			req, declared, err := f.codec.UnmarshalRequest([]byte(getRequest(version)))
			require.NoError(t, err)
			assert.Equal(t, apiversion.MustParse(version), declared)
			assert.Equal(t, &GetDataStream{DataStreamID: phoneSteps()}, req)
		})
	}
}

func TestGetDataStreamFutureVersion(t *testing.T) {
	f := newFixture(t)

	body, err := f.codec.Handle(context.Background(), withExtras(t), []byte(getRequest("1.3")))
	require.Error(t, err)
	failure, ok := envelope.ParseFailure(body)
	require.True(t, ok)
	assert.Equal(t, fault.CodeUnsupportedVersion, failure.Type)
}

func TestAppendRequestKeepsUnknownData(t *testing.T) {
	f := newFixture(t)
	m, _ := openMemory(t)

	body := `{"__type":"` + OpAppendToDataStreams + `","apiVersion":"1.2","studyDeploymentId":"` + deploymentID + `","batch":[` +
		`{"dataStream":` + streamJSON + `,"firstSequenceId":0,"triggerIds":[],` +
		`"syncPoint":{"synchronizedOn":"1970-01-01T00:00:00Z","sensorTimestampAtSyncPoint":0,"relativeClockSpeed":1},` +
		`"measurements":[{"sensorStartTime":5,"data":{"__type":"org.example.Mood","score":4}}]}]}`

	out, err := f.codec.Handle(context.Background(), m, []byte(body))
	require.NoError(t, err)
	assert.Equal(t, "null", string(out))

	got, err := f.codec.Handle(context.Background(), m, []byte(getRequest("1.2")))
	require.NoError(t, err)
	assert.Contains(t, string(got), `"data":{"__type":"org.example.Mood","score":4}`)
}

func TestRequestValidation(t *testing.T) {
	f := newFixture(t)
	m, _ := openMemory(t)

	body := fmt.Sprintf(`{"__type":%q,"apiVersion":"1.2","studyDeploymentIds":["nope"]}`, OpCloseDataStreams)
	out, err := f.codec.Handle(context.Background(), m, []byte(body))
	require.Error(t, err)
	failure, ok := envelope.ParseFailure(out)
	require.True(t, ok)
	assert.Equal(t, fault.CodeValidation, failure.Type)
}

func TestOperations(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, []string{
		OpAppendToDataStreams,
		OpCloseDataStreams,
		OpGetDataStream,
		OpOpenDataStreams,
		OpRemoveDataStreams,
	}, f.codec.Operations())
	assert.Equal(t, Version, f.codec.Current())
}
