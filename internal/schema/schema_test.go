package schema

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/carp/internal/apiversion"
	"github.com/roach88/carp/internal/fault"
	"github.com/roach88/carp/internal/wire"
)

const (
	deployment = "a3c2f1e0-0000-4000-8000-000000000001"
	dataStream = "DataStreamService"
	getStream  = "dk.cachet.carp.data.infrastructure.DataStreamServiceRequest.GetDataStream"
)

var (
	v10 = apiversion.New(1, 0)
	v11 = apiversion.New(1, 1)
	v12 = apiversion.New(1, 2)
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := New()
	require.NoError(t, err)
	return v
}

func streamID() wire.Object {
	return wire.Object{
		"studyDeploymentId": wire.String(deployment),
		"deviceRoleName":    wire.String("Phone"),
		"dataType":          wire.String("dk.cachet.carp.stepcount"),
	}
}

func batch(data wire.Object) wire.Array {
	return wire.Array{wire.Object{
		"dataStream":      streamID(),
		"firstSequenceId": wire.Int(0),
		"measurements": wire.Array{wire.Object{
			"sensorStartTime": wire.Int(100),
			"sensorEndTime":   wire.Null{},
			"data":            data,
		}},
		"triggerIds": wire.Array{wire.Int(1)},
		"syncPoint": wire.Object{
			"synchronizedOn":             wire.String("1970-01-01T00:00:00Z"),
			"sensorTimestampAtSyncPoint": wire.Int(0),
			"relativeClockSpeed":         wire.Int(1),
		},
	}}
}

func stepCount() wire.Object {
	return wire.Object{
		"__type": wire.String("dk.cachet.carp.common.application.data.StepCount"),
		"steps":  wire.Int(12),
	}
}

func withExtras(d wire.Object) wire.Object {
	d = d.Clone()
	d["sensorSpecificData"] = wire.Object{"__type": wire.String("com.example.Extras"), "cadence": wire.Int(3)}
	return d
}

func TestNewLoadsEmbeddedSchemas(t *testing.T) {
	v := newValidator(t)

	assert.Equal(t, []string{"DataStreamService", "ProtocolService"}, v.Services())
	assert.Equal(t, []apiversion.Version{v10, v11, v12}, v.Versions(dataStream))
	assert.Equal(t, []apiversion.Version{v10}, v.Versions("ProtocolService"))
	assert.Empty(t, v.Versions("Nope"))
}

func TestVersion10ResponseHasNoSensorSpecificData(t *testing.T) {
	v := newValidator(t)

	require.NoError(t, v.ValidateResponse(dataStream, v10, getStream, batch(stepCount())))

	err := v.ValidateResponse(dataStream, v10, getStream, batch(withExtras(stepCount())))
	require.Error(t, err)
	assert.Equal(t, fault.CodeValidation, fault.CodeOf(err))
	var fe *fault.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "1.0", fe.Details["version"])

	assert.NoError(t, v.ValidateResponse(dataStream, v11, getStream, batch(withExtras(stepCount()))))
	assert.NoError(t, v.ValidateResponse(dataStream, v12, "GetDataStream", batch(withExtras(stepCount()))))
}

func TestUnknownDataPassesOpenDataShape(t *testing.T) {
	v := newValidator(t)

	mood := wire.Object{"__type": wire.String("org.example.Mood"), "score": wire.Int(4)}
	assert.NoError(t, v.ValidateResponse(dataStream, v10, getStream, batch(mood)))
}

func TestSequenceShapeIsClosed(t *testing.T) {
	v := newValidator(t)

	b := batch(stepCount())
	b[0].(wire.Object)["extra"] = wire.Bool(true)
	err := v.ValidateResponse(dataStream, v12, getStream, b)
	require.Error(t, err)
	assert.Equal(t, fault.CodeValidation, fault.CodeOf(err))
}

func TestRequestShapesPerVersion(t *testing.T) {
	v := newValidator(t)

	v10Request := wire.Object{
		"__type":         wire.String(getStream),
		"apiVersion":     wire.String("1.0"),
		"dataStream":     streamID(),
		"fromSequenceId": wire.Int(0),
	}
	require.NoError(t, v.ValidateRequest(dataStream, v10, v10Request))

	tests := []struct {
		name    string
		version apiversion.Version
		mutate  func(wire.Object)
	}{
		{"1.0 has no upper bound", v10, func(o wire.Object) { o["toSequenceIdInclusive"] = wire.Int(3) }},
		{"1.1 requires upper bound", v11, func(o wire.Object) { o["apiVersion"] = wire.String("1.1") }},
		{"1.2 renamed dataStream", v12, func(o wire.Object) {
			o["apiVersion"] = wire.String("1.2")
			o["toSequenceIdInclusive"] = wire.Null{}
		}},
		{"version field must match", v10, func(o wire.Object) { o["apiVersion"] = wire.String("1.2") }},
		{"negative sequence id", v10, func(o wire.Object) { o["fromSequenceId"] = wire.Int(-1) }},
		{"bad deployment id", v10, func(o wire.Object) {
			o["dataStream"].(wire.Object)["studyDeploymentId"] = wire.String("not-a-uuid")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := v10Request.Clone()
			tt.mutate(req)
			err := v.ValidateRequest(dataStream, tt.version, req)
			require.Error(t, err)
			assert.Equal(t, fault.CodeValidation, fault.CodeOf(err))
		})
	}

	current := v10Request.Without("dataStream")
	current["apiVersion"] = wire.String("1.2")
	current["dataStreamId"] = streamID()
	current["toSequenceIdInclusive"] = wire.Int(5)
	assert.NoError(t, v.ValidateRequest(dataStream, v12, current))
}

func TestUnitResponses(t *testing.T) {
	v := newValidator(t)

	assert.NoError(t, v.ValidateResponse(dataStream, v12, "OpenDataStreams", wire.Null{}))
	assert.Error(t, v.ValidateResponse(dataStream, v12, "OpenDataStreams", wire.Object{}))
}

func TestProtocolSchema(t *testing.T) {
	v := newValidator(t)

	history := wire.Array{wire.Object{"tag": wire.String("Initial"), "date": wire.String("2024-01-01T00:00:00Z")}}
	assert.NoError(t, v.ValidateResponse("ProtocolService", v10, "GetVersionHistoryFor", history))

	req := wire.Object{
		"__type":     wire.String("dk.cachet.carp.protocols.infrastructure.ProtocolServiceRequest.GetBy"),
		"apiVersion": wire.String("1.0"),
		"protocolId": wire.String(deployment),
		"versionTag": wire.Null{},
	}
	assert.NoError(t, v.ValidateRequest("ProtocolService", v10, req))
}

func TestMissingSchemas(t *testing.T) {
	v := newValidator(t)

	err := v.ValidateResponse(dataStream, apiversion.New(2, 0), getStream, wire.Null{})
	assert.Equal(t, fault.CodeNotFound, fault.CodeOf(err))

	err = v.ValidateResponse(dataStream, v12, "Nope", wire.Null{})
	assert.Equal(t, fault.CodeNotFound, fault.CodeOf(err))

	err = v.ValidateRequest(dataStream, v12, wire.Object{"apiVersion": wire.String("1.2")})
	assert.Equal(t, fault.CodeMalformedEnvelope, fault.CodeOf(err))
}

func TestAddFS(t *testing.T) {
	fsys := fstest.MapFS{
		"schemas/Echo_1.0.cue": {Data: []byte(`responses: Say: {text: string}`)},
		"schemas/README.md":    {Data: []byte("ignored")},
	}
	v := NewEmpty()
	require.NoError(t, v.AddFS(fsys, "schemas"))

	assert.NoError(t, v.Validate("Echo", v10, Responses, "Say", wire.Object{"text": wire.String("hi")}))
	assert.Error(t, v.Validate("Echo", v10, Responses, "Say", wire.Object{"text": wire.Int(1)}))

	err := v.AddFS(fsys, "schemas")
	assert.Equal(t, fault.CodeDuplicateRegistration, fault.CodeOf(err))
}

func TestAddRejectsBadSchemas(t *testing.T) {
	v := NewEmpty()

	err := v.Add("Broken", v10, []byte(`responses: {`))
	require.Error(t, err)
	assert.Equal(t, fault.CodeInternal, fault.CodeOf(err))

	for _, name := range []string{"NoVersion.cue", "_1.0.cue", "Svc_one.cue"} {
		err := v.AddFS(fstest.MapFS{"s/" + name: {Data: []byte(`x: 1`)}}, "s")
		assert.Error(t, err, name)
	}
}
