package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/carp/internal/apiversion"
	"github.com/roach88/carp/internal/data"
	"github.com/roach88/carp/internal/datastream"
	"github.com/roach88/carp/internal/eventbus"
	"github.com/roach88/carp/internal/fault"
	"github.com/roach88/carp/internal/polymorphic"
	"github.com/roach88/carp/internal/protocols"
	"github.com/roach88/carp/internal/wire"
)

const deployment = "a3c2f1e0-0000-4000-8000-000000000001"

func newCatalog(t *testing.T, opts ...Option) *Catalog {
	t.Helper()
	c, err := New(append([]Option{WithDiscardLogger()}, opts...)...)
	require.NoError(t, err)
	return c
}

func TestNewRegistersEverything(t *testing.T) {
	c := newCatalog(t)

	assert.True(t, c.Registry.Frozen())
	assert.ElementsMatch(t, []polymorphic.BaseType{
		data.BaseType,
		protocols.MeasureBase,
		protocols.DeviceBase,
		protocols.TaskBase,
		protocols.TriggerBase,
		eventbus.BaseType,
		datastream.RequestBase,
		protocols.RequestBase,
	}, c.Registry.Bases())

	assert.Contains(t, c.Registry.Discriminators(eventbus.BaseType), datastream.TypeDataStreamsOpened)
	assert.Contains(t, c.Registry.Discriminators(eventbus.BaseType), protocols.TypeProtocolAdded)
	assert.Equal(t, []string{datastream.ServiceName, protocols.ServiceName}, c.Services())
	assert.Equal(t, c.Services(), c.Schemas.Services())
}

func TestCatalogsAreIndependent(t *testing.T) {
	first := newCatalog(t)
	second := newCatalog(t)
	assert.NotSame(t, first.Registry, second.Registry)
	assert.Equal(t, first.Registry.Bases(), second.Registry.Bases())
}

func TestCurrentAndOperations(t *testing.T) {
	c := newCatalog(t)

	v, err := c.Current(datastream.ServiceName)
	require.NoError(t, err)
	assert.Equal(t, apiversion.New(1, 2), v)

	ops, err := c.Operations(protocols.ServiceName)
	require.NoError(t, err)
	assert.Len(t, ops, 5)

	_, err = c.Current("StudyService")
	assert.Equal(t, fault.CodeNotFound, fault.CodeOf(err))
}

func TestMigrateRequest(t *testing.T) {
	c := newCatalog(t)
	stream := wire.Object{
		"studyDeploymentId": wire.String(deployment),
		"deviceRoleName":    wire.String("Phone"),
		"dataType":          wire.String("dk.cachet.carp.stepcount"),
	}
	old := wire.Object{
		"__type":         wire.String(datastream.OpGetDataStream),
		"apiVersion":     wire.String("1.0"),
		"dataStream":     stream,
		"fromSequenceId": wire.Int(0),
	}

	m, err := c.MigrateRequest(datastream.ServiceName, old)
	require.NoError(t, err)
	assert.Equal(t, datastream.OpGetDataStream, m.Operation)
	assert.Equal(t, apiversion.New(1, 0), m.Declared)
	assert.Equal(t, apiversion.New(1, 2), m.Current)
	assert.Equal(t, wire.Object{
		"__type":                wire.String(datastream.OpGetDataStream),
		"apiVersion":            wire.String("1.2"),
		"dataStreamId":          stream,
		"fromSequenceId":        wire.Int(0),
		"toSequenceIdInclusive": wire.Null{},
	}, m.Request)
	assert.Contains(t, old, "dataStream", "input is not modified")

	require.NoError(t, c.Schemas.ValidateRequest(datastream.ServiceName, m.Current, m.Request))
}

func TestMigrateRequestFailures(t *testing.T) {
	c := newCatalog(t)

	tests := []struct {
		name    string
		service string
		request wire.Object
		want    fault.Code
	}{
		{"unknown service", "StudyService", wire.Object{}, fault.CodeNotFound},
		{"no version", datastream.ServiceName, wire.Object{"__type": wire.String(datastream.OpCloseDataStreams)}, fault.CodeMalformedEnvelope},
		{"newer version", protocols.ServiceName, wire.Object{
			"__type":     wire.String(protocols.OpGetAllForOwner),
			"apiVersion": wire.String("2.0"),
		}, fault.CodeUnsupportedVersion},
		{"not 1.0 shaped", datastream.ServiceName, wire.Object{
			"__type":             wire.String(datastream.OpCloseDataStreams),
			"apiVersion":         wire.String("1.0"),
			"studyDeploymentIds": wire.String(deployment),
		}, fault.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.MigrateRequest(tt.service, tt.request)
			require.Error(t, err)
			assert.Equal(t, tt.want, fault.CodeOf(err))
		})
	}
}

func TestCustomDiscriminatorField(t *testing.T) {
	c := newCatalog(t, WithDiscriminatorField("$type"))
	assert.Equal(t, "$type", c.Registry.DiscriminatorField())

	d, err := c.Data.Encode(&data.StepCountData{Steps: 3})
	require.NoError(t, err)
	assert.Equal(t, wire.String(data.TypeStepCount), d["$type"])

	m, err := c.MigrateRequest(datastream.ServiceName, wire.Object{
		"$type":              wire.String(datastream.OpCloseDataStreams),
		"apiVersion":         wire.String("1.1"),
		"studyDeploymentIds": wire.Array{wire.String(deployment)},
	})
	require.NoError(t, err)
	assert.Equal(t, wire.String("1.2"), m.Request["apiVersion"])
}
