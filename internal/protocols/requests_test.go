package protocols

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/carp/internal/apiversion"
	"github.com/roach88/carp/internal/envelope"
	"github.com/roach88/carp/internal/fault"
	"github.com/roach88/carp/internal/schema"
	"github.com/roach88/carp/internal/testutil"
	"github.com/roach88/carp/internal/wire"
)

func TestOperations(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, []string{OpAdd, OpAddVersion, OpGetAllForOwner, OpGetBy, OpGetVersionHistoryFor}, f.codec.Operations())
	assert.Equal(t, apiversion.New(1, 0), f.codec.Current())
}

func TestAddRequestWireShape(t *testing.T) {
	f := newFixture(t)
	p := fullProtocol(testutil.NewSequentialIDs())

	obj, err := f.codec.EncodeRequest(&Add{Protocol: p, VersionTag: "v1"})
	require.NoError(t, err)
	assert.Equal(t, wire.String(OpAdd), obj["__type"])
	assert.Equal(t, wire.String("1.0"), obj["apiVersion"])
	assert.Equal(t, wire.String("v1"), obj["versionTag"])

	validator, err := schema.New()
	require.NoError(t, err)
	require.NoError(t, validator.ValidateRequest(ServiceName, Version, obj))

	req, declared, err := f.codec.DecodeRequest(obj)
	require.NoError(t, err)
	assert.Equal(t, Version, declared)
	add, ok := req.(*Add)
	require.True(t, ok, "got %T", req)
	assert.Equal(t, "v1", add.VersionTag)
	assert.Equal(t, p.Roles(), add.Protocol.Roles())
}

func TestHandleAddThenGetBy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := NewMemory(testutil.NewDeterministicClock(), nil)
	p := fullProtocol(testutil.NewSequentialIDs())

	add, err := f.codec.MarshalRequest(&Add{Protocol: p})
	require.NoError(t, err)
	body, err := f.codec.Handle(ctx, m, add)
	require.NoError(t, err)
	assert.Equal(t, "null", string(body))

	get, err := f.codec.MarshalRequest(&GetBy{ProtocolID: p.ID})
	require.NoError(t, err)
	assert.Contains(t, string(get), `"versionTag":null`)
	body, err = f.codec.Handle(ctx, m, get)
	require.NoError(t, err)

	response, err := wire.Parse(body)
	require.NoError(t, err)
	validator, err := schema.New()
	require.NoError(t, err)
	assert.NoError(t, validator.ValidateResponse(ServiceName, Version, OpGetBy, response))

	decoded, err := f.codec.DecodeResponse(OpGetBy, response)
	require.NoError(t, err)
	got, ok := decoded.(StudyProtocolSnapshot)
	require.True(t, ok, "got %T", decoded)
	assert.Equal(t, p.ID, got.ID)
	assert.Len(t, got.Triggers, 2)

	history, err := f.codec.MarshalRequest(&GetVersionHistoryFor{ProtocolID: p.ID})
	require.NoError(t, err)
	body, err = f.codec.Handle(ctx, m, history)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"tag":"Initial","date":"2024-01-01T00:00:00Z"}]`, string(body))
}

func TestHandleFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := NewMemory(testutil.NewDeterministicClock(), nil)

	tests := []struct {
		name string
		body string
		want fault.Code
	}{
		{"newer version", `{"__type":"` + OpGetAllForOwner + `","apiVersion":"1.1","ownerId":"` + owner + `"}`, fault.CodeUnsupportedVersion},
		{"missing version", `{"__type":"` + OpGetAllForOwner + `","ownerId":"` + owner + `"}`, fault.CodeMalformedEnvelope},
		{"unknown operation", `{"__type":"` + string(RequestBase) + `.Delete","apiVersion":"1.0","protocolId":"` + owner + `"}`, fault.CodeMalformedEnvelope},
		{"invalid owner", `{"__type":"` + OpGetAllForOwner + `","apiVersion":"1.0","ownerId":"me"}`, fault.CodeValidation},
		{"missing protocol", `{"__type":"` + OpGetVersionHistoryFor + `","apiVersion":"1.0","protocolId":"` + owner + `"}`, fault.CodeResourceNotFound},
		{"blank version tag", `{"__type":"` + OpAddVersion + `","apiVersion":"1.0","versionTag":"","protocol":{}}`, fault.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := f.codec.Handle(ctx, m, []byte(tt.body))
			require.Error(t, err)
			assert.Equal(t, tt.want, fault.CodeOf(err))

			failure, ok := envelope.ParseFailure(body)
			require.True(t, ok, "body is a failure document: %s", body)
			assert.Equal(t, tt.want, failure.Type)
		})
	}
}

func TestRequestValidate(t *testing.T) {
	valid := minimal(testutil.NewSequentialIDs())

	assert.NoError(t, (&Add{Protocol: valid}).Validate())
	assert.Error(t, (&AddVersion{Protocol: valid}).Validate(), "version tag is required")
	assert.NoError(t, (&AddVersion{Protocol: valid, VersionTag: "v2"}).Validate())
	assert.Error(t, (&GetBy{ProtocolID: "x"}).Validate())
	assert.NoError(t, (&GetBy{ProtocolID: valid.ID}).Validate())
	assert.Error(t, (&GetVersionHistoryFor{}).Validate())
}
