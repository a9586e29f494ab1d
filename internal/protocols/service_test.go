package protocols

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/carp/internal/eventbus"
	"github.com/roach88/carp/internal/fault"
	"github.com/roach88/carp/internal/testutil"
)

func openMemory(t *testing.T) (*Memory, *eventbus.Recorder) {
	t.Helper()
	bus := eventbus.NewDiscard()
	rec := &eventbus.Recorder{}
	cancel := bus.Observe(rec.Record)
	t.Cleanup(cancel)
	return NewMemory(testutil.NewDeterministicClock(), bus), rec
}

func TestAddAndGet(t *testing.T) {
	ctx := context.Background()
	m, rec := openMemory(t)
	p := fullProtocol(testutil.NewSequentialIDs())

	require.NoError(t, m.Add(ctx, p, ""))

	got, err := m.GetBy(ctx, p.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, p.Name, got.Name)
	assert.Len(t, got.Tasks, 2)

	history, err := m.GetVersionHistoryFor(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []ProtocolVersion{{Tag: DefaultVersionTag, Date: testutil.Epoch}}, history)

	assert.Equal(t, []eventbus.Event{
		&ProtocolAdded{ProtocolID: p.ID, OwnerID: owner, VersionTag: DefaultVersionTag},
	}, rec.Drain())
}

func TestAddRejectsDuplicateAndInvalid(t *testing.T) {
	ctx := context.Background()
	m, rec := openMemory(t)
	p := minimal(testutil.NewSequentialIDs())
	require.NoError(t, m.Add(ctx, p, "v1"))
	rec.Drain()

	err := m.Add(ctx, p, "v2")
	assert.Equal(t, fault.CodeConflict, fault.CodeOf(err))

	invalid := minimal(testutil.NewSequentialIDs())
	invalid.ID = "not-a-uuid"
	err = m.Add(ctx, invalid, "")
	assert.Equal(t, fault.CodeValidation, fault.CodeOf(err))

	assert.Zero(t, rec.Len(), "failed adds publish nothing")
}

func TestAddVersion(t *testing.T) {
	ctx := context.Background()
	m, rec := openMemory(t)
	gen := testutil.NewSequentialIDs()
	p := minimal(gen)
	require.NoError(t, m.Add(ctx, p, "v1"))

	updated := p
	updated.Description = "Now with a heart rate belt."
	updated.ConnectedDevices = []Device{&BLEHeartRateDevice{DeviceRole{Role: "Polar"}}}
	require.NoError(t, m.AddVersion(ctx, updated, "v2"))

	latest, err := m.GetBy(ctx, p.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Phone", "Polar"}, latest.Roles())

	v1 := "v1"
	first, err := m.GetBy(ctx, p.ID, &v1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Phone"}, first.Roles())

	history, err := m.GetVersionHistoryFor(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []ProtocolVersion{
		{Tag: "v1", Date: testutil.Epoch},
		{Tag: "v2", Date: testutil.Epoch.Add(time.Second)},
	}, history)

	events := rec.Drain()
	require.Len(t, events, 2)
	assert.Equal(t, &ProtocolVersionAdded{ProtocolID: p.ID, VersionTag: "v2"}, events[1])
}

func TestAddVersionErrors(t *testing.T) {
	ctx := context.Background()
	m, _ := openMemory(t)
	gen := testutil.NewSequentialIDs()
	p := minimal(gen)
	require.NoError(t, m.Add(ctx, p, "v1"))

	tests := []struct {
		name   string
		modify func(p *StudyProtocolSnapshot)
		tag    string
		want   fault.Code
	}{
		{"blank tag", func(*StudyProtocolSnapshot) {}, "", fault.CodeValidation},
		{"duplicate tag", func(*StudyProtocolSnapshot) {}, "v1", fault.CodeConflict},
		{"unknown protocol", func(p *StudyProtocolSnapshot) { p.ID = gen.Generate() }, "v2", fault.CodeResourceNotFound},
		{"other owner", func(p *StudyProtocolSnapshot) { p.OwnerID = otherOwner }, "v2", fault.CodeValidation},
		{"invalid protocol", func(p *StudyProtocolSnapshot) { p.Name = "" }, "v2", fault.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version := p
			tt.modify(&version)
			err := m.AddVersion(ctx, version, tt.tag)
			assert.Equal(t, tt.want, fault.CodeOf(err))
		})
	}

	history, err := m.GetVersionHistoryFor(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1, "failed versions are not stored")
}

func TestGetByMissing(t *testing.T) {
	ctx := context.Background()
	m, _ := openMemory(t)
	gen := testutil.NewSequentialIDs()
	p := minimal(gen)
	require.NoError(t, m.Add(ctx, p, ""))

	_, err := m.GetBy(ctx, gen.Generate(), nil)
	assert.Equal(t, fault.CodeResourceNotFound, fault.CodeOf(err))

	tag := "v9"
	_, err = m.GetBy(ctx, p.ID, &tag)
	assert.Equal(t, fault.CodeResourceNotFound, fault.CodeOf(err))

	_, err = m.GetVersionHistoryFor(ctx, gen.Generate())
	assert.Equal(t, fault.CodeResourceNotFound, fault.CodeOf(err))
}

func TestGetAllForOwner(t *testing.T) {
	ctx := context.Background()
	m, _ := openMemory(t)
	gen := testutil.NewSequentialIDs()

	first := minimal(gen)
	second := fullProtocol(gen)
	foreign := minimal(gen)
	foreign.OwnerID = otherOwner
	for _, p := range []StudyProtocolSnapshot{second, foreign, first} {
		require.NoError(t, m.Add(ctx, p, ""))
	}

	mine, err := m.GetAllForOwner(ctx, owner)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, second.ID, mine[0].ID, "insertion order")
	assert.Equal(t, first.ID, mine[1].ID)

	none, err := m.GetAllForOwner(ctx, "5b1fc6a8-0000-4000-8000-0000000000cc")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	_, err = m.GetAllForOwner(ctx, "owner")
	assert.Equal(t, fault.CodeValidation, fault.CodeOf(err))
}

func TestMemoryWithoutEvents(t *testing.T) {
	m := NewMemory(nil, nil)
	p := minimal(testutil.NewSequentialIDs())
	require.NoError(t, m.Add(context.Background(), p, ""))

	history, err := m.GetVersionHistoryFor(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.False(t, history[0].Date.IsZero())
}
