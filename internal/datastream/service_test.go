package datastream

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/carp/internal/data"
	"github.com/roach88/carp/internal/eventbus"
	"github.com/roach88/carp/internal/fault"
)

func openMemory(t *testing.T) (*Memory, *eventbus.Recorder) {
	t.Helper()
	bus := eventbus.NewDiscard()
	rec := &eventbus.Recorder{}
	bus.Observe(rec.Record)

	m := NewMemory(bus)
	require.NoError(t, m.OpenDataStreams(context.Background(), config()))
	return m, rec
}

func TestOpenDataStreams(t *testing.T) {
	m, rec := openMemory(t)
	ctx := context.Background()

	events := rec.Drain()
	require.Len(t, events, 1)
	assert.Equal(t, &DataStreamsOpened{StudyDeploymentID: deploymentID}, events[0])

	err := m.OpenDataStreams(ctx, config())
	assert.Equal(t, fault.CodeConflict, fault.CodeOf(err))

	err = m.OpenDataStreams(ctx, Configuration{StudyDeploymentID: otherDeployment})
	assert.Equal(t, fault.CodeValidation, fault.CodeOf(err))
	assert.Zero(t, rec.Len())
}

func TestAppendAndGet(t *testing.T) {
	m, _ := openMemory(t)
	ctx := context.Background()

	require.NoError(t, m.AppendToDataStreams(ctx, deploymentID, Batch{steps(0, 5, 6)}))
	require.NoError(t, m.AppendToDataStreams(ctx, deploymentID, Batch{steps(2, 7)}))

	got, err := m.GetDataStream(ctx, phoneSteps(), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 6, 7}, counts(got))
	require.Len(t, got, 1, "continuations are merged")

	to := int64(1)
	got, err = m.GetDataStream(ctx, phoneSteps(), 1, &to)
	require.NoError(t, err)
	assert.Equal(t, []int64{6}, counts(got))

	got, err = m.GetDataStream(ctx, phoneLocation(), 0, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAppendFailures(t *testing.T) {
	ctx := context.Background()

	unconfigured := steps(0, 1)
	unconfigured.DataStream.DeviceRoleName = "Watch"

	foreign := steps(0, 1)
	foreign.DataStream.StudyDeploymentID = otherDeployment

	mismatched := steps(0, 1)
	mismatched.Measurements[0].Data = &data.GeolocationData{}

	tests := []struct {
		name       string
		deployment string
		batch      Batch
		want       fault.Code
	}{
		{"unknown deployment", otherDeployment, Batch{foreign}, fault.CodeResourceNotFound},
		{"foreign sequence", deploymentID, Batch{foreign}, fault.CodeValidation},
		{"unconfigured stream", deploymentID, Batch{unconfigured}, fault.CodeValidation},
		{"wrong data type", deploymentID, Batch{mismatched}, fault.CodeValidation},
		{"overlap within batch", deploymentID, Batch{steps(0, 1, 2), steps(1, 3)}, fault.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := openMemory(t)
			err := m.AppendToDataStreams(ctx, tt.deployment, tt.batch)
			require.Error(t, err)
			assert.Equal(t, tt.want, fault.CodeOf(err))

			got, err := m.GetDataStream(ctx, phoneSteps(), 0, nil)
			require.NoError(t, err)
			assert.Empty(t, got, "failed append must not store anything")
		})
	}
}

func TestGetDataStreamFailures(t *testing.T) {
	m, _ := openMemory(t)
	ctx := context.Background()

	watch := phoneSteps()
	watch.DeviceRoleName = "Watch"
	_, err := m.GetDataStream(ctx, watch, 0, nil)
	assert.Equal(t, fault.CodeResourceNotFound, fault.CodeOf(err))

	other := phoneSteps()
	other.StudyDeploymentID = otherDeployment
	_, err = m.GetDataStream(ctx, other, 0, nil)
	assert.Equal(t, fault.CodeResourceNotFound, fault.CodeOf(err))

	_, err = m.GetDataStream(ctx, phoneSteps(), -1, nil)
	assert.Equal(t, fault.CodeValidation, fault.CodeOf(err))

	to := int64(2)
	_, err = m.GetDataStream(ctx, phoneSteps(), 3, &to)
	assert.Equal(t, fault.CodeValidation, fault.CodeOf(err))
}

func TestCloseDataStreams(t *testing.T) {
	m, rec := openMemory(t)
	ctx := context.Background()
	rec.Drain()

	err := m.CloseDataStreams(ctx, []string{deploymentID, otherDeployment})
	assert.Equal(t, fault.CodeResourceNotFound, fault.CodeOf(err))
	require.NoError(t, m.AppendToDataStreams(ctx, deploymentID, Batch{steps(0, 1)}), "failed close must close nothing")

	require.NoError(t, m.CloseDataStreams(ctx, []string{deploymentID}))
	assert.Equal(t, []eventbus.Event{&DataStreamsClosed{StudyDeploymentIDs: []string{deploymentID}}}, rec.Drain())

	err = m.AppendToDataStreams(ctx, deploymentID, Batch{steps(1, 2)})
	assert.Equal(t, fault.CodeConflict, fault.CodeOf(err))

	got, err := m.GetDataStream(ctx, phoneSteps(), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, counts(got), "closed streams stay readable")
}

func TestRemoveDataStreams(t *testing.T) {
	m, _ := openMemory(t)
	ctx := context.Background()

	removed, err := m.RemoveDataStreams(ctx, []string{otherDeployment, deploymentID, deploymentID})
	require.NoError(t, err)
	assert.Equal(t, []string{deploymentID}, removed)

	removed, err = m.RemoveDataStreams(ctx, []string{deploymentID})
	require.NoError(t, err)
	assert.Equal(t, []string{}, removed)

	_, err = m.GetDataStream(ctx, phoneSteps(), 0, nil)
	assert.Equal(t, fault.CodeResourceNotFound, fault.CodeOf(err))

	_, err = m.RemoveDataStreams(ctx, []string{"nope"})
	assert.Equal(t, fault.CodeValidation, fault.CodeOf(err))
}
