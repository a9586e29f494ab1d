package datastream

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/carp/internal/eventbus"
	"github.com/roach88/carp/internal/fault"
	"github.com/roach88/carp/internal/ids"
)

// Service stores and retrieves the data streams of study deployments.
type Service interface {
	// OpenDataStreams starts accepting data for the streams in cfg.
	// Fails with a conflict when the deployment was opened before.
	OpenDataStreams(ctx context.Context, cfg Configuration) error

	// AppendToDataStreams stores batch for an open deployment. All
	// sequences must belong to configured streams of studyDeploymentID.
	AppendToDataStreams(ctx context.Context, studyDeploymentID string, batch Batch) error

	// GetDataStream returns the measurements of id with sequence IDs in
	// [from, toInclusive]. A nil toInclusive reads to the end.
	GetDataStream(ctx context.Context, id DataStreamID, from int64, toInclusive *int64) (Batch, error)

	// CloseDataStreams stops accepting data for the deployments. Either all
	// of them are closed or none is.
	CloseDataStreams(ctx context.Context, studyDeploymentIDs []string) error

	// RemoveDataStreams deletes the deployments' streams and data and
	// returns the IDs that existed.
	RemoveDataStreams(ctx context.Context, studyDeploymentIDs []string) ([]string, error)
}

type deployment struct {
	config Configuration
	closed bool
	data   Batch
}

// Memory is a Service that keeps everything in memory. Safe for concurrent
// use.
type Memory struct {
	mu          sync.Mutex
	deployments map[string]*deployment
	events      eventbus.Publisher
}

var _ Service = (*Memory)(nil)

// NewMemory creates an empty service that publishes to events. events may be
// nil.
func NewMemory(events eventbus.Publisher) *Memory {
	return &Memory{deployments: make(map[string]*deployment), events: events}
}

func (m *Memory) OpenDataStreams(ctx context.Context, cfg Configuration) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	if _, exists := m.deployments[cfg.StudyDeploymentID]; exists {
		m.mu.Unlock()
		return fault.Conflict("data streams for study deployment %s are already open", cfg.StudyDeploymentID)
	}
	cfg.ExpectedDataStreams = slices.Clone(cfg.ExpectedDataStreams)
	m.deployments[cfg.StudyDeploymentID] = &deployment{config: cfg, data: Batch{}}
	m.mu.Unlock()

	return m.publish(ctx, &DataStreamsOpened{StudyDeploymentID: cfg.StudyDeploymentID})
}

func (m *Memory) AppendToDataStreams(_ context.Context, studyDeploymentID string, batch Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, err := m.open(studyDeploymentID)
	if err != nil {
		return err
	}
	if d.closed {
		return fault.Conflict("data streams for study deployment %s are closed", studyDeploymentID)
	}

	for i, s := range batch {
		if s.DataStream.StudyDeploymentID != studyDeploymentID {
			return fault.Validation("batch", "[%d] belongs to study deployment %s", i, s.DataStream.StudyDeploymentID)
		}
		if err := s.Validate(); err != nil {
			return err
		}
		if !d.config.Expects(s.DataStream) {
			return fault.Validation("batch", "[%d] targets unconfigured stream %s/%s",
				i, s.DataStream.DeviceRoleName, s.DataStream.DataType)
		}
	}

	// Stage on a copy so a late overlap leaves stored data untouched.
	staged := slices.Clone(d.data)
	for i, s := range batch {
		if err := staged.Append(s); err != nil {
			return fault.Wrap(fault.CodeValidation, err, "batch[%d]", i)
		}
	}
	d.data = staged
	return nil
}

func (m *Memory) GetDataStream(_ context.Context, id DataStreamID, from int64, toInclusive *int64) (Batch, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	if from < 0 {
		return nil, fault.Validation("fromSequenceId", "must be non-negative, got %d", from)
	}
	if toInclusive != nil && *toInclusive < from {
		return nil, fault.Validation("toSequenceIdInclusive", "%d is before fromSequenceId %d", *toInclusive, from)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	d, err := m.open(id.StudyDeploymentID)
	if err != nil {
		return nil, err
	}
	if !d.config.Expects(id) {
		return nil, fault.ResourceNotFound("no data stream %s/%s in study deployment %s",
			id.DeviceRoleName, id.DataType, id.StudyDeploymentID)
	}
	return d.data.Range(id, from, toInclusive), nil
}

func (m *Memory) CloseDataStreams(ctx context.Context, studyDeploymentIDs []string) error {
	if err := validIDs(studyDeploymentIDs); err != nil {
		return err
	}

	m.mu.Lock()
	for _, id := range studyDeploymentIDs {
		if _, err := m.open(id); err != nil {
			m.mu.Unlock()
			return err
		}
	}
	for _, id := range studyDeploymentIDs {
		m.deployments[id].closed = true
	}
	m.mu.Unlock()

	return m.publish(ctx, &DataStreamsClosed{StudyDeploymentIDs: slices.Clone(studyDeploymentIDs)})
}

func (m *Memory) RemoveDataStreams(_ context.Context, studyDeploymentIDs []string) ([]string, error) {
	if err := validIDs(studyDeploymentIDs); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := []string{}
	for _, id := range studyDeploymentIDs {
		if _, ok := m.deployments[id]; ok && !slices.Contains(removed, id) {
			delete(m.deployments, id)
			removed = append(removed, id)
		}
	}
	return removed, nil
}

// open returns the deployment; m.mu must be held.
func (m *Memory) open(studyDeploymentID string) (*deployment, error) {
	d, ok := m.deployments[studyDeploymentID]
	if !ok {
		return nil, fault.ResourceNotFound("no data streams for study deployment %s", studyDeploymentID)
	}
	return d, nil
}

func (m *Memory) publish(ctx context.Context, e eventbus.Event) error {
	if m.events == nil {
		return nil
	}
	if err := m.events.Publish(ctx, e); err != nil {
		return fmt.Errorf("publish %s: %w", e.TypeName(), err)
	}
	return nil
}

func validIDs(studyDeploymentIDs []string) error {
	for i, id := range studyDeploymentIDs {
		if !ids.Valid(id) {
			return fault.Validation("studyDeploymentIds", "[%d] %q is not a UUID", i, id)
		}
	}
	return nil
}
