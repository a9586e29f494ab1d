package datastream

import (
	"context"
	"fmt"

	"github.com/roach88/carp/internal/replay"
)

// LoggedService is a Service that sends every call through a logging proxy,
// so the calls can be stored and replayed as requests.
type LoggedService struct {
	proxy *replay.Proxy[Service]
}

var _ Service = (*LoggedService)(nil)

// NewLoggedService wraps p.
func NewLoggedService(p *replay.Proxy[Service]) *LoggedService {
	return &LoggedService{proxy: p}
}

// Proxy returns the underlying proxy, e.g. to read its log.
func (s *LoggedService) Proxy() *replay.Proxy[Service] {
	return s.proxy
}

func (s *LoggedService) OpenDataStreams(ctx context.Context, cfg Configuration) error {
	_, err := s.proxy.Invoke(ctx, &OpenDataStreams{Configuration: cfg})
	return err
}

func (s *LoggedService) AppendToDataStreams(ctx context.Context, studyDeploymentID string, batch Batch) error {
	_, err := s.proxy.Invoke(ctx, &AppendToDataStreams{StudyDeploymentID: studyDeploymentID, Batch: batch})
	return err
}

func (s *LoggedService) GetDataStream(ctx context.Context, id DataStreamID, from int64, toInclusive *int64) (Batch, error) {
	result, err := s.proxy.Invoke(ctx, &GetDataStream{DataStreamID: id, FromSequenceID: from, ToSequenceIDInclusive: toInclusive})
	if err != nil {
		return nil, err
	}
	batch, ok := result.(Batch)
	if !ok {
		return nil, fmt.Errorf("GetDataStream returned %T", result)
	}
	return batch, nil
}

func (s *LoggedService) CloseDataStreams(ctx context.Context, studyDeploymentIDs []string) error {
	_, err := s.proxy.Invoke(ctx, &CloseDataStreams{StudyDeploymentIDs: studyDeploymentIDs})
	return err
}

func (s *LoggedService) RemoveDataStreams(ctx context.Context, studyDeploymentIDs []string) ([]string, error) {
	result, err := s.proxy.Invoke(ctx, &RemoveDataStreams{StudyDeploymentIDs: studyDeploymentIDs})
	if err != nil {
		return nil, err
	}
	removed, ok := result.([]string)
	if !ok {
		return nil, fmt.Errorf("RemoveDataStreams returned %T", result)
	}
	return removed, nil
}
