package datastream

import (
	"slices"
	"time"

	"github.com/roach88/carp/internal/data"
	"github.com/roach88/carp/internal/fault"
	"github.com/roach88/carp/internal/ids"
)

// DataStreamID identifies one stream: the data of one type collected by one
// device in one study deployment.
type DataStreamID struct {
	StudyDeploymentID string        `json:"studyDeploymentId"`
	DeviceRoleName    string        `json:"deviceRoleName"`
	DataType          data.DataType `json:"dataType"`
}

// Validate checks every component.
func (id DataStreamID) Validate() error {
	if !ids.Valid(id.StudyDeploymentID) {
		return fault.Validation("studyDeploymentId", "%q is not a UUID", id.StudyDeploymentID)
	}
	if id.DeviceRoleName == "" {
		return fault.Validation("deviceRoleName", "must not be blank")
	}
	if err := id.DataType.Validate(); err != nil {
		return fault.Validation("dataType", "%v", err)
	}
	return nil
}

// ExpectedDataStream is a stream a deployment is configured to receive.
type ExpectedDataStream struct {
	DeviceRoleName string        `json:"deviceRoleName"`
	DataType       data.DataType `json:"dataType"`
}

// Configuration lists the streams of one deployment.
type Configuration struct {
	StudyDeploymentID   string               `json:"studyDeploymentId"`
	ExpectedDataStreams []ExpectedDataStream `json:"expectedDataStreams"`
}

// Validate checks the deployment ID and that expected streams are present
// and distinct.
func (c Configuration) Validate() error {
	if !ids.Valid(c.StudyDeploymentID) {
		return fault.Validation("studyDeploymentId", "%q is not a UUID", c.StudyDeploymentID)
	}
	if len(c.ExpectedDataStreams) == 0 {
		return fault.Validation("expectedDataStreams", "at least one stream is required")
	}
	seen := make(map[ExpectedDataStream]bool, len(c.ExpectedDataStreams))
	for _, s := range c.ExpectedDataStreams {
		id := DataStreamID{StudyDeploymentID: c.StudyDeploymentID, DeviceRoleName: s.DeviceRoleName, DataType: s.DataType}
		if err := id.Validate(); err != nil {
			return err
		}
		if seen[s] {
			return fault.Validation("expectedDataStreams", "duplicate stream %s/%s", s.DeviceRoleName, s.DataType)
		}
		seen[s] = true
	}
	return nil
}

// Expects reports whether id is one of the configured streams.
func (c Configuration) Expects(id DataStreamID) bool {
	return id.StudyDeploymentID == c.StudyDeploymentID &&
		slices.Contains(c.ExpectedDataStreams, ExpectedDataStream{DeviceRoleName: id.DeviceRoleName, DataType: id.DataType})
}

// SyncPoint relates a sensor clock to UTC.
type SyncPoint struct {
	// SynchronizedOn is an RFC 3339 UTC instant.
	SynchronizedOn             string  `json:"synchronizedOn"`
	SensorTimestampAtSyncPoint int64   `json:"sensorTimestampAtSyncPoint"`
	RelativeClockSpeed         float64 `json:"relativeClockSpeed"`
}

// UnknownSyncPoint is used when a device was never synchronized.
var UnknownSyncPoint = SyncPoint{SynchronizedOn: "1970-01-01T00:00:00Z", RelativeClockSpeed: 1}

// Validate checks the instant and clock speed.
func (p SyncPoint) Validate() error {
	if _, err := time.Parse(time.RFC3339Nano, p.SynchronizedOn); err != nil {
		return fault.Validation("synchronizedOn", "%q is not an RFC 3339 instant", p.SynchronizedOn)
	}
	if p.RelativeClockSpeed <= 0 {
		return fault.Validation("relativeClockSpeed", "must be positive, got %v", p.RelativeClockSpeed)
	}
	return nil
}

// Sequence is a run of measurements with consecutive sequence IDs, starting
// at FirstSequenceID, all collected under the same triggers and sync point.
type Sequence struct {
	DataStream      DataStreamID
	FirstSequenceID int64
	Measurements    []data.Measurement
	TriggerIDs      []int
	SyncPoint       SyncPoint
}

// LastSequenceID is the sequence ID of the final measurement.
func (s Sequence) LastSequenceID() int64 {
	return s.FirstSequenceID + int64(len(s.Measurements)) - 1
}

// Validate checks the sequence on its own, including that every known data
// point matches the stream's data type. Unknown data cannot be checked and
// is accepted as is.
func (s Sequence) Validate() error {
	if err := s.DataStream.Validate(); err != nil {
		return err
	}
	if s.FirstSequenceID < 0 {
		return fault.Validation("firstSequenceId", "must be non-negative, got %d", s.FirstSequenceID)
	}
	if len(s.Measurements) == 0 {
		return fault.Validation("measurements", "a sequence needs at least one measurement")
	}
	for i, m := range s.Measurements {
		if err := m.Validate(); err != nil {
			return fault.Wrap(fault.CodeValidation, err, "measurements[%d]", i)
		}
		if got := m.Data.DataType(); got != "" && got != s.DataStream.DataType {
			return fault.Validation("measurements", "[%d] holds %s on a %s stream", i, got, s.DataStream.DataType)
		}
	}
	return s.SyncPoint.Validate()
}

// clip returns the part of s within [from, to]; ok is false when nothing
// overlaps. A nil to means no upper bound.
func (s Sequence) clip(from int64, to *int64) (Sequence, bool) {
	first := max(s.FirstSequenceID, from)
	last := s.LastSequenceID()
	if to != nil {
		last = min(last, *to)
	}
	if first > last {
		return Sequence{}, false
	}
	offset := first - s.FirstSequenceID
	out := s
	out.FirstSequenceID = first
	out.Measurements = slices.Clone(s.Measurements[offset : offset+last-first+1])
	out.TriggerIDs = slices.Clone(s.TriggerIDs)
	return out, true
}

// Batch holds sequences of any number of streams. Within a stream,
// sequences are kept in ascending, non-overlapping order.
type Batch []Sequence

// Streams returns the distinct streams in order of first appearance.
func (b Batch) Streams() []DataStreamID {
	var out []DataStreamID
	for _, s := range b {
		if !slices.Contains(out, s.DataStream) {
			out = append(out, s.DataStream)
		}
	}
	return out
}

// Sequences returns the sequences of one stream.
func (b Batch) Sequences(id DataStreamID) []Sequence {
	var out []Sequence
	for _, s := range b {
		if s.DataStream == id {
			out = append(out, s)
		}
	}
	return out
}

// Append adds s after the stream's last sequence. A sequence that directly
// continues the previous one under the same triggers and sync point is
// merged into it.
func (b *Batch) Append(s Sequence) error {
	s.Measurements = slices.Clone(s.Measurements)
	s.TriggerIDs = slices.Clone(s.TriggerIDs)

	last := -1
	for i, existing := range *b {
		if existing.DataStream == s.DataStream {
			last = i
		}
	}
	if last < 0 {
		*b = append(*b, s)
		return nil
	}

	prev := &(*b)[last]
	if s.FirstSequenceID <= prev.LastSequenceID() {
		return fault.Validation("firstSequenceId",
			"sequence starting at %d overlaps stored sequence ending at %d", s.FirstSequenceID, prev.LastSequenceID())
	}
	if s.FirstSequenceID == prev.LastSequenceID()+1 &&
		slices.Equal(s.TriggerIDs, prev.TriggerIDs) && s.SyncPoint == prev.SyncPoint {
		prev.Measurements = slices.Concat(prev.Measurements, s.Measurements)
		return nil
	}
	*b = append(*b, s)
	return nil
}

// Range returns the measurements of stream id with sequence IDs in
// [from, to]. A nil to means up to the last stored measurement.
func (b Batch) Range(id DataStreamID, from int64, to *int64) Batch {
	out := Batch{}
	for _, s := range b.Sequences(id) {
		if clipped, ok := s.clip(from, to); ok {
			out = append(out, clipped)
		}
	}
	return out
}
