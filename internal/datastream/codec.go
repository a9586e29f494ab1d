package datastream

import (
	"fmt"

	"github.com/roach88/carp/internal/data"
	"github.com/roach88/carp/internal/fault"
	"github.com/roach88/carp/internal/wire"
)

// BatchCodec encodes batches as the JSON array of their sequences.
type BatchCodec struct {
	measurements data.Codec
}

// NewBatchCodec returns a codec that encodes data points through m.
func NewBatchCodec(m data.Codec) BatchCodec {
	return BatchCodec{measurements: m}
}

// EncodeSequence writes
// {dataStream, firstSequenceId, measurements, triggerIds, syncPoint}.
func (c BatchCodec) EncodeSequence(s Sequence) (wire.Object, error) {
	stream, err := wire.FromObject(s.DataStream)
	if err != nil {
		return nil, err
	}
	measurements, err := c.measurements.EncodeList(s.Measurements)
	if err != nil {
		return nil, err
	}
	triggers := make(wire.Array, len(s.TriggerIDs))
	for i, id := range s.TriggerIDs {
		triggers[i] = wire.Int(int64(id))
	}
	sync, err := wire.FromObject(s.SyncPoint)
	if err != nil {
		return nil, err
	}
	return wire.Object{
		"dataStream":      stream,
		"firstSequenceId": wire.Int(s.FirstSequenceID),
		"measurements":    measurements,
		"triggerIds":      triggers,
		"syncPoint":       sync,
	}, nil
}

// DecodeSequence reads one sequence. Unknown data points are kept as
// data.UnknownData.
func (c BatchCodec) DecodeSequence(v wire.Value) (Sequence, error) {
	obj, ok := v.(wire.Object)
	if !ok {
		return Sequence{}, fault.Malformed("sequence: expected object, got %s", wire.KindOf(v))
	}

	var s Sequence
	if err := into(obj, "dataStream", &s.DataStream); err != nil {
		return Sequence{}, err
	}
	if err := into(obj, "firstSequenceId", &s.FirstSequenceID); err != nil {
		return Sequence{}, err
	}
	if err := into(obj, "triggerIds", &s.TriggerIDs); err != nil {
		return Sequence{}, err
	}
	if err := into(obj, "syncPoint", &s.SyncPoint); err != nil {
		return Sequence{}, err
	}
	measurements, err := c.measurements.DecodeList(obj["measurements"])
	if err != nil {
		return Sequence{}, err
	}
	s.Measurements = measurements
	return s, nil
}

// EncodeBatch encodes the sequences of b in order.
func (c BatchCodec) EncodeBatch(b Batch) (wire.Value, error) {
	arr := make(wire.Array, len(b))
	for i, s := range b {
		enc, err := c.EncodeSequence(s)
		if err != nil {
			return nil, fmt.Errorf("batch[%d]: %w", i, err)
		}
		arr[i] = enc
	}
	return arr, nil
}

// DecodeBatch decodes a JSON array of sequences. Null is an empty batch.
func (c BatchCodec) DecodeBatch(v wire.Value) (Batch, error) {
	if _, isNull := v.(wire.Null); isNull || v == nil {
		return Batch{}, nil
	}
	arr, ok := v.(wire.Array)
	if !ok {
		return nil, fault.Malformed("batch: expected array, got %s", wire.KindOf(v))
	}
	out := make(Batch, len(arr))
	for i, elem := range arr {
		s, err := c.DecodeSequence(elem)
		if err != nil {
			return nil, fmt.Errorf("batch[%d]: %w", i, err)
		}
		out[i] = s
	}
	return out, nil
}

func into(obj wire.Object, field string, dst any) error {
	v, ok := obj[field]
	if !ok {
		return fault.Malformed("missing field %q", field).WithDetail("field", field)
	}
	if err := wire.Into(v, dst); err != nil {
		return fault.Wrap(fault.CodeMalformedEnvelope, err, "field %q", field).WithDetail("field", field)
	}
	return nil
}
