package data

import (
	"fmt"

	"github.com/roach88/carp/internal/fault"
	"github.com/roach88/carp/internal/polymorphic"
	"github.com/roach88/carp/internal/wire"
)

// Measurement is one data point with the sensor time it covers, in
// microseconds of the sensor clock.
type Measurement struct {
	SensorStartTime int64
	// SensorEndTime is nil for point measurements.
	SensorEndTime *int64
	Data          Data
}

// Validate checks the time interval.
func (m Measurement) Validate() error {
	if m.Data == nil {
		return fault.Validation("data", "is required")
	}
	if m.SensorStartTime < 0 {
		return fault.Validation("sensorStartTime", "must be non-negative, got %d", m.SensorStartTime)
	}
	if m.SensorEndTime != nil && *m.SensorEndTime < m.SensorStartTime {
		return fault.Validation("sensorEndTime", "%d is before sensorStartTime %d", *m.SensorEndTime, m.SensorStartTime)
	}
	return nil
}

// Codec encodes measurements with their polymorphic data.
type Codec struct {
	h *polymorphic.Hierarchy[Data]
}

// NewCodec returns a measurement codec backed by h.
func NewCodec(h *polymorphic.Hierarchy[Data]) Codec {
	return Codec{h: h}
}

// Hierarchy returns the Data hierarchy.
func (c Codec) Hierarchy() *polymorphic.Hierarchy[Data] {
	return c.h
}

// Encode writes m as {sensorStartTime, sensorEndTime, data}.
func (c Codec) Encode(m Measurement) (wire.Object, error) {
	d, err := c.h.Encode(m.Data)
	if err != nil {
		return nil, fmt.Errorf("data: %w", err)
	}
	obj := wire.Object{
		"sensorStartTime": wire.Int(m.SensorStartTime),
		"sensorEndTime":   wire.Null{},
		"data":            d,
	}
	if m.SensorEndTime != nil {
		obj["sensorEndTime"] = wire.Int(*m.SensorEndTime)
	}
	return obj, nil
}

// Decode reads a measurement. Unknown data decodes to UnknownData.
func (c Codec) Decode(v wire.Value) (Measurement, error) {
	obj, ok := v.(wire.Object)
	if !ok {
		return Measurement{}, fault.Malformed("measurement: expected object, got %s", wire.KindOf(v))
	}

	var m Measurement
	start, err := integer(obj, "sensorStartTime")
	if err != nil {
		return Measurement{}, err
	}
	m.SensorStartTime = start

	switch raw := obj["sensorEndTime"].(type) {
	case nil, wire.Null:
	case wire.Number:
		end, err := raw.Int64()
		if err != nil {
			return Measurement{}, fault.Malformed("measurement sensorEndTime: %v", err)
		}
		m.SensorEndTime = &end
	default:
		return Measurement{}, fault.Malformed("measurement sensorEndTime: expected number, got %s", wire.KindOf(raw))
	}

	m.Data, err = c.h.DecodeValue(obj["data"])
	if err != nil {
		return Measurement{}, fmt.Errorf("measurement data: %w", err)
	}
	return m, nil
}

// EncodeList encodes measurements in order.
func (c Codec) EncodeList(ms []Measurement) (wire.Array, error) {
	arr := make(wire.Array, len(ms))
	for i, m := range ms {
		enc, err := c.Encode(m)
		if err != nil {
			return nil, fmt.Errorf("measurements[%d]: %w", i, err)
		}
		arr[i] = enc
	}
	return arr, nil
}

// DecodeList decodes an array of measurements. Null is an empty list.
func (c Codec) DecodeList(v wire.Value) ([]Measurement, error) {
	if _, isNull := v.(wire.Null); isNull || v == nil {
		return []Measurement{}, nil
	}
	arr, ok := v.(wire.Array)
	if !ok {
		return nil, fault.Malformed("measurements: expected array, got %s", wire.KindOf(v))
	}
	out := make([]Measurement, len(arr))
	for i, elem := range arr {
		m, err := c.Decode(elem)
		if err != nil {
			return nil, fmt.Errorf("measurements[%d]: %w", i, err)
		}
		out[i] = m
	}
	return out, nil
}

func integer(obj wire.Object, field string) (int64, error) {
	n, ok := obj[field].(wire.Number)
	if !ok {
		return 0, fault.Malformed("%s: expected number, got %s", field, wire.KindOf(obj[field])).
			WithDetail("field", field)
	}
	i, err := n.Int64()
	if err != nil {
		return 0, fault.Malformed("%s: %v", field, err).WithDetail("field", field)
	}
	return i, nil
}
