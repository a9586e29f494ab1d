package data

import (
	"fmt"

	"github.com/roach88/carp/internal/polymorphic"
	"github.com/roach88/carp/internal/wire"
)

const sensorSpecificField = "sensorSpecificData"

// NewHierarchy creates the Data hierarchy on r and registers every built-in
// variant.
func NewHierarchy(r *polymorphic.Registry) (*polymorphic.Hierarchy[Data], error) {
	h, err := polymorphic.NewHierarchy(r, BaseType, func(u polymorphic.Unknown) Data {
		return &UnknownData{u}
	})
	if err != nil {
		return nil, err
	}
	if err := Register(h); err != nil {
		return nil, err
	}
	return h, nil
}

// Register adds the built-in variants to h.
func Register(h *polymorphic.Hierarchy[Data]) error {
	variants := []struct {
		name  string
		codec polymorphic.Codec[Data]
	}{
		{TypeGeolocation, SensorCodec(h, func() *GeolocationData { return &GeolocationData{} })},
		{TypeStepCount, SensorCodec(h, func() *StepCountData { return &StepCountData{} })},
		{TypeHeartRate, SensorCodec(h, func() *HeartRateData { return &HeartRateData{} })},
		{TypeECG, SensorCodec(h, func() *ECGData { return &ECGData{} })},
		{TypeSignalStrength, SensorCodec(h, func() *SignalStrengthData { return &SignalStrengthData{} })},
		{TypeTriggeredTask, polymorphic.StructCodec(func() Data { return &TriggeredTaskData{} })},
	}
	for _, v := range variants {
		if err := h.Register(v.name, v.codec); err != nil {
			return err
		}
	}
	return nil
}

// SensorCodec returns the codec for a sensor data variant V. Plain fields go
// through encoding/json; sensorSpecificData is encoded through h so unknown
// extras round-trip untouched.
func SensorCodec[V sensorData](h *polymorphic.Hierarchy[Data], newFn func() V) polymorphic.Codec[Data] {
	encode := func(v V) (wire.Object, error) {
		obj, err := wire.FromObject(v)
		if err != nil {
			return nil, err
		}
		if extra := v.sensor().SensorSpecificData; extra != nil {
			enc, err := h.Encode(extra)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", sensorSpecificField, err)
			}
			obj[sensorSpecificField] = enc
		}
		return obj, nil
	}
	decode := func(obj wire.Object) (V, error) {
		v := newFn()
		if err := wire.Into(obj.Without(sensorSpecificField), v); err != nil {
			return v, err
		}
		raw, ok := obj[sensorSpecificField]
		if !ok {
			return v, nil
		}
		if _, isNull := raw.(wire.Null); isNull {
			return v, nil
		}
		extra, err := h.DecodeValue(raw)
		if err != nil {
			return v, fmt.Errorf("%s: %w", sensorSpecificField, err)
		}
		v.sensor().SensorSpecificData = extra
		return v, nil
	}
	return polymorphic.Typed[Data](encode, decode)
}
