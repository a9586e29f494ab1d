package protocols

import (
	"github.com/roach88/carp/internal/data"
	"github.com/roach88/carp/internal/fault"
	"github.com/roach88/carp/internal/polymorphic"
)

// MeasureBase is the polymorphic base of measures.
const MeasureBase polymorphic.BaseType = "dk.cachet.carp.common.application.tasks.Measure"

const (
	TypeDataStreamMeasure  = string(MeasureBase) + ".DataStream"
	TypeTriggerDataMeasure = string(MeasureBase) + ".TriggerData"
)

// Measure is something a task collects.
type Measure interface {
	polymorphic.Variant
}

// DataStreamMeasure collects a stream of one data type.
type DataStreamMeasure struct {
	Type data.DataType `json:"type"`
}

func (*DataStreamMeasure) TypeName() string { return TypeDataStreamMeasure }

// TriggerDataMeasure collects the data of a trigger, e.g. when it fired.
type TriggerDataMeasure struct {
	TriggerID int `json:"triggerId"`
}

func (*TriggerDataMeasure) TypeName() string { return TypeTriggerDataMeasure }

// UnknownMeasure is the fallback for measure discriminators this process
// does not know.
type UnknownMeasure struct {
	polymorphic.Unknown
}

func newMeasureHierarchy(r *polymorphic.Registry) (*polymorphic.Hierarchy[Measure], error) {
	h, err := polymorphic.NewHierarchy(r, MeasureBase, func(u polymorphic.Unknown) Measure {
		return &UnknownMeasure{u}
	})
	if err != nil {
		return nil, err
	}
	if err := h.Register(TypeDataStreamMeasure, polymorphic.StructCodec(func() Measure { return &DataStreamMeasure{} })); err != nil {
		return nil, err
	}
	if err := h.Register(TypeTriggerDataMeasure, polymorphic.StructCodec(func() Measure { return &TriggerDataMeasure{} })); err != nil {
		return nil, err
	}
	return h, nil
}

func validateMeasure(m Measure) error {
	switch m := m.(type) {
	case nil:
		return fault.Validation("measures", "nil measure")
	case *DataStreamMeasure:
		if err := m.Type.Validate(); err != nil {
			return fault.Validation("measures", "%v", err)
		}
	case *TriggerDataMeasure:
		if m.TriggerID < 0 {
			return fault.Validation("measures", "trigger id must be non-negative, got %d", m.TriggerID)
		}
	}
	return nil
}
