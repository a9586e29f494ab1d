package protocols

import (
	"github.com/roach88/carp/internal/polymorphic"
)

// TriggerBase is the polymorphic base of trigger configurations.
const TriggerBase polymorphic.BaseType = "dk.cachet.carp.common.application.triggers.TriggerConfiguration"

const (
	TypeElapsedTimeTrigger = "dk.cachet.carp.common.application.triggers.ElapsedTimeTrigger"
	TypeManualTrigger      = "dk.cachet.carp.common.application.triggers.ManualTrigger"
	TypeScheduledTrigger   = "dk.cachet.carp.common.application.triggers.ScheduledTrigger"
)

// Trigger decides when tasks start and stop.
type Trigger interface {
	polymorphic.Variant

	// SourceDeviceRole names the device evaluating the trigger.
	SourceDeviceRole() string
}

// TriggerSource holds what every known trigger has.
type TriggerSource struct {
	SourceDeviceRoleName string `json:"sourceDeviceRoleName"`
}

func (s *TriggerSource) SourceDeviceRole() string { return s.SourceDeviceRoleName }

// ElapsedTimeTrigger fires once a duration has passed since the study
// started on the source device.
type ElapsedTimeTrigger struct {
	TriggerSource
	// ElapsedTime is an ISO 8601 duration, e.g. "PT1H".
	ElapsedTime string `json:"elapsedTime"`
}

func (*ElapsedTimeTrigger) TypeName() string { return TypeElapsedTimeTrigger }

// ManualTrigger fires when the participant starts it.
type ManualTrigger struct {
	TriggerSource
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

func (*ManualTrigger) TypeName() string { return TypeManualTrigger }

// ScheduledTrigger fires at a time of day, repeating per an iCalendar
// recurrence rule.
type ScheduledTrigger struct {
	TriggerSource
	Time           string `json:"time"`
	RecurrenceRule string `json:"recurrenceRule"`
}

func (*ScheduledTrigger) TypeName() string { return TypeScheduledTrigger }

// UnknownTrigger is the fallback for trigger discriminators this process
// does not know.
type UnknownTrigger struct {
	polymorphic.Unknown
}

func (t *UnknownTrigger) SourceDeviceRole() string {
	name, _ := t.Raw().String("sourceDeviceRoleName")
	return name
}

func newTriggerHierarchy(r *polymorphic.Registry) (*polymorphic.Hierarchy[Trigger], error) {
	h, err := polymorphic.NewHierarchy(r, TriggerBase, func(u polymorphic.Unknown) Trigger {
		return &UnknownTrigger{u}
	})
	if err != nil {
		return nil, err
	}
	variants := map[string]func() Trigger{
		TypeElapsedTimeTrigger: func() Trigger { return &ElapsedTimeTrigger{} },
		TypeManualTrigger:      func() Trigger { return &ManualTrigger{} },
		TypeScheduledTrigger:   func() Trigger { return &ScheduledTrigger{} },
	}
	for name, newFn := range variants {
		if err := h.Register(name, polymorphic.StructCodec(newFn)); err != nil {
			return nil, err
		}
	}
	return h, nil
}
