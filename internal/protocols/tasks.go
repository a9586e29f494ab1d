package protocols

import (
	"fmt"

	"github.com/roach88/carp/internal/polymorphic"
	"github.com/roach88/carp/internal/wire"
)

// TaskBase is the polymorphic base of task configurations.
const TaskBase polymorphic.BaseType = "dk.cachet.carp.common.application.tasks.TaskConfiguration"

const (
	TypeBackgroundTask     = "dk.cachet.carp.common.application.tasks.BackgroundTask"
	TypeCustomProtocolTask = "dk.cachet.carp.common.application.tasks.CustomProtocolTask"
	TypeWebTask            = "dk.cachet.carp.common.application.tasks.WebTask"
)

const measuresField = "measures"

// Task is a task configuration: what a device does when triggered.
type Task interface {
	polymorphic.Variant

	// TaskName identifies the task within its protocol.
	TaskName() string
}

// TaskInfo holds what every known task configuration has.
type TaskInfo struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Measures    []Measure `json:"-"`
}

func (t *TaskInfo) TaskName() string { return t.Name }

func (t *TaskInfo) info() *TaskInfo { return t }

type knownTask interface {
	Task
	info() *TaskInfo
}

// TaskMeasures returns the measures of t. Unknown tasks report none.
func TaskMeasures(t Task) []Measure {
	if k, ok := t.(knownTask); ok {
		return k.info().Measures
	}
	return nil
}

// BackgroundTask collects its measures without user interaction.
type BackgroundTask struct {
	TaskInfo
	// Duration is an ISO 8601 duration; empty means until stopped.
	Duration string `json:"duration,omitempty"`
}

func (*BackgroundTask) TypeName() string { return TypeBackgroundTask }

// CustomProtocolTask hands a serialized protocol to a custom device.
type CustomProtocolTask struct {
	TaskInfo
	StudyProtocol string `json:"studyProtocol"`
}

func (*CustomProtocolTask) TypeName() string { return TypeCustomProtocolTask }

// WebTask opens a web page, e.g. a survey.
type WebTask struct {
	TaskInfo
	URL string `json:"url"`
}

func (*WebTask) TypeName() string { return TypeWebTask }

// UnknownTask is the fallback for task discriminators this process does not
// know.
type UnknownTask struct {
	polymorphic.Unknown
}

func (t *UnknownTask) TaskName() string {
	name, _ := t.Raw().String("name")
	return name
}

func newTaskHierarchy(r *polymorphic.Registry, measures *polymorphic.Hierarchy[Measure]) (*polymorphic.Hierarchy[Task], error) {
	h, err := polymorphic.NewHierarchy(r, TaskBase, func(u polymorphic.Unknown) Task {
		return &UnknownTask{u}
	})
	if err != nil {
		return nil, err
	}
	if err := h.Register(TypeBackgroundTask, taskCodec(measures, func() *BackgroundTask { return &BackgroundTask{} })); err != nil {
		return nil, err
	}
	if err := h.Register(TypeCustomProtocolTask, taskCodec(measures, func() *CustomProtocolTask { return &CustomProtocolTask{} })); err != nil {
		return nil, err
	}
	if err := h.Register(TypeWebTask, taskCodec(measures, func() *WebTask { return &WebTask{} })); err != nil {
		return nil, err
	}
	return h, nil
}

// taskCodec encodes the plain fields of V through encoding/json and its
// measures through the measure hierarchy.
func taskCodec[V knownTask](measures *polymorphic.Hierarchy[Measure], newFn func() V) polymorphic.Codec[Task] {
	encode := func(t V) (wire.Object, error) {
		obj, err := wire.FromObject(t)
		if err != nil {
			return nil, err
		}
		list := t.info().Measures
		if list == nil {
			list = []Measure{}
		}
		enc, err := measures.EncodeList(list)
		if err != nil {
			return nil, fmt.Errorf("%s%w", measuresField, err)
		}
		obj[measuresField] = enc
		return obj, nil
	}
	decode := func(obj wire.Object) (V, error) {
		t := newFn()
		if err := wire.Into(obj.Without(measuresField), t); err != nil {
			return t, err
		}
		list, err := measures.DecodeList(obj[measuresField])
		if err != nil {
			return t, fmt.Errorf("%s%w", measuresField, err)
		}
		t.info().Measures = list
		return t, nil
	}
	return polymorphic.Typed[Task](encode, decode)
}
