package protocols

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/roach88/carp/internal/data"
	"github.com/roach88/carp/internal/fault"
	"github.com/roach88/carp/internal/ids"
	"github.com/roach88/carp/internal/polymorphic"
	"github.com/roach88/carp/internal/wire"
)

// Connection states that a connected device pairs with another device.
type Connection struct {
	RoleName            string `json:"roleName"`
	ConnectedToRoleName string `json:"connectedToRoleName"`
}

// TaskControl starts or stops a task on a device when a trigger fires.
type TaskControl struct {
	TriggerID                 int              `json:"triggerId"`
	TaskName                  string           `json:"taskName"`
	DestinationDeviceRoleName string           `json:"destinationDeviceRoleName"`
	Control                   data.TaskControl `json:"control"`
}

// ParticipantRole is a role participants take in a study.
type ParticipantRole struct {
	Role       string `json:"role"`
	IsOptional bool   `json:"isOptional"`
}

// StudyProtocolSnapshot is the serializable state of a study protocol.
type StudyProtocolSnapshot struct {
	ID               string            `json:"id"`
	CreatedOn        time.Time         `json:"createdOn"`
	OwnerID          string            `json:"ownerId"`
	Name             string            `json:"name"`
	Description      string            `json:"description"`
	PrimaryDevices   []Device          `json:"-"`
	ConnectedDevices []Device          `json:"-"`
	Connections      []Connection      `json:"connections"`
	Tasks            []Task            `json:"-"`
	Triggers         map[int]Trigger   `json:"-"`
	TaskControls     []TaskControl     `json:"taskControls"`
	ParticipantRoles []ParticipantRole `json:"participantRoles"`
	ApplicationData  *string           `json:"applicationData"`
}

// NewSnapshot returns an empty protocol with a generated ID, created now.
func NewSnapshot(gen ids.Generator, now time.Time, ownerID, name string) StudyProtocolSnapshot {
	s := StudyProtocolSnapshot{
		ID:        gen.Generate(),
		CreatedOn: now.UTC(),
		OwnerID:   ownerID,
		Name:      name,
	}
	s.normalize()
	return s
}

// normalize replaces nil collections with empty ones, so that absent and
// empty encode alike.
func (s *StudyProtocolSnapshot) normalize() {
	if s.PrimaryDevices == nil {
		s.PrimaryDevices = []Device{}
	}
	if s.ConnectedDevices == nil {
		s.ConnectedDevices = []Device{}
	}
	if s.Connections == nil {
		s.Connections = []Connection{}
	}
	if s.Tasks == nil {
		s.Tasks = []Task{}
	}
	if s.Triggers == nil {
		s.Triggers = map[int]Trigger{}
	}
	if s.TaskControls == nil {
		s.TaskControls = []TaskControl{}
	}
	if s.ParticipantRoles == nil {
		s.ParticipantRoles = []ParticipantRole{}
	}
}

// Roles returns the role names of all devices, primary devices first.
func (s StudyProtocolSnapshot) Roles() []string {
	roles := make([]string, 0, len(s.PrimaryDevices)+len(s.ConnectedDevices))
	for _, d := range slices.Concat(s.PrimaryDevices, s.ConnectedDevices) {
		roles = append(roles, d.RoleName())
	}
	return roles
}

// Validate checks that the protocol is internally consistent: unique device
// roles and task names, and connections, triggers and task controls that
// refer to what the protocol defines.
func (s StudyProtocolSnapshot) Validate() error {
	if !ids.Valid(s.ID) {
		return fault.Validation("id", "%q is not a UUID", s.ID)
	}
	if !ids.Valid(s.OwnerID) {
		return fault.Validation("ownerId", "%q is not a UUID", s.OwnerID)
	}
	if s.Name == "" {
		return fault.Validation("name", "must not be blank")
	}

	roles := make(map[string]bool)
	for _, d := range slices.Concat(s.PrimaryDevices, s.ConnectedDevices) {
		if d == nil {
			return fault.Validation("devices", "nil device")
		}
		role := d.RoleName()
		if role == "" {
			return fault.Validation("devices", "%s has no role name", d.TypeName())
		}
		if roles[role] {
			return fault.Validation("devices", "role name %q is used twice", role)
		}
		roles[role] = true
	}
	for _, d := range s.PrimaryDevices {
		if _, ok := d.(Primary); !ok && !polymorphic.IsUnknown(d) {
			return fault.Validation("primaryDevices", "%q (%s) cannot be a primary device", d.RoleName(), d.TypeName())
		}
	}

	for _, c := range s.Connections {
		if !roles[c.RoleName] || !roles[c.ConnectedToRoleName] {
			return fault.Validation("connections", "%q -> %q refers to an undefined device", c.RoleName, c.ConnectedToRoleName)
		}
		if c.RoleName == c.ConnectedToRoleName {
			return fault.Validation("connections", "%q cannot connect to itself", c.RoleName)
		}
	}

	tasks := make(map[string]bool)
	for _, t := range s.Tasks {
		if t == nil || t.TaskName() == "" {
			return fault.Validation("tasks", "every task needs a name")
		}
		if tasks[t.TaskName()] {
			return fault.Validation("tasks", "task name %q is used twice", t.TaskName())
		}
		tasks[t.TaskName()] = true
		for _, m := range TaskMeasures(t) {
			if err := validateMeasure(m); err != nil {
				return fault.Wrap(fault.CodeValidation, err, "task %q", t.TaskName())
			}
		}
	}

	for id, tr := range s.Triggers {
		if id < 0 {
			return fault.Validation("triggers", "trigger id must be non-negative, got %d", id)
		}
		if tr == nil {
			return fault.Validation("triggers", "trigger %d is nil", id)
		}
		if src := tr.SourceDeviceRole(); src != "" && !roles[src] {
			return fault.Validation("triggers", "trigger %d has undefined source device %q", id, src)
		}
	}

	for _, c := range s.TaskControls {
		if _, ok := s.Triggers[c.TriggerID]; !ok {
			return fault.Validation("taskControls", "undefined trigger %d", c.TriggerID)
		}
		if !tasks[c.TaskName] {
			return fault.Validation("taskControls", "undefined task %q", c.TaskName)
		}
		if !roles[c.DestinationDeviceRoleName] {
			return fault.Validation("taskControls", "undefined device %q", c.DestinationDeviceRoleName)
		}
		if c.Control != data.TaskStart && c.Control != data.TaskStop {
			return fault.Validation("taskControls", "control must be %s or %s, got %q", data.TaskStart, data.TaskStop, c.Control)
		}
	}

	participants := make(map[string]bool)
	for _, p := range s.ParticipantRoles {
		if p.Role == "" || participants[p.Role] {
			return fault.Validation("participantRoles", "roles must be distinct and non-blank, got %q", p.Role)
		}
		participants[p.Role] = true
	}
	return nil
}

// SnapshotCodec encodes snapshots with their nested polymorphic members.
type SnapshotCodec struct {
	devices  *polymorphic.Hierarchy[Device]
	tasks    *polymorphic.Hierarchy[Task]
	triggers *polymorphic.Hierarchy[Trigger]
}

// Hierarchies bundles the protocol hierarchies of one registry.
type Hierarchies struct {
	Measures *polymorphic.Hierarchy[Measure]
	Devices  *polymorphic.Hierarchy[Device]
	Tasks    *polymorphic.Hierarchy[Task]
	Triggers *polymorphic.Hierarchy[Trigger]
}

// NewHierarchies creates and fills the measure, device, task and trigger
// hierarchies on r.
func NewHierarchies(r *polymorphic.Registry) (Hierarchies, error) {
	var (
		h   Hierarchies
		err error
	)
	if h.Measures, err = newMeasureHierarchy(r); err != nil {
		return Hierarchies{}, err
	}
	if h.Devices, err = newDeviceHierarchy(r); err != nil {
		return Hierarchies{}, err
	}
	if h.Tasks, err = newTaskHierarchy(r, h.Measures); err != nil {
		return Hierarchies{}, err
	}
	if h.Triggers, err = newTriggerHierarchy(r); err != nil {
		return Hierarchies{}, err
	}
	return h, nil
}

// SnapshotCodec returns the snapshot codec over h.
func (h Hierarchies) SnapshotCodec() SnapshotCodec {
	return SnapshotCodec{devices: h.Devices, tasks: h.Tasks, triggers: h.Triggers}
}

// Encode writes s, its triggers keyed by their decimal IDs.
func (c SnapshotCodec) Encode(s StudyProtocolSnapshot) (wire.Object, error) {
	s.normalize()
	obj, err := wire.FromObject(s)
	if err != nil {
		return nil, err
	}
	if obj["primaryDevices"], err = c.devices.EncodeList(s.PrimaryDevices); err != nil {
		return nil, fmt.Errorf("primaryDevices%w", err)
	}
	if obj["connectedDevices"], err = c.devices.EncodeList(s.ConnectedDevices); err != nil {
		return nil, fmt.Errorf("connectedDevices%w", err)
	}
	if obj["tasks"], err = c.tasks.EncodeList(s.Tasks); err != nil {
		return nil, fmt.Errorf("tasks%w", err)
	}
	triggers := make(map[string]Trigger, len(s.Triggers))
	for id, t := range s.Triggers {
		triggers[strconv.Itoa(id)] = t
	}
	if obj["triggers"], err = c.triggers.EncodeMap(triggers); err != nil {
		return nil, fmt.Errorf("triggers%w", err)
	}
	return obj, nil
}

// Decode reads a snapshot. Unknown devices, tasks, measures and triggers
// decode to their Unknown wrappers.
func (c SnapshotCodec) Decode(v wire.Value) (StudyProtocolSnapshot, error) {
	obj, ok := v.(wire.Object)
	if !ok {
		return StudyProtocolSnapshot{}, fault.Malformed("protocol: expected object, got %s", wire.KindOf(v))
	}

	var s StudyProtocolSnapshot
	if err := wire.Into(obj.Without("primaryDevices", "connectedDevices", "tasks", "triggers"), &s); err != nil {
		return StudyProtocolSnapshot{}, fault.Wrap(fault.CodeMalformedEnvelope, err, "protocol")
	}

	var err error
	if s.PrimaryDevices, err = c.devices.DecodeList(obj["primaryDevices"]); err != nil {
		return StudyProtocolSnapshot{}, fmt.Errorf("primaryDevices%w", err)
	}
	if s.ConnectedDevices, err = c.devices.DecodeList(obj["connectedDevices"]); err != nil {
		return StudyProtocolSnapshot{}, fmt.Errorf("connectedDevices%w", err)
	}
	if s.Tasks, err = c.tasks.DecodeList(obj["tasks"]); err != nil {
		return StudyProtocolSnapshot{}, fmt.Errorf("tasks%w", err)
	}
	triggers, err := c.triggers.DecodeMap(obj["triggers"])
	if err != nil {
		return StudyProtocolSnapshot{}, fmt.Errorf("triggers%w", err)
	}
	s.Triggers = make(map[int]Trigger, len(triggers))
	for key, t := range triggers {
		id, err := strconv.Atoi(key)
		if err != nil {
			return StudyProtocolSnapshot{}, fault.Malformed("triggers: key %q is not a trigger id", key)
		}
		s.Triggers[id] = t
	}
	s.normalize()
	return s, nil
}

// EncodeList encodes snapshots in order.
func (c SnapshotCodec) EncodeList(list []StudyProtocolSnapshot) (wire.Value, error) {
	arr := make(wire.Array, len(list))
	for i, s := range list {
		enc, err := c.Encode(s)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		arr[i] = enc
	}
	return arr, nil
}

// DecodeList decodes an array of snapshots.
func (c SnapshotCodec) DecodeList(v wire.Value) ([]StudyProtocolSnapshot, error) {
	arr, ok := v.(wire.Array)
	if !ok {
		return nil, fault.Malformed("protocols: expected array, got %s", wire.KindOf(v))
	}
	out := make([]StudyProtocolSnapshot, len(arr))
	for i, elem := range arr {
		s, err := c.Decode(elem)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out[i] = s
	}
	return out, nil
}
