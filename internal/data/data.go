// Package data defines the polymorphic data points collected by study
// devices.
//
// Data is an open hierarchy: clients may upload data types this backend was
// built without, and those survive storage and retrieval as UnknownData.
// Sensor data can carry sensor-specific extras, themselves Data, in
// sensorSpecificData.
package data

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/carp/internal/polymorphic"
)

// BaseType is the polymorphic base of all data points.
const BaseType polymorphic.BaseType = "dk.cachet.carp.common.application.data.Data"

// Discriminators of the built-in data variants.
const (
	TypeGeolocation    = "dk.cachet.carp.common.application.data.Geolocation"
	TypeStepCount      = "dk.cachet.carp.common.application.data.StepCount"
	TypeHeartRate      = "dk.cachet.carp.common.application.data.HeartRate"
	TypeECG            = "dk.cachet.carp.common.application.data.ECG"
	TypeSignalStrength = "dk.cachet.carp.common.application.data.SignalStrength"
	TypeTriggeredTask  = "dk.cachet.carp.common.application.data.TriggeredTask"
)

// Data is one collected data point.
type Data interface {
	polymorphic.Variant

	// DataType names the kind of data, independent of its wire
	// discriminator. Unknown data reports an empty DataType.
	DataType() DataType
}

// DataType identifies a kind of data as "namespace.name", e.g.
// "dk.cachet.carp.stepcount".
type DataType string

// Data types of the built-in variants.
const (
	Geolocation    DataType = "dk.cachet.carp.geolocation"
	StepCount      DataType = "dk.cachet.carp.stepcount"
	HeartRate      DataType = "dk.cachet.carp.heartrate"
	ECG            DataType = "dk.cachet.carp.ecg"
	SignalStrength DataType = "dk.cachet.carp.signalstrength"
	TriggeredTask  DataType = "dk.cachet.carp.triggeredtask"
)

var dataTypePattern = regexp.MustCompile(`^[a-z][a-z0-9]*(\.[a-z][a-z0-9]*)+$`)

// Validate checks the "namespace.name" form.
func (t DataType) Validate() error {
	if !dataTypePattern.MatchString(string(t)) {
		return fmt.Errorf("invalid data type %q: expected lowercase \"namespace.name\"", string(t))
	}
	return nil
}

// Namespace returns the part before the last '.'.
func (t DataType) Namespace() string {
	i := strings.LastIndexByte(string(t), '.')
	if i < 0 {
		return ""
	}
	return string(t)[:i]
}

// Name returns the part after the last '.'.
func (t DataType) Name() string {
	return string(t)[strings.LastIndexByte(string(t), '.')+1:]
}

// Sensor holds what every sensor reading may carry besides its values.
// Embed it in sensor data variants.
type Sensor struct {
	// SensorSpecificData holds extras only a particular sensor provides.
	// Nil when absent.
	SensorSpecificData Data `json:"-"`
}

func (s *Sensor) sensor() *Sensor { return s }

// sensorData is implemented by every variant embedding Sensor.
type sensorData interface {
	Data
	sensor() *Sensor
}

// SensorSpecific returns the sensor-specific extras of d, if d is sensor
// data carrying any.
func SensorSpecific(d Data) (Data, bool) {
	s, ok := d.(sensorData)
	if !ok || s.sensor().SensorSpecificData == nil {
		return nil, false
	}
	return s.sensor().SensorSpecificData, true
}

// GeolocationData is a position in decimal degrees.
type GeolocationData struct {
	Sensor
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (*GeolocationData) TypeName() string   { return TypeGeolocation }
func (*GeolocationData) DataType() DataType { return Geolocation }

// StepCountData is the number of steps since the previous reading.
type StepCountData struct {
	Sensor
	Steps int64 `json:"steps"`
}

func (*StepCountData) TypeName() string   { return TypeStepCount }
func (*StepCountData) DataType() DataType { return StepCount }

// HeartRateData is a heart rate in beats per minute.
type HeartRateData struct {
	Sensor
	BPM int `json:"bpm"`
}

func (*HeartRateData) TypeName() string   { return TypeHeartRate }
func (*HeartRateData) DataType() DataType { return HeartRate }

// ECGData is one electrocardiogram sample.
type ECGData struct {
	Sensor
	MilliVolt float64 `json:"milliVolt"`
}

func (*ECGData) TypeName() string   { return TypeECG }
func (*ECGData) DataType() DataType { return ECG }

// SignalStrengthData is a received signal strength indicator in dBm.
type SignalStrengthData struct {
	Sensor
	RSSI int `json:"rssi"`
}

func (*SignalStrengthData) TypeName() string   { return TypeSignalStrength }
func (*SignalStrengthData) DataType() DataType { return SignalStrength }

// TaskControl is what a trigger asked of a task.
type TaskControl string

const (
	TaskStart TaskControl = "Start"
	TaskStop  TaskControl = "Stop"
)

// TriggeredTaskData records that a trigger started or stopped a task.
type TriggeredTaskData struct {
	TriggerID                 int         `json:"triggerId"`
	TaskName                  string      `json:"taskName"`
	DestinationDeviceRoleName string      `json:"destinationDeviceRoleName"`
	Control                   TaskControl `json:"control"`
}

func (*TriggeredTaskData) TypeName() string   { return TypeTriggeredTask }
func (*TriggeredTaskData) DataType() DataType { return TriggeredTask }

// UnknownData is the fallback for data discriminators this process does not
// know.
type UnknownData struct {
	polymorphic.Unknown
}

func (*UnknownData) DataType() DataType { return "" }
