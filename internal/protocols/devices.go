package protocols

import (
	"github.com/roach88/carp/internal/polymorphic"
)

// DeviceBase is the polymorphic base of device configurations.
const DeviceBase polymorphic.BaseType = "dk.cachet.carp.common.application.devices.DeviceConfiguration"

const (
	TypeSmartphone           = "dk.cachet.carp.common.application.devices.Smartphone"
	TypeCustomProtocolDevice = "dk.cachet.carp.common.application.devices.CustomProtocolDevice"
	TypeAltBeacon            = "dk.cachet.carp.common.application.devices.AltBeacon"
	TypeBLEHeartRateDevice   = "dk.cachet.carp.common.application.devices.BLEHeartRateDevice"
)

// Device is a device configuration: a role a physical device fills in a
// study.
type Device interface {
	polymorphic.Variant

	// RoleName identifies the device within its protocol.
	RoleName() string
}

// Primary is implemented by devices that aggregate and upload data, as
// opposed to devices that only connect to one.
type Primary interface {
	Device
	primary()
}

// DeviceRole holds what every device configuration has.
type DeviceRole struct {
	Role       string `json:"roleName"`
	IsOptional bool   `json:"isOptional"`
}

func (d *DeviceRole) RoleName() string { return d.Role }

// Smartphone is a study participant's phone.
type Smartphone struct {
	DeviceRole
}

func (*Smartphone) TypeName() string { return TypeSmartphone }
func (*Smartphone) primary()         {}

// CustomProtocolDevice is a primary device running a protocol of its own.
type CustomProtocolDevice struct {
	DeviceRole
}

func (*CustomProtocolDevice) TypeName() string { return TypeCustomProtocolDevice }
func (*CustomProtocolDevice) primary()         {}

// AltBeacon is a proximity beacon.
type AltBeacon struct {
	DeviceRole
}

func (*AltBeacon) TypeName() string { return TypeAltBeacon }

// BLEHeartRateDevice is a Bluetooth heart rate sensor.
type BLEHeartRateDevice struct {
	DeviceRole
}

func (*BLEHeartRateDevice) TypeName() string { return TypeBLEHeartRateDevice }

// UnknownDevice is the fallback for device discriminators this process does
// not know. Its role name is read from the stored object.
type UnknownDevice struct {
	polymorphic.Unknown
}

func (d *UnknownDevice) RoleName() string {
	name, _ := d.Raw().String("roleName")
	return name
}

func newDeviceHierarchy(r *polymorphic.Registry) (*polymorphic.Hierarchy[Device], error) {
	h, err := polymorphic.NewHierarchy(r, DeviceBase, func(u polymorphic.Unknown) Device {
		return &UnknownDevice{u}
	})
	if err != nil {
		return nil, err
	}
	variants := map[string]func() Device{
		TypeSmartphone:           func() Device { return &Smartphone{} },
		TypeCustomProtocolDevice: func() Device { return &CustomProtocolDevice{} },
		TypeAltBeacon:            func() Device { return &AltBeacon{} },
		TypeBLEHeartRateDevice:   func() Device { return &BLEHeartRateDevice{} },
	}
	for name, newFn := range variants {
		if err := h.Register(name, polymorphic.StructCodec(newFn)); err != nil {
			return nil, err
		}
	}
	return h, nil
}
