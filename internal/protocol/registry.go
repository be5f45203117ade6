package protocol

import (
	"fmt"

	"github.com/go-ble/ble"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Characteristic names understood by the registry
const (
	CharBatteryLevel       = "battery_level"
	CharFirmwareRevision   = "firmware_revision"
	CharDeviceName         = "device_name"
	CharEventData          = "event_data"
	CharAccelerometerData  = "accelerometer_data"
	CharFacet              = "facet"
	CharCommandResult      = "command_result"
	CharCommandInput       = "command_input"
	CharDoubleTap          = "double_tap"
	CharCalibrationVersion = "calibration_version"
	CharSystemState        = "system_state"
	CharPasswordInput      = "password_input"
	CharHistoryData        = "history_data"
)

// Unsupported marks an access length the characteristic does not permit
const Unsupported = -1

const (
	genericUUIDFormat = "0000%04x-0000-1000-8000-00805f9b34fb"
	deviceUUIDFormat  = "f119%04x-71a4-11e6-bdf4-0800200c9a66"
)

// CharacteristicSpec describes one registry entry. Lengths equal to Unsupported
// forbid the corresponding access.
type CharacteristicSpec struct {
	Name      string
	UUID      ble.UUID
	ReadLen   int
	WriteLen  int
	NotifyLen int
}

// Readable reports whether reads are permitted
func (s CharacteristicSpec) Readable() bool { return s.ReadLen != Unsupported }

// Writable reports whether writes are permitted
func (s CharacteristicSpec) Writable() bool { return s.WriteLen != Unsupported }

// Notifiable reports whether subscriptions are permitted
func (s CharacteristicSpec) Notifiable() bool { return s.NotifyLen != Unsupported }

// TrimRead truncates a read result to ReadLen; firmware sometimes pads responses.
func (s CharacteristicSpec) TrimRead(data []byte) []byte {
	if s.ReadLen >= 0 && len(data) > s.ReadLen {
		return data[:s.ReadLen]
	}
	return data
}

func genericUUID(selector uint16) ble.UUID {
	return ble.MustParse(fmt.Sprintf(genericUUIDFormat, selector))
}

func deviceUUID(selector uint16) ble.UUID {
	return ble.MustParse(fmt.Sprintf(deviceUUIDFormat, selector))
}

// registry is built once and never mutated afterwards
var registry = newRegistry()

func newRegistry() *orderedmap.OrderedMap[string, CharacteristicSpec] {
	specs := []CharacteristicSpec{
		// generic profile
		{CharBatteryLevel, genericUUID(0x2a19), 1, Unsupported, Unsupported},
		{CharFirmwareRevision, genericUUID(0x2a26), 20, Unsupported, Unsupported},
		{CharDeviceName, genericUUID(0x2a00), 20, Unsupported, Unsupported},

		// device specific
		{CharEventData, deviceUUID(0x6f51), 20, Unsupported, 20},
		{CharAccelerometerData, deviceUUID(0x6f51), 6, Unsupported, Unsupported},
		{CharFacet, deviceUUID(0x6f52), 1, Unsupported, 1},
		{CharCommandResult, deviceUUID(0x6f53), 20, Unsupported, Unsupported},
		{CharCommandInput, deviceUUID(0x6f54), 2, 20, Unsupported},
		{CharDoubleTap, deviceUUID(0x6f55), Unsupported, Unsupported, Unsupported},
		{CharCalibrationVersion, deviceUUID(0x6f56), 4, 4, Unsupported},
		{CharSystemState, deviceUUID(0x6f56), 4, Unsupported, Unsupported},
		{CharPasswordInput, deviceUUID(0x6f57), Unsupported, 6, Unsupported},
		{CharHistoryData, deviceUUID(0x6f58), 20, 20, 20},
	}

	m := orderedmap.New[string, CharacteristicSpec](len(specs))
	for _, s := range specs {
		m.Set(s.Name, s)
	}
	return m
}

// Resolve looks up a characteristic by name.
func Resolve(name string) (CharacteristicSpec, error) {
	spec, ok := registry.Get(name)
	if !ok {
		return CharacteristicSpec{}, &CharacteristicError{Name: name, Err: ErrUnknownCharacteristic}
	}
	return spec, nil
}

// Characteristics returns every registry entry in declaration order.
func Characteristics() []CharacteristicSpec {
	out := make([]CharacteristicSpec, 0, registry.Len())
	for pair := registry.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// ResolveRead resolves name and checks that it may be read.
func ResolveRead(name string) (CharacteristicSpec, error) {
	return resolveFor(name, AccessRead)
}

// ResolveNotify resolves name and checks that it may be subscribed to.
func ResolveNotify(name string) (CharacteristicSpec, error) {
	return resolveFor(name, AccessNotify)
}

// ResolveWrite resolves name and checks that data fits its write length.
func ResolveWrite(name string, data []byte) (CharacteristicSpec, error) {
	spec, err := resolveFor(name, AccessWrite)
	if err != nil {
		return spec, err
	}
	if len(data) > spec.WriteLen {
		return spec, &LengthError{Field: name, Got: len(data), Limit: spec.WriteLen}
	}
	return spec, nil
}

func resolveFor(name string, access Access) (CharacteristicSpec, error) {
	spec, err := Resolve(name)
	if err != nil {
		return spec, err
	}

	var allowed bool
	switch access {
	case AccessRead:
		allowed = spec.Readable()
	case AccessWrite:
		allowed = spec.Writable()
	case AccessNotify:
		allowed = spec.Notifiable()
	}
	if !allowed {
		return spec, &CharacteristicError{Name: name, Access: access, Err: ErrUnsupportedOperation}
	}
	return spec, nil
}
