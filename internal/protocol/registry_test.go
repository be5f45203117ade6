package protocol

import (
	"errors"
	"testing"

	"github.com/go-ble/ble"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	spec, err := Resolve(CharFacet)
	require.NoError(t, err)
	assert.True(t, spec.UUID.Equal(ble.MustParse("f1196f52-71a4-11e6-bdf4-0800200c9a66")))
	assert.Equal(t, 1, spec.ReadLen)
	assert.Equal(t, Unsupported, spec.WriteLen)
	assert.Equal(t, 1, spec.NotifyLen)

	battery, err := Resolve(CharBatteryLevel)
	require.NoError(t, err)
	assert.True(t, battery.UUID.Equal(ble.MustParse("00002a19-0000-1000-8000-00805f9b34fb")))

	_, err = Resolve("heart_rate")
	assert.ErrorIs(t, err, ErrUnknownCharacteristic)

	var charErr *CharacteristicError
	require.True(t, errors.As(err, &charErr))
	assert.Equal(t, "heart_rate", charErr.Name)
}

func TestCharacteristics_Order(t *testing.T) {
	specs := Characteristics()
	require.Len(t, specs, 13)

	names := make([]string, 0, len(specs))
	for _, s := range specs {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{
		CharBatteryLevel, CharFirmwareRevision, CharDeviceName,
		CharEventData, CharAccelerometerData, CharFacet, CharCommandResult, CharCommandInput,
		CharDoubleTap, CharCalibrationVersion, CharSystemState, CharPasswordInput, CharHistoryData,
	}, names, "registry MUST keep declaration order")
}

func TestCharacteristics_SharedUUIDs(t *testing.T) {
	// event_data and accelerometer_data, calibration_version and system_state
	// are the same GATT characteristic read with different lengths
	event, _ := Resolve(CharEventData)
	accel, _ := Resolve(CharAccelerometerData)
	assert.True(t, event.UUID.Equal(accel.UUID))
	assert.NotEqual(t, event.ReadLen, accel.ReadLen)

	calibration, _ := Resolve(CharCalibrationVersion)
	state, _ := Resolve(CharSystemState)
	assert.True(t, calibration.UUID.Equal(state.UUID))
	assert.True(t, calibration.Writable())
	assert.False(t, state.Writable())
}

func TestResolveAccess(t *testing.T) {
	tests := []struct {
		name    string
		resolve func() error
		wantErr error
	}{
		{"read battery", func() error { _, err := ResolveRead(CharBatteryLevel); return err }, nil},
		{"read password", func() error { _, err := ResolveRead(CharPasswordInput); return err }, ErrUnsupportedOperation},
		{"read double tap", func() error { _, err := ResolveRead(CharDoubleTap); return err }, ErrUnsupportedOperation},
		{"notify facet", func() error { _, err := ResolveNotify(CharFacet); return err }, nil},
		{"notify battery", func() error { _, err := ResolveNotify(CharBatteryLevel); return err }, ErrUnsupportedOperation},
		{"write password", func() error { _, err := ResolveWrite(CharPasswordInput, []byte("000000")); return err }, nil},
		{"write long password", func() error { _, err := ResolveWrite(CharPasswordInput, []byte("0000000")); return err }, ErrValueTooLong},
		{"write facet", func() error { _, err := ResolveWrite(CharFacet, []byte{1}); return err }, ErrUnsupportedOperation},
		{"write unknown", func() error { _, err := ResolveWrite("nope", nil); return err }, ErrUnknownCharacteristic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.resolve()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCharacteristicError_Message(t *testing.T) {
	_, err := ResolveNotify(CharBatteryLevel)
	assert.EqualError(t, err, `characteristic "battery_level" does not support notify`)

	_, err = Resolve("x")
	assert.EqualError(t, err, `unknown characteristic "x"`)
}

func TestTrimRead(t *testing.T) {
	spec, _ := Resolve(CharCommandInput)
	assert.Equal(t, []byte{0x04, 0x02}, spec.TrimRead([]byte{0x04, 0x02, 0xff, 0xff}))
	assert.Equal(t, []byte{0x04}, spec.TrimRead([]byte{0x04}), "short reads MUST be kept as is")
}
