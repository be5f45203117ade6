package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Opcode is the first byte of every command frame
type Opcode byte

// Opcode numbering is shared by every firmware generation
const (
	OpHistory          Opcode = 0x01
	OpHistoryDump      Opcode = 0x02 // history delete on legacy firmware
	OpCalibrationReset Opcode = 0x03
	OpLock             Opcode = 0x04
	OpAutoPause        Opcode = 0x05
	OpPause            Opcode = 0x06
	OpTimeRead         Opcode = 0x07
	OpTimeWrite        Opcode = 0x08
	OpBrightness       Opcode = 0x09
	OpBlinkFrequency   Opcode = 0x0A
	OpStatus           Opcode = 0x10
	OpColorSet         Opcode = 0x11
	OpFacetWrite       Opcode = 0x13
	OpFacetRead        Opcode = 0x14
	OpSetName          Opcode = 0x15
	OpSetPassword      Opcode = 0x30
)

const (
	switchOn  byte = 0x01
	switchOff byte = 0x02

	// StatusAccepted is the byte the device echoes at index 1 of command_input
	// after accepting a command.
	StatusAccepted byte = 0x02

	MaxNameLength   = 19
	PasswordLength  = 6
	DefaultPassword = "000000"

	MaxBrightness     = 100
	MinBlinkFrequency = 5
	MaxBlinkFrequency = 60

	// FacetCount is the number of facets covered by a full facet-table read
	FacetCount = 12
)

// Frame is a command written to command_input: opcode followed by its fields
type Frame []byte

// Opcode returns byte 0 of the frame
func (f Frame) Opcode() Opcode {
	if len(f) == 0 {
		return 0
	}
	return Opcode(f[0])
}

// Accepted reports whether a command_input read-back acknowledges f.
func (f Frame) Accepted(readback []byte) bool {
	return len(f) > 0 && len(readback) >= 2 && readback[0] == f[0] && readback[1] == StatusAccepted
}

func (f Frame) String() string {
	return fmt.Sprintf("% x", []byte(f))
}

func frame(op Opcode, fields ...byte) Frame {
	return append(Frame{byte(op)}, fields...)
}

func onOff(state bool) byte {
	if state {
		return switchOn
	}
	return switchOff
}

func be32(v uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, v)
}

func checkASCII(field, value string) error {
	for i := 0; i < len(value); i++ {
		if value[i] > 0x7f {
			return fmt.Errorf("%s: %w", field, ErrNotASCII)
		}
	}
	return nil
}

func checkRange(field string, v, lo, hi int64) error {
	if v < lo || v > hi {
		return &RangeError{Field: field, Value: v, Min: lo, Max: hi}
	}
	return nil
}

// HistoryFrame starts a legacy packed history read-out
func HistoryFrame() Frame { return frame(OpHistory) }

// HistoryDumpFrame clears (legacy) or dumps (current) the on-device history
func HistoryDumpFrame() Frame { return frame(OpHistoryDump) }

// CalibrationResetFrame resets the accelerometer calibration
func CalibrationResetFrame() Frame { return frame(OpCalibrationReset) }

// LockFrame locks or unlocks the cube
func LockFrame(state bool) Frame { return frame(OpLock, onOff(state)) }

// PauseFrame pauses or resumes tracking
func PauseFrame(state bool) Frame { return frame(OpPause, onOff(state)) }

// StatusFrame queries lock/pause/auto-pause
func StatusFrame() Frame { return frame(OpStatus) }

// TimeReadFrame queries the device clock
func TimeReadFrame() Frame { return frame(OpTimeRead) }

// AutoPauseFrame sets the idle minutes before the device pauses itself (0 disables).
func AutoPauseFrame(minutes int) (Frame, error) {
	if err := checkRange("auto-pause minutes", int64(minutes), 0, math.MaxUint16); err != nil {
		return nil, err
	}
	return frame(OpAutoPause, byte(minutes>>8), byte(minutes)), nil
}

// SetNameFrame renames the device; name is limited to MaxNameLength ASCII bytes.
func SetNameFrame(name string) (Frame, error) {
	if err := checkASCII("name", name); err != nil {
		return nil, err
	}
	if len(name) > MaxNameLength {
		return nil, &LengthError{Field: "name", Got: len(name), Limit: MaxNameLength}
	}
	return frame(OpSetName, append([]byte{byte(len(name))}, name...)...), nil
}

// ValidatePassword checks that password is exactly PasswordLength ASCII bytes
func ValidatePassword(password string) error {
	if err := checkASCII("password", password); err != nil {
		return err
	}
	if len(password) != PasswordLength {
		return &LengthError{Field: "password", Got: len(password), Limit: PasswordLength, Exact: true}
	}
	return nil
}

// SetPasswordFrame changes the device password
func SetPasswordFrame(password string) (Frame, error) {
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}
	return frame(OpSetPassword, []byte(password)...), nil
}

// TimeWriteFrame sets the device clock to t, truncated to whole seconds since the epoch.
func TimeWriteFrame(t time.Time) (Frame, error) {
	secs := t.Unix()
	if err := checkRange("time", secs, 0, math.MaxUint32); err != nil {
		return nil, err
	}
	return frame(OpTimeWrite, be32(uint32(secs))...), nil
}

// BrightnessFrame sets LED brightness in percent
func BrightnessFrame(percent int) (Frame, error) {
	if err := checkRange("brightness", int64(percent), 0, MaxBrightness); err != nil {
		return nil, err
	}
	return frame(OpBrightness, byte(percent)), nil
}

// BlinkFrequencyFrame sets the delay between LED flashes in seconds
func BlinkFrequencyFrame(seconds int) (Frame, error) {
	if err := checkRange("blink frequency", int64(seconds), MinBlinkFrequency, MaxBlinkFrequency); err != nil {
		return nil, err
	}
	return frame(OpBlinkFrequency, byte(seconds)), nil
}

// RGB is a facet LED color
type RGB struct {
	R, G, B uint8
}

// ColorFrame sets the LED color of a facet
func ColorFrame(facet uint8, c RGB) Frame {
	return frame(OpColorSet, facet, c.R, c.G, c.B)
}

// FacetMode selects how a facet tracks time
type FacetMode uint8

const (
	FacetModeNormal   FacetMode = 0
	FacetModePomodoro FacetMode = 1
)

func (m FacetMode) String() string {
	switch m {
	case FacetModeNormal:
		return "normal"
	case FacetModePomodoro:
		return "pomodoro"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// FacetWriteFrame configures a facet's mode and pomodoro limit in seconds.
func FacetWriteFrame(facet uint8, mode FacetMode, pomodoroSeconds int64) (Frame, error) {
	if err := checkRange("pomodoro limit", pomodoroSeconds, 0, math.MaxUint32); err != nil {
		return nil, err
	}
	return frame(OpFacetWrite, append([]byte{facet, byte(mode)}, be32(uint32(pomodoroSeconds))...)...), nil
}

// FacetReadFrame queries a facet's configuration
func FacetReadFrame(facet uint8) Frame {
	return frame(OpFacetRead, facet)
}

// HistoryRequest asks history_data for one event of the aligned layout
func HistoryRequest(eventNumber uint32) Frame {
	return frame(OpHistory, be32(eventNumber)...)
}

// Status mirrors the device's lock/pause/auto-pause state
type Status struct {
	Locked           bool   `json:"locked"`
	Paused           bool   `json:"paused"`
	AutoPauseMinutes uint16 `json:"auto_pause_minutes"`
}

// ParseStatus decodes a status response. The device does not report pause and
// auto-pause while locked, so a locked status is normalized to paused with auto-pause 0.
func ParseStatus(data []byte) (Status, error) {
	if len(data) < 4 {
		return Status{}, shortResponse("status", len(data), 4)
	}

	st := Status{Locked: data[0] == switchOn}
	if st.Locked {
		st.Paused = true
		return st, nil
	}
	st.Paused = data[1] == switchOn
	st.AutoPauseMinutes = binary.BigEndian.Uint16(data[2:4])
	return st, nil
}

// ParseTime decodes a time-read response: bytes 1-4 are big-endian epoch seconds
func ParseTime(data []byte) (time.Time, error) {
	if len(data) < 5 {
		return time.Time{}, shortResponse("time", len(data), 5)
	}
	return time.Unix(int64(binary.BigEndian.Uint32(data[1:5])), 0).UTC(), nil
}

// FacetConfig is a decoded facet-read response
type FacetConfig struct {
	Facet           uint8     `json:"facet"`
	Mode            FacetMode `json:"mode"`
	PomodoroSeconds uint32    `json:"pomodoro_seconds"`
	Extra           uint32    `json:"extra"`
}

// ParseFacetConfig decodes [op, facet, mode, t0..t3, extra0..extra3]
func ParseFacetConfig(data []byte) (FacetConfig, error) {
	if len(data) < 11 {
		return FacetConfig{}, shortResponse("facet config", len(data), 11)
	}
	return FacetConfig{
		Facet:           data[1],
		Mode:            FacetMode(data[2]),
		PomodoroSeconds: binary.BigEndian.Uint32(data[3:7]),
		Extra:           binary.BigEndian.Uint32(data[7:11]),
	}, nil
}
