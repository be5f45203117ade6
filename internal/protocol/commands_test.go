package protocol

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleFrames(t *testing.T) {
	assert.Equal(t, Frame{0x01}, HistoryFrame())
	assert.Equal(t, Frame{0x02}, HistoryDumpFrame())
	assert.Equal(t, Frame{0x03}, CalibrationResetFrame())
	assert.Equal(t, Frame{0x04, 0x01}, LockFrame(true))
	assert.Equal(t, Frame{0x04, 0x02}, LockFrame(false))
	assert.Equal(t, Frame{0x06, 0x01}, PauseFrame(true))
	assert.Equal(t, Frame{0x06, 0x02}, PauseFrame(false))
	assert.Equal(t, Frame{0x10}, StatusFrame())
	assert.Equal(t, Frame{0x07}, TimeReadFrame())
	assert.Equal(t, Frame{0x11, 0x03, 0xff, 0x80, 0x00}, ColorFrame(3, RGB{R: 0xff, G: 0x80}))
	assert.Equal(t, Frame{0x14, 0x0b}, FacetReadFrame(11))
	assert.Equal(t, Frame{0x01, 0x00, 0x00, 0x01, 0x02}, HistoryRequest(258))
}

func TestFrame_Accepted(t *testing.T) {
	f := LockFrame(true)

	assert.True(t, f.Accepted([]byte{0x04, 0x02}))
	assert.False(t, f.Accepted([]byte{0x04, 0x01}), "non-accepted status MUST fail")
	assert.False(t, f.Accepted([]byte{0x06, 0x02}), "other opcode MUST fail")
	assert.False(t, f.Accepted([]byte{0x04}), "short read-back MUST fail")
	assert.False(t, Frame(nil).Accepted([]byte{0x00, 0x02}))
	assert.Equal(t, Opcode(0), Frame(nil).Opcode())
}

func TestAutoPauseFrame(t *testing.T) {
	f, err := AutoPauseFrame(300)
	require.NoError(t, err)
	assert.Equal(t, Frame{0x05, 0x01, 0x2c}, f)

	_, err = AutoPauseFrame(-1)
	assert.ErrorIs(t, err, ErrInvalidLength)
	_, err = AutoPauseFrame(math.MaxUint16 + 1)
	assert.ErrorIs(t, err, ErrValueTooLong)
}

func TestSetNameFrame(t *testing.T) {
	f, err := SetNameFrame("Desk")
	require.NoError(t, err)
	assert.Equal(t, Frame{0x15, 0x04, 'D', 'e', 's', 'k'}, f)

	_, err = SetNameFrame("0123456789012345678")
	assert.NoError(t, err, "19 characters MUST fit")

	_, err = SetNameFrame("01234567890123456789")
	assert.ErrorIs(t, err, ErrValueTooLong)

	_, err = SetNameFrame("Würfel")
	assert.ErrorIs(t, err, ErrNotASCII)
}

func TestPasswordFrames(t *testing.T) {
	assert.NoError(t, ValidatePassword("123456"))
	assert.ErrorIs(t, ValidatePassword("12345"), ErrInvalidLength)
	assert.ErrorIs(t, ValidatePassword("1234567"), ErrInvalidLength, "password length is exact")

	f, err := SetPasswordFrame("abcdef")
	require.NoError(t, err)
	assert.Equal(t, Frame{0x30, 'a', 'b', 'c', 'd', 'e', 'f'}, f)
}

func TestTimeWriteFrame(t *testing.T) {
	f, err := TimeWriteFrame(time.Unix(0x01020304, 999_000_000))
	require.NoError(t, err)
	assert.Equal(t, Frame{0x08, 0x01, 0x02, 0x03, 0x04}, f, "sub-second part MUST be truncated")

	_, err = TimeWriteFrame(time.Unix(-1, 0))
	assert.Error(t, err)
}

func TestRangeFrames(t *testing.T) {
	f, err := BrightnessFrame(100)
	require.NoError(t, err)
	assert.Equal(t, Frame{0x09, 100}, f)
	_, err = BrightnessFrame(101)
	assert.ErrorIs(t, err, ErrValueTooLong)

	f, err = BlinkFrequencyFrame(5)
	require.NoError(t, err)
	assert.Equal(t, Frame{0x0A, 5}, f)
	_, err = BlinkFrequencyFrame(4)
	assert.ErrorIs(t, err, ErrInvalidLength)
	_, err = BlinkFrequencyFrame(61)
	assert.ErrorIs(t, err, ErrValueTooLong)

	f, err = FacetWriteFrame(2, FacetModePomodoro, 1500)
	require.NoError(t, err)
	assert.Equal(t, Frame{0x13, 0x02, 0x01, 0x00, 0x00, 0x05, 0xdc}, f)
	_, err = FacetWriteFrame(2, FacetModeNormal, math.MaxUint32+1)
	assert.ErrorIs(t, err, ErrValueTooLong)
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Status
	}{
		{"running", []byte{0x02, 0x02, 0x00, 0x00}, Status{}},
		{"paused with auto-pause", []byte{0x02, 0x01, 0x00, 0x0f}, Status{Paused: true, AutoPauseMinutes: 15}},
		{"locked ignores the rest", []byte{0x01, 0x02, 0x00, 0x0f}, Status{Locked: true, Paused: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := ParseStatus(tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, st)
		})
	}

	_, err := ParseStatus([]byte{0x00})
	assert.ErrorIs(t, err, ErrShortResponse)
}

func TestParseTime(t *testing.T) {
	ts, err := ParseTime([]byte{0x07, 0x65, 0x53, 0xf1, 0x00})
	require.NoError(t, err)
	assert.Equal(t, time.Unix(0x6553f100, 0).UTC(), ts)

	_, err = ParseTime([]byte{0x07, 0x00})
	assert.ErrorIs(t, err, ErrShortResponse)
}

func TestParseFacetConfig(t *testing.T) {
	cfg, err := ParseFacetConfig([]byte{0x14, 0x03, 0x01, 0x00, 0x00, 0x05, 0xdc, 0x00, 0x00, 0x00, 0x07})
	require.NoError(t, err)
	assert.Equal(t, FacetConfig{Facet: 3, Mode: FacetModePomodoro, PomodoroSeconds: 1500, Extra: 7}, cfg)
	assert.Equal(t, "pomodoro", cfg.Mode.String())

	_, err = ParseFacetConfig([]byte{0x14, 0x03})
	assert.ErrorIs(t, err, ErrShortResponse)
}

func TestCommandError(t *testing.T) {
	err := &CommandError{Frame: LockFrame(true)}
	assert.ErrorIs(t, err, ErrCommand)
	assert.EqualError(t, err, "error while executing command 0401")
}
