package session

import (
	"context"
	"time"

	"github.com/srg/flipcube/internal/protocol"
)

// Generation is a firmware family with its own operation set
type Generation int

const (
	// GenerationLegacy covers firmware before 3.47: packed history, calibration version
	GenerationLegacy Generation = iota
	// GenerationCurrent covers 3.47 and later: aligned history, time, LEDs, facet table
	GenerationCurrent
)

func (g Generation) String() string {
	if g == GenerationLegacy {
		return "legacy"
	}
	return "current"
}

// OperationSet is the table of firmware-dependent operations. It is selected once
// by Setup and every versioned session method dispatches through it.
type OperationSet struct {
	Generation Generation

	CalibrationVersion    func(ctx context.Context, s *DeviceSession) (uint32, error)
	SetCalibrationVersion func(ctx context.Context, s *DeviceSession, version int64) error
	AccelerometerValue    func(ctx context.Context, s *DeviceSession, multiplier float64) (protocol.Vector, error)
	HistoryDelete         func(ctx context.Context, s *DeviceSession) error

	GetTime           func(ctx context.Context, s *DeviceSession) (time.Time, error)
	SetTime           func(ctx context.Context, s *DeviceSession, t time.Time) error
	SetBrightness     func(ctx context.Context, s *DeviceSession, percent int) error
	SetBlinkFrequency func(ctx context.Context, s *DeviceSession, seconds int) error
	SetColor          func(ctx context.Context, s *DeviceSession, facet uint8, color protocol.RGB) error
	SetFacet          func(ctx context.Context, s *DeviceSession, facet uint8, mode protocol.FacetMode, pomodoroSeconds int64) error
	GetFacet          func(ctx context.Context, s *DeviceSession, facet uint8) (protocol.FacetConfig, error)
	GetAllFacets      func(ctx context.Context, s *DeviceSession) ([]protocol.FacetConfig, error)
	SystemState       func(ctx context.Context, s *DeviceSession) ([]byte, error)
	Event             func(ctx context.Context, s *DeviceSession) ([]byte, error)
	HistoryDump       func(ctx context.Context, s *DeviceSession) error

	History func(ctx context.Context, s *DeviceSession) (HistoryReader, error)
}

var (
	legacyOperations  = newLegacyOperations()
	currentOperations = newCurrentOperations()
)

// OperationsFor returns the operation set for a parsed firmware version
func OperationsFor(version float64) *OperationSet {
	if version < protocol.LegacyFirmwareThreshold {
		return legacyOperations
	}
	return currentOperations
}

func newLegacyOperations() *OperationSet {
	g := GenerationLegacy
	return &OperationSet{
		Generation: g,

		CalibrationVersion: func(ctx context.Context, s *DeviceSession) (uint32, error) {
			data, err := s.serialized(ctx, func() ([]byte, error) { return s.read(ctx, protocol.CharCalibrationVersion) })
			if err != nil {
				return 0, err
			}
			v, err := protocol.DecodeUint32(data)
			return v, protocolResponseError(err)
		},
		SetCalibrationVersion: func(ctx context.Context, s *DeviceSession, version int64) error {
			data, err := protocol.EncodeCalibrationVersion(version)
			if err != nil {
				return err
			}
			_, err = s.serialized(ctx, func() ([]byte, error) {
				return nil, s.write(ctx, protocol.CharCalibrationVersion, data)
			})
			return err
		},
		AccelerometerValue: func(ctx context.Context, s *DeviceSession, multiplier float64) (protocol.Vector, error) {
			data, err := s.serialized(ctx, func() ([]byte, error) { return s.read(ctx, protocol.CharAccelerometerData) })
			if err != nil {
				return protocol.Vector{}, err
			}
			v, err := protocol.DecodeAccelerometer(data, multiplier)
			return v, protocolResponseError(err)
		},
		HistoryDelete: func(ctx context.Context, s *DeviceSession) error {
			_, err := s.serialized(ctx, func() ([]byte, error) {
				return nil, s.mustCommand(ctx, protocol.HistoryDumpFrame())
			})
			return err
		},
		History: func(ctx context.Context, s *DeviceSession) (HistoryReader, error) {
			return &packedHistory{session: s}, nil
		},

		GetTime: func(context.Context, *DeviceSession) (time.Time, error) {
			return time.Time{}, unimplemented("GetTime", g)
		},
		SetTime: func(context.Context, *DeviceSession, time.Time) error {
			return unimplemented("SetTime", g)
		},
		SetBrightness: func(context.Context, *DeviceSession, int) error {
			return unimplemented("SetBrightness", g)
		},
		SetBlinkFrequency: func(context.Context, *DeviceSession, int) error {
			return unimplemented("SetBlinkFrequency", g)
		},
		SetColor: func(context.Context, *DeviceSession, uint8, protocol.RGB) error {
			return unimplemented("SetColor", g)
		},
		SetFacet: func(context.Context, *DeviceSession, uint8, protocol.FacetMode, int64) error {
			return unimplemented("SetFacet", g)
		},
		GetFacet: func(context.Context, *DeviceSession, uint8) (protocol.FacetConfig, error) {
			return protocol.FacetConfig{}, unimplemented("GetFacet", g)
		},
		GetAllFacets: func(context.Context, *DeviceSession) ([]protocol.FacetConfig, error) {
			return nil, unimplemented("GetAllFacets", g)
		},
		SystemState: func(context.Context, *DeviceSession) ([]byte, error) {
			return nil, unimplemented("SystemState", g)
		},
		Event: func(context.Context, *DeviceSession) ([]byte, error) {
			return nil, unimplemented("Event", g)
		},
		HistoryDump: func(context.Context, *DeviceSession) error {
			return unimplemented("HistoryDump", g)
		},
	}
}

func newCurrentOperations() *OperationSet {
	g := GenerationCurrent
	return &OperationSet{
		Generation: g,

		CalibrationVersion: func(context.Context, *DeviceSession) (uint32, error) {
			return 0, deprecated("CalibrationVersion", g)
		},
		SetCalibrationVersion: func(context.Context, *DeviceSession, int64) error {
			return deprecated("SetCalibrationVersion", g)
		},
		AccelerometerValue: func(context.Context, *DeviceSession, float64) (protocol.Vector, error) {
			return protocol.Vector{}, deprecated("AccelerometerValue", g)
		},
		HistoryDelete: func(context.Context, *DeviceSession) error {
			return deprecated("HistoryDelete", g)
		},

		GetTime: func(ctx context.Context, s *DeviceSession) (time.Time, error) {
			data, err := s.serialized(ctx, func() ([]byte, error) {
				return s.writeCommandAndReadResult(ctx, protocol.TimeReadFrame(), false)
			})
			if err != nil {
				return time.Time{}, err
			}
			t, err := protocol.ParseTime(data)
			return t, protocolResponseError(err)
		},
		SetTime: func(ctx context.Context, s *DeviceSession, t time.Time) error {
			frame, err := protocol.TimeWriteFrame(t)
			if err != nil {
				return err
			}
			return s.serializedCommand(ctx, frame)
		},
		SetBrightness: func(ctx context.Context, s *DeviceSession, percent int) error {
			frame, err := protocol.BrightnessFrame(percent)
			if err != nil {
				return err
			}
			return s.serializedCommand(ctx, frame)
		},
		SetBlinkFrequency: func(ctx context.Context, s *DeviceSession, seconds int) error {
			frame, err := protocol.BlinkFrequencyFrame(seconds)
			if err != nil {
				return err
			}
			return s.serializedCommand(ctx, frame)
		},
		SetColor: func(ctx context.Context, s *DeviceSession, facet uint8, color protocol.RGB) error {
			return s.serializedCommand(ctx, protocol.ColorFrame(facet, color))
		},
		SetFacet: func(ctx context.Context, s *DeviceSession, facet uint8, mode protocol.FacetMode, pomodoroSeconds int64) error {
			frame, err := protocol.FacetWriteFrame(facet, mode, pomodoroSeconds)
			if err != nil {
				return err
			}
			return s.serializedCommand(ctx, frame)
		},
		GetFacet: readFacet,
		GetAllFacets: func(ctx context.Context, s *DeviceSession) ([]protocol.FacetConfig, error) {
			out := make([]protocol.FacetConfig, 0, protocol.FacetCount)
			for facet := 0; facet < protocol.FacetCount; facet++ {
				cfg, err := readFacet(ctx, s, uint8(facet))
				if err != nil {
					return out, err
				}
				out = append(out, cfg)
			}
			return out, nil
		},
		SystemState: func(ctx context.Context, s *DeviceSession) ([]byte, error) {
			return s.serialized(ctx, func() ([]byte, error) { return s.read(ctx, protocol.CharSystemState) })
		},
		Event: func(ctx context.Context, s *DeviceSession) ([]byte, error) {
			return s.serialized(ctx, func() ([]byte, error) { return s.read(ctx, protocol.CharEventData) })
		},
		HistoryDump: func(ctx context.Context, s *DeviceSession) error {
			return s.serializedCommand(ctx, protocol.HistoryDumpFrame())
		},
		History: func(ctx context.Context, s *DeviceSession) (HistoryReader, error) {
			return &alignedHistory{session: s}, nil
		},
	}
}

func readFacet(ctx context.Context, s *DeviceSession, facet uint8) (protocol.FacetConfig, error) {
	data, err := s.serialized(ctx, func() ([]byte, error) {
		return s.writeCommandAndReadResult(ctx, protocol.FacetReadFrame(facet), true)
	})
	if err != nil {
		return protocol.FacetConfig{}, err
	}
	cfg, err := protocol.ParseFacetConfig(data)
	return cfg, protocolResponseError(err)
}

// serialized runs fn under the command lock after the login check
func (s *DeviceSession) serialized(ctx context.Context, fn func() ([]byte, error)) ([]byte, error) {
	if err := s.requireLogin(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	return fn()
}

func (s *DeviceSession) serializedCommand(ctx context.Context, frame protocol.Frame) error {
	_, err := s.serialized(ctx, func() ([]byte, error) { return nil, s.mustCommand(ctx, frame) })
	return err
}

// CalibrationVersion reads the calibration version (legacy firmware)
func (s *DeviceSession) CalibrationVersion(ctx context.Context) (uint32, error) {
	ops, err := s.gatedOperations()
	if err != nil {
		return 0, err
	}
	return ops.CalibrationVersion(ctx, s)
}

// SetCalibrationVersion writes the calibration version (legacy firmware).
// Values outside 32 bits fail before any write.
func (s *DeviceSession) SetCalibrationVersion(ctx context.Context, version int64) error {
	ops, err := s.gatedOperations()
	if err != nil {
		return err
	}
	return ops.SetCalibrationVersion(ctx, s, version)
}

// AccelerometerValue reads the acceleration vector in G times multiplier (legacy firmware)
func (s *DeviceSession) AccelerometerValue(ctx context.Context, multiplier float64) (protocol.Vector, error) {
	ops, err := s.gatedOperations()
	if err != nil {
		return protocol.Vector{}, err
	}
	return ops.AccelerometerValue(ctx, s, multiplier)
}

// HistoryDelete clears the on-device history (legacy firmware)
func (s *DeviceSession) HistoryDelete(ctx context.Context) error {
	ops, err := s.gatedOperations()
	if err != nil {
		return err
	}
	return ops.HistoryDelete(ctx, s)
}

// GetTime reads the device clock
func (s *DeviceSession) GetTime(ctx context.Context) (time.Time, error) {
	ops, err := s.gatedOperations()
	if err != nil {
		return time.Time{}, err
	}
	return ops.GetTime(ctx, s)
}

// SetTime sets the device clock with one-second resolution
func (s *DeviceSession) SetTime(ctx context.Context, t time.Time) error {
	ops, err := s.gatedOperations()
	if err != nil {
		return err
	}
	return ops.SetTime(ctx, s, t)
}

// SetBrightness sets the LED brightness in percent
func (s *DeviceSession) SetBrightness(ctx context.Context, percent int) error {
	ops, err := s.gatedOperations()
	if err != nil {
		return err
	}
	return ops.SetBrightness(ctx, s, percent)
}

// SetBlinkFrequency sets the delay between LED blinks in seconds
func (s *DeviceSession) SetBlinkFrequency(ctx context.Context, seconds int) error {
	ops, err := s.gatedOperations()
	if err != nil {
		return err
	}
	return ops.SetBlinkFrequency(ctx, s, seconds)
}

// SetColor sets the LED color shown for facet
func (s *DeviceSession) SetColor(ctx context.Context, facet uint8, color protocol.RGB) error {
	ops, err := s.gatedOperations()
	if err != nil {
		return err
	}
	return ops.SetColor(ctx, s, facet, color)
}

// SetFacet configures a facet's mode and pomodoro limit
func (s *DeviceSession) SetFacet(ctx context.Context, facet uint8, mode protocol.FacetMode, pomodoroSeconds int64) error {
	ops, err := s.gatedOperations()
	if err != nil {
		return err
	}
	return ops.SetFacet(ctx, s, facet, mode, pomodoroSeconds)
}

// GetFacet reads one facet's configuration
func (s *DeviceSession) GetFacet(ctx context.Context, facet uint8) (protocol.FacetConfig, error) {
	ops, err := s.gatedOperations()
	if err != nil {
		return protocol.FacetConfig{}, err
	}
	return ops.GetFacet(ctx, s, facet)
}

// GetAllFacets reads the configuration of facets 0 through 11
func (s *DeviceSession) GetAllFacets(ctx context.Context) ([]protocol.FacetConfig, error) {
	ops, err := s.gatedOperations()
	if err != nil {
		return nil, err
	}
	return ops.GetAllFacets(ctx, s)
}

// SystemState returns the raw system_state bytes
func (s *DeviceSession) SystemState(ctx context.Context) ([]byte, error) {
	ops, err := s.gatedOperations()
	if err != nil {
		return nil, err
	}
	return ops.SystemState(ctx, s)
}

// Event returns the raw event_data block
func (s *DeviceSession) Event(ctx context.Context) ([]byte, error) {
	ops, err := s.gatedOperations()
	if err != nil {
		return nil, err
	}
	return ops.Event(ctx, s)
}

// HistoryDump issues the history dump command
func (s *DeviceSession) HistoryDump(ctx context.Context) error {
	ops, err := s.gatedOperations()
	if err != nil {
		return err
	}
	return ops.HistoryDump(ctx, s)
}

// History starts a history read-out in the layout of the bound firmware
func (s *DeviceSession) History(ctx context.Context) (HistoryReader, error) {
	ops, err := s.gatedOperations()
	if err != nil {
		return nil, err
	}
	return ops.History(ctx, s)
}

// gatedOperations returns the bound set for a logged-in session
func (s *DeviceSession) gatedOperations() (*OperationSet, error) {
	if err := s.requireLogin(); err != nil {
		return nil, err
	}
	return s.operations()
}
