package session

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/flipcube/internal/protocol"
)

// BatteryLevel returns the battery charge in percent
func (s *DeviceSession) BatteryLevel(ctx context.Context) (int, error) {
	data, err := s.readConnected(ctx, protocol.CharBatteryLevel)
	if err != nil {
		return 0, err
	}
	return protocol.DecodeBattery(data)
}

// FirmwareRevision returns the raw firmware revision string, e.g. "FW_v3.50"
func (s *DeviceSession) FirmwareRevision(ctx context.Context) (string, error) {
	data, err := s.readConnected(ctx, protocol.CharFirmwareRevision)
	if err != nil {
		return "", err
	}
	return protocol.DecodeASCII(data), nil
}

// DeviceName returns the advertised device name
func (s *DeviceSession) DeviceName(ctx context.Context) (string, error) {
	data, err := s.readConnected(ctx, protocol.CharDeviceName)
	if err != nil {
		return "", err
	}
	return protocol.DecodeASCII(data), nil
}

func (s *DeviceSession) readConnected(ctx context.Context, name string) ([]byte, error) {
	if err := s.requireConnection(); err != nil {
		return nil, err
	}
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	return s.read(ctx, name)
}

// CurrentFacet returns the facet facing up. Without force the cached value is
// returned when one is known.
func (s *DeviceSession) CurrentFacet(ctx context.Context, force bool) (int, error) {
	if err := s.requireLogin(); err != nil {
		return 0, err
	}
	if !force {
		if facet := s.CachedFacet(); facet >= 0 {
			return facet, nil
		}
	}

	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	data, err := s.read(ctx, protocol.CharFacet)
	if err != nil {
		return 0, err
	}
	facet, err := protocol.DecodeFacet(data)
	if err != nil {
		return 0, protocolResponseError(err)
	}
	s.setFacet(facet)
	return facet, nil
}

// Status reads lock, pause and auto-pause from the device and refreshes the cache
func (s *DeviceSession) Status(ctx context.Context) (protocol.Status, error) {
	if err := s.requireLogin(); err != nil {
		return protocol.Status{}, err
	}
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	data, err := s.writeCommandAndReadResult(ctx, protocol.StatusFrame(), false)
	if err != nil {
		return protocol.Status{}, err
	}
	st, err := protocol.ParseStatus(data)
	if err != nil {
		return protocol.Status{}, protocolResponseError(err)
	}
	s.applyStatus(st)

	s.logger.WithFields(logrus.Fields{
		"locked":     st.Locked,
		"paused":     st.Paused,
		"auto_pause": st.AutoPauseMinutes,
	}).Debug("Status refreshed")
	return st, nil
}

// Pause sets the pause state. The command is skipped when the cached state already
// matches, unless force is set.
func (s *DeviceSession) Pause(ctx context.Context, state, force bool) error {
	if err := s.requireLogin(); err != nil {
		return err
	}
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	if !force && s.Paused() == state {
		return nil
	}
	if err := s.mustCommand(ctx, protocol.PauseFrame(state)); err != nil {
		return err
	}

	s.mu.Lock()
	s.paused = state
	s.mu.Unlock()
	return nil
}

// Lock sets the lock state with the same skip rule as Pause. Locking forces the
// cached pause state on and auto-pause off, matching what the device reports.
func (s *DeviceSession) Lock(ctx context.Context, state, force bool) error {
	if err := s.requireLogin(); err != nil {
		return err
	}
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	if !force && s.Locked() == state {
		return nil
	}
	if err := s.mustCommand(ctx, protocol.LockFrame(state)); err != nil {
		return err
	}

	s.mu.Lock()
	s.locked = state
	if state {
		s.paused = true
		s.autoPauseMinutes = 0
	}
	s.mu.Unlock()
	return nil
}

// SetAutoPause sets the auto-pause delay in minutes; 0 disables it.
func (s *DeviceSession) SetAutoPause(ctx context.Context, minutes int) error {
	frame, err := protocol.AutoPauseFrame(minutes)
	if err != nil {
		return err
	}
	if err := s.requireLogin(); err != nil {
		return err
	}
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	if err := s.mustCommand(ctx, frame); err != nil {
		return err
	}

	s.mu.Lock()
	s.autoPauseMinutes = uint16(minutes)
	s.mu.Unlock()
	return nil
}

// SetName renames the device. The result reports whether the device accepted it.
func (s *DeviceSession) SetName(ctx context.Context, name string) (bool, error) {
	frame, err := protocol.SetNameFrame(name)
	if err != nil {
		return false, err
	}
	return s.WriteCommand(ctx, frame, true)
}

// SetPassword changes the device password. The current session stays logged in.
func (s *DeviceSession) SetPassword(ctx context.Context, password string) (bool, error) {
	frame, err := protocol.SetPasswordFrame(password)
	if err != nil {
		return false, err
	}
	return s.WriteCommand(ctx, frame, true)
}

// CalibrationReset resets the facet calibration
func (s *DeviceSession) CalibrationReset(ctx context.Context) error {
	if err := s.requireLogin(); err != nil {
		return err
	}
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	_, err := s.writeCommand(ctx, protocol.CalibrationResetFrame(), false)
	return err
}

// Paused returns the cached pause state
func (s *DeviceSession) Paused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

// Locked returns the cached lock state
func (s *DeviceSession) Locked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.locked
}

// AutoPauseMinutes returns the cached auto-pause delay
func (s *DeviceSession) AutoPauseMinutes() uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.autoPauseMinutes
}

// CachedFacet returns the last known facet, or -1 when none has been seen
func (s *DeviceSession) CachedFacet() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentFacet
}

// CachedStatus returns the cached status fields
func (s *DeviceSession) CachedStatus() protocol.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return protocol.Status{Locked: s.locked, Paused: s.paused, AutoPauseMinutes: s.autoPauseMinutes}
}

// FirmwareVersion returns the version parsed during setup, or 0 before setup
func (s *DeviceSession) FirmwareVersion() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.firmwareVersion
}

// Generation returns the bound operation set's firmware generation
func (s *DeviceSession) Generation() (Generation, error) {
	ops, err := s.operations()
	if err != nil {
		return 0, err
	}
	return ops.Generation, nil
}

func (s *DeviceSession) setFacet(facet int) {
	s.mu.Lock()
	s.currentFacet = facet
	s.mu.Unlock()
}

func (s *DeviceSession) applyStatus(st protocol.Status) {
	s.mu.Lock()
	s.locked = st.Locked
	s.paused = st.Paused
	s.autoPauseMinutes = st.AutoPauseMinutes
	s.mu.Unlock()
}

func (s *DeviceSession) operations() (*OperationSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected {
		return nil, ErrNotConnected
	}
	if s.ops == nil {
		return nil, ErrNotConfigured
	}
	return s.ops, nil
}

func (s *DeviceSession) String() string {
	return fmt.Sprintf("DeviceSession{address=%s phase=%s}", s.address, s.Phase())
}
