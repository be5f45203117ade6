package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/flipcube/internal/protocol"
)

// Phase is the position of a session in its lifecycle
type Phase int

const (
	PhaseDisconnected Phase = iota
	PhaseConnected
	PhaseLoggedIn
	PhaseConfigured
)

func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseConnected:
		return "connected"
	case PhaseLoggedIn:
		return "logged_in"
	case PhaseConfigured:
		return "configured"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// FacetCallback is invoked with the new facet after every facet notification
type FacetCallback func(facet int)

// DeviceSession is a protocol session with one cube.
//
// Command round-trips are serialized by cmdMu: the device has no transaction
// identifiers, so a write to command_input and the read that follows it must never
// interleave with another command. Cached device state is guarded separately by mu,
// which notification handlers take without touching cmdMu.
type DeviceSession struct {
	address   string
	transport Transport
	logger    *logrus.Logger

	cmdMu sync.Mutex

	mu               sync.RWMutex
	connected        bool
	loggedIn         bool
	firmwareRevision string
	firmwareVersion  float64
	ops              *OperationSet
	paused           bool
	locked           bool
	autoPauseMinutes uint16
	currentFacet     int

	router *Router
}

// New creates a disconnected session for the device at address.
func New(address string, transport Transport, logger *logrus.Logger) *DeviceSession {
	if logger == nil {
		logger = logrus.New()
	}
	s := &DeviceSession{
		address:      address,
		transport:    transport,
		logger:       logger,
		currentFacet: -1,
	}
	s.router = newRouter(transport, logger)
	return s
}

// Address returns the device address
func (s *DeviceSession) Address() string { return s.address }

// Phase derives the lifecycle phase from the session flags
func (s *DeviceSession) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case !s.connected:
		return PhaseDisconnected
	case !s.loggedIn:
		return PhaseConnected
	case s.ops == nil:
		return PhaseLoggedIn
	default:
		return PhaseConfigured
	}
}

// IsConnected reports whether the transport connection is open
func (s *DeviceSession) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// IsLoggedIn reports whether a password was written in this session
func (s *DeviceSession) IsLoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loggedIn
}

func (s *DeviceSession) requireConnection() error {
	if !s.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

func (s *DeviceSession) requireLogin() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected {
		return ErrNotConnected
	}
	if !s.loggedIn {
		return ErrNotLoggedIn
	}
	return nil
}

// Connect opens the transport connection. Transport errors are returned unchanged
// and leave the session disconnected.
func (s *DeviceSession) Connect(ctx context.Context) error {
	if s.IsConnected() {
		return ErrAlreadyConnected
	}

	s.logger.WithField("address", s.address).Info("Connecting to cube...")
	if err := s.transport.Connect(ctx, s.address); err != nil {
		s.logger.WithFields(logrus.Fields{
			"address": s.address,
			"error":   err,
		}).Error("Failed to connect to cube")
		return err
	}

	if err := s.router.start(ctx); err != nil {
		s.bestEffort("disconnect transport", s.transport.Disconnect)
		return err
	}

	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()

	s.logger.WithField("address", s.address).Info("Cube connected")
	return nil
}

// Disconnect unsubscribes every active notification channel and closes the transport.
// Teardown is best-effort: failures are logged and discarded so the connection is
// always released.
func (s *DeviceSession) Disconnect(ctx context.Context) {
	if !s.IsConnected() {
		s.logger.Debug("Disconnect called but already disconnected")
		return
	}

	s.logger.WithField("address", s.address).Info("Disconnecting cube...")

	for ch, err := range s.router.unregisterAll(ctx) {
		s.logger.WithFields(logrus.Fields{
			"channel": ch,
			"error":   err,
		}).Warn("Failed to unsubscribe during disconnect")
	}
	s.router.stop()

	s.bestEffort("disconnect transport", s.transport.Disconnect)

	s.mu.Lock()
	s.connected = false
	s.loggedIn = false
	s.ops = nil
	s.firmwareRevision = ""
	s.firmwareVersion = 0
	s.paused = false
	s.locked = false
	s.autoPauseMinutes = 0
	s.currentFacet = -1
	s.mu.Unlock()

	s.logger.WithField("address", s.address).Info("Cube disconnected")
}

func (s *DeviceSession) bestEffort(what string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(logrus.Fields{
				"step":  what,
				"panic": r,
			}).Warn("Teardown step panicked")
		}
	}()
	if err := fn(); err != nil {
		s.logger.WithFields(logrus.Fields{
			"step":  what,
			"error": err,
		}).Warn("Teardown step failed")
	}
}

// Login writes the password. The device never acknowledges it, so the session is
// marked logged in optimistically; a wrong password only shows up later as short or
// garbage command responses.
func (s *DeviceSession) Login(ctx context.Context, password string) error {
	if err := s.requireConnection(); err != nil {
		return err
	}

	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	return s.login(ctx, password)
}

func (s *DeviceSession) login(ctx context.Context, password string) error {
	if password == "" {
		password = protocol.DefaultPassword
	}
	if err := protocol.ValidatePassword(password); err != nil {
		return err
	}
	if err := s.write(ctx, protocol.CharPasswordInput, []byte(password)); err != nil {
		return err
	}

	s.mu.Lock()
	s.loggedIn = true
	s.mu.Unlock()

	s.logger.Info("Password written, session marked logged in")
	return nil
}

// Setup reads the firmware revision, binds the matching operation set, logs in,
// subscribes to facet notifications, seeds the cached status and force-reads the facet.
func (s *DeviceSession) Setup(ctx context.Context, password string, onFacet FacetCallback) error {
	if err := s.requireConnection(); err != nil {
		return err
	}

	revision, err := s.FirmwareRevision(ctx)
	if err != nil {
		return err
	}
	version, err := protocol.ParseFirmwareVersion(revision)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownFirmware, err)
	}
	ops := OperationsFor(version)

	s.mu.Lock()
	s.firmwareRevision = revision
	s.firmwareVersion = version
	s.ops = ops
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"firmware":   revision,
		"version":    version,
		"generation": ops.Generation,
	}).Info("Bound firmware operation set")

	if err := s.Login(ctx, password); err != nil {
		return err
	}
	if err := s.RegisterFacetNotification(ctx, onFacet); err != nil {
		return err
	}
	if _, err := s.Status(ctx); err != nil {
		return err
	}
	if _, err := s.CurrentFacet(ctx, true); err != nil {
		return err
	}
	return nil
}

// read resolves name, reads it through the transport and trims the result to the
// registry read length. Registry violations fail before any transport call.
func (s *DeviceSession) read(ctx context.Context, name string) ([]byte, error) {
	spec, err := protocol.ResolveRead(name)
	if err != nil {
		return nil, err
	}
	data, err := s.readSpec(ctx, spec)
	if err != nil {
		return nil, err
	}
	return spec.TrimRead(data), nil
}

// readUntrimmed is read without the length trim; the legacy history block is one
// byte longer than command_result's registered length.
func (s *DeviceSession) readUntrimmed(ctx context.Context, name string) ([]byte, error) {
	spec, err := protocol.ResolveRead(name)
	if err != nil {
		return nil, err
	}
	return s.readSpec(ctx, spec)
}

func (s *DeviceSession) readSpec(ctx context.Context, spec protocol.CharacteristicSpec) ([]byte, error) {
	data, err := s.transport.ReadCharacteristic(ctx, spec.UUID)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"characteristic": spec.Name,
			"error":          err,
		}).Debug("Characteristic read failed")
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"characteristic": spec.Name,
		"bytes":          len(data),
	}).Debug("Characteristic read")
	return data, nil
}

func (s *DeviceSession) write(ctx context.Context, name string, data []byte) error {
	spec, err := protocol.ResolveWrite(name, data)
	if err != nil {
		return err
	}
	if err := s.transport.WriteCharacteristic(ctx, spec.UUID, data); err != nil {
		s.logger.WithFields(logrus.Fields{
			"characteristic": spec.Name,
			"error":          err,
		}).Debug("Characteristic write failed")
		return err
	}
	s.logger.WithFields(logrus.Fields{
		"characteristic": spec.Name,
		"bytes":          len(data),
	}).Debug("Characteristic written")
	return nil
}

// ReadCharacteristic reads a registry characteristic by name, for diagnostics.
func (s *DeviceSession) ReadCharacteristic(ctx context.Context, name string) ([]byte, error) {
	if err := s.requireConnection(); err != nil {
		return nil, err
	}
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	return s.read(ctx, name)
}

// WriteCommand writes frame to command_input. With verify, command_input is read
// back and the result is true only if the device echoed the opcode with the
// accepted status. A false result is not an error.
func (s *DeviceSession) WriteCommand(ctx context.Context, frame protocol.Frame, verify bool) (bool, error) {
	if err := s.requireLogin(); err != nil {
		return false, err
	}
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	return s.writeCommand(ctx, frame, verify)
}

func (s *DeviceSession) writeCommand(ctx context.Context, frame protocol.Frame, verify bool) (bool, error) {
	if err := s.write(ctx, protocol.CharCommandInput, frame); err != nil {
		return false, err
	}
	if !verify {
		return true, nil
	}

	readback, err := s.read(ctx, protocol.CharCommandInput)
	if err != nil {
		return false, err
	}
	accepted := frame.Accepted(readback)
	if !accepted {
		s.logger.WithFields(logrus.Fields{
			"frame":    frame.String(),
			"readback": fmt.Sprintf("% x", readback),
		}).Debug("Command not acknowledged")
	}
	return accepted, nil
}

// mustCommand is writeCommand for callers that require success.
func (s *DeviceSession) mustCommand(ctx context.Context, frame protocol.Frame) error {
	ok, err := s.writeCommand(ctx, frame, true)
	if err != nil {
		return err
	}
	if !ok {
		return &protocol.CommandError{Frame: frame}
	}
	return nil
}

// WriteCommandAndReadResult writes frame and reads the full command_result.
func (s *DeviceSession) WriteCommandAndReadResult(ctx context.Context, frame protocol.Frame, verify bool) ([]byte, error) {
	if err := s.requireLogin(); err != nil {
		return nil, err
	}
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	return s.writeCommandAndReadResult(ctx, frame, verify)
}

func (s *DeviceSession) writeCommandAndReadResult(ctx context.Context, frame protocol.Frame, verify bool) ([]byte, error) {
	ok, err := s.writeCommand(ctx, frame, verify)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &protocol.CommandError{Frame: frame}
	}
	return s.read(ctx, protocol.CharCommandResult)
}

// protocolResponseError marks a response too short to decode. Right after login
// this usually means the password was wrong.
func protocolResponseError(err error) error {
	if errors.Is(err, protocol.ErrShortResponse) {
		return fmt.Errorf("%w (possibly %v)", err, ErrNotLoggedIn)
	}
	return err
}
