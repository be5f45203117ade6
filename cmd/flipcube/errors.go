package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/flipcube/internal/protocol"
	"github.com/srg/flipcube/internal/session"
	"github.com/srg/flipcube/pkg/connection"
)

// Command-level errors
var (
	// ErrNoAddress is returned by device commands when neither --address nor the config names a cube
	ErrNoAddress = errors.New("no cube address (use --address or set address in the config file)")
	// ErrCommandFailed is returned when the cube answered a settings change with a failure status
	ErrCommandFailed = errors.New("the cube did not accept the change")
)

// FormatUserError turns an error chain into a message for the terminal. Known
// conditions get an actionable hint; everything else prints unchanged.
func FormatUserError(err error) string {
	var lengthErr *protocol.LengthError
	var rangeErr *protocol.RangeError
	var versionErr *session.VersionError

	switch {
	case errors.Is(err, connection.ErrBluetoothOff):
		return "Bluetooth is turned off or unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("timed out: %v (is the cube in range and awake? try flipping it)", err)
	case errors.Is(err, session.ErrUnknownFirmware):
		return fmt.Sprintf("unsupported cube firmware: %v", err)
	case errors.As(err, &versionErr):
		return fmt.Sprintf("%s is not available on %s firmware", versionErr.Operation, versionErr.Generation)
	case errors.Is(err, protocol.ErrShortResponse):
		return fmt.Sprintf("unexpected response from the cube, the password is probably wrong (%v)", err)
	case errors.Is(err, protocol.ErrCommand):
		return fmt.Sprintf("the cube rejected the command: %v", err)
	case errors.As(err, &lengthErr), errors.As(err, &rangeErr):
		return fmt.Sprintf("invalid value: %v", err)
	case errors.Is(err, connection.ErrNotConnected), errors.Is(err, session.ErrNotConnected):
		return fmt.Sprintf("connection to the cube was lost: %v", err)
	default:
		return err.Error()
	}
}
