package session

import (
	"errors"
	"fmt"
)

// State is the kind of session-state precondition that failed
type State string

const (
	NotConnected     State = "not_connected"
	AlreadyConnected State = "already_connected"
	NotLoggedIn      State = "not_logged_in"
	NotConfigured    State = "not_configured"
)

// StateError reports an operation invoked in the wrong session state
type StateError struct {
	State State
	Msg   string
}

func (e *StateError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare StateError values by State
func (e *StateError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*StateError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for session states
var (
	ErrNotConnected     = &StateError{State: NotConnected}
	ErrAlreadyConnected = &StateError{State: AlreadyConnected}
	ErrNotLoggedIn      = &StateError{State: NotLoggedIn, Msg: "incorrect password or login not performed"}
	ErrNotConfigured    = &StateError{State: NotConfigured, Msg: "setup has not bound a firmware operation set"}
)

// Version errors
var (
	ErrDeprecatedOperation    = errors.New("deprecated operation")
	ErrUnimplementedOperation = errors.New("unimplemented operation")
	ErrUnknownFirmware        = errors.New("unknown firmware revision")
)

// VersionError reports an operation that the bound firmware generation does not offer
type VersionError struct {
	Operation  string
	Generation Generation
	Err        error // ErrDeprecatedOperation or ErrUnimplementedOperation
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("%s is %s on %s firmware", e.Operation, e.reason(), e.Generation)
}

func (e *VersionError) reason() string {
	if errors.Is(e.Err, ErrDeprecatedOperation) {
		return "deprecated"
	}
	return "not implemented"
}

func (e *VersionError) Unwrap() error {
	return e.Err
}

func deprecated(op string, g Generation) error {
	return &VersionError{Operation: op, Generation: g, Err: ErrDeprecatedOperation}
}

func unimplemented(op string, g Generation) error {
	return &VersionError{Operation: op, Generation: g, Err: ErrUnimplementedOperation}
}
