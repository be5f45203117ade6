package protocol

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// Sentinel errors matched through errors.Is against the structured errors below
var (
	ErrUnknownCharacteristic = errors.New("unknown characteristic")
	ErrUnsupportedOperation  = errors.New("unsupported operation")
	ErrCommand               = errors.New("command failed")
	ErrValueTooLong          = errors.New("value too long")
	ErrInvalidLength         = errors.New("invalid length")
	ErrShortResponse         = errors.New("short response")
	ErrNotASCII              = errors.New("value is not ASCII")
)

// Access identifies the kind of characteristic access being validated
type Access string

const (
	AccessRead   Access = "read"
	AccessWrite  Access = "write"
	AccessNotify Access = "notify"
)

// CharacteristicError reports a registry violation: the name is not in the table,
// or the requested access is not permitted for it.
type CharacteristicError struct {
	Name   string
	Access Access
	Err    error // ErrUnknownCharacteristic or ErrUnsupportedOperation
}

func (e *CharacteristicError) Error() string {
	if errors.Is(e.Err, ErrUnknownCharacteristic) {
		return fmt.Sprintf("unknown characteristic %q", e.Name)
	}
	return fmt.Sprintf("characteristic %q does not support %s", e.Name, e.Access)
}

func (e *CharacteristicError) Unwrap() error {
	return e.Err
}

// CommandError reports a command the device rejected or did not acknowledge.
type CommandError struct {
	Frame []byte
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("error while executing command %s", hex.EncodeToString(e.Frame))
}

// Is allows errors.Is(err, ErrCommand)
func (e *CommandError) Is(target error) bool {
	return target == ErrCommand
}

// LengthError reports a caller-supplied value that violates a fixed-size field.
// Exact is set when the field requires precisely Limit bytes/units.
type LengthError struct {
	Field string
	Got   int
	Limit int
	Exact bool
}

func (e *LengthError) Error() string {
	if e.Exact {
		return fmt.Sprintf("%s: invalid length %d (must be exactly %d)", e.Field, e.Got, e.Limit)
	}
	return fmt.Sprintf("%s: %d is too long (max %d)", e.Field, e.Got, e.Limit)
}

// Is matches ErrInvalidLength for exact-size fields and ErrValueTooLong otherwise
func (e *LengthError) Is(target error) bool {
	if e.Exact {
		return target == ErrInvalidLength
	}
	return target == ErrValueTooLong
}

// RangeError reports a numeric argument outside its accepted interval.
type RangeError struct {
	Field    string
	Value    int64
	Min, Max int64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s: %d out of range [%d, %d]", e.Field, e.Value, e.Min, e.Max)
}

// Is matches ErrValueTooLong when the value overflows its field, ErrInvalidLength otherwise
func (e *RangeError) Is(target error) bool {
	if e.Value > e.Max {
		return target == ErrValueTooLong
	}
	return target == ErrInvalidLength
}

func shortResponse(what string, got, want int) error {
	return fmt.Errorf("%s: got %d bytes, want at least %d: %w", what, got, want, ErrShortResponse)
}
