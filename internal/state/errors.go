package state

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidValue reports a value that violates positivity or enum membership.
	ErrInvalidValue = errors.New("invalid value")
	// ErrUnsupportedMode reports a resolution missing from a known mode list.
	ErrUnsupportedMode = errors.New("unsupported mode")
	// ErrUnknownOutput reports a lookup for a name the session does not hold.
	ErrUnknownOutput = errors.New("unknown output")
	// ErrDuplicateOutput reports an attempt to add a second output with the same name.
	ErrDuplicateOutput = errors.New("duplicate output")
)

// ValueError describes a rejected mutation.
type ValueError struct {
	Field string
	Value any
	Err   error
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("%s %v: %v", e.Field, e.Value, e.Err)
}

func (e *ValueError) Unwrap() error {
	return e.Err
}
