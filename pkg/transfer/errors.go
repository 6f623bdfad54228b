package transfer

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is matched by every *ValidationError via errors.Is.
	ErrValidation = errors.New("invalid transfer")

	// ErrInvalidTransition is returned when a state change is not permitted
	// by the block state machine.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// ValidationError reports a structurally invalid transfer record. It is
// returned synchronously by constructors; no invalid record is ever created.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid transfer: %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrValidation) true for validation errors.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
