package lifecycle

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound: the referenced appointment, employee, or business does
	// not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition: the requested operation is not legal from the
	// appointment's current status.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrSlotUnavailable: commit-time re-validation found the interval
	// occupied (the availability race was lost).
	ErrSlotUnavailable = errors.New("time slot unavailable")
)

// CutoffError rejects a cancellation attempted inside the 60-minute window
// before a scheduled appointment's start.
type CutoffError struct {
	RemainingMinutes int
}

func (e *CutoffError) Error() string {
	return fmt.Sprintf("cancellation cutoff window passed (%d minutes to start)", e.RemainingMinutes)
}

// ValidationError marks malformed input on a lifecycle operation.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

func invalidField(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}
