package notifications

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no notification has the requested id.
	ErrNotFound = errors.New("notification not found")

	// ErrInvalidTransition is returned for an edge outside the state machine
	// or for fields that would break a lifecycle invariant.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrSnoozeLimitExceeded is returned when snooze_count has reached
	// max_snooze_count.
	ErrSnoozeLimitExceeded = errors.New("snooze limit exceeded")

	// ErrInvalid is returned for malformed input.
	ErrInvalid = errors.New("invalid notification")
)

// ConflictError reports a lost compare-and-transition race. The caller
// must re-read the notification and retry its intent.
type ConflictError struct {
	ID       string
	Expected Status
	Actual   Status
	Reason   string
}

func (e *ConflictError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("notification %s: %s", e.ID, e.Reason)
	}
	return fmt.Sprintf("notification %s: expected status %s, found %s", e.ID, e.Expected, e.Actual)
}

// IsConflict reports whether err is or wraps a *ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
