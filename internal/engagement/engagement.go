// Package engagement records how users interacted with delivered
// notifications.
package engagement

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the notification does not exist.
	ErrNotFound = errors.New("notification not found")

	// ErrInvalid is returned for an unknown interaction kind.
	ErrInvalid = errors.New("invalid interaction")
)

// Kind is what the user did with a notification.
type Kind string

const (
	KindView    Kind = "view"
	KindClick   Kind = "click"
	KindDismiss Kind = "dismiss"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindView, KindClick, KindDismiss:
		return true
	}
	return false
}

// Interaction is one recorded engagement event.
type Interaction struct {
	ID             string         `json:"id"`
	NotificationID string         `json:"notification_id"`
	Kind           Kind           `json:"kind"`
	OccurredAt     time.Time      `json:"occurred_at"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Filter controls which interactions List returns.
type Filter struct {
	NotificationID string
	Kind           Kind
	Since          time.Time
	Until          time.Time
	Limit          int
	Offset         int
}
