// Package events fans notification lifecycle changes out to live
// listeners: websocket clients and Redis subscribers.
package events

import (
	"context"
	"errors"
	"time"
)

// Type names a lifecycle change.
type Type string

const (
	Created     Type = "notification.created"
	Sent        Type = "notification.sent"
	Failed      Type = "notification.failed"
	Retrying    Type = "notification.retrying"
	Rescheduled Type = "notification.rescheduled"
	Snoozed     Type = "notification.snoozed"
	Cancelled   Type = "notification.cancelled"
	Generated   Type = "reminder.generated"
)

// Event is one lifecycle change.
type Event struct {
	Type           Type      `json:"type"`
	NotificationID string    `json:"notification_id"`
	UserID         string    `json:"user_id"`
	Status         string    `json:"status,omitempty"`
	Detail         string    `json:"detail,omitempty"`
	At             time.Time `json:"at"`
}

// Publisher delivers events. Publishing is best-effort: callers log
// errors and carry on.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
