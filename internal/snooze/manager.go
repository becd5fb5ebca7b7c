// Package snooze defers notifications and cancels them, both through the
// store's compare-and-transition so that user actions race safely with
// an in-flight dispatch.
package snooze

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ziadkadry99/lifeos-notify/internal/notifications"
)

// Manager applies snooze and cancel requests.
type Manager struct {
	store *notifications.Store
	now   func() time.Time
}

// MaxMinutes is the longest single snooze, one year.
const MaxMinutes = 365 * 24 * 60

// NewManager creates a Manager. A nil now uses time.Now.
func NewManager(store *notifications.Store, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{store: store, now: now}
}

// Snooze defers a pending or sent notification by minutes. It fails with
// notifications.ErrSnoozeLimitExceeded, leaving the notification
// unchanged, once snooze_count has reached max_snooze_count.
//
// Snoozing a sent notification clears its delivery progress so that it is
// delivered again when the snooze ends.
func (m *Manager) Snooze(ctx context.Context, id string, minutes int) (*notifications.Notification, error) {
	if minutes <= 0 || minutes > MaxMinutes {
		return nil, fmt.Errorf("%w: snooze duration must be between 1 and %d minutes", notifications.ErrInvalid, MaxMinutes)
	}

	n, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.Status != notifications.StatusPending && n.Status != notifications.StatusSent {
		return nil, fmt.Errorf("%w: cannot snooze a %s notification", notifications.ErrInvalidTransition, n.Status)
	}
	if n.SnoozeCount >= n.MaxSnoozeCount {
		return nil, fmt.Errorf("%w: %d of %d snoozes used", notifications.ErrSnoozeLimitExceeded, n.SnoozeCount, n.MaxSnoozeCount)
	}

	until := m.now().Add(time.Duration(minutes) * time.Minute)
	count := n.SnoozeCount + 1
	fields := notifications.Fields{
		SnoozeUntil: &until,
		SnoozeCount: &count,
	}
	if n.Status == notifications.StatusSent {
		zero := 0
		none := []notifications.Channel{}
		cleared := ""
		fields.AttemptCount = &zero
		fields.DeliveredChannels = &none
		fields.FailureReason = &cleared
	}

	return m.store.Transition(ctx, id, n.Status, notifications.StatusSnoozed, fields)
}

// Cancel moves a pending or snoozed notification to cancelled. A
// notification that has already been delivered cannot be cancelled and
// yields a *notifications.ConflictError saying so.
func (m *Manager) Cancel(ctx context.Context, id string) (*notifications.Notification, error) {
	n, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch n.Status {
	case notifications.StatusPending, notifications.StatusSnoozed:
	case notifications.StatusSent:
		return nil, alreadyFired(n)
	default:
		return nil, fmt.Errorf("%w: notification is already %s", notifications.ErrInvalidTransition, n.Status)
	}

	reason := "cancelled by user"
	out, err := m.store.Transition(ctx, id, n.Status, notifications.StatusCancelled, notifications.Fields{
		FailureReason: &reason,
	})
	var ce *notifications.ConflictError
	if errors.As(err, &ce) && ce.Actual == notifications.StatusSent {
		return nil, alreadyFired(n)
	}
	return out, err
}

func alreadyFired(n *notifications.Notification) error {
	return &notifications.ConflictError{
		ID:       n.ID,
		Expected: n.Status,
		Actual:   notifications.StatusSent,
		Reason:   "cancellation failed: notification already fired",
	}
}
