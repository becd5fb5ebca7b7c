package snooze

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ziadkadry99/lifeos-notify/internal/db"
	"github.com/ziadkadry99/lifeos-notify/internal/notifications"
)

var fixedNow = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*notifications.Store, *Manager) {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	clock := func() time.Time { return fixedNow }
	store := notifications.NewStore(database, notifications.WithClock(clock))
	return store, NewManager(store, clock)
}

func create(t *testing.T, store *notifications.Store, maxSnooze int) *notifications.Notification {
	t.Helper()
	n, err := store.Create(context.Background(), notifications.Notification{
		UserID:          "u-1",
		Title:           "Drink water",
		ScheduledAt:     fixedNow.Add(time.Hour),
		DeliveryMethods: []notifications.Channel{notifications.ChannelPush},
		MaxSnoozeCount:  maxSnooze,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return n
}

func TestSnoozePending(t *testing.T) {
	store, m := setup(t)
	n := create(t, store, 3)

	got, err := m.Snooze(context.Background(), n.ID, 15)
	if err != nil {
		t.Fatalf("Snooze: %v", err)
	}
	if got.Status != notifications.StatusSnoozed {
		t.Errorf("Status = %q, want snoozed", got.Status)
	}
	if got.SnoozeCount != 1 {
		t.Errorf("SnoozeCount = %d, want 1", got.SnoozeCount)
	}
	want := fixedNow.Add(15 * time.Minute)
	if got.SnoozeUntil == nil || !got.SnoozeUntil.Equal(want) {
		t.Errorf("SnoozeUntil = %v, want %v", got.SnoozeUntil, want)
	}
}

func TestSnoozeLimit(t *testing.T) {
	store, m := setup(t)
	ctx := context.Background()
	n := create(t, store, 2)

	for i := 0; i < 2; i++ {
		if _, err := m.Snooze(ctx, n.ID, 5); err != nil {
			t.Fatalf("Snooze %d: %v", i+1, err)
		}
		// Re-admit: snoozed -> pending, as the scheduler does when the
		// snooze ends.
		cur, _ := store.Get(ctx, n.ID)
		if _, err := store.Transition(ctx, n.ID, notifications.StatusSnoozed, notifications.StatusPending, notifications.Fields{
			ScheduledAt: cur.SnoozeUntil,
		}); err != nil {
			t.Fatalf("re-admit %d: %v", i+1, err)
		}
	}

	before, _ := store.Get(ctx, n.ID)

	_, err := m.Snooze(ctx, n.ID, 5)
	if !errors.Is(err, notifications.ErrSnoozeLimitExceeded) {
		t.Fatalf("third Snooze error = %v, want ErrSnoozeLimitExceeded", err)
	}

	after, _ := store.Get(ctx, n.ID)
	if after.Status != before.Status || after.SnoozeCount != before.SnoozeCount || after.Version != before.Version {
		t.Errorf("state changed after rejected snooze: before %+v after %+v", before, after)
	}
	if after.SnoozeCount > after.MaxSnoozeCount {
		t.Errorf("SnoozeCount %d exceeds max %d", after.SnoozeCount, after.MaxSnoozeCount)
	}
}

func TestSnoozeZeroAllowed(t *testing.T) {
	store, m := setup(t)
	n := create(t, store, 0)

	if _, err := m.Snooze(context.Background(), n.ID, 5); !errors.Is(err, notifications.ErrSnoozeLimitExceeded) {
		t.Errorf("error = %v, want ErrSnoozeLimitExceeded", err)
	}
}

func TestSnoozeRejectsOutOfRangeDuration(t *testing.T) {
	store, m := setup(t)
	ctx := context.Background()
	n := create(t, store, 3)

	for _, minutes := range []int{0, -5, MaxMinutes + 1, 153722868} {
		if _, err := m.Snooze(ctx, n.ID, minutes); !errors.Is(err, notifications.ErrInvalid) {
			t.Errorf("Snooze(%d) error = %v, want ErrInvalid", minutes, err)
		}
	}
	got, _ := store.Get(ctx, n.ID)
	if got.Status != notifications.StatusPending || got.SnoozeCount != 0 || got.SnoozeUntil != nil {
		t.Errorf("state changed: %+v", got)
	}

	got, err := m.Snooze(ctx, n.ID, MaxMinutes)
	if err != nil {
		t.Fatalf("Snooze(MaxMinutes): %v", err)
	}
	if !got.SnoozeUntil.After(fixedNow) {
		t.Errorf("SnoozeUntil = %v, want after %v", got.SnoozeUntil, fixedNow)
	}
}

func TestSnoozeConcurrentNeverExceedsLimit(t *testing.T) {
	store, m := setup(t)
	ctx := context.Background()
	n := create(t, store, 1)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.Snooze(ctx, n.ID, 5)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		}
	}
	if ok != 1 {
		t.Errorf("%d snoozes succeeded, want exactly 1", ok)
	}
	got, _ := store.Get(ctx, n.ID)
	if got.SnoozeCount != 1 {
		t.Errorf("SnoozeCount = %d, want 1", got.SnoozeCount)
	}
}

func TestSnoozeSentResetsDelivery(t *testing.T) {
	store, m := setup(t)
	ctx := context.Background()
	n := create(t, store, 3)

	sentAt := fixedNow.Add(2 * time.Hour)
	delivered := []notifications.Channel{notifications.ChannelPush}
	if _, err := store.Transition(ctx, n.ID, notifications.StatusPending, notifications.StatusSent, notifications.Fields{
		SentAt:            &sentAt,
		DeliveredChannels: &delivered,
	}); err != nil {
		t.Fatalf("Transition to sent: %v", err)
	}

	got, err := m.Snooze(ctx, n.ID, 30)
	if err != nil {
		t.Fatalf("Snooze sent: %v", err)
	}
	if got.Status != notifications.StatusSnoozed {
		t.Errorf("Status = %q, want snoozed", got.Status)
	}
	if len(got.DeliveredChannels) != 0 {
		t.Errorf("DeliveredChannels = %v, want empty", got.DeliveredChannels)
	}
	if got.SentAt == nil {
		t.Error("expected SentAt to be kept as history")
	}
}

func TestSnoozeRejectsTerminal(t *testing.T) {
	store, m := setup(t)
	ctx := context.Background()
	n := create(t, store, 3)

	if _, err := m.Cancel(ctx, n.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := m.Snooze(ctx, n.ID, 5); !errors.Is(err, notifications.ErrInvalidTransition) {
		t.Errorf("Snooze cancelled error = %v, want ErrInvalidTransition", err)
	}
	if _, err := m.Snooze(ctx, n.ID, 0); !errors.Is(err, notifications.ErrInvalid) {
		t.Errorf("zero duration error = %v, want ErrInvalid", err)
	}
}

func TestCancel(t *testing.T) {
	store, m := setup(t)
	ctx := context.Background()

	pending := create(t, store, 3)
	got, err := m.Cancel(ctx, pending.ID)
	if err != nil {
		t.Fatalf("Cancel pending: %v", err)
	}
	if got.Status != notifications.StatusCancelled {
		t.Errorf("Status = %q, want cancelled", got.Status)
	}

	snoozed := create(t, store, 3)
	if _, err := m.Snooze(ctx, snoozed.ID, 10); err != nil {
		t.Fatalf("Snooze: %v", err)
	}
	got, err = m.Cancel(ctx, snoozed.ID)
	if err != nil {
		t.Fatalf("Cancel snoozed: %v", err)
	}
	if got.SnoozeUntil != nil {
		t.Error("expected snooze_until cleared on cancel")
	}

	// Cancelled is terminal.
	if _, err := m.Cancel(ctx, pending.ID); !errors.Is(err, notifications.ErrInvalidTransition) {
		t.Errorf("second Cancel error = %v, want ErrInvalidTransition", err)
	}

	if _, err := m.Cancel(ctx, "missing"); !errors.Is(err, notifications.ErrNotFound) {
		t.Errorf("Cancel missing error = %v, want ErrNotFound", err)
	}
}

func TestCancelAfterSentFails(t *testing.T) {
	store, m := setup(t)
	ctx := context.Background()
	n := create(t, store, 3)

	sentAt := fixedNow.Add(2 * time.Hour)
	if _, err := store.Transition(ctx, n.ID, notifications.StatusPending, notifications.StatusSent, notifications.Fields{SentAt: &sentAt}); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	_, err := m.Cancel(ctx, n.ID)
	var ce *notifications.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("Cancel error = %v, want ConflictError", err)
	}
	if ce.Actual != notifications.StatusSent {
		t.Errorf("Actual = %q, want sent", ce.Actual)
	}
}

func TestCancelRacesDispatch(t *testing.T) {
	store, m := setup(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		n := create(t, store, 3)
		sentAt := fixedNow.Add(2 * time.Hour)

		var wg sync.WaitGroup
		var cancelErr, sendErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, cancelErr = m.Cancel(ctx, n.ID)
		}()
		go func() {
			defer wg.Done()
			_, sendErr = store.Transition(ctx, n.ID, notifications.StatusPending, notifications.StatusSent, notifications.Fields{SentAt: &sentAt})
		}()
		wg.Wait()

		if (cancelErr == nil) == (sendErr == nil) {
			t.Fatalf("run %d: want exactly one winner, cancel=%v send=%v", i, cancelErr, sendErr)
		}
		got, _ := store.Get(ctx, n.ID)
		if cancelErr == nil && got.Status != notifications.StatusCancelled {
			t.Errorf("run %d: cancel won but status = %q", i, got.Status)
		}
		if sendErr == nil && got.Status != notifications.StatusSent {
			t.Errorf("run %d: send won but status = %q", i, got.Status)
		}
	}
}
