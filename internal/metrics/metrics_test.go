package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveSend(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveSend("push", "success", 0.01)
	m.ObserveSend("push", "success", 0.02)
	m.ObserveSend("email", "transient_failure", 0.5)

	if got := testutil.ToFloat64(m.DeliveryAttempts.WithLabelValues("push", "success")); got != 2 {
		t.Errorf("push success = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.DeliveryAttempts.WithLabelValues("email", "transient_failure")); got != 1 {
		t.Errorf("email transient = %v, want 1", got)
	}
}

func TestTickAndReminders(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveTick(0.2, 7)
	m.TickResult("sent", 3)
	m.TickResult("failed", 0)
	m.Conflict()
	m.Reminders(2, 1)

	if got := testutil.ToFloat64(m.DueNotifications); got != 7 {
		t.Errorf("due = %v, want 7", got)
	}
	if got := testutil.ToFloat64(m.TickOutcomes.WithLabelValues("sent")); got != 3 {
		t.Errorf("sent = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.TickConflicts); got != 1 {
		t.Errorf("conflicts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RemindersGenerated); got != 2 {
		t.Errorf("generated = %v, want 2", got)
	}
}

func TestNilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveSend("push", "success", 1)
	m.TokenDeactivated()
	m.ObserveTick(1, 1)
	m.TickResult("sent", 1)
	m.Conflict()
	m.Reminders(1, 1)
}

func TestSeparateRegistries(t *testing.T) {
	// Registering twice on distinct registries must not panic.
	New(prometheus.NewRegistry())
	New(prometheus.NewRegistry())
}
