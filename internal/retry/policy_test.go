package retry

import (
	"testing"
	"time"

	"github.com/ziadkadry99/lifeos-notify/internal/delivery"
	"github.com/ziadkadry99/lifeos-notify/internal/notifications"
)

func TestFirstTransientRetries(t *testing.T) {
	p := New(DefaultConfig())

	a := p.NextAction(0, delivery.Transient, notifications.PriorityNormal)
	if a.GiveUp {
		t.Fatal("expected retry on first transient failure")
	}
	if a.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want positive", a.RetryAfter)
	}
}

func TestPermanentGivesUpImmediately(t *testing.T) {
	p := New(DefaultConfig())

	for _, count := range []int{0, 1, 3} {
		for _, prio := range []notifications.Priority{notifications.PriorityLow, notifications.PriorityUrgent} {
			if a := p.NextAction(count, delivery.Permanent, prio); !a.GiveUp {
				t.Errorf("NextAction(%d, permanent, %s) = %+v, want give up", count, prio, a)
			}
		}
	}
}

func TestCeiling(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxAttempts = 3
	p := New(cfg)

	tests := []struct {
		count  int
		giveUp bool
	}{
		{0, false},
		{1, false},
		{2, true},
		{3, true},
		{10, true},
	}
	for _, tt := range tests {
		a := p.NextAction(tt.count, delivery.Transient, notifications.PriorityNormal)
		if a.GiveUp != tt.giveUp {
			t.Errorf("NextAction(%d) GiveUp = %v, want %v", tt.count, a.GiveUp, tt.giveUp)
		}
	}
}

func TestExponentialCapped(t *testing.T) {
	p := New(Config{BaseDelay: time.Second, MaxDelay: 10 * time.Second, MaxAttempts: 100})

	want := []time.Duration{1, 2, 4, 8, 10, 10, 10}
	for i, w := range want {
		a := p.NextAction(i, delivery.Transient, notifications.PriorityNormal)
		if a.RetryAfter != w*time.Second {
			t.Errorf("attempt %d: RetryAfter = %v, want %v", i, a.RetryAfter, w*time.Second)
		}
	}

	// Very large counts must not overflow.
	if a := p.NextAction(90, delivery.Transient, notifications.PriorityNormal); a.RetryAfter != 10*time.Second {
		t.Errorf("attempt 90: RetryAfter = %v, want cap", a.RetryAfter)
	}
}

func TestUrgentIsMoreAggressive(t *testing.T) {
	p := New(DefaultConfig())

	normal := p.NextAction(0, delivery.Transient, notifications.PriorityNormal)
	urgent := p.NextAction(0, delivery.Transient, notifications.PriorityUrgent)
	if urgent.RetryAfter >= normal.RetryAfter {
		t.Errorf("urgent delay %v not shorter than normal %v", urgent.RetryAfter, normal.RetryAfter)
	}

	last := DefaultConfig().MaxAttempts - 1
	if a := p.NextAction(last, delivery.Transient, notifications.PriorityNormal); !a.GiveUp {
		t.Error("normal should give up at its ceiling")
	}
	if a := p.NextAction(last, delivery.Transient, notifications.PriorityUrgent); a.GiveUp {
		t.Error("urgent should still retry at the normal ceiling")
	}
}

func TestRateLimitedBacksOffHarder(t *testing.T) {
	p := New(DefaultConfig())

	transient := p.NextAction(1, delivery.Transient, notifications.PriorityNormal)
	limited := p.NextAction(1, delivery.RateLimited, notifications.PriorityNormal)
	if limited.RetryAfter <= transient.RetryAfter {
		t.Errorf("rate-limited delay %v not larger than transient %v", limited.RetryAfter, transient.RetryAfter)
	}
}

func TestWithHint(t *testing.T) {
	p := New(DefaultConfig())
	a := Action{RetryAfter: time.Minute}

	if got := p.WithHint(a, 10*time.Second); got.RetryAfter != time.Minute {
		t.Errorf("smaller hint changed delay to %v", got.RetryAfter)
	}
	if got := p.WithHint(a, 5*time.Minute); got.RetryAfter != 5*time.Minute {
		t.Errorf("larger hint: RetryAfter = %v, want 5m", got.RetryAfter)
	}
	if got := p.WithHint(a, 100*time.Hour); got.RetryAfter != 2*time.Hour {
		t.Errorf("huge hint: RetryAfter = %v, want 2h cap", got.RetryAfter)
	}
	if got := p.WithHint(Action{GiveUp: true}, time.Hour); !got.GiveUp {
		t.Error("hint must not revive a give-up")
	}
}

func TestZeroConfigUsesDefaults(t *testing.T) {
	if got := New(Config{}).Config(); got != DefaultConfig() {
		t.Errorf("Config() = %+v, want defaults", got)
	}
}
