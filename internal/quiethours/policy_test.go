package quiethours

import (
	"testing"
	"time"

	"github.com/ziadkadry99/lifeos-notify/internal/notifications"
	"github.com/ziadkadry99/lifeos-notify/internal/preferences"
)

func nightWindow() preferences.Preference {
	p := preferences.Default("u-1")
	p.QuietHours = preferences.QuietHours{Enabled: true, Start: "22:00", End: "06:00"}
	return p
}

// 2026-03-04 is a Wednesday.
func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 4, hour, minute, 0, 0, time.UTC)
}

func TestIsSuppressedWrappingWindow(t *testing.T) {
	pref := nightWindow()

	tests := []struct {
		name     string
		now      time.Time
		priority notifications.Priority
		want     bool
	}{
		{"late evening", at(23, 30), notifications.PriorityNormal, true},
		{"early morning", at(5, 0), notifications.PriorityNormal, true},
		{"window start inclusive", at(22, 0), notifications.PriorityLow, true},
		{"window end exclusive", at(6, 0), notifications.PriorityNormal, false},
		{"noon", at(12, 0), notifications.PriorityNormal, false},
		{"high still suppressed", at(23, 30), notifications.PriorityHigh, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSuppressed(tt.now, pref, tt.priority); got != tt.want {
				t.Errorf("IsSuppressed(%s) = %v, want %v", tt.now.Format("15:04"), got, tt.want)
			}
		})
	}
}

func TestUrgentNeverSuppressed(t *testing.T) {
	pref := nightWindow()
	pref.WeekendNotifications = false

	saturday := time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)
	for h := 0; h < 24; h++ {
		for _, day := range []time.Time{at(0, 0), saturday} {
			now := day.Add(time.Duration(h) * time.Hour)
			if IsSuppressed(now, pref, notifications.PriorityUrgent) {
				t.Errorf("urgent suppressed at %s", now)
			}
		}
	}
}

func TestNonWrappingWindow(t *testing.T) {
	pref := preferences.Default("u-1")
	pref.QuietHours = preferences.QuietHours{Enabled: true, Start: "13:00", End: "14:30"}

	if !IsSuppressed(at(13, 45), pref, notifications.PriorityNormal) {
		t.Error("expected suppression inside afternoon window")
	}
	if IsSuppressed(at(14, 30), pref, notifications.PriorityNormal) {
		t.Error("expected no suppression at window end")
	}
	if IsSuppressed(at(23, 0), pref, notifications.PriorityNormal) {
		t.Error("expected no suppression at night")
	}
}

func TestDisabledAndEmptyWindow(t *testing.T) {
	pref := nightWindow()
	pref.QuietHours.Enabled = false
	if IsSuppressed(at(23, 30), pref, notifications.PriorityNormal) {
		t.Error("disabled window must not suppress")
	}

	pref = preferences.Default("u-1")
	pref.QuietHours = preferences.QuietHours{Enabled: true, Start: "08:00", End: "08:00"}
	if IsSuppressed(at(8, 0), pref, notifications.PriorityNormal) {
		t.Error("empty window must not suppress")
	}
}

func TestWeekendSuppression(t *testing.T) {
	pref := preferences.Default("u-1")
	pref.WeekendNotifications = false

	saturdayNoon := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)
	if !IsSuppressed(saturdayNoon, pref, notifications.PriorityNormal) {
		t.Error("expected weekend suppression")
	}
	if IsSuppressed(at(12, 0), pref, notifications.PriorityNormal) {
		t.Error("weekday must not be suppressed")
	}

	pref.WeekendNotifications = true
	if IsSuppressed(saturdayNoon, pref, notifications.PriorityNormal) {
		t.Error("weekend allowed must not suppress")
	}
}

func TestWeekendUsesLocalCalendar(t *testing.T) {
	pref := preferences.Default("u-1")
	pref.WeekendNotifications = false
	pref.Timezone = "Asia/Tokyo"

	// Friday 20:00 UTC is Saturday 05:00 in Tokyo.
	fridayUTC := time.Date(2026, 3, 6, 20, 0, 0, 0, time.UTC)
	if !IsSuppressed(fridayUTC, pref, notifications.PriorityNormal) {
		t.Error("expected suppression on the user's local Saturday")
	}
}

func TestNextAllowed(t *testing.T) {
	tests := []struct {
		name string
		pref func() preferences.Preference
		now  time.Time
		want time.Time
	}{
		{
			name: "before midnight jumps to next morning",
			pref: nightWindow,
			now:  at(23, 30),
			want: time.Date(2026, 3, 5, 6, 0, 0, 0, time.UTC),
		},
		{
			name: "after midnight jumps to same morning",
			pref: nightWindow,
			now:  at(5, 0),
			want: at(6, 0),
		},
		{
			name: "not suppressed is unchanged",
			pref: nightWindow,
			now:  at(12, 0),
			want: at(12, 0),
		},
		{
			name: "weekend jumps to monday",
			pref: func() preferences.Preference {
				p := preferences.Default("u-1")
				p.WeekendNotifications = false
				return p
			},
			now:  time.Date(2026, 3, 7, 15, 0, 0, 0, time.UTC),
			want: time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "weekend then quiet window",
			pref: func() preferences.Preference {
				p := nightWindow()
				p.WeekendNotifications = false
				return p
			},
			now:  time.Date(2026, 3, 8, 10, 0, 0, 0, time.UTC),
			want: time.Date(2026, 3, 9, 6, 0, 0, 0, time.UTC),
		},
		{
			name: "friday night window runs into weekend",
			pref: func() preferences.Preference {
				p := nightWindow()
				p.WeekendNotifications = false
				return p
			},
			now:  time.Date(2026, 3, 6, 23, 0, 0, 0, time.UTC),
			want: time.Date(2026, 3, 9, 6, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pref := tt.pref()
			got := NextAllowed(tt.now, pref)
			if !got.Equal(tt.want) {
				t.Errorf("NextAllowed(%s) = %s, want %s", tt.now, got, tt.want)
			}
			if IsSuppressed(got, pref, notifications.PriorityNormal) {
				t.Errorf("NextAllowed returned a suppressed instant %s", got)
			}
		})
	}
}
