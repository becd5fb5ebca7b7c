// Package quiethours decides whether delivery is currently suppressed for
// a user and when it next becomes allowed.
package quiethours

import (
	"time"

	"github.com/ziadkadry99/lifeos-notify/internal/notifications"
	"github.com/ziadkadry99/lifeos-notify/internal/preferences"
)

// IsSuppressed reports whether a notification of the given priority must
// not be delivered at now. Urgent notifications are never suppressed.
func IsSuppressed(now time.Time, pref preferences.Preference, priority notifications.Priority) bool {
	if priority == notifications.PriorityUrgent {
		return false
	}
	local := now.In(pref.Location())
	return weekendBlocked(local, pref) || inQuietWindow(local, pref)
}

// NextAllowed returns the first instant at or after now at which a
// non-urgent notification may be delivered.
func NextAllowed(now time.Time, pref preferences.Preference) time.Time {
	t := now.In(pref.Location())

	// Each step moves past one weekend or one window; a handful of steps
	// covers any combination of the two.
	for i := 0; i < 8; i++ {
		switch {
		case weekendBlocked(t, pref):
			t = nextMonday(t)
		case inQuietWindow(t, pref):
			t = windowEnd(t, pref)
		default:
			return t
		}
	}
	return t
}

func weekendBlocked(local time.Time, pref preferences.Preference) bool {
	if pref.WeekendNotifications {
		return false
	}
	wd := local.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func inQuietWindow(local time.Time, pref preferences.Preference) bool {
	start, end, ok := window(pref)
	if !ok {
		return false
	}
	minute := local.Hour()*60 + local.Minute()
	if start < end {
		return minute >= start && minute < end
	}
	// Wraps midnight.
	return minute >= start || minute < end
}

// window returns the quiet-hours bounds in minutes after midnight.
// An equal start and end is an empty window.
func window(pref preferences.Preference) (start, end int, ok bool) {
	if !pref.QuietHours.Enabled {
		return 0, 0, false
	}
	start, err := preferences.ParseClock(pref.QuietHours.Start)
	if err != nil {
		return 0, 0, false
	}
	end, err = preferences.ParseClock(pref.QuietHours.End)
	if err != nil {
		return 0, 0, false
	}
	if start == end {
		return 0, 0, false
	}
	return start, end, true
}

// windowEnd returns the next occurrence of the window's end after local.
func windowEnd(local time.Time, pref preferences.Preference) time.Time {
	_, end, _ := window(pref)
	y, m, d := local.Date()
	candidate := time.Date(y, m, d, end/60, end%60, 0, 0, local.Location())
	if !candidate.After(local) {
		candidate = time.Date(y, m, d+1, end/60, end%60, 0, 0, local.Location())
	}
	return candidate
}

func nextMonday(local time.Time) time.Time {
	days := (8 - int(local.Weekday())) % 7
	if days == 0 {
		days = 7
	}
	y, m, d := local.Date()
	return time.Date(y, m, d+days, 0, 0, 0, 0, local.Location())
}
