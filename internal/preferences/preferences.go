package preferences

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/ziadkadry99/lifeos-notify/internal/notifications"
)

// ErrInvalid is returned for a preference that fails validation.
var ErrInvalid = errors.New("invalid preference")

// QuietHours is a local-time window during which non-urgent delivery is
// deferred. Start after End means the window wraps midnight.
type QuietHours struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start"` // HH:MM
	End     string `json:"end"`   // HH:MM
}

// Preference holds one user's delivery settings.
type Preference struct {
	UserID               string          `json:"user_id"`
	Timezone             string          `json:"timezone"`
	PushEnabled          bool            `json:"push_enabled"`
	EmailEnabled         bool            `json:"email_enabled"`
	SMSEnabled           bool            `json:"sms_enabled"`
	CategoryEnabled      map[string]bool `json:"category_enabled,omitempty"`
	QuietHours           QuietHours      `json:"quiet_hours"`
	WeekendNotifications bool            `json:"weekend_notifications"`
	Email                string          `json:"email,omitempty"`
	Phone                string          `json:"phone,omitempty"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// Default returns the preference used for a user who never saved one:
// every channel and category enabled, no quiet hours, weekends allowed.
func Default(userID string) Preference {
	return Preference{
		UserID:               userID,
		Timezone:             "UTC",
		PushEnabled:          true,
		EmailEnabled:         true,
		SMSEnabled:           true,
		WeekendNotifications: true,
	}
}

var methodFlags = map[notifications.Channel]func(Preference) bool{
	notifications.ChannelPush:  func(p Preference) bool { return p.PushEnabled },
	notifications.ChannelEmail: func(p Preference) bool { return p.EmailEnabled },
	notifications.ChannelSMS:   func(p Preference) bool { return p.SMSEnabled },
}

// MethodEnabled reports whether the user accepts delivery on c. Channels
// without a stored flag are disabled.
func (p Preference) MethodEnabled(c notifications.Channel) bool {
	flag, ok := methodFlags[c]
	return ok && flag(p)
}

// CategoryAllowed reports whether notifications of category are enabled.
// Categories without an explicit entry are allowed.
func (p Preference) CategoryAllowed(category string) bool {
	if category == "" {
		return true
	}
	enabled, ok := p.CategoryEnabled[category]
	return !ok || enabled
}

// Location returns the user's time zone, falling back to UTC.
func (p Preference) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate checks time zone and quiet-hours values.
func (p Preference) Validate() error {
	if p.UserID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalid)
	}
	if p.Timezone != "" {
		if _, err := time.LoadLocation(p.Timezone); err != nil {
			return fmt.Errorf("%w: unknown timezone %q", ErrInvalid, p.Timezone)
		}
	}
	if p.QuietHours.Enabled {
		if _, err := ParseClock(p.QuietHours.Start); err != nil {
			return fmt.Errorf("%w: quiet_hours.start: %v", ErrInvalid, err)
		}
		if _, err := ParseClock(p.QuietHours.End); err != nil {
			return fmt.Errorf("%w: quiet_hours.end: %v", ErrInvalid, err)
		}
	}
	return nil
}

// ParseClock parses HH:MM into minutes after midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q, want HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}
