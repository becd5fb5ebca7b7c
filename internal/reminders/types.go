// Package reminders turns recurring reminder definitions into pending
// notifications, once per recurrence period.
package reminders

import (
	"errors"
	"fmt"
	"time"

	"github.com/ziadkadry99/lifeos-notify/internal/notifications"
	"github.com/ziadkadry99/lifeos-notify/internal/preferences"
)

var (
	ErrNotFound = errors.New("reminder definition not found")
	ErrInvalid  = errors.New("invalid reminder definition")
)

// Pattern is the recurrence of a definition.
type Pattern string

const (
	PatternDaily   Pattern = "daily"
	PatternWeekly  Pattern = "weekly"
	PatternMonthly Pattern = "monthly"
	PatternCron    Pattern = "cron"
)

// Definition is a recurring reminder template owned by a domain caller.
type Definition struct {
	ID              string                  `json:"id"`
	UserID          string                  `json:"user_id"`
	Title           string                  `json:"title"`
	Body            string                  `json:"body"`
	Category        string                  `json:"category"`
	Data            map[string]any          `json:"data,omitempty"`
	Pattern         Pattern                 `json:"repeat_pattern"`
	TimeOfDay       string                  `json:"time_of_day,omitempty"`
	Cron            string                  `json:"cron,omitempty"`
	DaysOfWeek      []time.Weekday          `json:"days_of_week,omitempty"`
	DayOfMonth      int                     `json:"day_of_month,omitempty"`
	Timezone        string                  `json:"timezone"`
	DeliveryMethods []notifications.Channel `json:"delivery_methods"`
	Priority        notifications.Priority  `json:"priority"`
	MaxSnoozeCount  int                     `json:"max_snooze_count"`
	ReferenceType   string                  `json:"reference_type,omitempty"`
	ReferenceID     string                  `json:"reference_id,omitempty"`
	IsEnabled       bool                    `json:"is_enabled"`
	CreatedAt       time.Time               `json:"created_at"`
	UpdatedAt       time.Time               `json:"updated_at"`
}

// Location returns the definition's time zone, UTC when unset.
func (d Definition) Location() *time.Location {
	if d.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(d.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate checks the definition's recurrence and delivery fields.
func (d Definition) Validate() error {
	if d.UserID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalid)
	}
	if d.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalid)
	}

	switch d.Pattern {
	case PatternDaily, PatternWeekly, PatternMonthly:
		if _, err := preferences.ParseClock(d.TimeOfDay); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	case PatternCron:
		if _, err := cronParser.Parse(d.Cron); err != nil {
			return fmt.Errorf("%w: cron %q: %v", ErrInvalid, d.Cron, err)
		}
	default:
		return fmt.Errorf("%w: unknown repeat_pattern %q", ErrInvalid, d.Pattern)
	}

	for _, wd := range d.DaysOfWeek {
		if wd < time.Sunday || wd > time.Saturday {
			return fmt.Errorf("%w: day of week %d out of range", ErrInvalid, wd)
		}
	}
	if d.Pattern == PatternMonthly && (d.DayOfMonth < 1 || d.DayOfMonth > 31) {
		return fmt.Errorf("%w: day_of_month must be 1-31", ErrInvalid)
	}
	if d.Timezone != "" {
		if _, err := time.LoadLocation(d.Timezone); err != nil {
			return fmt.Errorf("%w: unknown timezone %q", ErrInvalid, d.Timezone)
		}
	}

	if len(d.DeliveryMethods) == 0 {
		return fmt.Errorf("%w: at least one delivery method is required", ErrInvalid)
	}
	for _, c := range d.DeliveryMethods {
		if !notifications.ValidChannel(c) {
			return fmt.Errorf("%w: unknown delivery method %q", ErrInvalid, c)
		}
	}
	if d.Priority != "" && !notifications.ValidPriority(d.Priority) {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalid, d.Priority)
	}
	if d.MaxSnoozeCount < 0 {
		return fmt.Errorf("%w: max_snooze_count must be non-negative", ErrInvalid)
	}
	return nil
}

// repeatPattern is the pattern recorded on materialized notifications.
func (d Definition) repeatPattern() notifications.RepeatPattern {
	if d.Pattern == PatternCron {
		return notifications.RepeatPattern(d.Cron)
	}
	return notifications.RepeatPattern(d.Pattern)
}
