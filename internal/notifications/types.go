package notifications

import "time"

// Status is the lifecycle state of a notification.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusSnoozed   Status = "snoozed"
)

// Priority affects quiet-hours override and retry aggressiveness.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Channel is a delivery transport.
type Channel string

const (
	ChannelPush  Channel = "push"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// RepeatPattern describes how a notification recurs. Any value other than
// the named patterns is a cron expression.
type RepeatPattern string

const (
	RepeatNone    RepeatPattern = "none"
	RepeatDaily   RepeatPattern = "daily"
	RepeatWeekly  RepeatPattern = "weekly"
	RepeatMonthly RepeatPattern = "monthly"
)

// IsCron reports whether the pattern holds a cron expression.
func (p RepeatPattern) IsCron() bool {
	switch p {
	case RepeatNone, RepeatDaily, RepeatWeekly, RepeatMonthly, "":
		return false
	}
	return true
}

var validPriorities = map[Priority]bool{
	PriorityLow:    true,
	PriorityNormal: true,
	PriorityHigh:   true,
	PriorityUrgent: true,
}

var validChannels = map[Channel]bool{
	ChannelPush:  true,
	ChannelEmail: true,
	ChannelSMS:   true,
}

// ValidPriority reports whether p is a known priority.
func ValidPriority(p Priority) bool { return validPriorities[p] }

// ValidChannel reports whether c is a known channel.
func ValidChannel(c Channel) bool { return validChannels[c] }

// Notification is a scheduled unit of user-facing communication.
type Notification struct {
	ID                string         `json:"id"`
	UserID            string         `json:"user_id"`
	Title             string         `json:"title"`
	Body              string         `json:"body"`
	Data              map[string]any `json:"data,omitempty"`
	Category          string         `json:"category,omitempty"`
	ScheduledAt       time.Time      `json:"scheduled_at"`
	SentAt            *time.Time     `json:"sent_at,omitempty"`
	Status            Status         `json:"status"`
	IsReminder        bool           `json:"is_reminder"`
	ReminderID        string         `json:"reminder_id,omitempty"`
	ReferenceType     string         `json:"reference_type,omitempty"`
	ReferenceID       string         `json:"reference_id,omitempty"`
	RepeatPattern     RepeatPattern  `json:"repeat_pattern"`
	SnoozeUntil       *time.Time     `json:"snooze_until,omitempty"`
	SnoozeCount       int            `json:"snooze_count"`
	MaxSnoozeCount    int            `json:"max_snooze_count"`
	DeliveryMethods   []Channel      `json:"delivery_methods"`
	DeliveredChannels []Channel      `json:"delivered_channels,omitempty"`
	Priority          Priority       `json:"priority"`
	AttemptCount      int            `json:"attempt_count"`
	FailureReason     string         `json:"failure_reason,omitempty"`
	Version           int            `json:"version"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// DueAt returns the instant at which the notification becomes due.
func (n *Notification) DueAt() time.Time {
	if n.Status == StatusSnoozed && n.SnoozeUntil != nil {
		return *n.SnoozeUntil
	}
	return n.ScheduledAt
}

// PendingChannels returns the requested channels that have not yet
// been delivered.
func (n *Notification) PendingChannels() []Channel {
	done := make(map[Channel]bool, len(n.DeliveredChannels))
	for _, c := range n.DeliveredChannels {
		done[c] = true
	}
	var out []Channel
	for _, c := range n.DeliveryMethods {
		if !done[c] {
			out = append(out, c)
		}
	}
	return out
}

// Fields carries the column changes applied by Transition. Nil pointers
// leave the column untouched.
type Fields struct {
	ScheduledAt       *time.Time
	SentAt            *time.Time
	SnoozeUntil       *time.Time
	SnoozeCount       *int
	AttemptCount      *int
	DeliveredChannels *[]Channel
	FailureReason     *string

	// LeaseToken, when set, requires the row to still hold this lease.
	LeaseToken string
}

// ListFilter controls which notifications are returned by List.
type ListFilter struct {
	UserID     string
	Status     Status
	Category   string
	IsReminder *bool
	Limit      int
	Offset     int
}
