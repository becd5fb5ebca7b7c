package preferences

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ziadkadry99/lifeos-notify/internal/db"
)

// Store persists per-user notification preferences.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Get returns the user's preference, or Default when none is stored.
func (s *Store) Get(ctx context.Context, userID string) (Preference, error) {
	var (
		p                                Preference
		push, email, sms, quiet, weekend int
		categories, updatedAt            string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, timezone, push_enabled, email_enabled, sms_enabled, category_enabled,
			quiet_hours_enabled, quiet_hours_start, quiet_hours_end, weekend_notifications,
			email, phone, updated_at
		FROM notification_preferences WHERE user_id = ?`, userID).Scan(
		&p.UserID, &p.Timezone, &push, &email, &sms, &categories,
		&quiet, &p.QuietHours.Start, &p.QuietHours.End, &weekend,
		&p.Email, &p.Phone, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Default(userID), nil
	}
	if err != nil {
		return Preference{}, fmt.Errorf("querying preference: %w", err)
	}

	p.PushEnabled = push != 0
	p.EmailEnabled = email != 0
	p.SMSEnabled = sms != 0
	p.QuietHours.Enabled = quiet != 0
	p.WeekendNotifications = weekend != 0
	p.UpdatedAt = db.ParseTime(updatedAt)
	if err := json.Unmarshal([]byte(categories), &p.CategoryEnabled); err != nil {
		p.CategoryEnabled = nil
	}
	return p, nil
}

// Put validates and upserts a preference.
func (s *Store) Put(ctx context.Context, p Preference) (Preference, error) {
	if err := p.Validate(); err != nil {
		return Preference{}, err
	}
	if p.Timezone == "" {
		p.Timezone = "UTC"
	}
	categories, err := json.Marshal(p.CategoryEnabled)
	if err != nil {
		return Preference{}, fmt.Errorf("marshalling categories: %w", err)
	}
	if p.CategoryEnabled == nil {
		categories = []byte("{}")
	}
	p.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notification_preferences (user_id, timezone, push_enabled, email_enabled,
			sms_enabled, category_enabled, quiet_hours_enabled, quiet_hours_start, quiet_hours_end,
			weekend_notifications, email, phone, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			timezone = excluded.timezone,
			push_enabled = excluded.push_enabled,
			email_enabled = excluded.email_enabled,
			sms_enabled = excluded.sms_enabled,
			category_enabled = excluded.category_enabled,
			quiet_hours_enabled = excluded.quiet_hours_enabled,
			quiet_hours_start = excluded.quiet_hours_start,
			quiet_hours_end = excluded.quiet_hours_end,
			weekend_notifications = excluded.weekend_notifications,
			email = excluded.email,
			phone = excluded.phone,
			updated_at = excluded.updated_at`,
		p.UserID, p.Timezone, boolInt(p.PushEnabled), boolInt(p.EmailEnabled),
		boolInt(p.SMSEnabled), string(categories), boolInt(p.QuietHours.Enabled),
		p.QuietHours.Start, p.QuietHours.End, boolInt(p.WeekendNotifications),
		p.Email, p.Phone, db.FormatTime(p.UpdatedAt),
	)
	if err != nil {
		return Preference{}, fmt.Errorf("upserting preference: %w", err)
	}
	return p, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
