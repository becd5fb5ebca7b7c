package notifications

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ziadkadry99/lifeos-notify/internal/db"
)

// Outcome is the result recorded for one delivery attempt.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeTransient   Outcome = "transient_failure"
	OutcomePermanent   Outcome = "permanent_failure"
	OutcomeRateLimited Outcome = "rate_limited"
)

// Attempt is one recorded try to deliver a notification via one channel.
type Attempt struct {
	ID             string    `json:"id"`
	NotificationID string    `json:"notification_id"`
	Attempt        int       `json:"attempt"`
	Channel        Channel   `json:"channel"`
	AttemptedAt    time.Time `json:"attempted_at"`
	Outcome        Outcome   `json:"outcome"`
	Detail         string    `json:"detail,omitempty"`
}

// AttemptFilter controls which attempts are returned by ListAttempts.
type AttemptFilter struct {
	NotificationID string
	Channel        Channel
	Outcome        Outcome
	Since          time.Time
	Until          time.Time
	Limit          int
	Offset         int
}

// AppendAttempts adds attempts to a notification's log. The log is
// append-only and its timestamps never go backwards: an attempt stamped
// earlier than the latest recorded one is moved up to it.
func (s *Store) AppendAttempts(ctx context.Context, notificationID string, attempts []Attempt) error {
	if len(attempts) == 0 {
		return nil
	}

	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var last sql.NullString
		if err := tx.QueryRowContext(ctx,
			"SELECT MAX(attempted_at) FROM delivery_attempts WHERE notification_id = ?",
			notificationID).Scan(&last); err != nil {
			return fmt.Errorf("reading last attempt: %w", err)
		}
		floor := time.Time{}
		if last.Valid {
			floor = db.ParseTime(last.String)
		}

		for i := range attempts {
			a := &attempts[i]
			if a.ID == "" {
				a.ID = uuid.New().String()
			}
			a.NotificationID = notificationID
			if a.AttemptedAt.Before(floor) {
				a.AttemptedAt = floor
			}
			floor = a.AttemptedAt

			_, err := tx.ExecContext(ctx, `
				INSERT INTO delivery_attempts (id, notification_id, attempt, channel, attempted_at, outcome, detail)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				a.ID, notificationID, a.Attempt, string(a.Channel),
				db.FormatTime(a.AttemptedAt), string(a.Outcome), a.Detail,
			)
			if err != nil {
				return fmt.Errorf("inserting delivery attempt: %w", err)
			}
		}
		return nil
	})
}

// ListAttempts returns attempts matching the filter in the order they
// were recorded.
func (s *Store) ListAttempts(ctx context.Context, filter AttemptFilter) ([]Attempt, error) {
	var (
		clauses []string
		args    []any
	)

	if filter.NotificationID != "" {
		clauses = append(clauses, "notification_id = ?")
		args = append(args, filter.NotificationID)
	}
	if filter.Channel != "" {
		clauses = append(clauses, "channel = ?")
		args = append(args, string(filter.Channel))
	}
	if filter.Outcome != "" {
		clauses = append(clauses, "outcome = ?")
		args = append(args, string(filter.Outcome))
	}
	if !filter.Since.IsZero() {
		clauses = append(clauses, "attempted_at >= ?")
		args = append(args, db.FormatTime(filter.Since))
	}
	if !filter.Until.IsZero() {
		clauses = append(clauses, "attempted_at <= ?")
		args = append(args, db.FormatTime(filter.Until))
	}

	query := "SELECT id, notification_id, attempt, channel, attempted_at, outcome, detail FROM delivery_attempts"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY seq"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying delivery attempts: %w", err)
	}
	defer rows.Close()

	var result []Attempt
	for rows.Next() {
		var (
			a                    Attempt
			channel, outcome, ts string
		)
		if err := rows.Scan(&a.ID, &a.NotificationID, &a.Attempt, &channel, &ts, &outcome, &a.Detail); err != nil {
			return nil, fmt.Errorf("scanning delivery attempt: %w", err)
		}
		a.Channel = Channel(channel)
		a.Outcome = Outcome(outcome)
		a.AttemptedAt = db.ParseTime(ts)
		result = append(result, a)
	}
	return result, rows.Err()
}
