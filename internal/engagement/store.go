package engagement

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ziadkadry99/lifeos-notify/internal/db"
)

// Store persists engagement events.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Record inserts an interaction. If in.ID is empty a UUID is generated and
// a zero OccurredAt is set to now.
func (s *Store) Record(ctx context.Context, in Interaction) (*Interaction, error) {
	if !in.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalid, in.Kind)
	}
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	if in.OccurredAt.IsZero() {
		in.OccurredAt = time.Now().UTC()
	}

	meta, err := json.Marshal(in.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshalling metadata: %w", err)
	}
	if in.Metadata == nil {
		meta = []byte("{}")
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM notifications WHERE id = ?", in.NotificationID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrNotFound, in.NotificationID)
		}
		if err != nil {
			return fmt.Errorf("checking notification: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO engagement_events (id, notification_id, kind, occurred_at, metadata)
			VALUES (?, ?, ?, ?, ?)`,
			in.ID, in.NotificationID, string(in.Kind), db.FormatTime(in.OccurredAt), string(meta))
		if err != nil {
			return fmt.Errorf("inserting interaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &in, nil
}

// List returns interactions matching the filter, oldest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]Interaction, error) {
	var (
		clauses []string
		args    []any
	)

	if filter.NotificationID != "" {
		clauses = append(clauses, "notification_id = ?")
		args = append(args, filter.NotificationID)
	}
	if filter.Kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if !filter.Since.IsZero() {
		clauses = append(clauses, "occurred_at >= ?")
		args = append(args, db.FormatTime(filter.Since))
	}
	if !filter.Until.IsZero() {
		clauses = append(clauses, "occurred_at <= ?")
		args = append(args, db.FormatTime(filter.Until))
	}

	query := "SELECT id, notification_id, kind, occurred_at, metadata FROM engagement_events"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY occurred_at, id"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying interactions: %w", err)
	}
	defer rows.Close()

	var result []Interaction
	for rows.Next() {
		var (
			in             Interaction
			kind, ts, meta string
		)
		if err := rows.Scan(&in.ID, &in.NotificationID, &kind, &ts, &meta); err != nil {
			return nil, fmt.Errorf("scanning interaction: %w", err)
		}
		in.Kind = Kind(kind)
		in.OccurredAt = db.ParseTime(ts)
		if err := json.Unmarshal([]byte(meta), &in.Metadata); err != nil || len(in.Metadata) == 0 {
			in.Metadata = nil
		}
		result = append(result, in)
	}
	return result, rows.Err()
}

// Counts returns the number of interactions per kind for a notification.
func (s *Store) Counts(ctx context.Context, notificationID string) (map[Kind]int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT kind, COUNT(*) FROM engagement_events WHERE notification_id = ? GROUP BY kind",
		notificationID)
	if err != nil {
		return nil, fmt.Errorf("counting interactions: %w", err)
	}
	defer rows.Close()

	counts := make(map[Kind]int)
	for rows.Next() {
		var (
			kind string
			n    int
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scanning interaction count: %w", err)
		}
		counts[Kind(kind)] = n
	}
	return counts, rows.Err()
}

// DeleteBefore removes interactions older than before and returns how
// many were deleted.
func (s *Store) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM engagement_events WHERE occurred_at < ?", db.FormatTime(before))
	if err != nil {
		return 0, fmt.Errorf("deleting old interactions: %w", err)
	}
	return res.RowsAffected()
}
