package reminders

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ziadkadry99/lifeos-notify/internal/db"
	"github.com/ziadkadry99/lifeos-notify/internal/notifications"
)

const columns = `id, user_id, title, body, category, data, repeat_pattern, time_of_day, cron,
	days_of_week, day_of_month, timezone, delivery_methods, priority, max_snooze_count,
	reference_type, reference_id, is_enabled, created_at, updated_at`

// Store persists reminder definitions and the periods already generated.
type Store struct {
	db            *db.DB
	notifications *notifications.Store
}

// NewStore creates a Store. Notifications are materialized through ns.
func NewStore(database *db.DB, ns *notifications.Store) *Store {
	return &Store{db: database, notifications: ns}
}

// Create validates and inserts a definition.
func (s *Store) Create(ctx context.Context, d Definition) (*Definition, error) {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.Priority == "" {
		d.Priority = notifications.PriorityNormal
	}
	if d.Timezone == "" {
		d.Timezone = "UTC"
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	d.CreatedAt, d.UpdatedAt = now, now

	args, err := encode(d)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reminder_definitions (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		append([]any{d.ID}, append(args, db.FormatTime(d.CreatedAt), db.FormatTime(d.UpdatedAt))...)...)
	if err != nil {
		return nil, fmt.Errorf("inserting reminder definition: %w", err)
	}
	return &d, nil
}

// Update replaces a definition's fields. CreatedAt is kept.
func (s *Store) Update(ctx context.Context, d Definition) (*Definition, error) {
	current, err := s.Get(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	if d.Priority == "" {
		d.Priority = notifications.PriorityNormal
	}
	if d.Timezone == "" {
		d.Timezone = "UTC"
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	d.CreatedAt = current.CreatedAt
	d.UpdatedAt = time.Now().UTC()

	args, err := encode(d)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE reminder_definitions SET user_id = ?, title = ?, body = ?, category = ?, data = ?,
			repeat_pattern = ?, time_of_day = ?, cron = ?, days_of_week = ?, day_of_month = ?,
			timezone = ?, delivery_methods = ?, priority = ?, max_snooze_count = ?,
			reference_type = ?, reference_id = ?, is_enabled = ?, updated_at = ?
		WHERE id = ?`,
		append(args, db.FormatTime(d.UpdatedAt), d.ID)...)
	if err != nil {
		return nil, fmt.Errorf("updating reminder definition: %w", err)
	}
	return &d, nil
}

func encode(d Definition) ([]any, error) {
	data, err := json.Marshal(d.Data)
	if err != nil {
		return nil, fmt.Errorf("marshalling data: %w", err)
	}
	days := d.DaysOfWeek
	if days == nil {
		days = []time.Weekday{}
	}
	daysJSON, err := json.Marshal(days)
	if err != nil {
		return nil, fmt.Errorf("marshalling days of week: %w", err)
	}
	methods, err := json.Marshal(d.DeliveryMethods)
	if err != nil {
		return nil, fmt.Errorf("marshalling delivery methods: %w", err)
	}
	enabled := 0
	if d.IsEnabled {
		enabled = 1
	}
	return []any{
		d.UserID, d.Title, d.Body, d.Category, string(data), string(d.Pattern), d.TimeOfDay,
		d.Cron, string(daysJSON), d.DayOfMonth, d.Timezone, string(methods), string(d.Priority),
		d.MaxSnoozeCount, nullString(d.ReferenceType), nullString(d.ReferenceID), enabled,
	}, nil
}

// Get retrieves a definition by ID.
func (s *Store) Get(ctx context.Context, id string) (*Definition, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+columns+" FROM reminder_definitions WHERE id = ?", id)
	d, err := scanDefinition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying reminder definition: %w", err)
	}
	return d, nil
}

// Delete removes a definition and its generation history. Notifications
// already materialized are kept.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM reminder_definitions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting reminder definition: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// List returns a user's definitions, or all definitions when userID is empty.
func (s *Store) List(ctx context.Context, userID string) ([]Definition, error) {
	if userID == "" {
		return s.query(ctx, "SELECT "+columns+" FROM reminder_definitions ORDER BY created_at, id")
	}
	return s.query(ctx, "SELECT "+columns+" FROM reminder_definitions WHERE user_id = ? ORDER BY created_at, id", userID)
}

// ListEnabled returns every enabled definition.
func (s *Store) ListEnabled(ctx context.Context) ([]Definition, error) {
	return s.query(ctx, "SELECT "+columns+" FROM reminder_definitions WHERE is_enabled = 1 ORDER BY created_at, id")
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]Definition, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying reminder definitions: %w", err)
	}
	defer rows.Close()

	var result []Definition
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning reminder definition: %w", err)
		}
		result = append(result, *d)
	}
	return result, rows.Err()
}

// Materialize records (definition, bucket) and creates n in the same
// transaction. It returns nil without creating anything when the bucket
// was already generated.
func (s *Store) Materialize(ctx context.Context, definitionID, bucket string, n notifications.Notification) (*notifications.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}

	var created *notifications.Notification
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO reminder_runs (definition_id, period_bucket, notification_id, created_at)
			VALUES (?, ?, ?, ?)`,
			definitionID, bucket, n.ID, db.FormatTime(time.Now()))
		if err != nil {
			return fmt.Errorf("recording reminder run: %w", err)
		}
		if rows, _ := res.RowsAffected(); rows == 0 {
			return nil
		}
		created, err = s.notifications.CreateTx(ctx, tx, n)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Run is one generated period of a definition.
type Run struct {
	DefinitionID   string    `json:"definition_id"`
	PeriodBucket   string    `json:"period_bucket"`
	NotificationID string    `json:"notification_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// Runs lists the periods generated for a definition, newest first.
func (s *Store) Runs(ctx context.Context, definitionID string) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT definition_id, period_bucket, notification_id, created_at
		FROM reminder_runs WHERE definition_id = ? ORDER BY created_at DESC, period_bucket DESC`,
		definitionID)
	if err != nil {
		return nil, fmt.Errorf("querying reminder runs: %w", err)
	}
	defer rows.Close()

	var result []Run
	for rows.Next() {
		var (
			r         Run
			createdAt string
		)
		if err := rows.Scan(&r.DefinitionID, &r.PeriodBucket, &r.NotificationID, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning reminder run: %w", err)
		}
		r.CreatedAt = db.ParseTime(createdAt)
		result = append(result, r)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDefinition(sc scanner) (*Definition, error) {
	var (
		d                               Definition
		pattern, priority               string
		dataJSON, daysJSON, methodsJSON string
		createdAt, updatedAt            string
		refType, refID                  sql.NullString
		enabled                         int
	)
	err := sc.Scan(&d.ID, &d.UserID, &d.Title, &d.Body, &d.Category, &dataJSON, &pattern,
		&d.TimeOfDay, &d.Cron, &daysJSON, &d.DayOfMonth, &d.Timezone, &methodsJSON, &priority,
		&d.MaxSnoozeCount, &refType, &refID, &enabled, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	d.Pattern = Pattern(pattern)
	d.Priority = notifications.Priority(priority)
	d.ReferenceType = refType.String
	d.ReferenceID = refID.String
	d.IsEnabled = enabled != 0
	d.CreatedAt = db.ParseTime(createdAt)
	d.UpdatedAt = db.ParseTime(updatedAt)

	if err := json.Unmarshal([]byte(dataJSON), &d.Data); err != nil {
		return nil, fmt.Errorf("unmarshalling data: %w", err)
	}
	if err := json.Unmarshal([]byte(daysJSON), &d.DaysOfWeek); err != nil {
		return nil, fmt.Errorf("unmarshalling days of week: %w", err)
	}
	if err := json.Unmarshal([]byte(methodsJSON), &d.DeliveryMethods); err != nil {
		return nil, fmt.Errorf("unmarshalling delivery methods: %w", err)
	}
	return &d, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
