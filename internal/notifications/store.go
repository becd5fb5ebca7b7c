package notifications

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

const columns = `id, user_id, title, body, data, category, scheduled_at, sent_at, status,
	is_reminder, reminder_id, reference_type, reference_id, repeat_pattern, snooze_until,
	snooze_count, max_snooze_count, delivery_methods, delivered_channels, priority,
	attempt_count, failure_reason, version, created_at, updated_at`

// execer is implemented by both *db.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store provides persistence and atomic compare-and-transition for notifications.
type Store struct {
	db  *db.DB
	now func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides time.Now for transition guards.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB, opts ...StoreOption) *Store {
	s := &Store{db: database, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying database.
func (s *Store) DB() *db.DB { return s.db }

// Create validates and inserts a new pending notification. If n.ID is
// empty a UUID is generated.
func (s *Store) Create(ctx context.Context, n Notification) (*Notification, error) {
	if err := s.insert(ctx, s.db, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// CreateTx is Create inside an existing transaction.
func (s *Store) CreateTx(ctx context.Context, tx *sql.Tx, n Notification) (*Notification, error) {
	if err := s.insert(ctx, tx, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *Store) insert(ctx context.Context, ex execer, n *Notification) error {
	if err := normalize(n); err != nil {
		return err
	}

	data, err := json.Marshal(n.Data)
	if err != nil {
		return fmt.Errorf("marshalling data: %w", err)
	}
	methods, err := json.Marshal(n.DeliveryMethods)
	if err != nil {
		return fmt.Errorf("marshalling delivery methods: %w", err)
	}

	now := time.Now().UTC()
	n.CreatedAt, n.UpdatedAt = now, now
	n.Version = 1

	_, err = ex.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, title, body, data, category, scheduled_at,
			status, is_reminder, reminder_id, reference_type, reference_id, repeat_pattern,
			snooze_count, max_snooze_count, delivery_methods, delivered_channels, priority,
			attempt_count, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, '[]', ?, 0, 1, ?, ?)`,
		n.ID, n.UserID, n.Title, n.Body, string(data), n.Category, db.FormatTime(n.ScheduledAt),
		string(n.Status), boolInt(n.IsReminder), nullString(n.ReminderID),
		nullString(n.ReferenceType), nullString(n.ReferenceID), string(n.RepeatPattern),
		n.MaxSnoozeCount, string(methods), string(n.Priority),
		db.FormatTime(now), db.FormatTime(now),
	)
	if err != nil {
		return fmt.Errorf("inserting notification: %w", err)
	}
	return nil
}

func normalize(n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.UserID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalid)
	}
	if n.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalid)
	}
	if len(n.DeliveryMethods) == 0 {
		return fmt.Errorf("%w: at least one delivery method is required", ErrInvalid)
	}
	seen := make(map[Channel]bool)
	var methods []Channel
	for _, c := range n.DeliveryMethods {
		if !ValidChannel(c) {
			return fmt.Errorf("%w: unknown delivery method %q", ErrInvalid, c)
		}
		if !seen[c] {
			seen[c] = true
			methods = append(methods, c)
		}
	}
	n.DeliveryMethods = methods

	if n.Priority == "" {
		n.Priority = PriorityNormal
	}
	if !ValidPriority(n.Priority) {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalid, n.Priority)
	}
	if n.RepeatPattern == "" {
		n.RepeatPattern = RepeatNone
	}
	if n.MaxSnoozeCount < 0 {
		return fmt.Errorf("%w: max_snooze_count must be non-negative", ErrInvalid)
	}
	if n.ScheduledAt.IsZero() {
		n.ScheduledAt = time.Now().UTC()
	}
	n.Status = StatusPending
	n.SnoozeCount = 0
	n.SnoozeUntil = nil
	n.SentAt = nil
	n.AttemptCount = 0
	n.DeliveredChannels = nil
	return nil
}

// Get retrieves a single notification.
func (s *Store) Get(ctx context.Context, id string) (*Notification, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+columns+" FROM notifications WHERE id = ?", id)
	n, err := scanInto(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying notification: %w", err)
	}
	return n, nil
}

// List returns notifications matching the filter, newest first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]Notification, error) {
	var (
		clauses []string
		args    []any
	)

	if filter.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.IsReminder != nil {
		clauses = append(clauses, "is_reminder = ?")
		args = append(args, boolInt(*filter.IsReminder))
	}

	query := "SELECT " + columns + " FROM notifications"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY scheduled_at DESC, id"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	return s.query(ctx, query, args...)
}

// ListDue returns pending notifications with scheduled_at <= now and
// snoozed notifications with snooze_until <= now. Notifications whose
// dispatch lease is still live are skipped. limit <= 0 means no limit.
func (s *Store) ListDue(ctx context.Context, now time.Time, limit int) ([]Notification, error) {
	ts := db.FormatTime(now)
	query := "SELECT " + columns + ` FROM notifications
		WHERE ((status = 'pending' AND scheduled_at <= ?) OR (status = 'snoozed' AND snooze_until <= ?))
		  AND (lease_until IS NULL OR lease_until <= ?)
		ORDER BY COALESCE(snooze_until, scheduled_at), id`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return s.query(ctx, query, ts, ts, ts)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]Notification, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	defer rows.Close()

	var result []Notification
	for rows.Next() {
		n, err := scanInto(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		result = append(result, *n)
	}
	return result, rows.Err()
}

// Claim takes a dispatch lease on a due notification so that concurrent
// ticks cannot both deliver it. It returns the lease token to pass in
// Fields.LeaseToken on the follow-up transition.
func (s *Store) Claim(ctx context.Context, id string, expected Status, now, until time.Time) (string, error) {
	token := uuid.New().String()
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET lease_token = ?, lease_until = ?
		WHERE id = ? AND status = ? AND (lease_until IS NULL OR lease_until <= ?)`,
		token, db.FormatTime(until), id, string(expected), db.FormatTime(now))
	if err != nil {
		return "", fmt.Errorf("claiming notification: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return token, nil
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if current.Status != expected {
		return "", &ConflictError{ID: id, Expected: expected, Actual: current.Status}
	}
	return "", &ConflictError{ID: id, Expected: expected, Actual: current.Status, Reason: "already claimed by another dispatch"}
}

// Transition atomically moves a notification from expected to next and
// applies fields. Exactly one of several concurrent callers with the same
// expected status succeeds; the others get a *ConflictError.
func (s *Store) Transition(ctx context.Context, id string, expected, next Status, fields Fields) (*Notification, error) {
	if !CanTransition(expected, next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, expected, next)
	}
	if next == StatusSnoozed && fields.SnoozeUntil == nil {
		return nil, fmt.Errorf("%w: snoozed requires snooze_until", ErrInvalidTransition)
	}
	if next == StatusSnoozed && !fields.SnoozeUntil.After(s.now()) {
		return nil, fmt.Errorf("%w: snooze_until %s is not in the future", ErrInvalid, fields.SnoozeUntil.Format(time.RFC3339))
	}
	if next == StatusSent && fields.SentAt == nil {
		return nil, fmt.Errorf("%w: sent requires sent_at", ErrInvalidTransition)
	}

	sets := []string{"status = ?", "version = version + 1", "updated_at = ?", "lease_token = NULL", "lease_until = NULL"}
	args := []any{string(next), db.FormatTime(time.Now())}
	var guards []string
	var guardArgs []any

	if fields.ScheduledAt != nil {
		sets = append(sets, "scheduled_at = ?")
		args = append(args, db.FormatTime(*fields.ScheduledAt))
	}
	if fields.SentAt != nil {
		sets = append(sets, "sent_at = ?")
		args = append(args, db.FormatTime(*fields.SentAt))
		if next == StatusSent {
			scheduled := "scheduled_at"
			if fields.ScheduledAt != nil {
				scheduled = "?"
				guardArgs = append(guardArgs, db.FormatTime(*fields.ScheduledAt))
			}
			guards = append(guards, scheduled+" <= ?")
			guardArgs = append(guardArgs, db.FormatTime(*fields.SentAt))
		}
	}
	if next == StatusSnoozed {
		sets = append(sets, "snooze_until = ?")
		args = append(args, db.FormatTime(*fields.SnoozeUntil))
	} else {
		sets = append(sets, "snooze_until = NULL")
	}
	if fields.SnoozeCount != nil {
		sets = append(sets, "snooze_count = ?")
		args = append(args, *fields.SnoozeCount)
		guards = append(guards, "? <= max_snooze_count")
		guardArgs = append(guardArgs, *fields.SnoozeCount)
	}
	if fields.AttemptCount != nil {
		sets = append(sets, "attempt_count = ?")
		args = append(args, *fields.AttemptCount)
	}
	if fields.DeliveredChannels != nil {
		delivered, err := json.Marshal(*fields.DeliveredChannels)
		if err != nil {
			return nil, fmt.Errorf("marshalling delivered channels: %w", err)
		}
		sets = append(sets, "delivered_channels = ?")
		args = append(args, string(delivered))
	}
	if fields.FailureReason != nil {
		sets = append(sets, "failure_reason = ?")
		args = append(args, nullString(*fields.FailureReason))
	}

	where := []string{"id = ?", "status = ?"}
	args = append(args, id, string(expected))
	if fields.LeaseToken != "" {
		where = append(where, "lease_token = ?")
		args = append(args, fields.LeaseToken)
	}
	where = append(where, guards...)
	args = append(args, guardArgs...)

	query := "UPDATE notifications SET " + strings.Join(sets, ", ") + " WHERE " + strings.Join(where, " AND ")
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("transitioning notification: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return nil, s.diagnose(ctx, id, expected, fields)
	}
	return s.Get(ctx, id)
}

// diagnose explains why a guarded update matched no row.
func (s *Store) diagnose(ctx context.Context, id string, expected Status, fields Fields) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.Status != expected {
		return &ConflictError{ID: id, Expected: expected, Actual: current.Status}
	}
	if fields.LeaseToken != "" {
		return &ConflictError{ID: id, Expected: expected, Actual: current.Status, Reason: "dispatch lease lost"}
	}
	if fields.SnoozeCount != nil && *fields.SnoozeCount > current.MaxSnoozeCount {
		return fmt.Errorf("%w: %d of %d snoozes used", ErrSnoozeLimitExceeded, current.SnoozeCount, current.MaxSnoozeCount)
	}
	if fields.SentAt != nil {
		return fmt.Errorf("%w: sent_at precedes scheduled_at", ErrInvalidTransition)
	}
	return &ConflictError{ID: id, Expected: expected, Actual: current.Status, Reason: "concurrent update"}
}

// scanner is implemented by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanInto(sc scanner) (*Notification, error) {
	var (
		n                                         Notification
		status, pattern, priority                 string
		dataJSON, methodsJSON, deliveredJSON      string
		scheduledAt, createdAt, updatedAt         string
		sentAt, snoozeUntil                       sql.NullString
		reminderID, refType, refID, failureReason sql.NullString
		isReminder                                int
	)

	err := sc.Scan(&n.ID, &n.UserID, &n.Title, &n.Body, &dataJSON, &n.Category,
		&scheduledAt, &sentAt, &status, &isReminder, &reminderID, &refType, &refID,
		&pattern, &snoozeUntil, &n.SnoozeCount, &n.MaxSnoozeCount, &methodsJSON,
		&deliveredJSON, &priority, &n.AttemptCount, &failureReason, &n.Version,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	n.Status = Status(status)
	n.RepeatPattern = RepeatPattern(pattern)
	n.Priority = Priority(priority)
	n.IsReminder = isReminder != 0
	n.ScheduledAt = db.ParseTime(scheduledAt)
	n.CreatedAt = db.ParseTime(createdAt)
	n.UpdatedAt = db.ParseTime(updatedAt)
	n.SentAt = db.TimePtr(sentAt)
	n.SnoozeUntil = db.TimePtr(snoozeUntil)
	n.ReminderID = reminderID.String
	n.ReferenceType = refType.String
	n.ReferenceID = refID.String
	n.FailureReason = failureReason.String

	if err := json.Unmarshal([]byte(dataJSON), &n.Data); err != nil {
		n.Data = nil
	}
	if err := json.Unmarshal([]byte(methodsJSON), &n.DeliveryMethods); err != nil {
		n.DeliveryMethods = nil
	}
	if err := json.Unmarshal([]byte(deliveredJSON), &n.DeliveredChannels); err != nil {
		n.DeliveredChannels = nil
	}

	return &n, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
