// Package pushtokens manages the per-device push tokens a user registers.
package pushtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ziadkadry99/lifeos-notify/internal/db"
)

// Platform identifies the device family a token belongs to.
type Platform string

const (
	PlatformWeb     Platform = "web"
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
)

// ValidPlatform reports whether p is a known platform.
func ValidPlatform(p Platform) bool {
	switch p {
	case PlatformWeb, PlatformAndroid, PlatformIOS:
		return true
	}
	return false
}

var (
	ErrNotFound = errors.New("push token not found")
	ErrInvalid  = errors.New("invalid push token")
)

// Token is a registered device endpoint for push delivery.
type Token struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	DeviceID   string     `json:"device_id"`
	Platform   Platform   `json:"platform"`
	Token      string     `json:"token"`
	IsActive   bool       `json:"is_active"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Store persists push tokens.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Register records a token for (user, device, platform). Registering the
// same device again replaces the token value and reactivates the row.
func (s *Store) Register(ctx context.Context, t Token) (*Token, error) {
	if t.UserID == "" || t.DeviceID == "" || t.Token == "" {
		return nil, fmt.Errorf("%w: user_id, device_id and token are required", ErrInvalid)
	}
	if !ValidPlatform(t.Platform) {
		return nil, fmt.Errorf("%w: unknown platform %q", ErrInvalid, t.Platform)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO push_tokens (id, user_id, device_id, platform, token, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT(user_id, device_id, platform)
		DO UPDATE SET token = excluded.token, is_active = 1`,
		uuid.New().String(), t.UserID, t.DeviceID, string(t.Platform), t.Token,
		db.FormatTime(time.Now()),
	)
	if err != nil {
		return nil, fmt.Errorf("registering push token: %w", err)
	}

	row := s.db.QueryRowContext(ctx, "SELECT "+columns+` FROM push_tokens
		WHERE user_id = ? AND device_id = ? AND platform = ?`,
		t.UserID, t.DeviceID, string(t.Platform))
	return scanToken(row)
}

// Get retrieves a token by ID.
func (s *Store) Get(ctx context.Context, id string) (*Token, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+columns+" FROM push_tokens WHERE id = ?", id)
	t, err := scanToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t, err
}

// Deregister deactivates a token at the user's request. Deregistering an
// inactive token succeeds.
func (s *Store) Deregister(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE push_tokens SET is_active = 0 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deregistering push token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Deactivate marks a token inactive after a permanent delivery failure.
// It is idempotent and ignores unknown IDs.
func (s *Store) Deactivate(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx,
		"UPDATE push_tokens SET is_active = 0 WHERE id = ? AND is_active = 1", id); err != nil {
		return fmt.Errorf("deactivating push token: %w", err)
	}
	return nil
}

// Touch records a successful delivery to the token.
func (s *Store) Touch(ctx context.Context, id string, at time.Time) error {
	if _, err := s.db.ExecContext(ctx,
		"UPDATE push_tokens SET last_used_at = ? WHERE id = ?", db.FormatTime(at), id); err != nil {
		return fmt.Errorf("touching push token: %w", err)
	}
	return nil
}

// ListActive returns the user's active tokens, oldest first.
func (s *Store) ListActive(ctx context.Context, userID string) ([]Token, error) {
	active := true
	return s.List(ctx, userID, &active)
}

// List returns the user's tokens, optionally filtered by activity.
func (s *Store) List(ctx context.Context, userID string, active *bool) ([]Token, error) {
	clauses := []string{"user_id = ?"}
	args := []any{userID}
	if active != nil {
		clauses = append(clauses, "is_active = ?")
		if *active {
			args = append(args, 1)
		} else {
			args = append(args, 0)
		}
	}

	rows, err := s.db.QueryContext(ctx, "SELECT "+columns+" FROM push_tokens WHERE "+
		strings.Join(clauses, " AND ")+" ORDER BY created_at, id", args...)
	if err != nil {
		return nil, fmt.Errorf("querying push tokens: %w", err)
	}
	defer rows.Close()

	var result []Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning push token: %w", err)
		}
		result = append(result, *t)
	}
	return result, rows.Err()
}

const columns = "id, user_id, device_id, platform, token, is_active, last_used_at, created_at"

type scanner interface {
	Scan(dest ...any) error
}

func scanToken(sc scanner) (*Token, error) {
	var (
		t                   Token
		platform, createdAt string
		active              int
		lastUsed            sql.NullString
	)
	if err := sc.Scan(&t.ID, &t.UserID, &t.DeviceID, &platform, &t.Token, &active, &lastUsed, &createdAt); err != nil {
		return nil, err
	}
	t.Platform = Platform(platform)
	t.IsActive = active != 0
	t.LastUsedAt = db.TimePtr(lastUsed)
	t.CreatedAt = db.ParseTime(createdAt)
	return &t, nil
}
