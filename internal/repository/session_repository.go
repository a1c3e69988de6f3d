package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/Aeroer-Live/Note.Lab/internal/model"
)

// SessionRepo persists user sessions (single 'token_hash' column).
type SessionRepo struct{ DB *sql.DB }

func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{DB: db} }

// Create inserts an active session row.
func (r *SessionRepo) Create(ctx context.Context, s model.Session) error {
	const q = `INSERT INTO user_sessions
		(id, user_id, token_hash, device_info, ip_address, created_at, expires_at, last_used_at, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)`
	_, err := r.DB.ExecContext(ctx, q, s.ID, s.UserID, s.TokenHash, nullIfEmpty(s.DeviceInfo), nullIfEmpty(s.IPAddress),
		s.CreatedAt, s.ExpiresAt, s.LastUsedAt)
	return errors.Wrap(err, "insert session")
}

// Validate returns the active, unexpired session for tokenHash and refreshes
// its last_used_at.
func (r *SessionRepo) Validate(ctx context.Context, tokenHash string) (model.Session, error) {
	const q = `SELECT id, user_id, token_hash, created_at, expires_at, last_used_at, is_active
		FROM user_sessions WHERE token_hash = ? LIMIT 1`
	var s model.Session
	err := r.DB.QueryRowContext(ctx, q, tokenHash).
		Scan(&s.ID, &s.UserID, &s.TokenHash, &s.CreatedAt, &s.ExpiresAt, &s.LastUsedAt, &s.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, ErrNotFound
	}
	if err != nil {
		return model.Session{}, errors.Wrap(err, "select session")
	}
	now := time.Now().UTC()
	if !s.IsActive || !now.Before(s.ExpiresAt) {
		return model.Session{}, ErrNotFound
	}
	if _, err := r.DB.ExecContext(ctx, "UPDATE user_sessions SET last_used_at = ? WHERE id = ?", now, s.ID); err != nil {
		return model.Session{}, errors.Wrap(err, "touch session")
	}
	s.LastUsedAt = now
	return s, nil
}

// Invalidate deactivates one session owned by userID.
func (r *SessionRepo) Invalidate(ctx context.Context, userID, sessionID string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE user_sessions SET is_active = 0 WHERE id = ? AND user_id = ?", sessionID, userID)
	if err != nil {
		return errors.Wrap(err, "invalidate session")
	}
	return expectOne(res)
}

// InvalidateAll deactivates every active session of userID.
func (r *SessionRepo) InvalidateAll(ctx context.Context, userID string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE user_sessions SET is_active = 0 WHERE user_id = ? AND is_active = 1", userID)
	return errors.Wrap(err, "invalidate sessions")
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
