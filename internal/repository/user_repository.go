package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/Aeroer-Live/Note.Lab/internal/model"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id, email, password_hash, name, created_at, updated_at, last_login_at"

// Create inserts u.  The unique index on email decides concurrent registrations.
func (r *UserRepo) Create(ctx context.Context, u model.User) error {
	const q = "INSERT INTO users (id, email, password_hash, name, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)"
	_, err := r.DB.ExecContext(ctx, q, u.ID, u.Email, u.PasswordHash, u.Name, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isDuplicate(err) {
			return ErrEmailExists
		}
		return errors.Wrap(err, "insert user")
	}
	return nil
}

// EmailExists is the friendly pre-check before Create.
func (r *UserRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx, "SELECT 1 FROM users WHERE email = ? LIMIT 1", email).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "check email")
	}
	return true, nil
}

// GetByEmail fetches a user by email.  Addresses compare byte for byte.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	row := r.DB.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email = ? LIMIT 1", strings.TrimSpace(email))
	return scanUser(row)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (model.User, error) {
	row := r.DB.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ? LIMIT 1", id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (model.User, error) {
	var (
		u         model.User
		lastLogin sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.CreatedAt, &u.UpdatedAt, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, errors.Wrap(err, "scan user")
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return u, nil
}

// UpdatePassword replaces the stored digest.
func (r *UserRepo) UpdatePassword(ctx context.Context, id, hash string) error {
	const q = "UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?"
	res, err := r.DB.ExecContext(ctx, q, hash, time.Now().UTC(), id)
	if err != nil {
		return errors.Wrap(err, "update password")
	}
	return expectOne(res)
}

// UpdateProfile applies a partial update; a nil name keeps the current value.
func (r *UserRepo) UpdateProfile(ctx context.Context, id string, name *string) (model.User, error) {
	const q = "UPDATE users SET name = COALESCE(?, name), updated_at = ? WHERE id = ?"
	res, err := r.DB.ExecContext(ctx, q, nullString(name), time.Now().UTC(), id)
	if err != nil {
		return model.User{}, errors.Wrap(err, "update profile")
	}
	if err := expectOne(res); err != nil {
		return model.User{}, err
	}
	return r.GetByID(ctx, id)
}

// TouchLogin records a successful login.
func (r *UserRepo) TouchLogin(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx, "UPDATE users SET last_login_at = ? WHERE id = ?", time.Now().UTC(), id)
	return errors.Wrap(err, "touch login")
}

// expectOne maps "no row matched" to ErrNotFound.  Relies on clientFoundRows
// in the DSN so unchanged rows still count.
func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
