package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Aeroer-Live/Note.Lab/internal/activity"
	"github.com/Aeroer-Live/Note.Lab/internal/apperr"
	"github.com/Aeroer-Live/Note.Lab/internal/auth"
	"github.com/Aeroer-Live/Note.Lab/internal/kv"
	"github.com/Aeroer-Live/Note.Lab/internal/queue"
	"github.com/Aeroer-Live/Note.Lab/internal/repository"
)

const resetKeyPrefix = "reset_"

// resetEntry is the value stored under reset_<token>.
type resetEntry struct {
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// PasswordResetService issues and consumes single-use reset tokens.
type PasswordResetService struct {
	users    UserStore
	sessions SessionStore
	store    kv.Store
	hasher   auth.Hasher
	notifier Notifier
	activity *activity.Recorder
	log      *zap.Logger
	baseURL  string
	ttl      time.Duration
	now      func() time.Time
}

func NewPasswordResetService(users UserStore, sessions SessionStore, store kv.Store, hasher auth.Hasher,
	notifier Notifier, rec *activity.Recorder, log *zap.Logger, baseURL string, ttl time.Duration) *PasswordResetService {
	if log == nil {
		log = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &PasswordResetService{
		users: users, sessions: sessions, store: store, hasher: hasher, notifier: notifier,
		activity: rec, log: log, baseURL: strings.TrimRight(baseURL, "/"), ttl: ttl, now: time.Now,
	}
}

// WithClock overrides time.Now (tests).
func (s *PasswordResetService) WithClock(now func() time.Time) *PasswordResetService {
	s.now = now
	return s
}

// Request issues a reset token for email.  Unknown addresses return nil as
// well so the response does not reveal whether an account exists.
func (s *PasswordResetService) Request(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		s.log.Info("password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return apperr.Internal(err)
	}

	token, err := auth.NewOpaqueToken(32)
	if err != nil {
		return apperr.Internal(err)
	}
	entry := resetEntry{UserID: u.ID, Email: u.Email, Name: u.Name, ExpiresAt: s.now().UTC().Add(s.ttl)}
	raw, err := json.Marshal(entry)
	if err != nil {
		return apperr.Internal(err)
	}
	if err := s.store.Put(ctx, resetKeyPrefix+token, raw, s.ttl); err != nil {
		return apperr.Internal(err)
	}

	notify(ctx, s.notifier, s.log, queue.EmailEvent{
		Kind:      queue.KindPasswordReset,
		To:        u.Email,
		Name:      u.Name,
		ResetURL:  s.resetURL(token, u.Email),
		ExpiresIn: humanTTL(s.ttl),
		CreatedAt: s.now().UTC(),
	})
	return nil
}

func (s *PasswordResetService) resetURL(token, email string) string {
	q := url.Values{}
	q.Set("token", token)
	q.Set("email", email)
	return s.baseURL + "/forgot-password.html?" + q.Encode()
}

// Reset consumes token and sets a new password.  Only the minimum length is
// enforced here.
func (s *PasswordResetService) Reset(ctx context.Context, token, newPassword string) error {
	if token == "" || newPassword == "" {
		return apperr.Validation("MISSING_FIELDS", "Token and new password are required")
	}
	if len(newPassword) < auth.MinResetPasswordLength {
		return apperr.ErrPasswordTooShort
	}

	// The token is spent here, before any other work.
	raw, err := s.store.Take(ctx, resetKeyPrefix+token)
	if errors.Is(err, kv.ErrNotFound) {
		return apperr.ErrInvalidResetToken
	}
	if err != nil {
		return apperr.Internal(err)
	}
	var entry resetEntry
	if err := json.Unmarshal(raw, &entry); err != nil || entry.UserID == "" {
		return apperr.ErrInvalidResetToken
	}
	if !s.now().Before(entry.ExpiresAt) {
		return apperr.ErrResetTokenExpired
	}

	digest, err := s.hasher.Hash(newPassword)
	if err != nil {
		return apperr.Internal(err)
	}
	if err := s.users.UpdatePassword(ctx, entry.UserID, digest); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.ErrInvalidResetToken
		}
		return apperr.Internal(err)
	}

	if s.sessions != nil {
		if err := s.sessions.InvalidateAll(ctx, entry.UserID); err != nil {
			s.log.Warn("invalidate sessions after reset failed", zap.String("user_id", entry.UserID), zap.Error(err))
		}
	}
	notify(ctx, s.notifier, s.log, queue.EmailEvent{
		Kind: queue.KindPasswordChanged, To: entry.Email, Name: entry.Name, CreatedAt: s.now().UTC(),
	})
	s.activity.Record(ctx, activity.Entry{UserID: entry.UserID, Action: activity.PasswordReset, ResourceType: "user", ResourceID: entry.UserID})
	s.log.Info("password reset completed", zap.String("user_id", entry.UserID))
	return nil
}

func humanTTL(d time.Duration) string {
	switch {
	case d == time.Hour:
		return "1 hour"
	case d%time.Hour == 0:
		return fmt.Sprintf("%d hours", d/time.Hour)
	case d%time.Minute == 0:
		return fmt.Sprintf("%d minutes", d/time.Minute)
	default:
		return d.String()
	}
}
