// Package service holds the account workflows: registration, login,
// sessions, profile changes and the password reset lifecycle.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Aeroer-Live/Note.Lab/internal/activity"
	"github.com/Aeroer-Live/Note.Lab/internal/apperr"
	"github.com/Aeroer-Live/Note.Lab/internal/auth"
	"github.com/Aeroer-Live/Note.Lab/internal/model"
	"github.com/Aeroer-Live/Note.Lab/internal/queue"
	"github.com/Aeroer-Live/Note.Lab/internal/repository"
)

// UserStore is the subset of the user repository the services need.
type UserStore interface {
	Create(ctx context.Context, u model.User) error
	EmailExists(ctx context.Context, email string) (bool, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id string) (model.User, error)
	UpdatePassword(ctx context.Context, id, hash string) error
	UpdateProfile(ctx context.Context, id string, name *string) (model.User, error)
	TouchLogin(ctx context.Context, id string) error
}

// SessionStore persists user sessions.
type SessionStore interface {
	Create(ctx context.Context, s model.Session) error
	Validate(ctx context.Context, tokenHash string) (model.Session, error)
	Invalidate(ctx context.Context, userID, sessionID string) error
	InvalidateAll(ctx context.Context, userID string) error
}

// TokenIssuer signs access tokens.
type TokenIssuer interface {
	Issue(id auth.Identity) (string, time.Time, error)
}

// Notifier hands a notification to the delivery pipeline.
type Notifier interface {
	Send(ctx context.Context, ev queue.EmailEvent) error
}

// Client describes where a request came from.
type Client struct {
	IP        string
	UserAgent string
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	User             model.PublicUser `json:"user"`
	Token            string           `json:"token"`
	ExpiresAt        time.Time        `json:"expiresAt"`
	SessionID        string           `json:"sessionId"`
	SessionToken     string           `json:"sessionToken"`
	SessionExpiresAt time.Time        `json:"sessionExpiresAt"`
}

type AuthService struct {
	users      UserStore
	sessions   SessionStore
	hasher     auth.Hasher
	tokens     TokenIssuer
	notifier   Notifier
	activity   *activity.Recorder
	log        *zap.Logger
	sessionTTL time.Duration
	dummy      string // digest verified when the email is unknown
}

func NewAuthService(users UserStore, sessions SessionStore, hasher auth.Hasher, tokens TokenIssuer,
	notifier Notifier, rec *activity.Recorder, log *zap.Logger, sessionTTL time.Duration) (*AuthService, error) {
	if log == nil {
		log = zap.NewNop()
	}
	dummy, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, err
	}
	return &AuthService{
		users: users, sessions: sessions, hasher: hasher, tokens: tokens, notifier: notifier,
		activity: rec, log: log, sessionTTL: sessionTTL, dummy: dummy,
	}, nil
}

// NormalizeEmail trims surrounding whitespace.  Case is kept as given; the
// users.email column is case-sensitive.
func NormalizeEmail(email string) string { return strings.TrimSpace(email) }

// Register creates an account and signs the user in.  The caller has already
// validated the email format and the password policy.
func (s *AuthService) Register(ctx context.Context, email, password, name string, cl Client) (AuthResult, error) {
	email = NormalizeEmail(email)
	name = strings.TrimSpace(name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}

	exists, err := s.users.EmailExists(ctx, email)
	if err != nil {
		return AuthResult{}, apperr.Internal(err)
	}
	if exists {
		return AuthResult{}, apperr.ErrUserExists
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return AuthResult{}, apperr.Internal(err)
	}
	now := time.Now().UTC()
	u := model.User{ID: uuid.NewString(), Email: email, PasswordHash: digest, Name: name, CreatedAt: now, UpdatedAt: now}
	if err := s.users.Create(ctx, u); err != nil {
		// Lost a race with a concurrent registration for the same email.
		if errors.Is(err, repository.ErrEmailExists) {
			return AuthResult{}, apperr.ErrUserExists
		}
		return AuthResult{}, apperr.Internal(err)
	}

	res, err := s.signIn(ctx, u, cl)
	if err != nil {
		return AuthResult{}, err
	}
	s.activity.Record(ctx, activity.Entry{UserID: u.ID, Action: activity.UserRegister, ResourceType: "user", ResourceID: u.ID,
		IPAddress: cl.IP, UserAgent: cl.UserAgent})
	s.log.Info("user registered", zap.String("user_id", u.ID))
	return res, nil
}

// Login checks credentials.  Unknown email and wrong password fail the same way.
func (s *AuthService) Login(ctx context.Context, email, password string, cl Client) (AuthResult, error) {
	u, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, repository.ErrNotFound) {
		s.hasher.Verify(password, s.dummy)
		return AuthResult{}, apperr.ErrInvalidCredentials
	}
	if err != nil {
		return AuthResult{}, apperr.Internal(err)
	}
	if !s.hasher.Verify(password, u.PasswordHash) {
		return AuthResult{}, apperr.ErrInvalidCredentials
	}

	if err := s.users.TouchLogin(ctx, u.ID); err != nil {
		s.log.Warn("update last login failed", zap.String("user_id", u.ID), zap.Error(err))
	} else {
		now := time.Now().UTC()
		u.LastLoginAt = &now
	}
	res, err := s.signIn(ctx, u, cl)
	if err != nil {
		return AuthResult{}, err
	}
	s.activity.Record(ctx, activity.Entry{UserID: u.ID, Action: activity.UserLogin, ResourceType: "user", ResourceID: u.ID,
		IPAddress: cl.IP, UserAgent: cl.UserAgent})
	return res, nil
}

func (s *AuthService) signIn(ctx context.Context, u model.User, cl Client) (AuthResult, error) {
	token, exp, err := s.tokens.Issue(auth.Identity{UserID: u.ID, Email: u.Email, Name: u.Name})
	if err != nil {
		return AuthResult{}, apperr.Internal(err)
	}
	raw, err := auth.NewOpaqueToken(32)
	if err != nil {
		return AuthResult{}, apperr.Internal(err)
	}
	now := time.Now().UTC()
	sess := model.Session{
		ID:         uuid.NewString(),
		UserID:     u.ID,
		TokenHash:  auth.HashToken(raw),
		DeviceInfo: cl.UserAgent,
		IPAddress:  cl.IP,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.sessionTTL),
		LastUsedAt: now,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return AuthResult{}, apperr.Internal(err)
	}
	return AuthResult{
		User:             u.Public(),
		Token:            token,
		ExpiresAt:        exp,
		SessionID:        sess.ID,
		SessionToken:     raw,
		SessionExpiresAt: sess.ExpiresAt,
	}, nil
}

// ValidateSession resolves a raw session token for userID.
func (s *AuthService) ValidateSession(ctx context.Context, userID, rawToken string) (model.Session, error) {
	if rawToken == "" {
		return model.Session{}, apperr.Validation("MISSING_SESSION", "Session token required")
	}
	sess, err := s.sessions.Validate(ctx, auth.HashToken(rawToken))
	if errors.Is(err, repository.ErrNotFound) || (err == nil && sess.UserID != userID) {
		return model.Session{}, apperr.Authentication("INVALID_SESSION", "Invalid or expired session")
	}
	if err != nil {
		return model.Session{}, apperr.Internal(err)
	}
	return sess, nil
}

// Logout deactivates one session, or all of them when sessionID is empty.
func (s *AuthService) Logout(ctx context.Context, userID, sessionID string, cl Client) error {
	var err error
	if sessionID == "" {
		err = s.sessions.InvalidateAll(ctx, userID)
	} else {
		err = s.sessions.Invalidate(ctx, userID, sessionID)
	}
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("SESSION_NOT_FOUND", "Session not found")
	}
	if err != nil {
		return apperr.Internal(err)
	}
	s.activity.Record(ctx, activity.Entry{UserID: userID, Action: activity.UserLogout, ResourceType: "session", ResourceID: sessionID,
		IPAddress: cl.IP, UserAgent: cl.UserAgent})
	return nil
}

// Profile returns the current user.
func (s *AuthService) Profile(ctx context.Context, userID string) (model.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.User{}, apperr.NotFound("USER_NOT_FOUND", "User not found")
	}
	if err != nil {
		return model.User{}, apperr.Internal(err)
	}
	return u, nil
}

// UpdateProfile changes the display name.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, name *string, cl Client) (model.User, error) {
	if name == nil {
		return model.User{}, apperr.ErrNoUpdates
	}
	trimmed := strings.TrimSpace(*name)
	if trimmed == "" || len([]rune(trimmed)) > 100 {
		return model.User{}, apperr.Validation("INVALID_NAME", "Name must be between 1 and 100 characters")
	}
	u, err := s.users.UpdateProfile(ctx, userID, &trimmed)
	if errors.Is(err, repository.ErrNotFound) {
		return model.User{}, apperr.NotFound("USER_NOT_FOUND", "User not found")
	}
	if err != nil {
		return model.User{}, apperr.Internal(err)
	}
	s.activity.Record(ctx, activity.Entry{UserID: userID, Action: activity.ProfileUpdated, ResourceType: "user", ResourceID: userID,
		IPAddress: cl.IP, UserAgent: cl.UserAgent})
	return u, nil
}

// ChangePassword replaces the password of a signed-in user, ends every
// session and notifies the owner.
func (s *AuthService) ChangePassword(ctx context.Context, userID, current, next string, cl Client) error {
	u, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(current, u.PasswordHash) {
		return apperr.Authentication("INVALID_PASSWORD", "Current password is incorrect")
	}
	if !auth.MeetsPolicy(next) {
		return apperr.Validation("WEAK_PASSWORD", "Password must be at least 8 characters and contain letters and numbers")
	}
	digest, err := s.hasher.Hash(next)
	if err != nil {
		return apperr.Internal(err)
	}
	if err := s.users.UpdatePassword(ctx, userID, digest); err != nil {
		return apperr.Internal(err)
	}
	if err := s.sessions.InvalidateAll(ctx, userID); err != nil {
		s.log.Warn("invalidate sessions after password change failed", zap.String("user_id", userID), zap.Error(err))
	}
	notify(ctx, s.notifier, s.log, queue.EmailEvent{Kind: queue.KindPasswordChanged, To: u.Email, Name: u.Name})
	s.activity.Record(ctx, activity.Entry{UserID: userID, Action: activity.PasswordChanged, ResourceType: "user", ResourceID: userID,
		IPAddress: cl.IP, UserAgent: cl.UserAgent})
	return nil
}

// notify sends ev and only logs failures.
func notify(ctx context.Context, m Notifier, log *zap.Logger, ev queue.EmailEvent) {
	if m == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := m.Send(ctx, ev); err != nil {
		log.Warn("email notification failed", zap.String("kind", ev.Kind), zap.Error(err))
	}
}
