// Package apperr defines the error taxonomy shared by services and handlers.
// Each Error carries the HTTP status, a machine-readable code and a message
// that is safe to show to clients.
package apperr

import (
	"errors"
	"net/http"
)

// Error is an application error with a fixed HTTP mapping.
type Error struct {
	Status  int
	Code    string
	Message string
	Err     error // underlying cause, never exposed outside development
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on status and code so sentinel values compare equal to copies
// produced by With.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Status == t.Status && e.Code == t.Code
}

// With returns a copy of e carrying cause.
func (e *Error) With(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

func newErr(status int, code, msg string) *Error {
	return &Error{Status: status, Code: code, Message: msg}
}

func Validation(code, msg string) *Error     { return newErr(http.StatusBadRequest, code, msg) }
func Authentication(code, msg string) *Error { return newErr(http.StatusUnauthorized, code, msg) }
func NotFound(code, msg string) *Error       { return newErr(http.StatusNotFound, code, msg) }
func Conflict(code, msg string) *Error       { return newErr(http.StatusConflict, code, msg) }
func RateLimited(msg string) *Error          { return newErr(http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", msg) }
func NotImplemented(code, msg string) *Error { return newErr(http.StatusNotImplemented, code, msg) }

// Internal wraps an unexpected failure.
func Internal(cause error) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: "INTERNAL_ERROR", Message: "Internal server error", Err: cause}
}

// Predefined errors used in more than one place.
var (
	ErrInvalidCredentials = Authentication("INVALID_CREDENTIALS", "Invalid email or password")
	ErrUnauthorized       = Authentication("UNAUTHORIZED", "Missing or invalid authorization header")
	ErrInvalidToken       = Authentication("INVALID_TOKEN", "Invalid or expired token")
	ErrUserExists         = Conflict("USER_EXISTS", "User with this email already exists")
	ErrInvalidResetToken  = Validation("INVALID_TOKEN", "Invalid or expired reset token")
	ErrResetTokenExpired  = Validation("TOKEN_EXPIRED", "Reset token has expired")
	ErrPasswordTooShort   = Validation("PASSWORD_TOO_SHORT", "Password must be at least 6 characters long")
	ErrNoUpdates          = Validation("NO_UPDATES", "No valid fields to update")
)

// From converts any error into an *Error.  Unknown errors become Internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Internal(err)
}
