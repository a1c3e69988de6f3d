package middleware

import (
	"context"
	"errors"

	"github.com/labstack/echo/v4"

	"github.com/Aeroer-Live/Note.Lab/internal/apperr"
	"github.com/Aeroer-Live/Note.Lab/internal/model"
	"github.com/Aeroer-Live/Note.Lab/internal/repository"
)

// UserLookup loads a user by id.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (model.User, error)
}

// RequireUser rejects tokens whose user no longer exists.  It must run after
// JWTAuth.  The identity is refreshed from the stored row so handlers see the
// current name and email rather than what the token was signed with.
func RequireUser(users UserLookup) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := CurrentUser(c)
			if !ok {
				return apperr.ErrUnauthorized
			}
			u, err := users.GetByID(c.Request().Context(), id.UserID)
			if errors.Is(err, repository.ErrNotFound) {
				return apperr.Authentication("USER_NOT_FOUND", "User not found")
			}
			if err != nil {
				return apperr.Internal(err)
			}
			id.Email, id.Name = u.Email, u.Name
			SetIdentity(c, id)
			return next(c)
		}
	}
}
