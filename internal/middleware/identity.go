package middleware

// identity.go holds the helpers that move the authenticated caller between
// middleware and handlers through the Echo context.

import (
	"github.com/labstack/echo/v4"

	"github.com/Aeroer-Live/Note.Lab/internal/auth"
)

const identityKey = "identity"

// SetIdentity stores id on the request context.
func SetIdentity(c echo.Context, id auth.Identity) { c.Set(identityKey, id) }

// CurrentUser returns the identity attached by JWTAuth.  ok is false on
// routes that are not behind JWTAuth.
func CurrentUser(c echo.Context) (auth.Identity, bool) {
	id, ok := c.Get(identityKey).(auth.Identity)
	return id, ok && id.UserID != ""
}

// userID returns the caller's id for cache and rate keys, or "anon".
func userID(c echo.Context) string {
	if id, ok := CurrentUser(c); ok {
		return id.UserID
	}
	return "anon"
}
