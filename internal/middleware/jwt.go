package middleware // reusable HTTP middleware for the API

import (
	"errors"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Aeroer-Live/Note.Lab/internal/apperr"
	"github.com/Aeroer-Live/Note.Lab/internal/auth"
)

// TokenVerifier checks a bearer token and returns who it was issued to.
type TokenVerifier interface {
	Verify(raw string) (auth.Identity, error)
}

// JWTAuth returns an Echo middleware that validates a Bearer access token and
// attaches the token's identity to the context.  Handlers read it back with
// CurrentUser.
//
// Every verification failure produces the same 401 body; only the log line
// says whether the token was expired or otherwise invalid.
func JWTAuth(tokens TokenVerifier, log *zap.Logger) echo.MiddlewareFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// A valid header is "Bearer " followed by the token.
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(header, "Bearer ") {
				return apperr.ErrUnauthorized
			}
			raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
			if raw == "" {
				return apperr.ErrUnauthorized
			}

			id, err := tokens.Verify(raw)
			if err != nil {
				reason := "invalid"
				if errors.Is(err, auth.ErrTokenExpired) {
					reason = "expired"
				}
				log.Info("token rejected",
					zap.String("reason", reason),
					zap.String("path", c.Request().URL.Path),
					zap.String("ip", c.RealIP()),
				)
				return apperr.ErrInvalidToken
			}

			SetIdentity(c, id)
			return next(c)
		}
	}
}
