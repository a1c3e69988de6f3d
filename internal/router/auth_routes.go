package router

import (
	"github.com/labstack/echo/v4"

	"github.com/Aeroer-Live/Note.Lab/internal/handler"
)

// RegisterAuth registers the account routes.  Operations that do not need an
// existing login live under /api/auth and share the stricter auth rate
// limit; everything else requires a bearer token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, g Guard) {
	pub := e.Group("/api/auth", g.authLimit())
	pub.POST("/register", a.Register)
	pub.POST("/login", a.Login)
	pub.POST("/refresh", a.Refresh)
	pub.POST("/forgot-password", a.ForgotPassword)
	pub.POST("/reset-password", a.ResetPassword)

	sess := e.Group("/api/auth", g.authed()...)
	sess.POST("/logout", a.Logout)
	// The opaque session token travels in X-Session-Token.
	sess.GET("/session", a.Session)

	user := e.Group("/api/user", g.authed()...)
	user.GET("/profile", a.Profile)
	user.PUT("/profile", a.UpdateProfile)
	user.PUT("/password", a.ChangePassword)
}
