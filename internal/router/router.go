package router // package router defines how HTTP routes are registered for the API

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/Aeroer-Live/Note.Lab/internal/config"
	"github.com/Aeroer-Live/Note.Lab/internal/handler"
	"github.com/Aeroer-Live/Note.Lab/internal/logging"
	"github.com/Aeroer-Live/Note.Lab/internal/middleware"
	"github.com/Aeroer-Live/Note.Lab/internal/ratelimit"
	"github.com/Aeroer-Live/Note.Lab/internal/response"
)

// Guard carries what protected and rate limited groups need.  A nil Limiter
// disables rate limiting; a nil Cache disables the response cache.
type Guard struct {
	Tokens  middleware.TokenVerifier
	Users   middleware.UserLookup
	Limiter ratelimit.Limiter
	Limits  config.RateLimitConfig
	Cache   *middleware.ResponseCache
	Log     *zap.Logger
}

// authed returns the bearer token check followed by the user lookup.
func (g Guard) authed() []echo.MiddlewareFunc {
	return []echo.MiddlewareFunc{middleware.JWTAuth(g.Tokens, g.Log), middleware.RequireUser(g.Users)}
}

func (g Guard) generalLimit() echo.MiddlewareFunc {
	return middleware.RateLimit(g.Limiter, g.Limits.Limit, g.Limits.Window, g.Log)
}

func (g Guard) authLimit() echo.MiddlewareFunc {
	return middleware.RateLimit(g.Limiter, g.Limits.AuthLimit, g.Limits.AuthWindow, g.Log)
}

// Handlers groups every HTTP handler the API exposes.
type Handlers struct {
	Auth       *handler.AuthHandler
	Notes      *handler.NotesHandler
	Categories *handler.CategoriesHandler
}

// New builds the Echo instance: error handler, validator, the global
// middleware chain and every route.
func New(h Handlers, g Guard, dev bool) *echo.Echo {
	if g.Log == nil {
		g.Log = zap.NewNop()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = response.ErrorHandler(g.Log, dev)
	e.Validator = handler.NewValidator()

	e.Use(logging.Recover(g.Log))
	e.Use(echomw.RequestID())
	e.Use(logging.Requests(g.Log))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{echo.HeaderContentType, echo.HeaderAuthorization, handler.SessionHeader},
		ExposeHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "X-Cache"},
		MaxAge:        int((24 * time.Hour).Seconds()),
	}))
	e.Use(echomw.BodyLimit("2M"))

	RegisterRoutes(e)
	RegisterAuth(e, h.Auth, g)
	RegisterNotes(e, h.Notes, h.Categories, g)
	RegisterCategories(e, h.Categories, g)
	return e
}

// RegisterRoutes registers routes that do not require authentication.
// Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/api/health", handler.Health)
}
