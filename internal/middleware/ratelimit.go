package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Aeroer-Live/Note.Lab/internal/apperr"
	"github.com/Aeroer-Live/Note.Lab/internal/ratelimit"
	"github.com/Aeroer-Live/Note.Lab/internal/response"
)

// RateLimit counts requests per (client ip, request path) in fixed windows of
// length window and rejects the request with 429 once limit is reached.  A
// nil limiter disables limiting.  Limiter errors fail the request.
func RateLimit(l ratelimit.Limiter, limit int, window time.Duration, log *zap.Logger) echo.MiddlewareFunc {
	if l == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	if log == nil {
		log = zap.NewNop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			if ip == "" {
				ip = "unknown"
			}
			endpoint := c.Request().URL.Path

			res, err := l.CheckAndConsume(c.Request().Context(), ip, endpoint, limit, window)
			if err != nil {
				return apperr.Internal(err)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			h.Set("X-RateLimit-Reset", res.ResetTime.UTC().Format(time.RFC3339))

			if !res.Allowed {
				log.Info("rate limited", zap.String("ip", ip), zap.String("endpoint", endpoint))
				return response.TooManyRequests(c, res.ResetTime)
			}
			return next(c)
		}
	}
}
