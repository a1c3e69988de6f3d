// Package response writes the JSON envelopes used by every endpoint and
// converts returned errors into the error envelope.
package response

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Aeroer-Live/Note.Lab/internal/apperr"
)

// Success is the envelope for successful responses.
type Success struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Failure is the envelope for error responses.
type Failure struct {
	Error     bool       `json:"error"`
	Message   string     `json:"message"`
	Code      string     `json:"code"`
	Timestamp time.Time  `json:"timestamp"`
	ResetTime *time.Time `json:"resetTime,omitempty"`
	Details   string     `json:"details,omitempty"`
}

func OK(c echo.Context, data any) error { return JSON(c, http.StatusOK, data) }

func Created(c echo.Context, data any) error { return JSON(c, http.StatusCreated, data) }

func JSON(c echo.Context, status int, data any) error {
	return c.JSON(status, Success{Success: true, Data: data, Timestamp: time.Now().UTC()})
}

// Fail writes e as the error envelope.
func Fail(c echo.Context, e *apperr.Error) error {
	return c.JSON(e.Status, Failure{Error: true, Message: e.Message, Code: e.Code, Timestamp: time.Now().UTC()})
}

// TooManyRequests writes the 429 envelope with the window reset time.
func TooManyRequests(c echo.Context, reset time.Time) error {
	e := apperr.RateLimited("Rate limit exceeded")
	reset = reset.UTC()
	return c.JSON(e.Status, Failure{Error: true, Message: e.Message, Code: e.Code, Timestamp: time.Now().UTC(), ResetTime: &reset})
}

// ErrorHandler is installed as echo.HTTPErrorHandler.  Causes are only shown
// when dev is true.
func ErrorHandler(log *zap.Logger, dev bool) echo.HTTPErrorHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		e := classify(err)
		if e.Status >= http.StatusInternalServerError {
			log.Error("request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.String("code", e.Code),
				zap.Error(err),
			)
		}
		body := Failure{Error: true, Message: e.Message, Code: e.Code, Timestamp: time.Now().UTC()}
		if dev && e.Err != nil {
			body.Details = e.Err.Error()
		}
		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(e.Status)
		} else {
			werr = c.JSON(e.Status, body)
		}
		if werr != nil {
			log.Warn("write error response", zap.Error(werr))
		}
	}
}

func classify(err error) *apperr.Error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return fromHTTPError(he)
	}
	return apperr.Internal(err)
}

func fromHTTPError(he *echo.HTTPError) *apperr.Error {
	msg, _ := he.Message.(string)
	switch he.Code {
	case http.StatusNotFound:
		return apperr.NotFound("NOT_FOUND", "Endpoint not found")
	case http.StatusMethodNotAllowed:
		return &apperr.Error{Status: he.Code, Code: "METHOD_NOT_ALLOWED", Message: "Method not allowed"}
	case http.StatusBadRequest:
		if msg == "" {
			msg = "Invalid request"
		}
		return apperr.Validation("VALIDATION_ERROR", msg).With(he.Internal)
	case http.StatusUnauthorized:
		return apperr.ErrUnauthorized
	case http.StatusTooManyRequests:
		return apperr.RateLimited("Rate limit exceeded")
	}
	if he.Code >= http.StatusInternalServerError {
		return apperr.Internal(he)
	}
	if msg == "" {
		msg = http.StatusText(he.Code)
	}
	code := strings.ToUpper(strings.ReplaceAll(http.StatusText(he.Code), " ", "_"))
	return &apperr.Error{Status: he.Code, Code: code, Message: msg, Err: he.Internal}
}
