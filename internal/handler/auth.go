package handler

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Aeroer-Live/Note.Lab/internal/apperr"
	"github.com/Aeroer-Live/Note.Lab/internal/middleware"
	"github.com/Aeroer-Live/Note.Lab/internal/model"
	"github.com/Aeroer-Live/Note.Lab/internal/response"
	"github.com/Aeroer-Live/Note.Lab/internal/service"
)

// dbTimeout bounds the storage work of a single request.
const dbTimeout = 5 * time.Second

// SessionHeader carries the opaque session token on session endpoints.
const SessionHeader = "X-Session-Token"

const forgotPasswordMessage = "If an account with this email exists, a reset link has been sent."

// AuthHandler bundles dependencies for auth and profile endpoints.
type AuthHandler struct {
	Auth  *service.AuthService
	Reset *service.PasswordResetService
}

func NewAuthHandler(a *service.AuthService, r *service.PasswordResetService) *AuthHandler {
	return &AuthHandler{Auth: a, Reset: r}
}

// ----- DTOs -----

type registerReq struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,password"`
	Name     string `json:"name" validate:"max=100"`
}

type loginReq struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type logoutReq struct {
	SessionID string `json:"sessionId"`
	All       bool   `json:"all"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type forgotReq struct {
	Email string `json:"email" validate:"required,email"`
}

type resetReq struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type profileReq struct {
	Name *string `json:"name"`
}

type passwordReq struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,password"`
}

type sessionResp struct {
	SessionID  string    `json:"sessionId"`
	UserID     string    `json:"userId"`
	ExpiresAt  time.Time `json:"expiresAt"`
	LastUsedAt time.Time `json:"lastUsedAt"`
}

type messageResp struct {
	Message string `json:"message"`
}

// ----- helpers -----

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), dbTimeout)
}

func clientOf(c echo.Context) service.Client {
	return service.Client{IP: c.RealIP(), UserAgent: c.Request().UserAgent()}
}

// mustUser returns the caller's id; routes using it sit behind JWTAuth.
func mustUser(c echo.Context) (string, error) {
	id, ok := middleware.CurrentUser(c)
	if !ok {
		return "", apperr.ErrUnauthorized
	}
	return id.UserID, nil
}

// ----- public auth -----

// Register creates the account and returns a token pair immediately.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	res, err := h.Auth.Register(ctx, req.Email, req.Password, req.Name, clientOf(c))
	if err != nil {
		return err
	}
	return response.Created(c, res)
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	res, err := h.Auth.Login(ctx, req.Email, req.Password, clientOf(c))
	if err != nil {
		return err
	}
	return response.OK(c, res)
}

// Refresh is not supported; bearer tokens simply expire.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
		return apperr.Validation("MISSING_REFRESH_TOKEN", "Missing refresh token")
	}
	return apperr.NotImplemented("NOT_IMPLEMENTED", "Refresh tokens not implemented yet")
}

func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotReq
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Reset.Request(ctx, req.Email); err != nil {
		return err
	}
	return response.OK(c, messageResp{Message: forgotPasswordMessage})
}

func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetReq
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("INVALID_JSON", "Invalid request body").With(err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Reset.Reset(ctx, req.Token, req.Password); err != nil {
		return err
	}
	return response.OK(c, messageResp{Message: "Password has been reset successfully"})
}

// ----- authenticated -----

// Logout ends the session named in the body, the one in X-Session-Token, or
// every session of the user when all is set.
func (h *AuthHandler) Logout(c echo.Context) error {
	uid, err := mustUser(c)
	if err != nil {
		return err
	}
	var req logoutReq
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return apperr.Validation("INVALID_JSON", "Invalid request body").With(err)
		}
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	sessionID := req.SessionID
	switch {
	case req.All:
		sessionID = ""
	case sessionID == "":
		raw := c.Request().Header.Get(SessionHeader)
		if raw == "" {
			return apperr.Validation("MISSING_SESSION", "sessionId, all or X-Session-Token is required")
		}
		sess, err := h.Auth.ValidateSession(ctx, uid, raw)
		if err != nil {
			return err
		}
		sessionID = sess.ID
	}
	if err := h.Auth.Logout(ctx, uid, sessionID, clientOf(c)); err != nil {
		return err
	}
	return response.OK(c, messageResp{Message: "Logged out successfully"})
}

// Session validates X-Session-Token for the caller.
func (h *AuthHandler) Session(c echo.Context) error {
	uid, err := mustUser(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	sess, err := h.Auth.ValidateSession(ctx, uid, c.Request().Header.Get(SessionHeader))
	if err != nil {
		return err
	}
	return response.OK(c, sessionResp{SessionID: sess.ID, UserID: sess.UserID, ExpiresAt: sess.ExpiresAt, LastUsedAt: sess.LastUsedAt})
}

func (h *AuthHandler) Profile(c echo.Context) error {
	uid, err := mustUser(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Auth.Profile(ctx, uid)
	if err != nil {
		return err
	}
	return response.OK(c, echo.Map{"user": u.Public()})
}

func (h *AuthHandler) UpdateProfile(c echo.Context) error {
	uid, err := mustUser(c)
	if err != nil {
		return err
	}
	var req profileReq
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("INVALID_JSON", "Invalid request body").With(err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	var u model.User
	if u, err = h.Auth.UpdateProfile(ctx, uid, req.Name, clientOf(c)); err != nil {
		return err
	}
	return response.OK(c, echo.Map{"user": u.Public()})
}

func (h *AuthHandler) ChangePassword(c echo.Context) error {
	uid, err := mustUser(c)
	if err != nil {
		return err
	}
	var req passwordReq
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Auth.ChangePassword(ctx, uid, req.CurrentPassword, req.NewPassword, clientOf(c)); err != nil {
		return err
	}
	return response.OK(c, messageResp{Message: "Password updated successfully"})
}
