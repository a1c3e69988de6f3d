package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aeroer-Live/Note.Lab/internal/auth"
	"github.com/Aeroer-Live/Note.Lab/internal/config"
	"github.com/Aeroer-Live/Note.Lab/internal/handler"
	"github.com/Aeroer-Live/Note.Lab/internal/kv"
	"github.com/Aeroer-Live/Note.Lab/internal/middleware"
	"github.com/Aeroer-Live/Note.Lab/internal/model"
	"github.com/Aeroer-Live/Note.Lab/internal/queue"
	"github.com/Aeroer-Live/Note.Lab/internal/ratelimit"
	"github.com/Aeroer-Live/Note.Lab/internal/response"
	"github.com/Aeroer-Live/Note.Lab/internal/service"
)

type app struct {
	e     *echo.Echo
	users *memUsers
	mail  *outbox
	notes *statsNotes
}

func defaultLimits() config.RateLimitConfig {
	return config.RateLimitConfig{Enabled: true, Limit: 100, Window: 15 * time.Minute, AuthLimit: 100, AuthWindow: 15 * time.Minute}
}

func newApp(t *testing.T, limits config.RateLimitConfig, cache *middleware.ResponseCache) *app {
	t.Helper()
	a := &app{
		users: &memUsers{byID: map[string]model.User{}},
		mail:  &outbox{},
		notes: &statsNotes{},
	}
	sessions := &memSessions{rows: map[string]model.Session{}}
	hasher, err := auth.NewHasher(auth.HasherSHA256, 4)
	require.NoError(t, err)
	tokens, err := auth.NewTokenService("router-test-secret", 7*24*time.Hour)
	require.NoError(t, err)

	authSvc, err := service.NewAuthService(a.users, sessions, hasher, tokens, a.mail, nil, nil, 7*24*time.Hour)
	require.NoError(t, err)
	resetSvc := service.NewPasswordResetService(a.users, sessions, kv.NewMemory(), hasher, a.mail, nil, nil, "http://notes.test", time.Hour)

	var inv handler.CacheInvalidator
	if cache != nil {
		inv = cache
	}
	a.e = New(Handlers{
		Auth:       handler.NewAuthHandler(authSvc, resetSvc),
		Notes:      handler.NewNotesHandler(a.notes, nil, inv, nil),
		Categories: handler.NewCategoriesHandler(nil, a.notes, nil, inv, nil),
	}, Guard{
		Tokens:  tokens,
		Users:   a.users,
		Limiter: ratelimit.NewMemory(),
		Limits:  limits,
		Cache:   cache,
	}, false)
	return a
}

func (a *app) call(method, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func bearer(token string) map[string]string {
	return map[string]string{echo.HeaderAuthorization: "Bearer " + token}
}

func data(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env response.Success
	env.Data = dst
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	require.True(t, env.Success, rec.Body.String())
}

func failure(t *testing.T, rec *httptest.ResponseRecorder) response.Failure {
	t.Helper()
	var f response.Failure
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &f), rec.Body.String())
	require.True(t, f.Error)
	return f
}

func (a *app) register(t *testing.T, email, password string) service.AuthResult {
	t.Helper()
	rec := a.call(http.MethodPost, "/api/auth/register", map[string]string{"email": email, "password": password}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res service.AuthResult
	data(t, rec, &res)
	return res
}

func TestHealth(t *testing.T) {
	a := newApp(t, defaultLimits(), nil)
	rec := a.call(http.MethodGet, "/api/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, handler.Version, body["version"])
}

func TestUnknownRoute(t *testing.T) {
	a := newApp(t, defaultLimits(), nil)
	rec := a.call(http.MethodGet, "/api/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", failure(t, rec).Code)
}

func TestRegisterThenDuplicate(t *testing.T) {
	a := newApp(t, defaultLimits(), nil)

	res := a.register(t, "alice@example.com", "Passw0rd")
	assert.NotEmpty(t, res.Token)
	assert.NotEmpty(t, res.SessionToken)
	assert.Equal(t, "alice", res.User.Name)

	rec := a.call(http.MethodPost, "/api/auth/register", map[string]string{"email": "alice@example.com", "password": "Passw0rd"}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "USER_EXISTS", failure(t, rec).Code)
}

func TestRegisterValidation(t *testing.T) {
	a := newApp(t, defaultLimits(), nil)
	for body, code := range map[string]string{
		`{"email":"not-an-email","password":"Passw0rd"}`: "INVALID_EMAIL",
		`{"email":"a@b.co","password":"short1"}`:         "INVALID_PASSWORD",
		`{"email":"a@b.co","password":"lettersonly"}`:    "INVALID_PASSWORD",
		`{"password":"Passw0rd"}`:                        "MISSING_FIELDS",
	} {
		var raw json.RawMessage = []byte(body)
		rec := a.call(http.MethodPost, "/api/auth/register", raw, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, code, failure(t, rec).Code, body)
	}
}

func TestLoginRateLimit(t *testing.T) {
	limits := defaultLimits()
	limits.AuthLimit = 2
	a := newApp(t, limits, nil)
	// Registration counts against its own path, not /login.
	a.register(t, "bob@example.com", "Passw0rd")

	wrong := map[string]string{"email": "bob@example.com", "password": "Wrong0000"}
	for i := 0; i < 2; i++ {
		rec := a.call(http.MethodPost, "/api/auth/login", wrong, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "INVALID_CREDENTIALS", failure(t, rec).Code)
	}

	rec := a.call(http.MethodPost, "/api/auth/login", wrong, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	f := failure(t, rec)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", f.Code)
	assert.NotNil(t, f.ResetTime)

	right := map[string]string{"email": "bob@example.com", "password": "Passw0rd"}
	assert.Equal(t, http.StatusTooManyRequests, a.call(http.MethodPost, "/api/auth/login", right, nil).Code,
		"credentials do not matter once the window is spent")
}

func TestForgotAndResetPassword(t *testing.T) {
	a := newApp(t, defaultLimits(), nil)
	a.register(t, "carol@example.com", "Passw0rd")

	rec := a.call(http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "carol@example.com"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var known, unknown struct {
		Message string `json:"message"`
	}
	data(t, rec, &known)

	ev := a.mail.last()
	require.Equal(t, queue.KindPasswordReset, ev.Kind)
	u, err := url.Parse(ev.ResetURL)
	require.NoError(t, err)
	assert.Equal(t, "/forgot-password.html", u.Path)
	token := u.Query().Get("token")
	require.NotEmpty(t, token)

	rec = a.call(http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "nobody@example.com"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data(t, rec, &unknown)
	assert.Equal(t, known, unknown, "unknown emails get the same answer")

	rec = a.call(http.MethodPost, "/api/auth/reset-password", map[string]string{"token": token, "password": "N3wPassword"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.call(http.MethodPost, "/api/auth/login", map[string]string{"email": "carol@example.com", "password": "N3wPassword"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = a.call(http.MethodPost, "/api/auth/login", map[string]string{"email": "carol@example.com", "password": "Passw0rd"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.call(http.MethodPost, "/api/auth/reset-password", map[string]string{"token": token, "password": "An0therOne"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_TOKEN", failure(t, rec).Code, "tokens are single use")
}

func TestProtectedRoutesNeedBearer(t *testing.T) {
	a := newApp(t, defaultLimits(), nil)
	for _, r := range []struct{ method, path string }{
		{http.MethodGet, "/api/notes"},
		{http.MethodGet, "/api/notes/stats"},
		{http.MethodGet, "/api/categories"},
		{http.MethodGet, "/api/user/profile"},
		{http.MethodPost, "/api/auth/logout"},
	} {
		rec := a.call(r.method, r.path, nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, r.path)
		assert.Equal(t, "UNAUTHORIZED", failure(t, rec).Code, r.path)
	}

	rec := a.call(http.MethodGet, "/api/notes/stats", nil, bearer("not.a.jwt"))
	assert.Equal(t, "INVALID_TOKEN", failure(t, rec).Code)

	// A valid token for a user that no longer exists.
	tokens, _ := auth.NewTokenService("router-test-secret", time.Hour)
	ghost, _, err := tokens.Issue(auth.Identity{UserID: uuid.NewString()})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, a.call(http.MethodGet, "/api/notes/stats", nil, bearer(ghost)).Code)
}

func TestNotesCarryGeneralRateLimit(t *testing.T) {
	limits := defaultLimits()
	limits.Limit = 1
	a := newApp(t, limits, nil)
	res := a.register(t, "dave@example.com", "Passw0rd")

	rec := a.call(http.MethodGet, "/api/notes/stats", nil, bearer(res.Token))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusTooManyRequests, a.call(http.MethodGet, "/api/notes/stats", nil, bearer(res.Token)).Code)
}

func TestProfileAndSessions(t *testing.T) {
	a := newApp(t, defaultLimits(), nil)
	res := a.register(t, "erin@example.com", "Passw0rd")
	withSession := bearer(res.Token)
	withSession[handler.SessionHeader] = res.SessionToken

	rec := a.call(http.MethodGet, "/api/auth/session", nil, withSession)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sess struct {
		SessionID string `json:"sessionId"`
	}
	data(t, rec, &sess)
	assert.Equal(t, res.SessionID, sess.SessionID)

	rec = a.call(http.MethodGet, "/api/auth/session", nil, bearer(res.Token))
	assert.Equal(t, "MISSING_SESSION", failure(t, rec).Code)

	rec = a.call(http.MethodPut, "/api/user/profile", map[string]string{"name": "Erin E."}, bearer(res.Token))
	require.Equal(t, http.StatusOK, rec.Code)
	var prof struct {
		User model.PublicUser `json:"user"`
	}
	data(t, rec, &prof)
	assert.Equal(t, "Erin E.", prof.User.Name)

	rec = a.call(http.MethodGet, "/api/user/profile", nil, bearer(res.Token))
	data(t, rec, &prof)
	assert.Equal(t, "erin@example.com", prof.User.Email)

	rec = a.call(http.MethodPost, "/api/auth/logout", nil, withSession)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = a.call(http.MethodGet, "/api/auth/session", nil, withSession)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_SESSION", failure(t, rec).Code)
}

func TestChangePassword(t *testing.T) {
	a := newApp(t, defaultLimits(), nil)
	res := a.register(t, "finn@example.com", "Passw0rd")

	rec := a.call(http.MethodPut, "/api/user/password", map[string]string{"currentPassword": "nope", "newPassword": "N3wPassword"}, bearer(res.Token))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.call(http.MethodPut, "/api/user/password", map[string]string{"currentPassword": "Passw0rd", "newPassword": "weak"}, bearer(res.Token))
	assert.Equal(t, "INVALID_PASSWORD", failure(t, rec).Code)

	rec = a.call(http.MethodPut, "/api/user/password", map[string]string{"currentPassword": "Passw0rd", "newPassword": "N3wPassword"}, bearer(res.Token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, queue.KindPasswordChanged, a.mail.last().Kind)

	rec = a.call(http.MethodPost, "/api/auth/login", map[string]string{"email": "finn@example.com", "password": "N3wPassword"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRefreshIsNotImplemented(t *testing.T) {
	a := newApp(t, defaultLimits(), nil)
	rec := a.call(http.MethodPost, "/api/auth/refresh", map[string]string{}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MISSING_REFRESH_TOKEN", failure(t, rec).Code)

	rec = a.call(http.MethodPost, "/api/auth/refresh", map[string]string{"refresh_token": "abc"}, nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.Equal(t, "NOT_IMPLEMENTED", failure(t, rec).Code)
}

func TestStatsAreCachedUntilAWrite(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	cache := middleware.NewResponseCache(config.CacheConfig{
		Enabled: true, Methods: map[string]bool{http.MethodGet: true}, TTL: time.Minute, KeyStrategy: "route_query", Prefix: "cache",
	}, rdb, nil)
	require.NotNil(t, cache)

	a := newApp(t, defaultLimits(), cache)
	res := a.register(t, "gail@example.com", "Passw0rd")
	hdr := bearer(res.Token)

	first := a.call(http.MethodGet, "/api/notes/stats", nil, hdr)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	second := a.call(http.MethodGet, "/api/notes/stats", nil, hdr)
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, 1, a.notes.calls())
	assert.NotEmpty(t, second.Header().Get("X-RateLimit-Remaining"), "rate limit headers are set before the cache answers")

	rec := a.call(http.MethodPost, "/api/notes/bulk-update", map[string]any{
		"noteIds": []string{uuid.NewString()}, "updates": map[string]any{"starred": true},
	}, hdr)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	third := a.call(http.MethodGet, "/api/notes/stats", nil, hdr)
	assert.Equal(t, "MISS", third.Header().Get("X-Cache"))
	assert.Equal(t, 2, a.notes.calls())
}
