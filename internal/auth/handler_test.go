package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/blasbase/blasbase/internal/app"
	"github.com/blasbase/blasbase/internal/auth"
	"github.com/blasbase/blasbase/internal/shared"
	"github.com/blasbase/blasbase/internal/users"
	_ "github.com/blasbase/blasbase/testing"
)

type stubRepo struct {
	user     *users.User
	logins   int
	sessions map[string]int64
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (users.User, error) {
	if s.user == nil || s.user.Email != email {
		return users.User{}, shared.ErrNotFound
	}
	return *s.user, nil
}

func (s *stubRepo) FindByID(ctx context.Context, id int64) (users.User, error) {
	if s.user == nil || s.user.ID != id {
		return users.User{}, shared.ErrNotFound
	}
	return *s.user, nil
}

func (s *stubRepo) RecordLogin(ctx context.Context, id int64) error {
	s.logins++
	return nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	s.sessions[id] = userID
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

func newStubRepo(t *testing.T, active bool) *stubRepo {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.MinCost)
	require.NoError(t, err)
	return &stubRepo{
		user:     &users.User{ID: 1, Email: "user@test.local", PasswordHash: string(hashed), IsActive: active},
		sessions: make(map[string]int64),
	}
}

func newRouter(t *testing.T, repo auth.Repository) (http.Handler, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	sessionManager := shared.NewSessionManager(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test_session", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	handler := auth.NewHandler(nil, auth.NewService(repo), sessionManager, csrfManager)

	r := chi.NewRouter()
	r.Use(app.SessionMiddleware(sessionManager, nil))
	r.Use(app.CSRFMiddleware(csrfManager, nil))
	r.Route("/auth", handler.MountRoutes)
	return r, mr
}

func send(h http.Handler, method, path, body string, cookie *http.Cookie, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(shared.CSRFHeader, token)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	return res
}

func sessionCookie(t *testing.T, res *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range res.Result().Cookies() {
		if c.Name == "test_session" {
			return c
		}
	}
	t.Fatalf("session cookie not set")
	return nil
}

func decodeInfo(t *testing.T, res *httptest.ResponseRecorder) auth.SessionInfo {
	t.Helper()
	var body struct {
		Data auth.SessionInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	return body.Data
}

// anonymous opens a session and returns its cookie and CSRF token.
func anonymous(t *testing.T, h http.Handler) (*http.Cookie, string) {
	t.Helper()
	res := send(h, http.MethodGet, "/auth/session", "", nil, "")
	require.Equal(t, http.StatusOK, res.Code)
	return sessionCookie(t, res), decodeInfo(t, res).CSRFToken
}

func TestSessionIssuesCSRFToken(t *testing.T) {
	h, _ := newRouter(t, newStubRepo(t, true))

	res := send(h, http.MethodGet, "/auth/session", "", nil, "")
	require.Equal(t, http.StatusOK, res.Code)
	info := decodeInfo(t, res)
	assert.False(t, info.Authenticated)
	assert.NotEmpty(t, info.CSRFToken)

	again := send(h, http.MethodGet, "/auth/session", "", sessionCookie(t, res), "")
	assert.Equal(t, info.CSRFToken, decodeInfo(t, again).CSRFToken)
}

func TestLoginRequiresCSRFToken(t *testing.T) {
	repo := newStubRepo(t, true)
	h, _ := newRouter(t, repo)
	cookie, _ := anonymous(t, h)

	res := send(h, http.MethodPost, "/auth/login", `{"email":"user@test.local","password":"correctpass"}`, cookie, "")
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = send(h, http.MethodPost, "/auth/login", `{"email":"user@test.local","password":"correctpass"}`, cookie, "forged")
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Zero(t, repo.logins)
}

func TestLoginRotatesSession(t *testing.T) {
	repo := newStubRepo(t, true)
	h, mr := newRouter(t, repo)
	cookie, token := anonymous(t, h)

	res := send(h, http.MethodPost, "/auth/login", `{"email":"user@TEST.local","password":"correctpass"}`, cookie, token)
	require.Equal(t, http.StatusOK, res.Code)
	info := decodeInfo(t, res)
	assert.True(t, info.Authenticated)
	assert.Equal(t, int64(1), info.UserID)
	assert.NotEqual(t, token, info.CSRFToken)

	rotated := sessionCookie(t, res)
	assert.NotEqual(t, cookie.Value, rotated.Value)
	assert.False(t, mr.Exists("blasbase:session:"+cookie.Value))
	assert.True(t, mr.Exists("blasbase:session:"+rotated.Value))
	assert.Contains(t, repo.sessions, rotated.Value)
	assert.Equal(t, 1, repo.logins)

	me := decodeInfo(t, send(h, http.MethodGet, "/auth/session", "", rotated, ""))
	assert.True(t, me.Authenticated)
	assert.Equal(t, "user@test.local", me.Email)
	assert.Equal(t, info.CSRFToken, me.CSRFToken)
}

func TestLoginInvalidCredentials(t *testing.T) {
	h, _ := newRouter(t, newStubRepo(t, true))
	cookie, token := anonymous(t, h)

	res := send(h, http.MethodPost, "/auth/login", `{"email":"user@test.local","password":"wrongpass"}`, cookie, token)
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = send(h, http.MethodPost, "/auth/login", `{"email":"nobody@test.local","password":"correctpass"}`, cookie, token)
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = send(h, http.MethodPost, "/auth/login", `{"email":"not-an-email","password":"x"}`, cookie, token)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestLoginInactiveAccount(t *testing.T) {
	repo := newStubRepo(t, false)
	h, _ := newRouter(t, repo)
	cookie, token := anonymous(t, h)

	res := send(h, http.MethodPost, "/auth/login", `{"email":"user@test.local","password":"correctpass"}`, cookie, token)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Zero(t, repo.logins)
}

func TestLogout(t *testing.T) {
	repo := newStubRepo(t, true)
	h, mr := newRouter(t, repo)
	cookie, token := anonymous(t, h)

	login := send(h, http.MethodPost, "/auth/login", `{"email":"user@test.local","password":"correctpass"}`, cookie, token)
	require.Equal(t, http.StatusOK, login.Code)
	session := sessionCookie(t, login)

	res := send(h, http.MethodPost, "/auth/logout", "", session, decodeInfo(t, login).CSRFToken)
	assert.Equal(t, http.StatusNoContent, res.Code)
	assert.False(t, mr.Exists("blasbase:session:"+session.Value))
	assert.NotContains(t, repo.sessions, session.Value)
}
