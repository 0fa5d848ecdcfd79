package rbac_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blasbase/blasbase/internal/rbac"
	"github.com/blasbase/blasbase/internal/shared"
)

type stubSource struct {
	perms map[int64]rbac.Set
	staff map[int64]bool
	err   error
}

func (s *stubSource) EffectivePermissions(ctx context.Context, userID int64) (rbac.Set, error) {
	if s.err != nil {
		return nil, s.err
	}
	if set, ok := s.perms[userID]; ok {
		return set, nil
	}
	return rbac.NewSet(), nil
}

func (s *stubSource) IsStaff(ctx context.Context, userID int64) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.staff[userID], nil
}

func requestAs(t *testing.T, userID string) *http.Request {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := shared.NewSessionManager(client, "test_session", time.Hour, false)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sessions.Load(context.Background(), req)
	require.NoError(t, err)
	if userID != "" {
		sess.SetUser(userID)
	}
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func TestRequireAny(t *testing.T) {
	view := rbac.Permission{AppLabel: "blasbase", Codename: "view_person"}
	source := &stubSource{perms: map[int64]rbac.Set{7: rbac.NewSet(view)}}
	mw := rbac.Middleware{Source: source}

	tests := []struct {
		name   string
		user   string
		perms  []string
		status int
	}{
		{"anonymous", "", []string{"blasbase.view_person"}, http.StatusUnauthorized},
		{"granted", "7", []string{"blasbase.view_person", "blasbase.add_person"}, http.StatusNoContent},
		{"missing", "7", []string{"blasbase.add_person"}, http.StatusForbidden},
		{"no requirement", "", nil, http.StatusNoContent},
		{"garbage user id", "abc", []string{"blasbase.view_person"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := httptest.NewRecorder()
			mw.RequireAny(tt.perms...)(okHandler).ServeHTTP(res, requestAs(t, tt.user))
			assert.Equal(t, tt.status, res.Code)
		})
	}
}

func TestRequireAll(t *testing.T) {
	view := rbac.Permission{AppLabel: "blasbase", Codename: "view_person"}
	change := rbac.Permission{AppLabel: "blasbase", Codename: "change_person"}
	source := &stubSource{perms: map[int64]rbac.Set{7: rbac.NewSet(view)}}
	mw := rbac.Middleware{Source: source}

	res := httptest.NewRecorder()
	mw.RequireAll("blasbase.view_person", "blasbase.change_person")(okHandler).ServeHTTP(res, requestAs(t, "7"))
	assert.Equal(t, http.StatusForbidden, res.Code)

	source.perms[7].Add(change)
	res = httptest.NewRecorder()
	mw.RequireAll("blasbase.view_person", "blasbase.change_person")(okHandler).ServeHTTP(res, requestAs(t, "7"))
	assert.Equal(t, http.StatusNoContent, res.Code)
}

func TestRequireSourceError(t *testing.T) {
	mw := rbac.Middleware{Source: &stubSource{err: errors.New("boom")}}

	res := httptest.NewRecorder()
	mw.RequireAny("blasbase.view_person")(okHandler).ServeHTTP(res, requestAs(t, "7"))
	assert.Equal(t, http.StatusInternalServerError, res.Code)

	res = httptest.NewRecorder()
	mw.RequireStaff()(okHandler).ServeHTTP(res, requestAs(t, "7"))
	assert.Equal(t, http.StatusInternalServerError, res.Code)
}

func TestRequireStaff(t *testing.T) {
	mw := rbac.Middleware{Source: &stubSource{staff: map[int64]bool{1: true}}}

	res := httptest.NewRecorder()
	mw.RequireStaff()(okHandler).ServeHTTP(res, requestAs(t, "1"))
	assert.Equal(t, http.StatusNoContent, res.Code)

	res = httptest.NewRecorder()
	mw.RequireStaff()(okHandler).ServeHTTP(res, requestAs(t, "2"))
	assert.Equal(t, http.StatusForbidden, res.Code)
}
