package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blasbase/blasbase/internal/rbac"
	"github.com/blasbase/blasbase/internal/shared"
)

type stubEnqueuer struct {
	asOf  *shared.Date
	calls int
	err   error
}

func (s *stubEnqueuer) EnqueueLedgerAudit(ctx context.Context, asOf *shared.Date) (*asynq.TaskInfo, error) {
	s.calls++
	s.asOf = asOf
	if s.err != nil {
		return nil, s.err
	}
	return &asynq.TaskInfo{ID: "task-1", Queue: QueueDefault}, nil
}

type grantSource struct {
	keys []string
}

func (g grantSource) EffectivePermissions(ctx context.Context, userID int64) (rbac.Set, error) {
	set := rbac.NewSet()
	for _, k := range g.keys {
		app, code, err := rbac.ParseKey(k)
		if err != nil {
			return nil, err
		}
		set.Add(rbac.Permission{AppLabel: app, Codename: code})
	}
	return set, nil
}

func (g grantSource) IsStaff(ctx context.Context, userID int64) (bool, error) { return true, nil }

func newJobsRouter(t *testing.T, client Enqueuer, keys ...string) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	sessions := shared.NewSessionManager(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test_session", time.Hour, false)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sess, err := sessions.Load(req.Context(), req)
			require.NoError(t, err)
			sess.SetUser("1")
			next.ServeHTTP(w, req.WithContext(shared.ContextWithSession(req.Context(), sess)))
		})
	})
	r.Route("/admin/jobs", NewHandler(nil, client, nil, rbac.Middleware{Source: grantSource{keys: keys}}).MountRoutes)
	return r
}

func TestJobsHealthWithoutInspector(t *testing.T) {
	h := newJobsRouter(t, &stubEnqueuer{})
	res := httptest.NewRecorder()
	h.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/admin/jobs/health", nil))
	require.Equal(t, http.StatusOK, res.Code)

	var body struct {
		Data queueHealth `json:"data"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, QueueDefault, body.Data.Queue)
}

func TestJobsEnqueueLedgerAudit(t *testing.T) {
	client := &stubEnqueuer{}
	h := newJobsRouter(t, client, shared.PermChangeAssignment)

	res := httptest.NewRecorder()
	h.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/admin/jobs/ledger-audit", strings.NewReader(`{"as_of":"2021-06-01"}`)))
	require.Equal(t, http.StatusAccepted, res.Code)
	require.NotNil(t, client.asOf)
	assert.Equal(t, "2021-06-01", client.asOf.String())

	var body struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, "task-1", body.Data["id"])

	res = httptest.NewRecorder()
	h.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/admin/jobs/ledger-audit", nil))
	require.Equal(t, http.StatusAccepted, res.Code)
	assert.Nil(t, client.asOf)
	assert.Equal(t, 2, client.calls)
}

func TestJobsEnqueueRequiresPermission(t *testing.T) {
	client := &stubEnqueuer{}
	h := newJobsRouter(t, client, shared.PermViewAssignment)

	res := httptest.NewRecorder()
	h.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/admin/jobs/ledger-audit", nil))
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Zero(t, client.calls)
}

func TestJobsEnqueueFailures(t *testing.T) {
	h := newJobsRouter(t, &stubEnqueuer{err: errors.New("redis down")}, shared.PermChangeAssignment)
	res := httptest.NewRecorder()
	h.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/admin/jobs/ledger-audit", nil))
	assert.Equal(t, http.StatusInternalServerError, res.Code)

	h = newJobsRouter(t, &stubEnqueuer{}, shared.PermChangeAssignment)
	res = httptest.NewRecorder()
	h.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/admin/jobs/ledger-audit", strings.NewReader(`{"as_of":"June"}`)))
	assert.Equal(t, http.StatusBadRequest, res.Code)
}
