package audit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/blasbase/blasbase/internal/platform/httpx"
	"github.com/blasbase/blasbase/internal/rbac"
	"github.com/blasbase/blasbase/internal/shared"
)

const (
	historyRateLimit  = 30
	historyRateWindow = time.Minute
)

// TimelineService is the contract the handler depends on.
type TimelineService interface {
	Timeline(ctx context.Context, filters TimelineFilters) (Result, error)
	History(ctx context.Context, entity, entityID string) ([]TimelineRow, error)
}

// Handler serves the audit timeline endpoints.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
	loc     *time.Location
	rbac    rbac.Middleware
}

// NewHandler builds the audit handler. Dates without a time are read in loc.
func NewHandler(logger *slog.Logger, service TimelineService, loc *time.Location, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Handler{logger: logger, service: service, loc: loc, rbac: rbac}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.rbac.RequireAny(shared.PermViewLogEntry))
	r.Get("/", h.handleTimeline)
	r.With(httprate.Limit(historyRateLimit, historyRateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "history rate limit exceeded")
		}),
	)).Get("/{entity}/{entityID}", h.handleHistory)
}

func rateLimitKey(r *http.Request) (string, error) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		if user := strings.TrimSpace(sess.User()); user != "" {
			return "user:" + user, nil
		}
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.fail(w, "audit timeline failed", err)
		return
	}
	httpx.Page(w, result.Rows, result.Paging)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.History(r.Context(), chi.URLParam(r, "entity"), chi.URLParam(r, "entityID"))
	if err != nil {
		h.fail(w, "audit history failed", err)
		return
	}
	httpx.Data(w, http.StatusOK, rows)
}

func (h *Handler) parseFilters(r *http.Request) (TimelineFilters, error) {
	q := r.URL.Query()
	f := TimelineFilters{
		Actor:    q.Get("actor"),
		Entity:   q.Get("entity"),
		EntityID: q.Get("entity_id"),
		Action:   q.Get("action"),
	}
	verr := &shared.ValidationError{}
	var err error
	if f.From, err = h.parseTime(q.Get("from"), false); err != nil {
		verr.Add("from", "must be a date or RFC 3339 timestamp")
	}
	if f.To, err = h.parseTime(q.Get("to"), true); err != nil {
		verr.Add("to", "must be a date or RFC 3339 timestamp")
	}
	if raw := q.Get("page"); raw != "" {
		if f.Page, err = strconv.Atoi(raw); err != nil || f.Page < 1 {
			verr.Add("page", "must be a positive integer")
		}
	}
	if raw := q.Get("per_page"); raw != "" {
		if f.PageSize, err = strconv.Atoi(raw); err != nil || f.PageSize < 1 {
			verr.Add("per_page", "must be a positive integer")
		}
	}
	return f, verr.OrNil()
}

// parseTime accepts YYYY-MM-DD or RFC 3339. A date used as an upper bound
// covers the whole day.
func (h *Handler) parseTime(raw string, upper bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, raw, h.loc); err == nil {
		if upper {
			t = t.AddDate(0, 0, 1)
		}
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if !shared.IsClientError(err) {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
