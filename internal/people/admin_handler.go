package people

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/singleflight"

	"github.com/blasbase/blasbase/internal/platform/httpx"
	"github.com/blasbase/blasbase/internal/rbac"
	"github.com/blasbase/blasbase/internal/shared"
)

// AdminHandler exposes membership classification on the admin API.
type AdminHandler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
	group   singleflight.Group
}

// NewAdminHandler builds AdminHandler instance.
func NewAdminHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers admin people routes.
func (h *AdminHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermViewPerson))
		r.Get("/classification", h.summary)
		r.Get("/classification/{category}", h.category)
		r.Get("/special-diets", h.specialDiets)
		r.Get("/{id}/status", h.status)
	})
	r.With(h.rbac.RequireAll(shared.PermChangePerson, shared.PermChangeUser)).Put("/{id}/user", h.linkUser)
}

type classificationSummary struct {
	AsOf   shared.Date    `json:"as_of"`
	Counts map[string]int `json:"counts"`
	Classification
}

func (h *AdminHandler) summary(w http.ResponseWriter, r *http.Request) {
	asOf, err := asOfParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.coalesce(r.Context(), "summary|"+dateKey(asOf), func(ctx context.Context) (any, error) {
		c, day, err := h.service.Classification(ctx, asOf)
		if err != nil {
			return nil, err
		}
		return classificationSummary{
			AsOf: day,
			Counts: map[string]int{
				string(CategoryMembers): len(c.Members),
				string(CategoryActive):  len(c.Active),
				string(CategoryOldies):  len(c.Oldies),
				string(CategoryOthers):  len(c.Others),
			},
			Classification: c,
		}, nil
	})
	if err != nil {
		h.fail(w, "classification summary", err)
		return
	}
	httpx.Data(w, http.StatusOK, res)
}

func (h *AdminHandler) category(w http.ResponseWriter, r *http.Request) {
	cat, err := ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	asOf, err := asOfParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.coalesce(r.Context(), string(cat)+"|"+dateKey(asOf), func(ctx context.Context) (any, error) {
		people, err := h.service.Classify(ctx, cat, asOf)
		if err != nil {
			return nil, err
		}
		return views(people), nil
	})
	if err != nil {
		h.fail(w, "classify people", err)
		return
	}
	httpx.Data(w, http.StatusOK, res)
}

func (h *AdminHandler) status(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	asOf, err := asOfParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	st, err := h.service.Status(r.Context(), id, asOf)
	if err != nil {
		h.fail(w, "person status", err)
		return
	}
	httpx.Data(w, http.StatusOK, st)
}

func (h *AdminHandler) specialDiets(w http.ResponseWriter, r *http.Request) {
	diets, err := h.service.SpecialDiets(r.Context())
	if err != nil {
		h.fail(w, "list special diets", err)
		return
	}
	httpx.Data(w, http.StatusOK, diets)
}

type linkRequest struct {
	UserID *int64 `json:"user_id"`
}

func (h *AdminHandler) linkUser(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req linkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.UserIDFromContext(r.Context())
	p, err := h.service.LinkUser(r.Context(), actor, id, req.UserID)
	if err != nil {
		h.fail(w, "link user", err)
		return
	}
	httpx.Data(w, http.StatusOK, NewPersonView(p))
}

// coalesce shares one in-flight evaluation between identical concurrent requests.
func (h *AdminHandler) coalesce(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	ch := h.group.DoChan(key, func() (any, error) {
		// Detached so one caller's cancellation does not fail the others.
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

func (h *AdminHandler) fail(w http.ResponseWriter, op string, err error) {
	if !shared.IsClientError(err) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func asOfParam(r *http.Request) (*shared.Date, error) {
	raw := r.URL.Query().Get("as_of")
	if raw == "" {
		return nil, nil
	}
	d, err := shared.ParseDate(raw)
	if err != nil {
		return nil, shared.NewValidationError("as_of", "must be a YYYY-MM-DD date")
	}
	return &d, nil
}

func dateKey(d *shared.Date) string {
	if d == nil {
		return "today"
	}
	return d.String()
}
