package assignments

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/blasbase/blasbase/internal/platform/httpx"
	"github.com/blasbase/blasbase/internal/rbac"
	"github.com/blasbase/blasbase/internal/shared"
)

// Handler exposes the assignment ledger on the admin API.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers assignment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermViewAssignment, shared.PermChangeAssignment))
		r.Get("/", h.list)
		r.Get("/anomalies", h.anomalies)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermChangeAssignment))
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Post("/{id}/end", h.end)
		r.Delete("/{id}", h.delete)
	})
}

type assignmentView struct {
	Assignment
	State State `json:"state"`
}

func (h *Handler) view(a Assignment) assignmentView {
	return assignmentView{Assignment: a, State: a.StateAt(h.service.Today())}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{}
	filter.PersonID, _ = strconv.ParseInt(r.URL.Query().Get("person_id"), 10, 64)
	filter.FunctionID, _ = strconv.ParseInt(r.URL.Query().Get("function_id"), 10, 64)
	items, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list assignments", err)
		return
	}
	out := make([]assignmentView, 0, len(items))
	for _, a := range items {
		out = append(out, h.view(a))
	}
	httpx.Data(w, http.StatusOK, out)
}

func (h *Handler) anomalies(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Anomalies(r.Context())
	if err != nil {
		h.fail(w, "list assignment anomalies", err)
		return
	}
	if items == nil {
		items = []Assignment{}
	}
	httpx.Data(w, http.StatusOK, items)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	a, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get assignment", err)
		return
	}
	httpx.Data(w, http.StatusOK, h.view(a))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.UserIDFromContext(r.Context())
	a, err := h.service.Create(r.Context(), actor, in)
	if err != nil {
		h.fail(w, "create assignment", err)
		return
	}
	httpx.Data(w, http.StatusCreated, h.view(a))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in UpdateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.UserIDFromContext(r.Context())
	a, err := h.service.Update(r.Context(), actor, id, in)
	if err != nil {
		h.fail(w, "update assignment", err)
		return
	}
	httpx.Data(w, http.StatusOK, h.view(a))
}

func (h *Handler) end(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in EndInput
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &in); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	actor, _ := shared.UserIDFromContext(r.Context())
	a, err := h.service.End(r.Context(), actor, id, in)
	if err != nil {
		h.fail(w, "end assignment", err)
		return
	}
	httpx.Data(w, http.StatusOK, h.view(a))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.UserIDFromContext(r.Context())
	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		h.fail(w, "delete assignment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !shared.IsClientError(err) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
