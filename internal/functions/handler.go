package functions

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/blasbase/blasbase/internal/platform/httpx"
	"github.com/blasbase/blasbase/internal/rbac"
	"github.com/blasbase/blasbase/internal/shared"
)

// Handler exposes the role tree on the admin API.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers function routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermViewFunction, shared.PermChangeFunction))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Get("/{id}/inherited-permissions", h.inherited)
		r.Get("/{id}/people", h.people)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermChangeFunction))
		r.Post("/", h.create)
		r.Patch("/{id}", h.update)
		r.Post("/{id}/move", h.move)
		r.Delete("/{id}", h.delete)
		r.Put("/{id}/permissions", h.setPermissions)
	})
}

type treeNode struct {
	Function
	Depth int `json:"depth"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tree, err := h.service.Tree(r.Context())
	if err != nil {
		h.fail(w, "list functions", err)
		return
	}
	nodes := make([]treeNode, 0, tree.Len())
	tree.Walk(func(f Function, depth int) {
		nodes = append(nodes, treeNode{Function: f, Depth: depth})
	})
	httpx.Data(w, http.StatusOK, nodes)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	f, err := h.service.GetFunction(r.Context(), id)
	if err != nil {
		h.fail(w, "get function", err)
		return
	}
	httpx.Data(w, http.StatusOK, f)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.UserIDFromContext(r.Context())
	f, err := h.service.CreateFunction(r.Context(), actor, in)
	if err != nil {
		h.fail(w, "create function", err)
		return
	}
	httpx.Data(w, http.StatusCreated, f)
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
	f, err := h.service.UpdateFunction(r.Context(), actor, id, in)
	if err != nil {
		h.fail(w, "update function", err)
		return
	}
	httpx.Data(w, http.StatusOK, f)
}

func (h *Handler) move(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in MoveInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.UserIDFromContext(r.Context())
	f, err := h.service.MoveFunction(r.Context(), actor, id, in)
	if err != nil {
		h.fail(w, "move function", err)
		return
	}
	httpx.Data(w, http.StatusOK, f)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.UserIDFromContext(r.Context())
	if err := h.service.DeleteFunction(r.Context(), actor, id); err != nil {
		h.fail(w, "delete function", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type permissionsRequest struct {
	PermissionIDs []int64 `json:"permission_ids"`
}

func (h *Handler) setPermissions(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req permissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.UserIDFromContext(r.Context())
	f, err := h.service.SetPermissions(r.Context(), actor, id, req.PermissionIDs)
	if err != nil {
		h.fail(w, "set function permissions", err)
		return
	}
	httpx.Data(w, http.StatusOK, f)
}

func (h *Handler) inherited(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	set, err := h.service.InheritedPermissions(r.Context(), id)
	if err != nil {
		h.fail(w, "inherited permissions", err)
		return
	}
	httpx.Data(w, http.StatusOK, set.Permissions())
}

func (h *Handler) people(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	holders, err := h.service.DescendantPeople(r.Context(), id)
	if err != nil {
		h.fail(w, "descendant people", err)
		return
	}
	if holders == nil {
		holders = []Holder{}
	}
	httpx.Data(w, http.StatusOK, holders)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !shared.IsClientError(err) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
