package users

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/blasbase/blasbase/internal/platform/httpx"
	"github.com/blasbase/blasbase/internal/rbac"
	"github.com/blasbase/blasbase/internal/shared"
)

// NameSource finds the person linked to an account. It returns nil when there is none.
type NameSource interface {
	LinkedName(ctx context.Context, userID int64) (Namer, error)
}

// Handler manages user management endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	names   NameSource
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, names NameSource, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, names: names, rbac: rbac}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermViewUser, shared.PermChangeUser))
		r.Get("/", h.listUsers)
		r.Get("/{id}", h.getUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermChangeUser))
		r.Post("/", h.createUser)
		r.Patch("/{id}", h.updateUser)
		r.Put("/{id}/password", h.setPassword)
		r.Put("/{id}/permissions", h.setPermissions)
		r.Delete("/{id}", h.deleteUser)
	})
}

type userView struct {
	User
	FullName  string `json:"full_name"`
	ShortName string `json:"short_name"`
}

func (h *Handler) view(ctx context.Context, u User) userView {
	var linked Namer
	if h.names != nil {
		n, err := h.names.LinkedName(ctx, u.ID)
		if err != nil {
			h.logger.Warn("linked person name", slog.Int64("user_id", u.ID), slog.Any("error", err))
		} else {
			linked = n
		}
	}
	return userView{User: u, FullName: u.FullName(linked), ShortName: u.ShortName(linked)}
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.fail(w, "list users failed", err)
		return
	}
	out := make([]userView, 0, len(users))
	for _, u := range users {
		out = append(out, h.view(r.Context(), u))
	}
	httpx.Data(w, http.StatusOK, out)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	u, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		h.fail(w, "get user failed", err)
		return
	}
	httpx.Data(w, http.StatusOK, h.view(r.Context(), u))
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.UserIDFromContext(r.Context())
	u, err := h.service.CreateUser(r.Context(), actor, in)
	if err != nil {
		h.fail(w, "create user failed", err)
		return
	}
	httpx.Data(w, http.StatusCreated, h.view(r.Context(), u))
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
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
	u, err := h.service.UpdateUser(r.Context(), actor, id, in)
	if err != nil {
		h.fail(w, "update user failed", err)
		return
	}
	httpx.Data(w, http.StatusOK, h.view(r.Context(), u))
}

func (h *Handler) setPassword(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in PasswordInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.UserIDFromContext(r.Context())
	if err := h.service.SetPassword(r.Context(), actor, id, in); err != nil {
		h.fail(w, "set password failed", err)
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
	u, err := h.service.SetPermissions(r.Context(), actor, id, req.PermissionIDs)
	if err != nil {
		h.fail(w, "set user permissions failed", err)
		return
	}
	httpx.Data(w, http.StatusOK, h.view(r.Context(), u))
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.UserIDFromContext(r.Context())
	if actor == id {
		httpx.RespondError(w, shared.NewValidationError("id", "cannot delete your own account"))
		return
	}
	if err := h.service.DeleteUser(r.Context(), actor, id); err != nil {
		h.fail(w, "delete user failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if !shared.IsClientError(err) {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
