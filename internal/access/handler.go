package access

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/blasbase/blasbase/internal/platform/httpx"
	"github.com/blasbase/blasbase/internal/rbac"
	"github.com/blasbase/blasbase/internal/shared"
)

// Handler exposes resolved permissions on the admin API.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers access routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireLogin()).Get("/me", h.me)
	r.With(h.rbac.RequireAll(shared.PermViewUser, shared.PermViewPermission)).Get("/users/{id}", h.user)
	r.With(h.rbac.RequireAll(shared.PermViewPerson, shared.PermViewPermission)).Get("/people/{id}", h.person)
}

type permissionsView struct {
	AsOf        *shared.Date      `json:"as_of,omitempty"`
	Keys        []string          `json:"keys"`
	Permissions []rbac.Permission `json:"permissions"`
}

func newPermissionsView(set rbac.Set, asOf *shared.Date) permissionsView {
	return permissionsView{AsOf: asOf, Keys: set.Keys(), Permissions: set.Permissions()}
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.UserIDFromContext(r.Context())
	h.writeUser(w, r, id)
}

func (h *Handler) user(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.writeUser(w, r, id)
}

func (h *Handler) writeUser(w http.ResponseWriter, r *http.Request, id int64) {
	set, err := h.service.EffectivePermissions(r.Context(), id)
	if err != nil {
		h.logger.Error("effective permissions", slog.Int64("user_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.Data(w, http.StatusOK, newPermissionsView(set, nil))
}

func (h *Handler) person(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var asOf *shared.Date
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		d, err := shared.ParseDate(raw)
		if err != nil {
			httpx.RespondError(w, shared.NewValidationError("as_of", "must be a YYYY-MM-DD date"))
			return
		}
		asOf = &d
	}
	set, day, err := h.service.PersonPermissions(r.Context(), id, asOf)
	if err != nil {
		if !shared.IsClientError(err) {
			h.logger.Error("person permissions", slog.Int64("person_id", id), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.Data(w, http.StatusOK, newPermissionsView(set, &day))
}
