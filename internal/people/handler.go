package people

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/blasbase/blasbase/internal/platform/httpx"
	"github.com/blasbase/blasbase/internal/rbac"
	"github.com/blasbase/blasbase/internal/shared"
)

// Handler serves the person record API.
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

// MountRoutes registers person routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(shared.PermViewPerson)).Get("/", h.list)
	r.With(h.rbac.RequireAny(shared.PermAddPerson)).Post("/", h.create)
	r.With(h.rbac.RequireAny(shared.PermViewPerson)).Get("/{id}", h.get)
	r.With(h.rbac.RequireAny(shared.PermChangePerson)).Put("/{id}", h.replace)
	r.With(h.rbac.RequireAny(shared.PermChangePerson)).Patch("/{id}", h.patch)
	r.With(h.rbac.RequireAny(shared.PermDeletePerson)).Delete("/{id}", h.delete)
}

// PersonView is the wire shape of a person.
type PersonView struct {
	Person
	FullName  string `json:"full_name"`
	ShortName string `json:"short_name"`
}

// NewPersonView decorates p with its display names.
func NewPersonView(p Person) PersonView {
	return PersonView{Person: p, FullName: p.FullName(), ShortName: p.ShortName()}
}

func views(people []Person) []PersonView {
	out := make([]PersonView, 0, len(people))
	for _, p := range people {
		out = append(out, NewPersonView(p))
	}
	return out
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.PageParams(r)
	people, meta, err := h.service.List(r.Context(), ListParams{
		Query:   r.URL.Query().Get("q"),
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		h.fail(w, "list people", err)
		return
	}
	httpx.Page(w, views(people), meta)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get person", err)
		return
	}
	httpx.Data(w, http.StatusOK, NewPersonView(p))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in PersonInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.UserIDFromContext(r.Context())
	p, err := h.service.Create(r.Context(), actor, in)
	if err != nil {
		h.fail(w, "create person", err)
		return
	}
	httpx.Data(w, http.StatusCreated, NewPersonView(p))
}

func (h *Handler) replace(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in PersonInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.save(w, r, id, in)
}

// patch overlays the request body on the stored record.
func (h *Handler) patch(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	current, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get person", err)
		return
	}
	in := current.Input()
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.save(w, r, id, in)
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request, id int64, in PersonInput) {
	actor, _ := shared.UserIDFromContext(r.Context())
	p, err := h.service.Update(r.Context(), actor, id, in)
	if err != nil {
		h.fail(w, "update person", err)
		return
	}
	httpx.Data(w, http.StatusOK, NewPersonView(p))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.UserIDFromContext(r.Context())
	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		h.fail(w, "delete person", err)
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
