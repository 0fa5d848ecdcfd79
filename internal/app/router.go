package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/blasbase/blasbase/internal/access"
	"github.com/blasbase/blasbase/internal/assignments"
	"github.com/blasbase/blasbase/internal/audit"
	"github.com/blasbase/blasbase/internal/auth"
	"github.com/blasbase/blasbase/internal/functions"
	"github.com/blasbase/blasbase/internal/observability"
	"github.com/blasbase/blasbase/internal/people"
	"github.com/blasbase/blasbase/internal/platform/httpx"
	"github.com/blasbase/blasbase/internal/rbac"
	"github.com/blasbase/blasbase/internal/shared"
	"github.com/blasbase/blasbase/internal/users"
	"github.com/blasbase/blasbase/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	RBACMiddleware rbac.Middleware
	Metrics        *observability.Metrics

	AuthHandler        *auth.Handler
	PersonHandler      *people.Handler
	PeopleAdminHandler *people.AdminHandler
	FunctionsHandler   *functions.Handler
	AssignmentsHandler *assignments.Handler
	AccessHandler      *access.Handler
	UsersHandler       *users.Handler
	PermissionsHandler *rbac.Handler
	AuditHandler       *audit.Handler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi.Router with blasbase defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, "Method Not Allowed", "")
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}
	if params.PersonHandler != nil {
		r.Route("/api/person", func(r chi.Router) {
			r.Use(chimw.StripSlashes)
			params.PersonHandler.MountRoutes(r)
		})
	}

	r.Route("/admin", func(r chi.Router) {
		r.Use(params.RBACMiddleware.RequireStaff())
		if params.FunctionsHandler != nil {
			r.Route("/functions", params.FunctionsHandler.MountRoutes)
		}
		if params.AssignmentsHandler != nil {
			r.Route("/assignments", params.AssignmentsHandler.MountRoutes)
		}
		if params.PeopleAdminHandler != nil {
			r.Route("/people", params.PeopleAdminHandler.MountRoutes)
		}
		if params.AccessHandler != nil {
			r.Route("/access", params.AccessHandler.MountRoutes)
		}
		if params.UsersHandler != nil {
			r.Route("/users", params.UsersHandler.MountRoutes)
		}
		if params.PermissionsHandler != nil {
			r.Route("/permissions", params.PermissionsHandler.MountRoutes)
		}
		if params.AuditHandler != nil {
			r.Route("/audit", params.AuditHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
