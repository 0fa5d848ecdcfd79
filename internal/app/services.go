package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blasbase/blasbase/internal/access"
	"github.com/blasbase/blasbase/internal/assignments"
	"github.com/blasbase/blasbase/internal/audit"
	"github.com/blasbase/blasbase/internal/auth"
	"github.com/blasbase/blasbase/internal/functions"
	"github.com/blasbase/blasbase/internal/people"
	"github.com/blasbase/blasbase/internal/rbac"
	"github.com/blasbase/blasbase/internal/shared"
	"github.com/blasbase/blasbase/internal/users"
)

// Services bundles the domain services shared by the binaries.
type Services struct {
	Permissions *rbac.Service
	Functions   *functions.Service
	Assignments *assignments.Service
	People      *people.Service
	Users       *users.Service
	Access      *access.Service
	Auth        *auth.Service
	Audit       *audit.Service
}

// NewServices wires every domain service against pool. loc is the zone
// "today" is evaluated in.
func NewServices(pool *pgxpool.Pool, loc *time.Location, logger *slog.Logger) *Services {
	auditLogger := shared.NewAuditLogger(pool)
	peopleRepo := people.NewRepository(pool)

	perms := rbac.NewService(rbac.NewRepository(pool))
	fns := functions.NewService(functions.NewRepository(pool), perms, peopleRepo, auditLogger, logger)
	ledger := assignments.NewService(assignments.NewRepository(pool), fns, auditLogger, logger,
		assignments.WithLocation(loc))
	ppl := people.NewService(peopleRepo, ledger, auditLogger, logger)
	accounts := users.NewService(users.NewRepository(pool), perms, auditLogger, logger)

	return &Services{
		Permissions: perms,
		Functions:   fns,
		Assignments: ledger,
		People:      ppl,
		Users:       accounts,
		Access:      access.NewService(accounts, ppl, ledger, perms, logger),
		Auth:        auth.NewService(auth.NewRepository(pool)),
		Audit:       audit.NewService(audit.NewRepository(pool)),
	}
}

// EnsureCatalogue registers every permission the application checks.
func (s *Services) EnsureCatalogue(ctx context.Context) error {
	if _, err := s.Permissions.EnsureKeys(ctx, shared.CoreScopes()); err != nil {
		return fmt.Errorf("ensure permission catalogue: %w", err)
	}
	return nil
}

// RBAC returns authorization middleware backed by the access service.
func (s *Services) RBAC(logger *slog.Logger) rbac.Middleware {
	return rbac.Middleware{Source: s.Access, Logger: logger}
}
