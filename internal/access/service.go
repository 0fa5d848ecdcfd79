package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/blasbase/blasbase/internal/assignments"
	"github.com/blasbase/blasbase/internal/people"
	"github.com/blasbase/blasbase/internal/rbac"
	"github.com/blasbase/blasbase/internal/shared"
	"github.com/blasbase/blasbase/internal/users"
)

// UserSource loads accounts.
type UserSource interface {
	GetUser(ctx context.Context, id int64) (users.User, error)
}

// PersonSource loads people and account links.
type PersonSource interface {
	Get(ctx context.Context, id int64) (people.Person, error)
	ForUser(ctx context.Context, userID int64) (people.Person, error)
}

// LedgerSource loads assignment snapshots.
type LedgerSource interface {
	LedgerFor(ctx context.Context, filter assignments.ListFilter) (*assignments.Ledger, error)
	Today() shared.Date
}

// Catalogue lists every known permission.
type Catalogue interface {
	All(ctx context.Context) (rbac.Set, error)
}

// Service merges direct account grants with assignment-derived permissions.
type Service struct {
	users     UserSource
	people    PersonSource
	ledger    LedgerSource
	catalogue Catalogue
	logger    *slog.Logger
}

// NewService builds Service instance.
func NewService(users UserSource, people PersonSource, ledger LedgerSource, catalogue Catalogue, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{users: users, people: people, ledger: ledger, catalogue: catalogue, logger: logger}
}

var _ rbac.PermissionSource = (*Service)(nil)

// EffectivePermissions returns everything userID may do right now.
//
// Inactive or unknown accounts get nothing and superusers get the whole
// catalogue. Everyone else gets their direct grants plus whatever the linked
// person's ongoing assignments grant today.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) (rbac.Set, error) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if shared.IsNotFound(err) {
			return rbac.NewSet(), nil
		}
		return nil, fmt.Errorf("effective permissions: %w", err)
	}
	if !u.IsActive {
		return rbac.NewSet(), nil
	}
	if u.IsSuperuser {
		return s.catalogue.All(ctx)
	}

	perms := u.PermissionSet()
	p, err := s.people.ForUser(ctx, userID)
	if err != nil {
		if shared.IsNotFound(err) {
			return perms, nil
		}
		return nil, fmt.Errorf("effective permissions: %w", err)
	}
	derived, err := s.resolve(ctx, p.ID, s.ledger.Today())
	if err != nil {
		return nil, err
	}
	perms.Merge(derived)
	return perms, nil
}

// IsStaff reports whether userID may use the admin API.
func (s *Service) IsStaff(ctx context.Context, userID int64) (bool, error) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if shared.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return u.IsActive && u.IsStaff, nil
}

// PersonPermissions resolves what personID's assignments grant at asOf, today when nil.
func (s *Service) PersonPermissions(ctx context.Context, personID int64, asOf *shared.Date) (rbac.Set, shared.Date, error) {
	day := s.ledger.Today()
	if asOf != nil {
		day = *asOf
	}
	if _, err := s.people.Get(ctx, personID); err != nil {
		return nil, day, err
	}
	perms, err := s.resolve(ctx, personID, day)
	return perms, day, err
}

// LinkedName returns the person linked to userID, or nil.
func (s *Service) LinkedName(ctx context.Context, userID int64) (users.Namer, error) {
	p, err := s.people.ForUser(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

func (s *Service) resolve(ctx context.Context, personID int64, asOf shared.Date) (rbac.Set, error) {
	ledger, err := s.ledger.LedgerFor(ctx, assignments.ListFilter{PersonID: personID})
	if err != nil {
		return nil, fmt.Errorf("resolve permissions: %w", err)
	}
	return ResolvePermissions(ledger.Tree(), ledger.All(), asOf), nil
}
