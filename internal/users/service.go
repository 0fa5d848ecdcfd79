package users

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/blasbase/blasbase/internal/rbac"
	"github.com/blasbase/blasbase/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	CreateUser(ctx context.Context, u User) (int64, error)
	UpdateUser(ctx context.Context, u User) error
	SetPasswordHash(ctx context.Context, id int64, hash string) error
	DeleteUser(ctx context.Context, id int64) error
	ReplacePermissions(ctx context.Context, id int64, permissionIDs []int64) error
}

// PermissionCatalogue resolves permission ids.
type PermissionCatalogue interface {
	Lookup(ctx context.Context, ids []int64) ([]rbac.Permission, error)
}

// Service handles user business logic.
type Service struct {
	repo     RepositoryPort
	perms    PermissionCatalogue
	audit    shared.Auditor
	logger   *slog.Logger
	validate *validator.Validate
	cost     int
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, perms PermissionCatalogue, audit shared.Auditor, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAuditor{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		perms:    perms,
		audit:    audit,
		logger:   logger,
		validate: shared.NewValidator(),
		cost:     bcrypt.DefaultCost,
	}
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// GetUser returns one user with its direct permissions.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// CreateUser registers an account. Superusers are always staff.
func (s *Service) CreateUser(ctx context.Context, actorID int64, in CreateInput) (User, error) {
	in.Email = NormalizeEmail(in.Email)
	if verr := shared.ValidateStruct(s.validate, in); !verr.Empty() {
		return User{}, verr
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	u := User{
		Email:        in.Email,
		PasswordHash: string(hash),
		IsActive:     true,
		IsStaff:      in.IsStaff || in.IsSuperuser,
		IsSuperuser:  in.IsSuperuser,
		ExtraName:    in.ExtraName,
	}
	id, err := s.repo.CreateUser(ctx, u)
	if err != nil {
		return User{}, err
	}
	s.record(ctx, actorID, "user.create", id, map[string]any{"email": u.Email, "superuser": u.IsSuperuser})
	return s.repo.GetUser(ctx, id)
}

// UpdateUser changes the set fields of in.
func (s *Service) UpdateUser(ctx context.Context, actorID, id int64, in UpdateInput) (User, error) {
	if verr := shared.ValidateStruct(s.validate, in); !verr.Empty() {
		return User{}, verr
	}
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	in.apply(&u)
	if u.IsSuperuser {
		u.IsStaff = true
	}
	if err := s.repo.UpdateUser(ctx, u); err != nil {
		return User{}, err
	}
	s.record(ctx, actorID, "user.update", id, nil)
	return s.repo.GetUser(ctx, id)
}

// SetPassword replaces the password of a user.
func (s *Service) SetPassword(ctx context.Context, actorID, id int64, in PasswordInput) error {
	if verr := shared.ValidateStruct(s.validate, in); !verr.Empty() {
		return verr
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.SetPasswordHash(ctx, id, string(hash)); err != nil {
		return err
	}
	s.record(ctx, actorID, "user.set_password", id, nil)
	return nil
}

// DeleteUser removes an account.
func (s *Service) DeleteUser(ctx context.Context, actorID, id int64) error {
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "user.delete", id, nil)
	return nil
}

// SetPermissions replaces the direct permissions of a user.
func (s *Service) SetPermissions(ctx context.Context, actorID, id int64, permissionIDs []int64) (User, error) {
	if _, err := s.perms.Lookup(ctx, permissionIDs); err != nil {
		return User{}, err
	}
	if err := s.repo.ReplacePermissions(ctx, id, permissionIDs); err != nil {
		return User{}, err
	}
	s.record(ctx, actorID, "user.set_permissions", id, map[string]any{"permission_ids": permissionIDs})
	return s.repo.GetUser(ctx, id)
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "user",
		EntityID: shared.EntityID(id),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit user change", slog.String("action", action), slog.Any("error", err))
	}
}
