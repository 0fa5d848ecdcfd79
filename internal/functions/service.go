package functions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/blasbase/blasbase/internal/rbac"
	"github.com/blasbase/blasbase/internal/shared"
)

// RepositoryPort defines data access for the role tree.
type RepositoryPort interface {
	ListFunctions(ctx context.Context) ([]Function, error)
	GetFunction(ctx context.Context, id int64) (Function, error)
	SubtreeIDs(ctx context.Context, id int64) ([]int64, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// PermissionCatalogue resolves permission ids and keys.
type PermissionCatalogue interface {
	Lookup(ctx context.Context, ids []int64) ([]rbac.Permission, error)
	EnsureKeys(ctx context.Context, keys []string) ([]rbac.Permission, error)
}

// HolderSource lists people holding assignments to any of the given functions, date-unfiltered.
type HolderSource interface {
	HoldersOf(ctx context.Context, functionIDs []int64) ([]Holder, error)
}

// Service handles role tree business logic.
type Service struct {
	repo     RepositoryPort
	perms    PermissionCatalogue
	holders  HolderSource
	audit    shared.Auditor
	logger   *slog.Logger
	validate *validator.Validate
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, perms PermissionCatalogue, holders HolderSource, audit shared.Auditor, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAuditor{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		perms:    perms,
		holders:  holders,
		audit:    audit,
		logger:   logger,
		validate: shared.NewValidator(),
	}
}

// Tree loads a fresh snapshot of the hierarchy.
func (s *Service) Tree(ctx context.Context) (*Tree, error) {
	fns, err := s.repo.ListFunctions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tree: %w", err)
	}
	return NewTree(fns), nil
}

// ListFunctions returns all functions in display order.
func (s *Service) ListFunctions(ctx context.Context) ([]Function, error) {
	tree, err := s.Tree(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Function, 0, tree.Len())
	tree.Walk(func(f Function, _ int) {
		out = append(out, f)
	})
	return out, nil
}

// GetFunction fetches a function by ID.
func (s *Service) GetFunction(ctx context.Context, id int64) (Function, error) {
	return s.repo.GetFunction(ctx, id)
}

// CreateFunction adds a node under in.ParentID, or a root when nil.
func (s *Service) CreateFunction(ctx context.Context, actorID int64, in CreateInput) (Function, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if verr := shared.ValidateStruct(s.validate, in); !verr.Empty() {
		return Function{}, verr
	}

	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if in.ParentID != nil {
			if _, err := tx.LockFunction(ctx, *in.ParentID); err != nil {
				return parentError(err)
			}
		}
		newID, err := tx.InsertFunction(ctx, Function{
			ParentID:    in.ParentID,
			Name:        in.Name,
			Description: in.Description,
			Membership:  in.Membership,
			Engagement:  in.Engagement,
		})
		if err != nil {
			return err
		}
		id = newID
		return nil
	})
	if err != nil {
		return Function{}, err
	}
	s.record(ctx, actorID, "function.create", id, map[string]any{"name": in.Name, "parent_id": in.ParentID})
	return s.repo.GetFunction(ctx, id)
}

// UpdateFunction edits name, description and flags.
func (s *Service) UpdateFunction(ctx context.Context, actorID, id int64, in UpdateInput) (Function, error) {
	if in.Name != nil {
		trimmed := strings.TrimSpace(*in.Name)
		if trimmed == "" {
			return Function{}, shared.NewValidationError("name", "is required")
		}
		in.Name = &trimmed
	}
	if verr := shared.ValidateStruct(s.validate, in); !verr.Empty() {
		return Function{}, verr
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockFunction(ctx, id)
		if err != nil {
			return err
		}
		if in.Name != nil {
			current.Name = *in.Name
		}
		if in.Description != nil {
			current.Description = strings.TrimSpace(*in.Description)
		}
		if in.Membership != nil {
			current.Membership = *in.Membership
		}
		if in.Engagement != nil {
			current.Engagement = *in.Engagement
		}
		return tx.UpdateFunction(ctx, current)
	})
	if err != nil {
		return Function{}, err
	}
	s.record(ctx, actorID, "function.update", id, nil)
	return s.repo.GetFunction(ctx, id)
}

// MoveFunction re-parents id. Moving a function under itself or a descendant is rejected.
func (s *Service) MoveFunction(ctx context.Context, actorID, id int64, in MoveInput) (Function, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockFunction(ctx, id)
		if err != nil {
			return err
		}
		if sameParent(current.ParentID, in.ParentID) {
			return nil
		}
		// Walk up from the new parent; meeting id means a cycle.
		seen := make(map[int64]struct{})
		for next := in.ParentID; next != nil; {
			if *next == id {
				return shared.NewValidationError("parent_id", "cannot move a function under itself or its descendants")
			}
			if _, loop := seen[*next]; loop {
				return fmt.Errorf("function %d: ancestry loop: %w", *next, shared.ErrConflict)
			}
			seen[*next] = struct{}{}
			ancestor, err := tx.LockFunction(ctx, *next)
			if err != nil {
				return parentError(err)
			}
			next = ancestor.ParentID
		}
		return tx.MoveFunction(ctx, id, in.ParentID)
	})
	if err != nil {
		return Function{}, err
	}
	s.record(ctx, actorID, "function.move", id, map[string]any{"parent_id": in.ParentID})
	return s.repo.GetFunction(ctx, id)
}

// DeleteFunction removes a leaf function that nobody has ever been assigned to.
func (s *Service) DeleteFunction(ctx context.Context, actorID, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockFunction(ctx, id); err != nil {
			return err
		}
		children, err := tx.CountChildren(ctx, id)
		if err != nil {
			return err
		}
		if children > 0 {
			return fmt.Errorf("function %d has %d children: %w", id, children, shared.ErrConflict)
		}
		held, err := tx.CountAssignments(ctx, id)
		if err != nil {
			return err
		}
		if held > 0 {
			return fmt.Errorf("function %d has %d assignments: %w", id, held, shared.ErrConflict)
		}
		return tx.DeleteFunction(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actorID, "function.delete", id, nil)
	return nil
}

// SetPermissions replaces the permissions granted directly on id.
func (s *Service) SetPermissions(ctx context.Context, actorID, id int64, permissionIDs []int64) (Function, error) {
	perms, err := s.perms.Lookup(ctx, permissionIDs)
	if err != nil {
		return Function{}, err
	}
	ids := make([]int64, 0, len(perms))
	for _, p := range perms {
		ids = append(ids, p.ID)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockFunction(ctx, id); err != nil {
			return err
		}
		return tx.ReplacePermissions(ctx, id, ids)
	})
	if err != nil {
		return Function{}, err
	}
	s.record(ctx, actorID, "function.permissions", id, map[string]any{"permission_ids": ids})
	return s.repo.GetFunction(ctx, id)
}

// InheritedPermissions returns the union of permissions on id and all its ancestors.
func (s *Service) InheritedPermissions(ctx context.Context, id int64) (rbac.Set, error) {
	tree, err := s.Tree(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := tree.Get(id); !ok {
		return nil, shared.ErrNotFound
	}
	return tree.InheritedPermissions(id), nil
}

// DescendantPeople lists everyone who holds or has held a role in id's subtree.
func (s *Service) DescendantPeople(ctx context.Context, id int64) ([]Holder, error) {
	ids, err := s.repo.SubtreeIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.holders.HoldersOf(ctx, ids)
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "function",
		EntityID: shared.EntityID(id),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit function change", slog.String("action", action), slog.Any("error", err))
	}
}

func parentError(err error) error {
	if shared.IsNotFound(err) {
		return shared.NewValidationError("parent_id", "does not exist")
	}
	return err
}

func sameParent(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
