package rbac

import (
	"context"
	"fmt"
	"strings"
)

// RepositoryPort defines data access for the permission catalogue.
type RepositoryPort interface {
	ListPermissions(ctx context.Context) ([]Permission, error)
	PermissionsByIDs(ctx context.Context, ids []int64) ([]Permission, error)
	EnsurePermission(ctx context.Context, appLabel, codename, name string) (Permission, error)
}

// Service exposes the permission catalogue.
type Service struct {
	repo RepositoryPort
}

// NewService constructs a Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListPermissions returns every known permission.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// All returns every known permission as a Set.
func (s *Service) All(ctx context.Context) (Set, error) {
	perms, err := s.repo.ListPermissions(ctx)
	if err != nil {
		return nil, err
	}
	return NewSet(perms...), nil
}

// Lookup resolves ids to permissions. Unknown ids are an error.
func (s *Service) Lookup(ctx context.Context, ids []int64) ([]Permission, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	perms, err := s.repo.PermissionsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	found := make(map[int64]struct{}, len(perms))
	for _, p := range perms {
		found[p.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			return nil, fmt.Errorf("rbac: permission %d: %w", id, ErrUnknownPermission)
		}
	}
	return perms, nil
}

// EnsureKeys makes sure every "app_label.codename" key exists and returns the stored rows.
func (s *Service) EnsureKeys(ctx context.Context, keys []string) ([]Permission, error) {
	out := make([]Permission, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		app, code, err := ParseKey(key)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[app+"."+code]; dup {
			continue
		}
		seen[app+"."+code] = struct{}{}
		p, err := s.repo.EnsurePermission(ctx, app, code, defaultName(code))
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func defaultName(codename string) string {
	words := strings.Split(codename, "_")
	if len(words) == 0 {
		return codename
	}
	return "Can " + strings.Join(words, " ")
}
