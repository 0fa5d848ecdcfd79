package rbac

import (
	"context"
	"net/http"
	"strings"

	"log/slog"

	"github.com/blasbase/blasbase/internal/platform/httpx"
	"github.com/blasbase/blasbase/internal/shared"
)

// PermissionSource resolves what an authenticated account may do.
type PermissionSource interface {
	EffectivePermissions(ctx context.Context, userID int64) (Set, error)
	IsStaff(ctx context.Context, userID int64) (bool, error)
}

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Source PermissionSource
	Logger *slog.Logger
}

// RequireLogin rejects requests without an authenticated session.
func (m Middleware) RequireLogin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := shared.UserIDFromContext(r.Context()); !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireStaff ensures the current account has the staff flag.
func (m Middleware) RequireStaff() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := shared.UserIDFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
				return
			}
			staff, err := m.Source.IsStaff(r.Context(), userID)
			if err != nil {
				m.logError("rbac require staff", err)
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			if !staff {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "staff access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAny ensures the current user has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return m.require("rbac require any", normalized, func(granted Set) bool {
		return granted.HasAny(normalized...)
	})
}

// RequireAll ensures the current user has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return m.require("rbac require all", normalized, func(granted Set) bool {
		return granted.HasAll(normalized...)
	})
}

func (m Middleware) require(op string, normalized []string, allowed func(Set) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			userID, ok := shared.UserIDFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
				return
			}
			granted, err := m.Source.EffectivePermissions(r.Context(), userID)
			if err != nil {
				m.logError(op, err)
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			if allowed(granted) {
				next.ServeHTTP(w, r)
				return
			}
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing permission")
		})
	}
}

func (m Middleware) logError(op string, err error) {
	if m.Logger != nil {
		m.Logger.Error(op, slog.Any("error", err))
	}
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		if _, ok := unique[p]; ok {
			continue
		}
		unique[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}
