package access

import (
	"github.com/blasbase/blasbase/internal/assignments"
	"github.com/blasbase/blasbase/internal/functions"
	"github.com/blasbase/blasbase/internal/rbac"
	"github.com/blasbase/blasbase/internal/shared"
)

// ResolvePermissions unions the inherited permissions of every assignment
// ongoing at asOf. Memberships, engagements and unflagged roles all count.
// Assignments to functions missing from tree grant nothing.
func ResolvePermissions(tree *functions.Tree, held []assignments.Assignment, asOf shared.Date) rbac.Set {
	out := rbac.NewSet()
	if tree == nil {
		return out
	}
	seen := make(map[int64]struct{}, len(held))
	for _, a := range held {
		if !a.Ongoing(asOf) {
			continue
		}
		if _, dup := seen[a.FunctionID]; dup {
			continue
		}
		seen[a.FunctionID] = struct{}{}
		if _, ok := tree.Get(a.FunctionID); !ok {
			continue
		}
		out.Merge(tree.InheritedPermissions(a.FunctionID))
	}
	return out
}
