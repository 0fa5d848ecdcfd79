package functions

import (
	"github.com/blasbase/blasbase/internal/rbac"
)

// Function is a node in the role tree.
type Function struct {
	ID          int64             `json:"id"`
	ParentID    *int64            `json:"parent_id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Membership  bool              `json:"membership"`
	Engagement  bool              `json:"engagement"`
	Path        string            `json:"path"`
	Permissions []rbac.Permission `json:"permissions"`
}

// IsRoot reports whether the function has no parent.
func (f Function) IsRoot() bool {
	return f.ParentID == nil
}

// PermissionSet returns the directly granted permissions.
func (f Function) PermissionSet() rbac.Set {
	return rbac.NewSet(f.Permissions...)
}

// CreateInput carries the fields of a new function.
type CreateInput struct {
	ParentID    *int64 `json:"parent_id"`
	Name        string `json:"name" validate:"required,max=256"`
	Description string `json:"description"`
	Membership  bool   `json:"membership"`
	Engagement  bool   `json:"engagement"`
}

// UpdateInput carries editable fields. A nil pointer leaves the field unchanged.
type UpdateInput struct {
	Name        *string `json:"name" validate:"omitempty,max=256"`
	Description *string `json:"description"`
	Membership  *bool   `json:"membership"`
	Engagement  *bool   `json:"engagement"`
}

// MoveInput re-parents a function. A nil ParentID makes it a root.
type MoveInput struct {
	ParentID *int64 `json:"parent_id"`
}

// Holder is a person who holds, or has held, an assignment in a subtree.
type Holder struct {
	PersonID int64  `json:"person_id"`
	FullName string `json:"full_name"`
}

// SeedNode describes a subtree in a seed file.
type SeedNode struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Membership  bool       `yaml:"membership"`
	Engagement  bool       `yaml:"engagement"`
	Permissions []string   `yaml:"permissions"`
	Children    []SeedNode `yaml:"children"`
}
