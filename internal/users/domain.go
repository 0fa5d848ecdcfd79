package users

import (
	"strings"
	"time"

	"github.com/blasbase/blasbase/internal/rbac"
)

// User represents a login account.
type User struct {
	ID           int64             `json:"id"`
	Email        string            `json:"email"`
	PasswordHash string            `json:"-"`
	IsActive     bool              `json:"is_active"`
	IsStaff      bool              `json:"is_staff"`
	IsSuperuser  bool              `json:"is_superuser"`
	ExtraName    string            `json:"extra_name"`
	LastLogin    *time.Time        `json:"last_login"`
	Permissions  []rbac.Permission `json:"permissions"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Namer is anything with display names, typically the linked person.
type Namer interface {
	FullName() string
	ShortName() string
}

// FullName prefers the linked person, then extra_name, then the email.
func (u User) FullName(linked Namer) string {
	if linked != nil {
		return linked.FullName()
	}
	if u.ExtraName != "" {
		return u.ExtraName
	}
	return u.Email
}

// ShortName follows the same fallbacks as FullName.
func (u User) ShortName(linked Namer) string {
	if linked != nil {
		return linked.ShortName()
	}
	if u.ExtraName != "" {
		return u.ExtraName
	}
	return u.Email
}

// PermissionSet returns the directly granted permissions.
func (u User) PermissionSet() rbac.Set {
	return rbac.NewSet(u.Permissions...)
}

// NormalizeEmail trims the address and lower-cases its domain part.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at] + "@" + strings.ToLower(email[at+1:])
}

// CreateInput carries the fields of a new account.
type CreateInput struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	Password    string `json:"password" validate:"required,min=8,max=128"`
	ExtraName   string `json:"extra_name" validate:"max=64"`
	IsStaff     bool   `json:"is_staff"`
	IsSuperuser bool   `json:"is_superuser"`
}

// UpdateInput changes account flags. Nil fields are left untouched.
type UpdateInput struct {
	Email       *string `json:"email" validate:"omitempty,email,max=254"`
	ExtraName   *string `json:"extra_name" validate:"omitempty,max=64"`
	IsActive    *bool   `json:"is_active"`
	IsStaff     *bool   `json:"is_staff"`
	IsSuperuser *bool   `json:"is_superuser"`
}

// PasswordInput replaces an account password.
type PasswordInput struct {
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// apply copies the set fields of in onto u.
func (in UpdateInput) apply(u *User) {
	if in.Email != nil {
		u.Email = NormalizeEmail(*in.Email)
	}
	if in.ExtraName != nil {
		u.ExtraName = strings.TrimSpace(*in.ExtraName)
	}
	if in.IsActive != nil {
		u.IsActive = *in.IsActive
	}
	if in.IsStaff != nil {
		u.IsStaff = *in.IsStaff
	}
	if in.IsSuperuser != nil {
		u.IsSuperuser = *in.IsSuperuser
	}
}
