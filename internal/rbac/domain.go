package rbac

import (
	"fmt"
	"sort"
	"strings"
)

// Permission represents an atomic capability identified by app label and codename.
type Permission struct {
	ID       int64  `json:"id"`
	AppLabel string `json:"app_label"`
	Codename string `json:"codename"`
	Name     string `json:"name"`
}

// Key renders the permission as "app_label.codename".
func (p Permission) Key() string {
	return p.AppLabel + "." + p.Codename
}

// ParseKey splits "app_label.codename".
func ParseKey(key string) (appLabel, codename string, err error) {
	key = strings.TrimSpace(strings.ToLower(key))
	app, code, ok := strings.Cut(key, ".")
	if !ok || app == "" || code == "" {
		return "", "", fmt.Errorf("rbac: malformed permission key %q", key)
	}
	return app, code, nil
}

// Set is a de-duplicated collection of permissions keyed by Key().
type Set map[string]Permission

// NewSet builds a Set from perms.
func NewSet(perms ...Permission) Set {
	s := make(Set, len(perms))
	for _, p := range perms {
		s.Add(p)
	}
	return s
}

// Add inserts p under its lower-cased key.
func (s Set) Add(p Permission) {
	s[strings.ToLower(p.Key())] = p
}

// Merge adds every permission of other.
func (s Set) Merge(other Set) {
	for k, p := range other {
		s[k] = p
	}
}

// Has reports whether key is present. Keys are compared case-insensitively.
func (s Set) Has(key string) bool {
	_, ok := s[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// HasAny reports whether at least one of keys is present. An empty keys list is satisfied.
func (s Set) HasAny(keys ...string) bool {
	if len(keys) == 0 {
		return true
	}
	for _, k := range keys {
		if s.Has(k) {
			return true
		}
	}
	return false
}

// HasAll reports whether every key is present.
func (s Set) HasAll(keys ...string) bool {
	for _, k := range keys {
		if !s.Has(k) {
			return false
		}
	}
	return true
}

// Keys returns sorted permission keys.
func (s Set) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Permissions returns the members ordered by key.
func (s Set) Permissions() []Permission {
	out := make([]Permission, 0, len(s))
	for _, k := range s.Keys() {
		out = append(out, s[k])
	}
	return out
}

// Len returns the number of permissions.
func (s Set) Len() int {
	return len(s)
}
