package people

import (
	"fmt"
	"slices"

	"github.com/blasbase/blasbase/internal/assignments"
	"github.com/blasbase/blasbase/internal/shared"
)

// Category is a membership status class.
type Category string

// Categories of people.
const (
	CategoryMembers Category = "members"
	CategoryActive  Category = "active"
	CategoryOldies  Category = "oldies"
	CategoryOthers  Category = "others"
)

// Categories lists every category in display order.
func Categories() []Category {
	return []Category{CategoryMembers, CategoryActive, CategoryOldies, CategoryOthers}
}

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	switch c := Category(s); c {
	case CategoryMembers, CategoryActive, CategoryOldies, CategoryOthers:
		return c, nil
	}
	return "", fmt.Errorf("category %q: %w", s, shared.ErrValidation)
}

// Classification partitions people by membership status. Each list is ascending and de-duplicated.
type Classification struct {
	Members []int64 `json:"members"`
	Active  []int64 `json:"active"`
	Oldies  []int64 `json:"oldies"`
	Others  []int64 `json:"others"`
}

// Of returns the people in c.
func (c Classification) Of(cat Category) []int64 {
	switch cat {
	case CategoryMembers:
		return c.Members
	case CategoryActive:
		return c.Active
	case CategoryOldies:
		return c.Oldies
	case CategoryOthers:
		return c.Others
	}
	return nil
}

// Classify sorts everyone in population into members, active, oldies and others.
//
// Members have held any membership role, trial included. Active people hold a
// non-trial membership ongoing at asOf; oldies hold an ended one and are not
// active. Others never held a non-trial membership, so trial-only people are
// both members and others.
func Classify(population []int64, ledger *assignments.Ledger, asOf shared.Date) Classification {
	members := toSet(ledger.Memberships(true).People())
	full := toSet(ledger.Memberships(false).People())
	active := toSet(ledger.Active(asOf).People())
	oldies := toSet(ledger.Oldies(asOf).People())

	c := Classification{Members: []int64{}, Active: []int64{}, Oldies: []int64{}, Others: []int64{}}
	seen := make(map[int64]struct{}, len(population))
	for _, id := range sorted(population) {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := full[id]; !ok {
			c.Others = append(c.Others, id)
		}
		if _, ok := members[id]; !ok {
			continue
		}
		c.Members = append(c.Members, id)
		if _, ok := active[id]; ok {
			c.Active = append(c.Active, id)
			continue
		}
		if _, ok := oldies[id]; ok {
			c.Oldies = append(c.Oldies, id)
		}
	}
	return c
}

// CategoriesOf lists every category personID falls in.
func (c Classification) CategoriesOf(personID int64) []Category {
	var out []Category
	for _, cat := range Categories() {
		for _, id := range c.Of(cat) {
			if id == personID {
				out = append(out, cat)
				break
			}
		}
	}
	return out
}

func toSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func sorted(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return out
}
