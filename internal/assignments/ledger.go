package assignments

import (
	"sort"

	"github.com/blasbase/blasbase/internal/functions"
	"github.com/blasbase/blasbase/internal/shared"
)

// Ledger is an immutable, chainable view over a set of assignments.
type Ledger struct {
	items []Assignment
	tree  *functions.Tree
}

// NewLedger builds a ledger. The tree supplies the membership and engagement flags.
func NewLedger(items []Assignment, tree *functions.Tree) *Ledger {
	if tree == nil {
		tree = functions.NewTree(nil)
	}
	cp := make([]Assignment, len(items))
	copy(cp, items)
	return &Ledger{items: cp, tree: tree}
}

// All returns the assignments in the ledger's current order.
func (l *Ledger) All() []Assignment {
	out := make([]Assignment, len(l.items))
	copy(out, l.items)
	return out
}

// Len returns the number of assignments.
func (l *Ledger) Len() int {
	return len(l.items)
}

// Tree returns the role tree the ledger was built against.
func (l *Ledger) Tree() *functions.Tree {
	return l.tree
}

func (l *Ledger) filter(keep func(Assignment) bool) *Ledger {
	out := make([]Assignment, 0, len(l.items))
	for _, a := range l.items {
		if keep(a) {
			out = append(out, a)
		}
	}
	return &Ledger{items: out, tree: l.tree}
}

// Sane keeps assignments whose range is not inverted.
func (l *Ledger) Sane() *Ledger {
	return l.filter(Assignment.Sane)
}

// Insane keeps assignments whose start lies after their end.
func (l *Ledger) Insane() *Ledger {
	return l.filter(func(a Assignment) bool { return !a.Sane() })
}

// Defined keeps assignments with at least one date.
func (l *Ledger) Defined() *Ledger {
	return l.filter(Assignment.Defined)
}

// Ongoing keeps dated assignments covering asOf.
func (l *Ledger) Ongoing(asOf shared.Date) *Ledger {
	return l.filter(func(a Assignment) bool {
		return a.Defined() && a.Ongoing(asOf)
	})
}

// Ended keeps assignments that closed before asOf, and undated ones.
func (l *Ledger) Ended(asOf shared.Date) *Ledger {
	return l.filter(func(a Assignment) bool { return a.Ended(asOf) })
}

// Memberships keeps assignments on membership roles ordered by start, unset start last.
func (l *Ledger) Memberships(includeTrial bool) *Ledger {
	return l.flagged(l.tree.IsMembership, includeTrial)
}

// Engagements keeps assignments on engagement roles ordered by start, unset start last.
func (l *Ledger) Engagements(includeTrial bool) *Ledger {
	return l.flagged(l.tree.IsEngagement, includeTrial)
}

func (l *Ledger) flagged(flag func(int64) bool, includeTrial bool) *Ledger {
	out := l.filter(func(a Assignment) bool {
		return flag(a.FunctionID) && (includeTrial || !a.Trial)
	})
	sort.SliceStable(out.items, func(i, j int) bool {
		return startsBefore(out.items[i], out.items[j])
	})
	return out
}

// Active is Memberships().Ongoing(asOf).
func (l *Ledger) Active(asOf shared.Date) *Ledger {
	return l.Memberships(false).Ongoing(asOf)
}

// Oldies is Memberships().Ended(asOf).
func (l *Ledger) Oldies(asOf shared.Date) *Ledger {
	return l.Memberships(false).Ended(asOf)
}

// ForPerson keeps the assignments of one person.
func (l *Ledger) ForPerson(personID int64) *Ledger {
	return l.filter(func(a Assignment) bool { return a.PersonID == personID })
}

// ForFunctions keeps assignments to any of ids.
func (l *Ledger) ForFunctions(ids ...int64) *Ledger {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return l.filter(func(a Assignment) bool {
		_, ok := set[a.FunctionID]
		return ok
	})
}

// People returns the distinct person ids, ascending.
func (l *Ledger) People() []int64 {
	seen := make(map[int64]struct{}, len(l.items))
	out := make([]int64, 0, len(l.items))
	for _, a := range l.items {
		if _, dup := seen[a.PersonID]; dup {
			continue
		}
		seen[a.PersonID] = struct{}{}
		out = append(out, a.PersonID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func startsBefore(a, b Assignment) bool {
	switch {
	case a.Start == nil && b.Start == nil:
		return a.ID < b.ID
	case a.Start == nil:
		return false
	case b.Start == nil:
		return true
	}
	if c := a.Start.Compare(*b.Start); c != 0 {
		return c < 0
	}
	return a.ID < b.ID
}
