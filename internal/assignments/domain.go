package assignments

import (
	"github.com/blasbase/blasbase/internal/shared"
)

// Assignment links a person to a function for an optional date interval.
// Start and End are inclusive. Status is always derived, never stored.
type Assignment struct {
	ID         int64        `json:"id"`
	PersonID   int64        `json:"person_id"`
	FunctionID int64        `json:"function_id"`
	Start      *shared.Date `json:"start"`
	End        *shared.Date `json:"end"`
	Trial      bool         `json:"trial"`
}

// Defined reports whether at least one of the dates is set.
func (a Assignment) Defined() bool {
	return a.Start != nil || a.End != nil
}

// Sane reports whether the range is not inverted.
func (a Assignment) Sane() bool {
	return a.Start == nil || a.End == nil || !a.Start.After(*a.End)
}

// Ongoing reports whether asOf falls within the range.
// Inverted ranges are never ongoing; a range with no dates at all is.
func (a Assignment) Ongoing(asOf shared.Date) bool {
	if !a.Sane() {
		return false
	}
	if a.Start != nil && a.Start.After(asOf) {
		return false
	}
	if a.End != nil && a.End.Before(asOf) {
		return false
	}
	return true
}

// Ended reports whether the range closed before asOf. Undated assignments count as ended.
func (a Assignment) Ended(asOf shared.Date) bool {
	if !a.Defined() {
		return true
	}
	return a.End != nil && a.End.Before(asOf)
}

// State is the derived status of an assignment at a date.
type State struct {
	Defined bool `json:"defined"`
	Sane    bool `json:"sane"`
	Ongoing bool `json:"ongoing"`
	Ended   bool `json:"ended"`
}

// StateAt evaluates every predicate at asOf.
func (a Assignment) StateAt(asOf shared.Date) State {
	return State{
		Defined: a.Defined(),
		Sane:    a.Sane(),
		Ongoing: a.Ongoing(asOf),
		Ended:   a.Ended(asOf),
	}
}

// CreateInput carries the fields of a new assignment.
type CreateInput struct {
	PersonID   int64        `json:"person_id" validate:"required,gt=0"`
	FunctionID int64        `json:"function_id" validate:"required,gt=0"`
	Start      *shared.Date `json:"start"`
	End        *shared.Date `json:"end"`
	Trial      bool         `json:"trial"`
}

// UpdateInput replaces the mutable fields of an assignment.
type UpdateInput struct {
	FunctionID int64        `json:"function_id" validate:"required,gt=0"`
	Start      *shared.Date `json:"start"`
	End        *shared.Date `json:"end"`
	Trial      bool         `json:"trial"`
}

// EndInput closes an assignment. A nil End means today.
type EndInput struct {
	End *shared.Date `json:"end"`
}

// ListFilter narrows repository listings.
type ListFilter struct {
	PersonID   int64
	FunctionID int64
}
