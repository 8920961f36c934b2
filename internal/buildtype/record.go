// Package buildtype keeps the per-type bookkeeping of one incremental build
// pass. Every type known to the previous state starts Unmodified; types of
// recompiled units are paired into Modified records, new types become Added
// and vanished ones Removed. Each record knows which indictments its
// transition issues.
package buildtype

import (
	"errors"

	"github.com/mvp-joe/project-lathe/internal/classfile"
	"github.com/mvp-joe/project-lathe/internal/element"
	"github.com/mvp-joe/project-lathe/internal/indictment"
)

var (
	// ErrIndictRemoved is returned when indictments are requested for a
	// removed type. Its dependents are scheduled directly on removal.
	ErrIndictRemoved = errors.New("cannot indict a removed type")

	// ErrIndictUnmodified is returned when indictments are requested for a
	// type carried over unmodified.
	ErrIndictUnmodified = errors.New("cannot indict an unmodified type")

	// ErrIndictScheduled is returned when indictments are requested for a
	// type awaiting recompilation.
	ErrIndictScheduled = errors.New("cannot indict a type before it is recompiled")
)

// State is the variant tag of a Record.
type State uint8

const (
	StateUnmodified State = iota + 1
	StateScheduled
	StateAdded
	StateRemoved
	StateModified
)

func (s State) String() string {
	switch s {
	case StateUnmodified:
		return "unmodified"
	case StateScheduled:
		return "scheduled"
	case StateAdded:
		return "added"
	case StateRemoved:
		return "removed"
	case StateModified:
		return "modified"
	}
	return "unknown"
}

// Record is the bookkeeping of one type during one pass.
type Record interface {
	Type() element.TypeName
	State() State
	// Indictments returns the structural changes this transition issues.
	Indictments() ([]indictment.Indictment, error)
	// HierarchyChanged reports whether the supertype set or class-level
	// modifiers changed.
	HierarchyChanged() bool
}

// Added is a type present only in the new state.
type Added struct {
	New       element.Entry
	Structure *classfile.Type
}

func (r *Added) Type() element.TypeName { return r.New.Type }
func (r *Added) State() State            { return StateAdded }

// Indictments returns a type and a hierarchy indictment: units that named
// the type before it existed, and anything depending on its place in the
// hierarchy, re-evaluate.
func (r *Added) Indictments() ([]indictment.Indictment, error) {
	return []indictment.Indictment{indictment.Type(r.New.Type), indictment.Hierarchy(r.New.Type)}, nil
}

func (r *Added) HierarchyChanged() bool { return true }

// Removed is a type present only in the old state.
type Removed struct {
	Old element.Entry
}

func (r *Removed) Type() element.TypeName { return r.Old.Type }
func (r *Removed) State() State            { return StateRemoved }

func (r *Removed) Indictments() ([]indictment.Indictment, error) {
	return nil, ErrIndictRemoved
}

func (r *Removed) HierarchyChanged() bool { return true }

// Unmodified is a type carried over from the old state without
// recompilation.
type Unmodified struct {
	Old element.Entry
}

func (r *Unmodified) Type() element.TypeName { return r.Old.Type }
func (r *Unmodified) State() State            { return StateUnmodified }

func (r *Unmodified) Indictments() ([]indictment.Indictment, error) {
	return nil, ErrIndictUnmodified
}

func (r *Unmodified) HierarchyChanged() bool { return false }

// Scheduled is a previously known type whose unit is queued for
// recompilation.
type Scheduled struct {
	Old element.Entry
}

func (r *Scheduled) Type() element.TypeName { return r.Old.Type }
func (r *Scheduled) State() State            { return StateScheduled }

func (r *Scheduled) Indictments() ([]indictment.Indictment, error) {
	return nil, ErrIndictScheduled
}

func (r *Scheduled) HierarchyChanged() bool { return false }

// Modified pairs the old and new versions of a recompiled type. Indictments
// and the hierarchy flag are computed once, on first use.
type Modified struct {
	Old, New                   element.Entry
	OldStructure, NewStructure *classfile.Type

	computed    bool
	indictments []indictment.Indictment
	hierarchy   bool
}

func (r *Modified) Type() element.TypeName { return r.New.Type }
func (r *Modified) State() State            { return StateModified }

// Indictments diffs the two structures. Identical fingerprints short-cut to
// no change; a missing old structure indicts the whole type.
func (r *Modified) Indictments() ([]indictment.Indictment, error) {
	r.compute()
	return r.indictments, nil
}

func (r *Modified) HierarchyChanged() bool {
	r.compute()
	return r.hierarchy
}

// Unchanged reports whether the recompiled type is structurally identical.
func (r *Modified) Unchanged() bool {
	r.compute()
	return len(r.indictments) == 0
}

func (r *Modified) compute() {
	if r.computed {
		return
	}
	r.computed = true
	switch {
	case r.Old.HasFingerprint() && r.Old.Fingerprint == r.New.Fingerprint:
	case r.OldStructure == nil || r.NewStructure == nil:
		r.indictments = []indictment.Indictment{indictment.Type(r.New.Type), indictment.Hierarchy(r.New.Type)}
		r.hierarchy = true
	default:
		r.indictments = indictment.Diff(r.OldStructure, r.NewStructure)
		r.hierarchy = indictment.HierarchyChanged(r.OldStructure, r.NewStructure)
	}
}
