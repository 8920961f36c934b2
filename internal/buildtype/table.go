package buildtype

import (
	"io"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/mvp-joe/project-lathe/internal/classfile"
	"github.com/mvp-joe/project-lathe/internal/element"
)

// Table holds the records of one pass keyed by type.
type Table struct {
	records map[element.TypeName]Record
	log     logrus.FieldLogger
}

// Begin starts a pass by marking every previously known type Unmodified.
func Begin(old map[element.TypeName]element.Entry, log logrus.FieldLogger) *Table {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	t := &Table{records: make(map[element.TypeName]Record, len(old)), log: log}
	for name, e := range old {
		t.records[name] = &Unmodified{Old: e}
	}
	return t
}

// Get returns the record of a type.
func (t *Table) Get(name element.TypeName) (Record, bool) {
	r, ok := t.records[name]
	return r, ok
}

// Promote moves an Unmodified type to Scheduled. Promoting a type in any
// other state is a no-op; it reports whether the state changed.
func (t *Table) Promote(name element.TypeName) bool {
	r, ok := t.records[name].(*Unmodified)
	if !ok {
		return false
	}
	t.records[name] = &Scheduled{Old: r.Old}
	t.log.WithFields(logrus.Fields{"type": name, "action": "promote"}).Debug("type scheduled for recompilation")
	return true
}

// Pair records the compiled version of a type. Previously known types
// become Modified; unknown ones become Added. Pairing a removed type
// revives it as Added. oldStructure is the structure recorded by the
// previous state and is ignored when the type was already compiled in this
// pass.
func (t *Table) Pair(entry element.Entry, oldStructure, newStructure *classfile.Type) Record {
	var rec Record
	switch r := t.records[entry.Type].(type) {
	case *Unmodified:
		rec = &Modified{Old: r.Old, New: entry, OldStructure: oldStructure, NewStructure: newStructure}
	case *Scheduled:
		rec = &Modified{Old: r.Old, New: entry, OldStructure: oldStructure, NewStructure: newStructure}
	case *Modified:
		// Compiled again in the same pass; only the newest delta propagates.
		rec = &Modified{Old: r.New, New: entry, OldStructure: r.NewStructure, NewStructure: newStructure}
	case *Added:
		rec = &Modified{Old: r.New, New: entry, OldStructure: r.Structure, NewStructure: newStructure}
	default:
		rec = &Added{New: entry, Structure: newStructure}
	}
	t.records[entry.Type] = rec
	t.log.WithFields(logrus.Fields{"type": entry.Type, "unit": entry.Unit, "action": rec.State().String()}).Debug("type compiled")
	return rec
}

// MarkAdded records a type that did not exist in the previous state.
func (t *Table) MarkAdded(entry element.Entry, structure *classfile.Type) *Added {
	r := &Added{New: entry, Structure: structure}
	t.records[entry.Type] = r
	return r
}

// MarkRemoved records that a previously known type is gone. It returns
// nil when the type was not known before this pass, in which case the
// record is dropped entirely.
func (t *Table) MarkRemoved(name element.TypeName) *Removed {
	var old element.Entry
	switch r := t.records[name].(type) {
	case *Unmodified:
		old = r.Old
	case *Scheduled:
		old = r.Old
	case *Modified:
		old = r.Old
	case *Removed:
		return r
	default:
		delete(t.records, name)
		return nil
	}
	rec := &Removed{Old: old}
	t.records[name] = rec
	t.log.WithFields(logrus.Fields{"type": name, "action": "remove"}).Debug("type removed")
	return rec
}

// InState returns the types currently in state s, sorted.
func (t *Table) InState(s State) []element.TypeName {
	var out []element.TypeName
	for name, r := range t.records {
		if r.State() == s {
			out = append(out, name)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Counts tallies records by state.
func (t *Table) Counts() map[State]int {
	out := make(map[State]int)
	for _, r := range t.records {
		out[r.State()]++
	}
	return out
}

// Len returns the number of records.
func (t *Table) Len() int {
	return len(t.records)
}
