package builder

import (
	"bytes"
	"sort"

	"github.com/mvp-joe/project-lathe/internal/buildstate"
	"github.com/mvp-joe/project-lathe/internal/classfile"
	"github.com/mvp-joe/project-lathe/internal/element"
	"github.com/mvp-joe/project-lathe/internal/frontend"
)

// Source is one compilation unit of the project.
type Source struct {
	Unit *frontend.Unit
	// Root is the classpath fragment (source root) the unit lives under.
	Root string
	// Hash is the content hash recorded in the source table.
	Hash []byte
}

// Archive is one classpath archive with the binary types it provides.
type Archive struct {
	ID    element.ArchiveID
	Hash  []byte
	Types []*classfile.Type
}

// Input is the complete current project: every source unit and archive.
type Input struct {
	Sources   []Source
	Archives  []Archive
	Resources []Resource
}

func (in *Input) sourceMap() map[element.UnitID]Source {
	out := make(map[element.UnitID]Source, len(in.Sources))
	for _, s := range in.Sources {
		out[s.Unit.ID] = s
	}
	return out
}

// Changes is the change set of an incremental build.
type Changes struct {
	Added    []element.UnitID
	Modified []element.UnitID
	Removed  []element.UnitID

	ArchivesChanged []element.ArchiveID // added or modified
	ArchivesRemoved []element.ArchiveID
}

// Empty reports whether nothing changed.
func (c *Changes) Empty() bool {
	return len(c.Added)+len(c.Modified)+len(c.Removed)+len(c.ArchivesChanged)+len(c.ArchivesRemoved) == 0
}

// Count is the number of changed inputs.
func (c *Changes) Count() int {
	return len(c.Added) + len(c.Modified) + len(c.Removed) + len(c.ArchivesChanged) + len(c.ArchivesRemoved)
}

// DetectChanges compares the hashes of in against the source table of old.
func DetectChanges(old *buildstate.State, in *Input) *Changes {
	ch := &Changes{}
	seen := make(map[string]bool)
	for _, s := range in.Sources {
		p := string(s.Unit.ID)
		seen[p] = true
		_, e, ok := old.Source(p)
		switch {
		case !ok:
			ch.Added = append(ch.Added, s.Unit.ID)
		case !bytes.Equal(e.Hash, s.Hash):
			ch.Modified = append(ch.Modified, s.Unit.ID)
		}
	}
	for _, a := range in.Archives {
		p := string(a.ID)
		seen[p] = true
		if _, e, ok := old.Source(p); !ok || !bytes.Equal(e.Hash, a.Hash) {
			ch.ArchivesChanged = append(ch.ArchivesChanged, a.ID)
		}
	}
	for _, p := range old.SourcePaths(buildstate.SourceFile) {
		if !seen[p] {
			ch.Removed = append(ch.Removed, element.UnitID(p))
		}
	}
	for _, p := range old.SourcePaths(buildstate.BinaryFile) {
		if !seen[p] {
			ch.ArchivesRemoved = append(ch.ArchivesRemoved, element.ArchiveID(p))
		}
	}
	sortIDs(ch.Added)
	sortIDs(ch.Modified)
	sortIDs(ch.Removed)
	sort.Slice(ch.ArchivesChanged, func(i, j int) bool { return ch.ArchivesChanged[i] < ch.ArchivesChanged[j] })
	return ch
}

func sortIDs(ids []element.UnitID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
