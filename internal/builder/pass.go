package builder

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mvp-joe/project-lathe/internal/binstore"
	"github.com/mvp-joe/project-lathe/internal/buildstate"
	"github.com/mvp-joe/project-lathe/internal/buildtype"
	"github.com/mvp-joe/project-lathe/internal/classfile"
	"github.com/mvp-joe/project-lathe/internal/depgraph"
	"github.com/mvp-joe/project-lathe/internal/diagnostics"
	"github.com/mvp-joe/project-lathe/internal/element"
	"github.com/mvp-joe/project-lathe/internal/frontend"
	"github.com/mvp-joe/project-lathe/internal/indictment"
	"github.com/mvp-joe/project-lathe/internal/workqueue"
)

// Options configure a builder.
type Options struct {
	Compiler frontend.Compiler
	Store    binstore.Store
	Progress Progress
	Log      logrus.FieldLogger
	// Catalog renders problems the builder raises itself.
	Catalog *diagnostics.Catalog
	// Fingerprint is the build identity recorded in new states.
	Fingerprint []byte
	// ResourceDir receives copies of Input.Resources. Empty disables the
	// resource phase.
	ResourceDir string
}

func (o Options) withDefaults() Options {
	if o.Progress == nil {
		o.Progress = NopProgress{}
	}
	if o.Log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		o.Log = l
	}
	if o.Catalog == nil {
		o.Catalog = diagnostics.NewCatalog()
	}
	return o
}

// Report summarizes one pass.
type Report struct {
	Full     bool
	Changes  int
	Compiled []element.UnitID // in compilation order, repeated when rescheduled

	Rescheduled int
	Indictments int
	Resources   int

	Added     int
	Modified  int
	Unchanged int // recompiled without structural change
	Removed   int
	Untouched int

	// Obsolete lists removed types whose artifacts Discard deletes once
	// the new state is committed.
	Obsolete []element.TypeName

	Problems int
	Errors   int
	Duration time.Duration
}

// pass is one build from an old state to a new one. The old state is never
// mutated; all work happens on a copy that is returned only on success.
type pass struct {
	ctx  context.Context
	opts Options
	log  logrus.FieldLogger

	old      *buildstate.State
	state    *buildstate.State
	in       *Input
	sources  map[element.UnitID]Source
	expected map[element.TypeName]element.UnitID

	table    *buildtype.Table
	queue    *workqueue.Queue
	pending  *indictment.Set
	resolver *indictment.Resolver

	archiveOf      map[element.TypeName]element.ArchiveID
	archiveStructs map[element.TypeName]*classfile.Type

	structs    map[element.TypeName]*classfile.Type // compiled in this pass
	loaded     map[element.TypeName]*classfile.Type // decoded from the store
	oldStructs map[element.TypeName]*classfile.Type // as recorded by old
	obsolete   map[element.TypeName]struct{}

	report *Report
	start  time.Time
}

func newPass(ctx context.Context, opts Options, old *buildstate.State, in *Input) *pass {
	opts = opts.withDefaults()
	state := old.Copy()
	if opts.Fingerprint != nil {
		state.Fingerprint = append([]byte(nil), opts.Fingerprint...)
	}
	p := &pass{
		ctx:            ctx,
		opts:           opts,
		log:            opts.Log,
		old:            old,
		state:          state,
		in:             in,
		sources:        in.sourceMap(),
		expected:       make(map[element.TypeName]element.UnitID),
		table:          buildtype.Begin(old.Types, opts.Log),
		queue:          workqueue.New(opts.Log),
		pending:        indictment.NewSet(),
		archiveOf:      make(map[element.TypeName]element.ArchiveID),
		archiveStructs: make(map[element.TypeName]*classfile.Type),
		structs:        make(map[element.TypeName]*classfile.Type),
		loaded:         make(map[element.TypeName]*classfile.Type),
		oldStructs:     make(map[element.TypeName]*classfile.Type),
		obsolete:       make(map[element.TypeName]struct{}),
		report:         &Report{},
		start:          time.Now(),
	}
	for id, s := range p.sources {
		p.expected[s.Unit.ExpectedType()] = id
	}
	p.resolver = &indictment.Resolver{Graph: state.Graph, Structures: indictment.StructureFunc(p.Structure)}
	return p
}

// checkpoint aborts the pass when cancellation was requested.
func (p *pass) checkpoint() error {
	if err := p.ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	if p.opts.Progress.IsCancelled() {
		return ErrCancelled
	}
	return nil
}

// classpath indexes every archive, invalidates the dependents of changed
// and removed archives and resolves the resulting indictments.
func (p *pass) classpath(changed, removed []element.ArchiveID) error {
	p.opts.Progress.SubTask("analyzing classpath")
	g := p.state.Graph
	byID := make(map[element.ArchiveID]Archive, len(p.in.Archives))
	for _, a := range p.in.Archives {
		byID[a.ID] = a
		for _, t := range a.Types {
			if _, dup := p.archiveOf[t.Name]; dup {
				continue
			}
			p.archiveOf[t.Name] = a.ID
			p.archiveStructs[t.Name] = t
			g.SetSupertypes(t.Name, t.Supertypes())
		}
	}

	for _, id := range removed {
		if err := p.invalidateArchive(id, nil); err != nil {
			return err
		}
		g.RemoveNode(depgraph.ArchiveKey(id))
		p.state.RemoveSource(string(id))
	}
	for _, id := range changed {
		a, ok := byID[id]
		if !ok {
			continue
		}
		if err := p.invalidateArchive(id, a.Types); err != nil {
			return err
		}
		ak := depgraph.ArchiveKey(id)
		g.EnsureNode(ak)
		names := make([]element.TypeName, 0, len(a.Types))
		for _, t := range a.Types {
			if p.archiveOf[t.Name] != id {
				continue
			}
			names = append(names, t.Name)
			tk := depgraph.TypeKey(t.Name)
			if _, source := p.state.Types[t.Name]; !source {
				g.ClearDependencies(tk)
			}
			if err := g.AddDependency(tk, ak); err != nil {
				return element.Internal("link archive type", err)
			}
		}
		g.SetDeclaredTypes(ak, names)
		p.state.PutSource("", buildstate.SourceEntry{Path: string(id), Kind: buildstate.BinaryFile, Hash: a.Hash})
		p.log.WithFields(logrus.Fields{"archive": id, "types": len(names)}).Debug("archive indexed")
	}
	p.resolve()
	return p.checkpoint()
}

// invalidateArchive schedules everything that loaded a type from id and
// indicts the types it provided. Types it no longer provides lose their
// nodes unless a source unit declares them.
func (p *pass) invalidateArchive(id element.ArchiveID, now []*classfile.Type) error {
	g := p.state.Graph
	ak := depgraph.ArchiveKey(id)
	p.scheduleDependents(ak)

	keep := make(map[element.TypeName]bool, len(now))
	for _, t := range now {
		keep[t.Name] = true
		p.pending.Add(indictment.Type(t.Name))
		p.pending.Add(indictment.Hierarchy(t.Name))
	}
	for _, t := range g.DeclaredTypes(ak) {
		if keep[t] {
			continue
		}
		tk := depgraph.TypeKey(t)
		p.pending.Add(indictment.Type(t))
		p.scheduleDependents(tk)
		if _, source := p.state.Types[t]; source {
			continue
		}
		if other, ok := p.archiveOf[t]; ok && other != id {
			g.ClearDependencies(tk)
			if err := g.AddDependency(tk, depgraph.ArchiveKey(other)); err != nil {
				return element.Internal("link archive type", err)
			}
			continue
		}
		g.RemoveNode(tk)
		g.SetSupertypes(t, nil)
	}
	return nil
}

// schedule queues u and promotes the types it declared.
func (p *pass) schedule(u element.UnitID) {
	if _, ok := p.sources[u]; !ok {
		return
	}
	if !p.queue.Schedule(u) {
		return
	}
	for _, t := range p.state.TypesOf(u) {
		p.table.Promote(t)
	}
}

func (p *pass) scheduleDependents(k depgraph.Key) {
	for _, d := range p.state.Graph.DependentsOf(k) {
		if d.Kind == depgraph.KindUnit {
			p.schedule(element.UnitID(d.Name))
		}
	}
}

// resolve turns the pending indictments into scheduled units.
func (p *pass) resolve() {
	if p.pending.Len() == 0 {
		return
	}
	p.report.Indictments += p.pending.Len()
	for _, u := range p.resolver.Resolve(p.pending) {
		p.schedule(u)
	}
	p.pending = indictment.NewSet()
}

// removeUnit drops a deleted unit with every type it declared.
func (p *pass) removeUnit(u element.UnitID) error {
	for _, t := range p.state.TypesOf(u) {
		if err := p.removeType(t); err != nil {
			return err
		}
	}
	p.state.Graph.RemoveNode(depgraph.UnitKey(u))
	p.state.RemoveSource(string(u))
	p.state.SetProblems(u, nil)
	p.log.WithFields(logrus.Fields{"unit": u, "action": "remove"}).Debug("unit removed")
	return nil
}

// removeType drops a type from the working state and schedules every unit
// that depended on it. Its artifact stays until the new state is committed.
func (p *pass) removeType(t element.TypeName) error {
	p.table.MarkRemoved(t)
	tk := depgraph.TypeKey(t)
	p.scheduleDependents(tk)
	delete(p.state.Types, t)
	delete(p.structs, t)
	delete(p.loaded, t)
	p.obsolete[t] = struct{}{}
	if a, ok := p.archiveOf[t]; ok {
		// The archive copy becomes visible again.
		g := p.state.Graph
		g.ClearDependencies(tk)
		if err := g.AddDependency(tk, depgraph.ArchiveKey(a)); err != nil {
			return element.Internal("link archive type", err)
		}
		g.SetSupertypes(t, p.archiveStructs[t].Supertypes())
		p.pending.Add(indictment.Type(t))
		return nil
	}
	p.state.Graph.RemoveNode(tk)
	p.state.Graph.SetSupertypes(t, nil)
	return nil
}

// run compiles until the queue is empty.
func (p *pass) run() error {
	for p.queue.Len() > 0 {
		for _, u := range p.queue.Pending() {
			if st, _ := p.queue.Status(u); st != workqueue.NeedsCompile {
				continue
			}
			if err := p.compile(u); err != nil {
				return err
			}
			p.queue.MarkCompiled(u)
			p.report.Compiled = append(p.report.Compiled, u)
			p.opts.Progress.Worked(1)
			p.resolve()
			if err := p.checkpoint(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *pass) compile(u element.UnitID) error {
	src := p.sources[u]
	p.opts.Progress.SubTask(string(u))
	res, err := p.opts.Compiler.Compile(p.ctx, src.Unit, p)
	if err != nil {
		if p.ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrCancelled, p.ctx.Err())
		}
		return element.Internal("compile "+string(u), err)
	}

	previous := p.state.TypesOf(u)
	declared := make(map[element.TypeName]*classfile.Type, len(res.Types))
	names := make([]element.TypeName, 0, len(res.Types))
	problems := append([]diagnostics.Problem(nil), res.Problems...)
	for _, d := range res.Types {
		name := d.Name()
		if owner, taken := p.ownedElsewhere(name, u); taken {
			problems = append(problems, p.duplicate(u, name, owner))
			continue
		}
		entry := element.Entry{Unit: u, Type: name, Fingerprint: classfile.Fingerprint(d.Artifact)}
		old := p.oldStructure(name)
		rec := p.table.Pair(entry, old, d.Structure)
		if err := p.opts.Store.Put(entry, d.Artifact); err != nil {
			return element.Internal("store "+string(name), err)
		}
		p.state.Types[name] = entry
		delete(p.obsolete, name)
		p.structs[name] = d.Structure
		delete(p.loaded, name)
		declared[name] = d.Structure
		names = append(names, name)

		inds, err := rec.Indictments()
		if err != nil {
			return element.Internal("indict "+string(name), err)
		}
		for _, ind := range inds {
			p.pending.Add(ind)
		}
	}
	for _, t := range previous {
		if _, still := declared[t]; !still {
			if err := p.removeType(t); err != nil {
				return err
			}
		}
	}
	if err := p.link(u, names, declared, res.Refs); err != nil {
		return err
	}
	p.state.SetProblems(u, problems)
	p.state.PutSource(res.Package, buildstate.SourceEntry{Path: string(u), Kind: buildstate.SourceFile, Hash: src.Hash})
	return nil
}

// ownedElsewhere reports the unit already declaring t when it is a live
// unit other than u that is not itself waiting to recompile.
func (p *pass) ownedElsewhere(t element.TypeName, u element.UnitID) (element.UnitID, bool) {
	e, ok := p.state.Types[t]
	if !ok || e.Unit == u {
		return "", false
	}
	if _, live := p.sources[e.Unit]; !live {
		return "", false
	}
	if st, _ := p.queue.Status(e.Unit); st == workqueue.NeedsCompile {
		return "", false
	}
	return e.Unit, true
}

func (p *pass) duplicate(u element.UnitID, t element.TypeName, owner element.UnitID) diagnostics.Problem {
	pr := diagnostics.Problem{
		ID:       diagnostics.IDDuplicateType,
		Severity: diagnostics.SeverityError,
		Args:     []string{string(t)},
		Source:   u,
	}
	pr.Message = p.opts.Catalog.Format(pr, "en")
	p.log.WithFields(logrus.Fields{"unit": u, "type": t, "owner": owner}).Warn("type declared by two units")
	return pr
}

// link rewrites the graph edges of a freshly compiled unit.
func (p *pass) link(u element.UnitID, names []element.TypeName, declared map[element.TypeName]*classfile.Type, refs frontend.References) error {
	g := p.state.Graph
	uk := depgraph.UnitKey(u)
	g.ClearDependencies(uk)
	g.SetDeclaredTypes(uk, names)
	for _, name := range names {
		tk := depgraph.TypeKey(name)
		g.ClearDependencies(tk)
		if err := g.AddDependency(tk, uk); err != nil {
			return element.Internal("link "+string(name), err)
		}
		g.SetSupertypes(name, declared[name].Supertypes())
	}
	for _, t := range refs.Types {
		if _, own := declared[t]; own {
			continue
		}
		if err := g.AddDependency(uk, depgraph.TypeKey(t)); err != nil {
			return element.Internal("link "+string(u), err)
		}
	}
	for _, pkg := range refs.Packages {
		if err := g.AddDependency(uk, depgraph.NamespaceKey(pkg)); err != nil {
			return element.Internal("link "+string(u), err)
		}
	}
	for _, a := range refs.Archives {
		if err := g.AddDependency(uk, depgraph.ArchiveKey(a)); err != nil {
			return element.Internal("link "+string(u), err)
		}
	}
	g.SetReferences(uk, refs.Names)
	return nil
}

// oldStructure returns the structure of t recorded by the old state. It is
// read before the first Put of t in this pass.
func (p *pass) oldStructure(t element.TypeName) *classfile.Type {
	if s, ok := p.oldStructs[t]; ok {
		return s
	}
	var s *classfile.Type
	if e, ok := p.old.Types[t]; ok {
		s = p.decode(e)
	}
	p.oldStructs[t] = s
	return s
}

func (p *pass) decode(e element.Entry) *classfile.Type {
	data, err := p.opts.Store.Get(e)
	if err != nil {
		p.log.WithFields(logrus.Fields{"type": e.Type, "error": err}).Debug("artifact unavailable")
		return nil
	}
	s, err := classfile.Decode(data)
	if err != nil {
		p.log.WithFields(logrus.Fields{"type": e.Type, "error": err}).Warn("artifact undecodable")
		return nil
	}
	return s
}

// TypeExists implements frontend.Environment.
func (p *pass) TypeExists(t element.TypeName) bool {
	if _, ok := p.state.Types[t]; ok {
		return true
	}
	if u, ok := p.expected[t]; ok {
		if _, live := p.sources[u]; live {
			return true
		}
	}
	_, ok := p.archiveOf[t]
	return ok
}

// ArchiveOf implements frontend.Environment. Source types shadow archive
// types of the same name.
func (p *pass) ArchiveOf(t element.TypeName) (element.ArchiveID, bool) {
	if _, source := p.state.Types[t]; source {
		return "", false
	}
	a, ok := p.archiveOf[t]
	return a, ok
}

// Structure implements frontend.Environment and indictment.StructureLookup.
func (p *pass) Structure(t element.TypeName) (*classfile.Type, bool) {
	if s, ok := p.structs[t]; ok {
		return s, true
	}
	e, source := p.state.Types[t]
	if !source {
		s, ok := p.archiveStructs[t]
		return s, ok
	}
	if s, ok := p.loaded[t]; ok {
		return s, s != nil
	}
	s := p.decode(e)
	p.loaded[t] = s
	return s, s != nil
}

// finish rebuilds the package map, fills the report and returns the new
// state.
func (p *pass) finish() (*buildstate.State, *Report, error) {
	if err := p.copyResources(); err != nil {
		return nil, nil, err
	}
	if err := p.checkpoint(); err != nil {
		return nil, nil, err
	}
	p.packages()

	r := p.report
	counts := p.table.Counts()
	r.Added = counts[buildtype.StateAdded]
	r.Removed = counts[buildtype.StateRemoved]
	r.Untouched = counts[buildtype.StateUnmodified]
	for _, t := range p.table.InState(buildtype.StateModified) {
		rec, _ := p.table.Get(t)
		_, existed := p.old.Types[t]
		switch {
		case !existed:
			// Added, then compiled again in this pass.
			r.Added++
		case rec.(*buildtype.Modified).Unchanged():
			r.Unchanged++
		default:
			r.Modified++
		}
	}
	for t := range p.obsolete {
		r.Obsolete = append(r.Obsolete, t)
	}
	sort.Slice(r.Obsolete, func(i, j int) bool { return r.Obsolete[i] < r.Obsolete[j] })
	r.Rescheduled = p.queue.Rescheduled()
	r.Problems = len(p.state.Problems)
	r.Errors = diagnostics.CountErrors(p.state.Problems)
	r.Duration = time.Since(p.start)

	p.log.WithFields(logrus.Fields{
		"compiled":    len(r.Compiled),
		"rescheduled": r.Rescheduled,
		"added":       r.Added,
		"modified":    r.Modified,
		"removed":     r.Removed,
		"problems":    r.Problems,
		"duration":    r.Duration,
	}).Info("build pass complete")
	return p.state, r, nil
}

// packages recomputes the package map from the current inputs.
func (p *pass) packages() {
	pkgOf := make(map[string]element.PackageName)
	for pkg, files := range p.state.Sources {
		for _, e := range files {
			if e.Kind == buildstate.SourceFile {
				pkgOf[e.Path] = pkg
			}
		}
	}
	p.state.Packages = make(map[element.PackageName][]string)
	ids := make([]element.UnitID, 0, len(p.sources))
	for id := range p.sources {
		ids = append(ids, id)
	}
	sortIDs(ids)
	for _, id := range ids {
		if pkg, ok := pkgOf[string(id)]; ok {
			p.state.AddFragment(pkg, p.sources[id].Root)
		}
	}
	for _, a := range p.in.Archives {
		pkgs := make(map[element.PackageName]bool)
		for _, t := range a.Types {
			pkgs[t.Name.Package()] = true
		}
		sorted := make([]element.PackageName, 0, len(pkgs))
		for pkg := range pkgs {
			sorted = append(sorted, pkg)
		}
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		for _, pkg := range sorted {
			p.state.AddFragment(pkg, string(a.ID))
		}
	}
}
