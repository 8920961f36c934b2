// Package builder drives the dependency graph, indictments, build-type
// table, work queue and binary store to turn an old build state and a
// change set into a new build state.
package builder

import (
	"context"

	"github.com/hashicorp/go-multierror"

	"github.com/mvp-joe/project-lathe/internal/binstore"
	"github.com/mvp-joe/project-lathe/internal/buildstate"
	"github.com/mvp-joe/project-lathe/internal/element"
)

// BatchBuilder discards any previous state and compiles everything.
type BatchBuilder struct {
	opts Options
}

// NewBatchBuilder creates a batch builder.
func NewBatchBuilder(opts Options) *BatchBuilder {
	return &BatchBuilder{opts: opts.withDefaults()}
}

// Build compiles every source of in into a fresh state. Artifacts of
// earlier builds stay in the store until Discard runs for the committed
// result.
func (b *BatchBuilder) Build(ctx context.Context, in *Input) (*buildstate.State, *Report, error) {
	p := newPass(ctx, b.opts, buildstate.New(b.opts.Fingerprint), in)
	p.report.Full = true
	p.report.Changes = len(in.Sources) + len(in.Archives)
	p.opts.Progress.Begin(len(in.Sources))

	all := make([]element.ArchiveID, 0, len(in.Archives))
	for _, a := range in.Archives {
		all = append(all, a.ID)
	}
	if err := p.classpath(all, nil); err != nil {
		return nil, nil, err
	}
	ids := make([]element.UnitID, 0, len(in.Sources))
	for _, s := range in.Sources {
		ids = append(ids, s.Unit.ID)
	}
	sortIDs(ids)
	for _, id := range ids {
		p.schedule(id)
	}
	if err := p.run(); err != nil {
		return nil, nil, err
	}
	return p.finish()
}

// IncrementalBuilder derives a new state from an old one, recompiling only
// what the changes and their indictments require.
type IncrementalBuilder struct {
	opts Options
}

// NewIncrementalBuilder creates an incremental builder.
func NewIncrementalBuilder(opts Options) *IncrementalBuilder {
	return &IncrementalBuilder{opts: opts.withDefaults()}
}

// Build applies ch to a copy of old. A nil ch is computed from the source
// hashes of in. old is never mutated.
func (b *IncrementalBuilder) Build(ctx context.Context, old *buildstate.State, in *Input, ch *Changes) (*buildstate.State, *Report, error) {
	if ch == nil {
		ch = DetectChanges(old, in)
	}
	p := newPass(ctx, b.opts, old, in)
	p.report.Changes = ch.Count()
	p.opts.Progress.Begin(len(ch.Added) + len(ch.Modified))

	if err := p.classpath(ch.ArchivesChanged, ch.ArchivesRemoved); err != nil {
		return nil, nil, err
	}
	for _, u := range ch.Removed {
		if err := p.removeUnit(u); err != nil {
			return nil, nil, err
		}
	}
	p.resolve()
	for _, u := range ch.Added {
		p.schedule(u)
	}
	for _, u := range ch.Modified {
		p.schedule(u)
	}
	if err := p.run(); err != nil {
		return nil, nil, err
	}
	return p.finish()
}

// Discard removes the artifacts made obsolete by the pass that produced s.
// It must run only after s is committed. After a full pass every artifact
// of a type s does not name is obsolete.
func Discard(store binstore.Store, s *buildstate.State, r *Report) error {
	obsolete := r.Obsolete
	if r.Full {
		keys, err := store.Keys()
		if err != nil {
			return element.Internal("list artifacts", err)
		}
		obsolete = nil
		for _, k := range keys {
			obsolete = append(obsolete, k.Type)
		}
	}
	var result *multierror.Error
	seen := make(map[element.TypeName]bool, len(obsolete))
	for _, t := range obsolete {
		if _, live := s.Types[t]; live || seen[t] {
			continue
		}
		seen[t] = true
		if err := store.Delete(t); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return element.Internal("discard artifacts", err)
	}
	return nil
}
