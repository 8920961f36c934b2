package builder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/mvp-joe/project-lathe/internal/binstore"
	"github.com/mvp-joe/project-lathe/internal/buildstate"
	"github.com/mvp-joe/project-lathe/internal/element"
	"github.com/mvp-joe/project-lathe/internal/snapshot"
)

// ErrLocked is returned when another process holds the state directory.
var ErrLocked = errors.New("state directory is locked by another build")

const snapshotExt = ".snap"

// Engine runs build passes against a state directory. It picks the
// builder, commits snapshots, keeps the most recent ones as retained
// states and collects the store against them.
type Engine struct {
	dir    string
	retain int
	opts   Options
}

// NewEngine creates an engine keeping retain snapshots (at least one) in
// stateDir.
func NewEngine(stateDir string, retain int, opts Options) *Engine {
	if retain < 1 {
		retain = 1
	}
	return &Engine{dir: stateDir, retain: retain, opts: opts.withDefaults()}
}

// Result is the outcome of one engine build.
type Result struct {
	State  *buildstate.State
	Report *Report
	GC     *binstore.GCReport
	// LoadedVersion is the snapshot version the pass started from, 0 for
	// a batch build.
	LoadedVersion uint16
	// Fallback says why a batch build ran, empty for incremental builds.
	Fallback string
}

func (e *Engine) snapshotDir() string { return filepath.Join(e.dir, "snapshots") }

func (e *Engine) acquire() (func(), error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, element.Internal("create state directory", err)
	}
	l := flock.New(filepath.Join(e.dir, "lock"))
	locked, err := l.TryLock()
	if err != nil {
		return nil, element.Internal("lock state directory", err)
	}
	if !locked {
		return nil, ErrLocked
	}
	return func() {
		if err := l.Unlock(); err != nil {
			e.opts.Log.WithError(err).Warn("failed to unlock state directory")
		}
	}, nil
}

// Build runs one pass over in. full forces a batch build. On any error the
// previously committed snapshot stays authoritative.
func (e *Engine) Build(ctx context.Context, in *Input, full bool) (*Result, error) {
	unlock, err := e.acquire()
	if err != nil {
		return nil, err
	}
	defer unlock()

	res := &Result{Fallback: "full build requested"}
	var old *buildstate.State
	if !full {
		old, res.LoadedVersion, res.Fallback, err = e.previous()
		if err != nil {
			return nil, err
		}
	}

	var state *buildstate.State
	if old == nil {
		e.opts.Log.WithField("reason", res.Fallback).Info("running batch build")
		res.LoadedVersion = 0
		state, res.Report, err = NewBatchBuilder(e.opts).Build(ctx, in)
	} else {
		state, res.Report, err = NewIncrementalBuilder(e.opts).Build(ctx, old, in, nil)
	}
	if err != nil {
		return nil, err
	}
	if err := e.commit(state); err != nil {
		return nil, err
	}
	res.State = state
	if err := Discard(e.opts.Store, state, res.Report); err != nil {
		return res, err
	}
	if res.GC, err = e.collect(); err != nil {
		return res, err
	}
	return res, nil
}

// previous loads the latest snapshot usable as the base of an incremental
// pass. A nil state comes with the reason a batch build must run instead.
func (e *Engine) previous() (*buildstate.State, uint16, string, error) {
	old, version, err := e.Current()
	switch {
	case os.IsNotExist(err):
		return nil, 0, "no previous state", nil
	case errors.Is(err, snapshot.ErrMalformed):
		e.opts.Log.WithError(err).Warn("previous snapshot unreadable")
		return nil, 0, "previous snapshot unreadable", nil
	case err != nil:
		var ie *element.InternalError
		if errors.As(err, &ie) && version != 0 {
			e.opts.Log.WithError(err).Warn("previous hierarchy could not be rebuilt")
			return nil, 0, "previous hierarchy could not be rebuilt", nil
		}
		return nil, 0, "", element.Internal("load previous state", err)
	}
	if e.opts.Fingerprint != nil && !bytes.Equal(old.Fingerprint, e.opts.Fingerprint) {
		return nil, 0, "build identity changed", nil
	}
	return old, version, "", nil
}

// Current loads the latest committed state. States read from a snapshot
// version without a subtype index get it rebuilt from the store.
func (e *Engine) Current() (*buildstate.State, uint16, error) {
	seqs, err := e.snapshots()
	if err != nil {
		return nil, 0, err
	}
	if len(seqs) == 0 {
		return nil, 0, &os.PathError{Op: "open", Path: e.snapshotDir(), Err: os.ErrNotExist}
	}
	s, version, err := snapshot.Load(e.snapshotPath(seqs[0]))
	if err != nil {
		return nil, 0, err
	}
	if version < snapshot.CurrentVersion {
		if err := RebuildHierarchy(s, e.opts.Store); err != nil {
			return nil, version, err
		}
	}
	return s, version, nil
}

// Retained loads every retained state, newest first. Unreadable snapshots
// are discarded.
func (e *Engine) Retained() ([]*buildstate.State, error) {
	seqs, err := e.snapshots()
	if err != nil {
		return nil, err
	}
	out := make([]*buildstate.State, 0, len(seqs))
	for _, seq := range seqs {
		path := e.snapshotPath(seq)
		s, _, err := snapshot.Load(path)
		switch {
		case errors.Is(err, snapshot.ErrMalformed):
			e.opts.Log.WithFields(logrus.Fields{"snapshot": path, "error": err}).Warn("discarding unreadable snapshot")
			if rmErr := os.Remove(path); rmErr != nil {
				return nil, element.Internal("discard snapshot", rmErr)
			}
			continue
		case err != nil:
			return nil, element.Internal("load retained state", err)
		}
		out = append(out, s)
	}
	return out, nil
}

// Collect garbage-collects the store against the retained states.
func (e *Engine) Collect() (*binstore.GCReport, error) {
	unlock, err := e.acquire()
	if err != nil {
		return nil, err
	}
	defer unlock()
	return e.collect()
}

func (e *Engine) collect() (*binstore.GCReport, error) {
	states, err := e.Retained()
	if err != nil {
		return nil, err
	}
	live := make([]binstore.EntrySource, 0, len(states))
	for _, s := range states {
		live = append(live, s)
	}
	report, err := e.opts.Store.GarbageCollect(live)
	if err != nil {
		return nil, element.Internal("garbage collect", err)
	}
	e.opts.Log.WithFields(logrus.Fields{"live": report.Live, "deleted": len(report.Deleted), "states": len(states)}).Info("store collected")
	return report, nil
}

// Clean removes every artifact and every snapshot.
func (e *Engine) Clean() error {
	unlock, err := e.acquire()
	if err != nil {
		return err
	}
	defer unlock()
	if err := e.opts.Store.Scrub(); err != nil {
		return element.Internal("scrub", err)
	}
	if _, err := e.opts.Store.GarbageCollect(nil); err != nil {
		return element.Internal("garbage collect", err)
	}
	if err := os.RemoveAll(e.snapshotDir()); err != nil {
		return element.Internal("remove snapshots", err)
	}
	return nil
}

// commit saves s as the newest snapshot and prunes beyond the retention
// limit.
func (e *Engine) commit(s *buildstate.State) error {
	seqs, err := e.snapshots()
	if err != nil {
		return err
	}
	next := 1
	if len(seqs) > 0 {
		next = seqs[0] + 1
	}
	if err := snapshot.Save(e.snapshotPath(next), s); err != nil {
		return element.Internal("save snapshot", err)
	}
	e.opts.Log.WithFields(logrus.Fields{"snapshot": next, "state": s.ID}).Debug("state committed")

	var result *multierror.Error
	for i, seq := range seqs {
		if i+1 < e.retain {
			continue
		}
		if err := os.Remove(e.snapshotPath(seq)); err != nil && !os.IsNotExist(err) {
			result = multierror.Append(result, err)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return element.Internal("prune snapshots", err)
	}
	return nil
}

func (e *Engine) snapshotPath(seq int) string {
	return filepath.Join(e.snapshotDir(), fmt.Sprintf("%06d%s", seq, snapshotExt))
}

// snapshots lists snapshot sequence numbers, newest first.
func (e *Engine) snapshots() ([]int, error) {
	entries, err := os.ReadDir(e.snapshotDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, element.Internal("list snapshots", err)
	}
	var seqs []int
	for _, ent := range entries {
		name := ent.Name()
		if ent.IsDir() || !strings.HasSuffix(name, snapshotExt) {
			continue
		}
		seq, err := strconv.Atoi(strings.TrimSuffix(name, snapshotExt))
		if err != nil {
			continue
		}
		seqs = append(seqs, seq)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(seqs)))
	return seqs, nil
}
