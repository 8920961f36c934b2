package watcher

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Coordinator routes debounced file changes to a Rebuilder. The watcher is
// paused while a rebuild runs; changes seen meanwhile fire as one batch
// afterwards, so rebuilds never overlap.
type Coordinator struct {
	files     FileWatcher
	rebuilder Rebuilder
	log       logrus.FieldLogger

	mu      sync.Mutex
	pending map[string]bool
	signal  chan struct{}
}

// NewCoordinator creates a coordinator.
func NewCoordinator(files FileWatcher, rebuilder Rebuilder, log logrus.FieldLogger) *Coordinator {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Coordinator{
		files:     files,
		rebuilder: rebuilder,
		log:       log,
		pending:   make(map[string]bool),
		signal:    make(chan struct{}, 1),
	}
}

// Start begins routing events. Blocks until ctx is cancelled, then stops
// the watcher.
func (c *Coordinator) Start(ctx context.Context) error {
	if err := c.files.Start(ctx, c.handleFileChange); err != nil {
		c.cleanup()
		return err
	}
	for {
		select {
		case <-ctx.Done():
			c.cleanup()
			return ctx.Err()
		case <-c.signal:
			c.rebuild(ctx)
		}
	}
}

func (c *Coordinator) cleanup() {
	if err := c.files.Stop(); err != nil {
		c.log.WithError(err).Warn("file watcher stop failed")
	}
}

// handleFileChange queues a batch and pauses the watcher. It never blocks.
func (c *Coordinator) handleFileChange(files []string) {
	if len(files) == 0 {
		return
	}
	c.files.Pause()

	c.mu.Lock()
	for _, f := range files {
		c.pending[f] = true
	}
	c.mu.Unlock()

	select {
	case c.signal <- struct{}{}:
	default:
	}
}

// rebuild runs one rebuild over everything queued, then resumes the
// watcher.
func (c *Coordinator) rebuild(ctx context.Context) {
	defer c.files.Resume()

	c.mu.Lock()
	files := make([]string, 0, len(c.pending))
	for f := range c.pending {
		files = append(files, f)
	}
	c.pending = make(map[string]bool)
	c.mu.Unlock()
	if len(files) == 0 {
		return
	}
	sort.Strings(files)

	c.log.WithField("files", len(files)).Info("changes detected, rebuilding")
	if err := c.rebuilder.Rebuild(ctx, files); err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return
		}
		// The last committed state stays in place; the next change retries.
		c.log.WithError(err).Error("rebuild failed")
	}
}
