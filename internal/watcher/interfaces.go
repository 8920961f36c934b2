// Package watcher turns file system events under a project into rebuilds.
package watcher

import "context"

// FileWatcher monitors project files for changes with debouncing and pause/resume support.
type FileWatcher interface {
	// Start begins watching, calling callback with debounced file changes.
	Start(ctx context.Context, callback func(files []string)) error

	// Stop stops the file watcher and cleans up resources.
	Stop() error

	// Pause stops firing callbacks but continues accumulating events.
	Pause()

	// Resume resumes firing callbacks. If events accumulated during pause, fires immediately.
	Resume()
}

// Filter decides which paths are build inputs. Paths are absolute.
type Filter interface {
	// Relevant reports whether a change to path can affect the build.
	Relevant(path string) bool

	// SkipDir reports whether dir and everything below it is ignored.
	SkipDir(dir string) bool
}

// Rebuilder runs a build after files changed.
type Rebuilder interface {
	Rebuild(ctx context.Context, changed []string) error
}
