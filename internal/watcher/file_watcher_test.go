package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for FileWatcher:
// - NewFileWatcher creates watcher successfully with a valid root
// - NewFileWatcher returns error with invalid root
// - Rapid changes to several files are batched into one sorted callback
// - Pause/Resume behavior (accumulate during pause, fire on resume)
// - File deleted triggers callback
// - Directory added triggers recursive watch
// - Filtered files and skipped directories never fire callbacks
// - Stop() is idempotent and safe to call concurrently

// javaFilter accepts .java and .jar files and skips directories named "out".
type javaFilter struct{}

func (javaFilter) Relevant(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".java" || ext == ".jar"
}

func (javaFilter) SkipDir(dir string) bool { return filepath.Base(dir) == "out" }

// recorder collects callback batches.
type recorder struct {
	mu      sync.Mutex
	batches [][]string
	called  chan struct{}
}

func newRecorder() *recorder { return &recorder{called: make(chan struct{}, 10)} }

func (r *recorder) callback(files []string) {
	r.mu.Lock()
	r.batches = append(r.batches, files)
	r.mu.Unlock()
	r.called <- struct{}{}
}

func (r *recorder) wait(t *testing.T, timeout time.Duration) {
	t.Helper()
	select {
	case <-r.called:
	case <-time.After(timeout):
		t.Fatal("Callback not called after timeout")
	}
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, b := range r.batches {
		out = append(out, b...)
	}
	return out
}

func startWatcher(t *testing.T, root string) (FileWatcher, *recorder) {
	t.Helper()
	w, err := NewFileWatcher(root, javaFilter{}, 100*time.Millisecond, nil)
	require.NoError(t, err)
	t.Cleanup(func() { w.Stop() })

	rec := newRecorder()
	require.NoError(t, w.Start(context.Background(), rec.callback))
	// Wait for watcher to initialize
	time.Sleep(100 * time.Millisecond)
	return w, rec
}

func TestNewFileWatcher_Success(t *testing.T) {
	t.Parallel()

	w, err := NewFileWatcher(t.TempDir(), javaFilter{}, 0, nil)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, DefaultDebounce, w.(*fileWatcher).debounceTime)
	require.NoError(t, w.Stop())
}

func TestNewFileWatcher_InvalidDirectory(t *testing.T) {
	t.Parallel()

	w, err := NewFileWatcher(filepath.Join(t.TempDir(), "nonexistent"), javaFilter{}, 0, nil)
	assert.Error(t, err)
	assert.Nil(t, w)
}

func TestFileWatcher_BatchesChanges(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	_, rec := startWatcher(t, root)

	b := filepath.Join(root, "B.java")
	a := filepath.Join(root, "A.java")
	require.NoError(t, os.WriteFile(b, []byte("class B {}"), 0644))
	time.Sleep(20 * time.Millisecond) // Less than debounce time
	require.NoError(t, os.WriteFile(a, []byte("class A {}"), 0644))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, os.WriteFile(a, []byte("class A { int x; }"), 0644))

	rec.wait(t, 2*time.Second)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.batches, 1)
	assert.Equal(t, []string{a, b}, rec.batches[0])
}

func TestFileWatcher_PauseResume(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	w, rec := startWatcher(t, root)

	w.Pause()
	paused := filepath.Join(root, "Paused.java")
	require.NoError(t, os.WriteFile(paused, []byte("class Paused {}"), 0644))

	// Wait beyond debounce period - callback should NOT fire
	time.Sleep(400 * time.Millisecond)
	assert.Empty(t, rec.all(), "No callbacks should fire while paused")

	w.Resume()
	rec.wait(t, 500*time.Millisecond)
	assert.Contains(t, rec.all(), paused)
}

func TestFileWatcher_FileDeleted(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	gone := filepath.Join(root, "Gone.java")
	require.NoError(t, os.WriteFile(gone, []byte("class Gone {}"), 0644))
	_, rec := startWatcher(t, root)

	require.NoError(t, os.Remove(gone))
	rec.wait(t, 2*time.Second)
	assert.Contains(t, rec.all(), gone)
}

func TestFileWatcher_DirectoryAdded(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	_, rec := startWatcher(t, root)

	newDir := filepath.Join(root, "pkg")
	require.NoError(t, os.Mkdir(newDir, 0755))
	// Wait for directory to be added to watcher
	time.Sleep(300 * time.Millisecond)

	inNewDir := filepath.Join(newDir, "C.java")
	require.NoError(t, os.WriteFile(inNewDir, []byte("class C {}"), 0644))

	rec.wait(t, 2*time.Second)
	assert.Contains(t, rec.all(), inNewDir)
}

func TestFileWatcher_Filtering(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "out"), 0755))
	_, rec := startWatcher(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "out", "Gen.java"), []byte("class Gen {}"), 0644))
	time.Sleep(400 * time.Millisecond)
	assert.Empty(t, rec.all())

	lib := filepath.Join(root, "rt.jar")
	require.NoError(t, os.WriteFile(lib, []byte("PK"), 0644))
	rec.wait(t, 2*time.Second)
	assert.Equal(t, []string{lib}, rec.all())
}

func TestFileWatcher_Stop(t *testing.T) {
	t.Parallel()

	w, err := NewFileWatcher(t.TempDir(), javaFilter{}, 0, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background(), func([]string) {}))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Stop()
		}()
	}
	wg.Wait()

	select {
	case <-w.(*fileWatcher).doneCh:
	default:
		t.Fatal("watch goroutine still running after Stop()")
	}
	assert.NoError(t, w.Stop())
}

func TestFileWatcher_StopWithoutStart(t *testing.T) {
	t.Parallel()

	w, err := NewFileWatcher(t.TempDir(), javaFilter{}, 0, nil)
	require.NoError(t, err)
	assert.NoError(t, w.Stop())
}
