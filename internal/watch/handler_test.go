package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sha1n/docfetcher/internal/indexer"
	"github.com/sha1n/docfetcher/internal/parse"
	"github.com/sha1n/docfetcher/internal/registry"
	"github.com/sha1n/docfetcher/internal/scope"
)

const testDebounce = 200 * time.Millisecond

// countingIndexer counts update passes per scope.
type countingIndexer struct {
	mu      sync.Mutex
	updates map[string]int
}

func (c *countingIndexer) UpdateIndex(_ context.Context, root *scope.RootScope) (*indexer.Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates[root.Path()]++
	return &indexer.Report{Root: root.Path()}, nil
}

func (c *countingIndexer) Reindex(ctx context.Context, root *scope.RootScope) (*indexer.Report, error) {
	return c.UpdateIndex(ctx, root)
}

func (c *countingIndexer) DeleteIndex(*scope.RootScope) error {
	return nil
}

func (c *countingIndexer) Updates(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updates[path]
}

func (c *countingIndexer) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = make(map[string]int)
}

type fixture struct {
	base    string
	idx     *countingIndexer
	reg     *registry.Registry
	handler *Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := t.TempDir()
	f := &fixture{base: base, idx: &countingIndexer{updates: make(map[string]int)}}
	f.reg = registry.New(filepath.Join(base, "indexes"), f.idx)
	f.handler = New(f.reg, parse.DefaultRegistry(parse.NewFilter(0)), Options{Debounce: testDebounce})
	t.Cleanup(func() {
		f.handler.Stop()
		_ = f.reg.Close()
	})
	return f
}

// register adds a folder to the registry through a regular onboarding job.
func (f *fixture) register(t *testing.T, rel string) *scope.RootScope {
	t.Helper()
	dir := filepath.Join(f.base, rel)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create %s: %v", dir, err)
	}
	root, err := f.reg.NewRootScope(dir)
	if err != nil {
		t.Fatalf("NewRootScope failed: %v", err)
	}
	if err := f.reg.AddJob(registry.NewReadyJob(root, true, false)); err != nil {
		t.Fatalf("AddJob failed: %v", err)
	}
	f.waitIdle(t)
	if !f.reg.IsRegistered(root) {
		t.Fatalf("Expected %s to be registered", dir)
	}
	f.idx.Reset()
	return root
}

func (f *fixture) waitIdle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.reg.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle failed: %v", err)
	}
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	if err := f.handler.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

// eventually polls cond until it holds or the timeout expires.
func eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestHandler_BurstYieldsSingleUpdate(t *testing.T) {
	f := newFixture(t)
	root := f.register(t, "docs")
	f.start(t)

	for i := range 20 {
		writeFile(t, filepath.Join(root.Path(), fmt.Sprintf("note%d.txt", i)), "content")
	}

	eventually(t, 5*time.Second, func() bool { return f.idx.Updates(root.Path()) > 0 },
		"Expected an update after the burst")
	time.Sleep(3 * testDebounce)
	f.waitIdle(t)

	if got := f.idx.Updates(root.Path()); got != 1 {
		t.Errorf("Expected exactly 1 update, got %d", got)
	}
}

func TestHandler_WaitsForQuiescence(t *testing.T) {
	f := newFixture(t)
	root := f.register(t, "docs")
	f.start(t)

	path := filepath.Join(root.Path(), "a.txt")
	start := time.Now()
	writeFile(t, path, "one")

	eventually(t, 5*time.Second, func() bool { return f.idx.Updates(root.Path()) > 0 },
		"Expected an update")
	if elapsed := time.Since(start); elapsed < testDebounce {
		t.Errorf("Update queued after %v, before the debounce period", elapsed)
	}
}

func TestHandler_IgnoresUnparseableFiles(t *testing.T) {
	f := newFixture(t)
	root := f.register(t, "docs")
	f.start(t)

	writeFile(t, filepath.Join(root.Path(), "image.bin"), "\x00\x01")
	writeFile(t, filepath.Join(root.Path(), "backup.txt~"), "old")

	time.Sleep(3 * testDebounce)
	f.waitIdle(t)
	if got := f.idx.Updates(root.Path()); got != 0 {
		t.Errorf("Expected no update, got %d", got)
	}
}

func TestHandler_IgnoresUnchangedFiles(t *testing.T) {
	f := newFixture(t)
	root := f.register(t, "docs")

	path := filepath.Join(root.Path(), "read.txt")
	writeFile(t, path, "content")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if err := root.PutFile(scope.NewFileWrapper(path, info)); err != nil {
		t.Fatalf("PutFile failed: %v", err)
	}

	f.handler.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Write})
	if pending := f.handler.Pending(); len(pending) != 0 {
		t.Errorf("Expected false positive to be dropped, got %v", pending)
	}

	writeFile(t, path, "changed content")
	f.handler.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Write})
	if pending := f.handler.Pending(); !slices.Equal(pending, []string{root.Path()}) {
		t.Errorf("Pending() = %v, want [%s]", pending, root.Path())
	}

	// The same scope is pending at most once
	f.handler.handleEvent(fsnotify.Event{Name: filepath.Join(root.Path(), "new.txt"), Op: fsnotify.Create})
	if pending := f.handler.Pending(); len(pending) != 1 {
		t.Errorf("Expected one pending scope, got %v", pending)
	}
}

func TestHandler_IgnoresPathsOutsideScopes(t *testing.T) {
	f := newFixture(t)
	f.register(t, "docs")

	f.handler.handleEvent(fsnotify.Event{Name: filepath.Join(f.base, "elsewhere.txt"), Op: fsnotify.Create})
	f.handler.handleEvent(fsnotify.Event{Name: filepath.Join(f.base, "docs", "a.txt"), Op: fsnotify.Chmod})
	if pending := f.handler.Pending(); len(pending) != 0 {
		t.Errorf("Expected no pending scopes, got %v", pending)
	}
}

func TestHandler_PendingScopesInEventOrder(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "a")
	b := f.register(t, "b")

	f.handler.handleEvent(fsnotify.Event{Name: filepath.Join(b.Path(), "x.txt"), Op: fsnotify.Create})
	f.handler.handleEvent(fsnotify.Event{Name: filepath.Join(a.Path(), "y.txt"), Op: fsnotify.Create})

	if pending := f.handler.Pending(); !slices.Equal(pending, []string{b.Path(), a.Path()}) {
		t.Errorf("Pending() = %v", pending)
	}
}

func TestHandler_FollowsRegistry(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "a")
	f.start(t)

	if got := f.handler.Watched(); !slices.Equal(got, []string{a.Path()}) {
		t.Fatalf("Watched() = %v, want [%s]", got, a.Path())
	}

	b := f.register(t, "b")
	if got := f.handler.Watched(); !slices.Equal(got, []string{a.Path(), b.Path()}) {
		t.Errorf("Watched() = %v after registering b", got)
	}

	f.reg.Remove(a)
	if got := f.handler.Watched(); !slices.Equal(got, []string{b.Path()}) {
		t.Errorf("Watched() = %v after removing a", got)
	}
}

func TestHandler_SkipsMissingDirectories(t *testing.T) {
	f := newFixture(t)
	root := f.register(t, "docs")
	if err := os.RemoveAll(root.Path()); err != nil {
		t.Fatalf("RemoveAll failed: %v", err)
	}
	f.start(t)

	if got := f.handler.Watched(); len(got) != 0 {
		t.Errorf("Expected no watches, got %v", got)
	}
}

func TestHandler_SetWatchEnabled(t *testing.T) {
	f := newFixture(t)
	root := f.register(t, "docs")
	f.start(t)

	f.handler.SetWatchEnabled(false, root)
	if got := f.handler.Watched(); len(got) != 0 {
		t.Fatalf("Expected watching to be disabled, got %v", got)
	}

	writeFile(t, filepath.Join(root.Path(), "quiet.txt"), "content")
	time.Sleep(3 * testDebounce)
	f.waitIdle(t)
	if got := f.idx.Updates(root.Path()); got != 0 {
		t.Errorf("Expected no update while disabled, got %d", got)
	}

	f.handler.SetWatchEnabled(true, root)
	writeFile(t, filepath.Join(root.Path(), "loud.txt"), "content")
	eventually(t, 5*time.Second, func() bool { return f.idx.Updates(root.Path()) == 1 },
		"Expected an update after re-enabling")
}

func TestHandler_WatchesNewSubdirectories(t *testing.T) {
	f := newFixture(t)
	root := f.register(t, "docs")
	f.start(t)

	sub := filepath.Join(root.Path(), "sub")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	eventually(t, 5*time.Second, func() bool {
		f.handler.mu.Lock()
		defer f.handler.mu.Unlock()
		return slices.Contains(f.handler.roots[root.Path()], sub)
	}, "Expected new subdirectory to be watched")

	// Let the mkdir event settle before counting updates
	f.waitIdle(t)
	eventually(t, 5*time.Second, func() bool { return f.idx.Updates(root.Path()) == 1 },
		"Expected an update for the new folder")
	f.idx.Reset()

	writeFile(t, filepath.Join(sub, "deep.txt"), "content")
	eventually(t, 5*time.Second, func() bool { return f.idx.Updates(root.Path()) == 1 },
		"Expected an update for a file in the new subdirectory")
}

func TestHandler_StartTwice(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	if err := f.handler.Start(context.Background()); err != ErrRunning {
		t.Errorf("Expected ErrRunning, got %v", err)
	}
	f.handler.Stop()
	f.handler.Stop()
	if err := f.handler.Start(context.Background()); err != nil {
		t.Errorf("Restart failed: %v", err)
	}
}
