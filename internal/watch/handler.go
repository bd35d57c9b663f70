// Package watch turns filesystem notifications inside registered scopes into
// debounced update jobs.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sha1n/docfetcher/internal/parse"
	"github.com/sha1n/docfetcher/internal/registry"
	"github.com/sha1n/docfetcher/internal/scope"
)

// DefaultDebounce is the quiet period after the last event before jobs are
// queued.
const DefaultDebounce = time.Second

// ErrRunning is returned by Start on a handler that is already running.
var ErrRunning = errors.New("watch handler is already running")

// Options configures a Handler.
type Options struct {
	Debounce time.Duration
}

// Handler watches the directory trees of registered root scopes. Changes to
// parseable files mark their scope as pending; once no event has arrived for
// the debounce period, one update job per pending scope is queued.
type Handler struct {
	reg      *registry.Registry
	parsers  *parse.Registry
	debounce time.Duration
	logger   *slog.Logger

	mu          sync.Mutex
	fsw         *fsnotify.Watcher
	roots       map[string][]string // root path -> watched directories
	pending     []*scope.RootScope
	lastEvent   time.Time
	wake        chan struct{}
	unsubscribe func()
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// New creates a stopped handler.
func New(reg *registry.Registry, parsers *parse.Registry, opts Options) *Handler {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	return &Handler{
		reg:      reg,
		parsers:  parsers,
		debounce: opts.Debounce,
		logger:   slog.Default().With("component", "watch"),
		roots:    make(map[string][]string),
		wake:     make(chan struct{}, 1),
	}
}

// Start watches all registered scopes and follows registry changes until
// Stop is called or ctx is done.
func (h *Handler) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.fsw != nil {
		h.mu.Unlock()
		return ErrRunning
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		h.mu.Unlock()
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	h.fsw = fsw
	h.cancel = cancel
	h.mu.Unlock()

	unsubscribe := h.reg.RootChanged.Subscribe(func(*registry.Registry) { h.sync() })
	h.mu.Lock()
	h.unsubscribe = unsubscribe
	h.mu.Unlock()
	h.sync()

	h.wg.Add(2)
	go h.readEvents(ctx, fsw)
	go h.processPending(ctx)

	h.logger.Info("Watching scopes", "count", len(h.Watched()), "debounce", h.debounce)
	return nil
}

// Stop removes all watches and stops the handler's goroutines. Pending scopes
// are dropped.
func (h *Handler) Stop() {
	h.mu.Lock()
	fsw := h.fsw
	if fsw == nil {
		h.mu.Unlock()
		return
	}
	h.fsw = nil
	h.cancel()
	h.roots = make(map[string][]string)
	h.pending = nil
	unsubscribe := h.unsubscribe
	h.unsubscribe = nil
	h.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if err := fsw.Close(); err != nil {
		h.logger.Debug("Failed to close watcher", "error", err)
	}
	h.wg.Wait()
}

// SetWatchEnabled adds or removes the watches of the given scopes. It serves
// to silence scopes during bulk operations; the next registry change restores
// watching for every registered scope.
func (h *Handler) SetWatchEnabled(enabled bool, roots ...*scope.RootScope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fsw == nil {
		return
	}
	for _, root := range roots {
		if enabled {
			h.addWatchLocked(root)
		} else {
			h.removeWatchLocked(root.Path())
		}
	}
}

// Watched returns the watched scope directories, sorted.
func (h *Handler) Watched() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.roots))
	for path := range h.roots {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// Pending returns the scopes waiting for the debounce period, in event order.
func (h *Handler) Pending() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.pending))
	for _, root := range h.pending {
		out = append(out, root.Path())
	}
	return out
}

// sync makes the watched set match the registry entries.
func (h *Handler) sync() {
	entries := h.reg.Entries()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fsw == nil {
		return
	}
	registered := make(map[string]bool, len(entries))
	for _, root := range entries {
		registered[root.Path()] = true
		h.addWatchLocked(root)
	}
	for path := range h.roots {
		if !registered[path] {
			h.removeWatchLocked(path)
		}
	}
	h.pending = slices.DeleteFunc(h.pending, func(root *scope.RootScope) bool {
		return !registered[root.Path()]
	})
}

func (h *Handler) addWatchLocked(root *scope.RootScope) {
	if _, ok := h.roots[root.Path()]; ok || !root.Exists() {
		return
	}
	h.roots[root.Path()] = h.watchTreeLocked(root.Path(), root.Path())
}

// watchTreeLocked adds watches for dir and its subfolders and returns the
// folders that are now watched.
func (h *Handler) watchTreeLocked(rootPath, dir string) []string {
	var added []string
	filter := h.parsers.Filter()
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != rootPath && filter != nil {
			if rel, err := filepath.Rel(rootPath, path); err == nil && filter.ShouldExcludeDir(rel) {
				return filepath.SkipDir
			}
		}
		if err := h.fsw.Add(path); err != nil {
			h.logger.Debug("Failed to watch directory", "path", path, "error", err)
			return nil
		}
		added = append(added, path)
		return nil
	})
	return added
}

func (h *Handler) removeWatchLocked(rootPath string) {
	dirs, ok := h.roots[rootPath]
	if !ok {
		return
	}
	for _, dir := range dirs {
		if err := h.fsw.Remove(dir); err != nil {
			h.logger.Debug("Failed to unwatch directory", "path", dir, "error", err)
		}
	}
	delete(h.roots, rootPath)
}

func (h *Handler) readEvents(ctx context.Context, fsw *fsnotify.Watcher) {
	defer h.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			h.handleEvent(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			h.logger.Debug("Watch error", "error", err)
		}
	}
}

func (h *Handler) handleEvent(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}
	path := filepath.Clean(ev.Name)

	root := h.reg.EntryFor(path)
	if root == nil {
		return
	}

	info, statErr := os.Stat(path)
	if statErr == nil && info.IsDir() && ev.Has(fsnotify.Create) {
		h.mu.Lock()
		if dirs, ok := h.roots[root.Path()]; ok && h.fsw != nil {
			h.roots[root.Path()] = append(dirs, h.watchTreeLocked(root.Path(), path)...)
		}
		h.mu.Unlock()
	}
	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		h.forgetDirs(root.Path(), path)
	}

	h.notify(root, path, info, statErr)
}

// notify marks the scope as pending unless the event concerns an
// unparseable file or a file that has not actually changed.
func (h *Handler) notify(root *scope.RootScope, path string, info fs.FileInfo, statErr error) {
	if statErr == nil && info.Mode().IsRegular() && !h.parsers.CanParseIn(root.Path(), path) {
		return
	}
	// Some platforms report reads as modifications
	if path != root.Path() {
		if fw := root.FileWrapperDeep(path); fw != nil && !fw.IsModified() {
			return
		}
	}

	h.mu.Lock()
	h.lastEvent = time.Now()
	if !slices.ContainsFunc(h.pending, func(r *scope.RootScope) bool { return r.Path() == root.Path() }) {
		h.pending = append(h.pending, root)
		h.logger.Debug("Scope changed", "root", root.Path(), "path", path)
	}
	h.mu.Unlock()

	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// forgetDirs drops bookkeeping for watched folders at or below path. The
// kernel removes their watches on its own.
func (h *Handler) forgetDirs(rootPath, path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	dirs, ok := h.roots[rootPath]
	if !ok || path == rootPath {
		return
	}
	h.roots[rootPath] = slices.DeleteFunc(dirs, func(dir string) bool {
		return scope.ContainsPath(path, dir)
	})
}

// processPending queues an update job for each pending scope once events
// have been quiet for the debounce period.
func (h *Handler) processPending(ctx context.Context) {
	defer h.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.wake:
		}

		for {
			h.mu.Lock()
			if len(h.pending) == 0 {
				h.mu.Unlock()
				break
			}
			wait := h.debounce - time.Since(h.lastEvent)
			if wait > 0 {
				h.mu.Unlock()
				select {
				case <-ctx.Done():
					return
				case <-time.After(wait):
				}
				continue
			}
			root := h.pending[0]
			h.pending = h.pending[1:]
			h.mu.Unlock()

			if err := h.reg.AddJob(registry.NewReadyJob(root, false, false)); err != nil {
				h.logger.Debug("Failed to queue update", "root", root.Path(), "error", err)
			}
		}
	}
}
