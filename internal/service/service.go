// Package service wires the registry, the indexer, the watcher and the
// searcher into one process-wide lifecycle.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/sha1n/docfetcher/internal/config"
	"github.com/sha1n/docfetcher/internal/daemon"
	"github.com/sha1n/docfetcher/internal/indexer"
	"github.com/sha1n/docfetcher/internal/parse"
	"github.com/sha1n/docfetcher/internal/registry"
	"github.com/sha1n/docfetcher/internal/scope"
	"github.com/sha1n/docfetcher/internal/search"
	"github.com/sha1n/docfetcher/internal/watch"
	"golang.org/x/sync/errgroup"
)

// MaxParallelLoads is the maximum number of scopes whose file state is loaded
// concurrently at startup.
const MaxParallelLoads = 4

var (
	// ErrNotRegistered is returned for paths that are not an indexed folder.
	ErrNotRegistered = errors.New("folder is not indexed")

	// ErrNotInScope is returned for files outside every indexed folder.
	ErrNotInScope = errors.New("file is not inside an indexed folder")

	// ErrOverlap is returned when a new folder overlaps indexed or queued ones.
	ErrOverlap = errors.New("folder overlaps another folder")

	// ErrAlreadyQueued is returned when a folder already waits in the queue.
	ErrAlreadyQueued = errors.New("folder is already queued for indexing")

	// ErrJobNotFound is returned for unknown job ids.
	ErrJobNotFound = errors.New("job not found")

	// ErrTooLarge is returned when previewing a file above the size limit.
	ErrTooLarge = errors.New("file exceeds the maximum file size")
)

// Service owns the indexes under one index parent directory. Only one
// service per directory can be open at a time.
type Service struct {
	settings *config.Settings
	logger   *slog.Logger

	lock     *registry.InstanceLock
	parsers  *parse.Registry
	pool     *indexer.Pool
	indexer  *indexer.Indexer
	registry *registry.Registry
	watcher  *watch.Handler
	searcher *search.Searcher

	mu          sync.Mutex
	initialized bool
	closed      bool
	unsubscribe []func()
}

// New opens the index parent directory of the settings. It fails with
// registry.ErrLocked when another process holds the directory.
func New(settings *config.Settings) (*Service, error) {
	if settings == nil {
		return nil, fmt.Errorf("settings cannot be nil")
	}

	dir := settings.Index.Dir
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	lock := registry.NewInstanceLock(dir)
	if err := lock.TryAcquire(); err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", dir, err)
	}

	parsers := parse.DefaultRegistry(parse.NewFilterWithPatterns(settings.Index.ExcludePatterns, settings.Index.MaxFileSize))
	pool := indexer.NewPool(dir)
	idx := indexer.New(pool, parsers, settings.Index.BatchSize)
	reg := registry.Open(dir, idx)

	return &Service{
		settings: settings,
		logger:   slog.Default().With("component", "service"),
		lock:     lock,
		parsers:  parsers,
		pool:     pool,
		indexer:  idx,
		registry: reg,
		watcher:  watch.New(reg, parsers, watch.Options{Debounce: settings.Watch.Debounce}),
		searcher: search.New(reg, pool, settings.Search.MaxResults),
	}, nil
}

// Initialize recovers the persisted state and starts watching. Registered
// folders whose index is gone are dropped, unreferenced index directories are
// deleted and folders the daemon saw change are queued for an update.
func (s *Service) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return registry.ErrClosed
	}
	if s.initialized {
		return nil
	}

	// Read before the first save rewrites the file
	modified, err := daemon.ModifiedFolders(s.registry.Dir())
	if err != nil {
		s.logger.Warn("Failed to read indexes file", "error", err)
	}

	for _, root := range s.registry.Prune(s.indexer.IndexExists) {
		s.logger.Info("Dropping folder without index", "path", root.Path(), "index_dir", root.IndexDir())
	}
	s.sweepOrphans()

	if err := s.loadStates(ctx); err != nil {
		return err
	}

	s.unsubscribe = append(s.unsubscribe,
		s.registry.Saved.Subscribe(func(paths []string) {
			if err := daemon.WriteRegistered(s.registry.Dir(), paths); err != nil {
				s.logger.Warn("Failed to write indexes file", "error", err)
			}
		}),
		s.registry.JobFinished.Subscribe(s.logResult),
	)

	for _, path := range modified {
		root := s.registry.Entry(path)
		if root == nil {
			continue
		}
		s.logger.Info("Folder changed while offline", "path", path)
		if err := s.registry.AddJob(registry.NewReadyJob(root, false, false)); err != nil {
			return err
		}
	}

	if s.settings.Watch.Enabled {
		if err := s.watcher.Start(ctx); err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
	}

	// Saves right away when the queue is empty
	s.registry.StartNextJob()
	s.initialized = true
	s.logger.Info("Service initialized", "folders", len(s.registry.Entries()), "index_dir", s.registry.Dir())
	return nil
}

func (s *Service) sweepOrphans() {
	dirs, err := s.pool.IndexDirs()
	if err != nil {
		s.logger.Warn("Failed to list index directories", "error", err)
		return
	}
	for _, name := range s.registry.Orphans(dirs) {
		s.logger.Info("Deleting unreferenced index", "index_dir", name)
		if err := s.pool.Drop(name); err != nil {
			s.logger.Warn("Failed to delete unreferenced index", "index_dir", name, "error", err)
		}
	}
}

// loadStates restores the file state of every registered folder.
func (s *Service) loadStates(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxParallelLoads)
	for _, root := range s.registry.Entries() {
		g.Go(func() error {
			if err := s.indexer.LoadState(gctx, root); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				// The next update rescans every file
				s.logger.Warn("Failed to load file state", "path", root.Path(), "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *Service) logResult(result registry.JobResult) {
	if result.Report == nil {
		return
	}
	r := result.Report
	s.logger.Info("Indexing finished",
		"path", r.Root,
		"indexed", r.Indexed,
		"unchanged", r.Unchanged,
		"removed", r.Removed,
		"skipped", r.Skipped,
		"failures", len(r.Failures),
		"interrupted", result.Interrupted,
		"duration", r.Duration())
}

// Registry returns the scope registry.
func (s *Service) Registry() *registry.Registry {
	return s.registry
}

// Settings returns the service settings.
func (s *Service) Settings() *config.Settings {
	return s.settings
}

// Scopes returns the indexed folders sorted by path.
func (s *Service) Scopes() []*scope.RootScope {
	return s.registry.Entries()
}

// AddScope queues a new folder for indexing. It is registered once its index
// has been built.
func (s *Service) AddScope(path string) (*registry.Job, error) {
	root, err := s.newRoot(path)
	if err != nil {
		return nil, err
	}
	if msg := s.registry.CheckIntersection(root); msg != "" {
		return nil, fmt.Errorf("%w: %s", ErrOverlap, msg)
	}

	job := registry.NewReadyJob(root, true, false)
	if err := s.registry.AddJob(job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *Service) newRoot(path string) (*scope.RootScope, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot index %s: %w", path, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("cannot index %s: not a directory", path)
	}
	return s.registry.NewRootScope(path)
}

// UpdateScope queues an incremental update of an indexed folder.
func (s *Service) UpdateScope(path string) (*registry.Job, error) {
	return s.queue(path, false)
}

// RebuildScope queues a rebuild of an indexed folder from scratch.
func (s *Service) RebuildScope(path string) (*registry.Job, error) {
	return s.queue(path, true)
}

func (s *Service) queue(path string, rebuild bool) (*registry.Job, error) {
	root, err := s.entry(path)
	if err != nil {
		return nil, err
	}
	if s.registry.IntersectsInactiveQueue(root) {
		return nil, fmt.Errorf("%s: %w", root.Path(), ErrAlreadyQueued)
	}

	job := registry.NewReadyJob(root, false, rebuild)
	if err := s.registry.AddJob(job); err != nil {
		return nil, err
	}
	return job, nil
}

// RemoveScope drops the queued jobs of an indexed folder, unregisters it and
// deletes its index.
func (s *Service) RemoveScope(path string) error {
	root, err := s.entry(path)
	if err != nil {
		return err
	}
	s.registry.RemoveFromQueue(registry.NewJob(root, false, false))
	s.registry.Remove(root)
	return s.registry.Save()
}

// SetChecked includes or excludes a folder inside an indexed folder from
// searches.
func (s *Service) SetChecked(path string, checked bool) error {
	abs, err := scope.CleanPath(path)
	if err != nil {
		return err
	}
	if err := s.registry.SetChecked(abs, checked); err != nil {
		return err
	}
	return s.registry.Save()
}

// Folders lists the direct subfolders of a folder inside an indexed folder
// with their search state.
func (s *Service) Folders(path string) ([]scope.Info, error) {
	abs, err := scope.CleanPath(path)
	if err != nil {
		return nil, err
	}
	root := s.registry.EntryFor(abs)
	if root == nil {
		return nil, fmt.Errorf("%s: %w", abs, ErrNotInScope)
	}
	return root.Children(abs)
}

func (s *Service) entry(path string) (*scope.RootScope, error) {
	abs, err := scope.CleanPath(path)
	if err != nil {
		return nil, err
	}
	root := s.registry.Entry(abs)
	if root == nil {
		return nil, fmt.Errorf("%s: %w", abs, ErrNotRegistered)
	}
	return root, nil
}

// Watched returns the indexed folders watched for changes.
func (s *Service) Watched() []string {
	return s.watcher.Watched()
}

// PendingChanges returns the folders with changes waiting for the debounce
// period before they are queued for an update.
func (s *Service) PendingChanges() []string {
	return s.watcher.Pending()
}

// Jobs returns the queued jobs, including the running one.
func (s *Service) Jobs() []*registry.Job {
	return s.registry.Jobs()
}

// CurrentJob returns the running job, or nil.
func (s *Service) CurrentJob() *registry.Job {
	return s.registry.CurrentJob()
}

// CancelJob removes the job with the given id and every other job for the
// same folder from the queue.
func (s *Service) CancelJob(id string) (*registry.Job, error) {
	for _, job := range s.registry.Jobs() {
		if job.ID() == id {
			s.registry.RemoveFromQueue(job)
			return job, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", id, ErrJobNotFound)
}

// ClearQueue cancels the running job and drops all queued ones.
func (s *Service) ClearQueue() {
	s.registry.ClearQueue()
}

// Preview extracts the text of a file inside an indexed folder.
func (s *Service) Preview(ctx context.Context, path string) (*parse.Document, error) {
	abs, err := scope.CleanPath(path)
	if err != nil {
		return nil, err
	}
	if s.registry.EntryFor(abs) == nil {
		return nil, fmt.Errorf("%s: %w", abs, ErrNotInScope)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", abs, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("cannot read %s: is a directory", abs)
	}
	if s.parsers.Filter().TooLarge(info.Size()) {
		return nil, fmt.Errorf("%s is %d bytes, limit is %d: %w", abs, info.Size(), s.parsers.Filter().MaxFileSize(), ErrTooLarge)
	}
	return s.parsers.Parse(ctx, abs)
}

// Included reports whether searches cover the file or folder at path.
func (s *Service) Included(path string) bool {
	abs, err := scope.CleanPath(path)
	if err != nil {
		return false
	}
	root := s.registry.EntryFor(abs)
	return root != nil && root.IsIncluded(abs)
}

// Search queries the indexes of the checked folders.
func (s *Service) Search(ctx context.Context, req search.Request) (*search.Result, error) {
	return s.searcher.Search(ctx, req)
}

// Extensions lists the file extensions that are indexed.
func (s *Service) Extensions() []string {
	return s.parsers.Extensions()
}

// WaitIdle blocks until no indexing job is running or ready.
func (s *Service) WaitIdle(ctx context.Context) error {
	return s.registry.WaitIdle(ctx)
}

// Index queues the folders for indexing and waits for their jobs. New folders
// are added, indexed ones are updated or rebuilt. Nothing is queued unless
// every folder can be.
func (s *Service) Index(ctx context.Context, rebuild bool, paths ...string) ([]registry.JobResult, error) {
	var (
		newRoots []*scope.RootScope
		existing []*scope.RootScope
	)
	for _, path := range paths {
		if root, _ := s.entry(path); root != nil {
			if slices.Contains(existing, root) {
				continue
			}
			if s.registry.IntersectsInactiveQueue(root) {
				return nil, fmt.Errorf("%s: %w", root.Path(), ErrAlreadyQueued)
			}
			existing = append(existing, root)
			continue
		}
		root, err := s.newRoot(path)
		if err != nil {
			return nil, err
		}
		newRoots = append(newRoots, root)
	}
	if msg := s.registry.CheckIntersection(newRoots...); msg != "" {
		return nil, fmt.Errorf("%w: %s", ErrOverlap, msg)
	}

	var (
		mu       sync.Mutex
		finished = make(map[string]registry.JobResult)
	)
	unsubscribe := s.registry.JobFinished.Subscribe(func(r registry.JobResult) {
		mu.Lock()
		finished[r.Job.ID()] = r
		mu.Unlock()
	})
	defer unsubscribe()

	var jobs []*registry.Job
	for _, root := range newRoots {
		jobs = append(jobs, registry.NewReadyJob(root, true, false))
	}
	for _, root := range existing {
		jobs = append(jobs, registry.NewReadyJob(root, false, rebuild))
	}
	for _, job := range jobs {
		if err := s.registry.AddJob(job); err != nil {
			return nil, err
		}
	}

	if err := s.registry.WaitIdle(ctx); err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	results := make([]registry.JobResult, 0, len(jobs))
	for _, job := range jobs {
		if r, ok := finished[job.ID()]; ok {
			results = append(results, r)
		}
	}
	return results, nil
}

// Close stops the watcher and the worker, saves the registry and releases
// the index directory. Later calls return nil.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	s.watcher.Stop()
	var errs []error
	if err := s.registry.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to save registry: %w", err))
	}
	for _, fn := range s.unsubscribe {
		fn()
	}
	if err := s.pool.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close indexes: %w", err))
	}
	if err := s.lock.Release(); err != nil {
		errs = append(errs, fmt.Errorf("failed to release lock: %w", err))
	}
	return errors.Join(errs...)
}
