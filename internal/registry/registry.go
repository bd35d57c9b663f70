// Package registry owns the registered root scopes and the indexing job
// queue. Jobs run one at a time on a single worker goroutine.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/sha1n/docfetcher/internal/event"
	"github.com/sha1n/docfetcher/internal/indexer"
	"github.com/sha1n/docfetcher/internal/scope"
)

// ErrClosed is returned by operations on a closed registry.
var ErrClosed = errors.New("registry is closed")

// Indexer performs the index operations of a job.
type Indexer interface {
	UpdateIndex(ctx context.Context, root *scope.RootScope) (*indexer.Report, error)
	Reindex(ctx context.Context, root *scope.RootScope) (*indexer.Report, error)
	DeleteIndex(root *scope.RootScope) error
}

// JobResult describes a finished job.
type JobResult struct {
	Job         *Job
	Report      *indexer.Report
	Err         error
	Interrupted bool
}

type queued struct {
	job         *Job
	unsubscribe func()
}

// Registry holds the registered root scopes, the FIFO job queue and the state
// of the single indexing worker. It is safe for concurrent use. Events fire
// after internal locks are released. They are delivered on the goroutine that
// fired them, unless another goroutine holds the hub in a transaction; then
// that goroutine delivers them when the transaction ends.
type Registry struct {
	dir     string
	indexer Indexer
	logger  *slog.Logger

	hub          *event.Hub
	QueueChanged *event.Event[*Registry]
	RootChanged  *event.Event[*Registry]
	Changed      *event.Event[*Registry]
	JobFinished  *event.Event[JobResult]
	SaveFailed   *event.Event[error]
	// Saved fires after a successful save with the registered directories.
	Saved *event.Event[[]string]

	mu      sync.Mutex
	roots   map[string]*scope.RootScope
	queue   []*queued
	current *Job
	// active is the root the worker is indexing. Unlike current it is only
	// cleared when the worker finishes.
	active  *scope.RootScope
	running bool
	cancel  context.CancelFunc
	closed  bool
	notify  chan struct{}
	wg      sync.WaitGroup

	saveMu sync.Mutex
}

// New creates an empty registry persisting to dir.
func New(dir string, idx Indexer) *Registry {
	hub := event.NewHub()
	return &Registry{
		dir:          dir,
		indexer:      idx,
		logger:       slog.Default().With("component", "registry"),
		hub:          hub,
		QueueChanged: event.New[*Registry](hub),
		RootChanged:  event.New[*Registry](hub),
		Changed:      event.New[*Registry](hub),
		JobFinished:  event.New[JobResult](nil),
		SaveFailed:   event.New[error](nil),
		Saved:        event.New[[]string](nil),
		roots:        make(map[string]*scope.RootScope),
		notify:       make(chan struct{}),
	}
}

// Open loads the registry persisted in dir. Missing or unreadable state
// yields an empty registry.
func Open(dir string, idx Indexer) *Registry {
	r := New(dir, idx)
	state, err := LoadState(r.statePath())
	if err != nil {
		r.logger.Warn("Discarding registry state", "path", r.statePath(), "error", err)
		return r
	}
	for _, s := range state.Scopes {
		root, err := restoreScope(s)
		if err != nil {
			r.logger.Warn("Discarding registry entry", "path", s.Path, "error", err)
			continue
		}
		r.roots[root.Path()] = root
	}
	return r
}

// Hub returns the hub batching the registry's change events.
// Dir returns the index parent directory.
func (r *Registry) Dir() string {
	return r.dir
}

func (r *Registry) statePath() string {
	return filepath.Join(r.dir, StateFilename)
}

// Entries returns the registered root scopes sorted by path.
func (r *Registry) Entries() []*scope.RootScope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entriesLocked()
}

func (r *Registry) entriesLocked() []*scope.RootScope {
	roots := make([]*scope.RootScope, 0, len(r.roots))
	for _, root := range r.roots {
		roots = append(roots, root)
	}
	scope.SortByPath(roots)
	return roots
}

// CheckedEntries returns the registered root scopes with at least one checked
// folder.
func (r *Registry) CheckedEntries() []*scope.RootScope {
	var out []*scope.RootScope
	for _, root := range r.Entries() {
		if root.HasChecked() {
			out = append(out, root)
		}
	}
	return out
}

// Entry returns the registered root scope for a directory, or nil.
func (r *Registry) Entry(path string) *scope.RootScope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roots[filepath.Clean(path)]
}

// EntryFor returns the registered root scope containing path, or nil.
func (r *Registry) EntryFor(path string) *scope.RootScope {
	path = filepath.Clean(path)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, root := range r.roots {
		if root.Contains(path) {
			return root
		}
	}
	return nil
}

// ContainsEntry reports whether a directory is registered.
func (r *Registry) ContainsEntry(path string) bool {
	return r.Entry(path) != nil
}

// IsRegistered reports whether this exact root scope instance is registered.
func (r *Registry) IsRegistered(root *scope.RootScope) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roots[root.Path()] == root
}

// ContainsIndexDir reports whether a registered or queued root scope uses
// the index directory name.
func (r *Registry) ContainsIndexDir(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.indexDirTakenLocked(name)
}

func (r *Registry) indexDirTakenLocked(name string) bool {
	for _, root := range r.roots {
		if root.IndexDir() == name {
			return true
		}
	}
	for _, q := range r.queue {
		if q.job.Root().IndexDir() == name {
			return true
		}
	}
	return false
}

// NewRootScope creates an unregistered root scope for the directory with a
// fresh index directory name.
func (r *Registry) NewRootScope(path string) (*scope.RootScope, error) {
	path, err := scope.CleanPath(path)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	name := scope.IndexDirName(path, func(name string) bool {
		if r.indexDirTakenLocked(name) {
			return true
		}
		_, err := os.Stat(filepath.Join(r.dir, name))
		return err == nil
	})
	return scope.NewRootScope(path, name), nil
}

// CheckIntersection returns a message describing the first overlap of the
// candidates with each other, with registered scopes or with queued scopes.
// It returns an empty string when there is none.
func (r *Registry) CheckIntersection(roots ...*scope.RootScope) string {
	for i, a := range roots {
		for _, b := range roots[i+1:] {
			if a.Intersects(b) {
				return fmt.Sprintf("The folders %s and %s overlap.", a.Path(), b.Path())
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, candidate := range roots {
		for _, entry := range r.entriesLocked() {
			if candidate.Path() == entry.Path() {
				return fmt.Sprintf("The folder %s is already indexed.", candidate.Path())
			}
			if candidate.Intersects(entry) {
				return fmt.Sprintf("The folder %s overlaps with the indexed folder %s.", candidate.Path(), entry.Path())
			}
		}
		for _, q := range r.queue {
			if candidate.Intersects(q.job.Root()) {
				return fmt.Sprintf("The folder %s overlaps with the folder %s, which is queued for indexing.",
					candidate.Path(), q.job.Root().Path())
			}
		}
	}
	return ""
}

// IntersectsEntry reports whether any candidate overlaps a registered scope.
func (r *Registry) IntersectsEntry(roots ...*scope.RootScope) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.intersectsEntryLocked(roots...)
}

func (r *Registry) intersectsEntryLocked(roots ...*scope.RootScope) bool {
	for _, candidate := range roots {
		for _, entry := range r.roots {
			if candidate.Intersects(entry) {
				return true
			}
		}
	}
	return false
}

// IntersectsQueue reports whether any candidate overlaps a queued scope.
func (r *Registry) IntersectsQueue(roots ...*scope.RootScope) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.intersectsQueueLocked(false, roots...)
}

// IntersectsInactiveQueue is IntersectsQueue ignoring the job that is
// currently executing.
func (r *Registry) IntersectsInactiveQueue(roots ...*scope.RootScope) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.intersectsQueueLocked(true, roots...)
}

func (r *Registry) intersectsQueueLocked(skipCurrent bool, roots ...*scope.RootScope) bool {
	for _, candidate := range roots {
		for _, q := range r.queue {
			if skipCurrent && q.job == r.current {
				continue
			}
			if candidate.Intersects(q.job.Root()) {
				return true
			}
		}
	}
	return false
}

// Jobs returns the queued jobs in FIFO order, including the running one.
func (r *Registry) Jobs() []*Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	jobs := make([]*Job, 0, len(r.queue))
	for _, q := range r.queue {
		jobs = append(jobs, q.job)
	}
	return jobs
}

// SubmittedJobs returns the queued jobs that are ready for indexing.
func (r *Registry) SubmittedJobs() []*Job {
	var out []*Job
	for _, j := range r.Jobs() {
		if j.IsReady() {
			out = append(out, j)
		}
	}
	return out
}

// CurrentJob returns the executing job, or nil.
func (r *Registry) CurrentJob() *Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// AddJob appends a job to the queue and starts it if nothing else is
// running. Duplicates are allowed.
func (r *Registry) AddJob(job *Job) error {
	unsubscribe := job.ReadyChanged.Subscribe(func(*Job) {
		r.mu.Lock()
		r.signalLocked()
		r.mu.Unlock()
		r.QueueChanged.Fire(r)
		r.StartNextJob()
	})

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		unsubscribe()
		return ErrClosed
	}
	r.queue = append(r.queue, &queued{job: job, unsubscribe: unsubscribe})
	r.mu.Unlock()

	r.logger.Debug("Job queued", "job", job.String(), "id", job.ID(), "ready", job.IsReady())
	r.QueueChanged.Fire(r)
	r.StartNextJob()
	return nil
}

// RemoveFromQueue removes all jobs equal to job. If one of them is
// executing, the worker is canceled and the current job cleared right away.
func (r *Registry) RemoveFromQueue(job *Job) {
	r.mu.Lock()
	var removed []*queued
	r.queue = slices.DeleteFunc(r.queue, func(q *queued) bool {
		if q.job.Equal(job) {
			removed = append(removed, q)
			return true
		}
		return false
	})
	if r.current != nil && r.current.Equal(job) {
		r.current = nil
		if r.cancel != nil {
			r.cancel()
		}
	}
	r.signalLocked()
	r.mu.Unlock()

	for _, q := range removed {
		q.unsubscribe()
	}
	r.QueueChanged.Fire(r)
}

// ClearQueue cancels the worker and empties the queue.
func (r *Registry) ClearQueue() {
	r.mu.Lock()
	removed := r.queue
	r.queue = nil
	r.current = nil
	if r.cancel != nil {
		r.cancel()
	}
	r.signalLocked()
	r.mu.Unlock()

	for _, q := range removed {
		q.unsubscribe()
	}
	r.QueueChanged.Fire(r)
}

// Remove unregisters root scopes and deletes their indexes. A scope that is
// being indexed has its job canceled; the worker deletes its index once it
// stops writing.
func (r *Registry) Remove(roots ...*scope.RootScope) {
	r.mu.Lock()
	var deleteNow []*scope.RootScope
	changed := false
	for _, root := range roots {
		existing, ok := r.roots[root.Path()]
		if !ok {
			continue
		}
		delete(r.roots, root.Path())
		changed = true
		if r.running && r.active == existing {
			r.cancel()
			continue
		}
		deleteNow = append(deleteNow, existing)
	}
	r.mu.Unlock()

	for _, root := range deleteNow {
		if err := r.indexer.DeleteIndex(root); err != nil {
			r.logger.Warn("Failed to delete index", "root", root.Path(), "error", err)
		}
	}
	if changed {
		r.fireRootChanged()
	}
}

// Prune unregisters root scopes for which exists reports false and returns
// them. Their indexes are not touched.
func (r *Registry) Prune(exists func(*scope.RootScope) bool) []*scope.RootScope {
	var pruned []*scope.RootScope
	for _, root := range r.Entries() {
		if !exists(root) {
			pruned = append(pruned, root)
		}
	}
	if len(pruned) == 0 {
		return nil
	}

	r.mu.Lock()
	for _, root := range pruned {
		delete(r.roots, root.Path())
	}
	r.mu.Unlock()
	r.fireRootChanged()
	return pruned
}

// Orphans returns the names among dirs that look like index directories but
// belong to no registered or queued root scope.
func (r *Registry) Orphans(dirs []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, name := range dirs {
		if scope.IndexDirPattern.MatchString(name) && !r.indexDirTakenLocked(name) {
			out = append(out, name)
		}
	}
	return out
}

// SetChecked changes the check state of a folder inside a registered scope.
func (r *Registry) SetChecked(path string, checked bool) error {
	root := r.EntryFor(path)
	if root == nil {
		return fmt.Errorf("%s is not inside an indexed folder", path)
	}
	if err := root.SetChecked(filepath.Clean(path), checked); err != nil {
		return err
	}
	r.Changed.Fire(r)
	return nil
}

func (r *Registry) fireRootChanged() {
	r.hub.Transaction(func() {
		r.RootChanged.Fire(r)
		r.Changed.Fire(r)
	})
}

// register adds a freshly built scope unless it overlaps an entry. It
// reports whether the scope was added.
func (r *Registry) register(root *scope.RootScope) bool {
	r.mu.Lock()
	if r.intersectsEntryLocked(root) {
		r.mu.Unlock()
		return false
	}
	r.roots[root.Path()] = root
	r.mu.Unlock()
	r.fireRootChanged()
	return true
}

// StartNextJob starts the first ready job unless the worker is busy. When
// no job is ready the registry is saved; save failures are logged and fired
// on SaveFailed.
func (r *Registry) StartNextJob() {
	r.mu.Lock()
	if r.closed || r.running {
		r.mu.Unlock()
		return
	}
	var next *Job
	for _, q := range r.queue {
		if q.job.IsReady() {
			next = q.job
			break
		}
	}
	if next == nil {
		r.signalLocked()
		r.mu.Unlock()
		r.saveBestEffort()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.running = true
	r.current = next
	r.active = next.Root()
	r.cancel = cancel
	r.wg.Add(1)
	r.mu.Unlock()

	go r.run(ctx, next)
}

func (r *Registry) run(ctx context.Context, job *Job) {
	defer r.wg.Done()

	// The job's flags never change, but current may be cleared at any time
	root := job.Root()
	addToRegistry := job.AddToRegistry()
	doRebuild := job.DoRebuild()
	logger := r.logger.With("job", job.String(), "id", job.ID())

	result := JobResult{Job: job}
	defer func() { r.finish(job, result) }()

	if !addToRegistry && !r.IsRegistered(root) {
		logger.Debug("Skipping job for unregistered scope")
		return
	}

	logger.Info("Indexing started")
	if doRebuild && !addToRegistry {
		result.Report, result.Err = r.indexer.Reindex(ctx, root)
	} else {
		result.Report, result.Err = r.indexer.UpdateIndex(ctx, root)
	}
	result.Interrupted = ctx.Err() != nil

	switch {
	case result.Interrupted:
		logger.Info("Indexing interrupted")
		if addToRegistry {
			r.deleteIndex(root)
		} else if doRebuild {
			r.mu.Lock()
			if r.roots[root.Path()] == root {
				delete(r.roots, root.Path())
			}
			r.mu.Unlock()
			r.fireRootChanged()
		}
	case errors.Is(result.Err, scope.ErrDirNotFound):
		logger.Info("Scope directory is gone")
	case result.Err != nil:
		logger.Error("Indexing failed", "error", result.Err)
		if addToRegistry {
			r.deleteIndex(root)
		}
	case addToRegistry:
		if !r.register(root) {
			logger.Warn("Discarding index of scope overlapping an indexed folder")
			r.deleteIndex(root)
		}
	}

	// Removed while indexing: the index is no longer referenced
	if !addToRegistry && !r.IsRegistered(root) {
		r.deleteIndex(root)
	}
}

func (r *Registry) deleteIndex(root *scope.RootScope) {
	if err := r.indexer.DeleteIndex(root); err != nil {
		r.logger.Warn("Failed to delete index", "root", root.Path(), "error", err)
	}
}

// finish retires the job. The worker counts as running until listeners have
// been notified and, if nothing else is ready, the registry has been saved, so
// WaitIdle returns only after both.
func (r *Registry) finish(job *Job, result JobResult) {
	r.mu.Lock()
	if r.current == job {
		r.current = nil
	}
	r.active = nil
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	var removed []*queued
	r.queue = slices.DeleteFunc(r.queue, func(q *queued) bool {
		if q.job == job {
			removed = append(removed, q)
			return true
		}
		return false
	})
	r.mu.Unlock()

	for _, q := range removed {
		q.unsubscribe()
	}
	r.JobFinished.Fire(result)
	r.QueueChanged.Fire(r)

	r.mu.Lock()
	ready := r.hasReadyJobLocked()
	r.mu.Unlock()
	if !ready {
		r.saveBestEffort()
	}

	r.mu.Lock()
	r.running = false
	ready = r.hasReadyJobLocked()
	r.signalLocked()
	r.mu.Unlock()
	if ready {
		r.StartNextJob()
	}
}

func (r *Registry) hasReadyJobLocked() bool {
	return !r.closed && slices.ContainsFunc(r.queue, func(q *queued) bool { return q.job.IsReady() })
}

// signalLocked wakes WaitIdle callers.
func (r *Registry) signalLocked() {
	close(r.notify)
	r.notify = make(chan struct{})
}

// WaitIdle blocks until no job is running and no queued job is ready, or
// until ctx is done.
func (r *Registry) WaitIdle(ctx context.Context) error {
	for {
		r.mu.Lock()
		idle := !r.running && !r.hasReadyJobLocked()
		notify := r.notify
		r.mu.Unlock()
		if idle {
			return nil
		}
		select {
		case <-notify:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Save persists the registered scopes.
func (r *Registry) Save() error {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	state := NewState()
	state.SavedAt = time.Now().UTC()
	var paths []string
	for _, root := range r.Entries() {
		state.Scopes = append(state.Scopes, snapshotScope(root))
		paths = append(paths, root.Path())
	}
	if err := state.Save(r.statePath()); err != nil {
		return err
	}
	r.Saved.Fire(paths)
	return nil
}

func (r *Registry) saveBestEffort() {
	if err := r.Save(); err != nil {
		r.logger.Warn("Failed to save registry", "error", err)
		r.SaveFailed.Fire(err)
	}
}

// Close cancels the running job, waits for the worker to stop and saves the
// registry. Later calls return nil.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	if r.cancel != nil {
		r.cancel()
	}
	removed := r.queue
	r.queue = nil
	r.current = nil
	r.signalLocked()
	r.mu.Unlock()

	for _, q := range removed {
		q.unsubscribe()
	}
	r.wg.Wait()
	return r.Save()
}
