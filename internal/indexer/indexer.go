// Package indexer maintains the Bleve index and the file-state store of each
// registry entry.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/sha1n/docfetcher/internal/domain"
	"github.com/sha1n/docfetcher/internal/parse"
	"github.com/sha1n/docfetcher/internal/scope"
)

const (
	// DefaultBatchSize is the number of documents per batch
	DefaultBatchSize = 100

	// MaxBatchBytes is the maximum bytes of content per batch (10MB)
	MaxBatchBytes = 10 * 1024 * 1024
)

// Indexer builds and updates the indexes of root scopes. Operations on the
// same root scope must not run concurrently; the registry's single worker
// guarantees that.
type Indexer struct {
	pool      *Pool
	parsers   *parse.Registry
	batchSize int
	logger    *slog.Logger
}

// New creates an indexer.
func New(pool *Pool, parsers *parse.Registry, batchSize int) *Indexer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Indexer{
		pool:      pool,
		parsers:   parsers,
		batchSize: batchSize,
		logger:    slog.Default().With("component", "indexer"),
	}
}

// Pool returns the handle pool.
func (i *Indexer) Pool() *Pool {
	return i.pool
}

// IndexExists reports whether the root scope has an index on disk.
func (i *Indexer) IndexExists(root *scope.RootScope) bool {
	return i.pool.Exists(root.IndexDir())
}

// LoadState fills the root scope with the file wrappers recorded in its state
// store. A root without an index is left untouched.
func (i *Indexer) LoadState(ctx context.Context, root *scope.RootScope) error {
	if !i.IndexExists(root) {
		return nil
	}
	state, err := i.pool.State(root.IndexDir())
	if err != nil {
		return err
	}
	files, err := state.Load(ctx)
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := root.PutFile(f); err != nil {
			i.logger.Debug("Dropping file state outside scope", "path", f.Path, "error", err)
		}
	}
	return nil
}

// DeleteIndex removes the index directory of the root scope.
func (i *Indexer) DeleteIndex(root *scope.RootScope) error {
	root.ResetFiles()
	return i.pool.Drop(root.IndexDir())
}

// Reindex discards the existing index of the root scope and builds it from
// scratch.
func (i *Indexer) Reindex(ctx context.Context, root *scope.RootScope) (*Report, error) {
	if !root.Exists() {
		return nil, fmt.Errorf("%s: %w", root.Path(), scope.ErrDirNotFound)
	}
	if err := i.DeleteIndex(root); err != nil {
		return nil, err
	}
	report, err := i.UpdateIndex(ctx, root)
	if report != nil {
		report.Rebuild = true
	}
	return report, err
}

// UpdateIndex brings the index of the root scope up to date: new and
// modified files are parsed and indexed, files that disappeared are removed,
// unchanged files are skipped. Progress is committed batch by batch; when ctx
// is canceled the pending batch is dropped and ctx.Err() is returned, leaving
// the index and the recorded state consistent with each other.
func (i *Indexer) UpdateIndex(ctx context.Context, root *scope.RootScope) (*Report, error) {
	if !root.Exists() {
		return nil, fmt.Errorf("%s: %w", root.Path(), scope.ErrDirNotFound)
	}
	index, state, err := i.pool.Open(root.IndexDir())
	if err != nil {
		return nil, err
	}

	report := &Report{Root: root.Path(), Started: time.Now()}
	b := &batch{
		ctx:     ctx,
		root:    root,
		index:   index,
		state:   state,
		pending: index.NewBatch(),
	}
	seenFiles := make(map[string]bool)
	seenDirs := make(map[string]bool)
	filter := i.parsers.Filter()
	rootPath := root.Path()

	err = filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err != nil {
			if path == rootPath {
				return err
			}
			return nil // Skip entries with errors
		}

		relPath, err := filepath.Rel(rootPath, path)
		if err != nil {
			return nil
		}

		if d.IsDir() {
			if path == rootPath {
				return nil
			}
			seenDirs[path] = true
			if filter != nil && filter.ShouldExcludeDir(relPath) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !i.parsers.CanParseIn(rootPath, path) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if filter != nil && filter.TooLarge(info.Size()) {
			report.Skipped++
			return nil
		}
		seenFiles[path] = true

		if fw := root.FileWrapperDeep(path); fw != nil && fw.Matches(info) {
			report.Unchanged++
			return nil
		}

		fw := scope.NewFileWrapper(path, info)
		doc, err := i.parsers.Parse(ctx, path)
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
			// Record the file anyway so it is retried only once it changes
			report.addFailure(path, err)
			b.record(fw)
		} else {
			indexed := domain.NewIndexedDocument(rootPath, path, info.Size(), info.ModTime())
			indexed.Title = doc.Title
			indexed.Author = doc.Author
			indexed.Content = doc.Content
			if err := b.add(indexed, fw); err != nil {
				report.addFailure(path, err)
				return nil
			}
			report.Indexed++
		}

		if b.full(i.batchSize) {
			return b.commit()
		}
		return nil
	})
	if err != nil {
		report.Finished = time.Now()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return report, err
		}
		if errors.Is(err, fs.ErrNotExist) {
			return report, fmt.Errorf("%s: %w", rootPath, scope.ErrDirNotFound)
		}
		return report, fmt.Errorf("index walk failed: %w", err)
	}

	// Files and folders that vanished since the last pass
	for _, fw := range root.Files() {
		if !seenFiles[fw.Path] {
			b.remove(fw.Path)
			report.Removed++
		}
	}
	if err := b.commit(); err != nil {
		report.Finished = time.Now()
		return report, err
	}
	for _, dir := range root.Dirs() {
		if !seenDirs[dir] {
			root.RemoveDir(dir)
		}
	}

	report.Finished = time.Now()
	i.logger.Info("Indexed scope",
		"root", rootPath,
		"indexed", report.Indexed,
		"unchanged", report.Unchanged,
		"removed", report.Removed,
		"failures", len(report.Failures),
		"duration", report.Duration().Round(time.Millisecond))
	return report, nil
}

// batch collects index, state and tree changes that are committed together.
type batch struct {
	ctx   context.Context
	root  *scope.RootScope
	index bleve.Index
	state *StateStore

	pending *bleve.Batch
	put     []*scope.FileWrapper
	deleted []string
	bytes   int
}

func (b *batch) add(doc domain.IndexedDocument, fw *scope.FileWrapper) error {
	if err := b.pending.Index(doc.Path, doc); err != nil {
		return err
	}
	b.put = append(b.put, fw)
	b.bytes += len(doc.Content)
	return nil
}

// record keeps the state of a file that has no indexable content and drops
// any document indexed for it earlier.
func (b *batch) record(fw *scope.FileWrapper) {
	b.pending.Delete(fw.Path)
	b.put = append(b.put, fw)
}

func (b *batch) remove(path string) {
	b.pending.Delete(path)
	b.deleted = append(b.deleted, path)
}

func (b *batch) full(size int) bool {
	return len(b.put)+len(b.deleted) >= size || b.bytes >= MaxBatchBytes
}

// commit writes the batch unless the context was canceled in the meantime.
func (b *batch) commit() error {
	if len(b.put) == 0 && len(b.deleted) == 0 {
		return nil
	}
	if err := b.ctx.Err(); err != nil {
		return err
	}
	if err := b.index.Batch(b.pending); err != nil {
		return fmt.Errorf("batch index failed: %w", err)
	}
	if err := b.state.Apply(context.WithoutCancel(b.ctx), b.put, b.deleted); err != nil {
		return fmt.Errorf("state update failed: %w", err)
	}
	for _, fw := range b.put {
		if err := b.root.PutFile(fw); err != nil {
			return err
		}
	}
	for _, path := range b.deleted {
		b.root.RemoveFile(path)
	}

	b.pending = b.index.NewBatch()
	b.put = nil
	b.deleted = nil
	b.bytes = 0
	return nil
}
