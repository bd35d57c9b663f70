package indexer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
)

// IndexDirname is the name of the Bleve index inside an index directory.
const IndexDirname = "bleve"

// ErrIndexNotFound is returned when an index directory has no index yet.
var ErrIndexNotFound = errors.New("index not found")

type handle struct {
	index bleve.Index
	state *StateStore
}

// Pool shares open index handles between the indexing worker and searches.
// Each registry entry owns one directory below the pool's parent directory.
type Pool struct {
	dir string

	mu      sync.Mutex
	handles map[string]*handle
}

// NewPool creates a pool rooted at the index parent directory.
func NewPool(dir string) *Pool {
	return &Pool{
		dir:     dir,
		handles: make(map[string]*handle),
	}
}

// Dir returns the index parent directory.
func (p *Pool) Dir() string {
	return p.dir
}

// Path returns the absolute path of an index directory.
func (p *Pool) Path(indexDir string) string {
	return filepath.Join(p.dir, indexDir)
}

// Exists reports whether the index directory contains an index.
func (p *Pool) Exists(indexDir string) bool {
	_, err := os.Stat(filepath.Join(p.Path(indexDir), IndexDirname))
	return err == nil
}

// Open returns the handles of an index directory, creating the index and the
// state store when they do not exist yet.
func (p *Pool) Open(indexDir string) (bleve.Index, *StateStore, error) {
	return p.open(indexDir, true)
}

// Lookup returns the index of an index directory without creating it.
func (p *Pool) Lookup(indexDir string) (bleve.Index, error) {
	idx, _, err := p.open(indexDir, false)
	return idx, err
}

// State returns the state store of an existing index directory.
func (p *Pool) State(indexDir string) (*StateStore, error) {
	_, state, err := p.open(indexDir, false)
	return state, err
}

func (p *Pool) open(indexDir string, create bool) (bleve.Index, *StateStore, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if h, ok := p.handles[indexDir]; ok {
		return h.index, h.state, nil
	}

	dir := p.Path(indexDir)
	indexPath := filepath.Join(dir, IndexDirname)

	// Try to open existing index
	index, err := bleve.Open(indexPath)
	if err != nil {
		if !create {
			if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
				return nil, nil, fmt.Errorf("%s: %w", indexDir, ErrIndexNotFound)
			}
			return nil, nil, fmt.Errorf("failed to open index: %w", err)
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create index directory: %w", err)
		}
		index, err = bleve.New(indexPath, CreateIndexMapping())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create index: %w", err)
		}
	}

	state, err := OpenStateStore(filepath.Join(dir, StateFilename))
	if err != nil {
		_ = index.Close()
		return nil, nil, err
	}

	p.handles[indexDir] = &handle{index: index, state: state}
	return index, state, nil
}

// Drop closes the handles of an index directory and deletes it from disk.
func (p *Pool) Drop(indexDir string) error {
	p.mu.Lock()
	h, ok := p.handles[indexDir]
	delete(p.handles, indexDir)
	p.mu.Unlock()

	var errs []error
	if ok {
		errs = append(errs, h.close())
	}
	if err := os.RemoveAll(p.Path(indexDir)); err != nil {
		errs = append(errs, fmt.Errorf("failed to delete index directory: %w", err))
	}
	return errors.Join(errs...)
}

// Close closes all open handles.
func (p *Pool) Close() error {
	p.mu.Lock()
	handles := p.handles
	p.handles = make(map[string]*handle)
	p.mu.Unlock()

	var errs []error
	for _, h := range handles {
		errs = append(errs, h.close())
	}
	return errors.Join(errs...)
}

func (h *handle) close() error {
	return errors.Join(h.index.Close(), h.state.Close())
}

// IndexDirs lists the directory names below the index parent directory.
func (p *Pool) IndexDirs() ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list index directories: %w", err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	return dirs, nil
}
