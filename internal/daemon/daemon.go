package daemon

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sha1n/docfetcher/internal/scope"
)

// Daemon watches the unmodified folders of the indexes file and marks each
// one as modified on its first change.
type Daemon struct {
	path   string
	logger *slog.Logger

	folders []Folder
	watches map[string]int // watched directory -> folder index
}

// New creates a daemon for the indexes file of an index parent directory.
func New(dir string) *Daemon {
	return &Daemon{
		path:    IndexesPath(dir),
		logger:  slog.Default().With("component", "daemon"),
		watches: make(map[string]int),
	}
}

// Run watches until every watchable folder is marked modified or ctx is
// done. It returns right away when there is nothing to watch.
func (d *Daemon) Run(ctx context.Context) error {
	folders, err := ReadIndexesFile(d.path)
	if err != nil {
		return err
	}
	d.folders = folders

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	for i, f := range d.folders {
		if f.Modified {
			continue
		}
		d.watchFolder(fsw, i)
	}
	if len(d.watches) == 0 {
		d.logger.Info("No folders to watch", "file", d.path)
		return nil
	}
	d.logger.Info("Watching folders", "file", d.path, "directories", len(d.watches))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			done, err := d.handleEvent(fsw, ev.Name)
			if err != nil {
				return err
			}
			if done {
				d.logger.Info("All folders modified")
				return nil
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			d.logger.Debug("Watch error", "error", err)
		}
	}
}

func (d *Daemon) watchFolder(fsw *fsnotify.Watcher, idx int) {
	_ = filepath.WalkDir(d.folders[idx].Path, func(path string, e fs.DirEntry, err error) error {
		if err != nil || !e.IsDir() {
			return nil
		}
		if err := fsw.Add(path); err != nil {
			d.logger.Debug("Failed to watch directory", "path", path, "error", err)
			return nil
		}
		d.watches[path] = idx
		return nil
	})
}

// handleEvent marks the folder containing path and reports whether no
// watched folder is left.
func (d *Daemon) handleEvent(fsw *fsnotify.Watcher, path string) (bool, error) {
	idx := -1
	for i, f := range d.folders {
		if !f.Modified && scope.ContainsPath(f.Path, path) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, nil
	}

	d.folders[idx].Modified = true
	d.logger.Info("Folder modified", "path", d.folders[idx].Path)
	for dir, i := range d.watches {
		if i == idx {
			_ = fsw.Remove(dir)
			delete(d.watches, dir)
		}
	}
	if err := WriteIndexesFile(d.path, " Updated by docfetcher daemon", d.folders); err != nil {
		return false, err
	}

	return len(d.watches) == 0, nil
}
