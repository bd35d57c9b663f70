package scope

import (
	"io/fs"
	"os"
	"time"
)

// FileWrapper records what a file looked like when it was last indexed.
// Wrappers are immutable; an update replaces the wrapper.
type FileWrapper struct {
	Path    string
	ModTime time.Time
	Size    int64
}

// NewFileWrapper creates a wrapper from the file's current stat data.
func NewFileWrapper(path string, info fs.FileInfo) *FileWrapper {
	return &FileWrapper{
		Path:    path,
		ModTime: info.ModTime(),
		Size:    info.Size(),
	}
}

// Matches reports whether info describes the same file state as the wrapper.
func (f *FileWrapper) Matches(info fs.FileInfo) bool {
	return info.ModTime().Equal(f.ModTime) && info.Size() == f.Size
}

// IsModified stats the file and reports whether it changed since it was
// recorded. A file that vanished counts as modified.
func (f *FileWrapper) IsModified() bool {
	info, err := os.Stat(f.Path)
	if err != nil {
		return true
	}
	return !f.Matches(info)
}
