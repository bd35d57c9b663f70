package parse

import (
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultExcludePatterns lists doublestar patterns, relative to a scope root,
// for folders and files that are never indexed.
var DefaultExcludePatterns = []string{
	// Version control and tool state
	"**/.git/**", "**/.svn/**", "**/.hg/**",
	"**/.idea/**", "**/.vscode/**",

	// Dependencies and build output
	"**/node_modules/**", "**/__pycache__/**", "**/.venv/**",

	// Editor and OS clutter
	"**/*~", "**/.~lock.*", "**/.DS_Store", "**/Thumbs.db",
}

// Filter decides which files are skipped before parsing.
type Filter struct {
	patterns    []string
	maxFileSize int64
}

// NewFilter creates a filter with the default exclusion patterns.
func NewFilter(maxFileSize int64) *Filter {
	return NewFilterWithPatterns(DefaultExcludePatterns, maxFileSize)
}

// NewFilterWithPatterns creates a filter with custom patterns. Invalid
// patterns never match.
func NewFilterWithPatterns(patterns []string, maxFileSize int64) *Filter {
	return &Filter{
		patterns:    patterns,
		maxFileSize: maxFileSize,
	}
}

// ShouldExclude reports whether the path, relative to the scope root,
// matches an exclusion pattern.
func (f *Filter) ShouldExclude(relPath string) bool {
	relPath = filepath.ToSlash(relPath)
	for _, pattern := range f.patterns {
		if match, _ := doublestar.Match(pattern, relPath); match {
			return true
		}
	}
	return false
}

// ShouldExcludeDir reports whether everything below the folder is excluded,
// so the walk can skip it.
func (f *Filter) ShouldExcludeDir(relPath string) bool {
	return f.ShouldExclude(filepath.ToSlash(relPath) + "/_")
}

// TooLarge reports whether a file of the given size exceeds the limit. A
// non-positive limit disables the check.
func (f *Filter) TooLarge(size int64) bool {
	return f.maxFileSize > 0 && size > f.maxFileSize
}

// MaxFileSize returns the size limit in bytes.
func (f *Filter) MaxFileSize() int64 {
	return f.maxFileSize
}

// IsBinary checks for NUL bytes in the first 512 bytes of content.
func IsBinary(content []byte) bool {
	checkLen := min(len(content), 512)
	for i := range checkLen {
		if content[i] == 0 {
			return true
		}
	}
	return false
}
