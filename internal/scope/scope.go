// Package scope models the folder trees DocFetcher indexes: registry entries
// (RootScope), their subfolders (Scope) and the files seen inside them
// (FileWrapper).
package scope

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrDirNotFound is returned when the directory of a scope does not exist
// (anymore) at the time it is indexed.
var ErrDirNotFound = errors.New("scope directory not found")

// CheckState is the inclusion state of a folder in the active search scope.
type CheckState int

const (
	Unchecked CheckState = iota
	Checked
	// Partial means the folder itself is checked or unchecked while some of
	// its descendants are in the other state. It is never stored.
	Partial
)

func (c CheckState) String() string {
	switch c {
	case Checked:
		return "checked"
	case Unchecked:
		return "unchecked"
	case Partial:
		return "partial"
	default:
		return "unknown"
	}
}

// Scope is a directory node. Nodes are owned by a RootScope and must only be
// accessed through it.
type Scope struct {
	path     string
	parent   *Scope
	checked  bool
	children map[string]*Scope
	files    map[string]*FileWrapper
}

func newScope(path string, parent *Scope, checked bool) *Scope {
	return &Scope{
		path:     path,
		parent:   parent,
		checked:  checked,
		children: make(map[string]*Scope),
		files:    make(map[string]*FileWrapper),
	}
}

// Path returns the absolute directory path.
func (s *Scope) Path() string {
	return s.path
}

// Name returns the last element of the directory path.
func (s *Scope) Name() string {
	return filepath.Base(s.path)
}

// Contains reports whether path is the scope directory or lies below it.
func (s *Scope) Contains(path string) bool {
	return ContainsPath(s.path, path)
}

func (s *Scope) sortedChildren() []*Scope {
	children := make([]*Scope, 0, len(s.children))
	for _, c := range s.children {
		children = append(children, c)
	}
	sort.Slice(children, func(i, j int) bool { return children[i].path < children[j].path })
	return children
}

func (s *Scope) setCheckedDeep(checked bool) {
	s.checked = checked
	for _, c := range s.children {
		c.setCheckedDeep(checked)
	}
}

func (s *Scope) state() CheckState {
	want := s.checked
	var mixed func(n *Scope) bool
	mixed = func(n *Scope) bool {
		for _, c := range n.children {
			if c.checked != want || mixed(c) {
				return true
			}
		}
		return false
	}
	if mixed(s) {
		return Partial
	}
	if s.checked {
		return Checked
	}
	return Unchecked
}

// CleanPath returns the absolute, cleaned form of path.
func CleanPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}

// ContainsPath reports whether child equals parent or lies below it. Both
// paths are expected to be clean.
func ContainsPath(parent, child string) bool {
	if parent == child {
		return true
	}
	if !strings.HasSuffix(parent, string(filepath.Separator)) {
		parent += string(filepath.Separator)
	}
	return strings.HasPrefix(child, parent)
}

// Intersects reports whether two directory trees overlap: the paths are equal
// or one contains the other.
func Intersects(a, b string) bool {
	return ContainsPath(a, b) || ContainsPath(b, a)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
