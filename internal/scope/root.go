package scope

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// IndexDirPattern matches the names generated by IndexDirName. Directories in
// the index parent that match it but belong to no registry entry are orphans.
var IndexDirPattern = regexp.MustCompile(`^.*_[0-9]+$`)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// CheckOverride records a folder whose check state differs from its parent.
type CheckOverride struct {
	Path    string `json:"path"`
	Checked bool   `json:"checked"`
}

// Info is a read-only snapshot of one folder of a RootScope.
type Info struct {
	Path  string
	State CheckState
	Files int
}

// RootScope is a registry entry: a folder tree with its own index directory.
// All access to the tree goes through the RootScope, which guards it with a
// single lock.
type RootScope struct {
	indexDir string

	mu   sync.RWMutex
	root *Scope
}

// NewRootScope creates a checked root scope for the given absolute, clean
// directory path. indexDir is the name of its index directory inside the
// index parent directory.
func NewRootScope(path, indexDir string) *RootScope {
	return &RootScope{
		indexDir: indexDir,
		root:     newScope(path, nil, true),
	}
}

// Path returns the directory of the root scope.
func (r *RootScope) Path() string {
	return r.root.path
}

// Name returns the folder name of the root scope.
func (r *RootScope) Name() string {
	return r.root.Name()
}

// IndexDir returns the name of the index directory.
func (r *RootScope) IndexDir() string {
	return r.indexDir
}

// Exists reports whether the directory is still present on disk.
func (r *RootScope) Exists() bool {
	return isDir(r.root.path)
}

// Contains reports whether path is the root directory or lies below it.
func (r *RootScope) Contains(path string) bool {
	return ContainsPath(r.root.path, path)
}

// Intersects reports whether the two root scopes cover overlapping trees.
func (r *RootScope) Intersects(other *RootScope) bool {
	return Intersects(r.root.path, other.root.path)
}

func (r *RootScope) String() string {
	return r.root.path
}

// Checked reports whether the root folder itself is checked.
func (r *RootScope) Checked() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.root.checked
}

// SetChecked checks or unchecks the folder at path and all of its
// descendants. Folders not yet known to the tree are created.
func (r *RootScope) SetChecked(path string, checked bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	node, err := r.ensureDirLocked(path)
	if err != nil {
		return err
	}
	node.setCheckedDeep(checked)
	return nil
}

// CheckState returns the state of the folder at path, inferring Partial from
// its descendants.
func (r *RootScope) CheckState(path string) (CheckState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	node := r.findLocked(path)
	if node == nil {
		return Unchecked, fmt.Errorf("%s is not part of %s", path, r.root.path)
	}
	return node.state(), nil
}

// IsIncluded reports whether a file or folder at path is part of the active
// search scope, i.e. whether its closest known folder is checked.
func (r *RootScope) IsIncluded(path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.Contains(path) {
		return false
	}
	node := r.root
	for _, part := range r.relParts(path) {
		child, ok := node.children[part]
		if !ok {
			break
		}
		node = child
	}
	return node.checked
}

// Overrides returns the folders whose check state differs from their parent,
// ordered parents first. Together with Checked it fully describes the check
// state of the tree.
func (r *RootScope) Overrides() []CheckOverride {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []CheckOverride
	var walk func(n *Scope)
	walk = func(n *Scope) {
		for _, c := range n.sortedChildren() {
			if c.checked != n.checked {
				rel, _ := filepath.Rel(r.root.path, c.path)
				out = append(out, CheckOverride{Path: filepath.ToSlash(rel), Checked: c.checked})
			}
			walk(c)
		}
	}
	walk(r.root)
	return out
}

// ApplyOverrides restores check states recorded by Overrides. Paths are
// relative to the root directory.
func (r *RootScope) ApplyOverrides(overrides []CheckOverride) error {
	for _, o := range overrides {
		if err := r.SetChecked(filepath.Join(r.Path(), filepath.FromSlash(o.Path)), o.Checked); err != nil {
			return err
		}
	}
	return nil
}

// ExcludedPaths returns the unchecked folders whose parent is checked, and
// the root folder when it is unchecked.
func (r *RootScope) ExcludedPaths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	var walk func(n *Scope)
	walk = func(n *Scope) {
		if !n.checked && (n.parent == nil || n.parent.checked) {
			out = append(out, n.path)
		}
		for _, c := range n.sortedChildren() {
			walk(c)
		}
	}
	walk(r.root)
	return out
}

// HasChecked reports whether any folder of the tree is checked.
func (r *RootScope) HasChecked() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var walk func(n *Scope) bool
	walk = func(n *Scope) bool {
		if n.checked {
			return true
		}
		for _, c := range n.children {
			if walk(c) {
				return true
			}
		}
		return false
	}
	return walk(r.root)
}

// IncludedTree is a checked folder whose parent is unchecked (or which is the
// root) together with the topmost unchecked folders below it. Files below Path
// and outside every Excluded folder are searched.
type IncludedTree struct {
	Path     string
	Excluded []string
}

// IncludedTrees returns the searched parts of the tree, parents first. A file
// is included by exactly one tree when IsIncluded reports true for it.
func (r *RootScope) IncludedTrees() []IncludedTree {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []IncludedTree
	var walk func(n *Scope)
	walk = func(n *Scope) {
		if n.checked && (n.parent == nil || !n.parent.checked) {
			out = append(out, IncludedTree{Path: n.path, Excluded: topmostUnchecked(n)})
		}
		for _, c := range n.sortedChildren() {
			walk(c)
		}
	}
	walk(r.root)
	return out
}

func topmostUnchecked(n *Scope) []string {
	var out []string
	for _, c := range n.sortedChildren() {
		if !c.checked {
			out = append(out, c.path)
			continue
		}
		out = append(out, topmostUnchecked(c)...)
	}
	return out
}

// Children lists the direct subfolders of the folder at path, sorted by path.
func (r *RootScope) Children(path string) ([]Info, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	node := r.findLocked(path)
	if node == nil {
		return nil, fmt.Errorf("%s is not part of %s", path, r.root.path)
	}
	children := node.sortedChildren()
	out := make([]Info, 0, len(children))
	for _, c := range children {
		out = append(out, Info{Path: c.path, State: c.state(), Files: len(c.files)})
	}
	return out, nil
}

// FileWrapperDeep returns the wrapper recorded for the file at path, or nil
// if the file has not been indexed.
func (r *RootScope) FileWrapperDeep(path string) *FileWrapper {
	r.mu.RLock()
	defer r.mu.RUnlock()
	node := r.findLocked(filepath.Dir(path))
	if node == nil {
		return nil
	}
	return node.files[filepath.Base(path)]
}

// Files returns all recorded file wrappers sorted by path.
func (r *RootScope) Files() []*FileWrapper {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*FileWrapper
	var walk func(n *Scope)
	walk = func(n *Scope) {
		for _, f := range n.files {
			out = append(out, f)
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(r.root)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Dirs returns the paths of all known subfolders sorted by path, excluding
// the root itself.
func (r *RootScope) Dirs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	var walk func(n *Scope)
	walk = func(n *Scope) {
		for _, c := range n.children {
			out = append(out, c.path)
			walk(c)
		}
	}
	walk(r.root)
	sort.Strings(out)
	return out
}

// EnsureDir adds the folder at path (and any missing ancestors) to the tree.
// New folders inherit the check state of their parent.
func (r *RootScope) EnsureDir(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.ensureDirLocked(path)
	return err
}

// PutFile records a file wrapper, creating its folder when needed.
func (r *RootScope) PutFile(f *FileWrapper) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	node, err := r.ensureDirLocked(filepath.Dir(f.Path))
	if err != nil {
		return err
	}
	node.files[filepath.Base(f.Path)] = f
	return nil
}

// RemoveFile forgets the file at path.
func (r *RootScope) RemoveFile(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if node := r.findLocked(filepath.Dir(path)); node != nil {
		delete(node.files, filepath.Base(path))
	}
}

// RemoveDir drops the folder at path with everything below it and returns the
// paths of the files that were recorded there.
func (r *RootScope) RemoveDir(path string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	node := r.findLocked(path)
	if node == nil || node.parent == nil {
		return nil
	}
	var removed []string
	var walk func(n *Scope)
	walk = func(n *Scope) {
		for _, f := range n.files {
			removed = append(removed, f.Path)
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(node)
	delete(node.parent.children, filepath.Base(node.path))
	sort.Strings(removed)
	return removed
}

// ResetFiles forgets every recorded file while keeping the folder tree and
// its check states.
func (r *RootScope) ResetFiles() {
	r.mu.Lock()
	defer r.mu.Unlock()
	var walk func(n *Scope)
	walk = func(n *Scope) {
		n.files = make(map[string]*FileWrapper)
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(r.root)
}

func (r *RootScope) relParts(path string) []string {
	rel, err := filepath.Rel(r.root.path, path)
	if err != nil || rel == "." {
		return nil
	}
	return strings.Split(rel, string(filepath.Separator))
}

func (r *RootScope) findLocked(path string) *Scope {
	if !r.Contains(path) {
		return nil
	}
	node := r.root
	for _, part := range r.relParts(path) {
		child, ok := node.children[part]
		if !ok {
			return nil
		}
		node = child
	}
	return node
}

func (r *RootScope) ensureDirLocked(path string) (*Scope, error) {
	if !r.Contains(path) {
		return nil, fmt.Errorf("%s is not part of %s", path, r.root.path)
	}
	node := r.root
	for _, part := range r.relParts(path) {
		child, ok := node.children[part]
		if !ok {
			child = newScope(filepath.Join(node.path, part), node, node.checked)
			node.children[part] = child
		}
		node = child
	}
	return node, nil
}

// IndexDirName derives the index directory name for a folder: its sanitized
// base name followed by the smallest numeric suffix for which taken reports
// false.
func IndexDirName(path string, taken func(name string) bool) string {
	base := unsafeNameChars.ReplaceAllString(filepath.Base(path), "_")
	base = strings.Trim(base, "._")
	if base == "" {
		base = "root"
	}
	for n := 1; ; n++ {
		name := fmt.Sprintf("%s_%d", base, n)
		if !taken(name) {
			return name
		}
	}
}

// SortByPath orders root scopes by directory path.
func SortByPath(roots []*RootScope) {
	sort.Slice(roots, func(i, j int) bool { return roots[i].Path() < roots[j].Path() })
}
