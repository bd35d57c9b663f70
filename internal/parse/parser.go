// Package parse extracts indexable text and metadata from documents.
package parse

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// Document is the text and metadata extracted from one file.
type Document struct {
	Title   string
	Author  string
	Content string
}

// Parser extracts a Document from files with one of its extensions.
type Parser interface {
	// Name identifies the parser in reports and logs.
	Name() string
	// Extensions lists the lower-case extensions handled, without dots.
	Extensions() []string
	// Parse reads the file. Failures are returned as *Error.
	Parse(ctx context.Context, path string) (*Document, error)
}

// Registry maps file extensions to parsers and applies the exclusion filter.
type Registry struct {
	parsers map[string]Parser
	filter  *Filter
}

// NewRegistry creates a registry with the given filter and parsers. Later
// parsers take precedence for shared extensions.
func NewRegistry(filter *Filter, parsers ...Parser) *Registry {
	r := &Registry{
		parsers: make(map[string]Parser),
		filter:  filter,
	}
	for _, p := range parsers {
		for _, ext := range p.Extensions() {
			r.parsers[strings.ToLower(ext)] = p
		}
	}
	return r
}

// DefaultParsers returns the built-in parsers.
func DefaultParsers() []Parser {
	return []Parser{
		&TextParser{},
		&HTMLParser{},
		&SVGParser{},
		&ODFParser{},
		&PDFParser{},
	}
}

// DefaultRegistry creates a registry with all built-in parsers.
func DefaultRegistry(filter *Filter) *Registry {
	return NewRegistry(filter, DefaultParsers()...)
}

// Filter returns the exclusion filter.
func (r *Registry) Filter() *Filter {
	return r.filter
}

// ParserFor returns the parser for the file's extension, or nil.
func (r *Registry) ParserFor(path string) Parser {
	return r.parsers[Extension(path)]
}

// CanParse reports whether a parser exists for the file's extension.
func (r *Registry) CanParse(path string) bool {
	return r.ParserFor(path) != nil
}

// CanParseIn reports whether the file below root is parseable and not
// excluded by the filter.
func (r *Registry) CanParseIn(root, path string) bool {
	if !r.CanParse(path) {
		return false
	}
	if r.filter == nil {
		return true
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return !r.filter.ShouldExclude(rel)
}

// Parse extracts the document with the parser registered for its extension.
func (r *Registry) Parse(ctx context.Context, path string) (*Document, error) {
	p := r.ParserFor(path)
	if p == nil {
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupported)
	}
	return p.Parse(ctx, path)
}

// Extensions lists all registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.parsers))
	for ext := range r.parsers {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}

// Extension returns the lower-case extension of path without the leading dot.
func Extension(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}
