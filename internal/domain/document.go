package domain

import (
	"path/filepath"
	"strings"
	"time"
)

// IndexedDocument represents a file stored in the Bleve index of a scope.
type IndexedDocument struct {
	// Path is the absolute file path. It doubles as the document ID.
	Path string `json:"path"`

	// Scope is the directory of the registry entry the file belongs to.
	Scope string `json:"scope"`

	// Filename is the last element of Path.
	Filename string `json:"filename"`

	// Extension is the lower-case file extension without the leading dot.
	// Example: "pdf", "odt", "txt"
	Extension string `json:"extension"`

	// Title and Author come from document metadata when the format has any.
	Title  string `json:"title,omitempty"`
	Author string `json:"author,omitempty"`

	// Content is the extracted text used for indexing and search fragments.
	Content string `json:"content"`

	// Size is the file size in bytes. Bleve indexes numbers as float64.
	Size float64 `json:"size"`

	// Modified is the file modification time at indexing.
	Modified time.Time `json:"modified"`
}

// Bleve field name constants for consistent field references in queries and mappings.
const (
	FieldPath      = "path"
	FieldScope     = "scope"
	FieldFilename  = "filename"
	FieldExtension = "extension"
	FieldTitle     = "title"
	FieldAuthor    = "author"
	FieldContent   = "content"
	FieldSize      = "size"
	FieldModified  = "modified"
)

// NewIndexedDocument fills the file attributes of a document. Title, Author
// and Content are left to the caller.
func NewIndexedDocument(scope, path string, size int64, modified time.Time) IndexedDocument {
	return IndexedDocument{
		Path:      path,
		Scope:     scope,
		Filename:  filepath.Base(path),
		Extension: strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")),
		Size:      float64(size),
		Modified:  modified,
	}
}
