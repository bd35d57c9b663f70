// Package search runs full-text queries over the indexes of the checked
// registry entries.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/sha1n/docfetcher/internal/domain"
	"github.com/sha1n/docfetcher/internal/indexer"
	"github.com/sha1n/docfetcher/internal/scope"
)

// DefaultMaxResults is the page size used when neither the request nor the
// searcher sets one.
const DefaultMaxResults = 50

var (
	// ErrEmptyQuery is returned for blank queries.
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrNoIndexes is returned when no checked folder has an index.
	ErrNoIndexes = errors.New("no indexed folder is checked")
)

// Scopes provides the root scopes to search.
type Scopes interface {
	CheckedEntries() []*scope.RootScope
}

// Request describes one search.
type Request struct {
	// Query uses the query string syntax: words, "phrases", wildcards,
	// +required, -excluded and field:value terms.
	Query string

	// Extensions restricts results to these file extensions.
	Extensions []string

	// MinSize and MaxSize bound the file size in bytes. Zero means unbounded.
	MinSize int64
	MaxSize int64

	Limit  int
	Offset int
}

// Hit is one matching document.
type Hit struct {
	Path      string
	Scope     string
	Filename  string
	Extension string
	Title     string
	Author    string
	Size      int64
	Modified  time.Time
	Score     float64
	Fragments []string
}

// Result is a page of hits.
type Result struct {
	Total uint64
	Hits  []Hit
	Took  time.Duration
}

// Searcher queries the indexes of a handle pool.
type Searcher struct {
	scopes     Scopes
	pool       *indexer.Pool
	maxResults int
	logger     *slog.Logger
}

// New creates a searcher. maxResults caps the page size.
func New(scopes Scopes, pool *indexer.Pool, maxResults int) *Searcher {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &Searcher{
		scopes:     scopes,
		pool:       pool,
		maxResults: maxResults,
		logger:     slog.Default().With("component", "search"),
	}
}

// Search runs the request against every root scope with a checked folder and
// an index. Only files in checked folders are matched.
func (s *Searcher) Search(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrEmptyQuery
	}
	if req.MinSize < 0 || req.MaxSize < 0 || (req.MaxSize > 0 && req.MinSize > req.MaxSize) {
		return nil, fmt.Errorf("invalid size range %d-%d", req.MinSize, req.MaxSize)
	}

	var indexes []bleve.Index
	var trees []scope.IncludedTree
	for _, root := range s.scopes.CheckedEntries() {
		index, err := s.pool.Lookup(root.IndexDir())
		if err != nil {
			if !errors.Is(err, indexer.ErrIndexNotFound) {
				s.logger.Warn("Skipping unreadable index", "root", root.Path(), "error", err)
			}
			continue
		}
		indexes = append(indexes, index)
		trees = append(trees, root.IncludedTrees()...)
	}
	if len(indexes) == 0 {
		return nil, ErrNoIndexes
	}
	alias := bleve.NewIndexAlias(indexes...)

	size := req.Limit
	if size <= 0 || size > s.maxResults {
		size = s.maxResults
	}
	searchReq := bleve.NewSearchRequestOptions(buildQuery(req, trees), size, max(req.Offset, 0), false)
	searchReq.Fields = []string{
		domain.FieldPath, domain.FieldScope, domain.FieldFilename, domain.FieldExtension,
		domain.FieldTitle, domain.FieldAuthor, domain.FieldSize, domain.FieldModified,
	}
	searchReq.Highlight = bleve.NewHighlight()
	searchReq.Highlight.AddField(domain.FieldContent)

	results, err := alias.SearchInContext(ctx, searchReq)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	out := &Result{Total: results.Total, Took: results.Took}
	for _, hit := range results.Hits {
		out.Hits = append(out.Hits, toHit(hit.ID, hit.Score, hit.Fields, hit.Fragments))
	}
	return out, nil
}

// buildQuery combines the text query with the filters and restricts matches
// to the included trees.
func buildQuery(req Request, trees []scope.IncludedTree) query.Query {
	q := bleve.NewBooleanQuery()
	q.AddMust(bleve.NewQueryStringQuery(req.Query))

	if len(req.Extensions) > 0 {
		var exts []query.Query
		for _, ext := range req.Extensions {
			ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
			if ext == "" {
				continue
			}
			term := bleve.NewTermQuery(ext)
			term.SetField(domain.FieldExtension)
			exts = append(exts, term)
		}
		if len(exts) > 0 {
			q.AddMust(bleve.NewDisjunctionQuery(exts...))
		}
	}

	if req.MinSize > 0 || req.MaxSize > 0 {
		var minSize, maxSize *float64
		if req.MinSize > 0 {
			v := float64(req.MinSize)
			minSize = &v
		}
		if req.MaxSize > 0 {
			v := float64(req.MaxSize)
			maxSize = &v
		}
		inclusive := true
		sizeQuery := bleve.NewNumericRangeInclusiveQuery(minSize, maxSize, &inclusive, &inclusive)
		sizeQuery.SetField(domain.FieldSize)
		q.AddMust(sizeQuery)
	}

	if len(trees) > 0 {
		var parts []query.Query
		for _, tree := range trees {
			part := bleve.NewBooleanQuery()
			part.AddMust(pathPrefix(tree.Path))
			for _, dir := range tree.Excluded {
				part.AddMustNot(pathPrefix(dir))
			}
			parts = append(parts, part)
		}
		q.AddMust(bleve.NewDisjunctionQuery(parts...))
	}
	return q
}

// pathPrefix matches every document stored below dir.
func pathPrefix(dir string) query.Query {
	sep := string(filepath.Separator)
	if !strings.HasSuffix(dir, sep) {
		dir += sep
	}
	prefix := bleve.NewPrefixQuery(dir)
	prefix.SetField(domain.FieldPath)
	return prefix
}

func toHit(id string, score float64, fields map[string]any, fragments map[string][]string) Hit {
	hit := Hit{
		Path:      id,
		Scope:     stringField(fields, domain.FieldScope),
		Filename:  stringField(fields, domain.FieldFilename),
		Extension: stringField(fields, domain.FieldExtension),
		Title:     stringField(fields, domain.FieldTitle),
		Author:    stringField(fields, domain.FieldAuthor),
		Score:     score,
		Fragments: fragments[domain.FieldContent],
	}
	if size, ok := fields[domain.FieldSize].(float64); ok {
		hit.Size = int64(size)
	}
	if modified, ok := fields[domain.FieldModified].(string); ok {
		if t, err := time.Parse(time.RFC3339, modified); err == nil {
			hit.Modified = t
		}
	}
	return hit
}

func stringField(fields map[string]any, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}
