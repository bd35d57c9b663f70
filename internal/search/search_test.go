package search

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/sha1n/docfetcher/internal/indexer"
	"github.com/sha1n/docfetcher/internal/parse"
	"github.com/sha1n/docfetcher/internal/scope"
)

type staticScopes []*scope.RootScope

func (s staticScopes) CheckedEntries() []*scope.RootScope {
	var out []*scope.RootScope
	for _, root := range s {
		if root.HasChecked() {
			out = append(out, root)
		}
	}
	return out
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
}

type fixture struct {
	base     string
	pool     *indexer.Pool
	indexer  *indexer.Indexer
	docs     *scope.RootScope
	papers   *scope.RootScope
	searcher *Searcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := t.TempDir()
	f := &fixture{base: base}

	writeFile(t, filepath.Join(base, "docs", "fruit.txt"), "banana apple cherry")
	writeFile(t, filepath.Join(base, "docs", "long.md"), "banana "+strings.Repeat("filler words ", 200))
	writeFile(t, filepath.Join(base, "docs", "private", "diary.txt"), "banana secrets")
	writeFile(t, filepath.Join(base, "docs", "web.html"),
		"<html><head><title>Fruit Market</title><meta name=\"author\" content=\"Ana\"></head><body>banana stand</body></html>")
	writeFile(t, filepath.Join(base, "papers", "thesis.txt"), "banana genome research")

	f.pool = indexer.NewPool(filepath.Join(base, "indexes"))
	f.indexer = indexer.New(f.pool, parse.DefaultRegistry(parse.NewFilter(0)), 0)
	f.docs = scope.NewRootScope(filepath.Join(base, "docs"), "docs_1")
	f.papers = scope.NewRootScope(filepath.Join(base, "papers"), "papers_1")
	for _, root := range []*scope.RootScope{f.docs, f.papers} {
		if _, err := f.indexer.UpdateIndex(context.Background(), root); err != nil {
			t.Fatalf("UpdateIndex failed: %v", err)
		}
	}
	f.searcher = New(staticScopes{f.docs, f.papers}, f.pool, 10)
	t.Cleanup(func() { _ = f.pool.Close() })
	return f
}

func (f *fixture) paths(t *testing.T, req Request) []string {
	t.Helper()
	res, err := f.searcher.Search(context.Background(), req)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	var out []string
	for _, hit := range res.Hits {
		rel, _ := filepath.Rel(f.base, hit.Path)
		out = append(out, filepath.ToSlash(rel))
	}
	slices.Sort(out)
	return out
}

func TestSearch_AcrossScopes(t *testing.T) {
	f := newFixture(t)
	got := f.paths(t, Request{Query: "banana"})
	want := []string{"docs/fruit.txt", "docs/long.md", "docs/private/diary.txt", "docs/web.html", "papers/thesis.txt"}
	if !slices.Equal(got, want) {
		t.Errorf("paths = %v, want %v", got, want)
	}
}

func TestSearch_Filters(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		req  Request
		want []string
	}{
		{
			name: "extension",
			req:  Request{Query: "banana", Extensions: []string{".MD", "html"}},
			want: []string{"docs/long.md", "docs/web.html"},
		},
		{
			name: "max size",
			req:  Request{Query: "banana", MaxSize: 100, Extensions: []string{"txt"}},
			want: []string{"docs/fruit.txt", "docs/private/diary.txt", "papers/thesis.txt"},
		},
		{
			name: "min size",
			req:  Request{Query: "banana", MinSize: 1000},
			want: []string{"docs/long.md"},
		},
		{
			name: "required and excluded terms",
			req:  Request{Query: "+banana -genome -secrets -filler"},
			want: []string{"docs/fruit.txt", "docs/web.html"},
		},
		{
			name: "field query",
			req:  Request{Query: "title:market"},
			want: []string{"docs/web.html"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.paths(t, tt.req); !slices.Equal(got, tt.want) {
				t.Errorf("paths = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSearch_SkipsUncheckedFolders(t *testing.T) {
	f := newFixture(t)
	if err := f.docs.SetChecked(filepath.Join(f.docs.Path(), "private"), false); err != nil {
		t.Fatalf("SetChecked failed: %v", err)
	}
	if err := f.papers.SetChecked(f.papers.Path(), false); err != nil {
		t.Fatalf("SetChecked failed: %v", err)
	}

	got := f.paths(t, Request{Query: "banana"})
	want := []string{"docs/fruit.txt", "docs/long.md", "docs/web.html"}
	if !slices.Equal(got, want) {
		t.Errorf("paths = %v, want %v", got, want)
	}
}

func TestSearch_CheckedFoldersBelowUncheckedFolders(t *testing.T) {
	tests := []struct {
		name      string
		unchecked []string
		checked   []string
		want      []string
	}{
		{
			name:      "checked folder below unchecked root",
			unchecked: []string{"docs", "papers"},
			checked:   []string{"docs/private"},
			want:      []string{"docs/private/diary.txt", "docs/private/sub/note.txt"},
		},
		{
			name:      "checked folder below unchecked folder",
			unchecked: []string{"docs/private"},
			checked:   []string{"docs/private/sub"},
			want:      []string{"docs/fruit.txt", "docs/long.md", "docs/private/sub/note.txt", "docs/web.html", "papers/thesis.txt"},
		},
		{
			name:      "unchecked root",
			unchecked: []string{"docs"},
			want:      []string{"papers/thesis.txt"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			writeFile(t, filepath.Join(f.base, "docs", "private", "sub", "note.txt"), "banana notes")
			if _, err := f.indexer.UpdateIndex(context.Background(), f.docs); err != nil {
				t.Fatalf("UpdateIndex failed: %v", err)
			}
			for _, rel := range tt.unchecked {
				f.setChecked(t, rel, false)
			}
			for _, rel := range tt.checked {
				f.setChecked(t, rel, true)
			}

			got := f.paths(t, Request{Query: "banana"})
			if !slices.Equal(got, tt.want) {
				t.Errorf("paths = %v, want %v", got, tt.want)
			}
			for _, rel := range got {
				path := filepath.Join(f.base, filepath.FromSlash(rel))
				if !f.docs.IsIncluded(path) && !f.papers.IsIncluded(path) {
					t.Errorf("%s matched but is not included", rel)
				}
			}
		})
	}
}

func (f *fixture) setChecked(t *testing.T, rel string, checked bool) {
	t.Helper()
	path := filepath.Join(f.base, filepath.FromSlash(rel))
	root := f.docs
	if f.papers.Contains(path) {
		root = f.papers
	}
	if err := root.SetChecked(path, checked); err != nil {
		t.Fatalf("SetChecked failed: %v", err)
	}
}

func TestSearch_HitFields(t *testing.T) {
	f := newFixture(t)
	res, err := f.searcher.Search(context.Background(), Request{Query: "stand"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if res.Total != 1 || len(res.Hits) != 1 {
		t.Fatalf("Expected 1 hit, got %d", res.Total)
	}
	hit := res.Hits[0]
	if hit.Title != "Fruit Market" || hit.Author != "Ana" {
		t.Errorf("Unexpected metadata: %+v", hit)
	}
	if hit.Scope != f.docs.Path() || hit.Extension != "html" || hit.Filename != "web.html" {
		t.Errorf("Unexpected file fields: %+v", hit)
	}
	if hit.Size == 0 || hit.Modified.IsZero() {
		t.Errorf("Expected size and modification time, got %+v", hit)
	}
	if len(hit.Fragments) == 0 || !strings.Contains(hit.Fragments[0], "<mark>stand</mark>") {
		t.Errorf("Expected highlighted fragment, got %v", hit.Fragments)
	}
}

func TestSearch_Paging(t *testing.T) {
	f := newFixture(t)
	res, err := f.searcher.Search(context.Background(), Request{Query: "banana", Limit: 2})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if res.Total != 5 || len(res.Hits) != 2 {
		t.Errorf("Expected 2 of 5 hits, got %d of %d", len(res.Hits), res.Total)
	}

	res, err = f.searcher.Search(context.Background(), Request{Query: "banana", Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(res.Hits) != 1 {
		t.Errorf("Expected 1 hit on last page, got %d", len(res.Hits))
	}
}

func TestSearch_Errors(t *testing.T) {
	f := newFixture(t)

	if _, err := f.searcher.Search(context.Background(), Request{Query: "  "}); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("Expected ErrEmptyQuery, got %v", err)
	}
	if _, err := f.searcher.Search(context.Background(), Request{Query: "x", MinSize: 10, MaxSize: 5}); err == nil {
		t.Error("Expected error for inverted size range")
	}

	unindexed := scope.NewRootScope(filepath.Join(f.base, "none"), "none_1")
	empty := New(staticScopes{unindexed}, f.pool, 0)
	if _, err := empty.Search(context.Background(), Request{Query: "banana"}); !errors.Is(err, ErrNoIndexes) {
		t.Errorf("Expected ErrNoIndexes, got %v", err)
	}
}
