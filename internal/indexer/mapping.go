package indexer

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/sha1n/docfetcher/internal/domain"
)

// CreateIndexMapping creates the Bleve index mapping for indexed documents.
func CreateIndexMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()

	// Content field - analyzed for full-text search
	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = standard.Name
	contentField.Store = true
	contentField.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt(domain.FieldContent, contentField)

	// Title, author and file name - analyzed, stored for result listings
	for _, name := range []string{domain.FieldTitle, domain.FieldAuthor, domain.FieldFilename} {
		field := bleve.NewTextFieldMapping()
		field.Analyzer = standard.Name
		field.Store = true
		docMapping.AddFieldMappingsAt(name, field)
	}

	// Path, scope and extension - keyword, stored
	for _, name := range []string{domain.FieldPath, domain.FieldScope, domain.FieldExtension} {
		field := bleve.NewTextFieldMapping()
		field.Analyzer = keyword.Name
		field.Store = true
		docMapping.AddFieldMappingsAt(name, field)
	}

	sizeField := bleve.NewNumericFieldMapping()
	sizeField.Store = true
	docMapping.AddFieldMappingsAt(domain.FieldSize, sizeField)

	modifiedField := bleve.NewDateTimeFieldMapping()
	modifiedField.Store = true
	docMapping.AddFieldMappingsAt(domain.FieldModified, modifiedField)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = standard.Name

	return indexMapping
}
