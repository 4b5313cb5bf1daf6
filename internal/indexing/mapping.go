package indexing

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
)

// NewIndexMapping returns the bleve mapping for DocEntry documents.
// Category and page path are indexed as single keyword terms so they can
// be filtered and faceted exactly; everything else uses the default
// analyzer.
func NewIndexMapping() mapping.IndexMapping {
	keyword := bleve.NewKeywordFieldMapping()

	stored := bleve.NewTextFieldMapping()
	stored.Index = false
	stored.IncludeInAll = false

	entry := bleve.NewDocumentMapping()
	entry.AddFieldMappingsAt("category", keyword)
	entry.AddFieldMappingsAt("page_path", keyword)
	entry.AddFieldMappingsAt("location", stored)
	entry.AddFieldMappingsAt("url", stored)

	im := bleve.NewIndexMapping()
	im.DefaultMapping = entry
	return im
}
