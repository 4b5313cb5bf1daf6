package tools

import (
	"context"
	"fmt"

	"github.com/docmcp/documenter-mcp-server/internal/searchindex"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	searchIndexResourceURI = "documenter://search-index"
	defaultLoadLimit       = 100
)

// LoadSearchIndexInput defines input for load_search_index tool
type LoadSearchIndexInput struct {
	Category string `json:"category,omitempty" jsonschema:"Only return records of this category (optional)"`
	Offset   int    `json:"offset,omitempty" jsonschema:"Number of matching records to skip (optional)"`
	Limit    int    `json:"limit,omitempty" jsonschema:"Maximum number of records to return (optional, defaults to 100)"`
}

// LoadSearchIndexOutput defines output for load_search_index tool
type LoadSearchIndexOutput struct {
	Records    []searchindex.Record `json:"records"`
	Total      int                  `json:"total"`
	Categories map[string]int       `json:"categories"`
}

// currentDataset returns the loaded dataset, initializing doc search on first use
func currentDataset() (*searchindex.Dataset, error) {
	if err := ensureInitialized(); err != nil {
		return nil, err
	}
	ds := indexMgr.loadedRecords()
	if ds == nil {
		return nil, fmt.Errorf("search index not loaded")
	}
	return ds, nil
}

// LoadSearchIndex returns the records of the search index in file order
func LoadSearchIndex(ctx context.Context, req *mcp.CallToolRequest, input LoadSearchIndexInput) (*mcp.CallToolResult, LoadSearchIndexOutput, error) {
	if input.Category != "" && !searchindex.Category(input.Category).Valid() {
		return nil, LoadSearchIndexOutput{}, fmt.Errorf("unknown category %q", input.Category)
	}
	if input.Offset < 0 {
		return nil, LoadSearchIndexOutput{}, fmt.Errorf("offset must not be negative")
	}

	ds, err := currentDataset()
	if err != nil {
		return nil, LoadSearchIndexOutput{}, err
	}

	records := ds.Load()
	if input.Category != "" {
		filtered := records[:0]
		for _, rec := range records {
			if string(rec.Category) == input.Category {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}

	limit := input.Limit
	if limit <= 0 {
		limit = defaultLoadLimit
	}

	output := LoadSearchIndexOutput{
		Records:    []searchindex.Record{},
		Total:      len(records),
		Categories: make(map[string]int),
	}
	for cat, n := range ds.Categories() {
		output.Categories[string(cat)] = n
	}

	if input.Offset < len(records) {
		end := len(records)
		if limit < end-input.Offset {
			end = input.Offset + limit
		}
		output.Records = records[input.Offset:end]
	}

	return nil, output, nil
}

// readSearchIndexResource serves the loaded dataset re-serialized in its
// original layout
func readSearchIndexResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	ds, err := currentDataset()
	if err != nil {
		return nil, err
	}

	data, err := ds.MarshalJS()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize search index: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      req.Params.URI,
				MIMEType: "text/javascript",
				Text:     string(data),
			},
		},
	}, nil
}

// RegisterLoadTools registers the load_search_index tool and the search index resource
func RegisterLoadTools(server *mcp.Server) error {
	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "load_search_index",
			Description: "Return the records of the documentation search index (location, page, title, text, category) in file order, optionally filtered by category and paginated.",
		},
		LoadSearchIndex,
	)

	server.AddResource(
		&mcp.Resource{
			URI:         searchIndexResourceURI,
			Name:        "search_index.js",
			Description: "The loaded documentation search index, serialized as search_index.js",
			MIMEType:    "text/javascript",
		},
		readSearchIndexResource,
	)

	return nil
}
