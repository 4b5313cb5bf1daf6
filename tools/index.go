package tools

import (
	"sync"
	"sync/atomic"

	"github.com/blevesearch/bleve/v2"
	"github.com/docmcp/documenter-mcp-server/internal/searchindex"
)

// Index is an interface that abstracts bleve.Index operations
// This allows for easier testing with mocks
type Index interface {
	// Search executes a search request
	Search(req *bleve.SearchRequest) (*bleve.SearchResult, error)

	// DocCount returns the number of documents in the index
	DocCount() (uint64, error)

	// Close closes the index
	Close() error
}

// bleveIndexWrapper wraps a bleve.Index to implement our Index interface
type bleveIndexWrapper struct {
	index bleve.Index
}

// NewBleveIndexWrapper wraps a bleve.Index
func NewBleveIndexWrapper(index bleve.Index) Index {
	return &bleveIndexWrapper{index: index}
}

func (w *bleveIndexWrapper) Search(req *bleve.SearchRequest) (*bleve.SearchResult, error) {
	return w.index.Search(req)
}

func (w *bleveIndexWrapper) DocCount() (uint64, error) {
	return w.index.DocCount()
}

func (w *bleveIndexWrapper) Close() error {
	return w.index.Close()
}

// loadedDataset is the dataset the current index was built from
type loadedDataset struct {
	dataset     *searchindex.Dataset
	fingerprint string // sha256 of the search index file
}

// indexHolder manages concurrent access to the full-text index and the
// dataset behind it
type indexHolder struct {
	// current holds the active index pointer (atomic access for lock-free reads)
	current atomic.Pointer[Index]

	// dataset holds the records current was built from
	dataset atomic.Pointer[loadedDataset]

	// refreshMu serializes rebuilds; searches never take it
	refreshMu sync.Mutex

	// wg tracks in-flight searches so old indexes close only once drained
	wg sync.WaitGroup
}

// fingerprint returns the fingerprint of the loaded dataset, or ""
func (h *indexHolder) fingerprint() string {
	if loaded := h.dataset.Load(); loaded != nil {
		return loaded.fingerprint
	}
	return ""
}

// loadedRecords returns the loaded dataset, or nil
func (h *indexHolder) loadedRecords() *searchindex.Dataset {
	if loaded := h.dataset.Load(); loaded != nil {
		return loaded.dataset
	}
	return nil
}
