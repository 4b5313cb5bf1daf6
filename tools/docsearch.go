package tools

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/docmcp/documenter-mcp-server/internal/indexing"
	"github.com/docmcp/documenter-mcp-server/internal/searchindex"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	indexFile        = "docs/search_index.js"
	cacheMetaFile    = "docs/cache.meta"
	indexDir         = "search/index"
	lockFile         = "search/index.lock"
	indexVersionFile = "search/.index_version"

	maxDownloadBytes = 64 << 20
)

var (
	indexMgr *indexHolder

	// initMu serializes lazy initialization from concurrent tool calls
	initMu sync.Mutex
)

// SearchResult represents a search result with score
type SearchResult struct {
	Entry indexing.DocEntry `json:"entry"`
	Score float64           `json:"score"`
}

// SearchDocumentationInput defines input for search_documentation tool
type SearchDocumentationInput struct {
	Query      string `json:"query" jsonschema:"Search query for documentation"`
	Category   string `json:"category,omitempty" jsonschema:"Only return entries of this category: section, page, module, constant, type, function, method, macro or keyword (optional)"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"Maximum number of results (optional, defaults to 10)"`
}

// SearchDocumentationOutput defines output for search_documentation tool
type SearchDocumentationOutput struct {
	Results    []SearchResult `json:"results"`
	Query      string         `json:"query"`
	TotalHits  int            `json:"total_hits"`
	Categories map[string]int `json:"categories,omitempty"`
	SourceURLs []string       `json:"source_urls"`
}

// RefreshDocumentationIndexInput defines input for refresh_documentation_index tool
type RefreshDocumentationIndexInput struct {
	Force bool `json:"force,omitempty" jsonschema:"Force re-download and re-indexing (optional, defaults to false)"`
}

// RefreshDocumentationIndexOutput defines output for refresh_documentation_index tool
type RefreshDocumentationIndexOutput struct {
	Updated        bool      `json:"updated"`
	LastUpdate     time.Time `json:"last_update"`
	Records        int       `json:"records"`
	EntriesIndexed int       `json:"entries_indexed"`
	Message        string    `json:"message"`
}

// InitializeDocSearch loads the search index file and opens (or builds) the
// full-text index over it.
// Priority: local file (from a previous refresh) > embedded snapshot
func InitializeDocSearch() error {
	startTime := time.Now()
	log.Printf("Initializing documentation search...")

	if indexMgr == nil {
		indexMgr = &indexHolder{}
	}

	log.Printf("Acquiring index lock...")
	lockStart := time.Now()
	if err := acquireLock(); err != nil {
		return fmt.Errorf("failed to acquire index lock: %w", err)
	}
	log.Printf("Lock acquired in %v", time.Since(lockStart).Round(time.Millisecond))

	ds, fp, source, err := loadDataset()
	if err != nil {
		return err
	}
	log.Printf("Loaded %d search records (%s)", ds.Len(), source)

	indexPath := filepath.Join(dataDir, indexDir)

	// Strategy 1: reuse the on-disk index if it was built from this dataset
	if _, err := os.Stat(indexPath); err == nil {
		version, builtFrom := getIndexVersion()
		if version != indexing.IndexSchemaVersion || builtFrom != fp {
			log.Printf("Index is stale (schema v%d, want v%d; dataset changed: %v), rebuilding...",
				version, indexing.IndexSchemaVersion, builtFrom != fp)
		} else {
			openStart := time.Now()
			index, err := bleve.Open(indexPath)
			if err == nil {
				indexMgr.install(NewBleveIndexWrapper(index), ds, fp)
				count, _ := index.DocCount()
				log.Printf("✓ Documentation search initialized (%d entries, local index v%d) in %v",
					count, indexing.IndexSchemaVersion, time.Since(startTime).Round(time.Millisecond))

				if needsRefresh() {
					log.Printf("ℹ️  Local search index is older than %v. Consider using refresh_documentation_index to update.", settings.Source.CacheTTL)
				}
				return nil
			}
			log.Printf("Warning: Local index corrupted (open failed in %v), removing...", time.Since(openStart).Round(time.Millisecond))
		}
		os.RemoveAll(indexPath)
		os.Remove(filepath.Join(dataDir, indexVersionFile))
	}

	// Strategy 2: build the index from the dataset
	if err := buildIndex(ds, fp); err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}

	log.Printf("✓ Documentation search initialized (%d records, %s dataset) in %v",
		ds.Len(), source, time.Since(startTime).Round(time.Millisecond))
	if source == "embedded" {
		log.Printf("ℹ️  Using embedded search index (build-time). Use refresh_documentation_index to get the latest docs.")
	}
	return nil
}

// ensureInitialized initializes doc search on first use
func ensureInitialized() error {
	if indexMgr != nil && indexMgr.current.Load() != nil {
		return nil
	}

	initMu.Lock()
	defer initMu.Unlock()
	if indexMgr != nil && indexMgr.current.Load() != nil {
		return nil
	}

	log.Printf("Doc index not initialized, initializing now...")
	if err := InitializeDocSearch(); err != nil {
		return fmt.Errorf("failed to initialize documentation index: %w", err)
	}
	if indexMgr.current.Load() == nil {
		return fmt.Errorf("index still nil after initialization")
	}
	return nil
}

// loadDataset reads the local search index, falling back to the embedded
// snapshot when it is missing or invalid
func loadDataset() (*searchindex.Dataset, string, string, error) {
	localPath := filepath.Join(dataDir, indexFile)

	if data, err := os.ReadFile(localPath); err == nil {
		ds, err := searchindex.Parse(data)
		if err == nil {
			return ds, indexing.Fingerprint(data), "local", nil
		}
		log.Printf("Warning: Local search index is invalid (%v), restoring embedded snapshot...", err)
	}

	log.Printf("No usable local search index, extracting embedded snapshot...")
	if err := extractEmbeddedDataset(); err != nil {
		return nil, "", "", fmt.Errorf("failed to extract embedded search index: %w", err)
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, "", "", fmt.Errorf("failed to read extracted search index: %w", err)
	}
	ds, err := searchindex.Parse(data)
	if err != nil {
		return nil, "", "", fmt.Errorf("embedded search index is invalid: %w", err)
	}
	return ds, indexing.Fingerprint(data), "embedded", nil
}

// extractEmbeddedDataset copies the embedded snapshot files to the docs directory
func extractEmbeddedDataset() error {
	entries, err := defaultDataProvider.ReadDir(embeddedSnapshotDir)
	if err != nil {
		return fmt.Errorf("failed to read directory %s: %w", embeddedSnapshotDir, err)
	}

	docsPath := filepath.Join(dataDir, "docs")
	if err := os.MkdirAll(docsPath, 0755); err != nil {
		return fmt.Errorf("failed to create docs directory: %w", err)
	}

	extracted := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := defaultDataProvider.ReadFile(embeddedSnapshotDir + "/" + entry.Name())
		if err != nil {
			return fmt.Errorf("failed to read embedded file %s: %w", entry.Name(), err)
		}
		if err := writeFileAtomic(filepath.Join(docsPath, entry.Name()), data); err != nil {
			return fmt.Errorf("failed to write file %s: %w", entry.Name(), err)
		}
		extracted++
	}

	log.Printf("✓ Embedded snapshot extracted to %s (%d files)", docsPath, extracted)
	return nil
}

// getIndexVersion reads the schema version and dataset fingerprint the
// on-disk index was built with
func getIndexVersion() (int, string) {
	data, err := os.ReadFile(filepath.Join(dataDir, indexVersionFile))
	if err != nil {
		return 0, "" // No version file = v0
	}

	return indexing.ParseVersionStamp(string(data))
}

// writeIndexVersion records the schema version and dataset fingerprint
func writeIndexVersion(fp string) error {
	versionPath := filepath.Join(dataDir, indexVersionFile)
	if err := os.MkdirAll(filepath.Dir(versionPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(versionPath, []byte(indexing.VersionStamp(fp)), 0644)
}

// needsRefresh checks if the downloaded search index is older than the cache TTL
func needsRefresh() bool {
	info, err := os.Stat(filepath.Join(dataDir, cacheMetaFile))
	if err != nil {
		return true // Never downloaded
	}
	return time.Since(info.ModTime()) > settings.Source.CacheTTL
}

// writeFileAtomic writes data next to path and renames it into place
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// downloadSearchIndex fetches the published search index file
func downloadSearchIndex(ctx context.Context) ([]byte, error) {
	url := settings.Source.IndexURL
	log.Printf("Downloading search index from %s", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	client := &http.Client{Timeout: settings.Source.DownloadTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(data) > maxDownloadBytes {
		return nil, fmt.Errorf("search index exceeds %d bytes", maxDownloadBytes)
	}

	log.Printf("Search index downloaded (%d bytes)", len(data))
	return data, nil
}

// writeCacheMeta records when the search index was last downloaded
func writeCacheMeta() error {
	metaPath := filepath.Join(dataDir, cacheMetaFile)
	content := fmt.Sprintf("last_update: %s\nsource: %s\n", time.Now().Format(time.RFC3339), settings.Source.IndexURL)
	return os.WriteFile(metaPath, []byte(content), 0644)
}

// install makes index and ds current and closes the previous index once
// in-flight searches drain
func (h *indexHolder) install(index Index, ds *searchindex.Dataset, fp string) {
	h.dataset.Store(&loadedDataset{dataset: ds, fingerprint: fp})
	oldIndexPtr := h.current.Swap(&index)

	if oldIndexPtr == nil {
		return
	}

	go func(oldPtr *Index) {
		log.Printf("Waiting for in-flight searches to complete before closing old index...")
		waitStart := time.Now()

		h.wg.Wait()

		log.Printf("All searches completed, closing old index (waited %v)...",
			time.Since(waitStart).Round(time.Millisecond))

		old := *oldPtr
		if err := old.Close(); err != nil {
			log.Printf("Warning: Error closing old index: %v", err)
		} else {
			log.Printf("✓ Old index closed successfully")
		}
	}(oldIndexPtr)
}

// buildIndex creates a new on-disk index for ds in a temp location, moves
// it into place and swaps it in. Callers serialize via refreshMu or run
// before tools are served.
func buildIndex(ds *searchindex.Dataset, fp string) error {
	startTime := time.Now()
	indexPath := filepath.Join(dataDir, indexDir)
	tempIndexPath := filepath.Join(dataDir, indexDir+".tmp")

	entries := indexing.BuildEntries(ds, settings.Source.BaseURL)
	log.Printf("Prepared %d entries from %d records (avg: %d tokens, %d over limit)",
		len(entries), ds.Len(), indexing.AverageTokens(entries), indexing.CountOversized(entries))

	// Clean up any leftover temp index from previous crash
	os.RemoveAll(tempIndexPath)

	if err := os.MkdirAll(filepath.Dir(tempIndexPath), 0755); err != nil {
		return fmt.Errorf("failed to create temp index directory: %w", err)
	}

	newIndex, err := bleve.New(tempIndexPath, indexing.NewIndexMapping())
	if err != nil {
		return fmt.Errorf("failed to create temp index: %w", err)
	}

	if err := indexing.IndexEntries(newIndex, entries, settings.Index.BatchSize, nil); err != nil {
		newIndex.Close()
		os.RemoveAll(tempIndexPath)
		return err
	}

	if err := newIndex.Close(); err != nil {
		os.RemoveAll(tempIndexPath)
		return fmt.Errorf("failed to close temp index: %w", err)
	}

	// Filesystem swap: rename temp to final location
	if err := os.RemoveAll(indexPath); err != nil && !os.IsNotExist(err) {
		os.RemoveAll(tempIndexPath)
		return fmt.Errorf("failed to remove old index: %w", err)
	}
	if err := os.Rename(tempIndexPath, indexPath); err != nil {
		os.RemoveAll(tempIndexPath)
		return fmt.Errorf("failed to rename temp index: %w", err)
	}

	finalIndex, err := bleve.Open(indexPath)
	if err != nil {
		return fmt.Errorf("failed to open new index: %w", err)
	}

	indexMgr.install(NewBleveIndexWrapper(finalIndex), ds, fp)

	if err := writeIndexVersion(fp); err != nil {
		log.Printf("Warning: Failed to write index version: %v", err)
	}

	log.Printf("✓ Indexed %d entries in %v, searches now using new index",
		len(entries), time.Since(startTime).Round(time.Millisecond))
	return nil
}

// refreshDocumentationIndex downloads the search index and rebuilds the
// full-text index when its content changed. It reports whether the index
// was rebuilt.
func refreshDocumentationIndex(ctx context.Context, force bool) (bool, error) {
	startTime := time.Now()

	if !force && !needsRefresh() {
		log.Printf("Search index cache is fresh, skipping refresh")
		return false, nil
	}

	// Serialize refresh operations (prevent concurrent refreshes)
	indexMgr.refreshMu.Lock()
	defer indexMgr.refreshMu.Unlock()

	// Another goroutine may have refreshed while we were waiting
	if !force && !needsRefresh() {
		log.Printf("Search index was refreshed by another goroutine, skipping")
		return false, nil
	}

	log.Printf("Starting documentation refresh (force=%v)...", force)

	// Lock is released by CloseDocSearch() when process exits
	if err := acquireLock(); err != nil {
		return false, fmt.Errorf("failed to acquire lock for refresh: %w", err)
	}

	data, err := downloadSearchIndex(ctx)
	if err != nil {
		return false, fmt.Errorf("download failed: %w", err)
	}

	ds, err := searchindex.Parse(data)
	if err != nil {
		return false, fmt.Errorf("downloaded search index is invalid: %w", err)
	}

	if err := writeFileAtomic(filepath.Join(dataDir, indexFile), data); err != nil {
		return false, fmt.Errorf("failed to store search index: %w", err)
	}
	if err := writeCacheMeta(); err != nil {
		log.Printf("Warning: Failed to write cache metadata: %v", err)
	}

	fp := indexing.Fingerprint(data)
	if fp == indexMgr.fingerprint() && indexMgr.current.Load() != nil {
		log.Printf("Search index unchanged (%d records), keeping current index", ds.Len())
		return false, nil
	}

	if err := buildIndex(ds, fp); err != nil {
		return false, fmt.Errorf("indexing failed: %w", err)
	}

	log.Printf("✓ Documentation refresh completed in %v", time.Since(startTime).Round(time.Millisecond))
	return true, nil
}

// reindexLocalFile rebuilds the index from the local search index file if
// its content differs from the loaded dataset
func reindexLocalFile() (bool, error) {
	indexMgr.refreshMu.Lock()
	defer indexMgr.refreshMu.Unlock()

	data, err := os.ReadFile(filepath.Join(dataDir, indexFile))
	if err != nil {
		return false, fmt.Errorf("failed to read search index: %w", err)
	}

	fp := indexing.Fingerprint(data)
	if fp == indexMgr.fingerprint() {
		return false, nil
	}

	ds, err := searchindex.Parse(data)
	if err != nil {
		return false, fmt.Errorf("search index is invalid: %w", err)
	}

	if err := buildIndex(ds, fp); err != nil {
		return false, fmt.Errorf("indexing failed: %w", err)
	}
	return true, nil
}

// buildQuery matches text across all fields, optionally restricted to one category
func buildQuery(text, category string) query.Query {
	match := bleve.NewMatchQuery(text)
	if category == "" {
		return match
	}
	term := bleve.NewTermQuery(category)
	term.SetField("category")
	return bleve.NewConjunctionQuery(match, term)
}

// hitToEntry rebuilds a DocEntry from the stored fields of a hit
func hitToEntry(hit *search.DocumentMatch) indexing.DocEntry {
	entry := indexing.DocEntry{ID: hit.ID}

	stringField := func(name string) string {
		s, _ := hit.Fields[name].(string)
		return s
	}
	entry.Location = stringField("location")
	entry.PagePath = stringField("page_path")
	entry.Anchor = stringField("anchor")
	entry.Page = stringField("page")
	entry.Title = stringField("title")
	entry.Category = stringField("category")
	entry.Text = stringField("text")
	entry.URL = stringField("url")
	entry.Breadcrumb = stringField("breadcrumb")

	// Single-valued arrays come back as a plain value
	switch keywords := hit.Fields["keywords"].(type) {
	case []interface{}:
		entry.Keywords = make([]string, 0, len(keywords))
		for _, kw := range keywords {
			if kwStr, ok := kw.(string); ok {
				entry.Keywords = append(entry.Keywords, kwStr)
			}
		}
	case string:
		entry.Keywords = []string{keywords}
	}

	if ordinal, ok := hit.Fields["ordinal"].(float64); ok {
		entry.Ordinal = int(ordinal)
	}
	if tokenCount, ok := hit.Fields["token_count"].(float64); ok {
		entry.TokenCount = int(tokenCount)
	}
	return entry
}

// SearchDocumentation searches the documentation index
func SearchDocumentation(ctx context.Context, req *mcp.CallToolRequest, input SearchDocumentationInput) (*mcp.CallToolResult, SearchDocumentationOutput, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchDocumentationOutput{}, fmt.Errorf("query must not be empty")
	}
	if input.Category != "" && !searchindex.Category(input.Category).Valid() {
		return nil, SearchDocumentationOutput{}, fmt.Errorf("unknown category %q", input.Category)
	}

	if err := ensureInitialized(); err != nil {
		return nil, SearchDocumentationOutput{}, err
	}

	// Track in-flight searches for graceful cleanup (MUST be before Load)
	indexMgr.wg.Add(1)
	defer indexMgr.wg.Done()

	indexPtr := indexMgr.current.Load()
	if indexPtr == nil {
		return nil, SearchDocumentationOutput{}, fmt.Errorf("documentation index is closed")
	}
	index := *indexPtr

	maxResults := input.MaxResults
	if maxResults <= 0 {
		maxResults = settings.Search.DefaultResults
	}
	if maxResults > settings.Search.MaxResults {
		maxResults = settings.Search.MaxResults
	}

	searchReq := bleve.NewSearchRequest(buildQuery(input.Query, input.Category))
	searchReq.Size = maxResults
	searchReq.Fields = []string{"*"}
	searchReq.AddFacet("categories", bleve.NewFacetRequest("category", len(searchindex.KnownCategories())))

	searchResults, err := index.Search(searchReq)
	if err != nil {
		return nil, SearchDocumentationOutput{}, fmt.Errorf("search failed: %w", err)
	}

	results := make([]SearchResult, 0, len(searchResults.Hits))
	for _, hit := range searchResults.Hits {
		results = append(results, SearchResult{
			Entry: hitToEntry(hit),
			Score: hit.Score,
		})
	}

	output := SearchDocumentationOutput{
		Results:    results,
		Query:      input.Query,
		TotalHits:  int(searchResults.Total),
		SourceURLs: []string{settings.Source.BaseURL},
	}

	if facet, ok := searchResults.Facets["categories"]; ok && facet != nil && facet.Terms != nil {
		output.Categories = make(map[string]int)
		for _, term := range facet.Terms.Terms() {
			output.Categories[term.Term] = term.Count
		}
	}

	return nil, output, nil
}

// RefreshDocumentationIndex downloads the latest search index and re-indexes it
func RefreshDocumentationIndex(ctx context.Context, req *mcp.CallToolRequest, input RefreshDocumentationIndexInput) (*mcp.CallToolResult, RefreshDocumentationIndexOutput, error) {
	output := RefreshDocumentationIndexOutput{}

	if err := ensureInitialized(); err != nil {
		return nil, output, err
	}

	metaPath := filepath.Join(dataDir, cacheMetaFile)
	if !input.Force && !needsRefresh() {
		if info, err := os.Stat(metaPath); err == nil {
			output.LastUpdate = info.ModTime()
			output.Records = indexMgr.loadedRecords().Len()
			output.Message = fmt.Sprintf("Cache is fresh (last updated: %s)", info.ModTime().Format(time.RFC3339))
			return nil, output, nil
		}
	}

	rebuilt, err := refreshDocumentationIndex(ctx, input.Force)
	if err != nil {
		return nil, output, fmt.Errorf("refresh failed: %w", err)
	}

	if indexPtr := indexMgr.current.Load(); indexPtr != nil {
		count, _ := (*indexPtr).DocCount()
		output.EntriesIndexed = int(count)
	}
	output.Records = indexMgr.loadedRecords().Len()
	output.Updated = rebuilt
	output.LastUpdate = time.Now()
	if info, err := os.Stat(metaPath); err == nil {
		output.LastUpdate = info.ModTime()
	}

	if rebuilt {
		output.Message = fmt.Sprintf("Documentation refreshed successfully, %d records indexed as %d entries",
			output.Records, output.EntriesIndexed)
	} else {
		output.Message = fmt.Sprintf("Search index unchanged, %d records", output.Records)
	}

	return nil, output, nil
}

// RegisterDocSearchTools registers documentation search tools
func RegisterDocSearchTools(server *mcp.Server) error {
	// Initialize doc search synchronously
	if err := InitializeDocSearch(); err != nil {
		log.Printf("Warning: Documentation search initialization failed: %v", err)
		log.Printf("Documentation search will attempt to initialize on first use")
	}

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "search_documentation",
			Description: "Full-text search over the documentation search index. Returns the best matching sections, pages and docstrings with links, optionally filtered by category.",
		},
		SearchDocumentation,
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "refresh_documentation_index",
			Description: fmt.Sprintf("Re-download search_index.js from the documentation site and re-index it (skipped if the cache is younger than %v unless forced)", settings.Source.CacheTTL),
		},
		RefreshDocumentationIndex,
	)

	return nil
}

// CloseDocSearch closes the documentation search index and releases the lock
func CloseDocSearch() error {
	var closeErr error

	if indexMgr != nil {
		// Atomically swap index to nil (prevents new searches)
		indexPtr := indexMgr.current.Swap(nil)

		if indexPtr != nil {
			log.Printf("Waiting for in-flight searches to complete before closing...")
			indexMgr.wg.Wait()

			index := *indexPtr
			closeErr = index.Close()
			if closeErr != nil {
				log.Printf("Error closing doc index: %v", closeErr)
			} else {
				log.Printf("✓ Doc index closed successfully")
			}
		}
	}

	// Always attempt to release inter-process lock, even if close failed
	if err := releaseLock(); err != nil {
		log.Printf("Error releasing lock: %v", err)
		if closeErr == nil {
			closeErr = err
		}
	}

	return closeErr
}
