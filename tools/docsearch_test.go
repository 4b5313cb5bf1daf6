package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blevesearch/bleve/v2/search"
	"github.com/docmcp/documenter-mcp-server/internal/config"
	"github.com/docmcp/documenter-mcp-server/internal/indexing"
)

const twoRecordIndex = `var documenterSearchIndex = {"docs":
[{"location":"#Overview","page":"Home","title":"Overview","text":"Analysis of power system results","category":"section"},{"location":"api/#Pkg.compute","page":"API","title":"Pkg.compute","text":"Compute a metric over simulation results","category":"function"}]
}
`

const threeRecordIndex = `var documenterSearchIndex = {"docs":
[{"location":"#Overview","page":"Home","title":"Overview","text":"Analysis of power system results","category":"section"},{"location":"api/#Pkg.compute","page":"API","title":"Pkg.compute","text":"Compute a metric over simulation results","category":"function"},{"location":"api/#Pkg.Metric","page":"API","title":"Pkg.Metric","text":"The basic type for all metrics","category":"type"}]
}
`

// setupDocSearch points the package at a fresh data directory and holder
func setupDocSearch(t *testing.T) {
	t.Helper()

	oldDataDir, oldSettings, oldMgr := dataDir, settings, indexMgr
	dataDir = t.TempDir()
	if err := ensureDataLayout(dataDir); err != nil {
		t.Fatalf("Failed to create data layout: %v", err)
	}
	cfg := config.Default()
	cfg.Index.LockTimeout = time.Second
	settings = cfg
	indexMgr = &indexHolder{}

	t.Cleanup(func() {
		CloseDocSearch()
		dataDir, settings, indexMgr = oldDataDir, oldSettings, oldMgr
	})
}

// useSnapshot replaces the embedded snapshot with content for the test
func useSnapshot(t *testing.T, content string) {
	t.Helper()

	mock := NewMockDataProvider()
	mock.AddFile(embeddedSnapshotDir+"/search_index.js", []byte(content))

	original := defaultDataProvider
	SetDefaultDataProvider(mock)
	t.Cleanup(func() { defaultDataProvider = original })
}

func TestInitializeDocSearch_EmbeddedSnapshot(t *testing.T) {
	setupDocSearch(t)

	if err := InitializeDocSearch(); err != nil {
		t.Fatalf("InitializeDocSearch failed: %v", err)
	}

	if got := indexMgr.loadedRecords().Len(); got != 78 {
		t.Errorf("Expected 78 records from embedded snapshot, got %d", got)
	}

	if _, err := os.Stat(filepath.Join(dataDir, indexFile)); err != nil {
		t.Errorf("Embedded snapshot not extracted: %v", err)
	}

	version, builtFrom := getIndexVersion()
	if version != indexing.IndexSchemaVersion {
		t.Errorf("Expected index version %d, got %d", indexing.IndexSchemaVersion, version)
	}
	if builtFrom != indexMgr.fingerprint() || builtFrom == "" {
		t.Errorf("Version file fingerprint %q does not match loaded dataset %q", builtFrom, indexMgr.fingerprint())
	}
}

func TestInitializeDocSearch_ReusesMatchingIndex(t *testing.T) {
	setupDocSearch(t)
	useSnapshot(t, twoRecordIndex)

	if err := InitializeDocSearch(); err != nil {
		t.Fatalf("First initialization failed: %v", err)
	}
	versionPath := filepath.Join(dataDir, indexVersionFile)
	before, err := os.Stat(versionPath)
	if err != nil {
		t.Fatalf("Version file missing: %v", err)
	}

	if err := CloseDocSearch(); err != nil {
		t.Fatalf("CloseDocSearch failed: %v", err)
	}
	indexMgr = &indexHolder{}

	if err := InitializeDocSearch(); err != nil {
		t.Fatalf("Second initialization failed: %v", err)
	}
	after, err := os.Stat(versionPath)
	if err != nil {
		t.Fatalf("Version file missing after reopen: %v", err)
	}
	if !after.ModTime().Equal(before.ModTime()) {
		t.Error("Index was rebuilt although the dataset did not change")
	}
	if got := indexMgr.loadedRecords().Len(); got != 2 {
		t.Errorf("Expected 2 records, got %d", got)
	}
}

func TestInitializeDocSearch_RebuildsWhenLocalFileChanges(t *testing.T) {
	setupDocSearch(t)
	useSnapshot(t, twoRecordIndex)

	if err := InitializeDocSearch(); err != nil {
		t.Fatalf("First initialization failed: %v", err)
	}
	CloseDocSearch()
	indexMgr = &indexHolder{}

	if err := os.WriteFile(filepath.Join(dataDir, indexFile), []byte(threeRecordIndex), 0644); err != nil {
		t.Fatalf("Failed to write local index: %v", err)
	}

	if err := InitializeDocSearch(); err != nil {
		t.Fatalf("Second initialization failed: %v", err)
	}
	if got := indexMgr.loadedRecords().Len(); got != 3 {
		t.Errorf("Expected 3 records from local file, got %d", got)
	}
	if _, builtFrom := getIndexVersion(); builtFrom != indexing.Fingerprint([]byte(threeRecordIndex)) {
		t.Error("Index version does not record the new dataset")
	}
}

func TestInitializeDocSearch_InvalidLocalFallsBackToSnapshot(t *testing.T) {
	setupDocSearch(t)
	useSnapshot(t, twoRecordIndex)

	localPath := filepath.Join(dataDir, indexFile)
	if err := os.WriteFile(localPath, []byte("var documenterSearchIndex = {\"docs\":[{]}"), 0644); err != nil {
		t.Fatalf("Failed to write local index: %v", err)
	}

	if err := InitializeDocSearch(); err != nil {
		t.Fatalf("InitializeDocSearch failed: %v", err)
	}
	if got := indexMgr.loadedRecords().Len(); got != 2 {
		t.Errorf("Expected 2 records from snapshot, got %d", got)
	}

	data, _ := os.ReadFile(localPath)
	if string(data) != twoRecordIndex {
		t.Error("Invalid local file was not replaced by the snapshot")
	}
}

func TestExtractEmbeddedDataset_ErrorHandling(t *testing.T) {
	setupDocSearch(t)

	original := defaultDataProvider
	defer func() { defaultDataProvider = original }()
	SetDefaultDataProvider(NewMockDataProvider())

	err := extractEmbeddedDataset()
	if err == nil {
		t.Fatal("Expected error for empty provider, got nil")
	}
	if !strings.Contains(err.Error(), "failed to read directory") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestSearchDocumentation_RealIndex(t *testing.T) {
	setupDocSearch(t)

	if err := InitializeDocSearch(); err != nil {
		t.Fatalf("InitializeDocSearch failed: %v", err)
	}

	_, out, err := SearchDocumentation(context.Background(), nil, SearchDocumentationInput{Query: "metric"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(out.Results) == 0 {
		t.Fatal("Expected results for 'metric'")
	}
	if len(out.Results) > settings.Search.DefaultResults {
		t.Errorf("Expected at most %d results, got %d", settings.Search.DefaultResults, len(out.Results))
	}
	if out.TotalHits < len(out.Results) {
		t.Errorf("TotalHits %d below returned results %d", out.TotalHits, len(out.Results))
	}
	if out.Categories["type"] == 0 {
		t.Errorf("Expected type facet, got %v", out.Categories)
	}

	first := out.Results[0].Entry
	if first.URL == "" || first.Category == "" || first.Title == "" {
		t.Errorf("Stored fields missing from hit: %+v", first)
	}
	if !strings.HasPrefix(first.URL, settings.Source.BaseURL) {
		t.Errorf("URL %q not under base URL", first.URL)
	}
	if len(out.SourceURLs) != 1 || out.SourceURLs[0] != settings.Source.BaseURL {
		t.Errorf("Unexpected source URLs: %v", out.SourceURLs)
	}
}

func TestSearchDocumentation_CategoryFilter(t *testing.T) {
	setupDocSearch(t)

	if err := InitializeDocSearch(); err != nil {
		t.Fatalf("InitializeDocSearch failed: %v", err)
	}

	_, out, err := SearchDocumentation(context.Background(), nil, SearchDocumentationInput{
		Query:      "metric",
		Category:   "type",
		MaxResults: 20,
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(out.Results) == 0 {
		t.Fatal("Expected type results for 'metric'")
	}
	for _, result := range out.Results {
		if result.Entry.Category != "type" {
			t.Errorf("Result %s has category %s, want type", result.Entry.ID, result.Entry.Category)
		}
	}
	for cat := range out.Categories {
		if cat != "type" {
			t.Errorf("Facet for %s should not appear under a type filter", cat)
		}
	}
}

func TestSearchDocumentation_InvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		input  SearchDocumentationInput
		errMsg string
	}{
		{name: "empty query", input: SearchDocumentationInput{Query: "  "}, errMsg: "query must not be empty"},
		{name: "unknown category", input: SearchDocumentationInput{Query: "x", Category: "variable"}, errMsg: "unknown category"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := SearchDocumentation(context.Background(), nil, tt.input)
			if err == nil || !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Expected error containing %q, got %v", tt.errMsg, err)
			}
		})
	}
}

func TestSearchDocumentation_MaxResultsClamp(t *testing.T) {
	setupDocSearch(t)

	mock := newMockIndex(1)
	idx := Index(mock)
	indexMgr.current.Store(&idx)

	tests := []struct {
		requested int
		want      int
	}{
		{requested: 0, want: 10},
		{requested: -3, want: 10},
		{requested: 5, want: 5},
		{requested: 100, want: 20},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("requested=%d", tt.requested), func(t *testing.T) {
			_, _, err := SearchDocumentation(context.Background(), nil, SearchDocumentationInput{
				Query:      "compute",
				MaxResults: tt.requested,
			})
			if err != nil {
				t.Fatalf("Search failed: %v", err)
			}
			req := mock.lastRequest.Load()
			if req == nil {
				t.Fatal("Search request not recorded")
			}
			if req.Size != tt.want {
				t.Errorf("Expected size %d, got %d", tt.want, req.Size)
			}
		})
	}
}

func TestSearchDocumentation_ClosedIndex(t *testing.T) {
	setupDocSearch(t)

	mock := newMockIndex(1)
	mock.searchError = fmt.Errorf("boom")
	idx := Index(mock)
	indexMgr.current.Store(&idx)

	_, _, err := SearchDocumentation(context.Background(), nil, SearchDocumentationInput{Query: "compute"})
	if err == nil || !strings.Contains(err.Error(), "search failed") {
		t.Errorf("Expected search failure, got %v", err)
	}
}

func TestHitToEntry(t *testing.T) {
	hit := &search.DocumentMatch{
		ID: "rec_3_sub1",
		Fields: map[string]interface{}{
			"location":    "api/#Pkg.compute",
			"page_path":   "api/",
			"anchor":      "Pkg.compute",
			"page":        "API",
			"title":       "Pkg.compute",
			"category":    "function",
			"text":        "Compute a metric",
			"url":         "https://example.org/dev/api/#Pkg.compute",
			"breadcrumb":  "API > Pkg.compute",
			"keywords":    []interface{}{"pkg.compute", "metric"},
			"ordinal":     float64(3),
			"token_count": float64(4),
		},
	}

	entry := hitToEntry(hit)
	if entry.ID != "rec_3_sub1" || entry.Ordinal != 3 || entry.TokenCount != 4 {
		t.Errorf("Unexpected identity fields: %+v", entry)
	}
	if entry.Anchor != "Pkg.compute" || entry.PagePath != "api/" || entry.Category != "function" {
		t.Errorf("Unexpected location fields: %+v", entry)
	}
	if len(entry.Keywords) != 2 || entry.Keywords[1] != "metric" {
		t.Errorf("Unexpected keywords: %v", entry.Keywords)
	}

	// A single keyword is stored as a plain string
	hit.Fields["keywords"] = "metric"
	entry = hitToEntry(hit)
	if len(entry.Keywords) != 1 || entry.Keywords[0] != "metric" {
		t.Errorf("Unexpected single keyword: %v", entry.Keywords)
	}
}

// serveIndex starts a server returning the current value of body
func serveIndex(t *testing.T, body *atomic.Value, requests *atomic.Int32) {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		content := body.Load().(string)
		if content == "" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/javascript")
		fmt.Fprint(w, content)
	}))
	t.Cleanup(server.Close)

	settings.Source.IndexURL = server.URL + "/search_index.js"
}

func TestRefreshDocumentationIndex(t *testing.T) {
	setupDocSearch(t)
	useSnapshot(t, twoRecordIndex)

	var body atomic.Value
	var requests atomic.Int32
	body.Store(threeRecordIndex)
	serveIndex(t, &body, &requests)

	if err := InitializeDocSearch(); err != nil {
		t.Fatalf("InitializeDocSearch failed: %v", err)
	}

	// No cache.meta yet, so a plain refresh downloads
	_, out, err := RefreshDocumentationIndex(context.Background(), nil, RefreshDocumentationIndexInput{})
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if !out.Updated || out.Records != 3 {
		t.Errorf("Expected rebuild with 3 records, got %+v", out)
	}
	if out.EntriesIndexed < 3 {
		t.Errorf("Expected at least 3 indexed entries, got %d", out.EntriesIndexed)
	}

	stored, _ := os.ReadFile(filepath.Join(dataDir, indexFile))
	if string(stored) != threeRecordIndex {
		t.Error("Downloaded index was not stored locally")
	}

	// Cache is fresh now
	_, out, err = RefreshDocumentationIndex(context.Background(), nil, RefreshDocumentationIndexInput{})
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if out.Updated || !strings.Contains(out.Message, "Cache is fresh") {
		t.Errorf("Expected fresh cache, got %+v", out)
	}
	if requests.Load() != 1 {
		t.Errorf("Expected 1 download, got %d", requests.Load())
	}

	// Forced refresh of unchanged content keeps the index
	_, out, err = RefreshDocumentationIndex(context.Background(), nil, RefreshDocumentationIndexInput{Force: true})
	if err != nil {
		t.Fatalf("Forced refresh failed: %v", err)
	}
	if out.Updated {
		t.Error("Unchanged download should not rebuild the index")
	}
	if requests.Load() != 2 {
		t.Errorf("Expected 2 downloads, got %d", requests.Load())
	}

	_, found, err := SearchDocumentation(context.Background(), nil, SearchDocumentationInput{Query: "basic type"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(found.Results) == 0 || found.Results[0].Entry.Title != "Pkg.Metric" {
		t.Errorf("Expected Pkg.Metric from refreshed index, got %+v", found.Results)
	}
}

func TestRefreshDocumentationIndex_InvalidDownload(t *testing.T) {
	setupDocSearch(t)
	useSnapshot(t, twoRecordIndex)

	var body atomic.Value
	var requests atomic.Int32
	body.Store(`var documenterSearchIndex = {"docs":[{"location":"x"}]}`)
	serveIndex(t, &body, &requests)

	if err := InitializeDocSearch(); err != nil {
		t.Fatalf("InitializeDocSearch failed: %v", err)
	}

	_, _, err := RefreshDocumentationIndex(context.Background(), nil, RefreshDocumentationIndexInput{Force: true})
	if err == nil || !strings.Contains(err.Error(), "downloaded search index is invalid") {
		t.Fatalf("Expected invalid download error, got %v", err)
	}

	body.Store("")
	_, _, err = RefreshDocumentationIndex(context.Background(), nil, RefreshDocumentationIndexInput{Force: true})
	if err == nil || !strings.Contains(err.Error(), "status: 404") {
		t.Fatalf("Expected 404 error, got %v", err)
	}

	// Previous dataset stays in place
	if got := indexMgr.loadedRecords().Len(); got != 2 {
		t.Errorf("Expected 2 records after failed refresh, got %d", got)
	}
	stored, _ := os.ReadFile(filepath.Join(dataDir, indexFile))
	if string(stored) != twoRecordIndex {
		t.Error("Failed refresh overwrote the local index")
	}
}

func TestNeedsRefresh(t *testing.T) {
	setupDocSearch(t)

	if !needsRefresh() {
		t.Error("Missing cache.meta should need refresh")
	}

	if err := writeCacheMeta(); err != nil {
		t.Fatalf("writeCacheMeta failed: %v", err)
	}
	if needsRefresh() {
		t.Error("Fresh cache.meta should not need refresh")
	}

	old := time.Now().Add(-settings.Source.CacheTTL - time.Hour)
	if err := os.Chtimes(filepath.Join(dataDir, cacheMetaFile), old, old); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}
	if !needsRefresh() {
		t.Error("Expired cache.meta should need refresh")
	}
}

func TestReindexLocalFile(t *testing.T) {
	setupDocSearch(t)
	useSnapshot(t, twoRecordIndex)

	if err := InitializeDocSearch(); err != nil {
		t.Fatalf("InitializeDocSearch failed: %v", err)
	}

	rebuilt, err := reindexLocalFile()
	if err != nil || rebuilt {
		t.Fatalf("Unchanged file should not rebuild (rebuilt=%v, err=%v)", rebuilt, err)
	}

	localPath := filepath.Join(dataDir, indexFile)
	if err := os.WriteFile(localPath, []byte(threeRecordIndex), 0644); err != nil {
		t.Fatalf("Failed to write local index: %v", err)
	}
	rebuilt, err = reindexLocalFile()
	if err != nil || !rebuilt {
		t.Fatalf("Changed file should rebuild (rebuilt=%v, err=%v)", rebuilt, err)
	}
	if got := indexMgr.loadedRecords().Len(); got != 3 {
		t.Errorf("Expected 3 records, got %d", got)
	}

	// A broken edit keeps the last good index
	if err := os.WriteFile(localPath, []byte("var documenterSearchIndex = {"), 0644); err != nil {
		t.Fatalf("Failed to write local index: %v", err)
	}
	if _, err := reindexLocalFile(); err == nil {
		t.Error("Expected error for invalid file")
	}
	if got := indexMgr.loadedRecords().Len(); got != 3 {
		t.Errorf("Expected 3 records after failed reindex, got %d", got)
	}
}

func TestEnsureInitialized_ConcurrentCallsBuildOnce(t *testing.T) {
	setupDocSearch(t)
	useSnapshot(t, twoRecordIndex)

	const numCallers = 8
	type result struct {
		index *Index
		err   error
	}
	results := make(chan result, numCallers)
	start := make(chan struct{})

	for i := 0; i < numCallers; i++ {
		go func() {
			<-start
			err := ensureInitialized()
			results <- result{index: indexMgr.current.Load(), err: err}
		}()
	}
	close(start)

	var first *Index
	for i := 0; i < numCallers; i++ {
		r := <-results
		if r.err != nil {
			t.Errorf("ensureInitialized failed: %v", r.err)
			continue
		}
		if first == nil {
			first = r.index
		} else if r.index != first {
			t.Error("Concurrent callers observed different indexes; initialization ran more than once")
		}
	}

	if _, err := os.Stat(filepath.Join(dataDir, indexDir+".tmp")); !os.IsNotExist(err) {
		t.Errorf("Temporary index left behind: %v", err)
	}
	if got := indexMgr.loadedRecords().Len(); got != 2 {
		t.Errorf("Expected 2 records, got %d", got)
	}
}

func TestIndexHolderConcurrentReads(t *testing.T) {
	mockIdx := newMockIndex(1)
	idx := Index(mockIdx)

	holder := &indexHolder{}
	holder.current.Store(&idx)

	const numReaders = 50
	errChan := make(chan error, numReaders)
	doneChan := make(chan bool, numReaders)

	for i := 0; i < numReaders; i++ {
		go func(id int) {
			defer func() { doneChan <- true }()

			holder.wg.Add(1)
			defer holder.wg.Done()

			indexPtr := holder.current.Load()
			if indexPtr == nil {
				errChan <- fmt.Errorf("goroutine %d: got nil index", id)
				return
			}

			count, err := (*indexPtr).DocCount()
			if err != nil {
				errChan <- fmt.Errorf("goroutine %d: DocCount failed: %v", id, err)
				return
			}
			if count != 100 {
				errChan <- fmt.Errorf("goroutine %d: expected 100, got %d", id, count)
			}
		}(i)
	}

	for i := 0; i < numReaders; i++ {
		<-doneChan
	}
	close(errChan)

	for err := range errChan {
		t.Error(err)
	}

	holder.wg.Wait()
}

func TestIndexHolderInstallClosesOldIndex(t *testing.T) {
	holder := &indexHolder{}

	mock1 := newMockIndex(1)
	mock2 := newMockIndex(2)

	holder.install(mock1, nil, "first")
	if holder.fingerprint() != "first" {
		t.Errorf("Expected fingerprint 'first', got %q", holder.fingerprint())
	}

	// Hold a search open across the swap
	holder.wg.Add(1)
	holder.install(mock2, nil, "second")

	if got := *holder.current.Load(); got != Index(mock2) {
		t.Error("Expected mock2 to be current")
	}
	if holder.fingerprint() != "second" {
		t.Errorf("Expected fingerprint 'second', got %q", holder.fingerprint())
	}

	time.Sleep(50 * time.Millisecond)
	if mock1.IsClosed() {
		t.Fatal("Old index closed while a search was in flight")
	}

	holder.wg.Done()

	deadline := time.Now().Add(2 * time.Second)
	for !mock1.IsClosed() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !mock1.IsClosed() {
		t.Error("Old index was not closed after searches drained")
	}
	if mock2.IsClosed() {
		t.Error("Current index must stay open")
	}
}

func TestCloseDocSearch(t *testing.T) {
	setupDocSearch(t)

	mock := newMockIndex(1)
	idx := Index(mock)
	indexMgr.current.Store(&idx)

	if err := CloseDocSearch(); err != nil {
		t.Fatalf("CloseDocSearch failed: %v", err)
	}
	if !mock.IsClosed() {
		t.Error("Index not closed")
	}
	if indexMgr.current.Load() != nil {
		t.Error("Index pointer not cleared")
	}

	// Second close is a no-op
	if err := CloseDocSearch(); err != nil {
		t.Errorf("Second CloseDocSearch failed: %v", err)
	}
}
