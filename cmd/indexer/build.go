package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/docmcp/documenter-mcp-server/internal/config"
	"github.com/docmcp/documenter-mcp-server/internal/indexing"
	"github.com/docmcp/documenter-mcp-server/internal/searchindex"
	"github.com/spf13/cobra"
)

var (
	flagBuildBaseURL   string
	flagBuildBatchSize int
)

var buildCmd = &cobra.Command{
	Use:     "build <search_index.js> <index-dir>",
	Short:   "Build a bleve index from a search index file",
	Example: "  documenter-indexer build build/search_index.js ~/.documenter-mcp/search/index",
	Args:    cobra.ExactArgs(2),
	RunE:    runBuild,
}

func init() {
	buildCmd.Flags().StringVar(&flagBuildBaseURL, "base-url", config.DefaultBaseURL, "Documentation site root used to build result links")
	buildCmd.Flags().IntVar(&flagBuildBatchSize, "batch-size", indexing.DefaultBatchSize, "Entries per index batch")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(_ *cobra.Command, args []string) error {
	docsFile, indexDir := args[0], args[1]
	startTime := time.Now()

	log.Printf("Documenter Search Indexer v%d", indexing.IndexSchemaVersion)
	log.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	// Step 1: Parse the search index
	log.Printf("Parsing search index: %s", docsFile)
	data, err := os.ReadFile(docsFile)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", docsFile, err)
	}
	ds, err := searchindex.Parse(data)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", docsFile, err)
	}

	entries := indexing.BuildEntries(ds, flagBuildBaseURL)
	avgTokens := indexing.AverageTokens(entries)
	log.Printf("✓ Parsed %d records into %d entries (avg: %d tokens, %d oversized)",
		ds.Len(), len(entries), avgTokens, indexing.CountOversized(entries))

	// Step 2: Remove existing index
	if err := os.RemoveAll(indexDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove old index: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(indexDir), 0755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	// Step 3: Create and fill the new index
	log.Printf("Creating search index: %s", indexDir)
	index, err := bleve.New(indexDir, indexing.NewIndexMapping())
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	err = indexing.IndexEntries(index, entries, flagBuildBatchSize, func(done int) {
		log.Printf("  Indexed %d/%d entries...", done, len(entries))
	})
	if err != nil {
		index.Close()
		return err
	}
	if err := index.Close(); err != nil {
		return fmt.Errorf("failed to close index: %w", err)
	}

	// Step 4: Write version file next to the index, where the server looks for it
	versionFile := filepath.Join(filepath.Dir(indexDir), ".index_version")
	if err := os.WriteFile(versionFile, []byte(indexing.VersionStamp(indexing.Fingerprint(data))), 0644); err != nil {
		log.Printf("Warning: Failed to write version file: %v", err)
	} else {
		log.Printf("✓ Index schema version: v%d", indexing.IndexSchemaVersion)
	}

	log.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Printf("✓ Indexing complete in %v", time.Since(startTime).Round(time.Millisecond))
	log.Printf("")
	log.Printf("Index details:")
	log.Printf("  Location:      %s", indexDir)
	log.Printf("  Records:       %d", ds.Len())
	log.Printf("  Total entries: %d", len(entries))
	log.Printf("  Avg size:      %d tokens (~%d chars)", avgTokens, avgTokens*indexing.CharsPerToken)
	return nil
}
