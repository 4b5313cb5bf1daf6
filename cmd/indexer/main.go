package main

import (
	"fmt"
	"log"
	"os"

	"github.com/docmcp/documenter-mcp-server/internal/indexing"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "documenter-indexer",
	Short:        "Build and inspect full-text indexes for Documenter search_index.js files",
	SilenceUsage: true,
	Long: fmt.Sprintf(`documenter-indexer works on the search_index.js file a Documenter build
writes next to its HTML. It validates and normalizes the file and builds the
bleve index (schema v%d) the MCP server searches.`, indexing.IndexSchemaVersion),
}

func main() {
	log.SetOutput(os.Stderr)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
