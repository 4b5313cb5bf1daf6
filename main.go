package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/docmcp/documenter-mcp-server/internal/config"
	"github.com/docmcp/documenter-mcp-server/tools"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	version     = "0.3.0"
	serverName  = "documenter-mcp-server"
	description = "MCP server for searching Documenter-generated documentation"
)

func main() {
	showVersion := flag.Bool("version", false, "Print version and exit")
	configPath := flag.String("config", "", "Path to config.yaml (defaults to ~/.documenter-mcp/config.yaml if present)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s\n", serverName, version)
		os.Exit(0)
	}

	// Set up logging to stderr (MCP uses stdout for protocol)
	log.SetOutput(os.Stderr)
	log.Printf("%s v%s starting...", serverName, version)

	path := *configPath
	if path == "" {
		path = tools.DefaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if path != "" {
		log.Printf("✓ Config loaded from %s", path)
	}
	tools.Configure(cfg)

	server := createMCPServer()

	if err := registerTools(server); err != nil {
		log.Fatalf("Failed to register tools: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Set up cleanup on shutdown; deferred first so it runs after the
	// watcher has stopped
	defer func() {
		if err := tools.CloseDocSearch(); err != nil {
			log.Printf("Error closing doc search: %v", err)
		}
	}()

	if cfg.Index.Watch {
		watcher, err := tools.StartIndexWatcher(ctx)
		if err != nil {
			log.Printf("Warning: File watching disabled: %v", err)
		} else {
			defer watcher.Stop()
		}
	}

	log.Printf("✓ Server ready and waiting for connections")

	// Run server with stdio transport
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		log.Printf("Server error: %v", err)
	}
}

// createMCPServer initializes the MCP server
func createMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    serverName,
			Version: version,
		},
		nil, // Default options
	)

	log.Printf("Server initialized: %s v%s", serverName, version)
	return server
}

// registerTools registers all MCP tools and the search index resource
func registerTools(server *mcp.Server) error {
	toolCount := 0

	// Documentation search tools (2 tools)
	if err := tools.RegisterDocSearchTools(server); err != nil {
		log.Printf("Warning: Failed to register doc search tools: %v", err)
		log.Printf("Documentation search will be unavailable")
	} else {
		toolCount += 2
	}

	// Dataset access (1 tool + 1 resource)
	if err := tools.RegisterLoadTools(server); err != nil {
		return fmt.Errorf("failed to register load tools: %w", err)
	}
	toolCount++

	// Validation (1 tool)
	if err := tools.RegisterValidationTools(server); err != nil {
		return fmt.Errorf("failed to register validation tools: %w", err)
	}
	toolCount++

	log.Printf("✓ All tools registered: %d tools (doc search + load + validation), 1 resource", toolCount)
	return nil
}
