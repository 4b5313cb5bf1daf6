package tools

import (
	"log"
	"os"
	"path/filepath"

	"github.com/docmcp/documenter-mcp-server/internal/config"
)

const dataDirName = ".documenter-mcp"

var (
	settings = config.Default()
	dataDir  string // Data directory for the search index file and full-text index
)

// Configure installs cfg for the package and resolves the data directory.
// It must run before any tool is registered.
func Configure(cfg *config.Config) {
	settings = cfg
	dataDir = DetectDataDir(cfg.DataDir)
}

// DefaultConfigPath returns the config file path inside the user data
// directory, or "" when there is none.
func DefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(homeDir, dataDirName, config.FileName)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// DetectDataDir picks the data directory. An explicit override wins;
// otherwise the user home directory, then a data/ directory next to the
// binary, then ./data.
func DetectDataDir(override string) string {
	if override != "" {
		if err := ensureDataLayout(override); err != nil {
			log.Printf("Warning: Could not prepare data directory %s: %v", override, err)
		}
		log.Printf("✓ Data directory: %s (configured)", override)
		return override
	}

	// Strategy 1: user home directory (standalone installation)
	homeDir, err := os.UserHomeDir()
	if err == nil {
		userDataDir := filepath.Join(homeDir, dataDirName)

		if info, err := os.Stat(userDataDir); err == nil && info.IsDir() {
			log.Printf("✓ Data directory: %s (user home)", userDataDir)
			return userDataDir
		}

		if err := ensureDataLayout(userDataDir); err == nil {
			log.Printf("✓ Data directory created: %s", userDataDir)
			return userDataDir
		}

		log.Printf("Warning: Could not create user data directory at %s: %v", userDataDir, err)
	} else {
		log.Printf("Warning: Could not determine user home directory: %v", err)
	}

	// Strategy 2: relative to the executable (packaged installation)
	// Binary at: <root>/bin/documenter-mcp-server
	// Data at:   <root>/data/
	execPath, err := os.Executable()
	if err == nil {
		relativeDataDir := filepath.Join(filepath.Dir(execPath), "..", "data")
		if info, err := os.Stat(relativeDataDir); err == nil && info.IsDir() {
			abs, _ := filepath.Abs(relativeDataDir)
			log.Printf("✓ Data directory: %s (relative to binary)", abs)
			return abs
		}
	}

	// Strategy 3: current working directory
	fallback := filepath.Join(".", "data")
	log.Printf("⚠️  Data directory (fallback): %s", fallback)
	if err := ensureDataLayout(fallback); err != nil {
		log.Printf("Warning: Could not create fallback data directory: %v", err)
	}
	return fallback
}

func ensureDataLayout(dir string) error {
	for _, sub := range []string{"docs", "search"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return err
		}
	}
	return nil
}
