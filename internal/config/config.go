// Package config loads server configuration from an optional YAML file with
// environment-variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultIndexURL is where the published documentation keeps its search index
	DefaultIndexURL = "https://nrel-sienna.github.io/PowerAnalytics.jl/dev/search_index.js"

	// DefaultBaseURL is the documentation site root record locations are relative to
	DefaultBaseURL = "https://nrel-sienna.github.io/PowerAnalytics.jl/dev/"

	// FileName is the config file looked up in the data directory
	FileName = "config.yaml"
)

// Config is the server configuration
type Config struct {
	// DataDir holds the downloaded search index and the full-text index.
	// Empty means auto-detect.
	DataDir string `yaml:"dataDir"`

	Source SourceConfig `yaml:"source"`
	Search SearchConfig `yaml:"search"`
	Index  IndexConfig  `yaml:"index"`
}

// SourceConfig describes where the search index comes from
type SourceConfig struct {
	IndexURL        string        `yaml:"indexURL"`
	BaseURL         string        `yaml:"baseURL"`
	CacheTTL        time.Duration `yaml:"cacheTTL"`
	DownloadTimeout time.Duration `yaml:"downloadTimeout"`
}

// SearchConfig bounds search requests
type SearchConfig struct {
	DefaultResults int `yaml:"defaultResults"`
	MaxResults     int `yaml:"maxResults"`
}

// IndexConfig controls index maintenance
type IndexConfig struct {
	BatchSize     int           `yaml:"batchSize"`
	LockTimeout   time.Duration `yaml:"lockTimeout"`
	Watch         bool          `yaml:"watch"`
	WatchDebounce time.Duration `yaml:"watchDebounce"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			IndexURL:        DefaultIndexURL,
			BaseURL:         DefaultBaseURL,
			CacheTTL:        7 * 24 * time.Hour,
			DownloadTimeout: 30 * time.Second,
		},
		Search: SearchConfig{
			DefaultResults: 10,
			MaxResults:     20,
		},
		Index: IndexConfig{
			BatchSize:     100,
			LockTimeout:   5 * time.Second,
			WatchDebounce: 500 * time.Millisecond,
		},
	}
}

// Load reads a YAML config file (if path is not empty) on top of the
// defaults, then applies DOCMCP_* environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.Source.IndexURL == "" {
		errs = append(errs, errors.New("source.indexURL must not be empty"))
	}
	if c.Source.CacheTTL < 0 {
		errs = append(errs, errors.New("source.cacheTTL must not be negative"))
	}
	if c.Source.DownloadTimeout <= 0 {
		errs = append(errs, errors.New("source.downloadTimeout must be positive"))
	}
	if c.Search.DefaultResults <= 0 {
		errs = append(errs, errors.New("search.defaultResults must be positive"))
	}
	if c.Search.MaxResults < c.Search.DefaultResults {
		errs = append(errs, fmt.Errorf("search.maxResults (%d) must be >= search.defaultResults (%d)",
			c.Search.MaxResults, c.Search.DefaultResults))
	}
	if c.Index.BatchSize <= 0 {
		errs = append(errs, errors.New("index.batchSize must be positive"))
	}
	if c.Index.LockTimeout <= 0 {
		errs = append(errs, errors.New("index.lockTimeout must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// applyEnvOverrides reads DOCMCP_* environment variables and overrides the
// corresponding config fields. Unparseable values are ignored.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DOCMCP_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("DOCMCP_INDEX_URL"); v != "" {
		cfg.Source.IndexURL = v
	}
	if v := os.Getenv("DOCMCP_BASE_URL"); v != "" {
		cfg.Source.BaseURL = v
	}
	if v := os.Getenv("DOCMCP_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Source.CacheTTL = d
		}
	}
	if v := os.Getenv("DOCMCP_MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.MaxResults = n
		}
	}
	if v := os.Getenv("DOCMCP_WATCH"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Index.Watch = b
		}
	}
}
