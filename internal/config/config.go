// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir       string        // Base directory for relative input and output paths (always absolute)
	CatalogPath   string        // Function catalog YAML
	PortfolioPath string        // Portfolio YAML
	PortfolioID   string        // Portfolio to check; empty checks every portfolio in the file
	ViewPath      string        // View (requirement set) YAML
	MarketDataDB  string        // SQLite market data snapshot; empty disables it
	TraceOut      string        // Trace output path; .msgpack selects msgpack, anything else JSON
	MetricsOut    string        // Prometheus text exposition written after the run; empty disables it
	Workers       int           // Pool size; 0 uses the number of logical CPUs
	GreedyCaching bool          // Memoize sub-requirements within one check
	SharedCaching bool          // Memoize across the checks of one batch
	Timeout       time.Duration // Upper bound on one batch; 0 waits forever
	Strict        bool          // Exit non-zero when any requirement does not resolve uniquely
	LogLevel      string
	LogPretty     bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("DEPGRAPH_DATA_DIR", ".")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	cfg := &Config{
		DataDir:       absDataDir,
		CatalogPath:   resolvePath(absDataDir, getEnv("DEPGRAPH_CATALOG_PATH", "catalog.yaml")),
		PortfolioPath: resolvePath(absDataDir, getEnv("DEPGRAPH_PORTFOLIO_PATH", "portfolio.yaml")),
		PortfolioID:   getEnv("DEPGRAPH_PORTFOLIO_ID", ""),
		ViewPath:      resolvePath(absDataDir, getEnv("DEPGRAPH_VIEW_PATH", "view.yaml")),
		MarketDataDB:  resolvePath(absDataDir, getEnv("DEPGRAPH_MARKET_DATA_DB", "")),
		TraceOut:      resolvePath(absDataDir, getEnv("DEPGRAPH_TRACE_OUT", "trace.json")),
		Workers:       getEnvAsInt("DEPGRAPH_WORKERS", 0),
		GreedyCaching: getEnvAsBool("DEPGRAPH_GREEDY_CACHING", true),
		SharedCaching: getEnvAsBool("DEPGRAPH_SHARED_CACHING", true),
		Timeout:       time.Duration(getEnvAsInt("DEPGRAPH_TIMEOUT_SECONDS", 0)) * time.Second,
		Strict:        getEnvAsBool("DEPGRAPH_STRICT", false),
		MetricsOut:    resolvePath(absDataDir, getEnv("DEPGRAPH_METRICS_OUT", "")),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogPretty:     getEnvAsBool("LOG_PRETTY", false),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.CatalogPath == "" {
		return fmt.Errorf("DEPGRAPH_CATALOG_PATH is required")
	}
	if c.PortfolioPath == "" {
		return fmt.Errorf("DEPGRAPH_PORTFOLIO_PATH is required")
	}
	if c.ViewPath == "" {
		return fmt.Errorf("DEPGRAPH_VIEW_PATH is required")
	}
	if c.TraceOut == "" {
		return fmt.Errorf("DEPGRAPH_TRACE_OUT is required")
	}
	if c.Workers < 0 {
		return fmt.Errorf("DEPGRAPH_WORKERS must not be negative, got %d", c.Workers)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("DEPGRAPH_TIMEOUT_SECONDS must not be negative")
	}
	return nil
}

// resolvePath makes relative paths relative to the data directory. Empty stays empty.
func resolvePath(dataDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dataDir, path)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
