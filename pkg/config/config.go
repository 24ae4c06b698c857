package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the sync service
type Config struct {
	// Upstream paginated API
	Upstream UpstreamConfig `yaml:"upstream" json:"upstream"`

	// Collections that may be ingested
	Collections []CollectionConfig `yaml:"collections" json:"collections"`

	// Fetch loop pacing
	Paging PagingConfig `yaml:"paging" json:"paging"`

	// Request-level retries against the upstream API
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Durable storage for jobs and records
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Collection lock service
	Lock LockConfig `yaml:"lock" json:"lock"`

	// Background job runner
	Runner RunnerConfig `yaml:"runner" json:"runner"`

	// Materialized artifacts
	Output OutputConfig `yaml:"output" json:"output"`

	// HTTP control surface
	Server ServerConfig `yaml:"server" json:"server"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// UpstreamConfig holds upstream API configuration
type UpstreamConfig struct {
	BaseURL   string        `yaml:"base_url" json:"base_url"`
	Token     string        `yaml:"token" json:"-"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	UserAgent string        `yaml:"user_agent" json:"user_agent"`
	// RequestsPerMinute caps outbound requests including retries; 0 disables the cap
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// CollectionConfig names an ingestible collection and its upstream path
type CollectionConfig struct {
	Name string `yaml:"name" json:"name"`
	Path string `yaml:"path" json:"path"`
}

// ResourcePath returns the upstream path segment, defaulting to the name
func (c CollectionConfig) ResourcePath() string {
	if c.Path != "" {
		return c.Path
	}
	return c.Name
}

// PagingConfig controls the sequential fetch loop
type PagingConfig struct {
	PageSize  int           `yaml:"page_size" json:"page_size"`
	PageDelay time.Duration `yaml:"page_delay" json:"page_delay"`
	// MaxPages stops a run after this many pages; 0 means unlimited
	MaxPages int `yaml:"max_pages" json:"max_pages"`
}

// RetryConfig holds request retry configuration
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay" json:"max_delay"`
}

// StorageConfig selects the database backing the checkpoint store and record cache
type StorageConfig struct {
	Driver string `yaml:"driver" json:"driver"`
	DSN    string `yaml:"dsn" json:"-"`
}

// LockConfig selects the collection lock backend
type LockConfig struct {
	Backend   string        `yaml:"backend" json:"backend"`
	RedisAddr string        `yaml:"redis_addr" json:"redis_addr"`
	RedisDB   int           `yaml:"redis_db" json:"redis_db"`
	TTL       time.Duration `yaml:"ttl" json:"ttl"`
}

// RunnerConfig sizes the background worker pool
type RunnerConfig struct {
	Workers   int `yaml:"workers" json:"workers"`
	QueueSize int `yaml:"queue_size" json:"queue_size"`
}

// OutputConfig holds artifact output configuration
type OutputConfig struct {
	Directory string `yaml:"directory" json:"directory"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	File   string `yaml:"file" json:"file"`
	Format string `yaml:"format" json:"format"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Upstream: UpstreamConfig{
			Timeout:   30 * time.Second,
			UserAgent: "custsync/1.0",
		},
		Paging: PagingConfig{
			PageSize:  250,
			PageDelay: 500 * time.Millisecond,
			MaxPages:  0,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   1 * time.Second,
			MaxDelay:    30 * time.Second,
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			DSN:    "custsync.db",
		},
		Lock: LockConfig{
			Backend: "memory",
			TTL:     30 * time.Second,
		},
		Runner: RunnerConfig{
			Workers:   4,
			QueueSize: 16,
		},
		Output: OutputConfig{
			Directory: "./exports",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Collection looks up a configured collection by name
func (c *Config) Collection(name string) (CollectionConfig, bool) {
	for _, col := range c.Collections {
		if col.Name == name {
			return col, true
		}
	}
	return CollectionConfig{}, false
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("CUSTSYNC_UPSTREAM_URL"); v != "" {
		c.Upstream.BaseURL = v
	}
	if v := os.Getenv("CUSTSYNC_UPSTREAM_TOKEN"); v != "" {
		c.Upstream.Token = v
	}
	if v := os.Getenv("CUSTSYNC_COLLECTIONS"); v != "" {
		c.Collections = parseCollections(v)
	}

	var errs []error
	if v := os.Getenv("CUSTSYNC_PAGE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("CUSTSYNC_PAGE_SIZE: %w", err))
		} else {
			c.Paging.PageSize = n
		}
	}
	if v := os.Getenv("CUSTSYNC_PAGE_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("CUSTSYNC_PAGE_DELAY: %w", err))
		} else {
			c.Paging.PageDelay = d
		}
	}
	if v := os.Getenv("CUSTSYNC_MAX_PAGES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("CUSTSYNC_MAX_PAGES: %w", err))
		} else {
			c.Paging.MaxPages = n
		}
	}

	if v := os.Getenv("CUSTSYNC_STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("CUSTSYNC_DATABASE_URL"); v != "" {
		c.Storage.DSN = v
	}
	if v := os.Getenv("CUSTSYNC_LOCK_BACKEND"); v != "" {
		c.Lock.Backend = v
	}
	if v := os.Getenv("CUSTSYNC_REDIS_ADDR"); v != "" {
		c.Lock.RedisAddr = v
	}
	if v := os.Getenv("CUSTSYNC_OUTPUT_DIR"); v != "" {
		c.Output.Directory = v
	}
	if v := os.Getenv("CUSTSYNC_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("CUSTSYNC_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	return errors.Join(errs...)
}

// parseCollections parses "name[:path],name[:path]"
func parseCollections(raw string) []CollectionConfig {
	var out []CollectionConfig
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, path, _ := strings.Cut(part, ":")
		out = append(out, CollectionConfig{Name: name, Path: path})
	}
	return out
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		"custsync.yaml",
		"custsync.yml",
		filepath.Join(home, ".config", "custsync", "config.yaml"),
		filepath.Join(home, ".config", "custsync", "config.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Upstream.BaseURL == "" {
		errs = append(errs, errors.New("upstream base URL is required"))
	}
	if c.Upstream.Timeout <= 0 {
		errs = append(errs, errors.New("upstream timeout must be positive"))
	}
	if c.Upstream.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("requests per minute cannot be negative"))
	}

	seen := make(map[string]bool)
	for _, col := range c.Collections {
		if col.Name == "" {
			errs = append(errs, errors.New("collection name is required"))
			continue
		}
		if seen[col.Name] {
			errs = append(errs, fmt.Errorf("duplicate collection %q", col.Name))
		}
		seen[col.Name] = true
	}

	if c.Paging.PageSize <= 0 {
		errs = append(errs, errors.New("page size must be positive"))
	}
	if c.Paging.PageDelay < 0 {
		errs = append(errs, errors.New("page delay cannot be negative"))
	}
	if c.Paging.MaxPages < 0 {
		errs = append(errs, errors.New("max pages cannot be negative"))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry max attempts must be at least 1"))
	}

	switch strings.ToLower(c.Storage.Driver) {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.Storage.Driver))
	}
	if c.Storage.DSN == "" {
		errs = append(errs, errors.New("storage DSN is required"))
	}

	switch strings.ToLower(c.Lock.Backend) {
	case "memory":
	case "redis":
		if c.Lock.RedisAddr == "" {
			errs = append(errs, errors.New("redis address is required for the redis lock backend"))
		}
		if c.Lock.TTL <= 0 {
			errs = append(errs, errors.New("lock TTL must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported lock backend %q", c.Lock.Backend))
	}

	if c.Runner.Workers <= 0 {
		errs = append(errs, errors.New("runner workers must be positive"))
	}
	if c.Output.Directory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["upstream-url"].(string); ok && v != "" {
		c.Upstream.BaseURL = v
	}
	if v, ok := flags["database-url"].(string); ok && v != "" {
		c.Storage.DSN = v
	}
	if v, ok := flags["storage-driver"].(string); ok && v != "" {
		c.Storage.Driver = v
	}
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Output.Directory = v
	}
	if v, ok := flags["page-size"].(int); ok && v > 0 {
		c.Paging.PageSize = v
	}
	if v, ok := flags["max-pages"].(int); ok && v >= 0 {
		c.Paging.MaxPages = v
	}
	if v, ok := flags["addr"].(string); ok && v != "" {
		c.Server.Addr = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Missing .env files are fine
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".custsync.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
