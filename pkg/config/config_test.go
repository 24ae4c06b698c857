package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Upstream.BaseURL = "https://api.example.com"
	cfg.Collections = []CollectionConfig{{Name: "customers"}}
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 30*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, 250, cfg.Paging.PageSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Paging.PageDelay)
	assert.Equal(t, 0, cfg.Paging.MaxPages)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "memory", cfg.Lock.Backend)
	assert.Equal(t, 30*time.Second, cfg.Lock.TTL)
	assert.Equal(t, 4, cfg.Runner.Workers)
	assert.Equal(t, "./exports", cfg.Output.Directory)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestCollectionLookup(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Collections = []CollectionConfig{
		{Name: "customers", Path: "admin/customers"},
		{Name: "orders"},
	}

	col, ok := cfg.Collection("customers")
	require.True(t, ok)
	assert.Equal(t, "admin/customers", col.ResourcePath())

	col, ok = cfg.Collection("orders")
	require.True(t, ok)
	assert.Equal(t, "orders", col.ResourcePath())

	_, ok = cfg.Collection("products")
	assert.False(t, ok)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CUSTSYNC_UPSTREAM_URL", "https://shop.example.com/api")
	t.Setenv("CUSTSYNC_UPSTREAM_TOKEN", "secret")
	t.Setenv("CUSTSYNC_COLLECTIONS", "customers:admin/customers, orders")
	t.Setenv("CUSTSYNC_PAGE_SIZE", "100")
	t.Setenv("CUSTSYNC_PAGE_DELAY", "2s")
	t.Setenv("CUSTSYNC_MAX_PAGES", "5")
	t.Setenv("CUSTSYNC_STORAGE_DRIVER", "postgres")
	t.Setenv("CUSTSYNC_DATABASE_URL", "postgres://localhost/custsync")
	t.Setenv("CUSTSYNC_LOCK_BACKEND", "redis")
	t.Setenv("CUSTSYNC_REDIS_ADDR", "localhost:6379")
	t.Setenv("CUSTSYNC_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "https://shop.example.com/api", cfg.Upstream.BaseURL)
	assert.Equal(t, "secret", cfg.Upstream.Token)
	assert.Equal(t, []CollectionConfig{
		{Name: "customers", Path: "admin/customers"},
		{Name: "orders"},
	}, cfg.Collections)
	assert.Equal(t, 100, cfg.Paging.PageSize)
	assert.Equal(t, 2*time.Second, cfg.Paging.PageDelay)
	assert.Equal(t, 5, cfg.Paging.MaxPages)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "postgres://localhost/custsync", cfg.Storage.DSN)
	assert.Equal(t, "redis", cfg.Lock.Backend)
	assert.Equal(t, "localhost:6379", cfg.Lock.RedisAddr)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromEnvInvalidValues(t *testing.T) {
	t.Setenv("CUSTSYNC_PAGE_SIZE", "lots")
	t.Setenv("CUSTSYNC_PAGE_DELAY", "soon")

	cfg := DefaultConfig()
	err := cfg.LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CUSTSYNC_PAGE_SIZE")
	assert.Contains(t, err.Error(), "CUSTSYNC_PAGE_DELAY")
	assert.Equal(t, 250, cfg.Paging.PageSize)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custsync.yaml")
	content := `
upstream:
  base_url: https://api.example.com
  timeout: 10s
collections:
  - name: customers
    path: v2/customers
paging:
  page_size: 50
  page_delay: 1s
storage:
  driver: sqlite
  dsn: /var/lib/custsync.db
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, "https://api.example.com", cfg.Upstream.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, "v2/customers", cfg.Collections[0].Path)
	assert.Equal(t, 50, cfg.Paging.PageSize)
	assert.Equal(t, time.Second, cfg.Paging.PageDelay)
	assert.Equal(t, "/var/lib/custsync.db", cfg.Storage.DSN)
	// Untouched sections keep defaults
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
}

func TestLoadFromFileErrors(t *testing.T) {
	cfg := DefaultConfig()

	err := cfg.LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("paging: [not, a, map"), 0644))
	err = cfg.LoadFromFile(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name          string
		setupConfig   func(*Config)
		expectError   bool
		errorContains []string
	}{
		{
			name:        "valid config",
			setupConfig: func(cfg *Config) {},
		},
		{
			name: "missing upstream",
			setupConfig: func(cfg *Config) {
				cfg.Upstream.BaseURL = ""
			},
			expectError:   true,
			errorContains: []string{"upstream base URL is required"},
		},
		{
			name: "duplicate collections",
			setupConfig: func(cfg *Config) {
				cfg.Collections = []CollectionConfig{{Name: "a"}, {Name: "a"}, {Path: "x"}}
			},
			expectError:   true,
			errorContains: []string{`duplicate collection "a"`, "collection name is required"},
		},
		{
			name: "invalid paging",
			setupConfig: func(cfg *Config) {
				cfg.Paging.PageSize = 0
				cfg.Paging.PageDelay = -time.Second
				cfg.Paging.MaxPages = -1
			},
			expectError: true,
			errorContains: []string{
				"page size must be positive",
				"page delay cannot be negative",
				"max pages cannot be negative",
			},
		},
		{
			name: "unsupported storage driver",
			setupConfig: func(cfg *Config) {
				cfg.Storage.Driver = "mysql"
			},
			expectError:   true,
			errorContains: []string{`unsupported storage driver "mysql"`},
		},
		{
			name: "redis lock without address",
			setupConfig: func(cfg *Config) {
				cfg.Lock.Backend = "redis"
			},
			expectError:   true,
			errorContains: []string{"redis address is required"},
		},
		{
			name: "invalid log level",
			setupConfig: func(cfg *Config) {
				cfg.Logging.Level = "loud"
			},
			expectError:   true,
			errorContains: []string{"invalid log level"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.setupConfig(cfg)

			err := cfg.Validate()

			if tt.expectError {
				require.Error(t, err)
				for _, contains := range tt.errorContains {
					assert.Contains(t, err.Error(), contains)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := validConfig()
	cfg.Paging.MaxPages = 7

	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, cfg.Upstream.BaseURL, loaded.Upstream.BaseURL)
	assert.Equal(t, 7, loaded.Paging.MaxPages)
	assert.Equal(t, cfg.Collections, loaded.Collections)
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"upstream-url": "https://flags.example.com",
		"page-size":    10,
		"max-pages":    2,
		"output":       "/tmp/out",
		"log-level":    "",
	})

	assert.Equal(t, "https://flags.example.com", cfg.Upstream.BaseURL)
	assert.Equal(t, 10, cfg.Paging.PageSize)
	assert.Equal(t, 2, cfg.Paging.MaxPages)
	assert.Equal(t, "/tmp/out", cfg.Output.Directory)
	// Empty flag values do not override
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadPrecedence(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "custsync.yaml")
	content := `
upstream:
  base_url: https://file.example.com
collections:
  - name: customers
paging:
  page_size: 20
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv("CUSTSYNC_PAGE_SIZE", "30")

	cfg, err := Load(path, map[string]interface{}{"upstream-url": "https://flag.example.com"})
	require.NoError(t, err)

	assert.Equal(t, "https://flag.example.com", cfg.Upstream.BaseURL)
	assert.Equal(t, 30, cfg.Paging.PageSize)
}

func TestLoadValidationFailure(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "custsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("paging:\n  page_size: 10\n"), 0644))

	_, err := Load(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
}
