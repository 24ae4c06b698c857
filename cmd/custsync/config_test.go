package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custsync/pkg/config"
)

func TestExampleConfigIsValid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(exampleConfig), 0644))

	cfg := config.DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))
	require.NoError(t, cfg.Validate())

	require.Len(t, cfg.Collections, 2)
	assert.Equal(t, "customers", cfg.Collections[0].ResourcePath())
	assert.Equal(t, "customers/archived", cfg.Collections[1].ResourcePath())
	assert.Equal(t, 500*time.Millisecond, cfg.Paging.PageDelay)
	assert.Equal(t, 30*time.Second, cfg.Lock.TTL)
}

func TestGlobalFlagsMergeExtra(t *testing.T) {
	upstreamURL = "https://flag.example.com"
	t.Cleanup(func() { upstreamURL = "" })

	flags := globalFlags()
	assert.Equal(t, "https://flag.example.com", flags["upstream-url"])

	cfg := config.DefaultConfig()
	cfg.MergeCommandLineFlags(flags)
	assert.Equal(t, "https://flag.example.com", cfg.Upstream.BaseURL)
	// Unset flags leave the defaults alone
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
}
