package metadata

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoad(t *testing.T) {
	artifact := filepath.Join(t.TempDir(), "customers.csv")
	assert.False(t, Exists(artifact))

	meta := &ArtifactMetadata{
		Collection:  "customers",
		File:        "customers.csv",
		Rows:        520,
		Columns:     []string{"external_id", "email"},
		SHA256:      "abc123",
		SizeBytes:   4096,
		GeneratedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, meta.Save(artifact))
	assert.True(t, Exists(artifact))

	loaded, err := Load(artifact)
	require.NoError(t, err)
	assert.Equal(t, meta, loaded)
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}
