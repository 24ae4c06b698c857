package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"custsync/internal/database"
	"custsync/pkg/config"
)

// NewDB opens a migrated sqlite database in the test's temp dir
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.Open(config.StorageConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = database.Close(db)
	})
	return db
}
