package configsvc

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockpanel/sentinel/internal/database"
)

func TestNewBackend_DefaultsToFileBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.env")
	b, err := NewBackend(BackendConfig{StorageType: "", FilePath: path})
	require.NoError(t, err)
	assert.IsType(t, &FileBackend{}, b)
}

func TestNewBackend_DbSelectsDbBackend(t *testing.T) {
	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "config.db"), Name: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	b, err := NewBackend(BackendConfig{StorageType: "DB", DB: db})
	require.NoError(t, err)
	assert.IsType(t, &DbBackend{}, b)
}
