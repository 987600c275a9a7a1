package configsvc

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockpanel/sentinel/internal/database"
)

func newTestDbBackend(t *testing.T) *DbBackend {
	t.Helper()
	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "config.db"), Name: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	b, err := NewDbBackend(db)
	require.NoError(t, err)
	return b
}

func TestDbBackend_VersionFormatAndMaskRoundTrip(t *testing.T) {
	b := newTestDbBackend(t)

	v, err := b.Version()
	require.NoError(t, err)
	assert.Regexp(t, `^db:[0-9a-f]{16}$`, v)

	updated, _, _, err := b.Apply([]KV{{Key: "GEMINI_API_KEY", Value: "secret-key-value"}}, map[string]bool{"GEMINI_API_KEY": true}, "******")
	require.NoError(t, err)
	assert.Equal(t, []string{"GEMINI_API_KEY"}, updated)

	_, skipped, _, err := b.Apply([]KV{{Key: "GEMINI_API_KEY", Value: "******"}}, map[string]bool{"GEMINI_API_KEY": true}, "******")
	require.NoError(t, err)
	assert.Equal(t, []string{"GEMINI_API_KEY"}, skipped)

	m, err := b.Read()
	require.NoError(t, err)
	assert.Equal(t, "secret-key-value", m["GEMINI_API_KEY"])
}

func TestDbBackend_VersionIsDeterministicForSameContent(t *testing.T) {
	b := newTestDbBackend(t)
	_, _, _, err := b.Apply([]KV{{Key: "STOCK_LIST", Value: "600519"}, {Key: "MAX_WORKERS", Value: "3"}}, nil, "******")
	require.NoError(t, err)

	v1, err := b.Version()
	require.NoError(t, err)
	v2, err := b.Version()
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}
