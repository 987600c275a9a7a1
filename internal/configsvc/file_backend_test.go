package configsvc

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBackend_ApplyPreservesUnknownLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.env")
	require.NoError(t, os.WriteFile(path, []byte("# a comment\nFOO=bar\nSTOCK_LIST=600519\n"), 0o644))

	b := NewFileBackend(path)
	updated, skipped, _, err := b.Apply([]KV{{Key: "STOCK_LIST", Value: "600519,300750"}}, nil, "******")
	require.NoError(t, err)
	assert.Equal(t, []string{"STOCK_LIST"}, updated)
	assert.Empty(t, skipped)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "# a comment")
	assert.Contains(t, string(content), "FOO=bar")
	assert.Contains(t, string(content), "STOCK_LIST=600519,300750")
}

func TestFileBackend_ApplyRewritesLastDuplicateOccurrence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.env")
	require.NoError(t, os.WriteFile(path, []byte("STOCK_LIST=111111\nFOO=bar\nSTOCK_LIST=222222\n"), 0o644))

	b := NewFileBackend(path)
	_, _, _, err := b.Apply([]KV{{Key: "STOCK_LIST", Value: "600519"}}, nil, "******")
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(string(content), "\n")
	require.Contains(t, lines, "STOCK_LIST=111111", "earlier duplicate is left untouched")
	require.Contains(t, lines, "STOCK_LIST=600519", "last occurrence is the one rewritten")
	assert.NotContains(t, lines, "STOCK_LIST=222222")

	m, err := b.Read()
	require.NoError(t, err)
	assert.Equal(t, "600519", m["STOCK_LIST"], "reading still takes last-wins, matching the rewritten occurrence")
}

func TestFileBackend_ApplyAppendsNewKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.env")
	b := NewFileBackend(path)

	updated, _, _, err := b.Apply([]KV{{Key: "GEMINI_API_KEY", Value: "secret"}}, map[string]bool{"GEMINI_API_KEY": true}, "******")
	require.NoError(t, err)
	assert.Equal(t, []string{"GEMINI_API_KEY"}, updated)

	m, err := b.Read()
	require.NoError(t, err)
	assert.Equal(t, "secret", m["GEMINI_API_KEY"])
}

func TestFileBackend_VersionChangesOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.env")
	b := NewFileBackend(path)

	v1, err := b.Version()
	require.NoError(t, err)

	_, _, _, err = b.Apply([]KV{{Key: "STOCK_LIST", Value: "600519"}}, nil, "******")
	require.NoError(t, err)

	v2, err := b.Version()
	require.NoError(t, err)
	assert.NotEqual(t, v1, v2)
}
