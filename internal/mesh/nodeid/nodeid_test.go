package nodeid

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_ProducesNonNilUniqueIDs(t *testing.T) {
	a := Generate()
	b := Generate()

	assert.False(t, a.Nil())
	assert.False(t, b.Nil())
	assert.NotEqual(t, a, b)
}

func TestGenerateMessageID_ProducesUniqueIDs(t *testing.T) {
	a := GenerateMessageID()
	b := GenerateMessageID()
	assert.NotEqual(t, a, b)
}

func TestLoadOrCreate_PersistsAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.id")

	first, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.False(t, first.Nil())

	second, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestLoadOrCreate_CreatesParentDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "node.id")

	_, err := LoadOrCreate(path)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
