package share

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLoadCacheRoundTrips(t *testing.T) {
	m, dir := newTestManager(t)
	writeFile(t, dir, "song.mp3", "abc")
	require.NoError(t, <-m.AddRoot(dir, []int{ProfileDefault}))

	cachePath := filepath.Join(t.TempDir(), "tree.cache")
	require.NoError(t, m.SaveCache(cachePath))

	m2 := NewManager(fakeHashSource{}, t.TempDir())
	t.Cleanup(m2.Close)
	require.NoError(t, m2.LoadCache(cachePath))

	results := m2.Search(SearchQuery{Include: []string{"song"}}, ProfileDefault)
	require.Len(t, results, 1)
	assert.Equal(t, "song.mp3", filepath.Base(results[0].VirtualPath))
}

func TestLoadCacheMissingFileIsNotExistError(t *testing.T) {
	m := NewManager(fakeHashSource{}, t.TempDir())
	t.Cleanup(m.Close)
	err := m.LoadCache(filepath.Join(t.TempDir(), "missing.cache"))
	assert.True(t, os.IsNotExist(err))
}
