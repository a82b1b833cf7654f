package share

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/airdcpp-go/core/internal/tth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHashSource hashes nothing for real; it derives a deterministic TTH
// from the file's size and name so tests don't need real content hashing.
type fakeHashSource struct{}

func (fakeHashSource) GetFileInfo(lowerPath, realPath string) (HashedFile, error) {
	info, err := os.Stat(realPath)
	if err != nil {
		return HashedFile{}, err
	}
	return HashedFile{
		Size:    info.Size(),
		TTH:     tth.DirectoryTTH(filepath.Base(realPath), info.Size()),
		ModTime: info.ModTime(),
	}, nil
}

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	listDir := t.TempDir()
	m := NewManager(fakeHashSource{}, listDir)
	t.Cleanup(m.Close)
	return m, dir
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestAddRootAndSearch(t *testing.T) {
	m, dir := newTestManager(t)
	writeFile(t, dir, "song.mp3", "abc")
	writeFile(t, dir, "readme.txt", "hello world")

	sub := filepath.Join(dir, "Extras")
	require.NoError(t, os.Mkdir(sub, 0o755))
	writeFile(t, sub, "cover.jpg", "x")

	err := <-m.AddRoot(dir, []int{ProfileDefault})
	require.NoError(t, err)

	results := m.Search(SearchQuery{Include: []string{"song"}}, ProfileDefault)
	require.Len(t, results, 1)
	assert.Equal(t, "song.mp3", filepath.Base(results[0].VirtualPath))

	results = m.Search(SearchQuery{Include: []string{"cover"}}, ProfileDefault)
	require.Len(t, results, 1)
	assert.False(t, results[0].IsDirectory)

	results = m.Search(SearchQuery{Include: []string{"extras"}, Type: FileTypeDirectory}, ProfileDefault)
	require.Len(t, results, 1)
	assert.True(t, results[0].IsDirectory)
}

func TestSearchExcludeToken(t *testing.T) {
	m, dir := newTestManager(t)
	writeFile(t, dir, "movie.mkv", "data")
	writeFile(t, dir, "movie.sample.mkv", "data")
	require.NoError(t, <-m.AddRoot(dir, nil))

	results := m.Search(SearchQuery{Include: []string{"movie"}, Exclude: []string{"sample"}}, ProfileDefault)
	require.Len(t, results, 1)
	assert.Equal(t, "movie.mkv", filepath.Base(results[0].VirtualPath))
}

func TestToVirtualAndToReal(t *testing.T) {
	m, dir := newTestManager(t)
	writeFile(t, dir, "a.bin", "1234")
	require.NoError(t, <-m.AddRoot(dir, nil))

	base := filepath.Base(dir)
	virtual, err := m.ToVirtual(filepath.Join(dir, "a.bin"))
	require.NoError(t, err)
	assert.Equal(t, "/"+base+"/a.bin", virtual)

	real, size, isDir, err := m.ToReal(virtual)
	require.NoError(t, err)
	assert.False(t, isDir)
	assert.Equal(t, int64(4), size)
	assert.Equal(t, filepath.Join(dir, "a.bin"), real)
}

func TestToRealWithSizeEnforcesProfileScope(t *testing.T) {
	m, dir := newTestManager(t)
	writeFile(t, dir, "secret.bin", "1234")
	hidden := 99
	require.NoError(t, <-m.AddRoot(dir, []int{hidden}))

	base := filepath.Base(dir)
	virtual := "/" + base + "/secret.bin"

	_, _, err := m.ToRealWithSize(virtual, []int{ProfileDefault}, "peerCID")
	assert.ErrorIs(t, err, ErrNotShared)

	real, size, err := m.ToRealWithSize(virtual, []int{hidden}, "peerCID")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "secret.bin"), real)
	assert.Equal(t, int64(4), size)
}

func TestGetFileDupePaths(t *testing.T) {
	m, dir := newTestManager(t)
	writeFile(t, dir, "dup.bin", "same-size-content")
	require.NoError(t, <-m.AddRoot(dir, nil))

	want := tth.DirectoryTTH("dup.bin", int64(len("same-size-content")))
	paths := m.GetFileDupePaths(want)
	require.Len(t, paths, 1)
	assert.Equal(t, filepath.Join(dir, "dup.bin"), paths[0])
}

func TestRefreshReplacesSubtree(t *testing.T) {
	m, dir := newTestManager(t)
	writeFile(t, dir, "old.bin", "x")
	require.NoError(t, <-m.AddRoot(dir, nil))
	require.NotEmpty(t, m.Search(SearchQuery{Include: []string{"old"}}, ProfileDefault))

	require.NoError(t, os.Remove(filepath.Join(dir, "old.bin")))
	writeFile(t, dir, "new.bin", "y")
	require.NoError(t, <-m.Refresh([]string{dir}, RefreshDirs, PriorityManual))

	assert.Empty(t, m.Search(SearchQuery{Include: []string{"old"}}, ProfileDefault))
	assert.NotEmpty(t, m.Search(SearchQuery{Include: []string{"new"}}, ProfileDefault))
}

func TestFileListGeneratesAfterRefresh(t *testing.T) {
	m, dir := newTestManager(t)
	writeFile(t, dir, "a.bin", "payload")
	require.NoError(t, <-m.AddRoot(dir, nil))

	m.mu.RLock()
	profile := m.profiles[ProfileDefault]
	m.mu.RUnlock()

	deadline := time.Now().Add(2 * time.Second)
	for profile.list.Path() == "" && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	require.NotEmpty(t, profile.list.Path())
	_, err := os.Stat(profile.list.Path())
	require.NoError(t, err)
}
