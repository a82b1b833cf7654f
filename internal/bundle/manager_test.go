package bundle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/airdcpp-go/core/internal/queue"
	"github.com/airdcpp-go/core/internal/tth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	qm, err := queue.Open(filepath.Join(dir, "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { qm.Close() })

	bm, err := Open(filepath.Join(dir, "bundles"), filepath.Join(dir, "bundles.db"), qm)
	require.NoError(t, err)
	t.Cleanup(func() { bm.Close() })
	return bm
}

func TestCreateFileBundlePersistsXML(t *testing.T) {
	bm := newTestManager(t)
	b, err := bm.CreateFileBundle("/dl/movie.mkv", 1000, tth.Sum([]byte("x")), queue.PriorityNormal)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, b.Status)

	data, err := os.ReadFile(bm.xmlPath(b.Token))
	require.NoError(t, err)
	assert.Contains(t, string(data), "movie.mkv")
}

func TestCreateDirectoryBundleAggregatesItems(t *testing.T) {
	bm := newTestManager(t)
	files := []FileSpec{
		{RelPath: "cd1/a.mkv", Size: 100, TTH: tth.Sum([]byte("a"))},
		{RelPath: "cd2/b.mkv", Size: 200, TTH: tth.Sum([]byte("b"))},
	}
	b, err := bm.CreateDirectoryBundle("/dl/Release.Name", files, queue.PriorityHigh)
	require.NoError(t, err)
	require.Len(t, b.Items, 2)
	assert.Equal(t, int64(300), b.Size())
}

func TestSetBundlePriorityCascades(t *testing.T) {
	bm := newTestManager(t)
	b, err := bm.CreateFileBundle("/dl/a.bin", 10, tth.Sum([]byte("a")), queue.PriorityNormal)
	require.NoError(t, err)

	require.NoError(t, bm.SetBundlePriority(b.Token, queue.PriorityHighest))
	assert.Equal(t, queue.PriorityHighest, b.Priority)
	assert.Equal(t, queue.PriorityHighest, b.Items[0].Priority)
}

func TestRemoveBundleDeletesQueueItemsAndXML(t *testing.T) {
	bm := newTestManager(t)
	b, err := bm.CreateFileBundle("/dl/a.bin", 10, tth.Sum([]byte("a")), queue.PriorityNormal)
	require.NoError(t, err)

	require.NoError(t, bm.RemoveBundle(b.Token))
	_, err = bm.Get(b.Token)
	assert.ErrorIs(t, err, ErrNotFound)

	_, statErr := os.Stat(bm.xmlPath(b.Token))
	assert.True(t, os.IsNotExist(statErr))
}

func TestInvalidTransitionRejected(t *testing.T) {
	b := &Bundle{Status: StatusShared}
	err := b.SetStatus(StatusQueued)
	var transErr *InvalidTransitionError
	assert.ErrorAs(t, err, &transErr)
}
