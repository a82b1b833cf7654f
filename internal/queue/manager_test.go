package queue

import (
	"path/filepath"
	"testing"

	"github.com/airdcpp-go/core/internal/tth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := Open(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestAddFileRejectsDuplicate(t *testing.T) {
	m := newTestManager(t)
	sum := tth.Value(tth.Sum([]byte("content")))
	_, err := m.AddFile("/dl/a.bin", 7, sum, PriorityNormal)
	require.NoError(t, err)

	_, err = m.AddFile("/dl/a.bin", 7, sum, PriorityNormal)
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestGetDownloadSplitsAndExcludesClaimed(t *testing.T) {
	it := NewItem("tok", "/dl/big.bin", 3000, tth.Value{}, PriorityNormal)

	seg1, err := it.GetDownload("peerA", 1024)
	require.NoError(t, err)
	assert.Equal(t, int64(0), seg1.Start)
	assert.Equal(t, int64(1024), seg1.Len)

	seg2, err := it.GetDownload("peerB", 1024)
	require.NoError(t, err)
	assert.NotEqual(t, seg1.Start, seg2.Start)

	_, err = it.GetDownload("peerA", 1024)
	require.NoError(t, err) // still a third unclaimed remainder piece
}

func TestGetDownloadEndgameOverlap(t *testing.T) {
	it := NewItem("tok", "/dl/small.bin", 500, tth.Value{}, PriorityNormal)

	seg, err := it.GetDownload("peerA", 1024)
	require.NoError(t, err)
	assert.Equal(t, int64(500), seg.Len)

	overlap, err := it.GetDownload("peerB", 1024)
	require.NoError(t, err)
	assert.Equal(t, seg.Start, overlap.Start)
}

func TestMarkSegmentDoneMerges(t *testing.T) {
	it := NewItem("tok", "/dl/f.bin", 2048, tth.Value{}, PriorityNormal)
	seg1, err := it.GetDownload("peerA", 1024)
	require.NoError(t, err)
	seg2, err := it.GetDownload("peerB", 1024)
	require.NoError(t, err)

	it.MarkSegmentDone(seg1.Start, seg1.Len)
	it.MarkSegmentDone(seg2.Start, seg2.Len)
	assert.True(t, it.IsComplete())
}

func TestSetPriorityDisablesAutoPrio(t *testing.T) {
	m := newTestManager(t)
	item, err := m.AddFile("/dl/x.bin", 10, tth.Value(tth.Sum([]byte("x"))), PriorityNormal)
	require.NoError(t, err)
	item.AutoPrio = true

	require.NoError(t, m.SetPriority(item.Token, PriorityHighest))
	assert.Equal(t, PriorityHighest, item.Priority)
	assert.False(t, item.AutoPrio)
}
