package transfer

import (
	"testing"

	"github.com/airdcpp-go/core/internal/tth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreeFetcherReassemblesInOrder(t *testing.T) {
	total := 700 // leavesPerBlock is 16384/24 = 682, so this spans two blocks
	f := NewTreeFetcher(total)
	require.Equal(t, 2, f.blockCount())

	blocks := f.PendingBlocks(10)
	require.Len(t, blocks, f.blockCount())

	for _, b := range blocks {
		start, count := f.blockRange(b)
		leaves := make([]tth.Value, count)
		for i := range leaves {
			leaves[i][0] = byte(start + i)
		}
		require.NoError(t, f.GotBlock(b, leaves))
	}

	assert.True(t, f.Done())
	got := f.Leaves()
	require.Len(t, got, total)
	for i, v := range got {
		assert.Equal(t, byte(i), v[0])
	}
}

func TestTreeFetcherRejectsUnrequestedBlock(t *testing.T) {
	f := NewTreeFetcher(10)
	err := f.GotBlock(0, make([]tth.Value, 10))
	assert.Error(t, err)
}

func TestTreeFetcherRejectsWrongSize(t *testing.T) {
	f := NewTreeFetcher(10)
	f.PendingBlocks(10)
	err := f.GotBlock(0, make([]tth.Value, 3))
	assert.Error(t, err)
}
