package transfer

import (
	"fmt"

	"github.com/airdcpp-go/core/internal/tth"
)

// treeBlockSize mirrors a metadata blockSize: the TTHL leaf
// list is requested and reassembled in fixed-size byte windows rather than
// one giant read, bounding memory use for very large trees the same way
// InfoDownloader windows BEP 9 metadata pieces.
const treeBlockSize = 16 * 1024

// TreeFetcher reassembles a peer's full TTH leaf list (the "tree", fetched
// over ADC's "GET tthl" or NMDC's UGetTTHL) from windowed byte blocks,
// adapted from InfoDownloader which reassembles a bit-torrent .torrent
// info dict the same way over BEP 9 extended messages. Each leaf is a
// fixed 24 bytes, so block boundaries are chosen on leaf boundaries
// rather than raw byte counts.
type TreeFetcher struct {
	leavesPerBlock int
	totalLeaves    int

	leaves    []tth.Value
	requested map[int]struct{}
	next      int
}

// NewTreeFetcher prepares a fetcher for a tree of totalLeaves 24-byte TTH
// values, the way InfoDownloader.New sizes Bytes from the peer's
// advertised MetadataSize.
func NewTreeFetcher(totalLeaves int) *TreeFetcher {
	leavesPerBlock := treeBlockSize / 24
	if leavesPerBlock < 1 {
		leavesPerBlock = 1
	}
	return &TreeFetcher{
		leavesPerBlock: leavesPerBlock,
		totalLeaves:    totalLeaves,
		leaves:         make([]tth.Value, totalLeaves),
		requested:      make(map[int]struct{}),
	}
}

func (f *TreeFetcher) blockCount() int {
	n := f.totalLeaves / f.leavesPerBlock
	if f.totalLeaves%f.leavesPerBlock != 0 {
		n++
	}
	return n
}

func (f *TreeFetcher) blockRange(block int) (start, count int) {
	start = block * f.leavesPerBlock
	count = f.leavesPerBlock
	if start+count > f.totalLeaves {
		count = f.totalLeaves - start
	}
	return start, count
}

// PendingBlocks returns up to queueLength block indices not yet requested,
// the offsets a caller should GET next, mirroring
// InfoDownloader.RequestBlocks's queueLength-bounded fan-out.
func (f *TreeFetcher) PendingBlocks(queueLength int) []int {
	var out []int
	for f.next < f.blockCount() && len(out) < queueLength {
		out = append(out, f.next)
		f.requested[f.next] = struct{}{}
		f.next++
	}
	return out
}

// GotBlock records a received block's leaves, validating both that it was
// requested and that its leaf count matches the block's expected size —
// the TTH-tree equivalent of InfoDownloader.GotBlock's size check.
func (f *TreeFetcher) GotBlock(block int, leaves []tth.Value) error {
	if _, ok := f.requested[block]; !ok {
		return fmt.Errorf("transfer: unrequested tree block %d", block)
	}
	start, count := f.blockRange(block)
	if len(leaves) != count {
		return fmt.Errorf("transfer: tree block %d: got %d leaves, want %d", block, len(leaves), count)
	}
	copy(f.leaves[start:start+count], leaves)
	delete(f.requested, block)
	return nil
}

// Done reports whether every block has arrived.
func (f *TreeFetcher) Done() bool {
	return f.next == f.blockCount() && len(f.requested) == 0
}

// Leaves returns the fully assembled leaf list once Done reports true.
func (f *TreeFetcher) Leaves() []tth.Value { return f.leaves }
