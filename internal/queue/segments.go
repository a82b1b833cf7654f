package queue

import (
	"errors"
	"sort"
)

var ErrNoSegmentAvailable = errors.New("queue: no segment available for this source")

// endgameThreshold decides when a connection may start redundantly
// downloading a segment another connection already owns: once the total
// unclaimed-or-unfinished span of the file drops below one chunk-size
// unit, and at least one other connection is already running on the file,
// per Open Question Decision #3.
func endgameThreshold(chunkSize int64) int64 { return chunkSize }

// GetDownload selects the next byte range cid should download: prefer an
// entirely unclaimed segment, split it to chunkSize if it's larger, and
// fall back to an end-game overlap once remaining open work is below the
// threshold.
func (it *Item) GetDownload(cid string, chunkSize int64) (Segment, error) {
	it.mu.Lock()
	defer it.mu.Unlock()

	var remaining int64
	runningElsewhere := false
	for _, s := range it.segments {
		if s.Done {
			continue
		}
		remaining += s.Len
		if s.AssignedTo != "" && s.AssignedTo != cid {
			runningElsewhere = true
		}
	}

	for i, s := range it.segments {
		if s.Done || s.AssignedTo != "" {
			continue
		}
		return it.claimLocked(i, s, chunkSize, cid), nil
	}

	if runningElsewhere && remaining < endgameThreshold(chunkSize) {
		for i, s := range it.segments {
			if !s.Done && s.AssignedTo != cid {
				return it.claimLocked(i, s, chunkSize, cid), nil
			}
		}
	}

	return Segment{}, ErrNoSegmentAvailable
}

// claimLocked assigns (and, if larger than chunkSize, splits) segment i to
// cid, returning the claimed piece. Caller holds it.mu.
func (it *Item) claimLocked(i int, s Segment, chunkSize int64, cid string) Segment {
	if s.Len <= chunkSize {
		it.segments[i].AssignedTo = cid
		return it.segments[i]
	}
	claimed := Segment{Start: s.Start, Len: chunkSize, AssignedTo: cid}
	rest := Segment{Start: s.Start + chunkSize, Len: s.Len - chunkSize}
	it.segments[i] = claimed
	it.segments = append(it.segments, rest)
	return claimed
}

// MarkSegmentDone records that the byte range [start, start+length) has
// finished downloading, merging adjacent finished segments so the segment
// list doesn't grow unbounded over a long-running transfer.
func (it *Item) MarkSegmentDone(start, length int64) {
	it.mu.Lock()
	defer it.mu.Unlock()
	for i := range it.segments {
		if it.segments[i].Start == start && it.segments[i].Len == length {
			it.segments[i].Done = true
			it.segments[i].AssignedTo = ""
		}
	}
	it.mergeLocked()
}

func (it *Item) mergeLocked() {
	if len(it.segments) < 2 {
		return
	}
	sort.Slice(it.segments, func(a, b int) bool { return it.segments[a].Start < it.segments[b].Start })
	merged := make([]Segment, 0, len(it.segments))
	cur := it.segments[0]
	for _, next := range it.segments[1:] {
		if cur.Done && next.Done && cur.End() == next.Start {
			cur.Len += next.Len
			continue
		}
		merged = append(merged, cur)
		cur = next
	}
	merged = append(merged, cur)
	it.segments = merged
}

// ReleaseSegment unclaims a segment a connection was running, e.g. on slow
// disconnect, without marking it done.
func (it *Item) ReleaseSegment(cid string, start, length int64) {
	it.mu.Lock()
	defer it.mu.Unlock()
	for i := range it.segments {
		if it.segments[i].Start == start && it.segments[i].Len == length && it.segments[i].AssignedTo == cid {
			it.segments[i].AssignedTo = ""
		}
	}
}
