// Package queue implements per-file download bookkeeping: queue items,
// their byte segments, and the sources offering them. Bundles
// (internal/bundle) group queue items into a single lifecycle and own
// persistence; this package owns segment selection and source tracking.
package queue

import (
	"sync"
	"time"

	"github.com/airdcpp-go/core/internal/tth"
	metrics "github.com/rcrowley/go-metrics"
)

// Priority is an explicit integer priority level, ordered from paused to
// highest.
type Priority int

const (
	PriorityPaused Priority = iota
	PriorityLowest
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityHighest
)

// Status is a queue item's lifecycle state.
type Status int

const (
	StatusNew Status = iota
	StatusQueued
	StatusRunning
	StatusRecheck
	StatusDownloaded
	StatusValidationRunning
	StatusValidationError
	StatusDownloadError
	StatusCompleted
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "NEW"
	case StatusQueued:
		return "QUEUED"
	case StatusRunning:
		return "RUNNING"
	case StatusRecheck:
		return "RECHECK"
	case StatusDownloaded:
		return "DOWNLOADED"
	case StatusValidationRunning:
		return "VALIDATION_RUNNING"
	case StatusValidationError:
		return "VALIDATION_ERROR"
	case StatusDownloadError:
		return "DOWNLOAD_ERROR"
	case StatusCompleted:
		return "COMPLETED"
	default:
		return "UNKNOWN"
	}
}

// Segment is one contiguous byte range of a queue item. Assigned segments
// carry the CID of the connection currently downloading them so a second
// connection can pick a disjoint range.
type Segment struct {
	Start      int64
	Len        int64
	Done       bool
	AssignedTo string // peer CID, empty when unclaimed
}

func (s Segment) End() int64 { return s.Start + s.Len }

// Source is one peer known to offer a queue item's content.
type Source struct {
	CID     string
	Nick    string
	HubURL  string
	speed   metrics.EWMA // bytes/sec, EWMA speed counter
	Partial bool         // peer has only part of the file (partial-list hint)
}

func newSource(cid, nick, hubURL string) *Source {
	s := &Source{CID: cid, Nick: nick, HubURL: hubURL, speed: metrics.NewEWMA1()}
	return s
}

func (s *Source) RecordBytes(n int64) { s.speed.Update(n); s.speed.Tick() }
func (s *Source) Speed() float64      { return s.speed.Rate() }

// Item is a single file queued for download.
type Item struct {
	Token    string
	Target   string // final on-disk path
	Size     int64
	TTH      tth.Value
	Priority Priority
	AutoPrio bool // priority recomputed by the rebalancer rather than user-set
	Status   Status
	Added    time.Time

	mu       sync.Mutex
	segments []Segment
	sources  map[string]*Source
}

// NewItem constructs a queue item with one unclaimed segment spanning the
// whole file; segments split further as connections claim chunks through
// GetDownload.
func NewItem(token, target string, size int64, t tth.Value, prio Priority) *Item {
	return &Item{
		Token:    token,
		Target:   target,
		Size:     size,
		TTH:      t,
		Priority: prio,
		Status:   StatusNew,
		Added:    time.Now(),
		segments: []Segment{{Start: 0, Len: size}},
		sources:  make(map[string]*Source),
	}
}

// NewRangeItem builds a one-shot item covering a single, initially
// unclaimed byte range [start, start+length) rather than the whole file, the shape an
// upload-serving connection needs: it reuses GetDownload/MarkSegmentDone's
// claiming machinery to drive Connection.Run for exactly the range a peer
// requested, without the rest of the file ever appearing as a segment.
func NewRangeItem(token, target string, start, length int64) *Item {
	return &Item{
		Token:    token,
		Target:   target,
		Size:     start + length,
		Status:   StatusRunning,
		Added:    time.Now(),
		segments: []Segment{{Start: start, Len: length}},
		sources:  make(map[string]*Source),
	}
}

// AddSource registers or refreshes a peer offering this item's content.
func (it *Item) AddSource(cid, nick, hubURL string) *Source {
	it.mu.Lock()
	defer it.mu.Unlock()
	if s, ok := it.sources[cid]; ok {
		return s
	}
	s := newSource(cid, nick, hubURL)
	it.sources[cid] = s
	return s
}

func (it *Item) RemoveSource(cid string) {
	it.mu.Lock()
	defer it.mu.Unlock()
	delete(it.sources, cid)
	for i := range it.segments {
		if it.segments[i].AssignedTo == cid {
			it.segments[i].AssignedTo = ""
		}
	}
}

func (it *Item) SourceCount() int {
	it.mu.Lock()
	defer it.mu.Unlock()
	return len(it.sources)
}

func (it *Item) Sources() []*Source {
	it.mu.Lock()
	defer it.mu.Unlock()
	out := make([]*Source, 0, len(it.sources))
	for _, s := range it.sources {
		out = append(out, s)
	}
	return out
}

// IsComplete reports whether every byte of the file has a finished segment.
func (it *Item) IsComplete() bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	for _, s := range it.segments {
		if !s.Done {
			return false
		}
	}
	return true
}

// SetStatus moves the item to the given status directly; queue items don't
// carry an edge-validated state machine of their own the way Bundle does.
func (it *Item) SetStatus(s Status) {
	it.mu.Lock()
	it.Status = s
	it.mu.Unlock()
}

// MarkValidating transitions a just-completed download into
// VALIDATION_RUNNING, reporting false if another connection already claimed
// the verification step (two connections can both finish the last two
// disjoint segments at nearly the same instant).
func (it *Item) MarkValidating() bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.Status == StatusValidationRunning || it.Status == StatusCompleted {
		return false
	}
	it.Status = StatusValidationRunning
	return true
}

// ResetForRedownload reopens the whole file as a single unclaimed segment
// and returns the item to QUEUED, the conservative recovery a final-TTH
// mismatch falls back to when the specific bad byte range can't be
// isolated (see DESIGN.md's hash-mismatch decision).
func (it *Item) ResetForRedownload() {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.segments = []Segment{{Start: 0, Len: it.Size}}
	it.Status = StatusQueued
}
