// Package bundle groups queue items into a single download unit with its
// own lifecycle, matching AirDC++'s Bundle.cpp. A bundle is either
// a single file ("file bundle") or a directory tree ("directory bundle");
// both share the same state machine and persistence format.
package bundle

import (
	"time"

	"github.com/airdcpp-go/core/internal/queue"
)

// Status is the bundle lifecycle state, named after the source's
// Bundle::Status enumerators rather than collapsed into a
// generic Stopped/Running pair — AirDC++ distinguishes post-download
// validation outcomes a plain torrent status wouldn't need.
type Status int

const (
	StatusNew Status = iota
	StatusQueued
	StatusRecheck
	StatusDownloaded
	StatusValidationRunning
	StatusValidationError
	StatusDownloadError
	StatusCompleted
	StatusShared
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "NEW"
	case StatusQueued:
		return "QUEUED"
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
	case StatusShared:
		return "SHARED"
	default:
		return "UNKNOWN"
	}
}

// validTransitions enumerates the edges of the bundle state machine: a
// bundle only moves forward except on recheck/error retry. Kept as an
// explicit table rather than scattered if-statements, the way torrent.go
// documents its own status edges in a comment above the run loop's switch.
var validTransitions = map[Status][]Status{
	StatusNew:               {StatusQueued},
	StatusQueued:            {StatusDownloaded, StatusDownloadError, StatusRecheck},
	StatusRecheck:           {StatusQueued, StatusDownloadError},
	StatusDownloaded:        {StatusValidationRunning},
	StatusValidationRunning: {StatusValidationError, StatusCompleted},
	StatusValidationError:   {StatusRecheck, StatusDownloadError},
	StatusDownloadError:     {StatusRecheck, StatusQueued},
	StatusCompleted:         {StatusShared},
	StatusShared:            {},
}

// CanTransition reports whether moving from `from` to `to` is legal.
func CanTransition(from, to Status) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Bundle is a group of queue items sharing one lifecycle and target
// directory (or a single file, for file bundles where Target == the
// file's own path).
type Bundle struct {
	Token    string
	Name     string
	Target   string // directory for directory bundles, file path for file bundles
	IsFile   bool
	Priority queue.Priority
	Status   Status
	Added    time.Time

	Items []*queue.Item
}

// Size sums every item's declared size.
func (b *Bundle) Size() int64 {
	var total int64
	for _, it := range b.Items {
		total += it.Size
	}
	return total
}

// DownloadedSize sums the sizes of the items that have fully completed, for
// progress reporting; bytes of partially downloaded items are not counted.
func (b *Bundle) DownloadedSize() int64 {
	var total int64
	for _, it := range b.Items {
		if it.IsComplete() {
			total += it.Size
			continue
		}
	}
	return total
}

// AllItemsComplete reports whether every item in the bundle has finished
// downloading, the trigger for QUEUED -> DOWNLOADED.
func (b *Bundle) AllItemsComplete() bool {
	for _, it := range b.Items {
		if !it.IsComplete() {
			return false
		}
	}
	return true
}

// SetStatus transitions the bundle, rejecting illegal edges so a caller
// can't e.g. mark a SHARED bundle back to QUEUED by mistake.
func (b *Bundle) SetStatus(next Status) error {
	if !CanTransition(b.Status, next) {
		return &InvalidTransitionError{From: b.Status, To: next}
	}
	b.Status = next
	return nil
}

// InvalidTransitionError reports a rejected bundle status change.
type InvalidTransitionError struct {
	From, To Status
}

func (e *InvalidTransitionError) Error() string {
	return "bundle: invalid transition " + e.From.String() + " -> " + e.To.String()
}
