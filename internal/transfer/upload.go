package transfer

import (
	"errors"
	"io"
	"sync"

	"github.com/airdcpp-go/core/internal/stream"
)

// smallFileThreshold is the size below which an upload is eligible for
// zlib compression and a reserved "extra" slot outside the normal slot
// count.
const smallFileThreshold = 65536

var ErrNoSlotAvailable = errors.New("transfer: no upload slot available")

// UploadManager tracks the running upload count against a configured slot
// limit, with a separate reservation for small files so a burst of tiny
// file requests (thumbnails, .nfo, .sfv) never starves normal uploads and
// vice versa.
type UploadManager struct {
	mu           sync.Mutex
	slots        int
	smallSlots   int
	running      int
	runningSmall int

	reserved *ReservedSlotManager
}

func NewUploadManager(slots, smallFileSlots int) *UploadManager {
	return &UploadManager{slots: slots, smallSlots: smallFileSlots, reserved: NewReservedSlotManager()}
}

// AcquireSlot grants an upload slot for a file of the given size and CID,
// preferring the small-file pool for files under smallFileThreshold, and
// always granting if the CID holds a reserved slot.
func (u *UploadManager) AcquireSlot(cid string, fileSize int64) (release func(), err error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.reserved.HasReserved(cid) {
		u.running++
		return func() { u.releaseNormal() }, nil
	}

	if fileSize <= smallFileThreshold && u.runningSmall < u.smallSlots {
		u.runningSmall++
		return func() { u.releaseSmall() }, nil
	}

	if u.running < u.slots {
		u.running++
		return func() { u.releaseNormal() }, nil
	}

	return nil, ErrNoSlotAvailable
}

func (u *UploadManager) releaseNormal() {
	u.mu.Lock()
	u.running--
	u.mu.Unlock()
}

func (u *UploadManager) releaseSmall() {
	u.mu.Lock()
	u.runningSmall--
	u.mu.Unlock()
}

// Counters reports current slot usage for UI/stats purposes.
func (u *UploadManager) Counters() (running, runningSmall, slots, smallSlots int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.running, u.runningSmall, u.slots, u.smallSlots
}

// CompressIfSmall wraps w in a zlib compressor when size is below the
// small-file threshold, returning w unchanged (and a no-op closer)
// otherwise — an optional filter for small files where the CPU cost of
// deflate is worth the bandwidth saved.
func CompressIfSmall(w io.Writer, size int64) (io.Writer, func() error, error) {
	if size > smallFileThreshold {
		return w, func() error { return nil }, nil
	}
	zw, err := stream.ZlibWriter(w)
	if err != nil {
		return nil, nil, err
	}
	return zw, zw.Close, nil
}
