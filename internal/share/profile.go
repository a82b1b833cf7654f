package share

import "sync"

const (
	// ProfileDefault is the reserved token meaning "default".
	ProfileDefault = 0
	// ProfileHidden is the reserved token for content never shared on any hub.
	ProfileHidden = -1
)

// Profile is a named view of share roots exposed to a subset of hubs,
// with cached counters and its own generated FileList.
type Profile struct {
	Token int
	Name  string

	mu        sync.Mutex
	size      int64
	fileCount int

	list *FileList
}

// NewProfile constructs a profile; token 0 is reserved for "default".
func NewProfile(token int, name string) *Profile {
	return &Profile{Token: token, Name: name, list: newFileList(token)}
}

// UpdateCounters sets the cached (size, file-count) pair. Refresh does not
// call it, so Counters reports zero until a caller does.
func (p *Profile) UpdateCounters(size int64, fileCount int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.size, p.fileCount = size, fileCount
}

func (p *Profile) Counters() (size int64, fileCount int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size, p.fileCount
}
