package share

import (
	"container/heap"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/airdcpp-go/core/internal/tth"
)

// RefreshType distinguishes why a refresh was requested.
type RefreshType int

const (
	RefreshAll RefreshType = iota
	RefreshIncoming
	RefreshDirs
	RefreshBundle
	RefreshStartup
)

// RefreshPriority orders pending refresh tasks; higher runs first.
type RefreshPriority int

const (
	PriorityScheduled RefreshPriority = iota
	PriorityNormal
	PriorityBlocking
	PriorityManual
)

// HashedFile is what the Hash source collaborator returns for one file:
// get_file_info(lower_path, real_path).
type HashedFile struct {
	Size    int64
	TTH     tth.Value
	ModTime time.Time
}

// HashSource computes or looks up a file's TTH. In production this is
// backed by a hashing task pool; tests supply their own implementation.
type HashSource interface {
	GetFileInfo(lowerPath, realPath string) (HashedFile, error)
}

// Validator decides whether a filesystem entry is eligible to be shared
// (skiplist, excluded patterns, unwanted kinds): validate(fs_item, path,
// is_new_queue) -> accept | reject.
type Validator interface {
	Validate(name, path string, isDir bool) error
}

// DefaultValidator rejects dotfiles and a configurable set of excluded
// glob patterns; everything else is accepted.
type DefaultValidator struct {
	Excluded []string
}

func (v *DefaultValidator) Validate(name, path string, isDir bool) error {
	if strings.HasPrefix(name, ".") {
		return errSkipped
	}
	for _, pat := range v.Excluded {
		if ok, _ := filepath.Match(pat, name); ok {
			return errSkipped
		}
	}
	return nil
}

var errSkipped = &skipError{}

type skipError struct{}

func (*skipError) Error() string { return "excluded by validator" }

type refreshTask struct {
	paths    []string
	refType  RefreshType
	priority RefreshPriority
	seq      int // FIFO tiebreak within the same priority
	done     chan error
}

// taskQueue is a priority heap: MANUAL > BLOCKING > NORMAL > SCHEDULED,
// FIFO within a priority level. Refreshes are serialized through a task
// queue with priorities.
type taskQueue []*refreshTask

func (q taskQueue) Len() int { return len(q) }
func (q taskQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].seq < q[j].seq
}
func (q taskQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *taskQueue) Push(x any)        { *q = append(*q, x.(*refreshTask)) }
func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// refreshWorker serializes refresh tasks: at most one refresh runs at a
// time across the whole tree; additional requests queue.
type refreshWorker struct {
	mgr *Manager

	mu      sync.Mutex
	queue   taskQueue
	nextSeq int
	wake    chan struct{}

	stopping chan struct{}
}

func newRefreshWorker(mgr *Manager) *refreshWorker {
	w := &refreshWorker{mgr: mgr, wake: make(chan struct{}, 1), stopping: make(chan struct{})}
	go w.run()
	return w
}

func (w *refreshWorker) submit(t *refreshTask) {
	w.mu.Lock()
	t.seq = w.nextSeq
	w.nextSeq++
	heap.Push(&w.queue, t)
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *refreshWorker) run() {
	for {
		w.mu.Lock()
		var t *refreshTask
		if w.queue.Len() > 0 {
			t = heap.Pop(&w.queue).(*refreshTask)
		}
		w.mu.Unlock()

		if t == nil {
			select {
			case <-w.wake:
				continue
			case <-w.stopping:
				return
			}
		}

		err := w.mgr.runRefresh(t)
		if t.done != nil {
			t.done <- err
		}
	}
}

func (w *refreshWorker) Stop() { close(w.stopping) }

// runRefresh walks each path, builds a scratch subtree, and — if the walk
// completes without cancellation — atomically swaps it in for the live
// subtree rooted at the same path.
func (m *Manager) runRefresh(t *refreshTask) error {
	for _, path := range t.paths {
		if err := m.refreshOne(path, t.refType); err != nil {
			// A failed refresh of a sub-path rolls back only that
			// sub-path — continue with the rest.
			m.log.Errorln("refresh failed for", path, ":", err)
			continue
		}
	}
	if t.refType == RefreshAll {
		m.replaceBloomLocked()
	}
	m.regenerateDirtyFileLists()
	return nil
}

func (m *Manager) refreshOne(rootPath string, refType RefreshType) error {
	m.mu.RLock()
	existing := m.rootsByPath[rootPath]
	m.mu.RUnlock()

	var parentForName *Directory
	name := filepath.Base(rootPath)
	if existing != nil {
		name = existing.Name
	}

	scratch := newDirectory(name, parentForName)
	scratch.realPath = rootPath
	if existing != nil {
		scratch.Profiles = existing.Profiles
	} else {
		scratch.Profiles = map[int]struct{}{ProfileDefault: {}}
	}

	if err := m.walk(scratch, rootPath); err != nil {
		return err
	}

	select {
	case <-m.stopping:
		// Cancellation observed at a directory boundary: apply no change.
		return context.Canceled
	default:
	}

	m.mu.Lock()
	if existing != nil {
		m.index.removeSubtree(existing)
	}
	m.index.indexSubtree(scratch)
	m.rootsByPath[rootPath] = scratch
	m.roots[scratch.lowerName] = scratch
	m.mu.Unlock()

	m.markDirty(scratch.ProfileTokens())
	return nil
}

func (m *Manager) walk(dir *Directory, realPath string) error {
	select {
	case <-m.stopping:
		return context.Canceled
	default:
	}

	entries, err := os.ReadDir(realPath)
	if err != nil {
		return err
	}
	var totalSize int64
	for _, entry := range entries {
		fullPath := filepath.Join(realPath, entry.Name())
		if entry.IsDir() {
			if err := m.validator.Validate(entry.Name(), fullPath, true); err != nil {
				continue
			}
			child := newDirectory(entry.Name(), dir)
			if err := m.walk(child, fullPath); err != nil {
				return err
			}
			dir.Dirs[child.lowerName] = child
			continue
		}
		if err := m.validator.Validate(entry.Name(), fullPath, false); err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		hashed, err := m.hashSource.GetFileInfo(strings.ToLower(fullPath), fullPath)
		if err != nil {
			continue
		}
		f := &File{
			Name:      entry.Name(),
			lowerName: strings.ToLower(entry.Name()),
			Size:      hashed.Size,
			TTH:       hashed.TTH,
			ModTime:   hashed.ModTime,
			Parent:    dir,
		}
		dir.Files[f.lowerName] = f
		totalSize += f.Size
	}
	dir.ModTime = time.Now()
	_ = totalSize
	return nil
}

func (m *Manager) replaceBloomLocked() {
	m.mu.Lock()
	defer m.mu.Unlock()
	fresh := newIndex()
	for _, root := range m.roots {
		fresh.indexSubtree(root)
	}
	m.index = fresh
}
