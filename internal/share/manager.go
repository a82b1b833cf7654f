package share

import (
	"encoding/xml"
	"errors"
	"path/filepath"
	"strings"
	"sync"

	"github.com/airdcpp-go/core/internal/logger"
	"github.com/airdcpp-go/core/internal/tth"
)

var (
	ErrRootNotFound = errors.New("share: root not found")
	ErrNotShared    = errors.New("share: path not shared")
	ErrIsDirectory  = errors.New("share: virtual path is a directory, not a file")
)

// Manager owns the whole share tree: roots, profiles, the search index, and
// the refresh worker. One Manager per running core, avoiding ambient globals.
type Manager struct {
	mu          sync.RWMutex
	roots       map[string]*Directory // lowercased root name -> root
	rootsByPath map[string]*Directory // real path -> root
	profiles    map[int]*Profile
	index       *index

	validator  Validator
	hashSource HashSource
	fileListDir string

	worker   *refreshWorker
	stopping chan struct{}

	log logger.Logger
}

// NewManager constructs an empty share tree. hashSource computes TTHs
// during refresh; fileListDir is where generated file lists are written.
func NewManager(hashSource HashSource, fileListDir string) *Manager {
	m := &Manager{
		roots:       make(map[string]*Directory),
		rootsByPath: make(map[string]*Directory),
		profiles:    map[int]*Profile{ProfileDefault: NewProfile(ProfileDefault, "Default")},
		index:       newIndex(),
		validator:   &DefaultValidator{},
		hashSource:  hashSource,
		fileListDir: fileListDir,
		stopping:    make(chan struct{}),
		log:         logger.New("share"),
	}
	m.worker = newRefreshWorker(m)
	return m
}

// Close stops the refresh worker and snapshots the current tree shape to
// the fast binary cache so the next startup's LoadCache has something to
// read before the first refresh completes. Idempotent-ish: calling it
// twice panics on the closed channel, a single-shutdown idiom.
func (m *Manager) Close() {
	close(m.stopping)
	m.worker.Stop()
	if m.fileListDir != "" {
		if err := m.SaveCache(filepath.Join(m.fileListDir, "tree.cache")); err != nil {
			m.log.Warningln("saving tree cache:", err)
		}
	}
}

// AddProfile registers a new named profile.
func (m *Manager) AddProfile(token int, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[token] = NewProfile(token, name)
}

// AddRoot registers realPath as a share root under the given profiles and
// queues a blocking refresh of it.
func (m *Manager) AddRoot(realPath string, profiles []int) <-chan error {
	if len(profiles) == 0 {
		profiles = []int{ProfileDefault}
	}
	set := make(map[int]struct{}, len(profiles))
	for _, p := range profiles {
		set[p] = struct{}{}
	}

	name := filepath.Base(realPath)
	root := newDirectory(name, nil)
	root.realPath = realPath
	root.Profiles = set

	m.mu.Lock()
	m.roots[root.lowerName] = root
	m.rootsByPath[realPath] = root
	m.mu.Unlock()

	return m.Refresh([]string{realPath}, RefreshDirs, PriorityBlocking)
}

// RemoveRoot unshares a root entirely, removing it from the index.
func (m *Manager) RemoveRoot(realPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	root, ok := m.rootsByPath[realPath]
	if !ok {
		return ErrRootNotFound
	}
	m.index.removeSubtree(root)
	delete(m.rootsByPath, realPath)
	delete(m.roots, root.lowerName)
	return nil
}

// Refresh queues a refresh task and returns a channel that receives the
// outcome once the worker processes it.
func (m *Manager) Refresh(paths []string, refType RefreshType, priority RefreshPriority) <-chan error {
	done := make(chan error, 1)
	m.worker.submit(&refreshTask{paths: paths, refType: refType, priority: priority, done: done})
	return done
}

// RefreshAllRoots queues a full reindex of every registered root,
// typically invoked on startup.
func (m *Manager) RefreshAllRoots(refType RefreshType, priority RefreshPriority) <-chan error {
	m.mu.RLock()
	paths := make([]string, 0, len(m.rootsByPath))
	for p := range m.rootsByPath {
		paths = append(paths, p)
	}
	m.mu.RUnlock()
	return m.Refresh(paths, refType, priority)
}

// markDirty flags every profile touched by a completed refresh so their
// file lists regenerate on the next guard window.
func (m *Manager) markDirty(profiles map[int]struct{}) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for token := range profiles {
		if p, ok := m.profiles[token]; ok {
			p.list.MarkDirty()
		}
	}
}

// regenerateDirtyFileLists is invoked after every refresh batch; each
// profile's FileList independently decides whether the guard window has
// elapsed.
func (m *Manager) regenerateDirtyFileLists() {
	m.mu.RLock()
	profiles := make([]*Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		profiles = append(profiles, p)
	}
	m.mu.RUnlock()

	for _, p := range profiles {
		roots := m.rootsForProfile(p.Token)
		if err := p.list.MaybeGenerate(m.fileListDir, roots, false); err != nil {
			m.log.Errorln("file list generation failed for profile", p.Name, ":", err)
		}
	}
}

func (m *Manager) rootsForProfile(token int) []*Directory {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Directory
	for _, r := range m.roots {
		if _, ok := r.Profiles[token]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Search walks every root visible under profile. It first checks each
// include token against the share-wide bloom filter and returns nothing
// if one cannot occur anywhere in the tree; there is no per-directory
// filter, so otherwise every visible directory is walked.
func (m *Manager) Search(q SearchQuery, profile int) []Result {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if q.Root != nil {
		return m.searchByTTHLocked(*q.Root, profile)
	}

	var results []Result
	for _, tok := range q.Include {
		if !m.index.bloom.MightContainSubstring(tok) {
			return nil
		}
	}

	for _, root := range m.roots {
		if _, ok := root.Profiles[profile]; !ok {
			continue
		}
		m.searchDir(root, &q, &results)
		if q.MaxResults > 0 && len(results) >= q.MaxResults {
			return results[:q.MaxResults]
		}
	}
	return results
}

func (m *Manager) searchByTTHLocked(want tth.Value, profile int) []Result {
	var out []Result
	for _, f := range m.index.tthIndex[want] {
		if !f.Parent.SharedIn(profile) {
			continue
		}
		out = append(out, Result{
			VirtualPath: f.Parent.VirtualPath() + f.Name,
			RealPath:    f.Parent.RealPath() + "/" + f.Name,
			Size:        f.Size,
			TTH:         f.TTH,
			ModTime:     f.ModTime,
		})
	}
	return out
}

func (m *Manager) searchDir(d *Directory, q *SearchQuery, results *[]Result) {
	if q.MaxResults > 0 && len(*results) >= q.MaxResults {
		return
	}
	if matchTokens(d.Name, q.Include, q.Exclude) && matchesType(d.Name, true, q.Type) {
		*results = append(*results, Result{
			VirtualPath: d.VirtualPath(),
			RealPath:    d.RealPath(),
			IsDirectory: true,
			ModTime:     d.ModTime,
		})
	}
	for _, f := range d.Files {
		if q.MaxResults > 0 && len(*results) >= q.MaxResults {
			return
		}
		if !matchTokens(f.Name, q.Include, q.Exclude) {
			continue
		}
		if !matchesType(f.Name, false, q.Type) {
			continue
		}
		if !sizeInRange(f.Size, q) || !dateInRange(f.ModTime, q) {
			continue
		}
		*results = append(*results, Result{
			VirtualPath: d.VirtualPath() + f.Name,
			RealPath:    d.RealPath() + "/" + f.Name,
			Size:        f.Size,
			TTH:         f.TTH,
			ModTime:     f.ModTime,
		})
	}
	for _, child := range d.Dirs {
		m.searchDir(child, q, results)
	}
}

// IsTTHShared reports whether tth is indexed anywhere in the tree, used by
// the queue manager to avoid re-downloading content already on disk.
func (m *Manager) IsTTHShared(t tth.Value) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.index.tthIndex[t]
	return ok
}

// ToReal resolves an ADC virtual path ("/root/sub/file.ext") to its on-disk
// path and size, without any profile scoping. Kept for callers (the "share
// add" CLI path, tests) that already hold a trusted, locally-resolved path;
// incoming transfer requests must use ToRealWithSize instead.
func (m *Manager) ToReal(virtualPath string) (realPath string, size int64, isDir bool, err error) {
	d, f, ok := m.resolve(virtualPath)
	if !ok {
		return "", 0, false, ErrNotShared
	}
	if f != nil {
		return d.RealPath() + "/" + f.Name, f.Size, false, nil
	}
	return d.RealPath(), 0, true, nil
}

// ToRealWithSize resolves an ADC virtual path to its on-disk path and size,
// scoped to the profiles the requesting hub/user is allowed to see, for
// incoming transfer requests. user identifies the requesting peer (their
// CID) for the access-denial log line; it does not currently gate access
// beyond profile membership, since per-user access lists are one of this
// core's Non-goals.
func (m *Manager) ToRealWithSize(virtualPath string, profiles []int, user string) (realPath string, size int64, err error) {
	d, f, ok := m.resolve(virtualPath)
	if !ok {
		return "", 0, ErrNotShared
	}
	if !sharedInAny(d, profiles) {
		m.log.Warningln("denied", user, "access to", virtualPath, ": not shared in", profiles)
		return "", 0, ErrNotShared
	}
	if f == nil {
		return d.RealPath(), 0, ErrIsDirectory
	}
	return d.RealPath() + "/" + f.Name, f.Size, nil
}

func sharedInAny(d *Directory, profiles []int) bool {
	for _, p := range profiles {
		if d.SharedIn(p) {
			return true
		}
	}
	return false
}

// ToVirtual resolves a real filesystem path back to its ADC virtual path,
// if it lies inside a shared root.
func (m *Manager) ToVirtual(realPath string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for rp, root := range m.rootsByPath {
		if realPath == rp || strings.HasPrefix(realPath, rp+"/") {
			rel := strings.TrimPrefix(strings.TrimPrefix(realPath, rp), "/")
			return root.VirtualPath() + rel, nil
		}
	}
	return "", ErrNotShared
}

func (m *Manager) resolve(virtualPath string) (*Directory, *File, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	parts := strings.Split(strings.Trim(virtualPath, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return nil, nil, false
	}
	cur, ok := m.roots[strings.ToLower(parts[0])]
	if !ok {
		return nil, nil, false
	}
	for i := 1; i < len(parts); i++ {
		seg := parts[i]
		if i == len(parts)-1 {
			if f, ok := cur.Files[strings.ToLower(seg)]; ok {
				return cur, f, true
			}
		}
		next, ok := cur.Dirs[strings.ToLower(seg)]
		if !ok {
			return nil, nil, false
		}
		cur = next
	}
	return cur, nil, true
}

// GetFileDupePaths returns the real paths of every shared file whose TTH
// matches t, for the queue manager's "already have this" check
// (ShareManager.get_paths_by_tth).
func (m *Manager) GetFileDupePaths(t tth.Value) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for _, f := range m.index.tthIndex[t] {
		out = append(out, f.Parent.RealPath()+"/"+f.Name)
	}
	return out
}

// GetAdcDirectoryDupePaths returns the virtual paths of every shared
// directory with a matching lowercased name, used by the bundle manager to
// detect a completed download duplicating existing shared content.
func (m *Manager) GetAdcDirectoryDupePaths(name string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for _, d := range m.index.lowerNameDirs[strings.ToLower(name)] {
		out = append(out, d.VirtualPath())
	}
	return out
}

// GeneratePartialList builds an in-memory listing rooted at virtualPath
// without touching disk, for ADC's GETZBLOCK/partial-list responses.
func (m *Manager) GeneratePartialList(virtualPath string, profile int) ([]byte, error) {
	d, _, ok := m.resolve(virtualPath)
	if !ok || !d.SharedIn(profile) {
		return nil, ErrNotShared
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	listing := xmlFileList{Version: "1", Base: d.VirtualPath(), Dirs: []xmlFileListDirectory{toXMLDir(d)}}
	return xml.MarshalIndent(listing, "", "  ")
}
