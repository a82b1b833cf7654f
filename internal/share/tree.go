// Package share implements the in-memory share tree: the directory/file
// graph built from the user's exported folders, bloom-filter accelerated
// search, TTH-indexed lookups, and share profiles.
package share

import (
	"strings"
	"sync"
	"time"

	"github.com/airdcpp-go/core/internal/tth"
)

// Directory is a node in the share tree. Parent is a weak back-reference
// (the parent strongly owns its children; a directory's destruction must
// never cascade upward) — modeled here as a plain pointer with the
// invariant that only Manager ever walks upward from children, never
// frees a parent because a child went away.
type Directory struct {
	Name      string // original case
	lowerName string
	Parent    *Directory
	Dirs      map[string]*Directory // keyed by lowercase name
	Files     map[string]*File      // keyed by lowercase name
	ModTime   time.Time

	// Profiles is non-nil only on root directories; children inherit
	// membership from their nearest ancestor root.
	Profiles map[int]struct{}

	// realPath is only set on roots: the on-disk path this subtree mirrors.
	realPath string
}

// File is a leaf node: one shared file.
type File struct {
	Name      string
	lowerName string
	Size      int64
	TTH       tth.Value
	ModTime   time.Time
	Parent    *Directory
}

func newDirectory(name string, parent *Directory) *Directory {
	return &Directory{
		Name:      name,
		lowerName: strings.ToLower(name),
		Parent:    parent,
		Dirs:      make(map[string]*Directory),
		Files:     make(map[string]*File),
	}
}

// IsRoot reports whether d is a share root (carries explicit profile membership).
func (d *Directory) IsRoot() bool { return d.Profiles != nil }

// ProfileTokens returns the profile tokens this directory (or its nearest
// root ancestor) is shared under.
func (d *Directory) ProfileTokens() map[int]struct{} {
	cur := d
	for cur != nil {
		if cur.Profiles != nil {
			return cur.Profiles
		}
		cur = cur.Parent
	}
	return nil
}

// SharedIn reports whether this directory is visible under profile token.
func (d *Directory) SharedIn(profile int) bool {
	profiles := d.ProfileTokens()
	if profiles == nil {
		return false
	}
	_, ok := profiles[profile]
	return ok
}

// VirtualPath returns the ADC-style virtual path ("/root/sub/dir/") from
// the nearest root down to d.
func (d *Directory) VirtualPath() string {
	var parts []string
	cur := d
	for cur != nil && cur.Parent != nil {
		parts = append([]string{cur.Name}, parts...)
		cur = cur.Parent
	}
	if cur != nil {
		parts = append([]string{cur.Name}, parts...)
	}
	return "/" + strings.Join(parts, "/") + "/"
}

// RealPath returns the on-disk path this directory mirrors.
func (d *Directory) RealPath() string {
	var parts []string
	cur := d
	for cur != nil && cur.realPath == "" && cur.Parent != nil {
		parts = append([]string{cur.Name}, parts...)
		cur = cur.Parent
	}
	if cur == nil || cur.realPath == "" {
		return strings.Join(parts, "/")
	}
	if len(parts) == 0 {
		return cur.realPath
	}
	return cur.realPath + "/" + strings.Join(parts, "/")
}

// index holds the two multimaps and bloom filter that make search and
// dupe-detection fast. On every committed refresh the replaced subtree's
// entries are removed from the multimaps and the new subtree's added; the
// bloom filter is rebuilt only on full refreshes (see removeSubtree).
type index struct {
	mu sync.RWMutex

	// tthIndex: TTH -> files sharing that content (dupe detection).
	tthIndex map[tth.Value][]*File
	// lowerNameDirs: lowercased dir name -> directories (name search).
	lowerNameDirs map[string][]*Directory
	bloom         *Bloom
}

func newIndex() *index {
	return &index{
		tthIndex:      make(map[tth.Value][]*File),
		lowerNameDirs: make(map[string][]*Directory),
		bloom:         NewBloom(1 << 14, 4),
	}
}

// indexSubtree walks root and all descendants, adding every file and
// directory to the maps and bloom filter.
func (ix *index) indexSubtree(root *Directory) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.addLocked(root)
}

func (ix *index) addLocked(d *Directory) {
	ix.lowerNameDirs[d.lowerName] = append(ix.lowerNameDirs[d.lowerName], d)
	ix.bloom.AddNameTokens(d.Name)
	for _, f := range d.Files {
		ix.tthIndex[f.TTH] = append(ix.tthIndex[f.TTH], f)
		ix.bloom.AddNameTokens(f.Name)
	}
	for _, child := range d.Dirs {
		ix.addLocked(child)
	}
}

// removeSubtree removes every descendant's entries from the multimaps
// (the bloom filter is never individually retracted — it is replaced
// wholesale on full refreshes and reused, possibly with stale positives,
// on partial refreshes).
func (ix *index) removeSubtree(d *Directory) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(d)
}

func (ix *index) removeLocked(d *Directory) {
	dirs := ix.lowerNameDirs[d.lowerName]
	for i, cand := range dirs {
		if cand == d {
			ix.lowerNameDirs[d.lowerName] = append(dirs[:i], dirs[i+1:]...)
			break
		}
	}
	if len(ix.lowerNameDirs[d.lowerName]) == 0 {
		delete(ix.lowerNameDirs, d.lowerName)
	}
	for _, f := range d.Files {
		files := ix.tthIndex[f.TTH]
		for i, cand := range files {
			if cand == f {
				ix.tthIndex[f.TTH] = append(files[:i], files[i+1:]...)
				break
			}
		}
		if len(ix.tthIndex[f.TTH]) == 0 {
			delete(ix.tthIndex, f.TTH)
		}
	}
	for _, child := range d.Dirs {
		ix.removeLocked(child)
	}
}
