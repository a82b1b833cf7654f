package share

import (
	"bytes"
	"os"
	"strings"
	"time"

	"github.com/airdcpp-go/core/internal/tth"
	"github.com/zeebo/bencode"
)

// cachedDirectory/cachedFile mirror Directory/File in a form bencode can
// round-trip, separating the on-disk dictionary shape from the in-memory
// tree built from it.
type cachedFile struct {
	Name    string `bencode:"name"`
	Size    int64  `bencode:"size"`
	TTH     string `bencode:"tth"`
	ModUnix int64  `bencode:"mtime"`
}

type cachedDirectory struct {
	Name  string            `bencode:"name"`
	Dirs  []cachedDirectory `bencode:"dirs"`
	Files []cachedFile      `bencode:"files"`
}

// cacheFile is the top-level bencoded dictionary written to disk: a fast
// binary snapshot of the share tree's shape, distinct from the
// user-facing XML+BZ2 filelist (FileList). Reloading this on startup
// avoids re-walking the filesystem before the first real refresh
// completes, the same way a cached MetaInfo lets a client resume without
// re-fetching metadata from a tracker.
type cacheFile struct {
	Roots     []cachedDirectory `bencode:"roots"`
	Generated int64             `bencode:"generated"`
}

func toCachedDir(d *Directory) cachedDirectory {
	out := cachedDirectory{Name: d.Name}
	for _, child := range d.Dirs {
		out.Dirs = append(out.Dirs, toCachedDir(child))
	}
	for _, f := range d.Files {
		out.Files = append(out.Files, cachedFile{
			Name: f.Name, Size: f.Size, TTH: f.TTH.String(), ModUnix: f.ModTime.Unix(),
		})
	}
	return out
}

func fromCachedDir(c cachedDirectory, parent *Directory) *Directory {
	d := newDirectory(c.Name, parent)
	for _, cf := range c.Files {
		t, err := tth.ParseValue(cf.TTH)
		if err != nil {
			continue
		}
		d.Files[toLowerKey(cf.Name)] = &File{
			Name: cf.Name, lowerName: toLowerKey(cf.Name), Size: cf.Size, TTH: t,
			ModTime: time.Unix(cf.ModUnix, 0), Parent: d,
		}
	}
	for _, cd := range c.Dirs {
		child := fromCachedDir(cd, d)
		d.Dirs[child.lowerName] = child
	}
	return d
}

func toLowerKey(name string) string { return strings.ToLower(name) }

// SaveCache bencodes every root directory to path via tmp+rename, the same
// atomic-write contract as the user-facing FileList.
func (m *Manager) SaveCache(path string) error {
	m.mu.RLock()
	doc := cacheFile{Generated: time.Now().Unix()}
	for _, root := range m.roots {
		doc.Roots = append(doc.Roots, toCachedDir(root))
	}
	m.mu.RUnlock()

	var buf bytes.Buffer
	if err := bencode.NewEncoder(&buf).Encode(doc); err != nil {
		return err
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// LoadCache rebuilds the in-memory roots/index from a previously saved
// cache file, without touching the filesystem. Each loaded root has no
// realPath until a real refresh is run against it, and is shared under
// ProfileDefault only; membership in other profiles is not restored.
func (m *Manager) LoadCache(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var doc cacheFile
	if err := bencode.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cd := range doc.Roots {
		root := fromCachedDir(cd, nil)
		root.Profiles = map[int]struct{}{ProfileDefault: {}}
		m.roots[root.lowerName] = root
		m.index.indexSubtree(root)
	}
	return nil
}
