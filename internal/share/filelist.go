package share

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/airdcpp-go/core/internal/stream"
)

// regenGuard coalesces closely-spaced dirty notifications: a profile's
// file-list is never regenerated more than once per this window.
const regenGuard = 15 * time.Minute

// FileList owns bz2+XML generation for one profile. Generation is
// serialized per profile (mu) and gated by a 15-minute guard so a burst of
// refreshes produces one regeneration, not one per refresh.
type FileList struct {
	token int

	mu            sync.Mutex
	dirty         bool
	lastGenerated time.Time
	generation    int64 // monotonically increasing, exposed for cache-busting names
	path          string
}

func newFileList(token int) *FileList {
	return &FileList{token: token}
}

// MarkDirty records that the profile's content changed; the next call to
// MaybeGenerate (after the guard window) will regenerate.
func (fl *FileList) MarkDirty() {
	fl.mu.Lock()
	fl.dirty = true
	fl.mu.Unlock()
}

// MaybeGenerate regenerates the file list if dirty and the guard window has
// elapsed since the last generation. baseDir is the directory file lists
// are written into; roots is the profile's current root directories.
func (fl *FileList) MaybeGenerate(baseDir string, roots []*Directory, force bool) error {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if !fl.dirty && !force {
		return nil
	}
	if !force && time.Since(fl.lastGenerated) < regenGuard {
		return nil
	}
	fl.generation++

	path, err := fl.generate(baseDir, roots, fl.generation)
	if err != nil {
		return err
	}

	fl.dirty = false
	fl.lastGenerated = time.Now()
	fl.path = path
	return nil
}

// Path returns the last successfully written file list path, if any.
func (fl *FileList) Path() string {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	return fl.path
}

// Generation returns the current generation counter.
func (fl *FileList) Generation() int64 {
	return atomic.LoadInt64(&fl.generation)
}

type xmlFileListFile struct {
	Name string `xml:"Name,attr"`
	Size int64  `xml:"Size,attr"`
	TTH  string `xml:"TTH,attr"`
}

type xmlFileListDirectory struct {
	Name  string                  `xml:"Name,attr"`
	Dirs  []xmlFileListDirectory  `xml:"Directory"`
	Files []xmlFileListFile       `xml:"File"`
}

type xmlFileList struct {
	XMLName xml.Name               `xml:"FileListing"`
	Version string                  `xml:"Version,attr"`
	CID     string                  `xml:"CID,attr"`
	Base    string                  `xml:"Base,attr"`
	Dirs    []xmlFileListDirectory `xml:"Directory"`
}

func toXMLDir(d *Directory) xmlFileListDirectory {
	out := xmlFileListDirectory{Name: d.Name}
	for _, child := range d.Dirs {
		out.Dirs = append(out.Dirs, toXMLDir(child))
	}
	for _, f := range d.Files {
		out.Files = append(out.Files, xmlFileListFile{
			Name: f.Name,
			Size: f.Size,
			TTH:  f.TTH.String(),
		})
	}
	return out
}

// generate serializes roots to XML and writes it bz2-compressed at
// <baseDir>/files_<token>_<generation>.xml.bz2, via a tmp+rename so
// concurrent readers never observe a partial file — the same atomic-write
// idiom as queue XML persistence.
func (fl *FileList) generate(baseDir string, roots []*Directory, generation int64) (string, error) {
	listing := xmlFileList{Version: "1", Base: "/"}
	for _, r := range roots {
		listing.Dirs = append(listing.Dirs, toXMLDir(r))
	}

	data, err := xml.MarshalIndent(listing, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal file list: %w", err)
	}

	name := fmt.Sprintf("files_%d_%d.xml.bz2", fl.token, generation)
	finalPath := filepath.Join(baseDir, name)
	tmpPath := finalPath + ".tmp"

	out, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create temp file list: %w", err)
	}

	bz, err := stream.BZ2Writer(out)
	if err != nil {
		out.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("open bz2 writer: %w", err)
	}
	if _, err := bz.Write(data); err != nil {
		bz.Close()
		out.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("write file list: %w", err)
	}
	if err := bz.Close(); err != nil {
		out.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("close bz2 writer: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("close temp file list: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("rename file list into place: %w", err)
	}
	return finalPath, nil
}
