package share

import (
	"strings"
	"time"

	"github.com/airdcpp-go/core/internal/tth"
)

// FileType restricts search/filelist results to a coarse kind.
type FileType int

const (
	FileTypeAny FileType = iota
	FileTypeAudio
	FileTypeCompressed
	FileTypeDocument
	FileTypeExecutable
	FileTypePicture
	FileTypeVideo
	FileTypeDirectory
)

// SearchQuery carries the match criteria for a share search. When
// Root is non-nil, the search is a direct TTH lookup and all other fields
// are ignored except MaxResults.
type SearchQuery struct {
	Include    []string // all must match substring, case-insensitive
	Exclude    []string // none may match
	MinSize    int64
	MaxSize    int64 // 0 means unbounded
	After      time.Time
	Before     time.Time
	Type       FileType
	MaxResults int
	Root       *tth.Value // TTH-direct lookup
}

// Result is one matched file or directory.
type Result struct {
	VirtualPath string
	RealPath    string
	Size        int64
	TTH         tth.Value
	IsDirectory bool
	ModTime     time.Time
}

func sizeInRange(size int64, q *SearchQuery) bool {
	if q.MinSize > 0 && size < q.MinSize {
		return false
	}
	if q.MaxSize > 0 && size > q.MaxSize {
		return false
	}
	return true
}

func dateInRange(t time.Time, q *SearchQuery) bool {
	if !q.After.IsZero() && t.Before(q.After) {
		return false
	}
	if !q.Before.IsZero() && t.After(q.Before) {
		return false
	}
	return true
}

func matchesType(name string, isDir bool, ft FileType) bool {
	if ft == FileTypeAny {
		return true
	}
	if ft == FileTypeDirectory {
		return isDir
	}
	if isDir {
		return false
	}
	ext := strings.ToLower(extOf(name))
	switch ft {
	case FileTypeAudio:
		return contains(ext, "mp3", "flac", "ogg", "wav", "m4a", "ape")
	case FileTypeCompressed:
		return contains(ext, "zip", "rar", "7z", "tar", "gz", "bz2")
	case FileTypeDocument:
		return contains(ext, "pdf", "txt", "doc", "docx", "nfo")
	case FileTypeExecutable:
		return contains(ext, "exe", "msi", "apk")
	case FileTypePicture:
		return contains(ext, "jpg", "jpeg", "png", "gif", "bmp", "webp")
	case FileTypeVideo:
		return contains(ext, "mkv", "mp4", "avi", "mov", "wmv")
	default:
		return true
	}
}

func extOf(name string) string {
	i := strings.LastIndex(name, ".")
	if i < 0 || i == len(name)-1 {
		return ""
	}
	return name[i+1:]
}

func contains(v string, opts ...string) bool {
	for _, o := range opts {
		if v == o {
			return true
		}
	}
	return false
}

func matchTokens(name string, include, exclude []string) bool {
	lower := strings.ToLower(name)
	for _, tok := range include {
		if !strings.Contains(lower, strings.ToLower(tok)) {
			return false
		}
	}
	for _, tok := range exclude {
		if strings.Contains(lower, strings.ToLower(tok)) {
			return false
		}
	}
	return true
}
