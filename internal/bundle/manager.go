package bundle

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/airdcpp-go/core/internal/logger"
	"github.com/airdcpp-go/core/internal/queue"
	"github.com/boltdb/bolt"
	uuid "github.com/satori/go.uuid"
)

var tokensBucket = []byte("bundle_tokens")

var (
	ErrNotFound      = errors.New("bundle: not found")
	ErrInvalidTarget = errors.New("bundle: invalid target path")
)

// Manager owns every bundle, its queue items, and on-disk persistence.
// Bundle XML is the authoritative store; boltdb is an additional
// fast-lookup index layered under it for O(1) token->path reload on
// startup.
type Manager struct {
	mu       sync.RWMutex
	bundles  map[string]*Bundle
	queueMgr *queue.Manager

	xmlDir string
	db     *bolt.DB
	log    logger.Logger
}

// Open creates a bundle manager rooted at xmlDir (where per-bundle XML
// files live) with a boltdb index at dbPath.
func Open(xmlDir, dbPath string, queueMgr *queue.Manager) (*Manager, error) {
	if err := os.MkdirAll(xmlDir, 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(tokensBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &Manager{
		bundles:  make(map[string]*Bundle),
		queueMgr: queueMgr,
		xmlDir:   xmlDir,
		db:       db,
		log:      logger.New("bundle"),
	}, nil
}

func (m *Manager) Close() error { return m.db.Close() }

// CreateFileBundle queues a single file as its own bundle.
func (m *Manager) CreateFileBundle(target string, size int64, t [24]byte, prio queue.Priority) (*Bundle, error) {
	if target == "" {
		return nil, ErrInvalidTarget
	}
	item, err := m.queueMgr.AddFile(target, size, t, prio)
	if err != nil {
		return nil, err
	}
	b := &Bundle{
		Token:    uuid.NewV4().String(),
		Name:     filepath.Base(target),
		Target:   target,
		IsFile:   true,
		Priority: prio,
		Status:   StatusNew,
		Added:    time.Now(),
		Items:    []*queue.Item{item},
	}
	_ = b.SetStatus(StatusQueued)
	return m.register(b)
}

// FileSpec describes one file to add when creating a directory bundle.
type FileSpec struct {
	RelPath string // path relative to the bundle's target directory
	Size    int64
	TTH     [24]byte
}

// CreateDirectoryBundle queues every file under a common target directory
// as one bundle.
func (m *Manager) CreateDirectoryBundle(targetDir string, files []FileSpec, prio queue.Priority) (*Bundle, error) {
	if targetDir == "" {
		return nil, ErrInvalidTarget
	}
	b := &Bundle{
		Token:    uuid.NewV4().String(),
		Name:     filepath.Base(targetDir),
		Target:   targetDir,
		IsFile:   false,
		Priority: prio,
		Status:   StatusNew,
		Added:    time.Now(),
	}
	for _, f := range files {
		item, err := m.queueMgr.AddFile(filepath.Join(targetDir, f.RelPath), f.Size, f.TTH, prio)
		if err != nil && !errors.Is(err, queue.ErrDuplicate) {
			return nil, fmt.Errorf("add %s: %w", f.RelPath, err)
		}
		if item != nil {
			b.Items = append(b.Items, item)
		}
	}
	_ = b.SetStatus(StatusQueued)
	return m.register(b)
}

func (m *Manager) register(b *Bundle) (*Bundle, error) {
	m.mu.Lock()
	m.bundles[b.Token] = b
	m.mu.Unlock()

	if err := m.save(b); err != nil {
		m.log.Errorln("save bundle", b.Token, ":", err)
	}
	if err := m.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(tokensBucket).Put([]byte(b.Token), []byte(m.xmlPath(b.Token)))
	}); err != nil {
		m.log.Errorln("persist bundle index for", b.Token, ":", err)
	}
	return b, nil
}

// RemoveBundle dequeues every item belonging to the bundle and deletes its
// persisted state.
func (m *Manager) RemoveBundle(token string) error {
	m.mu.Lock()
	b, ok := m.bundles[token]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.bundles, token)
	m.mu.Unlock()

	for _, it := range b.Items {
		if err := m.queueMgr.Remove(it.Token); err != nil {
			m.log.Errorln("remove queue item", it.Token, "for bundle", token, ":", err)
		}
	}
	_ = os.Remove(m.xmlPath(token))
	return m.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(tokensBucket).Delete([]byte(token))
	})
}

// SetBundlePriority updates a bundle's priority and cascades it to every
// item within it except those under auto-priority (AutoPrio), which keep
// the priority the rebalancer gives them.
func (m *Manager) SetBundlePriority(token string, prio queue.Priority) error {
	m.mu.RLock()
	b, ok := m.bundles[token]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	b.Priority = prio
	for _, it := range b.Items {
		if it.AutoPrio {
			continue
		}
		_ = m.queueMgr.SetPriority(it.Token, prio)
	}
	return m.save(b)
}

// HandleSlowDisconnect releases any segment a disconnecting, underperforming
// connection held within the bundle without marking it done, so another
// source can pick it up immediately.
func (m *Manager) HandleSlowDisconnect(token, cid string, start, length int64) error {
	m.mu.RLock()
	b, ok := m.bundles[token]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	for _, it := range b.Items {
		it.ReleaseSegment(cid, start, length)
	}
	return nil
}

// Get returns the bundle for token.
func (m *Manager) Get(token string) (*Bundle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bundles[token]
	if !ok {
		return nil, ErrNotFound
	}
	return b, nil
}

// RefreshStatus re-evaluates whether a bundle's items have finished
// downloading and advances QUEUED -> DOWNLOADED accordingly; the
// validation/share steps that follow DOWNLOADED are driven by the
// transfer engine and share manager respectively.
func (m *Manager) RefreshStatus(token string) error {
	m.mu.RLock()
	b, ok := m.bundles[token]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	if b.Status == StatusQueued && b.AllItemsComplete() {
		if err := b.SetStatus(StatusDownloaded); err != nil {
			return err
		}
		return m.save(b)
	}
	return nil
}

// RefreshStatusForItem re-evaluates the bundle owning item after one of its
// queue items changes status, the hook point a transfer connection calls on
// segment/validation completion instead of reaching into Bundle internals.
func (m *Manager) RefreshStatusForItem(item *queue.Item) error {
	m.mu.RLock()
	var token string
	for t, b := range m.bundles {
		for _, it := range b.Items {
			if it == item {
				token = t
				break
			}
		}
		if token != "" {
			break
		}
	}
	m.mu.RUnlock()
	if token == "" {
		return ErrNotFound
	}
	return m.RefreshStatus(token)
}

func (m *Manager) xmlPath(token string) string {
	return filepath.Join(m.xmlDir, token+".xml")
}

type xmlItem struct {
	Token string `xml:"token,attr"`
	Path  string `xml:"path,attr"`
	Size  int64  `xml:"size,attr"`
}

type xmlBundle struct {
	XMLName  xml.Name  `xml:"Bundle"`
	Token    string    `xml:"token,attr"`
	Name     string    `xml:"name,attr"`
	Target   string    `xml:"target,attr"`
	Status   string    `xml:"status,attr"`
	Priority int       `xml:"priority,attr"`
	Items    []xmlItem `xml:"Item"`
}

// save writes the bundle's XML state via tmp+rename, matching
// Bundle.cpp's save() contract: readers never observe a half-written file.
func (m *Manager) save(b *Bundle) error {
	doc := xmlBundle{
		Token:    b.Token,
		Name:     b.Name,
		Target:   b.Target,
		Status:   b.Status.String(),
		Priority: int(b.Priority),
	}
	for _, it := range b.Items {
		doc.Items = append(doc.Items, xmlItem{Token: it.Token, Path: it.Target, Size: it.Size})
	}

	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	finalPath := m.xmlPath(b.Token)
	tmpPath := finalPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
