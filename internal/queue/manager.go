package queue

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/airdcpp-go/core/internal/logger"
	"github.com/airdcpp-go/core/internal/tth"
	"github.com/boltdb/bolt"
	uuid "github.com/satori/go.uuid"
)

var tokensBucket = []byte("queue_tokens")

var (
	ErrItemNotFound = errors.New("queue: item not found")
	ErrDuplicate    = errors.New("queue: file already queued")
)

// Manager owns every queued Item and a boltdb-backed token->target index
// for O(1) reload on startup.
type Manager struct {
	mu    sync.RWMutex
	items map[string]*Item // token -> item
	byTTH map[tth.Value][]*Item

	db  *bolt.DB
	log logger.Logger
}

// Open creates or reopens the queue index database at dbPath.
func Open(dbPath string) (*Manager, error) {
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
		items: make(map[string]*Item),
		byTTH: make(map[tth.Value][]*Item),
		db:    db,
		log:   logger.New("queue"),
	}, nil
}

func (m *Manager) Close() error { return m.db.Close() }

// AddFile queues target for download, rejecting an already-queued TTH at
// the same target path. Callers create one Item per file even when the
// file belongs to a bundle; internal/bundle groups items by target prefix.
func (m *Manager) AddFile(target string, size int64, t tth.Value, prio Priority) (*Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.byTTH[t] {
		if existing.Target == target {
			return nil, ErrDuplicate
		}
	}

	token := uuid.NewV4().String()
	item := NewItem(token, target, size, t, prio)
	item.Status = StatusQueued
	m.items[token] = item
	m.byTTH[t] = append(m.byTTH[t], item)

	if err := m.persistIndex(token, target); err != nil {
		m.log.Errorln("persist queue index for", token, ":", err)
	}
	return item, nil
}

func (m *Manager) persistIndex(token, target string) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(tokensBucket).Put([]byte(token), []byte(target))
	})
}

// Remove drops an item from the queue (used when its owning bundle is
// removed, or on per-file removal).
func (m *Manager) Remove(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[token]
	if !ok {
		return ErrItemNotFound
	}
	delete(m.items, token)
	list := m.byTTH[item.TTH]
	for i, cand := range list {
		if cand == item {
			m.byTTH[item.TTH] = append(list[:i], list[i+1:]...)
			break
		}
	}
	return m.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(tokensBucket).Delete([]byte(token))
	})
}

func (m *Manager) Get(token string) (*Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.items[token]
	if !ok {
		return nil, ErrItemNotFound
	}
	return item, nil
}

// IsQueued reports whether t is already queued, used to suppress duplicate
// search-result auto-adds.
func (m *Manager) IsQueued(t tth.Value) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byTTH[t]) > 0
}

// NextForSource returns the highest-priority incomplete item cid is known
// to source, breaking ties by oldest Added time.
func (m *Manager) NextForSource(cid string) *Item {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var candidates []*Item
	for _, item := range m.items {
		if item.Status != StatusQueued && item.Status != StatusRunning {
			continue
		}
		if item.IsComplete() {
			continue
		}
		item.mu.Lock()
		_, known := item.sources[cid]
		item.mu.Unlock()
		if known {
			candidates = append(candidates, item)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].Added.Before(candidates[j].Added)
	})
	return candidates[0]
}

// SetPriority updates an item's priority, disabling auto-priority for it
// (a user override always wins over the rebalancer).
func (m *Manager) SetPriority(token string, prio Priority) error {
	m.mu.RLock()
	item, ok := m.items[token]
	m.mu.RUnlock()
	if !ok {
		return ErrItemNotFound
	}
	item.mu.Lock()
	item.Priority = prio
	item.AutoPrio = false
	item.mu.Unlock()
	return nil
}

// All returns every queued item, for bundle aggregation and the UI listing.
func (m *Manager) All() []*Item {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Item, 0, len(m.items))
	for _, item := range m.items {
		out = append(out, item)
	}
	return out
}
