// Package autosearch implements scheduled, unattended searching: a 1Hz
// scheduler tick fires due items, each search collects results for a
// window before a pick step selects the best candidate, and items expire
// after a configured lifetime.
package autosearch

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/airdcpp-go/core/internal/logger"
)

// resultWindow is how long a fired search waits for results before the
// pick step runs.
const resultWindow = 2 * time.Second

// Priority splits items into two scheduling queues: items explicitly
// marked recent run more eagerly than the normal queue.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityRecent
)

// Item is one scheduled auto-search definition.
type Item struct {
	Token      string
	SearchTerm string
	Priority   Priority
	Interval   time.Duration
	Expires    time.Time // zero means never

	mu      sync.Mutex
	lastRun time.Time
	enabled bool
}

func NewItem(token, term string, prio Priority, interval time.Duration, expires time.Time) *Item {
	return &Item{Token: token, SearchTerm: term, Priority: prio, Interval: interval, Expires: expires, enabled: true}
}

func (it *Item) due(now time.Time) bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	if !it.enabled {
		return false
	}
	if !it.Expires.IsZero() && now.After(it.Expires) {
		return false
	}
	return now.Sub(it.lastRun) >= it.Interval
}

func (it *Item) markRun(now time.Time) {
	it.mu.Lock()
	it.lastRun = now
	it.mu.Unlock()
}

func (it *Item) expired(now time.Time) bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	return !it.Expires.IsZero() && now.After(it.Expires)
}

// Candidate is one search hit collected during an item's result window.
type Candidate struct {
	DirectoryName string
	PeerCID       string
	Proper        bool // a "PROPER"/"REPACK" release, preferred over the original
}

// Searcher performs one fired auto-search, publishing hits to resultsCh
// until ctx (bounded by resultWindow) is done.
type Searcher interface {
	Search(ctx context.Context, term string, resultsCh chan<- Candidate)
}

// Scheduler owns the recent/normal item queues and drives the 1Hz tick.
type Scheduler struct {
	searcher Searcher
	log      logger.Logger

	mu     sync.Mutex
	recent []*Item
	normal []*Item

	OnPick func(item *Item, picked Candidate, peerCount int)
}

func NewScheduler(searcher Searcher) *Scheduler {
	return &Scheduler{searcher: searcher, log: logger.New("autosearch")}
}

// Add registers an item in its priority's queue.
func (s *Scheduler) Add(it *Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if it.Priority == PriorityRecent {
		s.recent = append(s.recent, it)
	} else {
		s.normal = append(s.normal, it)
	}
}

// Remove drops an item by token from whichever queue holds it.
func (s *Scheduler) Remove(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = removeToken(s.recent, token)
	s.normal = removeToken(s.normal, token)
}

func removeToken(items []*Item, token string) []*Item {
	out := items[:0]
	for _, it := range items {
		if it.Token != token {
			out = append(out, it)
		}
	}
	return out
}

// Run ticks once a second, firing due items (recent queue drained first
// each tick) until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	s.recent = dropExpired(s.recent, now, s.log)
	s.normal = dropExpired(s.normal, now, s.log)
	due := collectDue(s.recent, now)
	due = append(due, collectDue(s.normal, now)...)
	s.mu.Unlock()

	for _, it := range due {
		it.markRun(now)
		go s.fire(ctx, it)
	}
}

func dropExpired(items []*Item, now time.Time, log logger.Logger) []*Item {
	out := items[:0]
	for _, it := range items {
		if it.expired(now) {
			log.Infoln("auto-search", it.Token, "expired")
			continue
		}
		out = append(out, it)
	}
	return out
}

func collectDue(items []*Item, now time.Time) []*Item {
	var due []*Item
	for _, it := range items {
		if it.due(now) {
			due = append(due, it)
		}
	}
	return due
}

func (s *Scheduler) fire(ctx context.Context, it *Item) {
	windowCtx, cancel := context.WithTimeout(ctx, resultWindow)
	defer cancel()

	resultsCh := make(chan Candidate, 64)
	done := make(chan struct{})
	go func() {
		s.searcher.Search(windowCtx, it.SearchTerm, resultsCh)
		close(done)
	}()

	var candidates []Candidate
collect:
	for {
		select {
		case c, ok := <-resultsCh:
			if !ok {
				break collect
			}
			candidates = append(candidates, c)
		case <-done:
			// Take whatever the searcher buffered before returning.
			for {
				select {
				case c, ok := <-resultsCh:
					if !ok {
						break collect
					}
					candidates = append(candidates, c)
				default:
					break collect
				}
			}
		case <-windowCtx.Done():
			break collect
		}
	}

	picked, peerCount := pick(candidates)
	if s.OnPick != nil && peerCount > 0 {
		s.OnPick(it, picked, peerCount)
	}
}

// pick groups candidates by directory name, prefers proper/repack releases,
// and picks the group with the most distinct offering peers.
func pick(candidates []Candidate) (Candidate, int) {
	if len(candidates) == 0 {
		return Candidate{}, 0
	}

	type group struct {
		name    string
		proper  bool
		peers   map[string]struct{}
		example Candidate
	}
	groups := make(map[string]*group)
	for _, c := range candidates {
		key := strings.ToLower(c.DirectoryName)
		g, ok := groups[key]
		if !ok {
			g = &group{name: c.DirectoryName, peers: make(map[string]struct{}), example: c}
			groups[key] = g
		}
		g.peers[c.PeerCID] = struct{}{}
		if c.Proper {
			g.proper = true
			g.example = c
		}
	}

	var ordered []*group
	for _, g := range groups {
		ordered = append(ordered, g)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].proper != ordered[j].proper {
			return ordered[i].proper
		}
		return len(ordered[i].peers) > len(ordered[j].peers)
	})

	best := ordered[0]
	return best.example, len(best.peers)
}
