// Package throttle implements the token-bucket bandwidth limiter shared by
// every upload and download connection, ported from
// ThrottleManager.cpp: two independent buckets (up/down), refilled once a
// second, with callers blocking in 250ms slices rather than sleeping for
// an arbitrary duration so a config change or shutdown is noticed quickly.
package throttle

import (
	"sync"
	"time"
)

// waitSlice is the polling granularity a blocked caller retries at,
// matching ThrottleManager.cpp's 250ms condition-variable wait.
const waitSlice = 250 * time.Millisecond

// Limiter is one direction's (upload or download) token bucket.
type Limiter struct {
	mu        sync.Mutex
	limitBps  int64 // 0 means unlimited
	available int64
	notify    chan struct{} // closed and replaced every refill/SetLimit

	stop chan struct{}
}

// NewLimiter creates a limiter with limitBytesPerSec == 0 meaning
// unthrottled. Call Stop to halt its internal refill ticker.
func NewLimiter(limitBytesPerSec int64) *Limiter {
	l := &Limiter{
		limitBps:  limitBytesPerSec,
		available: limitBytesPerSec,
		notify:    make(chan struct{}),
		stop:      make(chan struct{}),
	}
	go l.refillLoop()
	return l
}

func (l *Limiter) refillLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			if l.limitBps > 0 {
				l.available = l.limitBps
			}
			l.wakeLocked()
			l.mu.Unlock()
		case <-l.stop:
			return
		}
	}
}

// wakeLocked releases every Acquire call currently waiting. Caller holds l.mu.
func (l *Limiter) wakeLocked() {
	close(l.notify)
	l.notify = make(chan struct{})
}

// SetLimit changes the bytes/sec cap; 0 disables throttling.
func (l *Limiter) SetLimit(limitBytesPerSec int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limitBps = limitBytesPerSec
	l.wakeLocked()
}

// Stop halts the refill ticker goroutine.
func (l *Limiter) Stop() { close(l.stop) }

// Acquire blocks until up to want bytes are available this second and
// returns how many were actually granted (<= want, and 0 only if cancel
// fires first). It wakes at least every waitSlice even with no refill, so
// callers polling for shutdown never stall longer than that.
func (l *Limiter) Acquire(want int64, cancel <-chan struct{}) int64 {
	for {
		l.mu.Lock()
		if l.limitBps == 0 {
			l.mu.Unlock()
			return want
		}
		if l.available > 0 {
			grant := want
			if grant > l.available {
				grant = l.available
			}
			l.available -= grant
			l.mu.Unlock()
			return grant
		}
		wake := l.notify
		l.mu.Unlock()

		select {
		case <-wake:
		case <-time.After(waitSlice):
		case <-cancel:
			return 0
		}
	}
}

// Manager owns the up/down limiter pair for one core instance.
type Manager struct {
	Up   *Limiter
	Down *Limiter
}

func NewManager(upBps, downBps int64) *Manager {
	return &Manager{Up: NewLimiter(upBps), Down: NewLimiter(downBps)}
}

func (m *Manager) Stop() {
	m.Up.Stop()
	m.Down.Stop()
}
