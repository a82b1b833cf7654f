package hub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/airdcpp-go/core/internal/logger"
)

// Manager owns every configured hub connection: one mutex-protected
// registry keyed by address, with each entry driving its own goroutine
// (Client.Run).
type Manager struct {
	mu   sync.RWMutex
	hubs map[string]*Client

	log logger.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewManager returns an empty hub registry.
func NewManager() *Manager {
	return &Manager{
		hubs: make(map[string]*Client),
		log:  logger.New("hub-manager"),
	}
}

// Add registers a hub and starts its connect/reconnect loop in a new
// goroutine, returning an error if the address is already registered.
// search and connect, if non-nil, receive this hub's incoming SCH/$Search
// and CTM/RCM events respectively.
func (m *Manager) Add(ctx context.Context, address string, transport Transport, searchInterval int, search SearchHandler, connect ConnectHandler) (*Client, error) {
	m.mu.Lock()
	if _, exists := m.hubs[address]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("hub: %s is already connected", address)
	}
	c := New(address, transport, time.Duration(searchInterval)*time.Second)
	c.SetSearchHandler(search)
	c.SetConnectHandler(connect)
	m.hubs[address] = c
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := c.Run(ctx); err != nil && err != context.Canceled {
			m.log.Warningln("hub", address, "stopped:", err)
		}
	}()
	return c, nil
}

// Remove stops and unregisters a hub.
func (m *Manager) Remove(address string) {
	m.mu.Lock()
	c, ok := m.hubs[address]
	delete(m.hubs, address)
	m.mu.Unlock()
	if ok {
		c.Stop()
	}
}

// Get returns the client for address, if registered.
func (m *Manager) Get(address string) (*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.hubs[address]
	return c, ok
}

// All returns every registered hub client.
func (m *Manager) All() []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Client, 0, len(m.hubs))
	for _, c := range m.hubs {
		out = append(out, c)
	}
	return out
}

// Connected returns every hub currently past the handshake; auto search and
// manual search both only fan out to hubs in NORMAL state.
func (m *Manager) Connected() []*Client {
	var out []*Client
	for _, c := range m.All() {
		if c.State() == StateNormal {
			out = append(out, c)
		}
	}
	return out
}

// Close stops every registered hub and waits for their goroutines to
// return.
func (m *Manager) Close() {
	for _, c := range m.All() {
		c.Stop()
	}
	m.wg.Wait()
}
