// Package hub drives one hub connection's lifecycle: PROTOCOL ->
// IDENTIFY -> VERIFY -> NORMAL -> DISCONNECTED, one goroutine running the
// connect/read loop with reconnect-with-backoff on disconnect. Outbound
// searches and replies are written to the socket from the caller's
// goroutine.
package hub

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/airdcpp-go/core/internal/logger"
	"github.com/airdcpp-go/core/internal/socket"
)

// State is a hub connection's lifecycle position.
type State int

const (
	StateProtocol State = iota
	StateIdentify
	StateVerify
	StateNormal
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateProtocol:
		return "PROTOCOL"
	case StateIdentify:
		return "IDENTIFY"
	case StateVerify:
		return "VERIFY"
	case StateNormal:
		return "NORMAL"
	case StateDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

var validEdges = map[State][]State{
	StateProtocol:     {StateIdentify, StateDisconnected},
	StateIdentify:     {StateVerify, StateDisconnected},
	StateVerify:       {StateNormal, StateDisconnected},
	StateNormal:       {StateDisconnected},
	StateDisconnected: {StateProtocol}, // a reconnect restarts the handshake
}

func canTransition(from, to State) bool {
	for _, next := range validEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ErrBanned marks a disconnect after which reconnecting is not attempted.
var ErrBanned = errors.New("hub: banned, not reconnecting")

// ErrNotConnected is returned by actions that need a live NORMAL-state
// connection (search, reply) while the client is mid-(re)connect.
var ErrNotConnected = errors.New("hub: not connected")

// Transport is the protocol-specific half of a hub connection (ADC or
// NMDC): dial, perform the handshake up to NORMAL, and read/write/decode
// framed lines. hub.Client owns the state machine, reconnect loop, and
// dispatch; the wire format lives in internal/adc and internal/nmdc.
type Transport interface {
	Dial(ctx context.Context, addr string) (socket.Conn, error)
	Handshake(ctx context.Context, conn socket.Conn) error
	ReadLine(conn socket.Conn) (string, error)
	WriteLine(conn socket.Conn, line string) error

	// ParseEvent decodes one NORMAL-state line into a protocol-neutral
	// Event; lines that aren't a search, result, or connect request come
	// back as EventOther.
	ParseEvent(line string) Event

	// FormatSearch encodes an outgoing search for this hub's dialect;
	// tthOnly, if non-empty, takes priority over term (a TTH-direct
	// lookup rather than a token search).
	FormatSearch(term, tthOnly string) string

	// FormatResult encodes a search-hit reply addressed to "to" (a CID
	// for ADC, a nick for NMDC).
	FormatResult(to, virtualPath string, size int64, tth string) string
}

// SearchLimiter caps outgoing search frequency per hub.
type SearchLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

func NewSearchLimiter(interval time.Duration) *SearchLimiter {
	return &SearchLimiter{interval: interval}
}

// Allow reports whether a search may be sent now, and if so records it.
func (l *SearchLimiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if time.Since(l.last) < l.interval {
		return false
	}
	l.last = time.Now()
	return true
}

// Client owns one hub connection's state and reconnect loop.
type Client struct {
	Address string
	transport Transport
	search    *SearchLimiter
	Roster    *Roster
	log       logger.Logger

	searchHandler  SearchHandler
	connectHandler ConnectHandler

	mu    sync.Mutex
	state State
	banned bool

	conn socket.Conn
	stop chan struct{}

	resultMu    sync.Mutex
	resultSinks map[chan<- Result]string // sink -> tth filter ("" = any)
}

// New constructs a hub client that has not yet connected.
func New(address string, transport Transport, searchInterval time.Duration) *Client {
	return &Client{
		Address:     address,
		transport:   transport,
		search:      NewSearchLimiter(searchInterval),
		Roster:      newRoster(),
		log:         logger.New("hub <- " + address),
		state:       StateProtocol,
		stop:        make(chan struct{}),
		resultSinks: make(map[chan<- Result]string),
	}
}

// SetSearchHandler installs the handler invoked for incoming search
// requests (SCH/$Search). Not safe to call once Run has started reading.
func (c *Client) SetSearchHandler(h SearchHandler) { c.searchHandler = h }

// SetConnectHandler installs the handler invoked for incoming CTM/RCM
// events. Not safe to call once Run has started reading.
func (c *Client) SetConnectHandler(h ConnectHandler) { c.connectHandler = h }

// Transport exposes the underlying protocol transport so a ConnectHandler
// can type-switch on *adc.Transport vs *nmdc.Transport when it needs to
// dial out and perform a peer-to-peer handshake in the matching dialect.
func (c *Client) Transport() Transport { return c.transport }

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(next State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !canTransition(c.state, next) {
		return &StateError{From: c.state, To: next}
	}
	c.state = next
	return nil
}

// StateError reports an illegal hub state transition.
type StateError struct{ From, To State }

func (e *StateError) Error() string {
	return "hub: invalid state transition " + e.From.String() + " -> " + e.To.String()
}

// Ban marks the hub as banned: Run will not reconnect after the next
// disconnect.
func (c *Client) Ban() {
	c.mu.Lock()
	c.banned = true
	c.mu.Unlock()
}

// Stop ends the connection loop permanently.
func (c *Client) Stop() { close(c.stop) }

// Run connects, performs the handshake, and stays connected with
// exponential backoff reconnects until Stop is called or the hub bans us.
func (c *Client) Run(ctx context.Context) error {
	backoff := time.Second
	const maxBackoff = 2 * time.Minute

	for {
		select {
		case <-c.stop:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := c.connectOnce(ctx)
		_ = c.setState(StateDisconnected)
		c.Roster = newRoster()

		c.mu.Lock()
		banned := c.banned
		c.mu.Unlock()
		if banned {
			return ErrBanned
		}
		if err == nil {
			// Clean disconnect (e.g. hub restart); reset backoff and retry soon.
			backoff = time.Second
		}

		jitter := time.Duration(rand.Int63n(int64(backoff) / 2))
		wait := backoff + jitter
		select {
		case <-time.After(wait):
		case <-c.stop:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
		if err := c.setState(StateProtocol); err != nil {
			return err
		}
	}
}

// dispatch routes one parsed NORMAL-state event to the handler core wired
// in, or fans a search result out to every pending Search call waiting on
// this hub.
func (c *Client) dispatch(ev Event) {
	switch ev.Kind {
	case EventSearch:
		if c.searchHandler != nil {
			c.searchHandler.HandleSearch(c, ev)
		}
	case EventSearchResult:
		c.resultMu.Lock()
		for sink, tthFilter := range c.resultSinks {
			if tthFilter != "" && tthFilter != ev.Result.TTH {
				continue
			}
			select {
			case sink <- Result{Nick: ev.Result.Nick, VirtualPath: ev.Result.VirtualPath, Size: ev.Result.Size, TTH: ev.Result.TTH}:
			default:
			}
		}
		c.resultMu.Unlock()
	case EventConnectToMe:
		if c.connectHandler != nil {
			c.connectHandler.HandleConnectToMe(c, ev)
		}
	case EventRevConnectToMe:
		if c.connectHandler != nil {
			c.connectHandler.HandleRevConnectToMe(c, ev)
		}
	}
}

// Search implements hub.Searcher: it sends one query over this hub
// connection and forwards every matching result event to resultsCh until
// ctx is done, then closes it. When the client is not in NORMAL state or
// the search is rate limited, it returns an error at once and leaves
// resultsCh open.
func (c *Client) Search(ctx context.Context, query, tthOnly string, resultsCh chan<- Result) error {
	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()
	if state != StateNormal || conn == nil {
		return ErrNotConnected
	}
	if !c.search.Allow() {
		return fmt.Errorf("hub: search rate limited for %s", c.Address)
	}

	c.resultMu.Lock()
	c.resultSinks[resultsCh] = tthOnly
	c.resultMu.Unlock()
	defer func() {
		c.resultMu.Lock()
		delete(c.resultSinks, resultsCh)
		c.resultMu.Unlock()
		close(resultsCh)
	}()

	if err := c.transport.WriteLine(conn, c.transport.FormatSearch(query, tthOnly)); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

// Reply answers an incoming search (Event.From) with one hit.
func (c *Client) Reply(to, virtualPath string, size int64, tth string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return c.transport.WriteLine(conn, c.transport.FormatResult(to, virtualPath, size, tth))
}

func (c *Client) connectOnce(ctx context.Context) error {
	conn, err := c.transport.Dial(ctx, c.Address)
	if err != nil {
		return err
	}
	defer conn.Close()
	c.conn = conn

	if err := c.setState(StateIdentify); err != nil {
		return err
	}
	if err := c.transport.Handshake(ctx, conn); err != nil {
		return err
	}
	if err := c.setState(StateVerify); err != nil {
		return err
	}
	if err := c.setState(StateNormal); err != nil {
		return err
	}

	c.log.Infoln("connected, entering NORMAL state")
	for {
		line, err := c.transport.ReadLine(conn)
		if err != nil {
			return err
		}
		c.dispatch(c.transport.ParseEvent(line))
		select {
		case <-c.stop:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}
