package nmdc

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/airdcpp-go/core/internal/hub"
	"github.com/airdcpp-go/core/internal/socket"
)

// Transport dials an NMDC hub and drives its Lock/Key handshake, the
// NMDC-specific implementation of hub.Transport. Unlike ADC's
// space-framed lines, NMDC frames every command with a trailing '|'
// byte, so ReadLine splits on that delimiter instead of '\n'.
type Transport struct {
	Nick string
	Enc  Encoding

	mu      sync.Mutex
	readers map[socket.Conn]*bufio.Reader
}

// NewTransport builds an NMDC transport identifying as nick, decoding
// incoming lines with enc.
func NewTransport(nick string, enc Encoding) *Transport {
	return &Transport{Nick: nick, Enc: enc, readers: make(map[socket.Conn]*bufio.Reader)}
}

func (t *Transport) Dial(ctx context.Context, addr string) (socket.Conn, error) {
	conn, err := socket.Dial(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.readers[conn] = bufio.NewReader(conn)
	t.mu.Unlock()
	return conn, nil
}

// Handshake performs NMDC's $Lock/$Key exchange followed by $ValidateNick,
// the minimal path to a hub accepting the connection into its user list.
// Extended-protocol negotiation via $Supports is intentionally skipped: every
// command this client speaks works over the base protocol.
func (t *Transport) Handshake(ctx context.Context, conn socket.Conn) error {
	line, err := t.ReadLine(conn)
	if err != nil {
		return fmt.Errorf("nmdc: reading $Lock: %w", err)
	}
	lock, err := ParseLock(line)
	if err != nil {
		return err
	}
	if err := t.writeLine(conn, FormatKey(lock)); err != nil {
		return err
	}
	return t.writeLine(conn, "$ValidateNick "+t.Nick)
}

// ReadLine reads the next '|'-terminated NMDC command from conn's buffered
// reader, decoding it from the configured legacy codepage, and reuses the
// same *bufio.Reader across calls the same way the ADC transport does.
func (t *Transport) ReadLine(conn socket.Conn) (string, error) {
	t.mu.Lock()
	r, ok := t.readers[conn]
	if !ok {
		r = bufio.NewReader(conn)
		t.readers[conn] = r
	}
	t.mu.Unlock()

	raw, err := r.ReadBytes('|')
	if err != nil {
		t.mu.Lock()
		delete(t.readers, conn)
		t.mu.Unlock()
		return "", err
	}
	if n := len(raw); n > 0 && raw[n-1] == '|' {
		raw = raw[:n-1]
	}
	return Decode(raw, t.Enc), nil
}

func (t *Transport) writeLine(conn socket.Conn, line string) error {
	_, err := conn.Write(append(Encode(line, t.Enc), '|'))
	return err
}

// WriteLine exposes writeLine for hub.Transport's outbound search/reply
// traffic, sent from NORMAL state once Handshake has already returned.
func (t *Transport) WriteLine(conn socket.Conn, line string) error {
	return t.writeLine(conn, line)
}

// FormatSearch implements hub.Transport. Outgoing searches are always sent
// passive (routed back to us through the hub as $To:), since this
// transport has no listening address of its own to advertise.
func (t *Transport) FormatSearch(term, tthOnly string) string {
	pattern := term
	if tthOnly != "" {
		pattern = "TTH:" + tthOnly
	}
	return FormatSearch(SearchRequest{Passive: true, Nick: t.Nick, Pattern: pattern})
}

// FormatResult implements hub.Transport, wrapping the $SR payload in a
// $To: envelope addressed to the originating passive searcher's nick.
func (t *Transport) FormatResult(to, virtualPath string, size int64, tth string) string {
	sr := FormatSearchResult(SearchResult{
		Nick: t.Nick, FilePath: virtualPath, Size: size, FreeSlots: 1, TotalSlots: 1, TTH: tth,
	})
	return fmt.Sprintf("$To: %s From: %s $%s", to, t.Nick, sr)
}

// ParseEvent implements hub.Transport, decoding one NORMAL-state NMDC line
// into the protocol-neutral shape hub.Client dispatches on.
func (t *Transport) ParseEvent(line string) hub.Event {
	m := Parse(line)
	switch m.Type {
	case "Search":
		req, err := ParseSearch(m.Raw)
		if err != nil {
			return hub.Event{Kind: hub.EventOther}
		}
		from := req.Nick
		if from == "" {
			from = req.Address
		}
		if strings.HasPrefix(req.Pattern, "TTH:") {
			return hub.Event{Kind: hub.EventSearch, From: from, TTHOnly: strings.TrimPrefix(req.Pattern, "TTH:")}
		}
		return hub.Event{Kind: hub.EventSearch, From: from, SearchTerm: req.Pattern}
	case "SR":
		res, err := ParseSearchResult(m.Raw)
		if err != nil {
			return hub.Event{Kind: hub.EventOther}
		}
		return hub.Event{
			Kind: hub.EventSearchResult,
			From: res.Nick,
			Result: hub.SearchResultEvent{
				Nick: res.Nick, VirtualPath: res.FilePath, Size: res.Size, TTH: res.TTH,
			},
		}
	case "ConnectToMe":
		req, err := ParseConnectToMe(m.Raw)
		if err != nil {
			return hub.Event{Kind: hub.EventOther}
		}
		// The payload names the target nick (us), not the sender; the
		// sender's identity only arrives over the new peer connection's own
		// $MyNick handshake.
		return hub.Event{Kind: hub.EventConnectToMe, Address: req.Address}
	case "RevConnectToMe":
		req, err := ParseRevConnectToMe(m.Raw)
		if err != nil {
			return hub.Event{Kind: hub.EventOther}
		}
		return hub.Event{Kind: hub.EventRevConnectToMe, From: req.From}
	case "To:":
		if idx := strings.IndexByte(m.Raw, '$'); idx >= 0 {
			return t.ParseEvent(m.Raw[idx+1:])
		}
	}
	return hub.Event{Kind: hub.EventOther}
}
