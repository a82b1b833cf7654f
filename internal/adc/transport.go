package adc

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/airdcpp-go/core/internal/hub"
	"github.com/airdcpp-go/core/internal/socket"
)

// Transport dials an ADC hub and drives its handshake up to the hub
// sending BINF for every connected user, the concrete implementation
// hub.Client.Run drives generically through the hub.Transport interface.
type Transport struct {
	CID  string
	Nick string

	mu      sync.Mutex
	readers map[socket.Conn]*bufio.Reader
	sid     string // assigned by the hub's ISID during Handshake
}

// NewTransport builds an ADC transport that identifies as cid/nick during
// the handshake.
func NewTransport(cid, nick string) *Transport {
	return &Transport{CID: cid, Nick: nick, readers: make(map[socket.Conn]*bufio.Reader)}
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

// Handshake performs ADC's supports/identify exchange: announce protocol
// support (HSUP), wait for the hub's SUP/SID/INF, then announce our own
// INF. Full extension negotiation is out of scope; this establishes just
// enough state for NORMAL-state line traffic to begin.
func (t *Transport) Handshake(ctx context.Context, conn socket.Conn) error {
	if err := t.writeLine(conn, "HSUP ADBASE ADTIGR"); err != nil {
		return err
	}
	line, err := t.ReadLine(conn)
	if err != nil {
		return fmt.Errorf("adc: reading ISUP: %w", err)
	}
	sup, err := Parse(line)
	if err != nil || sup.Cmd != "SUP" {
		return fmt.Errorf("adc: expected ISUP, got %q", line)
	}

	line, err = t.ReadLine(conn)
	if err != nil {
		return fmt.Errorf("adc: reading ISID: %w", err)
	}
	sidMsg, err := Parse(line)
	if err != nil || sidMsg.Cmd != "SID" {
		return fmt.Errorf("adc: expected ISID, got %q", line)
	}
	t.mu.Lock()
	if len(sidMsg.Params) > 0 {
		t.sid = sidMsg.Params[0]
	}
	t.mu.Unlock()

	inf := &Message{Cmd: "INF", Header: 'B', From: t.CID, Params: []string{"ID" + t.CID, "NI" + t.Nick}}
	return t.writeLine(conn, inf.Encode())
}

// SID returns the session ID the hub assigned during Handshake, used to
// address outgoing direct messages like RES; empty before Handshake runs.
func (t *Transport) SID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sid
}

// ReadLine reads the next '\n'-terminated ADC line from conn's buffered
// reader, reusing the same *bufio.Reader across calls so bytes read ahead
// during Handshake are not lost once the caller moves on to NORMAL-state
// traffic.
func (t *Transport) ReadLine(conn socket.Conn) (string, error) {
	t.mu.Lock()
	r, ok := t.readers[conn]
	if !ok {
		r = bufio.NewReader(conn)
		t.readers[conn] = r
	}
	t.mu.Unlock()

	line, err := r.ReadString('\n')
	if err != nil {
		t.mu.Lock()
		delete(t.readers, conn)
		t.mu.Unlock()
		return "", err
	}
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line, nil
}

func (t *Transport) writeLine(conn socket.Conn, line string) error {
	_, err := conn.Write([]byte(line + "\n"))
	return err
}

// WriteLine exposes writeLine for hub.Transport's outbound search/reply
// traffic, sent from NORMAL state once Handshake has already returned.
func (t *Transport) WriteLine(conn socket.Conn, line string) error {
	return t.writeLine(conn, line)
}

func (t *Transport) from() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sid != "" {
		return t.sid
	}
	return t.CID
}

// FormatSearch implements hub.Transport.
func (t *Transport) FormatSearch(term, tthOnly string) string {
	return NewSearch(t.from(), splitTerms(term), tthOnly).Encode()
}

// FormatResult implements hub.Transport.
func (t *Transport) FormatResult(to, virtualPath string, size int64, tth string) string {
	return NewResult(t.from(), to, virtualPath, size, tth).Encode()
}

func splitTerms(term string) []string {
	if term == "" {
		return nil
	}
	return strings.Fields(term)
}

// ParseEvent implements hub.Transport, decoding one NORMAL-state ADC line
// into the protocol-neutral shape hub.Client dispatches on.
func (t *Transport) ParseEvent(line string) hub.Event {
	m, err := Parse(line)
	if err != nil {
		return hub.Event{Kind: hub.EventOther}
	}
	switch m.Cmd {
	case "SCH":
		return hub.Event{Kind: hub.EventSearch, From: m.From, SearchTerm: m.Get("AN"), TTHOnly: m.Get("TR")}
	case "RES":
		size, _ := strconv.ParseInt(m.Get("SI"), 10, 64)
		return hub.Event{
			Kind: hub.EventSearchResult,
			From: m.From,
			Result: hub.SearchResultEvent{
				Nick: m.From, VirtualPath: m.Get("FN"), Size: size, TTH: m.Get("TR"),
			},
		}
	case "CTM":
		return hub.Event{Kind: hub.EventConnectToMe, From: m.From, Address: m.Get("PO"), Token: m.Get("TO")}
	case "RCM":
		return hub.Event{Kind: hub.EventRevConnectToMe, From: m.From, Token: m.Get("TO")}
	default:
		return hub.Event{Kind: hub.EventOther, From: m.From}
	}
}
