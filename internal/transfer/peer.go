package transfer

import (
	"bufio"

	"github.com/airdcpp-go/core/internal/logger"
	"github.com/airdcpp-go/core/internal/socket"
)

// Peer owns one peer connection's socket and identity after the ADC/NMDC
// handshake has completed, the way a peerconn.Peer owns a net.Conn plus
// reader/writer goroutines after a BT handshake. Here there is no separate
// reader/writer goroutine pair: the wire codec (internal/adc, internal/nmdc)
// frames whole lines rather than a binary message stream, so Connection
// reads/writes directly against Conn inside its own single-owner loop.
type Peer struct {
	CID     string // ADC client ID, or the NMDC nick for NMDC peers
	Nick    string
	Address string

	conn socket.Conn
	log  logger.Logger

	closeC  chan struct{}
	closedC chan struct{}
}

// NewPeer wraps an already-connected socket with no pending handshake
// bytes buffered (the conn's Read/Write go straight to the kernel).
func NewPeer(cid, nick, address string, conn socket.Conn) *Peer {
	return &Peer{
		CID:     cid,
		Nick:    nick,
		Address: address,
		conn:    conn,
		log:     logger.New("peer <- " + nick),
		closeC:  make(chan struct{}),
		closedC: make(chan struct{}),
	}
}

// NewPeerFromHandshake wraps conn after its peer-to-peer handshake
// (MyNick/Lock-Key for NMDC, SUP/INF for ADC) was read through br: any
// bytes br buffered past the last handshake line belong to the file
// stream that follows and must not be dropped, so Peer's subsequent raw
// reads go through the same handshakeConn wrapper rather than directly
// against conn.
func NewPeerFromHandshake(cid, nick, address string, conn socket.Conn, br *bufio.Reader) *Peer {
	return NewPeer(cid, nick, address, wrapHandshake(conn, br))
}

func (p *Peer) String() string { return p.Nick + " (" + p.Address + ")" }

func (p *Peer) Logger() logger.Logger { return p.log }

func (p *Peer) Conn() socket.Conn { return p.conn }

// Close shuts down the underlying socket and waits for any in-flight
// segment transfer on this peer to notice and unwind, mirroring the
// teacher's close/closedC handshake between Peer.Close and Peer.Run.
func (p *Peer) Close() {
	select {
	case <-p.closeC:
		// already closing
	default:
		close(p.closeC)
	}
	p.conn.Close()
	<-p.closedC
}

// CloseRequested is closed once Close has been called; the Connection loop
// driving this peer selects on it to unwind promptly, then calls MarkDone.
func (p *Peer) CloseRequested() <-chan struct{} { return p.closeC }

// MarkDone releases the second half of Close's handshake once the
// Connection loop driving this peer has finished unwinding.
func (p *Peer) MarkDone() { close(p.closedC) }
