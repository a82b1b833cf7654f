package transfer

import (
	"bufio"
	"errors"
	"io"

	"github.com/airdcpp-go/core/internal/socket"
)

// ErrOwnConnection is returned by the caller wiring up an accepted peer
// connection when the remote CID matches our own.
var ErrOwnConnection = errors.New("transfer: dropped own connection")

// readWriter composes a buffered line reader with the underlying socket's
// writer, so the peer handshake (MyNick/Lock or SUP/INF, line-oriented) and
// the subsequent binary file stream (raw byte copies) can share one
// connection without either side re-wrapping it — adapted from
// btconn.readWriter, which does the same for an
// encryption-negotiated io.ReadWriter pair.
type readWriter struct {
	io.Reader
	io.Writer
}

// handshakeConn wraps a socket.Conn so the line-based handshake reads
// through a *bufio.Reader (which may buffer bytes past the last handshake
// line) while later binary reads still see those buffered bytes first,
// exactly the hazard an rwConn exists to avoid by never letting
// two different readers observe the same connection independently.
type handshakeConn struct {
	socket.Conn
	rw io.ReadWriter
}

// wrapHandshake returns a connection whose Read/Write go through br/bw
// instead of conn directly, so bytes buffered by the handshake's line
// reader are not lost once the caller switches to reading a raw segment
// stream.
func wrapHandshake(conn socket.Conn, br *bufio.Reader) *handshakeConn {
	return &handshakeConn{Conn: conn, rw: readWriter{Reader: br, Writer: conn}}
}

func (c *handshakeConn) Read(p []byte) (int, error)  { return c.rw.Read(p) }
func (c *handshakeConn) Write(p []byte) (int, error) { return c.rw.Write(p) }
