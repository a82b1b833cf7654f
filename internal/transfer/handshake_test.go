package transfer

import (
	"bufio"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeConn adapts a net.Conn from net.Pipe into socket.Conn for tests that
// don't need real TLS/SOCKS5 dialing.
type pipeConn struct{ net.Conn }

func (pipeConn) WaitReadable(timeout time.Duration) (bool, error) { return true, nil }

func TestHandshakeConnPreservesBufferedBytesAfterLineRead(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		server.Write([]byte("MyNick bob|FILEDATA"))
	}()

	br := bufio.NewReader(pipeConn{client})
	line, err := br.ReadString('|')
	require.NoError(t, err)
	assert.Equal(t, "MyNick bob|", line)

	peer := NewPeerFromHandshake("cidA", "bob", "addr", pipeConn{client}, br)
	buf := make([]byte, len("FILEDATA"))
	_, err = io.ReadFull(peer.conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "FILEDATA", string(buf))
}
