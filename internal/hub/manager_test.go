package hub

import (
	"context"
	"testing"
	"time"

	"github.com/airdcpp-go/core/internal/socket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingTransport never completes Dial, so Run just waits on ctx/stop;
// enough to exercise Manager's registry without a real socket.
type blockingTransport struct{}

func (blockingTransport) Dial(ctx context.Context, addr string) (socket.Conn, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
func (blockingTransport) Handshake(ctx context.Context, conn socket.Conn) error { return nil }
func (blockingTransport) ReadLine(conn socket.Conn) (string, error)             { return "", nil }
func (blockingTransport) WriteLine(conn socket.Conn, line string) error          { return nil }
func (blockingTransport) ParseEvent(line string) Event                          { return Event{} }
func (blockingTransport) FormatSearch(term, tthOnly string) string              { return "" }
func (blockingTransport) FormatResult(to, virtualPath string, size int64, tth string) string {
	return ""
}

func TestManagerAddRejectsDuplicateAddress(t *testing.T) {
	m := NewManager()
	defer m.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := m.Add(ctx, "hub.example:411", blockingTransport{}, 30, nil, nil)
	require.NoError(t, err)

	_, err = m.Add(ctx, "hub.example:411", blockingTransport{}, 30, nil, nil)
	assert.Error(t, err)
}

func TestManagerRemoveStopsAndUnregisters(t *testing.T) {
	m := NewManager()
	defer m.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := m.Add(ctx, "hub.example:411", blockingTransport{}, 30, nil, nil)
	require.NoError(t, err)

	m.Remove("hub.example:411")
	_, ok := m.Get("hub.example:411")
	assert.False(t, ok)

	select {
	case <-c.stop:
	case <-time.After(time.Second):
		t.Fatal("expected Remove to stop the client")
	}
}

func TestManagerConnectedOnlyReturnsNormalStateHubs(t *testing.T) {
	m := NewManager()
	c := New("hub.example:411", blockingTransport{}, 30)
	m.hubs["hub.example:411"] = c
	assert.Empty(t, m.Connected())

	require.NoError(t, c.setState(StateIdentify))
	require.NoError(t, c.setState(StateVerify))
	require.NoError(t, c.setState(StateNormal))
	assert.Len(t, m.Connected(), 1)
}
