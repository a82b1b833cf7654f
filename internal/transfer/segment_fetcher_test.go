package transfer

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChunkGetter struct {
	content []byte
	calls   int
}

func (g *fakeChunkGetter) GetChunk(ctx context.Context, path string, start, length int64, w io.Writer) error {
	g.calls++
	_, err := w.Write(g.content[start : start+length])
	return err
}

func TestSegmentFetcherAssemblesChunksInOrder(t *testing.T) {
	content := bytes.Repeat([]byte("y"), 10000)
	getter := &fakeChunkGetter{content: content}
	peer := NewPeer("cidB", "nick", "1.2.3.4:412", nil)
	f := NewSegmentFetcher(peer, getter, "/some/file.bin", 1024)

	var buf bytes.Buffer
	require.NoError(t, f.Fetch(context.Background(), 500, 3000, &buf))
	assert.Equal(t, content[500:3500], buf.Bytes())
	assert.Greater(t, getter.calls, 1)
}

func TestSegmentFetcherStopsOnPeerClose(t *testing.T) {
	getter := &fakeChunkGetter{content: bytes.Repeat([]byte("z"), 10000)}
	peer := NewPeer("cidC", "nick", "addr", nil)
	f := NewSegmentFetcher(peer, getter, "/f", 1024)

	close(peer.closeC)
	var buf bytes.Buffer
	err := f.Fetch(context.Background(), 0, 2048, &buf)
	assert.Error(t, err)
}
