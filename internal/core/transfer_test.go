package core

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePeerUploadIO implements peerUploadIO directly for a single
// request/reply pair, bypassing any real ADC/NMDC wire framing.
type fakePeerUploadIO struct {
	replied []byte
}

func (f *fakePeerUploadIO) ReadRequest() (string, int64, int64, error) {
	return "", 0, 0, io.EOF
}

func (f *fakePeerUploadIO) ReplyChunk(path string, start, length int64, r io.Reader) error {
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	f.replied = buf
	return nil
}

func TestServeUploadRangeRejectsOutOfBoundsRequest(t *testing.T) {
	c, cleanup := newTestCore(t)
	defer cleanup()

	base := t.TempDir()
	shareDir := filepath.Join(base, "shared")
	require.NoError(t, os.MkdirAll(shareDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(shareDir, "a.txt"), []byte("hello world"), 0o644))
	<-c.Share.AddRoot(shareDir, nil)

	upload := &fakePeerUploadIO{}
	err := c.serveUploadRange(context.Background(), "peer1", upload, "/shared/a.txt", 5, 100)
	assert.Error(t, err)
}

func TestServeUploadRangeStreamsExactSegmentToReplier(t *testing.T) {
	c, cleanup := newTestCore(t)
	defer cleanup()

	base := t.TempDir()
	shareDir := filepath.Join(base, "shared")
	require.NoError(t, os.MkdirAll(shareDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(shareDir, "a.txt"), []byte("hello world"), 0o644))
	<-c.Share.AddRoot(shareDir, nil)

	upload := &fakePeerUploadIO{}
	err := c.serveUploadRange(context.Background(), "peer1", upload, "/shared/a.txt", 6, 5)
	require.NoError(t, err)
	assert.True(t, bytes.Equal([]byte("world"), upload.replied))
}
