package transfer

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/airdcpp-go/core/internal/queue"
	"github.com/airdcpp-go/core/internal/tth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	content []byte
}

func (f *fakeSource) FetchSegment(ctx context.Context, start, length int64, w io.Writer) error {
	_, err := w.Write(f.content[start : start+length])
	return err
}

func (f *fakeSource) SendSegment(ctx context.Context, start, length int64, r io.Reader) error {
	_, err := io.Copy(io.Discard, r)
	return err
}

func TestConnectionDownloadsWholeFile(t *testing.T) {
	content := bytes.Repeat([]byte("x"), 4096)
	root, _, err := tth.HashFile(bytes.NewReader(content), int64(len(content)))
	require.NoError(t, err)
	target := filepath.Join(t.TempDir(), "f.bin")
	item := queue.NewItem("tok", target, int64(len(content)), root, queue.PriorityNormal)
	item.AddSource("cidA", "nick", "adc://hub")

	src := &fakeSource{content: content}
	conn := New("cidA", Download, item, 1024, src, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn.Run(ctx)

	assert.True(t, item.IsComplete())
}

func TestStateMachineRejectsIllegalTransition(t *testing.T) {
	item := queue.NewItem("tok", "/dl/f.bin", 10, tth.Value{}, queue.PriorityNormal)
	conn := New("cidA", Download, item, 1024, &fakeSource{content: make([]byte, 10)}, nil)

	require.NoError(t, conn.setState(StateSnd))
	require.NoError(t, conn.setState(StateRunning))
	err := conn.setState(StateSnd)
	var stateErr *StateError
	assert.ErrorAs(t, err, &stateErr)
}

func TestUploadManagerSmallFileSlot(t *testing.T) {
	um := NewUploadManager(1, 1)

	releaseSmall, err := um.AcquireSlot("cidA", 100)
	require.NoError(t, err)
	defer releaseSmall()

	releaseNormal, err := um.AcquireSlot("cidB", 1<<20)
	require.NoError(t, err)
	defer releaseNormal()

	_, err = um.AcquireSlot("cidC", 1<<20)
	assert.ErrorIs(t, err, ErrNoSlotAvailable)
}

func TestReservedSlotBypassesLimit(t *testing.T) {
	um := NewUploadManager(0, 0)
	um.reserved.Reserve("cidA", time.Minute)

	release, err := um.AcquireSlot("cidA", 1<<20)
	require.NoError(t, err)
	release()
}
