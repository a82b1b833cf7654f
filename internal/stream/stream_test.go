package stream

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBZ2RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := BZ2Writer(&buf)
	require.NoError(t, err)
	_, err = w.Write([]byte("hello airdc share tree"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	out, err := io.ReadAll(BZ2Reader(&buf))
	require.NoError(t, err)
	assert.Equal(t, "hello airdc share tree", string(out))
}

func TestCRC32Reader(t *testing.T) {
	data := []byte("crc-check-me")
	r := NewCRC32Reader(bytes.NewReader(data))
	_, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.NotZero(t, r.Sum32())
}

func TestLimited(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 100)
	r := Limited(bytes.NewReader(data), 10)
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Len(t, out, 10)
}
