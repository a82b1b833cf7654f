package tth

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChooseBlockSize(t *testing.T) {
	assert.Equal(t, int64(MinBlockSize), ChooseBlockSize(100))
	assert.Equal(t, int64(MinBlockSize), ChooseBlockSize(MinBlockSize))
	assert.Equal(t, int64(MinBlockSize*2), ChooseBlockSize(MinBlockSize+1))
}

func TestHashFileDeterministic(t *testing.T) {
	data := bytes.Repeat([]byte("airdc"), 10000)
	root1, leaves1, err := HashFile(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	root2, leaves2, err := HashFile(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	assert.Equal(t, root1, root2)
	assert.Equal(t, leaves1, leaves2)
	assert.NotEmpty(t, leaves1)
}

func TestLeavesConcatenationMatchesRoot(t *testing.T) {
	data := bytes.Repeat([]byte{0x42}, int(MinBlockSize*3+17))
	blockSize := ChooseBlockSize(int64(len(data)))
	leaves, err := Leaves(bytes.NewReader(data), blockSize)
	require.NoError(t, err)

	var reassembled [][]byte
	for i := 0; i < len(data); i += int(blockSize) {
		end := i + int(blockSize)
		if end > len(data) {
			end = len(data)
		}
		reassembled = append(reassembled, data[i:end])
	}
	require.Equal(t, len(reassembled), len(leaves))

	root := Root(leaves)
	rootAgain, _, err := HashFile(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, root, rootAgain)
}

func TestBase32RoundTrip(t *testing.T) {
	v := Sum([]byte("hello"))
	var tv Value = Value(v)
	s := tv.String()
	parsed, err := ParseValue(s)
	require.NoError(t, err)
	assert.Equal(t, tv, parsed)
}

func TestDirectoryTTHDeterministicByNameAndSize(t *testing.T) {
	a := DirectoryTTH("movies", 100)
	b := DirectoryTTH("movies", 100)
	c := DirectoryTTH("movies", 101)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
