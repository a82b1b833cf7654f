package nmdc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChatVsCommand(t *testing.T) {
	assert.Equal(t, "Chat", Parse("hello there").Type)
	assert.Equal(t, "MyINFO", Parse("$MyINFO $ALL nick desc").Type)
}

func TestParseAndFormatSearchActive(t *testing.T) {
	req, err := ParseSearch("192.168.1.1:412 F?T?0?1?some$file")
	require.NoError(t, err)
	assert.False(t, req.Passive)
	assert.Equal(t, "192.168.1.1:412", req.Address)
	assert.Equal(t, "some file", req.Pattern)

	line := FormatSearch(req)
	assert.Contains(t, line, "$Search 192.168.1.1:412 F?T?0?1?some$file")
}

func TestParseSearchPassive(t *testing.T) {
	req, err := ParseSearch("Hub:nick123 T?F?1000?1?query")
	require.NoError(t, err)
	assert.True(t, req.Passive)
	assert.Equal(t, "nick123", req.Nick)
	assert.True(t, req.SizeLimited)
	assert.False(t, req.IsMax)
	assert.Equal(t, int64(1000), req.Size)
}

func TestDecodeCP1252ReplacesNothingForASCII(t *testing.T) {
	assert.Equal(t, "hello", Decode([]byte("hello"), CP1252))
}

func TestFormatSearchResultIncludesTTH(t *testing.T) {
	line := FormatSearchResult(SearchResult{
		Nick: "peer", FilePath: "movie.mkv", Size: 100, FreeSlots: 1, TotalSlots: 3,
		HubName: "TestHub", HubAddress: "1.2.3.4:411", TTH: "ABCDEF",
	})
	assert.Contains(t, line, "TTH:ABCDEF")
	assert.Contains(t, line, "1/3")
}
