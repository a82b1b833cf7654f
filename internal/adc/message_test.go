package adc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBroadcastSearch(t *testing.T) {
	m, err := Parse("BSCH AAAA ANfoo ANbar")
	require.NoError(t, err)
	assert.Equal(t, "SCH", m.Cmd)
	assert.Equal(t, byte('B'), m.Header)
	assert.Equal(t, "AAAA", m.From)
	assert.Equal(t, "foo", m.Get("AN"))
}

func TestParseDirectWithEscapedSpace(t *testing.T) {
	m, err := Parse(`DMSG AAAA BBBB hello\sworld`)
	require.NoError(t, err)
	assert.Equal(t, "AAAA", m.From)
	assert.Equal(t, "BBBB", m.To)
	require.Len(t, m.Params, 1)
	assert.Equal(t, "hello world", m.Params[0])
}

func TestEncodeRoundTrip(t *testing.T) {
	orig := NewSearch("AAAA", []string{"foo bar"}, "")
	line := orig.Encode()

	parsed, err := Parse(line)
	require.NoError(t, err)
	assert.Equal(t, "foo bar", parsed.Get("AN"))
}

func TestNewResultEncodesFields(t *testing.T) {
	m := NewResult("AAAA", "BBBB", "/share/file.bin", 1024, "ABCDEF")
	line := m.Encode()
	parsed, err := Parse(line)
	require.NoError(t, err)
	assert.Equal(t, "/share/file.bin", parsed.Get("FN"))
	assert.Equal(t, int64(1024), parsed.GetInt64("SI"))
}
