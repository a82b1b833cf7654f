package sfv

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBasic(t *testing.T) {
	input := `; this is a comment
release.r00 1a2b3c4d
"quoted name.r01" deadbeef
# discarded
 also discarded
sub\dir\file.r02 00000001
`
	r, err := Parse(strings.NewReader(input))
	require.NoError(t, err)

	crc, ok := r.CRC("release.r00")
	require.True(t, ok)
	assert.Equal(t, uint32(0x1a2b3c4d), crc)

	crc, ok = r.CRC("quoted name.r01")
	require.True(t, ok)
	assert.Equal(t, uint32(0xdeadbeef), crc)

	_, ok = r.CRC("file.r02")
	assert.False(t, ok, "files in subdirectories are skipped")

	assert.Equal(t, 2, r.Len())
}

func TestParseCaseInsensitive(t *testing.T) {
	r, err := Parse(strings.NewReader("MyFile.ISO 00112233\n"))
	require.NoError(t, err)
	_, ok := r.CRC("myfile.iso")
	assert.True(t, ok)
}
