package share

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileListGuardSkipsRapidRegeneration(t *testing.T) {
	dir := t.TempDir()
	fl := newFileList(ProfileDefault)
	root := newDirectory("share", nil)
	root.Profiles = map[int]struct{}{ProfileDefault: {}}

	fl.MarkDirty()
	require.NoError(t, fl.MaybeGenerate(dir, []*Directory{root}, false))
	first := fl.Path()
	require.NotEmpty(t, first)
	gen := fl.Generation()

	fl.MarkDirty()
	require.NoError(t, fl.MaybeGenerate(dir, []*Directory{root}, false))
	assert.Equal(t, first, fl.Path())
	assert.Equal(t, gen, fl.Generation())
}

func TestFileListForceBypassesGuard(t *testing.T) {
	dir := t.TempDir()
	fl := newFileList(ProfileDefault)
	root := newDirectory("share", nil)
	root.Profiles = map[int]struct{}{ProfileDefault: {}}

	require.NoError(t, fl.MaybeGenerate(dir, []*Directory{root}, true))
	first := fl.Generation()

	require.NoError(t, fl.MaybeGenerate(dir, []*Directory{root}, true))
	assert.Greater(t, fl.Generation(), first)
}

func TestFileListContentIsBz2(t *testing.T) {
	dir := t.TempDir()
	fl := newFileList(ProfileDefault)
	root := newDirectory("share", nil)
	root.Profiles = map[int]struct{}{ProfileDefault: {}}
	root.Files["a.bin"] = &File{Name: "a.bin", lowerName: "a.bin", Size: 5}

	require.NoError(t, fl.MaybeGenerate(dir, []*Directory{root}, true))
	data, err := os.ReadFile(fl.Path())
	require.NoError(t, err)
	// bzip2 streams start with the magic "BZh" header.
	require.GreaterOrEqual(t, len(data), 3)
	assert.Equal(t, "BZh", string(data[:3]))
}
