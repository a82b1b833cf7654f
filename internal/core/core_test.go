package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/airdcpp-go/core/internal/config"
	"github.com/airdcpp-go/core/internal/share"
	"github.com/stretchr/testify/require"
)

type fakeHashSource struct{}

func (fakeHashSource) GetFileInfo(lowerPath, realPath string) (share.HashedFile, error) {
	info, err := os.Stat(realPath)
	if err != nil {
		return share.HashedFile{}, err
	}
	return share.HashedFile{Size: info.Size(), ModTime: info.ModTime()}, nil
}

func TestCoreWiresSubsystemsAndSharesConfiguredRoots(t *testing.T) {
	base := t.TempDir()
	shareDir := filepath.Join(base, "shared")
	require.NoError(t, os.MkdirAll(shareDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(shareDir, "a.txt"), []byte("hi"), 0o644))

	cfg := config.DefaultConfig
	cfg.ShareCacheDir = filepath.Join(base, "cache")
	cfg.QueueDir = filepath.Join(base, "queue")
	cfg.Port = 0 // let the OS pick an ephemeral port so parallel test runs never collide
	cfg.ShareProfiles = []config.ShareProfileConfig{
		{Token: share.ProfileDefault, Name: "Default", Roots: []string{shareDir}},
	}

	c, err := New(&cfg, fakeHashSource{}, nil)
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	c.Run(ctx)

	results := c.Share.Search(share.SearchQuery{Include: []string{"a.txt"}}, share.ProfileDefault)
	require.NotEmpty(t, results)
}
