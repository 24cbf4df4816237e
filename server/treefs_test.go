package server

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/brettbedarf/treefs/config"
	"github.com/brettbedarf/treefs/storage"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestConfig(t *testing.T) *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Store.Backend = config.FileBackend
	cfg.Store.ImagePath = filepath.Join(t.TempDir(), "volume.img")
	cfg.Store.BlockSize = 512
	cfg.Store.BlockCount = 128
	cfg.WriteThrough = false
	return cfg
}

func TestOpen_FormatsThenReopens(t *testing.T) {
	t.Parallel()
	cfg := createTestConfig(t)

	fs, err := Open(context.Background(), cfg, prometheus.NewRegistry())
	require.NoError(t, err)
	owner := fuse.Owner{Uid: 1, Gid: 1}
	require.Zero(t, fs.Mkdir("/docs", 0o755, owner))
	require.Zero(t, fs.Mknod("/docs/readme", 0o644, owner))
	require.Equal(t, 5, fs.Write("/docs/readme", []byte("hello"), 0))

	// Unmount without a server still syncs and closes the store
	require.NoError(t, fs.Unmount())

	fs, err = Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer fs.Unmount()

	buf := make([]byte, 16)
	n := fs.Read("/docs/readme", buf, 0)
	require.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf[:n]))
	assert.Equal(t, int64(3), fs.Tree().NodeCount())
}

func TestNew_MetricsRegistered(t *testing.T) {
	t.Parallel()
	store, err := storage.Format(storage.NewMemoryDevice(512, 64), 512, 64)
	require.NoError(t, err)
	reg := prometheus.NewRegistry()

	fs, err := New(config.NewDefaultConfig(), store, reg)
	require.NoError(t, err)
	var attr fuse.Attr
	require.Zero(t, fs.Getattr("/", &attr))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["treefs_nodes"])
	assert.True(t, names["treefs_store_blocks_free"])
	assert.True(t, names["treefs_ops_total"])
}
