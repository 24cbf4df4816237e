package server

import (
	"context"
	"fmt"
	"os"

	"github.com/brettbedarf/treefs"
	"github.com/brettbedarf/treefs/config"
	"github.com/brettbedarf/treefs/filesystem"
	tfuse "github.com/brettbedarf/treefs/fuse"
	"github.com/brettbedarf/treefs/internal/util"
	"github.com/brettbedarf/treefs/metrics"
	"github.com/brettbedarf/treefs/ops"
	"github.com/brettbedarf/treefs/storage"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/prometheus/client_golang/prometheus"
)

// TreeFs contains the loaded tree and its operations with abstractions
// over the underlying FUSE wire protocol implementation
type TreeFs struct {
	*ops.Operations
	cfg    *config.Config
	store  treefs.NodeStore
	closer func() error
	server *fuse.Server
}

// New loads the tree persisted in store. reg may be nil to disable metrics.
func New(cfg *config.Config, store treefs.NodeStore, reg prometheus.Registerer) (*TreeFs, error) {
	tree, err := filesystem.Load(cfg, store, uint32(os.Getuid()), uint32(os.Getgid()))
	if err != nil {
		return nil, err
	}
	var m *metrics.Metrics
	if reg != nil {
		m = metrics.New(reg)
		usage, _ := store.(treefs.UsageReporter)
		m.WatchTree(tree.NodeCount, usage)
	}
	return &TreeFs{
		Operations: ops.New(tree, cfg, m),
		cfg:        cfg,
		store:      store,
	}, nil
}

// Open opens the configured block device, formatting it if it holds no
// volume, and loads the tree from it
func Open(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (*TreeFs, error) {
	logger := util.GetLogger("Server.Open")

	dev, err := storage.NewDevice(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	store, formatted, err := storage.OpenOrFormat(dev, cfg.Store.BlockSize, uint64(cfg.Store.BlockCount))
	if err != nil {
		_ = dev.Close()
		return nil, err
	}
	logger.Info().
		Str("backend", string(cfg.Store.Backend)).
		Str("volume", store.VolumeID()).
		Bool("formatted", formatted).
		Msg("Store ready")

	fs, err := New(cfg, store, reg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	fs.closer = store.Close
	return fs, nil
}

// Serve mounts and serves the filesystem at the given mountPoint.
func (fs *TreeFs) Serve(mountPoint string) error {
	raw := tfuse.NewRaw(fs.Operations, fs.cfg)
	opts := fs.cfg.MountOptions
	slogger := util.NewLogLogger("FuseServer", util.TraceLevel)
	srv, err := fuse.NewServer(raw, mountPoint, &fuse.MountOptions{
		Name:       opts.Name,
		FsName:     opts.FsName,
		AllowOther: opts.AllowOther,
		Debug:      opts.Debug || fs.cfg.LogLvl == util.TraceLevel,
		Logger:     slogger,
		MaxWrite:   fs.cfg.MaxWrite,
	})
	if err != nil {
		return fmt.Errorf("failed to mount at %s: %w", mountPoint, err)
	}
	fs.server = srv

	go srv.Serve()
	return srv.WaitMount()
}

// ServeAsync runs Serve in the background and reports its result on the
// returned channel.
func (fs *TreeFs) ServeAsync(mountPoint string) <-chan error {
	done := make(chan error, 1)

	go func() {
		done <- fs.Serve(mountPoint)
		close(done)
	}()

	return done
}

// Unmount cleanly unmounts the filesystem, persists the whole tree and
// closes the store if this TreeFs opened it.
func (fs *TreeFs) Unmount() error {
	if fs.server != nil {
		if err := fs.server.Unmount(); err != nil {
			return err
		}
		fs.server = nil
	}
	if err := fs.Tree().Sync(); err != nil {
		return err
	}
	if fs.closer != nil {
		closer := fs.closer
		fs.closer = nil
		return closer()
	}
	return nil
}
