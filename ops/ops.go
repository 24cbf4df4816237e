// Package ops adapts the filesystem tree to the path-based kernel callback
// protocol. Every entry point returns a signed status: zero or a byte count on
// success, a negated errno on failure.
package ops

import (
	"errors"
	"syscall"
	"time"

	"github.com/brettbedarf/treefs"
	"github.com/brettbedarf/treefs/config"
	"github.com/brettbedarf/treefs/filesystem"
	"github.com/brettbedarf/treefs/internal/util"
	"github.com/brettbedarf/treefs/metrics"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// FillFunc receives one directory entry and the offset of the entry after
// it. Returning false stops the listing.
type FillFunc func(ent fuse.DirEntry, next int64) bool

type Operations struct {
	tree    *filesystem.Tree
	cfg     *config.Config
	metrics *metrics.Metrics
}

// New returns the operations over tree. m may be nil.
func New(tree *filesystem.Tree, cfg *config.Config, m *metrics.Metrics) *Operations {
	return &Operations{tree: tree, cfg: cfg, metrics: m}
}

// Tree returns the tree the operations act on
func (o *Operations) Tree() *filesystem.Tree {
	return o.tree
}

var errnos = []struct {
	err   error
	errno syscall.Errno
}{
	{treefs.ErrNotFound, syscall.ENOENT},
	{treefs.ErrPermissionDenied, syscall.EACCES},
	{treefs.ErrOutOfMemory, syscall.ENOMEM},
	{treefs.ErrInvalidOperation, syscall.EPERM},
	{treefs.ErrExists, syscall.EEXIST},
	{treefs.ErrNotDir, syscall.ENOTDIR},
	{treefs.ErrIsDir, syscall.EISDIR},
	{treefs.ErrNameTooLong, syscall.ENAMETOOLONG},
	{treefs.ErrPersistence, syscall.EIO},
}

// Status maps an error to a signed status; nil is 0 and unrecognized
// errors are -EIO
func Status(err error) int {
	if err == nil {
		return 0
	}
	for _, e := range errnos {
		if errors.Is(err, e.err) {
			return -int(e.errno)
		}
	}
	return -int(syscall.EIO)
}

func (o *Operations) observe(op string, start time.Time, status *int) {
	o.metrics.ObserveOp(op, *status, time.Since(start))
}

// Getattr fills out with the attributes of the node at path
func (o *Operations) Getattr(path string, out *fuse.Attr) (status int) {
	defer o.observe("getattr", time.Now(), &status)

	ctx, err := o.tree.NodeCtx(path)
	if err != nil {
		return Status(err)
	}
	defer ctx.Close()
	if _, ok := ctx.Mode(); !ok {
		logger := util.GetLogger("Ops.Getattr")
		logger.Warn().Str("path", path).Msg("Node has unknown kind")
		return Status(treefs.ErrInvalidOperation)
	}
	*out = ctx.Attr()
	return 0
}

// Mknod creates a file with the configured default permissions. Creation
// failures are logged and 0 is still returned; callers needing strict
// results check the path first.
func (o *Operations) Mknod(path string, mode uint32, owner fuse.Owner) (status int) {
	defer o.observe("mknod", time.Now(), &status)
	o.create("Ops.Mknod", path, treefs.FileNodeType, mode, owner)
	return 0
}

// Mkdir creates a directory; see [Operations.Mknod] for the result contract
func (o *Operations) Mkdir(path string, mode uint32, owner fuse.Owner) (status int) {
	defer o.observe("mkdir", time.Now(), &status)
	o.create("Ops.Mkdir", path, treefs.DirNodeType, mode, owner)
	return 0
}

func (o *Operations) create(component, path string, typ treefs.NodeCreateRequestType, mode uint32, owner fuse.Owner) {
	logger := util.GetLogger(component)
	_, err := o.tree.Create(&treefs.NodeRequest{
		Path:     path,
		Type:     typ,
		OwnerUID: owner.Uid,
		OwnerGID: owner.Gid,
	})
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Uint32("mode", mode).Msg("Failed to create node")
		return
	}
	logger.Debug().Str("path", path).Msg("Created node")
}

// Readdir lists ".", ".." and then each child in creation order, starting
// at offset
func (o *Operations) Readdir(path string, offset int64, fill FillFunc) (status int) {
	defer o.observe("readdir", time.Now(), &status)

	ctx, err := o.tree.NodeCtx(path)
	if err != nil {
		return Status(err)
	}
	defer ctx.Close()
	if !ctx.IsDir() {
		return Status(treefs.ErrNotDir)
	}

	parent := ctx.Parent()
	entries := []fuse.DirEntry{
		{Name: ".", Mode: syscall.S_IFDIR, Ino: ctx.InodeID()},
		{Name: "..", Mode: syscall.S_IFDIR, Ino: parent.InodeID()},
	}
	ctx.IterChildren(func(ch *filesystem.NodeContext) bool {
		mode, _ := ch.Mode()
		entries = append(entries, fuse.DirEntry{Name: ch.Name(), Mode: mode, Ino: ch.InodeID()})
		return true
	})
	for i := max(offset, 0); i < int64(len(entries)); i++ {
		if !fill(entries[i], i+1) {
			break
		}
	}
	return 0
}

// Rmdir removes the node at path and everything below it
func (o *Operations) Rmdir(path string) (status int) {
	defer o.observe("rmdir", time.Now(), &status)
	return o.logged("Ops.Rmdir", path, o.tree.Rmdir(path))
}

// Unlink removes a file
func (o *Operations) Unlink(path string) (status int) {
	defer o.observe("unlink", time.Now(), &status)
	return o.logged("Ops.Unlink", path, o.tree.Unlink(path))
}

func (o *Operations) logged(component, path string, err error) int {
	if err != nil {
		logger := util.GetLogger(component)
		logger.Debug().Err(err).Str("path", path).Msg("Operation failed")
	}
	return Status(err)
}

// Open checks that path exists and that the access mode in flags is
// granted by the configured open policy
func (o *Operations) Open(path string, flags uint32) (status int) {
	defer o.observe("open", time.Now(), &status)

	ctx, err := o.tree.NodeCtx(path)
	if err != nil {
		return Status(err)
	}
	ctx.Close()

	readOnly := flags&syscall.O_ACCMODE == syscall.O_RDONLY
	switch o.cfg.OpenPolicy {
	case config.OpenPermissive:
		return 0
	case config.OpenInverted:
		if readOnly {
			return Status(treefs.ErrPermissionDenied)
		}
		return 0
	default:
		if !readOnly {
			return Status(treefs.ErrPermissionDenied)
		}
		return 0
	}
}

// Read copies up to len(buf) bytes at offset and returns the count
func (o *Operations) Read(path string, buf []byte, offset int64) (status int) {
	defer o.observe("read", time.Now(), &status)

	n, err := o.tree.ReadAt(path, buf, offset)
	if err != nil {
		return Status(err)
	}
	return n
}

// Write copies buf into the file at offset, growing it as needed, and
// returns the count written
func (o *Operations) Write(path string, buf []byte, offset int64) (status int) {
	defer o.observe("write", time.Now(), &status)

	n, err := o.tree.WriteAt(path, buf, offset)
	if err != nil {
		return o.logged("Ops.Write", path, err)
	}
	return n
}

// Truncate resizes the file at path
func (o *Operations) Truncate(path string, size int64) (status int) {
	defer o.observe("truncate", time.Now(), &status)
	return o.logged("Ops.Truncate", path, o.tree.Truncate(path, size))
}

// Statfs reports volume capacity when the store tracks block usage
func (o *Operations) Statfs(out *fuse.StatfsOut) (status int) {
	defer o.observe("statfs", time.Now(), &status)

	store := o.tree.Store()
	*out = fuse.StatfsOut{
		Bsize:   uint32(store.BlockSize()),
		Frsize:  uint32(store.BlockSize()),
		NameLen: uint32(o.cfg.NameMax),
		Files:   uint64(o.tree.NodeCount()),
	}
	if usage, ok := store.(treefs.UsageReporter); ok {
		out.Blocks = usage.TotalBlocks()
		out.Bfree = usage.FreeBlocks()
		out.Bavail = out.Bfree
		out.Ffree = out.Bfree
	}
	return 0
}
