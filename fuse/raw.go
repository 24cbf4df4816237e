// Package fuse bridges the go-fuse raw wire protocol to the path-based
// operations in [ops]. Kernel node ids are assigned per session and never
// reused, while Attr.Ino carries the persistent inode id of the node.
package fuse

import (
	"path"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/brettbedarf/treefs/config"
	"github.com/brettbedarf/treefs/internal/util"
	"github.com/brettbedarf/treefs/ops"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/puzpuzpuz/xsync/v4"
)

// entry is a registered kernel node id
type entry struct {
	path    string
	lookups uint64
	removed bool // path was unlinked while the kernel still held the id
}

// Raw implements the low-level FUSE wire protocol
// It serves as protocol adapter between FUSE and the path-based operations
// See https://www.man7.org/linux//man-pages/man4/fuse.4.html
type Raw struct {
	fuse.RawFileSystem
	ops        *ops.Operations
	cfg        *config.Config
	lastNodeID atomic.Uint64              // Last kernel node id assigned; session only
	nodes      *xsync.Map[uint64, entry]  // kernel node id -> path
	ids        *xsync.Map[string, uint64] // live path -> kernel node id
	server     *fuse.Server
}

func NewRaw(o *ops.Operations, cfg *config.Config) *Raw {
	r := &Raw{
		RawFileSystem: fuse.NewDefaultRawFileSystem(),
		ops:           o,
		cfg:           cfg,
		nodes:         xsync.NewMap[uint64, entry](),
		ids:           xsync.NewMap[string, uint64](),
	}
	r.lastNodeID.Store(fuse.FUSE_ROOT_ID)
	r.nodes.Store(fuse.FUSE_ROOT_ID, entry{path: "/", lookups: 1})
	r.ids.Store("/", fuse.FUSE_ROOT_ID)
	return r
}

func (r *Raw) Init(s *fuse.Server) {
	logger := util.GetLogger("Fuse.Init")
	logger.Debug().Msg("FUSE initialized")
	r.server = s
}

func (r *Raw) OnUnmount() {
	logger := util.GetLogger("Fuse.OnUnmount")
	logger.Info().Msg("FUSE unmounted")
}

func (r *Raw) String() string {
	return "treefs"
}

// Access is only called without the default_permissions mount option.
// Mode bits are not enforced.
func (r *Raw) Access(cancel <-chan struct{}, input *fuse.AccessIn) fuse.Status {
	return fuse.OK
}

// pathOf returns the live path behind a kernel node id
func (r *Raw) pathOf(nodeID uint64) (string, bool) {
	e, ok := r.nodes.Load(nodeID)
	if !ok || e.removed {
		return "", false
	}
	return e.path, true
}

func (r *Raw) childPath(parentID uint64, name string) (string, bool) {
	parent, ok := r.pathOf(parentID)
	if !ok {
		return "", false
	}
	return path.Join(parent, name), true
}

// register records one kernel lookup of p and returns its node id. A path
// gets a fresh id the first time it is seen and keeps it until forgotten or
// removed.
func (r *Raw) register(p string) uint64 {
	nodeID, _ := r.ids.Compute(p, func(old uint64, loaded bool) (uint64, xsync.ComputeOp) {
		if loaded {
			return old, xsync.UpdateOp
		}
		return r.lastNodeID.Add(1), xsync.UpdateOp
	})
	r.nodes.Compute(nodeID, func(old entry, loaded bool) (entry, xsync.ComputeOp) {
		if !loaded {
			return entry{path: p, lookups: 1}, xsync.UpdateOp
		}
		old.lookups++
		return old, xsync.UpdateOp
	})
	return nodeID
}

// unregister detaches p and everything below it from their node ids. The
// ids stay known to the kernel until forgotten but no longer resolve.
func (r *Raw) unregister(p string) {
	prefix := p + "/"
	r.ids.Range(func(key string, nodeID uint64) bool {
		if key != p && !strings.HasPrefix(key, prefix) {
			return true
		}
		r.ids.Compute(key, func(old uint64, loaded bool) (uint64, xsync.ComputeOp) {
			if loaded && old == nodeID {
				return old, xsync.DeleteOp
			}
			return old, xsync.CancelOp
		})
		r.nodes.Compute(nodeID, func(old entry, loaded bool) (entry, xsync.ComputeOp) {
			if !loaded {
				return old, xsync.CancelOp
			}
			old.removed = true
			return old, xsync.UpdateOp
		})
		return true
	})
}

func toStatus(status int) fuse.Status {
	if status >= 0 {
		return fuse.OK
	}
	return fuse.Status(-status)
}

// fillEntry getattrs p and registers the resulting node id
func (r *Raw) fillEntry(p string, out *fuse.EntryOut) fuse.Status {
	if st := r.ops.Getattr(p, &out.Attr); st != 0 {
		return toStatus(st)
	}
	out.NodeId = r.register(p)
	out.SetEntryTimeout(seconds(r.cfg.EntryTimeout))
	out.SetAttrTimeout(seconds(r.cfg.AttrTimeout))
	return fuse.OK
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Lookup is called by the kernel when the VFS wants to know
// about a file inside a directory. Many lookup calls can
// occur in parallel, but only one call happens for each (dir,
// name) pair.
func (r *Raw) Lookup(cancel <-chan struct{}, header *fuse.InHeader, name string, out *fuse.EntryOut) fuse.Status {
	logger := util.GetLogger("Fuse.Lookup")
	logger.Trace().Uint64("parent", header.NodeId).Str("name", name).Msg("Lookup called")

	p, ok := r.childPath(header.NodeId, name)
	if !ok {
		return fuse.ENOENT
	}
	return r.fillEntry(p, out)
}

// Forget is called when the kernel discards entries from its
// dentry cache. This happens on unmount, and when the kernel
// is short on memory. Since it is not guaranteed to occur at
// any moment, and since there is no return value, Forget
// should not do I/O, as there is no channel to report back
// I/O errors.
func (r *Raw) Forget(nodeid, nlookup uint64) {
	if nodeid == fuse.FUSE_ROOT_ID {
		return
	}
	var forgotten entry
	r.nodes.Compute(nodeid, func(old entry, loaded bool) (entry, xsync.ComputeOp) {
		if !loaded {
			return old, xsync.CancelOp
		}
		if old.lookups <= nlookup {
			forgotten = old
			return old, xsync.DeleteOp
		}
		old.lookups -= nlookup
		return old, xsync.UpdateOp
	})
	if forgotten.path == "" || forgotten.removed {
		return
	}
	r.ids.Compute(forgotten.path, func(old uint64, loaded bool) (uint64, xsync.ComputeOp) {
		if loaded && old == nodeid {
			return old, xsync.DeleteOp
		}
		return old, xsync.CancelOp
	})
}

func (r *Raw) GetAttr(cancel <-chan struct{}, input *fuse.GetAttrIn, out *fuse.AttrOut) fuse.Status {
	p, ok := r.pathOf(input.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	if st := r.ops.Getattr(p, &out.Attr); st != 0 {
		return toStatus(st)
	}
	out.SetTimeout(seconds(r.cfg.AttrTimeout))
	return fuse.OK
}

// SetAttr supports size changes only; other attribute changes are ignored
func (r *Raw) SetAttr(cancel <-chan struct{}, input *fuse.SetAttrIn, out *fuse.AttrOut) fuse.Status {
	p, ok := r.pathOf(input.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	if size, ok := input.GetSize(); ok {
		if st := r.ops.Truncate(p, int64(size)); st != 0 {
			return toStatus(st)
		}
	}
	return r.GetAttr(cancel, &fuse.GetAttrIn{InHeader: input.InHeader}, out)
}

// precreate reports why creating name under parentID would fail.
// ops creation reports success regardless, so the errors surface here.
func (r *Raw) precreate(parentID uint64, name string) (string, fuse.Status) {
	p, ok := r.childPath(parentID, name)
	if !ok {
		return "", fuse.ENOENT
	}
	if len(name) > r.cfg.NameMax {
		return "", fuse.Status(syscall.ENAMETOOLONG)
	}
	var attr fuse.Attr
	if r.ops.Getattr(p, &attr) == 0 {
		return "", fuse.Status(syscall.EEXIST)
	}
	parent, _ := r.pathOf(parentID)
	if st := r.ops.Getattr(parent, &attr); st != 0 {
		return "", toStatus(st)
	}
	if attr.Mode&syscall.S_IFMT != syscall.S_IFDIR {
		return "", fuse.ENOTDIR
	}
	return p, fuse.OK
}

// created fills out for a node the ops layer was asked to create; a
// missing node means the store refused it
func (r *Raw) created(p string, out *fuse.EntryOut) fuse.Status {
	if st := r.fillEntry(p, out); st != fuse.OK {
		logger := util.GetLogger("Fuse.created")
		logger.Warn().Str("path", p).Msg("Node missing after create")
		return fuse.EIO
	}
	return fuse.OK
}

func (r *Raw) Mknod(cancel <-chan struct{}, input *fuse.MknodIn, name string, out *fuse.EntryOut) fuse.Status {
	if input.Mode&syscall.S_IFMT != syscall.S_IFREG && input.Mode&syscall.S_IFMT != 0 {
		return fuse.ENOSYS
	}
	p, st := r.precreate(input.NodeId, name)
	if st != fuse.OK {
		return st
	}
	r.ops.Mknod(p, input.Mode, input.Caller.Owner)
	return r.created(p, out)
}

func (r *Raw) Mkdir(cancel <-chan struct{}, input *fuse.MkdirIn, name string, out *fuse.EntryOut) fuse.Status {
	p, st := r.precreate(input.NodeId, name)
	if st != fuse.OK {
		return st
	}
	r.ops.Mkdir(p, input.Mode, input.Caller.Owner)
	return r.created(p, out)
}

// Create is mknod followed by open
func (r *Raw) Create(cancel <-chan struct{}, input *fuse.CreateIn, name string, out *fuse.CreateOut) fuse.Status {
	p, st := r.precreate(input.NodeId, name)
	if st != fuse.OK {
		return st
	}
	r.ops.Mknod(p, input.Mode, input.Caller.Owner)
	if st := r.created(p, &out.EntryOut); st != fuse.OK {
		return st
	}
	if st := r.ops.Open(p, input.Flags); st != 0 {
		return toStatus(st)
	}
	r.openFlags(&out.OpenOut)
	return fuse.OK
}

func (r *Raw) Unlink(cancel <-chan struct{}, header *fuse.InHeader, name string) fuse.Status {
	p, ok := r.childPath(header.NodeId, name)
	if !ok {
		return fuse.ENOENT
	}
	st := r.ops.Unlink(p)
	if st == 0 {
		r.unregister(p)
	}
	return toStatus(st)
}

func (r *Raw) Rmdir(cancel <-chan struct{}, header *fuse.InHeader, name string) fuse.Status {
	p, ok := r.childPath(header.NodeId, name)
	if !ok {
		return fuse.ENOENT
	}
	st := r.ops.Rmdir(p)
	if st == 0 {
		r.unregister(p)
	}
	return toStatus(st)
}

func (r *Raw) openFlags(out *fuse.OpenOut) {
	if r.cfg.DirectIO {
		out.OpenFlags |= fuse.FOPEN_DIRECT_IO
	}
}

func (r *Raw) Open(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	p, ok := r.pathOf(input.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	if st := r.ops.Open(p, input.Flags); st != 0 {
		return toStatus(st)
	}
	r.openFlags(out)
	return fuse.OK
}

func (r *Raw) Read(cancel <-chan struct{}, input *fuse.ReadIn, buf []byte) (fuse.ReadResult, fuse.Status) {
	p, ok := r.pathOf(input.NodeId)
	if !ok {
		return nil, fuse.ENOENT
	}
	size := min(int(input.Size), len(buf))
	n := r.ops.Read(p, buf[:size], int64(input.Offset))
	if n < 0 {
		return nil, toStatus(n)
	}
	return fuse.ReadResultData(buf[:n]), fuse.OK
}

func (r *Raw) Write(cancel <-chan struct{}, input *fuse.WriteIn, data []byte) (uint32, fuse.Status) {
	p, ok := r.pathOf(input.NodeId)
	if !ok {
		return 0, fuse.ENOENT
	}
	n := r.ops.Write(p, data, int64(input.Offset))
	if n < 0 {
		return 0, toStatus(n)
	}
	return uint32(n), fuse.OK
}

func (r *Raw) OpenDir(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	p, ok := r.pathOf(input.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	var attr fuse.Attr
	if st := r.ops.Getattr(p, &attr); st != 0 {
		return toStatus(st)
	}
	if attr.Mode&syscall.S_IFMT != syscall.S_IFDIR {
		return fuse.ENOTDIR
	}
	return fuse.OK
}

// ReadDir relies on the list's running offset, which starts at input.Offset
// and matches the listing's entry index
func (r *Raw) ReadDir(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	p, ok := r.pathOf(input.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	st := r.ops.Readdir(p, int64(input.Offset), func(ent fuse.DirEntry, _ int64) bool {
		return out.AddDirEntry(ent)
	})
	return toStatus(st)
}

func (r *Raw) StatFs(cancel <-chan struct{}, input *fuse.InHeader, out *fuse.StatfsOut) fuse.Status {
	return toStatus(r.ops.Statfs(out))
}
