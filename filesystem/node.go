package filesystem

import (
	"syscall"
	"time"

	"github.com/brettbedarf/treefs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// NominalSize is the size getattr reports for directories
const NominalSize = 1024

// Node is one file or directory of the tree. Fields are protected by the
// owning [Tree]'s lock; use a [NodeContext] or the Tree mutators to access them.
type Node struct {
	kind     treefs.NodeKind
	name     string // final path segment
	fullname string // absolute path at creation
	uid      uint32
	gid      uint32
	perm     uint32
	nlink    uint32
	parent   *Node   // nil only for root
	children []*Node // creation order
	childIDs []uint64
	data     []byte
	inodeID  uint64

	blockCount uint64 // physical blocks the node occupied at its last write
	atime      time.Time
	mtime      time.Time
	ctime      time.Time
}

// newNode sets nlink for kind and stamps all three times
func newNode(kind treefs.NodeKind, name, fullname string, perm uint32) *Node {
	now := time.Now()
	n := &Node{
		kind:     kind,
		name:     name,
		fullname: fullname,
		perm:     perm & 0o7777,
		atime:    now,
		mtime:    now,
		ctime:    now,
	}
	switch kind {
	case treefs.DirKind:
		n.nlink = 2
	case treefs.FileKind:
		n.nlink = 1
	}
	return n
}

func (n *Node) Kind() treefs.NodeKind { return n.kind }
func (n *Node) Name() string          { return n.name }
func (n *Node) Fullname() string      { return n.fullname }
func (n *Node) InodeID() uint64       { return n.inodeID }
func (n *Node) Nlink() uint32         { return n.nlink }
func (n *Node) Perm() uint32          { return n.perm }
func (n *Node) Parent() *Node         { return n.parent }
func (n *Node) IsDir() bool           { return n.kind == treefs.DirKind }

// Size is the length of a file's data
func (n *Node) Size() int {
	return len(n.data)
}

// Children returns a copy of the child slice
func (n *Node) Children() []*Node {
	return append([]*Node(nil), n.children...)
}

// ChildIDs returns a copy of the persistent child ids, index-aligned with
// [Node.Children]
func (n *Node) ChildIDs() []uint64 {
	return append([]uint64(nil), n.childIDs...)
}

func (n *Node) child(name string) *Node {
	for _, ch := range n.children {
		if ch.name == name {
			return ch
		}
	}
	return nil
}

func (n *Node) addChild(child *Node) {
	child.parent = n
	n.children = append(n.children, child)
	n.childIDs = append(n.childIDs, child.inodeID)
	if child.IsDir() {
		n.nlink++
	}
}

// removeChild drops child from both lists at the same index, keeping order.
// Returns false if child is not a child of n.
func (n *Node) removeChild(child *Node) bool {
	for i, ch := range n.children {
		if ch != child {
			continue
		}
		n.children = append(n.children[:i], n.children[i+1:]...)
		n.childIDs = append(n.childIDs[:i], n.childIDs[i+1:]...)
		if child.IsDir() {
			n.nlink--
		}
		child.parent = nil
		return true
	}
	return false
}

// release drops everything the node owns
func (n *Node) release() {
	n.data = nil
	n.children = nil
	n.childIDs = nil
}

func (n *Node) touch(now time.Time) {
	n.mtime = now
	n.ctime = now
}

// mode returns the file type and permission bits; ok is false for an
// unknown kind
func (n *Node) mode() (mode uint32, ok bool) {
	switch n.kind {
	case treefs.DirKind:
		return syscall.S_IFDIR | n.perm, true
	case treefs.FileKind:
		return syscall.S_IFREG | n.perm, true
	}
	return 0, false
}

// attr returns the kernel attributes; blockSize converts blockCount to
// 512-byte units
func (n *Node) attr(blockSize int) fuse.Attr {
	mode, _ := n.mode()
	size := uint64(len(n.data))
	if n.IsDir() {
		size = NominalSize
	}
	return fuse.Attr{
		Ino:       n.inodeID,
		Size:      size,
		Blocks:    n.blockCount * uint64(blockSize) / 512,
		Mode:      mode,
		Nlink:     n.nlink,
		Owner:     fuse.Owner{Uid: n.uid, Gid: n.gid},
		Atime:     uint64(n.atime.Unix()),
		Mtime:     uint64(n.mtime.Unix()),
		Ctime:     uint64(n.ctime.Unix()),
		Atimensec: uint32(n.atime.Nanosecond()),
		Mtimensec: uint32(n.mtime.Nanosecond()),
		Ctimensec: uint32(n.ctime.Nanosecond()),
		Blksize:   uint32(blockSize),
	}
}

// record is the persisted form of n
func (n *Node) record() *treefs.NodeRecord {
	return &treefs.NodeRecord{
		Kind:       n.kind,
		Name:       n.name,
		Fullname:   n.fullname,
		UID:        n.uid,
		GID:        n.gid,
		Perm:       n.perm,
		Nlink:      n.nlink,
		InodeID:    n.inodeID,
		BlockCount: n.blockCount,
		Atime:      n.atime.UnixNano(),
		Mtime:      n.mtime.UnixNano(),
		Ctime:      n.ctime.UnixNano(),
		ChildIDs:   n.childIDs,
		Data:       n.data,
	}
}

// nodeFromRecord builds a detached node; children are attached by the loader
func nodeFromRecord(rec *treefs.NodeRecord) *Node {
	return &Node{
		kind:       rec.Kind,
		name:       rec.Name,
		fullname:   rec.Fullname,
		uid:        rec.UID,
		gid:        rec.GID,
		perm:       rec.Perm,
		nlink:      rec.Nlink,
		inodeID:    rec.InodeID,
		blockCount: rec.BlockCount,
		atime:      time.Unix(0, rec.Atime),
		mtime:      time.Unix(0, rec.Mtime),
		ctime:      time.Unix(0, rec.Ctime),
		childIDs:   rec.ChildIDs,
		data:       rec.Data,
	}
}
