package filesystem

import (
	"fmt"
	"strings"

	"github.com/brettbedarf/treefs"
	"github.com/brettbedarf/treefs/internal/util"
)

// Create adds a file or directory at req.Path under an existing directory and
// persists both the new node and its parent.
//
// If a write fails after the node was linked into its parent, the node stays
// in memory and an error wrapping [treefs.ErrPersistence] is returned.
func (t *Tree) Create(req *treefs.NodeRequest) (*Node, error) {
	logger := util.GetLogger("Tree.Create")

	kind, ok := req.Type.Kind()
	if !ok {
		return nil, fmt.Errorf("unknown node type %q: %w", req.Type, treefs.ErrInvalidOperation)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	parent, name, err := t.resolveParent(req.Path)
	if err != nil {
		logger.Debug().Err(err).Str("path", req.Path).Msg("Failed to resolve parent")
		return nil, err
	}
	if len(name) > t.cfg.NameMax {
		return nil, fmt.Errorf("%q is %d bytes, max %d: %w", name, len(name), t.cfg.NameMax, treefs.ErrNameTooLong)
	}
	if parent.child(name) != nil {
		return nil, fmt.Errorf("%q: %w", req.Path, treefs.ErrExists)
	}

	id, err := t.store.AllocateID()
	if err != nil {
		logger.Error().Err(err).Str("path", req.Path).Msg("Failed to allocate node id")
		return nil, fmt.Errorf("allocate id for %q: %v: %w", req.Path, err, treefs.ErrOutOfMemory)
	}

	node := newNode(kind, name, fullPath(parent, name), t.permFor(kind, req.Perms))
	node.inodeID = id
	node.uid = req.OwnerUID
	node.gid = req.OwnerGID
	parent.addChild(node)
	parent.touch(node.ctime)
	t.nodes.Add(1)

	if err := t.persist(node); err != nil {
		logger.Error().Err(err).Str("path", node.fullname).Uint64("ino", id).Msg("Failed to write new node")
		return node, err
	}
	if err := t.saveBitmap(); err != nil {
		logger.Error().Err(err).Str("path", node.fullname).Msg("Failed to save bitmap")
		return node, err
	}
	if err := t.persist(parent); err != nil {
		logger.Error().Err(err).Str("path", parent.fullname).Msg("Failed to rewrite parent")
		return node, err
	}

	logger.Debug().
		Str("path", node.fullname).
		Stringer("kind", kind).
		Uint64("ino", id).
		Msg("Created node")
	return node, nil
}

func (t *Tree) permFor(kind treefs.NodeKind, perms *uint32) uint32 {
	if perms != nil {
		return *perms
	}
	if kind == treefs.DirKind {
		return t.cfg.DefaultDirPerm
	}
	return t.cfg.DefaultFilePerm
}

func fullPath(parent *Node, name string) string {
	return strings.TrimSuffix(parent.fullname, "/") + "/" + name
}

// persist writes n under its own id and records its chain length.
// Caller holds t.mu.
func (t *Tree) persist(n *Node) error {
	blocks, err := t.store.WriteNode(n.record())
	if err != nil {
		return fmt.Errorf("write node %d: %v: %w", n.inodeID, err, treefs.ErrPersistence)
	}
	n.blockCount = uint64(blocks)
	return nil
}

func (t *Tree) saveBitmap() error {
	if err := t.store.SaveBitmap(); err != nil {
		return fmt.Errorf("save bitmap: %v: %w", err, treefs.ErrPersistence)
	}
	return nil
}
