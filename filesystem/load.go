package filesystem

import (
	"fmt"

	"github.com/brettbedarf/treefs"
	"github.com/brettbedarf/treefs/config"
	"github.com/brettbedarf/treefs/internal/util"
)

// Load builds the tree persisted in store. A store whose root block holds no
// node gets a fresh root directory owned by uid/gid, which is written
// immediately.
func Load(cfg *config.Config, store treefs.NodeStore, uid, gid uint32) (*Tree, error) {
	logger := util.GetLogger("Tree.Load")

	t := newTree(cfg, store)
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := store.LoadBitmap(); err != nil {
		return nil, fmt.Errorf("load bitmap: %v: %w", err, treefs.ErrPersistence)
	}
	rootID := store.RootID()
	rec, err := store.ReadNode(rootID)
	if err != nil {
		return nil, fmt.Errorf("read root %d: %v: %w", rootID, err, treefs.ErrPersistence)
	}

	if rec.Kind == 0 {
		t.root = newNode(treefs.DirKind, "", "/", cfg.DefaultDirPerm)
		t.root.inodeID = rootID
		t.root.uid = uid
		t.root.gid = gid
		t.nodes.Store(1)
		if err := t.persist(t.root); err != nil {
			return nil, err
		}
		logger.Info().Uint64("root", rootID).Msg("Initialized empty root")
		return t, nil
	}
	if rec.Kind != treefs.DirKind {
		return nil, fmt.Errorf("root record is a %s: %w", rec.Kind, treefs.ErrInvalidOperation)
	}

	t.root = nodeFromRecord(rec)
	t.root.inodeID = rootID
	t.root.fullname = "/"
	seen := map[uint64]struct{}{rootID: {}}
	if err := t.loadChildren(t.root, seen); err != nil {
		return nil, err
	}
	err = WalkBreadthFirst(t.root, func(n *Node) error {
		if !n.IsDir() {
			return nil
		}
		return t.loadChildren(n, seen)
	})
	if err != nil {
		return nil, err
	}
	t.nodes.Store(int64(len(seen)))

	logger.Info().
		Uint64("root", rootID).
		Int("nodes", len(seen)).
		Msg("Loaded tree")
	return t, nil
}

// loadChildren reads n's child records and attaches them in childIDs order
func (t *Tree) loadChildren(n *Node, seen map[uint64]struct{}) error {
	logger := util.GetLogger("Tree.loadChildren")

	n.children = make([]*Node, 0, len(n.childIDs))
	for _, id := range n.childIDs {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("node %d appears twice under %q: %w", id, n.fullname, treefs.ErrInvalidOperation)
		}
		seen[id] = struct{}{}

		rec, err := t.store.ReadNode(id)
		if err != nil {
			return fmt.Errorf("read node %d under %q: %v: %w", id, n.fullname, err, treefs.ErrPersistence)
		}
		child := nodeFromRecord(rec)
		child.inodeID = id
		child.parent = n
		n.children = append(n.children, child)
		logger.Trace().Uint64("ino", id).Str("path", child.fullname).Msg("Loaded node")
	}
	return nil
}
