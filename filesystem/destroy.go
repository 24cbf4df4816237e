package filesystem

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/brettbedarf/treefs"
	"github.com/brettbedarf/treefs/internal/util"
)

// Remove deletes the node at path and its whole subtree. Every node's id and
// overflow chain is returned to the store before the target is unlinked from
// its parent. Removing root fails with [treefs.ErrInvalidOperation].
//
// A store failure is reported wrapping [treefs.ErrPersistence] but the
// in-memory removal is not rolled back.
func (t *Tree) Remove(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remove(path, nil)
}

// Unlink removes a file; directories fail with [treefs.ErrIsDir]
func (t *Tree) Unlink(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remove(path, func(n *Node) error {
		if n.IsDir() {
			return fmt.Errorf("%q: %w", path, treefs.ErrIsDir)
		}
		return nil
	})
}

// Rmdir removes the node at path whatever its kind, including non-empty
// directories
func (t *Tree) Rmdir(path string) error {
	return t.Remove(path)
}

// remove is the shared destroyer; check may veto the target before anything
// is changed. Caller holds t.mu.
func (t *Tree) remove(path string, check func(*Node) error) error {
	logger := util.GetLogger("Tree.Remove")

	if path == "/" {
		return fmt.Errorf("remove root: %w", treefs.ErrInvalidOperation)
	}
	target, ok := t.resolve(path)
	if !ok {
		return notFound(path)
	}
	if target == t.root {
		return fmt.Errorf("remove root: %w", treefs.ErrInvalidOperation)
	}
	if check != nil {
		if err := check(target); err != nil {
			return err
		}
	}
	parent := target.parent

	var errs []error
	released := 0
	// Never stops early; every node in the subtree is released
	_ = WalkDepthFirst(target, func(n *Node) error {
		if err := t.reclaim(n.inodeID); err != nil {
			logger.Warn().Err(err).Uint64("ino", n.inodeID).Str("path", n.fullname).Msg("Failed to reclaim blocks")
			errs = append(errs, err)
		}
		n.release()
		released++
		return nil
	})
	t.nodes.Add(-int64(released))

	parent.removeChild(target)
	parent.touch(time.Now())

	if err := t.saveBitmap(); err != nil {
		errs = append(errs, err)
	}
	if err := t.persist(parent); err != nil {
		errs = append(errs, err)
	}

	logger.Debug().
		Str("path", path).
		Int("released", released).
		Int("errors", len(errs)).
		Msg("Removed node")
	if len(errs) > 0 {
		return fmt.Errorf("remove %q: %w: %w", path, treefs.ErrPersistence, errors.Join(errs...))
	}
	return nil
}

// reclaim frees id and every block of the overflow chain it heads. Each
// block's link is read before the block is freed.
func (t *Tree) reclaim(id uint64) error {
	buf := make([]byte, t.store.BlockSize())
	linkAt := len(buf) - treefs.LinkSize
	seen := make(map[uint64]struct{})
	for id != 0 {
		if _, loop := seen[id]; loop {
			return fmt.Errorf("chain revisits block %d", id)
		}
		seen[id] = struct{}{}

		if err := t.store.ReadBlock(id, buf); err != nil {
			return fmt.Errorf("read block %d: %w", id, err)
		}
		next := binary.LittleEndian.Uint64(buf[linkAt:])
		if err := t.store.FreeID(id); err != nil {
			return fmt.Errorf("free block %d: %w", id, err)
		}
		id = next
	}
	return nil
}
