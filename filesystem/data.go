package filesystem

import (
	"fmt"
	"time"

	"github.com/brettbedarf/treefs"
	"github.com/brettbedarf/treefs/internal/util"
)

// MaxFileSize bounds how large a write or truncate may grow a file
const MaxFileSize = 1 << 32

// maxFileSize is MaxFileSize, further capped by the payload the store can
// hold when it reports its geometry
func (t *Tree) maxFileSize() int64 {
	limit := int64(MaxFileSize)
	usage, ok := t.store.(treefs.UsageReporter)
	if !ok {
		return limit
	}
	payload := t.store.BlockSize() - treefs.LinkSize
	if payload <= 0 {
		return 0
	}
	total := usage.TotalBlocks()
	if total > uint64(limit/int64(payload)) {
		return limit
	}
	return min(limit, int64(total)*int64(payload))
}

// checkSize rejects file sizes the volume could never persist
func (t *Tree) checkSize(size int64) error {
	if limit := t.maxFileSize(); size > limit {
		return fmt.Errorf("size %d exceeds %d: %w", size, limit, treefs.ErrOutOfMemory)
	}
	return nil
}

// ReadAt copies file data at off into buf and returns the byte count
func (t *Tree) ReadAt(path string, buf []byte, off int64) (int, error) {
	ctx, err := t.NodeCtx(path)
	if err != nil {
		return 0, err
	}
	defer ctx.Close()
	if ctx.IsDir() {
		return 0, fmt.Errorf("%q: %w", path, treefs.ErrIsDir)
	}
	return ctx.ReadAt(buf, off), nil
}

// WriteAt copies p into the file at path starting at off, growing the file
// and zero-filling any gap when the write ends past its size. A write ending
// exactly at the current size is an ordinary in-place copy. With
// write-through configured the node is persisted afterwards; a persistence
// failure keeps the data in memory.
func (t *Tree) WriteAt(path string, p []byte, off int64) (int, error) {
	logger := util.GetLogger("Tree.WriteAt")

	t.mu.Lock()
	defer t.mu.Unlock()

	n, err := t.fileNode(path)
	if err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d: %w", off, treefs.ErrInvalidOperation)
	}
	end := off + int64(len(p))
	if end < off {
		return 0, fmt.Errorf("write at %d of %d bytes overflows: %w", off, len(p), treefs.ErrOutOfMemory)
	}
	if end > int64(len(n.data)) {
		if err := t.checkSize(end); err != nil {
			return 0, err
		}
		if err := n.resize(end); err != nil {
			return 0, err
		}
	}
	written := copy(n.data[off:end], p)
	n.touch(time.Now())

	logger.Trace().Str("path", path).Int64("off", off).Int("bytes", written).Msg("Wrote data")
	if t.cfg.WriteThrough {
		if err := t.flush(n); err != nil {
			return written, err
		}
	}
	return written, nil
}

// Truncate sets the file's size, zero-filling when it grows
func (t *Tree) Truncate(path string, size int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, err := t.fileNode(path)
	if err != nil {
		return err
	}
	if size < 0 {
		return fmt.Errorf("negative size %d: %w", size, treefs.ErrInvalidOperation)
	}
	if size > int64(len(n.data)) {
		if err := t.checkSize(size); err != nil {
			return err
		}
	}
	if err := n.resize(size); err != nil {
		return err
	}
	n.touch(time.Now())
	if t.cfg.WriteThrough {
		return t.flush(n)
	}
	return nil
}

// Sync persists every node and the bitmap
func (t *Tree) Sync() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	persist := func(n *Node) error { return t.persist(n) }
	if err := WalkBreadthFirst(t.root, persist); err != nil {
		return err
	}
	if err := t.persist(t.root); err != nil {
		return err
	}
	return t.saveBitmap()
}

func (t *Tree) fileNode(path string) (*Node, error) {
	n, ok := t.resolve(path)
	if !ok {
		return nil, notFound(path)
	}
	if n.IsDir() {
		return nil, fmt.Errorf("%q: %w", path, treefs.ErrIsDir)
	}
	return n, nil
}

// flush persists a file whose chain may have grown or shrunk
func (t *Tree) flush(n *Node) error {
	if err := t.persist(n); err != nil {
		logger := util.GetLogger("Tree.flush")
		logger.Error().Err(err).Str("path", n.fullname).Msg("Failed to persist file")
		return err
	}
	return t.saveBitmap()
}

// resize grows with zero fill or shrinks the data buffer
func (n *Node) resize(size int64) error {
	if size > MaxFileSize {
		return fmt.Errorf("size %d exceeds %d: %w", size, int64(MaxFileSize), treefs.ErrOutOfMemory)
	}
	if size <= int64(cap(n.data)) {
		old := len(n.data)
		n.data = n.data[:size]
		if int(size) > old {
			clear(n.data[old:])
		}
		return nil
	}
	grown := make([]byte, size)
	copy(grown, n.data)
	n.data = grown
	return nil
}
