package filesystem

import "github.com/hanwen/go-fuse/v2/fuse"

// NodeContext wraps a [Node] of a read-locked [Tree].
// Calling NodeContext.Close() unwinds all unlocking/cleanup callbacks in reverse order.
// Do NOT call any Tree mutator while this context is active; the tree lock
// is not reentrant.
//
// NOTE: NodeContext itself is **not** thread-safe meaning references
// to it should not be shared between goroutines
type NodeContext struct {
	tree     *Tree
	node     *Node
	closeFns []func()
}

// Node returns the underlying node; only valid until Close
func (ctx *NodeContext) Node() *Node {
	return ctx.node
}

func (ctx *NodeContext) Name() string {
	return ctx.node.name
}

// Path returns the absolute path the node was created at
func (ctx *NodeContext) Path() string {
	return ctx.node.fullname
}

func (ctx *NodeContext) InodeID() uint64 {
	return ctx.node.inodeID
}

func (ctx *NodeContext) IsDir() bool {
	return ctx.node.IsDir()
}

// Mode returns the file type and permission bits; ok is false when the
// node's kind is unknown
func (ctx *NodeContext) Mode() (uint32, bool) {
	return ctx.node.mode()
}

// Attr returns a snapshot of the fuse attributes.
func (ctx *NodeContext) Attr() fuse.Attr {
	return ctx.node.attr(ctx.tree.store.BlockSize())
}

// Parent returns the parent's context sharing this context's lock.
// Root is its own parent.
func (ctx *NodeContext) Parent() *NodeContext {
	p := ctx.node.parent
	if p == nil {
		p = ctx.node
	}
	return &NodeContext{tree: ctx.tree, node: p}
}

// IterChildren calls fn for each child in creation order until fn returns
// false. Child contexts share this context's lock and need no Close.
func (ctx *NodeContext) IterChildren(fn func(child *NodeContext) bool) {
	for _, ch := range ctx.node.children {
		if !fn(&NodeContext{tree: ctx.tree, node: ch}) {
			return
		}
	}
}

// Child returns the context of the named child, sharing this context's lock
func (ctx *NodeContext) Child(name string) (*NodeContext, bool) {
	ch := ctx.node.child(name)
	if ch == nil {
		return nil, false
	}
	return &NodeContext{tree: ctx.tree, node: ch}, true
}

// ReadAt copies file data starting at off into buf and returns the byte
// count; 0 at or past the end
func (ctx *NodeContext) ReadAt(buf []byte, off int64) int {
	data := ctx.node.data
	if off < 0 || off >= int64(len(data)) {
		return 0
	}
	return copy(buf, data[off:])
}

// AddClose pushes a cleanup callback (e.g., unlock) onto the end of the stack.
func (ctx *NodeContext) AddClose(fn func()) {
	ctx.closeFns = append(ctx.closeFns, fn)
}

// Close unwinds all cleanup callbacks in reverse order.
// Safe to call even if ctx is nil or no locks were acquired; it is
// a no-op in those cases, so you can `defer ctx.Close()` unconditionally.
//
// Example:
//
//	ctx, err := tree.NodeCtx("/a/b")
//	if err != nil {
//		return err
//	}
//	defer ctx.Close()
func (ctx *NodeContext) Close() {
	if ctx == nil {
		return
	}
	for i := len(ctx.closeFns) - 1; i >= 0; i-- {
		ctx.closeFns[i]()
	}
	ctx.closeFns = nil
}
