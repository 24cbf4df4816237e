package filesystem

import (
	"sync"
	"sync/atomic"

	"github.com/brettbedarf/treefs"
	"github.com/brettbedarf/treefs/config"
)

// Tree is the authoritative namespace. A single RWMutex covers every node:
// readers go through a [NodeContext], mutators hold the write lock for the
// whole operation including store calls.
type Tree struct {
	cfg   *config.Config
	store treefs.NodeStore
	root  *Node
	mu    sync.RWMutex
	nodes atomic.Int64 // live nodes including root
}

func newTree(cfg *config.Config, store treefs.NodeStore) *Tree {
	return &Tree{cfg: cfg, store: store}
}

// Store returns the persistence collaborator the tree writes through
func (t *Tree) Store() treefs.NodeStore {
	return t.store
}

// NodeCount returns the number of live nodes including root
func (t *Tree) NodeCount() int64 {
	return t.nodes.Load()
}

// RootCtx read-locks the tree and returns the root's context
func (t *Tree) RootCtx() *NodeContext {
	t.mu.RLock()
	ctx := &NodeContext{tree: t, node: t.root}
	ctx.AddClose(t.mu.RUnlock)
	return ctx
}

// NodeCtx read-locks the tree and returns the context of the node at path.
// On error no lock is held.
//
// Caller is responsible for closing the context when done `defer ctx.Close()`.
func (t *Tree) NodeCtx(path string) (*NodeContext, error) {
	t.mu.RLock()
	n, ok := t.resolve(path)
	if !ok {
		t.mu.RUnlock()
		return nil, notFound(path)
	}
	ctx := &NodeContext{tree: t, node: n}
	ctx.AddClose(t.mu.RUnlock)
	return ctx, nil
}

// Resolve returns the node at path. The returned node must not be accessed
// once other goroutines may mutate the tree.
func (t *Tree) Resolve(path string) (*Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.resolve(path)
}
