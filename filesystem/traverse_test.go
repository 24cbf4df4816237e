package filesystem

import (
	"errors"
	"testing"

	"github.com/brettbedarf/treefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildWalkTree creates /a, /b, /a/c, /b/d, /a/c/e, /f
func buildWalkTree(t *testing.T) *Tree {
	t.Helper()
	tree, _ := newTestTree(t)
	mustCreate(t, tree, "/a", treefs.DirNodeType)
	mustCreate(t, tree, "/b", treefs.DirNodeType)
	mustCreate(t, tree, "/a/c", treefs.DirNodeType)
	mustCreate(t, tree, "/b/d", treefs.FileNodeType)
	mustCreate(t, tree, "/a/c/e", treefs.FileNodeType)
	mustCreate(t, tree, "/f", treefs.FileNodeType)
	return tree
}

func TestWalkDepthFirst(t *testing.T) {
	t.Parallel()
	tree := buildWalkTree(t)
	root, _ := tree.Resolve("/")

	var order []string
	err := WalkDepthFirst(root, func(n *Node) error {
		order = append(order, n.Fullname())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"/a/c/e", "/a/c", "/a", "/b/d", "/b", "/f", "/"}, order)
}

func TestWalkBreadthFirst(t *testing.T) {
	t.Parallel()
	tree := buildWalkTree(t)
	root, _ := tree.Resolve("/")

	var order []string
	err := WalkBreadthFirst(root, func(n *Node) error {
		order = append(order, n.Fullname())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"/a", "/b", "/f", "/a/c", "/a/c/e", "/b/d"}, order)
}

func TestWalks_StopAtFirstError(t *testing.T) {
	t.Parallel()
	tree := buildWalkTree(t)
	root, _ := tree.Resolve("/")
	stop := errors.New("stop")

	walks := map[string]func(*Node, VisitFunc) error{
		"DepthFirst":   WalkDepthFirst,
		"BreadthFirst": WalkBreadthFirst,
	}
	for name, walk := range walks {
		t.Run(name, func(t *testing.T) {
			visited := 0
			err := walk(root, func(n *Node) error {
				visited++
				if visited == 2 {
					return stop
				}
				return nil
			})
			assert.ErrorIs(t, err, stop)
			assert.Equal(t, 2, visited)
		})
	}
}

func TestWalkDepthFirst_DestructiveVisitor(t *testing.T) {
	t.Parallel()
	tree := buildWalkTree(t)
	a, _ := tree.Resolve("/a")

	visited := 0
	err := WalkDepthFirst(a, func(n *Node) error {
		visited++
		n.release()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, visited)
}

func TestWalkBreadthFirst_FileStart(t *testing.T) {
	t.Parallel()
	tree := buildWalkTree(t)
	f, _ := tree.Resolve("/f")

	called := false
	require.NoError(t, WalkBreadthFirst(f, func(*Node) error {
		called = true
		return nil
	}))
	assert.False(t, called)
}
