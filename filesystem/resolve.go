package filesystem

import (
	"fmt"
	"strings"

	"github.com/brettbedarf/treefs"
)

// splitPath returns the non-empty segments of an absolute path
func splitPath(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
}

// resolve walks from root matching each segment against the children's
// names. Caller holds t.mu.
func (t *Tree) resolve(path string) (*Node, bool) {
	cur := t.root
	if path == "/" {
		return cur, cur != nil
	}
	segs := splitPath(path)
	if len(segs) == 0 || !strings.HasPrefix(path, "/") {
		return nil, false
	}
	for _, name := range segs {
		cur = cur.child(name)
		if cur == nil {
			return nil, false
		}
	}
	return cur, true
}

// resolveParent returns the directory that holds path's final segment
func (t *Tree) resolveParent(path string) (parent *Node, name string, err error) {
	segs := splitPath(path)
	if len(segs) == 0 || !strings.HasPrefix(path, "/") {
		return nil, "", fmt.Errorf("%q has no final segment: %w", path, treefs.ErrInvalidOperation)
	}
	name = segs[len(segs)-1]
	parent = t.root
	for _, seg := range segs[:len(segs)-1] {
		if !parent.IsDir() {
			return nil, "", fmt.Errorf("%q: %w", path, treefs.ErrNotDir)
		}
		parent = parent.child(seg)
		if parent == nil {
			return nil, "", notFound(path)
		}
	}
	if !parent.IsDir() {
		return nil, "", fmt.Errorf("%q: %w", path, treefs.ErrNotDir)
	}
	return parent, name, nil
}

func notFound(path string) error {
	return fmt.Errorf("%q: %w", path, treefs.ErrNotFound)
}
