package filesystem

// VisitFunc is called for each node of a walk. Returning an error stops the
// walk and the error is returned to the walk's caller.
type VisitFunc func(n *Node) error

// WalkDepthFirst visits every node of the subtree rooted at n in post-order:
// all of a node's children are visited before the node itself. Child lists
// are copied before descending, so fn may release or detach the nodes it is
// given.
func WalkDepthFirst(n *Node, fn VisitFunc) error {
	for _, ch := range n.Children() {
		if err := WalkDepthFirst(ch, fn); err != nil {
			return err
		}
	}
	return fn(n)
}

// WalkBreadthFirst visits each direct child of n, then descends into each
// directory child in order. n itself is not visited.
func WalkBreadthFirst(n *Node, fn VisitFunc) error {
	children := n.Children()
	for _, ch := range children {
		if err := fn(ch); err != nil {
			return err
		}
	}
	for _, ch := range children {
		if !ch.IsDir() {
			continue
		}
		if err := WalkBreadthFirst(ch, fn); err != nil {
			return err
		}
	}
	return nil
}
