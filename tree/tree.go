// Package tree provides a small generic n-ary tree, adapted from the
// teacher pack's state-space tree. The model checker (package checker)
// uses it as the trace tree of spec.md §4.4: each node's payload is
// the thread id chosen at that step, and the path from the root to any
// node is the thread-id sequence that replays to reach it.
package tree

type Tree[T any] struct {
	payload  T
	parent   *Tree[T]
	children []*Tree[T]
	depth    int
	eq       func(a, b T) bool
}

func New[T any](payload T, eq func(a, b T) bool) Tree[T] {
	return Tree[T]{
		payload:  payload,
		parent:   nil,
		children: []*Tree[T]{},
		depth:    0,
		eq:       eq,
	}
}

// Len returns the total number of nodes in the subtree rooted at t.
func (t *Tree[T]) Len() int {
	n := 1
	for _, child := range t.children {
		n += child.Len()
	}
	return n
}

// AddChild adds a new child with the provided payload and returns it.
func (t *Tree[T]) AddChild(payload T) *Tree[T] {
	treeNode := &Tree[T]{
		payload:  payload,
		parent:   t,
		children: []*Tree[T]{},
		depth:    t.depth + 1,
		eq:       t.eq,
	}
	t.children = append(t.children, treeNode)
	return treeNode
}

// HasChild reports whether t has a child with the provided payload.
func (t *Tree[T]) HasChild(payload T) bool {
	for _, node := range t.Children() {
		if t.eq(payload, node.Payload()) {
			return true
		}
	}
	return false
}

// GetChild returns the first child with the provided payload, or nil.
func (t *Tree[T]) GetChild(payload T) *Tree[T] {
	for _, node := range t.Children() {
		if t.eq(payload, node.Payload()) {
			return node
		}
	}
	return nil
}

func (t *Tree[T]) IsRoot() bool {
	return t.Parent() == nil
}

func (t *Tree[T]) IsLeafNode() bool {
	return len(t.Children()) == 0
}

// GetAllLeafNodes returns every leaf descendant of t (t itself if it
// is already a leaf).
func (t *Tree[T]) GetAllLeafNodes() []*Tree[T] {
	leafNodes := []*Tree[T]{}
	if t.IsLeafNode() {
		leafNodes = append(leafNodes, t)
		return leafNodes
	}
	for _, child := range t.Children() {
		leafNodes = append(leafNodes, child.GetAllLeafNodes()...)
	}
	return leafNodes
}

// SearchLeafNodes reports whether search holds for some leaf node.
func (t *Tree[T]) SearchLeafNodes(search func(T) bool) bool {
	if t.IsLeafNode() {
		if search(t.Payload()) {
			return true
		}
	}
	for _, child := range t.Children() {
		if child.SearchLeafNodes(search) {
			return true
		}
	}
	return false
}

// DepthFirstSearch reports whether search holds for t's payload or any
// descendant's, visited depth-first.
func (t *Tree[T]) DepthFirstSearch(search func(T) bool) bool {
	if search(t.Payload()) {
		return true
	}
	for _, child := range t.Children() {
		if child.DepthFirstSearch(search) {
			return true
		}
	}
	return false
}

func (t *Tree[T]) Payload() T {
	return t.payload
}

func (t *Tree[T]) Parent() *Tree[T] {
	return t.parent
}

func (t *Tree[T]) Depth() int {
	return t.depth
}

func (t *Tree[T]) Children() []*Tree[T] {
	return t.children
}

// PathFromRoot returns the payload sequence from the root to t,
// inclusive of both ends. The model checker replays a node by
// re-running the AST with this sequence as its thread-id schedule.
func (t *Tree[T]) PathFromRoot() []T {
	path := make([]T, t.depth+1)
	node := t
	for i := t.depth; i >= 0; i-- {
		path[i] = node.payload
		node = node.parent
	}
	return path
}
