package tree

import (
	"testing"

	"golang.org/x/exp/slices"
)

func intEq(a, b int) bool { return a == b }

func TestTreeAddChild(t *testing.T) {
	root := New(-1, intEq)
	root.AddChild(0)
	child := root.AddChild(1)
	grandchild := child.AddChild(0)

	if !root.IsRoot() {
		t.Fatalf("root should report IsRoot")
	}
	if root.Len() != 4 {
		t.Fatalf("expected 4 nodes total, got %d", root.Len())
	}
	if len(root.Children()) != 2 {
		t.Fatalf("expected 2 direct children, got %d", len(root.Children()))
	}
	if grandchild.IsRoot() {
		t.Fatalf("grandchild should not report IsRoot")
	}
	if grandchild.Depth() != 2 {
		t.Fatalf("expected depth 2, got %d", grandchild.Depth())
	}
}

func TestHasChildUsesProvidedEquality(t *testing.T) {
	root := New(-1, intEq)
	root.AddChild(0)
	root.AddChild(1)

	if !root.HasChild(1) {
		t.Fatalf("expected HasChild(1) to be true")
	}
	if root.HasChild(2) {
		t.Fatalf("expected HasChild(2) to be false")
	}
	if root.GetChild(0) == nil {
		t.Fatalf("expected GetChild(0) to find the first child")
	}
}

func TestGetAllLeafNodes(t *testing.T) {
	root := New(-1, intEq)
	a := root.AddChild(0)
	root.AddChild(1)
	a.AddChild(2)

	leaves := root.GetAllLeafNodes()
	if len(leaves) != 2 {
		t.Fatalf("expected 2 leaves, got %d", len(leaves))
	}
}

func TestDepthFirstSearchAndSearchLeafNodes(t *testing.T) {
	root := New(-1, intEq)
	a := root.AddChild(0)
	a.AddChild(2)

	if !root.DepthFirstSearch(func(v int) bool { return v == 2 }) {
		t.Fatalf("expected to find 2 somewhere in the tree")
	}
	if root.SearchLeafNodes(func(v int) bool { return v == 0 }) {
		t.Fatalf("0 is not a leaf, SearchLeafNodes should not find it")
	}
	if !root.SearchLeafNodes(func(v int) bool { return v == 2 }) {
		t.Fatalf("2 is a leaf, SearchLeafNodes should find it")
	}
}

// The model checker always adds a tree node's children in strictly
// increasing thread-id order (spec.md §9's scheduler heuristic); this
// checks that children added in that order are read back in that
// order. The tree does not sort children itself, so the invariant is
// the caller's to keep, not the tree's to enforce.
func TestChildrenPreserveInsertionOrderForSchedulerHeuristic(t *testing.T) {
	root := New(-1, intEq)
	root.AddChild(0)
	root.AddChild(2)
	root.AddChild(5)

	tids := make([]int, len(root.Children()))
	for i, c := range root.Children() {
		tids[i] = c.Payload()
	}
	if !slices.IsSorted(tids) {
		t.Fatalf("expected children in increasing tid order, got %v", tids)
	}
}

func TestPathFromRootReplaysTheThreadIdSequence(t *testing.T) {
	root := New(0, intEq)
	a := root.AddChild(1)
	b := a.AddChild(0)
	c := b.AddChild(1)

	path := c.PathFromRoot()
	want := []int{0, 1, 0, 1}
	if len(path) != len(want) {
		t.Fatalf("expected path length %d, got %d", len(want), len(path))
	}
	for i, v := range want {
		if path[i] != v {
			t.Fatalf("path[%d] = %d, want %d", i, path[i], v)
		}
	}
}
