// Package ast provides the arena-allocated, tagged-node abstract syntax tree
// that every other component in this compiler builds on: parsing produces an
// ast.Node tree, the analyzer annotates it in place, the rewriter replaces
// subtrees, and the emitters walk the finished tree read-only.
package ast

import "sync"

// Arena is a single growing pool that gives every node in a translation unit
// the same lifetime: allocate freely during compilation, release everything
// at once when the compiler is done with the tree. There is no per-node
// free; nodes are reclaimed only when the Arena itself is discarded.
type Arena struct {
	mu    sync.Mutex
	nodes []*Node
}

// NewArena returns an empty arena. A compiler creates exactly one per
// translation unit.
func NewArena() *Arena {
	return &Arena{}
}

// alloc bump-allocates a Node and records it so Release can drop every
// reference at once.
func (a *Arena) alloc() *Node {
	n := &Node{}
	a.mu.Lock()
	a.nodes = append(a.nodes, n)
	a.mu.Unlock()
	return n
}

// Len reports how many nodes the arena currently owns.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.nodes)
}

// Release drops every node reference held by the arena. Any Node pointers a
// caller kept outside the arena become dangling from the arena's point of
// view (Go's GC still owns their actual lifetime); Release exists to mirror
// the bulk-free discipline of the original allocator, not to free memory
// Go wouldn't otherwise collect.
func (a *Arena) Release() {
	a.mu.Lock()
	a.nodes = nil
	a.mu.Unlock()
}
