package ast

// Clone produces a fresh, isomorphic copy of the subtree rooted at n in the
// same arena. Parent pointers in the clone point only within the clone;
// attached semantic records are not copied (a clone is unanalyzed until the
// rewriter that produced it re-enters the analyzer, spec §2's rewrite loop).
func Clone(a *Arena, n *Node) *Node {
	if n == nil {
		return nil
	}
	c := a.alloc()
	c.Kind = n.Kind
	c.Loc = n.Loc
	c.IntVal = n.IntVal
	c.NumText = n.NumText
	c.NumKind = n.NumKind
	c.StrVal = n.StrVal
	c.StrSub = n.StrSub
	c.QuotedID = n.QuotedID
	c.BlobVal = n.BlobVal
	if !n.IsLeaf() {
		c.SetLeft(Clone(a, n.Left))
		c.SetRight(Clone(a, n.Right))
	}
	return c
}

// CloneAt is Clone but relocates every node in the copy to loc, the form a
// rewrite uses when it clones a shared-fragment body into a call site and
// wants the clone to carry the call site's location rather than the
// fragment's original one.
func CloneAt(a *Arena, n *Node, loc Location) *Node {
	c := Clone(a, n)
	relocate(c, loc)
	return c
}

func relocate(n *Node, loc Location) {
	if n == nil {
		return
	}
	n.Loc = loc
	if !n.IsLeaf() {
		relocate(n.Left, loc)
		relocate(n.Right, loc)
	}
}
