package ast

import "fmt"

// Print renders n as an indented textual form used by tests to assert tree
// shape without comparing Go struct literals field by field. The format is
// deliberately simple: one node per line, children indented two spaces
// under their parent, leaves show their payload inline.
func Print(n *Node) string {
	buf := NewCharBuf()
	print1(buf, n)
	return buf.String()
}

func print1(buf *CharBuf, n *Node) {
	if n == nil {
		buf.Printf("(nil)\n")
		return
	}
	switch {
	case n.Is(KindIntLit):
		buf.Printf("%s %d\n", n.Kind, n.IntVal)
		return
	case n.Is(KindNumLit):
		buf.Printf("%s %s\n", n.Kind, n.NumText)
		return
	case n.Is(KindStrLit):
		q := ""
		if n.QuotedID {
			q = " quoted"
		}
		buf.Printf("%s %q%s\n", n.Kind, n.StrVal, q)
		return
	case n.Is(KindBlobLit):
		buf.Printf("%s %s\n", n.Kind, n.BlobVal)
		return
	}

	buf.Printf("%s\n", n.Kind)
	if n.Kind.arity == Arity0 {
		return
	}
	buf.Indent()
	print1(buf, n.Left)
	if n.Kind.arity == Arity2 {
		print1(buf, n.Right)
	}
	buf.Dedent()
}

// Dump is a one-line debug summary, handy in error messages.
func Dump(n *Node) string {
	if n == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s@%s", n.Kind, n.Loc)
}
