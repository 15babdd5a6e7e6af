package ast

// IsKind reports whether n is tagged k. It is the uniform replacement for
// the original's per-tag `is_ast_<tag>` predicate family: rather than
// generating one function per kind, callers pass the Kind value directly,
// which is just as cheap (a pointer compare) and doesn't require codegen.
func IsKind(n *Node, k *Kind) bool {
	return n.Is(k)
}

// IsAnyOf reports whether n is tagged with any of ks.
func IsAnyOf(n *Node, ks ...*Kind) bool {
	if n == nil || n.Kind == nil {
		return false
	}
	for _, k := range ks {
		if n.Kind == k {
			return true
		}
	}
	return false
}

// IsAnyMacroRef reports whether n is a macro reference or macro-argument
// reference node, the two tags the macro expander (internal/macro) must
// special-case before semantic analysis ever sees them.
func IsAnyMacroRef(n *Node) bool {
	return IsAnyOf(n, KindMacroRef, KindMacroArgRef)
}

// IsPrimitive reports whether n is one of the four literal leaf kinds.
func IsPrimitive(n *Node) bool {
	return IsAnyOf(n, KindIntLit, KindNumLit, KindStrLit, KindBlobLit)
}

// IsID reports whether n is a str leaf carrying a plain (non-quoted) SQL
// identifier.
func IsID(n *Node) bool {
	return n != nil && n.Is(KindStrLit) && n.StrSub == StrSQLIdentifier
}

// IsQID reports whether n is a str leaf carrying a quoted identifier that
// must round-trip with its original quoting preserved.
func IsQID(n *Node) bool {
	return n != nil && n.Is(KindStrLit) && n.StrSub == StrQuotedIdentifier && n.QuotedID
}

// IsError reports whether n's attached semantic record (if any) marks it as
// an error node. It is defined here, rather than in package sem, so that
// ast-level helpers (like error-poisoning checks during tree walks) don't
// need to import sem; it type-asserts against a small interface instead of
// sem.Record directly to avoid the dependency.
func IsError(n *Node) bool {
	if n == nil || n.Sem == nil {
		return false
	}
	if e, ok := n.Sem.(interface{ IsError() bool }); ok {
		return e.IsError()
	}
	return false
}
