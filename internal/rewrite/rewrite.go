// Package rewrite implements the AST-rewriting/desugaring layer, spec
// component G. Every rewrite runs under the analyzer's control and
// re-enters analysis on its output (internal/analyzer's Rewriter
// interface is how the two packages call each other without an import
// cycle: analyzer imports nothing from rewrite, rewrite imports
// analyzer). Rewrites mint new nodes at whatever location is current on
// the ambient LocationStack (internal/ast/location.go) when they run.
package rewrite

import (
	"sqlfront/internal/analyzer"
	"sqlfront/internal/ast"
	"sqlfront/internal/registry"
)

// Rule rewrites n if it recognizes n's shape, returning the replacement
// and true, or (n, false) to decline.
type Rule func(rw *Rewriter, az *analyzer.Analyzer, n *ast.Node) (*ast.Node, bool)

// Rewriter holds the arena rewrites allocate from, the ambient location
// stack rewrites must thread through nested calls, and the ordered list
// of rules tried against every node.
type Rewriter struct {
	Arena *ast.Arena
	Locs  *ast.LocationStack
	Rules []Rule
}

// New returns a Rewriter with the standard rule set installed, in the
// order spec §4.7 lists its categories: shape expansion, control-flow
// and expression sugar, backed tables, then out-union parent-child.
// Order matters only in that earlier rules may produce shapes later
// rules also recognize (e.g. shape expansion can introduce a printf
// call), so later rules always get a chance to see a rule's output via
// the analyzer's re-entry loop rather than by ordering within one pass.
func New(arena *ast.Arena) *Rewriter {
	rw := &Rewriter{Arena: arena, Locs: ast.NewLocationStack()}
	rw.Rules = []Rule{
		ruleLikeShape,
		ruleFromShape,
		ruleColumnsMacro,
		ruleGuardStmt,
		ruleIifExpr,
		ruleCompoundAssign,
		ruleReverseApply,
		rulePolyReverse,
		ruleArrayGet,
		ruleArraySet,
		rulePrintf,
		ruleBackedTable,
		ruleOutUnionParent,
	}
	return rw
}

// Rewrite implements analyzer.Rewriter: it tries every rule against n in
// order and applies the first match. If none matches n itself, it
// descends into n's children (respecting Arity) and applies the same
// search there, since a rule like the backed-table rewrites only ever
// matches a select/insert/update/delete/upsert statement that can appear
// anywhere under the top-level statement analyzer.analyzeOne passes in,
// not only at that top level. It returns (n, false) only when nothing
// anywhere in the subtree changed, the signal analyzer.analyzeOne uses to
// stop looping.
func (rw *Rewriter) Rewrite(az *analyzer.Analyzer, n *ast.Node) (*ast.Node, bool) {
	if n == nil {
		return nil, false
	}
	close := rw.Locs.Open(n.Loc)
	defer close()

	for _, rule := range rw.Rules {
		if out, ok := rule(rw, az, n); ok {
			return out, true
		}
	}

	if n.IsLeaf() {
		return n, false
	}
	changed := false
	if left, ok := rw.Rewrite(az, n.Left); ok {
		n.SetLeft(left)
		changed = true
	}
	if n.Kind.Arity() == ast.Arity2 {
		if right, ok := rw.Rewrite(az, n.Right); ok {
			n.SetRight(right)
			changed = true
		}
	}
	return n, changed
}

// currentLoc is what a rule should stamp on every node it mints: the
// ambient location if a rewrite scope is open, else n's own location.
func (rw *Rewriter) currentLoc(n *ast.Node) ast.Location {
	if rw.Locs.InScope() {
		return rw.Locs.Current()
	}
	return n.Loc
}

// lookupShape resolves a shape name to its struct descriptor via the
// registries the analyzer populated so far, searching tables, views, proc
// arg bundles, named types and then procedure results, in that order.
// Cursor shapes are not searched: the analyzer keeps them internally, not
// in a registry. Shapes declared later in the
// same file than their use are out of scope for this repo, matching the
// original's single-pass declare-then-use discipline.
func lookupShape(az *analyzer.Analyzer, name string) (*registry.Object, bool) {
	for _, table := range []*registryLookup{
		{az.Registry.Tables}, {az.Registry.Views}, {az.Registry.ArgBundles}, {az.Registry.NamedTypes},
		{az.Registry.Procedures},
	} {
		if obj, ok := table.t.Find(name); ok {
			return obj, true
		}
	}
	return nil, false
}

type registryLookup struct {
	t interface {
		Find(string) (*registry.Object, bool)
	}
}
