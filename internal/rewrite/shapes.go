package rewrite

import (
	"sqlfront/internal/analyzer"
	"sqlfront/internal/ast"
)

// ruleLikeShape expands `LIKE T`: it replaces a like_shape_expr naming a
// registered shape with a col_def_list holding one col_def per name in
// T's struct, in order. Only the names are carried over: hidden columns
// are not filtered out, and the new col_defs carry no type or kind.
func ruleLikeShape(rw *Rewriter, az *analyzer.Analyzer, n *ast.Node) (*ast.Node, bool) {
	if !n.Is(ast.KindLikeShape) {
		return n, false
	}
	if !ast.IsID(n.Left) {
		return n, false
	}
	name := n.Left.StrVal
	obj, ok := lookupShape(az, name)
	if !ok || obj.Struct == nil {
		return n, false
	}

	loc := rw.currentLoc(n)
	var cols []*ast.Node
	for i, colName := range obj.Struct.Names {
		_ = i
		nameLeaf := ast.NewStr(rw.Arena, ast.KindStrLit, loc, colName, ast.StrSQLIdentifier, false)
		// The attrs slot is a like_expanded_attrs marker with no type
		// node; nothing here copies T's column types onto the col_def.
		attrs := ast.New(rw.Arena, ast.Intern("like_expanded_attrs", ast.Arity0), loc)
		cols = append(cols, ast.New2(rw.Arena, ast.KindColDef, loc, nameLeaf, attrs))
	}
	return ast.BuildList(rw.Arena, ast.KindColDefList, loc, cols), true
}

// ruleFromShape expands `FROM shape` (insert/fetch/call context) into an
// explicit expression list by walking the shape's columns in declaration
// order, per spec §4.7.1.
func ruleFromShape(rw *Rewriter, az *analyzer.Analyzer, n *ast.Node) (*ast.Node, bool) {
	if !n.Is(ast.KindFromShape) {
		return n, false
	}
	if !ast.IsID(n.Left) {
		return n, false
	}
	name := n.Left.StrVal
	obj, ok := lookupShape(az, name)
	if !ok || obj.Struct == nil || obj.Struct.Count() == 0 {
		return n, false
	}

	loc := rw.currentLoc(n)
	var exprs []*ast.Node
	for _, colName := range obj.Struct.Names {
		nameLeaf := ast.NewStr(rw.Arena, ast.KindStrLit, loc, colName, ast.StrSQLIdentifier, false)
		exprs = append(exprs, ast.New1(rw.Arena, ast.KindNameExpr, loc, nameLeaf))
	}
	return ast.BuildList(rw.Arena, ast.KindExprList, loc, exprs), true
}

// ruleColumnsMacro wires expandColumnsMacro into Rules. DISTINCT is
// carried by n.Right being non-nil (a marker node with no other payload,
// the convention the parser boundary/macro layer use to flag the
// DISTINCT keyword without a dedicated Arity1 variant). A @COLUMNS(*)
// reference with no FROM clause open is diagnosed rather than silently
// left alone, per spec §8's "`@COLUMNS(*)` without a FROM clause is an
// error" boundary.
func ruleColumnsMacro(rw *Rewriter, az *analyzer.Analyzer, n *ast.Node) (*ast.Node, bool) {
	if !n.Is(ast.KindColumnsMac) {
		return n, false
	}
	scope := az.CurrentScope()
	if scope == nil || scope.FromJoin == nil {
		az.Diag(n, "columns_macro_expr: @COLUMNS used without an open FROM clause")
		return n, false
	}
	return expandColumnsMacro(rw, az, n, n.Right != nil)
}

// expandColumnsMacro expands `@COLUMNS(... [DISTINCT])` into a qualified
// reference to every column of every table in the current FROM join, in
// join order. The macro's argument list (n.Left) is not consulted, so no
// LIKE sub-specs are handled. With DISTINCT, a column name that an
// earlier FROM table already produced is dropped.
func expandColumnsMacro(rw *Rewriter, az *analyzer.Analyzer, n *ast.Node, distinct bool) (*ast.Node, bool) {
	if !n.Is(ast.KindColumnsMac) {
		return n, false
	}
	scope := az.CurrentScope()
	if scope == nil || scope.FromJoin == nil {
		return n, false
	}

	loc := rw.currentLoc(n)
	seen := map[string]bool{}
	var exprs []*ast.Node
	for i, tableName := range scope.FromJoin.Names {
		s := scope.FromJoin.Structs[i]
		for _, colName := range s.Names {
			if distinct && seen[colName] {
				continue
			}
			seen[colName] = true
			alias := ast.NewStr(rw.Arena, ast.KindStrLit, loc, tableName, ast.StrSQLIdentifier, false)
			field := ast.NewStr(rw.Arena, ast.KindStrLit, loc, colName, ast.StrSQLIdentifier, false)
			exprs = append(exprs, ast.New2(rw.Arena, ast.KindDotExpr, loc, alias, field))
		}
	}
	return ast.BuildList(rw.Arena, ast.KindExprList, loc, exprs), true
}
