package rewrite

import (
	"sqlfront/internal/analyzer"
	"sqlfront/internal/ast"
	"sqlfront/internal/sem"
)

// ruleGuardStmt rewrites `IF expr stmt` (guard_stmt) into
// `IF expr THEN stmt END IF` (if_stmt with an empty elseif/else chain),
// spec §4.7.2.
func ruleGuardStmt(rw *Rewriter, az *analyzer.Analyzer, n *ast.Node) (*ast.Node, bool) {
	if !n.Is(ast.KindGuardStmt) {
		return n, false
	}
	loc := rw.currentLoc(n)
	thenBody := ast.BuildList(rw.Arena, ast.KindStmtList, loc, []*ast.Node{n.Right})
	return ast.New2(rw.Arena, ast.KindIfStmt, loc, n.Left, thenBody), true
}

// kindWhenArm pairs one WHEN condition with its THEN value; KindWhenList
// chains these (Left: arm, Right: tail-or-else) the way stmt_list chains
// statements.
var kindWhenArm = ast.Intern("when_arm", ast.Arity2)

// ruleIifExpr rewrites `iif(a,b,c)` into `CASE WHEN a THEN b ELSE c END`,
// spec §4.7.2: a single-arm when_list whose Right is the else value
// rather than a further when_list tail.
func ruleIifExpr(rw *Rewriter, az *analyzer.Analyzer, n *ast.Node) (*ast.Node, bool) {
	if !n.Is(ast.KindIifExpr) {
		return n, false
	}
	thenElse := n.Right
	if thenElse == nil || thenElse.Kind.Arity() != ast.Arity2 {
		return n, false
	}
	loc := rw.currentLoc(n)
	arm := ast.New2(rw.Arena, kindWhenArm, loc, n.Left, thenElse.Left)
	whenList := ast.New2(rw.Arena, ast.KindWhenList, loc, arm, thenElse.Right)
	return ast.New2(rw.Arena, ast.KindCaseExpr, loc, nil, whenList), true
}

// compoundOps maps each compound-assignment lexeme to the binary
// operator it desugars to, per spec §4.7.2.
var compoundOps = map[string]string{
	"+=": "+", "-=": "-", "*=": "*", "/=": "/", "%=": "%",
	"&=": "&", "|=": "|", "<<=": "<<", ">>=": ">>",
}

// ruleCompoundAssign rewrites `x OP= rhs` into `SET x := x OP rhs`. The
// operator lexeme is expected on n's attached Sem as a *sem.Record whose
// Kind field carries it (the parser boundary stamps this before the
// rewriter ever sees the node); a node with no recognized operator is
// left alone.
func ruleCompoundAssign(rw *Rewriter, az *analyzer.Analyzer, n *ast.Node) (*ast.Node, bool) {
	if !n.Is(ast.KindCompoundAsn) {
		return n, false
	}
	rec, ok := n.Sem.(*sem.Record)
	if !ok {
		return n, false
	}
	op, ok := compoundOps[rec.Kind]
	if !ok {
		return n, false
	}
	loc := rw.currentLoc(n)
	target, rhs := n.Left, n.Right

	readTarget := ast.Clone(rw.Arena, target)
	binExpr := ast.New2(rw.Arena, ast.KindBinaryExpr, loc, readTarget, rhs)
	binExpr.Sem = &sem.Record{Kind: op}
	return ast.New2(rw.Arena, ast.KindSetStmt, loc, target, binExpr), true
}

// ruleReverseApply rewrites `x:f(args)` into `f(x, args)` after an
// operator-table lookup, spec §4.7.2/§4.7.3.
func ruleReverseApply(rw *Rewriter, az *analyzer.Analyzer, n *ast.Node) (*ast.Node, bool) {
	if !n.Is(ast.KindReverseAply) {
		return n, false
	}
	call := n.Right
	if call == nil || !call.Is(ast.KindCallExpr) || !ast.IsID(call.Left) {
		return n, false
	}
	fnName := call.Left.StrVal

	resolved, ok := az.Registry.ResolveOperator("call", "", fnName)
	if !ok {
		resolved = fnName
	}

	loc := rw.currentLoc(n)
	args := ast.ListElements(call.Right, ast.KindArgList)
	allArgs := append([]*ast.Node{n.Left}, args...)
	argList := ast.BuildList(rw.Arena, ast.KindArgList, loc, allArgs)

	nameLeaf := ast.NewStr(rw.Arena, ast.KindStrLit, loc, resolved, ast.StrSQLIdentifier, false)
	return ast.New2(rw.Arena, ast.KindCallExpr, loc, nameLeaf, argList), true
}

// printfSpecTargets maps a conversion letter to the base-type keyword an
// argument narrower than the specifier must be cast to.
var printfSpecTargets = map[byte]string{
	'd': "LONG",
	'f': "REAL",
	's': "TEXT",
}

// formatSpecifiers extracts the conversion letters of a printf format
// string, skipping %% escapes.
func formatSpecifiers(format string) []byte {
	var out []byte
	for i := 0; i+1 < len(format); i++ {
		if format[i] != '%' {
			continue
		}
		i++
		if format[i] == '%' {
			continue
		}
		out = append(out, format[i])
	}
	return out
}

// printfCastTarget decides whether arg needs a widening cast to satisfy
// spec (the specifier demands long/real, the analyzed core type is
// narrower). Unanalyzed arguments are left alone; the analyzer's re-entry
// pass supplies their types on the next rewrite iteration.
func printfCastTarget(spec byte, arg *ast.Node) (string, bool) {
	rec := sem.Of(arg)
	if rec == nil || rec.IsError() {
		return "", false
	}
	switch spec {
	case 'd':
		if rec.Type.Core() == sem.CoreBool || rec.Type.Core() == sem.CoreInt32 {
			return "LONG", true
		}
	case 'f':
		switch rec.Type.Core() {
		case sem.CoreBool, sem.CoreInt32, sem.CoreInt64:
			return "REAL", true
		}
	}
	return "", false
}

// rulePrintf checks printf's format/argument counts, replaces a bare NULL
// argument with a typed zero literal (casting NULL outside a SQL context
// is not permitted by the runtime), and inserts widening casts on
// arguments whose analyzed core type is narrower than their specifier
// demands, per spec §4.7.2.
func rulePrintf(rw *Rewriter, az *analyzer.Analyzer, n *ast.Node) (*ast.Node, bool) {
	if !n.Is(ast.KindPrintfCall) {
		return n, false
	}
	args := ast.ListElements(n.Right, ast.KindExprList)

	var specs []byte
	if n.Left != nil && n.Left.Is(ast.KindStrLit) {
		specs = formatSpecifiers(n.Left.StrVal)
		if len(specs) != len(args) {
			az.Diag(n, "printf_call: %d format specifiers but %d arguments", len(specs), len(args))
			return n, false
		}
	}

	changed := false
	loc := rw.currentLoc(n)
	out := make([]*ast.Node, len(args))
	for i, arg := range args {
		switch {
		case arg.Is(ast.KindNullLit):
			out[i] = ast.NewInt(rw.Arena, ast.KindIntLit, loc, 0)
			changed = true
		case specs != nil:
			if target, ok := printfCastTarget(specs[i], arg); ok {
				typeLeaf := ast.NewStr(rw.Arena, ast.KindStrLit, loc, target, ast.StrSQLIdentifier, false)
				out[i] = ast.New2(rw.Arena, ast.KindCastExpr, loc, arg, typeLeaf)
				changed = true
			} else {
				out[i] = arg
			}
		default:
			out[i] = arg
		}
	}
	if !changed {
		return n, false
	}
	newArgs := ast.BuildList(rw.Arena, ast.KindExprList, loc, out)
	return ast.New2(rw.Arena, ast.KindPrintfCall, loc, n.Left, newArgs), true
}

// exprKind is the dispatch-table qualifier for an expression: its
// phantom-type kind when the analyzer recorded one, else its core type
// name, else "".
func exprKind(n *ast.Node) string {
	rec := sem.Of(n)
	if rec == nil {
		return ""
	}
	if rec.Kind != "" {
		return rec.Kind
	}
	if rec.Type.Core() != sem.CoreNull {
		return rec.Type.Core().String()
	}
	return ""
}

// ruleArrayGet rewrites `x[i]` through the operator table's array_get
// entry. A miss is an error naming the key, so the user knows what
// binding to add (spec §4.7.3).
func ruleArrayGet(rw *Rewriter, az *analyzer.Analyzer, n *ast.Node) (*ast.Node, bool) {
	if !n.Is(ast.KindArrayGet) {
		return n, false
	}
	kind := exprKind(n.Left)
	fn, ok := az.Registry.ResolveOperator("array_get", kind, "")
	if !ok {
		az.Diag(n, "array_get_expr: no operator binding for key %q", "array_get:"+orAll(kind)+":all")
		return n, false
	}
	loc := rw.currentLoc(n)
	argList := ast.BuildList(rw.Arena, ast.KindArgList, loc, []*ast.Node{n.Left, n.Right})
	nameLeaf := ast.NewStr(rw.Arena, ast.KindStrLit, loc, fn, ast.StrSQLIdentifier, false)
	return ast.New2(rw.Arena, ast.KindCallExpr, loc, nameLeaf, argList), true
}

// ruleArraySet rewrites `x[i] := v` (array_set_expr whose left is the
// array_get shape and whose right is the value) into the bound setter
// call f(x, i, v).
func ruleArraySet(rw *Rewriter, az *analyzer.Analyzer, n *ast.Node) (*ast.Node, bool) {
	if !n.Is(ast.KindArraySet) {
		return n, false
	}
	get := n.Left
	if get == nil || !get.Is(ast.KindArrayGet) {
		return n, false
	}
	kind := exprKind(get.Left)
	fn, ok := az.Registry.ResolveOperator("array_set", kind, "")
	if !ok {
		az.Diag(n, "array_set_expr: no operator binding for key %q", "array_set:"+orAll(kind)+":all")
		return n, false
	}
	loc := rw.currentLoc(n)
	argList := ast.BuildList(rw.Arena, ast.KindArgList, loc, []*ast.Node{get.Left, get.Right, n.Right})
	nameLeaf := ast.NewStr(rw.Arena, ast.KindStrLit, loc, fn, ast.StrSQLIdentifier, false)
	return ast.New2(rw.Arena, ast.KindCallExpr, loc, nameLeaf, argList), true
}

// rulePolyReverse rewrites `x:(a,b,c)` into `f_k1_k2_k3(x,a,b,c)`: the
// base name comes from the functor binding for x's kind, and each
// argument's kind is appended to derive the target (spec §4.7.2).
func rulePolyReverse(rw *Rewriter, az *analyzer.Analyzer, n *ast.Node) (*ast.Node, bool) {
	if !n.Is(ast.KindPolyReverse) {
		return n, false
	}
	kind := exprKind(n.Left)
	base, ok := az.Registry.ResolveOperator("functor", kind, "")
	if !ok {
		az.Diag(n, "reverse_apply_poly_expr: no operator binding for key %q", "functor:"+orAll(kind)+":all")
		return n, false
	}
	args := ast.ListElements(n.Right, ast.KindArgList)
	fn := base
	for _, arg := range args {
		k := exprKind(arg)
		if k == "" {
			// Argument kinds drive the target name; an unanalyzed argument
			// means this rewrite fires on a later iteration instead.
			return n, false
		}
		fn += "_" + k
	}
	loc := rw.currentLoc(n)
	allArgs := append([]*ast.Node{n.Left}, args...)
	argList := ast.BuildList(rw.Arena, ast.KindArgList, loc, allArgs)
	nameLeaf := ast.NewStr(rw.Arena, ast.KindStrLit, loc, fn, ast.StrSQLIdentifier, false)
	return ast.New2(rw.Arena, ast.KindCallExpr, loc, nameLeaf, argList), true
}

func orAll(kind string) string {
	if kind == "" {
		return "all"
	}
	return kind
}
