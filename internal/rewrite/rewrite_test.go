package rewrite_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sqlfront/internal/analyzer"
	"sqlfront/internal/ast"
	"sqlfront/internal/registry"
	"sqlfront/internal/rewrite"
	"sqlfront/internal/sem"
)

func loc(line int32) ast.Location { return ast.Location{Filename: "t.sql", Line: line} }

func nameNode(a *ast.Arena, n string, line int32) *ast.Node {
	return ast.NewStr(a, ast.KindStrLit, loc(line), n, ast.StrSQLIdentifier, false)
}

func TestRuleGuardStmtBecomesIfStmt(t *testing.T) {
	a := ast.NewArena()
	az := analyzer.New(a)
	rw := rewrite.New(a)

	cond := ast.NewInt(a, ast.KindIntLit, loc(1), 1)
	body := ast.New(a, ast.KindLeaveStmt, loc(1))
	guard := ast.New2(a, ast.KindGuardStmt, loc(1), cond, body)

	out, changed := rw.Rewrite(az, guard)
	require.True(t, changed)
	require.True(t, out.Is(ast.KindIfStmt))
	require.Same(t, cond, out.Left)
}

func TestRuleIifExprBecomesCaseExpr(t *testing.T) {
	a := ast.NewArena()
	az := analyzer.New(a)
	rw := rewrite.New(a)

	cond := ast.NewInt(a, ast.KindIntLit, loc(1), 1)
	thenVal := ast.NewInt(a, ast.KindIntLit, loc(1), 10)
	elseVal := ast.NewInt(a, ast.KindIntLit, loc(1), 20)
	thenElse := ast.New2(a, ast.Intern("then_else_pair", ast.Arity2), loc(1), thenVal, elseVal)
	iif := ast.New2(a, ast.KindIifExpr, loc(1), cond, thenElse)

	out, changed := rw.Rewrite(az, iif)
	require.True(t, changed)
	require.True(t, out.Is(ast.KindCaseExpr))
	require.True(t, out.Right.Is(ast.KindWhenList))
	require.Same(t, cond, out.Right.Left.Left)
	require.Same(t, thenVal, out.Right.Left.Right)
	require.Same(t, elseVal, out.Right.Right)
}

func TestRuleCompoundAssignDesugars(t *testing.T) {
	a := ast.NewArena()
	az := analyzer.New(a)
	rw := rewrite.New(a)

	target := nameNode(a, "x", 1)
	rhs := ast.NewInt(a, ast.KindIntLit, loc(1), 5)
	asn := ast.New2(a, ast.KindCompoundAsn, loc(1), target, rhs)
	asn.Sem = &sem.Record{Kind: "+="}

	out, changed := rw.Rewrite(az, asn)
	require.True(t, changed)
	require.True(t, out.Is(ast.KindSetStmt))
	require.True(t, out.Right.Is(ast.KindBinaryExpr))
}

func TestRuleCompoundAssignDeclinesUnknownOp(t *testing.T) {
	a := ast.NewArena()
	az := analyzer.New(a)
	rw := rewrite.New(a)

	asn := ast.New2(a, ast.KindCompoundAsn, loc(1), nameNode(a, "x", 1), ast.NewInt(a, ast.KindIntLit, loc(1), 1))
	_, changed := rw.Rewrite(az, asn)
	require.False(t, changed)
}

func TestRuleReverseApplyUsesOperatorTable(t *testing.T) {
	a := ast.NewArena()
	az := analyzer.New(a)
	rw := rewrite.New(a)

	az.Registry.BindOperator(registry.OperatorKey{Op: "call", RightKind: "frob"}, "real_frob_fn")

	x := nameNode(a, "x", 1)
	callee := nameNode(a, "frob", 1)
	call := ast.New2(a, ast.KindCallExpr, loc(1), callee, ast.BuildList(a, ast.KindArgList, loc(1), nil))
	apply := ast.New2(a, ast.KindReverseAply, loc(1), x, call)

	out, changed := rw.Rewrite(az, apply)
	require.True(t, changed)
	require.True(t, out.Is(ast.KindCallExpr))
	require.Equal(t, "real_frob_fn", out.Left.StrVal)

	args := ast.ListElements(out.Right, ast.KindArgList)
	require.Len(t, args, 1)
	require.Same(t, x, args[0])
}

func TestRulePrintfReplacesNullWithTypedZero(t *testing.T) {
	a := ast.NewArena()
	az := analyzer.New(a)
	rw := rewrite.New(a)

	fmtArg := ast.NewStr(a, ast.KindStrLit, loc(1), "%d", ast.StrCString, false)
	nullArg := ast.New(a, ast.KindNullLit, loc(1))
	args := ast.BuildList(a, ast.KindExprList, loc(1), []*ast.Node{nullArg})
	call := ast.New2(a, ast.KindPrintfCall, loc(1), fmtArg, args)

	out, changed := rw.Rewrite(az, call)
	require.True(t, changed)
	got := ast.ListElements(out.Right, ast.KindExprList)
	require.Len(t, got, 1)
	require.True(t, got[0].Is(ast.KindIntLit))
	require.Equal(t, int64(0), got[0].IntVal)
}

func TestRuleLikeShapeExpandsColumns(t *testing.T) {
	a := ast.NewArena()
	az := analyzer.New(a)
	rw := rewrite.New(a)

	az.Registry.Declare(az.Registry.Tables, &registry.Object{
		Name:   "widgets",
		Struct: &sem.Struct{Name: "widgets", Names: []string{"id", "name"}},
	})

	like := ast.New1(a, ast.KindLikeShape, loc(1), nameNode(a, "widgets", 1))
	out, changed := rw.Rewrite(az, like)
	require.True(t, changed)

	cols := ast.ListElements(out, ast.KindColDefList)
	require.Len(t, cols, 2)
	require.Equal(t, "id", cols[0].Left.StrVal)
	require.Equal(t, "name", cols[1].Left.StrVal)
}

func TestRuleNoMatchReturnsUnchanged(t *testing.T) {
	a := ast.NewArena()
	az := analyzer.New(a)
	rw := rewrite.New(a)

	leaf := ast.NewInt(a, ast.KindIntLit, loc(1), 1)
	out, changed := rw.Rewrite(az, leaf)
	require.False(t, changed)
	require.Same(t, leaf, out)
}

func TestRulePrintfInsertsWideningCast(t *testing.T) {
	a := ast.NewArena()
	az := analyzer.New(a)
	rw := rewrite.New(a)

	fmtArg := ast.NewStr(a, ast.KindStrLit, loc(1), "%f", ast.StrCString, false)
	intArg := ast.NewInt(a, ast.KindIntLit, loc(1), 7)
	intArg.Sem = &sem.Record{Type: sem.NewType(sem.CoreInt32).WithFlag(sem.FlagNotNull)}
	args := ast.BuildList(a, ast.KindExprList, loc(1), []*ast.Node{intArg})
	call := ast.New2(a, ast.KindPrintfCall, loc(1), fmtArg, args)

	out, changed := rw.Rewrite(az, call)
	require.True(t, changed)
	got := ast.ListElements(out.Right, ast.KindExprList)
	require.Len(t, got, 1)
	require.True(t, got[0].Is(ast.KindCastExpr))
	require.Equal(t, "REAL", got[0].Right.StrVal)
	require.Same(t, intArg, got[0].Left)
}

func TestRulePrintfCountMismatchDiagnoses(t *testing.T) {
	a := ast.NewArena()
	az := analyzer.New(a)
	rw := rewrite.New(a)

	fmtArg := ast.NewStr(a, ast.KindStrLit, loc(1), "%d %d", ast.StrCString, false)
	args := ast.BuildList(a, ast.KindExprList, loc(1), []*ast.Node{ast.New(a, ast.KindNullLit, loc(1))})
	call := ast.New2(a, ast.KindPrintfCall, loc(1), fmtArg, args)

	_, changed := rw.Rewrite(az, call)
	require.False(t, changed)
	require.NotEmpty(t, az.Diagnostics())
}

func TestRuleArrayGetDispatchesThroughOperatorTable(t *testing.T) {
	a := ast.NewArena()
	az := analyzer.New(a)
	rw := rewrite.New(a)

	az.Registry.BindOperator(registry.OperatorKey{Op: "array_get", LeftKind: "longs"}, "cql_long_list_get")

	x := ast.New1(a, ast.KindNameExpr, loc(1), nameNode(a, "xs", 1))
	x.Sem = &sem.Record{Type: sem.NewType(sem.CoreObject), Kind: "longs"}
	idx := ast.NewInt(a, ast.KindIntLit, loc(1), 0)
	get := ast.New2(a, ast.KindArrayGet, loc(1), x, idx)

	out, changed := rw.Rewrite(az, get)
	require.True(t, changed)
	require.True(t, out.Is(ast.KindCallExpr))
	require.Equal(t, "cql_long_list_get", out.Left.StrVal)
	require.Len(t, ast.ListElements(out.Right, ast.KindArgList), 2)
}

func TestRuleArrayGetMissNamesTheKey(t *testing.T) {
	a := ast.NewArena()
	az := analyzer.New(a)
	rw := rewrite.New(a)

	x := ast.New1(a, ast.KindNameExpr, loc(1), nameNode(a, "xs", 1))
	x.Sem = &sem.Record{Type: sem.NewType(sem.CoreObject), Kind: "longs"}
	get := ast.New2(a, ast.KindArrayGet, loc(1), x, ast.NewInt(a, ast.KindIntLit, loc(1), 0))

	_, changed := rw.Rewrite(az, get)
	require.False(t, changed)
	diags := az.Diagnostics()
	require.NotEmpty(t, diags)
	require.Contains(t, diags[len(diags)-1].Message, "array_get:longs:all")
}

func TestRuleArraySetBecomesSetterCall(t *testing.T) {
	a := ast.NewArena()
	az := analyzer.New(a)
	rw := rewrite.New(a)

	az.Registry.BindOperator(registry.OperatorKey{Op: "array_set", LeftKind: "longs"}, "cql_long_list_set")

	x := ast.New1(a, ast.KindNameExpr, loc(1), nameNode(a, "xs", 1))
	x.Sem = &sem.Record{Type: sem.NewType(sem.CoreObject), Kind: "longs"}
	get := ast.New2(a, ast.KindArrayGet, loc(1), x, ast.NewInt(a, ast.KindIntLit, loc(1), 0))
	set := ast.New2(a, ast.KindArraySet, loc(1), get, ast.NewInt(a, ast.KindIntLit, loc(1), 9))

	out, changed := rw.Rewrite(az, set)
	require.True(t, changed)
	require.True(t, out.Is(ast.KindCallExpr))
	require.Equal(t, "cql_long_list_set", out.Left.StrVal)
	require.Len(t, ast.ListElements(out.Right, ast.KindArgList), 3)
}

func TestRulePolyReverseDerivesNameFromArgKinds(t *testing.T) {
	a := ast.NewArena()
	az := analyzer.New(a)
	rw := rewrite.New(a)

	az.Registry.BindOperator(registry.OperatorKey{Op: "functor", LeftKind: "vec"}, "vec_apply")

	x := ast.New1(a, ast.KindNameExpr, loc(1), nameNode(a, "v", 1))
	x.Sem = &sem.Record{Type: sem.NewType(sem.CoreObject), Kind: "vec"}
	argA := ast.NewInt(a, ast.KindIntLit, loc(1), 1)
	argA.Sem = &sem.Record{Type: sem.NewType(sem.CoreInt32).WithFlag(sem.FlagNotNull)}
	argB := ast.NewStr(a, ast.KindStrLit, loc(1), "s", ast.StrCString, false)
	argB.Sem = &sem.Record{Type: sem.NewType(sem.CoreText).WithFlag(sem.FlagNotNull)}
	poly := ast.New2(a, ast.KindPolyReverse, loc(1), x,
		ast.BuildList(a, ast.KindArgList, loc(1), []*ast.Node{argA, argB}))

	out, changed := rw.Rewrite(az, poly)
	require.True(t, changed)
	require.True(t, out.Is(ast.KindCallExpr))
	require.Equal(t, "vec_apply_int32_text", out.Left.StrVal)
	require.Len(t, ast.ListElements(out.Right, ast.KindArgList), 3)
}
