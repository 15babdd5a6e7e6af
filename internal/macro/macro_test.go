package macro_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sqlfront/internal/ast"
	"sqlfront/internal/macro"
)

func loc(line int32) ast.Location { return ast.Location{Filename: "t.sql", Line: line} }

func nameNode(a *ast.Arena, n string, line int32) *ast.Node {
	return ast.NewStr(a, ast.KindStrLit, loc(line), n, ast.StrSQLIdentifier, false)
}

func argRef(a *ast.Arena, formal string, line int32) *ast.Node {
	return ast.New1(a, ast.KindMacroArgRef, loc(line), nameNode(a, formal, line))
}

// TestExpandSubstitutesArgument defines a one-argument macro whose body is
// just a reference to its formal, and checks that expanding a call
// substitutes the actual argument in place.
func TestExpandSubstitutesArgument(t *testing.T) {
	a := ast.NewArena()
	exp := macro.New(a)

	ok := exp.Define(&macro.Def{
		Name:    "ident_macro",
		Kind:    macro.KindExpr,
		Formals: []macro.Formal{{Name: "x", Kind: macro.KindExpr}},
		Body:    argRef(a, "x", 1),
	})
	require.True(t, ok)

	actual := ast.NewInt(a, ast.KindIntLit, loc(2), 42)
	argList := ast.BuildList(a, ast.KindArgList, loc(2), []*ast.Node{actual})
	ref := ast.New2(a, ast.KindMacroRef, loc(2), nameNode(a, "ident_macro", 2), argList)

	got := exp.ExpandStatement(ref)
	require.Empty(t, exp.Errors)
	require.True(t, got.Is(ast.KindIntLit))
	require.Equal(t, int64(42), got.IntVal)
}

func TestDefineRejectsDuplicateName(t *testing.T) {
	a := ast.NewArena()
	exp := macro.New(a)

	d := &macro.Def{Name: "m", Kind: macro.KindExpr, Body: ast.New(a, ast.KindLeaveStmt, loc(1))}
	require.True(t, exp.Define(d))
	require.False(t, exp.Define(d))
}

func TestExpandUndefinedMacroRefIsError(t *testing.T) {
	a := ast.NewArena()
	exp := macro.New(a)

	argList := ast.BuildList(a, ast.KindArgList, loc(1), nil)
	ref := ast.New2(a, ast.KindMacroRef, loc(1), nameNode(a, "missing", 1), argList)

	got := exp.ExpandStatement(ref)
	require.Same(t, ref, got, "on failure the original tree is returned unexpanded")
	require.Len(t, exp.Errors, 1)
}

func TestExpandArityMismatchIsError(t *testing.T) {
	a := ast.NewArena()
	exp := macro.New(a)

	exp.Define(&macro.Def{
		Name:    "needs_one",
		Kind:    macro.KindExpr,
		Formals: []macro.Formal{{Name: "x", Kind: macro.KindExpr}},
		Body:    ast.New(a, ast.KindLeaveStmt, loc(1)),
	})

	emptyArgs := ast.BuildList(a, ast.KindArgList, loc(2), nil)
	ref := ast.New2(a, ast.KindMacroRef, loc(2), nameNode(a, "needs_one", 2), emptyArgs)

	exp.ExpandStatement(ref)
	require.Len(t, exp.Errors, 1)
}

func TestExpandLeavesMacroFreeTreeUntouched(t *testing.T) {
	a := ast.NewArena()
	exp := macro.New(a)

	leaf := ast.NewInt(a, ast.KindIntLit, loc(1), 7)
	wrap := ast.New1(a, ast.Intern("macro_free_wrap_stmt", ast.Arity1), loc(1), leaf)

	got := exp.ExpandStatement(wrap)
	require.Same(t, wrap, got)
	require.Empty(t, exp.Errors)
}
