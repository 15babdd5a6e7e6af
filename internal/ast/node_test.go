package ast_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sqlfront/internal/ast"
)

func TestBuildListAndListElements(t *testing.T) {
	a := ast.NewArena()
	loc := ast.Location{Filename: "t.sql", Line: 1}

	names := []*ast.Node{
		ast.NewStr(a, ast.KindStrLit, loc, "a", ast.StrSQLIdentifier, false),
		ast.NewStr(a, ast.KindStrLit, loc, "b", ast.StrSQLIdentifier, false),
		ast.NewStr(a, ast.KindStrLit, loc, "c", ast.StrSQLIdentifier, false),
	}

	head := ast.BuildList(a, ast.KindNameList, loc, names)
	got := ast.ListElements(head, ast.KindNameList)
	require.Len(t, got, 3)
	for i, n := range got {
		require.Equal(t, names[i].StrVal, ast.ExtractName(n))
	}
}

func TestKindIdentity(t *testing.T) {
	k1 := ast.Intern("widget_stmt", ast.Arity1)
	k2 := ast.Intern("widget_stmt", ast.Arity1)
	require.True(t, k1 == k2, "interning the same name twice must return the same pointer")
}

func TestIntern_ConflictingArityPanics(t *testing.T) {
	ast.Intern("conflict_stmt", ast.Arity1)
	require.Panics(t, func() {
		ast.Intern("conflict_stmt", ast.Arity2)
	})
}

func TestSetLeftSetsParent(t *testing.T) {
	a := ast.NewArena()
	loc := ast.Location{Filename: "t.sql", Line: 2}
	child := ast.New(a, ast.KindLeaveStmt, loc)
	parent := ast.New1(a, ast.Intern("wrap_stmt", ast.Arity1), loc, child)
	require.Same(t, parent, child.Parent)
}

func TestCloneIsIsomorphicAndIndependent(t *testing.T) {
	a := ast.NewArena()
	loc := ast.Location{Filename: "t.sql", Line: 3}
	leaf := ast.NewInt(a, ast.KindIntLit, loc, 42)
	root := ast.New1(a, ast.Intern("clone_wrap_stmt", ast.Arity1), loc, leaf)

	clone := ast.Clone(a, root)
	require.NotSame(t, root, clone)
	require.NotSame(t, root.Left, clone.Left)
	require.Equal(t, int64(42), ast.ExtractInt(clone.Left))

	clone.Left.IntVal = 7
	require.Equal(t, int64(42), root.Left.IntVal, "mutating the clone must not affect the original")
}

func TestArityMismatchPanics(t *testing.T) {
	a := ast.NewArena()
	loc := ast.Location{Filename: "t.sql", Line: 4}
	require.Panics(t, func() {
		ast.New2(a, ast.KindLeaveStmt, loc, nil, nil) // KindLeaveStmt is Arity0
	})
}
