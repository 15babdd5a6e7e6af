package rewrite_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sqlfront/internal/analyzer"
	"sqlfront/internal/ast"
	"sqlfront/internal/resolve"
	"sqlfront/internal/rewrite"
	"sqlfront/internal/sem"
)

func TestRuleColumnsMacroExpandsQualifiedColumns(t *testing.T) {
	a := ast.NewArena()
	az := analyzer.New(a)
	rw := rewrite.New(a)

	users := &sem.Struct{Name: "users", Names: []string{"id", "name"}}
	az.PushScope(&resolve.Scope{FromJoin: &sem.Join{Names: []string{"users"}, Structs: []*sem.Struct{users}}})
	defer az.PopScope()

	macro := ast.New2(a, ast.KindColumnsMac, loc(1), nil, nil)
	out, changed := rw.Rewrite(az, macro)
	require.True(t, changed)

	exprs := ast.ListElements(out, ast.KindExprList)
	require.Len(t, exprs, 2)
	require.True(t, exprs[0].Is(ast.KindDotExpr))
	require.Equal(t, "users", exprs[0].Left.StrVal)
	require.Equal(t, "id", exprs[0].Right.StrVal)
	require.Equal(t, "name", exprs[1].Right.StrVal)
}

func TestRuleColumnsMacroDistinctDropsDuplicateNames(t *testing.T) {
	a := ast.NewArena()
	az := analyzer.New(a)
	rw := rewrite.New(a)

	left := &sem.Struct{Name: "a", Names: []string{"id", "x"}}
	right := &sem.Struct{Name: "b", Names: []string{"id", "y"}}
	az.PushScope(&resolve.Scope{FromJoin: &sem.Join{Names: []string{"a", "b"}, Structs: []*sem.Struct{left, right}}})
	defer az.PopScope()

	distinctMarker := ast.New(a, ast.Intern("columns_macro_distinct", ast.Arity0), loc(1))
	macro := ast.New2(a, ast.KindColumnsMac, loc(1), nil, distinctMarker)
	out, changed := rw.Rewrite(az, macro)
	require.True(t, changed)

	exprs := ast.ListElements(out, ast.KindExprList)
	require.Len(t, exprs, 3)
	require.Equal(t, "a", exprs[0].Left.StrVal)
	require.Equal(t, "id", exprs[0].Right.StrVal)
	require.Equal(t, "x", exprs[1].Right.StrVal)
	require.Equal(t, "y", exprs[2].Right.StrVal)
}

func TestRuleColumnsMacroWithoutFromClauseDiagnoses(t *testing.T) {
	a := ast.NewArena()
	az := analyzer.New(a)
	rw := rewrite.New(a)

	macro := ast.New2(a, ast.KindColumnsMac, loc(1), nil, nil)
	_, changed := rw.Rewrite(az, macro)
	require.False(t, changed)
	require.Len(t, az.Diagnostics(), 1)
	require.Contains(t, az.Diagnostics()[0].Message, "without an open FROM clause")
}
