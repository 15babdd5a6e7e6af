package queryplan_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sqlfront/internal/ast"
	"sqlfront/internal/queryplan"
)

func locQP(line int32) ast.Location { return ast.Location{Filename: "t.sql", Line: line} }

func strLeafQP(a *ast.Arena, s string, line int32) *ast.Node {
	return ast.NewStr(a, ast.KindStrLit, locQP(line), s, ast.StrSQLIdentifier, false)
}

func TestCollectStatementsFindsTopLevelDML(t *testing.T) {
	a := ast.NewArena()
	joinClause := ast.New2(a, ast.KindJoinClause, locQP(1), strLeafQP(a, "widgets", 1), nil)
	fromEtc := ast.New2(a, ast.KindFromEtc, locQP(1), joinClause, nil)
	selectList := ast.BuildList(a, ast.KindExprList, locQP(1), []*ast.Node{ast.New1(a, ast.KindNameExpr, locQP(1), strLeafQP(a, "id", 1))})
	selectCore := ast.New2(a, ast.KindSelectCore, locQP(1), selectList, fromEtc)
	sel := ast.New2(a, ast.KindSelectStmt, locQP(1), selectCore, nil)
	stmtList := ast.BuildList(a, ast.KindStmtList, locQP(1), []*ast.Node{sel})

	textOf := func(n *ast.Node) (string, []string) { return "SELECT id FROM widgets", nil }
	p := queryplan.CollectStatements(stmtList, textOf)

	out := p.Render()
	require.Contains(t, out, "CREATE PROC populate_query_plan_1()")
	require.Contains(t, out, "SELECT id FROM widgets")
}

func TestCollectStatementsWalksProcedureBodies(t *testing.T) {
	a := ast.NewArena()
	joinClause := ast.New2(a, ast.KindJoinClause, locQP(1), strLeafQP(a, "widgets", 1), nil)
	fromEtc := ast.New2(a, ast.KindFromEtc, locQP(1), joinClause, nil)
	selectCore := ast.New2(a, ast.KindSelectCore, locQP(1), nil, fromEtc)
	sel := ast.New2(a, ast.KindSelectStmt, locQP(1), selectCore, nil)
	body := ast.New2(a, ast.KindStmtList, locQP(1), sel, nil)
	paramsBody := ast.New2(a, ast.KindProcParamsBody, locQP(1), nil, body)
	proc := ast.New2(a, ast.KindCreateProc, locQP(1), strLeafQP(a, "get_widgets", 1), paramsBody)
	stmtList := ast.BuildList(a, ast.KindStmtList, locQP(1), []*ast.Node{proc})

	textOf := func(n *ast.Node) (string, []string) { return "SELECT * FROM widgets", nil }
	p := queryplan.CollectStatements(stmtList, textOf)

	id := p.AddStatement("unused", "unused", nil)
	require.Equal(t, 2, id)

	out := p.Render()
	require.Contains(t, out, "INSERT INTO sql_temp(id, sql) VALUES (1,")
}
