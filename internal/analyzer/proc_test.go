package analyzer_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sqlfront/internal/analyzer"
	"sqlfront/internal/ast"
	"sqlfront/internal/registry"
	"sqlfront/internal/sem"
)

func param(a *ast.Arena, pname, typeName, flags string, line int32) *ast.Node {
	return ast.New2(a, ast.KindParam, loc(line), name(a, pname, line), colAttrs(a, typeName, flags, line))
}

func procNode(a *ast.Arena, procName string, params, body []*ast.Node, line int32) *ast.Node {
	pb := ast.New2(a, ast.KindProcParamsBody, loc(line),
		ast.BuildList(a, ast.KindParamList, loc(line), params),
		ast.BuildList(a, ast.KindStmtList, loc(line), body))
	return ast.New2(a, ast.KindCreateProc, loc(line), name(a, procName, line), pb)
}

func TestCreateProcClassifiesQueryAndRecordsDeps(t *testing.T) {
	a := ast.NewArena()
	az := analyzer.New(a)
	usersTable(a, az, t)

	proc := procNode(a, "get_emails", nil,
		[]*ast.Node{selectFrom(a, "users", []string{"email"}, 2)}, 2)
	rec := az.Analyze(proc)
	require.False(t, rec.IsError())
	require.True(t, rec.Type.Has(sem.FlagDMLProc))

	obj, ok := az.Registry.Procedures.Find("get_emails")
	require.True(t, ok)
	require.Equal(t, registry.ProcQuery, obj.Class)
	require.Equal(t, []string{"users"}, obj.Deps.FromTables)
	require.Equal(t, []string{"users"}, obj.Deps.UsesTables)
}

func TestCreateProcUsesTablesIsUnionOfContextSets(t *testing.T) {
	a := ast.NewArena()
	az := analyzer.New(a)
	usersTable(a, az, t)
	require.False(t, az.Analyze(createTable(a, "audit", []*ast.Node{
		colDef(a, "msg", "TEXT", "NOTNULL", 1),
	}, 1)).IsError())

	del := ast.New2(a, ast.KindDeleteStmt, loc(2), name(a, "users", 2), nil)
	ins := ast.New2(a, ast.KindInsertStmt, loc(3), name(a, "audit", 3), nil)
	proc := procNode(a, "purge", nil, []*ast.Node{del, ins}, 2)
	require.False(t, az.Analyze(proc).IsError())

	obj, _ := az.Registry.Procedures.Find("purge")
	require.Equal(t, []string{"users"}, obj.Deps.DeleteTables)
	require.Equal(t, []string{"audit"}, obj.Deps.InsertTables)
	require.Equal(t, []string{"audit", "users"}, obj.Deps.UsesTables)
	// two DML statements: general, not a single-statement bucket
	require.Equal(t, registry.ProcGeneral, obj.Class)
}

func TestLikeParamExpandsIntoArgBundle(t *testing.T) {
	a := ast.NewArena()
	az := analyzer.New(a)
	usersTable(a, az, t)

	note := param(a, "note", "TEXT", "", 2)
	likeParam := ast.New2(a, ast.KindParam, loc(2), name(a, "args", 2),
		ast.New1(a, ast.KindLikeShape, loc(2), name(a, "users", 2)))
	proc := procNode(a, "save_user", []*ast.Node{note, likeParam}, nil, 2)
	require.False(t, az.Analyze(proc).IsError())

	obj, _ := az.Registry.Procedures.Find("save_user")
	require.Len(t, obj.Args, 3)
	require.Equal(t, "note", obj.Args[0].Name)
	require.Empty(t, obj.Args[0].Origin)
	require.Equal(t, "id", obj.Args[1].Name)
	require.Equal(t, "args users id", obj.Args[1].Origin)
	require.Equal(t, "args users email", obj.Args[2].Origin)
	require.True(t, obj.Args[1].Type.Has(sem.FlagVariable))
	require.True(t, az.Registry.ArgBundles.Has("args"))
}

func TestNullabilityInferencePromotesInsideIf(t *testing.T) {
	a := ast.NewArena()
	az := analyzer.New(a)

	declX := ast.New2(a, ast.KindDeclareVar, loc(2), name(a, "x", 2), colAttrs(a, "INTEGER", "", 2))
	letY := ast.New2(a, ast.KindLetStmt, loc(3), name(a, "y", 3),
		ast.New2(a, ast.KindBinaryExpr, loc(3),
			ast.New1(a, ast.KindNameExpr, loc(3), name(a, "x", 3)),
			ast.NewInt(a, ast.KindIntLit, loc(3), 1)))
	cond := ast.New2(a, ast.KindIsNotExpr, loc(3),
		ast.New1(a, ast.KindNameExpr, loc(3), name(a, "x", 3)),
		ast.New(a, ast.KindNullLit, loc(3)))
	ifStmt := ast.New2(a, ast.KindIfStmt, loc(3), cond,
		ast.BuildList(a, ast.KindStmtList, loc(3), []*ast.Node{letY}))

	proc := procNode(a, "p", nil, []*ast.Node{declX, ifStmt}, 2)
	require.False(t, az.Analyze(proc).IsError())
	require.True(t, sem.Of(letY).Type.Has(sem.FlagNotNull), "y is proven not-null inside the IF")
}

func TestNullabilityInferenceDoesNotLeakOutsideIf(t *testing.T) {
	a := ast.NewArena()
	az := analyzer.New(a)

	declX := ast.New2(a, ast.KindDeclareVar, loc(2), name(a, "x", 2), colAttrs(a, "INTEGER", "", 2))
	letY := ast.New2(a, ast.KindLetStmt, loc(3), name(a, "y", 3),
		ast.New2(a, ast.KindBinaryExpr, loc(3),
			ast.New1(a, ast.KindNameExpr, loc(3), name(a, "x", 3)),
			ast.NewInt(a, ast.KindIntLit, loc(3), 1)))

	proc := procNode(a, "p", nil, []*ast.Node{declX, letY}, 2)
	require.False(t, az.Analyze(proc).IsError())
	require.False(t, sem.Of(letY).Type.Has(sem.FlagNotNull), "without the IS NOT NULL guard y stays nullable")
}

func TestSetDemotesInference(t *testing.T) {
	a := ast.NewArena()
	az := analyzer.New(a)

	declX := ast.New2(a, ast.KindDeclareVar, loc(2), name(a, "x", 2), colAttrs(a, "INTEGER", "", 2))
	setX := ast.New2(a, ast.KindSetStmt, loc(4), name(a, "x", 4), ast.New(a, ast.KindNullLit, loc(4)))
	letY := ast.New2(a, ast.KindLetStmt, loc(5), name(a, "y", 5),
		ast.New1(a, ast.KindNameExpr, loc(5), name(a, "x", 5)))
	cond := ast.New2(a, ast.KindIsNotExpr, loc(3),
		ast.New1(a, ast.KindNameExpr, loc(3), name(a, "x", 3)),
		ast.New(a, ast.KindNullLit, loc(3)))
	ifStmt := ast.New2(a, ast.KindIfStmt, loc(3), cond,
		ast.BuildList(a, ast.KindStmtList, loc(3), []*ast.Node{setX, letY}))

	proc := procNode(a, "p", nil, []*ast.Node{declX, ifStmt}, 2)
	require.False(t, az.Analyze(proc).IsError())
	require.False(t, sem.Of(letY).Type.Has(sem.FlagNotNull), "assignment invalidates the inference")
}

func TestCursorStateMachineRejectsFetchBeforeOpen(t *testing.T) {
	a := ast.NewArena()
	az := analyzer.New(a)
	usersTable(a, az, t)

	declCur := ast.New2(a, ast.KindDeclareCursorLk, loc(2), name(a, "c", 2), name(a, "users", 2))
	fetch := ast.New2(a, ast.KindFetchStmt, loc(3), name(a, "c", 3), nil)
	proc := procNode(a, "p", nil, []*ast.Node{declCur, fetch}, 2)
	rec := az.Analyze(proc)
	require.True(t, rec.IsError())
	require.Contains(t, rec.Error, "cannot fetch")
}

func TestCursorFetchLoopOverSelect(t *testing.T) {
	a := ast.NewArena()
	az := analyzer.New(a)
	usersTable(a, az, t)

	declCur := ast.New2(a, ast.KindDeclareCursor, loc(2), name(a, "c", 2),
		selectFrom(a, "users", []string{"email"}, 2))
	fetch := ast.New2(a, ast.KindFetchStmt, loc(3), name(a, "c", 3), nil)
	closeStmt := ast.New1(a, ast.KindCloseStmt, loc(4), name(a, "c", 4))
	proc := procNode(a, "p", nil, []*ast.Node{declCur, fetch, closeStmt}, 2)
	require.False(t, az.Analyze(proc).IsError())
}

func TestMixingOutAndOutUnionIsError(t *testing.T) {
	a := ast.NewArena()
	az := analyzer.New(a)
	usersTable(a, az, t)

	declCur := ast.New2(a, ast.KindDeclareCursor, loc(2), name(a, "c", 2),
		selectFrom(a, "users", []string{"email"}, 2))
	fetch := ast.New2(a, ast.KindFetchStmt, loc(3), name(a, "c", 3), nil)
	out := ast.New1(a, ast.KindOutStmt, loc(4), name(a, "c", 4))
	outUnion := ast.New1(a, ast.KindOutUnionStmt, loc(5), name(a, "c", 5))
	proc := procNode(a, "p", nil, []*ast.Node{declCur, fetch, out, outUnion}, 2)
	rec := az.Analyze(proc)
	require.True(t, rec.IsError())
	require.Contains(t, rec.Error, "mixes OUT and OUT UNION")
}

func TestWithClauseBindsCTEForInnerSelect(t *testing.T) {
	a := ast.NewArena()
	az := analyzer.New(a)
	usersTable(a, az, t)

	binding := ast.New2(a, ast.KindCteBinding, loc(2), name(a, "recent", 2),
		selectFrom(a, "users", []string{"email"}, 2))
	inner := selectFrom(a, "recent", []string{"email"}, 3)
	with := ast.New2(a, ast.KindWithClause, loc(2),
		ast.BuildList(a, ast.KindCteList, loc(2), []*ast.Node{binding}), inner)

	rec := az.Analyze(with)
	require.False(t, rec.IsError())
	require.Equal(t, []string{"email"}, rec.Struct.Names)
	require.Equal(t, 0, az.CTEs.Depth(), "the WITH frame is popped on exit")
}

func TestCallStmtUnknownProcIsError(t *testing.T) {
	a := ast.NewArena()
	az := analyzer.New(a)
	call := ast.New2(a, ast.KindCallStmt, loc(1), name(a, "missing", 1), nil)
	rec := az.Analyze(call)
	require.True(t, rec.IsError())
	require.Contains(t, rec.Error, "name not found")
}
