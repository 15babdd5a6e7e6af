package jsonemit_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sqlfront/internal/ast"
	"sqlfront/internal/jsonemit"
	"sqlfront/internal/registry"
	"sqlfront/internal/sem"
)

func loc(line int32) ast.Location { return ast.Location{Filename: "t.sql", Line: line} }

func TestEmitTableIncludesColumnsAndTypeHash(t *testing.T) {
	a := ast.NewArena()
	reg := registry.New()

	node := ast.New2(a, ast.KindCreateTable, loc(1), nil, nil)
	rec := &sem.Record{
		Type:   sem.NewType(sem.CoreStruct),
		Region: "r1",
		Table:  &sem.TableInfo{TypeHash: 42, IndexNames: []string{"idx_id"}},
	}
	sem.Attach(node, rec)

	s := &sem.Struct{
		Name:  "widgets",
		Names: []string{"id", "name"},
		Kinds: []string{"", ""},
		Types: []sem.Type{
			sem.NewType(sem.CoreInt64).WithFlag(sem.FlagNotNull),
			sem.NewType(sem.CoreText),
		},
	}
	reg.Declare(reg.Tables, &registry.Object{Name: "widgets", Node: node, Struct: s})

	e := jsonemit.NewEmitter(reg, nil, nil)
	out := e.Emit()

	require.Len(t, out.Tables, 1)
	tbl := out.Tables[0]
	require.Equal(t, "widgets", tbl.Name)
	require.Equal(t, int64(42), tbl.TypeHash)
	require.Equal(t, []string{"idx_id"}, tbl.Indices)
	require.Equal(t, "r1", tbl.Region)
	require.Len(t, tbl.Columns, 2)
	require.Equal(t, "id", tbl.Columns[0].Name)
	require.True(t, tbl.Columns[0].IsNotNull)
	require.False(t, tbl.Columns[1].IsNotNull)
}

func TestEmitProcUsesTextOfCallback(t *testing.T) {
	a := ast.NewArena()
	reg := registry.New()

	node := ast.New2(a, ast.KindCreateProc, loc(1), nil, nil)
	reg.Declare(reg.Procedures, &registry.Object{Name: "get_widget", Node: node})

	textOf := func(n *ast.Node) (string, []string) {
		return "SELECT * FROM widgets WHERE id = ?", []string{"id_"}
	}
	e := jsonemit.NewEmitter(reg, nil, textOf)
	out := e.Emit()

	require.Len(t, out.General, 1)
	require.Equal(t, "get_widget", out.General[0].Name)
	require.Equal(t, "SELECT * FROM widgets WHERE id = ?", out.General[0].Statement)
	require.Equal(t, []string{"id_"}, out.General[0].StatementArgs)
}

func TestEmitWithNoTextOfLeavesStatementEmpty(t *testing.T) {
	a := ast.NewArena()
	reg := registry.New()
	node := ast.New2(a, ast.KindCreateProc, loc(1), nil, nil)
	reg.Declare(reg.Procedures, &registry.Object{Name: "noop", Node: node})

	e := jsonemit.NewEmitter(reg, nil, nil)
	out := e.Emit()

	require.Len(t, out.General, 1)
	require.Empty(t, out.General[0].Statement)
}

func TestEmitEnumAndSubscriptions(t *testing.T) {
	a := ast.NewArena()
	reg := registry.New()

	enumNode := ast.New2(a, ast.KindDeclareEnum, loc(1), nil, nil)
	enumStruct := &sem.Struct{Name: "color", Names: []string{"red", "green"}, Types: []sem.Type{
		sem.NewType(sem.CoreInt32), sem.NewType(sem.CoreInt32),
	}}
	reg.Declare(reg.Enums, &registry.Object{Name: "color", Node: enumNode, Struct: enumStruct})
	reg.Declare(reg.Subscriptions, &registry.Object{Name: "feed_a"})

	e := jsonemit.NewEmitter(reg, nil, nil)
	out := e.Emit()

	require.Len(t, out.Enums, 1)
	require.Equal(t, "color", out.Enums[0].Name)
	require.Len(t, out.Enums[0].Values, 2)
	require.Equal(t, []string{"feed_a"}, out.Subscriptions)
}

func TestMarshalIndentProducesStableKeyOrder(t *testing.T) {
	s := &jsonemit.Schema{Subscriptions: []string{"a"}}
	b, err := jsonemit.MarshalIndent(s)
	require.NoError(t, err)
	require.Contains(t, string(b), `"subscriptions"`)
}

func TestEmitClassifiesProcsIntoSections(t *testing.T) {
	a := ast.NewArena()
	reg := registry.New()

	add := func(name string, class registry.ProcClass) {
		node := ast.New2(a, ast.KindCreateProc, loc(1), nil, nil)
		reg.Declare(reg.Procedures, &registry.Object{Name: name, Node: node, Class: class})
	}
	add("q", registry.ProcQuery)
	add("ins", registry.ProcSimpleInsert)
	add("gins", registry.ProcGeneralInsert)
	add("upd", registry.ProcUpdate)
	add("del", registry.ProcDelete)
	add("misc", registry.ProcGeneral)

	out := jsonemit.NewEmitter(reg, nil, nil).Emit()
	require.Len(t, out.Queries, 1)
	require.Len(t, out.Inserts, 1)
	require.Len(t, out.GeneralInserts, 1)
	require.Len(t, out.Updates, 1)
	require.Len(t, out.Deletes, 1)
	require.Len(t, out.General, 1)
	require.Equal(t, "q", out.Queries[0].Name)
}

func TestEmitProcCarriesArgsAndDeps(t *testing.T) {
	a := ast.NewArena()
	reg := registry.New()

	node := ast.New2(a, ast.KindCreateProc, loc(1), nil, nil)
	reg.Declare(reg.Procedures, &registry.Object{
		Name: "save_user",
		Node: node,
		Args: []registry.Arg{
			{Name: "id", Type: sem.NewType(sem.CoreInt64).WithFlag(sem.FlagNotNull), Origin: "args users id"},
			{Name: "note", Type: sem.NewType(sem.CoreText)},
		},
		Deps: &registry.DepSets{
			FromTables:   []string{"users"},
			InsertTables: []string{"audit"},
			UsesTables:   []string{"audit", "users"},
		},
	})

	out := jsonemit.NewEmitter(reg, nil, nil).Emit()
	require.Len(t, out.General, 1)
	p := out.General[0]
	require.Len(t, p.Args, 2)
	require.Equal(t, "args users id", p.Args[0].ArgOrigin)
	require.Empty(t, p.Args[1].ArgOrigin)
	require.Equal(t, []string{"users"}, p.FromTables)
	require.Equal(t, []string{"audit"}, p.InsertTables)
	require.Equal(t, []string{"audit", "users"}, p.UsesTables)
}

func TestEmitRegionsUsesLookup(t *testing.T) {
	a := ast.NewArena()
	reg := registry.New()
	reg.Declare(reg.Regions, &registry.Object{Name: "core", Node: ast.New2(a, ast.KindRegionStmt, loc(1), nil, nil)})

	regions := jsonemit.NewRegionLookup(
		func(name string) bool { return name == "core" },
		func(name string) string { return "(orphan)" },
	)
	out := jsonemit.NewEmitter(reg, regions, nil).Emit()
	require.Len(t, out.Regions, 1)
	require.True(t, out.Regions[0].IsDeployable)
	require.Equal(t, "(orphan)", out.Regions[0].DeployedIn)
}

func TestEmitCRCIsStableAcrossRuns(t *testing.T) {
	a := ast.NewArena()
	reg := registry.New()
	node := ast.New2(a, ast.KindCreateTable, loc(1), nil, nil)
	reg.Declare(reg.Tables, &registry.Object{Name: "widgets", Node: node})

	textOf := func(n *ast.Node) (string, []string) { return "CREATE TABLE widgets(id LONG)", nil }
	first := jsonemit.NewEmitter(reg, nil, textOf).Emit()
	second := jsonemit.NewEmitter(reg, nil, textOf).Emit()
	require.NotZero(t, first.Tables[0].CRC)
	require.Equal(t, first.Tables[0].CRC, second.Tables[0].CRC)
}

func TestEmitDeclareFuncsAndMigrations(t *testing.T) {
	a := ast.NewArena()
	reg := registry.New()

	fnNode := ast.New2(a, ast.KindDeclareSelFunc, loc(1), nil, nil)
	sem.Attach(fnNode, &sem.Record{Type: sem.NewType(sem.CoreText)})
	reg.SelectFuncs.AddIfAbsent("fmt_email", &registry.Object{Name: "fmt_email", Node: fnNode})
	reg.AdHocMigrations.AddIfAbsent("fix_rows", &registry.Object{Name: "fix_rows"})

	out := jsonemit.NewEmitter(reg, nil, nil).Emit()
	require.Len(t, out.DeclareSelectFuncs, 1)
	require.Equal(t, "text", out.DeclareSelectFuncs[0].ReturnType)
	require.Len(t, out.AdHocMigrationProcs, 1)
	require.Equal(t, "fix_rows", out.AdHocMigrationProcs[0].Name)
}
