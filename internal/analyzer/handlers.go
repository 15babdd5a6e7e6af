package analyzer

import (
	"hash/fnv"
	"strings"

	"sqlfront/internal/ast"
	"sqlfront/internal/registry"
	"sqlfront/internal/resolve"
	"sqlfront/internal/sem"
)

// installDefaultHandlers wires the dispatch table entries this repo
// ships out of the box. A host program is free to add or override
// entries via Analyzer.On before calling AnalyzeProgram.
func installDefaultHandlers(az *Analyzer) {
	az.On(ast.KindIntLit, handleIntLit)
	az.On(ast.KindNumLit, handleNumLit)
	az.On(ast.KindStrLit, handleStrLit)
	az.On(ast.KindBlobLit, handleBlobLit)
	az.On(ast.KindNullLit, handleNullLit)
	az.On(ast.KindNameExpr, handleNameExpr)
	az.On(ast.KindBinaryExpr, handleBinaryExpr)
	az.On(ast.KindUnaryExpr, handleUnaryExpr)
	az.On(ast.KindDotExpr, handleDotExpr)
	az.On(ast.KindCastExpr, handleCastExpr)
	az.On(ast.KindCreateTable, handleCreateTable)
	az.On(ast.KindDeclareEnum, handleDeclareEnum)
	az.On(ast.KindColAttrs, handleColAttrs)
	az.On(ast.KindBackedByAttr, handleBackedByAttr)
	az.On(ast.KindCreateView, handleCreateView)
	az.On(ast.KindCreateIndex, handleCreateIndex)
	az.On(ast.KindCreateTrig, handleCreateTrigger)
	az.On(ast.KindDeclareConst, handleDeclareConstGroup)
	az.On(ast.KindNamedType, handleNamedType)
	az.On(ast.KindRegionStmt, handleRegionStmt)
	az.On(ast.KindRegionDeploy, handleRegionDeploy)
	az.On(ast.KindBeginRegion, handleBeginRegion)
	az.On(ast.KindEndRegion, handleEndRegion)
	az.On(ast.KindDeclareFunc, handleDeclareFunc)
	az.On(ast.KindDeclareSelFunc, handleDeclareSelFunc)
	az.On(ast.KindSchemaVers, handleSchemaAnnotation)
	az.On(ast.KindCreateProc, handleCreateProc)
	az.On(ast.KindDeclareVar, handleDeclareVar)
	az.On(ast.KindLetStmt, handleLetStmt)
	az.On(ast.KindSetStmt, handleSetStmt)
	az.On(ast.KindIfStmt, handleIfStmt)
	az.On(ast.KindWhileStmt, handleWhileStmt)
	az.On(ast.KindTryStmt, handleTryStmt)
	az.On(ast.KindCallStmt, handleCallStmt)
	az.On(ast.KindCallExpr, handleCallExpr)
	az.On(ast.KindDeclareCursor, handleDeclareCursor)
	az.On(ast.KindDeclareCursorLk, handleDeclareCursorLike)
	az.On(ast.KindFetchStmt, handleFetchStmt)
	az.On(ast.KindFetchCallStmt, handleFetchValues)
	az.On(ast.KindCloseStmt, handleCloseStmt)
	az.On(ast.KindOutStmt, handleOutStmt)
	az.On(ast.KindOutUnionStmt, handleOutUnionStmt)
	az.On(ast.KindSelectStmt, handleSelectStmt)
	az.On(ast.KindWithClause, handleWithClause)
	az.On(ast.KindInsertStmt, handleInsertStmt)
	az.On(ast.KindUpdateStmt, handleUpdateStmt)
	az.On(ast.KindDeleteStmt, handleDeleteStmt)
	az.On(ast.KindUpsertStmt, handleUpsertStmt)
}

// coreTypeNames maps the declared SQL base type keyword a parser-boundary
// adapter writes into col_attrs.Left to the corresponding sem.CoreType.
var coreTypeNames = map[string]sem.CoreType{
	"BOOL":    sem.CoreBool,
	"INTEGER": sem.CoreInt32,
	"LONG":    sem.CoreInt64,
	"REAL":    sem.CoreReal,
	"TEXT":    sem.CoreText,
	"BLOB":    sem.CoreBlob,
}

// colAttrFlags maps the space-separated flag tokens col_attrs.Right
// carries to their sem.Flag bit. PK implies not-null per spec §3.2's
// key-column invariant.
var colAttrFlags = map[string]sem.Flag{
	"NOTNULL":       sem.FlagNotNull,
	"PK":            sem.FlagPK,
	"AUTOINCREMENT": sem.FlagAutoIncrement,
	"UK":            sem.FlagUK,
	"FK":            sem.FlagFK,
	"SENSITIVE":     sem.FlagSensitive,
	"HASDEFAULT":    sem.FlagHasDefault,
	"HASCHECK":      sem.FlagHasCheck,
	"HASCOLLATE":    sem.FlagHasCollate,
}

// handleColAttrs resolves a column's declared base type and flag tokens.
// The node shape is a parser-boundary convention, not part of the
// original compiler's col_attrs: Left is a str leaf naming the base type
// (one of coreTypeNames' keys) and Right is a str leaf holding a
// space-separated list of colAttrFlags tokens (possibly empty).
func handleColAttrs(az *Analyzer, n *ast.Node) *sem.Record {
	typeName := ast.ExtractStr(n.Left)
	core, ok := coreTypeNames[typeName]
	if !ok {
		return sem.ErrorRecord("col_attrs: unknown base type " + typeName)
	}
	t := sem.NewType(core)
	for _, tok := range strings.Fields(ast.ExtractStr(n.Right)) {
		flag, ok := colAttrFlags[tok]
		if !ok {
			return sem.ErrorRecord("col_attrs: unknown flag token " + tok)
		}
		t = t.WithFlag(flag)
	}
	if t.Has(sem.FlagPK) {
		t = t.WithFlag(sem.FlagNotNull)
	}
	return &sem.Record{Type: t}
}

func handleIntLit(az *Analyzer, n *ast.Node) *sem.Record {
	return &sem.Record{Type: sem.NewType(sem.CoreInt32).WithFlag(sem.FlagNotNull)}
}

func handleNumLit(az *Analyzer, n *ast.Node) *sem.Record {
	core := sem.CoreInt32
	switch n.NumKind {
	case ast.NumLong:
		core = sem.CoreInt64
	case ast.NumReal:
		core = sem.CoreReal
	case ast.NumBool:
		core = sem.CoreBool
	}
	return &sem.Record{Type: sem.NewType(core).WithFlag(sem.FlagNotNull)}
}

func handleStrLit(az *Analyzer, n *ast.Node) *sem.Record {
	t := sem.NewType(sem.CoreText).WithFlag(sem.FlagNotNull)
	if n.StrSub == ast.StrQuotedIdentifier {
		t = t.WithFlag(sem.FlagQID)
	}
	return &sem.Record{Type: t, Name: n.StrVal}
}

func handleBlobLit(az *Analyzer, n *ast.Node) *sem.Record {
	return &sem.Record{Type: sem.NewType(sem.CoreBlob).WithFlag(sem.FlagNotNull)}
}

func handleNullLit(az *Analyzer, n *ast.Node) *sem.Record {
	return &sem.Record{Type: sem.NewType(sem.CoreNull)}
}

// handleNameExpr resolves a bare identifier through internal/resolve's
// stage chain against the analyzer's current scope.
func handleNameExpr(az *Analyzer, n *ast.Node) *sem.Record {
	if !ast.IsID(n.Left) && !ast.IsQID(n.Left) {
		return sem.ErrorRecord("name_expr: expected an identifier")
	}
	name := n.Left.StrVal
	scope := az.CurrentScope()
	if scope == nil {
		return sem.ErrorRecord("name_expr: no scope open for name resolution")
	}
	r := resolve.Resolve(name, scope)
	if r.Err != nil {
		return sem.ErrorRecord(r.Err.Error())
	}
	return &sem.Record{Type: ApplyTo(r.Type, name, az.facts), Name: name}
}

// handleBinaryExpr applies SQLite-style widening (bool -> int -> long ->
// real) to combine the two operand core types, per spec §4.6 step 3.
func handleBinaryExpr(az *Analyzer, n *ast.Node) *sem.Record {
	left := az.Analyze(n.Left)
	if PoisonedChild(n.Left) {
		return sem.ErrorRecord("binary_expr: left operand failed to analyze")
	}
	right := az.Analyze(n.Right)
	if PoisonedChild(n.Right) {
		return sem.ErrorRecord("binary_expr: right operand failed to analyze")
	}
	core, err := widen(left.Type.Core(), right.Type.Core())
	if err != nil {
		return sem.ErrorRecord(err.Error())
	}
	t := sem.NewType(core)
	if knownNotNull(left.Type) && knownNotNull(right.Type) {
		t = t.WithFlag(sem.FlagNotNull)
	}
	return &sem.Record{Type: t}
}

// knownNotNull treats a path-local inference the same as a declared
// NOT NULL when combining operands (spec §4.6 step 4).
func knownNotNull(t sem.Type) bool {
	return t.Has(sem.FlagNotNull) || t.Has(sem.FlagInferredNotNull)
}

func handleUnaryExpr(az *Analyzer, n *ast.Node) *sem.Record {
	operand := az.Analyze(n.Left)
	if PoisonedChild(n.Left) {
		return sem.ErrorRecord("unary_expr: operand failed to analyze")
	}
	return &sem.Record{Type: operand.Type}
}

// handleDotExpr resolves `alias.field` through resolve.ResolveDotted,
// leaving a sugared method call for the rewriter (spec §4.5, §4.7.3) by
// marking it OK with CorePending rather than raising an error.
func handleDotExpr(az *Analyzer, n *ast.Node) *sem.Record {
	if !ast.IsID(n.Left) || !ast.IsID(n.Right) {
		return sem.ErrorRecord("dot_expr: expected alias.field")
	}
	scope := az.CurrentScope()
	if scope == nil {
		return sem.ErrorRecord("dot_expr: no scope open for name resolution")
	}
	_, t, err := resolve.ResolveDotted(n.Left.StrVal, n.Right.StrVal, scope)
	if err != nil {
		return sem.ErrorRecord(err.Error())
	}
	return &sem.Record{Type: t}
}

func handleCastExpr(az *Analyzer, n *ast.Node) *sem.Record {
	operand := az.Analyze(n.Left)
	if PoisonedChild(n.Left) {
		return sem.ErrorRecord("cast_expr: operand failed to analyze")
	}
	// A base-type leaf target (the form the printf rewrite mints) sets the
	// result's core type; any other target, a named type included, keeps
	// the operand type.
	if ast.IsID(n.Right) {
		if core, ok := coreTypeNames[n.Right.StrVal]; ok {
			t := sem.NewType(core)
			if knownNotNull(operand.Type) {
				t = t.WithFlag(sem.FlagNotNull)
			}
			return &sem.Record{Type: t}
		}
	}
	return &sem.Record{Type: operand.Type}
}

// widen implements the bool -> int -> long -> real promotion order spec
// §4.6 step 3 specifies, rejecting combinations outside that ladder.
func widen(a, b sem.CoreType) (sem.CoreType, error) {
	rank := map[sem.CoreType]int{
		sem.CoreBool: 0, sem.CoreInt32: 1, sem.CoreInt64: 2, sem.CoreReal: 3,
	}
	ra, aok := rank[a]
	rb, bok := rank[b]
	if !aok || !bok {
		if a == b {
			return a, nil
		}
		return 0, errIncompatibleKinds(a, b)
	}
	if ra > rb {
		return a, nil
	}
	return b, nil
}

func errIncompatibleKinds(a, b sem.CoreType) error {
	return &widenError{a, b}
}

type widenError struct{ a, b sem.CoreType }

func (e *widenError) Error() string {
	return "analyzer: incompatible operand types " + e.a.String() + " and " + e.b.String()
}

// handleCreateTable registers the table in the registry and builds its
// struct descriptor and table-info extension from its column list. It is
// a deliberately narrow slice of the full DDL handler: enough to
// exercise registry.Declare, sem.Struct construction, and TableInfo
// population end to end.
func handleCreateTable(az *Analyzer, n *ast.Node) *sem.Record {
	if !ast.IsID(n.Left) {
		return sem.ErrorRecord("create_table_stmt: expected table name")
	}
	name := n.Left.StrVal

	cols := ast.ListElements(n.Right, ast.KindColDefList)
	st := &sem.Struct{Name: name}
	info := &sem.TableInfo{}
	for i, col := range cols {
		if !ast.IsID(col.Left) {
			return sem.ErrorRecord("col_def: expected column name")
		}
		colName := col.Left.StrVal
		colRec := az.Analyze(col.Right)
		st.Names = append(st.Names, colName)
		st.Types = append(st.Types, colRec.Type)
		if colRec.Type.Has(sem.FlagPK) {
			info.KeyCols = append(info.KeyCols, i)
		} else {
			info.ValueCols = append(info.ValueCols, i)
		}
		if colRec.Type.Has(sem.FlagNotNull) {
			info.NotNullCols = append(info.NotNullCols, i)
		}
	}

	obj := &registry.Object{Name: name, Node: n, Struct: st}
	if !az.Registry.Declare(az.Registry.Tables, obj) {
		return sem.ErrorRecord("create_table_stmt: table " + name + " already declared")
	}
	return &sem.Record{Type: sem.NewType(sem.CoreStruct), Struct: st, Table: info, Name: name, Region: az.currentRegion}
}

// handleBackedByAttr resolves a declare_backed_by_stmt (the bootstrap
// boundary's stand-in for the backed-table `@attribute(cql:backed_by=...)`
// annotation, spec §3.1 backed variant / §4.7.4). It validates the backing
// table's generic (k blob, v blob) shape, computes the backed table's
// stable type hash from its already-declared column list, and records the
// mapping in az.Registry.BackedBy so internal/rewrite's backed-table rules
// can find it by name.
func handleBackedByAttr(az *Analyzer, n *ast.Node) *sem.Record {
	if !ast.IsID(n.Left) || !ast.IsID(n.Right) {
		return sem.ErrorRecord("declare_backed_by_stmt: expected backed and backing table names")
	}
	backedName := n.Left.StrVal
	backingName := n.Right.StrVal

	backedObj, ok := az.Registry.Tables.Find(backedName)
	if !ok || backedObj.Struct == nil {
		return sem.ErrorRecord("declare_backed_by_stmt: unknown backed table " + backedName)
	}
	backingObj, ok := az.Registry.Tables.Find(backingName)
	if !ok || backingObj.Struct == nil {
		return sem.ErrorRecord("declare_backed_by_stmt: unknown backing table " + backingName)
	}
	if !isBlobKVShape(backingObj.Struct) {
		return sem.ErrorRecord("declare_backed_by_stmt: backing table " + backingName + " must be (k blob, v blob)")
	}

	rec := sem.Of(backedObj.Node)
	if rec == nil || rec.Table == nil {
		return sem.ErrorRecord("declare_backed_by_stmt: " + backedName + " has no table info")
	}
	rec.Table.Backed = true
	rec.Table.BackingTable = backingName
	rec.Table.TypeHash = backedTypeHash(backedObj.Struct)

	az.Registry.BackedBy.Set(backedName, backingName)
	return sem.OKRecord()
}

// isBlobKVShape reports whether s is exactly the two-column (k blob, v
// blob) shape every backing table must declare.
func isBlobKVShape(s *sem.Struct) bool {
	if len(s.Names) != 2 {
		return false
	}
	for i, name := range s.Names {
		if name != "k" && name != "v" {
			return false
		}
		if s.Types[i].Core() != sem.CoreBlob {
			return false
		}
	}
	return true
}

// backedTypeHash computes a stable 64-bit hash of a backed table's
// declared columns (name, core type, flags), used to discriminate rows of
// different backed tables sharing one backing table, grounded in
// cg_json_schema.c's crc_charbuf technique (SPEC_FULL §C).
func backedTypeHash(s *sem.Struct) int64 {
	h := fnv.New64a()
	for i, name := range s.Names {
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write([]byte(s.Types[i].String()))
		h.Write([]byte{0})
	}
	return int64(h.Sum64())
}

// handleDeclareEnum registers an enum and its members in the registry,
// with each member's value evaluated as a constant int expression.
func handleDeclareEnum(az *Analyzer, n *ast.Node) *sem.Record {
	if !ast.IsID(n.Left) {
		return sem.ErrorRecord("declare_enum_stmt: expected enum name")
	}
	name := n.Left.StrVal
	members := ast.ListElements(n.Right, ast.KindEnumValues)

	st := &sem.Struct{Name: name}
	for _, m := range members {
		if !ast.IsID(m.Left) {
			return sem.ErrorRecord("enum member: expected name")
		}
		rec := az.Analyze(m.Right)
		st.Names = append(st.Names, m.Left.StrVal)
		st.Types = append(st.Types, rec.Type)
	}

	obj := &registry.Object{Name: name, Node: n, Struct: st}
	if !az.Registry.Declare(az.Registry.Enums, obj) {
		return sem.ErrorRecord("declare_enum_stmt: enum " + name + " already declared")
	}
	return &sem.Record{Type: sem.NewType(sem.CoreStruct), Struct: st, Name: name}
}
