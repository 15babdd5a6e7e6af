package analyzer

import (
	"sqlfront/internal/ast"
	"sqlfront/internal/registry"
	"sqlfront/internal/sem"
)

// handleCreateView registers a view: its struct descriptor is whatever
// the body select produced, so a later FROM clause can treat the view as
// a shape the same way it treats a table.
func handleCreateView(az *Analyzer, n *ast.Node) *sem.Record {
	if !ast.IsID(n.Left) {
		return sem.ErrorRecord("create_view_stmt: expected view name")
	}
	name := n.Left.StrVal

	bodyRec := az.Analyze(n.Right)
	if bodyRec.IsError() {
		return sem.ErrorRecord("create_view_stmt: view body failed to analyze: " + bodyRec.Error)
	}
	if bodyRec.Struct == nil {
		return sem.ErrorRecord("create_view_stmt: view body is not a select")
	}

	st := bodyRec.Struct
	st.Name = name
	obj := &registry.Object{Name: name, Node: n, Struct: st}
	if !az.Registry.Declare(az.Registry.Views, obj) {
		return sem.ErrorRecord("create_view_stmt: view " + name + " already declared")
	}
	return &sem.Record{Type: sem.NewType(sem.CoreStruct), Struct: st, Name: name, Region: az.currentRegion}
}

// handleCreateIndex registers an index and appends its name to the
// indexed table's TableInfo so the JSON emitter can report the table's
// index list (spec §3.2 table-info extension).
func handleCreateIndex(az *Analyzer, n *ast.Node) *sem.Record {
	if !ast.IsID(n.Left) {
		return sem.ErrorRecord("create_index_stmt: expected index name")
	}
	name := n.Left.StrVal

	on := n.Right
	if on == nil || !on.Is(ast.KindIndexOn) || !ast.IsID(on.Left) {
		return sem.ErrorRecord("create_index_stmt: expected index_on(table, columns)")
	}
	tableName := on.Left.StrVal
	tableObj, ok := az.Registry.Tables.Find(tableName)
	if !ok {
		return sem.ErrorRecord("create_index_stmt: unknown table " + tableName)
	}
	for _, col := range ast.ListElements(on.Right, ast.KindNameList) {
		if !ast.IsID(col) {
			return sem.ErrorRecord("create_index_stmt: expected column name")
		}
		if tableObj.Struct.IndexOf(col.StrVal) < 0 {
			return sem.ErrorRecord("create_index_stmt: table " + tableName + " has no column " + col.StrVal)
		}
	}

	obj := &registry.Object{Name: name, Node: n}
	if !az.Registry.Declare(az.Registry.Indices, obj) {
		return sem.ErrorRecord("create_index_stmt: index " + name + " already declared")
	}
	if rec := sem.Of(tableObj.Node); rec != nil && rec.Table != nil {
		rec.Table.IndexNames = append(rec.Table.IndexNames, name)
	}
	return &sem.Record{Type: sem.NewType(sem.CoreOK), Name: name, Region: az.currentRegion}
}

// handleCreateTrigger registers a trigger and runs the dependency visitor
// over its body so the JSON emitter can report what the trigger touches,
// the same accumulation procedures get (spec §4.6 "Dependency tracking":
// "While analyzing a procedure or trigger body").
func handleCreateTrigger(az *Analyzer, n *ast.Node) *sem.Record {
	if !ast.IsID(n.Left) {
		return sem.ErrorRecord("create_trigger_stmt: expected trigger name")
	}
	name := n.Left.StrVal

	body := n.Right
	if body == nil || !body.Is(ast.KindTrigBody) || !ast.IsID(body.Left) {
		return sem.ErrorRecord("create_trigger_stmt: expected trigger_body(table, stmts)")
	}
	tableName := body.Left.StrVal
	if _, ok := az.Registry.Tables.Find(tableName); !ok {
		return sem.ErrorRecord("create_trigger_stmt: unknown table " + tableName)
	}

	visitor := az.newDependencyVisitor()
	visitor.Visit(body.Right)
	visitor.Deps.noteTable(RefAny, tableName)

	obj := &registry.Object{Name: name, Node: n, Deps: flattenDeps(visitor.Deps)}
	if !az.Registry.Declare(az.Registry.Triggers, obj) {
		return sem.ErrorRecord("create_trigger_stmt: trigger " + name + " already declared")
	}
	return &sem.Record{Type: sem.NewType(sem.CoreOK), Name: name, Region: az.currentRegion}
}

// handleDeclareConstGroup registers a constant group like an enum, and
// additionally enters each member in the flat Constants registry so bare
// constant names resolve without group qualification.
func handleDeclareConstGroup(az *Analyzer, n *ast.Node) *sem.Record {
	if !ast.IsID(n.Left) {
		return sem.ErrorRecord("declare_const_group_stmt: expected group name")
	}
	name := n.Left.StrVal

	st := &sem.Struct{Name: name}
	for _, m := range ast.ListElements(n.Right, ast.KindConstValues) {
		if !ast.IsID(m.Left) {
			return sem.ErrorRecord("const group member: expected name")
		}
		rec := az.Analyze(m.Right)
		if rec.IsError() {
			return sem.ErrorRecord("const group member " + m.Left.StrVal + ": " + rec.Error)
		}
		st.Names = append(st.Names, m.Left.StrVal)
		st.Types = append(st.Types, rec.Type.WithFlag(sem.FlagConstant))
	}

	obj := &registry.Object{Name: name, Node: n, Struct: st}
	if !az.Registry.Declare(az.Registry.ConstGroups, obj) {
		return sem.ErrorRecord("declare_const_group_stmt: group " + name + " already declared")
	}
	for _, member := range st.Names {
		az.Registry.Constants.AddIfAbsent(member, &registry.Object{Name: member, Node: n})
	}
	return &sem.Record{Type: sem.NewType(sem.CoreStruct), Struct: st, Name: name}
}

// handleNamedType registers a named type alias; the aliased type is
// whatever the col_attrs node on the right analyzes to.
func handleNamedType(az *Analyzer, n *ast.Node) *sem.Record {
	if !ast.IsID(n.Left) {
		return sem.ErrorRecord("declare_named_type_stmt: expected type name")
	}
	name := n.Left.StrVal

	rec := az.Analyze(n.Right)
	if rec.IsError() {
		return sem.ErrorRecord("declare_named_type_stmt: " + rec.Error)
	}
	obj := &registry.Object{Name: name, Node: n}
	if !az.Registry.Declare(az.Registry.NamedTypes, obj) {
		return sem.ErrorRecord("declare_named_type_stmt: type " + name + " already declared")
	}
	return &sem.Record{Type: rec.Type, Name: name}
}

// handleRegionStmt declares a region and wires its parent edges into the
// usage DAG. The using list chains region_spec nodes: left the parent
// name, right non-nil when the usage is private.
func handleRegionStmt(az *Analyzer, n *ast.Node) *sem.Record {
	if !ast.IsID(n.Left) {
		return sem.ErrorRecord("declare_region_stmt: expected region name")
	}
	name := n.Left.StrVal
	az.Regions.Declare(name, false)

	for _, spec := range ast.ListElements(n.Right, ast.KindNameList) {
		parent, vis := "", Public
		switch {
		case ast.IsID(spec):
			parent = spec.StrVal
		case spec.Is(ast.KindRegionSpec) && ast.IsID(spec.Left):
			parent = spec.Left.StrVal
			if spec.Right != nil {
				vis = Private
			}
		default:
			return sem.ErrorRecord("declare_region_stmt: malformed using clause")
		}
		if err := az.Regions.AddParent(name, parent, vis); err != nil {
			return sem.ErrorRecord(err.Error())
		}
	}

	obj := &registry.Object{Name: name, Node: n}
	if !az.Registry.Declare(az.Registry.Regions, obj) {
		return sem.ErrorRecord("declare_region_stmt: region " + name + " already declared")
	}
	return &sem.Record{Type: sem.NewType(sem.CoreRegion), Name: name}
}

// handleRegionDeploy declares a deployable region: a top-level region
// that may contain other regions (spec §4.6 "Regions and deployment").
func handleRegionDeploy(az *Analyzer, n *ast.Node) *sem.Record {
	if !ast.IsID(n.Left) {
		return sem.ErrorRecord("declare_deployable_region_stmt: expected region name")
	}
	name := n.Left.StrVal
	az.Regions.Declare(name, true)

	obj := &registry.Object{Name: name, Node: n}
	if !az.Registry.Declare(az.Registry.Regions, obj) {
		return sem.ErrorRecord("declare_deployable_region_stmt: region " + name + " already declared")
	}
	return &sem.Record{Type: sem.NewType(sem.CoreRegion).WithFlag(sem.FlagDeployable), Name: name}
}

// handleBeginRegion opens a region scope: every schema object declared
// until the matching end_schema_region inherits it.
func handleBeginRegion(az *Analyzer, n *ast.Node) *sem.Record {
	if !ast.IsID(n.Left) {
		return sem.ErrorRecord("begin_schema_region_stmt: expected region name")
	}
	name := n.Left.StrVal
	if !az.Registry.Regions.Has(name) {
		return sem.ErrorRecord("begin_schema_region_stmt: region " + name + " is not declared")
	}
	if az.currentRegion != "" {
		return sem.ErrorRecord("begin_schema_region_stmt: region " + az.currentRegion + " is still open")
	}
	az.currentRegion = name
	return sem.OKRecord()
}

func handleEndRegion(az *Analyzer, n *ast.Node) *sem.Record {
	if az.currentRegion == "" {
		return sem.ErrorRecord("end_schema_region_stmt: no region is open")
	}
	az.currentRegion = ""
	return sem.OKRecord()
}

// handleDeclareFunc registers an external (non-select) function. The
// right child is a proc_params_and_body whose left is the param list and
// whose right is the return-type col_attrs node.
func handleDeclareFunc(az *Analyzer, n *ast.Node) *sem.Record {
	return declareFunction(az, n, az.Registry.Functions, sem.FlagCreateFunc, "declare_func_stmt")
}

// handleDeclareSelFunc registers a select function: one SQLite may call
// inside a query, so the query-plan emitter must later stub it out.
func handleDeclareSelFunc(az *Analyzer, n *ast.Node) *sem.Record {
	return declareFunction(az, n, az.Registry.SelectFuncs, sem.FlagSelectFunc, "declare_select_func_stmt")
}

func declareFunction(az *Analyzer, n *ast.Node, table interface {
	AddIfAbsent(string, *registry.Object) bool
}, flag sem.Flag, what string) *sem.Record {
	if !ast.IsID(n.Left) {
		return sem.ErrorRecord(what + ": expected function name")
	}
	name := n.Left.StrVal

	sig := n.Right
	if sig == nil || !sig.Is(ast.KindProcParamsBody) {
		return sem.ErrorRecord(what + ": expected signature")
	}
	args, errRec := analyzeParams(az, sig.Left)
	if errRec != nil {
		return errRec
	}
	retRec := az.Analyze(sig.Right)
	if retRec.IsError() {
		return sem.ErrorRecord(what + ": return type: " + retRec.Error)
	}

	obj := &registry.Object{Name: name, Node: n, Args: args}
	if !table.AddIfAbsent(name, obj) {
		return sem.ErrorRecord(what + ": function " + name + " already declared")
	}
	az.Registry.DeclOrder = append(az.Registry.DeclOrder, obj)
	return &sem.Record{Type: retRec.Type.WithFlag(flag), Name: name}
}

// annotationOps maps the op leaf of a schema_annotation to the handler
// logic below. The right child is an arg_list whose first element is the
// target name; the remaining elements depend on the op.
var annotationOps = map[string]bool{
	"create": true, "delete": true, "recreate": true, "unsub": true, "ad_hoc": true,
}

// handleSchemaAnnotation applies one @create/@delete/@recreate/@unsub
// directive to an already-declared schema object, feeding the version
// model that later produces the ordered upgrade streams (spec §4.6
// "Schema-versioning model").
func handleSchemaAnnotation(az *Analyzer, n *ast.Node) *sem.Record {
	op := ast.ExtractStr(n.Left)
	if !annotationOps[op] {
		return sem.ErrorRecord("schema_annotation: unknown directive " + op)
	}
	args := ast.ListElements(n.Right, ast.KindArgList)
	if len(args) == 0 || !ast.IsID(args[0]) {
		return sem.ErrorRecord("schema_annotation: expected target name")
	}
	target := args[0].StrVal

	switch op {
	case "create":
		return annotateCreate(az, target, args[1:])
	case "delete":
		return annotateDelete(az, target, args[1:])
	case "recreate":
		group := ""
		if len(args) > 1 && ast.IsID(args[1]) {
			group = args[1].StrVal
		}
		rec := targetRecord(az, target)
		if rec == nil {
			return sem.ErrorRecord("schema_annotation: unknown schema object " + target)
		}
		rec.Recreate = true
		rec.RecreateGroup = group
		az.Versions.AddRecreate(target, group)
		return sem.OKRecord()
	case "unsub":
		version := int32(0)
		if len(args) > 1 && args[1].Is(ast.KindIntLit) {
			version = int32(args[1].IntVal)
		}
		rec := targetRecord(az, target)
		if rec == nil {
			return sem.ErrorRecord("schema_annotation: unknown schema object " + target)
		}
		rec.Unsubscribed = true
		obj := &registry.Object{Name: target, Node: n}
		az.Registry.Subscriptions.AddIfAbsent(target, obj)
		az.Versions.AddDelete(AnnotationUnsub, target, version, -1, "")
		return sem.OKRecord()
	case "ad_hoc":
		if len(args) < 3 || !args[1].Is(ast.KindIntLit) || !ast.IsID(args[2]) {
			return sem.ErrorRecord("schema_annotation: ad_hoc needs (target, version, migrator)")
		}
		migrator := args[2].StrVal
		obj := &registry.Object{Name: migrator, Node: n}
		az.Registry.AdHocMigrations.AddIfAbsent(migrator, obj)
		az.Versions.AddAdHoc(target, int32(args[1].IntVal), migrator)
		return sem.OKRecord()
	}
	return sem.OKRecord()
}

func annotateCreate(az *Analyzer, target string, rest []*ast.Node) *sem.Record {
	if len(rest) == 0 || !rest[0].Is(ast.KindIntLit) {
		return sem.ErrorRecord("schema_annotation: @create needs a version")
	}
	version := int32(rest[0].IntVal)
	rec := targetRecord(az, target)
	if rec == nil {
		return sem.ErrorRecord("schema_annotation: unknown schema object " + target)
	}
	rec.CreateVersion = version
	if err := az.Versions.AddCreate(AnnotationCreateTable, target, version, rec.DeleteVersion, -1); err != nil {
		return sem.ErrorRecord(err.Error())
	}
	return sem.OKRecord()
}

func annotateDelete(az *Analyzer, target string, rest []*ast.Node) *sem.Record {
	if len(rest) == 0 || !rest[0].Is(ast.KindIntLit) {
		return sem.ErrorRecord("schema_annotation: @delete needs a version")
	}
	version := int32(rest[0].IntVal)
	migrator := ""
	if len(rest) > 1 && ast.IsID(rest[1]) {
		migrator = rest[1].StrVal
	}
	rec := targetRecord(az, target)
	if rec == nil {
		return sem.ErrorRecord("schema_annotation: unknown schema object " + target)
	}
	if rec.CreateVersion > 0 && version <= rec.CreateVersion {
		az.ExitOnValidation = true
		return sem.ErrorRecord("schema_annotation: @delete version must be greater than @create version for " + target)
	}
	rec.DeleteVersion = version
	rec.Type = rec.Type.WithFlag(sem.FlagDeleted)
	az.Versions.AddDelete(deleteKindOf(az, target), target, version, -1, migrator)
	return sem.OKRecord()
}

// deleteKindOf picks the annotation stream slot for a @delete by what
// kind of object the target is, since the stream orders trigger deletes
// before view deletes before index/column/table deletes.
func deleteKindOf(az *Analyzer, target string) AnnotationKind {
	switch {
	case az.Registry.Triggers.Has(target):
		return AnnotationDeleteTrigger
	case az.Registry.Views.Has(target):
		return AnnotationDeleteView
	case az.Registry.Indices.Has(target):
		return AnnotationDeleteIndex
	default:
		return AnnotationDeleteTable
	}
}

// targetRecord finds the semantic record of a named schema object across
// the registries an annotation may target.
func targetRecord(az *Analyzer, name string) *sem.Record {
	for _, t := range []*symtabObjects{
		{az.Registry.Tables}, {az.Registry.Views}, {az.Registry.Indices}, {az.Registry.Triggers},
	} {
		if obj, ok := t.find(name); ok {
			return sem.Of(obj.Node)
		}
	}
	return nil
}

type symtabObjects struct {
	t interface {
		Find(string) (*registry.Object, bool)
	}
}

func (s *symtabObjects) find(name string) (*registry.Object, bool) { return s.t.Find(name) }
