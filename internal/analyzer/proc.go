package analyzer

import (
	"sort"
	"strconv"

	"sqlfront/internal/ast"
	"sqlfront/internal/registry"
	"sqlfront/internal/resolve"
	"sqlfront/internal/sem"
)

// procContext is the per-procedure state the body handlers share: the
// dependency visitor accumulating table/view/proc references, the OUT
// form bookkeeping, and the classification the JSON emitter reads later.
type procContext struct {
	name       string
	visitor    *DependencyVisitor
	usedOut    bool
	dmlKinds   []*ast.Kind
	selectOnly bool
}

// newDependencyVisitor builds a visitor backed by the analyzer's own
// registries, the production classifier (tests substitute fixed maps).
func (az *Analyzer) newDependencyVisitor() *DependencyVisitor {
	return NewDependencyVisitor(
		func(name string) bool { return az.Registry.Tables.Has(name) },
		func(name string) bool { return az.Registry.Views.Has(name) },
		func(name string) bool { return az.Registry.Procedures.Has(name) },
	)
}

// handleCreateProc registers a procedure: it expands LIKE-shaped params
// into arg bundles, analyzes the body under a fresh scope and fact set,
// runs the dependency visitor, and classifies the body for the JSON
// emitter's section buckets.
func handleCreateProc(az *Analyzer, n *ast.Node) *sem.Record {
	if !ast.IsID(n.Left) {
		return sem.ErrorRecord("create_proc_stmt: expected procedure name")
	}
	name := n.Left.StrVal

	pb := n.Right
	if pb == nil || !pb.Is(ast.KindProcParamsBody) {
		return sem.ErrorRecord("create_proc_stmt: expected params and body")
	}
	args, errRec := analyzeParams(az, pb.Left)
	if errRec != nil {
		return errRec
	}

	scope := az.baseScope()
	for _, a := range args {
		scope.ProcParams[a.Name] = a.Type
	}
	for _, bundle := range bundlesOf(az, pb.Left) {
		scope.ArgBundles[bundle.Name] = bundle.Struct
	}
	az.PushScope(scope)
	defer az.PopScope()

	savedProc, savedFacts := az.currentProc, az.facts
	az.currentProc = &procContext{name: name, visitor: az.newDependencyVisitor(), selectOnly: true}
	az.facts = NewNullFacts()
	defer func() { az.currentProc, az.facts = savedProc, savedFacts }()

	bodyErr := ""
	var resultStruct *sem.Struct
	for _, stmt := range ast.ListElements(pb.Right, ast.KindStmtList) {
		rec := az.Analyze(stmt)
		if rec.IsError() && bodyErr == "" {
			bodyErr = rec.Error
		}
		if rec.Struct != nil {
			resultStruct = rec.Struct
		}
	}
	az.currentProc.visitor.Visit(pb.Right)

	// A procedure whose body produced a row shape is itself a shape (the
	// spec's GLOSSARY: "proc result" is LIKE-able), so the last
	// struct-typed statement's descriptor is kept on the registry object.
	obj := &registry.Object{
		Name:   name,
		Node:   n,
		Struct: resultStruct,
		Args:   args,
		Class:  classifyProc(az.currentProc),
		Deps:   flattenDeps(az.currentProc.visitor.Deps),
	}
	if !az.Registry.Declare(az.Registry.Procedures, obj) {
		return sem.ErrorRecord("create_proc_stmt: procedure " + name + " already declared")
	}
	if bodyErr != "" {
		return sem.ErrorRecord("create_proc_stmt: " + name + ": " + bodyErr)
	}

	t := sem.NewType(sem.CoreOK)
	if len(az.currentProc.dmlKinds) > 0 {
		t = t.WithFlag(sem.FlagDMLProc)
	}
	if az.currentProc.usedOut {
		t = t.WithFlag(sem.FlagUsesOut)
	}
	if az.OutUnionStateOf(name) == OutUnionEmittedAtLeastOnce {
		t = t.WithFlag(sem.FlagUsesOutUnion)
	}
	return &sem.Record{Type: t, Name: name, Region: az.currentRegion}
}

// analyzeParams converts a param_list into registry args. A param whose
// type slot is a LIKE shape expands into one arg per shape column, named
// after the column with the bundle recorded in Origin (spec §4.7.1:
// "expansion prefixes field names with the arg-bundle name").
func analyzeParams(az *Analyzer, paramList *ast.Node) ([]registry.Arg, *sem.Record) {
	var out []registry.Arg
	for _, p := range ast.ListElements(paramList, ast.KindParamList) {
		if !p.Is(ast.KindParam) || !ast.IsID(p.Left) {
			return nil, sem.ErrorRecord("param: expected name and type")
		}
		pname := p.Left.StrVal
		if p.Right != nil && p.Right.Is(ast.KindLikeShape) {
			shapeArgs, errRec := expandParamShape(az, pname, p.Right)
			if errRec != nil {
				return nil, errRec
			}
			out = append(out, shapeArgs...)
			continue
		}
		rec := az.Analyze(p.Right)
		if rec.IsError() {
			return nil, sem.ErrorRecord("param " + pname + ": " + rec.Error)
		}
		out = append(out, registry.Arg{
			Name: pname,
			Type: rec.Type.WithFlag(sem.FlagVariable).WithFlag(sem.FlagInParameter),
		})
	}
	return out, nil
}

// expandParamShape expands `bundle LIKE shape` into per-column args with
// argOrigin "<bundle> <shape> <col>", the form spec §4.8's example shows,
// and registers the bundle so `bundle.field` resolves in the body.
func expandParamShape(az *Analyzer, bundleName string, likeNode *ast.Node) ([]registry.Arg, *sem.Record) {
	if !ast.IsID(likeNode.Left) {
		return nil, sem.ErrorRecord("param " + bundleName + ": expected shape name after LIKE")
	}
	shapeName := likeNode.Left.StrVal
	st, ok := az.shapeStruct(shapeName)
	if !ok {
		return nil, sem.ErrorRecord("param " + bundleName + ": unknown shape " + shapeName)
	}

	bundleStruct := &sem.Struct{Name: bundleName}
	var out []registry.Arg
	for i, colName := range st.Names {
		t := st.Types[i].WithFlag(sem.FlagVariable).WithFlag(sem.FlagInParameter)
		out = append(out, registry.Arg{
			Name:   colName,
			Type:   t,
			Origin: bundleName + " " + shapeName + " " + colName,
		})
		bundleStruct.Names = append(bundleStruct.Names, colName)
		bundleStruct.Types = append(bundleStruct.Types, t)
	}
	az.Registry.ArgBundles.AddIfAbsent(bundleName, &registry.Object{Name: bundleName, Struct: bundleStruct})
	return out, nil
}

// bundlesOf re-walks a param list for the LIKE params expandParamShape
// registered, returning their bundle objects for scope seeding.
func bundlesOf(az *Analyzer, paramList *ast.Node) []*registry.Object {
	var out []*registry.Object
	for _, p := range ast.ListElements(paramList, ast.KindParamList) {
		if p.Is(ast.KindParam) && ast.IsID(p.Left) && p.Right != nil && p.Right.Is(ast.KindLikeShape) {
			if obj, ok := az.Registry.ArgBundles.Find(p.Left.StrVal); ok {
				out = append(out, obj)
			}
		}
	}
	return out
}

// shapeStruct resolves any shape name (table, view, arg bundle, cursor,
// named type) to its struct descriptor.
func (az *Analyzer) shapeStruct(name string) (*sem.Struct, bool) {
	if st, ok := az.cursorShapes[name]; ok {
		return st, true
	}
	for _, t := range []*symtabObjects{
		{az.Registry.Tables}, {az.Registry.Views}, {az.Registry.ArgBundles}, {az.Registry.NamedTypes},
	} {
		if obj, ok := t.find(name); ok && obj.Struct != nil {
			return obj.Struct, true
		}
	}
	return nil, false
}

// baseScope seeds a resolution scope from the registries: enums, constant
// groups, globals, declared functions, and regions are visible from any
// procedure body.
func (az *Analyzer) baseScope() *resolve.Scope {
	scope := &resolve.Scope{
		Locals:      map[string]sem.Type{},
		ProcParams:  map[string]sem.Type{},
		ArgBundles:  map[string]*sem.Struct{},
		Enums:       map[string]*sem.Struct{},
		ConstGroups: map[string]*sem.Struct{},
		NamedTypes:  map[string]sem.Type{},
		Globals:     map[string]sem.Type{},
		ProcAsFunc:  map[string]sem.Type{},
		Functions:   map[string]sem.Type{},
		SelectFuncs: map[string]sem.Type{},
		Regions:     map[string]struct{}{},
	}
	az.Registry.Enums.Each(func(name string, obj *registry.Object) { scope.Enums[name] = obj.Struct })
	az.Registry.ConstGroups.Each(func(name string, obj *registry.Object) { scope.ConstGroups[name] = obj.Struct })
	az.Registry.NamedTypes.Each(func(name string, obj *registry.Object) {
		if rec := sem.Of(obj.Node); rec != nil {
			scope.NamedTypes[name] = rec.Type
		}
	})
	az.Registry.Functions.Each(func(name string, obj *registry.Object) {
		if rec := sem.Of(obj.Node); rec != nil {
			scope.Functions[name] = rec.Type
		}
	})
	az.Registry.SelectFuncs.Each(func(name string, obj *registry.Object) {
		if rec := sem.Of(obj.Node); rec != nil {
			scope.SelectFuncs[name] = rec.Type
		}
	})
	az.Registry.Regions.Each(func(name string, _ *registry.Object) { scope.Regions[name] = struct{}{} })
	for name, t := range az.globals {
		scope.Globals[name] = t
	}
	return scope
}

// classifyProc buckets a procedure by its body's DML shape, the way the
// JSON emitter's top-level sections split procedures (spec §4.8).
func classifyProc(pc *procContext) registry.ProcClass {
	if len(pc.dmlKinds) != 1 {
		return registry.ProcGeneral
	}
	switch pc.dmlKinds[0] {
	case ast.KindSelectStmt, ast.KindWithClause:
		return registry.ProcQuery
	case ast.KindInsertStmt:
		if pc.selectOnly {
			return registry.ProcSimpleInsert
		}
		return registry.ProcGeneralInsert
	case ast.KindUpsertStmt:
		return registry.ProcGeneralInsert
	case ast.KindUpdateStmt:
		return registry.ProcUpdate
	case ast.KindDeleteStmt:
		return registry.ProcDelete
	}
	return registry.ProcGeneral
}

// flattenDeps converts the visitor's accumulated sets into the sorted
// slice form attached to a procedure's registry object. UsesTables is the
// union of the four per-context sets plus any-context references (the
// §8 universal property: usesTables = fromTables ∪ insertTables ∪
// updateTables ∪ deleteTables).
func flattenDeps(d *Dependencies) *registry.DepSets {
	out := &registry.DepSets{
		FromTables:   sortedSet(d.Tables[RefFromSource]),
		InsertTables: sortedSet(d.Tables[RefInsertTarget]),
		UpdateTables: sortedSet(d.Tables[RefUpdateTarget]),
		DeleteTables: sortedSet(d.Tables[RefDeleteTarget]),
	}
	union := map[string]bool{}
	for _, m := range d.Tables {
		for name := range m {
			union[name] = true
		}
	}
	out.UsesTables = sortedSet(union)

	views := map[string]bool{}
	for _, m := range d.Views {
		for name := range m {
			views[name] = true
		}
	}
	out.UsesViews = sortedSet(views)
	out.UsesProcedures = sortedSet(d.Procs)
	return out
}

func sortedSet(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// noteDML records that the current procedure body (if any) executed a
// DML statement of the given kind; selectOnly flips off for insert
// bodies fed by anything but a plain VALUES row.
func (az *Analyzer) noteDML(kind *ast.Kind, plainValues bool) {
	if az.currentProc == nil {
		return
	}
	az.currentProc.dmlKinds = append(az.currentProc.dmlKinds, kind)
	if !plainValues {
		az.currentProc.selectOnly = false
	}
}

// handleDeclareVar declares a variable: a local when a procedure scope is
// open, a global otherwise.
func handleDeclareVar(az *Analyzer, n *ast.Node) *sem.Record {
	if !ast.IsID(n.Left) {
		return sem.ErrorRecord("declare_vars_stmt: expected variable name")
	}
	name := n.Left.StrVal
	rec := az.Analyze(n.Right)
	if rec.IsError() {
		return sem.ErrorRecord("declare_vars_stmt: " + rec.Error)
	}
	t := rec.Type.WithFlag(sem.FlagVariable)
	if scope := az.CurrentScope(); scope != nil {
		if _, dup := scope.Locals[name]; dup {
			return sem.ErrorRecord("declare_vars_stmt: variable " + name + " already declared")
		}
		scope.Locals[name] = t
	} else {
		if az.globals == nil {
			az.globals = map[string]sem.Type{}
		}
		if _, dup := az.globals[name]; dup {
			return sem.ErrorRecord("declare_vars_stmt: variable " + name + " already declared")
		}
		az.globals[name] = t
	}
	return &sem.Record{Type: t, Name: name}
}

// handleLetStmt declares a new local whose type is inferred from its
// initializer, spec scenario 4: `LET y := x + 1` types y from the
// expression, not-null inference included.
func handleLetStmt(az *Analyzer, n *ast.Node) *sem.Record {
	if !ast.IsID(n.Left) {
		return sem.ErrorRecord("let_stmt: expected variable name")
	}
	name := n.Left.StrVal
	rec := az.Analyze(n.Right)
	if rec.IsError() {
		return sem.ErrorRecord("let_stmt: " + rec.Error)
	}
	scope := az.CurrentScope()
	if scope == nil {
		return sem.ErrorRecord("let_stmt: no procedure scope open")
	}
	if _, dup := scope.Locals[name]; dup {
		return sem.ErrorRecord("let_stmt: variable " + name + " already declared")
	}
	t := rec.Type.WithFlag(sem.FlagVariable)
	if t.Has(sem.FlagInferredNotNull) {
		// The inference travels into the declared type as real
		// not-null-ness: y := x + 1 under `IF x IS NOT NULL` is not-null.
		t = t.WithoutFlag(sem.FlagInferredNotNull).WithFlag(sem.FlagNotNull)
	}
	scope.Locals[name] = t
	return &sem.Record{Type: t, Name: name}
}

// handleSetStmt assigns to an existing variable. Assignment demotes any
// prior inferred-not-null fact for the target (spec §4.6 step 4:
// "re-assignment ... demotes it").
func handleSetStmt(az *Analyzer, n *ast.Node) *sem.Record {
	if !ast.IsID(n.Left) {
		return sem.ErrorRecord("set_stmt: expected variable name")
	}
	name := n.Left.StrVal
	scope := az.CurrentScope()
	if scope == nil {
		return sem.ErrorRecord("set_stmt: no scope open")
	}
	target := resolve.Resolve(name, scope)
	if target.Err != nil {
		return sem.ErrorRecord(target.Err.Error())
	}
	rec := az.Analyze(n.Right)
	if rec.IsError() {
		return sem.ErrorRecord("set_stmt: " + rec.Error)
	}
	if rec.Type.Core() == sem.CoreNull {
		if target.Type.Has(sem.FlagNotNull) {
			return sem.ErrorRecord("set_stmt: cannot assign NULL to not-null variable " + name)
		}
	} else if _, err := widen(target.Type.Core(), rec.Type.Core()); err != nil {
		return sem.ErrorRecord("set_stmt: " + err.Error())
	}
	if target.Type.Has(sem.FlagNotNull) && !knownNotNull(rec.Type) && rec.Type.Core() != sem.CoreNull {
		return sem.ErrorRecord("set_stmt: cannot assign a nullable value to not-null variable " + name)
	}
	az.facts.Demote(name)
	return sem.OKRecord()
}

// notNullTestTarget recognizes the `x IS NOT NULL` predicate shape whose
// truth promotes x on the THEN path (spec §4.6 step 4).
func notNullTestTarget(cond *ast.Node) (string, bool) {
	if cond == nil || !cond.Is(ast.KindIsNotExpr) {
		return "", false
	}
	if cond.Right == nil || !cond.Right.Is(ast.KindNullLit) {
		return "", false
	}
	if cond.Left == nil || !cond.Left.Is(ast.KindNameExpr) || !ast.IsID(cond.Left.Left) {
		return "", false
	}
	return cond.Left.Left.StrVal, true
}

// handleIfStmt analyzes the condition, then each branch under a forked
// fact set, merging facts at the join point so only inferences every
// branch agrees on survive.
func handleIfStmt(az *Analyzer, n *ast.Node) *sem.Record {
	condRec := az.Analyze(n.Left)
	if condRec.IsError() {
		return sem.ErrorRecord("if_stmt: condition: " + condRec.Error)
	}

	entry := az.facts
	thenFacts := entry.Fork()
	if name, ok := notNullTestTarget(n.Left); ok {
		thenFacts.Promote(name)
	}

	az.facts = thenFacts
	var firstErr string
	analyzeBranch := func(branch *ast.Node) {
		for _, stmt := range ast.ListElements(branch, ast.KindStmtList) {
			rec := az.Analyze(stmt)
			if rec.IsError() && firstErr == "" {
				firstErr = rec.Error
			}
		}
	}

	branch := n.Right
	if branch != nil && branch.Is(ast.KindStmtList) {
		analyzeBranch(branch)
		// No ELSE: facts after the IF are the entry facts (the THEN path
		// may not have been taken).
		az.facts = entry
	} else if branch != nil && branch.Is(ast.KindElseIfList) {
		analyzeBranch(branch.Right)
		elseFacts := entry.Fork()
		az.facts = elseFacts
		analyzeBranch(branch.Left)
		az.facts = Merge(thenFacts, elseFacts)
	} else {
		az.facts = entry
	}

	if firstErr != "" {
		return sem.ErrorRecord("if_stmt: " + firstErr)
	}
	return sem.OKRecord()
}

func handleWhileStmt(az *Analyzer, n *ast.Node) *sem.Record {
	condRec := az.Analyze(n.Left)
	if condRec.IsError() {
		return sem.ErrorRecord("while_stmt: condition: " + condRec.Error)
	}
	entry := az.facts
	az.facts = entry.Fork()
	for _, stmt := range ast.ListElements(n.Right, ast.KindStmtList) {
		if rec := az.Analyze(stmt); rec.IsError() {
			az.facts = entry
			return sem.ErrorRecord("while_stmt: " + rec.Error)
		}
	}
	az.facts = entry
	return sem.OKRecord()
}

func handleTryStmt(az *Analyzer, n *ast.Node) *sem.Record {
	for _, stmt := range ast.ListElements(n.Left, ast.KindStmtList) {
		if rec := az.Analyze(stmt); rec.IsError() {
			return sem.ErrorRecord("try_stmt: " + rec.Error)
		}
	}
	for _, stmt := range ast.ListElements(n.Right, ast.KindStmtList) {
		if rec := az.Analyze(stmt); rec.IsError() {
			return sem.ErrorRecord("try_stmt: catch: " + rec.Error)
		}
	}
	return sem.OKRecord()
}

// handleCallStmt verifies the callee exists and records the dependency.
func handleCallStmt(az *Analyzer, n *ast.Node) *sem.Record {
	if !ast.IsID(n.Left) {
		return sem.ErrorRecord("call_stmt: expected procedure name")
	}
	name := n.Left.StrVal
	if !az.Registry.Procedures.Has(name) && !az.Registry.Functions.Has(name) && !az.Registry.UncheckedFns.Has(name) {
		return sem.ErrorRecord("call_stmt: name not found " + name)
	}
	for _, arg := range ast.ListElements(n.Right, ast.KindArgList) {
		if rec := az.Analyze(arg); rec.IsError() {
			return sem.ErrorRecord("call_stmt: argument: " + rec.Error)
		}
	}
	if az.currentProc != nil {
		az.currentProc.visitor.Deps.Procs[name] = true
	}
	return sem.OKRecord()
}

// handleCallExpr types a call expression: a procedure with a result
// shape yields that shape (so DECLARE C CURSOR FOR CALL p() works), a
// declared function yields its return type, and anything else — an
// unchecked function, a runtime helper — analyzes as OK with no type of
// its own.
func handleCallExpr(az *Analyzer, n *ast.Node) *sem.Record {
	if !ast.IsID(n.Left) {
		return sem.ErrorRecord("call_expr: expected callee name")
	}
	name := n.Left.StrVal
	if obj, ok := az.Registry.Procedures.Find(name); ok && obj.Struct != nil {
		return &sem.Record{Type: sem.NewType(sem.CoreStruct), Struct: obj.Struct, Name: name}
	}
	if obj, ok := az.Registry.Functions.Find(name); ok {
		if rec := sem.Of(obj.Node); rec != nil {
			return &sem.Record{Type: rec.Type, Name: name}
		}
	}
	return sem.OKRecord()
}

// handleDeclareCursor declares a statement-bound cursor over a select;
// the cursor is opened (statement-bound) at declaration, matching the
// original's DECLARE C CURSOR FOR SELECT semantics.
func handleDeclareCursor(az *Analyzer, n *ast.Node) *sem.Record {
	if !ast.IsID(n.Left) {
		return sem.ErrorRecord("declare_cursor_stmt: expected cursor name")
	}
	name := n.Left.StrVal
	srcRec := az.Analyze(n.Right)
	if srcRec.IsError() {
		return sem.ErrorRecord("declare_cursor_stmt: " + srcRec.Error)
	}
	if srcRec.Struct == nil {
		return sem.ErrorRecord("declare_cursor_stmt: cursor source has no result shape")
	}
	if !az.DeclareCursor(name) {
		return sem.ErrorRecord("declare_cursor_stmt: cursor " + name + " already declared")
	}
	if err := az.CursorOp(name, "open_statement"); err != nil {
		return sem.ErrorRecord(err.Error())
	}
	az.noteCursorShape(name, srcRec.Struct)
	return &sem.Record{Type: sem.NewType(sem.CoreStruct).WithFlag(sem.FlagHasShapeStorage), Struct: srcRec.Struct, Name: name}
}

// handleDeclareCursorLike declares a value cursor shaped like an
// existing shape; it holds no statement and is fetched from values.
func handleDeclareCursorLike(az *Analyzer, n *ast.Node) *sem.Record {
	if !ast.IsID(n.Left) || !ast.IsID(n.Right) {
		return sem.ErrorRecord("declare_cursor_like_stmt: expected cursor and shape names")
	}
	name, shapeName := n.Left.StrVal, n.Right.StrVal
	st, ok := az.shapeStruct(shapeName)
	if !ok {
		return sem.ErrorRecord("declare_cursor_like_stmt: unknown shape " + shapeName)
	}
	if !az.DeclareCursor(name) {
		return sem.ErrorRecord("declare_cursor_like_stmt: cursor " + name + " already declared")
	}
	az.noteCursorShape(name, st)
	return &sem.Record{Type: sem.NewType(sem.CoreStruct).WithFlag(sem.FlagValueCursor), Struct: st, Name: name}
}

func (az *Analyzer) noteCursorShape(name string, st *sem.Struct) {
	if az.cursorShapes == nil {
		az.cursorShapes = map[string]*sem.Struct{}
	}
	az.cursorShapes[name] = st
}

// handleFetchStmt applies the fetch transition: a bare FETCH leaves the
// cursor holding a row addressable as cursor.field; FETCH INTO copies the
// row into named locals instead.
func handleFetchStmt(az *Analyzer, n *ast.Node) *sem.Record {
	if !ast.IsID(n.Left) {
		return sem.ErrorRecord("fetch_stmt: expected cursor name")
	}
	name := n.Left.StrVal
	op := "fetch"
	if n.Right != nil {
		op = "fetch_into"
	}
	if err := az.CursorOp(name, op); err != nil {
		return sem.ErrorRecord(err.Error())
	}
	st := az.cursorShapes[name]
	if st == nil {
		return sem.ErrorRecord("fetch_stmt: cannot read from a cursor without fields: " + name)
	}
	if n.Right != nil {
		intoNames := ast.ListElements(n.Right, ast.KindNameList)
		if len(intoNames) != st.Count() {
			return sem.ErrorRecord("fetch_stmt: INTO arity does not match cursor shape")
		}
		scope := az.CurrentScope()
		for i, into := range intoNames {
			if !ast.IsID(into) {
				return sem.ErrorRecord("fetch_stmt: expected variable name in INTO list")
			}
			if scope != nil {
				scope.Locals[into.StrVal] = st.Types[i].WithFlag(sem.FlagVariable)
			}
		}
	}
	return &sem.Record{Type: sem.NewType(sem.CoreOK).WithFlag(sem.FlagHasRow), Name: name}
}

// handleFetchValues loads a value cursor from an explicit row, the
// declared -> opened-value-bound transition.
func handleFetchValues(az *Analyzer, n *ast.Node) *sem.Record {
	if !ast.IsID(n.Left) {
		return sem.ErrorRecord("fetch_values_stmt: expected cursor name")
	}
	name := n.Left.StrVal
	st := az.cursorShapes[name]
	if st == nil {
		return sem.ErrorRecord("fetch_values_stmt: cannot write to a cursor without fields: " + name)
	}
	values := ast.ListElements(n.Right, ast.KindExprList)
	if len(values) != st.Count() {
		return sem.ErrorRecord("fetch_values_stmt: value count does not match cursor shape")
	}
	for _, v := range values {
		if rec := az.Analyze(v); rec.IsError() {
			return sem.ErrorRecord("fetch_values_stmt: " + rec.Error)
		}
	}
	if err := az.CursorOp(name, "open_value"); err != nil {
		return sem.ErrorRecord(err.Error())
	}
	return &sem.Record{Type: sem.NewType(sem.CoreOK).WithFlag(sem.FlagHasRow), Name: name}
}

func handleCloseStmt(az *Analyzer, n *ast.Node) *sem.Record {
	if !ast.IsID(n.Left) {
		return sem.ErrorRecord("close_stmt: expected cursor name")
	}
	if err := az.CursorOp(n.Left.StrVal, "close"); err != nil {
		return sem.ErrorRecord(err.Error())
	}
	return sem.OKRecord()
}

// handleOutStmt emits a single-row result from a cursor; mixing it with
// OUT UNION in one procedure is forbidden (spec §4.6 "State machines").
func handleOutStmt(az *Analyzer, n *ast.Node) *sem.Record {
	if !ast.IsID(n.Left) {
		return sem.ErrorRecord("out_stmt: expected cursor name")
	}
	if az.currentProc == nil {
		return sem.ErrorRecord("out_stmt: OUT is only valid inside a procedure")
	}
	if az.OutUnionStateOf(az.currentProc.name) == OutUnionEmittedAtLeastOnce {
		return sem.ErrorRecord("out_stmt: procedure " + az.currentProc.name + " mixes OUT and OUT UNION")
	}
	if _, ok := az.CursorPhaseOf(n.Left.StrVal); !ok {
		return sem.ErrorRecord("out_stmt: cursor " + n.Left.StrVal + " is not declared")
	}
	az.currentProc.usedOut = true
	return sem.OKRecord()
}

func handleOutUnionStmt(az *Analyzer, n *ast.Node) *sem.Record {
	if !ast.IsID(n.Left) {
		return sem.ErrorRecord("out_union_stmt: expected cursor name")
	}
	if az.currentProc == nil {
		return sem.ErrorRecord("out_union_stmt: OUT UNION is only valid inside a procedure")
	}
	if az.currentProc.usedOut {
		return sem.ErrorRecord("out_union_stmt: procedure " + az.currentProc.name + " mixes OUT and OUT UNION")
	}
	if _, ok := az.CursorPhaseOf(n.Left.StrVal); !ok {
		return sem.ErrorRecord("out_union_stmt: cursor " + n.Left.StrVal + " is not declared")
	}
	az.OutUnionEmit(az.currentProc.name)
	return sem.OKRecord()
}

// handleSelectStmt analyzes a select: it builds the FROM join, opens a
// scope over it, analyzes the where chain and select list, and returns a
// struct descriptor for the result shape.
func handleSelectStmt(az *Analyzer, n *ast.Node) *sem.Record {
	core := n.Left
	if core == nil || !core.Is(ast.KindSelectCore) {
		return sem.ErrorRecord("select_stmt: expected select core")
	}
	rec := analyzeSelectCore(az, core)
	if rec.IsError() {
		return rec
	}
	az.noteDML(ast.KindSelectStmt, false)
	return rec
}

func analyzeSelectCore(az *Analyzer, core *ast.Node) *sem.Record {
	join, errRec := buildFromJoin(az, core.Right)
	if errRec != nil {
		return errRec
	}

	scope := az.baseScope()
	if parent := az.CurrentScope(); parent != nil {
		scope.ProcParams = parent.ProcParams
		scope.Locals = parent.Locals
		scope.ArgBundles = parent.ArgBundles
		scope.OuterJoin = parent.FromJoin
	}
	scope.FromJoin = join
	az.PushScope(scope)
	defer az.PopScope()

	if core.Right != nil && core.Right.Is(ast.KindFromEtc) && core.Right.Right != nil {
		if rec := az.Analyze(core.Right.Right); rec.IsError() {
			return sem.ErrorRecord("select_stmt: where clause: " + rec.Error)
		}
	}

	st := &sem.Struct{}
	for i, expr := range ast.ListElements(core.Left, ast.KindExprList) {
		rec := az.Analyze(expr)
		if rec.IsError() {
			return sem.ErrorRecord("select_stmt: select list: " + rec.Error)
		}
		st.Names = append(st.Names, selectColumnName(expr, rec, i))
		st.Types = append(st.Types, rec.Type)
	}

	out := &sem.Record{Type: sem.NewType(sem.CoreStruct), Struct: st}
	if join != nil {
		out.Join = join
	}
	return out
}

// selectColumnName picks the result-column name for one select-list
// expression: the identifier for bare names, the field for dotted names,
// a positional placeholder otherwise.
func selectColumnName(expr *ast.Node, rec *sem.Record, i int) string {
	switch {
	case expr.Is(ast.KindNameExpr) && ast.IsID(expr.Left):
		return expr.Left.StrVal
	case expr.Is(ast.KindDotExpr) && expr.Right != nil && ast.IsID(expr.Right):
		return expr.Right.StrVal
	case rec.Name != "":
		return rec.Name
	default:
		return "_anon" + strconv.Itoa(i)
	}
}

// buildFromJoin resolves every table reference in a from_etc's join chain
// against the CTE scope stack first, then tables, then views, applying
// the region visibility rule to each (spec §4.6: "Cross-region references
// obey the public/private visibility rule").
func buildFromJoin(az *Analyzer, fromEtc *ast.Node) (*sem.Join, *sem.Record) {
	if fromEtc == nil {
		return nil, nil
	}
	if !fromEtc.Is(ast.KindFromEtc) {
		return nil, nil
	}
	join := &sem.Join{}
	for cur := fromEtc.Left; cur != nil; cur = cur.Right {
		if !cur.Is(ast.KindJoinClause) {
			break
		}
		table := cur.Left
		if table == nil || !ast.IsID(table) {
			return nil, sem.ErrorRecord("select_stmt: expected table name in FROM")
		}
		name := table.StrVal

		if st, ok := az.CTEs.Lookup(name); ok {
			join.Names = append(join.Names, name)
			join.Structs = append(join.Structs, st)
			continue
		}
		obj, kind := az.lookupRelation(name)
		if obj == nil {
			return nil, sem.ErrorRecord("select_stmt: name not found " + name)
		}
		if rec := sem.Of(obj.Node); rec != nil && rec.Region != "" {
			if !az.Regions.VisibleFrom(az.currentRegion, rec.Region) {
				return nil, sem.ErrorRecord("select_stmt: region not accessible: " + name + " is in region " + rec.Region)
			}
		}
		_ = kind
		join.Names = append(join.Names, name)
		join.Structs = append(join.Structs, obj.Struct)
	}
	if len(join.Names) == 0 {
		return nil, nil
	}
	return join, nil
}

// lookupRelation finds a FROM-clause name as a table or a view.
func (az *Analyzer) lookupRelation(name string) (*registry.Object, string) {
	if obj, ok := az.Registry.Tables.Find(name); ok {
		return obj, "table"
	}
	if obj, ok := az.Registry.Views.Find(name); ok {
		return obj, "view"
	}
	return nil, ""
}

// handleWithClause pushes one CTE frame, binds each CTE's analyzed
// struct, analyzes the inner statement against that stack, and pops the
// frame (spec §3.4).
func handleWithClause(az *Analyzer, n *ast.Node) *sem.Record {
	az.CTEs.Push()
	defer az.CTEs.Pop()

	mark := 0
	if az.currentProc != nil {
		mark = len(az.currentProc.dmlKinds)
	}
	for _, binding := range ast.ListElements(n.Left, ast.KindCteList) {
		if !binding.Is(ast.KindCteBinding) || !ast.IsID(binding.Left) {
			return sem.ErrorRecord("with_clause: expected cte binding")
		}
		rec := az.Analyze(binding.Right)
		if rec.IsError() {
			return sem.ErrorRecord("with_clause: cte " + binding.Left.StrVal + ": " + rec.Error)
		}
		if rec.Struct == nil {
			return sem.ErrorRecord("with_clause: cte " + binding.Left.StrVal + " is not a select")
		}
		az.CTEs.Bind(binding.Left.StrVal, rec.Struct)
	}
	rec := az.Analyze(n.Right)
	if rec.IsError() {
		return rec
	}
	if az.currentProc != nil && len(az.currentProc.dmlKinds) > mark {
		// The CTE bodies and the inner statement already recorded
		// themselves; collapse them into one with_clause entry so
		// classification sees the full shape as a single statement.
		az.currentProc.dmlKinds = append(az.currentProc.dmlKinds[:mark], ast.KindWithClause)
	}
	return rec
}

// dmlTargetExists verifies the target of an insert/update/delete names a
// known table (CTE-bound names count: backed-table rewrites leave the
// logical name bound as a CTE).
func dmlTargetExists(az *Analyzer, target *ast.Node) *sem.Record {
	if target == nil || !ast.IsID(target) {
		return sem.ErrorRecord("dml: expected target table name")
	}
	name := target.StrVal
	if _, ok := az.CTEs.Lookup(name); ok {
		return nil
	}
	if az.Registry.Tables.Has(name) {
		return nil
	}
	return sem.ErrorRecord("dml: name not found " + name)
}

func handleInsertStmt(az *Analyzer, n *ast.Node) *sem.Record {
	if errRec := dmlTargetExists(az, n.Left); errRec != nil {
		return errRec
	}
	plainValues := n.Right == nil || n.Right.Is(ast.KindExprList)
	if n.Right != nil {
		mark := -1
		if az.currentProc != nil {
			mark = len(az.currentProc.dmlKinds)
		}
		if rec := az.Analyze(n.Right); rec.IsError() {
			return sem.ErrorRecord("insert_stmt: " + rec.Error)
		}
		if mark >= 0 {
			// A select feeding the insert is part of this one statement.
			az.currentProc.dmlKinds = az.currentProc.dmlKinds[:mark]
		}
	}
	az.noteDML(ast.KindInsertStmt, plainValues)
	return &sem.Record{Type: sem.NewType(sem.CoreOK).WithFlag(sem.FlagDMLProc)}
}

func handleUpdateStmt(az *Analyzer, n *ast.Node) *sem.Record {
	if errRec := dmlTargetExists(az, n.Left); errRec != nil {
		return errRec
	}
	az.noteDML(ast.KindUpdateStmt, false)
	return &sem.Record{Type: sem.NewType(sem.CoreOK).WithFlag(sem.FlagDMLProc)}
}

func handleDeleteStmt(az *Analyzer, n *ast.Node) *sem.Record {
	if errRec := dmlTargetExists(az, n.Left); errRec != nil {
		return errRec
	}
	if n.Right != nil {
		if rec := az.Analyze(n.Right); rec.IsError() {
			return sem.ErrorRecord("delete_stmt: " + rec.Error)
		}
	}
	az.noteDML(ast.KindDeleteStmt, false)
	return &sem.Record{Type: sem.NewType(sem.CoreOK).WithFlag(sem.FlagDMLProc)}
}

func handleUpsertStmt(az *Analyzer, n *ast.Node) *sem.Record {
	if errRec := dmlTargetExists(az, n.Left); errRec != nil {
		return errRec
	}
	az.noteDML(ast.KindUpsertStmt, false)
	return &sem.Record{Type: sem.NewType(sem.CoreOK).WithFlag(sem.FlagDMLProc)}
}
