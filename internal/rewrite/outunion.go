package rewrite

import (
	"strconv"

	"sqlfront/internal/analyzer"
	"sqlfront/internal/ast"
	"sqlfront/internal/registry"
	"sqlfront/internal/sem"
)

// ruleOutUnionParent expands `OUT UNION CALL parent(...) JOIN CALL
// child(...) USING (keyCols...)` into the fixed sequence spec §4.7.5
// prescribes: one partition object per child, a drain loop per child that
// files each child row into its partition under the USING key columns, a
// widened output cursor declared over (parent-cols, childN OBJECT<child
// SET> NOT NULL, ...), and a parent drain loop that emits each parent row
// plus every child partition's lookup for that row's key. The partition
// helpers (cql_partition_create/cql_partition_cursor/
// cql_extract_partition) are the runtime's, registered as unchecked
// functions so re-analysis of the expansion accepts the calls.
func ruleOutUnionParent(rw *Rewriter, az *analyzer.Analyzer, n *ast.Node) (*ast.Node, bool) {
	if !n.Is(ast.KindOutUnionParent) {
		return n, false
	}
	parentCall := n.Left
	if parentCall == nil || !parentCall.Is(ast.KindCallExpr) || !ast.IsID(parentCall.Left) {
		return n, false
	}
	parentStruct, ok := procResultStruct(az, parentCall.Left.StrVal)
	if !ok {
		az.Diag(n, "out_union_parent_child_stmt: procedure %s has no result shape", parentCall.Left.StrVal)
		return n, false
	}

	children := ast.ListElements(n.Right, ast.KindChildCallList)
	type childPlan struct {
		name      string
		call      *ast.Node
		keyCols   []string
		partition string
		cursor    string
	}
	var plans []childPlan
	for i, child := range children {
		if !child.Is(ast.KindChildCall) || child.Left == nil || !child.Left.Is(ast.KindCallExpr) || !ast.IsID(child.Left.Left) {
			return n, false
		}
		childName := child.Left.Left.StrVal
		if _, ok := procResultStruct(az, childName); !ok {
			az.Diag(n, "out_union_parent_child_stmt: procedure %s has no result shape", childName)
			return n, false
		}
		keyCols := usingColumns(child.Right)
		if len(keyCols) == 0 {
			az.Diag(n, "out_union_parent_child_stmt: child %s has no USING columns", childName)
			return n, false
		}
		plans = append(plans, childPlan{
			name:      childName,
			call:      child.Left,
			keyCols:   keyCols,
			partition: "_partition_" + strconv.Itoa(i),
			cursor:    "_child_cursor_" + strconv.Itoa(i),
		})
	}
	if len(plans) == 0 {
		return n, false
	}

	loc := rw.currentLoc(n)
	declarePartitionHelpers(az)

	var stmts []*ast.Node
	for _, p := range plans {
		stmts = append(stmts,
			buildPartitionCreate(rw.Arena, loc, p.partition),
			buildChildCursorDecl(rw.Arena, loc, p.cursor, p.call),
			buildChildDrainLoop(rw.Arena, loc, p.partition, p.cursor, p.keyCols))
	}

	names := make([]string, len(plans))
	for i, p := range plans {
		names[i] = p.name
	}
	outShape := registerWidenedShape(rw, az, parentCall.Left.StrVal, parentStruct, names)
	outCursor := "_out_cursor"
	parentCursor := "_parent_cursor"
	stmts = append(stmts,
		ast.New2(rw.Arena, ast.KindDeclareCursorLk, loc, strLeaf(rw.Arena, loc, outCursor), strLeaf(rw.Arena, loc, outShape)),
		ast.New2(rw.Arena, ast.KindDeclareCursor, loc, strLeaf(rw.Arena, loc, parentCursor), ast.Clone(rw.Arena, parentCall)))

	var lookups []*ast.Node
	for _, colName := range parentStruct.Names {
		lookups = append(lookups, cursorDot(rw.Arena, loc, parentCursor, colName))
	}
	for _, p := range plans {
		args := []*ast.Node{nameExprLeaf(rw.Arena, loc, p.partition)}
		for _, key := range p.keyCols {
			args = append(args, cursorDot(rw.Arena, loc, parentCursor, key))
		}
		lookups = append(lookups, ast.New2(rw.Arena, ast.KindCallExpr, loc,
			strLeaf(rw.Arena, loc, "cql_extract_partition"),
			ast.BuildList(rw.Arena, ast.KindArgList, loc, args)))
	}
	fetchOut := ast.New2(rw.Arena, ast.KindFetchCallStmt, loc, strLeaf(rw.Arena, loc, outCursor),
		ast.BuildList(rw.Arena, ast.KindExprList, loc, lookups))
	outUnion := ast.New1(rw.Arena, ast.KindOutUnionStmt, loc, strLeaf(rw.Arena, loc, outCursor))

	fetchParent := ast.New2(rw.Arena, ast.KindFetchStmt, loc, strLeaf(rw.Arena, loc, parentCursor), nil)
	loopBody := ast.BuildList(rw.Arena, ast.KindStmtList, loc, []*ast.Node{fetchOut, outUnion})
	stmts = append(stmts, ast.New2(rw.Arena, ast.KindLoopStmt, loc, fetchParent, loopBody))

	return ast.BuildList(rw.Arena, ast.KindStmtList, loc, stmts), true
}

// procResultStruct looks up a procedure's result shape; only procedures
// that produce rows can be joined this way.
func procResultStruct(az *analyzer.Analyzer, name string) (*sem.Struct, bool) {
	obj, ok := az.Registry.Procedures.Find(name)
	if !ok || obj.Struct == nil {
		return nil, false
	}
	return obj.Struct, true
}

// usingColumns flattens a child_call's USING name_list.
func usingColumns(nameList *ast.Node) []string {
	var out []string
	for _, col := range ast.ListElements(nameList, ast.KindNameList) {
		if ast.IsID(col) {
			out = append(out, col.StrVal)
		}
	}
	return out
}

// declarePartitionHelpers registers the runtime partition functions as
// unchecked, so the analyzer's call checking accepts the expansion the
// same way CQL accepts its own `DECLARE PROC ... NO CHECK` runtime stubs.
func declarePartitionHelpers(az *analyzer.Analyzer) {
	for _, name := range []string{"cql_partition_create", "cql_partition_cursor", "cql_extract_partition"} {
		az.Registry.UncheckedFns.AddIfAbsent(name, &registry.Object{Name: name})
	}
}

// registerWidenedShape builds the output row shape — every parent column
// followed by one `childN OBJECT<childN SET> NOT NULL` column per child —
// and registers it as a named type so the declare-cursor-LIKE in the
// expansion resolves it. Registration is idempotent per parent procedure.
func registerWidenedShape(rw *Rewriter, az *analyzer.Analyzer, parentName string, parentStruct *sem.Struct, children []string) string {
	shapeName := "_out_union_row_" + parentName
	widened := &sem.Struct{Name: shapeName}
	for i, colName := range parentStruct.Names {
		widened.Names = append(widened.Names, colName)
		widened.Types = append(widened.Types, parentStruct.Types[i])
		widened.Kinds = append(widened.Kinds, kindAt(parentStruct, i))
	}
	for _, child := range children {
		widened.Names = append(widened.Names, child)
		widened.Types = append(widened.Types, sem.NewType(sem.CoreObject).WithFlag(sem.FlagNotNull))
		widened.Kinds = append(widened.Kinds, child+" SET")
	}
	az.Registry.NamedTypes.AddIfAbsent(shapeName, &registry.Object{Name: shapeName, Struct: widened})
	return shapeName
}

func kindAt(st *sem.Struct, i int) string {
	if i < len(st.Kinds) {
		return st.Kinds[i]
	}
	return ""
}

func buildPartitionCreate(a *ast.Arena, loc ast.Location, partition string) *ast.Node {
	call := ast.New2(a, ast.KindCallExpr, loc, strLeaf(a, loc, "cql_partition_create"), nil)
	return ast.New2(a, ast.KindLetStmt, loc, strLeaf(a, loc, partition), call)
}

func buildChildCursorDecl(a *ast.Arena, loc ast.Location, cursor string, call *ast.Node) *ast.Node {
	return ast.New2(a, ast.KindDeclareCursor, loc, strLeaf(a, loc, cursor), ast.Clone(a, call))
}

// buildChildDrainLoop fetches every child row and files it into the
// partition keyed by the USING columns:
//
//	LOOP FETCH _child_cursor_N
//	BEGIN
//	  CALL cql_partition_cursor(_partition_N, _child_cursor_N.key..., _child_cursor_N);
//	END;
func buildChildDrainLoop(a *ast.Arena, loc ast.Location, partition, cursor string, keyCols []string) *ast.Node {
	args := []*ast.Node{nameExprLeaf(a, loc, partition)}
	for _, key := range keyCols {
		args = append(args, cursorDot(a, loc, cursor, key))
	}
	args = append(args, nameExprLeaf(a, loc, cursor))
	file := ast.New2(a, ast.KindCallStmt, loc, strLeaf(a, loc, "cql_partition_cursor"),
		ast.BuildList(a, ast.KindArgList, loc, args))

	fetch := ast.New2(a, ast.KindFetchStmt, loc, strLeaf(a, loc, cursor), nil)
	body := ast.BuildList(a, ast.KindStmtList, loc, []*ast.Node{file})
	return ast.New2(a, ast.KindLoopStmt, loc, fetch, body)
}

func cursorDot(a *ast.Arena, loc ast.Location, cursor, field string) *ast.Node {
	return ast.New2(a, ast.KindDotExpr, loc, strLeaf(a, loc, cursor), strLeaf(a, loc, field))
}
