package analyzer

import "sqlfront/internal/ast"

// RefContext classifies how a procedure or trigger body references a
// table or view, per spec §4.6 "Dependency tracking".
type RefContext int

const (
	RefFromSource RefContext = iota
	RefInsertTarget
	RefUpdateTarget
	RefDeleteTarget
	RefAny
)

// Dependencies is the accumulated set of object references discovered
// while analyzing one procedure or trigger body. It is attached to the
// body's semantic record and later read by internal/jsonemit (for
// fromTables/insertTables/... ) and internal/queryplan.
type Dependencies struct {
	Tables    map[RefContext]map[string]bool
	Views     map[RefContext]map[string]bool
	Procs     map[string]bool // called procedures, context-independent
}

// NewDependencies returns an empty set.
func NewDependencies() *Dependencies {
	return &Dependencies{
		Tables: map[RefContext]map[string]bool{},
		Views:  map[RefContext]map[string]bool{},
		Procs:  map[string]bool{},
	}
}

func (d *Dependencies) noteTable(ctx RefContext, name string) {
	m, ok := d.Tables[ctx]
	if !ok {
		m = map[string]bool{}
		d.Tables[ctx] = m
	}
	m[name] = true
}

func (d *Dependencies) noteView(ctx RefContext, name string) {
	m, ok := d.Views[ctx]
	if !ok {
		m = map[string]bool{}
		d.Views[ctx] = m
	}
	m[name] = true
}

// DependencyVisitor walks a procedure or trigger body recording table,
// view, and procedure references, given a classifier the caller supplies
// to decide whether an identifier names a table, a view, or neither
// (the analyzer's registry backs this in practice; tests can substitute a
// fixed map).
type DependencyVisitor struct {
	IsTable func(name string) bool
	IsView  func(name string) bool
	IsProc  func(name string) bool

	Deps *Dependencies
}

// NewDependencyVisitor returns a visitor accumulating into a fresh
// Dependencies set.
func NewDependencyVisitor(isTable, isView, isProc func(string) bool) *DependencyVisitor {
	return &DependencyVisitor{IsTable: isTable, IsView: isView, IsProc: isProc, Deps: NewDependencies()}
}

// Visit walks n and its children, classifying name references it
// recognizes by node kind. Nodes this repo's dispatch table doesn't yet
// special-case (most expression forms) are walked generically so any
// name leaves nested inside them are still visited.
func (v *DependencyVisitor) Visit(n *ast.Node) {
	if n == nil {
		return
	}
	switch n.Kind {
	case ast.KindInsertStmt:
		v.visitTarget(n.Left, RefInsertTarget)
	case ast.KindUpdateStmt:
		v.visitTarget(n.Left, RefUpdateTarget)
	case ast.KindDeleteStmt:
		v.visitTarget(n.Left, RefDeleteTarget)
	case ast.KindUpsertStmt:
		v.visitTarget(n.Left, RefInsertTarget)
	case ast.KindFromEtc, ast.KindJoinClause:
		v.visitFromSource(n)
	case ast.KindCallStmt, ast.KindCallExpr:
		v.visitCall(n)
	}

	if n.IsLeaf() {
		return
	}
	v.Visit(n.Left)
	if n.Kind.Arity() == ast.Arity2 {
		v.Visit(n.Right)
	}
}

func (v *DependencyVisitor) visitTarget(name *ast.Node, ctx RefContext) {
	if name == nil || !ast.IsID(name) {
		return
	}
	nm := name.StrVal
	if v.IsTable != nil && v.IsTable(nm) {
		v.Deps.noteTable(ctx, nm)
	} else if v.IsView != nil && v.IsView(nm) {
		v.Deps.noteView(ctx, nm)
	}
}

func (v *DependencyVisitor) visitFromSource(n *ast.Node) {
	for cur := n; cur != nil; {
		var table *ast.Node
		switch cur.Kind {
		case ast.KindFromEtc:
			table = cur.Left
		case ast.KindJoinClause:
			table = cur.Left
		default:
			return
		}
		if table != nil && ast.IsID(table) {
			nm := table.StrVal
			if v.IsTable != nil && v.IsTable(nm) {
				v.Deps.noteTable(RefFromSource, nm)
			} else if v.IsView != nil && v.IsView(nm) {
				v.Deps.noteView(RefFromSource, nm)
			}
		}
		if cur.Kind == ast.KindJoinClause {
			cur = cur.Right
			continue
		}
		return
	}
}

func (v *DependencyVisitor) visitCall(n *ast.Node) {
	if n.Left == nil || !ast.IsID(n.Left) {
		return
	}
	nm := n.Left.StrVal
	if v.IsProc != nil && v.IsProc(nm) {
		v.Deps.Procs[nm] = true
	}
}
