// Package analyzer is the semantic analyzer, spec component F: it
// resolves names through the stages in internal/resolve, type-checks
// expressions, threads nullability inference, enforces schema-versioning
// and region/deployment rules, tracks object dependencies, drives the
// cursor and out-union state machines, and populates internal/registry.
// Rewrites (internal/rewrite) re-enter the analyzer on their output, the
// same loop the original compiler calls "semantic analysis drives
// rewriting drives semantic analysis".
package analyzer

import (
	"fmt"

	"sqlfront/internal/ast"
	"sqlfront/internal/macro"
	"sqlfront/internal/registry"
	"sqlfront/internal/resolve"
	"sqlfront/internal/sem"
)

// Handler analyzes one AST node, assuming its kind matches the dispatch
// table entry it was installed under. It must not be called directly by
// anything but Analyzer.Analyze.
type Handler func(az *Analyzer, n *ast.Node) *sem.Record

// Rewriter is the narrow interface the analyzer needs back from
// internal/rewrite, broken out to avoid an analyzer<->rewrite import
// cycle: rewrite imports analyzer to re-enter it, so analyzer cannot
// import rewrite's concrete type.
type Rewriter interface {
	Rewrite(az *Analyzer, n *ast.Node) (*ast.Node, bool)
}

// Analyzer holds all state for analyzing one translation unit.
type Analyzer struct {
	Arena    *ast.Arena
	Registry *registry.Registry
	CTEs     *registry.CTEScope
	Regions  *RegionGraph
	Versions *VersionModel
	Rewrite  Rewriter // nil disables the rewrite re-entry loop, for tests

	dispatch map[*ast.Kind]Handler

	// ExitOnValidation is set when an unrecoverable schema directive is
	// found (spec §4.6 "Failure semantics"); code generation must not
	// proceed if this is true after Analyze returns.
	ExitOnValidation bool

	// MacroExpansionErrors mirrors the global flag from spec §4.4:
	// analysis of a statement whose macro expansion failed is skipped,
	// but analysis continues with the next statement.
	MacroExpansionErrors bool

	scopes []*resolve.Scope
	cursors map[string]*CursorState
	outUnion map[string]OutUnionState

	// facts is the nullability fact set for the control-flow path
	// currently being analyzed; handlers fork and merge it around
	// branching statements (spec §4.6 step 4).
	facts *NullFacts

	// currentProc is the procedure whose body is being analyzed, nil at
	// top level. Its dependency visitor accumulates while the body's
	// statements run through the dispatch table.
	currentProc *procContext

	// currentRegion is the open @begin_schema_region, "" at top level;
	// schema objects declared while it is set inherit it.
	currentRegion string

	globals      map[string]sem.Type
	cursorShapes map[string]*sem.Struct

	diagnostics []Diagnostic
}

// Diagnostic is one analyzer-reported problem, attached to its node's
// location for reporting.
type Diagnostic struct {
	Loc     ast.Location
	Message string
}

// New returns an analyzer over arena, with the standard dispatch table
// installed and backed by a fresh registry.
func New(arena *ast.Arena) *Analyzer {
	az := &Analyzer{
		Arena:    arena,
		Registry: registry.New(),
		CTEs:     registry.NewCTEScope(),
		Regions:  NewRegionGraph(),
		Versions: NewVersionModel(),
		dispatch: make(map[*ast.Kind]Handler),
		cursors:  make(map[string]*CursorState),
		outUnion: make(map[string]OutUnionState),
		facts:    NewNullFacts(),
	}
	installDefaultHandlers(az)
	return az
}

// On installs handler for kind, overwriting any previous registration.
// Tests and the rewriter's bootstrap register handlers this way rather
// than through a generated switch statement.
func (az *Analyzer) On(kind *ast.Kind, handler Handler) {
	az.dispatch[kind] = handler
}

// PushScope opens a new name-resolution scope (entering a procedure body,
// a cursor-scoped block, or a nested select).
func (az *Analyzer) PushScope(s *resolve.Scope) { az.scopes = append(az.scopes, s) }

// PopScope closes the innermost scope.
func (az *Analyzer) PopScope() {
	if len(az.scopes) == 0 {
		panic("analyzer: PopScope with no open scope")
	}
	az.scopes = az.scopes[:len(az.scopes)-1]
}

// CurrentScope returns the innermost open scope, or nil if none is open.
func (az *Analyzer) CurrentScope() *resolve.Scope {
	if len(az.scopes) == 0 {
		return nil
	}
	return az.scopes[len(az.scopes)-1]
}

// Diag records a diagnostic at n's location.
func (az *Analyzer) Diag(n *ast.Node, format string, args ...any) {
	az.diagnostics = append(az.diagnostics, Diagnostic{Loc: n.Loc, Message: fmt.Sprintf(format, args...)})
}

// Diagnostics returns every diagnostic recorded so far, in report order.
func (az *Analyzer) Diagnostics() []Diagnostic { return az.diagnostics }

// AnalyzeProgram analyzes every statement in a stmt_list, in order. Per
// spec §4.6 "Failure semantics": the first error within one statement
// poisons that statement, but analysis continues with the next one so
// users see every independent error in a single run.
//
// Statements are expected to have already been macro-expanded (see
// AnalyzeProgramWithMacros); this entry point is also used directly by
// tests that build macro-free fixtures.
func (az *Analyzer) AnalyzeProgram(stmtList *ast.Node) {
	for _, stmt := range ast.ListElements(stmtList, ast.KindStmtList) {
		if az.MacroExpansionErrors {
			// This entry point has no per-statement expansion record, so
			// while the flag is set no statement of the list is analyzed;
			// the errors behind it came from the macro expander, not
			// from here.
			continue
		}
		az.analyzeOne(stmt)
	}
}

// AnalyzeProgramWithMacros runs the macro expander (spec component D)
// over each top-level statement before analyzing it. The flag is scoped
// to one statement at a time: a statement whose expansion fails sets
// MacroExpansionErrors, is skipped, and the flag is cleared before the
// next statement is attempted, matching spec §4.4's "analysis of that
// statement is skipped" (not the whole remaining program).
func (az *Analyzer) AnalyzeProgramWithMacros(expander *macro.Expander, stmtList *ast.Node) {
	for _, stmt := range ast.ListElements(stmtList, ast.KindStmtList) {
		before := len(expander.Errors)
		expanded := expander.ExpandStatement(stmt)
		if len(expander.Errors) > before {
			az.MacroExpansionErrors = true
			continue
		}
		az.MacroExpansionErrors = false
		az.analyzeOne(expanded)
	}
}

// analyzeOne runs the rewrite/analyze loop on a single top-level
// statement until Rewrite reports no further change, then performs the
// final analysis pass.
func (az *Analyzer) analyzeOne(stmt *ast.Node) *sem.Record {
	cur := stmt
	for az.Rewrite != nil {
		rewritten, changed := az.Rewrite.Rewrite(az, cur)
		if !changed {
			break
		}
		cur = rewritten
	}
	return az.Analyze(cur)
}

// Analyze dispatches n to its registered Handler, records the provisional
// error sentinel first (per spec §4.6 step 1), then lets the handler
// overwrite it with the real result. A node with no registered handler
// analyzes as OK, matching kinds (like punctuation-only wrapper nodes)
// the dispatch table intentionally leaves unhandled.
func (az *Analyzer) Analyze(n *ast.Node) *sem.Record {
	if n == nil {
		return sem.OKRecord()
	}
	n.Sem = sem.ErrorRecord("not yet analyzed")

	handler, ok := az.dispatch[n.Kind]
	var rec *sem.Record
	if ok {
		rec = handler(az, n)
	} else {
		rec = sem.OKRecord()
	}
	n.Sem = rec
	return rec
}

// PoisonedChild reports whether any of n's children already carry an
// error record, used by handlers to short-circuit further analysis of a
// node whose inputs already failed (spec §3.2 invariant: error poisons
// ancestors).
func PoisonedChild(nodes ...*ast.Node) bool {
	for _, n := range nodes {
		if ast.IsError(n) {
			return true
		}
	}
	return false
}
