// Package sqltext implements the SQL text generator boundary, spec §6:
// a tree-to-string walker over an analyzed (and rewritten) AST that
// invokes caller-supplied callbacks at the points the spec names —
// variable references, call expressions, CTE procedure bodies, if-stmt
// branch selection inside shared fragments, and table-valued-function
// references — rather than hard-coding how each is rendered.
//
// The walker itself is hand-written rather than built on TiDB's
// format.RestoreCtx (internal/parser/mysql's approach to the same
// problem, via expr.Restore(restoreCtx) into a strings.Builder) because
// this package walks this repository's own ast.Node tree, not TiDB's;
// the strings.Builder-plus-callback shape is kept the same.
package sqltext

import (
	"strconv"
	"strings"

	"sqlfront/internal/ast"
	"sqlfront/internal/sem"
)

// Mode names a rendering mode. It is stored on the Generator, but walk
// does not consult it, so all three modes render the same text.
type Mode int

const (
	ModeEcho          Mode = iota // echo
	ModeSQL                       // sql
	ModeNoAnnotations             // no-annotations
)

// Callbacks are the five boundary hooks spec §6 names. Each is optional;
// a nil callback falls back to the generator's default rendering.
type Callbacks struct {
	// Variable is invoked for every variable reference; it appends the
	// variable to a caller-owned arg list and the generator writes "?" in
	// its place.
	Variable func(n *ast.Node)

	// Func is invoked for every call expression; returning ok=true
	// replaces the call with replacement text verbatim.
	Func func(n *ast.Node) (replacement string, ok bool)

	// CTEProc is invoked when a shared fragment appears as a CTE binding;
	// implementations typically use it to flag the enclosing procedure as
	// no longer "simple" (spec §6).
	CTEProc func(n *ast.Node)

	// IfStmt is invoked inside shared fragments to select a branch;
	// returning a non-negative index picks that ELSE IF arm (0 is the
	// THEN branch), -1 falls back to the default (first branch).
	IfStmt func(n *ast.Node) int

	// TableFunction is invoked by TableFunctionRef; returning ok=true
	// replaces the table-valued-function reference with replacement text
	// verbatim (for example a demoted plain-table name).
	TableFunction func(n *ast.Node) (replacement string, ok bool)
}

// Generator renders an ast.Node subtree to text, accumulating a
// parameter-ordered argument list as it goes (spec §4.8: "a parameter-
// ordered *Args array listing the variables embedded in it").
type Generator struct {
	Mode Mode
	Cb   Callbacks

	buf  *ast.CharBuf
	args []string
}

// New returns a generator in the given mode with cb wired in.
func New(mode Mode, cb Callbacks) *Generator {
	return &Generator{Mode: mode, Cb: cb, buf: ast.NewCharBuf()}
}

// Render walks n and returns its rendered text plus the ordered list of
// variable names referenced, resetting the generator's internal buffer
// first so a Generator can be reused across statements.
func (g *Generator) Render(n *ast.Node) (text string, argVars []string) {
	g.buf = ast.NewCharBuf()
	g.args = nil
	g.walk(n)
	return g.buf.String(), g.args
}

func (g *Generator) write(s string) { g.buf.Printf("%s", s) }

func (g *Generator) writeSpaced(parts ...string) {
	g.write(strings.Join(parts, " "))
}

func (g *Generator) walk(n *ast.Node) {
	if n == nil {
		return
	}
	switch {
	case n.Is(ast.KindIntLit):
		g.write(strconv.FormatInt(n.IntVal, 10))
	case n.Is(ast.KindNumLit):
		g.write(n.NumText)
	case n.Is(ast.KindStrLit):
		g.write(ast.QuoteC(n.StrVal))
	case n.Is(ast.KindBlobLit):
		g.write("x'" + n.StrVal + "'")
	case n.Is(ast.KindNullLit):
		g.write("NULL")
	case n.Is(ast.KindNameExpr):
		g.walkNameExpr(n)
	case n.Is(ast.KindDotExpr):
		g.walkDotExpr(n)
	case n.Is(ast.KindBinaryExpr):
		g.walkBinary(n)
	case n.Is(ast.KindUnaryExpr):
		g.write("(")
		g.write(operatorOf(n))
		g.walk(n.Left)
		g.write(")")
	case n.Is(ast.KindCastExpr):
		g.write("CAST(")
		g.walk(n.Left)
		g.write(" AS ")
		g.walk(n.Right)
		g.write(")")
	case n.Is(ast.KindCallExpr):
		g.walkCall(n)
	case n.Is(ast.KindCaseExpr):
		g.walkCase(n)
	case n.Is(ast.KindIfStmt):
		g.walkIfStmt(n)
	case n.Is(ast.KindStmtList):
		g.walkStmtList(n)
	case n.Is(ast.KindCteBinding):
		g.walkCteBinding(n)
	default:
		g.walkGenericBinary(n)
	}
}

func (g *Generator) walkNameExpr(n *ast.Node) {
	if n.Left == nil {
		return
	}
	if g.Cb.Variable != nil && isVariableRef(n) {
		g.Cb.Variable(n)
		g.args = append(g.args, n.Left.StrVal)
		g.write("?")
		return
	}
	g.write(n.Left.StrVal)
}

// isVariableRef distinguishes a variable reference from a column
// reference by the analyzed record: only names the analyzer marked as
// variables are bound as parameters; everything else stays verbatim in
// the SQL text.
func isVariableRef(n *ast.Node) bool {
	if r := sem.Of(n); r != nil {
		return r.Type.Has(sem.FlagVariable)
	}
	return false
}

func (g *Generator) walkDotExpr(n *ast.Node) {
	g.walk(n.Left)
	g.write(".")
	if n.Right != nil {
		g.write(n.Right.StrVal)
	}
}

func (g *Generator) walkBinary(n *ast.Node) {
	g.write("(")
	g.walk(n.Left)
	g.write(" " + operatorOf(n) + " ")
	g.walk(n.Right)
	g.write(")")
}

// walkGenericBinary covers any two-child expression kind this switch
// doesn't special-case (e.g. is_expr, array_get_expr): render as a
// parenthesized infix form keyed by the node kind's lexeme.
func (g *Generator) walkGenericBinary(n *ast.Node) {
	if n.Kind.Arity() != ast.Arity2 {
		return
	}
	g.write("(")
	g.walk(n.Left)
	g.write(" " + n.Kind.Name() + " ")
	g.walk(n.Right)
	g.write(")")
}

// operatorOf reads the operator lexeme the parser boundary (and the
// compound-assign rewrite) stamp on the node's record; a node without
// one renders its kind name, which keeps malformed fixtures visible
// rather than silently pretty.
func operatorOf(n *ast.Node) string {
	if r := sem.Of(n); r != nil && r.Kind != "" {
		return r.Kind
	}
	return n.Kind.Name()
}

func (g *Generator) walkCall(n *ast.Node) {
	if g.Cb.Func != nil {
		if replacement, ok := g.Cb.Func(n); ok {
			g.write(replacement)
			return
		}
	}
	if ast.IsID(n.Left) {
		g.write(n.Left.StrVal)
	}
	g.write("(")
	args := ast.ListElements(n.Right, ast.KindArgList)
	for i, a := range args {
		if i > 0 {
			g.write(", ")
		}
		g.walk(a)
	}
	g.write(")")
}

func (g *Generator) walkCase(n *ast.Node) {
	g.write("CASE")
	if n.Left != nil {
		g.write(" ")
		g.walk(n.Left)
	}
	arm := n.Right
	for arm != nil && arm.Is(ast.KindWhenList) {
		g.write(" WHEN ")
		g.walk(arm.Left.Left)
		g.write(" THEN ")
		g.walk(arm.Left.Right)
		if arm.Right != nil && arm.Right.Is(ast.KindWhenList) {
			arm = arm.Right
			continue
		}
		if arm.Right != nil {
			g.write(" ELSE ")
			g.walk(arm.Right)
		}
		break
	}
	g.write(" END")
}

// walkIfStmt renders only one branch of the if_stmt, wrapped as
// "BEGIN ... END", choosing it through the IfStmt callback when one is
// set (spec §6:
// "if-stmt callback: invoked inside shared fragments to select a
// branch").
func (g *Generator) walkIfStmt(n *ast.Node) {
	selected := -1
	if g.Cb.IfStmt != nil {
		selected = g.Cb.IfStmt(n)
	}
	if selected < 0 {
		selected = 0
	}
	branches := collectIfBranches(n)
	if selected >= len(branches) {
		selected = 0
	}
	if len(branches) == 0 {
		return
	}
	chosen := branches[selected]
	g.write("BEGIN ")
	g.walk(chosen)
	g.write(" END")
}

func collectIfBranches(n *ast.Node) []*ast.Node {
	var out []*ast.Node
	tail := n.Right
	for tail != nil && tail.Is(ast.KindElseIfList) {
		out = append(out, tail.Right)
		tail = tail.Left
	}
	if tail != nil {
		out = append(out, tail)
	}
	return out
}

func (g *Generator) walkStmtList(n *ast.Node) {
	cur := n
	first := true
	for cur != nil && cur.Is(ast.KindStmtList) {
		if !first {
			g.write("; ")
		}
		first = false
		g.walk(cur.Left)
		cur = cur.Right
	}
}

// walkCteBinding notifies the CTEProc callback (spec §6: "setting a flag
// disables the 'simple' classification of the enclosing procedure") and
// renders the binding as `name AS (select)`.
func (g *Generator) walkCteBinding(n *ast.Node) {
	if g.Cb.CTEProc != nil {
		g.Cb.CTEProc(n)
	}
	if n.Left != nil {
		g.write(n.Left.StrVal)
	}
	g.write(" AS (")
	g.walk(n.Right)
	g.write(")")
}

// TableFunctionRef renders a table-valued-function reference at name,
// consulting the TableFunction callback first (a caller can use it to
// substitute a demoted plain-table name).
func (g *Generator) TableFunctionRef(n *ast.Node, name string) {
	if g.Cb.TableFunction != nil {
		if replacement, ok := g.Cb.TableFunction(n); ok {
			g.write(replacement)
			return
		}
	}
	g.write(name)
}
