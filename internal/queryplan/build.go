package queryplan

import "sqlfront/internal/ast"

// CollectStatements walks stmtList for DML statements — at the top level
// and inside every declared procedure's body — and assembles a Program
// ready for Render(), the entry point spec component I needs from an
// analyzed-and-rewritten translation unit. Each statement is rendered via
// textOf (internal/sqltext's boundary), the same callback jsonemit uses
// for procedure bodies.
func CollectStatements(stmtList *ast.Node, textOf func(*ast.Node) (string, []string)) *Program {
	p := New()
	walkForDML(stmtList, "anon", p, textOf)
	return p
}

func walkForDML(n *ast.Node, enclosingProc string, p *Program, textOf func(*ast.Node) (string, []string)) {
	for _, stmt := range ast.ListElements(n, ast.KindStmtList) {
		switch {
		case stmt.Is(ast.KindCreateProc):
			procName := ast.ExtractStr(stmt.Left)
			body := stmt.Right
			if body != nil && body.Is(ast.KindProcParamsBody) {
				walkForDML(body.Right, procName, p, textOf)
			}
		case isDMLStmt(stmt):
			text, _ := textOf(stmt)
			p.AddStatement(enclosingProc, text, tableRefsOf(stmt))
		}
	}
}

func isDMLStmt(n *ast.Node) bool {
	// A with_clause counts as one DML statement: the backed-table rewrite
	// wraps selects, inserts, updates and deletes on a backed table in one
	// (upserts are only retargeted), and the plan
	// capture must see the CTE prologue together with the body.
	return ast.IsAnyOf(n, ast.KindSelectStmt, ast.KindInsertStmt, ast.KindUpdateStmt, ast.KindDeleteStmt, ast.KindUpsertStmt, ast.KindWithClause)
}

// tableRefsOf extracts the table names a DML statement touches: the FROM
// join's tables for a SELECT, or the single target table for an
// insert/update/delete/upsert.
func tableRefsOf(n *ast.Node) []string {
	switch {
	case n.Is(ast.KindWithClause):
		return tableRefsOf(n.Right)
	case n.Is(ast.KindSelectStmt):
		return fromTableNames(n.Left)
	case ast.IsAnyOf(n, ast.KindInsertStmt, ast.KindUpdateStmt, ast.KindDeleteStmt, ast.KindUpsertStmt):
		if ast.IsID(n.Left) {
			return []string{n.Left.StrVal}
		}
	}
	return nil
}

func fromTableNames(selectCore *ast.Node) []string {
	if selectCore == nil || !selectCore.Is(ast.KindSelectCore) {
		return nil
	}
	fromEtc := selectCore.Right
	if fromEtc == nil || !fromEtc.Is(ast.KindFromEtc) {
		return nil
	}
	var out []string
	for j := fromEtc.Left; j != nil && j.Is(ast.KindJoinClause); j = j.Right {
		if ast.IsID(j.Left) {
			out = append(out, j.Left.StrVal)
		}
	}
	return out
}
