// Package bootstrap is the parser-boundary adapter: it turns a MySQL
// schema dump into the same ast.Node shape the (out-of-scope) compiler
// front end would have produced from CQL source, so the rest of this
// module — analyzer, rewriter, emitters — can be exercised and driven
// from ordinary `CREATE TABLE` SQL rather than requiring a CQL source
// file. It uses TiDB's parser, so it accepts both plain MySQL syntax and
// TiDB-specific table options.
package bootstrap

import (
	"fmt"
	"strings"

	"github.com/pingcap/tidb/pkg/parser"
	tidbast "github.com/pingcap/tidb/pkg/parser/ast"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"

	"sqlfront/internal/ast"
)

// Parser converts CREATE TABLE statements into ast.Node trees allocated
// from a single arena, one per translation unit.
type Parser struct {
	p     *parser.Parser
	arena *ast.Arena
	loc   ast.Location
}

// NewParser returns a Parser that allocates every node it produces from
// arena. filename is recorded on each node's Location, mirroring the
// convention that bootstrap-synthesized nodes carry a synthetic origin
// rather than a real source position.
func NewParser(arena *ast.Arena, filename string) *Parser {
	if filename == "" {
		filename = "<bootstrap>"
	}
	return &Parser{p: parser.New(), arena: arena, loc: ast.Location{Filename: filename}}
}

// Parse parses sql and returns a stmt_list chain of create_table_stmt
// nodes, one per CREATE TABLE statement found, each followed by a
// declare_backed_by_stmt when its table COMMENT starts with
// backedByComment. Statements of any other
// kind are skipped: the parser boundary this package stands in for only
// ever hands the rest of the compiler DDL, never DML or procedural code.
func (p *Parser) Parse(sql string) (*ast.Node, error) {
	stmtNodes, _, err := p.p.Parse(sql, "", "")
	if err != nil {
		return nil, fmt.Errorf("bootstrap: parse error: %w", err)
	}

	var stmts []*ast.Node
	for _, stmt := range stmtNodes {
		create, ok := stmt.(*tidbast.CreateTableStmt)
		if !ok {
			continue
		}
		n, backedBy, err := p.convertCreateTable(create)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, n)
		if backedBy != nil {
			stmts = append(stmts, backedBy)
		}
	}
	return ast.BuildList(p.arena, ast.KindStmtList, p.loc, stmts), nil
}

// backedByComment is the table-level COMMENT convention this boundary
// recognizes as the `@attribute(cql:backed_by=...)` stand-in (spec §3.1
// backed variant): `COMMENT='cql:backed_by=<backing table name>'`.
const backedByComment = "cql:backed_by="

func (p *Parser) convertCreateTable(stmt *tidbast.CreateTableStmt) (*ast.Node, *ast.Node, error) {
	name := p.strLeaf(stmt.Table.Name.O)

	cols := make([]*ast.Node, 0, len(stmt.Cols))
	for _, colDef := range stmt.Cols {
		col, err := p.convertColumn(stmt.Table.Name.O, colDef)
		if err != nil {
			return nil, nil, err
		}
		cols = append(cols, col)
	}
	colList := ast.BuildList(p.arena, ast.KindColDefList, p.loc, cols)
	createNode := ast.New2(p.arena, ast.KindCreateTable, p.loc, name, colList)

	var backedBy *ast.Node
	for _, opt := range stmt.Options {
		if opt.Tp != tidbast.TableOptionComment {
			continue
		}
		if backing, ok := strings.CutPrefix(opt.StrValue, backedByComment); ok {
			backedBy = ast.New2(p.arena, ast.KindBackedByAttr, p.loc, p.strLeaf(stmt.Table.Name.O), p.strLeaf(backing))
		}
	}
	return createNode, backedBy, nil
}

// convertColumn builds a col_def node from a TiDB column definition. The
// type node convention this package writes (and internal/analyzer's
// handleColAttrs reads back) is: col_attrs.Left is a str leaf naming one
// of the base types handleColAttrs recognizes, and col_attrs.Right is a
// str leaf holding a space-separated list of flag tokens.
func (p *Parser) convertColumn(table string, colDef *tidbast.ColumnDef) (*ast.Node, error) {
	typeName, ok := coreTypeName(colDef.Tp.String())
	if !ok {
		return nil, fmt.Errorf("bootstrap: %s.%s: unsupported column type %q", table, colDef.Name.Name.O, colDef.Tp.String())
	}

	var notNull bool
	var flags []string
	for _, opt := range colDef.Options {
		switch opt.Tp {
		case tidbast.ColumnOptionNotNull:
			notNull = true
		case tidbast.ColumnOptionPrimaryKey:
			notNull = true
			flags = append(flags, "PK")
		case tidbast.ColumnOptionAutoIncrement:
			flags = append(flags, "AUTOINCREMENT")
		case tidbast.ColumnOptionUniqKey:
			flags = append(flags, "UK")
		}
	}
	if notNull {
		flags = append([]string{"NOTNULL"}, flags...)
	}

	colName := p.strLeaf(colDef.Name.Name.O)
	attrs := ast.New2(p.arena, ast.KindColAttrs, p.loc, p.strLeaf(typeName), p.strLeaf(strings.Join(flags, " ")))
	return ast.New2(p.arena, ast.KindColDef, p.loc, colName, attrs), nil
}

func (p *Parser) strLeaf(s string) *ast.Node {
	return ast.NewStr(p.arena, ast.KindStrLit, p.loc, s, ast.StrSQLIdentifier, false)
}

// coreTypeName maps a TiDB-rendered column type string to one of the base
// type names internal/analyzer's handleColAttrs recognizes. Matching is by
// substring against the lowercased rendering, the same style the teacher's
// own type normalizer used.
func coreTypeName(raw string) (string, bool) {
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "tinyint(1)"):
		return "BOOL", true
	case strings.Contains(lower, "bigint"):
		return "LONG", true
	case strings.Contains(lower, "int") && !strings.Contains(lower, "point"):
		return "INTEGER", true
	case strings.Contains(lower, "float"), strings.Contains(lower, "double"), strings.Contains(lower, "decimal"):
		return "REAL", true
	case strings.Contains(lower, "char"), strings.Contains(lower, "text"), strings.Contains(lower, "enum"):
		return "TEXT", true
	case strings.Contains(lower, "blob"), strings.Contains(lower, "binary"):
		return "BLOB", true
	default:
		return "", false
	}
}
