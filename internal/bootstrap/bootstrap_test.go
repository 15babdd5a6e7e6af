package bootstrap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlfront/internal/ast"
)

func TestParseCreateTable(t *testing.T) {
	sql := `CREATE TABLE users (
		id BIGINT PRIMARY KEY AUTO_INCREMENT,
		email VARCHAR(255) NOT NULL UNIQUE,
		bio TEXT
	);`

	arena := ast.NewArena()
	root, err := NewParser(arena, "users.sql").Parse(sql)
	require.NoError(t, err)

	stmts := ast.ListElements(root, ast.KindStmtList)
	require.Len(t, stmts, 1)

	stmt := stmts[0]
	require.True(t, stmt.Is(ast.KindCreateTable))
	assert.Equal(t, "users", ast.ExtractStr(stmt.Left))

	cols := ast.ListElements(stmt.Right, ast.KindColDefList)
	require.Len(t, cols, 3)

	id := cols[0]
	assert.Equal(t, "id", ast.ExtractStr(id.Left))
	require.True(t, id.Right.Is(ast.KindColAttrs))
	assert.Equal(t, "LONG", ast.ExtractStr(id.Right.Left))
	assert.Equal(t, "NOTNULL PK AUTOINCREMENT", ast.ExtractStr(id.Right.Right))

	email := cols[1]
	assert.Equal(t, "email", ast.ExtractStr(email.Left))
	assert.Equal(t, "TEXT", ast.ExtractStr(email.Right.Left))
	assert.Equal(t, "NOTNULL UK", ast.ExtractStr(email.Right.Right))

	bio := cols[2]
	assert.Equal(t, "bio", ast.ExtractStr(bio.Left))
	assert.Equal(t, "", ast.ExtractStr(bio.Right.Right))
}

func TestParseSkipsNonTableStatements(t *testing.T) {
	sql := `CREATE TABLE t (id INT); INSERT INTO t VALUES (1);`

	arena := ast.NewArena()
	root, err := NewParser(arena, "").Parse(sql)
	require.NoError(t, err)

	stmts := ast.ListElements(root, ast.KindStmtList)
	assert.Len(t, stmts, 1)
}

func TestParseBackedByComment(t *testing.T) {
	sql := `CREATE TABLE backing_store (k BLOB, v BLOB);
		CREATE TABLE widgets (id BIGINT PRIMARY KEY, name TEXT) COMMENT='cql:backed_by=backing_store';`

	arena := ast.NewArena()
	root, err := NewParser(arena, "widgets.sql").Parse(sql)
	require.NoError(t, err)

	stmts := ast.ListElements(root, ast.KindStmtList)
	require.Len(t, stmts, 3)

	assert.True(t, stmts[0].Is(ast.KindCreateTable))
	assert.True(t, stmts[1].Is(ast.KindCreateTable))

	backedBy := stmts[2]
	require.True(t, backedBy.Is(ast.KindBackedByAttr))
	assert.Equal(t, "widgets", ast.ExtractStr(backedBy.Left))
	assert.Equal(t, "backing_store", ast.ExtractStr(backedBy.Right))
}

func TestParseUnsupportedColumnType(t *testing.T) {
	sql := `CREATE TABLE t (pos POINT);`

	arena := ast.NewArena()
	_, err := NewParser(arena, "").Parse(sql)
	assert.Error(t, err)
}
