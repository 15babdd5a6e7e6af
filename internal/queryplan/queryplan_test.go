package queryplan_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"sqlfront/internal/queryplan"
)

func TestAddStatementAssignsSequentialIDs(t *testing.T) {
	p := queryplan.New()
	id1 := p.AddStatement("get_user", "SELECT * FROM users WHERE id = ?", []string{"users"})
	id2 := p.AddStatement("get_widget", "SELECT * FROM widgets WHERE id = ?", []string{"widgets"})
	require.Equal(t, 1, id1)
	require.Equal(t, 2, id2)
}

func TestRenderEmitsOnePopulateProcPerStatement(t *testing.T) {
	p := queryplan.New()
	p.AddStatement("get_user", "SELECT * FROM users WHERE id = ?", []string{"users"})

	out := p.Render()
	require.Contains(t, out, "CREATE PROC populate_query_plan_1()")
	require.Contains(t, out, "INSERT INTO sql_temp(id, sql) VALUES (1,")
	require.Contains(t, out, "EXPLAIN QUERY PLAN")
	require.Contains(t, out, "SELECT * FROM users WHERE id = ?")
}

func TestRenderIncludesCreateSchemaAndTopLevelProc(t *testing.T) {
	p := queryplan.New()
	out := p.Render()
	require.Contains(t, out, "CREATE PROC create_schema()")
	require.Contains(t, out, "CREATE TABLE sql_temp(")
	require.Contains(t, out, "CREATE TABLE plan_temp(")
	require.Contains(t, out, "CREATE PROC query_plan()")
	require.Contains(t, out, "CALL create_schema();")
}

func TestMarkNoTableScanPopulatesInsertList(t *testing.T) {
	p := queryplan.New()
	p.MarkNoTableScan("widgets")
	p.MarkNoTableScan("users")
	out := p.Render()
	require.True(t, strings.Contains(out, "'widgets'") || strings.Contains(out, `"widgets"`))
}

func TestAllowTableScanEmitsOkTableScanInsert(t *testing.T) {
	p := queryplan.New()
	id := p.AddStatement("get_user", "SELECT * FROM users", []string{"users"})
	p.AllowTableScan(id, "users")
	out := p.Render()
	require.Contains(t, out, "INSERT INTO ok_table_scan(sql_id, proc_name, table_names)")
	require.Contains(t, out, "#users#")
}

func TestDemoteVirtualTableAnnotatesSchema(t *testing.T) {
	p := queryplan.New()
	p.DemoteVirtualTable("vt_search")
	out := p.Render()
	require.Contains(t, out, "vt_search")
}

func TestClassifierExemptsSchemaWideNoTableScan(t *testing.T) {
	c := queryplan.NewClassifier([]string{"audit_log"})
	alert, raised := c.ClassifyScan(1, "audit_log")
	require.False(t, raised)
	require.Nil(t, alert)
}

func TestClassifierExemptsPerStatementOkTableScan(t *testing.T) {
	c := queryplan.NewClassifier(nil)
	c.AllowForStatement(1, "widgets")
	alert, raised := c.ClassifyScan(1, "widgets")
	require.False(t, raised)
	require.Nil(t, alert)

	// a different statement referencing the same table is not exempt
	alert2, raised2 := c.ClassifyScan(2, "widgets")
	require.True(t, raised2)
	require.Equal(t, queryplan.AlertTableScan, alert2.Level)
}

func TestClassifyDetailFlagsTempBTree(t *testing.T) {
	alert, raised := queryplan.ClassifyDetail("USE TEMP B-TREE FOR ORDER BY")
	require.True(t, raised)
	require.Equal(t, queryplan.AlertBTree, alert.Level)

	_, raised2 := queryplan.ClassifyDetail("SCAN TABLE widgets")
	require.False(t, raised2)
}

func TestSelectFunctionStubsAreEmittedFirst(t *testing.T) {
	p := queryplan.New()
	p.AddSelectFunctionStub("fmt_email", "TEXT")
	out := p.Render()
	require.Contains(t, out, "DECLARE SELECT FUNCTION fmt_email() TEXT;")
	require.Less(t, strings.Index(out, "fmt_email"), strings.Index(out, "CREATE PROC create_schema()"))
}

func TestTopLevelProcPrintsAlertsAndPlans(t *testing.T) {
	p := queryplan.New()
	p.AddStatement("get_user", "SELECT * FROM users", []string{"users"})
	out := p.Render()
	require.Contains(t, out, `\"alerts\"`)
	require.Contains(t, out, `\"plans\"`)
	require.Contains(t, out, "FROM sql_temp s JOIN plan_temp p ON p.sql_id = s.id")
	require.Contains(t, out, "CALL populate_b_tree_alert_table();")
}
