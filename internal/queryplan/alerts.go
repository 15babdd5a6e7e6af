package queryplan

import "fmt"

// AlertLevel mirrors the two alert buckets cg_query_plan.c populates:
// table_scan_alert and b_tree_alert.
type AlertLevel string

const (
	AlertTableScan AlertLevel = "tableScanViolation"
	AlertBTree     AlertLevel = "tempBTreeViolation"
)

// Alert is one entry in the synthesized program's printed alerts object.
type Alert struct {
	Level   AlertLevel
	Message string
}

// Classifier accumulates alerts the way cg_query_plan.c's
// cg_qp_ok_table_scan_callback/find_ok_table_scan pair do: per statement,
// it decides whether a table reference should raise a scan alert given the
// schema-wide no_table_scan allow-list and the enclosing procedure's
// ok_table_scan attribute.
type Classifier struct {
	noTableScan map[string]bool
	okForStmt   map[int]map[string]bool
}

// NewClassifier returns a classifier seeded with the schema-wide
// no_table_scan allow-list (table names carrying
// `@attribute(cql:no_table_scan)`).
func NewClassifier(noTableScan []string) *Classifier {
	c := &Classifier{noTableScan: map[string]bool{}, okForStmt: map[int]map[string]bool{}}
	for _, t := range noTableScan {
		c.noTableScan[t] = true
	}
	return c
}

// AllowForStatement records that stmtID's enclosing procedure carries
// `@attribute(cql:ok_table_scan=(table, ...))` naming table.
func (c *Classifier) AllowForStatement(stmtID int, table string) {
	m, ok := c.okForStmt[stmtID]
	if !ok {
		m = map[string]bool{}
		c.okForStmt[stmtID] = m
	}
	m[table] = true
}

// ClassifyScan reports whether stmtID's reference to table should raise a
// table-scan alert: it should unless the table is schema-wide exempt or
// the enclosing procedure specifically allow-listed it.
func (c *Classifier) ClassifyScan(stmtID int, table string) (*Alert, bool) {
	if c.noTableScan[table] {
		return nil, false
	}
	if c.okForStmt[stmtID][table] {
		return nil, false
	}
	return &Alert{Level: AlertTableScan, Message: fmt.Sprintf("%s may be using a table scan", table)}, true
}

// ClassifyDetail inspects one EXPLAIN QUERY PLAN zdetail line and reports
// a b-tree alert if it names a temporary B-tree (the generic alert spec
// §4.9 calls "a generic B-tree-temp alert", independent of any allow-
// list — a temp b-tree is always worth flagging).
func ClassifyDetail(zdetail string) (*Alert, bool) {
	if containsTempBTree(zdetail) {
		return &Alert{Level: AlertBTree, Message: zdetail}, true
	}
	return nil, false
}

func containsTempBTree(s string) bool {
	const needle = "TEMP B-TREE"
	if len(s) < len(needle) {
		return false
	}
	for i := 0; i+len(needle) <= len(s); i++ {
		if s[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
