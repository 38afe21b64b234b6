package analyzer

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncbase/ivmcore/internal/ast"
	"github.com/syncbase/ivmcore/internal/planner"
	"github.com/syncbase/ivmcore/internal/row"
	"github.com/syncbase/ivmcore/internal/statementcache"
	"github.com/syncbase/ivmcore/internal/timeslice"
)

func openAnalyzerTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	stmts := []string{
		`CREATE TABLE messages (id TEXT PRIMARY KEY, roomId TEXT, body TEXT)`,
		`INSERT INTO messages VALUES ('m1', 'room-1', 'hi')`,
		`INSERT INTO messages VALUES ('m2', 'room-1', 'there')`,
		`INSERT INTO messages VALUES ('m3', 'room-2', 'other room')`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("seeding db: %v", err)
		}
	}
	return db
}

func messagesSchema() *row.Schema {
	return &row.Schema{
		Name:          "messages",
		Columns:       []row.Column{{Name: "id", Type: row.TypeString}, {Name: "roomId", Type: row.TypeString}, {Name: "body", Type: row.TypeString}},
		PrimaryKey:    []string{"id"},
		UniqueIndexes: [][]string{{"id"}},
	}
}

func newTestHost(t *testing.T, db *sql.DB) *HostDelegate {
	t.Helper()
	cache, err := statementcache.New(db, 8)
	if err != nil {
		t.Fatalf("statementcache.New: %v", err)
	}
	ticker := timeslice.New(time.Hour)
	schemas := map[string]*row.Schema{"messages": messagesSchema()}
	return NewHostDelegate(db, cache, ticker, schemas, 8)
}

func roomQuery() *ast.Query {
	return &ast.Query{
		Table: "messages",
		Where: &ast.SimpleCondition{
			Left:  &ast.ColumnOperand{Name: "roomId"},
			Op:    ast.OpEq,
			Right: &ast.LiteralOperand{Value: "room-1"},
		},
	}
}

func TestRunBasicSyncedRowCount(t *testing.T) {
	db := openAnalyzerTestDB(t)
	host := newTestHost(t, db)

	result, err := Run(host, roomQuery(), true, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.SyncedRowCount)
	assert.Nil(t, result.SyncedRows, "expected SyncedRows to be nil when RunOptions.SyncedRows is false")
}

func TestRunWithSyncedRows(t *testing.T) {
	db := openAnalyzerTestDB(t)
	host := newTestHost(t, db)

	result, err := Run(host, roomQuery(), true, RunOptions{SyncedRows: true})
	require.NoError(t, err)
	require.Len(t, result.SyncedRows, 2)
}

func TestRunWithReadRowsCountsPerTable(t *testing.T) {
	db := openAnalyzerTestDB(t)
	host := newTestHost(t, db)

	result, err := Run(host, roomQuery(), true, RunOptions{ReadRows: true})
	require.NoError(t, err)
	require.Contains(t, result.ReadRowCountsByQuery, "messages")
	byQuery := result.ReadRowCountsByQuery["messages"]
	require.Len(t, byQuery, 1, "want a single distinct SQL text observed for messages")
	for sqlText, n := range byQuery {
		assert.Contains(t, sqlText, "FROM", "want the SQL text the connection actually ran, not a bare table name")
		assert.Equal(t, 2, n)
	}
	assert.Equal(t, 2, result.ReadRowCount)
	assert.Equal(t, 2, result.VendedRowCounts["messages"], "want legacy VendedRowCounts summed per table")
	assert.NotEmpty(t, result.SqlitePlans, "expected captured EXPLAIN QUERY PLAN output when ReadRows is set")
	for sqlText := range byQuery {
		assert.Contains(t, result.SqlitePlans, sqlText, "want sqlitePlans keyed by the same SQL text")
	}
}

func TestRunUntransformedASTWarns(t *testing.T) {
	db := openAnalyzerTestDB(t)
	host := newTestHost(t, db)

	result, err := Run(host, roomQuery(), false, RunOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Warnings, "expected a warning when isTransformed is false")
}

func TestRunPlanDebuggerRequiresCostModel(t *testing.T) {
	db := openAnalyzerTestDB(t)
	host := newTestHost(t, db)

	_, err := Run(host, roomQuery(), true, RunOptions{PlanDebugger: true})
	require.Error(t, err, "expected an error requesting PlanDebugger without a CostModel")
}

func TestRunPlanDebuggerCapturesJoinPlans(t *testing.T) {
	db := openAnalyzerTestDB(t)
	host := newTestHost(t, db)
	cm := planner.CostModel{SeqScanRowCost: 1, IndexLookupCost: 0.1, IndexStartupCost: 0.05}

	result, err := Run(host, roomQuery(), true, RunOptions{PlanDebugger: true, CostModel: &cm})
	require.NoError(t, err)
	assert.NotEmpty(t, result.JoinPlans, "expected captured plan debug events")
}

func TestRunUnknownTableErrors(t *testing.T) {
	db := openAnalyzerTestDB(t)
	host := newTestHost(t, db)

	_, err := Run(host, &ast.Query{Table: "nonexistent"}, true, RunOptions{})
	require.Error(t, err, "expected an error for a query against an unregistered table")
}

func TestHostDelegateFilterDecoratorIsApplied(t *testing.T) {
	db := openAnalyzerTestDB(t)
	host := newTestHost(t, db)

	var sawTable string
	host.FilterDecorator = func(table string, cond ast.Condition) ast.Condition {
		sawTable = table
		return cond
	}

	_, err := Run(host, roomQuery(), true, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, "messages", sawTable)
}
