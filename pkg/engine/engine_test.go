package engine

import (
	"os"
	"testing"
	"time"

	"github.com/syncbase/ivmcore/internal/analyzer"
	"github.com/syncbase/ivmcore/internal/ast"
	"github.com/syncbase/ivmcore/internal/config"
	"github.com/syncbase/ivmcore/internal/row"
)

func messagesSchema() *row.Schema {
	return &row.Schema{
		Name:          "messages",
		Columns:       []row.Column{{Name: "id", Type: row.TypeString}, {Name: "roomId", Type: row.TypeString}, {Name: "body", Type: row.TypeString}},
		PrimaryKey:    []string{"id"},
		UniqueIndexes: [][]string{{"id"}},
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.SQLite.Path = ""
	cfg.TimeSlice.LapThreshold = time.Hour
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })

	if err := e.RegisterTable(messagesSchema()); err != nil {
		t.Fatalf("RegisterTable: %v", err)
	}
	stmts := []string{
		`CREATE TABLE messages (id TEXT PRIMARY KEY, roomId TEXT, body TEXT)`,
		`INSERT INTO messages VALUES ('m1', 'room-1', 'hi')`,
		`INSERT INTO messages VALUES ('m2', 'room-1', 'there')`,
	}
	for _, stmt := range stmts {
		if _, err := e.db.Exec(stmt); err != nil {
			t.Fatalf("seeding db: %v", err)
		}
	}
	return e
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.CostModel.MaxJoinTables = 0
	if _, err := New(cfg); err == nil {
		t.Fatal("expected New to reject an invalid configuration")
	}
}

func TestNewDefaultsNilConfig(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	if err := os.Mkdir("data", 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	e, err := New(nil)
	if err != nil {
		t.Fatalf("New(nil): %v", err)
	}
	defer e.Close()
}

func TestRegisterTableRejectsInvalidSchema(t *testing.T) {
	e := newTestEngine(t)
	bad := &row.Schema{Name: "bad"}
	if err := e.RegisterTable(bad); err == nil {
		t.Fatal("expected RegisterTable to reject a schema without a primary key")
	}
}

func TestSchemaLookup(t *testing.T) {
	e := newTestEngine(t)
	if _, ok := e.Schema("messages"); !ok {
		t.Fatal("expected messages to be registered")
	}
	if _, ok := e.Schema("nonexistent"); ok {
		t.Fatal("expected nonexistent to not be registered")
	}
}

func TestQueryRunsAndCountsQueries(t *testing.T) {
	e := newTestEngine(t)
	q := &ast.Query{
		Table: "messages",
		Where: &ast.SimpleCondition{
			Left:  &ast.ColumnOperand{Name: "roomId"},
			Op:    ast.OpEq,
			Right: &ast.LiteralOperand{Value: "room-1"},
		},
	}
	result, err := e.Query(q, analyzer.RunOptions{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if result.SyncedRowCount != 2 {
		t.Errorf("want 2 rows, got %d", result.SyncedRowCount)
	}
	if got := e.Stats().QueriesRun; got != 1 {
		t.Errorf("want 1 query run, got %d", got)
	}
}

func TestMutationRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	handle := e.TrackMutation()
	if got := e.Stats().MutationsTracked; got != 1 {
		t.Errorf("want 1 mutation tracked, got %d", got)
	}

	if err := e.MutationIDAssigned(handle.Ephemeral, 42); err != nil {
		t.Fatalf("MutationIDAssigned: %v", err)
	}
	e.LmidAdvanced(42)

	outcome := handle.Wait()
	if outcome.Err != nil {
		t.Errorf("want a successful outcome, got %v", outcome.Err)
	}
	if outcome.MutationID != 42 {
		t.Errorf("want mutation ID 42, got %d", outcome.MutationID)
	}
}

func TestCloseRejectsOutstandingMutations(t *testing.T) {
	cfg := config.Default()
	cfg.SQLite.Path = ""
	cfg.TimeSlice.LapThreshold = time.Hour
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	handle := e.TrackMutation()
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	outcome := handle.Wait()
	if outcome.Err == nil {
		t.Fatal("expected Close to reject the outstanding mutation with an error")
	}
}

func TestHealthReportsStatus(t *testing.T) {
	e := newTestEngine(t)
	health := e.Health()
	if health.Status != "healthy" {
		t.Errorf("want healthy status, got %q", health.Status)
	}
	if health.Details["tables_registered"] != 1 {
		t.Errorf("want 1 table registered in health details, got %v", health.Details["tables_registered"])
	}
}
