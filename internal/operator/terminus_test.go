package operator

import (
	"testing"

	"github.com/syncbase/ivmcore/internal/fetch"
	"github.com/syncbase/ivmcore/internal/row"
)

func TestTerminusMaterializeAndRows(t *testing.T) {
	input := newFakeInput([]row.Row{rowWithScore("1", 90), rowWithScore("2", 80)})
	term := NewTerminus(input, scoreDesc(), []string{"id"})

	if err := term.Materialize(); err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	rows := term.Rows()
	if len(rows) != 2 {
		t.Fatalf("want 2 rows, got %d", len(rows))
	}
}

func TestTerminusRowsIsASnapshot(t *testing.T) {
	input := newFakeInput([]row.Row{rowWithScore("1", 90)})
	term := NewTerminus(input, scoreDesc(), []string{"id"})
	if err := term.Materialize(); err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	snapshot := term.Rows()
	if err := term.Push(fetch.PushedChange{Change: row.NewAdd(rowWithScore("2", 80))}); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if len(snapshot) != 1 {
		t.Error("expected the earlier snapshot to be unaffected by a later Push")
	}
	if len(term.Rows()) != 2 {
		t.Errorf("want the live view to reflect the push, got %d rows", len(term.Rows()))
	}
}

func TestTerminusPushMaintainsSortOrder(t *testing.T) {
	input := newFakeInput(nil)
	term := NewTerminus(input, scoreDesc(), []string{"id"})

	for _, r := range []row.Row{rowWithScore("2", 80), rowWithScore("1", 90), rowWithScore("3", 70)} {
		if err := term.Push(fetch.PushedChange{Change: row.NewAdd(r)}); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}
	rows := term.Rows()
	wantOrder := []string{"1", "2", "3"}
	for i, want := range wantOrder {
		got, _ := rows[i].Get("id")
		if got != want {
			t.Errorf("position %d: want id %q, got %v", i, want, got)
		}
	}
}

func TestTerminusPushRemove(t *testing.T) {
	input := newFakeInput(nil)
	term := NewTerminus(input, scoreDesc(), []string{"id"})
	row1 := rowWithScore("1", 90)
	if err := term.Push(fetch.PushedChange{Change: row.NewAdd(row1)}); err != nil {
		t.Fatalf("Push add: %v", err)
	}
	if err := term.Push(fetch.PushedChange{Change: row.NewRemove(row1)}); err != nil {
		t.Fatalf("Push remove: %v", err)
	}
	if len(term.Rows()) != 0 {
		t.Errorf("want an empty view after remove, got %d rows", len(term.Rows()))
	}
}

func TestTerminusPushEditRepositions(t *testing.T) {
	input := newFakeInput(nil)
	term := NewTerminus(input, scoreDesc(), []string{"id"})
	for _, r := range []row.Row{rowWithScore("1", 90), rowWithScore("2", 80)} {
		if err := term.Push(fetch.PushedChange{Change: row.NewAdd(r)}); err != nil {
			t.Fatalf("Push add: %v", err)
		}
	}

	// Editing row 2's score above row 1's should move it to the front.
	if err := term.Push(fetch.PushedChange{Change: row.NewEdit(rowWithScore("2", 80), rowWithScore("2", 95))}); err != nil {
		t.Fatalf("Push edit: %v", err)
	}
	rows := term.Rows()
	if len(rows) != 2 {
		t.Fatalf("want 2 rows, got %d", len(rows))
	}
	firstID, _ := rows[0].Get("id")
	if firstID != "2" {
		t.Errorf("want the edited row to reposition to the front, got %v", firstID)
	}
}
