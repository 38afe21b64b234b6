package operator

import (
	"testing"

	"github.com/syncbase/ivmcore/internal/ast"
	"github.com/syncbase/ivmcore/internal/fetch"
	"github.com/syncbase/ivmcore/internal/row"
)

func ageAtLeast18() ast.Condition {
	return &ast.SimpleCondition{
		Left:  &ast.ColumnOperand{Name: "age"},
		Op:    ast.OpGte,
		Right: &ast.LiteralOperand{Value: 18.0},
	}
}

func TestFilterFetchDropsNonMatching(t *testing.T) {
	input := newFakeInput([]row.Row{
		rowWithID("1", map[string]row.Value{"age": 12.0}),
		rowWithID("2", map[string]row.Value{"age": 30.0}),
	})
	f := NewFilter(input, ageAtLeast18())

	stream, err := f.Fetch(fetch.Request{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	nodes, err := fetch.Collect(stream)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("want 1 surviving row, got %d", len(nodes))
	}
	id, _ := nodes[0].Row.Get("id")
	if id != "2" {
		t.Errorf("want row 2, got %v", id)
	}
}

func TestFilterFullyAppliedFilters(t *testing.T) {
	input := newFakeInput(nil)
	f := NewFilter(input, ageAtLeast18())
	if f.FullyAppliedFilters() {
		t.Error("expected a Filter with a residual condition to report false")
	}

	passthrough := NewFilter(input, nil)
	if !passthrough.FullyAppliedFilters() {
		t.Error("expected a nil-condition Filter to defer fully to its input")
	}
}

func TestFilterPushAddRemovePassthrough(t *testing.T) {
	input := newFakeInput(nil)
	f := NewFilter(input, ageAtLeast18())
	target := &recordingTarget{}
	f.SetOutput(target)

	adult := rowWithID("1", map[string]row.Value{"age": 30.0})
	minor := rowWithID("2", map[string]row.Value{"age": 10.0})

	if err := f.Push(fetch.PushedChange{Change: row.NewAdd(adult)}); err != nil {
		t.Fatalf("push adult add: %v", err)
	}
	if err := f.Push(fetch.PushedChange{Change: row.NewAdd(minor)}); err != nil {
		t.Fatalf("push minor add: %v", err)
	}
	if len(target.pushes) != 1 {
		t.Fatalf("want 1 forwarded push, got %d", len(target.pushes))
	}
	if target.pushes[0].Change.Kind != row.Add {
		t.Errorf("want Add, got %v", target.pushes[0].Change.Kind)
	}
}

func TestFilterPushEditCrossingBoundary(t *testing.T) {
	input := newFakeInput(nil)
	f := NewFilter(input, ageAtLeast18())
	target := &recordingTarget{}
	f.SetOutput(target)

	before := rowWithID("1", map[string]row.Value{"age": 10.0})
	after := rowWithID("1", map[string]row.Value{"age": 30.0})

	if err := f.Push(fetch.PushedChange{Change: row.NewEdit(before, after)}); err != nil {
		t.Fatalf("push edit: %v", err)
	}
	if len(target.pushes) != 1 {
		t.Fatalf("want 1 forwarded push, got %d", len(target.pushes))
	}
	if target.pushes[0].Change.Kind != row.Add {
		t.Errorf("want an edit that enters the predicate rewritten to Add, got %v", target.pushes[0].Change.Kind)
	}

	// And the reverse direction: leaving the predicate becomes a Remove.
	target.pushes = nil
	if err := f.Push(fetch.PushedChange{Change: row.NewEdit(after, before)}); err != nil {
		t.Fatalf("push edit: %v", err)
	}
	if len(target.pushes) != 1 || target.pushes[0].Change.Kind != row.Remove {
		t.Fatalf("want a single Remove, got %+v", target.pushes)
	}
}

func TestFilterPushEditStayingOutsideIsDropped(t *testing.T) {
	input := newFakeInput(nil)
	f := NewFilter(input, ageAtLeast18())
	target := &recordingTarget{}
	f.SetOutput(target)

	before := rowWithID("1", map[string]row.Value{"age": 5.0})
	after := rowWithID("1", map[string]row.Value{"age": 10.0})
	if err := f.Push(fetch.PushedChange{Change: row.NewEdit(before, after)}); err != nil {
		t.Fatalf("push edit: %v", err)
	}
	if len(target.pushes) != 0 {
		t.Fatalf("want no forwarded push, got %+v", target.pushes)
	}
}
