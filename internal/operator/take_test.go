package operator

import (
	"testing"

	"github.com/syncbase/ivmcore/internal/fetch"
	"github.com/syncbase/ivmcore/internal/row"
)

func scoreDesc() row.Ordering {
	return row.Ordering{{Column: "score", Direction: row.Desc}, {Column: "id", Direction: row.Asc}}
}

func rowWithScore(id string, score float64) row.Row {
	return rowWithID(id, map[string]row.Value{"score": score})
}

func TestTakeFetchTruncates(t *testing.T) {
	input := newFakeInput([]row.Row{rowWithScore("1", 90), rowWithScore("2", 80), rowWithScore("3", 70)})
	take := NewTake(input, 2, scoreDesc(), []string{"id"})

	stream, err := take.Fetch(fetch.Request{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	nodes, err := fetch.Collect(stream)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("want 2 rows, got %d", len(nodes))
	}
}

func TestTakePushAddIntoOpenSlot(t *testing.T) {
	input := newFakeInput([]row.Row{rowWithScore("1", 90)})
	take := NewTake(input, 2, scoreDesc(), []string{"id"})
	target := &recordingTarget{}
	take.SetOutput(target)

	if err := take.Push(fetch.PushedChange{Change: row.NewAdd(rowWithScore("2", 80))}); err != nil {
		t.Fatalf("push: %v", err)
	}
	if len(target.pushes) != 1 || target.pushes[0].Change.Kind != row.Add {
		t.Fatalf("want a single Add forwarded, got %+v", target.pushes)
	}
}

func TestTakePushAddEvictsBoundary(t *testing.T) {
	input := newFakeInput([]row.Row{rowWithScore("1", 90), rowWithScore("2", 80)})
	take := NewTake(input, 2, scoreDesc(), []string{"id"})
	target := &recordingTarget{}
	take.SetOutput(target)

	// A new row that beats the current boundary (id 2, score 80) promotes
	// into the window and evicts the boundary row.
	if err := take.Push(fetch.PushedChange{Change: row.NewAdd(rowWithScore("3", 85))}); err != nil {
		t.Fatalf("push: %v", err)
	}
	if len(target.pushes) != 2 {
		t.Fatalf("want add+remove forwarded, got %+v", target.pushes)
	}
	if target.pushes[0].Change.Kind != row.Add {
		t.Errorf("want first push Add, got %v", target.pushes[0].Change.Kind)
	}
	if target.pushes[1].Change.Kind != row.Remove {
		t.Errorf("want second push Remove, got %v", target.pushes[1].Change.Kind)
	}
	evictedID, _ := target.pushes[1].Change.Row.Get("id")
	if evictedID != "2" {
		t.Errorf("want evicted row to be id 2, got %v", evictedID)
	}
}

func TestTakePushAddBelowBoundaryIsDropped(t *testing.T) {
	input := newFakeInput([]row.Row{rowWithScore("1", 90), rowWithScore("2", 80)})
	take := NewTake(input, 2, scoreDesc(), []string{"id"})
	target := &recordingTarget{}
	take.SetOutput(target)

	if err := take.Push(fetch.PushedChange{Change: row.NewAdd(rowWithScore("3", 10))}); err != nil {
		t.Fatalf("push: %v", err)
	}
	if len(target.pushes) != 0 {
		t.Fatalf("want no forwarded push for a row below the boundary, got %+v", target.pushes)
	}
}

func TestTakePushRemovePromotesNext(t *testing.T) {
	allRows := []row.Row{rowWithScore("1", 90), rowWithScore("2", 80), rowWithScore("3", 70)}
	input := newFakeInput(allRows)
	take := NewTake(input, 2, scoreDesc(), []string{"id"})
	target := &recordingTarget{}
	take.SetOutput(target)

	if err := take.Push(fetch.PushedChange{Change: row.NewRemove(rowWithScore("1", 90))}); err != nil {
		t.Fatalf("push: %v", err)
	}
	if len(target.pushes) != 2 {
		t.Fatalf("want remove+promote forwarded, got %+v", target.pushes)
	}
	if target.pushes[0].Change.Kind != row.Remove {
		t.Errorf("want first push Remove, got %v", target.pushes[0].Change.Kind)
	}
	if target.pushes[1].Change.Kind != row.Add {
		t.Errorf("want second push Add (promoted row), got %v", target.pushes[1].Change.Kind)
	}
	promotedID, _ := target.pushes[1].Change.Row.Get("id")
	if promotedID != "3" {
		t.Errorf("want promoted row to be id 3, got %v", promotedID)
	}
}
