package operator

import (
	"testing"

	"github.com/syncbase/ivmcore/internal/fetch"
	"github.com/syncbase/ivmcore/internal/row"
)

func TestFanOutBroadcastsToEveryBranch(t *testing.T) {
	input := newFakeInput(nil)
	fo := NewFanOut(input, 2)

	targetA := &recordingTarget{}
	targetB := &recordingTarget{}
	fo.Branch(0).SetOutput(targetA)
	fo.Branch(1).SetOutput(targetB)

	if err := fo.Push(fetch.PushedChange{Change: row.NewAdd(rowWithID("1", nil))}); err != nil {
		t.Fatalf("push: %v", err)
	}
	if len(targetA.pushes) != 1 || len(targetB.pushes) != 1 {
		t.Fatalf("want both branches to receive the push, got %d and %d", len(targetA.pushes), len(targetB.pushes))
	}
}

func TestFanOutBranchFetchDelegatesToSharedInput(t *testing.T) {
	input := newFakeInput([]row.Row{rowWithID("1", nil)})
	fo := NewFanOut(input, 2)

	stream, err := fo.Branch(0).Fetch(fetch.Request{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	nodes, err := fetch.Collect(stream)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("want 1 row, got %d", len(nodes))
	}
}

func TestFanOutDestroyRefCounts(t *testing.T) {
	input := newFakeInput(nil)
	fo := NewFanOut(input, 2)

	if err := fo.Branch(0).Destroy(); err != nil {
		t.Fatalf("first Destroy: %v", err)
	}
	if input.destroyed {
		t.Fatal("expected the shared input not to be destroyed until every branch releases it")
	}
	if err := fo.Branch(1).Destroy(); err != nil {
		t.Fatalf("second Destroy: %v", err)
	}
	if !input.destroyed {
		t.Error("expected the shared input to be destroyed once every branch has released it")
	}
}

func TestFanInMergesInSortOrder(t *testing.T) {
	branchA := newFakeInput([]row.Row{rowWithScore("1", 90), rowWithScore("3", 70)})
	branchB := newFakeInput([]row.Row{rowWithScore("2", 80)})
	fi := NewFanIn([]fetch.Input{branchA, branchB}, scoreDesc())

	stream, err := fi.Fetch(fetch.Request{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	nodes, err := fetch.Collect(stream)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(nodes) != 3 {
		t.Fatalf("want 3 merged rows, got %d", len(nodes))
	}
	wantOrder := []string{"1", "2", "3"}
	for i, want := range wantOrder {
		got, _ := nodes[i].Row.Get("id")
		if got != want {
			t.Errorf("position %d: want id %q, got %v", i, want, got)
		}
	}
}

func TestFanInDedupesSameEpochPush(t *testing.T) {
	branchA := newFakeInput(nil)
	branchB := newFakeInput(nil)
	fi := NewFanIn([]fetch.Input{branchA, branchB}, scoreDesc())
	target := &recordingTarget{}
	fi.SetOutput(target)

	change := row.NewAdd(rowWithScore("1", 90))
	if err := fi.Push(fetch.PushedChange{Change: change, Epoch: 7}); err != nil {
		t.Fatalf("first push: %v", err)
	}
	// The same change arrives again along the other reconverging branch,
	// tagged with the same epoch.
	if err := fi.Push(fetch.PushedChange{Change: change, Epoch: 7}); err != nil {
		t.Fatalf("second push: %v", err)
	}
	if len(target.pushes) != 1 {
		t.Fatalf("want the duplicate push deduped away, got %d pushes", len(target.pushes))
	}
}

func TestFanInDoesNotDedupeAcrossEpochs(t *testing.T) {
	branchA := newFakeInput(nil)
	branchB := newFakeInput(nil)
	fi := NewFanIn([]fetch.Input{branchA, branchB}, scoreDesc())
	target := &recordingTarget{}
	fi.SetOutput(target)

	change := row.NewAdd(rowWithScore("1", 90))
	if err := fi.Push(fetch.PushedChange{Change: change, Epoch: 1}); err != nil {
		t.Fatalf("first push: %v", err)
	}
	if err := fi.Push(fetch.PushedChange{Change: change, Epoch: 2}); err != nil {
		t.Fatalf("second push: %v", err)
	}
	if len(target.pushes) != 2 {
		t.Fatalf("want both pushes delivered since epochs differ, got %d", len(target.pushes))
	}
}
