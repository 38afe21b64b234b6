package fetch

import (
	"testing"

	"github.com/syncbase/ivmcore/internal/row"
)

func node(id string) *Node {
	return &Node{Row: row.New([]string{"id"}, map[string]row.Value{"id": id})}
}

func TestSliceStreamPollOrder(t *testing.T) {
	s := NewSliceStream([]*Node{node("a"), node("b")})

	for _, want := range []string{"a", "b"} {
		p, err := s.Poll()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.Kind != KindNode {
			t.Fatalf("want KindNode, got %v", p.Kind)
		}
		got, _ := p.Node.Row.Get("id")
		if got != want {
			t.Errorf("want id %q, got %v", want, got)
		}
	}

	p, err := s.Poll()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Kind != KindDone {
		t.Fatalf("want KindDone after exhausting nodes, got %v", p.Kind)
	}
}

func TestSliceStreamPollAfterClose(t *testing.T) {
	s := NewSliceStream([]*Node{node("a")})
	if err := s.Close(); err != nil {
		t.Fatalf("unexpected error closing: %v", err)
	}
	if _, err := s.Poll(); err != ErrStreamClosed {
		t.Errorf("want ErrStreamClosed, got %v", err)
	}
	// Close is idempotent.
	if err := s.Close(); err != nil {
		t.Errorf("second close: unexpected error: %v", err)
	}
}

// yieldingStream emits one KindYield before each node, exercising Collect's
// documented behavior of ignoring Yield.
type yieldingStream struct {
	nodes   []*Node
	pos     int
	yielded map[int]bool
}

func (s *yieldingStream) Poll() (Poll, error) {
	if s.pos >= len(s.nodes) {
		return Poll{Kind: KindDone}, nil
	}
	if s.yielded == nil {
		s.yielded = map[int]bool{}
	}
	if !s.yielded[s.pos] {
		s.yielded[s.pos] = true
		return Poll{Kind: KindYield}, nil
	}
	n := s.nodes[s.pos]
	s.pos++
	return Poll{Kind: KindNode, Node: n}, nil
}

func (s *yieldingStream) Close() error { return nil }

func TestCollectIgnoresYield(t *testing.T) {
	s := &yieldingStream{nodes: []*Node{node("a"), node("b")}}
	got, err := Collect(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 nodes, got %d", len(got))
	}
}

func TestRequestWithConstraintAndStart(t *testing.T) {
	base := Request{Reverse: true}
	withConstraint := base.WithConstraint("roomId", "room-1")
	if withConstraint.Constraint == nil || withConstraint.Constraint.Column != "roomId" || withConstraint.Constraint.Value != "room-1" {
		t.Fatalf("unexpected constraint: %+v", withConstraint.Constraint)
	}
	if base.Constraint != nil {
		t.Error("WithConstraint must not mutate the receiver")
	}

	at := row.New([]string{"id"}, map[string]row.Value{"id": "5"})
	withStart := base.WithStart(at, After)
	if withStart.Start == nil || withStart.Start.Basis != After {
		t.Fatalf("unexpected start: %+v", withStart.Start)
	}
	if base.Start != nil {
		t.Error("WithStart must not mutate the receiver")
	}
	// Reverse carries through untouched by either builder.
	if !withConstraint.Reverse || !withStart.Reverse {
		t.Error("expected Reverse to be preserved by both builders")
	}
}

func TestBasisString(t *testing.T) {
	tests := map[Basis]string{At: "at", After: "after", Before: "before"}
	for b, want := range tests {
		if got := b.String(); got != want {
			t.Errorf("Basis(%d).String() = %q, want %q", b, got, want)
		}
	}
}
