// Package fetch defines the FetchRequest contract and the cooperative
// iterator state machine every operator's fetch path returns (spec §3, §9).
//
// Promises/generators in the source system become an explicit poll-based
// state machine here, per the design note in spec §9: "model this as
// explicit iterators with a poll -> {Item | Yield | Done | Err} state
// machine. The 'yield' sentinel becomes a distinct variant of that enum."
package fetch

import "github.com/syncbase/ivmcore/internal/row"

// Basis positions a Start relative to a row the caller already knows.
type Basis int

const (
	At Basis = iota
	After
	Before
)

func (b Basis) String() string {
	switch b {
	case At:
		return "at"
	case After:
		return "after"
	default:
		return "before"
	}
}

// Start positions iteration relative to a row already known to the caller.
type Start struct {
	Row   row.Row
	Basis Basis
}

// Constraint restricts one column to a single value.
type Constraint struct {
	Column string
	Value  row.Value
}

// Request is a FetchRequest: {constraint?, start?, reverse} (spec §3).
type Request struct {
	Constraint *Constraint
	Start      *Start
	Reverse    bool
}

// WithConstraint returns a copy of r with the constraint set, used by a join
// probing the related side with the outer row's join-column value.
func (r Request) WithConstraint(col string, val row.Value) Request {
	r.Constraint = &Constraint{Column: col, Value: val}
	return r
}

// WithStart returns a copy of r with start positioning set.
func (r Request) WithStart(at row.Row, basis Basis) Request {
	r.Start = &Start{Row: at, Basis: basis}
	return r
}

// ItemKind discriminates the variants of a poll result.
type ItemKind int

const (
	KindNode ItemKind = iota
	KindYield
	KindDone
)

// Poll is the result of advancing a Stream by one step: exactly one of a
// Node (spec's "Node | 'yield'" result), the Yield sentinel, or Done.
type Poll struct {
	Kind ItemKind
	Node *Node
}

// Node is a row plus, for a terminus or join, named child streams carrying
// that row's related rows (spec §4.2 "Operators produce Nodes lazily").
type Node struct {
	Row      row.Row
	Children map[string]*ChildStream
}

// ChildStream is a relationship name bound to the Stream that produces its
// related rows, realised lazily so memory stays proportional to what the
// terminus actually materialises (spec §4.2 "State").
type ChildStream struct {
	RelationName string
	Stream       Stream
}

// Stream is the cooperative pull iterator every fetch() call returns.
// Callers drive it by calling Poll repeatedly; a KindYield result means the
// caller should hand control back to its host's task queue before calling
// Poll again (spec §5 "Suspension points").
type Stream interface {
	Poll() (Poll, error)
	// Close releases any resources the stream holds (statement-cache
	// check-outs, overlay references). Safe to call multiple times.
	Close() error
}

// SliceStream adapts a pre-materialised []Node into a Stream, used by
// in-memory test fixtures and by operators that must buffer (Take's
// boundary recomputation, fan-in merges of small branches).
type SliceStream struct {
	nodes  []*Node
	pos    int
	closed bool
}

// NewSliceStream returns a Stream over nodes, vended as KindNode results in
// order, followed by KindDone.
func NewSliceStream(nodes []*Node) *SliceStream {
	return &SliceStream{nodes: nodes}
}

func (s *SliceStream) Poll() (Poll, error) {
	if s.closed {
		return Poll{}, ErrStreamClosed
	}
	if s.pos >= len(s.nodes) {
		return Poll{Kind: KindDone}, nil
	}
	n := s.nodes[s.pos]
	s.pos++
	return Poll{Kind: KindNode, Node: n}, nil
}

func (s *SliceStream) Close() error {
	s.closed = true
	return nil
}

// Collect drains a Stream into a slice, ignoring Yield (treating this call
// as single-threaded and uninterruptible) — used by tests and by the
// terminus's syncedRows sampling.
func Collect(s Stream) ([]*Node, error) {
	var out []*Node
	for {
		p, err := s.Poll()
		if err != nil {
			return out, err
		}
		switch p.Kind {
		case KindNode:
			out = append(out, p.Node)
		case KindYield:
			continue
		case KindDone:
			return out, nil
		}
	}
}
