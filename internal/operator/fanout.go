package operator

import (
	"fmt"

	"github.com/syncbase/ivmcore/internal/fetch"
	"github.com/syncbase/ivmcore/internal/row"
)

// FanOut lets a single upstream input feed multiple downstream branches
// without re-running it per branch (spec §4.2): each Branch is an
// independent fetch.Input over the same upstream, and a push received from
// upstream is broadcast to every branch that has wired an output.
type FanOut struct {
	input    fetch.Input
	branches []*fanOutBranch
	refCount int
}

type fanOutBranch struct {
	parent *FanOut
	output fetch.PushTarget
}

// NewFanOut wraps input and reserves n branch handles.
func NewFanOut(input fetch.Input, n int) *FanOut {
	fo := &FanOut{input: input, refCount: n}
	fo.branches = make([]*fanOutBranch, n)
	for i := range fo.branches {
		fo.branches[i] = &fanOutBranch{parent: fo}
	}
	input.SetOutput(fo)
	return fo
}

// Branch returns the i'th branch handle, usable as a fetch.Input by
// whatever operator subtree consumes it.
func (fo *FanOut) Branch(i int) fetch.Input { return fo.branches[i] }

func (fo *FanOut) Push(c fetch.PushedChange) error {
	for _, b := range fo.branches {
		if b.output == nil {
			continue
		}
		if err := b.output.Push(c); err != nil {
			return err
		}
	}
	return nil
}

func (b *fanOutBranch) Schema() *row.Schema { return b.parent.input.Schema() }

func (b *fanOutBranch) Fetch(req fetch.Request) (fetch.Stream, error) {
	return b.parent.input.Fetch(req)
}

func (b *fanOutBranch) SetOutput(out fetch.PushTarget) { b.output = out }

func (b *fanOutBranch) FullyAppliedFilters() bool { return b.parent.input.FullyAppliedFilters() }

// Destroy reference-counts: the shared upstream input is only destroyed
// once every branch has released it (spec §4.2 "without double execution").
func (b *fanOutBranch) Destroy() error {
	b.parent.refCount--
	if b.parent.refCount <= 0 {
		return b.parent.input.Destroy()
	}
	return nil
}

// FanIn merges N branches — typically two paths of a diamond that
// reconverge after independent filtering/joining — back into one sorted
// stream, and de-duplicates pushes that reach it along more than one branch
// for the same push epoch (spec §4.1 "push epoch", §4.2 "exactly-once
// delivery").
type FanIn struct {
	branches []fetch.Input
	sort     row.Ordering
	output   fetch.PushTarget

	seen     map[uint64]map[string]bool
	epochLRU []uint64
}

const fanInEpochHistory = 256

// NewFanIn merges branches, ordered under sort for the Fetch-time k-way
// merge. Each branch pushes directly into the FanIn; no per-branch adapter
// or branch index is involved.
func NewFanIn(branches []fetch.Input, sort row.Ordering) *FanIn {
	fi := &FanIn{branches: branches, sort: sort, seen: make(map[uint64]map[string]bool)}
	for _, b := range branches {
		b.SetOutput(fi)
	}
	return fi
}

func (fi *FanIn) Schema() *row.Schema { return fi.branches[0].Schema() }

func (fi *FanIn) SetOutput(out fetch.PushTarget) { fi.output = out }

func (fi *FanIn) FullyAppliedFilters() bool {
	for _, b := range fi.branches {
		if !b.FullyAppliedFilters() {
			return false
		}
	}
	return true
}

func (fi *FanIn) Destroy() error {
	for _, b := range fi.branches {
		if err := b.Destroy(); err != nil {
			return err
		}
	}
	return nil
}

func (fi *FanIn) Fetch(req fetch.Request) (fetch.Stream, error) {
	streams := make([]fetch.Stream, len(fi.branches))
	for i, b := range fi.branches {
		s, err := b.Fetch(req)
		if err != nil {
			for j := 0; j < i; j++ {
				_ = streams[j].Close()
			}
			return nil, err
		}
		streams[i] = s
	}
	return &fanInStream{sort: fi.sort, branches: streams, peek: make([]*fetch.Node, len(streams)), done: make([]bool, len(streams))}, nil
}

// Push deduplicates by (epoch, change shape) before forwarding: a change
// that arrives twice for the same push epoch — because it reached this
// fan-in along two reconverging branches — is delivered once.
func (fi *FanIn) Push(c fetch.PushedChange) error {
	if fi.output == nil {
		return nil
	}
	key := dedupKey(c.Change)
	set, ok := fi.seen[c.Epoch]
	if !ok {
		set = make(map[string]bool)
		fi.seen[c.Epoch] = set
		fi.epochLRU = append(fi.epochLRU, c.Epoch)
		if len(fi.epochLRU) > fanInEpochHistory {
			oldest := fi.epochLRU[0]
			fi.epochLRU = fi.epochLRU[1:]
			delete(fi.seen, oldest)
		}
	}
	if set[key] {
		return nil
	}
	set[key] = true
	return fi.output.Push(c)
}

func dedupKey(c row.Change) string {
	switch c.Kind {
	case row.Add:
		return "add:" + rowKeyString(c.Row)
	case row.Remove:
		return "remove:" + rowKeyString(c.Row)
	default:
		return "edit:" + rowKeyString(c.Old) + "->" + rowKeyString(c.Row)
	}
}

func rowKeyString(r row.Row) string {
	s := ""
	for _, col := range r.Columns() {
		v, _ := r.Get(col)
		s += col + "="
		if v == nil {
			s += "<nil>;"
			continue
		}
		s += toKeyPart(v) + ";"
	}
	return s
}

func toKeyPart(v row.Value) string {
	switch t := v.(type) {
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

type fanInStream struct {
	sort     row.Ordering
	branches []fetch.Stream
	peek     []*fetch.Node
	done     []bool
}

func (s *fanInStream) Poll() (fetch.Poll, error) {
	for i, stream := range s.branches {
		if s.done[i] || s.peek[i] != nil {
			continue
		}
		p, err := stream.Poll()
		if err != nil {
			return fetch.Poll{}, err
		}
		switch p.Kind {
		case fetch.KindYield:
			return p, nil
		case fetch.KindDone:
			s.done[i] = true
		case fetch.KindNode:
			s.peek[i] = p.Node
		}
	}

	best := -1
	for i := range s.branches {
		if s.peek[i] == nil {
			continue
		}
		if best == -1 || s.sort.Compare(s.peek[i].Row, s.peek[best].Row) < 0 {
			best = i
		}
	}
	if best == -1 {
		return fetch.Poll{Kind: fetch.KindDone}, nil
	}
	node := s.peek[best]
	s.peek[best] = nil
	return fetch.Poll{Kind: fetch.KindNode, Node: node}, nil
}

func (s *fanInStream) Close() error {
	var first error
	for _, b := range s.branches {
		if err := b.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
