package operator

import (
	"github.com/syncbase/ivmcore/internal/fetch"
	"github.com/syncbase/ivmcore/internal/row"
)

// Take enforces LIMIT while preserving sort, correctly handling edits that
// cross the limit boundary (spec §4.2). It keeps its own materialized
// window of at most `limit` rows as the "small invariant" state spec §4.2
// allows operators to hold, since recomputing the boundary row from
// scratch on every push would make Take's maintenance cost proportional to
// the whole source rather than to the window.
type Take struct {
	input  fetch.Input
	limit  int
	sort   row.Ordering
	pk     []string
	output fetch.PushTarget

	window []row.Row
	ready  bool
}

// NewTake wraps input, keeping at most limit rows ordered by sort (which
// must be PK-complete, same requirement as a TableSource connection's
// sort).
func NewTake(input fetch.Input, limit int, sort row.Ordering, pk []string) *Take {
	t := &Take{input: input, limit: limit, sort: sort, pk: pk}
	input.SetOutput(t)
	return t
}

func (t *Take) Schema() *row.Schema { return t.input.Schema() }

func (t *Take) SetOutput(out fetch.PushTarget) { t.output = out }

func (t *Take) FullyAppliedFilters() bool { return t.input.FullyAppliedFilters() }

func (t *Take) Destroy() error { return t.input.Destroy() }

// Fetch truncates the upstream stream at `limit` nodes. Any request bearing
// its own constraint/start is passed straight through to the upstream
// input first — the window state is only load-bearing for Push
// maintenance of the unconstrained top-N view.
func (t *Take) Fetch(req fetch.Request) (fetch.Stream, error) {
	upstream, err := t.input.Fetch(req)
	if err != nil {
		return nil, err
	}
	return &takeStream{upstream: upstream, remaining: t.limit}, nil
}

type takeStream struct {
	upstream  fetch.Stream
	remaining int
}

func (s *takeStream) Poll() (fetch.Poll, error) {
	if s.remaining <= 0 {
		return fetch.Poll{Kind: fetch.KindDone}, nil
	}
	p, err := s.upstream.Poll()
	if err != nil || p.Kind != fetch.KindNode {
		return p, err
	}
	s.remaining--
	return p, nil
}

func (s *takeStream) Close() error { return s.upstream.Close() }

func (t *Take) ensureWindow() error {
	if t.ready {
		return nil
	}
	stream, err := t.input.Fetch(fetch.Request{})
	if err != nil {
		return err
	}
	defer stream.Close()
	nodes, err := fetch.Collect(stream)
	if err != nil {
		return err
	}
	window := make([]row.Row, 0, t.limit)
	for _, n := range nodes {
		if len(window) >= t.limit {
			break
		}
		window = append(window, n.Row)
	}
	t.window = window
	t.ready = true
	return nil
}

func (t *Take) samePK(a, b row.Row) bool {
	for _, c := range t.pk {
		av, _ := a.Get(c)
		bv, _ := b.Get(c)
		if !valuesEqual(av, bv) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b row.Value) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}

func toFloat(v row.Value) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func (t *Take) indexOf(r row.Row) int {
	for i, w := range t.window {
		if t.samePK(w, r) {
			return i
		}
	}
	return -1
}

func (t *Take) insertSorted(r row.Row) int {
	i := 0
	for i < len(t.window) && t.sort.Compare(t.window[i], r) <= 0 {
		i++
	}
	t.window = append(t.window, row.Row{})
	copy(t.window[i+1:], t.window[i:])
	t.window[i] = r
	return i
}

// Push maintains the bounded top-N window: an Add promoted into the window
// evicts the current last row (forwarded as a Remove); a Remove of a
// windowed row promotes the next row beyond the old boundary (forwarded as
// an Add), fetched fresh since Take does not materialize beyond its limit.
func (t *Take) Push(c fetch.PushedChange) error {
	if t.output == nil {
		return nil
	}
	if err := t.ensureWindow(); err != nil {
		return err
	}
	switch c.Change.Kind {
	case row.Add:
		return t.pushAdd(c.Change.Row, c.Epoch)
	case row.Remove:
		return t.pushRemove(c.Change.Row, c.Epoch)
	case row.Edit:
		if idx := t.indexOf(c.Change.Old); idx >= 0 {
			t.window[idx] = c.Change.Row
			return t.output.Push(c)
		}
		return nil
	}
	return nil
}

func (t *Take) pushAdd(r row.Row, epoch uint64) error {
	if len(t.window) < t.limit {
		t.insertSorted(r)
		return t.output.Push(fetch.PushedChange{Change: row.NewAdd(r), Epoch: epoch})
	}
	boundary := t.window[len(t.window)-1]
	if t.sort.Compare(r, boundary) >= 0 {
		return nil
	}
	t.insertSorted(r)
	evicted := t.window[len(t.window)-1]
	t.window = t.window[:len(t.window)-1]
	if err := t.output.Push(fetch.PushedChange{Change: row.NewAdd(r), Epoch: epoch}); err != nil {
		return err
	}
	return t.output.Push(fetch.PushedChange{Change: row.NewRemove(evicted), Epoch: epoch})
}

func (t *Take) pushRemove(r row.Row, epoch uint64) error {
	idx := t.indexOf(r)
	if idx < 0 {
		return nil
	}
	oldBoundary := t.window[len(t.window)-1]
	t.window = append(t.window[:idx], t.window[idx+1:]...)
	if err := t.output.Push(fetch.PushedChange{Change: row.NewRemove(r), Epoch: epoch}); err != nil {
		return err
	}

	stream, err := t.input.Fetch(fetch.Request{}.WithStart(oldBoundary, fetch.After))
	if err != nil {
		return err
	}
	defer stream.Close()
	nodes, err := fetch.Collect(stream)
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		return nil
	}
	promoted := nodes[0].Row
	t.window = append(t.window, promoted)
	return t.output.Push(fetch.PushedChange{Change: row.NewAdd(promoted), Epoch: epoch})
}
