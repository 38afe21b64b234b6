package operator

import (
	"github.com/syncbase/ivmcore/internal/fetch"
	"github.com/syncbase/ivmcore/internal/row"
)

// MaterializedRow is a materialized view row together with, for every
// relation a join along its path attached, the materialized rows related to
// it (spec §4.2's "Node = row + per-relationship child streams", carried all
// the way to the terminus instead of stopping at the operator tree).
type MaterializedRow struct {
	Row     row.Row
	Related map[string][]MaterializedRow
}

// Terminus is the root sink (spec §4.2): it drives the initial pull
// iteration to materialize a view, then keeps that materialization current
// by applying every change pushed to it. A terminus never has a
// downstream output of its own.
type Terminus struct {
	input fetch.Input
	sort  row.Ordering
	pk    []string
	rows  []MaterializedRow
}

// NewTerminus wires itself as input's push target. Call Materialize once
// to populate the initial view before relying on Rows/Push maintenance.
func NewTerminus(input fetch.Input, sort row.Ordering, pk []string) *Terminus {
	t := &Terminus{input: input, sort: sort, pk: pk}
	input.SetOutput(t)
	return t
}

// Materialize runs a full fetch against input and replaces the terminus's
// view with the result, recursively draining any related child streams a
// join attached along the way. It drains through fetch.Collect, which
// skips Yield polls, so it does not return control to its caller until the
// whole fetch is done.
func (t *Terminus) Materialize() error {
	stream, err := t.input.Fetch(fetch.Request{})
	if err != nil {
		return err
	}
	defer stream.Close()
	nodes, err := fetch.Collect(stream)
	if err != nil {
		return err
	}
	rows := make([]MaterializedRow, len(nodes))
	for i, n := range nodes {
		mr, err := materializeNode(n)
		if err != nil {
			return err
		}
		rows[i] = mr
	}
	t.rows = rows
	return nil
}

// materializeNode recursively drains n's child streams (if any), so a
// multi-level related AST produces a correspondingly nested
// MaterializedRow rather than stopping at the first relation.
func materializeNode(n *fetch.Node) (MaterializedRow, error) {
	mr := MaterializedRow{Row: n.Row}
	if len(n.Children) == 0 {
		return mr, nil
	}
	mr.Related = make(map[string][]MaterializedRow, len(n.Children))
	for name, child := range n.Children {
		childNodes, err := fetch.Collect(child.Stream)
		closeErr := child.Stream.Close()
		if err != nil {
			return MaterializedRow{}, err
		}
		if closeErr != nil {
			return MaterializedRow{}, closeErr
		}
		related := make([]MaterializedRow, len(childNodes))
		for i, cn := range childNodes {
			rmr, err := materializeNode(cn)
			if err != nil {
				return MaterializedRow{}, err
			}
			related[i] = rmr
		}
		mr.Related[name] = related
	}
	return mr, nil
}

// Rows returns a snapshot of the currently materialized view's top-level
// rows, in sort order, discarding related children (use MaterializedRows to
// keep them).
func (t *Terminus) Rows() []row.Row {
	out := make([]row.Row, len(t.rows))
	for i, mr := range t.rows {
		out[i] = mr.Row
	}
	return out
}

// MaterializedRows returns a snapshot of the currently materialized view,
// including every row's materialized related rows.
func (t *Terminus) MaterializedRows() []MaterializedRow {
	out := make([]MaterializedRow, len(t.rows))
	copy(out, t.rows)
	return out
}

func (t *Terminus) samePK(a, b row.Row) bool {
	for _, c := range t.pk {
		av, _ := a.Get(c)
		bv, _ := b.Get(c)
		if !valuesEqual(av, bv) {
			return false
		}
	}
	return true
}

func (t *Terminus) indexOf(r row.Row) int {
	for i, w := range t.rows {
		if t.samePK(w.Row, r) {
			return i
		}
	}
	return -1
}

// Push applies change in place, keeping the materialized view sorted. A
// PushedChange never carries related children itself (fetch.PushedChange is
// just a row.Change), so Add/Edit re-fetch the input positioned exactly at
// the changed row to pick up its current related set — the same point-fetch
// a join's own edit-in-place re-delivery (see Join.reconcileOuterFor) relies
// on a terminus eventually doing.
func (t *Terminus) Push(c fetch.PushedChange) error {
	switch c.Change.Kind {
	case row.Add:
		mr, err := t.fetchOne(c.Change.Row)
		if err != nil {
			return err
		}
		t.insertSorted(mr)
	case row.Remove:
		if idx := t.indexOf(c.Change.Row); idx >= 0 {
			t.rows = append(t.rows[:idx], t.rows[idx+1:]...)
		}
	case row.Edit:
		if idx := t.indexOf(c.Change.Old); idx >= 0 {
			t.rows = append(t.rows[:idx], t.rows[idx+1:]...)
		}
		mr, err := t.fetchOne(c.Change.Row)
		if err != nil {
			return err
		}
		t.insertSorted(mr)
	}
	return nil
}

// fetchOne re-pulls r's own materialization (row + related children) by
// positioning a fetch exactly at it.
func (t *Terminus) fetchOne(r row.Row) (MaterializedRow, error) {
	stream, err := t.input.Fetch(fetch.Request{}.WithStart(r, fetch.At))
	if err != nil {
		return MaterializedRow{}, err
	}
	defer stream.Close()
	p, err := stream.Poll()
	for err == nil && p.Kind == fetch.KindYield {
		p, err = stream.Poll()
	}
	if err != nil {
		return MaterializedRow{}, err
	}
	if p.Kind != fetch.KindNode {
		return MaterializedRow{Row: r}, nil
	}
	return materializeNode(p.Node)
}

func (t *Terminus) insertSorted(mr MaterializedRow) {
	i := 0
	for i < len(t.rows) && t.sort.Compare(t.rows[i].Row, mr.Row) <= 0 {
		i++
	}
	t.rows = append(t.rows, MaterializedRow{})
	copy(t.rows[i+1:], t.rows[i:])
	t.rows[i] = mr
}
