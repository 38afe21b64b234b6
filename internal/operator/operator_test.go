package operator

import (
	"github.com/syncbase/ivmcore/internal/fetch"
	"github.com/syncbase/ivmcore/internal/row"
)

// fakeInput is a minimal fetch.Input test double backed by an in-memory
// slice of rows: Fetch replays the slice, narrowed by the request's
// constraint and start, which is enough to exercise the operators above it.
// Pushes are not applied to the slice.
type fakeInput struct {
	schema       *row.Schema
	rows         []row.Row
	ordering     row.Ordering
	output       fetch.PushTarget
	destroyed    bool
	fullyApplied bool
}

func newFakeInput(rows []row.Row) *fakeInput {
	return &fakeInput{
		schema:       &row.Schema{Name: "t", PrimaryKey: []string{"id"}},
		rows:         rows,
		ordering:     scoreDesc(),
		fullyApplied: true,
	}
}

// Fetch replays f.rows in order, honoring a Start basis against f.ordering
// (the sort the fixture's caller already sorted rows under) so tests that
// exercise Take's promote-next-row path see the row actually after the
// boundary rather than the whole unfiltered slice.
func (f *fakeInput) Fetch(req fetch.Request) (fetch.Stream, error) {
	rows := f.rows
	if req.Constraint != nil {
		var filtered []row.Row
		for _, r := range rows {
			if v, ok := r.Get(req.Constraint.Column); ok && v == req.Constraint.Value {
				filtered = append(filtered, r)
			}
		}
		rows = filtered
	}
	if req.Start != nil {
		var filtered []row.Row
		for _, r := range rows {
			cmp := f.ordering.Compare(r, req.Start.Row)
			switch req.Start.Basis {
			case fetch.After:
				if cmp > 0 {
					filtered = append(filtered, r)
				}
			case fetch.Before:
				if cmp < 0 {
					filtered = append(filtered, r)
				}
			default:
				if cmp == 0 {
					filtered = append(filtered, r)
				}
			}
		}
		rows = filtered
	}
	nodes := make([]*fetch.Node, len(rows))
	for i, r := range rows {
		nodes[i] = &fetch.Node{Row: r}
	}
	return fetch.NewSliceStream(nodes), nil
}

func (f *fakeInput) Schema() *row.Schema { return f.schema }

func (f *fakeInput) SetOutput(out fetch.PushTarget) { f.output = out }

func (f *fakeInput) Destroy() error { f.destroyed = true; return nil }

func (f *fakeInput) FullyAppliedFilters() bool { return f.fullyApplied }

// recordingTarget is a fetch.PushTarget that records every pushed change.
type recordingTarget struct {
	pushes []fetch.PushedChange
}

func (r *recordingTarget) Push(c fetch.PushedChange) error {
	r.pushes = append(r.pushes, c)
	return nil
}

func rowWithID(id string, extra map[string]row.Value) row.Row {
	values := map[string]row.Value{"id": id}
	for k, v := range extra {
		values[k] = v
	}
	cols := []string{"id"}
	for k := range extra {
		cols = append(cols, k)
	}
	return row.New(cols, values)
}
