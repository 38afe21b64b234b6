// Package operator implements the operator-graph primitives of spec §4.2:
// Filter, Join, fan-out/fan-in, Take and Terminus, composed above a
// source.Connection (which already satisfies fetch.Input on its own, so it
// plays the role of the "Connection" leaf primitive directly).
//
// Grounded on the teacher's internal/executor/{scan_operators.go,
// join_operators.go,aggregate_operators.go} Open/Next/Close iterator
// contract, generalized into the dual push/fetch contract fetch.Input /
// fetch.PushTarget describe (spec §9 "dynamic dispatch on operators").
package operator

import (
	"github.com/syncbase/ivmcore/internal/ast"
	"github.com/syncbase/ivmcore/internal/fetch"
	"github.com/syncbase/ivmcore/internal/row"
)

// Filter evaluates a residual Condition per row, both on fetch (by wrapping
// the upstream stream) and on push (by reasoning about the predicate's
// before/after truth value across an Edit).
type Filter struct {
	input  fetch.Input
	cond   ast.Condition
	output fetch.PushTarget
}

// NewFilter wraps input with cond, wiring itself as input's push target.
func NewFilter(input fetch.Input, cond ast.Condition) *Filter {
	f := &Filter{input: input, cond: cond}
	input.SetOutput(f)
	return f
}

func (f *Filter) Schema() *row.Schema { return f.input.Schema() }

func (f *Filter) SetOutput(out fetch.PushTarget) { f.output = out }

func (f *Filter) Destroy() error { return f.input.Destroy() }

// FullyAppliedFilters reports false whenever this Filter itself holds a
// residual condition: something was left for this node to apply in memory,
// same semantics as a TableSource connection's residual filter.
func (f *Filter) FullyAppliedFilters() bool {
	return f.cond == nil && f.input.FullyAppliedFilters()
}

func (f *Filter) Fetch(req fetch.Request) (fetch.Stream, error) {
	upstream, err := f.input.Fetch(req)
	if err != nil {
		return nil, err
	}
	return &filterStream{upstream: upstream, cond: f.cond}, nil
}

type filterStream struct {
	upstream fetch.Stream
	cond     ast.Condition
}

func (s *filterStream) Poll() (fetch.Poll, error) {
	for {
		p, err := s.upstream.Poll()
		if err != nil || p.Kind != fetch.KindNode {
			return p, err
		}
		ok, err := ast.Eval(s.cond, p.Node.Row)
		if err != nil {
			return fetch.Poll{}, err
		}
		if ok {
			return p, nil
		}
	}
}

func (s *filterStream) Close() error { return s.upstream.Close() }

// Push re-evaluates cond's truth value for the change's row(s) and forwards
// only the transitions that matter: Add/Remove pass straight through when
// they satisfy cond; an Edit may cross the predicate boundary in either
// direction, which Filter rewrites into the equivalent add/remove so
// downstream operators never have to special-case an edit whose "new" side
// they were never shown as present.
func (f *Filter) Push(change fetch.PushedChange) error {
	if f.output == nil {
		return nil
	}
	switch change.Change.Kind {
	case row.Add, row.Remove:
		ok, err := ast.Eval(f.cond, change.Change.Row)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		return f.output.Push(change)
	case row.Edit:
		oldOK, err := ast.Eval(f.cond, change.Change.Old)
		if err != nil {
			return err
		}
		newOK, err := ast.Eval(f.cond, change.Change.Row)
		if err != nil {
			return err
		}
		switch {
		case oldOK && newOK:
			return f.output.Push(change)
		case oldOK && !newOK:
			return f.output.Push(fetch.PushedChange{Change: row.NewRemove(change.Change.Old), Epoch: change.Epoch})
		case !oldOK && newOK:
			return f.output.Push(fetch.PushedChange{Change: row.NewAdd(change.Change.Row), Epoch: change.Epoch})
		default:
			return nil
		}
	default:
		return nil
	}
}
