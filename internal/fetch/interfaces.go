package fetch

import "github.com/syncbase/ivmcore/internal/row"

// Input is the capability set every operator — and TableSource's connection
// handle — implements (spec §4.2): {getSchema, fetch, setOutput, destroy,
// fullyAppliedFilters}. Kept as a dyn-safe interface rather than a closed
// sum type because the set of concrete operators is open: table source,
// join, filter, fan-out, fan-in, take, terminus, plus host-supplied
// decorators (spec §9 "Dynamic dispatch on operators").
type Input interface {
	// Schema returns the row shape this input vends.
	Schema() *row.Schema
	// Fetch streams rows matching req, merging any in-flight overlay.
	Fetch(req Request) (Stream, error)
	// SetOutput wires this input's downstream push target. Called once,
	// when the operator above it is constructed.
	SetOutput(out PushTarget)
	// Destroy releases the input's resources (e.g. a TableSource
	// connection's slot). Idempotent.
	Destroy() error
	// FullyAppliedFilters reports whether every filter given to Connect was
	// pushed into the retained SQL predicate, i.e. nothing was left over
	// as an in-memory residual (spec §4.1).
	FullyAppliedFilters() bool
}

// PushTarget receives changes propagated from an upstream Input.
type PushTarget interface {
	Push(change PushedChange) error
}

// PushedChange carries a Change that occurred at a source, annotated with
// the push epoch that produced it — downstream fan-out/fan-in stages use
// the epoch to de-duplicate a change that reaches them along more than one
// branch (spec §4.1 "push epoch").
type PushedChange struct {
	Change row.Change
	Epoch  uint64
}
