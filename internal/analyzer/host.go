// Package analyzer runs an AST read-only against a SQLite replica and
// collects diagnostics (spec §4.4): per-table read counts, captured
// EXPLAIN QUERY PLAN output, and the planner's own join-decision trace.
//
// Grounded on the teacher's internal/executor/catalog_manager.go (memoised
// per-table lookup) and internal/optimizer/optimizer.go (the
// decision-log/explain-output pairing), retargeted from the teacher's own
// query execution onto driving internal/planner + internal/operator over a
// real SQLite replica.
package analyzer

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/syncbase/ivmcore/internal/ast"
	"github.com/syncbase/ivmcore/internal/fetch"
	"github.com/syncbase/ivmcore/internal/planner"
	"github.com/syncbase/ivmcore/internal/row"
	"github.com/syncbase/ivmcore/internal/source"
	"github.com/syncbase/ivmcore/internal/statementcache"
	"github.com/syncbase/ivmcore/internal/timeslice"
)

// HostDelegate is the runtime context Run drives an AST through (spec
// §4.4 step 2): a memoised per-table TableSource registry, identity
// source/input/filter decorators, and a no-op edge recorder. Each
// overridable field is exported so a caller (pkg/engine, or a test) can
// swap in real behavior. NewHostDelegate builds the identity/no-op host;
// the zero value has nil decorators and a nil source registry and is not
// that host.
type HostDelegate struct {
	db      *sql.DB
	cache   *statementcache.Cache
	ticker  *timeslice.Ticker
	schemas map[string]*row.Schema

	// MaxJoinTables bounds flip-pattern enumeration for any planner built
	// by Run against this host (spec §4.3, config.CostModelConfig).
	MaxJoinTables int

	mu      sync.Mutex
	sources map[string]*source.TableSource

	// EdgeRecorder observes every join edge the planner wires in, as
	// (parentTable, childTable, relationName). The default is a no-op.
	EdgeRecorder func(parentTable, childTable, relation string)

	// FilterDecorator rewrites a table's retained filter before it is
	// handed to TableSource.Connect. Identity by default; a permissions
	// layer would AND in its own predicate here.
	FilterDecorator func(table string, cond ast.Condition) ast.Condition

	// InputDecorator wraps a table's freshly-opened fetch.Input before it
	// is vended into the operator graph. Identity by default.
	InputDecorator func(table string, in fetch.Input) fetch.Input

	// PermissionsDecorator wraps a table's input with a permissions
	// predicate; only applied when RunOptions.ApplyPermissions is true.
	// Identity by default (this package has no permissions model of its
	// own — a real deployment supplies one).
	PermissionsDecorator func(table string, in fetch.Input) fetch.Input

	applyPermissions bool
	readRows         map[string]map[string]int
}

// NewHostDelegate builds a HostDelegate with identity decorators and a
// no-op edge recorder, backed by db/cache/ticker for any table named in
// schemas.
func NewHostDelegate(db *sql.DB, cache *statementcache.Cache, ticker *timeslice.Ticker, schemas map[string]*row.Schema, maxJoinTables int) *HostDelegate {
	return &HostDelegate{
		db:                   db,
		cache:                cache,
		ticker:               ticker,
		schemas:              schemas,
		MaxJoinTables:        maxJoinTables,
		sources:              map[string]*source.TableSource{},
		EdgeRecorder:         func(string, string, string) {},
		FilterDecorator:      func(_ string, cond ast.Condition) ast.Condition { return cond },
		InputDecorator:       func(_ string, in fetch.Input) fetch.Input { return in },
		PermissionsDecorator: func(_ string, in fetch.Input) fetch.Input { return in },
	}
}

// getSource memoises one TableSource per table name.
func (h *HostDelegate) getSource(table string) (*source.TableSource, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ts, ok := h.sources[table]; ok {
		return ts, nil
	}
	schema, ok := h.schemas[table]
	if !ok {
		return nil, fmt.Errorf("analyzer: unknown table %q", table)
	}
	ts, err := source.New(h.db, schema, h.cache, h.ticker)
	if err != nil {
		return nil, err
	}
	h.sources[table] = ts
	return ts, nil
}

// Source implements planner.SourceProvider, applying this host's
// decorators and (when enabled by RunOptions) read-row counting to every
// connection the planner opens.
func (h *HostDelegate) Source(table string) (planner.SourceHandle, error) {
	ts, err := h.getSource(table)
	if err != nil {
		return nil, err
	}
	return hostHandle{host: h, table: table, base: source.Handle{TableSource: ts}}, nil
}

type hostHandle struct {
	host  *HostDelegate
	table string
	base  planner.SourceHandle
}

func (d hostHandle) Schema() *row.Schema { return d.base.Schema() }

func (d hostHandle) Connect(sort row.Ordering, filters ast.Condition, splitEditKeys map[string]bool, debug bool) (fetch.Input, error) {
	filters = d.host.FilterDecorator(d.table, filters)
	in, err := d.base.Connect(sort, filters, splitEditKeys, debug)
	if err != nil {
		return nil, err
	}
	in = d.host.InputDecorator(d.table, in)
	if d.host.applyPermissions {
		in = d.host.PermissionsDecorator(d.table, in)
	}
	if d.host.readRows != nil {
		in = &countingInput{Input: in, name: d.table, counts: d.host.readRows}
	}
	return in, nil
}

// sqlTexter is implemented by fetch.Stream implementations that can report
// the compiled SQL text they are fetching from (source.connStream does).
// Counting keys by that text when available, falling back to the bare table
// name for streams that don't expose one.
type sqlTexter interface {
	SQL() string
}

type countingInput struct {
	fetch.Input
	name   string
	counts map[string]map[string]int
}

func (c *countingInput) Fetch(req fetch.Request) (fetch.Stream, error) {
	s, err := c.Input.Fetch(req)
	if err != nil {
		return nil, err
	}
	sqlText := c.name
	if t, ok := s.(sqlTexter); ok {
		sqlText = t.SQL()
	}
	return &countingStream{Stream: s, name: c.name, sql: sqlText, counts: c.counts}, nil
}

type countingStream struct {
	fetch.Stream
	name   string
	sql    string
	counts map[string]map[string]int
}

func (s *countingStream) Poll() (fetch.Poll, error) {
	p, err := s.Stream.Poll()
	if err == nil && p.Kind == fetch.KindNode {
		byQuery := s.counts[s.name]
		if byQuery == nil {
			byQuery = map[string]int{}
			s.counts[s.name] = byQuery
		}
		byQuery[s.sql]++
	}
	return p, err
}
