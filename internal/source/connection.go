package source

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/syncbase/ivmcore/internal/ast"
	"github.com/syncbase/ivmcore/internal/fetch"
	"github.com/syncbase/ivmcore/internal/row"
)

// Connection is a TableSource's fetch.Input handle, returned by
// TableSource.Connect (spec §4.1). It owns a sort, a filter condition split
// into a SQL-pushed retained half and an in-memory residual half, and the
// set of columns whose edits must be split into remove+add for this
// particular connection's downstream operators.
type Connection struct {
	id     int
	source *TableSource

	sort                row.Ordering
	retainedFilter      ast.Condition
	residualFilter      ast.Condition
	fullyAppliedFilters bool
	splitEditKeys       map[string]bool
	debug               bool

	output fetch.PushTarget
}

func (c *Connection) Schema() *row.Schema { return c.source.schema }

func (c *Connection) SetOutput(out fetch.PushTarget) { c.output = out }

func (c *Connection) FullyAppliedFilters() bool { return c.fullyAppliedFilters }

func (c *Connection) Destroy() error {
	c.source.destroyConnection(c)
	return nil
}

// Fetch implements spec §4.1's "Fetching algorithm": it pushes the retained
// filter, any request constraint and the start-basis seek predicate into a
// single SELECT, applies the residual filter in memory as rows stream past,
// and merges the source's in-flight overlay so a connection re-entered
// during its own push sees the push's effect (spec §3 "Overlay").
func (c *Connection) Fetch(req fetch.Request) (fetch.Stream, error) {
	s := c.source
	basisBefore := req.Start != nil && req.Start.Basis == fetch.Before
	so := effectiveOrdering(c.sort, req.Reverse, basisBefore)

	cols := s.schema.ColumnNames()
	query := fmt.Sprintf("SELECT %s FROM %s", quoteColumns(cols), quoteIdent(s.schema.Name))

	var whereParts []string
	var args []interface{}

	if c.retainedFilter != nil {
		frag, fargs, err := ast.CompileSQL(c.retainedFilter)
		if err != nil {
			return nil, fmt.Errorf("source %q: compile retained filter: %w", s.schema.Name, err)
		}
		if frag != "" {
			whereParts = append(whereParts, "("+frag+")")
			args = append(args, fargs...)
		}
	}
	if req.Constraint != nil {
		whereParts = append(whereParts, quoteIdent(req.Constraint.Column)+" = ?")
		args = append(args, encodeValue(req.Constraint.Value))
	}
	if req.Start != nil {
		inclusive := req.Start.Basis == fetch.At
		pred, sargs := seekPredicate(so, req.Start.Row, inclusive)
		if pred != "" {
			whereParts = append(whereParts, "("+pred+")")
			args = append(args, sargs...)
		}
	}
	if len(whereParts) > 0 {
		query += " WHERE " + strings.Join(whereParts, " AND ")
	}
	query += " ORDER BY " + so.orderByClause()

	stmt, err := s.cache.Get(query)
	if err != nil {
		return nil, fmt.Errorf("source %q: fetch: %w", s.schema.Name, err)
	}
	rows, err := stmt.Query(args...)
	if err != nil {
		s.cache.Return(query, stmt)
		return nil, fmt.Errorf("source %q: fetch: %w", s.schema.Name, err)
	}

	s.mu.Lock()
	var overlay *row.Overlay
	if s.overlay != nil {
		ov := *s.overlay
		overlay = &ov
	}
	s.mu.Unlock()

	stream := &connStream{
		conn:     c,
		query:    query,
		stmt:     stmt,
		rows:     rows,
		cols:     cols,
		ordering: so.toRowOrdering(),
	}
	if overlay != nil {
		stream.prepareOverlay(*overlay, req, so)
	}
	return stream, nil
}

type connStream struct {
	conn     *Connection
	query    string
	stmt     *sql.Stmt
	rows     *sql.Rows
	cols     []string
	ordering row.Ordering

	suppressPK map[string]row.Value
	inject     *row.Row
	injected   bool

	pendingNext *row.Node
	done        bool
	closed      bool
}

// prepareOverlay computes the request-scoped effect of the source's
// in-flight overlay: a PK to suppress from the base scan (Remove, or the old
// side of an Edit) and/or a row to inject once in correctly sorted position
// (Add, or the new side of an Edit) — the overlay row never reached SQL yet.
func (s *connStream) prepareOverlay(ov row.Overlay, req fetch.Request, so seekOrdering) {
	c := s.conn
	pk := c.source.schema.PrimaryKey

	switch ov.Change.Kind {
	case row.Remove:
		s.suppressPK = extractKey(ov.Change.Row, pk)
		return
	case row.Edit:
		s.suppressPK = extractKey(ov.Change.Old, pk)
	}

	candidate := ov.Change.Row
	if !rowSatisfiesFilters(c, candidate) {
		return
	}
	if req.Constraint != nil {
		v, _ := candidate.Get(req.Constraint.Column)
		if !valuesEqual(v, req.Constraint.Value) {
			return
		}
	}
	if req.Start != nil {
		inclusive := req.Start.Basis == fetch.At
		cmp := so.toRowOrdering().Compare(candidate, req.Start.Row)
		if inclusive {
			if cmp < 0 {
				return
			}
		} else if cmp <= 0 {
			return
		}
	}
	r := candidate
	s.inject = &r
}

func extractKey(r row.Row, cols []string) map[string]row.Value {
	out := make(map[string]row.Value, len(cols))
	for _, c := range cols {
		v, _ := r.Get(c)
		out[c] = v
	}
	return out
}

func valuesEqual(a, b row.Value) bool {
	af, aok := toComparableFloat(a)
	bf, bok := toComparableFloat(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}

func toComparableFloat(v row.Value) (float64, bool) {
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

func rowSatisfiesFilters(c *Connection, r row.Row) bool {
	if c.retainedFilter != nil {
		ok, err := ast.Eval(c.retainedFilter, r)
		if err != nil || !ok {
			return false
		}
	}
	if c.residualFilter != nil {
		ok, err := ast.Eval(c.residualFilter, r)
		if err != nil || !ok {
			return false
		}
	}
	return true
}

func (s *connStream) matchesSuppress(r row.Row) bool {
	if s.suppressPK == nil {
		return false
	}
	for col, v := range s.suppressPK {
		rv, _ := r.Get(col)
		if !valuesEqual(rv, v) {
			return false
		}
	}
	return true
}

// Poll implements fetch.Stream. It merges the single pending overlay
// injection into the SQL-ordered stream at the position ordering dictates,
// and yields when the source's ticker says a lap has elapsed (spec §4.1
// step 2 "yield sentinel").
func (s *connStream) Poll() (fetch.Poll, error) {
	if s.closed {
		return fetch.Poll{}, fetch.ErrStreamClosed
	}
	if s.conn.source.ticker.ShouldYield() {
		s.conn.source.ticker.Reset()
		return fetch.Poll{Kind: fetch.KindYield}, nil
	}

	next, err := s.nextBaseRow()
	if err != nil {
		return fetch.Poll{}, err
	}

	if next == nil {
		if s.inject != nil && !s.injected {
			s.injected = true
			r := *s.inject
			return fetch.Poll{Kind: fetch.KindNode, Node: &fetch.Node{Row: r}}, nil
		}
		return fetch.Poll{Kind: fetch.KindDone}, nil
	}

	if s.inject != nil && !s.injected {
		if s.ordering.Compare(*s.inject, *next) <= 0 {
			s.injected = true
			s.pendingNext = &fetch.Node{Row: *next}
			r := *s.inject
			return fetch.Poll{Kind: fetch.KindNode, Node: &fetch.Node{Row: r}}, nil
		}
	}
	return fetch.Poll{Kind: fetch.KindNode, Node: &fetch.Node{Row: *next}}, nil
}

// nextBaseRow returns the next row from the SQL cursor that isn't
// overlay-suppressed, consuming a buffered row left by a prior injection
// decision first.
func (s *connStream) nextBaseRow() (*row.Row, error) {
	if s.pendingNext != nil {
		r := s.pendingNext.Row
		s.pendingNext = nil
		return &r, nil
	}
	if s.done {
		return nil, nil
	}
	for s.rows.Next() {
		r, err := scanRow(s.rows, s.conn.source.schema, s.cols)
		if err != nil {
			return nil, err
		}
		if s.matchesSuppress(r) {
			continue
		}
		return &r, nil
	}
	s.done = true
	if err := s.rows.Err(); err != nil {
		return nil, fmt.Errorf("source %q: fetch: %w", s.conn.source.schema.Name, err)
	}
	return nil, nil
}

// SQL returns the compiled statement text this stream is fetching from, so a
// wrapping fetch.Stream can key diagnostics by the exact query rather than
// reconstructing one.
func (s *connStream) SQL() string { return s.query }

func (s *connStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.rows != nil {
		_ = s.rows.Close()
	}
	s.conn.source.cache.Return(s.query, s.stmt)
	return nil
}
