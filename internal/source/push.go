package source

import (
	"database/sql"
	"fmt"

	"github.com/syncbase/ivmcore/internal/fetch"
	"github.com/syncbase/ivmcore/internal/row"
)

// Push applies change to the source, returning a Stream whose only purpose
// is cooperative yielding between connection deliveries (spec §4.1 "Push
// algorithm"): it never produces a Node. The caller drains it with
// fetch.Collect or its own Poll loop.
//
// Ordering, exactly as reasoned in spec §3/§4.1: the overlay is set once
// before any connection sees the change, so a connection re-entered via its
// own Fetch mid-push observes the change's effect; every registered
// connection is delivered to (split into remove+add first when the change
// touches that connection's split-edit columns), with a yield point only
// permitted between two connections, never mid-delivery; once every
// connection has been pushed to, the overlay is cleared and the SQLite row
// is written as one atomic unit, and the push epoch is advanced.
func (s *TableSource) Push(change row.Change) (fetch.Stream, error) {
	pk := s.schema.PrimaryKey
	if err := s.validatePush(change, pk); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.overlay = &row.Overlay{Change: change, Epoch: s.epoch + 1}
	conns := make([]*Connection, len(s.connections))
	copy(conns, s.connections)
	s.mu.Unlock()

	return &pushStream{source: s, change: change, conns: conns}, nil
}

func (s *TableSource) validatePush(change row.Change, pk []string) error {
	switch change.Kind {
	case row.Add:
		key := extractKey(change.Row, pk)
		_, exists, err := s.GetRow(key)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("source %q: push add: row with primary key %v already exists", s.schema.Name, key)
		}
	case row.Remove:
		key := extractKey(change.Row, pk)
		_, exists, err := s.GetRow(key)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("source %q: push remove: no row with primary key %v", s.schema.Name, key)
		}
	case row.Edit:
		oldKey := extractKey(change.Old, pk)
		newKey := extractKey(change.Row, pk)
		for _, c := range pk {
			if !valuesEqual(oldKey[c], newKey[c]) {
				return fmt.Errorf("source %q: push edit: primary key column %q changed; caller must split into remove+add", s.schema.Name, c)
			}
		}
		_, exists, err := s.GetRow(oldKey)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("source %q: push edit: no row with primary key %v", s.schema.Name, oldKey)
		}
	default:
		return fmt.Errorf("source %q: push: unknown change kind %v", s.schema.Name, change.Kind)
	}
	return nil
}

type pushStream struct {
	source *TableSource
	change row.Change
	conns  []*Connection
	idx    int
	done   bool
	closed bool
}

func (p *pushStream) Poll() (fetch.Poll, error) {
	if p.closed {
		return fetch.Poll{}, fetch.ErrStreamClosed
	}
	if p.done {
		return fetch.Poll{Kind: fetch.KindDone}, nil
	}

	for p.idx < len(p.conns) {
		conn := p.conns[p.idx]
		p.idx++
		deliver(conn, p.change)
		if p.source.ticker.ShouldYield() {
			p.source.ticker.Reset()
			return fetch.Poll{Kind: fetch.KindYield}, nil
		}
	}

	if err := p.source.commit(p.change); err != nil {
		return fetch.Poll{}, err
	}
	p.done = true
	return fetch.Poll{Kind: fetch.KindDone}, nil
}

func (p *pushStream) Close() error {
	p.closed = true
	return nil
}

// deliver pushes change to conn's output, splitting it into remove+add
// first when the edit touches one of conn's split-edit columns (spec §4.1
// "split edit"): a connection sorted or filtered on a column an edit
// changes must see a clean remove-then-add, not an in-place edit that would
// leave it holding a row indexed under its old position.
func deliver(conn *Connection, change row.Change) {
	if conn.output == nil {
		return
	}
	epoch := conn.source.currentEpoch()
	if change.Kind == row.Edit && conn.splitEditKeys != nil && change.AffectsColumns(conn.splitEditKeys) {
		for _, c := range change.Split() {
			_ = conn.output.Push(fetch.PushedChange{Change: c, Epoch: epoch})
		}
		return
	}
	_ = conn.output.Push(fetch.PushedChange{Change: change, Epoch: epoch})
}

func (s *TableSource) currentEpoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch + 1
}

// commit clears the overlay and writes change to SQLite as one atomic unit,
// then advances the push epoch (spec §4.1 "Push algorithm" final step).
func (s *TableSource) commit(change row.Change) error {
	cols := s.schema.ColumnNames()

	var err error
	switch change.Kind {
	case row.Add:
		err = s.insertRow(cols, change.Row)
	case row.Remove:
		err = s.deleteRow(change.Row)
	case row.Edit:
		err = s.updateRow(cols, change.Old, change.Row)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("source %q: commit: %w", s.schema.Name, err)
	}
	s.overlay = nil
	s.epoch++
	return nil
}

func (s *TableSource) insertRow(cols []string, r row.Row) error {
	placeholders := make([]string, len(cols))
	args := make([]interface{}, len(cols))
	for i, c := range cols {
		placeholders[i] = "?"
		v, _ := r.Get(c)
		args[i] = encodeValue(v)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteIdent(s.schema.Name), quoteColumns(cols), joinStrings(placeholders, ", "))
	return s.cache.Use(query, func(stmt *sql.Stmt) error {
		_, err := stmt.Exec(args...)
		return err
	})
}

func joinStrings(parts []string, sep string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += sep
		}
		out += p
	}
	return out
}

func (s *TableSource) deleteRow(r row.Row) error {
	key := extractKey(r, s.schema.PrimaryKey)
	where, args := whereForKey(key)
	query := fmt.Sprintf("DELETE FROM %s WHERE %s", quoteIdent(s.schema.Name), where)
	return s.cache.Use(query, func(stmt *sql.Stmt) error {
		_, err := stmt.Exec(args...)
		return err
	})
}

func (s *TableSource) updateRow(cols []string, oldRow, newRow row.Row) error {
	key := extractKey(oldRow, s.schema.PrimaryKey)
	setParts := make([]string, len(cols))
	args := make([]interface{}, 0, len(cols)+len(key))
	for i, c := range cols {
		setParts[i] = quoteIdent(c) + " = ?"
		v, _ := newRow.Get(c)
		args = append(args, encodeValue(v))
	}
	where, whereArgs := whereForKey(key)
	args = append(args, whereArgs...)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", quoteIdent(s.schema.Name), joinStrings(setParts, ", "), where)
	return s.cache.Use(query, func(stmt *sql.Stmt) error {
		_, err := stmt.Exec(args...)
		return err
	})
}
