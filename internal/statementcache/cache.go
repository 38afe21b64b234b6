// Package statementcache implements the small pool of prepared SQLite
// statements described in spec §4.6: keyed by SQL text, bounded by a
// configurable high-water mark with LRU eviction of prepared statements.
//
// Grounded on the teacher's internal/executor/cursor_manager.go (which
// pools open cursors per query but never evicts) and on the pack's
// golang-lru/v2 usage (hazyhaar-GoClode, agentic-research-mache both pair
// it with SQLite access) — this adds the bounded eviction the teacher
// never implemented.
package statementcache

import (
	"database/sql"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is a per-database-handle pool of prepared statements.
type Cache struct {
	db  *sql.DB
	mu  sync.Mutex
	lru *lru.Cache[string, *entry]
}

type entry struct {
	stmt       *sql.Stmt
	checkedOut bool
}

func New(db *sql.DB, highWaterMark int) (*Cache, error) {
	c := &Cache{db: db}
	evict := func(sql string, e *entry) {
		if e.stmt != nil {
			_ = e.stmt.Close()
		}
	}
	l, err := lru.NewWithEvict[string, *entry](highWaterMark, evict)
	if err != nil {
		return nil, fmt.Errorf("statementcache: %w", err)
	}
	c.lru = l
	return c, nil
}

// Use acquires the cached (or newly prepared) statement for sql, invokes
// fn, and returns it to the pool — the common case where no streaming
// iterator needs to hold the statement across multiple calls.
func (c *Cache) Use(query string, fn func(*sql.Stmt) error) error {
	stmt, err := c.Get(query)
	if err != nil {
		return err
	}
	defer c.Return(query, stmt)
	return fn(stmt)
}

// Get checks out a prepared statement for explicit use by a streaming
// iterator, which must call Return when done.
func (c *Cache) Get(query string) (*sql.Stmt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.lru.Get(query); ok {
		if !e.checkedOut {
			e.checkedOut = true
			return e.stmt, nil
		}
		// Already checked out (nested streaming reads of the same SQL
		// text) — prepare a fresh statement rather than share one across
		// concurrent cursors; it isn't cached.
		stmt, err := c.db.Prepare(query)
		if err != nil {
			return nil, fmt.Errorf("statementcache: prepare %q: %w", query, err)
		}
		return stmt, nil
	}

	stmt, err := c.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("statementcache: prepare %q: %w", query, err)
	}
	c.lru.Add(query, &entry{stmt: stmt, checkedOut: true})
	return stmt, nil
}

// Return checks a statement back in. If it isn't the cache's current
// instance for that SQL text (a duplicate prepared under contention), it is
// closed directly instead of cached.
func (c *Cache) Return(query string, stmt *sql.Stmt) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(query)
	if !ok || e.stmt != stmt {
		_ = stmt.Close()
		return
	}
	e.checkedOut = false
}

// Len reports the number of distinct SQL texts currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Close evicts and closes every cached statement.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	return nil
}
