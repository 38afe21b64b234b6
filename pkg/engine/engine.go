// Package engine is the public facade over the IVM core: a SQLite replica,
// the query planner/analyzer, and mutation tracking wired into one object a
// host application constructs once and drives for the lifetime of a
// client sync session.
//
// Grounded on the teacher's pkg/database/database.go (the Database
// interface/DatabaseImpl pair, its mutex-guarded counters, and its
// Stats/Health shape), retargeted from owning a storage engine onto owning
// an analyzer.HostDelegate and a mutation.MutationTracker.
package engine

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/syncbase/ivmcore/internal/analyzer"
	"github.com/syncbase/ivmcore/internal/ast"
	"github.com/syncbase/ivmcore/internal/config"
	"github.com/syncbase/ivmcore/internal/logging"
	"github.com/syncbase/ivmcore/internal/mutation"
	"github.com/syncbase/ivmcore/internal/planner"
	"github.com/syncbase/ivmcore/internal/row"
	"github.com/syncbase/ivmcore/internal/statementcache"
	"github.com/syncbase/ivmcore/internal/syncproto"
	"github.com/syncbase/ivmcore/internal/timeslice"
)

// Engine owns the SQLite replica handle and the host/tracker pair every
// query and mutation flows through.
type Engine struct {
	cfg     *config.Config
	db      *sql.DB
	host    *analyzer.HostDelegate
	tracker *mutation.MutationTracker

	mu      sync.RWMutex
	schemas map[string]*row.Schema

	startTime        time.Time
	queriesRun       int64
	mutationsTracked int64
}

// New opens the SQLite replica named by cfg and wires up a fresh
// HostDelegate and MutationTracker. No tables are registered yet; call
// RegisterTable before running any query against them.
func New(cfg *config.Config) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine: invalid configuration: %w", err)
	}

	dsn := cfg.SQLite.Path
	if dsn == "" {
		dsn = ":memory:"
	}
	if cfg.SQLite.ReadOnly {
		dsn += "?mode=ro"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("engine: opening replica %q: %w", dsn, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("engine: replica %q unreachable: %w", dsn, err)
	}

	cache, err := statementcache.New(db, cfg.Statements.HighWaterMark)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("engine: building statement cache: %w", err)
	}
	ticker := timeslice.New(cfg.TimeSlice.LapThreshold)

	schemas := map[string]*row.Schema{}
	host := analyzer.NewHostDelegate(db, cache, ticker, schemas, cfg.CostModel.MaxJoinTables)

	tracker := mutation.New()
	tracker.OnFatal = func(err error) {
		logging.Named("mutation").Errorw("fatal mutation error", "error", err)
	}

	return &Engine{
		cfg:       cfg,
		db:        db,
		host:      host,
		tracker:   tracker,
		schemas:   schemas,
		startTime: time.Now(),
	}, nil
}

// RegisterTable makes schema available to the planner/analyzer under
// schema.Name. Tables must be registered before any query referencing them
// runs; re-registering the same name replaces the schema for subsequent
// queries (existing TableSource handles the host has already memoised are
// left untouched — restart the engine to pick up a changed schema for a
// table already queried).
func (e *Engine) RegisterTable(schema *row.Schema) error {
	if err := schema.Validate(); err != nil {
		return fmt.Errorf("engine: registering table %q: %w", schema.Name, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.schemas[schema.Name] = schema
	return nil
}

// Schema returns the registered schema for table, or false if none is
// registered.
func (e *Engine) Schema(table string) (*row.Schema, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.schemas[table]
	return s, ok
}

// Query plans and runs q against the replica, returning the same
// diagnostics shape the analyzer produces (spec §4.4). A nil CostModel in
// opts is filled in from the engine's own configuration.
func (e *Engine) Query(q *ast.Query, opts analyzer.RunOptions) (*analyzer.Result, error) {
	if opts.CostModel == nil {
		cm := planner.CostModel{
			SeqScanRowCost:   e.cfg.CostModel.SeqScanRowCost,
			IndexLookupCost:  e.cfg.CostModel.IndexLookupCost,
			IndexStartupCost: e.cfg.CostModel.IndexStartupCost,
		}
		opts.CostModel = &cm
	}
	result, err := analyzer.Run(e.host, q, true, opts)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.queriesRun++
	e.mu.Unlock()
	return result, nil
}

// TrackMutation registers a new outstanding optimistic mutation and
// returns a handle the caller can Wait on for its server-settled outcome.
func (e *Engine) TrackMutation() *mutation.Handle {
	e.mu.Lock()
	e.mutationsTracked++
	e.mu.Unlock()
	return e.tracker.TrackMutation()
}

// MutationIDAssigned records the server-assigned mutation ID for an
// outstanding ephemeral mutation.
func (e *Engine) MutationIDAssigned(ephemeral, mutationID uint64) error {
	return e.tracker.MutationIDAssigned(ephemeral, mutationID)
}

// ProcessPushResponse settles outstanding mutations per a decoded
// pushResponse message.
func (e *Engine) ProcessPushResponse(body syncproto.PushResponse) {
	e.tracker.ProcessPushResponse(body)
}

// LmidAdvanced settles every outstanding mutation the server has confirmed
// up through lmid.
func (e *Engine) LmidAdvanced(lmid uint64) {
	e.tracker.LmidAdvanced(lmid)
}

// OnAllApplied registers a listener fired once every currently outstanding
// mutation has settled.
func (e *Engine) OnAllApplied(fn func()) {
	e.tracker.OnAllApplied(fn)
}

// Close closes the replica handle and rejects every outstanding mutation,
// matching the teacher's Database.Close tearing down its connections.
func (e *Engine) Close() error {
	e.tracker.RejectAllOutstanding(fmt.Errorf("engine: closed"))
	return e.db.Close()
}

// Stats reports engine-wide counters.
type Stats struct {
	QueriesRun       int64
	MutationsTracked int64
	TablesRegistered int
	Uptime           time.Duration
}

// Stats returns a snapshot of engine-wide counters.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{
		QueriesRun:       e.queriesRun,
		MutationsTracked: e.mutationsTracked,
		TablesRegistered: len(e.schemas),
		Uptime:           time.Since(e.startTime),
	}
}

// HealthStatus mirrors the teacher's database-level health snapshot.
type HealthStatus struct {
	Status    string
	Uptime    time.Duration
	LastCheck time.Time
	Details   map[string]interface{}
}

// Health pings the replica and reports overall engine health.
func (e *Engine) Health() HealthStatus {
	status := "healthy"
	details := map[string]interface{}{}
	if err := e.db.Ping(); err != nil {
		status = "unhealthy"
		details["error"] = err.Error()
	}
	e.mu.RLock()
	details["tables_registered"] = len(e.schemas)
	details["queries_run"] = e.queriesRun
	e.mu.RUnlock()
	return HealthStatus{
		Status:    status,
		Uptime:    time.Since(e.startTime),
		LastCheck: time.Now(),
		Details:   details,
	}
}
