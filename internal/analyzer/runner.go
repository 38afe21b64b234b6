package analyzer

import (
	"fmt"
	"time"

	"github.com/syncbase/ivmcore/internal/ast"
	"github.com/syncbase/ivmcore/internal/operator"
	"github.com/syncbase/ivmcore/internal/planner"
)

// Run executes ast read-only against host's replica and collects
// diagnostics (spec §4.4). isTransformed mirrors the upstream call shape
// (runAst(lc, clientSchema, ast, isTransformed, options, shouldYield)); this
// analyzer always runs a fully transformed AST (correlated subqueries
// resolved to Join/HashJoin by the planner), so the parameter is recorded
// in a warning rather than silently ignored when false.
func Run(host *HostDelegate, q *ast.Query, isTransformed bool, opts RunOptions) (*Result, error) {
	start := time.Now()
	var warnings []string
	if !isTransformed {
		warnings = append(warnings, "analyzer: received an untransformed AST; correlated subqueries are resolved during planning regardless")
	}
	if opts.PlanDebugger && opts.CostModel == nil {
		return nil, fmt.Errorf("analyzer: planDebugger requires a costModel")
	}

	host.applyPermissions = opts.ApplyPermissions
	if opts.ReadRows || opts.VendedRows {
		host.readRows = map[string]map[string]int{}
	} else {
		host.readRows = nil
	}

	var debugger *planner.AccumulatorDebugger
	if opts.PlanDebugger {
		debugger = &planner.AccumulatorDebugger{}
	}
	costModel := planner.CostModel{SeqScanRowCost: 1, IndexLookupCost: 0.05, IndexStartupCost: 2}
	if opts.CostModel != nil {
		costModel = *opts.CostModel
	}
	maxJoinTables := host.MaxJoinTables
	if maxJoinTables <= 0 {
		maxJoinTables = 8
	}
	pl := &planner.Planner{CostModel: costModel, MaxJoinTables: maxJoinTables, DB: host.db, Debugger: debugger}

	plan, err := pl.Plan(q, host)
	if err != nil {
		return nil, err
	}

	ts, err := host.getSource(q.Table)
	if err != nil {
		return nil, err
	}
	pk := ts.Schema().PrimaryKey
	sort := planner.OrderingFor(q, pk)
	terminus := operator.NewTerminus(plan.Root, sort, pk)
	if err := terminus.Materialize(); err != nil {
		return nil, err
	}

	result := &Result{
		Warnings:       warnings,
		SyncedRowCount: len(terminus.Rows()),
		Start:          start,
	}
	if opts.SyncedRows {
		result.SyncedRows = terminus.MaterializedRows()
	}
	if host.readRows != nil {
		result.ReadRowCountsByQuery = host.readRows

		vended := make(map[string]int, len(host.readRows))
		total := 0
		for table, byQuery := range host.readRows {
			for _, n := range byQuery {
				vended[table] += n
				total += n
			}
		}
		result.VendedRowCounts = vended
		result.ReadRowCount = total

		plans, explainWarnings := explainQueries(host.db, host.readRows)
		result.SqlitePlans = plans
		result.Warnings = append(result.Warnings, explainWarnings...)
	}
	if debugger != nil {
		result.JoinPlans = debugger.Events
	}

	result.Elapsed = time.Since(start)
	result.End = start.Add(result.Elapsed)
	return result, nil
}
