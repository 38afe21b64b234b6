package planner

import (
	"database/sql"
	"fmt"

	"github.com/syncbase/ivmcore/internal/ast"
	"github.com/syncbase/ivmcore/internal/fetch"
	"github.com/syncbase/ivmcore/internal/operator"
	"github.com/syncbase/ivmcore/internal/row"
)

// FlipPattern is spec §4.3's join-strategy bitmask: bit i set means edge i
// is built as a HashJoin (materialize-inner) rather than a Join
// (nested-loop probe).
type FlipPattern uint64

// SourceHandle is the narrow surface the planner needs from a table: its
// schema, and a way to open a fetch.Input connection onto it. source.Handle
// is the plain adapter; the analyzer wraps it further to add read-row
// counting.
type SourceHandle interface {
	Schema() *row.Schema
	Connect(sort row.Ordering, filters ast.Condition, splitEditKeys map[string]bool, debug bool) (fetch.Input, error)
}

// SourceProvider resolves a query's table name to the SourceHandle backing
// it. pkg/engine and internal/analyzer implement this over their table
// registries.
type SourceProvider interface {
	Source(table string) (SourceHandle, error)
}

// Plan is one completed planning attempt: the root of the operator tree
// ready to Fetch/Push, its estimated cost, and the flip pattern that
// produced it (surfaced for debugging and tie-break comparisons).
type Plan struct {
	Root fetch.Input
	Cost float64
	Flip FlipPattern
}

// Planner enumerates flip patterns over a query's join edges, costs each
// with CostModel against db's live statistics, and keeps the cheapest
// (spec §4.3). Grounded on the teacher's optimizer outer loop; see
// cost.go's package doc for the per-file mapping.
type Planner struct {
	CostModel     CostModel
	MaxJoinTables int
	DB            *sql.DB
	Debugger      *AccumulatorDebugger
}

// Plan builds the cheapest operator tree for q.
func (p *Planner) Plan(q *ast.Query, src SourceProvider) (*Plan, error) {
	edges, err := collectEdges(q)
	if err != nil {
		return nil, err
	}
	if len(edges) > p.MaxJoinTables {
		return nil, fmt.Errorf("planner: %d join edges exceeds MaxJoinTables %d", len(edges), p.MaxJoinTables)
	}
	if len(edges) > 63 {
		return nil, fmt.Errorf("planner: %d join edges too many to enumerate", len(edges))
	}

	attempts := FlipPattern(1) << uint(len(edges))
	var best *Plan
	for pattern := FlipPattern(0); pattern < attempts; pattern++ {
		p.Debugger.Emit("attempt-start", map[string]interface{}{"flip": uint64(pattern)})
		root, cost, err := p.buildNode(q, edges, pattern, src)
		if err != nil {
			p.Debugger.Emit("plan-failed", map[string]interface{}{"flip": uint64(pattern), "error": err.Error()})
			continue
		}
		p.Debugger.Emit("plan-complete", map[string]interface{}{"flip": uint64(pattern), "cost": cost.Cost})
		if best == nil || cost.Cost < best.Cost || (cost.Cost == best.Cost && pattern < best.Flip) {
			best = &Plan{Root: root, Cost: cost.Cost, Flip: pattern}
		}
	}
	if best == nil {
		return nil, fmt.Errorf("planner: no feasible plan for table %q", q.Table)
	}
	p.Debugger.Emit("best-plan-selected", map[string]interface{}{"flip": uint64(best.Flip), "cost": best.Cost})
	return best, nil
}

// buildNode recursively builds the operator (sub)tree rooted at q, wiring
// each of q's direct Related edges as Join or HashJoin per pattern's bits,
// and returns the resulting cost estimate (spec §4.3's
// "startupCost + returnedRowsOfParent × cost" accumulation). A parent adds
// a child's returned Cost only for a HashJoin edge; a nested-loop edge is
// costed from its own probe estimate. ReturnedRows is q's scan estimate,
// capped by q's limit; the parent does not read it.
func (p *Planner) buildNode(q *ast.Query, edges []Edge, pattern FlipPattern, src SourceProvider) (fetch.Input, CostEstimate, error) {
	ts, err := src.Source(q.Table)
	if err != nil {
		return nil, CostEstimate{}, err
	}
	schema := ts.Schema()
	sort := OrderingFor(q, schema.PrimaryKey)
	filter := stripCorrelated(q.Where)
	splitKeys := splitEditKeysFor(q, edges)

	input, err := ts.Connect(sort, filter, splitKeys, p.Debugger != nil)
	if err != nil {
		return nil, CostEstimate{}, err
	}

	scan, err := p.CostModel.EstimateScan(p.DB, schema)
	if err != nil {
		return nil, CostEstimate{}, err
	}
	p.Debugger.Emit("node-cost", map[string]interface{}{"table": q.Table, "cost": scan.Cost, "rows": scan.ReturnedRows})

	total := scan.Cost
	rows := scan.ReturnedRows

	for i := range edges {
		e := edges[i]
		if e.Parent != q {
			continue
		}
		innerInput, innerCost, err := p.buildNode(e.Related.Query, edges, pattern, src)
		if err != nil {
			return nil, CostEstimate{}, err
		}
		innerTS, err := src.Source(e.Related.Query.Table)
		if err != nil {
			return nil, CostEstimate{}, err
		}

		useHash := pattern&(FlipPattern(1)<<uint(i)) != 0
		if useHash {
			input = operator.NewHashJoin(input, innerInput, e.ParentCol, e.ChildCol, e.Kind)
			total += innerCost.Cost + rows*p.CostModel.IndexLookupCost
			p.Debugger.Emit("connection-selected", map[string]interface{}{"relation": e.Related.Name, "strategy": "hash"})
		} else {
			probe, perr := p.CostModel.EstimateProbe(p.DB, innerTS.Schema(), e.ChildCol)
			if perr != nil {
				return nil, CostEstimate{}, perr
			}
			input = operator.NewJoin(input, innerInput, e.ParentCol, e.ChildCol, e.Kind)
			total += probe.StartupCost + rows*probe.Cost
			p.Debugger.Emit("connection-selected", map[string]interface{}{"relation": e.Related.Name, "strategy": "nestedloop"})
		}
		p.Debugger.Emit("constraints-propagated", map[string]interface{}{"relation": e.Related.Name, "column": e.ChildCol})
	}

	if q.Limit != nil {
		if rows == 0 || float64(*q.Limit) < rows {
			rows = float64(*q.Limit)
		}
		input = operator.NewTake(input, *q.Limit, sort, schema.PrimaryKey)
	}

	return input, CostEstimate{Cost: total, ReturnedRows: rows}, nil
}

// OrderingFor converts an AST's orderBy pairs into a PK-complete
// row.Ordering, exported so callers that build a Terminus on top of a
// planned tree (the analyzer, pkg/engine) can reuse the exact ordering the
// planner used for that query's top-level connection.
func OrderingFor(q *ast.Query, pk []string) row.Ordering {
	ord := make(row.Ordering, 0, len(q.OrderBy))
	for _, pair := range q.OrderBy {
		dir := row.Asc
		if pair.Direction == "desc" {
			dir = row.Desc
		}
		ord = append(ord, row.OrderKey{Column: pair.Column, Direction: dir})
	}
	return ord.WithPK(pk)
}

// splitEditKeysFor returns the columns an edit to q's rows must be split on
// (removed+re-added rather than forwarded in place): every sort key, since
// an edit moving a row across its ordering position must be observed as a
// remove-then-add downstream, plus every join column q participates in,
// since an edit changing a join column can change which rows it matches.
func splitEditKeysFor(q *ast.Query, edges []Edge) map[string]bool {
	keys := map[string]bool{}
	for _, pair := range q.OrderBy {
		keys[pair.Column] = true
	}
	for _, e := range edges {
		if e.Parent == q {
			keys[e.ParentCol] = true
		}
		if e.Related.Query == q {
			keys[e.ChildCol] = true
		}
	}
	return keys
}

// stripCorrelated drops CorrelatedSubqueryCondition nodes from cond before
// it is handed to a TableSource connection as a filter: those nodes are
// resolved by the Join/HashJoin operators that buildNode wires in for each
// edge, not by per-row SQL/in-memory evaluation. When a correlated
// condition appears under an OR or NOT it can't be split conjunct-wise
// without changing meaning, so the whole local filter is dropped in that
// rare case and the join operator's own Semi/Anti result becomes the only
// check for that relation — mirroring SplitSubqueries' existing
// all-or-nothing fallback for non-AND subquery nodes.
func stripCorrelated(cond ast.Condition) ast.Condition {
	if cond == nil || !hasCorrelated(cond) {
		return cond
	}
	and, ok := cond.(*ast.CompoundCondition)
	if !ok || and.Op != ast.BoolAnd {
		return nil
	}
	var kept []ast.Condition
	for _, sub := range and.Conditions {
		if !hasCorrelated(sub) {
			kept = append(kept, sub)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	default:
		return &ast.CompoundCondition{Op: ast.BoolAnd, Conditions: kept}
	}
}

func hasCorrelated(cond ast.Condition) bool {
	switch c := cond.(type) {
	case nil:
		return false
	case *ast.CorrelatedSubqueryCondition:
		return true
	case *ast.CompoundCondition:
		for _, sub := range c.Conditions {
			if hasCorrelated(sub) {
				return true
			}
		}
		return false
	case *ast.NotCondition:
		return hasCorrelated(c.Condition)
	default:
		return false
	}
}
