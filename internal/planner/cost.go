// Package planner implements the join planner of spec §4.3: cost
// estimation, top-down constraint propagation, and flip-pattern
// enumeration over the join edges implied by an AST's relationship tree.
//
// Grounded on the teacher's internal/optimizer/{cost_model.go,
// optimizer.go,statistics.go}: same cost-accumulation shape (startup cost
// plus a per-row cost multiplied by the parent's estimated row count), same
// "enumerate candidate plans, cost each, pick the minimum" outer loop —
// retargeted from the teacher's page-based seq/index-scan cost formulas
// onto SQLite's own row-count and distinct-count statistics, and from
// dynamic-programming join-order search onto bitmask flip-pattern
// enumeration per spec §4.3.
package planner

import (
	"database/sql"
	"fmt"

	"github.com/syncbase/ivmcore/internal/row"
)

// CostEstimate is spec §4.3's per-connection cost record.
type CostEstimate struct {
	StartupCost  float64
	ScanEst      float64
	Cost         float64
	ReturnedRows float64
	Selectivity  float64
	Limit        *int
}

// CostModel holds the tunable per-operation costs a connection's
// CostEstimate is built from (spec §4.3 "cost estimation").
type CostModel struct {
	SeqScanRowCost   float64
	IndexLookupCost  float64
	IndexStartupCost float64
}

// EstimateScan estimates the cost of reading schema unconstrained.
func (cm CostModel) EstimateScan(db *sql.DB, schema *row.Schema) (CostEstimate, error) {
	rows, err := tableRowCount(db, schema.Name)
	if err != nil {
		return CostEstimate{}, err
	}
	return CostEstimate{
		StartupCost:  0,
		ScanEst:      rows,
		Cost:         rows * cm.SeqScanRowCost,
		ReturnedRows: rows,
		Selectivity:  1,
	}, nil
}

// EstimateProbe estimates the cost of probing schema by an equality
// constraint on col: a unique index covering col makes this a cheap
// point lookup; otherwise it falls back to a selectivity estimate derived
// from the column's distinct-value count.
func (cm CostModel) EstimateProbe(db *sql.DB, schema *row.Schema, col string) (CostEstimate, error) {
	rows, err := tableRowCount(db, schema.Name)
	if err != nil {
		return CostEstimate{}, err
	}
	if rows == 0 {
		return CostEstimate{StartupCost: cm.IndexStartupCost, Selectivity: 1}, nil
	}
	if indexCovers(schema, col) {
		return CostEstimate{
			StartupCost:  cm.IndexStartupCost,
			Cost:         cm.IndexLookupCost,
			ReturnedRows: 1,
			Selectivity:  1 / rows,
		}, nil
	}
	distinct, err := columnDistinctCount(db, schema.Name, col)
	if err != nil {
		return CostEstimate{}, err
	}
	if distinct == 0 {
		distinct = 1
	}
	selectivity := 1 / distinct
	return CostEstimate{
		StartupCost:  0,
		Cost:         rows * cm.SeqScanRowCost,
		ReturnedRows: rows * selectivity,
		Selectivity:  selectivity,
	}, nil
}

func indexCovers(schema *row.Schema, col string) bool {
	for _, idx := range schema.UniqueIndexes {
		if len(idx) == 1 && idx[0] == col {
			return true
		}
	}
	for _, c := range schema.PrimaryKey {
		if len(schema.PrimaryKey) == 1 && c == col {
			return true
		}
	}
	return false
}

func tableRowCount(db *sql.DB, table string) (float64, error) {
	var n int64
	err := db.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM "%s"`, sqlEscape(table))).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("planner: row count for %q: %w", table, err)
	}
	return float64(n), nil
}

func columnDistinctCount(db *sql.DB, table, col string) (float64, error) {
	var n int64
	query := fmt.Sprintf(`SELECT COUNT(DISTINCT "%s") FROM "%s"`, sqlEscape(col), sqlEscape(table))
	if err := db.QueryRow(query).Scan(&n); err != nil {
		return 0, fmt.Errorf("planner: distinct count for %q.%q: %w", table, col, err)
	}
	return float64(n), nil
}

func sqlEscape(ident string) string {
	out := make([]byte, 0, len(ident))
	for i := 0; i < len(ident); i++ {
		if ident[i] == '"' {
			out = append(out, '"')
		}
		out = append(out, ident[i])
	}
	return string(out)
}
