package planner

import (
	"fmt"

	"github.com/syncbase/ivmcore/internal/ast"
	"github.com/syncbase/ivmcore/internal/operator"
)

// Edge is one join relationship discovered in an AST's Related tree: a
// parent query joined to one related query on a pair of columns, with a
// Kind derived from whether the parent's own Where contains a correlated
// EXISTS/NOT EXISTS predicate over this same relation (spec §4.2 "Semi/anti
// variants exist").
type Edge struct {
	Parent    *ast.Query
	Related   *ast.RelatedQuery
	ParentCol string
	ChildCol  string
	Kind      operator.Kind
}

// collectEdges walks q's Related tree (already in deterministic,
// alphabetically-sorted order from Query.UnmarshalJSON) and returns one
// Edge per relationship, recursively.
func collectEdges(q *ast.Query) ([]Edge, error) {
	var edges []Edge
	var walk func(*ast.Query) error
	walk = func(cur *ast.Query) error {
		for _, rel := range cur.Related {
			if rel.Query == nil {
				continue
			}
			parentCol, childCol, ok := findJoinColumns(rel.Query.Where, cur.Table, rel.Query.Table)
			if !ok {
				return fmt.Errorf("planner: cannot infer join columns for relation %q (%s -> %s)", rel.Name, cur.Table, rel.Query.Table)
			}
			kind := operator.Inner
			if negated, found := findCorrelated(cur.Where, rel); found {
				if negated {
					kind = operator.Anti
				} else {
					kind = operator.Semi
				}
			}
			edges = append(edges, Edge{Parent: cur, Related: rel, ParentCol: parentCol, ChildCol: childCol, Kind: kind})
			if err := walk(rel.Query); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(q); err != nil {
		return nil, err
	}
	return edges, nil
}

// findJoinColumns scans cond for an equi-join predicate between parentTable
// and childTable, recursing through AND/OR/NOT nodes.
func findJoinColumns(cond ast.Condition, parentTable, childTable string) (string, string, bool) {
	switch c := cond.(type) {
	case nil:
		return "", "", false
	case *ast.SimpleCondition:
		l, r, ok := c.ColumnEqColumn()
		if !ok {
			return "", "", false
		}
		switch {
		case l.Table == parentTable && r.Table == childTable:
			return l.Name, r.Name, true
		case l.Table == childTable && r.Table == parentTable:
			return r.Name, l.Name, true
		default:
			return "", "", false
		}
	case *ast.CompoundCondition:
		for _, sub := range c.Conditions {
			if pc, cc, ok := findJoinColumns(sub, parentTable, childTable); ok {
				return pc, cc, true
			}
		}
		return "", "", false
	case *ast.NotCondition:
		return findJoinColumns(c.Condition, parentTable, childTable)
	default:
		return "", "", false
	}
}

// findCorrelated reports whether cond contains a CorrelatedSubqueryCondition
// referencing rel, and its Negated flag.
func findCorrelated(cond ast.Condition, rel *ast.RelatedQuery) (bool, bool) {
	switch c := cond.(type) {
	case nil:
		return false, false
	case *ast.CorrelatedSubqueryCondition:
		if c.Related == rel {
			return c.Negated, true
		}
		return false, false
	case *ast.CompoundCondition:
		for _, sub := range c.Conditions {
			if neg, found := findCorrelated(sub, rel); found {
				return neg, true
			}
		}
		return false, false
	case *ast.NotCondition:
		neg, found := findCorrelated(c.Condition, rel)
		if found {
			return !neg, true
		}
		return false, false
	default:
		return false, false
	}
}
