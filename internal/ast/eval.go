package ast

import (
	"fmt"
	"strings"

	"github.com/syncbase/ivmcore/internal/row"
)

// Eval evaluates cond against r, used for the in-memory residual predicate
// a TableSource connection applies after SQL has done what it can (spec
// §4.1 "Fetching algorithm" step 3). Eval never reaches a
// CorrelatedSubqueryCondition node in the TableSource path — subqueries are
// resolved by the operator graph before a leaf residual is built — so that
// case returns an error rather than silently treating it as true/false.
func Eval(cond Condition, r row.Row) (bool, error) {
	if cond == nil {
		return true, nil
	}
	switch c := cond.(type) {
	case *SimpleCondition:
		return evalSimple(c, r)
	case *CompoundCondition:
		switch c.Op {
		case BoolAnd:
			for _, sub := range c.Conditions {
				ok, err := Eval(sub, r)
				if err != nil || !ok {
					return false, err
				}
			}
			return true, nil
		case BoolOr:
			for _, sub := range c.Conditions {
				ok, err := Eval(sub, r)
				if err != nil {
					return false, err
				}
				if ok {
					return true, nil
				}
			}
			return false, nil
		}
		return false, fmt.Errorf("ast: unknown bool op %q", c.Op)
	case *NotCondition:
		ok, err := Eval(c.Condition, r)
		return !ok, err
	case *CorrelatedSubqueryCondition:
		return false, fmt.Errorf("ast: cannot evaluate correlated subquery against a bare row")
	default:
		return false, fmt.Errorf("ast: unknown condition node %T", cond)
	}
}

func evalSimple(c *SimpleCondition, r row.Row) (bool, error) {
	left, err := resolveOperand(c.Left, r)
	if err != nil {
		return false, err
	}
	right, err := resolveOperand(c.Right, r)
	if err != nil {
		return false, err
	}
	return applyOp(c.Op, left, right)
}

func resolveOperand(op Operand, r row.Row) (row.Value, error) {
	switch o := op.(type) {
	case *ColumnOperand:
		v, ok := r.Get(o.Name)
		if !ok {
			return nil, fmt.Errorf("ast: row has no column %q", o.Name)
		}
		return v, nil
	case *LiteralOperand:
		return o.Value, nil
	default:
		return nil, fmt.Errorf("ast: unknown operand %T", op)
	}
}

func applyOp(op Operator, left, right row.Value) (bool, error) {
	switch op {
	case OpEq:
		return valuesEqual(left, right), nil
	case OpNeq:
		return !valuesEqual(left, right), nil
	case OpLt, OpLte, OpGt, OpGte:
		return compareOrdered(op, left, right)
	case OpLike:
		ls, lok := left.(string)
		rs, rok := right.(string)
		if !lok || !rok {
			return false, fmt.Errorf("ast: LIKE requires string operands")
		}
		return likeMatch(ls, rs), nil
	case OpIn:
		set, ok := right.([]interface{})
		if !ok {
			return false, fmt.Errorf("ast: IN requires a list operand")
		}
		for _, v := range set {
			if valuesEqual(left, v) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("ast: unknown operator %q", op)
	}
}

func valuesEqual(a, b row.Value) bool {
	af, aok := numeric(a)
	bf, bok := numeric(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}

func numeric(v row.Value) (float64, bool) {
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

func compareOrdered(op Operator, left, right row.Value) (bool, error) {
	lf, lok := numeric(left)
	rf, rok := numeric(right)
	if lok && rok {
		switch op {
		case OpLt:
			return lf < rf, nil
		case OpLte:
			return lf <= rf, nil
		case OpGt:
			return lf > rf, nil
		default:
			return lf >= rf, nil
		}
	}
	ls, lsok := left.(string)
	rs, rsok := right.(string)
	if lsok && rsok {
		switch op {
		case OpLt:
			return ls < rs, nil
		case OpLte:
			return ls <= rs, nil
		case OpGt:
			return ls > rs, nil
		default:
			return ls >= rs, nil
		}
	}
	return false, fmt.Errorf("ast: cannot order-compare %T and %T", left, right)
}

// likeMatch implements SQL LIKE's '%' and '_' wildcards against a literal
// pattern (no escape-character support, matching the common case pushed
// into SQLite verbatim when the predicate is retained).
func likeMatch(s, pattern string) bool {
	return likeMatchRunes([]rune(s), []rune(pattern))
}

func likeMatchRunes(s, p []rune) bool {
	if len(p) == 0 {
		return len(s) == 0
	}
	switch p[0] {
	case '%':
		if likeMatchRunes(s, p[1:]) {
			return true
		}
		for i := range s {
			if likeMatchRunes(s[i+1:], p[1:]) {
				return true
			}
		}
		return false
	case '_':
		if len(s) == 0 {
			return false
		}
		return likeMatchRunes(s[1:], p[1:])
	default:
		if len(s) == 0 || !strings.EqualFold(string(s[0]), string(p[0])) {
			return false
		}
		return likeMatchRunes(s[1:], p[1:])
	}
}
