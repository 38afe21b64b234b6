package ast

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CompileSQL renders a NoSubqueryCondition into a parameterised SQL WHERE
// fragment (without the "WHERE" keyword) plus its positional arguments, for
// TableSource to push into SELECT (spec §4.1 step 1). Passing a condition
// that still has a subquery is a caller error — SplitSubqueries must run
// first.
func CompileSQL(cond Condition) (string, []interface{}, error) {
	if cond == nil {
		return "", nil, nil
	}
	if cond.HasSubquery() {
		return "", nil, fmt.Errorf("ast: cannot compile a condition containing a subquery to SQL")
	}
	var args []interface{}
	sql, err := compileNode(cond, &args)
	if err != nil {
		return "", nil, err
	}
	return sql, args, nil
}

func compileNode(cond Condition, args *[]interface{}) (string, error) {
	switch c := cond.(type) {
	case *SimpleCondition:
		left, err := compileOperand(c.Left, args)
		if err != nil {
			return "", err
		}
		right, err := compileOperand(c.Right, args)
		if err != nil {
			return "", err
		}
		op, err := sqlOperator(c.Op)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s", left, op, right), nil
	case *CompoundCondition:
		parts := make([]string, len(c.Conditions))
		for i, sub := range c.Conditions {
			s, err := compileNode(sub, args)
			if err != nil {
				return "", err
			}
			parts[i] = "(" + s + ")"
		}
		joiner := " AND "
		if c.Op == BoolOr {
			joiner = " OR "
		}
		return strings.Join(parts, joiner), nil
	case *NotCondition:
		inner, err := compileNode(c.Condition, args)
		if err != nil {
			return "", err
		}
		return "NOT (" + inner + ")", nil
	default:
		return "", fmt.Errorf("ast: cannot compile condition node %T to SQL", cond)
	}
}

func compileOperand(op Operand, args *[]interface{}) (string, error) {
	switch o := op.(type) {
	case *ColumnOperand:
		if o.Table != "" {
			return quoteIdentForSQL(o.Table) + "." + quoteIdentForSQL(o.Name), nil
		}
		return quoteIdentForSQL(o.Name), nil
	case *LiteralOperand:
		if list, ok := o.Value.([]interface{}); ok {
			placeholders := make([]string, len(list))
			for i, v := range list {
				*args = append(*args, encodeLiteral(v))
				placeholders[i] = "?"
			}
			return "(" + strings.Join(placeholders, ", ") + ")", nil
		}
		*args = append(*args, encodeLiteral(o.Value))
		return "?", nil
	default:
		return "", fmt.Errorf("ast: unknown operand %T", op)
	}
}

func encodeLiteral(v interface{}) interface{} {
	switch v.(type) {
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		return string(b)
	default:
		return v
	}
}

func sqlOperator(op Operator) (string, error) {
	switch op {
	case OpEq:
		return "=", nil
	case OpNeq:
		return "!=", nil
	case OpLt:
		return "<", nil
	case OpLte:
		return "<=", nil
	case OpGt:
		return ">", nil
	case OpGte:
		return ">=", nil
	case OpLike:
		return "LIKE", nil
	case OpIn:
		return "IN", nil
	default:
		return "", fmt.Errorf("ast: unknown operator %q", op)
	}
}

func quoteIdentForSQL(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
