package ast

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Operator is one of the comparison operators a SimpleCondition may use
// (spec §3): {=, !=, <, <=, >, >=, LIKE, IN}.
type Operator string

const (
	OpEq   Operator = "="
	OpNeq  Operator = "!="
	OpLt   Operator = "<"
	OpLte  Operator = "<="
	OpGt   Operator = ">"
	OpGte  Operator = ">="
	OpLike Operator = "LIKE"
	OpIn   Operator = "IN"
)

// Operand is either a column reference or a literal value.
type Operand interface {
	Node
	operandNode()
}

// ColumnOperand references a column, optionally qualified by table (used
// when a predicate compares two joined tables' columns, e.g. a.x = b.y).
type ColumnOperand struct {
	Table string `json:"table,omitempty"`
	Name  string `json:"name"`
}

func (c *ColumnOperand) operandNode()       {}
func (c *ColumnOperand) NodeType() string   { return "column" }
func (c *ColumnOperand) String() string {
	if c.Table != "" {
		return c.Table + "." + c.Name
	}
	return c.Name
}

// QualifiedName returns "table.column" if qualified, else just the column.
func (c *ColumnOperand) QualifiedName() string { return c.String() }

// LiteralOperand is a literal value drawn from row.Value's sum type.
type LiteralOperand struct {
	Value interface{} `json:"value"`
}

func (l *LiteralOperand) operandNode()     {}
func (l *LiteralOperand) NodeType() string { return "literal" }
func (l *LiteralOperand) String() string   { return fmt.Sprintf("%v", l.Value) }

// Condition is a tree of simple predicates and boolean connectives (spec
// §3). Conditions may contain subqueries; a Condition with none anywhere in
// its tree is a NoSubqueryCondition and may be pushed into SQL wholesale.
type Condition interface {
	Node
	conditionNode()
	// HasSubquery reports whether this node or any descendant references a
	// correlated subquery (spec's NoSubqueryCondition split, §4.1).
	HasSubquery() bool
}

// SimpleCondition compares a column to a literal or another column.
type SimpleCondition struct {
	Left  Operand
	Op    Operator
	Right Operand
}

func (s *SimpleCondition) conditionNode()    {}
func (s *SimpleCondition) HasSubquery() bool { return false }
func (s *SimpleCondition) NodeType() string  { return "simple" }
func (s *SimpleCondition) String() string {
	return fmt.Sprintf("%s %s %s", s.Left, s.Op, s.Right)
}

// ColumnEqColumn reports whether this is an equi-join predicate between two
// distinctly-tabled columns, and returns the two ColumnOperands if so. Used
// by constraint propagation (spec §4.3) to pin a probed connection.
func (s *SimpleCondition) ColumnEqColumn() (*ColumnOperand, *ColumnOperand, bool) {
	if s.Op != OpEq {
		return nil, nil, false
	}
	l, lok := s.Left.(*ColumnOperand)
	r, rok := s.Right.(*ColumnOperand)
	if lok && rok && l.Table != "" && r.Table != "" && l.Table != r.Table {
		return l, r, true
	}
	return nil, nil, false
}

// BoolOp is the connective used by a CompoundCondition.
type BoolOp string

const (
	BoolAnd BoolOp = "and"
	BoolOr  BoolOp = "or"
)

// CompoundCondition is an AND/OR connective over two or more conditions.
type CompoundCondition struct {
	Op         BoolOp
	Conditions []Condition
}

func (c *CompoundCondition) conditionNode() {}
func (c *CompoundCondition) HasSubquery() bool {
	for _, sub := range c.Conditions {
		if sub.HasSubquery() {
			return true
		}
	}
	return false
}
func (c *CompoundCondition) NodeType() string { return string(c.Op) }
func (c *CompoundCondition) String() string {
	s := "("
	for i, sub := range c.Conditions {
		if i > 0 {
			s += " " + string(c.Op) + " "
		}
		s += sub.String()
	}
	return s + ")"
}

// NotCondition negates a single condition.
type NotCondition struct {
	Condition Condition
}

func (n *NotCondition) conditionNode()     {}
func (n *NotCondition) HasSubquery() bool  { return n.Condition.HasSubquery() }
func (n *NotCondition) NodeType() string   { return "not" }
func (n *NotCondition) String() string     { return "NOT " + n.Condition.String() }

// CorrelatedSubqueryCondition is an EXISTS-style predicate correlated to a
// related query; its presence is what excludes a Condition tree from being
// a NoSubqueryCondition.
type CorrelatedSubqueryCondition struct {
	Related *RelatedQuery
	Negated bool
}

func (c *CorrelatedSubqueryCondition) conditionNode()    {}
func (c *CorrelatedSubqueryCondition) HasSubquery() bool { return true }
func (c *CorrelatedSubqueryCondition) NodeType() string  { return "correlated-subquery" }
func (c *CorrelatedSubqueryCondition) String() string {
	if c.Negated {
		return "NOT EXISTS(" + c.Related.Name + ")"
	}
	return "EXISTS(" + c.Related.Name + ")"
}

// IsNoSubqueryCondition reports whether cond is subquery-free, i.e. safe to
// retain as a NoSubqueryCondition pushed into SQL wholesale (spec §3, §4.1).
func IsNoSubqueryCondition(cond Condition) bool {
	return cond == nil || !cond.HasSubquery()
}

// SplitSubqueries walks cond and returns (retained, residual): for a
// top-level AND, retained holds the conjuncts that touch no subquery and
// residual the ones that do; any other condition that contains a subquery
// (OR, NOT, or a bare subquery) is not split and goes wholly to residual.
// residual is what must still be evaluated in memory. fullyAppliedFilters
// (spec §4.1) is true iff residual is nil.
func SplitSubqueries(cond Condition) (retained, residual Condition) {
	if cond == nil {
		return nil, nil
	}
	if !cond.HasSubquery() {
		return cond, nil
	}
	and, ok := cond.(*CompoundCondition)
	if !ok || and.Op != BoolAnd {
		// OR/NOT/bare subquery conditions with a subquery can't be split
		// conjunct-wise without changing semantics; the whole thing becomes
		// residual.
		return nil, cond
	}
	var retainedConjuncts, residualConjuncts []Condition
	for _, sub := range and.Conditions {
		if sub.HasSubquery() {
			residualConjuncts = append(residualConjuncts, sub)
		} else {
			retainedConjuncts = append(retainedConjuncts, sub)
		}
	}
	return compoundOrSingle(BoolAnd, retainedConjuncts), compoundOrSingle(BoolAnd, residualConjuncts)
}

func compoundOrSingle(op BoolOp, conds []Condition) Condition {
	switch len(conds) {
	case 0:
		return nil
	case 1:
		return conds[0]
	default:
		return &CompoundCondition{Op: op, Conditions: conds}
	}
}

// --- JSON decoding ---

type conditionEnvelope struct {
	Type       string            `json:"type"`
	Left       json.RawMessage   `json:"left,omitempty"`
	Op         Operator          `json:"op,omitempty"`
	Right      json.RawMessage   `json:"right,omitempty"`
	Conditions []json.RawMessage `json:"conditions,omitempty"`
	Condition  json.RawMessage   `json:"condition,omitempty"`
	Related    *RelatedQuery     `json:"related,omitempty"`
	Negated    bool              `json:"negated,omitempty"`
}

type operandEnvelope struct {
	Type  string      `json:"type"`
	Table string      `json:"table,omitempty"`
	Name  string      `json:"name,omitempty"`
	Value interface{} `json:"value,omitempty"`
}

// UnmarshalCondition decodes one Condition node from its tagged JSON form.
func UnmarshalCondition(data []byte) (Condition, error) {
	if string(data) == "null" {
		return nil, nil
	}
	var env conditionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("ast: decoding condition: %w", err)
	}
	switch env.Type {
	case "simple":
		left, err := unmarshalOperand(env.Left)
		if err != nil {
			return nil, err
		}
		right, err := unmarshalOperand(env.Right)
		if err != nil {
			return nil, err
		}
		return &SimpleCondition{Left: left, Op: env.Op, Right: right}, nil
	case "and", "or":
		op := BoolOp(env.Type)
		conds := make([]Condition, 0, len(env.Conditions))
		for _, raw := range env.Conditions {
			c, err := UnmarshalCondition(raw)
			if err != nil {
				return nil, err
			}
			conds = append(conds, c)
		}
		return &CompoundCondition{Op: op, Conditions: conds}, nil
	case "not":
		inner, err := UnmarshalCondition(env.Condition)
		if err != nil {
			return nil, err
		}
		return &NotCondition{Condition: inner}, nil
	case "correlated-subquery":
		return &CorrelatedSubqueryCondition{Related: env.Related, Negated: env.Negated}, nil
	default:
		return nil, fmt.Errorf("ast: unknown condition type %q", env.Type)
	}
}

func unmarshalOperand(data []byte) (Operand, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, fmt.Errorf("ast: operand is required")
	}
	var env operandEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("ast: decoding operand: %w", err)
	}
	switch env.Type {
	case "column":
		return &ColumnOperand{Table: env.Table, Name: env.Name}, nil
	case "literal":
		return &LiteralOperand{Value: env.Value}, nil
	default:
		return nil, fmt.Errorf("ast: unknown operand type %q", env.Type)
	}
}

// UnmarshalJSON implements custom decoding for Query, whose Where field is
// the polymorphic Condition tree.
func (q *Query) UnmarshalJSON(data []byte) error {
	var raw struct {
		Table   string            `json:"table"`
		Where   json.RawMessage   `json:"where,omitempty"`
		OrderBy [][2]string       `json:"orderBy,omitempty"`
		Limit   *int              `json:"limit,omitempty"`
		Related map[string]*Query `json:"related,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("ast: decoding query: %w", err)
	}
	q.Table = raw.Table
	q.Limit = raw.Limit
	if len(raw.Where) > 0 {
		cond, err := UnmarshalCondition(raw.Where)
		if err != nil {
			return err
		}
		q.Where = cond
	}
	for _, pair := range raw.OrderBy {
		q.OrderBy = append(q.OrderBy, OrderPair{Column: pair[0], Direction: pair[1]})
	}
	names := make([]string, 0, len(raw.Related))
	for name := range raw.Related {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		q.Related = append(q.Related, &RelatedQuery{Name: name, Query: raw.Related[name]})
	}
	if q.Where != nil {
		relinkCorrelated(q.Where, q.Related)
	}
	return nil
}

// relinkCorrelated repoints every CorrelatedSubqueryCondition.Related
// reachable from cond at the matching *RelatedQuery in related, by name.
// UnmarshalCondition decodes one condition node at a time and has no view
// of the enclosing query's Related list, so it builds a standalone
// RelatedQuery carrying only a name; planner edge-matching (spec §4.3)
// relies on pointer identity between that field and an entry in
// Query.Related, so this step is required before a decoded Query is safe
// to plan.
func relinkCorrelated(cond Condition, related []*RelatedQuery) {
	switch c := cond.(type) {
	case *CompoundCondition:
		for _, sub := range c.Conditions {
			relinkCorrelated(sub, related)
		}
	case *NotCondition:
		relinkCorrelated(c.Condition, related)
	case *CorrelatedSubqueryCondition:
		if c.Related == nil {
			return
		}
		for _, r := range related {
			if r.Name == c.Related.Name {
				c.Related = r
				return
			}
		}
	}
}
