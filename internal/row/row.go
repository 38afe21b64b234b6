// Package row defines the value model shared by every stage of the IVM
// pipeline: rows, schemas, orderings and the comparator that gives fetch
// iteration a total order.
package row

import (
	"fmt"
	"sort"
)

// Value is the sum type a column may hold: nil, bool, float64, string, or a
// JSON-compatible structured value (map[string]interface{} / []interface{}).
type Value = interface{}

// Row is an ordered mapping from column name to Value. Rows are immutable
// once produced; callers that need to mutate must Clone first.
type Row struct {
	cols   []string
	values map[string]Value
}

// New builds a Row from column order and a value map. The map is copied so
// the returned Row is safe to retain past the caller's own mutations.
func New(cols []string, values map[string]Value) Row {
	values2 := make(map[string]Value, len(values))
	for _, c := range cols {
		values2[c] = values[c]
	}
	return Row{cols: cols, values: values2}
}

// Get returns the value at column name, and whether that column exists.
func (r Row) Get(col string) (Value, bool) {
	v, ok := r.values[col]
	return v, ok
}

// MustGet returns the value at column name, panicking if absent. Used where
// the caller has already validated the schema (e.g. sort-key extraction).
func (r Row) MustGet(col string) Value {
	v, ok := r.values[col]
	if !ok {
		panic(fmt.Sprintf("row: missing column %q", col))
	}
	return v
}

// Columns returns the row's column order.
func (r Row) Columns() []string { return r.cols }

// Clone returns a deep-enough copy (the value map is copied; structured
// JSON values are shared, matching Row's documented immutability).
func (r Row) Clone() Row {
	cols := make([]string, len(r.cols))
	copy(cols, r.cols)
	values := make(map[string]Value, len(r.values))
	for k, v := range r.values {
		values[k] = v
	}
	return Row{cols: cols, values: values}
}

// ColumnType enumerates the column types allowed by a Schema.
type ColumnType int

const (
	TypeBoolean ColumnType = iota
	TypeNumber
	TypeString
	TypeNull
	TypeJSON
)

func (t ColumnType) String() string {
	switch t {
	case TypeBoolean:
		return "boolean"
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	case TypeJSON:
		return "json"
	default:
		return "null"
	}
}

// Column describes one typed column of a Schema.
type Column struct {
	Name string
	Type ColumnType
}

// Schema is a named table: typed columns, a primary key, and zero or more
// unique indexes. The primary key must correspond to at least one unique
// index (Validate enforces this).
type Schema struct {
	Name          string
	Columns       []Column
	PrimaryKey    []string   // non-empty, ordered
	UniqueIndexes [][]string // each a set of columns, PK included by convention
}

// Validate checks the structural invariants from spec §3.
func (s *Schema) Validate() error {
	if len(s.PrimaryKey) == 0 {
		return fmt.Errorf("schema %q: primary key must be non-empty", s.Name)
	}
	colSet := make(map[string]bool, len(s.Columns))
	for _, c := range s.Columns {
		colSet[c.Name] = true
	}
	for _, pk := range s.PrimaryKey {
		if !colSet[pk] {
			return fmt.Errorf("schema %q: primary key column %q not declared", s.Name, pk)
		}
	}
	if !s.hasUniqueIndexCovering(s.PrimaryKey) {
		return fmt.Errorf("schema %q: primary key has no covering unique index", s.Name)
	}
	return nil
}

func (s *Schema) hasUniqueIndexCovering(cols []string) bool {
	want := make(map[string]bool, len(cols))
	for _, c := range cols {
		want[c] = true
	}
	for _, idx := range s.UniqueIndexes {
		if len(idx) != len(want) {
			continue
		}
		got := make(map[string]bool, len(idx))
		for _, c := range idx {
			got[c] = true
		}
		match := true
		for c := range want {
			if !got[c] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// ColumnNames returns the schema's columns in declaration order.
func (s *Schema) ColumnNames() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Name
	}
	return out
}

// Direction is a sort direction.
type Direction int

const (
	Asc Direction = iota
	Desc
)

// OrderKey is one (column, direction) pair in an Ordering.
type OrderKey struct {
	Column    string
	Direction Direction
}

// Ordering is a non-empty sequence of OrderKeys.
type Ordering []OrderKey

// PKComplete reports whether ord's columns are a superset of schema's primary
// key — the precondition every sort used by the pipeline must satisfy so
// that ordering is total (spec §3 "Ordering").
func (ord Ordering) PKComplete(pk []string) bool {
	seen := make(map[string]bool, len(ord))
	for _, k := range ord {
		seen[k.Column] = true
	}
	for _, c := range pk {
		if !seen[c] {
			return false
		}
	}
	return true
}

// WithPK extends ord with any primary-key columns not already present, each
// appended ascending. Connections build their working ordering this way so
// ties are always broken by primary key (spec §3 invariants).
func (ord Ordering) WithPK(pk []string) Ordering {
	present := make(map[string]bool, len(ord))
	for _, k := range ord {
		present[k.Column] = true
	}
	out := make(Ordering, len(ord), len(ord)+len(pk))
	copy(out, ord)
	for _, c := range pk {
		if !present[c] {
			out = append(out, OrderKey{Column: c, Direction: Asc})
		}
	}
	return out
}

// Compare returns -1, 0 or 1 comparing a and b under ord, lexicographically.
func (ord Ordering) Compare(a, b Row) int {
	for _, k := range ord {
		av, _ := a.Get(k.Column)
		bv, _ := b.Get(k.Column)
		c := compareValues(av, bv)
		if c != 0 {
			if k.Direction == Desc {
				c = -c
			}
			return c
		}
	}
	return 0
}

// Less adapts Compare for sort.Interface-style callers.
func (ord Ordering) Less(a, b Row) bool { return ord.Compare(a, b) < 0 }

// SortRows sorts rows in place under ord. Used by in-memory fixtures and by
// TableSource test doubles; the real SQLite path pushes ORDER BY into SQL.
func SortRows(rows []Row, ord Ordering) {
	sort.SliceStable(rows, func(i, j int) bool { return ord.Less(rows[i], rows[j]) })
}

// compareValues orders the dynamic value types spec §3 allows. nil sorts
// first; booleans, numbers and strings compare natively; anything else
// (structured JSON) compares by its %v text form, which is stable but not
// semantically meaningful — such columns are not expected in sort keys.
func compareValues(a, b Value) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}
	switch av := a.(type) {
	case bool:
		bv, ok := b.(bool)
		if !ok {
			break
		}
		if av == bv {
			return 0
		}
		if !av {
			return -1
		}
		return 1
	case float64:
		bv, ok := toFloat(b)
		if !ok {
			break
		}
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case int64:
		return compareValues(float64(av), b)
	case string:
		bv, ok := b.(string)
		if !ok {
			break
		}
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	}
	as, bs := fmt.Sprintf("%v", a), fmt.Sprintf("%v", b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

func toFloat(v Value) (float64, bool) {
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
