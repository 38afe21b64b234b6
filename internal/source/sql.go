package source

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/syncbase/ivmcore/internal/row"
)

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteColumns(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}

func whereForKey(key map[string]row.Value) (string, []interface{}) {
	cols := make([]string, 0, len(key))
	for c := range key {
		cols = append(cols, c)
	}
	// deterministic ordering keeps generated SQL (and thus statement-cache
	// keys) stable across calls with the same key set.
	sortStrings(cols)
	clauses := make([]string, len(cols))
	args := make([]interface{}, len(cols))
	for i, c := range cols {
		clauses[i] = quoteIdent(c) + " = ?"
		args[i] = encodeValue(key[c])
	}
	return strings.Join(clauses, " AND "), args
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// encodeValue converts a row.Value into a database/sql driver argument.
// Structured JSON values are marshalled to text; everything else passes
// through natively so SQLite's type affinity rules apply.
func encodeValue(v row.Value) interface{} {
	switch val := v.(type) {
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(val)
		if err != nil {
			return nil
		}
		return string(b)
	default:
		return val
	}
}

// scanRow reads the current row of rows into a row.Row, converting each
// column via schema metadata. Numbers that don't fit in double precision
// fail loudly (spec §4.1 "Fetching algorithm" step 2), as does malformed
// JSON in a json-typed column (spec §4.1 "Failure semantics").
func scanRow(rows *sql.Rows, schema *row.Schema, cols []string) (row.Row, error) {
	raw := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return row.Row{}, fmt.Errorf("source %q: scan: %w", schema.Name, err)
	}

	colType := make(map[string]row.ColumnType, len(schema.Columns))
	for _, c := range schema.Columns {
		colType[c.Name] = c.Type
	}

	values := make(map[string]row.Value, len(cols))
	for i, col := range cols {
		v, err := convertSQLiteValue(schema.Name, col, colType[col], raw[i])
		if err != nil {
			return row.Row{}, err
		}
		values[col] = v
	}
	return row.New(cols, values), nil
}

func convertSQLiteValue(table, col string, typ row.ColumnType, v interface{}) (row.Value, error) {
	if v == nil {
		return nil, nil
	}
	switch typ {
	case row.TypeBoolean:
		switch n := v.(type) {
		case int64:
			return n != 0, nil
		case bool:
			return n, nil
		}
		return nil, fmt.Errorf("source: %s.%s: expected boolean, got %T", table, col, v)
	case row.TypeNumber:
		switch n := v.(type) {
		case int64:
			f := float64(n)
			if int64(f) != n {
				return nil, fmt.Errorf("source: %s.%s: integer %d does not fit in double precision", table, col, n)
			}
			return f, nil
		case float64:
			if math.IsNaN(n) || math.IsInf(n, 0) {
				return nil, fmt.Errorf("source: %s.%s: non-finite number", table, col)
			}
			return n, nil
		}
		return nil, fmt.Errorf("source: %s.%s: expected number, got %T", table, col, v)
	case row.TypeJSON:
		s, ok := v.(string)
		if !ok {
			b, ok2 := v.([]byte)
			if !ok2 {
				return nil, fmt.Errorf("source: %s.%s: expected JSON text, got %T", table, col, v)
			}
			s = string(b)
		}
		var parsed interface{}
		if err := json.Unmarshal([]byte(s), &parsed); err != nil {
			return nil, fmt.Errorf("source: %s.%s: invalid JSON: %w", table, col, err)
		}
		return parsed, nil
	default: // TypeString, TypeNull
		switch s := v.(type) {
		case string:
			return s, nil
		case []byte:
			return string(s), nil
		case int64:
			// SQLite has no strict typing; tolerate numeric text columns.
			return fmt.Sprintf("%d", s), nil
		}
		return v, nil
	}
}
