package row

import (
	"encoding/json"
	"fmt"
)

// schemaTypeNames maps ColumnType to the wire name used when a schema is
// loaded from a config/CLI-supplied JSON file; there's no other producer of
// Schema values outside tests, so this lives alongside Schema rather than
// in a dedicated wire package.
var schemaTypeNames = map[ColumnType]string{
	TypeBoolean: "boolean",
	TypeNumber:  "number",
	TypeString:  "string",
	TypeNull:    "null",
	TypeJSON:    "json",
}

var schemaTypeByName = func() map[string]ColumnType {
	m := make(map[string]ColumnType, len(schemaTypeNames))
	for t, name := range schemaTypeNames {
		m[name] = t
	}
	return m
}()

// MarshalJSON encodes a ColumnType as its wire name.
func (t ColumnType) MarshalJSON() ([]byte, error) {
	name, ok := schemaTypeNames[t]
	if !ok {
		return nil, fmt.Errorf("row: unknown column type %d", t)
	}
	return json.Marshal(name)
}

// UnmarshalJSON decodes a ColumnType from its wire name.
func (t *ColumnType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("row: decoding column type: %w", err)
	}
	ct, ok := schemaTypeByName[name]
	if !ok {
		return fmt.Errorf("row: unknown column type %q", name)
	}
	*t = ct
	return nil
}

type wireColumn struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

type wireSchema struct {
	Name          string       `json:"name"`
	Columns       []wireColumn `json:"columns"`
	PrimaryKey    []string     `json:"primaryKey"`
	UniqueIndexes [][]string   `json:"uniqueIndexes,omitempty"`
}

// MarshalJSON encodes a Schema to its wire form.
func (s *Schema) MarshalJSON() ([]byte, error) {
	cols := make([]wireColumn, len(s.Columns))
	for i, c := range s.Columns {
		cols[i] = wireColumn{Name: c.Name, Type: c.Type}
	}
	return json.Marshal(wireSchema{
		Name:          s.Name,
		Columns:       cols,
		PrimaryKey:    s.PrimaryKey,
		UniqueIndexes: s.UniqueIndexes,
	})
}

// UnmarshalJSON decodes a Schema from its wire form.
func (s *Schema) UnmarshalJSON(data []byte) error {
	var w wireSchema
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("row: decoding schema: %w", err)
	}
	cols := make([]Column, len(w.Columns))
	for i, c := range w.Columns {
		cols[i] = Column{Name: c.Name, Type: c.Type}
	}
	s.Name = w.Name
	s.Columns = cols
	s.PrimaryKey = w.PrimaryKey
	s.UniqueIndexes = w.UniqueIndexes
	return nil
}
