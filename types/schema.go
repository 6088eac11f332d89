package types

import (
	"strings"

	"github.com/pingcap/errors"
)

// FieldType is the declared type of a column.
type FieldType byte

const (
	TypeInt FieldType = iota + 1
	TypeText
)

func (tp FieldType) String() string {
	switch tp {
	case TypeInt:
		return "INT"
	case TypeText:
		return "TEXT"
	}
	return "UNKNOWN"
}

// Accepts reports whether a datum of kind k can be stored in a column of this type.
func (tp FieldType) Accepts(k Kind) bool {
	switch k {
	case KindNull:
		return true
	case KindInt64:
		return tp == TypeInt
	case KindString:
		return tp == TypeText
	}
	return false
}

// Column describes one column of a schema.
type Column struct {
	Name       string
	Tp         FieldType
	NotNull    bool
	PrimaryKey bool
}

// Schema is an ordered list of columns.
type Schema struct {
	Columns []Column
}

// NewSchema creates a schema from columns.
func NewSchema(cols ...Column) *Schema {
	return &Schema{Columns: cols}
}

func (s *Schema) Len() int {
	return len(s.Columns)
}

// ColumnIndex returns the offset of the named column, or -1. Names are case-insensitive.
func (s *Schema) ColumnIndex(name string) int {
	for i, col := range s.Columns {
		if strings.EqualFold(col.Name, name) {
			return i
		}
	}
	return -1
}

// Names returns the column names in order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, col := range s.Columns {
		names[i] = col.Name
	}
	return names
}

// PKOffsets returns the offsets of the primary key columns, empty when the table has none.
func (s *Schema) PKOffsets() []int {
	var offsets []int
	for i, col := range s.Columns {
		if col.PrimaryKey {
			offsets = append(offsets, i)
		}
	}
	return offsets
}

// Project returns the sub-schema made of the given offsets.
func (s *Schema) Project(offsets []int) *Schema {
	cols := make([]Column, len(offsets))
	for i, off := range offsets {
		cols[i] = s.Columns[off]
	}
	return &Schema{Columns: cols}
}

// Validate checks the schema is usable as a table definition.
func (s *Schema) Validate() error {
	if len(s.Columns) == 0 {
		return errors.New("table must have at least one column")
	}
	seen := make(map[string]struct{}, len(s.Columns))
	for _, col := range s.Columns {
		lower := strings.ToLower(col.Name)
		if _, ok := seen[lower]; ok {
			return errors.Errorf("duplicate column name %s", col.Name)
		}
		seen[lower] = struct{}{}
		if col.Tp != TypeInt && col.Tp != TypeText {
			return errors.Errorf("column %s has unknown type", col.Name)
		}
	}
	return nil
}

// String renders the schema like a column list of CREATE TABLE.
func (s *Schema) String() string {
	parts := make([]string, len(s.Columns))
	for i, col := range s.Columns {
		part := col.Name + " " + col.Tp.String()
		if col.PrimaryKey {
			part += " PRIMARY KEY"
		} else if col.NotNull {
			part += " NOT NULL"
		}
		parts[i] = part
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
