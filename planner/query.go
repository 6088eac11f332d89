package planner

import (
	"github.com/pingcap-incubator/tinydb/expression"
	"github.com/pingcap-incubator/tinydb/types"
)

// Query is a logical statement produced by the parser. Column references inside its expressions
// are by name (expression.Column with Index -1) and are bound by the optimizer.
type Query interface {
	queryNode()
}

// SelectField is one item of a select list.
type SelectField struct {
	Expr expression.Expression
	// AsName is the output name. Empty means the expression text.
	AsName string
}

// ByItem is one ORDER BY key.
type ByItem struct {
	Expr expression.Expression
	Desc bool
}

// LimitClause holds LIMIT count and OFFSET.
type LimitClause struct {
	Count  uint64
	Offset uint64
}

// SelectStmt reads one table. An empty Fields list means SELECT *.
type SelectStmt struct {
	Table   string
	Fields  []SelectField
	Where   expression.Expression
	OrderBy []ByItem
	Limit   *LimitClause
}

// InsertStmt adds rows from a VALUES list or from a SELECT.
type InsertStmt struct {
	Table   string
	Columns []string
	Values  [][]expression.Expression
	Select  *SelectStmt
}

// DeleteStmt removes the rows matching Where.
type DeleteStmt struct {
	Table string
	Where expression.Expression
}

// Assignment is one SET item of an UPDATE.
type Assignment struct {
	Column string
	Expr   expression.Expression
}

// UpdateStmt rewrites the rows matching Where.
type UpdateStmt struct {
	Table       string
	Assignments []Assignment
	Where       expression.Expression
}

// CreateTableStmt defines a table.
type CreateTableStmt struct {
	Table       string
	Schema      *types.Schema
	IfNotExists bool
}

// DropTableStmt removes tables.
type DropTableStmt struct {
	Tables   []string
	IfExists bool
}

func (*SelectStmt) queryNode()      {}
func (*InsertStmt) queryNode()      {}
func (*DeleteStmt) queryNode()      {}
func (*UpdateStmt) queryNode()      {}
func (*CreateTableStmt) queryNode() {}
func (*DropTableStmt) queryNode()   {}

// NewColumnRef returns an unbound reference to the named column.
func NewColumnRef(name string) *expression.Column {
	return &expression.Column{Index: -1, Name: name}
}
