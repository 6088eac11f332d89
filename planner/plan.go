package planner

import (
	"fmt"
	"strings"

	"github.com/pingcap-incubator/tinydb/expression"
	"github.com/pingcap-incubator/tinydb/types"
)

// PlanNodeType tags a physical operator. The set is closed.
type PlanNodeType int

const (
	TypeSeqScan PlanNodeType = iota + 1
	TypeFilter
	TypeProjection
	TypeOrderBy
	TypeLimit
	TypeInsert
	TypeDelete
	TypeUpdate
	TypeCreate
	TypeDrop
	TypeValues
)

var planNodeTypeNames = map[PlanNodeType]string{
	TypeSeqScan:    "SEQSCAN",
	TypeFilter:     "FILTER",
	TypeProjection: "PROJECTION",
	TypeOrderBy:    "ORDERBY",
	TypeLimit:      "LIMIT",
	TypeInsert:     "INSERT",
	TypeDelete:     "DELETE",
	TypeUpdate:     "UPDATE",
	TypeCreate:     "CREATE",
	TypeDrop:       "DROP",
	TypeValues:     "VALUES",
}

func (t PlanNodeType) String() string {
	if s, ok := planNodeTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("PlanNodeType(%d)", int(t))
}

// Plan is a node of a physical plan tree. Plans are not modified once built.
type Plan interface {
	Type() PlanNodeType
	Children() []Plan
	// Schema describes the tuples the node emits. Nodes that emit nothing return an empty schema.
	Schema() *types.Schema
	// String describes the node alone, without its children.
	String() string
}

type basePlan struct {
	schema   *types.Schema
	children []Plan
}

func (p *basePlan) Children() []Plan {
	return p.children
}

func (p *basePlan) Schema() *types.Schema {
	return p.schema
}

// Child returns the only child of a unary node.
func Child(p Plan) Plan {
	return p.Children()[0]
}

// SeqScan emits the visible version of every row of Table. Columns selects and orders the
// emitted columns; nil emits all of them.
type SeqScan struct {
	basePlan
	Table   string
	Columns []int
}

// Filter forwards the child tuples for which every condition holds.
type Filter struct {
	basePlan
	Conds []expression.Expression
}

// Projection evaluates Exprs over each child tuple.
type Projection struct {
	basePlan
	Exprs []expression.Expression
}

// SortKey orders by the child column at Index.
type SortKey struct {
	Index int
	Desc  bool
}

// OrderBy sorts its child. When Trim is positive only the first Trim columns are emitted, which
// drops the sort columns the select list did not ask for.
type OrderBy struct {
	basePlan
	Keys []SortKey
	Trim int
}

// Limit emits at most Count tuples after skipping Offset.
type Limit struct {
	basePlan
	Count  uint64
	Offset uint64
}

// Values emits one tuple per row of constant expressions.
type Values struct {
	basePlan
	Rows [][]expression.Expression
}

// Insert writes each child tuple into Table. ColumnMap gives the table offset of each child column;
// columns not listed are NULL.
type Insert struct {
	basePlan
	Table       string
	TableSchema *types.Schema
	ColumnMap   []int
}

// Delete removes the rows its scan child emits.
type Delete struct {
	basePlan
	Table string
}

// SetColumn assigns Expr, evaluated over the old tuple, to the column at Index.
type SetColumn struct {
	Index int
	Expr  expression.Expression
}

// Update rewrites the rows its scan child emits.
type Update struct {
	basePlan
	Table       string
	TableSchema *types.Schema
	Sets        []SetColumn
}

// Create defines a table.
type Create struct {
	basePlan
	Table       string
	TableSchema *types.Schema
	IfNotExists bool
}

// Drop removes tables.
type Drop struct {
	basePlan
	Tables   []string
	IfExists bool
}

var emptySchema = types.NewSchema()

// NewSeqScan builds a scan of table. The output schema follows columns.
func NewSeqScan(table string, schema *types.Schema, columns []int) *SeqScan {
	out := schema
	if columns != nil {
		out = schema.Project(columns)
	}
	return &SeqScan{basePlan: basePlan{schema: out}, Table: table, Columns: columns}
}

func NewFilter(child Plan, conds []expression.Expression) *Filter {
	return &Filter{basePlan: basePlan{schema: child.Schema(), children: []Plan{child}}, Conds: conds}
}

func NewProjection(child Plan, exprs []expression.Expression, schema *types.Schema) *Projection {
	return &Projection{basePlan: basePlan{schema: schema, children: []Plan{child}}, Exprs: exprs}
}

func NewOrderBy(child Plan, keys []SortKey, trim int) *OrderBy {
	schema := child.Schema()
	if trim > 0 && trim < schema.Len() {
		offsets := make([]int, trim)
		for i := range offsets {
			offsets[i] = i
		}
		schema = schema.Project(offsets)
	}
	return &OrderBy{basePlan: basePlan{schema: schema, children: []Plan{child}}, Keys: keys, Trim: trim}
}

func NewLimit(child Plan, count, offset uint64) *Limit {
	return &Limit{basePlan: basePlan{schema: child.Schema(), children: []Plan{child}}, Count: count, Offset: offset}
}

func NewValues(rows [][]expression.Expression, schema *types.Schema) *Values {
	return &Values{basePlan: basePlan{schema: schema}, Rows: rows}
}

func NewInsert(child Plan, table string, tableSchema *types.Schema, columnMap []int) *Insert {
	return &Insert{
		basePlan:    basePlan{schema: emptySchema, children: []Plan{child}},
		Table:       table,
		TableSchema: tableSchema,
		ColumnMap:   columnMap,
	}
}

func NewDelete(child Plan, table string) *Delete {
	return &Delete{basePlan: basePlan{schema: emptySchema, children: []Plan{child}}, Table: table}
}

func NewUpdate(child Plan, table string, tableSchema *types.Schema, sets []SetColumn) *Update {
	return &Update{
		basePlan:    basePlan{schema: emptySchema, children: []Plan{child}},
		Table:       table,
		TableSchema: tableSchema,
		Sets:        sets,
	}
}

func NewCreate(table string, schema *types.Schema, ifNotExists bool) *Create {
	return &Create{basePlan: basePlan{schema: emptySchema}, Table: table, TableSchema: schema, IfNotExists: ifNotExists}
}

func NewDrop(tables []string, ifExists bool) *Drop {
	return &Drop{basePlan: basePlan{schema: emptySchema}, Tables: tables, IfExists: ifExists}
}

func (*SeqScan) Type() PlanNodeType    { return TypeSeqScan }
func (*Filter) Type() PlanNodeType     { return TypeFilter }
func (*Projection) Type() PlanNodeType { return TypeProjection }
func (*OrderBy) Type() PlanNodeType    { return TypeOrderBy }
func (*Limit) Type() PlanNodeType      { return TypeLimit }
func (*Values) Type() PlanNodeType     { return TypeValues }
func (*Insert) Type() PlanNodeType     { return TypeInsert }
func (*Delete) Type() PlanNodeType     { return TypeDelete }
func (*Update) Type() PlanNodeType     { return TypeUpdate }
func (*Create) Type() PlanNodeType     { return TypeCreate }
func (*Drop) Type() PlanNodeType       { return TypeDrop }

func (p *SeqScan) String() string {
	return fmt.Sprintf("SEQSCAN table=%s columns=[%s]", p.Table, strings.Join(p.schema.Names(), ", "))
}

func (p *Filter) String() string {
	return "FILTER " + strings.Join(exprStrings(p.Conds), " AND ")
}

func (p *Projection) String() string {
	return "PROJECTION [" + expression.Format(p.Exprs) + "]"
}

func (p *OrderBy) String() string {
	names := Child(p).Schema().Names()
	keys := make([]string, len(p.Keys))
	for i, k := range p.Keys {
		dir := "ASC"
		if k.Desc {
			dir = "DESC"
		}
		keys[i] = names[k.Index] + " " + dir
	}
	s := "ORDERBY [" + strings.Join(keys, ", ") + "]"
	if p.Trim > 0 {
		s += fmt.Sprintf(" output=%d", p.Trim)
	}
	return s
}

func (p *Limit) String() string {
	if p.Offset > 0 {
		return fmt.Sprintf("LIMIT %d OFFSET %d", p.Count, p.Offset)
	}
	return fmt.Sprintf("LIMIT %d", p.Count)
}

func (p *Values) String() string {
	return fmt.Sprintf("VALUES rows=%d", len(p.Rows))
}

func (p *Insert) String() string {
	return "INSERT table=" + p.Table
}

func (p *Delete) String() string {
	return "DELETE table=" + p.Table
}

func (p *Update) String() string {
	sets := make([]string, len(p.Sets))
	for i, s := range p.Sets {
		sets[i] = p.TableSchema.Columns[s.Index].Name + "=" + s.Expr.String()
	}
	return "UPDATE table=" + p.Table + " set=[" + strings.Join(sets, ", ") + "]"
}

func (p *Create) String() string {
	return "CREATE table=" + p.Table + " " + p.TableSchema.String()
}

func (p *Drop) String() string {
	return "DROP tables=[" + strings.Join(p.Tables, ", ") + "]"
}

func exprStrings(exprs []expression.Expression) []string {
	out := make([]string, len(exprs))
	for i, e := range exprs {
		out[i] = e.String()
	}
	return out
}

// Explain renders the tree one node per line, children indented under their parent.
func Explain(p Plan) []string {
	var lines []string
	var walk func(p Plan, depth int)
	walk = func(p Plan, depth int) {
		lines = append(lines, strings.Repeat("  ", depth)+p.String())
		for _, c := range p.Children() {
			walk(c, depth+1)
		}
	}
	walk(p, 0)
	return lines
}
