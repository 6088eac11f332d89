// Package planner turns logical queries into physical plan trees. SELECT goes through a fixed
// sequence of rewrite rules; the other statements map onto a single operator over an optional scan.
package planner

import (
	"strings"

	"github.com/ngaut/log"
	"github.com/pingcap-incubator/tinydb/catalog"
	"github.com/pingcap-incubator/tinydb/expression"
	"github.com/pingcap-incubator/tinydb/terror"
	"github.com/pingcap-incubator/tinydb/types"
	"github.com/pingcap/errors"
)

// rule rewrites the plan of a SELECT under construction. apply reports whether it changed anything.
type rule struct {
	name  string
	apply func(b *selectBuilder) (bool, error)
}

// selectRules run in this order, once each.
var selectRules = []rule{
	{name: "access_method", apply: chooseAccessMethod},
	{name: "predicate_pushdown", apply: pushDownPredicates},
	{name: "projection", apply: insertProjection},
	{name: "order_by", apply: wrapOrderBy},
	{name: "limit", apply: wrapLimit},
}

type selectBuilder struct {
	stmt  *SelectStmt
	table *catalog.TableInfo

	fields []expression.Expression
	names  []string
	// hidden holds sort expressions missing from the select list. They are computed after the
	// fields and trimmed by ORDERBY.
	hidden []expression.Expression
	keys   []SortKey

	plan Plan
}

// Optimizer builds plans against a catalog.
type Optimizer struct {
	catalog catalog.Catalog
}

func NewOptimizer(c catalog.Catalog) *Optimizer {
	return &Optimizer{catalog: c}
}

// Optimize returns the physical plan for q.
func (o *Optimizer) Optimize(q Query) (Plan, error) {
	p, _, err := o.optimize(q)
	return p, err
}

// Explain returns the plan tree of q followed by a line naming the rules that fired.
func (o *Optimizer) Explain(q Query) ([]string, error) {
	p, fired, err := o.optimize(q)
	if err != nil {
		return nil, err
	}
	lines := Explain(p)
	if len(fired) > 0 {
		lines = append(lines, "rules: "+strings.Join(fired, ", "))
	}
	return lines, nil
}

func (o *Optimizer) optimize(q Query) (Plan, []string, error) {
	switch x := q.(type) {
	case *SelectStmt:
		return o.optimizeSelect(x)
	case *InsertStmt:
		p, err := o.buildInsert(x)
		return p, nil, err
	case *DeleteStmt:
		p, err := o.buildDelete(x)
		return p, nil, err
	case *UpdateStmt:
		p, err := o.buildUpdate(x)
		return p, nil, err
	case *CreateTableStmt:
		return NewCreate(x.Table, x.Schema, x.IfNotExists), nil, nil
	case *DropTableStmt:
		return NewDrop(x.Tables, x.IfExists), nil, nil
	}
	return nil, nil, terror.Unsupportedf("statement %T", q)
}

func (o *Optimizer) optimizeSelect(stmt *SelectStmt) (Plan, []string, error) {
	table, err := o.catalog.GetTable(stmt.Table)
	if err != nil {
		return nil, nil, err
	}
	b := &selectBuilder{stmt: stmt, table: table}
	if err := b.bind(); err != nil {
		return nil, nil, err
	}
	var fired []string
	for _, r := range selectRules {
		changed, err := r.apply(b)
		if err != nil {
			return nil, nil, errors.Trace(err)
		}
		if changed {
			fired = append(fired, r.name)
		}
	}
	log.Debugf("planner: select on %s fired rules %v", table.Name, fired)
	return b.plan, fired, nil
}

// bind resolves the select list and sort keys against the table schema.
func (b *selectBuilder) bind() error {
	schema := b.table.Schema
	if len(b.stmt.Fields) == 0 {
		for i, c := range schema.Columns {
			b.fields = append(b.fields, &expression.Column{Index: i, Name: c.Name})
			b.names = append(b.names, c.Name)
		}
	}
	for _, f := range b.stmt.Fields {
		e, err := Bind(f.Expr, schema)
		if err != nil {
			return err
		}
		b.fields = append(b.fields, e)
		b.names = append(b.names, fieldName(f, e))
	}
	for _, item := range b.stmt.OrderBy {
		idx, err := b.bindSortKey(item.Expr)
		if err != nil {
			return err
		}
		b.keys = append(b.keys, SortKey{Index: idx, Desc: item.Desc})
	}
	return nil
}

func fieldName(f SelectField, bound expression.Expression) string {
	if f.AsName != "" {
		return f.AsName
	}
	return bound.String()
}

func (b *selectBuilder) bindSortKey(expr expression.Expression) (int, error) {
	// An alias of the select list wins over a table column.
	if c, ok := expr.(*expression.Column); ok && c.Index < 0 {
		for i, f := range b.stmt.Fields {
			if f.AsName != "" && strings.EqualFold(f.AsName, c.Name) {
				return i, nil
			}
		}
	}
	e, err := Bind(expr, b.table.Schema)
	if err != nil {
		return 0, err
	}
	for i, f := range b.fields {
		if f.String() == e.String() {
			return i, nil
		}
	}
	for i, h := range b.hidden {
		if h.String() == e.String() {
			return len(b.fields) + i, nil
		}
	}
	b.hidden = append(b.hidden, e)
	return len(b.fields) + len(b.hidden) - 1, nil
}

func chooseAccessMethod(b *selectBuilder) (bool, error) {
	b.plan = NewSeqScan(b.table.Name, b.table.Schema, nil)
	return true, nil
}

func pushDownPredicates(b *selectBuilder) (bool, error) {
	if b.stmt.Where == nil {
		return false, nil
	}
	where, err := Bind(b.stmt.Where, b.table.Schema)
	if err != nil {
		return false, err
	}
	b.plan = NewFilter(b.plan, expression.SplitConjunction(where))
	return true, nil
}

// insertProjection shapes the output as the select list followed by the hidden sort columns. A
// list of plain columns directly over the scan becomes the scan's column list.
func insertProjection(b *selectBuilder) (bool, error) {
	schema := b.table.Schema
	outputs := append(append([]expression.Expression{}, b.fields...), b.hidden...)
	offsets, plain := columnOffsets(outputs)
	renamed := false
	for i, name := range b.names {
		if c, ok := b.fields[i].(*expression.Column); !ok || c.Name != name {
			renamed = true
		}
	}
	if plain && !renamed {
		if isIdentity(offsets, schema.Len()) {
			return false, nil
		}
		if _, ok := b.plan.(*SeqScan); ok {
			b.plan = NewSeqScan(b.table.Name, schema, offsets)
			return true, nil
		}
	}
	cols := make([]types.Column, len(outputs))
	for i, e := range outputs {
		name := e.String()
		if i < len(b.names) {
			name = b.names[i]
		}
		cols[i] = types.Column{Name: name, Tp: e.RetType(schema)}
	}
	b.plan = NewProjection(b.plan, outputs, types.NewSchema(cols...))
	return true, nil
}

func columnOffsets(exprs []expression.Expression) ([]int, bool) {
	offsets := make([]int, len(exprs))
	for i, e := range exprs {
		c, ok := e.(*expression.Column)
		if !ok {
			return nil, false
		}
		offsets[i] = c.Index
	}
	return offsets, true
}

func isIdentity(offsets []int, n int) bool {
	if len(offsets) != n {
		return false
	}
	for i, o := range offsets {
		if o != i {
			return false
		}
	}
	return true
}

func wrapOrderBy(b *selectBuilder) (bool, error) {
	if len(b.keys) == 0 {
		return false, nil
	}
	trim := 0
	if len(b.hidden) > 0 {
		trim = len(b.fields)
	}
	b.plan = NewOrderBy(b.plan, b.keys, trim)
	return true, nil
}

func wrapLimit(b *selectBuilder) (bool, error) {
	if b.stmt.Limit == nil {
		return false, nil
	}
	b.plan = NewLimit(b.plan, b.stmt.Limit.Count, b.stmt.Limit.Offset)
	return true, nil
}

// scanWhere builds the scan, plus a filter when where is set, that DELETE and UPDATE consume.
func (o *Optimizer) scanWhere(table *catalog.TableInfo, where expression.Expression) (Plan, error) {
	var p Plan = NewSeqScan(table.Name, table.Schema, nil)
	if where != nil {
		bound, err := Bind(where, table.Schema)
		if err != nil {
			return nil, err
		}
		p = NewFilter(p, expression.SplitConjunction(bound))
	}
	return p, nil
}

func (o *Optimizer) buildInsert(stmt *InsertStmt) (Plan, error) {
	table, err := o.catalog.GetTable(stmt.Table)
	if err != nil {
		return nil, err
	}
	schema := table.Schema
	var columnMap []int
	if len(stmt.Columns) == 0 {
		for i := range schema.Columns {
			columnMap = append(columnMap, i)
		}
	} else {
		seen := make(map[int]bool, len(stmt.Columns))
		for _, name := range stmt.Columns {
			idx := schema.ColumnIndex(name)
			if idx < 0 {
				return nil, terror.Unresolvedf("unknown column %s in table %s", name, table.Name)
			}
			if seen[idx] {
				return nil, terror.Syntaxf("column %s specified twice", name)
			}
			seen[idx] = true
			columnMap = append(columnMap, idx)
		}
	}

	var child Plan
	if stmt.Select != nil {
		child, _, err = o.optimizeSelect(stmt.Select)
		if err != nil {
			return nil, err
		}
		if child.Schema().Len() != len(columnMap) {
			return nil, terror.Syntaxf("column count %d does not match select list of %d", len(columnMap), child.Schema().Len())
		}
	} else {
		rows := make([][]expression.Expression, len(stmt.Values))
		for i, values := range stmt.Values {
			if len(values) != len(columnMap) {
				return nil, terror.Syntaxf("column count %d does not match value count %d at row %d", len(columnMap), len(values), i+1)
			}
			rows[i] = make([]expression.Expression, len(values))
			for j, v := range values {
				if rows[i][j], err = Bind(v, emptySchema); err != nil {
					return nil, err
				}
			}
		}
		child = NewValues(rows, schema.Project(columnMap))
	}
	return NewInsert(child, table.Name, schema, columnMap), nil
}

func (o *Optimizer) buildDelete(stmt *DeleteStmt) (Plan, error) {
	table, err := o.catalog.GetTable(stmt.Table)
	if err != nil {
		return nil, err
	}
	child, err := o.scanWhere(table, stmt.Where)
	if err != nil {
		return nil, err
	}
	return NewDelete(child, table.Name), nil
}

func (o *Optimizer) buildUpdate(stmt *UpdateStmt) (Plan, error) {
	table, err := o.catalog.GetTable(stmt.Table)
	if err != nil {
		return nil, err
	}
	sets := make([]SetColumn, 0, len(stmt.Assignments))
	for _, a := range stmt.Assignments {
		idx := table.Schema.ColumnIndex(a.Column)
		if idx < 0 {
			return nil, terror.Unresolvedf("unknown column %s in table %s", a.Column, table.Name)
		}
		e, err := Bind(a.Expr, table.Schema)
		if err != nil {
			return nil, err
		}
		sets = append(sets, SetColumn{Index: idx, Expr: e})
	}
	child, err := o.scanWhere(table, stmt.Where)
	if err != nil {
		return nil, err
	}
	return NewUpdate(child, table.Name, table.Schema, sets), nil
}

// Bind returns a copy of expr with every column reference resolved to its offset in schema.
func Bind(expr expression.Expression, schema *types.Schema) (expression.Expression, error) {
	switch x := expr.(type) {
	case *expression.Column:
		idx := schema.ColumnIndex(x.Name)
		if idx < 0 {
			return nil, terror.Unresolvedf("unknown column %s", x.Name)
		}
		return &expression.Column{Index: idx, Name: schema.Columns[idx].Name}, nil
	case *expression.Constant:
		return x, nil
	case *expression.ScalarFunction:
		args := make([]expression.Expression, len(x.Args))
		for i, arg := range x.Args {
			bound, err := Bind(arg, schema)
			if err != nil {
				return nil, err
			}
			args[i] = bound
		}
		return &expression.ScalarFunction{Op: x.Op, Args: args}, nil
	case *expression.IsNull:
		arg, err := Bind(x.Arg, schema)
		if err != nil {
			return nil, err
		}
		return &expression.IsNull{Arg: arg, Not: x.Not}, nil
	}
	return nil, terror.Unsupportedf("expression %s", expr)
}
