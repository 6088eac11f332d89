// Package parser turns SQL text into planner queries. Parsing is delegated to the TiDB SQL parser;
// this package only maps the supported subset of its AST.
package parser

import (
	"strings"

	"github.com/pingcap-incubator/tinydb/expression"
	"github.com/pingcap-incubator/tinydb/planner"
	"github.com/pingcap-incubator/tinydb/terror"
	"github.com/pingcap-incubator/tinydb/types"
	tiparser "github.com/pingcap/parser"
	"github.com/pingcap/parser/ast"
	"github.com/pingcap/parser/mysql"
	"github.com/pingcap/parser/opcode"
	// Registers the literal value implementation the parser builds ast.ValueExpr with.
	_ "github.com/pingcap/tidb/types/parser_driver"
)

// Control is a transaction control statement.
type Control int

const (
	ControlNone Control = iota
	ControlBegin
	ControlCommit
	ControlRollback
)

// Statement is one parsed statement. Query is nil for transaction control.
type Statement struct {
	Query   planner.Query
	Control Control
	Explain bool
	Text    string
}

// Parser is not safe for concurrent use.
type Parser struct {
	inner *tiparser.Parser
}

func New() *Parser {
	return &Parser{inner: tiparser.New()}
}

// Parse parses a single statement.
func (p *Parser) Parse(sql string) (*Statement, error) {
	node, err := p.inner.ParseOneStmt(sql, "", "")
	if err != nil {
		return nil, terror.Syntaxf("%v", err)
	}
	return convertStmt(node)
}

// ParseScript parses a semicolon separated list of statements. Nothing is returned unless every
// statement converts.
func (p *Parser) ParseScript(sql string) ([]*Statement, error) {
	nodes, _, err := p.inner.Parse(sql, "", "")
	if err != nil {
		return nil, terror.Syntaxf("%v", err)
	}
	stmts := make([]*Statement, 0, len(nodes))
	for _, node := range nodes {
		stmt, err := convertStmt(node)
		if err != nil {
			return nil, err
		}
		stmt.Text = strings.TrimSpace(node.Text())
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

// ParseQuery parses a single statement that must be a query or DML/DDL statement.
func (p *Parser) ParseQuery(sql string) (planner.Query, error) {
	stmt, err := p.Parse(sql)
	if err != nil {
		return nil, err
	}
	if stmt.Query == nil || stmt.Explain {
		return nil, terror.Unsupportedf("statement cannot be planned: %s", sql)
	}
	return stmt.Query, nil
}

func convertStmt(node ast.StmtNode) (*Statement, error) {
	switch x := node.(type) {
	case *ast.BeginStmt:
		return &Statement{Control: ControlBegin}, nil
	case *ast.CommitStmt:
		return &Statement{Control: ControlCommit}, nil
	case *ast.RollbackStmt:
		return &Statement{Control: ControlRollback}, nil
	case *ast.ExplainStmt:
		inner, err := convertStmt(x.Stmt)
		if err != nil {
			return nil, err
		}
		if inner.Query == nil || inner.Explain {
			return nil, terror.Unsupportedf("EXPLAIN of this statement")
		}
		inner.Explain = true
		return inner, nil
	}
	q, err := convertQuery(node)
	if err != nil {
		return nil, err
	}
	return &Statement{Query: q}, nil
}

func convertQuery(node ast.StmtNode) (planner.Query, error) {
	switch x := node.(type) {
	case *ast.SelectStmt:
		return convertSelect(x)
	case *ast.InsertStmt:
		return convertInsert(x)
	case *ast.DeleteStmt:
		return convertDelete(x)
	case *ast.UpdateStmt:
		return convertUpdate(x)
	case *ast.CreateTableStmt:
		return convertCreateTable(x)
	case *ast.DropTableStmt:
		stmt := &planner.DropTableStmt{IfExists: x.IfExists}
		for _, t := range x.Tables {
			stmt.Tables = append(stmt.Tables, t.Name.O)
		}
		return stmt, nil
	}
	return nil, terror.Unsupportedf("statement %T", node)
}

// singleTable extracts the only table of a FROM clause.
func singleTable(refs *ast.TableRefsClause) (string, error) {
	if refs == nil || refs.TableRefs == nil {
		return "", terror.Unsupportedf("statement without a table")
	}
	join := refs.TableRefs
	if join.Right != nil {
		return "", terror.Unsupportedf("joins")
	}
	src, ok := join.Left.(*ast.TableSource)
	if !ok {
		return "", terror.Unsupportedf("FROM clause %T", join.Left)
	}
	tn, ok := src.Source.(*ast.TableName)
	if !ok {
		return "", terror.Unsupportedf("subqueries")
	}
	return tn.Name.O, nil
}

func convertSelect(x *ast.SelectStmt) (*planner.SelectStmt, error) {
	if x.GroupBy != nil || x.Having != nil || x.Distinct {
		return nil, terror.Unsupportedf("GROUP BY, HAVING and DISTINCT")
	}
	table, err := singleTable(x.From)
	if err != nil {
		return nil, err
	}
	c := &converter{table: table}
	stmt := &planner.SelectStmt{Table: table}
	for _, f := range x.Fields.Fields {
		if f.WildCard != nil {
			if len(x.Fields.Fields) > 1 {
				return nil, terror.Unsupportedf("* mixed with other fields")
			}
			break
		}
		e, err := c.convert(f.Expr)
		if err != nil {
			return nil, err
		}
		stmt.Fields = append(stmt.Fields, planner.SelectField{Expr: e, AsName: f.AsName.O})
	}
	if stmt.Where, err = c.convertOptional(x.Where); err != nil {
		return nil, err
	}
	if x.OrderBy != nil {
		for _, item := range x.OrderBy.Items {
			e, err := c.convert(item.Expr)
			if err != nil {
				return nil, err
			}
			stmt.OrderBy = append(stmt.OrderBy, planner.ByItem{Expr: e, Desc: item.Desc})
		}
	}
	if x.Limit != nil {
		if stmt.Limit, err = convertLimit(x.Limit); err != nil {
			return nil, err
		}
	}
	return stmt, nil
}

func convertLimit(l *ast.Limit) (*planner.LimitClause, error) {
	count, err := uintValue(l.Count)
	if err != nil {
		return nil, err
	}
	clause := &planner.LimitClause{Count: count}
	if l.Offset != nil {
		if clause.Offset, err = uintValue(l.Offset); err != nil {
			return nil, err
		}
	}
	return clause, nil
}

func uintValue(e ast.ExprNode) (uint64, error) {
	v, ok := e.(ast.ValueExpr)
	if !ok {
		return 0, terror.Unsupportedf("non-constant LIMIT")
	}
	switch n := v.GetValue().(type) {
	case uint64:
		return n, nil
	case int64:
		if n >= 0 {
			return uint64(n), nil
		}
	}
	return 0, terror.Syntaxf("invalid LIMIT value %v", v.GetValue())
}

func convertInsert(x *ast.InsertStmt) (*planner.InsertStmt, error) {
	if x.IsReplace || len(x.OnDuplicate) > 0 || len(x.Setlist) > 0 {
		return nil, terror.Unsupportedf("REPLACE, ON DUPLICATE KEY UPDATE and INSERT ... SET")
	}
	table, err := singleTable(x.Table)
	if err != nil {
		return nil, err
	}
	stmt := &planner.InsertStmt{Table: table}
	for _, col := range x.Columns {
		stmt.Columns = append(stmt.Columns, col.Name.O)
	}
	c := &converter{}
	for _, list := range x.Lists {
		row := make([]expression.Expression, len(list))
		for i, e := range list {
			if row[i], err = c.convert(e); err != nil {
				return nil, err
			}
		}
		stmt.Values = append(stmt.Values, row)
	}
	if x.Select != nil {
		sel, ok := x.Select.(*ast.SelectStmt)
		if !ok {
			return nil, terror.Unsupportedf("INSERT from %T", x.Select)
		}
		if stmt.Select, err = convertSelect(sel); err != nil {
			return nil, err
		}
	}
	return stmt, nil
}

func convertDelete(x *ast.DeleteStmt) (*planner.DeleteStmt, error) {
	if x.IsMultiTable || x.Order != nil || x.Limit != nil {
		return nil, terror.Unsupportedf("multi-table DELETE, ORDER BY and LIMIT in DELETE")
	}
	table, err := singleTable(x.TableRefs)
	if err != nil {
		return nil, err
	}
	c := &converter{table: table}
	where, err := c.convertOptional(x.Where)
	if err != nil {
		return nil, err
	}
	return &planner.DeleteStmt{Table: table, Where: where}, nil
}

func convertUpdate(x *ast.UpdateStmt) (*planner.UpdateStmt, error) {
	if x.MultipleTable || x.Order != nil || x.Limit != nil {
		return nil, terror.Unsupportedf("multi-table UPDATE, ORDER BY and LIMIT in UPDATE")
	}
	table, err := singleTable(x.TableRefs)
	if err != nil {
		return nil, err
	}
	c := &converter{table: table}
	stmt := &planner.UpdateStmt{Table: table}
	for _, a := range x.List {
		e, err := c.convert(a.Expr)
		if err != nil {
			return nil, err
		}
		stmt.Assignments = append(stmt.Assignments, planner.Assignment{Column: a.Column.Name.O, Expr: e})
	}
	if stmt.Where, err = c.convertOptional(x.Where); err != nil {
		return nil, err
	}
	return stmt, nil
}

func convertCreateTable(x *ast.CreateTableStmt) (*planner.CreateTableStmt, error) {
	cols := make([]types.Column, 0, len(x.Cols))
	for _, def := range x.Cols {
		col := types.Column{Name: def.Name.Name.O}
		tp, err := fieldType(def.Tp.Tp)
		if err != nil {
			return nil, terror.Unsupportedf("column %s: %v", col.Name, err)
		}
		col.Tp = tp
		for _, opt := range def.Options {
			switch opt.Tp {
			case ast.ColumnOptionNotNull:
				col.NotNull = true
			case ast.ColumnOptionPrimaryKey:
				col.PrimaryKey, col.NotNull = true, true
			}
		}
		cols = append(cols, col)
	}
	schema := types.NewSchema(cols...)
	for _, cons := range x.Constraints {
		if cons.Tp != ast.ConstraintPrimaryKey {
			return nil, terror.Unsupportedf("secondary indexes and constraints other than PRIMARY KEY")
		}
		for _, key := range cons.Keys {
			idx := schema.ColumnIndex(key.Column.Name.L)
			if idx < 0 {
				return nil, terror.Unresolvedf("key column %s does not exist", key.Column.Name.O)
			}
			schema.Columns[idx].PrimaryKey = true
			schema.Columns[idx].NotNull = true
		}
	}
	return &planner.CreateTableStmt{Table: x.Table.Name.O, Schema: schema, IfNotExists: x.IfNotExists}, nil
}

func fieldType(tp byte) (types.FieldType, error) {
	switch tp {
	case mysql.TypeTiny, mysql.TypeShort, mysql.TypeInt24, mysql.TypeLong, mysql.TypeLonglong:
		return types.TypeInt, nil
	case mysql.TypeVarchar, mysql.TypeString, mysql.TypeVarString,
		mysql.TypeBlob, mysql.TypeTinyBlob, mysql.TypeMediumBlob, mysql.TypeLongBlob:
		return types.TypeText, nil
	}
	return 0, terror.Unsupportedf("type code %d", tp)
}

// converter maps AST expressions. table, when set, is the only table a qualified column may name.
type converter struct {
	table string
}

func (c *converter) convertOptional(e ast.ExprNode) (expression.Expression, error) {
	if e == nil {
		return nil, nil
	}
	return c.convert(e)
}

var binaryOps = map[opcode.Op]opcode.Op{
	opcode.EQ:       opcode.EQ,
	opcode.NE:       opcode.NE,
	opcode.LT:       opcode.LT,
	opcode.LE:       opcode.LE,
	opcode.GT:       opcode.GT,
	opcode.GE:       opcode.GE,
	opcode.LogicAnd: opcode.LogicAnd,
	opcode.LogicOr:  opcode.LogicOr,
	opcode.Plus:     opcode.Plus,
	opcode.Minus:    opcode.Minus,
	opcode.Mul:      opcode.Mul,
	opcode.Div:      opcode.Div,
	opcode.IntDiv:   opcode.Div,
	opcode.Mod:      opcode.Mod,
}

func (c *converter) convert(e ast.ExprNode) (expression.Expression, error) {
	switch x := e.(type) {
	case *ast.ParenthesesExpr:
		return c.convert(x.Expr)
	case *ast.ColumnNameExpr:
		name := x.Name
		if name.Table.L != "" && (c.table == "" || name.Table.L != strings.ToLower(c.table)) {
			return nil, terror.Unresolvedf("unknown table %s for column %s", name.Table.O, name.Name.O)
		}
		return planner.NewColumnRef(name.Name.O), nil
	case ast.ValueExpr:
		return convertValue(x.GetValue())
	case *ast.BinaryOperationExpr:
		op, ok := binaryOps[x.Op]
		if !ok {
			return nil, terror.Unsupportedf("operator %s", x.Op)
		}
		l, err := c.convert(x.L)
		if err != nil {
			return nil, err
		}
		r, err := c.convert(x.R)
		if err != nil {
			return nil, err
		}
		return expression.NewFunction(op, l, r)
	case *ast.UnaryOperationExpr:
		v, err := c.convert(x.V)
		if err != nil {
			return nil, err
		}
		switch x.Op {
		case opcode.Plus:
			return v, nil
		case opcode.Minus, opcode.Not:
			return expression.NewFunction(x.Op, v)
		}
		return nil, terror.Unsupportedf("unary operator %s", x.Op)
	case *ast.IsNullExpr:
		v, err := c.convert(x.Expr)
		if err != nil {
			return nil, err
		}
		return &expression.IsNull{Arg: v, Not: x.Not}, nil
	case *ast.BetweenExpr:
		return c.convertBetween(x)
	}
	return nil, terror.Unsupportedf("expression %T", e)
}

// convertBetween rewrites BETWEEN as a pair of comparisons.
func (c *converter) convertBetween(x *ast.BetweenExpr) (expression.Expression, error) {
	v, err := c.convert(x.Expr)
	if err != nil {
		return nil, err
	}
	lo, err := c.convert(x.Left)
	if err != nil {
		return nil, err
	}
	hi, err := c.convert(x.Right)
	if err != nil {
		return nil, err
	}
	loOp, hiOp, join := opcode.GE, opcode.LE, opcode.LogicAnd
	if x.Not {
		loOp, hiOp, join = opcode.LT, opcode.GT, opcode.LogicOr
	}
	l, err := expression.NewFunction(loOp, v, lo)
	if err != nil {
		return nil, err
	}
	r, err := expression.NewFunction(hiOp, v, hi)
	if err != nil {
		return nil, err
	}
	return expression.NewFunction(join, l, r)
}

func convertValue(v interface{}) (expression.Expression, error) {
	switch x := v.(type) {
	case nil, int64, string:
		return &expression.Constant{Value: types.NewDatum(x)}, nil
	case uint64:
		if x > 1<<63-1 {
			return nil, terror.Unsupportedf("integer literal %d out of range", x)
		}
		return &expression.Constant{Value: types.NewIntDatum(int64(x))}, nil
	case []byte:
		return &expression.Constant{Value: types.NewStringDatum(string(x))}, nil
	}
	return nil, terror.Unsupportedf("literal %v of type %T", v, v)
}
