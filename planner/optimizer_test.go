package planner

import (
	"testing"

	"github.com/pingcap-incubator/tinydb/catalog"
	"github.com/pingcap-incubator/tinydb/expression"
	"github.com/pingcap-incubator/tinydb/storage"
	"github.com/pingcap-incubator/tinydb/terror"
	"github.com/pingcap-incubator/tinydb/types"
	"github.com/pingcap/parser/opcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOptimizer(t *testing.T) *Optimizer {
	c := catalog.NewMemCatalog(storage.NewStore())
	_, err := c.CreateTable("test", types.NewSchema(
		types.Column{Name: "a", Tp: types.TypeInt, PrimaryKey: true},
		types.Column{Name: "b", Tp: types.TypeInt},
		types.Column{Name: "c", Tp: types.TypeInt},
		types.Column{Name: "d", Tp: types.TypeText},
	), nil)
	require.NoError(t, err)
	return NewOptimizer(c)
}

func fields(names ...string) []SelectField {
	out := make([]SelectField, len(names))
	for i, n := range names {
		out[i] = SelectField{Expr: NewColumnRef(n)}
	}
	return out
}

func orderBy(name string) []ByItem {
	return []ByItem{{Expr: NewColumnRef(name)}}
}

func TestOrderByIsRoot(t *testing.T) {
	o := newTestOptimizer(t)

	p, err := o.Optimize(&SelectStmt{Table: "test", Fields: fields("a", "b"), OrderBy: orderBy("b")})
	require.NoError(t, err)
	require.Equal(t, TypeOrderBy, p.Type())
	ob := p.(*OrderBy)
	assert.Equal(t, []SortKey{{Index: 1}}, ob.Keys)
	assert.Equal(t, 0, ob.Trim)
	scan := Child(p).(*SeqScan)
	assert.Equal(t, []int{0, 1}, scan.Columns)

	// The sort column is scanned but trimmed from the output.
	p, err = o.Optimize(&SelectStmt{Table: "test", Fields: fields("a"), OrderBy: orderBy("b")})
	require.NoError(t, err)
	require.Equal(t, TypeOrderBy, p.Type())
	assert.Equal(t, []string{"a"}, p.Schema().Names())
	assert.Equal(t, 1, p.(*OrderBy).Trim)
	assert.Equal(t, []int{0, 1}, Child(p).(*SeqScan).Columns)
}

func TestLimitOverOrderBy(t *testing.T) {
	o := newTestOptimizer(t)
	p, err := o.Optimize(&SelectStmt{
		Table:   "test",
		Fields:  fields("a", "b", "d"),
		OrderBy: orderBy("d"),
		Limit:   &LimitClause{Count: 2},
	})
	require.NoError(t, err)
	require.Equal(t, TypeLimit, p.Type())
	assert.Equal(t, uint64(2), p.(*Limit).Count)
	assert.Equal(t, TypeOrderBy, Child(p).Type())
	assert.Equal(t, TypeSeqScan, Child(Child(p)).Type())
	assert.Equal(t, []SortKey{{Index: 2}}, Child(p).(*OrderBy).Keys)
}

func TestFilterAndProjection(t *testing.T) {
	o := newTestOptimizer(t)
	gt, err := expression.NewFunction(opcode.GT, NewColumnRef("c"), &expression.Constant{Value: types.NewIntDatum(150)})
	require.NoError(t, err)
	stmt := &SelectStmt{Table: "test", Fields: fields("d"), Where: gt}

	lines, err := o.Explain(stmt)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"PROJECTION [d]",
		"  FILTER (c > 150)",
		"    SEQSCAN table=test columns=[a, b, c, d]",
		"rules: access_method, predicate_pushdown, projection",
	}, lines)

	// SELECT * needs neither projection nor scan columns.
	p, err := o.Optimize(&SelectStmt{Table: "test"})
	require.NoError(t, err)
	require.Equal(t, TypeSeqScan, p.Type())
	assert.Nil(t, p.(*SeqScan).Columns)
	assert.Equal(t, 4, p.Schema().Len())
}

func TestExpressionFields(t *testing.T) {
	o := newTestOptimizer(t)
	plus, err := expression.NewFunction(opcode.Plus, NewColumnRef("b"), NewColumnRef("c"))
	require.NoError(t, err)
	p, err := o.Optimize(&SelectStmt{
		Table:   "test",
		Fields:  []SelectField{{Expr: plus, AsName: "total"}},
		OrderBy: []ByItem{{Expr: NewColumnRef("total"), Desc: true}},
	})
	require.NoError(t, err)
	require.Equal(t, TypeOrderBy, p.Type())
	assert.Equal(t, []SortKey{{Index: 0, Desc: true}}, p.(*OrderBy).Keys)
	proj := Child(p).(*Projection)
	assert.Equal(t, []string{"total"}, proj.Schema().Names())
	assert.Equal(t, types.TypeInt, proj.Schema().Columns[0].Tp)
}

func TestPlanErrors(t *testing.T) {
	o := newTestOptimizer(t)
	_, err := o.Optimize(&SelectStmt{Table: "missing"})
	assert.True(t, terror.Is(err, terror.UnresolvedCode))

	_, err = o.Optimize(&SelectStmt{Table: "test", Fields: fields("z")})
	assert.True(t, terror.Is(err, terror.UnresolvedCode))

	_, err = o.Optimize(&InsertStmt{Table: "test", Columns: []string{"a", "a"}})
	assert.True(t, terror.Is(err, terror.SyntaxCode))

	_, err = o.Optimize(&InsertStmt{Table: "test", Columns: []string{"a"}, Values: [][]expression.Expression{{NewColumnRef("b")}}})
	assert.True(t, terror.Is(err, terror.UnresolvedCode))

	_, err = o.Optimize(&InsertStmt{Table: "test", Values: [][]expression.Expression{{&expression.Constant{Value: types.NewIntDatum(1)}}}})
	assert.True(t, terror.Is(err, terror.SyntaxCode))
}

func TestWriteStatements(t *testing.T) {
	o := newTestOptimizer(t)
	one := &expression.Constant{Value: types.NewIntDatum(1)}

	p, err := o.Optimize(&InsertStmt{Table: "test", Columns: []string{"d", "a"}, Values: [][]expression.Expression{{&expression.Constant{Value: types.NewStringDatum("x")}, one}}})
	require.NoError(t, err)
	ins := p.(*Insert)
	assert.Equal(t, []int{3, 0}, ins.ColumnMap)
	assert.Equal(t, TypeValues, Child(ins).Type())
	assert.Equal(t, []string{"d", "a"}, Child(ins).Schema().Names())

	eq, err := expression.NewFunction(opcode.EQ, NewColumnRef("a"), one)
	require.NoError(t, err)
	p, err = o.Optimize(&DeleteStmt{Table: "test", Where: eq})
	require.NoError(t, err)
	assert.Equal(t, TypeDelete, p.Type())
	assert.Equal(t, TypeFilter, Child(p).Type())

	p, err = o.Optimize(&UpdateStmt{Table: "test", Assignments: []Assignment{{Column: "b", Expr: one}}})
	require.NoError(t, err)
	assert.Equal(t, "UPDATE table=test set=[b=1]", p.String())
	assert.Equal(t, TypeSeqScan, Child(p).Type())

	p, err = o.Optimize(&DropTableStmt{Tables: []string{"test"}})
	require.NoError(t, err)
	assert.Equal(t, TypeDrop, p.Type())
	assert.Equal(t, "DROP", p.Type().String())
}
