package expression

import (
	"testing"

	"github.com/pingcap-incubator/tinydb/terror"
	"github.com/pingcap-incubator/tinydb/types"
	"github.com/pingcap/parser/opcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func col(i int, name string) Expression {
	return &Column{Index: i, Name: name}
}

func lit(v interface{}) Expression {
	return &Constant{Value: types.NewDatum(v)}
}

func fn(t *testing.T, op opcode.Op, args ...Expression) Expression {
	f, err := NewFunction(op, args...)
	require.NoError(t, err)
	return f
}

func eval(t *testing.T, e Expression, row types.Tuple) types.Datum {
	d, err := e.Eval(row)
	require.NoError(t, err)
	return d
}

func TestCompare(t *testing.T) {
	row := types.NewTuple(int64(3), "x", nil)
	assert.Equal(t, int64(1), eval(t, fn(t, opcode.EQ, col(0, "a"), lit(int64(3))), row).GetInt64())
	assert.Equal(t, int64(0), eval(t, fn(t, opcode.LT, col(0, "a"), lit(int64(3))), row).GetInt64())
	assert.Equal(t, int64(1), eval(t, fn(t, opcode.GE, col(1, "b"), lit("w")), row).GetInt64())
	assert.True(t, eval(t, fn(t, opcode.EQ, col(2, "c"), lit(int64(1))), row).IsNull())

	_, err := fn(t, opcode.EQ, col(0, "a"), lit("3")).Eval(row)
	assert.True(t, terror.Is(err, terror.TypeCode))
}

func TestThreeValuedLogic(t *testing.T) {
	null := lit(nil)
	yes := lit(int64(1))
	no := lit(int64(0))
	cases := []struct {
		op       opcode.Op
		l, r     Expression
		wantNull bool
		want     int64
	}{
		{opcode.LogicAnd, yes, yes, false, 1},
		{opcode.LogicAnd, yes, null, true, 0},
		{opcode.LogicAnd, null, no, false, 0},
		{opcode.LogicAnd, no, null, false, 0},
		{opcode.LogicOr, null, yes, false, 1},
		{opcode.LogicOr, null, no, true, 0},
		{opcode.LogicOr, no, no, false, 0},
	}
	for _, c := range cases {
		d := eval(t, fn(t, c.op, c.l, c.r), nil)
		assert.Equal(t, c.wantNull, d.IsNull(), "%s %s %s", c.l, c.op, c.r)
		if !c.wantNull {
			assert.Equal(t, c.want, d.GetInt64(), "%s %s %s", c.l, c.op, c.r)
		}
	}
	assert.True(t, eval(t, fn(t, opcode.Not, null), nil).IsNull())
	assert.Equal(t, int64(0), eval(t, fn(t, opcode.Not, yes), nil).GetInt64())
}

func TestArithmetic(t *testing.T) {
	row := types.NewTuple(int64(7), int64(2))
	a, b := col(0, "a"), col(1, "b")
	assert.Equal(t, int64(9), eval(t, fn(t, opcode.Plus, a, b), row).GetInt64())
	assert.Equal(t, int64(5), eval(t, fn(t, opcode.Minus, a, b), row).GetInt64())
	assert.Equal(t, int64(14), eval(t, fn(t, opcode.Mul, a, b), row).GetInt64())
	assert.Equal(t, int64(3), eval(t, fn(t, opcode.Div, a, b), row).GetInt64())
	assert.Equal(t, int64(1), eval(t, fn(t, opcode.Mod, a, b), row).GetInt64())
	assert.Equal(t, int64(-7), eval(t, fn(t, opcode.Minus, a), row).GetInt64())
	assert.True(t, eval(t, fn(t, opcode.Div, a, lit(int64(0))), row).IsNull())
	assert.True(t, eval(t, fn(t, opcode.Plus, a, lit(nil)), row).IsNull())

	_, err := fn(t, opcode.Plus, a, lit("x")).Eval(row)
	assert.True(t, terror.Is(err, terror.TypeCode))
}

func TestNewFunctionChecks(t *testing.T) {
	_, err := NewFunction(opcode.EQ, lit(int64(1)))
	assert.Error(t, err)
	_, err = NewFunction(opcode.Xor, lit(int64(1)), lit(int64(1)))
	assert.True(t, terror.Is(err, terror.UnsupportedCode))
}

func TestEvalBoolAndSplit(t *testing.T) {
	row := types.NewTuple(int64(2), nil)
	gt := fn(t, opcode.GT, col(0, "a"), lit(int64(1)))
	isNull := &IsNull{Arg: col(1, "b")}
	cond := fn(t, opcode.LogicAnd, gt, fn(t, opcode.LogicAnd, isNull, fn(t, opcode.LT, col(0, "a"), lit(int64(5)))))

	conds := SplitConjunction(cond)
	require.Len(t, conds, 3)
	assert.Equal(t, "(a > 1), b IS NULL, (a < 5)", Format(conds))

	ok, err := EvalBool(conds, row)
	require.NoError(t, err)
	assert.True(t, ok)

	// NULL filters the row out.
	ok, err = EvalBool([]Expression{fn(t, opcode.EQ, col(1, "b"), lit(int64(1)))}, row)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = EvalBool([]Expression{&IsNull{Arg: col(1, "b"), Not: true}}, row)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, []int{0, 1, 0}, ColumnIndexes(cond))
}

func TestRetType(t *testing.T) {
	schema := types.NewSchema(
		types.Column{Name: "a", Tp: types.TypeInt},
		types.Column{Name: "b", Tp: types.TypeText},
	)
	assert.Equal(t, types.TypeText, col(1, "b").RetType(schema))
	assert.Equal(t, types.TypeText, lit("s").RetType(schema))
	assert.Equal(t, types.TypeInt, fn(t, opcode.Plus, col(0, "a"), lit(int64(1))).RetType(schema))
	assert.Equal(t, "'s'", lit("s").String())
}
