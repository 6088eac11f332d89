// Package expression evaluates scalar expressions over tuples: column references, constants,
// comparisons, three-valued logic, integer arithmetic and NULL tests.
package expression

import (
	"strings"

	"github.com/pingcap-incubator/tinydb/terror"
	"github.com/pingcap-incubator/tinydb/types"
	"github.com/pingcap/errors"
	"github.com/pingcap/parser/opcode"
)

// Expression is a scalar expression bound to the column offsets of its input tuples.
type Expression interface {
	Eval(row types.Tuple) (types.Datum, error)
	// RetType returns the result type given the input schema.
	RetType(schema *types.Schema) types.FieldType
	String() string
}

// Column reads the column at Index.
type Column struct {
	Index int
	Name  string
}

func (c *Column) Eval(row types.Tuple) (types.Datum, error) {
	if c.Index < 0 || c.Index >= len(row) {
		return types.Datum{}, errors.Errorf("column %s offset %d out of range %d", c.Name, c.Index, len(row))
	}
	return row[c.Index], nil
}

func (c *Column) RetType(schema *types.Schema) types.FieldType {
	return schema.Columns[c.Index].Tp
}

func (c *Column) String() string {
	return c.Name
}

// Constant is a literal value.
type Constant struct {
	Value types.Datum
}

func (c *Constant) Eval(types.Tuple) (types.Datum, error) {
	return c.Value, nil
}

func (c *Constant) RetType(*types.Schema) types.FieldType {
	if c.Value.Kind() == types.KindString {
		return types.TypeText
	}
	return types.TypeInt
}

func (c *Constant) String() string {
	if c.Value.Kind() == types.KindString {
		return "'" + c.Value.GetString() + "'"
	}
	return c.Value.String()
}

// ScalarFunction applies an operator to its arguments. Binary operators take two arguments,
// opcode.Not and opcode.Minus (negation) one.
type ScalarFunction struct {
	Op   opcode.Op
	Args []Expression
}

// NewFunction builds a ScalarFunction, checking the operator and its arity.
func NewFunction(op opcode.Op, args ...Expression) (*ScalarFunction, error) {
	want := 2
	if op == opcode.Not || (op == opcode.Minus && len(args) == 1) {
		want = 1
	}
	if _, ok := opSymbols[op]; !ok {
		return nil, terror.Unsupportedf("operator %s", op)
	}
	if len(args) != want {
		return nil, errors.Errorf("operator %s takes %d arguments, got %d", op, want, len(args))
	}
	return &ScalarFunction{Op: op, Args: args}, nil
}

var opSymbols = map[opcode.Op]string{
	opcode.EQ:       "=",
	opcode.NE:       "!=",
	opcode.LT:       "<",
	opcode.LE:       "<=",
	opcode.GT:       ">",
	opcode.GE:       ">=",
	opcode.LogicAnd: "AND",
	opcode.LogicOr:  "OR",
	opcode.Not:      "NOT",
	opcode.Plus:     "+",
	opcode.Minus:    "-",
	opcode.Mul:      "*",
	opcode.Div:      "/",
	opcode.Mod:      "%",
}

func (f *ScalarFunction) RetType(*types.Schema) types.FieldType {
	return types.TypeInt
}

func (f *ScalarFunction) String() string {
	sym := opSymbols[f.Op]
	if len(f.Args) == 1 {
		return sym + "(" + f.Args[0].String() + ")"
	}
	return "(" + f.Args[0].String() + " " + sym + " " + f.Args[1].String() + ")"
}

func (f *ScalarFunction) Eval(row types.Tuple) (types.Datum, error) {
	switch f.Op {
	case opcode.LogicAnd, opcode.LogicOr:
		return f.evalLogic(row)
	case opcode.Not:
		d, err := f.Args[0].Eval(row)
		if err != nil {
			return types.Datum{}, errors.Trace(err)
		}
		isNull, v, err := d.ToBool()
		if err != nil || isNull {
			return types.Datum{}, errors.Trace(err)
		}
		return types.NewBoolDatum(!v), nil
	case opcode.Minus:
		if len(f.Args) == 1 {
			d, err := f.Args[0].Eval(row)
			if err != nil {
				return types.Datum{}, errors.Trace(err)
			}
			return arith(opcode.Minus, types.NewIntDatum(0), d)
		}
	}

	l, err := f.Args[0].Eval(row)
	if err != nil {
		return types.Datum{}, errors.Trace(err)
	}
	r, err := f.Args[1].Eval(row)
	if err != nil {
		return types.Datum{}, errors.Trace(err)
	}
	switch f.Op {
	case opcode.EQ, opcode.NE, opcode.LT, opcode.LE, opcode.GT, opcode.GE:
		return compare(f.Op, l, r)
	}
	return arith(f.Op, l, r)
}

func (f *ScalarFunction) evalLogic(row types.Tuple) (types.Datum, error) {
	l, err := f.Args[0].Eval(row)
	if err != nil {
		return types.Datum{}, errors.Trace(err)
	}
	lNull, lv, err := l.ToBool()
	if err != nil {
		return types.Datum{}, errors.Trace(err)
	}
	// Short circuit when the left side decides.
	if !lNull && f.Op == opcode.LogicAnd && !lv {
		return types.NewBoolDatum(false), nil
	}
	if !lNull && f.Op == opcode.LogicOr && lv {
		return types.NewBoolDatum(true), nil
	}
	r, err := f.Args[1].Eval(row)
	if err != nil {
		return types.Datum{}, errors.Trace(err)
	}
	rNull, rv, err := r.ToBool()
	if err != nil {
		return types.Datum{}, errors.Trace(err)
	}
	if f.Op == opcode.LogicAnd {
		if !rNull && !rv {
			return types.NewBoolDatum(false), nil
		}
		if lNull || rNull {
			return types.Datum{}, nil
		}
		return types.NewBoolDatum(true), nil
	}
	if !rNull && rv {
		return types.NewBoolDatum(true), nil
	}
	if lNull || rNull {
		return types.Datum{}, nil
	}
	return types.NewBoolDatum(false), nil
}

func compare(op opcode.Op, l, r types.Datum) (types.Datum, error) {
	if l.IsNull() || r.IsNull() {
		return types.Datum{}, nil
	}
	if l.Kind() != r.Kind() {
		return types.Datum{}, terror.TypeMismatchf("cannot compare %s with %s", l.Kind(), r.Kind())
	}
	c := l.Compare(r)
	var v bool
	switch op {
	case opcode.EQ:
		v = c == 0
	case opcode.NE:
		v = c != 0
	case opcode.LT:
		v = c < 0
	case opcode.LE:
		v = c <= 0
	case opcode.GT:
		v = c > 0
	case opcode.GE:
		v = c >= 0
	}
	return types.NewBoolDatum(v), nil
}

func arith(op opcode.Op, l, r types.Datum) (types.Datum, error) {
	if l.IsNull() || r.IsNull() {
		return types.Datum{}, nil
	}
	if l.Kind() != types.KindInt64 || r.Kind() != types.KindInt64 {
		return types.Datum{}, terror.TypeMismatchf("operator %s needs int operands, got %s and %s", opSymbols[op], l.Kind(), r.Kind())
	}
	a, b := l.GetInt64(), r.GetInt64()
	switch op {
	case opcode.Plus:
		return types.NewIntDatum(a + b), nil
	case opcode.Minus:
		return types.NewIntDatum(a - b), nil
	case opcode.Mul:
		return types.NewIntDatum(a * b), nil
	case opcode.Div:
		if b == 0 {
			return types.Datum{}, nil
		}
		return types.NewIntDatum(a / b), nil
	case opcode.Mod:
		if b == 0 {
			return types.Datum{}, nil
		}
		return types.NewIntDatum(a % b), nil
	}
	return types.Datum{}, terror.Unsupportedf("operator %s", op)
}

// IsNull tests its argument for NULL. It never returns NULL itself.
type IsNull struct {
	Arg Expression
	Not bool
}

func (e *IsNull) Eval(row types.Tuple) (types.Datum, error) {
	d, err := e.Arg.Eval(row)
	if err != nil {
		return types.Datum{}, errors.Trace(err)
	}
	return types.NewBoolDatum(d.IsNull() != e.Not), nil
}

func (e *IsNull) RetType(*types.Schema) types.FieldType {
	return types.TypeInt
}

func (e *IsNull) String() string {
	if e.Not {
		return e.Arg.String() + " IS NOT NULL"
	}
	return e.Arg.String() + " IS NULL"
}

// EvalBool evaluates a conjunction of conditions. NULL counts as false.
func EvalBool(conds []Expression, row types.Tuple) (bool, error) {
	for _, cond := range conds {
		d, err := cond.Eval(row)
		if err != nil {
			return false, errors.Trace(err)
		}
		isNull, v, err := d.ToBool()
		if err != nil {
			return false, errors.Trace(err)
		}
		if isNull || !v {
			return false, nil
		}
	}
	return true, nil
}

// SplitConjunction flattens nested ANDs into a list of conditions.
func SplitConjunction(expr Expression) []Expression {
	if f, ok := expr.(*ScalarFunction); ok && f.Op == opcode.LogicAnd {
		return append(SplitConjunction(f.Args[0]), SplitConjunction(f.Args[1])...)
	}
	return []Expression{expr}
}

// Format renders a list of expressions separated by commas.
func Format(exprs []Expression) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}

// ColumnIndexes returns the offsets of the columns an expression reads.
func ColumnIndexes(expr Expression) []int {
	switch x := expr.(type) {
	case *Column:
		return []int{x.Index}
	case *ScalarFunction:
		var idx []int
		for _, arg := range x.Args {
			idx = append(idx, ColumnIndexes(arg)...)
		}
		return idx
	case *IsNull:
		return ColumnIndexes(x.Arg)
	}
	return nil
}
