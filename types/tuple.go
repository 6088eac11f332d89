package types

import (
	"strings"

	"github.com/pingcap/tidb/util/codec"
)

// Tuple is one row of values. Tuples are never modified after they are built; operators that
// change columns build a new Tuple.
type Tuple []Datum

// NewTuple builds a tuple from Go values.
func NewTuple(args ...interface{}) Tuple {
	return Tuple(MakeDatums(args...))
}

// Project returns a new tuple made of the given offsets.
func (t Tuple) Project(offsets []int) Tuple {
	out := make(Tuple, len(offsets))
	for i, off := range offsets {
		out[i] = t[off]
	}
	return out
}

// Copy returns a tuple that shares nothing with t.
func (t Tuple) Copy() Tuple {
	out := make(Tuple, len(t))
	copy(out, t)
	return out
}

func (t Tuple) String() string {
	parts := make([]string, len(t))
	for i, d := range t {
		parts[i] = d.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

const (
	nilFlag    byte = 0
	intFlag    byte = 1
	stringFlag byte = 2
)

// EncodeKey encodes datums into a memcomparable key: the byte order of two keys is the order of
// the datum lists.
func EncodeKey(buf []byte, datums ...Datum) []byte {
	for _, d := range datums {
		switch d.Kind() {
		case KindInt64:
			buf = append(buf, intFlag)
			buf = codec.EncodeInt(buf, d.GetInt64())
		case KindString:
			buf = append(buf, stringFlag)
			buf = codec.EncodeBytes(buf, []byte(d.GetString()))
		default:
			buf = append(buf, nilFlag)
		}
	}
	return buf
}

// KeyOf encodes the datums of t at offsets, or returns nil when offsets is empty.
func (t Tuple) KeyOf(offsets []int) []byte {
	if len(offsets) == 0 {
		return nil
	}
	datums := make([]Datum, len(offsets))
	for i, off := range offsets {
		datums[i] = t[off]
	}
	return EncodeKey(nil, datums...)
}
