package types

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pingcap/errors"
)

// Kind is the kind of value a Datum holds.
type Kind byte

const (
	KindNull Kind = iota
	KindInt64
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt64:
		return "int"
	case KindString:
		return "text"
	}
	return "unknown"
}

// Datum is a single typed value. The zero Datum is NULL.
type Datum struct {
	k Kind
	i int64
	s string
}

// NewIntDatum creates an INT datum.
func NewIntDatum(i int64) Datum {
	return Datum{k: KindInt64, i: i}
}

// NewStringDatum creates a TEXT datum.
func NewStringDatum(s string) Datum {
	return Datum{k: KindString, s: s}
}

// NewBoolDatum creates an INT datum holding 1 or 0.
func NewBoolDatum(b bool) Datum {
	if b {
		return NewIntDatum(1)
	}
	return NewIntDatum(0)
}

// NewDatum converts a Go value into a Datum. Unsupported values become NULL.
func NewDatum(in interface{}) Datum {
	switch x := in.(type) {
	case nil:
		return Datum{}
	case Datum:
		return x
	case int:
		return NewIntDatum(int64(x))
	case int32:
		return NewIntDatum(int64(x))
	case int64:
		return NewIntDatum(x)
	case uint64:
		return NewIntDatum(int64(x))
	case bool:
		return NewBoolDatum(x)
	case string:
		return NewStringDatum(x)
	case []byte:
		return NewStringDatum(string(x))
	}
	return Datum{}
}

// MakeDatums creates datums from Go values.
func MakeDatums(args ...interface{}) []Datum {
	datums := make([]Datum, 0, len(args))
	for _, arg := range args {
		datums = append(datums, NewDatum(arg))
	}
	return datums
}

func (d Datum) Kind() Kind {
	return d.k
}

func (d Datum) IsNull() bool {
	return d.k == KindNull
}

func (d Datum) GetInt64() int64 {
	return d.i
}

func (d Datum) GetString() string {
	return d.s
}

// String formats the datum the way a result cell is printed.
func (d Datum) String() string {
	switch d.k {
	case KindInt64:
		return strconv.FormatInt(d.i, 10)
	case KindString:
		return d.s
	}
	return "NULL"
}

// ToBool converts the datum for predicate evaluation. NULL is reported through the first result.
func (d Datum) ToBool() (isNull bool, val bool, err error) {
	switch d.k {
	case KindNull:
		return true, false, nil
	case KindInt64:
		return false, d.i != 0, nil
	case KindString:
		i, err1 := strconv.ParseInt(strings.TrimSpace(d.s), 10, 64)
		if err1 != nil {
			return false, false, nil
		}
		return false, i != 0, nil
	}
	return false, false, errors.Errorf("cannot convert %v to bool", d.k)
}

// Compare returns -1, 0 or 1. Datums of different kinds order as NULL < INT < TEXT.
func (d Datum) Compare(o Datum) int {
	if d.k != o.k {
		if d.k < o.k {
			return -1
		}
		return 1
	}
	switch d.k {
	case KindInt64:
		switch {
		case d.i < o.i:
			return -1
		case d.i > o.i:
			return 1
		}
		return 0
	case KindString:
		return strings.Compare(d.s, o.s)
	}
	return 0
}

// Equal reports whether both datums have the same kind and value.
func (d Datum) Equal(o Datum) bool {
	return d.Compare(o) == 0
}

// GoString is used by testify when printing mismatches.
func (d Datum) GoString() string {
	if d.k == KindString {
		return fmt.Sprintf("%q", d.s)
	}
	return d.String()
}
