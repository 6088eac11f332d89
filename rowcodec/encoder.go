package rowcodec

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/juju/errors"
	"github.com/pingcap-incubator/tinydb/types"
)

// CodecVer is the first byte of every encoded row.
const CodecVer = 128

// Value flags of not-null columns.
const (
	IntFlag   byte = 3
	BytesFlag byte = 1
)

// row is the in-memory layout of an encoded row. Not-null columns come first, sorted by column
// ID, followed by the IDs of the null columns. Offsets mark the end of each not-null value in data.
type row struct {
	large          bool
	numNotNullCols uint16
	numNullCols    uint16
	valFlags       []byte
	colIDs         []byte
	offsets        []uint16
	colIDs32       []uint32
	offsets32      []uint32
	data           []byte
}

// RowBuilder encodes tuples. A builder can be reused; it is not safe for concurrent use.
type RowBuilder struct {
	row        row
	tempColIDs []int64
	values     []types.Datum
}

func (rb *RowBuilder) reset() {
	rb.row = row{
		valFlags: rb.row.valFlags[:0],
		data:     rb.row.data[:0],
	}
	rb.tempColIDs = rb.tempColIDs[:0]
	rb.values = rb.values[:0]
}

// SetTuple loads a tuple, using each column's offset as its column ID.
func (rb *RowBuilder) SetTuple(t types.Tuple) {
	rb.reset()
	for i, d := range t {
		if i > math.MaxUint8 {
			rb.row.large = true
		}
		if d.IsNull() {
			rb.row.numNullCols++
		} else {
			rb.row.numNotNullCols++
		}
		rb.tempColIDs = append(rb.tempColIDs, int64(i))
		rb.values = append(rb.values, d)
	}
}

// Build appends the encoded row to buf.
func (rb *RowBuilder) Build(buf []byte) ([]byte, error) {
	nullIdx := len(rb.tempColIDs) - int(rb.row.numNullCols)
	notNullIdx := 0
	rb.row.colIDs32 = make([]uint32, len(rb.tempColIDs))
	for i, colID := range rb.tempColIDs {
		if rb.values[i].IsNull() {
			rb.row.colIDs32[nullIdx] = uint32(colID)
			nullIdx++
		} else {
			rb.row.colIDs32[notNullIdx] = uint32(colID)
			rb.values[notNullIdx] = rb.values[i]
			notNullIdx++
		}
	}
	sort.Sort(rb)
	nulls := rb.row.colIDs32[notNullIdx:]
	sort.Slice(nulls, func(i, j int) bool { return nulls[i] < nulls[j] })

	for i := 0; i < notNullIdx; i++ {
		d := rb.values[i]
		switch d.Kind() {
		case types.KindInt64:
			rb.row.valFlags = append(rb.row.valFlags, IntFlag)
			rb.row.data = append(rb.row.data, encodeInt(d.GetInt64())...)
		case types.KindString:
			rb.row.valFlags = append(rb.row.valFlags, BytesFlag)
			rb.row.data = append(rb.row.data, d.GetString()...)
		default:
			return nil, errors.Errorf("unsupported datum kind %v", d.Kind())
		}
		rb.row.offsets32 = append(rb.row.offsets32, uint32(len(rb.row.data)))
	}
	if len(rb.row.data) > math.MaxUint16 {
		rb.row.large = true
	}
	if !rb.row.large {
		rb.row.colIDs = make([]byte, len(rb.row.colIDs32))
		for i, id := range rb.row.colIDs32 {
			rb.row.colIDs[i] = byte(id)
		}
		rb.row.offsets = make([]uint16, len(rb.row.offsets32))
		for i, off := range rb.row.offsets32 {
			rb.row.offsets[i] = uint16(off)
		}
	}

	buf = append(buf, CodecVer)
	flag := byte(0)
	if rb.row.large {
		flag = 1
	}
	buf = append(buf, flag)
	buf = append(buf, byte(rb.row.numNotNullCols), byte(rb.row.numNotNullCols>>8))
	buf = append(buf, byte(rb.row.numNullCols), byte(rb.row.numNullCols>>8))
	buf = append(buf, rb.row.valFlags...)
	if rb.row.large {
		buf = appendU32s(buf, rb.row.colIDs32)
		buf = appendU32s(buf, rb.row.offsets32)
	} else {
		buf = append(buf, rb.row.colIDs...)
		buf = appendU16s(buf, rb.row.offsets)
	}
	buf = append(buf, rb.row.data...)
	return buf, nil
}

func (rb *RowBuilder) Less(i, j int) bool {
	return rb.row.colIDs32[i] < rb.row.colIDs32[j]
}

func (rb *RowBuilder) Len() int {
	return len(rb.tempColIDs) - int(rb.row.numNullCols)
}

func (rb *RowBuilder) Swap(i, j int) {
	rb.row.colIDs32[i], rb.row.colIDs32[j] = rb.row.colIDs32[j], rb.row.colIDs32[i]
	rb.values[i], rb.values[j] = rb.values[j], rb.values[i]
}

// EncodeTuple is a shortcut for a one-off RowBuilder.
func EncodeTuple(buf []byte, t types.Tuple) ([]byte, error) {
	var rb RowBuilder
	rb.SetTuple(t)
	return rb.Build(buf)
}

func encodeInt(v int64) []byte {
	var b [8]byte
	switch {
	case v >= math.MinInt8 && v <= math.MaxInt8:
		return []byte{byte(int8(v))}
	case v >= math.MinInt16 && v <= math.MaxInt16:
		binary.LittleEndian.PutUint16(b[:], uint16(int16(v)))
		return b[:2:2]
	case v >= math.MinInt32 && v <= math.MaxInt32:
		binary.LittleEndian.PutUint32(b[:], uint32(int32(v)))
		return b[:4:4]
	}
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	return b[:]
}

func decodeInt(val []byte) (int64, error) {
	switch len(val) {
	case 1:
		return int64(int8(val[0])), nil
	case 2:
		return int64(int16(binary.LittleEndian.Uint16(val))), nil
	case 4:
		return int64(int32(binary.LittleEndian.Uint32(val))), nil
	case 8:
		return int64(binary.LittleEndian.Uint64(val)), nil
	}
	return 0, errors.Errorf("invalid int length %d", len(val))
}

func appendU16s(buf []byte, vals []uint16) []byte {
	for _, v := range vals {
		buf = append(buf, byte(v), byte(v>>8))
	}
	return buf
}

func appendU32s(buf []byte, vals []uint32) []byte {
	var b [4]byte
	for _, v := range vals {
		binary.LittleEndian.PutUint32(b[:], v)
		buf = append(buf, b[:]...)
	}
	return buf
}
