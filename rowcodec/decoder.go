package rowcodec

import (
	"encoding/binary"

	"github.com/juju/errors"
	"github.com/pingcap-incubator/tinydb/types"
)

const headerLen = 6

func (r *row) setRowData(rowData []byte) error {
	if len(rowData) < headerLen {
		return errors.Errorf("row data too short: %d", len(rowData))
	}
	if rowData[0] != CodecVer {
		return errors.Errorf("invalid codec version %d", rowData[0])
	}
	r.large = rowData[1]&1 > 0
	r.numNotNullCols = binary.LittleEndian.Uint16(rowData[2:])
	r.numNullCols = binary.LittleEndian.Uint16(rowData[4:])
	cursor := headerLen
	numCols := int(r.numNotNullCols) + int(r.numNullCols)
	idSize, offSize := 1, 2
	if r.large {
		idSize, offSize = 4, 4
	}
	need := cursor + int(r.numNotNullCols) + numCols*idSize + int(r.numNotNullCols)*offSize
	if len(rowData) < need {
		return errors.Errorf("row data truncated: need %d bytes, got %d", need, len(rowData))
	}
	r.valFlags = rowData[cursor : cursor+int(r.numNotNullCols)]
	cursor += int(r.numNotNullCols)
	if r.large {
		r.colIDs32 = make([]uint32, numCols)
		for i := range r.colIDs32 {
			r.colIDs32[i] = binary.LittleEndian.Uint32(rowData[cursor:])
			cursor += 4
		}
		r.offsets32 = make([]uint32, r.numNotNullCols)
		for i := range r.offsets32 {
			r.offsets32[i] = binary.LittleEndian.Uint32(rowData[cursor:])
			cursor += 4
		}
	} else {
		r.colIDs = rowData[cursor : cursor+numCols]
		cursor += numCols
		r.offsets = make([]uint16, r.numNotNullCols)
		for i := range r.offsets {
			r.offsets[i] = binary.LittleEndian.Uint16(rowData[cursor:])
			cursor += 2
		}
	}
	r.data = rowData[cursor:]
	if r.numNotNullCols > 0 && int(r.offset(int(r.numNotNullCols)-1)) > len(r.data) {
		return errors.New("row data truncated")
	}
	return nil
}

func (r *row) colID(i int) int {
	if r.large {
		return int(r.colIDs32[i])
	}
	return int(r.colIDs[i])
}

func (r *row) offset(i int) uint32 {
	if r.large {
		return r.offsets32[i]
	}
	return uint32(r.offsets[i])
}

func (r *row) getData(i int) []byte {
	var start uint32
	if i > 0 {
		start = r.offset(i - 1)
	}
	return r.data[start:r.offset(i)]
}

// DecodeTuple decodes a row built by RowBuilder into a tuple of numCols columns. Columns missing
// from the row decode as NULL.
func DecodeTuple(rowData []byte, numCols int) (types.Tuple, error) {
	var r row
	if err := r.setRowData(rowData); err != nil {
		return nil, errors.Trace(err)
	}
	t := make(types.Tuple, numCols)
	for i := 0; i < int(r.numNotNullCols); i++ {
		id := r.colID(i)
		if id >= numCols {
			return nil, errors.Errorf("column id %d out of range %d", id, numCols)
		}
		val := r.getData(i)
		switch r.valFlags[i] {
		case IntFlag:
			v, err := decodeInt(val)
			if err != nil {
				return nil, errors.Trace(err)
			}
			t[id] = types.NewIntDatum(v)
		case BytesFlag:
			t[id] = types.NewStringDatum(string(val))
		default:
			return nil, errors.Errorf("unknown value flag %d", r.valFlags[i])
		}
	}
	return t, nil
}
