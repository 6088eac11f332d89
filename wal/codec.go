package wal

import (
	"encoding/binary"

	"github.com/pingcap-incubator/tinydb/rowcodec"
	"github.com/pingcap/errors"
	"github.com/pingcap/tidb/util/codec"
)

const (
	eventKeyPrefix = 'e'

	flagCompressed byte = 1
)

// eventKey orders events by sequence number.
func eventKey(seq uint64) []byte {
	return codec.EncodeUint([]byte{eventKeyPrefix}, seq)
}

func decodeEventKey(key []byte) (uint64, error) {
	if len(key) == 0 || key[0] != eventKeyPrefix {
		return 0, errors.Errorf("wal: invalid event key %q", key)
	}
	_, seq, err := codec.DecodeUint(key[1:])
	return seq, errors.Trace(err)
}

// encodeEvent lays out an event as
//
//	type(1) flags(1) payload
//	payload = uvarint(startTS) uvarint(commitTS) uvarint(row) uvarint(len(table)) table
//	          [uvarint(numCols) rowcodec row]
//
// The payload is lz4 compressed when it reaches threshold bytes.
func encodeEvent(ev Event, threshold int) ([]byte, error) {
	payload := make([]byte, 0, 32+len(ev.Table))
	payload = appendUvarint(payload, ev.StartTS)
	payload = appendUvarint(payload, ev.CommitTS)
	payload = appendUvarint(payload, ev.Row)
	payload = appendUvarint(payload, uint64(len(ev.Table)))
	payload = append(payload, ev.Table...)
	if ev.Tuple != nil {
		payload = appendUvarint(payload, uint64(len(ev.Tuple)))
		var err error
		if payload, err = rowcodec.EncodeTuple(payload, ev.Tuple); err != nil {
			return nil, errors.Trace(err)
		}
	}
	var flags byte
	if compressed, ok := compressPayload(payload, threshold); ok {
		payload, flags = compressed, flagCompressed
	}
	return append([]byte{byte(ev.Type), flags}, payload...), nil
}

func decodeEvent(val []byte) (Event, error) {
	if len(val) < 2 {
		return Event{}, errors.Errorf("wal: event too short, %d bytes", len(val))
	}
	ev := Event{Type: EventType(val[0])}
	payload := val[2:]
	if val[1]&flagCompressed != 0 {
		var err error
		if payload, err = lz4Decompress(payload); err != nil {
			return Event{}, err
		}
	}
	d := decoder{buf: payload}
	ev.StartTS = d.uvarint()
	ev.CommitTS = d.uvarint()
	ev.Row = d.uvarint()
	ev.Table = string(d.bytes(int(d.uvarint())))
	if d.err == nil && len(d.buf) > 0 {
		numCols := int(d.uvarint())
		if d.err == nil {
			tuple, err := rowcodec.DecodeTuple(d.buf, numCols)
			if err != nil {
				return Event{}, errors.Trace(err)
			}
			ev.Tuple = tuple
		}
	}
	if d.err != nil {
		return Event{}, d.err
	}
	return ev, nil
}

func appendUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

// decoder reads a payload front to back and keeps the first error.
type decoder struct {
	buf []byte
	err error
}

func (d *decoder) uvarint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.buf)
	if n <= 0 {
		d.err = errors.New("wal: truncated varint")
		return 0
	}
	d.buf = d.buf[n:]
	return v
}

func (d *decoder) bytes(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || n > len(d.buf) {
		d.err = errors.Errorf("wal: need %d bytes, have %d", n, len(d.buf))
		return nil
	}
	b := d.buf[:n]
	d.buf = d.buf[n:]
	return b
}
