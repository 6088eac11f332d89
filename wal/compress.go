package wal

import (
	"encoding/binary"
	"math"

	"github.com/pierrec/lz4"
	"github.com/pingcap/errors"
)

var errDecompress = errors.New("wal: corrupt compressed payload")

// lz4Compress prefixes the block with the uvarint raw length. It returns nil when the input does
// not compress.
func lz4Compress(input []byte) []byte {
	rawLen := len(input)
	if rawLen > math.MaxUint32 {
		return nil
	}
	var sizeBuf [binary.MaxVarintLen32]byte
	n := binary.PutUvarint(sizeBuf[:], uint64(rawLen))
	dst := make([]byte, n+lz4.CompressBlockBound(rawLen))
	copy(dst, sizeBuf[:n])
	var ht [1 << 16]int
	m, err := lz4.CompressBlock(input, dst[n:], ht[:])
	if err != nil || m == 0 {
		return nil
	}
	return dst[:n+m]
}

// compressPayload compresses input when it is at least threshold bytes and the ratio is worth it.
// A non-positive threshold disables compression.
func compressPayload(input []byte, threshold int) ([]byte, bool) {
	if threshold <= 0 || len(input) < threshold {
		return input, false
	}
	compressed := lz4Compress(input)
	if compressed == nil || len(compressed) >= len(input)-len(input)/8 {
		return input, false
	}
	return compressed, true
}

func lz4Decompress(input []byte) ([]byte, error) {
	size, n := binary.Uvarint(input)
	if n <= 0 || size > math.MaxUint32 {
		return nil, errDecompress
	}
	dst := make([]byte, size)
	m, err := lz4.UncompressBlock(input[n:], dst)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if uint64(m) != size {
		return nil, errDecompress
	}
	return dst, nil
}
