package storage

import (
	"bytes"

	"github.com/google/btree"
)

// indexItem is a primary key index entry. Entries are ordered by key, then row, so one key may
// map to several chains: old rows that held the key and new rows that claim it.
type indexItem struct {
	key []byte
	row RowID
}

func (i *indexItem) Less(than btree.Item) bool {
	o := than.(*indexItem)
	if c := bytes.Compare(i.key, o.key); c != 0 {
		return c < 0
	}
	return i.row < o.row
}
