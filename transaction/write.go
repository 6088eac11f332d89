package transaction

import (
	"bytes"
	"encoding/binary"
	"strings"

	"github.com/ngaut/log"
	"github.com/pingcap-incubator/tinydb/storage"
	"github.com/pingcap-incubator/tinydb/terror"
	"github.com/pingcap-incubator/tinydb/types"
	"github.com/pingcap-incubator/tinydb/wal"
	"github.com/pingcap/errors"
)

// Read returns the newest version of the chain starting at head that txn sees, walking the chain
// newest-first. ok is false when no version is visible.
func (m *Manager) Read(txn *Txn, head storage.VersionRef) (v storage.Version, ok bool, err error) {
	if err := m.checkUsable(txn); err != nil {
		return storage.Version{}, false, err
	}
	return m.visibleVersion(txn, head)
}

func (m *Manager) visibleVersion(txn *Txn, head storage.VersionRef) (storage.Version, bool, error) {
	for ref := head; ref != storage.NilRef; {
		v, err := m.store.Get(ref)
		if err != nil {
			if storage.IsNotFound(err) {
				return storage.Version{}, false, nil
			}
			return storage.Version{}, false, errors.Trace(err)
		}
		if m.IsVisible(v, txn) {
			return v, true, nil
		}
		ref = v.Prev
	}
	return storage.Version{}, false, nil
}

// checkKey fails when a row other than except holds key in txn's view.
func (m *Manager) checkKey(txn *Txn, table string, key []byte, except storage.RowID, tuple types.Tuple, schema *types.Schema) error {
	rows, err := m.store.LookupKey(table, key)
	if err != nil {
		return errors.Trace(err)
	}
	for _, row := range rows {
		if row == except {
			continue
		}
		head, err := m.store.Head(row)
		if err != nil {
			continue
		}
		v, ok, err := m.visibleVersion(txn, head)
		if err != nil {
			return errors.Trace(err)
		}
		if ok && bytes.Equal(v.Key, key) {
			return errors.WithStack(&terror.ErrKeyAlreadyExists{
				Table: table,
				Key:   tuple.Project(schema.PKOffsets()).String(),
			})
		}
	}
	return nil
}

func (m *Manager) noteConflict(txn *Txn, err error) {
	if terror.IsRetryable(err) {
		txnCounter.WithLabelValues("write_conflict").Inc()
		log.Warnf("txn %d write conflict: %v", txn.startTS, err)
	}
}

// Insert adds tuple to table as a new row created by txn. A primary key already visible to txn
// fails with ErrKeyAlreadyExists.
func (m *Manager) Insert(txn *Txn, table string, tuple types.Tuple) (storage.VersionRef, error) {
	txn.mu.Lock()
	defer txn.mu.Unlock()
	if err := m.checkUsable(txn); err != nil {
		return storage.NilRef, err
	}
	schema, err := m.store.Schema(table)
	if err != nil {
		return storage.NilRef, errors.Trace(err)
	}
	key := tuple.KeyOf(schema.PKOffsets())
	if key != nil {
		if err := m.checkKey(txn, table, key, 0, tuple, schema); err != nil {
			return storage.NilRef, err
		}
	}
	ref, row, err := m.store.Insert(table, tuple, txn.startTS)
	if err != nil {
		return storage.NilRef, errors.Trace(err)
	}
	txn.writes = append(txn.writes, write{kind: writeInsert, table: table, row: row, created: ref, key: key})
	m.sink.Notify(wal.Event{Type: wal.EventInsert, StartTS: txn.startTS, Table: table, Row: uint64(row), Tuple: tuple})
	return ref, nil
}

// Delete marks v, a version visible to txn, as deleted by txn. If another transaction already
// wrote the row, a conflict is returned.
func (m *Manager) Delete(txn *Txn, table string, v storage.Version) error {
	txn.mu.Lock()
	defer txn.mu.Unlock()
	if err := m.checkUsable(txn); err != nil {
		return err
	}
	if err := m.store.Delete(v.Ref, txn.startTS); err != nil {
		m.noteConflict(txn, err)
		return err
	}
	txn.writes = append(txn.writes, write{kind: writeDelete, table: table, row: v.Row, deleted: v.Ref})
	m.sink.Notify(wal.Event{Type: wal.EventDelete, StartTS: txn.startTS, Table: table, Row: uint64(v.Row)})
	return nil
}

// Update replaces v, a version visible to txn, with tuple.
func (m *Manager) Update(txn *Txn, table string, v storage.Version, tuple types.Tuple) (storage.VersionRef, error) {
	txn.mu.Lock()
	defer txn.mu.Unlock()
	if err := m.checkUsable(txn); err != nil {
		return storage.NilRef, err
	}
	schema, err := m.store.Schema(table)
	if err != nil {
		return storage.NilRef, errors.Trace(err)
	}
	var changedKey []byte
	if key := tuple.KeyOf(schema.PKOffsets()); key != nil && !bytes.Equal(key, v.Key) {
		if err := m.checkKey(txn, table, key, v.Row, tuple, schema); err != nil {
			return storage.NilRef, err
		}
		changedKey = key
	}
	ref, err := m.store.Update(v.Ref, tuple, txn.startTS)
	if err != nil {
		m.noteConflict(txn, err)
		return storage.NilRef, err
	}
	txn.writes = append(txn.writes, write{kind: writeUpdate, table: table, row: v.Row, created: ref, deleted: v.Ref, key: changedKey})
	m.sink.Notify(wal.Event{Type: wal.EventDelete, StartTS: txn.startTS, Table: table, Row: uint64(v.Row)})
	m.sink.Notify(wal.Event{Type: wal.EventInsert, StartTS: txn.startTS, Table: table, Row: uint64(v.Row), Tuple: tuple})
	return ref, nil
}

// latchKeys returns the keys txn's commit must latch: every written row and every primary key it
// claims.
func (txn *Txn) latchKeys() [][]byte {
	keys := make([][]byte, 0, len(txn.writes))
	for _, w := range txn.writes {
		var rowKey [9]byte
		rowKey[0] = 'r'
		binary.BigEndian.PutUint64(rowKey[1:], uint64(w.row))
		keys = append(keys, rowKey[:])
		if w.key != nil {
			keys = append(keys, append([]byte("k"+strings.ToLower(w.table)+"\x00"), w.key...))
		}
	}
	return keys
}

// committedAfter reports whether the version was created by another transaction that committed
// after startTS.
func (m *Manager) committedAfter(v storage.Version, startTS uint64) bool {
	if v.Dead || v.Creator == startTS {
		return false
	}
	ts, committed, known := m.commitTSOf(v.Creator, v.CreateCommitTS)
	if !known {
		fresh, err := m.store.Get(v.Ref)
		if err != nil || fresh.Dead {
			return false
		}
		ts, committed = fresh.CreateCommitTS, fresh.CreateCommitTS != 0
	}
	return committed && ts > startTS
}

// validate runs first-committer-wins checks over the write set. The caller holds the latches of
// every row and key in it.
func (m *Manager) validate(txn *Txn) error {
	for _, w := range txn.writes {
		if w.kind != writeInsert {
			if err := m.validateRow(txn, w); err != nil {
				return err
			}
		}
		if w.key != nil {
			if err := m.validateKey(txn, w); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Manager) validateRow(txn *Txn, w write) error {
	head, err := m.store.Head(w.row)
	if err != nil {
		return nil
	}
	mine := w.created
	if mine == storage.NilRef {
		mine = w.deleted
	}
	for ref := head; ref != storage.NilRef && ref != mine; {
		v, err := m.store.Get(ref)
		if err != nil {
			break
		}
		if m.committedAfter(v, txn.startTS) {
			return errors.WithStack(&terror.ErrConflict{
				StartTS:          txn.startTS,
				ConflictTS:       v.Creator,
				ConflictCommitTS: v.CreateCommitTS,
				Row:              uint64(w.row),
				Reason:           "row was modified by a transaction that committed first",
			})
		}
		ref = v.Prev
	}
	return nil
}

// validateKey fails when another row whose latest committed version holds w.key is still live.
func (m *Manager) validateKey(txn *Txn, w write) error {
	rows, err := m.store.LookupKey(w.table, w.key)
	if err != nil {
		return errors.Trace(err)
	}
	for _, row := range rows {
		if row == w.row {
			continue
		}
		head, err := m.store.Head(row)
		if err != nil {
			continue
		}
		v, ok := m.latestCommitted(head)
		if !ok || !bytes.Equal(v.Key, w.key) || v.Deleter == txn.startTS {
			continue
		}
		if v.Deleter != 0 {
			_, committed, known := m.commitTSOf(v.Deleter, v.DeleteCommitTS)
			if !known {
				fresh, err := m.store.Get(v.Ref)
				committed = err != nil || fresh.DeleteCommitTS != 0
			}
			if committed {
				continue
			}
		}
		return errors.WithStack(&terror.ErrConflict{
			StartTS:          txn.startTS,
			ConflictTS:       v.Creator,
			ConflictCommitTS: v.CreateCommitTS,
			Row:              uint64(row),
			Reason:           "duplicate primary key committed first",
		})
	}
	return nil
}

// latestCommitted returns the newest version of a chain whose creator committed.
func (m *Manager) latestCommitted(head storage.VersionRef) (storage.Version, bool) {
	for ref := head; ref != storage.NilRef; {
		v, err := m.store.Get(ref)
		if err != nil {
			return storage.Version{}, false
		}
		if !v.Dead {
			_, committed, known := m.commitTSOf(v.Creator, v.CreateCommitTS)
			if !known {
				if fresh, err := m.store.Get(ref); err == nil && !fresh.Dead {
					v, committed = fresh, fresh.CreateCommitTS != 0
				}
			}
			if committed {
				return v, true
			}
		}
		ref = v.Prev
	}
	return storage.Version{}, false
}
