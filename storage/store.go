// Package storage implements the version store: every tuple version of every table lives in one
// arena owned by the Store. Callers address versions with VersionRef values and never hold
// pointers into the arena. Deciding which version of a chain a transaction sees is left to the
// transaction package.
package storage

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/btree"
	"github.com/ngaut/log"
	"github.com/pingcap-incubator/tinydb/terror"
	"github.com/pingcap-incubator/tinydb/types"
	"github.com/pingcap/errors"
)

// VersionRef addresses a version in the arena. The zero value refers to nothing.
type VersionRef uint64

// NilRef is the empty reference.
const NilRef VersionRef = 0

// ErrVersionNotFound is returned for refs whose version was reclaimed. Readers treat it as the
// end of the chain: reclaimed versions are invisible to every active transaction.
var ErrVersionNotFound = errors.New("version not found")

// IsNotFound reports whether err is caused by ErrVersionNotFound.
func IsNotFound(err error) bool {
	return errors.Cause(err) == ErrVersionNotFound
}

// RowID identifies a logical row, that is one version chain.
type RowID uint64

type version struct {
	tuple     types.Tuple
	key       []byte
	row       RowID
	creator   uint64
	createdAt uint64
	deleter   uint64
	deletedAt uint64
	dead      bool
	prev      VersionRef
	next      VersionRef
}

// Version is a copy of a version's data and metadata taken under the chain lock.
type Version struct {
	Ref   VersionRef
	Row   RowID
	Tuple types.Tuple
	// Key is the encoded primary key, nil for tables without one.
	Key []byte
	// Creator and Deleter are transaction start timestamps, Deleter is 0 while the version is live.
	Creator uint64
	Deleter uint64
	// CreateCommitTS and DeleteCommitTS are 0 until the owning transaction's commit is stamped.
	CreateCommitTS uint64
	DeleteCommitTS uint64
	Dead           bool
	// Prev is the older version, Next the newer one.
	Prev VersionRef
	Next VersionRef
}

type chain struct {
	mu    sync.RWMutex
	head  VersionRef
	table *table
}

type table struct {
	name     string
	schema   *types.Schema
	pkOffset []int

	mu    sync.RWMutex
	rows  []RowID
	index *btree.BTree
}

// Store is the version store.
type Store struct {
	mu       sync.RWMutex
	versions []*version
	chains   map[RowID]*chain
	tables   map[string]*table
	nextRow  RowID
	liveRefs int
	orphans  []orphan
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		// Slot 0 backs NilRef.
		versions: make([]*version, 1, 1024),
		chains:   make(map[RowID]*chain),
		tables:   make(map[string]*table),
	}
}

func tableKey(name string) string {
	return strings.ToLower(name)
}

// CreateTable registers a heap for a table.
func (s *Store) CreateTable(name string, schema *types.Schema) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := tableKey(name)
	if _, ok := s.tables[k]; ok {
		return errors.Errorf("table %s already has storage", name)
	}
	s.tables[k] = &table{
		name:     name,
		schema:   schema,
		pkOffset: schema.PKOffsets(),
		index:    btree.New(32),
	}
	log.Infof("storage: created heap for table %s %s", name, schema)
	return nil
}

// DropTable removes a table's heap together with all its versions.
func (s *Store) DropTable(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := tableKey(name)
	t, ok := s.tables[k]
	if !ok {
		return errors.Errorf("table %s has no storage", name)
	}
	delete(s.tables, k)
	var freed int
	for _, row := range t.rows {
		c := s.chains[row]
		if c == nil {
			continue
		}
		for ref := c.head; ref != NilRef; {
			v := s.versions[ref]
			if v == nil {
				break
			}
			s.versions[ref] = nil
			freed++
			ref = v.prev
		}
		delete(s.chains, row)
	}
	s.liveRefs -= freed
	log.Infof("storage: dropped heap for table %s, freed %d versions", name, freed)
	return nil
}

// HasTable reports whether a heap exists for the table.
func (s *Store) HasTable(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tables[tableKey(name)]
	return ok
}

func (s *Store) getTable(name string) (*table, error) {
	t, ok := s.tables[tableKey(name)]
	if !ok {
		return nil, terror.Unresolvedf("table %s does not exist", name)
	}
	return t, nil
}

// alloc appends v to the arena. s.mu must be held for writing.
func (s *Store) alloc(v *version) VersionRef {
	s.versions = append(s.versions, v)
	s.liveRefs++
	return VersionRef(len(s.versions) - 1)
}

// Insert starts a new chain whose only version is created by txn. The version is visible to
// nobody but txn until txn commits.
func (s *Store) Insert(tableName string, tuple types.Tuple, txn uint64) (VersionRef, RowID, error) {
	s.mu.Lock()
	t, err := s.getTable(tableName)
	if err != nil {
		s.mu.Unlock()
		return NilRef, 0, err
	}
	s.nextRow++
	row := s.nextRow
	v := &version{
		tuple:   tuple,
		key:     tuple.KeyOf(t.pkOffset),
		row:     row,
		creator: txn,
	}
	ref := s.alloc(v)
	s.chains[row] = &chain{head: ref, table: t}
	s.mu.Unlock()

	t.mu.Lock()
	t.rows = append(t.rows, row)
	if v.key != nil {
		t.index.ReplaceOrInsert(&indexItem{key: v.key, row: row})
	}
	t.mu.Unlock()
	return ref, row, nil
}

// lookup returns the version and its chain. The chain lock is not taken.
func (s *Store) lookup(ref VersionRef) (*version, *chain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ref == NilRef || int(ref) >= len(s.versions) || s.versions[ref] == nil {
		return nil, nil, errors.Annotatef(ErrVersionNotFound, "ref %d", ref)
	}
	v := s.versions[ref]
	c := s.chains[v.row]
	if c == nil {
		return nil, nil, errors.Annotatef(ErrVersionNotFound, "row %d of ref %d has no chain", v.row, ref)
	}
	return v, c, nil
}

func snapshot(ref VersionRef, v *version) Version {
	return Version{
		Ref:            ref,
		Row:            v.row,
		Tuple:          v.tuple,
		Key:            v.key,
		Creator:        v.creator,
		Deleter:        v.deleter,
		CreateCommitTS: v.createdAt,
		DeleteCommitTS: v.deletedAt,
		Dead:           v.dead,
		Prev:           v.prev,
		Next:           v.next,
	}
}

// Get returns a snapshot of the version.
func (s *Store) Get(ref VersionRef) (Version, error) {
	v, c, err := s.lookup(ref)
	if err != nil {
		return Version{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return snapshot(ref, v), nil
}

// Head returns the newest version of a row.
func (s *Store) Head(row RowID) (VersionRef, error) {
	s.mu.RLock()
	c := s.chains[row]
	s.mu.RUnlock()
	if c == nil {
		return NilRef, errors.Errorf("row %d does not exist", row)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.head, nil
}

// Scan returns the head of every chain of the table in insertion order. The result is a
// snapshot: chains started afterwards are not included.
func (s *Store) Scan(tableName string) ([]VersionRef, error) {
	s.mu.RLock()
	t, err := s.getTable(tableName)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	t.mu.RLock()
	rows := make([]RowID, len(t.rows))
	copy(rows, t.rows)
	t.mu.RUnlock()

	chains := make([]*chain, 0, len(rows))
	s.mu.RLock()
	for _, row := range rows {
		if c := s.chains[row]; c != nil {
			chains = append(chains, c)
		}
	}
	s.mu.RUnlock()

	// A chain lock is never taken while s.mu is held.
	heads := make([]VersionRef, 0, len(chains))
	for _, c := range chains {
		c.mu.RLock()
		heads = append(heads, c.head)
		c.mu.RUnlock()
	}
	return heads, nil
}

func conflictOnWrite(v *version, ref VersionRef, head VersionRef, txn uint64) error {
	switch {
	case v.dead:
		return &terror.ErrConflict{StartTS: txn, ConflictTS: v.creator, Row: uint64(v.row),
			Reason: fmt.Sprintf("version %d was rolled back", ref)}
	case head != ref:
		return &terror.ErrConflict{StartTS: txn, Row: uint64(v.row),
			Reason: fmt.Sprintf("version %d is not the newest, head is %d", ref, head)}
	case v.deleter != 0 && v.deleter != txn:
		return &terror.ErrConflict{StartTS: txn, ConflictTS: v.deleter, ConflictCommitTS: v.deletedAt, Row: uint64(v.row),
			Reason: "row is already deleted or updated"}
	}
	return nil
}

// Delete tags the version as deleted by txn. The version must be the head of its chain and must
// not carry another deleter, otherwise a conflict is returned.
func (s *Store) Delete(ref VersionRef, txn uint64) error {
	v, c, err := s.lookup(ref)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := conflictOnWrite(v, ref, c.head, txn); err != nil {
		return errors.WithStack(err)
	}
	v.deleter = txn
	return nil
}

// Update deletes ref on behalf of txn and appends tuple as the new head of the chain.
func (s *Store) Update(ref VersionRef, tuple types.Tuple, txn uint64) (VersionRef, error) {
	v, c, err := s.lookup(ref)
	if err != nil {
		return NilRef, err
	}
	c.mu.Lock()
	if err := conflictOnWrite(v, ref, c.head, txn); err != nil {
		c.mu.Unlock()
		return NilRef, errors.WithStack(err)
	}
	nv := &version{
		tuple:   tuple,
		key:     tuple.KeyOf(c.table.pkOffset),
		row:     v.row,
		creator: txn,
		prev:    ref,
	}
	s.mu.Lock()
	newRef := s.alloc(nv)
	s.mu.Unlock()
	v.deleter = txn
	v.next = newRef
	c.head = newRef
	c.mu.Unlock()

	if nv.key != nil && string(nv.key) != string(v.key) {
		t := c.table
		t.mu.Lock()
		t.index.ReplaceOrInsert(&indexItem{key: nv.key, row: nv.row})
		t.mu.Unlock()
	}
	return newRef, nil
}

// StampCreate records the commit timestamp of the version's creator.
func (s *Store) StampCreate(ref VersionRef, commitTS uint64) error {
	v, c, err := s.lookup(ref)
	if err != nil {
		return err
	}
	c.mu.Lock()
	v.createdAt = commitTS
	c.mu.Unlock()
	return nil
}

// StampDelete records the commit timestamp of the version's deleter.
func (s *Store) StampDelete(ref VersionRef, commitTS uint64) error {
	v, c, err := s.lookup(ref)
	if err != nil {
		return err
	}
	c.mu.Lock()
	v.deletedAt = commitTS
	c.mu.Unlock()
	return nil
}

// MarkDead rolls back a version created by an aborted transaction. When the version is the head
// of a chain with an older version, the head moves back to that version. The detached version is
// kept until the safe point passes the timestamp now returns after detaching, since scans that
// started earlier may still hold its ref.
func (s *Store) MarkDead(ref VersionRef, now func() uint64) error {
	v, c, err := s.lookup(ref)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v.dead = true
	if c.head == ref && v.prev != NilRef {
		c.head = v.prev
		s.mu.Lock()
		if pv := s.versions[v.prev]; pv != nil {
			pv.next = NilRef
		}
		s.orphans = append(s.orphans, orphan{ref: ref, abortTS: now()})
		s.mu.Unlock()
	}
	return nil
}

// Restore clears the deleter of a version whose deleting transaction aborted.
func (s *Store) Restore(ref VersionRef, txn uint64) error {
	v, c, err := s.lookup(ref)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if v.deleter == txn {
		v.deleter = 0
		v.deletedAt = 0
	}
	return nil
}

// LookupKey returns the rows whose chains ever held a version with the given primary key. The
// caller decides which of them still hold the key.
func (s *Store) LookupKey(tableName string, key []byte) ([]RowID, error) {
	s.mu.RLock()
	t, err := s.getTable(tableName)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	var rows []RowID
	t.index.AscendGreaterOrEqual(&indexItem{key: key}, func(i btree.Item) bool {
		item := i.(*indexItem)
		if string(item.key) != string(key) {
			return false
		}
		rows = append(rows, item.row)
		return true
	})
	return rows, nil
}

// Schema returns the schema the table's heap was created with.
func (s *Store) Schema(tableName string) (*types.Schema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, err := s.getTable(tableName)
	if err != nil {
		return nil, err
	}
	return t.schema, nil
}

// Stats reports the number of versions and chains held.
func (s *Store) Stats() (versions int, chains int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.liveRefs, len(s.chains)
}
