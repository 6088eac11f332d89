package transaction

import (
	"sort"
	"sync"
	"testing"

	"github.com/pingcap-incubator/tinydb/storage"
	"github.com/pingcap-incubator/tinydb/terror"
	"github.com/pingcap-incubator/tinydb/types"
	"github.com/pingcap-incubator/tinydb/wal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordSink struct {
	mu     sync.Mutex
	events []wal.Event
}

func (s *recordSink) Notify(ev wal.Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *recordSink) types() []wal.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wal.EventType, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Type
	}
	return out
}

func newTestManager(t *testing.T) *Manager {
	store := storage.NewStore()
	require.NoError(t, store.CreateTable("t", types.NewSchema(
		types.Column{Name: "a", Tp: types.TypeInt, PrimaryKey: true, NotNull: true},
		types.Column{Name: "b", Tp: types.TypeText},
	)))
	return NewManager(store, nil, 64)
}

// scan returns the tuples txn sees, ordered by column a.
func scan(t *testing.T, m *Manager, txn *Txn) []string {
	heads, err := m.Store().Scan("t")
	require.NoError(t, err)
	var rows []string
	for _, head := range heads {
		v, ok, err := m.Read(txn, head)
		require.NoError(t, err)
		if ok {
			rows = append(rows, v.Tuple.String())
		}
	}
	sort.Strings(rows)
	return rows
}

func visible(t *testing.T, m *Manager, txn *Txn, a int64) (storage.Version, bool) {
	heads, err := m.Store().Scan("t")
	require.NoError(t, err)
	for _, head := range heads {
		v, ok, err := m.Read(txn, head)
		require.NoError(t, err)
		if ok && v.Tuple[0].GetInt64() == a {
			return v, true
		}
	}
	return storage.Version{}, false
}

func TestBeginMonotonic(t *testing.T) {
	m := newTestManager(t)
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		tss []uint64
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				txn := m.Begin()
				mu.Lock()
				tss = append(tss, txn.StartTS())
				mu.Unlock()
				assert.NoError(t, m.Abort(txn))
			}
		}()
	}
	wg.Wait()
	seen := make(map[uint64]struct{})
	for _, ts := range tss {
		_, dup := seen[ts]
		assert.False(t, dup)
		seen[ts] = struct{}{}
	}
	assert.Len(t, seen, 16*50)
	assert.Equal(t, 0, m.ActiveCount())
}

func TestVisibility(t *testing.T) {
	m := newTestManager(t)
	t1 := m.Begin()
	_, err := m.Insert(t1, "t", types.NewTuple(1, "a"))
	require.NoError(t, err)

	// Own writes are visible, others' uncommitted writes are not.
	t2 := m.Begin()
	assert.Equal(t, []string{"(1, a)"}, scan(t, m, t1))
	assert.Empty(t, scan(t, m, t2))

	require.NoError(t, m.Commit(t1))
	// t2 started before t1 committed.
	assert.Empty(t, scan(t, m, t2))
	t3 := m.Begin()
	assert.Equal(t, []string{"(1, a)"}, scan(t, m, t3))

	// A delete by t3 hides the row from t3 only.
	v, ok := visible(t, m, t3, 1)
	require.True(t, ok)
	require.NoError(t, m.Delete(t3, "t", v))
	assert.Empty(t, scan(t, m, t3))
	t4 := m.Begin()
	assert.Equal(t, []string{"(1, a)"}, scan(t, m, t4))
	require.NoError(t, m.Commit(t3))
	assert.Equal(t, []string{"(1, a)"}, scan(t, m, t4))
	assert.Empty(t, scan(t, m, m.Begin()))
	require.NoError(t, m.Commit(t2))
	require.NoError(t, m.Commit(t4))
}

func TestAbortRollsBack(t *testing.T) {
	sink := &recordSink{}
	store := storage.NewStore()
	require.NoError(t, store.CreateTable("t", types.NewSchema(
		types.Column{Name: "a", Tp: types.TypeInt, PrimaryKey: true},
		types.Column{Name: "b", Tp: types.TypeText},
	)))
	m := NewManager(store, sink, 16)

	setup := m.Begin()
	_, err := m.Insert(setup, "t", types.NewTuple(1, "a"))
	require.NoError(t, err)
	_, err = m.Insert(setup, "t", types.NewTuple(2, "b"))
	require.NoError(t, err)
	require.NoError(t, m.Commit(setup))

	txn := m.Begin()
	_, err = m.Insert(txn, "t", types.NewTuple(3, "c"))
	require.NoError(t, err)
	v1, ok := visible(t, m, txn, 1)
	require.True(t, ok)
	require.NoError(t, m.Delete(txn, "t", v1))
	v2, ok := visible(t, m, txn, 2)
	require.True(t, ok)
	_, err = m.Update(txn, "t", v2, types.NewTuple(2, "bb"))
	require.NoError(t, err)
	v2, ok = visible(t, m, txn, 2)
	require.True(t, ok)
	_, err = m.Update(txn, "t", v2, types.NewTuple(2, "bbb"))
	require.NoError(t, err)
	assert.Equal(t, []string{"(2, bbb)", "(3, c)"}, scan(t, m, txn))
	require.NoError(t, m.Abort(txn))

	after := m.Begin()
	assert.Equal(t, []string{"(1, a)", "(2, b)"}, scan(t, m, after))
	// The restored rows can be written again.
	v2, ok = visible(t, m, after, 2)
	require.True(t, ok)
	_, err = m.Update(after, "t", v2, types.NewTuple(2, "z"))
	require.NoError(t, err)
	require.NoError(t, m.Commit(after))
	assert.Equal(t, []string{"(1, a)", "(2, z)"}, scan(t, m, m.Begin()))

	assert.Contains(t, sink.types(), wal.EventAbort)
	assert.Equal(t, wal.EventBegin, sink.types()[0])
}

func TestTerminalStates(t *testing.T) {
	m := newTestManager(t)
	txn := m.Begin()
	require.NoError(t, m.Commit(txn))
	assert.Equal(t, StatusCommitted, txn.Status())
	assert.True(t, txn.CommitTS() > txn.StartTS())

	err := m.Commit(txn)
	assert.True(t, terror.Is(err, terror.ContractCode))
	err = m.Abort(txn)
	assert.True(t, terror.Is(err, terror.ContractCode))

	aborted := m.Begin()
	require.NoError(t, m.Abort(aborted))
	assert.True(t, terror.Is(m.Abort(aborted), terror.ContractCode))
	assert.True(t, terror.Is(m.Commit(aborted), terror.ContractCode))
	_, err = m.Insert(aborted, "t", types.NewTuple(1, "x"))
	assert.True(t, terror.Is(err, terror.AbortedCode), "%v", err)
	assert.False(t, terror.Is(err, terror.ContractCode))
	_, _, err = m.Read(aborted, storage.NilRef)
	assert.True(t, terror.Is(err, terror.AbortedCode), "%v", err)
}

func TestDuplicateKeyVisible(t *testing.T) {
	m := newTestManager(t)
	txn := m.Begin()
	_, err := m.Insert(txn, "t", types.NewTuple(1, "a"))
	require.NoError(t, err)
	_, err = m.Insert(txn, "t", types.NewTuple(1, "b"))
	assert.True(t, terror.Is(err, terror.ConstraintCode))
	require.NoError(t, m.Commit(txn))

	txn = m.Begin()
	_, err = m.Insert(txn, "t", types.NewTuple(1, "c"))
	assert.True(t, terror.Is(err, terror.ConstraintCode))

	// Deleting the row frees its key within the same transaction.
	v, ok := visible(t, m, txn, 1)
	require.True(t, ok)
	require.NoError(t, m.Delete(txn, "t", v))
	_, err = m.Insert(txn, "t", types.NewTuple(1, "d"))
	require.NoError(t, err)
	require.NoError(t, m.Commit(txn))
	assert.Equal(t, []string{"(1, d)"}, scan(t, m, m.Begin()))
}

func TestConcurrentInsertSameKey(t *testing.T) {
	m := newTestManager(t)
	t1 := m.Begin()
	t2 := m.Begin()
	_, err := m.Insert(t1, "t", types.NewTuple(7, "first"))
	require.NoError(t, err)
	// t1's row is not visible to t2 yet, so the insert itself succeeds.
	_, err = m.Insert(t2, "t", types.NewTuple(7, "second"))
	require.NoError(t, err)

	require.NoError(t, m.Commit(t1))
	err = m.Commit(t2)
	require.Error(t, err)
	assert.True(t, terror.IsRetryable(err))
	assert.Equal(t, StatusAborted, t2.Status())

	assert.Equal(t, []string{"(7, first)"}, scan(t, m, m.Begin()))
}

func TestConcurrentInsertSameKeyRace(t *testing.T) {
	for round := 0; round < 20; round++ {
		m := newTestManager(t)
		var wg sync.WaitGroup
		results := make([]error, 4)
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				txn := m.Begin()
				if _, err := m.Insert(txn, "t", types.NewTuple(1, "x")); err != nil {
					results[i] = err
					m.Abort(txn)
					return
				}
				results[i] = m.Commit(txn)
			}(i)
		}
		wg.Wait()
		var committed int
		for _, err := range results {
			if err == nil {
				committed++
			} else {
				assert.True(t, terror.IsRetryable(err) || terror.Is(err, terror.ConstraintCode), "%v", err)
			}
		}
		assert.Equal(t, 1, committed)
		assert.Len(t, scan(t, m, m.Begin()), 1)
	}
}

func TestWriteConflict(t *testing.T) {
	m := newTestManager(t)
	setup := m.Begin()
	_, err := m.Insert(setup, "t", types.NewTuple(1, "a"))
	require.NoError(t, err)
	require.NoError(t, m.Commit(setup))

	t1 := m.Begin()
	t2 := m.Begin()
	v1, ok := visible(t, m, t1, 1)
	require.True(t, ok)
	v2, ok := visible(t, m, t2, 1)
	require.True(t, ok)

	_, err = m.Update(t1, "t", v1, types.NewTuple(1, "b"))
	require.NoError(t, err)
	_, err = m.Update(t2, "t", v2, types.NewTuple(1, "c"))
	assert.True(t, terror.IsRetryable(err))
	assert.True(t, terror.IsRetryable(m.Delete(t2, "t", v2)))
	require.NoError(t, m.Abort(t2))
	require.NoError(t, m.Commit(t1))

	// A writer whose snapshot predates the commit still conflicts.
	t3 := m.Begin()
	stale := m.Begin()
	v3, ok := visible(t, m, t3, 1)
	require.True(t, ok)
	require.NoError(t, m.Delete(t3, "t", v3))
	require.NoError(t, m.Commit(t3))
	assert.True(t, terror.IsRetryable(m.Delete(stale, "t", v3)))
}

func TestCommitLatchesSerialize(t *testing.T) {
	m := newTestManager(t)
	var (
		mu      sync.Mutex
		latched []uint64
	)
	m.Latches().Validation = func(startTS uint64, slots []uint64) {
		mu.Lock()
		latched = append(latched, startTS)
		mu.Unlock()
		assert.NotEmpty(t, slots)
	}
	txn := m.Begin()
	_, err := m.Insert(txn, "t", types.NewTuple(1, "a"))
	require.NoError(t, err)
	require.NoError(t, m.Commit(txn))
	assert.Equal(t, []uint64{txn.StartTS()}, latched)
}

func TestSafePointAndGC(t *testing.T) {
	m := newTestManager(t)
	setup := m.Begin()
	_, err := m.Insert(setup, "t", types.NewTuple(1, "old"))
	require.NoError(t, err)
	require.NoError(t, m.Commit(setup))

	reader := m.Begin()
	assert.Equal(t, reader.StartTS(), m.SafePoint())

	writer := m.Begin()
	v, ok := visible(t, m, writer, 1)
	require.True(t, ok)
	_, err = m.Update(writer, "t", v, types.NewTuple(1, "new"))
	require.NoError(t, err)
	require.NoError(t, m.Commit(writer))

	// The reader still needs the old version.
	m.GC()
	assert.Equal(t, []string{"(1, old)"}, scan(t, m, reader))
	require.NoError(t, m.Commit(reader))

	assert.True(t, m.SafePoint() > writer.CommitTS())
	stats := m.GC()
	assert.Equal(t, 1, stats.Versions)
	assert.Equal(t, []string{"(1, new)"}, scan(t, m, m.Begin()))
}

func TestReadOnlyCommitNeverConflicts(t *testing.T) {
	m := newTestManager(t)
	seed := m.Begin()
	_, err := m.Insert(seed, "t", types.NewTuple(1, "a"))
	require.NoError(t, err)
	require.NoError(t, m.Commit(seed))

	reader := m.Begin()
	assert.Equal(t, []string{"(1, a)"}, scan(t, m, reader))
	writer := m.Begin()
	v, ok := visible(t, m, writer, 1)
	require.True(t, ok)
	require.NoError(t, m.Delete(writer, "t", v))
	require.NoError(t, m.Commit(writer))

	// Only write sets are validated, so the stale read does not fail the reader.
	assert.Equal(t, 0, reader.WriteCount())
	require.NoError(t, m.Commit(reader))
}
