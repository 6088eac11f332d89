package storage

import (
	"sync"
	"testing"

	"github.com/pingcap-incubator/tinydb/terror"
	"github.com/pingcap-incubator/tinydb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema() *types.Schema {
	return types.NewSchema(
		types.Column{Name: "a", Tp: types.TypeInt, PrimaryKey: true, NotNull: true},
		types.Column{Name: "b", Tp: types.TypeText},
	)
}

func clock(ts uint64) func() uint64 {
	return func() uint64 { return ts }
}

func newTestStore(t *testing.T) *Store {
	s := NewStore()
	require.NoError(t, s.CreateTable("t", testSchema()))
	return s
}

func TestInsertScanGet(t *testing.T) {
	s := newTestStore(t)
	r1, row1, err := s.Insert("t", types.NewTuple(1, "x"), 10)
	require.NoError(t, err)
	r2, _, err := s.Insert("T", types.NewTuple(2, "y"), 10)
	require.NoError(t, err)

	heads, err := s.Scan("t")
	require.NoError(t, err)
	assert.Equal(t, []VersionRef{r1, r2}, heads)

	v, err := s.Get(r1)
	require.NoError(t, err)
	assert.Equal(t, row1, v.Row)
	assert.Equal(t, uint64(10), v.Creator)
	assert.Equal(t, uint64(0), v.CreateCommitTS)
	assert.Equal(t, "(1, x)", v.Tuple.String())
	assert.Equal(t, types.NewTuple(1).KeyOf([]int{0}), v.Key)

	_, err = s.Scan("missing")
	assert.True(t, terror.Is(err, terror.UnresolvedCode))
	_, err = s.Get(VersionRef(100))
	assert.True(t, IsNotFound(err))
}

func TestUpdateChain(t *testing.T) {
	s := newTestStore(t)
	r1, row, err := s.Insert("t", types.NewTuple(1, "x"), 10)
	require.NoError(t, err)
	require.NoError(t, s.StampCreate(r1, 11))

	r2, err := s.Update(r1, types.NewTuple(1, "z"), 12)
	require.NoError(t, err)
	head, err := s.Head(row)
	require.NoError(t, err)
	assert.Equal(t, r2, head)

	old, err := s.Get(r1)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), old.Deleter)
	assert.Equal(t, r2, old.Next)
	cur, err := s.Get(r2)
	require.NoError(t, err)
	assert.Equal(t, r1, cur.Prev)

	// The old version is no longer the head.
	_, err = s.Update(r1, types.NewTuple(1, "w"), 13)
	assert.True(t, terror.IsRetryable(err))
	// The head is owned by txn 12.
	assert.True(t, terror.IsRetryable(s.Delete(r1, 13)))

	// Rolling back the update restores the chain.
	require.NoError(t, s.MarkDead(r2, clock(14)))
	require.NoError(t, s.Restore(r1, 12))
	head, err = s.Head(row)
	require.NoError(t, err)
	assert.Equal(t, r1, head)
	old, err = s.Get(r1)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), old.Deleter)
	assert.Equal(t, NilRef, old.Next)
	require.NoError(t, s.Delete(r1, 15))
}

func TestLookupKey(t *testing.T) {
	s := newTestStore(t)
	_, row1, err := s.Insert("t", types.NewTuple(1, "x"), 10)
	require.NoError(t, err)
	_, row2, err := s.Insert("t", types.NewTuple(1, "y"), 11)
	require.NoError(t, err)
	_, _, err = s.Insert("t", types.NewTuple(2, "z"), 11)
	require.NoError(t, err)

	rows, err := s.LookupKey("t", types.NewTuple(1).KeyOf([]int{0}))
	require.NoError(t, err)
	assert.Equal(t, []RowID{row1, row2}, rows)

	rows, err = s.LookupKey("t", types.NewTuple(3).KeyOf([]int{0}))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestGC(t *testing.T) {
	s := newTestStore(t)
	r1, row, err := s.Insert("t", types.NewTuple(1, "a"), 1)
	require.NoError(t, err)
	require.NoError(t, s.StampCreate(r1, 2))
	r2, err := s.Update(r1, types.NewTuple(1, "b"), 3)
	require.NoError(t, err)
	require.NoError(t, s.StampDelete(r1, 4))
	require.NoError(t, s.StampCreate(r2, 4))

	// A rolled back insert.
	dead, _, err := s.Insert("t", types.NewTuple(9, "x"), 5)
	require.NoError(t, err)
	require.NoError(t, s.MarkDead(dead, clock(6)))

	// Nothing older than r2 is needed by a reader starting at 4 or later, but r1 is still
	// needed at safe point 3.
	stats := s.GC(3)
	assert.Equal(t, 1, stats.Versions)
	assert.Equal(t, 1, stats.Chains)
	_, err = s.Get(r1)
	require.NoError(t, err)
	_, err = s.Get(dead)
	assert.True(t, IsNotFound(err))

	stats = s.GC(5)
	assert.Equal(t, 1, stats.Versions)
	_, err = s.Get(r1)
	assert.True(t, IsNotFound(err))
	cur, err := s.Get(r2)
	require.NoError(t, err)
	assert.Equal(t, NilRef, cur.Prev)

	// Deleted and committed before the safe point: the whole row goes.
	require.NoError(t, s.Delete(r2, 7))
	require.NoError(t, s.StampDelete(r2, 8))
	s.GC(8)
	assert.Equal(t, 1, s.GC(9).Chains)
	_, err = s.Head(row)
	assert.Error(t, err)
	rows, err := s.LookupKey("t", types.NewTuple(1).KeyOf([]int{0}))
	require.NoError(t, err)
	assert.Empty(t, rows)
	heads, err := s.Scan("t")
	require.NoError(t, err)
	assert.Empty(t, heads)
	versions, chains := s.Stats()
	assert.Equal(t, 0, versions)
	assert.Equal(t, 0, chains)
}

func TestGCOrphan(t *testing.T) {
	s := newTestStore(t)
	r1, _, err := s.Insert("t", types.NewTuple(1, "a"), 1)
	require.NoError(t, err)
	require.NoError(t, s.StampCreate(r1, 2))
	r2, err := s.Update(r1, types.NewTuple(1, "b"), 3)
	require.NoError(t, err)
	require.NoError(t, s.MarkDead(r2, clock(5)))
	require.NoError(t, s.Restore(r1, 3))

	s.GC(5)
	_, err = s.Get(r2)
	require.NoError(t, err)
	s.GC(6)
	_, err = s.Get(r2)
	assert.True(t, IsNotFound(err))
	_, err = s.Get(r1)
	require.NoError(t, err)
}

func TestDropTable(t *testing.T) {
	s := newTestStore(t)
	r1, _, err := s.Insert("t", types.NewTuple(1, "a"), 1)
	require.NoError(t, err)
	require.NoError(t, s.DropTable("t"))
	assert.False(t, s.HasTable("t"))
	_, err = s.Get(r1)
	assert.True(t, IsNotFound(err))
	assert.Error(t, s.DropTable("t"))
	require.NoError(t, s.CreateTable("t", testSchema()))
	assert.Error(t, s.CreateTable("t", testSchema()))
}

func TestConcurrentDelete(t *testing.T) {
	s := newTestStore(t)
	r1, _, err := s.Insert("t", types.NewTuple(1, "a"), 1)
	require.NoError(t, err)
	require.NoError(t, s.StampCreate(r1, 2))

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Delete(r1, uint64(10+i))
		}(i)
	}
	wg.Wait()
	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.True(t, terror.IsRetryable(err))
		}
	}
	assert.Equal(t, 1, ok)
}
