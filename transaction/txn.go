package transaction

import (
	"sync"
	"time"

	"github.com/pingcap-incubator/tinydb/storage"
	"go.uber.org/atomic"
)

// Status is the state of a transaction. ACTIVE is the only non-terminal state.
type Status uint32

const (
	StatusActive Status = iota
	StatusCommitted
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusCommitted:
		return "committed"
	case StatusAborted:
		return "aborted"
	}
	return "unknown"
}

type writeKind byte

const (
	writeInsert writeKind = iota
	writeDelete
	writeUpdate
)

// write is one write set entry. Created is the version the transaction made (inserts and updates),
// deleted the version it tagged as deleted (deletes and updates).
type write struct {
	kind    writeKind
	table   string
	row     storage.RowID
	created storage.VersionRef
	deleted storage.VersionRef
	key     []byte
}

// Txn is a transaction handle. Its start timestamp doubles as its identifier. A Txn is driven by
// one goroutine, but Abort may be called from another one at any time.
type Txn struct {
	startTS  uint64
	start    time.Time
	status   atomic.Uint32
	commitTS atomic.Uint64

	// mu guards the write set and serializes Commit and Abort.
	mu     sync.Mutex
	writes []write
}

func newTxn(startTS uint64) *Txn {
	return &Txn{
		startTS: startTS,
		start:   time.Now(),
	}
}

// StartTS returns the begin timestamp.
func (txn *Txn) StartTS() uint64 {
	return txn.startTS
}

// Status returns the current status.
func (txn *Txn) Status() Status {
	return Status(txn.status.Load())
}

// CommitTS returns the commit timestamp, 0 unless the transaction committed.
func (txn *Txn) CommitTS() uint64 {
	if txn.Status() != StatusCommitted {
		return 0
	}
	return txn.commitTS.Load()
}

// IsActive reports whether the transaction has not terminated yet.
func (txn *Txn) IsActive() bool {
	return txn.Status() == StatusActive
}

// WriteCount returns the size of the write set.
func (txn *Txn) WriteCount() int {
	txn.mu.Lock()
	defer txn.mu.Unlock()
	return len(txn.writes)
}
