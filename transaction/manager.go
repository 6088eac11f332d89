// Package transaction implements multi-version concurrency control over the version store.
//
// Every transaction gets a start timestamp from a counter owned by the Manager; commit timestamps
// come from the same counter. A version is visible to a transaction T iff its creator is T or
// committed before T started, and its deleter is neither T nor committed before T started.
//
// Writers claim a row by making its newest version theirs, so at most one uncommitted writer exists
// per chain and a second writer fails immediately. Primary keys are validated again at commit:
// the first transaction to commit a key wins and later ones abort with a conflict.
package transaction

import (
	"sync"
	"time"

	"github.com/ngaut/log"
	"github.com/pingcap-incubator/tinydb/storage"
	"github.com/pingcap-incubator/tinydb/terror"
	"github.com/pingcap-incubator/tinydb/transaction/latches"
	"github.com/pingcap-incubator/tinydb/wal"
	"github.com/pingcap/errors"
	"go.uber.org/atomic"
)

// Manager issues transactions and decides visibility and commit outcomes.
type Manager struct {
	store   *storage.Store
	sink    wal.Sink
	latches *latches.Latches

	ts atomic.Uint64
	// commitMu makes allocating a commit timestamp and publishing the committed status one step
	// with respect to Begin.
	commitMu sync.RWMutex

	mu   sync.RWMutex
	txns map[uint64]*Txn
	wm   *watermark
}

// NewManager creates a Manager over store. A nil sink drops events.
func NewManager(store *storage.Store, sink wal.Sink, latchSlots uint64) *Manager {
	if sink == nil {
		sink = wal.NopSink{}
	}
	return &Manager{
		store:   store,
		sink:    sink,
		latches: latches.NewLatches(latchSlots),
		txns:    make(map[uint64]*Txn),
		wm:      newWatermark(),
	}
}

// Store returns the version store the manager guards.
func (m *Manager) Store() *storage.Store {
	return m.store
}

// Latches exposes the commit latches, for tests that install a validation hook.
func (m *Manager) Latches() *latches.Latches {
	return m.latches
}

// Begin starts a transaction with a start timestamp greater than every timestamp handed out so far.
func (m *Manager) Begin() *Txn {
	m.commitMu.RLock()
	txn := newTxn(m.ts.Inc())
	m.mu.Lock()
	m.txns[txn.startTS] = txn
	m.wm.begin(txn.startTS)
	m.mu.Unlock()
	m.commitMu.RUnlock()

	m.sink.Notify(wal.Event{Type: wal.EventBegin, StartTS: txn.startTS})
	log.Debugf("txn %d begin", txn.startTS)
	return txn
}

// ActiveCount returns the number of transactions that have not finished.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.txns)
}

// SafePoint returns the oldest start timestamp among active transactions, or the next timestamp
// when none is active. No active or future transaction can see a version superseded before it.
func (m *Manager) SafePoint() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ts, ok := m.wm.oldest(); ok {
		return ts
	}
	return m.ts.Load() + 1
}

// GC reclaims versions below the safe point.
func (m *Manager) GC() storage.GCStats {
	stats := m.store.GC(m.SafePoint())
	gcCounter.WithLabelValues("version").Add(float64(stats.Versions))
	gcCounter.WithLabelValues("chain").Add(float64(stats.Chains))
	return stats
}

// commitTSOf resolves whether the transaction id committed. known is false when the version
// snapshot is unstamped and the transaction already left the table: the stamps are final by
// then and the caller must read the version again.
func (m *Manager) commitTSOf(id, stamp uint64) (commitTS uint64, committed bool, known bool) {
	if stamp != 0 {
		return stamp, true, true
	}
	m.mu.RLock()
	txn := m.txns[id]
	m.mu.RUnlock()
	if txn == nil {
		return 0, false, false
	}
	if txn.Status() == StatusCommitted {
		return txn.commitTS.Load(), true, true
	}
	return 0, false, true
}

func (m *Manager) visible(v storage.Version, txn *Txn) (vis bool, settled bool) {
	if v.Dead {
		return false, true
	}
	if v.Creator != txn.startTS {
		ts, committed, known := m.commitTSOf(v.Creator, v.CreateCommitTS)
		if !known {
			return false, false
		}
		if !committed || ts >= txn.startTS {
			return false, true
		}
	}
	if v.Deleter == 0 {
		return true, true
	}
	if v.Deleter == txn.startTS {
		return false, true
	}
	ts, committed, known := m.commitTSOf(v.Deleter, v.DeleteCommitTS)
	if !known {
		return false, false
	}
	return !committed || ts >= txn.startTS, true
}

// IsVisible reports whether v is visible to txn.
func (m *Manager) IsVisible(v storage.Version, txn *Txn) bool {
	vis, settled := m.visible(v, txn)
	if settled {
		return vis
	}
	fresh, err := m.store.Get(v.Ref)
	if err != nil {
		return false
	}
	vis, _ = m.visible(fresh, txn)
	return vis
}

// checkUsable guards reads and writes. The owner may abort a transaction while one of its
// statements runs, so this is an execution error, not a contract violation.
func (m *Manager) checkUsable(txn *Txn) error {
	if st := txn.Status(); st != StatusActive {
		return errors.WithStack(&terror.ErrTxnNotActive{StartTS: txn.startTS, Status: st.String()})
	}
	return nil
}

func (m *Manager) checkActive(txn *Txn) error {
	if st := txn.Status(); st != StatusActive {
		return errors.WithStack(&terror.ErrTxnTerminated{StartTS: txn.startTS, Status: st.String()})
	}
	return nil
}

// Commit validates txn's write set and makes its writes visible to transactions that start
// afterwards. On a conflict the transaction is aborted and the conflict returned.
func (m *Manager) Commit(txn *Txn) error {
	txn.mu.Lock()
	defer txn.mu.Unlock()
	if err := m.checkActive(txn); err != nil {
		return err
	}

	slots := m.latches.Slots(txn.latchKeys())
	m.latches.WaitForLatches(slots)
	defer m.latches.ReleaseLatches(slots)
	m.latches.Validate(txn.startTS, slots)

	if err := m.validate(txn); err != nil {
		log.Warnf("txn %d commit conflict: %v", txn.startTS, err)
		m.abortLocked(txn, "conflict")
		return err
	}

	m.commitMu.Lock()
	commitTS := m.ts.Inc()
	txn.commitTS.Store(commitTS)
	txn.status.Store(uint32(StatusCommitted))
	m.commitMu.Unlock()

	for _, w := range txn.writes {
		if w.created != storage.NilRef {
			if err := m.store.StampCreate(w.created, commitTS); err != nil && !storage.IsNotFound(err) {
				log.Errorf("txn %d stamp create %d: %v", txn.startTS, w.created, err)
			}
		}
		if w.deleted != storage.NilRef {
			if err := m.store.StampDelete(w.deleted, commitTS); err != nil && !storage.IsNotFound(err) {
				log.Errorf("txn %d stamp delete %d: %v", txn.startTS, w.deleted, err)
			}
		}
	}
	m.forget(txn)
	m.sink.Notify(wal.Event{Type: wal.EventCommit, StartTS: txn.startTS, CommitTS: commitTS})
	m.observe(txn, "commit")
	log.Debugf("txn %d committed at %d with %d writes", txn.startTS, commitTS, len(txn.writes))
	return nil
}

// Abort rolls back every write of txn. It is safe to call while another goroutine is still
// executing statements of txn; later writes of that goroutine fail.
func (m *Manager) Abort(txn *Txn) error {
	txn.mu.Lock()
	defer txn.mu.Unlock()
	if err := m.checkActive(txn); err != nil {
		return err
	}
	m.abortLocked(txn, "abort")
	return nil
}

func (m *Manager) abortLocked(txn *Txn, result string) {
	txn.status.Store(uint32(StatusAborted))
	now := func() uint64 { return m.ts.Load() }
	// Newest writes first, so an update chain unwinds head by head.
	for i := len(txn.writes) - 1; i >= 0; i-- {
		w := txn.writes[i]
		if w.created != storage.NilRef {
			if err := m.store.MarkDead(w.created, now); err != nil && !storage.IsNotFound(err) {
				log.Errorf("txn %d rollback %d: %v", txn.startTS, w.created, err)
			}
		}
		if w.deleted != storage.NilRef {
			if err := m.store.Restore(w.deleted, txn.startTS); err != nil && !storage.IsNotFound(err) {
				log.Errorf("txn %d restore %d: %v", txn.startTS, w.deleted, err)
			}
		}
	}
	m.forget(txn)
	m.sink.Notify(wal.Event{Type: wal.EventAbort, StartTS: txn.startTS})
	m.observe(txn, result)
	log.Debugf("txn %d aborted with %d writes", txn.startTS, len(txn.writes))
}

func (m *Manager) forget(txn *Txn) {
	m.mu.Lock()
	delete(m.txns, txn.startTS)
	m.wm.finish(txn.startTS)
	m.mu.Unlock()
}

func (m *Manager) observe(txn *Txn, result string) {
	txnCounter.WithLabelValues(result).Inc()
	txnDuration.WithLabelValues(result).Observe(time.Since(txn.start).Seconds())
}
