package wal

import (
	"os"
	"sync"

	"github.com/coocood/badger"
	"github.com/ngaut/log"
	"github.com/pingcap/errors"
	"go.uber.org/atomic"
)

const (
	defaultQueueCapacity = 128
	defaultMaxBatch      = 64
)

// Options configures a BadgerSink.
type Options struct {
	Dir        string
	SyncWrites bool
	// CompressThreshold is the payload size from which events are lz4 compressed. Zero disables it.
	CompressThreshold int
	QueueCapacity     int
	// MaxBatch bounds the number of events written in one badger transaction.
	MaxBatch int
}

// BadgerSink appends events to a badger database from a background worker. Notify never blocks:
// when the queue is full the event is dropped and counted.
type BadgerSink struct {
	db     *badger.DB
	worker *worker
	wg     sync.WaitGroup
	seq    atomic.Uint64
	closed atomic.Bool
}

var _ Sink = &BadgerSink{}

type queuedEvent struct {
	seq uint64
	ev  Event
}

// Open opens or creates the log in opts.Dir and starts its writer.
func Open(opts Options) (*BadgerSink, error) {
	if err := os.MkdirAll(opts.Dir, os.ModePerm); err != nil {
		return nil, errors.Trace(err)
	}
	bopts := badger.DefaultOptions
	bopts.Dir = opts.Dir
	bopts.ValueDir = opts.Dir
	bopts.SyncWrites = opts.SyncWrites
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, errors.Trace(err)
	}
	s := &BadgerSink{db: db}
	last, err := lastSeq(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.seq.Store(last)

	maxBatch := opts.MaxBatch
	if maxBatch <= 0 {
		maxBatch = defaultMaxBatch
	}
	s.worker = newWorker("wal-writer", opts.QueueCapacity, &s.wg)
	s.worker.start(&eventWriter{db: db, threshold: opts.CompressThreshold, maxBatch: maxBatch})
	log.Infof("wal: opened %s at sequence %d", opts.Dir, last)
	return s, nil
}

func lastSeq(db *badger.DB) (uint64, error) {
	var last uint64
	err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()
		it.Rewind()
		if !it.Valid() {
			return nil
		}
		seq, err := decodeEventKey(it.Item().Key())
		last = seq
		return err
	})
	return last, errors.Trace(err)
}

// Notify implements Sink.
func (s *BadgerSink) Notify(ev Event) {
	if s.closed.Load() {
		eventCounter.WithLabelValues("dropped").Inc()
		return
	}
	if !s.worker.trySend(queuedEvent{seq: s.seq.Inc(), ev: ev}) {
		eventCounter.WithLabelValues("dropped").Inc()
		log.Warnf("wal: queue full, dropped %s event of txn %d", ev.Type, ev.StartTS)
	}
}

// Close flushes the queued events and closes the database.
func (s *BadgerSink) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.worker.stop()
	s.wg.Wait()
	return errors.Trace(s.db.Close())
}

// Events reads back every event written so far, oldest first.
func (s *BadgerSink) Events() ([]Event, error) {
	var events []Event
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			val, err := it.Item().Value()
			if err != nil {
				return err
			}
			ev, err := decodeEvent(val)
			if err != nil {
				return err
			}
			events = append(events, ev)
		}
		return nil
	})
	return events, errors.Trace(err)
}

// eventWriter batches queued events into badger transactions.
type eventWriter struct {
	db        *badger.DB
	threshold int
	maxBatch  int
	batch     writeBatch
}

func (w *eventWriter) handle(t task) {
	qe := t.(queuedEvent)
	val, err := encodeEvent(qe.ev, w.threshold)
	if err != nil {
		eventCounter.WithLabelValues("error").Inc()
		log.Errorf("wal: encode %s event of txn %d: %v", qe.ev.Type, qe.ev.StartTS, err)
		return
	}
	w.batch.set(eventKey(qe.seq), val)
	if w.batch.len() >= w.maxBatch {
		w.flush()
	}
}

func (w *eventWriter) flush() {
	n := w.batch.len()
	if n == 0 {
		return
	}
	if err := w.batch.writeToDB(w.db); err != nil {
		eventCounter.WithLabelValues("error").Add(float64(n))
		log.Errorf("wal: write %d events: %v", n, err)
	} else {
		eventCounter.WithLabelValues("written").Add(float64(n))
		batchSize.Observe(float64(w.batch.size))
	}
	w.batch.reset()
}

type writeBatch struct {
	entries []*badger.Entry
	size    int
}

func (wb *writeBatch) len() int {
	return len(wb.entries)
}

func (wb *writeBatch) set(key, val []byte) {
	wb.entries = append(wb.entries, &badger.Entry{Key: key, Value: val})
	wb.size += len(key) + len(val)
}

func (wb *writeBatch) writeToDB(db *badger.DB) error {
	err := db.Update(func(txn *badger.Txn) error {
		for _, entry := range wb.entries {
			if err := txn.SetEntry(entry); err != nil {
				return err
			}
		}
		return nil
	})
	return errors.WithStack(err)
}

func (wb *writeBatch) reset() {
	wb.entries = wb.entries[:0]
	wb.size = 0
}
