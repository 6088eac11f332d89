// Package session is the entry point of the database: an Engine owns the shared state and every
// client talks to it through its own Session.
package session

import (
	"sync"
	"time"

	"github.com/ngaut/log"
	"github.com/pingcap-incubator/tinydb/catalog"
	"github.com/pingcap-incubator/tinydb/config"
	"github.com/pingcap-incubator/tinydb/executor"
	"github.com/pingcap-incubator/tinydb/planner"
	"github.com/pingcap-incubator/tinydb/storage"
	"github.com/pingcap-incubator/tinydb/transaction"
	"github.com/pingcap-incubator/tinydb/wal"
	"github.com/pingcap/errors"
)

// Engine holds the version store, the transaction manager and the catalog shared by all sessions.
type Engine struct {
	cfg       *config.Config
	env       *executor.Env
	optimizer *planner.Optimizer
	walSink   *wal.BadgerSink

	closeCh   chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewEngine creates an empty database configured by cfg.
func NewEngine(cfg *config.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	e := &Engine{cfg: cfg, closeCh: make(chan struct{})}
	var sink wal.Sink
	if cfg.WAL.Enabled {
		s, err := wal.Open(cfg.WAL.Options())
		if err != nil {
			return nil, errors.Annotate(err, "open wal")
		}
		e.walSink = s
		sink = s
	}
	store := storage.NewStore()
	cat := catalog.NewMemCatalog(store)
	e.env = &executor.Env{
		Manager: transaction.NewManager(store, sink, cfg.LatchSlots),
		Catalog: cat,
	}
	e.optimizer = planner.NewOptimizer(cat)

	if interval := cfg.GCInterval.Duration; interval > 0 {
		e.wg.Add(1)
		go e.gcLoop(interval)
	}
	log.Infof("engine: started with %d latch slots, gc interval %s, wal enabled %v",
		cfg.LatchSlots, cfg.GCInterval.Duration, cfg.WAL.Enabled)
	return e, nil
}

// Manager returns the transaction manager.
func (e *Engine) Manager() *transaction.Manager {
	return e.env.Manager
}

// Catalog returns the catalog.
func (e *Engine) Catalog() catalog.Catalog {
	return e.env.Catalog
}

// NewSession opens a session with no transaction in progress.
func (e *Engine) NewSession() *Session {
	sessionGauge.Inc()
	return newSession(e)
}

// Close stops the GC loop and flushes the WAL. Transactions still open are left as they are.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		close(e.closeCh)
		e.wg.Wait()
		if e.walSink != nil {
			err = e.walSink.Close()
		}
		log.Infof("engine: closed")
	})
	return errors.Trace(err)
}

func (e *Engine) gcLoop(interval time.Duration) {
	defer e.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.gc()
		case <-e.closeCh:
			return
		}
	}
}

func (e *Engine) gc() storage.GCStats {
	start := time.Now()
	stats := e.env.Manager.GC()
	gcDuration.Observe(time.Since(start).Seconds())
	if stats.Versions > 0 || stats.Chains > 0 {
		log.Infof("engine: gc reclaimed %d versions and %d chains in %s",
			stats.Versions, stats.Chains, time.Since(start))
	}
	return stats
}
