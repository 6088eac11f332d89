package wal

import "sync"

type taskStop struct{}

type task interface{}

// handler consumes the tasks of a worker on its goroutine. flush is called when the queue runs
// empty, so a handler can batch.
type handler interface {
	handle(t task)
	flush()
}

// worker runs a handler over a buffered queue on one goroutine.
type worker struct {
	name     string
	sender   chan<- task
	receiver <-chan task
	wg       *sync.WaitGroup
}

func newWorker(name string, capacity int, wg *sync.WaitGroup) *worker {
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	ch := make(chan task, capacity)
	return &worker{
		name:     name,
		sender:   ch,
		receiver: ch,
		wg:       wg,
	}
}

func (w *worker) start(h handler) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			t := <-w.receiver
			if _, ok := t.(taskStop); ok {
				h.flush()
				return
			}
			h.handle(t)
			if len(w.receiver) == 0 {
				h.flush()
			}
		}
	}()
}

// trySend queues t without blocking. It reports false when the queue is full.
func (w *worker) trySend(t task) bool {
	select {
	case w.sender <- t:
		return true
	default:
		return false
	}
}

// stop queues a stop marker behind the pending tasks.
func (w *worker) stop() {
	w.sender <- taskStop{}
}
