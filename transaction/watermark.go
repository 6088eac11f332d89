package transaction

import (
	"github.com/emirpasic/gods/queues/priorityqueue"
	"github.com/emirpasic/gods/utils"
)

// watermark tracks the start timestamps of active transactions. The heap top is the oldest one.
// Finished transactions are removed lazily when they reach the top.
type watermark struct {
	active *priorityqueue.Queue
	done   map[uint64]struct{}
}

func newWatermark() *watermark {
	return &watermark{
		active: priorityqueue.NewWith(utils.UInt64Comparator),
		done:   make(map[uint64]struct{}),
	}
}

func (w *watermark) begin(ts uint64) {
	w.active.Enqueue(ts)
}

func (w *watermark) finish(ts uint64) {
	w.done[ts] = struct{}{}
}

// oldest returns the oldest active start timestamp, false when none is active.
func (w *watermark) oldest() (uint64, bool) {
	for {
		top, ok := w.active.Peek()
		if !ok {
			return 0, false
		}
		ts := top.(uint64)
		if _, finished := w.done[ts]; !finished {
			return ts, true
		}
		w.active.Dequeue()
		delete(w.done, ts)
	}
}
