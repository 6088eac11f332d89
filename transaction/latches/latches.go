package latches

import (
	"sort"
	"sync"

	"github.com/dgryski/go-farm"
)

// Latching makes commit validation atomic. Two transactions whose write sets share a key must not
// validate and finalize at the same time, otherwise both could see the other as uncommitted and
// both commit the same primary key. Transactions with disjoint write sets do not touch each
// other's latches and commit in parallel.
//
// A latch covers a slot, not a key: keys are hashed into a fixed number of slots, so unrelated keys
// occasionally share a latch. That only costs some waiting, never correctness.
//
// Latching is implemented using a single map which maps slots to a Go WaitGroup. Access to this
// map is guarded by a mutex so that acquiring all slots of a write set is atomic.

type Latches struct {
	// Before validating a write set, the committer must hold the latches for all of its slots.
	// Committers who find a slot locked wait on its WaitGroup.
	latchMap map[uint64]*sync.WaitGroup
	// Mutex to guard latchMap.
	latchGuard sync.Mutex
	slots      uint64
	// An optional validation function, only used for testing.
	Validation func(startTS uint64, slots []uint64)
}

// NewLatches creates a Latches object with the given number of slots. There should only be one
// such object, shared between all committers.
func NewLatches(slots uint64) *Latches {
	if slots == 0 {
		slots = 1
	}
	return &Latches{
		latchMap: make(map[uint64]*sync.WaitGroup),
		slots:    slots,
	}
}

// Slots maps keys to their sorted, deduplicated latch slots.
func (l *Latches) Slots(keys [][]byte) []uint64 {
	seen := make(map[uint64]struct{}, len(keys))
	slots := make([]uint64, 0, len(keys))
	for _, key := range keys {
		slot := farm.Hash64(key) % l.slots
		if _, ok := seen[slot]; ok {
			continue
		}
		seen[slot] = struct{}{}
		slots = append(slots, slot)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })
	return slots
}

// AcquireLatches tries to lock all slots. If this succeeds, nil is returned. If any of the slots
// is locked, AcquireLatches returns a WaitGroup which the caller can use to be woken when that
// latch is free.
func (l *Latches) AcquireLatches(slots []uint64) *sync.WaitGroup {
	l.latchGuard.Lock()
	defer l.latchGuard.Unlock()

	for _, slot := range slots {
		if latchWg, ok := l.latchMap[slot]; ok {
			return latchWg
		}
	}

	wg := new(sync.WaitGroup)
	wg.Add(1)
	for _, slot := range slots {
		l.latchMap[slot] = wg
	}
	return nil
}

// ReleaseLatches releases all slots and wakes any committer blocked on them. All slots must have
// been locked together in one call to AcquireLatches.
func (l *Latches) ReleaseLatches(slots []uint64) {
	l.latchGuard.Lock()
	defer l.latchGuard.Unlock()

	first := true
	for _, slot := range slots {
		if first {
			if wg := l.latchMap[slot]; wg != nil {
				wg.Done()
			}
			first = false
		}
		delete(l.latchMap, slot)
	}
}

// WaitForLatches locks all slots with AcquireLatches, waiting for locked slots to be released and
// trying again. It may block for an unbounded length of time.
func (l *Latches) WaitForLatches(slots []uint64) {
	for {
		wg := l.AcquireLatches(slots)
		if wg == nil {
			return
		}
		wg.Wait()
	}
}

// Validate calls the function in Validation, if it exists.
func (l *Latches) Validate(startTS uint64, latched []uint64) {
	if l.Validation != nil {
		l.Validation(startTS, latched)
	}
}
