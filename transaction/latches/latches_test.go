package latches

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAcquireLatches(t *testing.T) {
	l := NewLatches(64)

	// Acquiring a new latch is ok.
	wg := l.AcquireLatches([]uint64{0, 3, 42})
	assert.Nil(t, wg)

	// Can only acquire once.
	wg = l.AcquireLatches([]uint64{0})
	assert.NotNil(t, wg)
	wg = l.AcquireLatches([]uint64{42})
	assert.NotNil(t, wg)

	// Release then acquire is ok.
	l.ReleaseLatches([]uint64{3, 43})
	wg = l.AcquireLatches([]uint64{3})
	assert.Nil(t, wg)
	wg = l.AcquireLatches([]uint64{42})
	assert.NotNil(t, wg)
}

func TestSlots(t *testing.T) {
	l := NewLatches(8)
	slots := l.Slots([][]byte{[]byte("a"), []byte("b"), []byte("a")})
	assert.True(t, len(slots) >= 1 && len(slots) <= 2)
	for i := 1; i < len(slots); i++ {
		assert.True(t, slots[i-1] < slots[i])
	}
	for _, s := range slots {
		assert.True(t, s < 8)
	}

	single := NewLatches(0)
	assert.Equal(t, []uint64{0}, single.Slots([][]byte{[]byte("x"), []byte("y")}))
}

func TestWaitForLatches(t *testing.T) {
	l := NewLatches(16)
	slots := l.Slots([][]byte{[]byte("k")})
	l.WaitForLatches(slots)

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.WaitForLatches(slots)
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
		l.ReleaseLatches(slots)
	}()

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	order = append(order, 1)
	mu.Unlock()
	l.ReleaseLatches(slots)
	wg.Wait()
	assert.Equal(t, []int{1, 2}, order)
}
