package gate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestGate_IdleInitially(t *testing.T) {
	g := New()
	assert.False(t, g.Busy())
	assert.Zero(t, g.Pending())
	assert.True(t, isClosed(g.Idle()))
}

func TestGate_AcquireRelease(t *testing.T) {
	g := New()
	require.NoError(t, g.Acquire(context.Background()))
	assert.True(t, g.Busy())

	idle := g.Idle()
	assert.False(t, isClosed(idle))

	g.Release()
	assert.False(t, g.Busy())
	assert.True(t, isClosed(idle))
}

func TestGate_FIFOOrder(t *testing.T) {
	g := New()
	require.NoError(t, g.Acquire(context.Background()))

	const n = 5
	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, g.Do(context.Background(), func() error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			}))
		}(i)
		// Wait until goroutine i is queued so arrival order is deterministic.
		require.Eventually(t, func() bool { return g.Pending() == i+1 }, time.Second, time.Millisecond)
	}

	g.Release()
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
	assert.False(t, g.Busy())
	assert.True(t, isClosed(g.Idle()))
}

func TestGate_IdleOnlyAfterQueueDrains(t *testing.T) {
	g := New()
	require.NoError(t, g.Acquire(context.Background()))
	idle := g.Idle()

	acquired := make(chan struct{})
	go func() {
		g.Acquire(context.Background())
		close(acquired)
	}()
	require.Eventually(t, func() bool { return g.Pending() == 1 }, time.Second, time.Millisecond)

	g.Release()
	<-acquired
	assert.True(t, g.Busy(), "ownership passes directly to the waiter")
	assert.False(t, isClosed(idle))

	g.Release()
	assert.True(t, isClosed(idle))
}

func TestGate_TryAcquire(t *testing.T) {
	g := New()
	require.True(t, g.TryAcquire())
	assert.False(t, g.TryAcquire())
	g.Release()
	assert.True(t, g.TryAcquire())
	g.Release()
}

func TestGate_AcquireCancelled(t *testing.T) {
	g := New()
	require.NoError(t, g.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := g.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, g.Pending(), "cancelled waiter leaves the queue")

	g.Release()
	assert.False(t, g.Busy())
	assert.True(t, isClosed(g.Idle()))
}

func TestGate_DoReleasesOnError(t *testing.T) {
	g := New()
	boom := assert.AnError
	err := g.Do(context.Background(), func() error { return boom })
	require.ErrorIs(t, err, boom)
	assert.False(t, g.Busy())

	// A second caller is not blocked by the failed one.
	done := make(chan struct{})
	go func() {
		g.Do(context.Background(), func() error { return nil })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("gate deadlocked after a failed holder")
	}
}

func TestGate_DoReleasesOnPanic(t *testing.T) {
	g := New()
	assert.Panics(t, func() {
		g.Do(context.Background(), func() error { panic("boom") })
	})
	assert.False(t, g.Busy())
}

func TestGate_ReleaseUnlockedPanics(t *testing.T) {
	assert.Panics(t, func() { New().Release() })
}

func TestGate_ConcurrentStress(t *testing.T) {
	g := New()
	var (
		wg     sync.WaitGroup
		inside int
		mu     sync.Mutex
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Do(context.Background(), func() error {
				mu.Lock()
				inside++
				n := inside
				mu.Unlock()
				if n != 1 {
					t.Errorf("%d holders inside the gate", n)
				}
				time.Sleep(time.Microsecond)
				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	assert.True(t, isClosed(g.Idle()))
}
