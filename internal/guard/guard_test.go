package guard

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_OrderCheckAndSet(t *testing.T) {
	g := New()

	require.True(t, g.TryStartOrder(1))
	assert.False(t, g.TryStartOrder(1))
	assert.True(t, g.TryStartOrder(2))
	assert.True(t, g.IsActive(1))
	assert.Equal(t, 2, g.ActiveCount())

	g.FinishOrder(1)
	g.FinishOrder(1)
	assert.False(t, g.IsActive(1))
	assert.True(t, g.TryStartOrder(1))
}

func TestGuard_ConcurrentStartExactlyOneWins(t *testing.T) {
	g := New()

	const callers = 100
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if g.TryStartOrder(7) {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestGuard_Bulk(t *testing.T) {
	g := New()

	require.True(t, g.TryStartBulk())
	assert.True(t, g.BulkInProgress())
	assert.False(t, g.TryStartBulk())

	g.FinishBulk()
	assert.False(t, g.BulkInProgress())
	assert.True(t, g.TryStartBulk())
}

func TestLease_ReleaseOnFailurePath(t *testing.T) {
	g := New()

	simulate := func() (err error) {
		lease, ok := g.AcquireOrder(3)
		require.True(t, ok)
		defer lease.Release()

		defer func() {
			if r := recover(); r != nil {
				err = assert.AnError
			}
		}()
		panic("processing blew up")
	}

	assert.ErrorIs(t, simulate(), assert.AnError)
	assert.False(t, g.IsActive(3))
}

func TestLease_StaleReleaseKeepsNewerAcquisition(t *testing.T) {
	g := New()

	first, ok := g.AcquireOrder(5)
	require.True(t, ok)

	g.FinishOrder(5)
	second, ok := g.AcquireOrder(5)
	require.True(t, ok)

	first.Release()
	assert.True(t, g.IsActive(5), "stale lease must not clear the newer holder")

	second.Release()
	second.Release()
	assert.False(t, g.IsActive(5))

	var nilLease *Lease
	assert.NotPanics(t, nilLease.Release)
}

func TestLease_Bulk(t *testing.T) {
	g := New()

	lease, ok := g.AcquireBulk()
	require.True(t, ok)
	_, ok = g.AcquireBulk()
	assert.False(t, ok)

	lease.Release()
	assert.False(t, g.BulkInProgress())
}

func TestKeyLocker_SerializesSameKey(t *testing.T) {
	k := NewKeyLocker()

	unlock := k.Lock(1)
	acquired := make(chan struct{})
	go func() {
		defer k.Lock(1)()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a locked key")
	case <-time.After(50 * time.Millisecond):
	}

	// A different key is not blocked.
	other := k.Lock(2)
	other()

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the key")
	}

	require.Eventually(t, func() bool { return k.Len() == 0 }, time.Second, 5*time.Millisecond)
}
