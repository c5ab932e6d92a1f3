// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package pool_test

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/momentics/shmstack/fake"
	"github.com/momentics/shmstack/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakePool(t *testing.T, n, size int) (*pool.Fixed[*fake.Buffer], *fake.Allocator) {
	t.Helper()
	alloc := fake.NewAllocator()
	return pool.New(alloc.Buffers(n, size)), alloc
}

func TestFixed_ExactlyCapacityAcquires(t *testing.T) {
	for n := 0; n <= 8; n++ {
		p, alloc := newFakePool(t, n, 16)
		require.Equal(t, n, p.Cap())

		seen := make(map[int]bool)
		leases := make([]*pool.Lease[*fake.Buffer], 0, n)
		for i := 0; i < n; i++ {
			l, ok := p.TryAcquire()
			require.True(t, ok, "capacity %d, acquire %d", n, i)
			require.False(t, seen[l.Slot()], "slot %d handed out twice", l.Slot())
			seen[l.Slot()] = true
			leases = append(leases, l)
		}
		l, ok := p.TryAcquire()
		assert.False(t, ok, "capacity %d must be exhausted", n)
		assert.Nil(t, l)

		for _, l := range leases {
			require.NoError(t, l.Release())
		}
		require.NoError(t, p.Close())
		assert.Zero(t, alloc.Live())
		assert.Zero(t, alloc.DoubleFrees())
	}
}

func TestFixed_AcquiresInConstructionOrder(t *testing.T) {
	p, _ := newFakePool(t, 4, 8)
	defer p.Close()

	for want := 0; want < 4; want++ {
		l, ok := p.TryAcquire()
		require.True(t, ok)
		assert.Equal(t, want, l.Slot())
		assert.Equal(t, want, l.Value().ID())
	}
}

func TestFixed_RoundTripKeepsContents(t *testing.T) {
	p, _ := newFakePool(t, 1, 64)
	defer p.Close()

	l, ok := p.TryAcquire()
	require.True(t, ok)
	first := l.Value()
	for i := range first.Bytes() {
		first.Bytes()[i] = byte(i + 1)
	}
	want := append([]byte(nil), first.Bytes()...)
	require.NoError(t, l.Release())

	l, ok = p.TryAcquire()
	require.True(t, ok)
	defer l.Release()
	assert.Same(t, first, l.Value())
	assert.Equal(t, want, l.Value().Bytes(), "contents must survive recycling")
}

// TestFixed_Scenario walks the three-slot lifecycle: exhaust, recycle slot 0,
// close with two leases outstanding, then drop them.
func TestFixed_Scenario(t *testing.T) {
	p, alloc := newFakePool(t, 3, 1024)

	var leases [3]*pool.Lease[*fake.Buffer]
	for i := range leases {
		l, ok := p.TryAcquire()
		require.True(t, ok)
		leases[i] = l
	}
	assert.NotSame(t, leases[0].Value(), leases[1].Value())
	assert.NotSame(t, leases[1].Value(), leases[2].Value())
	assert.NotSame(t, leases[0].Value(), leases[2].Value())

	_, ok := p.TryAcquire()
	assert.False(t, ok)

	slot0 := leases[0].Value()
	require.NoError(t, leases[0].Release())
	l5, ok := p.TryAcquire()
	require.True(t, ok)
	assert.Same(t, slot0, l5.Value())
	require.NoError(t, l5.Release())

	require.NoError(t, p.Close())
	assert.Equal(t, int64(1), alloc.Freed(), "only the idle slot is freed by close")

	for i, l := range leases[1:] {
		buf := l.Value().Bytes()
		for j := range buf {
			buf[j] = byte(0xF0 + i)
		}
		for j := range buf {
			require.Equal(t, byte(0xF0+i), buf[j])
		}
	}

	require.NoError(t, leases[1].Release())
	require.NoError(t, leases[2].Release())
	assert.Zero(t, alloc.Live())
	assert.Zero(t, alloc.DoubleFrees())

	st := p.Stats()
	assert.Equal(t, uint64(2), st.OrphanFrees)
	assert.True(t, st.Closed)
	assert.Zero(t, st.Acquired)
}

func TestFixed_CloseWithOutstandingLeases(t *testing.T) {
	const n, m = 6, 4
	p, alloc := newFakePool(t, n, 32)

	leases := make([]*pool.Lease[*fake.Buffer], m)
	for i := range leases {
		l, ok := p.TryAcquire()
		require.True(t, ok)
		copy(l.Value().Bytes(), "before")
		leases[i] = l
	}

	require.NoError(t, p.Close())
	assert.Equal(t, int64(n-m), alloc.Freed())
	assert.True(t, p.Closed())

	_, ok := p.TryAcquire()
	assert.False(t, ok, "closed pool hands out nothing")

	for _, l := range leases {
		assert.Equal(t, "before", string(l.Value().Bytes()[:6]))
		copy(l.Value().Bytes(), "after!")
		assert.Equal(t, "after!", string(l.Value().Bytes()[:6]))
		assert.Zero(t, l.Value().Closes())
	}

	for _, l := range leases {
		require.NoError(t, l.Release())
	}
	assert.Equal(t, int64(n), alloc.Freed())
	assert.Zero(t, alloc.Live())
	assert.Zero(t, alloc.DoubleFrees())
}

func TestFixed_CloseIsIdempotent(t *testing.T) {
	p, alloc := newFakePool(t, 3, 8)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, int64(3), alloc.Freed())
	assert.Zero(t, alloc.DoubleFrees())
}

func TestFixed_CloseJoinsValueErrors(t *testing.T) {
	errBoom := errors.New("boom")
	alloc := fake.FailingAllocator(errBoom)
	p := pool.New(alloc.Buffers(2, 8))

	err := p.Close()
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, int64(2), alloc.Freed())
	assert.True(t, p.Closed())
}

func TestFixed_ConcurrentAcquireExactWinners(t *testing.T) {
	const capacity, goroutines = 8, 64
	p, alloc := newFakePool(t, capacity, 8)

	var (
		start   = make(chan struct{})
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []*pool.Lease[*fake.Buffer]
		losers  atomic.Int32
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			l, ok := p.TryAcquire()
			if !ok {
				losers.Add(1)
				return
			}
			mu.Lock()
			winners = append(winners, l)
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()

	require.Len(t, winners, capacity)
	assert.Equal(t, int32(goroutines-capacity), losers.Load())

	slots := make(map[int]bool)
	for _, l := range winners {
		require.False(t, slots[l.Slot()], "slot %d won twice", l.Slot())
		slots[l.Slot()] = true
	}

	for _, l := range winners {
		require.NoError(t, l.Release())
	}
	require.NoError(t, p.Close())
	assert.Zero(t, alloc.Live())
}

// TestFixed_ExclusiveUnderChurn checks that no slot is ever held by two
// goroutines at once while leases are acquired and released continuously.
func TestFixed_ExclusiveUnderChurn(t *testing.T) {
	const capacity, workers, rounds = 4, 16, 2000
	p, alloc := newFakePool(t, capacity, 8)

	var (
		inUse    [capacity]atomic.Int32
		wg       sync.WaitGroup
		overlaps atomic.Int32
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id byte) {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				l, ok := p.TryAcquire()
				if !ok {
					runtime.Gosched()
					continue
				}
				if !inUse[l.Slot()].CompareAndSwap(0, 1) {
					overlaps.Add(1)
				}
				buf := l.Value().Bytes()
				buf[0] = id
				runtime.Gosched()
				if buf[0] != id {
					overlaps.Add(1)
				}
				inUse[l.Slot()].Store(0)
				if err := l.Release(); err != nil {
					overlaps.Add(1)
				}
			}
		}(byte(w))
	}
	wg.Wait()

	assert.Zero(t, overlaps.Load())
	st := p.Stats()
	assert.Equal(t, st.Acquires, st.Recycles)
	assert.Equal(t, capacity, st.Available)
	require.NoError(t, p.Close())
	assert.Zero(t, alloc.Live())
}

// TestFixed_CloseRacesChurn closes the pool while workers keep acquiring and
// releasing; every value must be freed exactly once.
func TestFixed_CloseRacesChurn(t *testing.T) {
	for iter := 0; iter < 50; iter++ {
		const capacity, workers = 4, 8
		p, alloc := newFakePool(t, capacity, 8)

		stop := make(chan struct{})
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					select {
					case <-stop:
						return
					default:
					}
					if l, ok := p.TryAcquire(); ok {
						l.Value().Bytes()[0]++
						_ = l.Release()
					}
				}
			}()
		}
		time.Sleep(time.Millisecond)
		require.NoError(t, p.Close())
		close(stop)
		wg.Wait()

		require.Zero(t, alloc.Live(), "iteration %d leaked", iter)
		require.Zero(t, alloc.DoubleFrees(), "iteration %d double freed", iter)
	}
}

func TestFixed_Stats(t *testing.T) {
	p, _ := newFakePool(t, 3, 8)

	l1, _ := p.TryAcquire()
	l2, _ := p.TryAcquire()
	st := p.Stats()
	assert.Equal(t, 3, st.Capacity)
	assert.Equal(t, 2, st.Acquired)
	assert.Equal(t, 1, st.Available)
	assert.Equal(t, uint64(2), st.Acquires)

	l3, _ := p.TryAcquire()
	_, ok := p.TryAcquire()
	require.False(t, ok)
	assert.Equal(t, uint64(1), p.Stats().Exhaustions)

	require.NoError(t, l1.Release())
	assert.Equal(t, uint64(1), p.Stats().Recycles)

	require.NoError(t, p.Close())
	st = p.Stats()
	assert.True(t, st.Closed)
	assert.Zero(t, st.Available)
	assert.Equal(t, 2, st.Acquired)

	require.NoError(t, l2.Release())
	require.NoError(t, l3.Release())
	assert.Equal(t, uint64(2), p.Stats().OrphanFrees)
}
