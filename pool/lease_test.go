// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package pool_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/momentics/shmstack/api"
	"github.com/momentics/shmstack/fake"
	"github.com/momentics/shmstack/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// invariantPanic runs fn and returns the *api.Error it panicked with.
func invariantPanic(t *testing.T, fn func()) (perr *api.Error) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a panic")
		var ok bool
		perr, ok = r.(*api.Error)
		require.True(t, ok, "panic value %T is not *api.Error", r)
	}()
	fn()
	return nil
}

func TestLease_RetainKeepsSlotLeased(t *testing.T) {
	p, _ := newFakePool(t, 1, 8)
	defer p.Close()

	l, ok := p.TryAcquire()
	require.True(t, ok)
	assert.Equal(t, int32(1), l.Refs())

	assert.Same(t, l, l.Retain())
	assert.Equal(t, int32(2), l.Refs())

	require.NoError(t, l.Release())
	assert.Equal(t, int32(1), l.Refs())
	_, ok = p.TryAcquire()
	assert.False(t, ok, "slot stays leased while a reference is held")

	require.NoError(t, l.Release())
	assert.Zero(t, l.Refs())
	l2, ok := p.TryAcquire()
	require.True(t, ok)
	assert.Equal(t, l.Slot(), l2.Slot())
	require.NoError(t, l2.Release())
}

func TestLease_DoubleReleasePanics(t *testing.T) {
	p, _ := newFakePool(t, 1, 8)
	defer p.Close()

	l, _ := p.TryAcquire()
	require.NoError(t, l.Release())

	perr := invariantPanic(t, func() { _ = l.Release() })
	assert.Equal(t, api.ErrCodeInvariant, perr.Code)
	assert.ErrorIs(t, perr, api.ErrInvariant)
}

func TestLease_RetainAfterReleasePanics(t *testing.T) {
	p, _ := newFakePool(t, 1, 8)
	defer p.Close()

	l, _ := p.TryAcquire()
	require.NoError(t, l.Release())

	perr := invariantPanic(t, func() { l.Retain() })
	assert.Equal(t, api.ErrCodeInvariant, perr.Code)
	assert.Equal(t, 0, perr.Context["slot"])
}

func TestLease_OrphanCloseErrorIsReturned(t *testing.T) {
	errBoom := errors.New("boom")
	alloc := fake.FailingAllocator(errBoom)
	p := pool.New(alloc.Buffers(1, 8))

	l, ok := p.TryAcquire()
	require.True(t, ok)
	require.NoError(t, p.Close(), "leased slot is not closed by the pool")

	err := l.Release()
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.Zero(t, alloc.Live())
}

func TestLease_RecycledReleaseNeverCloses(t *testing.T) {
	p, alloc := newFakePool(t, 2, 8)

	for i := 0; i < 10; i++ {
		l, ok := p.TryAcquire()
		require.True(t, ok)
		require.NoError(t, l.Release())
	}
	assert.Zero(t, alloc.Freed())
	require.NoError(t, p.Close())
	assert.Equal(t, int64(2), alloc.Freed())
}

func TestLease_SharedAcrossGoroutines(t *testing.T) {
	const holders = 32
	p, alloc := newFakePool(t, 1, 8)

	l, ok := p.TryAcquire()
	require.True(t, ok)
	for i := 1; i < holders; i++ {
		l.Retain()
	}
	require.Equal(t, int32(holders), l.Refs())

	var wg sync.WaitGroup
	for i := 0; i < holders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Release()
		}()
	}
	wg.Wait()

	st := p.Stats()
	assert.Equal(t, uint64(1), st.Recycles, "only the last holder gives the slot back")
	assert.Equal(t, 1, st.Available)
	require.NoError(t, p.Close())
	assert.Zero(t, alloc.Live())
}

func TestLease_SharedAcrossClose(t *testing.T) {
	p, alloc := newFakePool(t, 1, 8)

	l, _ := p.TryAcquire()
	l.Retain()
	require.NoError(t, p.Close())

	require.NoError(t, l.Release())
	assert.Equal(t, int64(1), alloc.Live(), "still referenced")
	require.NoError(t, l.Release())
	assert.Zero(t, alloc.Live())
	assert.Zero(t, alloc.DoubleFrees())
}
