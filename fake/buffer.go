// Package fake
// Author: momentics <momentics@gmail.com>
//
// Counting buffer implementations for testing pool ownership.

package fake

import (
	"sync/atomic"

	"github.com/momentics/shmstack/api"
)

// Allocator hands out Buffers and counts allocations, frees and double frees.
type Allocator struct {
	allocated   atomic.Int64
	freed       atomic.Int64
	doubleFrees atomic.Int64
	closeErr    error
	nextID      atomic.Int64
}

// NewAllocator creates an allocator whose buffers close cleanly.
func NewAllocator() *Allocator {
	return &Allocator{}
}

// FailingAllocator creates an allocator whose buffers return err from Close
// (after still counting the free).
func FailingAllocator(err error) *Allocator {
	return &Allocator{closeErr: err}
}

// New allocates one buffer of size bytes.
func (a *Allocator) New(size int) *Buffer {
	a.allocated.Add(1)
	return &Buffer{
		data:  make([]byte, size),
		id:    int(a.nextID.Add(1) - 1),
		alloc: a,
	}
}

// Buffers allocates n buffers of size bytes.
func (a *Allocator) Buffers(n, size int) []*Buffer {
	out := make([]*Buffer, n)
	for i := range out {
		out[i] = a.New(size)
	}
	return out
}

// Allocated returns the number of buffers created.
func (a *Allocator) Allocated() int64 { return a.allocated.Load() }

// Freed returns the number of buffers closed at least once.
func (a *Allocator) Freed() int64 { return a.freed.Load() }

// Live returns Allocated minus Freed.
func (a *Allocator) Live() int64 { return a.allocated.Load() - a.freed.Load() }

// DoubleFrees returns how many Close calls hit an already-closed buffer.
func (a *Allocator) DoubleFrees() int64 { return a.doubleFrees.Load() }

// Buffer is a heap buffer that reports its Close calls to its Allocator.
type Buffer struct {
	data   []byte
	id     int
	alloc  *Allocator
	closes atomic.Int32
}

var _ api.Buffer = (*Buffer)(nil)

// Bytes returns the buffer contents.
func (b *Buffer) Bytes() []byte { return b.data }

// Len returns the buffer length.
func (b *Buffer) Len() int { return len(b.data) }

// ID returns the allocation sequence number, starting at 0.
func (b *Buffer) ID() int { return b.id }

// Closes returns how many times Close was called.
func (b *Buffer) Closes() int32 { return b.closes.Load() }

// Close records the free.
func (b *Buffer) Close() error {
	if b.closes.Add(1) > 1 {
		b.alloc.doubleFrees.Add(1)
		return nil
	}
	b.alloc.freed.Add(1)
	return b.alloc.closeErr
}
