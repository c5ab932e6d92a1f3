// File: pool/lease.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import (
	"fmt"
	"sync/atomic"

	"github.com/momentics/shmstack/api"
	"go.uber.org/zap"
)

// Lease is a reference-counted, exclusive claim on one pool slot.
//
// A lease starts with one reference. Retain adds references for other
// holders; each holder calls Release once. When the count reaches zero the
// slot goes back to the pool, or, if the pool was closed in the meantime, the
// value is closed by the lease. Holders sharing one lease must synchronize
// their own access to the value.
type Lease[T api.Releaser] struct {
	slot   *slot[T]
	shared *poolShared
	refs   atomic.Int32
}

func newLease[T api.Releaser](s *slot[T], shared *poolShared) *Lease[T] {
	l := &Lease[T]{slot: s, shared: shared}
	l.refs.Store(1)
	return l
}

// Value returns the leased value. It must not be used after the last Release.
func (l *Lease[T]) Value() T { return l.slot.value }

// Slot returns the index of the leased slot in construction order.
func (l *Lease[T]) Slot() int { return l.slot.index }

// Refs returns the current reference count.
func (l *Lease[T]) Refs() int32 { return l.refs.Load() }

// Retain adds a reference and returns l.
// It panics if the lease has already been fully released.
func (l *Lease[T]) Retain() *Lease[T] {
	for {
		n := l.refs.Load()
		if n <= 0 {
			panic(invariant("retain on released lease", l.slot.load(), l.slot.index))
		}
		if l.refs.CompareAndSwap(n, n+1) {
			return l
		}
	}
}

// Release drops one reference. The last one runs the release protocol.
//
// The returned error is only ever non-nil when this lease had to close the
// value because the pool was gone and closing failed. Releasing more times
// than retained panics.
func (l *Lease[T]) Release() error {
	n := l.refs.Add(-1)
	if n > 0 {
		return nil
	}
	if n < 0 {
		panic(invariant("lease released more times than retained", l.slot.load(), l.slot.index))
	}
	return l.giveBack()
}

func (l *Lease[T]) giveBack() error {
	s := l.slot
	l.shared.outstanding.Add(-1)
	if s.cas(stateAcquired, stateAvailable) {
		l.shared.recycles.Add(1)
		return nil
	}
	// Acquired can only have moved to Destroyed: Close ran while leased.
	if st := s.load(); st != stateDestroyed {
		panic(invariant("release observed unexpected slot state", st, s.index))
	}
	l.shared.orphanFrees.Add(1)
	l.shared.logger.Debug("freeing slot orphaned by closed pool", zap.Int("slot", s.index))
	if err := s.value.Close(); err != nil {
		return fmt.Errorf("pool: close orphaned slot %d: %w", s.index, err)
	}
	return nil
}
