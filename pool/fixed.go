// File: pool/fixed.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Fixed is a lock-free pool of pre-allocated values. The slot set never grows
// or shrinks; its length is the pool capacity.

package pool

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/momentics/shmstack/api"
	"go.uber.org/zap"
)

// Fixed is a fixed-capacity pool handing out leases on its values.
type Fixed[T api.Releaser] struct {
	slots    atomic.Pointer[[]*slot[T]] // nil once closed
	capacity int
	shared   *poolShared
}

// poolShared is the state leases keep after the pool itself is closed.
type poolShared struct {
	acquires    atomic.Uint64
	exhaustions atomic.Uint64
	recycles    atomic.Uint64
	orphanFrees atomic.Uint64
	outstanding atomic.Int64
	logger      *zap.Logger
}

var _ api.StatsSource = (*Fixed[api.Buffer])(nil)

// New builds a pool owning values, one slot per value, all Available.
// Ownership of every value moves to the pool.
func New[T api.Releaser](values []T, opts ...Option) *Fixed[T] {
	o := buildOptions(opts)
	slots := make([]*slot[T], len(values))
	for i, v := range values {
		slots[i] = &slot[T]{index: i, value: v}
	}
	p := &Fixed[T]{
		capacity: len(values),
		shared:   &poolShared{logger: o.logger},
	}
	p.slots.Store(&slots)
	return p
}

// Cap returns the number of slots fixed at construction.
func (p *Fixed[T]) Cap() int { return p.capacity }

// Closed reports whether Close has run.
func (p *Fixed[T]) Closed() bool { return p.slots.Load() == nil }

// TryAcquire scans the slots in construction order and leases the first one
// it can flip from Available to Acquired. Each slot gets one attempt.
// It returns (nil, false) when nothing is available or the pool is closed.
func (p *Fixed[T]) TryAcquire() (*Lease[T], bool) {
	slots := p.slots.Load()
	if slots == nil {
		return nil, false
	}
	for _, s := range *slots {
		if s.cas(stateAvailable, stateAcquired) {
			p.shared.acquires.Add(1)
			p.shared.outstanding.Add(1)
			return newLease(s, p.shared), true
		}
	}
	p.shared.exhaustions.Add(1)
	return nil, false
}

// Close releases the pool without waiting for leases.
//
// Leased slots are marked Destroyed and freed later by their last lease
// reference. Idle slots are claimed and their values closed here. Errors
// from closing values are joined; the pool is closed regardless.
// Calling Close again is a no-op.
func (p *Fixed[T]) Close() error {
	slots := p.slots.Swap(nil)
	if slots == nil {
		return nil
	}
	var (
		errs           []error
		freed, handoff int
	)
	for _, s := range *slots {
		for {
			if s.cas(stateAcquired, stateDestroyed) {
				handoff++
				break
			}
			// An acquirer that loaded the slot list before the swap can still
			// win this slot; claiming it as Destroyed first makes its CAS fail.
			if s.cas(stateAvailable, stateDestroyed) {
				if err := s.value.Close(); err != nil {
					errs = append(errs, fmt.Errorf("pool: close slot %d: %w", s.index, err))
				}
				freed++
				break
			}
		}
	}
	p.shared.logger.Debug("pool closed",
		zap.Int("capacity", p.capacity),
		zap.Int("freed", freed),
		zap.Int("handed_off", handoff),
	)
	return errors.Join(errs...)
}

// Stats returns a point-in-time view of the pool counters.
func (p *Fixed[T]) Stats() api.PoolStats {
	out := p.shared.outstanding.Load()
	closed := p.Closed()
	avail := 0
	if !closed {
		avail = max(p.capacity-int(out), 0)
	}
	return api.PoolStats{
		Capacity:    p.capacity,
		Available:   avail,
		Acquired:    int(out),
		Acquires:    p.shared.acquires.Load(),
		Exhaustions: p.shared.exhaustions.Load(),
		Recycles:    p.shared.recycles.Load(),
		OrphanFrees: p.shared.orphanFrees.Load(),
		Closed:      closed,
	}
}
