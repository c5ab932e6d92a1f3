// File: pool/state.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import (
	"sync/atomic"

	"github.com/momentics/shmstack/api"
)

// slotState is the lifecycle tag of a slot.
//
//	Available -> Acquired    TryAcquire
//	Acquired  -> Available   last lease Release, pool open
//	Acquired  -> Destroyed   Close while leased; the lease frees the value
type slotState int32

const (
	stateAvailable slotState = iota
	stateAcquired
	stateDestroyed
)

func (s slotState) String() string {
	switch s {
	case stateAvailable:
		return "available"
	case stateAcquired:
		return "acquired"
	case stateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// slot pairs one pool-owned value with its atomic state tag.
type slot[T api.Releaser] struct {
	state atomic.Int32
	index int
	value T
}

func (s *slot[T]) cas(from, to slotState) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

func (s *slot[T]) load() slotState {
	return slotState(s.state.Load())
}

// invariant builds the panic value for an unreachable state.
func invariant(msg string, s slotState, index int) *api.Error {
	return api.NewError(api.ErrCodeInvariant, "pool: "+msg).
		WithContext("state", s.String()).
		WithContext("slot", index)
}
