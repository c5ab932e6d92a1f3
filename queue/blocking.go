// Package queue provides the blocking MPMC handoff used to pass leases
// between goroutines.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Blocking wraps an unbounded eapache ring with a mutex and a condition
// variable. Push never blocks; Pop waits until an item arrives or the queue
// is closed.

package queue

import (
	"context"
	"sync"

	ring "github.com/eapache/queue"
	"github.com/momentics/shmstack/api"
)

// Blocking is a FIFO safe for any number of producers and consumers.
type Blocking[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  *ring.Queue
	closed bool
}

// NewBlocking creates an empty queue.
func NewBlocking[T any]() *Blocking[T] {
	q := &Blocking[T]{items: ring.New()}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends v and wakes one waiting consumer.
func (q *Blocking[T]) Push(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return api.ErrQueueClosed
	}
	q.items.Add(v)
	q.cond.Signal()
	return nil
}

// Pop blocks until an item is available. After Close it keeps returning
// queued items and then api.ErrQueueClosed.
func (q *Blocking[T]) Pop() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.items.Length() == 0 && !q.closed {
		q.cond.Wait()
	}
	return q.takeLocked()
}

// PopContext is Pop with cancellation. It returns ctx.Err() if ctx ends
// before an item arrives.
func (q *Blocking[T]) PopContext(ctx context.Context) (T, error) {
	stop := context.AfterFunc(ctx, func() {
		// take the lock so the broadcast cannot slip in between the
		// waiter's ctx check and its Wait
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for q.items.Length() == 0 && !q.closed {
		if err := ctx.Err(); err != nil {
			var zero T
			return zero, err
		}
		q.cond.Wait()
	}
	return q.takeLocked()
}

// TryPop returns the head item without blocking.
func (q *Blocking[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Length() == 0 {
		var zero T
		return zero, false
	}
	v, _ := q.items.Remove().(T)
	return v, true
}

func (q *Blocking[T]) takeLocked() (T, error) {
	if q.items.Length() == 0 {
		var zero T
		return zero, api.ErrQueueClosed
	}
	v, _ := q.items.Remove().(T)
	return v, nil
}

// Len returns the number of queued items.
func (q *Blocking[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Length()
}

// Close rejects further pushes and wakes every waiting consumer.
func (q *Blocking[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Drain removes every queued item, handing each to fn in FIFO order, and
// returns how many were drained. fn runs without the queue lock held.
func (q *Blocking[T]) Drain(fn func(T)) int {
	q.mu.Lock()
	items := make([]T, 0, q.items.Length())
	for q.items.Length() > 0 {
		v, _ := q.items.Remove().(T)
		items = append(items, v)
	}
	q.mu.Unlock()
	for _, v := range items {
		fn(v)
	}
	return len(items)
}
