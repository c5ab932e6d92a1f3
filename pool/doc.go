// Package pool
// Author: momentics <momentics@gmail.com>
//
// Fixed-capacity, lock-free leasing pool.
//
// A Fixed pool owns a set of values created up front (frames, usually) and
// hands out exclusive, reference-counted leases on them. Each slot carries an
// atomic tag: Available, Acquired or Destroyed. Every state change is one
// compare-and-swap; there is no mutex anywhere on the acquire or release path.
//
// Closing the pool never waits for leases. Slots that are leased at close time
// are flipped to Destroyed and the last lease reference frees the value
// instead of recycling it. Slots that are idle are freed by Close directly.
//
// Acquire is non-blocking: TryAcquire returns (nil, false) on exhaustion.
// AcquireContext layers rate-limited polling on top for callers that want to
// wait.
package pool
