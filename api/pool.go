// File: api/pool.go
// Author: momentics <momentics@gmail.com>
//
// Defines abstract pooling APIs: fixed leasing pools and their accounting.

package api

// PoolStats aggregates fixed pool occupancy and lifecycle counters.
type PoolStats struct {
	Capacity    int
	Available   int
	Acquired    int
	Acquires    uint64 // successful acquires
	Exhaustions uint64 // acquire scans that found nothing
	Recycles    uint64 // leases returned to an open pool
	OrphanFrees uint64 // values freed by a lease after the pool closed
	Closed      bool
}

// StatsSource exposes pool statistics for observability.
type StatsSource interface {
	Stats() PoolStats
}
