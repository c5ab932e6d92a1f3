// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics snapshot registry for in-process monitoring.
// Exposes counters in a thread-safe map with dynamic registration.

package control

import (
	"sync"
	"time"

	"github.com/momentics/shmstack/api"
	"github.com/momentics/shmstack/shm"
)

// MetricsRegistry holds mutable and read-only metrics.
type MetricsRegistry struct {
	mu      sync.RWMutex
	metrics map[string]any
	updated time.Time
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		metrics: make(map[string]any),
	}
}

// Set sets or updates a metric key.
func (mr *MetricsRegistry) Set(key string, value any) {
	mr.mu.Lock()
	mr.metrics[key] = value
	mr.updated = time.Now()
	mr.mu.Unlock()
}

// PublishPoolStats writes st under pool.<name>.*.
func (mr *MetricsRegistry) PublishPoolStats(name string, st api.PoolStats) {
	prefix := "pool." + name + "."
	mr.mu.Lock()
	mr.metrics[prefix+"capacity"] = st.Capacity
	mr.metrics[prefix+"available"] = st.Available
	mr.metrics[prefix+"acquired"] = st.Acquired
	mr.metrics[prefix+"acquires"] = st.Acquires
	mr.metrics[prefix+"exhaustions"] = st.Exhaustions
	mr.metrics[prefix+"recycles"] = st.Recycles
	mr.metrics[prefix+"orphan_frees"] = st.OrphanFrees
	mr.metrics[prefix+"closed"] = st.Closed
	mr.updated = time.Now()
	mr.mu.Unlock()
}

// PublishFrameStats writes st under frames.*.
func (mr *MetricsRegistry) PublishFrameStats(st shm.Stats) {
	mr.mu.Lock()
	mr.metrics["frames.sysv"] = st.SysV
	mr.metrics["frames.mapping"] = st.Mapping
	mr.metrics["frames.heap"] = st.Heap
	mr.metrics["frames.closed"] = st.Closed
	mr.metrics["frames.live"] = st.Live
	mr.metrics["frames.live_bytes"] = st.LiveBytes
	mr.updated = time.Now()
	mr.mu.Unlock()
}

// GetSnapshot returns the latest metrics.
func (mr *MetricsRegistry) GetSnapshot() map[string]any {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	out := make(map[string]any, len(mr.metrics))
	for k, v := range mr.metrics {
		out[k] = v
	}
	return out
}

// Updated returns when a metric was last written.
func (mr *MetricsRegistry) Updated() time.Time {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	return mr.updated
}
