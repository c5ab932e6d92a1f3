// control/collector.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus collectors reading pool and frame counters at scrape time.

package control

import (
	"github.com/momentics/shmstack/api"
	"github.com/momentics/shmstack/shm"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "shmstack"

// PoolCollector exports one pool's api.PoolStats.
type PoolCollector struct {
	src api.StatsSource

	capacity    *prometheus.Desc
	available   *prometheus.Desc
	acquired    *prometheus.Desc
	acquires    *prometheus.Desc
	exhaustions *prometheus.Desc
	recycles    *prometheus.Desc
	orphanFrees *prometheus.Desc
}

var _ prometheus.Collector = (*PoolCollector)(nil)

// NewPoolCollector labels every series with pool=name.
func NewPoolCollector(name string, src api.StatsSource) *PoolCollector {
	labels := prometheus.Labels{"pool": name}
	desc := func(metric, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "pool", metric), help, nil, labels)
	}
	return &PoolCollector{
		src:         src,
		capacity:    desc("capacity", "Number of slots fixed at construction"),
		available:   desc("available", "Slots currently available for acquire"),
		acquired:    desc("acquired", "Leases currently outstanding"),
		acquires:    desc("acquires_total", "Successful acquires"),
		exhaustions: desc("exhaustions_total", "Acquire scans that found no available slot"),
		recycles:    desc("recycles_total", "Leases returned to an open pool"),
		orphanFrees: desc("orphan_frees_total", "Values freed by leases after the pool closed"),
	}
}

// Describe implements prometheus.Collector.
func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.capacity
	ch <- c.available
	ch <- c.acquired
	ch <- c.acquires
	ch <- c.exhaustions
	ch <- c.recycles
	ch <- c.orphanFrees
}

// Collect implements prometheus.Collector.
func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.src.Stats()
	ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(st.Capacity))
	ch <- prometheus.MustNewConstMetric(c.available, prometheus.GaugeValue, float64(st.Available))
	ch <- prometheus.MustNewConstMetric(c.acquired, prometheus.GaugeValue, float64(st.Acquired))
	ch <- prometheus.MustNewConstMetric(c.acquires, prometheus.CounterValue, float64(st.Acquires))
	ch <- prometheus.MustNewConstMetric(c.exhaustions, prometheus.CounterValue, float64(st.Exhaustions))
	ch <- prometheus.MustNewConstMetric(c.recycles, prometheus.CounterValue, float64(st.Recycles))
	ch <- prometheus.MustNewConstMetric(c.orphanFrees, prometheus.CounterValue, float64(st.OrphanFrees))
}

// FrameCollector exports the process-wide shm frame counters.
type FrameCollector struct {
	created   *prometheus.Desc
	live      *prometheus.Desc
	liveBytes *prometheus.Desc
}

var _ prometheus.Collector = (*FrameCollector)(nil)

// NewFrameCollector creates the collector; register it once per process.
func NewFrameCollector() *FrameCollector {
	return &FrameCollector{
		created: prometheus.NewDesc(prometheus.BuildFQName(namespace, "frames", "created_total"),
			"Frames created, by backing", []string{"backing"}, nil),
		live: prometheus.NewDesc(prometheus.BuildFQName(namespace, "frames", "live"),
			"Frames created and not yet closed", nil, nil),
		liveBytes: prometheus.NewDesc(prometheus.BuildFQName(namespace, "frames", "live_bytes"),
			"Bytes held by live frames", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *FrameCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.created
	ch <- c.live
	ch <- c.liveBytes
}

// Collect implements prometheus.Collector.
func (c *FrameCollector) Collect(ch chan<- prometheus.Metric) {
	st := shm.ReadStats()
	ch <- prometheus.MustNewConstMetric(c.created, prometheus.CounterValue, float64(st.SysV), shm.BackingSysV.String())
	ch <- prometheus.MustNewConstMetric(c.created, prometheus.CounterValue, float64(st.Mapping), shm.BackingMapping.String())
	ch <- prometheus.MustNewConstMetric(c.created, prometheus.CounterValue, float64(st.Heap), shm.BackingHeap.String())
	ch <- prometheus.MustNewConstMetric(c.live, prometheus.GaugeValue, float64(st.Live))
	ch <- prometheus.MustNewConstMetric(c.liveBytes, prometheus.GaugeValue, float64(st.LiveBytes))
}
