// File: shm/stats.go
// Author: momentics <momentics@gmail.com>
//
// Process-wide frame accounting.

package shm

import "sync/atomic"

// Stats is a snapshot of frame allocation counters.
type Stats struct {
	SysV      int64 // frames created on System V segments
	Mapping   int64 // frames created on Windows file mappings
	Heap      int64 // frames created on the Go heap
	Closed    int64
	Live      int64
	LiveBytes int64
}

// Created returns the total number of frames ever created.
func (s Stats) Created() int64 { return s.SysV + s.Mapping + s.Heap }

type frameStats struct {
	created   [3]atomic.Int64 // indexed by Backing
	closed    atomic.Int64
	liveBytes atomic.Int64
}

var globalStats frameStats

func (s *frameStats) recordAlloc(b Backing, size int) {
	s.created[b].Add(1)
	s.liveBytes.Add(int64(size))
}

func (s *frameStats) recordFree(size int) {
	s.closed.Add(1)
	s.liveBytes.Add(-int64(size))
}

// ReadStats returns the current process-wide counters.
func ReadStats() Stats {
	st := Stats{
		SysV:      globalStats.created[BackingSysV].Load(),
		Mapping:   globalStats.created[BackingMapping].Load(),
		Heap:      globalStats.created[BackingHeap].Load(),
		Closed:    globalStats.closed.Load(),
		LiveBytes: globalStats.liveBytes.Load(),
	}
	st.Live = st.Created() - st.Closed
	return st
}
