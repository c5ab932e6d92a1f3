// File: shm/frame.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package shm

import (
	"fmt"
	"sync/atomic"

	"github.com/momentics/shmstack/api"
	"go.uber.org/zap"
)

// Backing identifies which allocation path produced a frame.
type Backing int

const (
	// BackingHeap is a plain Go heap slice.
	BackingHeap Backing = iota
	// BackingSysV is a System V shared-memory segment (shmget/shmat).
	BackingSysV
	// BackingMapping is an anonymous pagefile-backed file mapping (Windows).
	BackingMapping
)

func (b Backing) String() string {
	switch b {
	case BackingSysV:
		return "sysv"
	case BackingMapping:
		return "mapping"
	default:
		return "heap"
	}
}

// region is a successfully mapped shared segment.
type region struct {
	data    []byte // requested length, exactly
	id      int    // segment id, -1 when the platform has none
	backing Backing
	release func() error
}

// Frame is a fixed-size byte region. It implements api.Buffer.
type Frame struct {
	data    []byte
	size    int
	id      int
	backing Backing
	release func() error
	closed  atomic.Bool
}

var _ api.Buffer = (*Frame)(nil)

type options struct {
	heapOnly bool
	logger   *zap.Logger
}

// Option configures NewFrame.
type Option func(*options)

// WithHeapOnly skips the shared-memory attempt.
func WithHeapOnly() Option {
	return func(o *options) { o.heapOnly = true }
}

// WithLogger sets the logger used to report shared-memory fallbacks.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewFrame allocates a frame of exactly size bytes.
//
// Shared memory is tried first; any failure there falls back to the heap
// without surfacing an error. Only a failure of both paths is reported.
// size 0 is valid and yields a non-nil, empty view.
func NewFrame(size int, opts ...Option) (*Frame, error) {
	if size < 0 {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "shm: negative frame size").
			WithContext("size", size)
	}
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	if !o.heapOnly {
		r, err := osMapShared(size)
		if err == nil {
			globalStats.recordAlloc(r.backing, size)
			return &Frame{
				data:    r.data,
				size:    size,
				id:      r.id,
				backing: r.backing,
				release: r.release,
			}, nil
		}
		o.logger.Debug("shared memory unavailable, using heap",
			zap.Int("size", size),
			zap.Error(err),
		)
	}

	data, err := heapAlloc(size)
	if err != nil {
		return nil, api.NewError(api.ErrCodeAllocation, "shm: frame allocation failed").
			WithContext("size", size).
			WithCause(err)
	}
	globalStats.recordAlloc(BackingHeap, size)
	return &Frame{data: data, size: size, id: -1, backing: BackingHeap}, nil
}

// heapAlloc turns a runtime allocation panic into an error.
func heapAlloc(size int) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			data, err = nil, fmt.Errorf("heap: %v", r)
		}
	}()
	return make([]byte, size), nil
}

// Bytes returns the raw view. It is nil once the frame is closed.
func (f *Frame) Bytes() []byte {
	if f.closed.Load() {
		return nil
	}
	return f.data
}

// Len returns the fixed frame length.
func (f *Frame) Len() int { return f.size }

// Backing reports the allocation path chosen at construction.
func (f *Frame) Backing() Backing { return f.backing }

// SegmentID returns the System V segment id so another process can attach
// the payload. ok is false for non-SysV frames.
func (f *Frame) SegmentID() (id int, ok bool) {
	return f.id, f.backing == BackingSysV
}

// Close releases the region through the path recorded at construction.
// It is idempotent.
func (f *Frame) Close() error {
	if f.closed.Swap(true) {
		return nil
	}
	globalStats.recordFree(f.size)
	if f.release == nil {
		// heap: reclaimed by the collector once the frame is unreferenced
		return nil
	}
	if err := f.release(); err != nil {
		return fmt.Errorf("shm: release %s frame: %w", f.backing, err)
	}
	return nil
}
