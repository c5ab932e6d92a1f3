// Package api
// Author: momentics
//
// Fixed-size memory buffers backed by shared memory or the Go heap.
//
// Buffers never reallocate: the view returned by Bytes stays valid until Close.
// No operation on a Buffer is synchronized; concurrent writers must coordinate.

package api

import "io"

// Releaser is anything a pool can own and release exactly once.
type Releaser interface {
	io.Closer
}

// Buffer describes a fixed-size, raw memory region.
type Buffer interface {
	Releaser

	// Bytes returns the writable view of the whole region.
	Bytes() []byte

	// Len returns the fixed region length in bytes.
	Len() int
}
