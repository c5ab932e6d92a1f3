//go:build !linux && !windows && (!darwin || ios)

// File: shm/frame_stub.go
// Author: momentics <momentics@gmail.com>
//
// Platforms without a supported shared-memory primitive always use the heap.

package shm

import "github.com/momentics/shmstack/api"

func osMapShared(int) (region, error) {
	return region{}, api.ErrNotSupported
}
