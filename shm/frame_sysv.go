//go:build linux || (darwin && !ios)

// File: shm/frame_sysv.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// System V shared-memory segments. The segment stays attached and registered
// until the frame is closed; Close detaches and then removes it.

package shm

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

var errEmptySegment = errors.New("shm: zero-length segment")

func osMapShared(size int) (region, error) {
	if size == 0 {
		// shmget rejects empty segments with EINVAL
		return region{}, errEmptySegment
	}
	id, err := unix.SysvShmGet(unix.IPC_PRIVATE, size, unix.IPC_CREAT|0o600)
	if err != nil {
		return region{}, fmt.Errorf("shmget: %w", err)
	}
	mapped, err := unix.SysvShmAttach(id, 0, 0)
	if err != nil {
		_, _ = unix.SysvShmCtl(id, unix.IPC_RMID, nil)
		return region{}, fmt.Errorf("shmat: %w", err)
	}
	if len(mapped) < size {
		_ = unix.SysvShmDetach(mapped)
		_, _ = unix.SysvShmCtl(id, unix.IPC_RMID, nil)
		return region{}, fmt.Errorf("shmat: segment %d is %d bytes, want %d", id, len(mapped), size)
	}
	return region{
		data:    mapped[:size:size],
		id:      id,
		backing: BackingSysV,
		release: func() error {
			detachErr := unix.SysvShmDetach(mapped)
			_, rmErr := unix.SysvShmCtl(id, unix.IPC_RMID, nil)
			return errors.Join(detachErr, rmErr)
		},
	}, nil
}
