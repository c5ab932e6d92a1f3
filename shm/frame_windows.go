//go:build windows

// File: shm/frame_windows.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Windows frames use an anonymous, pagefile-backed file mapping.

package shm

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var errEmptySegment = errors.New("shm: zero-length mapping")

func osMapShared(size int) (region, error) {
	if size == 0 {
		return region{}, errEmptySegment
	}
	sz := uint64(size)
	h, err := windows.CreateFileMapping(windows.InvalidHandle, nil,
		windows.PAGE_READWRITE, uint32(sz>>32), uint32(sz), nil)
	if err != nil {
		return region{}, fmt.Errorf("CreateFileMapping: %w", err)
	}
	addr, err := windows.MapViewOfFile(h, windows.FILE_MAP_WRITE, 0, 0, uintptr(size))
	if err != nil {
		windows.CloseHandle(h)
		return region{}, fmt.Errorf("MapViewOfFile: %w", err)
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	return region{
		data:    data,
		id:      -1,
		backing: BackingMapping,
		release: func() error {
			unmapErr := windows.UnmapViewOfFile(addr)
			closeErr := windows.CloseHandle(h)
			return errors.Join(unmapErr, closeErr)
		},
	}, nil
}
