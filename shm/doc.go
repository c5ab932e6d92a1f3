// Package shm provides fixed-size frames backed by OS shared memory.
// Author: momentics <momentics@gmail.com>
//
// A Frame first tries a shared-memory segment (System V on Linux and macOS,
// an anonymous pagefile mapping on Windows) and silently falls back to the Go
// heap when the host refuses. Either way the caller sees one []byte view whose
// address never changes until Close. The release path is picked once, at
// construction, and recorded in the frame's Backing tag.
//
// Frames perform no locking. Whoever holds a frame (usually through a pool
// lease) is responsible for ordering reads and writes.
//
// Usage:
//
//	f, err := shm.NewFrame(320 * 240 * 4)
//	if err != nil { ... }
//	defer f.Close()
//	copy(f.Bytes(), pixels)
package shm
