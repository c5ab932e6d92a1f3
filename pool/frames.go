// File: pool/frames.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Pool of shared-memory frames, the production use of Fixed.

package pool

import (
	"errors"
	"fmt"

	"github.com/momentics/shmstack/api"
	"github.com/momentics/shmstack/shm"
	"go.uber.org/zap"
)

// FramePool leases fixed-size shm frames.
type FramePool = Fixed[*shm.Frame]

// FrameLease is a lease on one frame.
type FrameLease = Lease[*shm.Frame]

// NewFramePool allocates count frames of size bytes each and pools them.
// If any frame cannot be allocated, the ones already built are closed and
// the allocation error is returned.
func NewFramePool(count, size int, opts ...Option) (*FramePool, error) {
	if count < 0 {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "pool: negative frame count").
			WithContext("count", count)
	}
	o := buildOptions(opts)
	frameOpts := append([]shm.Option{shm.WithLogger(o.logger)}, o.frameOpts...)

	frames := make([]*shm.Frame, 0, count)
	for i := 0; i < count; i++ {
		f, err := shm.NewFrame(size, frameOpts...)
		if err != nil {
			errs := []error{fmt.Errorf("pool: frame %d: %w", i, err)}
			for _, built := range frames {
				errs = append(errs, built.Close())
			}
			return nil, errors.Join(errs...)
		}
		frames = append(frames, f)
	}

	backings := make(map[string]int, 2)
	for _, f := range frames {
		backings[f.Backing().String()]++
	}
	o.logger.Debug("frame pool ready",
		zap.Int("count", count),
		zap.Int("frame_size", size),
		zap.Any("backings", backings),
	)
	return New(frames, opts...), nil
}
