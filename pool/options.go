// File: pool/options.go
// Author: momentics <momentics@gmail.com>

package pool

import (
	"github.com/momentics/shmstack/shm"
	"go.uber.org/zap"
)

type options struct {
	logger    *zap.Logger
	frameOpts []shm.Option
}

// Option configures a pool.
type Option func(*options)

// WithLogger sets the pool logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithFrameOptions passes options to every shm.NewFrame call made by
// NewFramePool.
func WithFrameOptions(opts ...shm.Option) Option {
	return func(o *options) { o.frameOpts = append(o.frameOpts, opts...) }
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
