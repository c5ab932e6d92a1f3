// File: pool/wait.go
// Author: momentics <momentics@gmail.com>
//
// Polling acquire for callers that prefer waiting over dropping work.

package pool

import (
	"context"
	"time"

	"github.com/momentics/shmstack/api"
	"golang.org/x/time/rate"
)

// DefaultPollInterval paces AcquireContext when no limiter is given.
const DefaultPollInterval = time.Millisecond

// AcquireContext retries TryAcquire, paced by lim, until a lease is won, ctx
// ends, or the pool is closed. A nil lim polls every DefaultPollInterval.
func (p *Fixed[T]) AcquireContext(ctx context.Context, lim *rate.Limiter) (*Lease[T], error) {
	if lim == nil {
		lim = rate.NewLimiter(rate.Every(DefaultPollInterval), 1)
	}
	for {
		if l, ok := p.TryAcquire(); ok {
			return l, nil
		}
		if p.Closed() {
			return nil, api.ErrPoolClosed
		}
		if err := lim.Wait(ctx); err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return nil, cerr
			}
			// the limiter refuses to wait past the deadline
			if _, ok := ctx.Deadline(); ok {
				return nil, context.DeadlineExceeded
			}
			return nil, err
		}
	}
}
