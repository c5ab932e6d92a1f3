// File: internal/bench/bench.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Producer/consumer frame pipeline over a FramePool and a blocking queue.

package bench

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/momentics/shmstack/api"
	"github.com/momentics/shmstack/control"
	"github.com/momentics/shmstack/pool"
	"github.com/momentics/shmstack/queue"
	"github.com/momentics/shmstack/shm"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Scenario is one (produce, consume) pacing pair.
type Scenario struct {
	Name            string
	ProduceInterval time.Duration
	ConsumeInterval time.Duration
}

// DefaultScenarios pairs a decoder and a renderer running at various speeds.
func DefaultScenarios() []Scenario {
	ms := time.Millisecond
	return []Scenario{
		{"decode-1ms/render-2ms", 1 * ms, 2 * ms},
		{"decode-2ms/render-1ms", 2 * ms, 1 * ms},
		{"decode-10ms/render-10ms", 10 * ms, 10 * ms},
		{"decode-5ms/render-16ms", 5 * ms, 16 * ms},
		{"decode-16ms/render-5ms", 16 * ms, 5 * ms},
	}
}

// ScenariosFor returns the configured pair when either interval is set,
// the default table otherwise.
func ScenariosFor(cfg control.BenchConfig) []Scenario {
	if cfg.ProduceInterval == 0 && cfg.ConsumeInterval == 0 {
		return DefaultScenarios()
	}
	return []Scenario{{
		Name:            fmt.Sprintf("produce-%s/consume-%s", cfg.ProduceInterval, cfg.ConsumeInterval),
		ProduceInterval: cfg.ProduceInterval,
		ConsumeInterval: cfg.ConsumeInterval,
	}}
}

// Report summarizes one scenario run.
type Report struct {
	Scenario  string
	Produced  uint64
	Consumed  uint64
	Dropped   uint64 // acquire found the pool exhausted
	Corrupt   uint64 // consumer saw a stamp mismatch
	Leftover  int    // leases still queued when the pool closed
	Pool      api.PoolStats
	LiveAfter int64 // shm frames still alive after drain, relative to start
}

// Runner executes scenarios. It is safe to retune pacing while a scenario
// runs.
type Runner struct {
	cfg     control.Config
	logger  *zap.Logger
	metrics *control.MetricsRegistry

	active   atomic.Pointer[pool.FramePool]
	limiter  atomic.Pointer[rate.Limiter]
	consume  atomic.Int64 // time.Duration
	sequence atomic.Uint64
}

var _ api.StatsSource = (*Runner)(nil)

// NewRunner creates a runner for cfg. metrics may be nil.
func NewRunner(cfg control.Config, logger *zap.Logger, metrics *control.MetricsRegistry) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{cfg: cfg, logger: logger, metrics: metrics}
}

// Stats reports the pool of the running scenario, or a zero closed pool
// between scenarios.
func (r *Runner) Stats() api.PoolStats {
	if p := r.active.Load(); p != nil {
		return p.Stats()
	}
	return api.PoolStats{Closed: true}
}

// Retune changes pacing of the running scenario.
func (r *Runner) Retune(produce, consume time.Duration) {
	if lim := r.limiter.Load(); lim != nil {
		lim.SetLimit(every(produce))
	}
	r.consume.Store(int64(consume))
	r.logger.Info("pacing retuned",
		zap.Duration("produce_interval", produce),
		zap.Duration("consume_interval", consume),
	)
}

func every(d time.Duration) rate.Limit {
	if d <= 0 {
		return rate.Inf
	}
	return rate.Every(d)
}

// RunAll runs scenarios in order, stopping at the first error.
func (r *Runner) RunAll(ctx context.Context, scenarios []Scenario) ([]Report, error) {
	reports := make([]Report, 0, len(scenarios))
	for _, sc := range scenarios {
		rep, err := r.Run(ctx, sc)
		if err != nil {
			return reports, fmt.Errorf("scenario %s: %w", sc.Name, err)
		}
		reports = append(reports, rep)
	}
	return reports, nil
}

// Run builds a fresh frame pool, runs producers and consumers for the
// configured duration, then closes the pool with leases still queued and
// drains the queue.
func (r *Runner) Run(ctx context.Context, sc Scenario) (Report, error) {
	before := shm.ReadStats()

	opts := []pool.Option{pool.WithLogger(r.logger)}
	if r.cfg.Pool.HeapOnly {
		opts = append(opts, pool.WithFrameOptions(shm.WithHeapOnly()))
	}
	p, err := pool.NewFramePool(r.cfg.Pool.Count, r.cfg.Pool.FrameSize, opts...)
	if err != nil {
		return Report{}, err
	}
	r.active.Store(p)
	defer r.active.Store(nil)

	lim := rate.NewLimiter(every(sc.ProduceInterval), 1)
	r.limiter.Store(lim)
	defer r.limiter.Store(nil)
	r.consume.Store(int64(sc.ConsumeInterval))

	q := queue.NewBlocking[*pool.FrameLease]()
	rep := Report{Scenario: sc.Name}
	var produced, consumed, dropped, corrupt atomic.Uint64

	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Bench.Duration)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	for i := 0; i < r.cfg.Bench.Producers; i++ {
		g.Go(func() error {
			for {
				if err := lim.Wait(gctx); err != nil {
					return nil
				}
				l, ok := p.TryAcquire()
				if !ok {
					dropped.Add(1)
					continue
				}
				stamp(l.Value().Bytes(), r.sequence.Add(1))
				if err := q.Push(l); err != nil {
					return errors.Join(err, l.Release())
				}
				produced.Add(1)
			}
		})
	}
	for i := 0; i < r.cfg.Bench.Consumers; i++ {
		g.Go(func() error {
			for {
				l, err := q.PopContext(gctx)
				if err != nil {
					return nil
				}
				if !checkStamp(l.Value().Bytes()) {
					corrupt.Add(1)
				}
				if d := time.Duration(r.consume.Load()); d > 0 {
					select {
					case <-time.After(d):
					case <-gctx.Done():
					}
				}
				if err := l.Release(); err != nil {
					return err
				}
				consumed.Add(1)
			}
		})
	}
	if err := g.Wait(); err != nil {
		return rep, err
	}

	closeErr := p.Close()
	q.Close()
	var releaseErrs []error
	rep.Leftover = q.Drain(func(l *pool.FrameLease) {
		if err := l.Release(); err != nil {
			releaseErrs = append(releaseErrs, err)
		}
	})

	rep.Produced = produced.Load()
	rep.Consumed = consumed.Load()
	rep.Dropped = dropped.Load()
	rep.Corrupt = corrupt.Load()
	rep.Pool = p.Stats()
	rep.LiveAfter = shm.ReadStats().Live - before.Live

	if r.metrics != nil {
		r.metrics.PublishPoolStats("frames", rep.Pool)
		r.metrics.PublishFrameStats(shm.ReadStats())
	}
	r.logger.Info("scenario finished",
		zap.String("scenario", sc.Name),
		zap.Uint64("produced", rep.Produced),
		zap.Uint64("consumed", rep.Consumed),
		zap.Uint64("dropped", rep.Dropped),
		zap.Uint64("corrupt", rep.Corrupt),
		zap.Int("leftover", rep.Leftover),
		zap.Int64("live_frames", rep.LiveAfter),
	)

	if err := errors.Join(append(releaseErrs, closeErr)...); err != nil {
		return rep, err
	}
	if rep.LiveAfter != 0 {
		return rep, api.NewError(api.ErrCodeInvariant, "bench: frames leaked").
			WithContext("live", rep.LiveAfter)
	}
	return rep, nil
}

// stamp writes seq at both ends of buf so a torn or shared frame is
// detectable. Frames shorter than 16 bytes are left alone.
func stamp(buf []byte, seq uint64) {
	if len(buf) < 16 {
		return
	}
	binary.LittleEndian.PutUint64(buf, seq)
	binary.LittleEndian.PutUint64(buf[len(buf)-8:], seq)
}

func checkStamp(buf []byte) bool {
	if len(buf) < 16 {
		return true
	}
	return binary.LittleEndian.Uint64(buf) == binary.LittleEndian.Uint64(buf[len(buf)-8:])
}
