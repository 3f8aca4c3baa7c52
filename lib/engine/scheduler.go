package engine

import (
	"context"

	"github.com/sourcegraph/conc/pool"
)

// Scheduler models one engine's pool of ULTs (user-level threads) over
// a fixed, small number of execution streams (spec §5: "a fixed small
// number of engines per node"), using sourcegraph/conc's bounded
// goroutine pool instead of unbounded `go` statements. There is
// deliberately no OS-thread parallelism beyond the configured stream
// count within one Scheduler — cooperative yielding between queued
// tasks is the only form of interleaving, matching spec §5's ULT
// model; multiple NUMA-socket engines run independent Schedulers.
type Scheduler struct {
	streams int
	pool    *pool.ContextPool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler creates a scheduler bounded to streams concurrent ULTs.
func NewScheduler(ctx context.Context, streams int) *Scheduler {
	if streams < 1 {
		streams = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	p := pool.New().WithMaxGoroutines(streams).WithContext(ctx).WithCancelOnError()
	return &Scheduler{streams: streams, pool: p, ctx: ctx, cancel: cancel}
}

// Submit queues a task (a mutation closure or a GC slice) to run on
// one of the scheduler's bounded streams.
func (s *Scheduler) Submit(task func(ctx context.Context) error) {
	s.pool.Go(task)
}

// Wait blocks until every submitted task has completed, returning the
// errors the tasks reported joined into one (nil if none failed);
// errors.Is matches any of them.
func (s *Scheduler) Wait() error {
	return s.pool.Wait()
}

// Close cancels any still-running tasks and releases the scheduler.
func (s *Scheduler) Close() {
	s.cancel()
}

// Yield is the cooperative checkpoint spec §5 requires at specific
// points (after tx_end, between GC items, before a blocking RPC): it
// returns ctx.Err() if the scheduler's context has been canceled,
// giving a long-running task a chance to observe cancellation instead
// of running to completion regardless.
func Yield(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
