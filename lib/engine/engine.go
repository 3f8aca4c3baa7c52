package engine

import (
	"context"
	"strings"
	"time"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/lni/vfs"

	"github.com/vosdb/engine/lib/dtx"
	"github.com/vosdb/engine/lib/gc"
	"github.com/vosdb/engine/lib/heap"
	"github.com/vosdb/engine/lib/hlc"
	"github.com/vosdb/engine/lib/object"
)

var log = logger.GetLogger("engine")

// parseLogLevel mirrors rpc/common.ParseLogLevel's mapping without
// introducing a dependency from lib/ back onto rpc/ — both packages
// independently translate the same four level names the teacher's
// ServerConfig.LogLevel already uses.
func parseLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG
	case "warning", "warn":
		return logger.WARNING
	case "error":
		return logger.ERROR
	default:
		return logger.INFO
	}
}

const defaultObjectCacheSize = 4096
const defaultDTXCacheCapacity = 8192
const defaultDTXCacheSubArrays = 16
const defaultGCTickInterval = 100 * time.Millisecond

// Engine is one bootstrapped instance of the storage engine — spec
// §9's "no global state with initialization races" is satisfied by
// putting every piece of state that would otherwise be a package-level
// singleton (the HLC clock, the object pool's directory roots, the DTX
// cache, the GC collector) behind this struct, constructed and torn
// down only through Init/Fini in the deterministic order spec §9
// requires instead of language-level static constructors.
type Engine struct {
	cfg *EngineConfig

	Heap      *heap.Heap
	Pool      *object.Pool
	Clock     *hlc.Clock
	DTX       *dtx.Cache
	GC        *gc.Collector
	Scheduler *Scheduler
	Metrics   *Metrics

	cancel context.CancelFunc
}

// Init bootstraps a new engine instance: opens (or creates) the pool
// file, wires the object layer over it, and brings up the HLC clock,
// the DTX cache and the GC collector in that order — the heap must
// exist before anything that allocates from it, and the clock must
// exist before anything that stamps an epoch.
func Init(cfg *EngineConfig, fs vfs.FS) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultEngineConfig()
	}
	if fs == nil {
		fs = vfs.Default
	}

	h, err := openOrCreatePool(fs, cfg.PoolPath, cfg.NumZones)
	if err != nil {
		return nil, Wrap(err, KindIO, "engine: open pool")
	}

	pool, err := object.NewPool(h, defaultObjectCacheSize)
	if err != nil {
		return nil, Wrap(err, KindNoMemory, "engine: init object pool")
	}

	clock := hlc.NewClock()
	clock.SetEpsilon(cfg.HLCEpsilon)

	dtxCache, err := dtx.NewCache(defaultDTXCacheCapacity, defaultDTXCacheSubArrays, cfg.DTXCommitBatchCount, cfg.DTXCommitBatchAge)
	if err != nil {
		return nil, Wrap(err, KindNoMemory, "engine: init dtx cache")
	}

	collector := gc.NewCollector(cfg.GCTightCredits, cfg.GCSlackCredits)
	pool.SetReclaimHook(func() bool {
		return collector.DrainAll(gc.Tight, nil).Freed > 0
	})

	ctx, cancel := context.WithCancel(context.Background())
	// Two streams: one is claimed for the lifetime of the engine by the
	// background GC ticker below, leaving the other free for mutation
	// tasks and ad hoc GC slices submitted elsewhere.
	sched := NewScheduler(ctx, 2)

	log.SetLevel(parseLogLevel(cfg.LogLevel))

	e := &Engine{
		cfg:       cfg,
		Heap:      h,
		Pool:      pool,
		Clock:     clock,
		DTX:       dtxCache,
		GC:        collector,
		Scheduler: sched,
		Metrics:   NewMetrics(cfg.PoolPath),
		cancel:    cancel,
	}

	e.Scheduler.Submit(func(ctx context.Context) error {
		return e.runGCTicker(ctx, cfg.GCTickInterval)
	})

	log.Infof("engine: initialized pool %s (%d zones)", cfg.PoolPath, cfg.NumZones)
	return e, nil
}

// runGCTicker is the background GC slice scheduler.Submit's doc
// comment anticipates: one Slack-credit drain slice per tick, stopping
// as soon as the engine's context is canceled (Fini's Scheduler.Close).
func (e *Engine) runGCTicker(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = defaultGCTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.GC.DrainAll(gc.Slack, func() bool { return ctx.Err() != nil })
		}
	}
}

func openOrCreatePool(fs vfs.FS, path string, nzones int) (*heap.Heap, error) {
	if _, err := fs.Stat(path); err == nil {
		return heap.Open(fs, path, nil)
	}
	return heap.Create(fs, path, nzones)
}

// Fini tears the engine down in reverse bootstrap order: stop
// scheduling new work, run a final synchronous GC drain so nothing
// reclaimable is left dangling across a restart, then close the heap.
func (e *Engine) Fini() error {
	e.Scheduler.Close()
	if err := e.Scheduler.Wait(); err != nil {
		log.Warningf("engine: scheduler drain on shutdown: %v", err)
	}
	e.GC.DrainSync(1 << 10)
	if err := e.Heap.Close(); err != nil {
		return Wrap(err, KindIO, "engine: close heap")
	}
	log.Infof("engine: shut down pool %s", e.cfg.PoolPath)
	return nil
}
