package engine

import (
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
)

// Metrics is the set of in-process gauges/counters a running engine
// instance exposes — internal instrumentation only, distinct from the
// external telemetry sink spec.md §6's SetupClientTelemetry names (out
// of scope; see rpc/server). One Metrics belongs to one *Engine; the
// metric names are namespaced by pool path so multiple engines in one
// process don't collide on the global default set.
type Metrics struct {
	heapBytesUsed     atomic.Uint64
	heapBytesFree     atomic.Uint64
	pendingExtents    atomic.Uint64

	GCCreditsDrained   *metrics.Counter
	GCItemsFreed       *metrics.Counter
	GCSlicesAborted    *metrics.Counter
	DTXCommitBatchSize *metrics.Histogram
	DTXRestarts        *metrics.Counter
	TxRestarts         *metrics.Counter
}

// NewMetrics registers a namespaced metric set for one engine
// instance, named after its pool path the way a dragonboat NodeHost
// namespaces its own metrics per shard. VictoriaMetrics/metrics gauges
// are pull-style (a callback computes the current value at scrape
// time), so the two byte-count gauges and the pending-extents gauge
// read back atomics this Metrics updates via SetHeapUsage/
// SetPendingExtents rather than a push-style Set method.
func NewMetrics(poolPath string) *Metrics {
	m := &Metrics{}
	ns := func(name string) string {
		return name + `{pool="` + poolPath + `"}`
	}

	m.GCCreditsDrained = metrics.GetOrCreateCounter(ns("vosd_gc_credits_drained_total"))
	m.GCItemsFreed = metrics.GetOrCreateCounter(ns("vosd_gc_items_freed_total"))
	m.GCSlicesAborted = metrics.GetOrCreateCounter(ns("vosd_gc_slices_aborted_total"))
	m.DTXCommitBatchSize = metrics.GetOrCreateHistogram(ns("vosd_dtx_commit_batch_size"))
	m.DTXRestarts = metrics.GetOrCreateCounter(ns("vosd_dtx_restarts_total"))
	m.TxRestarts = metrics.GetOrCreateCounter(ns("vosd_tx_restarts_total"))

	metrics.GetOrCreateGauge(ns("vosd_heap_bytes_used"), func() float64 {
		return float64(m.heapBytesUsed.Load())
	})
	metrics.GetOrCreateGauge(ns("vosd_heap_bytes_free"), func() float64 {
		return float64(m.heapBytesFree.Load())
	})
	metrics.GetOrCreateGauge(ns("vosd_gc_pending_free_extents"), func() float64 {
		return float64(m.pendingExtents.Load())
	})

	return m
}

// SetHeapUsage updates the heap byte-usage gauges. Neither the engine's
// bootstrap nor its scheduler calls it; the gauges hold whatever the
// last caller stored, and zero until then.
func (m *Metrics) SetHeapUsage(used, free uint64) {
	m.heapBytesUsed.Store(used)
	m.heapBytesFree.Store(free)
}

// SetPendingExtents updates the GC pending-free-extents gauge from
// lib/heap.FreeExtentTracker.Pending().
func (m *Metrics) SetPendingExtents(n int) {
	m.pendingExtents.Store(uint64(n))
}

// HeapUsage returns the last values SetHeapUsage recorded, for
// consumers outside the metrics scrape path (rpc/server's PoolMonitor).
func (m *Metrics) HeapUsage() (used, free uint64) {
	return m.heapBytesUsed.Load(), m.heapBytesFree.Load()
}

// Pending returns the last value SetPendingExtents recorded.
func (m *Metrics) Pending() uint64 {
	return m.pendingExtents.Load()
}

// RecordGCSlice updates the GC counters after one drain slice.
func (m *Metrics) RecordGCSlice(creditsSpent, itemsFreed int, aborted bool) {
	m.GCCreditsDrained.Add(creditsSpent)
	m.GCItemsFreed.Add(itemsFreed)
	if aborted {
		m.GCSlicesAborted.Inc()
	}
}

// RecordDTXCommitBatch tracks a flushed commit batch's size.
func (m *Metrics) RecordDTXCommitBatch(size int) {
	m.DTXCommitBatchSize.Update(float64(size))
}
