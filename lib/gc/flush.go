package gc

import "github.com/vosdb/engine/lib/heap"

// FlushBackend runs one synchronous pool-wide reclamation pass (up to
// maxSlices drain slices) and then flushes every free extent the
// heap's tracker has accumulated — spec §4.J's "after a full slice the
// engine flushes up to UINT32_MAX free extents via vea_flush or its
// equivalent". maxExtents <= 0 means unbounded, mirroring vea_flush's
// UINT32_MAX default; the caller hands the returned extents to the
// block-device layer.
func (c *Collector) FlushBackend(tracker *heap.FreeExtentTracker, maxSlices, maxExtents int) (Stats, []heap.Extent) {
	stats := c.DrainSync(maxSlices)
	if tracker == nil || tracker.Pending() == 0 {
		return stats, nil
	}
	return stats, tracker.Flush(maxExtents)
}
