package heap

// Extent is a contiguous free byte range awaiting flush to the backing
// block device.
type Extent struct {
	Offset Offset
	Length uint64
}

// FreeExtentTracker accumulates free extents produced by the deferred
// frees Publish applies (Cancel produces none) so the engine can flush them to the block device in bulk (the
// vea_flush analogue named in spec.md §4.J), rather than issuing one
// device operation per freed allocation.
type FreeExtentTracker struct {
	pending []Extent
}

func newFreeExtentTracker() *FreeExtentTracker {
	return &FreeExtentTracker{}
}

// Track records a newly-freed extent.
func (t *FreeExtentTracker) Track(off Offset, length uint64) {
	t.pending = append(t.pending, Extent{Offset: off, Length: length})
}

// Pending returns the number of extents awaiting flush.
func (t *FreeExtentTracker) Pending() int { return len(t.pending) }

// Flush drains up to max pending extents (max == 0 means unbounded,
// mirroring vea_flush's UINT32_MAX default) and returns them for the
// caller to hand to the block-device layer.
func (t *FreeExtentTracker) Flush(max int) []Extent {
	if max <= 0 || max > len(t.pending) {
		max = len(t.pending)
	}
	out := t.pending[:max]
	t.pending = t.pending[max:]
	return out
}

// FreeExtents exposes the heap's tracker so the GC (component J) can
// push freed ranges into it after a drain slice.
func (h *Heap) FreeExtents() *FreeExtentTracker { return h.freeExtents }
