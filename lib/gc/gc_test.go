package gc

import (
	"testing"

	"github.com/lni/vfs"

	"github.com/vosdb/engine/lib/heap"
)

// countingItem builds an Item that needs n credits total before it
// reports empty, spending at most the offered credits per call.
func countingItem(n int) (*Item, *int) {
	remaining := n
	freedCount := 0
	it := &Item{
		Drain: func(credits int) (int, bool) {
			spend := credits
			if spend > remaining {
				spend = remaining
			}
			remaining -= spend
			return spend, remaining == 0
		},
		Free: func() error {
			freedCount++
			return nil
		},
	}
	return it, &freedCount
}

func TestCascadeFreesAkeyDirectly(t *testing.T) {
	bins := newContainerBins()
	it, freed := countingItem(1)
	bins.akey.Push(*it)

	stats := cascade(bins, Tight.Budget(), nil)
	if stats.Freed != 1 {
		t.Fatalf("Freed = %d, want 1", stats.Freed)
	}
	if *freed != 1 {
		t.Fatalf("item Free called %d times, want 1", *freed)
	}
	if bins.akey.Len() != 0 {
		t.Fatalf("akey bin len = %d, want 0", bins.akey.Len())
	}
}

func TestCascadeEscalatesWhenLeafEmpty(t *testing.T) {
	bins := newContainerBins()
	it, freed := countingItem(1)
	bins.object.Push(*it)

	stats := cascade(bins, Tight.Budget(), nil)
	if stats.Freed != 1 || *freed != 1 {
		t.Fatalf("stats=%+v freed=%d, want Freed=1", stats, *freed)
	}
}

func TestCascadeRespectsPerTierCreditCap(t *testing.T) {
	bins := newContainerBins()
	spentCalls := []int{}
	it := Item{
		Drain: func(credits int) (int, bool) {
			spentCalls = append(spentCalls, credits)
			return credits, false // never finishes, to observe the cap alone
		},
	}
	bins.dkey.Push(it)

	cascade(bins, 100, nil)
	if len(spentCalls) == 0 {
		t.Fatalf("dkey item never drained")
	}
	if spentCalls[0] != 32 {
		t.Fatalf("first dkey drain call offered %d credits, want the 32 cap", spentCalls[0])
	}
}

func TestCascadeAbortsOnYield(t *testing.T) {
	bins := newContainerBins()
	it, _ := countingItem(1)
	bins.akey.Push(*it)

	stats := cascade(bins, Tight.Budget(), func() bool { return true })
	if !stats.Aborted {
		t.Fatalf("expected Aborted=true")
	}
	if stats.Freed != 0 {
		t.Fatalf("Freed = %d, want 0 on immediate abort", stats.Freed)
	}
}

func TestCollectorDrainContainerAndPoolLifecycle(t *testing.T) {
	c := NewCollector(0, 0)
	c.RegisterContainer("cont1")

	it, freed := countingItem(1)
	c.EnqueueAkey("cont1", *it)

	stats := c.DrainContainer("cont1", Tight, nil)
	if stats.Freed != 1 || *freed != 1 {
		t.Fatalf("DrainContainer stats=%+v freed=%d, want Freed=1", stats, *freed)
	}
}

func TestEnqueueContainerDestroyMigratesResidualBags(t *testing.T) {
	c := NewCollector(0, 0)
	c.RegisterContainer("cont1")

	residual, freed := countingItem(1)
	c.EnqueueDkey("cont1", *residual)

	released := false
	c.EnqueueContainerDestroy("cont1", func() error { released = true; return nil })

	// One DrainPool slice has enough leftover credits (the container
	// entry only spends its 1-credit cap) to both free the destroyed
	// container and, via the migrated orphan bins, the residual dkey
	// item in the same pass.
	stats := c.DrainPool(Tight, nil)
	if stats.Freed != 2 {
		t.Fatalf("DrainPool stats=%+v, want Freed=2 (container + migrated residual)", stats)
	}
	if !released {
		t.Fatalf("release callback never ran")
	}
	if *freed != 1 {
		t.Fatalf("residual item Free called %d times, want 1", *freed)
	}

	// A further drain finds nothing left.
	again := c.DrainPool(Tight, nil)
	if again.Freed != 0 {
		t.Fatalf("second DrainPool stats=%+v, want Freed=0", again)
	}
}

func TestDrainAllCoversEveryRegisteredContainer(t *testing.T) {
	c := NewCollector(0, 0)
	var freedCounts []*int
	for _, id := range []string{"a", "b", "c"} {
		c.RegisterContainer(id)
		it, freed := countingItem(1)
		c.EnqueueAkey(id, *it)
		freedCounts = append(freedCounts, freed)
	}

	stats := c.DrainAll(Tight, nil)
	if stats.Freed != 3 {
		t.Fatalf("DrainAll freed = %d, want 3", stats.Freed)
	}
	for i, freed := range freedCounts {
		if *freed != 1 {
			t.Fatalf("container %d item Free called %d times, want 1", i, *freed)
		}
	}
}

func TestDrainSyncReclaimsAcrossSlicesUntilDry(t *testing.T) {
	c := NewCollector(0, 0)
	c.RegisterContainer("cont1")
	for i := 0; i < 5; i++ {
		it, _ := countingItem(1)
		c.EnqueueAkey("cont1", *it)
	}

	stats := c.DrainSync(10)
	if stats.Freed != 5 {
		t.Fatalf("DrainSync freed = %d, want 5", stats.Freed)
	}
}

func TestFlushBackendDrainsThenFlushesTrackedExtents(t *testing.T) {
	h, err := heap.Create(vfs.NewMem(), "flushbackend-test", 4)
	if err != nil {
		t.Fatalf("heap.Create: %v", err)
	}
	tracker := h.FreeExtents()
	tracker.Track(0, 128)
	tracker.Track(128, 256)

	c := NewCollector(0, 0)
	c.RegisterContainer("cont1")
	it, _ := countingItem(1)
	c.EnqueueAkey("cont1", *it)

	stats, extents := c.FlushBackend(tracker, 10, 0)
	if stats.Freed != 1 {
		t.Fatalf("FlushBackend drain stats = %+v, want Freed=1", stats)
	}
	if len(extents) != 2 {
		t.Fatalf("FlushBackend returned %d extents, want 2", len(extents))
	}
	if tracker.Pending() != 0 {
		t.Fatalf("tracker.Pending() = %d after flush, want 0", tracker.Pending())
	}
}
