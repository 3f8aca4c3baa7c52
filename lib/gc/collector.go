package gc

import (
	"sync"

	iradix "github.com/hashicorp/go-immutable-radix"
)

// containerBins holds one container's three per-tier bins (akey,
// dkey, object); the container tier itself is pool-scoped, so it is
// not part of this struct.
type containerBins struct {
	akey   *Bin
	dkey   *Bin
	object *Bin
}

func newContainerBins() *containerBins {
	return &containerBins{akey: newBin(), dkey: newBin(), object: newBin()}
}

func (cb *containerBins) binFor(t Tier) *Bin {
	switch t {
	case TierAkey:
		return cb.akey
	case TierDkey:
		return cb.dkey
	case TierObject:
		return cb.object
	default:
		return nil
	}
}

// Stats summarizes one drain call's outcome.
type Stats struct {
	Freed   int
	Aborted bool
}

// Collector is the pool-wide GC state: a stable radix snapshot of
// live containers' bin sets plus the pool-level container-tier bin
// and the orphan bins a destroyed container's leftovers migrate into.
type Collector struct {
	mu         sync.Mutex
	containers *iradix.Tree

	poolContainerBin *Bin
	orphan           *containerBins

	tightCredits int
	slackCredits int
}

// NewCollector allocates an empty collector with the given per-slice
// credit budgets for Tight and Slack mode (spec §4.J: "tight (32
// credits per slice) and slack (8)"). A zero or negative value falls
// back to this package's default for that mode.
func NewCollector(tightCredits, slackCredits int) *Collector {
	if tightCredits <= 0 {
		tightCredits = defaultTightCredits
	}
	if slackCredits <= 0 {
		slackCredits = defaultSlackCredits
	}
	return &Collector{
		containers:       iradix.New(),
		poolContainerBin: newBin(),
		orphan:           newContainerBins(),
		tightCredits:     tightCredits,
		slackCredits:     slackCredits,
	}
}

// budget returns this collector's configured per-slice credits for
// mode, replacing CreditMode.Budget()'s package-wide default.
func (c *Collector) budget(mode CreditMode) int {
	if mode == Slack {
		return c.slackCredits
	}
	return c.tightCredits
}

// RegisterContainer creates (if absent) the per-tier bin set for
// containerID.
func (c *Collector) RegisterContainer(containerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.containers.Get([]byte(containerID)); ok {
		return
	}
	txn := c.containers.Txn()
	txn.Insert([]byte(containerID), newContainerBins())
	c.containers = txn.Commit()
}

func (c *Collector) lookup(containerID string) (*containerBins, bool) {
	c.mu.Lock()
	tree := c.containers
	c.mu.Unlock()
	v, ok := tree.Get([]byte(containerID))
	if !ok {
		return nil, false
	}
	return v.(*containerBins), true
}

// EnqueueAkey/EnqueueDkey/EnqueueObject push a dead record into the
// named container's bin at that tier, registering the container if
// this is its first dead record.
func (c *Collector) EnqueueAkey(containerID string, it Item) {
	c.RegisterContainer(containerID)
	cb, _ := c.lookup(containerID)
	cb.akey.Push(it)
}

func (c *Collector) EnqueueDkey(containerID string, it Item) {
	c.RegisterContainer(containerID)
	cb, _ := c.lookup(containerID)
	cb.dkey.Push(it)
}

func (c *Collector) EnqueueObject(containerID string, it Item) {
	c.RegisterContainer(containerID)
	cb, _ := c.lookup(containerID)
	cb.object.Push(it)
}

// EnqueueContainerDestroy queues a container for pool-tier reclamation.
// When its turn comes, any per-container bags it still holds (akey,
// dkey and object items the per-container drain never got around to) are migrated
// to the pool-level orphan bins before release runs — spec §4.J's
// "residual bags ... migrated up to the pool-level bin" — and release
// is called to give back the container's own heap region.
func (c *Collector) EnqueueContainerDestroy(containerID string, release func() error) {
	c.poolContainerBin.Push(Item{
		Drain: func(credits int) (int, bool) { return 0, true },
		Free: func() error {
			c.mu.Lock()
			v, ok := c.containers.Get([]byte(containerID))
			txn := c.containers.Txn()
			txn.Delete([]byte(containerID))
			c.containers = txn.Commit()
			c.mu.Unlock()

			if ok {
				cb := v.(*containerBins)
				cb.akey.migrateInto(c.orphan.akey)
				cb.dkey.migrateInto(c.orphan.dkey)
				cb.object.migrateInto(c.orphan.object)
			}
			if release != nil {
				return release()
			}
			return nil
		},
	})
}

// cascade runs spec §4.J's escalate-then-descend algorithm over a
// single container-scoped bin set (akey/dkey/object), starting at the
// leaf tier, escalating toward object whenever the current tier's bin
// is empty, and stepping back down to the child tier immediately after
// any non-empty drain.
func cascade(bins *containerBins, credits int, yield func() bool) Stats {
	var stats Stats
	tier := TierAkey

	for credits > 0 {
		if yield != nil && yield() {
			stats.Aborted = true
			return stats
		}

		bin := bins.binFor(tier)
		it, ok := bin.Peek()
		if !ok {
			if tier == TierObject {
				break
			}
			tier, _ = tier.nextHigher()
			continue
		}

		spend := tier.creditCap(credits)
		spent, empty := it.Drain(spend)
		credits -= spent

		if empty {
			if it.Free != nil {
				it.Free()
			}
			bin.Pop()
			stats.Freed++
			credits--
		}

		if tier != TierAkey {
			tier--
		}
	}

	return stats
}

// DrainContainer runs one credit-bounded drain slice over a single
// container's akey/dkey/object bins.
func (c *Collector) DrainContainer(containerID string, mode CreditMode, yield func() bool) Stats {
	cb, ok := c.lookup(containerID)
	if !ok {
		return Stats{}
	}
	return cascade(cb, c.budget(mode), yield)
}

// DrainPool runs one credit-bounded drain slice over the pool-level
// container-tier bin (each container item's drain is capped at one
// credit, and each free costs one more, so a slice keeps freeing
// containers while credits remain) and the orphan bins any torn-down
// container's leftovers landed in.
func (c *Collector) DrainPool(mode CreditMode, yield func() bool) Stats {
	credits := c.budget(mode)
	var stats Stats

	for credits > 0 {
		if yield != nil && yield() {
			stats.Aborted = true
			return stats
		}
		it, ok := c.poolContainerBin.Peek()
		if !ok {
			break
		}
		spend := TierContainer.creditCap(credits)
		spent, empty := it.Drain(spend)
		credits -= spent
		if empty {
			if it.Free != nil {
				it.Free()
			}
			c.poolContainerBin.Pop()
			stats.Freed++
			credits--
		}
	}

	orphanStats := cascade(c.orphan, credits, yield)
	stats.Freed += orphanStats.Freed
	stats.Aborted = stats.Aborted || orphanStats.Aborted
	return stats
}

// DrainAll runs one slice over every live container (in the stable
// radix snapshot's iteration order) followed by one pool-tier slice,
// stopping early if yield requests an abort.
func (c *Collector) DrainAll(mode CreditMode, yield func() bool) Stats {
	c.mu.Lock()
	tree := c.containers
	c.mu.Unlock()

	var stats Stats
	it := tree.Root().Iterator()
	for {
		_, v, ok := it.Next()
		if !ok {
			break
		}
		cb := v.(*containerBins)
		s := cascade(cb, c.budget(mode), yield)
		stats.Freed += s.Freed
		if s.Aborted {
			stats.Aborted = true
			return stats
		}
	}

	poolStats := c.DrainPool(mode, yield)
	stats.Freed += poolStats.Freed
	stats.Aborted = stats.Aborted || poolStats.Aborted
	return stats
}

// DrainSync runs DrainAll synchronously up to maxSlices times in Tight
// mode, ignoring the usual single-slice-per-scheduler-tick pacing —
// the §4.J.1 supplement used by pool destroy and tests to reclaim
// everything reclaimable right now rather than across many ticks.
func (c *Collector) DrainSync(maxSlices int) Stats {
	var total Stats
	for i := 0; i < maxSlices; i++ {
		s := c.DrainAll(Tight, nil)
		total.Freed += s.Freed
		if s.Freed == 0 {
			break
		}
	}
	return total
}
