package dtx

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/vosdb/engine/lib/lru"
)

// ErrNotFound is returned when an id names no active or recently
// resolved transaction.
var ErrNotFound = errors.New("dtx: transaction not found")

// ErrInvalidTransition rejects a lifecycle call against a slot already
// in a terminal state.
var ErrInvalidTransition = errors.New("dtx: invalid status transition")

const (
	defaultThresholdCount = 512
	defaultThresholdAge   = 10 * time.Second
	recentRetention       = 1 * time.Minute
)

type recentEntry struct {
	status Status
	at     time.Time
}

// Cache is the LRU-array-backed active-transaction table spec §4.I
// describes, keyed by (uuid, hlc). It batches commits by count or age
// and retains a short-lived record of recently resolved ids so Check
// can still answer after a committed slot has been evicted from the
// array proper.
type Cache struct {
	mu    sync.Mutex
	arr   *lru.Array[Slot]
	byKey map[uint64]lru.Index

	pending   []ID
	lastFlush time.Time

	thresholdCount int
	thresholdAge   time.Duration

	recent map[uint64]recentEntry
}

// NewCache allocates a DTX cache over an LRU array of the given
// capacity, partitioned into subCount sub-arrays (lib/lru.New's
// shape — see component C). thresholdCount/thresholdAge set the
// batched-commit thresholds (spec §4.I); a zero or negative value
// falls back to this package's default.
func NewCache(capacity, subCount int, thresholdCount int, thresholdAge time.Duration) (*Cache, error) {
	arr, err := lru.New[Slot](capacity, subCount, lru.Flags{}, nil)
	if err != nil {
		return nil, err
	}
	if thresholdCount <= 0 {
		thresholdCount = defaultThresholdCount
	}
	if thresholdAge <= 0 {
		thresholdAge = defaultThresholdAge
	}
	return &Cache{
		arr:            arr,
		byKey:          make(map[uint64]lru.Index),
		thresholdCount: thresholdCount,
		thresholdAge:   thresholdAge,
		recent:         make(map[uint64]recentEntry),
		lastFlush:      time.Now(),
	}, nil
}

func (c *Cache) lookupLocked(id ID) (*Slot, bool) {
	key := id.hashKey()
	idx, ok := c.byKey[key]
	if !ok {
		return nil, false
	}
	return c.arr.Lookup(idx, key)
}

// Begin admits a new transaction into the cache (spec §4.I
// "begin(dti) → slot").
func (c *Cache) Begin(id ID, m *Membership, epoch uint64, minorEpc uint32) (Slot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := id.hashKey()
	idx, slot, err := c.arr.FindFree(key)
	if err != nil {
		return Slot{}, err
	}
	*slot = Slot{DTI: id, Status: Inited, Membership: m, Epoch: epoch, MinorEpc: minorEpc, DceFlags: DceInDoubt}
	c.byKey[key] = idx
	return *slot, nil
}

// Prepare transitions id from inited to prepared.
func (c *Cache) Prepare(id ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	slot, ok := c.lookupLocked(id)
	if !ok {
		return ErrNotFound
	}
	if slot.Status.terminal() {
		return ErrInvalidTransition
	}
	slot.Status = Prepared
	return nil
}

// Commit marks id committable and queues it for the next batched
// flush, triggering one immediately if the count threshold is now met
// (spec §4.I "Batched commit").
func (c *Cache) Commit(id ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	slot, ok := c.lookupLocked(id)
	if !ok {
		return ErrNotFound
	}
	if slot.Status != Prepared {
		return ErrInvalidTransition
	}
	slot.Status = Committable
	c.pending = append(c.pending, id)

	if len(c.pending) >= c.thresholdCount {
		c.flushLocked(time.Now())
	}
	return nil
}

// CommitBatch forces an immediate batched commit of ids, regardless of
// the count/age thresholds (spec §4.I "commit_batch([dti])").
func (c *Cache) CommitBatch(ids []ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range ids {
		slot, ok := c.lookupLocked(id)
		if !ok {
			continue
		}
		if slot.Status != Prepared && slot.Status != Committable {
			continue
		}
		slot.Status = Committable
		c.pending = append(c.pending, id)
	}
	c.flushLocked(time.Now())
	return nil
}

// Abort transitions id to aborted and evicts its slot immediately —
// an aborted transaction has nothing left worth caching.
func (c *Cache) Abort(id ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	slot, ok := c.lookupLocked(id)
	if !ok {
		return ErrNotFound
	}
	if slot.Status.terminal() {
		return ErrInvalidTransition
	}
	slot.Status = Aborted
	c.evictLocked(id, Aborted)
	return nil
}

// Refresh reports id's current status (spec §4.I "refresh(dti) →
// status"), consulting the short-lived recently-resolved record once
// the slot itself has been evicted.
func (c *Cache) Refresh(id ID) (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if slot, ok := c.lookupLocked(id); ok {
		return slot.Status, nil
	}
	if r, ok := c.recent[id.hashKey()]; ok {
		return r.status, nil
	}
	return 0, ErrNotFound
}

// Check reports whether a reader may treat id's intent as resolved
// (spec §4.I "check(dti, intent) → availability"); anyIntent mirrors
// the caller's any_intent flag, admitting a dirty read of an
// in-flight transaction's uncommitted intent when set.
func (c *Cache) Check(id ID, anyIntent bool) (Availability, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	slot, ok := c.lookupLocked(id)
	if !ok {
		if r, ok := c.recent[id.hashKey()]; ok && r.status == Committed {
			return AvailableClean, nil
		}
		return Unavailable, nil
	}

	switch slot.Status {
	case Committed, Committable:
		return AvailableClean, nil
	case Prepared, Preparing, Committing:
		if anyIntent {
			return AvailableDirty, nil
		}
		return Unavailable, nil
	default:
		return Unavailable, nil
	}
}

// ShouldFlush reports whether the pending batch has crossed the count
// or age threshold as of now; callers (the engine scheduler) poll this
// on a tick rather than the cache spinning its own timer.
func (c *Cache) ShouldFlush(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending) >= c.thresholdCount ||
		(len(c.pending) > 0 && now.Sub(c.lastFlush) >= c.thresholdAge)
}

// Flush commits the pending batch now, regardless of threshold.
func (c *Cache) Flush(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked(now)
}

// flushLocked commits every pending id: the dependent incarnation-log
// records' in-doubt flag would be cleared here by the caller (the
// object layer owns those logs), the slot transitions to committed,
// and its cache entry is evicted and remembered in c.recent for a
// subsequent Check/Refresh.
func (c *Cache) flushLocked(now time.Time) int {
	n := 0
	for _, id := range c.pending {
		slot, ok := c.lookupLocked(id)
		if !ok {
			continue
		}
		slot.Status = Committed
		slot.DceFlags &^= DceInDoubt
		c.evictLocked(id, Committed)
		n++
	}
	c.pending = c.pending[:0]
	c.lastFlush = now
	c.pruneRecentLocked(now)
	return n
}

func (c *Cache) evictLocked(id ID, final Status) {
	key := id.hashKey()
	idx, ok := c.byKey[key]
	if !ok {
		return
	}
	c.arr.Evict(idx, key)
	delete(c.byKey, key)
	c.recent[key] = recentEntry{status: final, at: time.Now()}
}

func (c *Cache) pruneRecentLocked(now time.Time) {
	for k, r := range c.recent {
		if now.Sub(r.at) > recentRetention {
			delete(c.recent, k)
		}
	}
}
