package dtx

import (
	"sync"

	"github.com/google/btree"

	"github.com/vosdb/engine/lib/ilog"
)

// epochItem is a google/btree.Item wrapping a single active reader's
// epoch lower bound, so the guard can cheaply find the oldest
// outstanding reader via Min() instead of scanning every registration.
type epochItem uint64

func (e epochItem) Less(than btree.Item) bool { return e < than.(epochItem) }

// AggregationGuard implements spec §4.I's aggregation-interaction
// rule in two parts: CanAggregateUpTo gates an aggregation pass before
// it runs (never inside [hlc_now-(commit_age+grace), hlc_now], and
// never past the oldest still-active reader's snapshot epoch); Guard
// then rejects, with ilog.ErrTxRestart, any subsequent read or update
// whose epoch falls strictly below the most recent aggregation's upper
// bound — the record it was relying on may have just lost its
// fine-grained history.
type AggregationGuard struct {
	mu        sync.Mutex
	readers   *btree.BTree
	commitAge uint64
	grace     uint64

	lastUpperBound uint64
}

// NewAggregationGuard builds a guard with the given commit-age and
// grace windows, expressed in the same epoch units as hlc physical
// time (commitAge is the DTX batched-commit age window; grace is an
// additional cushion). Neither value is defaulted here.
func NewAggregationGuard(commitAge, grace uint64) *AggregationGuard {
	return &AggregationGuard{
		readers:   btree.New(32),
		commitAge: commitAge,
		grace:     grace,
	}
}

// RegisterReader records an active reader's epoch lower bound; the
// caller must UnregisterReader with the same epoch once the read
// completes.
func (g *AggregationGuard) RegisterReader(epoch uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.readers.ReplaceOrInsert(epochItem(epoch))
}

// UnregisterReader drops a previously registered reader bound.
func (g *AggregationGuard) UnregisterReader(epoch uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.readers.Delete(epochItem(epoch))
}

// aggregationCutoff is the recent-window boundary aggregation may
// never cross, per spec §4.I's literal range.
func (g *AggregationGuard) aggregationCutoff(now uint64) uint64 {
	return satSub(now, g.commitAge+g.grace)
}

// CanAggregateUpTo reports whether an aggregation pass collapsing
// records up to (and not including) upperBound is currently safe.
func (g *AggregationGuard) CanAggregateUpTo(upperBound, now uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if upperBound > g.aggregationCutoff(now) {
		return false
	}
	if min := g.readers.Min(); min != nil {
		if r := uint64(min.(epochItem)); upperBound > r {
			return false
		}
	}
	return true
}

// RecordAggregation notes that an aggregation pass just collapsed
// records up to upperBound, arming Guard against subsequent reads
// that assumed finer-grained history below it.
func (g *AggregationGuard) RecordAggregation(upperBound uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if upperBound > g.lastUpperBound {
		g.lastUpperBound = upperBound
	}
}

// Guard rejects a read/update at epoch with ilog.ErrTxRestart if it
// falls strictly below the most recently recorded aggregation's upper
// bound (spec §4.I: "Any read/update whose epoch is below the
// aggregation upper bound must be rejected with ERR_TX_RESTART").
func (g *AggregationGuard) Guard(epoch uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if epoch < g.lastUpperBound {
		return ilog.ErrTxRestart
	}
	return nil
}

func satSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
