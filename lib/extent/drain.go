package extent

import "math"

// Drain reclaims dead (covered or punched) entries for the garbage
// collector, up to credits removals per spec §4.F, unless empty is
// set — in which case every dead entry is reclaimed regardless of
// credits, the forced full-flush pass GC issues when draining a
// container or pool bin to completion rather than yielding between
// slices. It reports how many entries it removed and whether the tree
// now holds nothing at all.
func (t *Tree) Drain(credits int, empty bool) (drained int, isEmpty bool) {
	full := Filter{Lo: 0, Hi: math.MaxUint64, EpochHi: math.MaxUint64}
	classified := t.Query(full)

	limit := credits
	if empty {
		limit = len(classified)
	}

	for _, c := range classified {
		if drained >= limit {
			break
		}
		if c.Class != ClassCovered && c.Class != ClassPunched {
			continue
		}
		if t.removeEntry(c.Entry) {
			drained++
		}
	}

	return drained, len(t.allEntries()) == 0
}

// removeEntry deletes the exact entry identified by its range and
// version from whichever leaf holds it and reports whether it was
// found. Entries sharing a Lo can sit on both sides of a leaf split, so
// every leaf is searched rather than only the one findLeaf picks.
// Unlike lib/btree's Delete, an
// under-populated leaf here is not a correctness problem — the extent
// tree tolerates sparse leaves between GC passes — so no
// rebalance/merge follows.
func (t *Tree) removeEntry(target Entry) bool {
	for leaf := t.leftmostLeaf(); leaf != nil; leaf = t.arena.get(leaf.next) {
		for i, e := range leaf.entries {
			if e == target {
				leaf.entries = append(leaf.entries[:i], leaf.entries[i+1:]...)
				return true
			}
		}
	}
	return false
}
