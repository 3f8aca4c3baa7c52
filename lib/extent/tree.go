package extent

import (
	"sort"

	"github.com/cockroachdb/errors"
)

// ErrInvalidOrder mirrors lib/btree's New validation.
var ErrInvalidOrder = errors.New("extent: order must be in [3, 63]")

// Tree is a versioned interval tree over a single akey's byte-range
// space (spec §4.F). Punch records are kept as an append-only log
// alongside the entry leaves, since they mask by version rather than
// by position and so don't participate in the Lo-ordered split/merge
// structure.
type Tree struct {
	root    Offset
	order   int
	arena   *arena
	punches []Punch
}

// New creates an empty extent tree. order bounds leaf fan-out the same
// way lib/btree.New does.
func New(order int) (*Tree, error) {
	if order < 3 || order > 63 {
		return nil, ErrInvalidOrder
	}
	return &Tree{order: order, arena: newArena()}, nil
}

func (t *Tree) leafCeil() int { return (t.order + 1) / 2 }

// Insert adds e, coalescing it with any same-version entry already in
// its leaf that overlaps its range (spec §4.F: "overlapping extents at
// the same (epoch, minor_epc) are merged").
func (t *Tree) Insert(e Entry) error {
	if t.root == NullOffset {
		leaf := t.arena.alloc(true)
		t.root = leaf.offset
	}
	leaf := t.findLeaf(e.Lo)

	merged := e
	kept := leaf.entries[:0]
	for _, existing := range leaf.entries {
		if existing.sameVersion(merged) && existing.overlaps(merged) {
			if existing.Lo < merged.Lo {
				merged.Lo = existing.Lo
			}
			if existing.Hi > merged.Hi {
				merged.Hi = existing.Hi
			}
			continue
		}
		kept = append(kept, existing)
	}
	leaf.entries = kept

	idx := sort.Search(len(leaf.entries), func(i int) bool { return leaf.entries[i].Lo >= merged.Lo })
	leaf.entries = insertEntryAt(leaf.entries, idx, merged)

	if len(leaf.entries) > t.order {
		t.splitLeaf(leaf)
	}
	return nil
}

// Punch appends a tombstone over [p.Lo, p.Hi) at (p.Epoch, p.MinorEpc).
// Punches never delete entries directly; Drain reclaims what they mask
// once no reader could still need the masked data.
func (t *Tree) Punch(p Punch) {
	t.punches = append(t.punches, p)
}

func insertEntryAt(entries []Entry, idx int, e Entry) []Entry {
	entries = append(entries, Entry{})
	copy(entries[idx+1:], entries[idx:])
	entries[idx] = e
	return entries
}

func (t *Tree) findLeaf(lo uint64) *node {
	n := t.arena.get(t.root)
	for n != nil && !n.isLeaf {
		idx := sort.Search(len(n.seps), func(i int) bool { return n.seps[i] > lo })
		n = t.arena.get(n.children[idx])
	}
	return n
}

func (t *Tree) splitLeaf(n *node) {
	total := len(n.entries)
	leftCount := (total + 1) / 2

	right := t.arena.alloc(true)
	right.entries = append([]Entry{}, n.entries[leftCount:]...)
	n.entries = n.entries[:leftCount]

	right.next = n.next
	right.prev = n.offset
	if right.next != NullOffset {
		if nn := t.arena.get(right.next); nn != nil {
			nn.prev = right.offset
		}
	}
	n.next = right.offset

	separator := right.entries[0].Lo
	t.insertIntoParent(n, separator, right)
}

func (t *Tree) insertIntoParent(left *node, separator uint64, right *node) {
	if left.parent == NullOffset {
		newRoot := t.arena.alloc(false)
		newRoot.seps = []uint64{separator}
		newRoot.children = []Offset{left.offset, right.offset}
		left.parent = newRoot.offset
		right.parent = newRoot.offset
		t.root = newRoot.offset
		return
	}

	parent := t.arena.get(left.parent)
	right.parent = parent.offset

	idx := childIndex(parent, left.offset)
	parent.seps = insertSepAt(parent.seps, idx, separator)
	parent.children = insertOffsetAt(parent.children, idx+1, right.offset)

	if len(parent.children) > t.order+1 {
		t.splitInternal(parent)
	}
}

func childIndex(parent *node, child Offset) int {
	for i, c := range parent.children {
		if c == child {
			return i
		}
	}
	return len(parent.children) - 1
}

func insertSepAt(seps []uint64, idx int, s uint64) []uint64 {
	seps = append(seps, 0)
	copy(seps[idx+1:], seps[idx:])
	seps[idx] = s
	return seps
}

func insertOffsetAt(offs []Offset, idx int, o Offset) []Offset {
	offs = append(offs, NullOffset)
	copy(offs[idx+1:], offs[idx:])
	offs[idx] = o
	return offs
}

func (t *Tree) splitInternal(n *node) {
	mid := len(n.seps) / 2
	median := n.seps[mid]

	right := t.arena.alloc(false)
	right.seps = append([]uint64{}, n.seps[mid+1:]...)
	right.children = append([]Offset{}, n.children[mid+1:]...)
	for _, c := range right.children {
		if cn := t.arena.get(c); cn != nil {
			cn.parent = right.offset
		}
	}

	n.seps = n.seps[:mid]
	n.children = n.children[:mid+1]

	t.insertIntoParent(n, median, right)
}

func (t *Tree) leftmostLeaf() *node {
	n := t.arena.get(t.root)
	for n != nil && !n.isLeaf {
		n = t.arena.get(n.children[0])
	}
	return n
}

// allEntries collects every entry in Lo order, walking leaf sibling
// links rather than recursing so it reuses the same traversal a real
// Probe(first)+Next cursor would perform.
func (t *Tree) allEntries() []Entry {
	var out []Entry
	for leaf := t.leftmostLeaf(); leaf != nil; leaf = t.arena.get(leaf.next) {
		out = append(out, leaf.entries...)
	}
	return out
}

// Query classifies every entry overlapping f's range and epoch window
// per spec §4.F's visibility rules: covered (fully masked by a later,
// containing entry), partial (masked over a strict subset), punched
// (masked by a punch record), else visible.
func (t *Tree) Query(f Filter) []Classified {
	all := t.allEntries()

	var candidates []Entry
	for _, e := range all {
		if e.overlaps(f.rangeEntry()) && f.inEpochWindow(e) {
			candidates = append(candidates, e)
		}
	}

	out := make([]Classified, 0, len(candidates))
	for _, e := range candidates {
		out = append(out, Classified{Entry: e, Class: t.classify(e, all, f)})
	}
	return out
}

func (t *Tree) classify(e Entry, all []Entry, f Filter) Class {
	if f.punchesOut(e) || t.isPunched(e) {
		return ClassPunched
	}

	covered, partial := false, false
	for _, o := range all {
		if o.Lo == e.Lo && o.Hi == e.Hi && o.Epoch == e.Epoch && o.MinorEpc == e.MinorEpc {
			continue
		}
		if !o.laterThan(e) || !o.overlaps(e) {
			continue
		}
		if o.contains(e) {
			covered = true
		} else {
			partial = true
		}
	}
	switch {
	case covered:
		return ClassCovered
	case partial:
		return ClassPartial
	default:
		return ClassVisible
	}
}

func (t *Tree) isPunched(e Entry) bool {
	for _, p := range t.punches {
		if p.masks(e) {
			return true
		}
	}
	return false
}
