package btree

import (
	"github.com/cockroachdb/errors"
)

// ErrInvalidOrder is returned by New when order falls outside [3, 63].
var ErrInvalidOrder = errors.New("btree: order must be in [3, 63]")

// ErrNotFound is returned by Delete/Update when the key is absent.
var ErrNotFound = errors.New("btree: key not found")

// ErrExists is returned by Insert (not Upsert) when the key is already
// present.
var ErrExists = errors.New("btree: key already exists")

// Features are the per-tree behavior bits named in spec §4.E.
type Features struct {
	UintKey           bool
	DirectKey         bool
	DynamicRoot       bool
	SkipLeafRebalance bool
	EmbedFirst        bool
}

// Class is the value-type callback table a tree is parameterized by,
// in place of inheritance or virtual dispatch (per the design notes'
// "no dynamic dispatch in the tree class layer" rule).
type Class struct {
	ID       uint32
	Features Features

	// RecAlloc/RecFree/RecFetch/RecUpdate manage the value blob a leaf
	// record's Value offset refers to; the tree itself never
	// interprets value bytes.
	RecAlloc  func(key Key, value []byte) (Offset, error)
	RecFree   func(off Offset) error
	RecFetch  func(off Offset) ([]byte, error)
	RecUpdate func(off Offset, value []byte) error
}

// Root is a tree's persistable handle: the class id, features, fixed
// order, current depth, and the offset of its root node (or
// NullOffset/embedded when the tree holds 0 or 1 records).
type Root struct {
	ClassID  uint32
	Features Features
	Order    int
	Depth    int
	NodeOff  Offset

	embedded    bool
	embeddedRec Record
}

// Tree is an open handle to a B+tree: its Root plus the class callback
// table and node arena backing it.
type Tree struct {
	Root  Root
	class Class
	arena *arena
}

// New creates an empty tree. order must be in [3, 63] per spec §4.E.
func New(class Class, order int) (*Tree, error) {
	if order < 3 || order > 63 {
		return nil, ErrInvalidOrder
	}
	return &Tree{
		Root:  Root{ClassID: class.ID, Features: class.Features, Order: order},
		class: class,
		arena: newArena(),
	}, nil
}

func (t *Tree) leafCeil() int { return (t.Root.Order + 1) / 2 }

// Lookup returns the value bytes stored for key.
func (t *Tree) Lookup(key Key) ([]byte, bool) {
	rec, ok := t.findRecord(key)
	if !ok {
		return nil, false
	}
	if t.class.RecFetch == nil {
		return nil, true
	}
	v, err := t.class.RecFetch(rec.Value)
	if err != nil {
		return nil, false
	}
	return v, true
}

func (t *Tree) findRecord(key Key) (Record, bool) {
	if t.Root.embedded {
		if t.Root.embeddedRec.Key.Compare(key) == 0 {
			return t.Root.embeddedRec, true
		}
		return Record{}, false
	}
	leaf := t.findLeaf(key)
	if leaf == nil {
		return Record{}, false
	}
	for _, r := range leaf.records {
		if r.Key.Compare(key) == 0 {
			return r, true
		}
	}
	return Record{}, false
}

// findLeaf descends from the root to the leaf that would contain key.
func (t *Tree) findLeaf(key Key) *node {
	n := t.arena.get(t.Root.NodeOff)
	for n != nil && !n.isLeaf {
		idx := 0
		for idx < len(n.keys) && key.Compare(n.keys[idx]) >= 0 {
			idx++
		}
		n = t.arena.get(n.children[idx])
	}
	return n
}

// Insert adds key/value, failing with ErrExists if key is already
// present.
func (t *Tree) Insert(key Key, value []byte) error {
	if _, ok := t.findRecord(key); ok {
		return ErrExists
	}
	return t.upsert(key, value)
}

// Update replaces an existing key's value in place.
func (t *Tree) Update(key Key, value []byte) error {
	rec, ok := t.findRecord(key)
	if !ok {
		return ErrNotFound
	}
	if t.class.RecUpdate != nil {
		return t.class.RecUpdate(rec.Value, value)
	}
	return t.upsert(key, value)
}

// Upsert inserts key/value or updates in place if key already exists.
func (t *Tree) Upsert(key Key, value []byte) error {
	return t.upsert(key, value)
}

func (t *Tree) upsert(key Key, value []byte) error {
	off, err := t.allocRecordValue(key, value)
	if err != nil {
		return err
	}
	rec := Record{Key: key, Value: off}

	// embedded-root optimization: first record lives inline in Root.
	if t.Root.Features.EmbedFirst && t.Root.NodeOff == NullOffset {
		if !t.Root.embedded {
			t.Root.embedded = true
			t.Root.embeddedRec = rec
			return nil
		}
		if t.Root.embeddedRec.Key.Compare(key) == 0 {
			t.Root.embeddedRec = rec
			return nil
		}
		// second distinct key: promote to a real leaf node.
		leaf := t.arena.alloc(true)
		leaf.keys = []Key{t.Root.embeddedRec.Key}
		leaf.records = []Record{t.Root.embeddedRec}
		t.Root.embedded = false
		t.Root.embeddedRec = Record{}
		t.Root.NodeOff = leaf.offset
		t.Root.Depth = 1
	}

	if t.Root.NodeOff == NullOffset {
		leaf := t.arena.alloc(true)
		t.Root.NodeOff = leaf.offset
		t.Root.Depth = 1
	}

	leaf := t.findLeaf(key)
	for i, existing := range leaf.records {
		if existing.Key.Compare(key) == 0 {
			leaf.records[i] = rec
			return nil
		}
	}

	idx := 0
	for idx < len(leaf.keys) && key.Compare(leaf.keys[idx]) > 0 {
		idx++
	}
	leaf.keys = insertKeyAt(leaf.keys, idx, key)
	leaf.records = insertRecordAt(leaf.records, idx, rec)

	if len(leaf.records) > t.Root.Order {
		t.splitLeaf(leaf)
	}
	return nil
}

func (t *Tree) allocRecordValue(key Key, value []byte) (Offset, error) {
	if t.class.RecAlloc != nil {
		return t.class.RecAlloc(key, value)
	}
	return NullOffset, nil
}

func insertKeyAt(keys []Key, idx int, k Key) []Key {
	keys = append(keys, Key{})
	copy(keys[idx+1:], keys[idx:])
	keys[idx] = k
	return keys
}

func insertRecordAt(recs []Record, idx int, r Record) []Record {
	recs = append(recs, Record{})
	copy(recs[idx+1:], recs[idx:])
	recs[idx] = r
	return recs
}

func insertOffsetAt(offs []Offset, idx int, o Offset) []Offset {
	offs = append(offs, NullOffset)
	copy(offs[idx+1:], offs[idx:])
	offs[idx] = o
	return offs
}

// splitLeaf distributes an overflowing leaf's order+1 records into two
// leaves, ⌈(order+1)/2⌉ on the left and ⌊(order+1)/2⌋ on the right, and
// propagates a separator record to the parent.
func (t *Tree) splitLeaf(n *node) {
	total := len(n.keys)
	leftCount := (total + 1) / 2

	right := t.arena.alloc(true)
	right.keys = append([]Key{}, n.keys[leftCount:]...)
	right.records = append([]Record{}, n.records[leftCount:]...)
	n.keys = n.keys[:leftCount]
	n.records = n.records[:leftCount]

	right.next = n.next
	right.prev = n.offset
	if right.next != NullOffset {
		if nn := t.arena.get(right.next); nn != nil {
			nn.prev = right.offset
		}
	}
	n.next = right.offset

	separator := right.keys[0]
	t.insertIntoParent(n, separator, right)
}

// insertIntoParent links a newly-split right node into left's parent
// under separator, splitting the parent in turn if it overflows, up to
// and including creating a new root.
func (t *Tree) insertIntoParent(left *node, separator Key, right *node) {
	if left.parent == NullOffset {
		newRoot := t.arena.alloc(false)
		newRoot.keys = []Key{separator}
		newRoot.children = []Offset{left.offset, right.offset}
		left.parent = newRoot.offset
		right.parent = newRoot.offset
		t.Root.NodeOff = newRoot.offset
		t.Root.Depth++
		return
	}

	parent := t.arena.get(left.parent)
	right.parent = parent.offset

	idx := childIndex(parent, left.offset)
	parent.keys = insertKeyAt(parent.keys, idx, separator)
	parent.children = insertOffsetAt(parent.children, idx+1, right.offset)

	if len(parent.children) > t.Root.Order+1 {
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

// splitInternal splits an overflowing internal node, promoting the
// median key up rather than duplicating it into either half.
func (t *Tree) splitInternal(n *node) {
	mid := len(n.keys) / 2
	median := n.keys[mid]

	right := t.arena.alloc(false)
	right.keys = append([]Key{}, n.keys[mid+1:]...)
	right.children = append([]Offset{}, n.children[mid+1:]...)
	for _, c := range right.children {
		if cn := t.arena.get(c); cn != nil {
			cn.parent = right.offset
		}
	}

	n.keys = n.keys[:mid]
	n.children = n.children[:mid+1]

	t.insertIntoParent(n, median, right)
}

// Delete removes key, borrowing or merging with a sibling if the leaf
// underflows (unless Features.SkipLeafRebalance is set), propagating
// root collapse as necessary.
func (t *Tree) Delete(key Key) error {
	if t.Root.embedded {
		if t.Root.embeddedRec.Key.Compare(key) != 0 {
			return ErrNotFound
		}
		t.freeRecordValue(t.Root.embeddedRec)
		t.Root.embedded = false
		t.Root.embeddedRec = Record{}
		return nil
	}

	leaf := t.findLeaf(key)
	if leaf == nil {
		return ErrNotFound
	}
	pos := -1
	for i, k := range leaf.keys {
		if k.Compare(key) == 0 {
			pos = i
			break
		}
	}
	if pos < 0 {
		return ErrNotFound
	}

	t.freeRecordValue(leaf.records[pos])
	leaf.keys = append(leaf.keys[:pos], leaf.keys[pos+1:]...)
	leaf.records = append(leaf.records[:pos], leaf.records[pos+1:]...)

	if leaf.offset == t.Root.NodeOff {
		if len(leaf.keys) == 0 {
			t.Root.NodeOff = NullOffset
			t.Root.Depth = 0
			t.arena.free(leaf.offset)
		}
		return nil
	}

	if !t.Root.Features.SkipLeafRebalance && len(leaf.keys) < t.leafCeil() {
		t.rebalanceLeaf(leaf)
	}
	return nil
}

func (t *Tree) freeRecordValue(rec Record) {
	if t.class.RecFree != nil {
		_ = t.class.RecFree(rec.Value)
	}
}

func (t *Tree) rebalanceLeaf(n *node) {
	parent := t.arena.get(n.parent)
	idx := childIndex(parent, n.offset)

	if idx > 0 {
		left := t.arena.get(parent.children[idx-1])
		if len(left.keys) > t.leafCeil() {
			borrowed := left.keys[len(left.keys)-1]
			borrowedRec := left.records[len(left.records)-1]
			left.keys = left.keys[:len(left.keys)-1]
			left.records = left.records[:len(left.records)-1]
			n.keys = insertKeyAt(n.keys, 0, borrowed)
			n.records = insertRecordAt(n.records, 0, borrowedRec)
			parent.keys[idx-1] = n.keys[0]
			return
		}
	}
	if idx < len(parent.children)-1 {
		rightOff := parent.children[idx+1]
		right := t.arena.get(rightOff)
		if len(right.keys) > t.leafCeil() {
			borrowed := right.keys[0]
			borrowedRec := right.records[0]
			right.keys = right.keys[1:]
			right.records = right.records[1:]
			n.keys = append(n.keys, borrowed)
			n.records = append(n.records, borrowedRec)
			parent.keys[idx] = right.keys[0]
			return
		}
	}

	if idx > 0 {
		left := t.arena.get(parent.children[idx-1])
		t.mergeLeaves(left, n, parent, idx-1)
		return
	}
	right := t.arena.get(parent.children[idx+1])
	t.mergeLeaves(n, right, parent, idx)
}

// mergeLeaves merges right into left (both children of parent at
// separator index sepIdx), removing the separator from parent and
// propagating underflow upward if necessary.
func (t *Tree) mergeLeaves(left, right *node, parent *node, sepIdx int) {
	left.keys = append(left.keys, right.keys...)
	left.records = append(left.records, right.records...)
	left.next = right.next
	if right.next != NullOffset {
		if nn := t.arena.get(right.next); nn != nil {
			nn.prev = left.offset
		}
	}
	t.arena.free(right.offset)

	parent.keys = append(parent.keys[:sepIdx], parent.keys[sepIdx+1:]...)
	parent.children = append(parent.children[:sepIdx+1], parent.children[sepIdx+2:]...)

	t.rebalanceInternal(parent)
}

func (t *Tree) internalCeil() int { return (t.Root.Order + 1) / 2 }

func (t *Tree) rebalanceInternal(n *node) {
	if n.offset == t.Root.NodeOff {
		if len(n.children) == 1 {
			only := t.arena.get(n.children[0])
			only.parent = NullOffset
			t.Root.NodeOff = only.offset
			t.Root.Depth--
			t.arena.free(n.offset)
		}
		return
	}

	if len(n.children) >= t.internalCeil() {
		return
	}

	parent := t.arena.get(n.parent)
	idx := childIndex(parent, n.offset)

	if idx > 0 {
		left := t.arena.get(parent.children[idx-1])
		if len(left.children) > t.internalCeil() {
			n.keys = insertKeyAt(n.keys, 0, parent.keys[idx-1])
			n.children = insertOffsetAt(n.children, 0, left.children[len(left.children)-1])
			if cn := t.arena.get(n.children[0]); cn != nil {
				cn.parent = n.offset
			}
			parent.keys[idx-1] = left.keys[len(left.keys)-1]
			left.keys = left.keys[:len(left.keys)-1]
			left.children = left.children[:len(left.children)-1]
			return
		}
	}
	if idx < len(parent.children)-1 {
		right := t.arena.get(parent.children[idx+1])
		if len(right.children) > t.internalCeil() {
			n.keys = append(n.keys, parent.keys[idx])
			n.children = append(n.children, right.children[0])
			if cn := t.arena.get(n.children[len(n.children)-1]); cn != nil {
				cn.parent = n.offset
			}
			parent.keys[idx] = right.keys[0]
			right.keys = right.keys[1:]
			right.children = right.children[1:]
			return
		}
	}

	if idx > 0 {
		left := t.arena.get(parent.children[idx-1])
		t.mergeInternal(left, n, parent, idx-1)
		return
	}
	right := t.arena.get(parent.children[idx+1])
	t.mergeInternal(n, right, parent, idx)
}

func (t *Tree) mergeInternal(left, right *node, parent *node, sepIdx int) {
	left.keys = append(left.keys, parent.keys[sepIdx])
	left.keys = append(left.keys, right.keys...)
	left.children = append(left.children, right.children...)
	for _, c := range right.children {
		if cn := t.arena.get(c); cn != nil {
			cn.parent = left.offset
		}
	}
	t.arena.free(right.offset)

	parent.keys = append(parent.keys[:sepIdx], parent.keys[sepIdx+1:]...)
	parent.children = append(parent.children[:sepIdx+1], parent.children[sepIdx+2:]...)

	t.rebalanceInternal(parent)
}
