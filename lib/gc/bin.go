package gc

import "sync"

// bagCapacity is the ≈4 KiB/250-item bag size spec §4.J names.
const bagCapacity = 250

// Item is one bin entry: a dead akey/dkey/object/container record
// awaiting reclamation. Drain flattens up to credits worth of the
// item's own children into the next tier down's bin and reports how
// many credits it actually spent and whether the item itself is now
// empty — at which point the cascade calls Free to reclaim it for
// real, the one step spec §4.J calls out as "consumes a credit".
type Item struct {
	Drain func(credits int) (spent int, empty bool)
	Free  func() error
}

type bag struct {
	items []Item
	next  *bag
}

// Bin is a singly-linked chain of fixed-size bags — the per-tier,
// per-container (or, for the container tier, per-pool) queue of dead
// records spec §4.J describes.
type Bin struct {
	mu   sync.Mutex
	head *bag
	tail *bag
	n    int
}

func newBin() *Bin { return &Bin{} }

// Push enqueues it, starting a fresh bag once the tail is full.
func (b *Bin) Push(it Item) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tail == nil || len(b.tail.items) >= bagCapacity {
		nb := &bag{}
		if b.tail != nil {
			b.tail.next = nb
		}
		b.tail = nb
		if b.head == nil {
			b.head = nb
		}
	}
	b.tail.items = append(b.tail.items, it)
	b.n++
}

// Peek returns the front item without removing it.
func (b *Bin) Peek() (Item, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.head == nil || len(b.head.items) == 0 {
		return Item{}, false
	}
	return b.head.items[0], true
}

// Pop removes the front item, dropping the head bag once it empties.
func (b *Bin) Pop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.head == nil || len(b.head.items) == 0 {
		return
	}
	b.head.items = b.head.items[1:]
	b.n--
	if len(b.head.items) == 0 {
		b.head = b.head.next
		if b.head == nil {
			b.tail = nil
		}
	}
}

// Len reports the number of items still queued.
func (b *Bin) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n
}

// migrateInto drains every item of b into dst, preserving order. Used
// when a container is destroyed and its residual per-container bags
// must survive at the pool level (spec §4.J: "any residual bags held
// by the container's bin are migrated up to the pool-level bin").
func (b *Bin) migrateInto(dst *Bin) {
	b.mu.Lock()
	bags := b.head
	b.head, b.tail, b.n = nil, nil, 0
	b.mu.Unlock()

	for bg := bags; bg != nil; bg = bg.next {
		for _, it := range bg.items {
			dst.Push(it)
		}
	}
}
