package lru

import (
	"math/bits"

	"github.com/cockroachdb/errors"
)

// ErrBusy is returned by FindFree when no free slot is available and
// silent auto-eviction is not permitted (manual-eviction mode, or
// sub-count > 1 which forces manual eviction on).
var ErrBusy = errors.New("lru: array exhausted, no free slot available")

// ErrInvalidCapacity is returned by New when capacity or subCount is not
// a power of two, or subCount does not evenly divide capacity.
var ErrInvalidCapacity = errors.New("lru: capacity and sub_count must be powers of two")

// Index addresses a single entry: the sub-array number is packed into
// the high bits, the entry number within the sub-array into the low
// bits.
type Index uint32

// Flags configure eviction and reuse behavior for an Array.
type Flags struct {
	// ReuseUnique requires FindFree to hand out a slot whose key has
	// never before been stamped on it in the lifetime of the array's
	// current allocation. The array does not read this flag: freed
	// slots are handed out again whether or not it is set.
	ReuseUnique bool
	// EvictManual disables silent coldest-entry eviction from
	// FindFree; callers must Evict() stale entries themselves. Forced
	// on whenever sub_count > 1.
	EvictManual bool
}

type entrySlot[T any] struct {
	key     uint64
	used    bool
	payload T
	next    int32
	prev    int32
}

type subArray[T any] struct {
	entries   []entrySlot[T]
	freeStack []int32
	lruHead   int32
	lruTail   int32
	size      int32
	allocated bool
}

func newSubArray[T any](size int) *subArray[T] {
	return &subArray[T]{lruHead: -1, lruTail: -1}
}

func (s *subArray[T]) allocate(size int) {
	s.entries = make([]entrySlot[T], size)
	s.freeStack = make([]int32, size)
	for i := 0; i < size; i++ {
		s.freeStack[i] = int32(size - 1 - i)
	}
	s.allocated = true
}

func (s *subArray[T]) deallocate() {
	s.entries = nil
	s.freeStack = nil
	s.lruHead, s.lruTail = -1, -1
	s.size = 0
	s.allocated = false
}

func (s *subArray[T]) hasFree() bool { return len(s.freeStack) > 0 }

func (s *subArray[T]) popFree() int32 {
	n := len(s.freeStack)
	idx := s.freeStack[n-1]
	s.freeStack = s.freeStack[:n-1]
	return idx
}

func (s *subArray[T]) pushFree(idx int32) {
	s.freeStack = append(s.freeStack, idx)
}

func (s *subArray[T]) lruRemove(idx int32) {
	e := &s.entries[idx]
	if e.prev >= 0 {
		s.entries[e.prev].next = e.next
	} else {
		s.lruHead = e.next
	}
	if e.next >= 0 {
		s.entries[e.next].prev = e.prev
	} else {
		s.lruTail = e.prev
	}
	e.next, e.prev = -1, -1
}

func (s *subArray[T]) lruPushMRU(idx int32) {
	e := &s.entries[idx]
	e.prev = -1
	e.next = s.lruHead
	if s.lruHead >= 0 {
		s.entries[s.lruHead].prev = idx
	}
	s.lruHead = idx
	if s.lruTail < 0 {
		s.lruTail = idx
	}
}

func (s *subArray[T]) lruPromote(idx int32) {
	if s.lruHead == idx {
		return
	}
	s.lruRemove(idx)
	s.lruPushMRU(idx)
}

// Array is a fixed-capacity LRU array of payload type T.
type Array[T any] struct {
	capacity, subCount, subSize int
	shift                       uint
	flags                       Flags
	onEvict                     func(key uint64, payload *T)

	subs       []*subArray[T]
	freeSubs   []int // sub indices with allocated entries and >=1 free slot
	unusedSubs []int // sub indices never yet allocated
}

// New allocates an LRU array. capacity and subCount must be powers of
// two and subCount must evenly divide capacity. If subCount > 1, manual
// eviction is forced on regardless of flags.EvictManual. onEvict, if
// non-nil, is invoked whenever FindFree silently reclaims an entry under
// auto-eviction.
func New[T any](capacity, subCount int, flags Flags, onEvict func(key uint64, payload *T)) (*Array[T], error) {
	if capacity <= 0 || subCount <= 0 ||
		!isPowerOfTwo(capacity) || !isPowerOfTwo(subCount) ||
		subCount > capacity || capacity%subCount != 0 {
		return nil, ErrInvalidCapacity
	}

	subSize := capacity / subCount
	if subCount > 1 {
		flags.EvictManual = true
	}

	a := &Array[T]{
		capacity: capacity,
		subCount: subCount,
		subSize:  subSize,
		shift:    uint(bits.TrailingZeros(uint(subSize))),
		flags:    flags,
		onEvict:  onEvict,
		subs:     make([]*subArray[T], subCount),
	}

	for i := 0; i < subCount; i++ {
		a.subs[i] = newSubArray[T](subSize)
	}
	// sub-array 0 is always backed immediately; the rest are lazy.
	a.subs[0].allocate(subSize)
	a.freeSubs = append(a.freeSubs, 0)
	for i := 1; i < subCount; i++ {
		a.unusedSubs = append(a.unusedSubs, i)
	}

	return a, nil
}

func isPowerOfTwo(n int) bool { return n > 0 && n&(n-1) == 0 }

func (a *Array[T]) makeIndex(subIdx, entIdx int) Index {
	return Index(uint32(subIdx)<<a.shift | uint32(entIdx))
}

func (a *Array[T]) splitIndex(idx Index) (subIdx, entIdx int) {
	mask := uint32(a.subSize - 1)
	return int(uint32(idx) >> a.shift), int(uint32(idx) & mask)
}

// autoEvictEligible reports whether FindFree may silently reclaim the
// coldest entry instead of failing with ErrBusy.
func (a *Array[T]) autoEvictEligible() bool {
	return !a.flags.EvictManual
}

// FindFree returns a slot for key, allocating a new sub-array or
// silently evicting the coldest entry if necessary. It fails with
// ErrBusy if eviction is manual and the array is exhausted.
func (a *Array[T]) FindFree(key uint64) (Index, *T, error) {
	if len(a.freeSubs) == 0 {
		if len(a.unusedSubs) > 0 {
			subIdx := a.unusedSubs[len(a.unusedSubs)-1]
			a.unusedSubs = a.unusedSubs[:len(a.unusedSubs)-1]
			a.subs[subIdx].allocate(a.subSize)
			a.freeSubs = append(a.freeSubs, subIdx)
		} else if a.autoEvictEligible() {
			a.evictColdest(0)
		} else {
			return 0, nil, ErrBusy
		}
	}

	subIdx := a.freeSubs[0]
	sub := a.subs[subIdx]
	entIdx := sub.popFree()
	if !sub.hasFree() {
		a.freeSubs = a.freeSubs[1:]
	}

	e := &sub.entries[entIdx]
	*e = entrySlot[T]{key: key, used: true, next: -1, prev: -1}
	sub.lruPushMRU(entIdx)
	sub.size++

	return a.makeIndex(subIdx, int(entIdx)), &e.payload, nil
}

// evictColdest reclaims the least-recently-used entry from sub-array
// subIdx, invoking onEvict first.
func (a *Array[T]) evictColdest(subIdx int) {
	sub := a.subs[subIdx]
	if sub.lruTail < 0 {
		return
	}
	tail := sub.lruTail
	e := &sub.entries[tail]
	if a.onEvict != nil {
		a.onEvict(e.key, &e.payload)
	}
	sub.lruRemove(tail)
	var zero T
	e.payload = zero
	e.used = false
	sub.size--
	sub.pushFree(tail)
	if !contains(a.freeSubs, subIdx) {
		a.freeSubs = append(a.freeSubs, subIdx)
	}
}

func contains(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// Lookup returns the slot at idx if its stamped key equals key. Under
// single-sub-array auto-eviction, a successful lookup promotes the entry
// to MRU.
func (a *Array[T]) Lookup(idx Index, key uint64) (*T, bool) {
	return a.access(idx, key, a.autoEvictEligible())
}

// Peek is like Lookup but never promotes the entry.
func (a *Array[T]) Peek(idx Index, key uint64) (*T, bool) {
	return a.access(idx, key, false)
}

func (a *Array[T]) access(idx Index, key uint64, promote bool) (*T, bool) {
	subIdx, entIdx := a.splitIndex(idx)
	if subIdx < 0 || subIdx >= len(a.subs) {
		return nil, false
	}
	sub := a.subs[subIdx]
	if !sub.allocated || entIdx < 0 || entIdx >= len(sub.entries) {
		return nil, false
	}
	e := &sub.entries[entIdx]
	if !e.used || e.key != key {
		return nil, false
	}
	if promote {
		sub.lruPromote(int32(entIdx))
	}
	return &e.payload, true
}

// Evict removes the slot at idx if its stamped key still matches; it is
// a no-op otherwise.
func (a *Array[T]) Evict(idx Index, key uint64) bool {
	subIdx, entIdx := a.splitIndex(idx)
	if subIdx < 0 || subIdx >= len(a.subs) {
		return false
	}
	sub := a.subs[subIdx]
	if !sub.allocated || entIdx < 0 || entIdx >= len(sub.entries) {
		return false
	}
	e := &sub.entries[entIdx]
	if !e.used || e.key != key {
		return false
	}

	wasFull := !sub.hasFree()
	sub.lruRemove(int32(entIdx))
	var zero T
	e.payload = zero
	e.used = false
	sub.size--
	sub.pushFree(int32(entIdx))
	if wasFull {
		a.freeSubs = append(a.freeSubs, subIdx)
	}
	return true
}

// Aggregate frees fully-empty sub-arrays, keeping the first (index 0)
// always resident, and returns the number of sub-arrays reclaimed. It
// is only meaningful in manual-eviction mode.
func (a *Array[T]) Aggregate() int {
	freed := 0
	remaining := a.freeSubs[:0]
	for _, subIdx := range a.freeSubs {
		sub := a.subs[subIdx]
		if subIdx != 0 && sub.size == 0 {
			sub.deallocate()
			a.unusedSubs = append(a.unusedSubs, subIdx)
			freed++
			continue
		}
		remaining = append(remaining, subIdx)
	}
	a.freeSubs = remaining
	return freed
}

// Len returns the total number of currently occupied entries across all
// sub-arrays.
func (a *Array[T]) Len() int {
	total := 0
	for _, sub := range a.subs {
		total += int(sub.size)
	}
	return total
}
