package object

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"

	"github.com/vosdb/engine/lib/heap"
)

// heapOffset and btree.Offset/extent.Offset are all plain uint64
// handles; this package is the seam where they get cast into one
// another, since lib/btree and lib/extent intentionally stay agnostic
// of what backing store their offsets resolve against.
type heapOffset = heap.Offset

func heapOffsetOf(v uint64) heapOffset { return heap.Offset(v) }

// heapBinding wraps the pool's heap with the length-prefixed byte
// allocation scheme leaf record values use: lib/btree and lib/extent's
// node arenas stay in-memory (per their own DESIGN.md entries), but the
// actual user-data bytes behind a single-value or extent leaf get a
// real persistent home here.
type heapBinding struct {
	h *heap.Heap

	// onReclaim, when set, is called on a failed reservation before
	// allocBytes gives up: it should run one GC drain slice and report
	// whether it freed anything worth retrying for (spec §4.H/§4.J:
	// "insufficient space yields no_space after any GC slice that could
	// have made room has been attempted").
	onReclaim func() bool
}

func newHeapBinding(h *heap.Heap) *heapBinding { return &heapBinding{h: h} }

// maxReclaimAttempts bounds how many GC drain-and-retry rounds
// allocBytes runs before surfacing heap.ErrNoSpace — a safety cap
// against a misbehaving onReclaim hook that always reports progress.
const maxReclaimAttempts = 16

// allocBytes persists value as [4-byte length][payload] and returns the
// offset of that header, satisfying lib/btree's Class.RecAlloc/RecFetch
// contract and lib/extent's BioAddr field. On heap.ErrNoSpace it drains
// the pool's garbage collector (via onReclaim) and retries, as long as
// each drain slice reports having freed something, before giving up.
func (b *heapBinding) allocBytes(value []byte) (heapOffset, error) {
	buf := make([]byte, 4+len(value))
	binary.LittleEndian.PutUint32(buf[:4], uint32(len(value)))
	copy(buf[4:], value)

	return reserveWithReclaim(func() (heapOffset, error) {
		tok, err := b.h.Reserve(uint64(len(buf)), 0, 0)
		if err != nil {
			return 0, err
		}
		if err := b.h.SetValue(tok.Payload(), buf, tok); err != nil {
			return 0, err
		}
		if err := b.h.Publish([]*heap.ActionToken{tok}); err != nil {
			return 0, err
		}
		return tok.Payload(), nil
	}, b.onReclaim)
}

// reserveWithReclaim runs op once and, on heap.ErrNoSpace, keeps
// retrying it as long as reclaim is set and reports it freed
// something — spec §4.H/§4.J's "insufficient space yields no_space
// after any GC slice that could have made room has been attempted" —
// up to maxReclaimAttempts rounds.
func reserveWithReclaim(op func() (heapOffset, error), reclaim func() bool) (heapOffset, error) {
	for attempt := 0; ; attempt++ {
		off, err := op()
		if err == nil {
			return off, nil
		}
		if !errors.Is(err, heap.ErrNoSpace) || reclaim == nil || attempt >= maxReclaimAttempts || !reclaim() {
			return 0, err
		}
	}
}

func (b *heapBinding) fetchBytes(off heapOffset) []byte {
	hdr := b.h.At(off, 4)
	n := binary.LittleEndian.Uint32(hdr)
	return append([]byte{}, b.h.At(off+4, int(n))...)
}
