package object

import (
	"github.com/vosdb/engine/lib/btree"
	"github.com/vosdb/engine/lib/extent"
	"github.com/vosdb/engine/lib/ilog"
)

// Akey is the lowest addressable key level (spec §4.H): it carries
// either a single-value B+tree keyed by epoch, or an extent tree —
// mutually exclusive, recorded in Flags — plus its own incarnation log
// for punch/visibility bookkeeping.
type Akey struct {
	Name  []byte
	Flags KRFlags
	SV    *btree.Tree
	EVT   *extent.Tree
	Log   *ilog.Log
}

func newSingleValueAkey(name []byte, h *heapBinding) (*Akey, error) {
	tree, err := btree.New(svClass(h), 8)
	if err != nil {
		return nil, err
	}
	return &Akey{Name: name, Flags: KRAkeyRole | KRBtr, SV: tree, Log: ilog.New()}, nil
}

func newExtentAkey(name []byte, order int) (*Akey, error) {
	tree, err := extent.New(order)
	if err != nil {
		return nil, err
	}
	return &Akey{Name: name, Flags: KRAkeyRole | KREvt, EVT: tree, Log: ilog.New()}, nil
}

// svClass builds the single-value tree's class table: values are
// stored as real bytes on the heap (h), keyed by the writing epoch so
// the latest write at or before a query epoch can be resolved via
// Probe(OpLe).
func svClass(h *heapBinding) btree.Class {
	return btree.Class{
		ID:       1,
		Features: btree.Features{UintKey: true},
		RecAlloc: func(key btree.Key, value []byte) (btree.Offset, error) {
			off, err := h.allocBytes(value)
			return btree.Offset(off), err
		},
		RecFetch: func(off btree.Offset) ([]byte, error) {
			return h.fetchBytes(heapOffset(off)), nil
		},
		// Synchronous frees are deferred to the GC tier (component J);
		// see DESIGN.md's component H entry.
		RecFree: func(off btree.Offset) error { return nil },
	}
}

// FetchAtEpoch returns the single value visible at or before epoch, the
// B+tree analogue of the extent tree's covered/visible classification.
func (a *Akey) FetchAtEpoch(epoch uint64) ([]byte, bool) {
	return fetchSVAtEpoch(a.SV, epoch)
}

// fetchSVAtEpoch resolves the latest write at or before epoch in a
// single-value tree keyed by writing epoch, shared by Akey and the
// no_akey Dkey path.
func fetchSVAtEpoch(sv *btree.Tree, epoch uint64) ([]byte, bool) {
	cur := sv.IterPrepare()
	if !cur.Probe(btree.OpLe, btree.NewUintKey(epoch)) {
		return nil, false
	}
	rec, ok := cur.Fetch()
	if !ok {
		return nil, false
	}
	return sv.Lookup(rec.Key)
}
