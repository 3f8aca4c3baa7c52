package object

import (
	"github.com/cockroachdb/errors"

	"github.com/vosdb/engine/lib/btree"
	"github.com/vosdb/engine/lib/extent"
	"github.com/vosdb/engine/lib/ilog"
)

// ErrNotAnExtentAkey/ErrNotASingleValueAkey reject a write that
// addresses an akey with the wrong kind of child tree (spec §4.H: "a
// single-value B+tree or an extent tree (mutually exclusive)").
var (
	ErrNotAnExtentAkey     = errors.New("object: akey does not hold an extent tree")
	ErrNotASingleValueAkey = errors.New("object: akey does not hold a single-value tree")
	// ErrNoAkeyConflict rejects a dkey addressed both with an akey name
	// and (on another call) with none: kr_bmap's KRNoAkey bit picks one
	// addressing mode for the dkey's lifetime.
	ErrNoAkeyConflict = errors.New("object: dkey addressed both with and without an akey name")
)

// Range is a byte range for an extent write/read, mirroring
// lib/extent.Entry's [Lo, Hi) convention. A nil Range addresses the
// akey's single-value tree instead.
type Range struct {
	Lo, Hi uint64
}

func keyForEpoch(epoch uint64) btree.Key { return btree.NewUintKey(epoch) }

// ilogKindFor reports Create the first time a key is touched, Update
// on every later write.
func ilogKindFor(ak *Akey) ilog.Kind {
	if _, ok := ak.Log.Head(); ok {
		return ilog.Update
	}
	return ilog.Create
}

// ilogKindForDkey is ilogKindFor's counterpart for a no_akey dkey,
// whose own Log stands in for the akey log it has no room for.
func ilogKindForDkey(dk *Dkey) ilog.Kind {
	if _, ok := dk.Log.Head(); ok {
		return ilog.Update
	}
	return ilog.Create
}

// Insert writes value at (oid, dkey, akey[, rng]) stamped with epoch,
// creating any missing container/object/dkey/akey level along the way
// — spec §4.H's "(oid, dkey, akey, epoch, value) tuples" data flow,
// composing lib/btree, lib/extent and lib/ilog.
func (p *Pool) Insert(contID string, oid UnitOID, dkey, akeyName []byte, rng *Range, value []byte, epoch uint64, minorEpc uint32) error {
	cont, err := p.Container(contID)
	if err != nil {
		return err
	}
	obj, err := p.cache.Hold(cont, oid, HoldCreate)
	if err != nil {
		return err
	}
	defer p.cache.Release(oid, HoldCreate, false)

	dk, err := obj.getOrCreateDkey(dkey)
	if err != nil {
		return err
	}
	obj.touch(epoch)
	dk.touch(epoch)

	if len(akeyName) == 0 {
		return p.insertDkeyDirect(dk, rng, value, epoch, minorEpc)
	}
	if dk.SV != nil || dk.EVT != nil {
		return ErrNoAkeyConflict
	}

	ak, ok := dk.lookupAkey(akeyName)
	if !ok {
		if rng != nil {
			ak, err = newExtentAkey(akeyName, 8)
		} else {
			ak, err = newSingleValueAkey(akeyName, p.heap)
		}
		if err != nil {
			return err
		}
		if err := dk.putAkey(akeyName, ak); err != nil {
			return err
		}
	}

	kind := ilogKindFor(ak)
	if err := ak.Log.Append(epoch, minorEpc, kind); err != nil {
		return err
	}

	if rng != nil {
		if ak.EVT == nil {
			return ErrNotAnExtentAkey
		}
		off, err := p.heap.allocBytes(value)
		if err != nil {
			return err
		}
		return ak.EVT.Insert(extent.Entry{
			Lo: rng.Lo, Hi: rng.Hi, Epoch: epoch, MinorEpc: minorEpc,
			BioAddr: extent.Offset(off),
		})
	}

	if ak.SV == nil {
		return ErrNotASingleValueAkey
	}
	return ak.SV.Upsert(keyForEpoch(epoch), value)
}

// insertDkeyDirect writes value on dk's own SV/EVT tree instead of an
// akey's, the kr_bmap KRNoAkey path taken when the caller addresses a
// dkey with an empty akey name (spec §4.H: a dkey "skips the akey
// level entirely, storing its value ... directly").
func (p *Pool) insertDkeyDirect(dk *Dkey, rng *Range, value []byte, epoch uint64, minorEpc uint32) error {
	if dk.store.len() > 0 {
		return ErrNoAkeyConflict
	}

	if rng != nil {
		if err := dk.ensureExtent(8); err != nil {
			return err
		}
	} else if err := dk.ensureSingleValue(p.heap); err != nil {
		return err
	}

	kind := ilogKindForDkey(dk)
	if err := dk.Log.Append(epoch, minorEpc, kind); err != nil {
		return err
	}

	if rng != nil {
		off, err := p.heap.allocBytes(value)
		if err != nil {
			return err
		}
		return dk.EVT.Insert(extent.Entry{
			Lo: rng.Lo, Hi: rng.Hi, Epoch: epoch, MinorEpc: minorEpc,
			BioAddr: extent.Offset(off),
		})
	}
	return dk.SV.Upsert(keyForEpoch(epoch), value)
}

// Fetch reads value at (oid, dkey, akey[, rng]) as of epoch, resolving
// single-value writes to the latest write at or before epoch and
// extent writes to the union of visible bytes within rng.
func (p *Pool) Fetch(contID string, oid UnitOID, dkey, akeyName []byte, rng *Range, epoch uint64) ([]byte, bool, error) {
	cont, err := p.Container(contID)
	if err != nil {
		return nil, false, err
	}
	obj, ok := cont.Lookup(oid)
	if !ok || obj.Punched {
		return nil, false, nil
	}
	dk, ok := obj.lookupDkey(dkey)
	if !ok {
		return nil, false, nil
	}

	if len(akeyName) == 0 {
		return p.fetchDkeyDirect(dk, rng, epoch)
	}

	ak, ok := dk.lookupAkey(akeyName)
	if !ok {
		return nil, false, nil
	}

	if rng != nil {
		if ak.EVT == nil {
			return nil, false, ErrNotAnExtentAkey
		}
		classified := ak.EVT.Query(extent.Filter{Lo: rng.Lo, Hi: rng.Hi, EpochHi: epoch})
		return assembleExtentValue(p.heap, classified, rng), len(classified) > 0, nil
	}

	if ak.SV == nil {
		return nil, false, ErrNotASingleValueAkey
	}
	v, ok := ak.FetchAtEpoch(epoch)
	return v, ok, nil
}

// fetchDkeyDirect is Fetch's counterpart to insertDkeyDirect, reading
// a no_akey dkey's own SV/EVT tree.
func (p *Pool) fetchDkeyDirect(dk *Dkey, rng *Range, epoch uint64) ([]byte, bool, error) {
	if rng != nil {
		if dk.EVT == nil {
			return nil, false, ErrNotAnExtentAkey
		}
		classified := dk.EVT.Query(extent.Filter{Lo: rng.Lo, Hi: rng.Hi, EpochHi: epoch})
		return assembleExtentValue(p.heap, classified, rng), len(classified) > 0, nil
	}
	if dk.SV == nil {
		return nil, false, ErrNotASingleValueAkey
	}
	v, ok := dk.FetchAtEpoch(epoch)
	return v, ok, nil
}

// assembleExtentValue stitches the visible classified entries (sorted
// by Lo, per lib/extent.Query's allEntries traversal order) into a
// single [rng.Lo, rng.Hi) byte buffer, leaving holes zero-filled.
func assembleExtentValue(h *heapBinding, classified []extent.Classified, rng *Range) []byte {
	out := make([]byte, rng.Hi-rng.Lo)
	for _, c := range classified {
		if c.Class != extent.ClassVisible {
			continue
		}
		bytes := h.fetchBytes(heapOffset(c.Entry.BioAddr))
		lo, hi := c.Entry.Lo, c.Entry.Hi
		if lo < rng.Lo {
			bytes = bytes[rng.Lo-lo:]
			lo = rng.Lo
		}
		if hi > rng.Hi {
			bytes = bytes[:len(bytes)-int(hi-rng.Hi)]
			hi = rng.Hi
		}
		copy(out[lo-rng.Lo:hi-rng.Lo], bytes)
	}
	return out
}
