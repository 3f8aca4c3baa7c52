package object

import (
	"github.com/vosdb/engine/lib/btree"
	"github.com/vosdb/engine/lib/extent"
	"github.com/vosdb/engine/lib/ilog"
)

// Dkey is the distribution-key level (spec §4.H): a name, its own
// incarnation log, the kr_bmap role bits, and an akey directory — or,
// when KRNoAkey is set, its own SV/EVT pair in place of that directory,
// mirroring Akey and letting a dkey hold its value directly without an
// intermediate akey lookup. The Akeys directory is still allocated
// eagerly by newDkey; a dkey only becomes no_akey the first time it is
// addressed with an empty akey name, at which point ensureSingleValue
// or ensureExtent sets KRNoAkey and populates SV/EVT lazily.
type Dkey struct {
	Name      []byte
	Flags     KRFlags
	Akeys     *btree.Tree
	SV        *btree.Tree
	EVT       *extent.Tree
	Log       *ilog.Log
	LastTouch uint64
	store     *ptrStore[*Akey]
}

// touch bumps LastTouch to epoch if epoch is newer, the ancestor
// timestamp punch propagation's conflict check compares against a
// reader's bound.
func (d *Dkey) touch(epoch uint64) {
	if epoch > d.LastTouch {
		d.LastTouch = epoch
	}
}

func newDkey(name []byte) (*Dkey, error) {
	store := newPtrStore[*Akey]()
	tree, err := btree.New(akeyDirClass(store), 8)
	if err != nil {
		return nil, err
	}
	return &Dkey{Name: name, Flags: KRDkeyRole, Akeys: tree, Log: ilog.New(), store: store}, nil
}

// akeyDirClass is the akey-name directory: keys are hashed akey names,
// values are local ptrStore handles to the *Akey structs (structural
// metadata, not user data — see DESIGN.md's lib/btree "in-memory arena"
// simplification).
func akeyDirClass(store *ptrStore[*Akey]) btree.Class {
	return btree.Class{
		ID: 2,
		RecAlloc: func(key btree.Key, value []byte) (btree.Offset, error) {
			return btree.Offset(store.alloc(nil)), nil
		},
		RecFree: func(off btree.Offset) error {
			store.free(uint64(off))
			return nil
		},
	}
}

func (d *Dkey) lookupAkey(name []byte) (*Akey, bool) {
	key := btree.NewHashedKey(name)
	leaf, ok := d.findAkeyOffset(key)
	if !ok {
		return nil, false
	}
	return d.store.get(leaf)
}

func (d *Dkey) findAkeyOffset(key btree.Key) (uint64, bool) {
	cur := d.Akeys.IterPrepare()
	if !cur.Probe(btree.OpEq, key) {
		return 0, false
	}
	rec, ok := cur.Fetch()
	if !ok {
		return 0, false
	}
	return uint64(rec.Value), true
}

func (d *Dkey) putAkey(name []byte, akey *Akey) error {
	key := btree.NewHashedKey(name)
	if off, ok := d.findAkeyOffset(key); ok {
		d.store.set(off, akey)
		return nil
	}
	if err := d.Akeys.Insert(key, nil); err != nil {
		return err
	}
	off, _ := d.findAkeyOffset(key)
	d.store.set(off, akey)
	return nil
}

// ensureSingleValue lazily creates this dkey's own single-value tree
// for the no_akey addressing path (spec §4.H kr_bmap KRNoAkey): once
// created, Insert/Fetch called with an empty akey name write and read
// it directly instead of descending into an akey.
func (d *Dkey) ensureSingleValue(h *heapBinding) error {
	if d.SV != nil {
		return nil
	}
	if d.EVT != nil {
		return ErrNotASingleValueAkey
	}
	tree, err := btree.New(svClass(h), 8)
	if err != nil {
		return err
	}
	d.SV = tree
	d.Flags |= KRNoAkey | KRBtr
	return nil
}

// ensureExtent is ensureSingleValue's extent-tree counterpart.
func (d *Dkey) ensureExtent(order int) error {
	if d.EVT != nil {
		return nil
	}
	if d.SV != nil {
		return ErrNotAnExtentAkey
	}
	tree, err := extent.New(order)
	if err != nil {
		return err
	}
	d.EVT = tree
	d.Flags |= KRNoAkey | KREvt
	return nil
}

// FetchAtEpoch is Akey.FetchAtEpoch's counterpart for a no_akey dkey's
// own single-value tree.
func (d *Dkey) FetchAtEpoch(epoch uint64) ([]byte, bool) {
	return fetchSVAtEpoch(d.SV, epoch)
}

// IsEmpty reports whether this dkey's akey directory holds no entries,
// the condition spec §4.H's punch propagation checks before continuing
// upward.
func (d *Dkey) IsEmpty() bool { return d.store.len() == 0 }

// removeAkey drops name from the akey directory entirely, the step
// that can make IsEmpty become true and trigger punch propagation to
// the object above.
func (d *Dkey) removeAkey(name []byte) error {
	key := btree.NewHashedKey(name)
	off, ok := d.findAkeyOffset(key)
	if !ok {
		return nil
	}
	if err := d.Akeys.Delete(key); err != nil {
		return err
	}
	d.store.free(off)
	return nil
}
