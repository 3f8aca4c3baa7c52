package object

import (
	"github.com/vosdb/engine/lib/btree"
	"github.com/vosdb/engine/lib/ilog"
)

// Object is a single logical object (spec §4.H): its oid, a dkey
// directory, its own incarnation log, and the punched flag an object
// punch sets directly (object punch has no propagation target above
// it — it is the root of the addressing path).
type Object struct {
	OID       UnitOID
	Dkeys     *btree.Tree
	Log       *ilog.Log
	Punched   bool
	LastTouch uint64
	store     *ptrStore[*Dkey]
}

// touch bumps LastTouch to epoch if epoch is newer.
func (o *Object) touch(epoch uint64) {
	if epoch > o.LastTouch {
		o.LastTouch = epoch
	}
}

func newObject(oid UnitOID) (*Object, error) {
	store := newPtrStore[*Dkey]()
	tree, err := btree.New(dkeyDirClass(store), 8)
	if err != nil {
		return nil, err
	}
	return &Object{OID: oid, Dkeys: tree, Log: ilog.New(), store: store}, nil
}

func dkeyDirClass(store *ptrStore[*Dkey]) btree.Class {
	return btree.Class{
		ID: 3,
		RecAlloc: func(key btree.Key, value []byte) (btree.Offset, error) {
			return btree.Offset(store.alloc(nil)), nil
		},
		RecFree: func(off btree.Offset) error {
			store.free(uint64(off))
			return nil
		},
	}
}

func (o *Object) findDkeyOffset(key btree.Key) (uint64, bool) {
	cur := o.Dkeys.IterPrepare()
	if !cur.Probe(btree.OpEq, key) {
		return 0, false
	}
	rec, ok := cur.Fetch()
	if !ok {
		return 0, false
	}
	return uint64(rec.Value), true
}

func (o *Object) lookupDkey(name []byte) (*Dkey, bool) {
	off, ok := o.findDkeyOffset(btree.NewHashedKey(name))
	if !ok {
		return nil, false
	}
	return o.store.get(off)
}

// getOrCreateDkey returns the named dkey, creating it (and its akey
// directory) if absent.
func (o *Object) getOrCreateDkey(name []byte) (*Dkey, error) {
	if dk, ok := o.lookupDkey(name); ok {
		return dk, nil
	}
	key := btree.NewHashedKey(name)
	dk, err := newDkey(name)
	if err != nil {
		return nil, err
	}
	if err := o.Dkeys.Insert(key, nil); err != nil {
		return nil, err
	}
	off, _ := o.findDkeyOffset(key)
	o.store.set(off, dk)
	return dk, nil
}

func (o *Object) removeDkey(name []byte) error {
	key := btree.NewHashedKey(name)
	off, ok := o.findDkeyOffset(key)
	if !ok {
		return nil
	}
	if err := o.Dkeys.Delete(key); err != nil {
		return err
	}
	o.store.free(off)
	return nil
}

// IsEmpty reports whether this object's dkey directory holds no
// entries.
func (o *Object) IsEmpty() bool { return o.store.len() == 0 }

// Stat is the §4.H.1 vos_obj_df supplement: per-object akey/dkey
// counts, punched flag, and latest touched epoch.
type Stat struct {
	DkeyCount  int
	AkeyCount  int
	Punched    bool
	LatestEpoch uint64
}

// Stat walks the object's dkey/akey directories and reports aggregate
// counts alongside the punched flag.
func (o *Object) Stat() Stat {
	s := Stat{DkeyCount: o.store.len(), Punched: o.Punched}
	for off := uint64(1); off < o.store.next; off++ {
		dk, ok := o.store.get(off)
		if !ok {
			continue
		}
		s.AkeyCount += dk.store.len()
		if head, ok := dk.Log.Head(); ok && head.Epoch > s.LatestEpoch {
			s.LatestEpoch = head.Epoch
		}
	}
	if head, ok := o.Log.Head(); ok && head.Epoch > s.LatestEpoch {
		s.LatestEpoch = head.Epoch
	}
	return s
}
