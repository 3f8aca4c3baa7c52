package object

import "github.com/vosdb/engine/lib/btree"

// Container holds a B+tree of objects, keyed by unit_oid (spec §4.H).
// Like the dkey/akey directories above it, the tree indexes a local
// ptrStore of *Object structs rather than serializing object metadata
// onto the heap — only leaf user-data values go through heapBinding.
type Container struct {
	ID      string
	Objects *btree.Tree
	store   *ptrStore[*Object]
	heap    *heapBinding
}

func newContainer(id string, h *heapBinding) (*Container, error) {
	store := newPtrStore[*Object]()
	tree, err := btree.New(objectDirClass(store), 8)
	if err != nil {
		return nil, err
	}
	return &Container{ID: id, Objects: tree, store: store, heap: h}, nil
}

func objectDirClass(store *ptrStore[*Object]) btree.Class {
	return btree.Class{
		ID: 4,
		RecAlloc: func(key btree.Key, value []byte) (btree.Offset, error) {
			return btree.Offset(store.alloc(nil)), nil
		},
		RecFree: func(off btree.Offset) error {
			store.free(uint64(off))
			return nil
		},
	}
}

func (c *Container) findOffset(key btree.Key) (uint64, bool) {
	cur := c.Objects.IterPrepare()
	if !cur.Probe(btree.OpEq, key) {
		return 0, false
	}
	rec, ok := cur.Fetch()
	if !ok {
		return 0, false
	}
	return uint64(rec.Value), true
}

// Lookup returns the object addressed by oid, if it has been created.
func (c *Container) Lookup(oid UnitOID) (*Object, bool) {
	off, ok := c.findOffset(btree.NewHashedKey(oid.Encode()))
	if !ok {
		return nil, false
	}
	return c.store.get(off)
}

// GetOrCreate returns oid's object, creating it if absent.
func (c *Container) GetOrCreate(oid UnitOID) (*Object, error) {
	if obj, ok := c.Lookup(oid); ok {
		return obj, nil
	}
	key := btree.NewHashedKey(oid.Encode())
	obj, err := newObject(oid)
	if err != nil {
		return nil, err
	}
	if err := c.Objects.Insert(key, nil); err != nil {
		return nil, err
	}
	off, _ := c.findOffset(key)
	c.store.set(off, obj)
	return obj, nil
}
