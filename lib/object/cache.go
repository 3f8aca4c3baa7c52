package object

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// HoldFlags are the hold()/release() request bits spec §4.H names.
type HoldFlags uint8

const (
	HoldVisible HoldFlags = 1 << iota
	HoldCreate
	HoldKillDkey
	HoldDiscard
	HoldAggregate
)

func (f HoldFlags) has(bit HoldFlags) bool { return f&bit != 0 }

type cacheEntry struct {
	obj    *Object
	refs   int
	killed bool
}

// ObjectCache is the volatile unit_oid → handle cache spec §4.H
// describes, backed by hashicorp/golang-lru — a different LRU from
// lib/lru's sub-array design (§4.C), which this engine reserves for
// the DTX cache instead; the object cache has no sharding requirement
// of its own, so the ecosystem package's single global LRU list fits
// directly.
type ObjectCache struct {
	mu  sync.Mutex
	lru *lru.Cache
}

func newObjectCache(size int) (*ObjectCache, error) {
	if size <= 0 {
		size = 1024
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &ObjectCache{lru: c}, nil
}

// Hold returns oid's cached handle, reference-counting concurrent
// holders, creating and inserting a fresh entry via cont.GetOrCreate
// when absent.
func (c *ObjectCache) Hold(cont *Container, oid UnitOID, flags HoldFlags) (*Object, error) {
	c.mu.Lock()
	if v, ok := c.lru.Get(oid); ok {
		entry := v.(*cacheEntry)
		entry.refs++
		c.mu.Unlock()
		return entry.obj, nil
	}
	c.mu.Unlock()

	obj, err := cont.GetOrCreate(oid)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.lru.Get(oid); ok {
		entry := v.(*cacheEntry)
		entry.refs++
		return entry.obj, nil
	}
	c.lru.Add(oid, &cacheEntry{obj: obj, refs: 1})
	return obj, nil
}

// Release drops one reference on oid's handle. A handle marked killed
// (HoldKillDkey) or released with evict=true is removed from the cache
// once its reference count reaches zero.
func (c *ObjectCache) Release(oid UnitOID, flags HoldFlags, evict bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.lru.Peek(oid)
	if !ok {
		return
	}
	entry := v.(*cacheEntry)
	if entry.refs > 0 {
		entry.refs--
	}
	if flags.has(HoldKillDkey) {
		entry.killed = true
	}
	if entry.refs <= 0 && (entry.killed || evict) {
		c.lru.Remove(oid)
	}
}

// Evict forcibly removes oid's handle, regardless of outstanding
// references — the object-punch path (spec §4.H: "Object punch: ...
// evicts its cache entry").
func (c *ObjectCache) Evict(oid UnitOID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(oid)
}
