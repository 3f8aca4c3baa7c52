package object

import (
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/vosdb/engine/lib/heap"
)

// Pool is the top-level addressing root (spec §4.H): a container
// directory over a single persistent heap. The container map is
// concurrent (xsync.MapOf, the same sharded-map primitive the teacher
// uses for its hot key/value path) since containers are created and
// looked up far more often than the heap itself changes shape.
type Pool struct {
	heap       *heapBinding
	containers *xsync.MapOf[string, *Container]
	cache      *ObjectCache
}

// NewPool opens an addressing root over h, with a handle cache of
// cacheSize entries (spec §4.H's "volatile object cache backed by an
// LRU list").
func NewPool(h *heap.Heap, cacheSize int) (*Pool, error) {
	cache, err := newObjectCache(cacheSize)
	if err != nil {
		return nil, err
	}
	return &Pool{
		heap:       newHeapBinding(h),
		containers: xsync.NewMapOf[string, *Container](),
		cache:      cache,
	}, nil
}

// Container returns the named container, creating it if it does not
// yet exist.
func (p *Pool) Container(id string) (*Container, error) {
	if c, ok := p.containers.Load(id); ok {
		return c, nil
	}
	c, err := newContainer(id, p.heap)
	if err != nil {
		return nil, err
	}
	actual, _ := p.containers.LoadOrStore(id, c)
	return actual, nil
}

// Cache returns the pool's volatile object handle cache.
func (p *Pool) Cache() *ObjectCache { return p.cache }

// SetReclaimHook wires fn as the pool's last resort against a failed
// allocation: every heapBinding.allocBytes call retries through fn
// (expected to run one GC drain slice and report whether it freed
// anything) before surfacing heap.ErrNoSpace. The engine sets this
// once its GC collector exists, since object cannot import gc without
// creating an import cycle (gc's Item callbacks are constructed here).
func (p *Pool) SetReclaimHook(fn func() bool) { p.heap.onReclaim = fn }
