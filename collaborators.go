package mimalloc

import (
	"github.com/romange/mimalloc/internal/osmem"
	"github.com/romange/mimalloc/internal/page"
	"github.com/romange/mimalloc/internal/pstats"
	"github.com/romange/mimalloc/internal/segment"
)

// DeferredFreeFunc is the deferred_free(heap, force) capability from §6:
// a client-registered callback run at the top of every collect, before
// the core touches its own delayed-free list or pages.
type DeferredFreeFunc func(h *Heap, force bool)

// Tld is the thread-local descriptor shared by every heap a single
// thread owns (§3: "pooling segment, OS, and stats state among all
// heaps owned by the same thread"). It is created once per thread,
// bound to that thread's backing heap, and torn down only when the
// backing heap is destroyed.
type Tld struct {
	threadID uint64

	// heapBacking names the backing heap for this thread: the first
	// heap created for it, and the one that owns Tld's lifetime and
	// receives safely-deleted child heaps' pages (§3, §4.4 delete).
	heapBacking *Heap

	// defaultHeap is the thread's current default heap slot (§6:
	// get_default_heap()/set_default_heap_direct(h)). Falls back to
	// heapBacking when nil (e.g. immediately after NewTld, or after the
	// previous default has been released).
	defaultHeap *Heap

	segments *segment.Manager
	osCache  *osmem.Cache
	stats    *pstats.Sink

	deferredFree DeferredFreeFunc

	// masterCookie seeds every segment this thread creates; contains_block
	// and check_owned use it to detect a segment that does not belong to
	// this thread's world before trusting its owner pointer.
	masterCookie uint64
}

// NewTld initializes a thread-local descriptor for the calling OS
// thread. osCache may be shared across every Tld in the process (it
// models the single OS region cache); each thread gets its own segment
// Manager and stats Sink.
func NewTld(osCache *osmem.Cache) *Tld {
	osmem.EnsureThreadInitialized()
	tid := osmem.CurrentThreadID()
	seed := seedPRNG()
	return &Tld{
		threadID:     tid,
		segments:     segment.NewManager(tid, osCache),
		osCache:      osCache,
		stats:        &pstats.Sink{},
		masterCookie: seed.next(),
	}
}

// Stats exposes the thread's accumulated counters for diagnostics.
func (t *Tld) Stats() pstats.Sink { return *t.stats }

// Backing is heap_get_backing(): the thread's backing heap, the one that
// owns this Tld's lifetime and receives every safely-deleted child
// heap's pages.
func (t *Tld) Backing() *Heap { return t.heapBacking }

// SetDeferredFree registers fn as t's deferred-free hook, run at the top
// of every Collect on a heap bound to t. A nil fn removes the hook.
func (t *Tld) SetDeferredFree(fn DeferredFreeFunc) { t.deferredFree = fn }

// defaultPageBytes is the byte budget of every freshly carved page and of
// the segment backing it; newPage divides it by the size class's block
// size to get the page's capacity. Grounded in the Go runtime's
// class_to_allocnpages table, reduced to a single constant-page budget
// appropriate for this core's scope.
const defaultPageBytes = 64 * 1024

func (t *Tld) newPage(sizeClass int) *Page {
	blockSize := page.BlockSize(sizeClass)
	capacity := uint32(defaultPageBytes / blockSize)
	if capacity == 0 {
		capacity = 1
	}
	seg := t.segments.New(defaultPageBytes, t.masterCookie)
	return page.NewPage[Heap](seg, sizeClass, capacity)
}
