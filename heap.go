package mimalloc

import (
	"sync/atomic"

	"github.com/romange/mimalloc/internal/page"
)

// Heap is C3: a collection of pages owned by a single thread, used as a
// source of allocations. See spec.md §3 for the full invariant list;
// the comments here call out only what each field is for.
type Heap struct {
	threadID atomic.Uint64 // may go stale after abandonment; refreshed by absorb

	pages [page.NumBins]pageQueue // C1: one queue per size class, plus BinFull

	delayed delayedFreeList // C2

	pageCount atomic.Int64 // invariant: equals sum of all pages[i].length()

	tld *Tld // nil iff this Heap is uninitialized (invariant 1)

	noReclaim bool // true: refuses to absorb abandoned heaps, may be bulk-destroyed

	random prngState
	key    [2]uint64

	abandonedNext *Heap // linked into the process-wide abandoned stack (C4) only
}

// binFull is the index of the page queue holding pages with no free
// blocks, as distinct from the size-class bins in pages[0:binFull].
const binFull = page.BinFull

// initialized reports spec.md invariant 1: a heap is initialized iff its
// tld pointer is non-nil. Every public operation below is a no-op on an
// uninitialized heap.
func (h *Heap) initialized() bool {
	return h != nil && h.tld != nil
}

// ThreadID returns the id of the thread that currently owns h. After an
// absorb this reflects the absorbing thread, not h's original creator.
func (h *Heap) ThreadID() uint64 { return h.threadID.Load() }

// PageCount returns the heap's current total page count.
func (h *Heap) PageCount() int64 { return h.pageCount.Load() }

// NoReclaim reports the heap's reclaim policy flag.
func (h *Heap) NoReclaim() bool { return h.noReclaim }

// RandomNext is heap_random_next(h): draws the next value from h's own
// split of the PRNG stream, for callers that want randomness correlated
// with this heap's lifetime without maintaining their own generator.
func (h *Heap) RandomNext() uint64 { return h.random.next() }

// newHeapFrom fills in the fields every heap needs regardless of whether
// it's a backing heap or a child: PRNG state split from parent, and the
// delayed-free obfuscation key derived from that freshly-split state
// (§4.3).
func newHeapFrom(parent *prngState, tld *Tld, threadID uint64, noReclaim bool) *Heap {
	h := &Heap{tld: tld, noReclaim: noReclaim}
	h.threadID.Store(threadID)
	if parent != nil {
		h.random = parent.split()
	} else {
		h.random = seedPRNG()
	}
	h.key[0] = h.random.next()
	h.key[1] = h.random.next()
	return h
}

// NewBackingHeap creates the first heap for tld's thread: the backing
// heap that owns tld's lifetime and is the only heap of this thread
// allowed to receive abandoned work (§4.3, §4.4).
func NewBackingHeap(tld *Tld) *Heap {
	h := newHeapFrom(nil, tld, tld.threadID, false)
	tld.heapBacking = h
	return h
}

// create is heap_new(): it allocates a new child heap bound to the
// calling thread's backing descriptor, per §4.3/§4.4. A newly created
// non-backing heap always starts with noReclaim = true; only the
// backing heap absorbs abandoned work.
func create(backing *Heap) *Heap {
	if !backing.initialized() {
		return nil
	}
	return newHeapFrom(&backing.random, backing.tld, backing.threadID.Load(), true)
}

// isBacking reports whether h is its thread's backing heap.
func (h *Heap) isBacking() bool {
	return h.tld != nil && h.tld.heapBacking == h
}
