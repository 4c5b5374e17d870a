// Package page implements the size-class table, per-page free lists, and
// the fast allocate/free paths that the core heap-lifecycle subsystem
// treats as an external collaborator (see the Page-queue set component
// in the parent package).
//
// This mirrors the Go runtime's mspan/mcentral split: a Page owns a
// contiguous run of equal-sized blocks carved out of a Segment, a local
// free list consumed only by the owning thread, and a thread-free list
// that remote threads push onto without taking any lock.
package page

import (
	"sync/atomic"

	"github.com/romange/mimalloc/internal/segment"
)

// Segment aliases the segment package's type so the rest of this file can
// refer to it without qualification; page never needs anything from
// segment beyond the type itself.
type Segment = segment.Segment

// Size classes. Chosen so that rounding an allocation up to the next
// class wastes at most ~12.5%, the same target the Go runtime's own
// size-class table aims for (see class_to_size in the runtime).
var classToSize = [...]uintptr{16, 32, 48, 64, 96, 128, 192, 256, 384, 512, 768, 1024}

// NumSizeClasses is the number of small-object bins. BinFull is the
// additional bin that holds pages with no free blocks; it is not a size
// class and carries no block size of its own.
const (
	NumSizeClasses = len(classToSize)
	BinFull        = NumSizeClasses
	NumBins        = NumSizeClasses + 1
)

// SizeClass returns the smallest size class whose block size can hold a
// request of n bytes, or -1 if n exceeds the largest small-object class
// (the caller should fall back to a large, single-block allocation).
func SizeClass(n uintptr) int {
	for i, sz := range classToSize {
		if n <= sz {
			return i
		}
	}
	return -1
}

// BlockSize returns the block size served by size class i.
func BlockSize(i int) uintptr {
	return classToSize[i]
}

// FreeNode is one link in a page's free list. Unlike the heap-level
// delayed-free list (see the parent package's delayed-free channel),
// these links are not obfuscated, and nothing in this package validates
// them.
type FreeNode struct {
	next  *FreeNode
	Index uint32 // slot index within the owning page, used for bitmap lookups
}

// Page is a run of equal-sized blocks carved from a Segment. The owner
// field is generic over the heap type so this package never needs to
// import the core package that defines Heap. The parent package sets it
// through SetOwner when it links a page into a heap's page queue or
// splices it into another heap's, and clears it when the heap is
// destroyed.
type Page[H any] struct {
	Next, Prev *Page[H] // C1 page-queue links; owned exclusively by the queue holding this page

	owner atomic.Pointer[H]

	BlockSize uintptr
	Capacity  uint32
	Used      uint32

	free      *FreeNode // consumed only by the owning thread
	localFree *FreeNode // blocks freed by the owner, merged into free on demand

	threadFree atomic.Pointer[FreeNode] // MPSC stack: remote frees for this (still non-full) page

	Segment *Segment

	nodes     []FreeNode // backing storage for every slot's FreeNode, indexed by slot
	allocBits []uint64   // one bit per slot; set means currently allocated
}

// Owner returns the heap this page is currently linked under.
func (p *Page[H]) Owner() *H { return p.owner.Load() }

// SetOwner is called only while holding exclusive access to p: either
// during creation, or during an absorb that has already spliced p out of
// its old queue and into the new one.
func (p *Page[H]) SetOwner(h *H) { p.owner.Store(h) }

// NewPage carves a fresh page of the given size class from seg and
// threads every slot onto the free list, largest index first so the
// first allocation returns slot 0.
func NewPage[H any](seg *Segment, sizeClass int, capacity uint32) *Page[H] {
	p := &Page[H]{
		BlockSize: classToSize[sizeClass],
		Capacity:  capacity,
		Segment:   seg,
		nodes:     make([]FreeNode, capacity),
		allocBits: make([]uint64, (capacity+63)/64),
	}
	for i := capacity; i > 0; i-- {
		n := &p.nodes[i-1]
		n.Index = i - 1
		n.next = p.free
		p.free = n
	}
	return p
}

// IsFull reports whether every block in the page is currently allocated
// and there is no pending free (local or remote) that would make room.
func (p *Page[H]) IsFull() bool {
	return p.Used >= p.Capacity && p.free == nil && p.localFree == nil && p.threadFree.Load() == nil
}

// IsEmpty reports whether the page currently holds zero allocated blocks.
func (p *Page[H]) IsEmpty() bool {
	return p.Used == 0
}

// PushThreadFree is the producer side used by a remote thread freeing a
// block that belongs to a page which still has capacity (i.e. has not
// been retired to the heap's delayed-free list). Lock-free CAS prepend,
// mirroring the Go runtime's mspan.freeIndex/ThreadFree handling style.
func (p *Page[H]) PushThreadFree(block *FreeNode) {
	for {
		head := p.threadFree.Load()
		block.next = head
		if p.threadFree.CompareAndSwap(head, block) {
			return
		}
	}
}

// FreeCollect merges the page's thread-free list into the local free
// list and, if force, then folds the whole local free list into the
// primary free list, matching the page_free_collect external capability
// named in the core's §6 contract.
func (p *Page[H]) FreeCollect(force bool) {
	n := p.threadFree.Swap(nil)
	for n != nil {
		next := n.next
		n.next = p.localFree
		p.localFree = n
		p.Used--
		p.setBit(n.Index, false)
		n = next
	}
	if force && p.localFree != nil {
		// Fold local frees into the primary free list so a subsequent
		// capacity check sees them without another pass.
		tail := p.localFree
		for tail.next != nil {
			tail = tail.next
		}
		tail.next = p.free
		p.free = p.localFree
		p.localFree = nil
	}
}

// Alloc pops one block off the page's free list. The caller (the page
// allocator fast path, itself out of the core's scope) is responsible
// for calling FreeCollect first if Free is empty but LocalFree/ThreadFree
// are not.
func (p *Page[H]) Alloc() *FreeNode {
	n := p.free
	if n == nil {
		return nil
	}
	p.free = n.next
	p.Used++
	p.setBit(n.Index, true)
	return n
}

// Free returns block directly to the page's primary free list, where the
// next Alloc picks it up, without going through the remote thread-free
// path; used by the owning thread's direct frees and by delayed-free
// drains.
func (p *Page[H]) Free(n *FreeNode) {
	n.next = p.free
	p.free = n
	p.Used--
	p.setBit(n.Index, false)
}

func (p *Page[H]) setBit(idx uint32, allocated bool) {
	word, bit := idx/64, idx%64
	if allocated {
		p.allocBits[word] |= 1 << bit
	} else {
		p.allocBits[word] &^= 1 << bit
	}
}

// IsAllocated reports whether slot idx is currently handed out. It is the
// basis for both check_owned's bitmap scan and the area/block visitor.
func (p *Page[H]) IsAllocated(idx uint32) bool {
	word, bit := idx/64, idx%64
	return p.allocBits[word]&(1<<bit) != 0
}

// VisitAllocated walks every allocated slot in ascending index order,
// skipping whole words that are entirely free. It stops early if visit
// returns false, matching the fail-fast visitor contract in the core's
// area/block visitor (§4.5 in the design this package backs).
func (p *Page[H]) VisitAllocated(visit func(idx uint32) bool) bool {
	if p.Capacity == 1 {
		if p.Used == 0 {
			return true
		}
		return visit(0)
	}
	for w, word := range p.allocBits {
		if word == 0 {
			continue
		}
		base := uint32(w) * 64
		for bit := uint32(0); bit < 64 && base+bit < p.Capacity; bit++ {
			if word&(1<<bit) == 0 {
				continue
			}
			if !visit(base + bit) {
				return false
			}
		}
	}
	return true
}

// Reclaimable reports whether the page has no in-use blocks once its
// pending frees are accounted for, i.e. it can be returned to its
// segment.
func (p *Page[H]) Reclaimable() bool {
	return p.Used == 0
}

// BlockAt returns the FreeNode (i.e. the block handle) for slot idx.
func (p *Page[H]) BlockAt(idx uint32) *FreeNode {
	return &p.nodes[idx]
}
