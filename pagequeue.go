package mimalloc

import (
	"github.com/romange/mimalloc/internal/page"
	"github.com/romange/mimalloc/internal/segment"
)

// Page is a page of equal-sized blocks, generic-instantiated with this
// package's Heap as its owner type. See internal/page for the fast
// alloc/free paths and bitmap bookkeeping this package treats as an
// external collaborator.
type Page = page.Page[Heap]

// Block is the handle returned by an allocation and accepted by free,
// contains_block, and check_owned. Rather than resolving a bare address
// back to its page through address-space arithmetic (as the C allocator
// this subsystem is modeled on does), a Block carries its own back
// references; the corruption-detection properties spec.md asks for
// (cookie mismatch -> "not owned", never a crash) are preserved by
// validating those references before trusting them.
type Block struct {
	node *page.FreeNode
	pg   *Page
	seg  *segment.Segment

	// delayedNext is this block's link in its owning heap's delayed-free
	// channel (C2), XOR-encoded against the heap's key pair. It is only
	// ever touched while the block sits on that list: a block reachable
	// from a page's free list never has this field in use.
	delayedNext uintptr
}

// pageQueue is one bin of C1's page-queue set: a doubly-linked list of
// pages sharing a size class (or, for BinFull, no particular size).
type pageQueue struct {
	first, last *Page
	blockSize   uintptr
}

func (q *pageQueue) isEmpty() bool { return q.first == nil }

// length recomputes the queue's length by walking it. Used only for
// invariant checks (testable property: page_count equals the sum of
// queue lengths), never on a hot path.
func (q *pageQueue) length() int {
	n := 0
	for p := q.first; p != nil; p = p.Next {
		n++
	}
	return n
}

// append links p onto the tail of q and sets p's owner. Callers must
// have already unlinked p from any queue it was previously in.
func (q *pageQueue) append(p *Page, owner *Heap) {
	p.Prev = q.last
	if q.last != nil {
		q.last.Next = p
	} else {
		q.first = p
	}
	q.last = p
	p.Next = nil
	p.SetOwner(owner)
}

// remove unlinks p from q. p must currently be linked in q.
func (q *pageQueue) remove(p *Page) {
	if p.Prev != nil {
		p.Prev.Next = p.Next
	} else {
		q.first = p.Next
	}
	if p.Next != nil {
		p.Next.Prev = p.Prev
	} else {
		q.last = p.Prev
	}
	p.Next, p.Prev = nil, nil
}

// reset clears the queue's links without freeing the pages it held; used
// when a heap's queues are being abandoned wholesale (their ownership
// already transferred page-by-page during splice).
func (q *pageQueue) reset() {
	q.first, q.last = nil, nil
}

// spliceOnto moves every page in q onto the tail of dst, reassigning
// each page's owner to newOwner, and returns the number of pages moved.
// q is left empty. This is the per-bin step of absorb (§4.4).
func (q *pageQueue) spliceOnto(dst *pageQueue, newOwner *Heap) int {
	if q.isEmpty() {
		return 0
	}
	n := 0
	for p := q.first; p != nil; p = p.Next {
		p.SetOwner(newOwner)
		n++
	}
	if dst.last != nil {
		dst.last.Next = q.first
		q.first.Prev = dst.last
	} else {
		dst.first = q.first
	}
	dst.last = q.last
	q.reset()
	return n
}

// forEach walks q in order, invoking visit once per page. It captures
// next before calling visit so a visitor that unlinks the current page
// (e.g. to retire it) does not break iteration (§4.1).
func (q *pageQueue) forEach(visit func(p *Page) bool) bool {
	for p := q.first; p != nil; {
		next := p.Next
		if !visit(p) {
			return false
		}
		p = next
	}
	return true
}
