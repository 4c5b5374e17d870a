package mimalloc

import (
	"github.com/romange/mimalloc/internal/osmem"
	"github.com/romange/mimalloc/internal/page"
)

// Allocate is the fast path exercising C1 and C3 together: find (or
// carve) a page of h's in the size class fitting size, pop a free block
// from it, and hand back a Block. Returns nil for a request too large
// for the small-object size classes or for an uninitialized heap — both
// out of this subsystem's scope (§5 Non-goals).
func Allocate(h *Heap, size uintptr) *Block {
	if !h.initialized() {
		return nil
	}
	sc := page.SizeClass(size)
	if sc < 0 {
		return nil
	}
	q := &h.pages[sc]

	p, n := allocFromQueue(q)
	if p == nil {
		p = h.tld.newPage(sc)
		q.append(p, h)
		h.pageCount.Add(1)
		n = p.Alloc()
		assert(n != nil, "freshly carved page has no free block")
	}
	if p.IsFull() {
		q.remove(p)
		h.pages[binFull].append(p, h)
	}
	return &Block{node: n, pg: p, seg: p.Segment}
}

// allocFromQueue tries every page in q, in order, collecting each one's
// pending thread-frees before giving up on it, and returns the first page
// (and the block just popped from it) that has room. Pages with nothing
// to offer are left exactly as found.
func allocFromQueue(q *pageQueue) (*Page, *page.FreeNode) {
	var foundPage *Page
	var foundNode *page.FreeNode
	q.forEach(func(p *Page) bool {
		if n := p.Alloc(); n != nil {
			foundPage, foundNode = p, n
			return false
		}
		p.FreeCollect(true)
		if n := p.Alloc(); n != nil {
			foundPage, foundNode = p, n
			return false
		}
		return true
	})
	return foundPage, foundNode
}

// Free returns b to its owning heap, taking the local path when called
// from the owning thread and the remote path otherwise (§4.1, §4.2).
// A block whose page has already lost its owner (the heap was destroyed
// out from under it) is silently ignored rather than panicking, matching
// §7's "never trust a bare pointer" posture.
func Free(b *Block) {
	if b == nil || b.pg == nil {
		return
	}
	owner := b.pg.Owner()
	if owner == nil {
		return
	}

	if osmem.CurrentThreadID() == owner.ThreadID() {
		freeLocal(owner, b)
		return
	}
	freeRemote(owner, b)
}

// freeLocal is the owning thread freeing its own block: return it
// straight to the page's free list and migrate the page out of the
// full bin if this free just made room.
func freeLocal(owner *Heap, b *Block) {
	wasFull := b.pg.IsFull()
	b.pg.Free(b.node)
	if wasFull && !b.pg.IsFull() {
		migrateFromFull(owner, b.pg)
	}
}

// freeRemote is another thread freeing a block it doesn't own: push onto
// the page's thread-free list if the page still has room to take it back
// directly, otherwise onto the owning heap's delayed-free channel (C2),
// per spec.md §4.2's rule that a full page's remote frees go through the
// delayed-free path instead.
func freeRemote(owner *Heap, b *Block) {
	if !b.pg.IsFull() {
		b.pg.PushThreadFree(b.node)
		return
	}
	owner.delayed.push(owner.key, b)
}

func migrateFromFull(owner *Heap, p *Page) {
	full := &owner.pages[binFull]
	full.remove(p)
	owner.pages[page.SizeClass(p.BlockSize)].append(p, owner)
}
