package mimalloc

import (
	"github.com/romange/mimalloc/internal/osmem"
	"github.com/romange/mimalloc/internal/page"
)

// CollectMode selects how much work Collect does, per spec.md §4.4.
type CollectMode int

const (
	Normal  CollectMode = iota // drain delayed frees, retire empty pages
	Force                      // Normal, plus release cached segments/OS regions
	Abandon                    // used only internally by thread-exit handling
)

// Collect drains pending work for h: the deferred-free hook, the
// delayed-free channel, and retiring pages that became fully free.
// mode ≥ Force additionally releases cached segments (and, on the
// process's main thread, cached OS regions) back to the collaborators.
// A no-op on an uninitialized heap.
func Collect(h *Heap, mode CollectMode) {
	if !h.initialized() {
		return
	}
	if h.tld.deferredFree != nil {
		h.tld.deferredFree(h, mode > Normal)
	}
	if mode != Abandon {
		tryReclaimAbandoned(h, mode == Force)
	}
	drainDelayed(h)
	retireEmptyPages(h)
	if mode >= Force {
		h.tld.segments.ThreadCollect()
		if osmem.IsMainThread() {
			h.tld.osCache.Collect()
		}
	}
	if mode == Abandon {
		abandon(h)
	}
}

// drainDelayed empties h's delayed-free channel (C2) and hands every
// block back to its page's free list, per spec.md §4.2.
func drainDelayed(h *Heap) {
	chain := h.delayed.drain()
	for b := chain; b != nil; {
		next := b.delayedNextBlock(h.key)
		if b.pg != nil {
			b.pg.Free(b.node)
		}
		b = next
	}
}

// retireEmptyPages walks every bin, folding each page's pending
// thread-frees into its local free list and releasing pages that end up
// with zero live blocks back to the segment layer. Pages sitting in the
// full bin that gained free space are migrated back to their size-class
// queue instead of being retired.
func retireEmptyPages(h *Heap) {
	for i := 0; i < binFull; i++ {
		q := &h.pages[i]
		q.forEach(func(p *Page) bool {
			p.FreeCollect(false)
			if p.Reclaimable() {
				retirePage(h, q, p)
			}
			return true
		})
	}
	full := &h.pages[binFull]
	full.forEach(func(p *Page) bool {
		p.FreeCollect(false)
		switch {
		case p.Reclaimable():
			retirePage(h, full, p)
		case !p.IsFull():
			full.remove(p)
			h.pages[page.SizeClass(p.BlockSize)].append(p, h)
		}
		return true
	})
}

func retirePage(h *Heap, q *pageQueue, p *Page) {
	q.remove(p)
	h.pageCount.Add(-1)
	h.tld.stats.RecordPageDestroy(p.BlockSize, 0)
	h.tld.segments.Release(p.Segment)
}

// Create returns a new child heap owned by t's backing heap's thread, as
// described in spec.md §4.3. Returns nil if t has no backing heap yet.
func Create(t *Tld) *Heap {
	if t == nil || t.heapBacking == nil {
		return nil
	}
	return create(t.heapBacking)
}

// Delete safely tears h down without freeing any live block it still
// holds (spec.md §4.4). A non-backing heap's pages and delayed-free list
// are absorbed into its thread's backing heap, and its shell is released
// immediately. The backing heap itself cannot be absorbed into anything
// (there is nowhere to absorb it to), so it goes through Collect(h,
// Abandon) instead: abandon(h) releases the shell itself if h ended up
// empty, or otherwise leaves h initialized and pushes it onto the
// abandoned stack for a future reclaimer — either way Delete must not
// touch h again afterward.
func Delete(h *Heap) {
	if !h.initialized() {
		return
	}
	if !h.isBacking() {
		absorb(h.tld.heapBacking, h)
		releaseHeapShell(h)
		return
	}
	Collect(h, Abandon)
}

// Destroy bulk-releases h's storage regardless of live blocks (spec.md
// §4.4). Only legal when h.NoReclaim() is true; otherwise this is
// silently downgraded to Delete; per §7, destroying a heap that might
// still be reachable for reclaim would invalidate pages another thread
// could later absorb.
func Destroy(h *Heap) {
	if !h.initialized() {
		return
	}
	if !h.noReclaim {
		Delete(h)
		return
	}
	destroyPages(h)
	releaseHeapShell(h)
}

// destroyPages is heap_destroy_pages(h): it walks every page, treats it
// as empty regardless of what it actually holds, and returns its segment
// space. Any user block still living in one of these pages becomes
// invalid the instant this returns.
func destroyPages(h *Heap) {
	for i := range h.pages {
		q := &h.pages[i]
		for p := q.first; p != nil; {
			next := p.Next
			p.SetOwner(nil)
			h.tld.stats.RecordPageDestroy(p.BlockSize, p.Used)
			h.tld.segments.Release(p.Segment)
			p = next
		}
		q.reset()
	}
	h.pageCount.Store(0)
}

// releaseHeapShell marks h uninitialized (spec.md invariant 1) after its
// pages have been disposed of one way or another, and repoints the
// thread's default heap slot away from h if it was pointing there.
func releaseHeapShell(h *Heap) {
	if h.tld != nil && h.tld.defaultHeap == h {
		h.tld.defaultHeap = h.tld.heapBacking
	}
	h.tld = nil
}

// SetDefault swaps t's default heap pointer, returning the previous one
// (spec.md §6 set_default_heap). Idempotent under double application:
// SetDefault(t, SetDefault(t, h)) restores the original default.
func SetDefault(t *Tld, h *Heap) *Heap {
	old := t.DefaultHeap()
	t.defaultHeap = h
	return old
}

// DefaultHeap returns t's current default heap, falling back to the
// backing heap if no other default has been set.
func (t *Tld) DefaultHeap() *Heap {
	if t.defaultHeap == nil {
		return t.heapBacking
	}
	return t.defaultHeap
}

// ContainsBlock reports whether b lies in a page of h. It resolves b's
// segment, validates the segment's cookie against h's thread, and
// compares the resolved page's current owner to h. A cookie mismatch or
// any other corruption is reported as "not owned", never a panic (§7).
func ContainsBlock(h *Heap, b *Block) bool {
	if !h.initialized() || b == nil || b.pg == nil || b.seg == nil {
		return false
	}
	if b.seg.Cookie != h.tld.masterCookie {
		return false
	}
	return b.pg.Owner() == h
}

// CheckOwned is the stricter form of ContainsBlock: b must additionally
// be the base of a currently-allocated block, not one sitting on any
// free list. Implemented by a per-page bitmap lookup (§4.5/§4.6). Only
// word-aligned handles are ever reported owned; every Block this package
// hands out satisfies that by construction.
func CheckOwned(h *Heap, b *Block) bool {
	if !ContainsBlock(h, b) {
		return false
	}
	return b.pg.IsAllocated(b.node.Index)
}

// CheckOwnedAny is check_owned(p) from §6: like CheckOwned, but resolves
// the owning heap from the block itself instead of requiring the caller
// to already know it.
func CheckOwnedAny(b *Block) bool {
	if b == nil || b.pg == nil {
		return false
	}
	h := b.pg.Owner()
	if h == nil {
		return false
	}
	return CheckOwned(h, b)
}

// absorb merges every page and the delayed-free list of from into to,
// re-homing page ownership (spec.md §4.4's absorb protocol). from is
// left with zero pages and an empty delayed-free list; to's page count
// grows by exactly from's former page count (the additive law in §8).
func absorb(to, from *Heap) {
	if to == nil || from == nil || to == from || !to.initialized() || !from.initialized() {
		return
	}

	var moved int64
	for i := range to.pages {
		moved += int64(from.pages[i].spliceOnto(&to.pages[i], to))
	}
	to.pageCount.Add(moved)
	from.pageCount.Add(-moved)
	from.threadID.Store(to.threadID.Load())

	stolen := from.delayed.drain()
	if stolen != nil {
		head, tail := reencodeChain(stolen, from.key, to.key)
		to.delayed.prependChain(head, tail, to.key)
	}
}

// abandon is the abandonment step of Collect(h, Abandon): if h holds no
// pages it is released immediately, otherwise it is published onto the
// process-wide abandoned stack for some other thread to reclaim later.
func abandon(h *Heap) {
	if h.pageCount.Load() == 0 {
		releaseHeapShell(h)
		return
	}
	h.tld.stats.HeapsAbandoned++
	h.abandonedNext = nil
	pushAbandoned(h)
}

// tryReclaimAbandoned is try_reclaim_abandoned(heap, all) from §4.4: pop
// one (all==false) or every (all==true) heap off the abandoned stack and
// absorb each into h.
func tryReclaimAbandoned(h *Heap, all bool) {
	if abandonedHead.Load() == nil {
		// Pure optimization per spec.md §9's open question: skipping a
		// definitely-empty stack avoids the exchange, but correctness
		// never depends on this read being fresh.
		return
	}
	claimed := popAllAbandoned()
	if claimed == nil {
		return
	}
	if !all {
		rest := claimed.abandonedNext
		claimed.abandonedNext = nil
		if rest != nil {
			prependAbandonedChain(rest)
		}
		absorbAbandoned(h, claimed)
		return
	}
	for r := claimed; r != nil; {
		next := r.abandonedNext
		r.abandonedNext = nil
		absorbAbandoned(h, r)
		r = next
	}
}

func absorbAbandoned(h *Heap, r *Heap) {
	absorb(h, r)
	for _, s := range r.tld.segments.Segments() {
		s.Cookie = h.tld.masterCookie
	}
	h.tld.segments.AbsorbFrom(h.tld.threadID, r.tld.segments)
	h.tld.stats.HeapsReclaimed++
	releaseHeapShell(r)
}
