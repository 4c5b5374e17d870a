package mimalloc

// Area describes one page's layout to an AreaVisitor: its block size and
// how much of its capacity is currently handed out. It is the area half
// of spec.md §4.5's area/block visitor.
type Area struct {
	BlockSize uintptr
	Capacity  uint32
	Used      uint32
}

// AreaVisitor is the closed set of callbacks VisitBlocks drives. VisitArea
// is called once per page; VisitBlock is called once per allocated block
// in that page, only when VisitBlocks was asked to descend into blocks.
// Either callback returning false stops the walk immediately, leaving
// later pages (and later blocks within the current page) unvisited.
type AreaVisitor interface {
	VisitArea(area Area) bool
	VisitBlock(b *Block) bool
}

// VisitBlocks walks every page owned by h, in queue order, reporting each
// as an Area. When visitBlocks is true, every allocated block within a
// page is also reported via VisitBlock before moving to the next page.
// Safe to call concurrently with allocations on other heaps; it only
// touches h's own pages, so it observes a consistent snapshot of h's
// memory exactly as the owning thread would (§4.5, §7: never takes a
// lock, never blocks).
func VisitBlocks(h *Heap, visitBlocks bool, visitor AreaVisitor) bool {
	if !h.initialized() || visitor == nil {
		return true
	}
	for i := range h.pages {
		q := &h.pages[i]
		cont := q.forEach(func(p *Page) bool {
			area := Area{BlockSize: p.BlockSize, Capacity: p.Capacity, Used: p.Used}
			if !visitor.VisitArea(area) {
				return false
			}
			if !visitBlocks || p.Used == 0 {
				return true
			}
			return p.VisitAllocated(func(idx uint32) bool {
				b := &Block{node: p.BlockAt(idx), pg: p, seg: p.Segment}
				return visitor.VisitBlock(b)
			})
		})
		if !cont {
			return false
		}
	}
	return true
}
