package mimalloc

import (
	"testing"

	"github.com/romange/mimalloc/internal/page"
	"github.com/romange/mimalloc/internal/segment"
)

// installPage carves a page of the given size class and capacity directly
// (bypassing Tld.newPage's segment/capacity formula, which never produces
// a capacity-1 page for any of the built-in size classes) and links it
// into h so VisitBlocks walks it like any other page.
func installPage(h *Heap, sizeClass int, capacity uint32) *Page {
	p := page.NewPage[Heap](&segment.Segment{}, sizeClass, capacity)
	h.pages[sizeClass].append(p, h)
	h.pageCount.Add(1)
	return p
}

type recordingVisitor struct {
	areas     int
	blocks    []uint32
	stopAfter int // 0 means never stop
}

func (v *recordingVisitor) VisitArea(Area) bool {
	v.areas++
	return true
}

func (v *recordingVisitor) VisitBlock(b *Block) bool {
	v.blocks = append(v.blocks, b.node.Index)
	if v.stopAfter != 0 && len(v.blocks) >= v.stopAfter {
		return false
	}
	return true
}

func TestVisitBlocksSingleBlockPageReportsExactlyOneBlock(t *testing.T) {
	_, h := newTestBacking(t)
	p := installPage(h, 0, 1)
	n := p.Alloc()
	if n == nil {
		t.Fatal("Alloc on a freshly carved capacity-1 page should succeed")
	}

	v := &recordingVisitor{}
	if !VisitBlocks(h, true, v) {
		t.Fatal("VisitBlocks should not report an early stop when the visitor never refuses")
	}
	if v.areas != 1 {
		t.Fatalf("areas visited = %d, want 1", v.areas)
	}
	if len(v.blocks) != 1 || v.blocks[0] != 0 {
		t.Fatalf("blocks visited = %v, want exactly [0]", v.blocks)
	}
}

func TestVisitBlocksSingleBlockPageEmptyReportsNoBlocks(t *testing.T) {
	_, h := newTestBacking(t)
	installPage(h, 0, 1)

	v := &recordingVisitor{}
	if !VisitBlocks(h, true, v) {
		t.Fatal("VisitBlocks should not report an early stop walking an empty page")
	}
	if v.areas != 1 {
		t.Fatalf("areas visited = %d, want 1", v.areas)
	}
	if len(v.blocks) != 0 {
		t.Fatalf("blocks visited = %v, want none (page is empty)", v.blocks)
	}
}

func TestVisitBlocksStopsAtFirstRefusalAcrossPages(t *testing.T) {
	_, h := newTestBacking(t)

	p0 := installPage(h, 0, 4) // 16-byte size class
	for i := 0; i < 2; i++ {
		p0.Alloc()
	}
	p1 := installPage(h, 1, 4) // 32-byte size class
	p1.Alloc()

	v := &recordingVisitor{stopAfter: 1}
	if VisitBlocks(h, true, v) {
		t.Fatal("VisitBlocks should report an early stop once the visitor refuses")
	}
	if v.areas != 1 {
		t.Fatalf("areas visited = %d, want 1 (walk must stop before reaching the second page)", v.areas)
	}
	if len(v.blocks) != 1 {
		t.Fatalf("blocks visited = %v, want exactly 1", v.blocks)
	}
}

func TestVisitBlocksSkipsBlockCallbacksWhenNotRequested(t *testing.T) {
	_, h := newTestBacking(t)
	p := installPage(h, 0, 4)
	p.Alloc()

	v := &recordingVisitor{}
	if !VisitBlocks(h, false, v) {
		t.Fatal("VisitBlocks(visitBlocks=false) should never report an early stop")
	}
	if v.areas != 1 {
		t.Fatalf("areas visited = %d, want 1", v.areas)
	}
	if len(v.blocks) != 0 {
		t.Fatal("VisitBlock should not be called when visitBlocks is false")
	}
}

func TestProfileRendersAllocatedBlocks(t *testing.T) {
	tld, h := newTestBacking(t)
	p := installPage(h, 0, 4)
	p.Alloc()
	p.Alloc()

	prof := tld.Profile(h)
	if len(prof.Sample) != 1 {
		t.Fatalf("Profile produced %d samples, want 1 (one size class in use)", len(prof.Sample))
	}
	if prof.Sample[0].Value[0] != 2 {
		t.Fatalf("inuse_objects = %d, want 2", prof.Sample[0].Value[0])
	}
	wantBytes := int64(2) * int64(page.BlockSize(0))
	if prof.Sample[0].Value[1] != wantBytes {
		t.Fatalf("inuse_space = %d, want %d", prof.Sample[0].Value[1], wantBytes)
	}
}
