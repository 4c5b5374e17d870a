package mimalloc

import "testing"

func TestAllocateFreeLocalRoundTrip(t *testing.T) {
	_, h := newTestBacking(t)

	b := Allocate(h, 32)
	if b == nil {
		t.Fatal("Allocate returned nil")
	}
	if !ContainsBlock(h, b) {
		t.Fatal("ContainsBlock should be true right after Allocate")
	}
	if !CheckOwned(h, b) {
		t.Fatal("CheckOwned should be true for a live allocation")
	}
	if !CheckOwnedAny(b) {
		t.Fatal("CheckOwnedAny should be true for a live allocation")
	}

	Free(b)
	if CheckOwned(h, b) {
		t.Fatal("CheckOwned should be false once the block has been freed")
	}
}

func TestAllocateTooLargeReturnsNil(t *testing.T) {
	_, h := newTestBacking(t)
	if b := Allocate(h, 1<<20); b != nil {
		t.Fatal("Allocate should return nil for a request above the largest size class")
	}
}

func TestAllocateOnUninitializedHeapReturnsNil(t *testing.T) {
	var zero Heap
	if Allocate(&zero, 32) != nil {
		t.Fatal("Allocate on an uninitialized heap should return nil")
	}
}

func TestPageMigratesToFullBinAndBack(t *testing.T) {
	_, h := newTestBacking(t)

	first := Allocate(h, 16)
	capacity := int(first.pg.Capacity)

	blocks := []*Block{first}
	for i := 1; i < capacity; i++ {
		blocks = append(blocks, Allocate(h, 16))
	}
	if !first.pg.IsFull() {
		t.Fatal("page should be full after allocating exactly its capacity")
	}
	if h.pages[binFull].isEmpty() {
		t.Fatal("a page that became full should have migrated into the full bin")
	}

	Free(blocks[0])
	if first.pg.IsFull() {
		t.Fatal("page should no longer be full after freeing one block")
	}
}

func TestContainsBlockFalseAfterHeapDestroyed(t *testing.T) {
	_, backing := newTestBacking(t)
	child := create(backing)

	b := Allocate(child, 48)
	if b == nil {
		t.Fatal("Allocate returned nil")
	}
	if !child.NoReclaim() {
		t.Fatal("expected a freshly created child heap to be noReclaim")
	}

	Destroy(child)
	if ContainsBlock(child, b) {
		t.Fatal("ContainsBlock should be false once the heap has been destroyed")
	}
}
