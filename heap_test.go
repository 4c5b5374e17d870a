package mimalloc

import (
	"testing"

	"github.com/romange/mimalloc/internal/osmem"
)

func newTestBacking(t *testing.T) (*Tld, *Heap) {
	t.Helper()
	tld := NewTld(&osmem.Cache{})
	h := NewBackingHeap(tld)
	if !h.isBacking() {
		t.Fatal("NewBackingHeap did not mark the heap as backing")
	}
	return tld, h
}

func TestCreateChildHeapIsNoReclaim(t *testing.T) {
	_, backing := newTestBacking(t)
	child := create(backing)
	if child == nil {
		t.Fatal("create returned nil for an initialized backing heap")
	}
	if !child.NoReclaim() {
		t.Fatal("a freshly created child heap should be noReclaim")
	}
	if child.isBacking() {
		t.Fatal("a child heap must not report itself as backing")
	}
	if child.ThreadID() != backing.ThreadID() {
		t.Fatalf("child ThreadID = %d, want %d (same thread as backing)", child.ThreadID(), backing.ThreadID())
	}
}

func TestCreateOnUninitializedHeapReturnsNil(t *testing.T) {
	var zero Heap
	if create(&zero) != nil {
		t.Fatal("create on an uninitialized heap should return nil")
	}
}

func TestSetDefaultIsIdempotentUnderDoubleApplication(t *testing.T) {
	tld, backing := newTestBacking(t)
	child := create(backing)

	if tld.Backing() != backing {
		t.Fatal("Tld.Backing() should return the heap NewBackingHeap created")
	}
	if tld.DefaultHeap() != backing {
		t.Fatal("DefaultHeap() should fall back to the backing heap before any SetDefault call")
	}

	old := SetDefault(tld, child)
	if old != backing {
		t.Fatal("SetDefault should return the previous default")
	}
	if tld.DefaultHeap() != child {
		t.Fatal("DefaultHeap() should reflect the new default")
	}

	restored := SetDefault(tld, old)
	if restored != child {
		t.Fatal("SetDefault should return the heap it is replacing")
	}
	if tld.DefaultHeap() != backing {
		t.Fatal("SetDefault(SetDefault(h)) should restore the original default")
	}
}

func TestHeapKeysDifferAcrossSiblings(t *testing.T) {
	_, backing := newTestBacking(t)
	a := create(backing)
	b := create(backing)
	if a.key == b.key {
		t.Fatal("sibling heaps split from the same parent PRNG should not share a key")
	}
}
