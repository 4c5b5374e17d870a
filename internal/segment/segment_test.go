package segment

import (
	"testing"

	"github.com/romange/mimalloc/internal/osmem"
)

func TestNewReservesAndRegisters(t *testing.T) {
	cache := &osmem.Cache{}
	m := NewManager(1, cache)

	seg := m.New(4096, 0xabc)
	if seg.Cookie != 0xabc {
		t.Fatalf("Cookie = %#x, want 0xabc", seg.Cookie)
	}
	if seg.Owner() != 1 {
		t.Fatalf("Owner() = %d, want 1", seg.Owner())
	}
	if got := cache.Stats().Reserved; got != 4096 {
		t.Fatalf("cache Reserved = %d, want 4096", got)
	}
	if len(m.Segments()) != 1 {
		t.Fatalf("Segments() = %d entries, want 1", len(m.Segments()))
	}
}

func TestReleaseUnregistersAndReturnsToCache(t *testing.T) {
	cache := &osmem.Cache{}
	m := NewManager(1, cache)
	seg := m.New(4096, 0)

	m.Release(seg)
	if len(m.Segments()) != 0 {
		t.Fatalf("Segments() = %d entries after Release, want 0", len(m.Segments()))
	}
	stats := cache.Stats()
	if stats.Reserved != 0 {
		t.Fatalf("Reserved = %d after Release, want 0", stats.Reserved)
	}
	if stats.Cached != 4096 {
		t.Fatalf("Cached = %d after Release, want 4096", stats.Cached)
	}
}

func TestAbsorbFromMovesEverySegmentAndRehomesOwner(t *testing.T) {
	cache := &osmem.Cache{}
	from := NewManager(1, cache)
	to := NewManager(2, cache)

	from.New(4096, 1)
	from.New(4096, 2)

	to.AbsorbFrom(2, from)

	if len(from.Segments()) != 0 {
		t.Fatalf("from still holds %d segments after AbsorbFrom", len(from.Segments()))
	}
	got := to.Segments()
	if len(got) != 2 {
		t.Fatalf("to holds %d segments after AbsorbFrom, want 2", len(got))
	}
	for _, s := range got {
		if s.Owner() != 2 {
			t.Fatalf("segment owner = %d after absorb, want 2", s.Owner())
		}
	}
}
